package database

import (
	"testing"
	"time"

	"livesession/pkg/types"
)

func TestSchemaValidator_ValidateTablesExist(t *testing.T) {
	if err := NewSchemaValidator(openTestDB(t)).ValidateTablesExist(); err == nil {
		t.Error("Expected error for missing tables")
	}
	if err := NewSchemaValidator(migratedTestDB(t)).ValidateTablesExist(); err != nil {
		t.Errorf("Expected tables to exist: %v", err)
	}
}

func TestSchemaValidator_ValidateTableStructure(t *testing.T) {
	if err := NewSchemaValidator(migratedTestDB(t)).ValidateTableStructure(); err != nil {
		t.Errorf("Table structure should be valid: %v", err)
	}

	db := openTestDB(t)
	if _, err := db.Exec("CREATE TABLE session_participants (id TEXT PRIMARY KEY, user_id INTEGER)"); err != nil {
		t.Fatalf("Failed to create mismatched table: %v", err)
	}
	if err := NewSchemaValidator(db).ValidateTableStructure(); err == nil {
		t.Error("Mismatched table structure should fail validation")
	}
}

func TestSchemaValidator_ValidateIndexes(t *testing.T) {
	if err := NewSchemaValidator(migratedTestDB(t)).ValidateIndexes(); err != nil {
		t.Errorf("Indexes should exist: %v", err)
	}

	db := migratedTestDB(t)
	if _, err := db.Exec("DROP INDEX idx_participants_open"); err != nil {
		t.Fatalf("Failed to drop index: %v", err)
	}
	if err := NewSchemaValidator(db).ValidateIndexes(); err == nil {
		t.Error("Missing index should fail validation")
	}
}

func TestSchemaValidator_ValidateConstraints(t *testing.T) {
	db := migratedTestDB(t)
	if err := NewSchemaValidator(db).ValidateConstraints(); err != nil {
		t.Errorf("Constraints should be enforced: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM session_participants").Scan(&count); err != nil {
		t.Fatalf("Failed to count rows: %v", err)
	}
	if count != 0 {
		t.Errorf("Constraint probes must not leave rows behind, found %d", count)
	}
}

func TestDatabase_IntegrationWithTypes(t *testing.T) {
	db := migratedTestDB(t)

	joined := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	p := types.SessionParticipant{ID: "p1", SessionID: "s1", UserID: "u1", JoinedAt: joined, Active: true}

	_, err := db.Exec(
		"INSERT INTO session_participants (id, session_id, user_id, joined_at, active) VALUES (?, ?, ?, ?, ?)",
		p.ID, p.SessionID, p.UserID, p.JoinedAt, p.Active,
	)
	if err != nil {
		t.Fatalf("Failed to insert participant: %v", err)
	}

	var got types.SessionParticipant
	err = db.QueryRow(
		"SELECT id, session_id, user_id, joined_at, active FROM session_participants WHERE id = ?", p.ID,
	).Scan(&got.ID, &got.SessionID, &got.UserID, &got.JoinedAt, &got.Active)
	if err != nil {
		t.Fatalf("Failed to read participant: %v", err)
	}

	if got.UserID != "u1" || !got.Active || !got.JoinedAt.Equal(joined) {
		t.Errorf("Round trip mismatch: %+v", got)
	}
}
