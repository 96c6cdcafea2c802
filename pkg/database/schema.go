package database

import (
	"database/sql"
	"errors"
	"fmt"
)

// SchemaValidator provides database schema validation functionality
// ARCHITECTURAL DISCOVERY: Separate validation component enables startup
// verification without coupling to the migration system
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"session_participants": "Join/leave audit trail",
		"schema_migrations":    "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies table column structure matches expectations
// TECHNICAL DISCOVERY: Column validation keeps types.SessionParticipant and the
// scan order in the recorder in step with the schema
func (v *SchemaValidator) ValidateTableStructure() error {
	participantColumns := map[string]string{
		"id":         "TEXT",
		"session_id": "TEXT",
		"user_id":    "TEXT",
		"joined_at":  "DATETIME",
		"left_at":    "DATETIME",
		"active":     "INTEGER",
	}

	if err := v.validateColumns("session_participants", participantColumns); err != nil {
		return fmt.Errorf("session_participants table structure invalid: %w", err)
	}
	return nil
}

// ValidateIndexes verifies that all lookup indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_participants_session_joined": "Participant history by session",
		"idx_participants_open":           "Open row lookup on leave",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

// ValidateConstraints verifies that check constraints are enforced. Probe rows
// are written inside a transaction that is always rolled back.
func (v *SchemaValidator) ValidateConstraints() error {
	tx, err := v.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin constraint probe: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	probes := []struct {
		name  string
		query string
	}{
		{
			name: "user_id must not be empty",
			query: `INSERT INTO session_participants (id, session_id, user_id, joined_at)
				VALUES ('probe-1', 'probe', '', CURRENT_TIMESTAMP)`,
		},
		{
			name: "active must be 0 or 1",
			query: `INSERT INTO session_participants (id, session_id, user_id, joined_at, active)
				VALUES ('probe-2', 'probe', 'user', CURRENT_TIMESTAMP, 2)`,
		},
	}

	for _, probe := range probes {
		if _, err := tx.Exec(probe.query); err == nil {
			return fmt.Errorf("check constraint not enforced: %s", probe.name)
		}
	}

	_, err = tx.Exec(`INSERT INTO session_participants (id, session_id, user_id, joined_at)
		VALUES ('probe-3', 'probe', 'user', CURRENT_TIMESTAMP)`)
	if err != nil {
		return fmt.Errorf("valid probe row rejected: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO session_participants (id, session_id, user_id, joined_at)
		VALUES ('probe-3', 'probe', 'user', CURRENT_TIMESTAMP)`); err == nil {
		return errors.New("primary key constraint not enforced: session_participants.id")
	}

	return nil
}

// tableExists checks if a table exists in the database
func (v *SchemaValidator) tableExists(tableName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		tableName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// indexExists checks if an index exists in the database
func (v *SchemaValidator) indexExists(indexName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?",
		indexName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// validateColumns checks that a table has the expected columns with correct types
func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid, notNull, pk int
		var name, dataType string
		var defaultValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		foundColumns[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for expectedCol, expectedType := range expectedColumns {
		foundType, exists := foundColumns[expectedCol]
		if !exists {
			return fmt.Errorf("column %s not found", expectedCol)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", expectedCol, foundType, expectedType)
		}
	}

	return nil
}
