package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	checks := []struct {
		name string
		ok   bool
	}{
		{"database path", config.Database.DatabasePath == "./data/livesession.db"},
		{"database lifetime", config.Database.ConnMaxLifetime == time.Hour},
		{"http port", config.HTTP.Port == 8080},
		{"http addr", config.HTTP.Addr() == "0.0.0.0:8080"},
		{"ping interval", config.WebSocket.PingInterval == 30*time.Second},
		{"read timeout", config.WebSocket.ReadTimeout == 60*time.Second},
		{"poll interval", config.Sessions.PollInterval == 30*time.Second},
		{"min title", config.Sessions.MinTitleLength == 3},
		{"rate limit", config.Sessions.RateLimit == 100},
		{"connect timeout", config.Conference.ConnectTimeout == 20*time.Second},
		{"max retries", config.Conference.MaxRetries == 3},
		{"script load timeout", config.Conference.ScriptLoadTimeout == 10*time.Second},
		{"redis disabled", !config.Redis.Enabled()},
		{"redis channel", config.Redis.Channel == "livesession:events"},
		{"log level", config.Log.Level == "info"},
		{"service name", config.Log.ServiceName == "livesession"},
	}
	for _, c := range checks {
		if !c.ok {
			t.Errorf("Unexpected default for %s", c.name)
		}
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Defaults should validate: %v", err)
	}
}

func TestConfig_ControllerSettings(t *testing.T) {
	cc := DefaultConfig().Conference.Controller()
	if cc.ConnectTimeout != 20*time.Second || cc.MaxRetries != 3 {
		t.Errorf("Unexpected controller config %+v", cc)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"nil database", func(c *Config) { c.Database = nil }},
		{"empty database path", func(c *Config) { c.Database.DatabasePath = "" }},
		{"negative port", func(c *Config) { c.HTTP.Port = -1 }},
		{"port too large", func(c *Config) { c.HTTP.Port = 70000 }},
		{"zero read timeout", func(c *Config) { c.HTTP.ReadTimeout = 0 }},
		{"zero shutdown timeout", func(c *Config) { c.HTTP.ShutdownTimeout = 0 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"nil websocket", func(c *Config) { c.WebSocket = nil }},
		{"read timeout below ping", func(c *Config) { c.WebSocket.ReadTimeout = c.WebSocket.PingInterval }},
		{"zero poll interval", func(c *Config) { c.Sessions.PollInterval = 0 }},
		{"negative min title", func(c *Config) { c.Sessions.MinTitleLength = -1 }},
		{"zero rate limit", func(c *Config) { c.Sessions.RateLimit = 0 }},
		{"negative retries", func(c *Config) { c.Conference.MaxRetries = -1 }},
		{"zero connect timeout", func(c *Config) { c.Conference.ConnectTimeout = 0 }},
		{"redis without pool", func(c *Config) { c.Redis.Address = "localhost:6379"; c.Redis.PoolSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestConfig_ZeroRetriesIsValid(t *testing.T) {
	config := DefaultConfig()
	config.Conference.MaxRetries = 0
	if err := config.Validate(); err != nil {
		t.Errorf("Zero retries should be allowed: %v", err)
	}
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("LIVESESSION_HTTP_PORT", "9090")
	t.Setenv("LIVESESSION_DATABASE_PATH", "/tmp/test.db")
	t.Setenv("LIVESESSION_SESSIONS_POLL_INTERVAL", "5s")
	t.Setenv("LIVESESSION_REDIS_ADDRESS", "redis:6379")
	t.Setenv("LIVESESSION_LOG_PRETTY", "true")

	config, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}

	if config.HTTP.Port != 9090 {
		t.Errorf("Expected HTTP port 9090, got %d", config.HTTP.Port)
	}
	if config.Database.DatabasePath != "/tmp/test.db" {
		t.Errorf("Expected database path /tmp/test.db, got %s", config.Database.DatabasePath)
	}
	if config.Sessions.PollInterval != 5*time.Second {
		t.Errorf("Expected poll interval 5s, got %v", config.Sessions.PollInterval)
	}
	if !config.Redis.Enabled() || config.Redis.Address != "redis:6379" {
		t.Errorf("Expected redis enabled, got %+v", config.Redis)
	}
	if !config.Log.Pretty {
		t.Error("Expected pretty logging from env")
	}
}

func TestConfig_LoadFromEnvInvalid(t *testing.T) {
	t.Setenv("LIVESESSION_HTTP_PORT", "invalid")
	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error for non-numeric port")
	}
}

func TestConfig_LoadFromEnvFailsValidation(t *testing.T) {
	t.Setenv("LIVESESSION_HTTP_PORT", "99999")
	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected validation error for port > 65535")
	}
}

func TestConfig_LoadFromFile(t *testing.T) {
	path := writeConfigFile(t, "config.json", `{
		"database": {"path": "/data/sessions.db"},
		"http": {"port": 7070, "read_timeout": "15s"},
		"sessions": {"min_title_length": 5},
		"conference": {"max_retries": 1}
	}`)

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Database.DatabasePath != "/data/sessions.db" {
		t.Errorf("Unexpected database path %s", config.Database.DatabasePath)
	}
	if config.HTTP.Port != 7070 || config.HTTP.ReadTimeout != 15*time.Second {
		t.Errorf("Unexpected HTTP config %+v", config.HTTP)
	}
	if config.HTTP.WriteTimeout != 30*time.Second {
		t.Errorf("Unset keys should keep defaults, got %v", config.HTTP.WriteTimeout)
	}
	if config.Sessions.MinTitleLength != 5 || config.Conference.MaxRetries != 1 {
		t.Errorf("Unexpected sessions/conference %+v %+v", config.Sessions, config.Conference)
	}
}

func TestConfig_LoadFromFileYAML(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", "http:\n  port: 6060\nlog:\n  level: debug\n")

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if config.HTTP.Port != 6060 || config.Log.Level != "debug" {
		t.Errorf("Unexpected YAML config %+v %+v", config.HTTP, config.Log)
	}
}

func TestConfig_LoadFromFileIgnoresEnv(t *testing.T) {
	t.Setenv("LIVESESSION_HTTP_PORT", "9191")
	path := writeConfigFile(t, "config.json", `{"http": {"port": 7070}}`)

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if config.HTTP.Port != 7070 {
		t.Errorf("LoadFromFile should not read the environment, got %d", config.HTTP.Port)
	}
}

func TestConfig_LoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}

	bad := writeConfigFile(t, "bad.json", `{"http": {"port": `)
	if _, err := LoadFromFile(bad); err == nil {
		t.Error("Expected error for invalid JSON")
	}

	invalid := writeConfigFile(t, "invalid.json", `{"http": {"port": -1}}`)
	_, err := LoadFromFile(invalid)
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestConfig_LoadConfigWithPrecedence(t *testing.T) {
	config, err := LoadConfigWithPrecedence("")
	if err != nil || config.HTTP.Port != 8080 {
		t.Fatalf("Expected defaults, got %v (err %v)", config, err)
	}

	config, err = LoadConfigWithPrecedence(filepath.Join(t.TempDir(), "nonexistent.json"))
	if err != nil || config.HTTP.Port != 8080 {
		t.Errorf("Missing file should fall back to defaults, got %v (err %v)", config, err)
	}

	path := writeConfigFile(t, "config.json", `{"http": {"port": 7777, "host": "127.0.0.1"}}`)
	config, err = LoadConfigWithPrecedence(path)
	if err != nil {
		t.Fatalf("LoadConfigWithPrecedence failed: %v", err)
	}
	if config.HTTP.Port != 7777 {
		t.Errorf("Expected file port 7777, got %d", config.HTTP.Port)
	}

	// Environment wins over the file
	t.Setenv("LIVESESSION_HTTP_PORT", "9999")
	config, err = LoadConfigWithPrecedence(path)
	if err != nil {
		t.Fatalf("LoadConfigWithPrecedence failed: %v", err)
	}
	if config.HTTP.Port != 9999 {
		t.Errorf("Expected env port 9999, got %d", config.HTTP.Port)
	}
	if config.HTTP.Host != "127.0.0.1" {
		t.Errorf("File values without env override should stay, got %s", config.HTTP.Host)
	}

	bad := writeConfigFile(t, "bad.json", `{`)
	if _, err := LoadConfigWithPrecedence(bad); err == nil {
		t.Error("Unparseable file should be an error")
	}
}
