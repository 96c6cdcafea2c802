package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"livesession/internal/conference"
	"livesession/internal/logging"
	"livesession/internal/pubsub"
	"livesession/pkg/database"
)

// EnvPrefix namespaces every environment override, e.g. LIVESESSION_HTTP_PORT
const EnvPrefix = "LIVESESSION"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Database   *database.Config   `mapstructure:"database" json:"database"`
	HTTP       *HTTPConfig        `mapstructure:"http" json:"http"`
	WebSocket  *WebSocketConfig   `mapstructure:"websocket" json:"websocket"`
	Sessions   *SessionsConfig    `mapstructure:"sessions" json:"sessions"`
	Conference *ConferenceConfig  `mapstructure:"conference" json:"conference"`
	Redis      pubsub.RedisConfig `mapstructure:"redis" json:"redis"`
	Log        logging.Config     `mapstructure:"log" json:"log"`
}

// HTTPConfig controls the API listener
type HTTPConfig struct {
	Host            string        `mapstructure:"host" json:"host"`
	Port            int           `mapstructure:"port" json:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
}

// Addr returns host:port for net/http
func (c *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FUNCTIONAL DISCOVERY: WebSocket heartbeat tuned for classroom networks, 30s ping under a 60s deadline
type WebSocketConfig struct {
	PingInterval time.Duration `mapstructure:"ping_interval" json:"ping_interval"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
}

// SessionsConfig tunes the session store and the views over it
type SessionsConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval" json:"poll_interval"`
	MinTitleLength int           `mapstructure:"min_title_length" json:"min_title_length"`
	RateLimit      int           `mapstructure:"rate_limit" json:"rate_limit"`
}

// ConferenceConfig bounds join attempts made by conferencing views. The
// service does not connect to conferences itself: these values seed
// conference.Controller in embedding clients and are served to remote ones
// at GET /api/conference/settings.
type ConferenceConfig struct {
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout" json:"connect_timeout"`
	MaxRetries        int           `mapstructure:"max_retries" json:"max_retries"`
	ScriptLoadTimeout time.Duration `mapstructure:"script_load_timeout" json:"script_load_timeout"`
}

// Controller returns the controller settings
func (c *ConferenceConfig) Controller() conference.Config {
	return conference.Config{ConnectTimeout: c.ConnectTimeout, MaxRetries: c.MaxRetries}
}

// defaults is the single table of default values; viper needs every key
// registered here for environment overrides to reach Unmarshal.
var defaults = map[string]interface{}{
	"database.path":               "./data/livesession.db",
	"database.max_connections":    10,
	"database.conn_max_lifetime":  "1h",
	"database.conn_max_idle_time": "10m",

	"http.host":             "0.0.0.0",
	"http.port":             8080,
	"http.read_timeout":     "30s",
	"http.write_timeout":    "30s",
	"http.shutdown_timeout": "10s",

	"websocket.ping_interval": "30s",
	"websocket.read_timeout":  "60s",

	"sessions.poll_interval":    "30s",
	"sessions.min_title_length": 3,
	"sessions.rate_limit":       100,

	"conference.connect_timeout":     "20s",
	"conference.max_retries":         conference.DefaultMaxRetries,
	"conference.script_load_timeout": "10s",

	"redis.address":       "",
	"redis.password":      "",
	"redis.db":            0,
	"redis.pool_size":     10,
	"redis.read_timeout":  "3s",
	"redis.write_timeout": "3s",
	"redis.channel":       pubsub.DefaultChannel,

	"log.level":        "info",
	"log.pretty":       false,
	"log.service_name": "livesession",
}

func newViper(withEnv bool) *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if withEnv {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return &cfg, nil
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	cfg, err := decode(newViper(false))
	if err != nil {
		// The defaults table is static; a decode failure is a programming error
		panic(err)
	}
	return cfg
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
func (c *Config) Validate() error {
	if c.Database == nil {
		return errors.New("database configuration is required")
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if c.HTTP == nil {
		return errors.New("HTTP configuration is required")
	}
	// Port 0 asks the kernel for a free port
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return errors.New("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return errors.New("HTTP write timeout must be positive")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return errors.New("HTTP shutdown timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return errors.New("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return errors.New("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return errors.New("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return errors.New("WebSocket read timeout must exceed the ping interval")
	}

	if c.Sessions == nil {
		return errors.New("sessions configuration is required")
	}
	if c.Sessions.PollInterval <= 0 {
		return errors.New("sessions poll interval must be positive")
	}
	if c.Sessions.MinTitleLength < 0 {
		return errors.New("sessions min title length cannot be negative")
	}
	if c.Sessions.RateLimit <= 0 {
		return errors.New("sessions rate limit must be positive")
	}

	if c.Conference == nil {
		return errors.New("conference configuration is required")
	}
	if c.Conference.ConnectTimeout <= 0 {
		return errors.New("conference connect timeout must be positive")
	}
	if c.Conference.MaxRetries < 0 {
		return errors.New("conference max retries cannot be negative")
	}
	if c.Conference.ScriptLoadTimeout <= 0 {
		return errors.New("conference script load timeout must be positive")
	}

	if c.Redis.Enabled() && c.Redis.PoolSize <= 0 {
		return errors.New("redis pool size must be positive")
	}

	return nil
}

// LoadFromEnv applies LIVESESSION_* overrides to the defaults
func LoadFromEnv() (*Config, error) {
	cfg, err := decode(newViper(true))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return cfg, nil
}

// LoadFromFile reads a JSON or YAML file over the defaults. The environment
// is not consulted.
func LoadFromFile(path string) (*Config, error) {
	return loadFile(path, false)
}

// LoadConfigWithPrecedence resolves environment > file > defaults. An empty
// path or a missing file falls back to environment and defaults; a file that
// exists but cannot be parsed is an error.
func LoadConfigWithPrecedence(path string) (*Config, error) {
	if path == "" {
		return LoadFromEnv()
	}
	cfg, err := loadFile(path, true)
	if errors.Is(err, errConfigMissing) {
		return LoadFromEnv()
	}
	return cfg, err
}

var errConfigMissing = errors.New("config file not found")

func loadFile(path string, withEnv bool) (*Config, error) {
	v := newViper(withEnv)
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", errConfigMissing, path)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	// ARCHITECTURAL DISCOVERY: Validate configuration after loading to catch errors early
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}
