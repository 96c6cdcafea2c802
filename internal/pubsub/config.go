package pubsub

import "time"

// DefaultChannel carries session events between instances
const DefaultChannel = "livesession:events"

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address      string        `mapstructure:"address" json:"address"`
	Password     string        `mapstructure:"password" json:"password"`
	DB           int           `mapstructure:"db" json:"db"`
	PoolSize     int           `mapstructure:"pool_size" json:"pool_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	Channel      string        `mapstructure:"channel" json:"channel"`
}

// Enabled reports whether an address is configured
func (c RedisConfig) Enabled() bool {
	return c.Address != ""
}

func (c RedisConfig) channel() string {
	if c.Channel == "" {
		return DefaultChannel
	}
	return c.Channel
}
