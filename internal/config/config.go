package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`

	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	History   HistoryConfig   `mapstructure:"history" yaml:"history"`
	Directory DirectoryConfig `mapstructure:"directory" yaml:"directory"`
	Redis     RedisConfig     `mapstructure:"redis" yaml:"redis"`
	Push      PushConfig      `mapstructure:"push" yaml:"push"`
}

// AuthConfig configures session token verification.
type AuthConfig struct {
	Secret   string `mapstructure:"secret" yaml:"secret"`
	Issuer   string `mapstructure:"issuer" yaml:"issuer"`
	Audience string `mapstructure:"audience" yaml:"audience"`
}

// SessionConfig configures per-connection behaviour.
type SessionConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	PingTimeout       time.Duration `mapstructure:"ping_timeout" yaml:"ping_timeout"`
	SendQueueSize     int           `mapstructure:"send_queue_size" yaml:"send_queue_size"`
}

// HistoryConfig bounds chat history pages served on subscribe.
type HistoryConfig struct {
	DefaultLimit int `mapstructure:"default_limit" yaml:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit" yaml:"max_limit"`
}

// DirectoryConfig configures the player directory lookup cache.
type DirectoryConfig struct {
	CacheSize int           `mapstructure:"cache_size" yaml:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// RedisConfig configures the optional presence mirror. An empty Addr
// disables it.
type RedisConfig struct {
	Addr        string `mapstructure:"addr" yaml:"addr"`
	Password    string `mapstructure:"password" yaml:"password"`
	DB          int    `mapstructure:"db" yaml:"db"`
	PushChannel string `mapstructure:"push_channel" yaml:"push_channel"`
}

// PushConfig configures the internal push API. ServiceKeys holds bcrypt
// hashes of accepted service keys; an empty list disables the API.
type PushConfig struct {
	ServiceKeys []string `mapstructure:"service_keys" yaml:"service_keys"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "presence.db",
		Auth: AuthConfig{
			Issuer:   "undercity-auth",
			Audience: "undercity-realtime",
		},
		Session: SessionConfig{
			HeartbeatInterval: 30 * time.Second,
			PingTimeout:       10 * time.Second,
			SendQueueSize:     64,
		},
		History: HistoryConfig{
			DefaultLimit: 50,
			MaxLimit:     100,
		},
		Directory: DirectoryConfig{
			CacheSize: 4096,
			CacheTTL:  5 * time.Minute,
		},
		Redis: RedisConfig{
			PushChannel: "presence:push",
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.Auth.Secret != "" {
		c.Auth.Secret = other.Auth.Secret
	}
	if other.Redis.Addr != "" {
		c.Redis.Addr = other.Redis.Addr
	}
}
