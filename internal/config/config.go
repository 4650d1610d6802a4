package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	// LogFormat is "console" or "json".
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTRequired bool   `mapstructure:"jwt_required" yaml:"jwt_required"`

	MaxMessageBytes int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	EventBuffer     int   `mapstructure:"event_buffer" yaml:"event_buffer"`
	// RateLimit caps inbound WebSocket frames per connection per minute; 0 disables.
	RateLimit int `mapstructure:"rate_limit" yaml:"rate_limit"`

	CommitTimeout   time.Duration `mapstructure:"commit_timeout" yaml:"commit_timeout"`
	CompensateEdits bool          `mapstructure:"compensate_edits" yaml:"compensate_edits"`
	MaxBodyRunes    int           `mapstructure:"max_body_runes" yaml:"max_body_runes"`

	RedisAddr string `mapstructure:"redis_addr" yaml:"redis_addr"`

	AMQPURL      string   `mapstructure:"amqp_url" yaml:"amqp_url"`
	AMQPExchange string   `mapstructure:"amqp_exchange" yaml:"amqp_exchange"`
	KafkaBrokers []string `mapstructure:"kafka_brokers" yaml:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic" yaml:"kafka_topic"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		DatabasePath:      "roomcast.db",
		JWTIssuer:         "roomcast",
		JWTAudience:       "roomcast",
		MaxMessageBytes:   1 << 20,
		EventBuffer:       64,
		RateLimit:         120,
		CommitTimeout:     10 * time.Second,
		MaxBodyRunes:      4000,
		AMQPExchange:      "roomcast.audit",
		KafkaTopic:        "roomcast.outcomes",
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
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTRequired {
		c.JWTRequired = true
	}
	if other.CommitTimeout != 0 {
		c.CommitTimeout = other.CommitTimeout
	}
	if other.CompensateEdits {
		c.CompensateEdits = true
	}
	if other.RedisAddr != "" {
		c.RedisAddr = other.RedisAddr
	}
	if other.AMQPURL != "" {
		c.AMQPURL = other.AMQPURL
	}
	if len(other.KafkaBrokers) > 0 {
		c.KafkaBrokers = other.KafkaBrokers
	}
}
