package config

import "time"

// DaemonConfig is the root configuration for a pulse daemon instance.
type DaemonConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Auth     AuthConfig     `yaml:"auth"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Database DatabaseConfig `yaml:"database"`
	Session  SessionConfig  `yaml:"session"`
	Journal  JournalConfig  `yaml:"journal"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Slack    SlackConfig    `yaml:"slack"`
	Server   ServerConfig   `yaml:"server"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies this daemon.
type InstanceConfig struct {
	ID string `yaml:"id" env:"PULSE_INSTANCE_ID"`
}

// AuthConfig holds platform credentials. A static token bypasses the
// platform token endpoint and is meant for tools and development.
type AuthConfig struct {
	PlatformURL string        `yaml:"platform_url" env:"PULSE_PLATFORM_URL"`
	APIKey      string        `yaml:"api_key" env:"PULSE_API_KEY"`
	StaticToken string        `yaml:"static_token" env:"PULSE_STATIC_TOKEN"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

// GatewayConfig holds realtime WebSocket settings. Zero durations take
// defaults; negative values disable the feature they bound.
type GatewayConfig struct {
	URL                  string        `yaml:"url" env:"PULSE_GATEWAY_URL"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	PongTimeout          time.Duration `yaml:"pong_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	TokenTimeout         time.Duration `yaml:"token_timeout"`
	FrameBuffer          int           `yaml:"frame_buffer"`
	Topics               []string      `yaml:"topics"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	ReconnectMaxAttempts int           `yaml:"reconnect_max_attempts"`
}

// DatabaseConfig holds the Postgres connection used by the journal and
// the postgres session backend.
type DatabaseConfig struct {
	Host     string `yaml:"host" env:"PULSE_DB_HOST"`
	Port     int    `yaml:"port" env:"PULSE_DB_PORT"`
	Name     string `yaml:"name" env:"PULSE_DB_NAME"`
	User     string `yaml:"user" env:"PULSE_DB_USER"`
	Password string `yaml:"password" env:"PULSE_DB_PASSWORD"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// SessionConfig selects where session IDs and topic sets persist.
type SessionConfig struct {
	Backend string        `yaml:"backend"` // "memory", "redis", or "postgres"
	TTL     time.Duration `yaml:"ttl"`     // redis key expiry
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig holds the redis session backend connection.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"PULSE_REDIS_ADDR"`
	Password string `yaml:"password" env:"PULSE_REDIS_PASSWORD"`
	DB       int    `yaml:"db"`
}

// JournalConfig holds frame journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// BridgeConfig holds UI bridge settings.
type BridgeConfig struct {
	AutoConnect   bool   `yaml:"auto_connect"`
	CustomerLabel string `yaml:"customer_label"`
}

// SlackConfig holds the Slack notification sink. An empty webhook URL
// disables the sink.
type SlackConfig struct {
	WebhookURL    string        `yaml:"webhook_url" env:"PULSE_SLACK_WEBHOOK"`
	Channel       string        `yaml:"channel"`
	QueueSize     int           `yaml:"queue_size"`
	DedupeWindow  time.Duration `yaml:"dedupe_window"`
	RatePerMinute int           `yaml:"rate_per_minute"`
}

// ServerConfig holds the operational HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr" env:"PULSE_SERVER_ADDR"`
}

// MetricsConfig holds Prometheus collector settings.
type MetricsConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}
