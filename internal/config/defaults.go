package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAuthTimeout    = 30 * time.Second
	DefaultAuthMaxRetries = 3

	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultPongTimeout          = 90 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultTokenTimeout         = 10 * time.Second
	DefaultFrameBuffer          = 256
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 30 * time.Second
	DefaultReconnectMaxAttempts = 5

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2

	DefaultSessionBackend = "memory"
	DefaultSessionTTL     = 24 * time.Hour

	DefaultBatchSize     = 250
	DefaultFlushInterval = 2 * time.Second
	DefaultBufferSize    = 1024

	DefaultSlackQueueSize     = 256
	DefaultSlackDedupeWindow  = time.Minute
	DefaultSlackRatePerMinute = 30

	DefaultServerAddr      = ":8090"
	DefaultRefreshInterval = 5 * time.Second
)

func (c *DaemonConfig) applyDefaults() {
	// Auth defaults
	if c.Auth.Timeout == 0 {
		c.Auth.Timeout = DefaultAuthTimeout
	}
	if c.Auth.MaxRetries == 0 {
		c.Auth.MaxRetries = DefaultAuthMaxRetries
	}

	// Gateway defaults
	if c.Gateway.HeartbeatInterval == 0 {
		c.Gateway.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Gateway.PongTimeout == 0 {
		c.Gateway.PongTimeout = DefaultPongTimeout
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = DefaultWriteTimeout
	}
	if c.Gateway.HandshakeTimeout == 0 {
		c.Gateway.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Gateway.TokenTimeout == 0 {
		c.Gateway.TokenTimeout = DefaultTokenTimeout
	}
	if c.Gateway.FrameBuffer == 0 {
		c.Gateway.FrameBuffer = DefaultFrameBuffer
	}
	if c.Gateway.ReconnectBaseDelay == 0 {
		c.Gateway.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Gateway.ReconnectMaxDelay == 0 {
		c.Gateway.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Gateway.ReconnectMaxAttempts == 0 {
		c.Gateway.ReconnectMaxAttempts = DefaultReconnectMaxAttempts
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Session defaults
	if c.Session.Backend == "" {
		c.Session.Backend = DefaultSessionBackend
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = DefaultSessionTTL
	}

	// Journal defaults
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultBufferSize
	}

	// Slack defaults
	if c.Slack.QueueSize == 0 {
		c.Slack.QueueSize = DefaultSlackQueueSize
	}
	if c.Slack.DedupeWindow == 0 {
		c.Slack.DedupeWindow = DefaultSlackDedupeWindow
	}
	if c.Slack.RatePerMinute == 0 {
		c.Slack.RatePerMinute = DefaultSlackRatePerMinute
	}

	// Server and metrics defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Metrics.RefreshInterval == 0 {
		c.Metrics.RefreshInterval = DefaultRefreshInterval
	}
}
