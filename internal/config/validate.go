package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *DaemonConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Gateway.URL == "" {
		return errors.New("gateway.url is required")
	}
	if !strings.HasPrefix(c.Gateway.URL, "ws://") && !strings.HasPrefix(c.Gateway.URL, "wss://") {
		return fmt.Errorf("gateway.url must be a ws:// or wss:// endpoint, got %q", c.Gateway.URL)
	}
	if c.Gateway.FrameBuffer < 1 {
		return errors.New("gateway.frame_buffer must be >= 1")
	}

	if c.Auth.StaticToken == "" {
		if c.Auth.APIKey == "" {
			return errors.New("auth.api_key is required unless auth.static_token is set")
		}
		if c.Auth.PlatformURL == "" {
			return errors.New("auth.platform_url is required when auth.api_key is set")
		}
	}

	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Session.Redis.Addr == "" {
			return errors.New("session.redis.addr is required for the redis backend")
		}
	case "postgres":
		if err := c.Database.validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("session.backend must be memory, redis, or postgres, got %q", c.Session.Backend)
	}

	if c.Journal.Enabled {
		if err := c.Database.validate(); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.BufferSize < 1 {
			return errors.New("journal.buffer_size must be >= 1")
		}
	}

	if c.Slack.WebhookURL != "" {
		if c.Slack.QueueSize < 1 {
			return errors.New("slack.queue_size must be >= 1")
		}
		if c.Slack.RatePerMinute < 1 {
			return errors.New("slack.rate_per_minute must be >= 1")
		}
	}

	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}

	return nil
}

func (db *DatabaseConfig) validate() error {
	if db.Host == "" {
		return errors.New("database.host is required")
	}
	if db.Name == "" {
		return errors.New("database.name is required")
	}
	if db.User == "" {
		return errors.New("database.user is required")
	}
	if db.Password == "" {
		return errors.New("database.password is required")
	}
	if db.MaxConns < 1 {
		return errors.New("database.max_conns must be >= 1")
	}
	if db.MinConns < 0 {
		return errors.New("database.min_conns must be >= 0")
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("database.min_conns (%d) cannot exceed max_conns (%d)", db.MinConns, db.MaxConns)
	}
	return nil
}
