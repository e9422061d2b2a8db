package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/voxmetric/pulse/internal/api"
	"github.com/voxmetric/pulse/internal/auth"
	"github.com/voxmetric/pulse/internal/bridge"
	"github.com/voxmetric/pulse/internal/config"
	"github.com/voxmetric/pulse/internal/connection"
	"github.com/voxmetric/pulse/internal/database"
	"github.com/voxmetric/pulse/internal/journal"
	"github.com/voxmetric/pulse/internal/metrics"
	"github.com/voxmetric/pulse/internal/notify"
	"github.com/voxmetric/pulse/internal/session"
	"github.com/voxmetric/pulse/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/pulse.local.yaml", "path to config file (empty for env-only)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(*logLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("starting pulsed",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"gateway_url", cfg.Gateway.URL,
		"session_backend", cfg.Session.Backend,
		"journal_enabled", cfg.Journal.Enabled,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("pulsed failed", "error", err)
		os.Exit(1)
	}

	logger.Info("pulsed stopped")
}

func loadConfig(path string) (*config.DaemonConfig, error) {
	if path == "" {
		cfg, err := config.FromEnv()
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validate config: %w", err)
		}
		return cfg, nil
	}
	return config.LoadAndValidate(path)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(cfg *config.DaemonConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database pool, only when a component needs it
	var pool *pgxpool.Pool
	if cfg.Journal.Enabled || cfg.Session.Backend == "postgres" {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)

		var err error
		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		logger.Info("database connected")
	}

	store, err := buildSessionStore(ctx, cfg, pool, logger)
	if err != nil {
		return err
	}

	provider := buildProvider(cfg, logger)

	notifier, slack := buildNotifier(cfg, logger)
	if slack != nil {
		defer slack.Close()
	}

	mgr := connection.NewManager(managerConfig(cfg.Gateway), provider, store, logger)

	// The journal always drains the frame tap; without a pool it only
	// buffers and drops, persisting nothing.
	var journalPool *pgxpool.Pool
	if cfg.Journal.Enabled {
		if err := journal.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("journal schema: %w", err)
		}
		journalPool = pool
	}
	jnl := journal.New(journalConfig(cfg.Journal), mgr.Frames(), journalPool, logger)
	if err := jnl.Start(ctx); err != nil {
		return fmt.Errorf("start journal: %w", err)
	}

	br := bridge.New(bridgeConfig(cfg.Bridge), mgr, notifier, logger)

	collector := metrics.NewCollector(metrics.Sources{
		Manager: mgr.Stats,
		Bridge:  br.Stats,
		Journal: jnl.Stats,
	}, logger)
	collector.Start(ctx, cfg.Metrics.RefreshInterval)

	srv := api.NewServer(api.Config{Addr: cfg.Server.Addr}, api.Deps{
		Manager: mgr,
		Bridge:  br,
		Journal: jnl,
	}, logger)

	br.Attach(ctx)
	if !cfg.Bridge.AutoConnect {
		if err := mgr.Connect(ctx); err != nil {
			// Reconnects are already scheduled; a dead gateway at boot
			// is not fatal.
			logger.Warn("initial connect failed", "error", err)
		}
	}

	logger.Info("pulsed running",
		"instance_id", cfg.Instance.ID,
		"status_url", fmt.Sprintf("http://localhost%s/status", cfg.Server.Addr),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	br.Detach()
	if cerr := mgr.Close(shutdownCtx); cerr != nil {
		logger.Warn("manager close", "error", cerr)
	}
	if serr := jnl.Stop(shutdownCtx); serr != nil {
		logger.Warn("journal stop", "error", serr)
	}
	collector.Stop()

	return err
}

// buildSessionStore selects the configured session backend.
func buildSessionStore(ctx context.Context, cfg *config.DaemonConfig, pool *pgxpool.Pool, logger *slog.Logger) (session.Store, error) {
	switch cfg.Session.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Session.Redis.Addr,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		logger.Info("session store ready", "backend", "redis", "addr", cfg.Session.Redis.Addr)
		return session.NewRedisStore(client, cfg.Session.TTL, logger), nil

	case "postgres":
		store := session.NewPostgresStore(pool, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("session schema: %w", err)
		}
		logger.Info("session store ready", "backend", "postgres")
		return store, nil

	default:
		logger.Info("session store ready", "backend", "memory")
		return session.NewMemoryStore(), nil
	}
}

// buildProvider selects the token provider. A static token wins so dev
// setups never need the platform API.
func buildProvider(cfg *config.DaemonConfig, logger *slog.Logger) auth.TokenProvider {
	if cfg.Auth.StaticToken != "" {
		logger.Warn("using static realtime token")
		return auth.NewStaticProvider(cfg.Auth.StaticToken)
	}

	return auth.NewHTTPProvider(cfg.Auth.PlatformURL, cfg.Auth.APIKey,
		auth.WithLogger(logger),
		auth.WithTimeout(cfg.Auth.Timeout),
		auth.WithRetries(cfg.Auth.MaxRetries, time.Second),
	)
}

// buildNotifier assembles the notification sinks. The Slack notifier is
// returned separately so the caller can close its worker.
func buildNotifier(cfg *config.DaemonConfig, logger *slog.Logger) (notify.Notifier, *notify.SlackNotifier) {
	log := notify.NewLogNotifier(logger)
	if cfg.Slack.WebhookURL == "" {
		return log, nil
	}

	slackCfg := notify.DefaultSlackConfig(cfg.Slack.WebhookURL)
	slackCfg.Channel = cfg.Slack.Channel
	if cfg.Slack.QueueSize > 0 {
		slackCfg.QueueSize = cfg.Slack.QueueSize
	}
	if cfg.Slack.DedupeWindow > 0 {
		slackCfg.DedupeWindow = cfg.Slack.DedupeWindow
	}
	if cfg.Slack.RatePerMinute > 0 {
		slackCfg.RatePerMinute = cfg.Slack.RatePerMinute
	}

	slack := notify.NewSlackNotifier(slackCfg, logger)
	logger.Info("slack notifications enabled", "channel", cfg.Slack.Channel)
	return notify.Multi{log, slack}, slack
}

// managerConfig maps gateway config onto the connection manager. In the
// file, negative durations disable a feature; the manager uses zero for
// that.
func managerConfig(g config.GatewayConfig) connection.Config {
	cfg := connection.Config{
		URL:               g.URL,
		HeartbeatInterval: disableNegative(g.HeartbeatInterval),
		PongTimeout:       disableNegative(g.PongTimeout),
		WriteTimeout:      g.WriteTimeout,
		HandshakeTimeout:  g.HandshakeTimeout,
		TokenTimeout:      g.TokenTimeout,
		FrameBuffer:       g.FrameBuffer,
		Topics:            g.Topics,
		Reconnect: connection.ReconnectPolicy{
			BaseDelay:   g.ReconnectBaseDelay,
			MaxDelay:    g.ReconnectMaxDelay,
			MaxAttempts: g.ReconnectMaxAttempts,
		},
	}
	if cfg.Reconnect.MaxAttempts < 0 {
		cfg.Reconnect.MaxAttempts = 0
	}
	return cfg
}

func disableNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

func journalConfig(j config.JournalConfig) journal.Config {
	return journal.Config{
		BatchSize:     j.BatchSize,
		FlushInterval: j.FlushInterval,
		BufferSize:    j.BufferSize,
	}
}

func bridgeConfig(b config.BridgeConfig) bridge.Config {
	cfg := bridge.DefaultConfig()
	cfg.AutoConnect = b.AutoConnect
	if b.CustomerLabel != "" {
		cfg.CustomerLabel = b.CustomerLabel
	}
	return cfg
}
