// pulsetap connects to the realtime gateway and streams decoded frames
// to the console.
// Usage: go run ./cmd/pulsetap --url wss://realtime.example.com/ws --token <tok>
//
// The token is passed as-is on every handshake; get a short-lived one
// from the platform token endpoint or use a gateway dev token.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/voxmetric/pulse/internal/auth"
	"github.com/voxmetric/pulse/internal/connection"
	"github.com/voxmetric/pulse/internal/wire"
)

func main() {
	url := flag.String("url", "", "realtime gateway URL (wss://...)")
	token := flag.String("token", "", "static realtime token")
	topicsFlag := flag.String("topics", "", "comma-separated topics (default: the dashboard set)")
	verbose := flag.Bool("verbose", false, "print full frame JSON")
	flag.Parse()

	// Frames go to stdout, logs to stderr, so output can be piped.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if *url == "" || *token == "" {
		logger.Error("both --url and --token are required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	cfg := connection.DefaultConfig()
	cfg.URL = *url
	if *topicsFlag != "" {
		cfg.Topics = strings.Split(*topicsFlag, ",")
	}

	mgr := connection.NewManager(cfg, auth.NewStaticProvider(*token), nil, logger)

	mgr.On(connection.EventConnected, func(connection.Event) {
		logger.Info("connected", "topics", mgr.Topics())
	})
	mgr.On(connection.EventDisconnected, func(connection.Event) {
		logger.Info("disconnected")
	})
	mgr.On(connection.EventError, func(ev connection.Event) {
		logger.Warn("connection error", "error", ev.Err)
	})

	if err := mgr.Connect(ctx); err != nil {
		if errors.Is(err, auth.ErrNotAuthenticated) {
			logger.Error("connect refused", "error", err)
			os.Exit(1)
		}
		// Reconnects are scheduled; keep streaming once one lands.
		logger.Warn("initial connect failed", "error", err)
	}

	go printFrames(ctx, mgr.Frames(), *verbose)

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := mgr.Stats()
				logger.Info("stats",
					"state", st.State.String(),
					"frames", st.FramesReceived,
					"dropped", st.FramesDropped,
					"decode_errors", st.DecodeErrors,
					"pings", st.PingsSent,
					"pongs", st.PongsReceived,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	mgr.Close(shutdownCtx)

	logger.Info("shutdown complete")
}

func printFrames(ctx context.Context, frames <-chan wire.Envelope, verbose bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-frames:
			if !ok {
				return
			}
			printFrame(env, verbose)
		}
	}
}

func printFrame(env wire.Envelope, verbose bool) {
	if verbose {
		var buf bytes.Buffer
		if err := json.Indent(&buf, env.Raw, "", "  "); err != nil {
			fmt.Printf("[%s] %s\n", strings.ToUpper(env.Type), env.Raw)
			return
		}
		fmt.Printf("[%s] %s\n", strings.ToUpper(env.Type), buf.String())
		return
	}

	switch env.Kind {
	case wire.KindMetricUpdate:
		fmt.Printf("[METRIC] type=%s data=%s\n", env.MetricType, compact(env.Data))
	case wire.KindConversationUpdate:
		fmt.Printf("[CONVERSATION] id=%s event=%s data=%s\n",
			env.ConversationID, env.EventType, compact(env.Data))
	case wire.KindLeadQualified:
		fmt.Printf("[LEAD] data=%s\n", compact(env.Data))
	case wire.KindPatternDetected:
		fmt.Printf("[PATTERN] type=%s name=%s\n", env.PatternType, env.PatternName)
	case wire.KindAgentStatus:
		fmt.Printf("[AGENT] data=%s\n", compact(env.Data))
	case wire.KindConnection:
		fmt.Printf("[SESSION] data=%s\n", compact(env.Data))
	default:
		fmt.Printf("[MESSAGE] type=%s data=%s\n", env.Type, compact(env.Data))
	}
}

// compact trims payloads so one frame stays on one console line.
func compact(data json.RawMessage) string {
	const max = 120

	s := string(data)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
