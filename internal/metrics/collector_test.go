package metrics

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voxmetric/pulse/internal/bridge"
	"github.com/voxmetric/pulse/internal/connection"
	"github.com/voxmetric/pulse/internal/journal"
)

// gaugeValue reads one gauge from the registry, matching labels exactly.
func gaugeValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			got := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			if len(got) != len(labels) {
				continue
			}
			match := true
			for k, v := range labels {
				if got[k] != v {
					match = false
					break
				}
			}
			if match {
				return m.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("metric %s %v not found", name, labels)
	return 0
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestCollector_PublishesManagerStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectorWith(reg, Sources{
		Manager: func() connection.ManagerStats {
			return connection.ManagerStats{
				State:             connection.StateOpen,
				ReconnectAttempts: 2,
				Topics:            3,
				FramesReceived:    10,
				FramesByKind: map[string]uint64{
					"metric_update": 4,
					"pong":          6,
				},
				FramesDropped: 1,
				DecodeErrors:  1,
				HandlerPanics: 1,
				PingsSent:     6,
				PongsReceived: 6,
				SendsDropped:  2,
			}
		},
	}, nil)

	c.Refresh()

	checks := []struct {
		name string
		want float64
	}{
		{"pulse_connection_state", 2},
		{"pulse_reconnect_attempts", 2},
		{"pulse_subscribed_topics", 3},
		{"pulse_frames_received", 10},
		{"pulse_frames_dropped", 1},
		{"pulse_decode_errors", 1},
		{"pulse_handler_panics", 1},
		{"pulse_pings_sent", 6},
		{"pulse_pongs_received", 6},
		{"pulse_sends_dropped", 2},
	}
	for _, tc := range checks {
		if got := gaugeValue(t, reg, tc.name, nil); got != tc.want {
			t.Errorf("%s = %v, want %v", tc.name, got, tc.want)
		}
	}

	if got := gaugeValue(t, reg, "pulse_frames_by_kind", map[string]string{"kind": "metric_update"}); got != 4 {
		t.Errorf("frames_by_kind{metric_update} = %v, want 4", got)
	}
	if got := gaugeValue(t, reg, "pulse_frames_by_kind", map[string]string{"kind": "pong"}); got != 6 {
		t.Errorf("frames_by_kind{pong} = %v, want 6", got)
	}
}

func TestCollector_PublishesBridgeAndJournalStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectorWith(reg, Sources{
		Bridge: func() bridge.Stats {
			return bridge.Stats{
				Status:        bridge.StatusConnected,
				Attached:      true,
				ErrorCount:    3,
				Notifications: 5,
			}
		},
		Journal: func() journal.Stats {
			return journal.Stats{
				Buffer: journal.BufferStats{Len: 7, Cap: 64},
				Writer: journal.Metrics{Inserts: 100, Conflicts: 2, Errors: 1, Flushes: 9},
			}
		},
	}, nil)

	c.Refresh()

	checks := []struct {
		name string
		want float64
	}{
		{"pulse_bridge_attached", 1},
		{"pulse_bridge_errors", 3},
		{"pulse_notifications_shown", 5},
		{"pulse_journal_inserts", 100},
		{"pulse_journal_conflicts", 2},
		{"pulse_journal_errors", 1},
		{"pulse_journal_flushes", 9},
		{"pulse_journal_buffer_len", 7},
		{"pulse_journal_buffer_cap", 64},
	}
	for _, tc := range checks {
		if got := gaugeValue(t, reg, tc.name, nil); got != tc.want {
			t.Errorf("%s = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCollector_NilSourcesSafe(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectorWith(reg, Sources{}, nil)

	c.Refresh()

	if got := gaugeValue(t, reg, "pulse_frames_received", nil); got != 0 {
		t.Errorf("frames_received = %v, want 0", got)
	}
	if got := gaugeValue(t, reg, "pulse_bridge_attached", nil); got != 0 {
		t.Errorf("bridge_attached = %v, want 0", got)
	}
}

func TestCollector_StartRefreshesPeriodically(t *testing.T) {
	var calls int32
	reg := prometheus.NewRegistry()
	c := NewCollectorWith(reg, Sources{
		Manager: func() connection.ManagerStats {
			n := atomic.AddInt32(&calls, 1)
			return connection.ManagerStats{FramesReceived: uint64(n)}
		},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Start(ctx, 5*time.Millisecond)

	if !waitFor(2*time.Second, func() bool { return atomic.LoadInt32(&calls) >= 3 }) {
		t.Fatalf("refresh loop ran %d times, want at least 3", atomic.LoadInt32(&calls))
	}

	c.Stop()

	// Stop publishes a final snapshot, then the loop must be quiet.
	after := atomic.LoadInt32(&calls)
	time.Sleep(30 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != after {
		t.Errorf("refresh loop still running after Stop: %d -> %d", after, got)
	}

	if got := gaugeValue(t, reg, "pulse_frames_received", nil); got != float64(after) {
		t.Errorf("frames_received = %v, want %v", got, after)
	}
}

func TestCollector_StartTwiceIsNoop(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectorWith(reg, Sources{}, nil)

	ctx := context.Background()
	c.Start(ctx, time.Hour)
	c.Start(ctx, time.Hour)
	c.Stop()
	c.Stop()
}
