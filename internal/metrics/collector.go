package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/voxmetric/pulse/internal/bridge"
	"github.com/voxmetric/pulse/internal/connection"
	"github.com/voxmetric/pulse/internal/journal"
)

// DefaultInterval is the refresh cadence used when Start is given a
// non-positive interval.
const DefaultInterval = 5 * time.Second

// Sources supplies the stat snapshots the collector publishes. Nil
// fields are skipped, so a deployment without a journal exports zeros
// for the journal series.
type Sources struct {
	Manager func() connection.ManagerStats
	Bridge  func() bridge.Stats
	Journal func() journal.Stats
}

// Collector mirrors subsystem counters into Prometheus gauges.
type Collector struct {
	logger  *slog.Logger
	sources Sources

	connState         prometheus.Gauge
	reconnectAttempts prometheus.Gauge
	subscribedTopics  prometheus.Gauge
	framesReceived    prometheus.Gauge
	framesByKind      *prometheus.GaugeVec
	framesDropped     prometheus.Gauge
	decodeErrors      prometheus.Gauge
	handlerPanics     prometheus.Gauge
	pingsSent         prometheus.Gauge
	pongsReceived     prometheus.Gauge
	sendsDropped      prometheus.Gauge

	bridgeAttached     prometheus.Gauge
	bridgeErrors       prometheus.Gauge
	notificationsShown prometheus.Gauge

	journalInserts   prometheus.Gauge
	journalConflicts prometheus.Gauge
	journalErrors    prometheus.Gauge
	journalFlushes   prometheus.Gauge
	journalBufferLen prometheus.Gauge
	journalBufferCap prometheus.Gauge

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCollector registers the pulse metrics on the default registry.
func NewCollector(sources Sources, logger *slog.Logger) *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer, sources, logger)
}

// NewCollectorWith registers the pulse metrics with reg.
func NewCollectorWith(reg prometheus.Registerer, sources Sources, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	f := promauto.With(reg)

	return &Collector{
		logger:  logger,
		sources: sources,

		connState: f.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_connection_state",
			Help: "Connection lifecycle state (0=idle 1=connecting 2=open 3=closed)",
		}),
		reconnectAttempts: f.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_reconnect_attempts",
			Help: "Reconnect attempts consumed from the current budget",
		}),
		subscribedTopics: f.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_subscribed_topics",
			Help: "Number of topics in the persisted subscription set",
		}),
		framesReceived: f.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_frames_received",
			Help: "Frames decoded since startup",
		}),
		framesByKind: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pulse_frames_by_kind",
			Help: "Frames decoded since startup, by frame kind",
		}, []string{"kind"}),
		framesDropped: f.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_frames_dropped",
			Help: "Frames dropped from the journal tap on overflow",
		}),
		decodeErrors: f.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_decode_errors",
			Help: "Frames discarded because they could not be decoded",
		}),
		handlerPanics: f.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_handler_panics",
			Help: "Event handler panics recovered during dispatch",
		}),
		pingsSent: f.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_pings_sent",
			Help: "Heartbeat pings sent",
		}),
		pongsReceived: f.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_pongs_received",
			Help: "Heartbeat pongs received",
		}),
		sendsDropped: f.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_sends_dropped",
			Help: "Outbound frames dropped because the connection was not open",
		}),

		bridgeAttached: f.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_bridge_attached",
			Help: "Whether the UI bridge currently holds handler registrations (0 or 1)",
		}),
		bridgeErrors: f.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_bridge_errors",
			Help: "Connection and handler errors observed by the bridge",
		}),
		notificationsShown: f.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_notifications_shown",
			Help: "User-facing notifications produced by the bridge",
		}),

		journalInserts: f.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_journal_inserts",
			Help: "Journal rows inserted",
		}),
		journalConflicts: f.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_journal_conflicts",
			Help: "Journal rows skipped as duplicates",
		}),
		journalErrors: f.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_journal_errors",
			Help: "Journal insert errors",
		}),
		journalFlushes: f.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_journal_flushes",
			Help: "Journal batch flushes",
		}),
		journalBufferLen: f.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_journal_buffer_len",
			Help: "Entries waiting in the journal buffer",
		}),
		journalBufferCap: f.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_journal_buffer_cap",
			Help: "Current journal buffer capacity",
		}),
	}
}

// Refresh publishes one snapshot from every configured source.
func (c *Collector) Refresh() {
	if c.sources.Manager != nil {
		st := c.sources.Manager()
		c.connState.Set(float64(st.State))
		c.reconnectAttempts.Set(float64(st.ReconnectAttempts))
		c.subscribedTopics.Set(float64(st.Topics))
		c.framesReceived.Set(float64(st.FramesReceived))
		for kind, n := range st.FramesByKind {
			c.framesByKind.WithLabelValues(kind).Set(float64(n))
		}
		c.framesDropped.Set(float64(st.FramesDropped))
		c.decodeErrors.Set(float64(st.DecodeErrors))
		c.handlerPanics.Set(float64(st.HandlerPanics))
		c.pingsSent.Set(float64(st.PingsSent))
		c.pongsReceived.Set(float64(st.PongsReceived))
		c.sendsDropped.Set(float64(st.SendsDropped))
	}

	if c.sources.Bridge != nil {
		st := c.sources.Bridge()
		var attached float64
		if st.Attached {
			attached = 1
		}
		c.bridgeAttached.Set(attached)
		c.bridgeErrors.Set(float64(st.ErrorCount))
		c.notificationsShown.Set(float64(st.Notifications))
	}

	if c.sources.Journal != nil {
		st := c.sources.Journal()
		c.journalInserts.Set(float64(st.Writer.Inserts))
		c.journalConflicts.Set(float64(st.Writer.Conflicts))
		c.journalErrors.Set(float64(st.Writer.Errors))
		c.journalFlushes.Set(float64(st.Writer.Flushes))
		c.journalBufferLen.Set(float64(st.Buffer.Len))
		c.journalBufferCap.Set(float64(st.Buffer.Cap))
	}
}

// Start launches the refresh loop. Calling Start on a running collector
// is a no-op. The loop stops when ctx is canceled or Stop is called.
func (c *Collector) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.Refresh()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Refresh()
			}
		}
	}()

	c.logger.Info("metrics collector started", "interval", interval)
}

// Stop halts the refresh loop and publishes a final snapshot.
func (c *Collector) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.Refresh()

	c.logger.Info("metrics collector stopped")
}
