package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voxmetric/pulse/internal/connection"
	"github.com/voxmetric/pulse/internal/notify"
	"github.com/voxmetric/pulse/internal/wire"
)

// Status is the connection indicator shown to the user.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusConnecting   Status = "connecting"
	StatusDisconnected Status = "disconnected"

	// StatusFailed latches once the reconnect budget is exhausted and
	// clears on the next successful open.
	StatusFailed Status = "failed"
)

// Config controls bridge behavior.
type Config struct {
	// AutoConnect makes Attach invoke Connect and Detach invoke
	// Disconnect, tying the connection lifecycle to UI activation.
	AutoConnect bool

	// CustomerLabel substitutes for an absent customer name in
	// notifications.
	CustomerLabel string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{CustomerLabel: "A customer"}
}

// Stats is a point-in-time snapshot of bridge state.
type Stats struct {
	Status        Status
	Attached      bool
	ErrorCount    int64
	Notifications int64
}

// Bridge wires connection events to UI-facing state and notifications.
type Bridge struct {
	cfg      Config
	mgr      connection.Manager
	notifier notify.Notifier
	logger   *slog.Logger

	mu            sync.Mutex
	attached      bool
	subs          []connection.Subscription
	metrics       map[string]wire.Envelope
	conversation  *wire.Envelope
	failed        bool
	errorCount    int64
	notifications int64
}

// New builds a Bridge over the given manager. A nil notifier falls back
// to the structured-log sink.
func New(cfg Config, mgr connection.Manager, notifier notify.Notifier, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	if cfg.CustomerLabel == "" {
		cfg.CustomerLabel = "A customer"
	}

	return &Bridge{
		cfg:      cfg,
		mgr:      mgr,
		notifier: notifier,
		logger:   logger.With("component", "bridge"),
		metrics:  make(map[string]wire.Envelope),
	}
}

// Attach registers the bridge's handlers on the manager and, when
// AutoConnect is set, starts the connection. Connect failures are not
// returned: they surface through the error counter and the status
// indicator, the same way every later connection error does. Attaching
// twice is a no-op.
func (b *Bridge) Attach(ctx context.Context) {
	b.mu.Lock()
	if b.attached {
		b.mu.Unlock()
		return
	}
	b.attached = true
	b.mu.Unlock()

	subs := []connection.Subscription{
		b.mgr.On(connection.EventConnected, b.guard(connection.EventConnected, b.onConnected)),
		b.mgr.On(connection.EventDisconnected, b.guard(connection.EventDisconnected, b.onDisconnected)),
		b.mgr.On(connection.EventError, b.guard(connection.EventError, b.onError)),
		b.mgr.On(string(wire.KindMetricUpdate), b.guard(string(wire.KindMetricUpdate), b.onMetricUpdate)),
		b.mgr.On(string(wire.KindConversationUpdate), b.guard(string(wire.KindConversationUpdate), b.onConversationUpdate)),
		b.mgr.On(string(wire.KindLeadQualified), b.guard(string(wire.KindLeadQualified), b.onLeadQualified)),
		b.mgr.On(string(wire.KindPatternDetected), b.guard(string(wire.KindPatternDetected), b.onPatternDetected)),
	}

	b.mu.Lock()
	b.subs = subs
	b.mu.Unlock()

	b.logger.Info("bridge attached", "auto_connect", b.cfg.AutoConnect)

	if b.cfg.AutoConnect {
		if err := b.mgr.Connect(ctx); err != nil {
			b.logger.Warn("auto connect failed", "error", err)
		}
	}
}

// Detach removes exactly the registrations Attach made. Handlers
// registered by anyone else stay untouched. With AutoConnect set it
// also disconnects. Detaching twice is a no-op.
func (b *Bridge) Detach() {
	b.mu.Lock()
	if !b.attached {
		b.mu.Unlock()
		return
	}
	b.attached = false
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		if !b.mgr.Off(sub) {
			b.logger.Warn("stale subscription on detach", "event", sub.Event())
		}
	}

	b.logger.Info("bridge detached")

	if b.cfg.AutoConnect {
		if err := b.mgr.Disconnect(); err != nil && !errors.Is(err, connection.ErrAlreadyClosed) {
			b.logger.Debug("auto disconnect", "error", err)
		}
	}
}

// Attached reports whether the bridge currently holds registrations.
func (b *Bridge) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attached
}

// Status derives the indicator from the live manager state, with the
// failed latch taking over only when nothing is in flight.
func (b *Bridge) Status() Status {
	switch b.mgr.State() {
	case connection.StateOpen:
		return StatusConnected
	case connection.StateConnecting:
		return StatusConnecting
	}

	b.mu.Lock()
	failed := b.failed
	b.mu.Unlock()

	if failed {
		return StatusFailed
	}
	return StatusDisconnected
}

// ErrorCount returns the number of connection and handler errors seen
// since construction.
func (b *Bridge) ErrorCount() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errorCount
}

// Stats returns a snapshot of bridge state.
func (b *Bridge) Stats() Stats {
	status := b.Status()

	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Status:        status,
		Attached:      b.attached,
		ErrorCount:    b.errorCount,
		Notifications: b.notifications,
	}
}

// Metric returns the last metric_update envelope seen for a metric
// type.
func (b *Bridge) Metric(metricType string) (wire.Envelope, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	env, ok := b.metrics[metricType]
	return env, ok
}

// Metrics returns a copy of the last-seen metric envelopes keyed by
// metric type.
func (b *Bridge) Metrics() map[string]wire.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]wire.Envelope, len(b.metrics))
	for k, v := range b.metrics {
		out[k] = v
	}
	return out
}

// Conversation returns the latest conversation_update envelope.
func (b *Bridge) Conversation() (wire.Envelope, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conversation == nil {
		return wire.Envelope{}, false
	}
	return *b.conversation, true
}

// guard keeps handler failures inside the bridge. A panic counts as an
// error and is logged, never re-raised into dispatch.
func (b *Bridge) guard(name string, fn func(connection.Event)) connection.Handler {
	return func(ev connection.Event) {
		defer func() {
			if r := recover(); r != nil {
				b.mu.Lock()
				b.errorCount++
				b.mu.Unlock()
				b.logger.Error("bridge handler failed", "event", name, "panic", r)
			}
		}()
		fn(ev)
	}
}

func (b *Bridge) onConnected(connection.Event) {
	b.mu.Lock()
	b.failed = false
	b.mu.Unlock()
	b.logger.Info("realtime channel up")
}

func (b *Bridge) onDisconnected(connection.Event) {
	b.logger.Info("realtime channel down")
}

// onError counts the error and latches the failed status once the
// reconnect budget is spent. Transport noise never becomes a
// notification.
func (b *Bridge) onError(ev connection.Event) {
	b.mu.Lock()
	b.errorCount++
	exhausted := errors.Is(ev.Err, connection.ErrReconnectExhausted)
	if exhausted {
		b.failed = true
	}
	b.mu.Unlock()

	if exhausted {
		b.logger.Warn("realtime connection failed", "error", ev.Err)
		return
	}
	b.logger.Debug("connection error", "error", ev.Err)
}

func (b *Bridge) onMetricUpdate(ev connection.Event) {
	if ev.Envelope.MetricType == "" {
		b.mu.Lock()
		b.errorCount++
		b.mu.Unlock()
		b.logger.Warn("metric_update without metric_type, ignoring")
		return
	}

	b.mu.Lock()
	b.metrics[ev.Envelope.MetricType] = ev.Envelope
	b.mu.Unlock()
}

func (b *Bridge) onConversationUpdate(ev connection.Event) {
	env := ev.Envelope
	b.mu.Lock()
	b.conversation = &env
	b.mu.Unlock()

	switch env.EventType {
	case wire.ConversationStarted:
		b.notify("Conversation started",
			fmt.Sprintf("%s is talking with an agent", b.customerName(env.Data)),
			notify.SeverityInfo)

	case wire.ConversationEnded:
		var payload wire.ConversationData
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			b.logger.Debug("conversation_update payload unreadable", "error", err)
		}
		name := b.customerName(env.Data)
		if payload.Outcome == wire.OutcomeConverted {
			b.notify("Conversation ended", fmt.Sprintf("%s converted", name), notify.SeveritySuccess)
		} else {
			b.notify("Conversation ended", fmt.Sprintf("Conversation with %s ended", name), notify.SeverityInfo)
		}
	}
	// "message" and "transferred" refresh the cache without notifying
}

func (b *Bridge) onLeadQualified(ev connection.Event) {
	b.notify("Lead qualified",
		fmt.Sprintf("%s is ready for follow-up", b.customerName(ev.Envelope.Data)),
		notify.SeverityInfo)
}

func (b *Bridge) onPatternDetected(ev connection.Event) {
	if ev.Envelope.PatternType != wire.PatternObjection {
		return
	}

	message := "Customer raised an objection"
	if ev.Envelope.PatternName != "" {
		message = fmt.Sprintf("Customer objection: %s", ev.Envelope.PatternName)
	}
	b.notify("Pattern detected", message, notify.SeverityInfo)
}

func (b *Bridge) notify(title, message string, severity notify.Severity) {
	b.mu.Lock()
	b.notifications++
	b.mu.Unlock()
	b.notifier.Display(title, message, severity)
}

// customerName digs data.customer.name out of a payload, falling back
// to the configured generic label.
func (b *Bridge) customerName(data json.RawMessage) string {
	var payload struct {
		Customer wire.Customer `json:"customer"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Customer.Name != "" {
		return payload.Customer.Name
	}
	return b.cfg.CustomerLabel
}
