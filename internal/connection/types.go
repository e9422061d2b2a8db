package connection

import (
	"errors"
	"time"

	"github.com/voxmetric/pulse/internal/wire"
)

// Errors
var (
	ErrNotConnected       = errors.New("not connected")
	ErrStaleConnection    = errors.New("connection stale (no pong)")
	ErrAlreadyClosed      = errors.New("already closed")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// State is the lifecycle state of the connection manager.
type State int

const (
	// StateIdle means Connect has never been called.
	StateIdle State = iota

	// StateConnecting means a dial is in flight.
	StateConnecting

	// StateOpen means the transport is established.
	StateOpen

	// StateClosed means no transport is up: waiting out a backoff delay,
	// disconnected, budget exhausted, or shut down.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Lifecycle event names. Data frames dispatch under their own type string
// ("metric_update", "conversation_update", ...); frames with an
// unrecognized type dispatch under EventMessage.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventError        = "error"
	EventMessage      = "message"
)

// Event is delivered to registered handlers.
type Event struct {
	Name     string
	Envelope wire.Envelope // zero for lifecycle events
	Err      error         // set for EventError
}

// Handler consumes dispatched events. Handlers run synchronously on the
// dispatching goroutine; a panic in one handler is recovered and logged
// and does not stop the remaining handlers.
type Handler func(Event)

// Subscription identifies one registered handler so it can be removed
// with Off. The zero value is not a valid subscription.
type Subscription struct {
	event string
	id    uint64
}

// Event returns the event name the subscription is registered under.
func (s Subscription) Event() string {
	return s.event
}

// RawFrame wraps raw frame bytes with the receive timestamp.
type RawFrame struct {
	Data       []byte    // Raw frame bytes from the WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ReconnectPolicy bounds automatic reconnection after unplanned closures.
type ReconnectPolicy struct {
	BaseDelay   time.Duration // Wait before the first reconnect attempt
	MaxDelay    time.Duration // Upper bound for the doubling wait
	MaxAttempts int           // Attempts before giving up
}

// DefaultReconnectPolicy returns the standard backoff schedule:
// 1s, 2s, 4s, 8s, 16s, then give up.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 5,
	}
}

// DelayFor returns the wait before reconnect attempt n (1-based).
// The wait doubles per attempt and is capped at MaxDelay.
func (p ReconnectPolicy) DelayFor(attempt int) time.Duration {
	wait := p.BaseDelay
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if wait > p.MaxDelay {
		wait = p.MaxDelay
	}
	return wait
}

// TransportConfig configures a single WebSocket transport.
type TransportConfig struct {
	URL              string        // Full dial URL including the token query parameter
	HandshakeTimeout time.Duration // Dial deadline
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Frame channel buffer size
}

// Config configures the connection manager.
type Config struct {
	// URL is the realtime gateway endpoint (wss://...). The manager appends
	// the fetched token as a query parameter per attempt.
	URL string

	HeartbeatInterval time.Duration // JSON ping cadence; 0 disables the heartbeat
	PongTimeout       time.Duration // Silence tolerated before the transport is torn down; 0 disables
	WriteTimeout      time.Duration // Write deadline for sends
	HandshakeTimeout  time.Duration // Dial deadline per attempt
	TokenTimeout      time.Duration // Bound on the per-attempt token fetch
	FrameBuffer       int           // Transport read buffer and Frames() tap size

	// Topics is the initial subscription set. Nil means wire.DefaultTopics().
	Topics []string

	Reconnect ReconnectPolicy
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		PongTimeout:       90 * time.Second,
		WriteTimeout:      5 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		TokenTimeout:      10 * time.Second,
		FrameBuffer:       256,
		Reconnect:         DefaultReconnectPolicy(),
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	State             State
	Generation        uint64
	ReconnectAttempts int
	Topics            int

	FramesReceived uint64
	FramesByKind   map[string]uint64
	FramesDropped  uint64 // Frames() tap overflow
	DecodeErrors   uint64
	HandlerPanics  uint64
	PingsSent      uint64
	PongsReceived  uint64
	SendsDropped   uint64
	LastPongAt     time.Time
}
