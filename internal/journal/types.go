package journal

import (
	"time"

	"github.com/google/uuid"

	"github.com/voxmetric/pulse/internal/wire"
)

// Config controls journal batching.
type Config struct {
	// BatchSize is the number of entries accumulated before a flush.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// BufferSize is the initial capacity of the frame buffer.
	BufferSize int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     250,
		FlushInterval: 2 * time.Second,
		BufferSize:    1024,
	}
}

// Entry is one journaled frame, one row in realtime_journal.
type Entry struct {
	ID             string // UUID, assigned locally
	Kind           string
	Type           string
	MetricType     string
	ConversationID string
	EventType      string
	Generation     int64
	ReceivedAt     time.Time
	Payload        []byte // Full frame bytes as received
}

// NewEntry converts a decoded envelope into a journal entry.
func NewEntry(env wire.Envelope) Entry {
	payload := env.Raw
	if len(payload) == 0 {
		payload = env.Data
	}
	return Entry{
		ID:             uuid.New().String(),
		Kind:           string(env.Kind),
		Type:           env.Type,
		MetricType:     env.MetricType,
		ConversationID: env.ConversationID,
		EventType:      env.EventType,
		Generation:     int64(env.Generation),
		ReceivedAt:     env.ReceivedAt,
		Payload:        payload,
	}
}

// Metrics holds writer counters.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}
