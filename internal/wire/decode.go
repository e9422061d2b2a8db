package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// frame mirrors the top-level shape of every inbound message.
type frame struct {
	Type           string          `json:"type"`
	MetricType     string          `json:"metric_type"`
	ConversationID string          `json:"conversation_id"`
	EventType      string          `json:"event_type"`
	PatternType    string          `json:"pattern_type"`
	PatternName    string          `json:"pattern_name"`
	Timestamp      string          `json:"timestamp"`
	Data           json.RawMessage `json:"data"`
}

// Decode parses an inbound text frame into an Envelope.
// A parse failure returns a wrapped error; the caller decides whether to
// count it, but it must never close the connection.
func Decode(data []byte, receivedAt time.Time) (Envelope, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Envelope{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return Envelope{}, fmt.Errorf("decode frame: missing type discriminator")
	}

	return Envelope{
		Kind:           KindOf(f.Type),
		Type:           f.Type,
		MetricType:     f.MetricType,
		ConversationID: f.ConversationID,
		EventType:      f.EventType,
		PatternType:    f.PatternType,
		PatternName:    f.PatternName,
		Timestamp:      f.Timestamp,
		Data:           f.Data,
		Raw:            data,
		ReceivedAt:     receivedAt,
	}, nil
}

// Encode marshals an outbound value to a JSON text frame.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}
