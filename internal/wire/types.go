package wire

import (
	"encoding/json"
	"time"
)

// Kind identifies a decoded frame variant.
type Kind string

const (
	KindPong               Kind = "pong"
	KindConnection         Kind = "connection"
	KindMetricUpdate       Kind = "metric_update"
	KindConversationUpdate Kind = "conversation_update"
	KindAgentStatus        Kind = "agent_status"
	KindLeadQualified      Kind = "lead_qualified"
	KindPatternDetected    Kind = "pattern_detected"

	// KindUnknown covers forward-compatible types we do not recognize.
	// The original type string is preserved on the envelope.
	KindUnknown Kind = "unknown"
)

// KindOf maps a wire type discriminator to its Kind.
func KindOf(t string) Kind {
	switch Kind(t) {
	case KindPong, KindConnection, KindMetricUpdate, KindConversationUpdate,
		KindAgentStatus, KindLeadQualified, KindPatternDetected:
		return Kind(t)
	}
	return KindUnknown
}

// Envelope is a decoded inbound frame.
type Envelope struct {
	Kind Kind   // Closed set; KindUnknown preserves unrecognized types
	Type string // Raw wire discriminator, kept even when unknown

	// Typed top-level fields (zero unless the frame carries them)
	MetricType     string // metric_update: "conversion", "performance", "activity"
	ConversationID string // conversation_update
	EventType      string // conversation_update: "started", "message", "ended", "transferred"
	PatternType    string // pattern_detected
	PatternName    string // pattern_detected
	Timestamp      string // Server timestamp as sent

	Data json.RawMessage // Frame payload, byte-for-byte as received
	Raw  []byte          // Full frame bytes

	ReceivedAt time.Time // Local timestamp when the frame was read
	Generation uint64    // Transport generation that delivered it
}

// Control is an outbound control frame.
type Control struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
}

// Ping is the application-level heartbeat frame.
func Ping() Control {
	return Control{Type: "ping"}
}

// Subscribe asks the gateway to start delivering a topic.
func Subscribe(topic string) Control {
	return Control{Type: "subscribe", Topic: topic}
}

// Unsubscribe asks the gateway to stop delivering a topic.
func Unsubscribe(topic string) Control {
	return Control{Type: "unsubscribe", Topic: topic}
}

// Default topics the dashboard watches.
const (
	TopicDashboardMetrics    = "dashboard_metrics"
	TopicConversationUpdates = "conversation_updates"
	TopicAgentStatus         = "agent_status"
)

// DefaultTopics returns the default post-connect subscription set.
func DefaultTopics() []string {
	return []string{TopicDashboardMetrics, TopicConversationUpdates, TopicAgentStatus}
}

// Metric type discriminators on metric_update frames.
const (
	MetricConversion  = "conversion"
	MetricPerformance = "performance"
	MetricActivity    = "activity"
)

// Conversation event types.
const (
	ConversationStarted     = "started"
	ConversationMessage     = "message"
	ConversationEnded       = "ended"
	ConversationTransferred = "transferred"
)

// OutcomeConverted marks a conversation that ended in a sale.
const OutcomeConverted = "converted"

// PatternObjection is the pattern_type for detected customer objections.
const PatternObjection = "objection"

// -----------------------------------------------------------------------------
// Payload Types
// -----------------------------------------------------------------------------

// Customer identifies the human on the call.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// ConversationData is the payload of a conversation_update frame.
type ConversationData struct {
	Customer Customer `json:"customer"`
	AgentID  string   `json:"agent_id"`
	Outcome  string   `json:"outcome"`          // Set on "ended": "converted", "no_sale", ...
	Duration int64    `json:"duration_seconds"` // Set on "ended"
}

// LeadData is the payload of a lead_qualified frame.
type LeadData struct {
	Customer Customer `json:"customer"`
	Score    float64  `json:"score"`
	Source   string   `json:"source"`
}

// ConnectionData is the payload of the gateway's connection ack frame.
type ConnectionData struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}
