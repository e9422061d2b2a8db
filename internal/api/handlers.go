package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voxmetric/pulse/internal/bridge"
	"github.com/voxmetric/pulse/internal/wire"
)

// frameView is the JSON projection of a cached envelope.
type frameView struct {
	Type       string          `json:"type"`
	MetricType string          `json:"metric_type,omitempty"`
	EventType  string          `json:"event_type,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
	Data       json.RawMessage `json:"data,omitempty"`
}

func viewOf(env wire.Envelope) frameView {
	return frameView{
		Type:       env.Type,
		MetricType: env.MetricType,
		EventType:  env.EventType,
		ReceivedAt: env.ReceivedAt,
		Data:       env.Data,
	}
}

type connectionView struct {
	State             string            `json:"state"`
	Generation        uint64            `json:"generation"`
	ReconnectAttempts int               `json:"reconnect_attempts"`
	Topics            []string          `json:"topics"`
	FramesReceived    uint64            `json:"frames_received"`
	FramesByKind      map[string]uint64 `json:"frames_by_kind,omitempty"`
	FramesDropped     uint64            `json:"frames_dropped,omitempty"`
	DecodeErrors      uint64            `json:"decode_errors"`
	PingsSent         uint64            `json:"pings_sent"`
	PongsReceived     uint64            `json:"pongs_received"`
	SendsDropped      uint64            `json:"sends_dropped"`
	LastPongAt        *time.Time        `json:"last_pong_at,omitempty"`
}

type journalView struct {
	BufferLen int   `json:"buffer_len"`
	Inserts   int64 `json:"inserts"`
	Conflicts int64 `json:"conflicts"`
	Errors    int64 `json:"errors"`
	Flushes   int64 `json:"flushes"`
}

type statusResponse struct {
	Status        bridge.Status        `json:"status"`
	Errors        int64                `json:"errors"`
	Notifications int64                `json:"notifications"`
	Connection    connectionView       `json:"connection"`
	Metrics       map[string]frameView `json:"metrics"`
	Conversation  *frameView           `json:"conversation,omitempty"`
	Journal       *journalView         `json:"journal,omitempty"`
}

func (s *Server) handleHealthz(c *gin.Context) {
	checks := gin.H{
		"connection": s.deps.Manager.State().String(),
		"bridge":     string(s.deps.Bridge.Status()),
	}
	if s.deps.Journal != nil {
		checks["journal"] = "ok"
	} else {
		checks["journal"] = "disabled"
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"checks": checks,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	mst := s.deps.Manager.Stats()
	bst := s.deps.Bridge.Stats()

	conn := connectionView{
		State:             mst.State.String(),
		Generation:        mst.Generation,
		ReconnectAttempts: mst.ReconnectAttempts,
		Topics:            s.deps.Manager.Topics(),
		FramesReceived:    mst.FramesReceived,
		FramesByKind:      mst.FramesByKind,
		FramesDropped:     mst.FramesDropped,
		DecodeErrors:      mst.DecodeErrors,
		PingsSent:         mst.PingsSent,
		PongsReceived:     mst.PongsReceived,
		SendsDropped:      mst.SendsDropped,
	}
	if !mst.LastPongAt.IsZero() {
		t := mst.LastPongAt
		conn.LastPongAt = &t
	}

	resp := statusResponse{
		Status:        bst.Status,
		Errors:        bst.ErrorCount,
		Notifications: bst.Notifications,
		Connection:    conn,
		Metrics:       make(map[string]frameView),
	}

	for metricType, env := range s.deps.Bridge.Metrics() {
		resp.Metrics[metricType] = viewOf(env)
	}
	if env, ok := s.deps.Bridge.Conversation(); ok {
		v := viewOf(env)
		resp.Conversation = &v
	}

	if s.deps.Journal != nil {
		jst := s.deps.Journal.Stats()
		resp.Journal = &journalView{
			BufferLen: jst.Buffer.Len,
			Inserts:   jst.Writer.Inserts,
			Conflicts: jst.Writer.Conflicts,
			Errors:    jst.Writer.Errors,
			Flushes:   jst.Writer.Flushes,
		}
	}

	c.JSON(http.StatusOK, resp)
}
