package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voxmetric/pulse/internal/auth"
	"github.com/voxmetric/pulse/internal/bridge"
	"github.com/voxmetric/pulse/internal/connection"
	"github.com/voxmetric/pulse/internal/wire"
)

func testServer(t *testing.T) (*Server, connection.Manager, *bridge.Bridge) {
	t.Helper()

	cfg := connection.DefaultConfig()
	cfg.URL = "ws://localhost:0"
	mgr := connection.NewManager(cfg, auth.NewStaticProvider("tok"), nil, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		mgr.Close(ctx)
	})

	br := bridge.New(bridge.DefaultConfig(), mgr, nil, nil)

	reg := prometheus.NewRegistry()
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "pulse_test_gauge", Help: "fixture"})
	reg.MustRegister(g)
	g.Set(42)

	srv := NewServer(Config{Addr: "127.0.0.1:0"}, Deps{Manager: mgr, Bridge: br, Gatherer: reg}, nil)
	return srv, mgr, br
}

func doGet(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_Healthz(t *testing.T) {
	srv, _, _ := testServer(t)

	w := doGet(t, srv, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", w.Code)
	}

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if body.Checks["connection"] != "idle" {
		t.Errorf("connection check = %q, want idle", body.Checks["connection"])
	}
	if body.Checks["bridge"] != "disconnected" {
		t.Errorf("bridge check = %q, want disconnected", body.Checks["bridge"])
	}
	if body.Checks["journal"] != "disabled" {
		t.Errorf("journal check = %q, want disabled", body.Checks["journal"])
	}
}

func TestServer_StatusReportsCaches(t *testing.T) {
	srv, mgr, br := testServer(t)

	br.Attach(context.Background())
	defer br.Detach()

	mgr.Emit(string(wire.KindMetricUpdate), connection.Event{
		Name: string(wire.KindMetricUpdate),
		Envelope: wire.Envelope{
			Kind:       wire.KindMetricUpdate,
			Type:       "metric_update",
			MetricType: wire.MetricConversion,
			Data:       json.RawMessage(`{"rate":0.42}`),
			ReceivedAt: time.Now(),
		},
	})
	mgr.Emit(string(wire.KindConversationUpdate), connection.Event{
		Name: string(wire.KindConversationUpdate),
		Envelope: wire.Envelope{
			Kind:           wire.KindConversationUpdate,
			Type:           "conversation_update",
			ConversationID: "conv-9",
			EventType:      wire.ConversationStarted,
			Data:           json.RawMessage(`{"customer":{"name":"Ana"}}`),
			ReceivedAt:     time.Now(),
		},
	})

	w := doGet(t, srv, "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", w.Code)
	}

	var body struct {
		Status     string `json:"status"`
		Connection struct {
			State  string   `json:"state"`
			Topics []string `json:"topics"`
		} `json:"connection"`
		Metrics map[string]struct {
			MetricType string          `json:"metric_type"`
			Data       json.RawMessage `json:"data"`
		} `json:"metrics"`
		Conversation *struct {
			EventType string `json:"event_type"`
		} `json:"conversation"`
		Journal *json.RawMessage `json:"journal"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode status: %v", err)
	}

	if body.Status != "disconnected" {
		t.Errorf("bridge status = %q, want disconnected", body.Status)
	}
	if body.Connection.State != "idle" {
		t.Errorf("connection state = %q, want idle", body.Connection.State)
	}
	if len(body.Connection.Topics) != 3 {
		t.Errorf("topics = %v, want the 3 defaults", body.Connection.Topics)
	}

	m, ok := body.Metrics[wire.MetricConversion]
	if !ok {
		t.Fatalf("metrics missing %q: %v", wire.MetricConversion, body.Metrics)
	}
	if m.MetricType != wire.MetricConversion {
		t.Errorf("metric_type = %q, want %q", m.MetricType, wire.MetricConversion)
	}
	if !strings.Contains(string(m.Data), "0.42") {
		t.Errorf("metric data = %s, want the cached payload", m.Data)
	}

	if body.Conversation == nil {
		t.Fatal("conversation cache missing from status")
	}
	if body.Conversation.EventType != wire.ConversationStarted {
		t.Errorf("conversation event_type = %q, want started", body.Conversation.EventType)
	}

	if body.Journal != nil {
		t.Errorf("journal section present without a journal: %s", *body.Journal)
	}
}

func TestServer_MetricsExposition(t *testing.T) {
	srv, _, _ := testServer(t)

	w := doGet(t, srv, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "pulse_test_gauge 42") {
		t.Errorf("exposition missing registered gauge:\n%s", w.Body.String())
	}
}

func TestServer_StartShutdown(t *testing.T) {
	srv, _, _ := testServer(t)

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	// Give the listener a moment to bind before shutting down.
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("start did not return after shutdown")
	}
}
