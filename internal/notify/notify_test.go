package notify

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

type recorded struct {
	title    string
	message  string
	severity Severity
}

// recorder is an in-memory Notifier for assertions.
type recorder struct {
	mu    sync.Mutex
	calls []recorded
}

func (r *recorder) Display(title, message string, severity Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recorded{title: title, message: message, severity: severity})
}

func (r *recorder) snapshot() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.calls...)
}

func TestLogNotifier_Display(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	n := NewLogNotifier(logger)
	n.Display("Lead qualified", "Ana is ready for follow-up", SeverityInfo)

	out := buf.String()
	if !strings.Contains(out, "Lead qualified") {
		t.Errorf("log output missing title: %q", out)
	}
	if !strings.Contains(out, "severity=info") {
		t.Errorf("log output missing severity: %q", out)
	}
}

func TestLogNotifier_SeverityLevels(t *testing.T) {
	tests := []struct {
		severity Severity
		level    string
	}{
		{SeverityInfo, "level=INFO"},
		{SeveritySuccess, "level=INFO"},
		{SeverityWarning, "level=WARN"},
		{SeverityError, "level=ERROR"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		NewLogNotifier(logger).Display("t", "m", tt.severity)

		if !strings.Contains(buf.String(), tt.level) {
			t.Errorf("severity %s logged as %q, want %s", tt.severity, buf.String(), tt.level)
		}
	}
}

func TestMulti_FansOut(t *testing.T) {
	first := &recorder{}
	second := &recorder{}

	m := Multi{first, second}
	m.Display("Conversation started", "Ana is talking with an agent", SeverityInfo)

	for i, r := range []*recorder{first, second} {
		calls := r.snapshot()
		if len(calls) != 1 {
			t.Fatalf("sink %d got %d calls, want 1", i, len(calls))
		}
		if calls[0].title != "Conversation started" {
			t.Errorf("sink %d title = %q", i, calls[0].title)
		}
	}
}
