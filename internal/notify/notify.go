package notify

import (
	"context"
	"log/slog"
)

// Severity grades a notification for display.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notifier displays a notification to the user. Implementations must be
// safe for concurrent use and must never block the caller for long;
// slow delivery belongs behind a queue.
type Notifier interface {
	Display(title, message string, severity Severity)
}

// LogNotifier writes notifications to the structured log. It is the
// default sink and the one tests usually swap in.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Display(title, message string, severity Severity) {
	level := slog.LevelInfo
	switch severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityError:
		level = slog.LevelError
	}
	n.logger.Log(context.Background(), level, "notification",
		"title", title,
		"message", message,
		"severity", severity,
	)
}

// Multi fans a notification out to every sink in order.
type Multi []Notifier

func (m Multi) Display(title, message string, severity Severity) {
	for _, n := range m {
		n.Display(title, message, severity)
	}
}
