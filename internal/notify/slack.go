package notify

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SlackConfig configures the webhook sink.
type SlackConfig struct {
	WebhookURL    string
	Channel       string
	QueueSize     int           // Bounded; overflow drops with a counter
	DedupeWindow  time.Duration // Identical notifications inside the window are skipped
	RatePerMinute int
	MaxRetries    int
	Timeout       time.Duration // Per webhook POST
}

// DefaultSlackConfig returns the production defaults.
func DefaultSlackConfig(webhookURL string) SlackConfig {
	return SlackConfig{
		WebhookURL:    webhookURL,
		QueueSize:     256,
		DedupeWindow:  60 * time.Second,
		RatePerMinute: 30,
		MaxRetries:    3,
		Timeout:       10 * time.Second,
	}
}

// SlackStats is a point-in-time snapshot of sink counters.
type SlackStats struct {
	Sent          int64
	Dropped       int64
	Deduped       int64
	WebhookErrors int64
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color,omitempty"`
	Fields []slackField `json:"fields"`
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type queuedNotification struct {
	title    string
	message  string
	severity Severity
}

// SlackNotifier posts notifications to a Slack incoming webhook. Display
// only enqueues; a single worker goroutine owns delivery, retry, and
// rate limiting, so a slow or failing webhook never stalls dispatch.
type SlackNotifier struct {
	cfg        SlackConfig
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter

	queue  chan queuedNotification
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	seen          map[string]time.Time
	sent          int64
	dropped       int64
	deduped       int64
	webhookErrors int64
}

func NewSlackNotifier(cfg SlackConfig, logger *slog.Logger) *SlackNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 30
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &SlackNotifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "slack"),
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), 5),
		queue:      make(chan queuedNotification, cfg.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
		seen:       make(map[string]time.Time),
	}

	s.wg.Add(1)
	go s.worker()

	return s
}

// Display enqueues a notification for delivery. Duplicates inside the
// dedupe window and queue overflow are dropped silently, counted in
// Stats.
func (s *SlackNotifier) Display(title, message string, severity Severity) {
	if s.isDuplicate(title, message, severity) {
		return
	}

	select {
	case s.queue <- queuedNotification{title: title, message: message, severity: severity}:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		s.logger.Warn("notification queue full, dropping", "title", title)
	}
}

// Stats returns a snapshot of the sink counters.
func (s *SlackNotifier) Stats() SlackStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SlackStats{
		Sent:          s.sent,
		Dropped:       s.dropped,
		Deduped:       s.deduped,
		WebhookErrors: s.webhookErrors,
	}
}

// Close stops the worker. Queued notifications that have not been
// posted yet are discarded.
func (s *SlackNotifier) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *SlackNotifier) isDuplicate(title, message string, severity Severity) bool {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", title, message, severity)))
	key := fmt.Sprintf("%x", sum[:8])

	s.mu.Lock()
	defer s.mu.Unlock()

	if window := s.cfg.DedupeWindow; window > 0 {
		if last, ok := s.seen[key]; ok && time.Since(last) < window {
			s.deduped++
			return true
		}
	}
	s.seen[key] = time.Now()
	return false
}

func (s *SlackNotifier) worker() {
	defer s.wg.Done()

	cleanup := time.NewTicker(5 * time.Minute)
	defer cleanup.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-cleanup.C:
			s.pruneSeen()

		case n := <-s.queue:
			if err := s.limiter.Wait(s.ctx); err != nil {
				return
			}
			s.post(n)
		}
	}
}

func (s *SlackNotifier) pruneSeen() {
	window := s.cfg.DedupeWindow
	if window <= 0 {
		window = time.Minute
	}
	cutoff := time.Now().Add(-window)

	s.mu.Lock()
	for key, at := range s.seen {
		if at.Before(cutoff) {
			delete(s.seen, key)
		}
	}
	s.mu.Unlock()
}

func (s *SlackNotifier) post(n queuedNotification) {
	payload, err := json.Marshal(s.format(n))
	if err != nil {
		s.logger.Error("marshaling slack message failed", "error", err)
		return
	}

	backoff := time.Second
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if err := s.send(payload); err != nil {
			s.logger.Warn("slack webhook attempt failed", "attempt", attempt+1, "error", err)
			continue
		}

		s.mu.Lock()
		s.sent++
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.webhookErrors++
	s.mu.Unlock()
	s.logger.Error("notification delivery failed", "title", n.title, "attempts", s.cfg.MaxRetries)
}

func (s *SlackNotifier) send(payload []byte) error {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook status %d", resp.StatusCode)
	}
	return nil
}

func (s *SlackNotifier) format(n queuedNotification) slackMessage {
	color := ""
	switch n.severity {
	case SeveritySuccess:
		color = "good"
	case SeverityWarning:
		color = "warning"
	case SeverityError:
		color = "danger"
	}

	return slackMessage{
		Channel: s.cfg.Channel,
		Text:    n.title,
		Attachments: []slackAttachment{{
			Color: color,
			Fields: []slackField{
				{Title: "Message", Value: n.message, Short: false},
				{Title: "Severity", Value: string(n.severity), Short: true},
			},
		}},
	}
}
