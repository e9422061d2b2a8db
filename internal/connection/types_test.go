package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectPolicy_DelayFor(t *testing.T) {
	p := DefaultReconnectPolicy()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second}, // capped
		{7, 30 * time.Second},
		{0, 1 * time.Second}, // out of range treated as first
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.DelayFor(tt.attempt), "DelayFor(%d)", tt.attempt)
	}
}

func TestReconnectPolicy_DelayForCustomCap(t *testing.T) {
	p := ReconnectPolicy{
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		MaxAttempts: 10,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, 1 * time.Second},
		{3, 2 * time.Second},
		{4, 2 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.DelayFor(tt.attempt), "DelayFor(%d)", tt.attempt)
	}
}

func TestDefaultReconnectPolicy(t *testing.T) {
	p := DefaultReconnectPolicy()

	assert.Equal(t, time.Second, p.BaseDelay)
	assert.Equal(t, 30*time.Second, p.MaxDelay)
	assert.Equal(t, 5, p.MaxAttempts)
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateConnecting, "connecting"},
		{StateOpen, "open"},
		{StateClosed, "closed"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 90*time.Second, cfg.PongTimeout)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 10*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 10*time.Second, cfg.TokenTimeout)
	assert.Equal(t, 256, cfg.FrameBuffer)
	assert.Equal(t, 5, cfg.Reconnect.MaxAttempts)
}
