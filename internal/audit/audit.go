// Package audit emits security events without ever blocking or
// failing the operation that produced them.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event kinds recorded by the engine.
const (
	KindLoginSuccess    = "LOGIN_SUCCESS"
	KindLoginFailed     = "LOGIN_FAILED"
	KindLogout          = "LOGOUT"
	KindMFAEnabled      = "MFA_ENABLED"
	KindMFADisabled     = "MFA_DISABLED"
	KindMFAVerified     = "MFA_VERIFIED"
	KindMFAFailed       = "MFA_FAILED"
	KindTokenRefreshed  = "TOKEN_REFRESHED"
	KindTokenRevoked    = "TOKEN_REVOKED"
	KindAccountLocked   = "ACCOUNT_LOCKED"
	KindAccountUnlocked = "ACCOUNT_UNLOCKED"
)

// Event is one security-relevant occurrence.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Kind      string            `json:"kind"`
	AccountID string            `json:"account_id,omitempty"`
	Email     string            `json:"email,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Success   bool              `json:"success"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel. Useful for
// tests and for feeding an external pipeline.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
