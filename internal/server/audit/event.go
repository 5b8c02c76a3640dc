// Package audit records security-relevant authentication events and hands
// them to sinks off the request path.
package audit

import (
	"context"
	"time"

	"github.com/dmitrijs2005/sso/internal/logging"
)

// Type names an audit event.
type Type string

const (
	RegisterSuccess       Type = "register_success"
	RegisterFailure       Type = "register_failure"
	LoginSuccess          Type = "login_success"
	LoginFailure          Type = "login_failure"
	TokenCheckFailure     Type = "token_check_failure"
	TokenRefreshed        Type = "token_refreshed"
	RecoveryRequested     Type = "recovery_requested"
	PasswordChanged       Type = "password_changed"
	PasswordChangeFailure Type = "password_change_failure"
)

// Event never carries passwords, hashes or tokens.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      Type      `json:"event_type"`
	UserID    string    `json:"user_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Success   bool      `json:"success"`
	Reason    string    `json:"reason,omitempty"`
}

// Emitter is what the authentication engine depends on.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// Sink receives events from the dispatcher goroutine.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// Flusher is implemented by sinks that buffer; the dispatcher calls Flush
// on Close.
type Flusher interface {
	Flush(ctx context.Context) error
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// LogSink writes each event as one structured log line.
type LogSink struct {
	log logging.Logger
}

func NewLogSink(log logging.Logger) *LogSink {
	return &LogSink{log: log.With("component", "audit")}
}

func (s *LogSink) Emit(ctx context.Context, e Event) {
	ctx = logging.WithRequestID(ctx, e.RequestID)
	s.log.Info(ctx, string(e.Type),
		"user_id", e.UserID,
		"email", e.Email,
		"success", e.Success,
		"reason", e.Reason,
	)
}

// MultiSink fans out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		s.Emit(ctx, e)
	}
}

func (m MultiSink) Flush(ctx context.Context) error {
	var first error
	for _, s := range m {
		if f, ok := s.(Flusher); ok {
			if err := f.Flush(ctx); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
