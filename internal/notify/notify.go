// Package notify delivers campaign messages to candidates.
package notify

import (
	"context"
	"errors"
)

var (
	// ErrTransportNotConfigured marks sends skipped because credentials are unset.
	ErrTransportNotConfigured = errors.New("transport credentials are not configured")
	// ErrSend marks a failed delivery attempt.
	ErrSend = errors.New("message delivery failed")
)

// Sender delivers one message and reports whether it was accepted.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) bool
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, to, subject, body string) bool

func (f SenderFunc) Send(ctx context.Context, to, subject, body string) bool {
	return f(ctx, to, subject, body)
}
