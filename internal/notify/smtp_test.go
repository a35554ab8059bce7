package notify

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestComposeHeaders(t *testing.T) {
	date := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	msg, err := Compose("hr@example.com", "candidate@example.com", "Follow-up #1", "Thanks for applying.\nWe will be in touch.", date)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// header keys are compared case-insensitively
	text := strings.ToLower(string(msg))
	for _, want := range []string{
		"from: <hr@example.com>",
		"to: <candidate@example.com>",
		"subject: follow-up #1",
		"message-id: <",
		"thanks for applying.\r\nwe will be in touch.",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected message to contain %q, got:\n%s", want, text)
		}
	}
}

func TestSendWithoutCredentialsIsSkipped(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	s := NewSMTP(SMTPConfig{User: "hr@example.com"}, zap.New(core))

	if s.Configured() {
		t.Fatalf("expected sender without password to be unconfigured")
	}
	if s.Send(context.Background(), "candidate@example.com", "subject", "body") {
		t.Fatalf("expected skipped send to report failure")
	}
	if observed.FilterMessage("smtp credentials not set; skipping send").Len() != 1 {
		t.Fatalf("expected skip warning, got %v", observed.All())
	}
}

func TestReportSendError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		level zapcore.Level
		msg   string
	}{
		{"unconfigured", ErrTransportNotConfigured, zapcore.WarnLevel, "smtp credentials not set; skipping send"},
		{"wrapped unconfigured", fmt.Errorf("relay: %w", ErrTransportNotConfigured), zapcore.WarnLevel, "smtp credentials not set; skipping send"},
		{"delivery", fmt.Errorf("%w: dial: refused", ErrSend), zapcore.ErrorLevel, "sending email failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			core, observed := observer.New(zapcore.DebugLevel)
			reportSendError(zap.New(core), tt.err)

			entries := observed.All()
			if len(entries) != 1 || entries[0].Level != tt.level || entries[0].Message != tt.msg {
				t.Fatalf("unexpected log entries: %v", entries)
			}
		})
	}
}

func TestNewSMTPDefaults(t *testing.T) {
	s := NewSMTP(SMTPConfig{User: "bot@example.com", Password: "x"}, nil)
	if s.cfg.Host != DefaultSMTPHost || s.cfg.Port != DefaultSMTPPort {
		t.Fatalf("unexpected defaults: %+v", s.cfg)
	}
	if s.cfg.From != "bot@example.com" {
		t.Fatalf("expected from to default to user, got %q", s.cfg.From)
	}
}

func TestSendFailsOnUnreachableRelay(t *testing.T) {
	s := NewSMTP(SMTPConfig{Host: "127.0.0.1", Port: 1, User: "u", Password: "p"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if s.Send(ctx, "candidate@example.com", "subject", "body") {
		t.Fatalf("expected send to fail")
	}
}
