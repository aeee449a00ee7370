package notification

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	e := NewTemplateEngine()
	subject, body, err := e.Render("security-alert", map[string]string{
		"severity":    "high",
		"description": "more than 10 accesses within one hour",
	})
	if err != nil {
		t.Fatal(err)
	}
	if subject != "Security alert (high)" {
		t.Errorf("subject: got %q", subject)
	}
	if !strings.Contains(body, "10 accesses") {
		t.Errorf("body: got %q", body)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	e := NewTemplateEngine()
	if _, _, err := e.Render("does-not-exist", nil); err == nil {
		t.Error("expected error for unknown template")
	}
}

type countingSender struct {
	failures int
	calls    int
}

func (s *countingSender) Send(context.Context, string, string, string) error {
	s.calls++
	if s.calls <= s.failures {
		return errors.New("smtp unavailable")
	}
	return nil
}

func TestNotifyRetriesTransientFailure(t *testing.T) {
	sender := &countingSender{failures: 1}
	n := NewNotifier(sender, zerolog.New(os.Stderr))
	n.backoff = 0

	err := n.Notify(context.Background(), "patient@example.com", "permission-denied", map[string]string{
		"patient_code": "A1B2C3D4",
	})
	if err != nil {
		t.Fatalf("expected success after retry: %v", err)
	}
	if sender.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", sender.calls)
	}
}

func TestNotifyGivesUpAfterRetries(t *testing.T) {
	sender := &countingSender{failures: 10}
	n := NewNotifier(sender, zerolog.New(os.Stderr))
	n.backoff = 0

	if err := n.Notify(context.Background(), "x@example.com", "permission-denied", nil); err == nil {
		t.Error("expected error after exhausting retries")
	}
	if sender.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", sender.calls)
	}
}
