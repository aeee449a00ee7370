// Package notification renders and dispatches templated notifications for
// permission lifecycle changes and security alerts. Delivery is best-effort:
// callers treat a failed send as a logged degradation, never as an error of
// the operation that triggered it.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Template is a reusable notification template with {{placeholder}} fields.
type Template struct {
	ID      string
	Subject string
	Body    string
}

// Built-in templates for the events the core emits.
var builtIn = []Template{
	{
		ID:      "permission-requested",
		Subject: "Access request from {{professional_code}}",
		Body:    "Professional {{professional_code}} requested access to sections {{sections}} for up to {{max_consultations}} consultation(s). Open the app to approve or deny.",
	},
	{
		ID:      "permission-approved",
		Subject: "Access approved",
		Body:    "Your access request for patient {{patient_code}} was approved. The permission expires at {{expires_at}}.",
	},
	{
		ID:      "permission-denied",
		Subject: "Access denied",
		Body:    "Your access request for patient {{patient_code}} was denied.",
	},
	{
		ID:      "sensitive-access",
		Subject: "Sensitive data accessed",
		Body:    "{{actor_code}} performed a {{action}} on sections {{sections}} of your record at {{timestamp}}.",
	},
	{
		ID:      "security-alert",
		Subject: "Security alert ({{severity}})",
		Body:    "{{description}}",
	},
}

// TemplateEngine holds templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	for _, t := range builtIn {
		e.templates[t.ID] = t
	}
	return e
}

// Register adds or replaces a template.
func (e *TemplateEngine) Register(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// Render substitutes {{key}} placeholders in the template with data values.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("unknown template %q", templateID)
	}

	subject, body = t.Subject, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// Sender delivers a rendered message to a recipient.
type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// LogSender writes notifications to the log instead of delivering them.
// Used in development and as the fallback sender.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) Send(_ context.Context, recipient, subject, body string) error {
	s.Logger.Info().
		Str("recipient", recipient).
		Str("subject", subject).
		Str("body", body).
		Msg("notification")
	return nil
}

// Notifier renders templates and dispatches them through a Sender with
// bounded retry.
type Notifier struct {
	engine  *TemplateEngine
	sender  Sender
	logger  zerolog.Logger
	retries int
	backoff time.Duration
}

func NewNotifier(sender Sender, logger zerolog.Logger) *Notifier {
	return &Notifier{
		engine:  NewTemplateEngine(),
		sender:  sender,
		logger:  logger,
		retries: 2,
		backoff: 500 * time.Millisecond,
	}
}

// Notify renders and sends a notification. The returned error is
// informational; callers on the primary path log and continue.
func (n *Notifier) Notify(ctx context.Context, recipient, templateID string, data map[string]string) error {
	subject, body, err := n.engine.Render(templateID, data)
	if err != nil {
		return err
	}

	id := uuid.New()
	var lastErr error
	for attempt := 0; attempt <= n.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(n.backoff * time.Duration(attempt)):
			}
		}
		if lastErr = n.sender.Send(ctx, recipient, subject, body); lastErr == nil {
			return nil
		}
		n.logger.Warn().Err(lastErr).
			Str("notification_id", id.String()).
			Str("template", templateID).
			Int("attempt", attempt+1).
			Msg("notification send failed")
	}
	return fmt.Errorf("send %s after %d attempts: %w", templateID, n.retries+1, lastErr)
}
