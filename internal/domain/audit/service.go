package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/caregate/caregate/internal/platform/apperr"
	"github.com/caregate/caregate/internal/platform/events"
	"github.com/caregate/caregate/pkg/pagination"
)

// EventPublisher emits security events. Implemented by events.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, subjectCode string, entityID uuid.UUID, payload events.Payload)
}

// Notifier dispatches a templated notification. Implemented by
// notification.Notifier.
type Notifier interface {
	Notify(ctx context.Context, recipient, templateID string, data map[string]string) error
}

// Service is the audit and anomaly engine. It observes the other
// components without sitting on their critical path: Record never returns
// an error, and every internal failure degrades to a log line.
type Service struct {
	entries  EntryRepository
	alerts   AlertRepository
	events   EventPublisher
	notifier Notifier
	h        Heuristics
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(entries EntryRepository, alerts AlertRepository, publisher EventPublisher, notifier Notifier, h Heuristics, logger zerolog.Logger) *Service {
	return &Service{
		entries:  entries,
		alerts:   alerts,
		events:   publisher,
		notifier: notifier,
		h:        h,
		logger:   logger,
		now:      time.Now,
	}
}

// Record writes one immutable audit entry, stamping id, timestamp and the
// suspicion score. Sensitive access additionally raises an alert and an
// immediate notification to the subject. Failures never reach the caller.
func (s *Service) Record(ctx context.Context, e Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}
	if !validActions[e.Action] {
		s.logger.Error().Str("action", string(e.Action)).Msg("dropping audit entry with unknown action")
		return
	}
	e.Suspicious = s.h.Suspicious(&e)

	if err := s.entries.Append(ctx, &e); err != nil {
		s.logger.Error().Err(err).
			Str("actor", e.ActorCode).
			Str("subject", e.SubjectCode).
			Str("action", string(e.Action)).
			Msg("append audit entry")
		return
	}

	if s.h.Sensitive(&e) {
		s.onSensitiveAccess(ctx, &e)
	}
}

func (s *Service) onSensitiveAccess(ctx context.Context, e *Entry) {
	if err := s.notifier.Notify(ctx, e.SubjectCode, "sensitive-access", map[string]string{
		"actor_code": e.ActorCode,
		"action":     string(e.Action),
		"sections":   strings.Join(e.Sections, ", "),
		"timestamp":  e.Timestamp.Format(time.RFC3339),
	}); err != nil {
		s.logger.Warn().Err(err).Str("entry_id", e.ID.String()).Msg("sensitive access notification failed")
	}

	sourceID := e.ID
	s.raiseAlert(ctx, &Alert{
		ID:        uuid.New(),
		Severity:  SeverityHigh,
		AlertType: AlertSensitiveAccess,
		Description: fmt.Sprintf("%s performed a %s on sections [%s] of %s",
			e.ActorCode, e.Action, strings.Join(e.Sections, ", "), e.SubjectCode),
		SourceLogID: &sourceID,
		SubjectCode: e.SubjectCode,
		CreatedAt:   e.Timestamp,
	})
}

// raiseAlert persists the alert, emits the security event and notifies the
// subject. Best-effort throughout.
func (s *Service) raiseAlert(ctx context.Context, a *Alert) {
	if err := s.alerts.Create(ctx, a); err != nil {
		s.logger.Error().Err(err).Str("alert_type", a.AlertType).Msg("create security alert")
		return
	}

	s.events.Publish(ctx, a.SubjectCode, a.ID, events.SecurityAlertRaised{
		AlertID:   a.ID,
		Severity:  string(a.Severity),
		AlertType: a.AlertType,
	})

	if err := s.notifier.Notify(ctx, a.SubjectCode, "security-alert", map[string]string{
		"severity":    string(a.Severity),
		"description": a.Description,
	}); err != nil {
		s.logger.Warn().Err(err).Str("alert_id", a.ID.String()).Msg("alert notification failed")
	}
}

// GenerateReport scans a subject's window and raises pattern-level alerts:
// unusual_hours when off-hours accesses exceed the threshold, and
// high_frequency when any rolling one-hour sub-window exceeds its cap.
func (s *Service) GenerateReport(ctx context.Context, subjectCode string, from, to time.Time) (*Report, error) {
	entries, err := s.entries.ListBySubject(ctx, subjectCode, from, to)
	if err != nil {
		return nil, fmt.Errorf("load audit window: %w", err)
	}

	report := &Report{
		SubjectCode:   subjectCode,
		From:          from,
		To:            to,
		TotalAccesses: len(entries),
		ByType:        make(map[Action]int),
	}

	actors := make(map[string]bool)
	offHours := 0
	for _, e := range entries {
		report.ByType[e.Action]++
		actors[e.ActorCode] = true
		if s.h.OffHours(e.Timestamp) {
			offHours++
		}
	}
	for actor := range actors {
		report.UniqueActors = append(report.UniqueActors, actor)
	}
	sort.Strings(report.UniqueActors)

	now := s.now().UTC()
	if offHours > s.h.OffHoursAlertCount {
		a := &Alert{
			ID:        uuid.New(),
			Severity:  SeverityMedium,
			AlertType: AlertUnusualHours,
			Description: fmt.Sprintf("%d off-hours accesses to %s between %s and %s",
				offHours, subjectCode, from.Format(time.RFC3339), to.Format(time.RFC3339)),
			SubjectCode: subjectCode,
			CreatedAt:   now,
		}
		s.raiseAlert(ctx, a)
		report.Alerts = append(report.Alerts, a)
	}

	if peak := MaxRollingHourCount(entries); peak > s.h.HourlyAlertCount {
		a := &Alert{
			ID:        uuid.New(),
			Severity:  SeverityHigh,
			AlertType: AlertHighFrequency,
			Description: fmt.Sprintf("%d accesses to %s within one hour",
				peak, subjectCode),
			SubjectCode: subjectCode,
			CreatedAt:   now,
		}
		s.raiseAlert(ctx, a)
		report.Alerts = append(report.Alerts, a)
	}

	return report, nil
}

// AcknowledgeAlert moves an alert open -> acknowledged. Acknowledging an
// already-acknowledged alert is a no-op that returns the alert unchanged.
func (s *Service) AcknowledgeAlert(ctx context.Context, alertID uuid.UUID, actorID string) (*Alert, error) {
	a, err := s.alerts.Acknowledge(ctx, alertID, actorID, s.now().UTC())
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("acknowledge alert: %w", err)
	}

	a, err = s.alerts.GetByID(ctx, alertID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "alert %s not found", alertID)
		}
		return nil, fmt.Errorf("load alert: %w", err)
	}
	return a, nil
}

func (s *Service) ListAlerts(ctx context.Context, page pagination.Params) ([]*Alert, error) {
	out, err := s.alerts.List(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return out, nil
}
