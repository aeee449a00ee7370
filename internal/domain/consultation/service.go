package consultation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/caregate/caregate/internal/domain/audit"
	"github.com/caregate/caregate/internal/domain/permission"
	"github.com/caregate/caregate/internal/platform/apperr"
	"github.com/caregate/caregate/internal/platform/events"
	"github.com/caregate/caregate/internal/platform/payment"
	"github.com/caregate/caregate/pkg/pagination"
)

// PermissionGate is the slice of the permission service the session manager
// consults: the access predicate's inputs and the quota counter.
type PermissionGate interface {
	Get(ctx context.Context, id uuid.UUID) (*permission.Permission, error)
	ConsumeQuota(ctx context.Context, id uuid.UUID) error
}

// EventPublisher emits lifecycle events. Implemented by events.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, subjectCode string, entityID uuid.UUID, payload events.Payload)
}

// AuditRecorder records access entries off the critical path. Implemented
// by the audit service.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry)
}

type Service struct {
	sessions  SessionRepository
	earnings  EarningsRepository
	perms     PermissionGate
	processor payment.Processor
	events    EventPublisher
	audits    AuditRecorder
	logger    zerolog.Logger

	feeAmount      int64
	platformFeePct float64

	now func() time.Time
}

func NewService(
	sessions SessionRepository,
	earnings EarningsRepository,
	perms PermissionGate,
	processor payment.Processor,
	publisher EventPublisher,
	audits AuditRecorder,
	logger zerolog.Logger,
	feeAmount int64,
	platformFeePct float64,
) *Service {
	return &Service{
		sessions:       sessions,
		earnings:       earnings,
		perms:          perms,
		processor:      processor,
		events:         publisher,
		audits:         audits,
		logger:         logger,
		feeAmount:      feeAmount,
		platformFeePct: platformFeePct,
		now:            time.Now,
	}
}

// Start creates a Waiting session under an approved permission and opens a
// payment intent for the flat consultation fee. The session activates only
// after ConfirmPayment succeeds.
func (s *Service) Start(ctx context.Context, permissionID uuid.UUID, patientCode string) (*Session, error) {
	p, err := s.perms.Get(ctx, permissionID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.gate(ctx, p, patientCode, now); err != nil {
		return nil, err
	}

	sessionID := uuid.New()
	intent, err := s.processor.CreateIntent(ctx, sessionID, s.feeAmount)
	if err != nil {
		return nil, apperr.Wrap(apperr.PaymentFailed, err, "create payment intent")
	}

	sess := &Session{
		ID:               sessionID,
		PermissionID:     p.ID,
		PatientCode:      p.PatientCode,
		ProfessionalCode: p.ProfessionalCode,
		Status:           StatusWaiting,
		FeeStatus:        FeePending,
		FeeAmount:        s.feeAmount,
		PaymentIntentID:  &intent.ID,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		if apperr.IsKind(err, apperr.DuplicateSession) {
			return nil, err
		}
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// gate applies the access predicate and maps each way it can fail to its
// precise error kind. Every rejection is also recorded as an unauthorized
// attempt, which is always suspicious.
func (s *Service) gate(ctx context.Context, p *permission.Permission, patientCode string, now time.Time) error {
	var err error
	switch {
	case p.PatientCode != patientCode:
		err = apperr.New(apperr.UnauthorizedAccess, "patient code does not match permission %s", p.ID)
	case permission.CheckAccess(p, now):
		return nil
	case p.Status != permission.StatusApproved:
		err = apperr.New(apperr.UnauthorizedAccess, "permission %s is %s, not approved", p.ID, p.Status)
	case permission.EffectiveStatus(p, now) == permission.StatusExpired:
		err = apperr.New(apperr.ExpiredCode, "permission %s expired at %s", p.ID, p.ExpiresAt.Format(time.RFC3339))
	default:
		err = apperr.New(apperr.QuotaExhausted, "permission %s has used all %d consultations", p.ID, p.MaxConsultations)
	}

	s.audits.Record(ctx, audit.Entry{
		ActorCode:   p.ProfessionalCode,
		SubjectCode: p.PatientCode,
		Action:      audit.ActionUnauthorizedAttempt,
		Sections:    sectionStrings(p.AllowedSections),
	})
	return err
}

// ConfirmPayment completes the second phase: on processor success the
// session moves Waiting -> Active with the fee paid; on decline the fee is
// marked failed, the session stays Waiting and the call is retryable.
func (s *Service) ConfirmPayment(ctx context.Context, intentID string, sessionID uuid.UUID) (*Session, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.PaymentIntentID == nil || *sess.PaymentIntentID != intentID {
		return nil, apperr.New(apperr.NotFound, "intent %s does not belong to session %s", intentID, sessionID)
	}
	switch sess.Status {
	case StatusActive:
		// Confirming an already-active session is harmless.
		return sess, nil
	case StatusEnded:
		return nil, apperr.New(apperr.InvalidStateTransition, "session %s has already ended", sessionID)
	}

	if _, err := s.processor.Confirm(ctx, intentID); err != nil {
		if markErr := s.sessions.MarkFeeFailed(ctx, sessionID); markErr != nil {
			s.logger.Error().Err(markErr).Str("session_id", sessionID.String()).Msg("mark fee failed")
		}
		return nil, apperr.Wrap(apperr.PaymentFailed, err, "confirm payment for session %s", sessionID)
	}

	updated, err := s.sessions.Activate(ctx, sessionID, s.now().UTC())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.InvalidStateTransition, "session %s is no longer waiting", sessionID)
		}
		return nil, fmt.Errorf("activate session: %w", err)
	}

	s.events.Publish(ctx, updated.PatientCode, updated.ID, events.SessionStarted{
		SessionID:    updated.ID,
		PermissionID: updated.PermissionID,
		FeeAmount:    updated.FeeAmount,
	})
	return updated, nil
}

// EndResult is what End hands back to the professional's UI.
type EndResult struct {
	Session  *Session  `json:"session"`
	Earnings *Earnings `json:"earnings"`
}

// End closes an Active session: stamps the duration, burns one consultation
// from the permission's quota (exhaustion is tolerated, the end still
// succeeds), and writes exactly one earnings record for the session.
func (s *Service) End(ctx context.Context, sessionID uuid.UUID, notes string) (*EndResult, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != StatusActive {
		return nil, apperr.New(apperr.InvalidStateTransition,
			"session %s is %s, only active sessions can end", sessionID, sess.Status)
	}

	now := s.now().UTC()
	duration := int(now.Sub(*sess.StartedAt).Minutes())
	updated, err := s.sessions.End(ctx, sessionID, now, duration, notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.InvalidStateTransition, "session %s is no longer active", sessionID)
		}
		return nil, fmt.Errorf("end session: %w", err)
	}

	if err := s.perms.ConsumeQuota(ctx, updated.PermissionID); err != nil {
		// The end itself stands; the permission just admits no further
		// sessions.
		s.logger.Warn().Err(err).
			Str("permission_id", updated.PermissionID.String()).
			Msg("quota not consumed on session end")
	}

	fee, net := SplitFee(updated.FeeAmount, s.platformFeePct)
	record := &Earnings{
		ID:               uuid.New(),
		SessionID:        updated.ID,
		ProfessionalCode: updated.ProfessionalCode,
		GrossAmount:      updated.FeeAmount,
		PlatformFee:      fee,
		NetAmount:        net,
		PayoutStatus:     PayoutPending,
		CreatedAt:        now,
	}
	if err := s.earnings.CreateIdempotent(ctx, record); err != nil {
		return nil, fmt.Errorf("write earnings: %w", err)
	}
	// Read back so a replayed end returns the record the first call wrote.
	record, err = s.earnings.GetBySessionID(ctx, updated.ID)
	if err != nil {
		return nil, fmt.Errorf("load earnings: %w", err)
	}

	s.events.Publish(ctx, updated.PatientCode, updated.ID, events.SessionEnded{
		SessionID:       updated.ID,
		PermissionID:    updated.PermissionID,
		DurationMinutes: duration,
		EarningsID:      record.ID,
	})
	s.recordConsultation(ctx, updated, now)

	return &EndResult{Session: updated, Earnings: record}, nil
}

func (s *Service) recordConsultation(ctx context.Context, sess *Session, endedAt time.Time) {
	entry := audit.Entry{
		ActorCode:   sess.ProfessionalCode,
		SubjectCode: sess.PatientCode,
		Action:      audit.ActionConsultation,
	}
	if sess.StartedAt != nil {
		entry.DurationSeconds = int(endedAt.Sub(*sess.StartedAt).Seconds())
	}
	if p, err := s.perms.Get(ctx, sess.PermissionID); err == nil {
		entry.Sections = sectionStrings(p.AllowedSections)
	}
	s.audits.Record(ctx, entry)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.getSession(ctx, id)
}

func (s *Service) getSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "session %s not found", id)
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

func (s *Service) ListEarnings(ctx context.Context, professionalCode string, page pagination.Params) ([]*Earnings, error) {
	out, err := s.earnings.ListByProfessionalCode(ctx, professionalCode, page)
	if err != nil {
		return nil, fmt.Errorf("list earnings: %w", err)
	}
	return out, nil
}

// MarkPayoutProcessed settles a pending earnings record. Settling twice
// returns the already-processed record unchanged.
func (s *Service) MarkPayoutProcessed(ctx context.Context, earningsID uuid.UUID) (*Earnings, error) {
	e, err := s.earnings.MarkPayoutProcessed(ctx, earningsID, s.now().UTC())
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("mark payout processed: %w", err)
	}

	e, err = s.earnings.GetByID(ctx, earningsID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "earnings %s not found", earningsID)
		}
		return nil, fmt.Errorf("load earnings: %w", err)
	}
	return e, nil
}

func sectionStrings(sections []permission.Section) []string {
	out := make([]string, len(sections))
	for i, sec := range sections {
		out[i] = string(sec)
	}
	return out
}
