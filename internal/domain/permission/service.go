package permission

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/caregate/caregate/internal/domain/accesscode"
	"github.com/caregate/caregate/internal/platform/apperr"
	"github.com/caregate/caregate/internal/platform/events"
	"github.com/caregate/caregate/pkg/pagination"
)

// CodeVerifier resolves an access code of either kind. Implemented by the
// accesscode service.
type CodeVerifier interface {
	Verify(ctx context.Context, code string) (*accesscode.Verification, error)
}

// EventPublisher emits lifecycle events. Implemented by events.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, subjectCode string, entityID uuid.UUID, payload events.Payload)
}

// Notifier dispatches a templated notification. Implemented by
// notification.Notifier.
type Notifier interface {
	Notify(ctx context.Context, recipient, templateID string, data map[string]string) error
}

type Service struct {
	repo     Repository
	codes    CodeVerifier
	events   EventPublisher
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, codes CodeVerifier, publisher EventPublisher, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		codes:    codes,
		events:   publisher,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Request creates a Pending permission after verifying both codes. The
// patient decides through Respond; nothing is granted yet.
func (s *Service) Request(ctx context.Context, patientCode, professionalCode string, sections []Section, maxConsultations int) (*Permission, error) {
	if err := ValidateSections(sections); err != nil {
		return nil, apperr.Wrap(apperr.InvalidCode, err, "invalid section list")
	}
	if maxConsultations < 1 {
		return nil, apperr.New(apperr.InvalidCode, "max_consultations must be at least 1, got %d", maxConsultations)
	}

	pv, err := s.codes.Verify(ctx, patientCode)
	if err != nil {
		return nil, err
	}
	if pv.Kind != accesscode.KindPatient {
		return nil, apperr.New(apperr.InvalidCode, "%s is not a patient code", patientCode)
	}
	prv, err := s.codes.Verify(ctx, professionalCode)
	if err != nil {
		return nil, err
	}
	if prv.Kind != accesscode.KindProfessional {
		return nil, apperr.New(apperr.InvalidCode, "%s is not a professional code", professionalCode)
	}

	p := &Permission{
		ID:               uuid.New(),
		PatientCode:      patientCode,
		ProfessionalCode: professionalCode,
		AllowedSections:  sections,
		MaxConsultations: maxConsultations,
		Status:           StatusPending,
		RequestedAt:      s.now().UTC(),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create permission: %w", err)
	}

	if err := s.notifier.Notify(ctx, patientCode, "permission-requested", map[string]string{
		"professional_code": professionalCode,
		"sections":          joinSections(sections),
		"max_consultations": strconv.Itoa(maxConsultations),
	}); err != nil {
		s.logger.Warn().Err(err).Str("permission_id", p.ID.String()).Msg("request notification failed")
	}

	return p, nil
}

// Respond approves or denies a Pending permission. Approval stamps
// approved_at and expires_at = approved_at + 24h, and may narrow the
// allowed sections to a subset of what was requested. A second respond on
// the same permission fails with InvalidStateTransition.
func (s *Service) Respond(ctx context.Context, id uuid.UUID, approve bool, allowedSections []Section) (*Permission, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "permission %s not found", id)
		}
		return nil, fmt.Errorf("load permission: %w", err)
	}

	var (
		status     = StatusDenied
		sections   = existing.AllowedSections
		approvedAt *time.Time
		expiresAt  *time.Time
	)
	if approve {
		status = StatusApproved
		if len(allowedSections) > 0 {
			if err := narrows(allowedSections, existing.AllowedSections); err != nil {
				return nil, apperr.Wrap(apperr.InvalidCode, err, "invalid section narrowing")
			}
			sections = allowedSections
		}
		at := s.now().UTC()
		exp := at.Add(ApprovalTTL)
		approvedAt, expiresAt = &at, &exp
	}

	updated, err := s.repo.UpdateFromPending(ctx, id, status, sections, approvedAt, expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.InvalidStateTransition,
				"permission %s is %s, only pending permissions accept a response", id, existing.Status)
		}
		return nil, fmt.Errorf("respond to permission: %w", err)
	}

	s.emitResponse(ctx, updated, approve)
	return updated, nil
}

func (s *Service) emitResponse(ctx context.Context, p *Permission, approved bool) {
	if approved {
		s.events.Publish(ctx, p.PatientCode, p.ID, events.PermissionApproved{
			PermissionID:     p.ID,
			PatientCode:      p.PatientCode,
			ProfessionalCode: p.ProfessionalCode,
			ExpiresAt:        *p.ExpiresAt,
		})
	} else {
		s.events.Publish(ctx, p.PatientCode, p.ID, events.PermissionDenied{
			PermissionID:     p.ID,
			PatientCode:      p.PatientCode,
			ProfessionalCode: p.ProfessionalCode,
		})
	}

	template := "permission-denied"
	data := map[string]string{"patient_code": p.PatientCode}
	if approved {
		template = "permission-approved"
		data["expires_at"] = p.ExpiresAt.Format(time.RFC3339)
	}
	if err := s.notifier.Notify(ctx, p.ProfessionalCode, template, data); err != nil {
		s.logger.Warn().Err(err).Str("permission_id", p.ID.String()).Msg("response notification failed")
	}
}

// Get returns a permission with its status lazily re-evaluated against the
// clock.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Permission, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "permission %s not found", id)
		}
		return nil, fmt.Errorf("load permission: %w", err)
	}
	p.Status = EffectiveStatus(p, s.now().UTC())
	return p, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientCode string, page pagination.Params) ([]*Permission, error) {
	return s.presentList(s.repo.ListByPatientCode(ctx, patientCode, page))
}

func (s *Service) ListByProfessional(ctx context.Context, professionalCode string, page pagination.Params) ([]*Permission, error) {
	return s.presentList(s.repo.ListByProfessionalCode(ctx, professionalCode, page))
}

func (s *Service) presentList(ps []*Permission, err error) ([]*Permission, error) {
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	now := s.now().UTC()
	for _, p := range ps {
		p.Status = EffectiveStatus(p, now)
	}
	return ps, nil
}

// ConsumeQuota burns one consultation from the permission's allowance. The
// increment is conditional in the store; exhaustion maps to QuotaExhausted.
func (s *Service) ConsumeQuota(ctx context.Context, id uuid.UUID) error {
	ok, err := s.repo.ConsumeQuota(ctx, id)
	if err != nil {
		return fmt.Errorf("consume quota: %w", err)
	}
	if !ok {
		return apperr.New(apperr.QuotaExhausted, "permission %s has no consultations left", id)
	}
	return nil
}

func narrows(requested, granted []Section) error {
	allowed := make(map[Section]bool, len(granted))
	for _, s := range granted {
		allowed[s] = true
	}
	for _, s := range requested {
		if !allowed[s] {
			return fmt.Errorf("section %q was not part of the request", s)
		}
	}
	return nil
}

func joinSections(sections []Section) string {
	parts := make([]string, len(sections))
	for i, s := range sections {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
