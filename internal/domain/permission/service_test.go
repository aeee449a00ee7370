package permission

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/caregate/caregate/internal/domain/accesscode"
	"github.com/caregate/caregate/internal/platform/apperr"
	"github.com/caregate/caregate/internal/platform/events"
	"github.com/caregate/caregate/pkg/pagination"
)

type mockRepo struct {
	byID map[uuid.UUID]*Permission
}

func newMockRepo() *mockRepo {
	return &mockRepo{byID: make(map[uuid.UUID]*Permission)}
}

func (m *mockRepo) Create(ctx context.Context, p *Permission) error {
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*Permission, error) {
	if p, ok := m.byID[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) UpdateFromPending(ctx context.Context, id uuid.UUID, status Status, sections []Section, approvedAt, expiresAt *time.Time) (*Permission, error) {
	p, ok := m.byID[id]
	if !ok || p.Status != StatusPending {
		return nil, pgx.ErrNoRows
	}
	p.Status = status
	p.AllowedSections = sections
	p.ApprovedAt = approvedAt
	p.ExpiresAt = expiresAt
	cp := *p
	return &cp, nil
}

func (m *mockRepo) ConsumeQuota(ctx context.Context, id uuid.UUID) (bool, error) {
	p, ok := m.byID[id]
	if !ok || p.UsedConsultations >= p.MaxConsultations {
		return false, nil
	}
	p.UsedConsultations++
	return true, nil
}

func (m *mockRepo) ListByPatientCode(ctx context.Context, code string, page pagination.Params) ([]*Permission, error) {
	var out []*Permission
	for _, p := range m.byID {
		if p.PatientCode == code {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) ListByProfessionalCode(ctx context.Context, code string, page pagination.Params) ([]*Permission, error) {
	var out []*Permission
	for _, p := range m.byID {
		if p.ProfessionalCode == code {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// stubVerifier answers from a fixed code table.
type stubVerifier struct {
	codes map[string]*accesscode.Verification
}

func (s *stubVerifier) Verify(ctx context.Context, code string) (*accesscode.Verification, error) {
	if v, ok := s.codes[code]; ok {
		return v, nil
	}
	return nil, apperr.New(apperr.NotFound, "code %s not found", code)
}

type stubPublisher struct {
	published []events.Payload
}

func (s *stubPublisher) Publish(ctx context.Context, subjectCode string, entityID uuid.UUID, payload events.Payload) {
	s.published = append(s.published, payload)
}

type stubNotifier struct {
	sent []string
}

func (s *stubNotifier) Notify(ctx context.Context, recipient, templateID string, data map[string]string) error {
	s.sent = append(s.sent, templateID)
	return nil
}

const (
	testPatientCode      = "ABCD2345"
	testProfessionalCode = "DR-BR-0042"
)

func newTestService(at time.Time) (*Service, *mockRepo, *stubPublisher, *stubNotifier) {
	repo := newMockRepo()
	verifier := &stubVerifier{codes: map[string]*accesscode.Verification{
		testPatientCode: {
			Kind:    accesscode.KindPatient,
			Patient: &accesscode.PatientCode{Code: testPatientCode, Active: true},
		},
		testProfessionalCode: {
			Kind:         accesscode.KindProfessional,
			Professional: &accesscode.ProfessionalCode{Code: testProfessionalCode, Active: true},
		},
	}}
	publisher := &stubPublisher{}
	notifier := &stubNotifier{}
	svc := NewService(repo, verifier, publisher, notifier, zerolog.Nop())
	svc.now = func() time.Time { return at }
	return svc, repo, publisher, notifier
}

func request(t *testing.T, svc *Service, sections []Section, max int) *Permission {
	t.Helper()
	p, err := svc.Request(context.Background(), testPatientCode, testProfessionalCode, sections, max)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return p
}

func TestRequestCreatesPending(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	svc, _, _, notifier := newTestService(now)

	p := request(t, svc, []Section{SectionProfile, SectionExams}, 3)
	if p.Status != StatusPending {
		t.Fatalf("status = %s, want pending", p.Status)
	}
	if p.UsedConsultations != 0 {
		t.Fatalf("used = %d, want 0", p.UsedConsultations)
	}
	if len(notifier.sent) != 1 || notifier.sent[0] != "permission-requested" {
		t.Fatalf("notifications = %v, want [permission-requested]", notifier.sent)
	}
}

func TestRequestRejectsUnknownSection(t *testing.T) {
	svc, _, _, _ := newTestService(time.Now())
	_, err := svc.Request(context.Background(), testPatientCode, testProfessionalCode, []Section{"genome"}, 1)
	if !apperr.IsKind(err, apperr.InvalidCode) {
		t.Fatalf("err = %v, want InvalidCode", err)
	}
}

func TestRequestRejectsSwappedCodes(t *testing.T) {
	svc, _, _, _ := newTestService(time.Now())
	_, err := svc.Request(context.Background(), testProfessionalCode, testPatientCode, []Section{SectionProfile}, 1)
	if !apperr.IsKind(err, apperr.InvalidCode) {
		t.Fatalf("err = %v, want InvalidCode for swapped codes", err)
	}
}

func TestRespondApproveSetsExactExpiry(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	svc, _, publisher, _ := newTestService(now)
	p := request(t, svc, []Section{SectionProfile, SectionMedications}, 2)

	updated, err := svc.Respond(context.Background(), p.ID, true, nil)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if updated.Status != StatusApproved {
		t.Fatalf("status = %s, want approved", updated.Status)
	}
	if updated.ApprovedAt == nil || updated.ExpiresAt == nil {
		t.Fatal("approved_at/expires_at not set")
	}
	if want := updated.ApprovedAt.Add(ApprovalTTL); !updated.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want approved_at+24h = %v", updated.ExpiresAt, want)
	}
	if len(publisher.published) != 1 {
		t.Fatalf("published %d events, want 1", len(publisher.published))
	}
	if _, ok := publisher.published[0].(events.PermissionApproved); !ok {
		t.Fatalf("event = %T, want PermissionApproved", publisher.published[0])
	}
}

func TestRespondNarrowsSections(t *testing.T) {
	svc, _, _, _ := newTestService(time.Now())
	p := request(t, svc, []Section{SectionProfile, SectionMedications, SectionExams}, 1)

	updated, err := svc.Respond(context.Background(), p.ID, true, []Section{SectionProfile})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if len(updated.AllowedSections) != 1 || updated.AllowedSections[0] != SectionProfile {
		t.Fatalf("sections = %v, want [profile]", updated.AllowedSections)
	}
}

func TestRespondRejectsWidening(t *testing.T) {
	svc, _, _, _ := newTestService(time.Now())
	p := request(t, svc, []Section{SectionProfile}, 1)

	_, err := svc.Respond(context.Background(), p.ID, true, []Section{SectionProfile, SectionMedications})
	if !apperr.IsKind(err, apperr.InvalidCode) {
		t.Fatalf("err = %v, want InvalidCode for widened sections", err)
	}
}

func TestRespondTwiceFailsAndKeepsFirstDecision(t *testing.T) {
	svc, repo, _, _ := newTestService(time.Now())
	p := request(t, svc, []Section{SectionProfile}, 1)

	if _, err := svc.Respond(context.Background(), p.ID, true, nil); err != nil {
		t.Fatalf("first respond: %v", err)
	}
	_, err := svc.Respond(context.Background(), p.ID, false, nil)
	if !apperr.IsKind(err, apperr.InvalidStateTransition) {
		t.Fatalf("err = %v, want InvalidStateTransition", err)
	}
	if repo.byID[p.ID].Status != StatusApproved {
		t.Fatalf("status after second respond = %s, want approved unchanged", repo.byID[p.ID].Status)
	}
}

func TestRespondUnknownPermission(t *testing.T) {
	svc, _, _, _ := newTestService(time.Now())
	_, err := svc.Respond(context.Background(), uuid.New(), true, nil)
	if !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestCheckAccess(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	approvedAt := now.Add(-time.Hour)
	expiresAt := approvedAt.Add(ApprovalTTL)

	base := Permission{
		Status:           StatusApproved,
		MaxConsultations: 2,
		ApprovedAt:       &approvedAt,
		ExpiresAt:        &expiresAt,
	}

	cases := []struct {
		name   string
		mutate func(*Permission)
		at     time.Time
		want   bool
	}{
		{"approved with quota", func(p *Permission) {}, now, true},
		{"at exact expiry", func(p *Permission) {}, expiresAt, true},
		{"past expiry", func(p *Permission) {}, expiresAt.Add(time.Second), false},
		{"quota exhausted", func(p *Permission) { p.UsedConsultations = 2 }, now, false},
		{"pending", func(p *Permission) { p.Status = StatusPending }, now, false},
		{"denied", func(p *Permission) { p.Status = StatusDenied }, now, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := base
			tc.mutate(&p)
			if got := CheckAccess(&p, tc.at); got != tc.want {
				t.Fatalf("CheckAccess = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEffectiveStatusLazyExpiry(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	approvedAt := now
	expiresAt := approvedAt.Add(ApprovalTTL)
	p := &Permission{Status: StatusApproved, ApprovedAt: &approvedAt, ExpiresAt: &expiresAt}

	if got := EffectiveStatus(p, now.Add(time.Hour)); got != StatusApproved {
		t.Fatalf("before expiry: %s, want approved", got)
	}
	if got := EffectiveStatus(p, expiresAt.Add(time.Second)); got != StatusExpired {
		t.Fatalf("after expiry: %s, want expired", got)
	}
	if p.Status != StatusApproved {
		t.Fatal("stored status mutated by read-time presentation")
	}
}

func TestConsumeQuotaBounds(t *testing.T) {
	svc, repo, _, _ := newTestService(time.Now())
	p := request(t, svc, []Section{SectionProfile}, 2)
	if _, err := svc.Respond(context.Background(), p.ID, true, nil); err != nil {
		t.Fatalf("respond: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := svc.ConsumeQuota(context.Background(), p.ID); err != nil {
			t.Fatalf("consume %d: %v", i+1, err)
		}
	}
	err := svc.ConsumeQuota(context.Background(), p.ID)
	if !apperr.IsKind(err, apperr.QuotaExhausted) {
		t.Fatalf("err = %v, want QuotaExhausted", err)
	}
	if got := repo.byID[p.ID].UsedConsultations; got != 2 {
		t.Fatalf("used = %d, want capped at 2", got)
	}
}
