package accesscode

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/caregate/caregate/internal/platform/apperr"
)

type mockPatientRepo struct {
	byCode map[string]*PatientCode
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{byCode: make(map[string]*PatientCode)}
}

func (m *mockPatientRepo) Replace(ctx context.Context, c *PatientCode) error {
	for _, existing := range m.byCode {
		if existing.OwnerID == c.OwnerID {
			existing.Active = false
		}
	}
	cp := *c
	m.byCode[c.Code] = &cp
	return nil
}

func (m *mockPatientRepo) GetByCode(ctx context.Context, code string) (*PatientCode, error) {
	if c, ok := m.byCode[code]; ok {
		return c, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *mockPatientRepo) GetActiveByOwner(ctx context.Context, ownerID uuid.UUID) (*PatientCode, error) {
	for _, c := range m.byCode {
		if c.OwnerID == ownerID && c.Active {
			return c, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type mockProfessionalRepo struct {
	byCode map[string]*ProfessionalCode
}

func newMockProfessionalRepo() *mockProfessionalRepo {
	return &mockProfessionalRepo{byCode: make(map[string]*ProfessionalCode)}
}

func (m *mockProfessionalRepo) Replace(ctx context.Context, c *ProfessionalCode) error {
	for _, existing := range m.byCode {
		if existing.ProfessionalID == c.ProfessionalID {
			existing.Active = false
		}
	}
	cp := *c
	m.byCode[c.Code] = &cp
	return nil
}

func (m *mockProfessionalRepo) GetByCode(ctx context.Context, code string) (*ProfessionalCode, error) {
	if c, ok := m.byCode[code]; ok {
		return c, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *mockProfessionalRepo) GetActiveByProfessional(ctx context.Context, professionalID uuid.UUID) (*ProfessionalCode, error) {
	for _, c := range m.byCode {
		if c.ProfessionalID == professionalID && c.Active {
			return c, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func newTestService(at time.Time) (*Service, *mockPatientRepo, *mockProfessionalRepo) {
	patients := newMockPatientRepo()
	professionals := newMockProfessionalRepo()
	svc := NewService(patients, professionals)
	svc.now = func() time.Time { return at }
	return svc, patients, professionals
}

func TestIssuePatientCodeIdempotent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(now)
	patientID := uuid.New()

	first, err := svc.IssuePatientCode(ctx, patientID)
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	if len(first.Code) != patientCodeLength {
		t.Fatalf("code length = %d, want %d", len(first.Code), patientCodeLength)
	}
	for _, r := range first.Code {
		if !strings.ContainsRune(codeAlphabet, r) {
			t.Fatalf("code %q contains %q outside alphabet", first.Code, r)
		}
	}
	if want := now.Add(PatientCodeTTL); !first.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", first.ExpiresAt, want)
	}

	second, err := svc.IssuePatientCode(ctx, patientID)
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}
	if second.Code != first.Code {
		t.Fatalf("reissue within validity minted a new code: %q != %q", second.Code, first.Code)
	}
}

func TestIssuePatientCodeReplacesExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(now)
	patientID := uuid.New()

	first, err := svc.IssuePatientCode(ctx, patientID)
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}

	svc.now = func() time.Time { return now.Add(PatientCodeTTL + time.Hour) }
	second, err := svc.IssuePatientCode(ctx, patientID)
	if err != nil {
		t.Fatalf("reissue after expiry: %v", err)
	}
	if second.Code == first.Code {
		t.Fatal("expired code was returned instead of a fresh one")
	}
}

func TestIssueProfessionalCodeFormat(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(now)

	cases := []struct {
		profession Profession
		prefix     string
	}{
		{ProfessionDoctor, "DR"},
		{ProfessionNurse, "NR"},
		{ProfessionPsychologist, "PS"},
		{ProfessionNutritionist, "NT"},
		{ProfessionPhysiotherapist, "FT"},
		{ProfessionDentist, "DT"},
		{Profession("herbalist"), "PROF"},
	}
	for _, tc := range cases {
		c, err := svc.IssueProfessionalCode(ctx, uuid.New(), tc.profession, "br")
		if err != nil {
			t.Fatalf("%s: %v", tc.profession, err)
		}
		if !strings.HasPrefix(c.Code, tc.prefix+"-BR-") {
			t.Errorf("%s: code %q, want prefix %q", tc.profession, c.Code, tc.prefix+"-BR-")
		}
		if c.Country != "BR" {
			t.Errorf("%s: country %q not uppercased", tc.profession, c.Country)
		}
		if want := now.Add(ProfessionalCodeTTL); !c.ExpiresAt.Equal(want) {
			t.Errorf("%s: expires_at = %v, want %v", tc.profession, c.ExpiresAt, want)
		}
	}
}

func TestIssueProfessionalCodeRequiresCountry(t *testing.T) {
	svc, _, _ := newTestService(time.Now())
	_, err := svc.IssueProfessionalCode(context.Background(), uuid.New(), ProfessionDoctor, "  ")
	if !apperr.IsKind(err, apperr.InvalidCode) {
		t.Fatalf("err = %v, want InvalidCode", err)
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(now)

	patient, err := svc.IssuePatientCode(ctx, uuid.New())
	if err != nil {
		t.Fatalf("issue patient: %v", err)
	}
	professional, err := svc.IssueProfessionalCode(ctx, uuid.New(), ProfessionDoctor, "BR")
	if err != nil {
		t.Fatalf("issue professional: %v", err)
	}

	v, err := svc.Verify(ctx, patient.Code)
	if err != nil {
		t.Fatalf("verify patient: %v", err)
	}
	if v.Kind != KindPatient || v.Patient == nil || v.Patient.Code != patient.Code {
		t.Fatalf("verification = %+v, want patient %s", v, patient.Code)
	}

	v, err = svc.Verify(ctx, professional.Code)
	if err != nil {
		t.Fatalf("verify professional: %v", err)
	}
	if v.Kind != KindProfessional || v.Professional == nil || v.Professional.Code != professional.Code {
		t.Fatalf("verification = %+v, want professional %s", v, professional.Code)
	}
}

func TestVerifyExpiredCode(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(now)

	code, err := svc.IssuePatientCode(ctx, uuid.New())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	svc.now = func() time.Time { return now.Add(PatientCodeTTL + time.Minute) }
	_, err = svc.Verify(ctx, code.Code)
	if !apperr.IsKind(err, apperr.ExpiredCode) {
		t.Fatalf("err = %v, want ExpiredCode", err)
	}
}

func TestVerifyReplacedCode(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(now)
	patientID := uuid.New()

	first, err := svc.IssuePatientCode(ctx, patientID)
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}

	// Push past expiry so issuance mints a replacement, then verify the old
	// code at a time where it would otherwise still be readable.
	svc.now = func() time.Time { return now.Add(PatientCodeTTL + time.Hour) }
	if _, err := svc.IssuePatientCode(ctx, patientID); err != nil {
		t.Fatalf("reissue: %v", err)
	}

	svc.now = func() time.Time { return now }
	_, err = svc.Verify(ctx, first.Code)
	if !apperr.IsKind(err, apperr.InvalidCode) {
		t.Fatalf("err = %v, want InvalidCode for replaced code", err)
	}
}

func TestVerifyUnknownCode(t *testing.T) {
	svc, _, _ := newTestService(time.Now())
	_, err := svc.Verify(context.Background(), "ZZZZZZZZ")
	if !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}
