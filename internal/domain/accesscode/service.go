package accesscode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/caregate/caregate/internal/platform/apperr"
)

// Alphabet for patient codes. Excludes 0/O, 1/I/L to keep codes readable
// over the phone.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const patientCodeLength = 8

type Service struct {
	patients      PatientCodeRepository
	professionals ProfessionalCodeRepository
	now           func() time.Time
}

func NewService(patients PatientCodeRepository, professionals ProfessionalCodeRepository) *Service {
	return &Service{
		patients:      patients,
		professionals: professionals,
		now:           time.Now,
	}
}

// IssuePatientCode mints a patient access code with a 30-day expiry. While
// an active, unexpired code exists the call is idempotent and returns it
// unchanged; otherwise the previous code is retired and a new one minted.
func (s *Service) IssuePatientCode(ctx context.Context, patientID uuid.UUID) (*PatientCode, error) {
	if patientID == uuid.Nil {
		return nil, apperr.New(apperr.InvalidCode, "patient id is required")
	}

	now := s.now().UTC()
	existing, err := s.patients.GetActiveByOwner(ctx, patientID)
	if err == nil && !IsExpired(existing.ExpiresAt, now) {
		return existing, nil
	}
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("look up active code: %w", err)
	}

	code, err := randomCode(patientCodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	c := &PatientCode{
		Code:      code,
		OwnerID:   patientID,
		IssuedAt:  now,
		ExpiresAt: now.Add(PatientCodeTTL),
		Active:    true,
	}
	if err := s.patients.Replace(ctx, c); err != nil {
		return nil, fmt.Errorf("persist patient code: %w", err)
	}
	return c, nil
}

// IssueProfessionalCode mints a PREFIX-COUNTRY-NNNN identification code with
// a 1-year expiry, retiring any prior active code for the professional.
func (s *Service) IssueProfessionalCode(ctx context.Context, professionalID uuid.UUID, profession Profession, country string) (*ProfessionalCode, error) {
	if professionalID == uuid.Nil {
		return nil, apperr.New(apperr.InvalidCode, "professional id is required")
	}
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		return nil, apperr.New(apperr.InvalidCode, "country is required")
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	now := s.now().UTC()
	c := &ProfessionalCode{
		Code:           fmt.Sprintf("%s-%s-%04d", profession.Prefix(), country, serial),
		ProfessionalID: professionalID,
		Profession:     profession,
		Country:        country,
		IssuedAt:       now,
		ExpiresAt:      now.Add(ProfessionalCodeTTL),
		Active:         true,
	}
	if err := s.professionals.Replace(ctx, c); err != nil {
		return nil, fmt.Errorf("persist professional code: %w", err)
	}
	return c, nil
}

// Verify resolves a code of either kind. It fails with NotFound for unknown
// codes, InvalidCode for retired ones, and ExpiredCode past expiry.
func (s *Service) Verify(ctx context.Context, code string) (*Verification, error) {
	now := s.now().UTC()

	if p, err := s.patients.GetByCode(ctx, code); err == nil {
		if err := checkUsable(p.Active, p.ExpiresAt, now, code); err != nil {
			return nil, err
		}
		return &Verification{Kind: KindPatient, Patient: p}, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("look up patient code: %w", err)
	}

	if pr, err := s.professionals.GetByCode(ctx, code); err == nil {
		if err := checkUsable(pr.Active, pr.ExpiresAt, now, code); err != nil {
			return nil, err
		}
		return &Verification{Kind: KindProfessional, Professional: pr}, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("look up professional code: %w", err)
	}

	return nil, apperr.New(apperr.NotFound, "code %s not found", code)
}

func checkUsable(active bool, expiresAt time.Time, now time.Time, code string) error {
	if !active {
		return apperr.New(apperr.InvalidCode, "code %s has been replaced", code)
	}
	if IsExpired(expiresAt, now) {
		return apperr.New(apperr.ExpiredCode, "code %s expired at %s", code, expiresAt.Format(time.RFC3339))
	}
	return nil
}

func randomCode(length int) (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func randomSerial() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}
