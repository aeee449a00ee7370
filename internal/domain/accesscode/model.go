package accesscode

import (
	"time"

	"github.com/google/uuid"
)

// Code lifetimes. Patient codes are short-lived by design; professional
// codes follow the registration year.
const (
	PatientCodeTTL      = 30 * 24 * time.Hour
	ProfessionalCodeTTL = 365 * 24 * time.Hour
)

// Profession is the closed set of professional categories. Unknown values
// are accepted but fall back to the generic code prefix.
type Profession string

const (
	ProfessionDoctor          Profession = "doctor"
	ProfessionNurse           Profession = "nurse"
	ProfessionPsychologist    Profession = "psychologist"
	ProfessionNutritionist    Profession = "nutritionist"
	ProfessionPhysiotherapist Profession = "physiotherapist"
	ProfessionDentist         Profession = "dentist"
)

var professionPrefixes = map[Profession]string{
	ProfessionDoctor:          "DR",
	ProfessionNurse:           "NR",
	ProfessionPsychologist:    "PS",
	ProfessionNutritionist:    "NT",
	ProfessionPhysiotherapist: "FT",
	ProfessionDentist:         "DT",
}

const fallbackPrefix = "PROF"

// Prefix returns the code prefix for a profession, or the generic fallback.
func (p Profession) Prefix() string {
	if prefix, ok := professionPrefixes[p]; ok {
		return prefix
	}
	return fallbackPrefix
}

// PatientCode is the credential a patient hands to a professional. At most
// one active code exists per owner; issuing a new one replaces it.
type PatientCode struct {
	Code      string    `db:"code" json:"code"`
	OwnerID   uuid.UUID `db:"owner_id" json:"owner_id"`
	IssuedAt  time.Time `db:"issued_at" json:"issued_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	Active    bool      `db:"active" json:"active"`
}

// ProfessionalCode identifies a verified professional. Same single-active
// invariant as PatientCode.
type ProfessionalCode struct {
	Code           string     `db:"code" json:"code"`
	ProfessionalID uuid.UUID  `db:"professional_id" json:"professional_id"`
	Profession     Profession `db:"profession" json:"profession"`
	Country        string     `db:"country" json:"country"`
	IssuedAt       time.Time  `db:"issued_at" json:"issued_at"`
	ExpiresAt      time.Time  `db:"expires_at" json:"expires_at"`
	Active         bool       `db:"active" json:"active"`
}

// CodeKind distinguishes the two code families in verification results.
type CodeKind string

const (
	KindPatient      CodeKind = "patient"
	KindProfessional CodeKind = "professional"
)

// Verification is the payload returned by Verify for a valid code.
type Verification struct {
	Kind         CodeKind          `json:"kind"`
	Patient      *PatientCode      `json:"patient,omitempty"`
	Professional *ProfessionalCode `json:"professional,omitempty"`
}

// IsExpired is the single expiry predicate shared by every component that
// reads an expires_at. Expiry is evaluated lazily at read time; nothing
// sweeps expired rows.
func IsExpired(expiresAt, now time.Time) bool {
	return now.After(expiresAt)
}
