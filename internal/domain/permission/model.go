package permission

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/caregate/caregate/internal/domain/accesscode"
)

// ApprovalTTL is how long an approved permission stays usable. Expiry is
// evaluated lazily at read time; the stored status stays Approved.
const ApprovalTTL = 24 * time.Hour

// Status is the permission state machine. Denied is terminal; Expired is a
// read-time presentation of an Approved permission past its expires_at and
// is never written to storage.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusExpired  Status = "expired"
)

// Section is one shareable slice of a patient record. The set is closed.
type Section string

const (
	SectionProfile        Section = "profile"
	SectionAllergies      Section = "allergies"
	SectionMedications    Section = "medications"
	SectionMedicalHistory Section = "medical_history"
	SectionExams          Section = "exams"
	SectionNutrition      Section = "nutrition"
)

var validSections = map[Section]bool{
	SectionProfile:        true,
	SectionAllergies:      true,
	SectionMedications:    true,
	SectionMedicalHistory: true,
	SectionExams:          true,
	SectionNutrition:      true,
}

// SensitiveSections are the sections whose access always triggers an
// immediate notification, regardless of suspicion score.
var SensitiveSections = []Section{SectionMedications, SectionMedicalHistory}

// ValidateSections rejects empty or unknown section lists.
func ValidateSections(sections []Section) error {
	if len(sections) == 0 {
		return fmt.Errorf("at least one section is required")
	}
	for _, s := range sections {
		if !validSections[s] {
			return fmt.Errorf("unknown section %q", s)
		}
	}
	return nil
}

// Permission grants a professional time-boxed, quota-bound access to a set
// of sections of one patient's record. Rows are never deleted.
type Permission struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	PatientCode       string     `db:"patient_code" json:"patient_code"`
	ProfessionalCode  string     `db:"professional_code" json:"professional_code"`
	AllowedSections   []Section  `db:"allowed_sections" json:"allowed_sections"`
	MaxConsultations  int        `db:"max_consultations" json:"max_consultations"`
	UsedConsultations int        `db:"used_consultations" json:"used_consultations"`
	Status            Status     `db:"status" json:"status"`
	RequestedAt       time.Time  `db:"requested_at" json:"requested_at"`
	ApprovedAt        *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	ExpiresAt         *time.Time `db:"expires_at" json:"expires_at,omitempty"`
}

// CheckAccess is the sole gate consulted before a session may start: the
// permission is Approved, unexpired, and has quota left. Pure; mutates
// nothing.
func CheckAccess(p *Permission, now time.Time) bool {
	if p.Status != StatusApproved || p.ExpiresAt == nil {
		return false
	}
	if accesscode.IsExpired(*p.ExpiresAt, now) {
		return false
	}
	return p.UsedConsultations < p.MaxConsultations
}

// EffectiveStatus presents an Approved permission past expires_at as
// Expired without touching storage.
func EffectiveStatus(p *Permission, now time.Time) Status {
	if p.Status == StatusApproved && p.ExpiresAt != nil && accesscode.IsExpired(*p.ExpiresAt, now) {
		return StatusExpired
	}
	return p.Status
}
