package accesscode

import (
	"context"

	"github.com/google/uuid"
)

// PatientCodeRepository persists patient access codes. Replace must
// deactivate any prior active code and insert the new one in a single
// transaction; the store additionally enforces one active code per owner.
type PatientCodeRepository interface {
	Replace(ctx context.Context, c *PatientCode) error
	GetByCode(ctx context.Context, code string) (*PatientCode, error)
	GetActiveByOwner(ctx context.Context, ownerID uuid.UUID) (*PatientCode, error)
}

// ProfessionalCodeRepository persists professional identification codes
// under the same single-active-code contract.
type ProfessionalCodeRepository interface {
	Replace(ctx context.Context, c *ProfessionalCode) error
	GetByCode(ctx context.Context, code string) (*ProfessionalCode, error)
	GetActiveByProfessional(ctx context.Context, professionalID uuid.UUID) (*ProfessionalCode, error)
}
