package permission

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/caregate/caregate/pkg/pagination"
)

// Repository persists permissions. Every state transition is a conditional
// update so two racing callers cannot both win.
type Repository interface {
	Create(ctx context.Context, p *Permission) error
	GetByID(ctx context.Context, id uuid.UUID) (*Permission, error)

	// UpdateFromPending moves a Pending permission to Approved or Denied in
	// one conditional statement and returns the updated row. It returns
	// pgx.ErrNoRows when the permission is no longer Pending.
	UpdateFromPending(ctx context.Context, id uuid.UUID, status Status, sections []Section, approvedAt, expiresAt *time.Time) (*Permission, error)

	// ConsumeQuota increments used_consultations only while it is below
	// max_consultations. Returns false when the quota is already exhausted.
	ConsumeQuota(ctx context.Context, id uuid.UUID) (bool, error)

	ListByPatientCode(ctx context.Context, code string, page pagination.Params) ([]*Permission, error)
	ListByProfessionalCode(ctx context.Context, code string, page pagination.Params) ([]*Permission, error)
}
