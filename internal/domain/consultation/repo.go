package consultation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/caregate/caregate/pkg/pagination"
)

// SessionRepository persists sessions. Lifecycle transitions are conditional
// statements; losing a race surfaces as pgx.ErrNoRows.
type SessionRepository interface {
	// Create inserts a Waiting session. The store enforces at most one
	// Waiting/Active session per permission; a violation is returned as a
	// DuplicateSession error.
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)

	// Activate moves Waiting -> Active, marks the fee paid and stamps
	// started_at. pgx.ErrNoRows when the session is not Waiting.
	Activate(ctx context.Context, id uuid.UUID, startedAt time.Time) (*Session, error)

	// MarkFeeFailed records a declined charge on a Waiting session. The
	// session itself stays Waiting and payable.
	MarkFeeFailed(ctx context.Context, id uuid.UUID) error

	// End moves Active -> Ended with the computed duration. pgx.ErrNoRows
	// when the session is not Active.
	End(ctx context.Context, id uuid.UUID, endedAt time.Time, durationMinutes int, notes string) (*Session, error)

	ListByProfessionalCode(ctx context.Context, code string, page pagination.Params) ([]*Session, error)
}

// EarningsRepository persists billing records, exactly one per session.
type EarningsRepository interface {
	// CreateIdempotent inserts the record unless one already exists for the
	// session. Never an error on replay.
	CreateIdempotent(ctx context.Context, e *Earnings) error
	GetBySessionID(ctx context.Context, sessionID uuid.UUID) (*Earnings, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Earnings, error)

	// MarkPayoutProcessed moves pending -> processed. pgx.ErrNoRows when the
	// record is not pending.
	MarkPayoutProcessed(ctx context.Context, id uuid.UUID, at time.Time) (*Earnings, error)

	ListByProfessionalCode(ctx context.Context, code string, page pagination.Params) ([]*Earnings, error)
}
