package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/caregate/caregate/pkg/pagination"
)

// EntryRepository is the append-only access log. Entries are never updated
// or deleted after write.
type EntryRepository interface {
	Append(ctx context.Context, e *Entry) error
	ListBySubject(ctx context.Context, subjectCode string, from, to time.Time) ([]*Entry, error)
}

// AlertRepository persists security alerts.
type AlertRepository interface {
	Create(ctx context.Context, a *Alert) error
	GetByID(ctx context.Context, id uuid.UUID) (*Alert, error)

	// Acknowledge moves open -> acknowledged in one conditional statement.
	// pgx.ErrNoRows when the alert is already acknowledged or absent.
	Acknowledge(ctx context.Context, id uuid.UUID, actorID string, at time.Time) (*Alert, error)

	List(ctx context.Context, page pagination.Params) ([]*Alert, error)
}
