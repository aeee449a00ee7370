package events

import "context"

// Store persists the ordered event log.
type Store interface {
	Append(ctx context.Context, e *Event) error
	ListBySubject(ctx context.Context, subjectCode string, afterSeq int64, limit int) ([]*Event, error)
	List(ctx context.Context, afterSeq int64, limit int) ([]*Event, error)
}
