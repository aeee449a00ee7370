package events

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caregate/caregate/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type storePG struct{ pool *pgxpool.Pool }

func NewStorePG(pool *pgxpool.Pool) Store { return &storePG{pool: pool} }

func (s *storePG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return s.pool
}

const eventCols = `seq, id, kind, subject_code, entity_id, payload, occurred_at`

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	err := row.Scan(&e.Seq, &e.ID, &e.Kind, &e.SubjectCode, &e.EntityID, &e.Payload, &e.OccurredAt)
	return &e, err
}

func (s *storePG) Append(ctx context.Context, e *Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return s.conn(ctx).QueryRow(ctx, `
		INSERT INTO events (id, kind, subject_code, entity_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq`,
		e.ID, e.Kind, e.SubjectCode, e.EntityID, e.Payload, e.OccurredAt).Scan(&e.Seq)
}

func (s *storePG) ListBySubject(ctx context.Context, subjectCode string, afterSeq int64, limit int) ([]*Event, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT `+eventCols+` FROM events
		WHERE subject_code = $1 AND seq > $2
		ORDER BY seq ASC LIMIT $3`,
		subjectCode, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *storePG) List(ctx context.Context, afterSeq int64, limit int) ([]*Event, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT `+eventCols+` FROM events
		WHERE seq > $1
		ORDER BY seq ASC LIMIT $2`,
		afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]*Event, error) {
	var items []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
