package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caregate/caregate/internal/platform/db"
	"github.com/caregate/caregate/pkg/pagination"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Entry Repository ===========

type entryRepoPG struct{ pool *pgxpool.Pool }

func NewEntryRepoPG(pool *pgxpool.Pool) EntryRepository {
	return &entryRepoPG{pool: pool}
}

func (r *entryRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const entryCols = `id, ts, actor_code, subject_code, action, sections, duration_seconds, suspicious`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.Timestamp, &e.ActorCode, &e.SubjectCode,
		&e.Action, &e.Sections, &e.DurationSeconds, &e.Suspicious)
	return &e, err
}

func (r *entryRepoPG) Append(ctx context.Context, e *Entry) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO audit_log (id, ts, actor_code, subject_code, action, sections,
			duration_seconds, suspicious)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Timestamp, e.ActorCode, e.SubjectCode, e.Action, e.Sections,
		e.DurationSeconds, e.Suspicious)
	return err
}

func (r *entryRepoPG) ListBySubject(ctx context.Context, subjectCode string, from, to time.Time) ([]*Entry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+entryCols+` FROM audit_log
		WHERE subject_code = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts`, subjectCode, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =========== Alert Repository ===========

type alertRepoPG struct{ pool *pgxpool.Pool }

func NewAlertRepoPG(pool *pgxpool.Pool) AlertRepository {
	return &alertRepoPG{pool: pool}
}

func (r *alertRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const alertCols = `id, severity, alert_type, description, source_log_id, subject_code,
	acknowledged, acknowledged_by, acknowledged_at, created_at`

func scanAlert(row pgx.Row) (*Alert, error) {
	var a Alert
	err := row.Scan(&a.ID, &a.Severity, &a.AlertType, &a.Description, &a.SourceLogID,
		&a.SubjectCode, &a.Acknowledged, &a.AcknowledgedBy, &a.AcknowledgedAt, &a.CreatedAt)
	return &a, err
}

func (r *alertRepoPG) Create(ctx context.Context, a *Alert) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO security_alerts (id, severity, alert_type, description, source_log_id,
			subject_code, acknowledged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)`,
		a.ID, a.Severity, a.AlertType, a.Description, a.SourceLogID,
		a.SubjectCode, a.CreatedAt)
	return err
}

func (r *alertRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Alert, error) {
	return scanAlert(r.conn(ctx).QueryRow(ctx,
		`SELECT `+alertCols+` FROM security_alerts WHERE id = $1`, id))
}

func (r *alertRepoPG) Acknowledge(ctx context.Context, id uuid.UUID, actorID string, at time.Time) (*Alert, error) {
	return scanAlert(r.conn(ctx).QueryRow(ctx, `
		UPDATE security_alerts
		SET acknowledged = TRUE, acknowledged_by = $2, acknowledged_at = $3
		WHERE id = $1 AND NOT acknowledged
		RETURNING `+alertCols, id, actorID, at))
}

func (r *alertRepoPG) List(ctx context.Context, page pagination.Params) ([]*Alert, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+alertCols+` FROM security_alerts
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
