package consultation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caregate/caregate/internal/platform/apperr"
	"github.com/caregate/caregate/internal/platform/db"
	"github.com/caregate/caregate/pkg/pagination"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

const uniqueViolation = "23505"

// =========== Session Repository ===========

type sessionRepoPG struct{ pool *pgxpool.Pool }

func NewSessionRepoPG(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepoPG{pool: pool}
}

func (r *sessionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const sessionCols = `id, permission_id, patient_code, professional_code, status, fee_status,
	fee_amount, payment_intent_id, started_at, ended_at, duration_minutes, notes`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.PermissionID, &s.PatientCode, &s.ProfessionalCode,
		&s.Status, &s.FeeStatus, &s.FeeAmount, &s.PaymentIntentID,
		&s.StartedAt, &s.EndedAt, &s.DurationMinutes, &s.Notes)
	return &s, err
}

// Create relies on the partial unique index on (permission_id) WHERE status
// IN ('waiting','active') to reject a second live session.
func (r *sessionRepoPG) Create(ctx context.Context, s *Session) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO sessions (id, permission_id, patient_code, professional_code,
			status, fee_status, fee_amount, payment_intent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.PermissionID, s.PatientCode, s.ProfessionalCode,
		s.Status, s.FeeStatus, s.FeeAmount, s.PaymentIntentID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperr.Wrap(apperr.DuplicateSession, err,
			"permission %s already has a waiting or active session", s.PermissionID)
	}
	return err
}

func (r *sessionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	return scanSession(r.conn(ctx).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM sessions WHERE id = $1`, id))
}

func (r *sessionRepoPG) Activate(ctx context.Context, id uuid.UUID, startedAt time.Time) (*Session, error) {
	return scanSession(r.conn(ctx).QueryRow(ctx, `
		UPDATE sessions
		SET status = 'active', fee_status = 'paid', started_at = $2
		WHERE id = $1 AND status = 'waiting'
		RETURNING `+sessionCols, id, startedAt))
}

func (r *sessionRepoPG) MarkFeeFailed(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE sessions SET fee_status = 'failed' WHERE id = $1 AND status = 'waiting'`, id)
	return err
}

func (r *sessionRepoPG) End(ctx context.Context, id uuid.UUID, endedAt time.Time, durationMinutes int, notes string) (*Session, error) {
	return scanSession(r.conn(ctx).QueryRow(ctx, `
		UPDATE sessions
		SET status = 'ended', ended_at = $2, duration_minutes = $3, notes = $4
		WHERE id = $1 AND status = 'active'
		RETURNING `+sessionCols, id, endedAt, durationMinutes, notes))
}

func (r *sessionRepoPG) ListByProfessionalCode(ctx context.Context, code string, page pagination.Params) ([]*Session, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+sessionCols+` FROM sessions
		WHERE professional_code = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3`, code, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// =========== Earnings Repository ===========

type earningsRepoPG struct{ pool *pgxpool.Pool }

func NewEarningsRepoPG(pool *pgxpool.Pool) EarningsRepository {
	return &earningsRepoPG{pool: pool}
}

func (r *earningsRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const earningsCols = `id, session_id, professional_code, gross_amount, platform_fee,
	net_amount, payout_status, created_at, processed_at`

func scanEarnings(row pgx.Row) (*Earnings, error) {
	var e Earnings
	err := row.Scan(&e.ID, &e.SessionID, &e.ProfessionalCode, &e.GrossAmount,
		&e.PlatformFee, &e.NetAmount, &e.PayoutStatus, &e.CreatedAt, &e.ProcessedAt)
	return &e, err
}

func (r *earningsRepoPG) CreateIdempotent(ctx context.Context, e *Earnings) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO earnings (id, session_id, professional_code, gross_amount,
			platform_fee, net_amount, payout_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id) DO NOTHING`,
		e.ID, e.SessionID, e.ProfessionalCode, e.GrossAmount,
		e.PlatformFee, e.NetAmount, e.PayoutStatus, e.CreatedAt)
	return err
}

func (r *earningsRepoPG) GetBySessionID(ctx context.Context, sessionID uuid.UUID) (*Earnings, error) {
	return scanEarnings(r.conn(ctx).QueryRow(ctx,
		`SELECT `+earningsCols+` FROM earnings WHERE session_id = $1`, sessionID))
}

func (r *earningsRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Earnings, error) {
	return scanEarnings(r.conn(ctx).QueryRow(ctx,
		`SELECT `+earningsCols+` FROM earnings WHERE id = $1`, id))
}

func (r *earningsRepoPG) MarkPayoutProcessed(ctx context.Context, id uuid.UUID, at time.Time) (*Earnings, error) {
	return scanEarnings(r.conn(ctx).QueryRow(ctx, `
		UPDATE earnings
		SET payout_status = 'processed', processed_at = $2
		WHERE id = $1 AND payout_status = 'pending'
		RETURNING `+earningsCols, id, at))
}

func (r *earningsRepoPG) ListByProfessionalCode(ctx context.Context, code string, page pagination.Params) ([]*Earnings, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+earningsCols+` FROM earnings
		WHERE professional_code = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, code, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Earnings
	for rows.Next() {
		e, err := scanEarnings(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
