package permission

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

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const permCols = `id, patient_code, professional_code, allowed_sections, max_consultations,
	used_consultations, status, requested_at, approved_at, expires_at`

func scanPermission(row pgx.Row) (*Permission, error) {
	var (
		p        Permission
		sections []string
	)
	err := row.Scan(&p.ID, &p.PatientCode, &p.ProfessionalCode, &sections,
		&p.MaxConsultations, &p.UsedConsultations, &p.Status,
		&p.RequestedAt, &p.ApprovedAt, &p.ExpiresAt)
	if err != nil {
		return nil, err
	}
	p.AllowedSections = toSections(sections)
	return &p, nil
}

func toStrings(sections []Section) []string {
	out := make([]string, len(sections))
	for i, s := range sections {
		out[i] = string(s)
	}
	return out
}

func toSections(strs []string) []Section {
	out := make([]Section, len(strs))
	for i, s := range strs {
		out[i] = Section(s)
	}
	return out
}

func (r *repoPG) Create(ctx context.Context, p *Permission) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO permissions (id, patient_code, professional_code, allowed_sections,
			max_consultations, used_consultations, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.PatientCode, p.ProfessionalCode, toStrings(p.AllowedSections),
		p.MaxConsultations, p.UsedConsultations, p.Status, p.RequestedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Permission, error) {
	return scanPermission(r.conn(ctx).QueryRow(ctx,
		`SELECT `+permCols+` FROM permissions WHERE id = $1`, id))
}

func (r *repoPG) UpdateFromPending(ctx context.Context, id uuid.UUID, status Status, sections []Section, approvedAt, expiresAt *time.Time) (*Permission, error) {
	return scanPermission(r.conn(ctx).QueryRow(ctx, `
		UPDATE permissions
		SET status = $2, allowed_sections = $3, approved_at = $4, expires_at = $5
		WHERE id = $1 AND status = 'pending'
		RETURNING `+permCols,
		id, status, toStrings(sections), approvedAt, expiresAt))
}

func (r *repoPG) ConsumeQuota(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE permissions
		SET used_consultations = used_consultations + 1
		WHERE id = $1 AND used_consultations < max_consultations`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) ListByPatientCode(ctx context.Context, code string, page pagination.Params) ([]*Permission, error) {
	return r.list(ctx, `patient_code`, code, page)
}

func (r *repoPG) ListByProfessionalCode(ctx context.Context, code string, page pagination.Params) ([]*Permission, error) {
	return r.list(ctx, `professional_code`, code, page)
}

func (r *repoPG) list(ctx context.Context, column, code string, page pagination.Params) ([]*Permission, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+permCols+` FROM permissions
		WHERE `+column+` = $1
		ORDER BY requested_at DESC
		LIMIT $2 OFFSET $3`, code, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
