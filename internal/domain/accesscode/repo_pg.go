package accesscode

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

// =========== PatientCode Repository ===========

type patientCodeRepoPG struct{ pool *pgxpool.Pool }

func NewPatientCodeRepoPG(pool *pgxpool.Pool) PatientCodeRepository {
	return &patientCodeRepoPG{pool: pool}
}

func (r *patientCodeRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const patientCodeCols = `code, owner_id, issued_at, expires_at, active`

func scanPatientCode(row pgx.Row) (*PatientCode, error) {
	var c PatientCode
	err := row.Scan(&c.Code, &c.OwnerID, &c.IssuedAt, &c.ExpiresAt, &c.Active)
	return &c, err
}

// Replace retires the owner's current active code and inserts the new one
// in one transaction. The partial unique index on (owner_id) WHERE active
// makes two racing issuers serialize instead of both succeeding.
func (r *patientCodeRepoPG) Replace(ctx context.Context, c *PatientCode) error {
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		tx := db.TxFromContext(ctx)
		if _, err := tx.Exec(ctx,
			`UPDATE patient_codes SET active = FALSE WHERE owner_id = $1 AND active`,
			c.OwnerID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO patient_codes (code, owner_id, issued_at, expires_at, active)
			VALUES ($1, $2, $3, $4, TRUE)`,
			c.Code, c.OwnerID, c.IssuedAt, c.ExpiresAt)
		return err
	})
}

func (r *patientCodeRepoPG) GetByCode(ctx context.Context, code string) (*PatientCode, error) {
	return scanPatientCode(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCodeCols+` FROM patient_codes WHERE code = $1`, code))
}

func (r *patientCodeRepoPG) GetActiveByOwner(ctx context.Context, ownerID uuid.UUID) (*PatientCode, error) {
	return scanPatientCode(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCodeCols+` FROM patient_codes WHERE owner_id = $1 AND active`, ownerID))
}

// =========== ProfessionalCode Repository ===========

type professionalCodeRepoPG struct{ pool *pgxpool.Pool }

func NewProfessionalCodeRepoPG(pool *pgxpool.Pool) ProfessionalCodeRepository {
	return &professionalCodeRepoPG{pool: pool}
}

func (r *professionalCodeRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const professionalCodeCols = `code, professional_id, profession, country, issued_at, expires_at, active`

func scanProfessionalCode(row pgx.Row) (*ProfessionalCode, error) {
	var c ProfessionalCode
	err := row.Scan(&c.Code, &c.ProfessionalID, &c.Profession, &c.Country, &c.IssuedAt, &c.ExpiresAt, &c.Active)
	return &c, err
}

func (r *professionalCodeRepoPG) Replace(ctx context.Context, c *ProfessionalCode) error {
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		tx := db.TxFromContext(ctx)
		if _, err := tx.Exec(ctx,
			`UPDATE professional_codes SET active = FALSE WHERE professional_id = $1 AND active`,
			c.ProfessionalID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO professional_codes (code, professional_id, profession, country, issued_at, expires_at, active)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE)`,
			c.Code, c.ProfessionalID, c.Profession, c.Country, c.IssuedAt, c.ExpiresAt)
		return err
	})
}

func (r *professionalCodeRepoPG) GetByCode(ctx context.Context, code string) (*ProfessionalCode, error) {
	return scanProfessionalCode(r.conn(ctx).QueryRow(ctx,
		`SELECT `+professionalCodeCols+` FROM professional_codes WHERE code = $1`, code))
}

func (r *professionalCodeRepoPG) GetActiveByProfessional(ctx context.Context, professionalID uuid.UUID) (*ProfessionalCode, error) {
	return scanProfessionalCode(r.conn(ctx).QueryRow(ctx,
		`SELECT `+professionalCodeCols+` FROM professional_codes WHERE professional_id = $1 AND active`, professionalID))
}
