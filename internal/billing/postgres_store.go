package billing

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists charges in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-backed charge store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const chargeColumns = `id, tenant_id, amount, due_date, status, days_overdue,
	payment_method, payment_ref, paid_at, cancelled_at, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, c *Charge) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO charges (id, tenant_id, amount, due_date, status, days_overdue, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.TenantID, c.Amount, c.DueDate, string(c.Status), c.DaysOverdue,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateCharge
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Charge, error) {
	return p.scanCharge(p.db.QueryRowContext(ctx, `
		SELECT `+chargeColumns+` FROM charges WHERE id = $1`, id))
}

func (p *PostgresStore) GetForCycle(ctx context.Context, tenantID string, dueDate time.Time) (*Charge, error) {
	return p.scanCharge(p.db.QueryRowContext(ctx, `
		SELECT `+chargeColumns+` FROM charges
		WHERE tenant_id = $1 AND due_date = $2::date`, tenantID, dueDate))
}

func (p *PostgresStore) Update(ctx context.Context, c *Charge) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE charges SET status = $1, days_overdue = $2, payment_method = $3,
			payment_ref = $4, paid_at = $5, cancelled_at = $6, updated_at = $7
		WHERE id = $8`,
		string(c.Status), c.DaysOverdue, nullableString(string(c.PaymentMethod)),
		nullableString(c.PaymentRef), c.PaidAt, c.CancelledAt, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrChargeNotFound
	}
	return nil
}

func (p *PostgresStore) ListOpen(ctx context.Context) ([]*Charge, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+chargeColumns+` FROM charges
		WHERE status IN ('pending', 'overdue')
		ORDER BY due_date ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return p.collectCharges(rows)
}

func (p *PostgresStore) ListByTenant(ctx context.Context, tenantID string) ([]*Charge, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+chargeColumns+` FROM charges
		WHERE tenant_id = $1
		ORDER BY due_date DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return p.collectCharges(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (p *PostgresStore) scanCharge(row rowScanner) (*Charge, error) {
	var c Charge
	var method, ref sql.NullString
	err := row.Scan(
		&c.ID, &c.TenantID, &c.Amount, &c.DueDate, &c.Status, &c.DaysOverdue,
		&method, &ref, &c.PaidAt, &c.CancelledAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrChargeNotFound
	}
	if err != nil {
		return nil, err
	}
	c.PaymentMethod = PaymentMethod(method.String)
	c.PaymentRef = ref.String
	return &c, nil
}

func (p *PostgresStore) collectCharges(rows *sql.Rows) ([]*Charge, error) {
	var out []*Charge
	for rows.Next() {
		c, err := p.scanCharge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Migrate creates the charges table (used in dev/test; prod uses migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS charges (
			id             TEXT PRIMARY KEY,
			tenant_id      TEXT NOT NULL REFERENCES tenants(id),
			amount         NUMERIC(12,2) NOT NULL,
			due_date       DATE NOT NULL,
			status         TEXT NOT NULL DEFAULT 'pending',
			days_overdue   INTEGER NOT NULL DEFAULT 0,
			payment_method TEXT,
			payment_ref    TEXT,
			paid_at        TIMESTAMPTZ,
			cancelled_at   TIMESTAMPTZ,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_charges_tenant_due_date ON charges (tenant_id, due_date);
		CREATE INDEX IF NOT EXISTS idx_charges_status ON charges (status) WHERE status IN ('pending', 'overdue');
	`)
	return err
}
