package tenant

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists tenants and store users in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed tenant store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const tenantColumns = `id, store_name, owner_name, owner_email, owner_phone, status,
	trial_ends_at, monthly_price, approved_by_admin, approved_at, approved_by,
	cancelled_at, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, t *Tenant) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO tenants (id, store_name, owner_name, owner_email, owner_phone, status,
			monthly_price, approved_by_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.StoreName, t.OwnerName, t.OwnerEmail, t.OwnerPhone, string(t.Status),
		t.MonthlyPrice, t.ApprovedByAdmin, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrOwnerEmailTaken
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Tenant, error) {
	return p.scanTenant(p.db.QueryRowContext(ctx, `
		SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
}

func (p *PostgresStore) GetByOwnerEmail(ctx context.Context, email string) (*Tenant, error) {
	return p.scanTenant(p.db.QueryRowContext(ctx, `
		SELECT `+tenantColumns+` FROM tenants WHERE lower(owner_email) = lower($1)`, email))
}

func (p *PostgresStore) Update(ctx context.Context, t *Tenant) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE tenants SET store_name = $1, owner_name = $2, owner_phone = $3, status = $4,
			monthly_price = $5, approved_by_admin = $6, approved_at = $7, approved_by = $8,
			cancelled_at = $9, updated_at = $10
		WHERE id = $11`,
		t.StoreName, t.OwnerName, t.OwnerPhone, string(t.Status),
		t.MonthlyPrice, t.ApprovedByAdmin, t.ApprovedAt, nullableString(t.ApprovedBy),
		t.CancelledAt, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// UpdateStatusIf is the conditional update the billing path uses so a
// concurrently-applied manual action is never clobbered.
func (p *PostgresStore) UpdateStatusIf(ctx context.Context, id string, from, to Status) (bool, error) {
	result, err := p.db.ExecContext(ctx, `
		UPDATE tenants SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		string(to), id, string(from),
	)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (p *PostgresStore) ListByStatus(ctx context.Context, status Status) ([]*Tenant, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+tenantColumns+` FROM tenants WHERE status = $1 ORDER BY created_at`,
		string(status))
	if err != nil {
		return nil, err
	}
	return p.collectTenants(rows)
}

func (p *PostgresStore) ListCancelledBefore(ctx context.Context, cutoff time.Time) ([]*Tenant, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+tenantColumns+` FROM tenants
		WHERE status = 'cancelled' AND cancelled_at IS NOT NULL AND cancelled_at < $1
		ORDER BY cancelled_at`, cutoff)
	if err != nil {
		return nil, err
	}
	return p.collectTenants(rows)
}

func (p *PostgresStore) CreateUser(ctx context.Context, u *StoreUser) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO store_users (id, tenant_id, name, email, role, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.TenantID, u.Name, u.Email, string(u.Role), u.Active, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrUserEmailTaken
		}
		return err
	}
	return nil
}

const userColumns = `id, tenant_id, name, email, role, active, created_at, updated_at`

func (p *PostgresStore) GetUser(ctx context.Context, id string) (*StoreUser, error) {
	return p.scanUser(p.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM store_users WHERE id = $1`, id))
}

func (p *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*StoreUser, error) {
	return p.scanUser(p.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM store_users WHERE lower(email) = lower($1)`, email))
}

func (p *PostgresStore) ListUsers(ctx context.Context, tenantID string) ([]*StoreUser, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM store_users WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []*StoreUser
	for rows.Next() {
		u := &StoreUser{}
		var role string
		if err := rows.Scan(&u.ID, &u.TenantID, &u.Name, &u.Email, &role, &u.Active,
			&u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.Role = Role(role)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (p *PostgresStore) UpdateUser(ctx context.Context, u *StoreUser) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE store_users SET name = $1, role = $2, active = $3, updated_at = $4
		WHERE id = $5`,
		u.Name, string(u.Role), u.Active, u.UpdatedAt, u.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (p *PostgresStore) scanTenant(row rowScanner) (*Tenant, error) {
	t := &Tenant{}
	var (
		status      string
		trialEndsAt sql.NullTime
		approvedBy  sql.NullString
	)
	err := row.Scan(&t.ID, &t.StoreName, &t.OwnerName, &t.OwnerEmail, &t.OwnerPhone, &status,
		&trialEndsAt, &t.MonthlyPrice, &t.ApprovedByAdmin, &t.ApprovedAt, &approvedBy,
		&t.CancelledAt, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Status = Status(status)
	if trialEndsAt.Valid {
		t.TrialEndsAt = trialEndsAt.Time
	}
	if approvedBy.Valid {
		t.ApprovedBy = approvedBy.String
	}
	return t, nil
}

func (p *PostgresStore) scanUser(row rowScanner) (*StoreUser, error) {
	u := &StoreUser{}
	var role string
	err := row.Scan(&u.ID, &u.TenantID, &u.Name, &u.Email, &role, &u.Active,
		&u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = Role(role)
	return u, nil
}

func (p *PostgresStore) collectTenants(rows *sql.Rows) ([]*Tenant, error) {
	defer func() { _ = rows.Close() }()

	var tenants []*Tenant
	for rows.Next() {
		t, err := p.scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Migrate creates the tenant tables (used in dev/test; prod uses migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tenants (
			id                TEXT PRIMARY KEY,
			store_name        TEXT NOT NULL,
			owner_name        TEXT NOT NULL,
			owner_email       TEXT NOT NULL,
			owner_phone       TEXT NOT NULL DEFAULT '',
			status            TEXT NOT NULL DEFAULT 'pending',
			trial_ends_at     DATE NOT NULL DEFAULT (CURRENT_DATE + INTERVAL '7 days'),
			monthly_price     NUMERIC(12,2) NOT NULL DEFAULT 99.90,
			approved_by_admin BOOLEAN NOT NULL DEFAULT FALSE,
			approved_at       TIMESTAMPTZ,
			approved_by       TEXT,
			cancelled_at      TIMESTAMPTZ,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_tenants_owner_email ON tenants (lower(owner_email));
		CREATE INDEX IF NOT EXISTS idx_tenants_status ON tenants (status);
		CREATE TABLE IF NOT EXISTS store_users (
			id         TEXT PRIMARY KEY,
			tenant_id  TEXT NOT NULL REFERENCES tenants(id),
			name       TEXT NOT NULL,
			email      TEXT NOT NULL,
			role       TEXT NOT NULL DEFAULT 'cashier',
			active     BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_store_users_tenant_email ON store_users (tenant_id, lower(email));
		CREATE INDEX IF NOT EXISTS idx_store_users_email ON store_users (lower(email));
	`)
	return err
}

var _ Store = (*PostgresStore)(nil)
