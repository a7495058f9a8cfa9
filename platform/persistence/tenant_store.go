package persistence

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// TenantRecord mirrors one row of the tenants table.
type TenantRecord struct {
	ID              string     `db:"id"`
	Subdomain       string     `db:"subdomain"`
	Name            *string    `db:"name"`
	OwnerEmail      *string    `db:"owner_email"`
	OwnerID         *string    `db:"owner_id"`
	DBName          string     `db:"db_name"`
	DBUser          string     `db:"db_user"`
	DBPasswordEnc   *string    `db:"db_password_enc"`
	SecretKeyEnc    *string    `db:"secret_key_enc"`
	Status          string     `db:"status"`
	Plan            string     `db:"plan"`
	CPULimit        string     `db:"cpu_limit"`
	MemoryLimit     string     `db:"memory_limit"`
	SuspendReason   *string    `db:"suspend_reason"`
	CreatedAt       time.Time  `db:"created_at"`
	ActivatedAt     *time.Time `db:"activated_at"`
	SuspendedAt     *time.Time `db:"suspended_at"`
	DeletedAt       *time.Time `db:"deleted_at"`
	TournamentCount int        `db:"tournament_count"`
	TotalRequests   int64      `db:"total_requests"`
}

const tenantColumns = `id, subdomain, name, owner_email, owner_id, db_name, db_user,
	db_password_enc, secret_key_enc, status, plan, cpu_limit, memory_limit,
	suspend_reason, created_at, activated_at, suspended_at, deleted_at,
	tournament_count, total_requests`

// TenantStore provides access to the tenants table.
type TenantStore struct {
	pool *pgxpool.Pool
}

// NewTenantStore creates a store; assumes bootstrap already created the table.
func NewTenantStore(pool *pgxpool.Pool) (*TenantStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &TenantStore{pool: pool}, nil
}

// Insert adds a new tenant row. A duplicate subdomain surfaces as the
// underlying unique-violation error for the repo layer to map.
func (s *TenantStore) Insert(ctx context.Context, rec TenantRecord) (TenantRecord, error) {
	if rec.ID == "" {
		return TenantRecord{}, errors.New("tenant id is required")
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO tenants (
			id, subdomain, name, owner_email, owner_id, db_name, db_user,
			db_password_enc, secret_key_enc, status, plan, cpu_limit, memory_limit,
			suspend_reason, created_at, activated_at, suspended_at, deleted_at,
			tournament_count, total_requests
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		RETURNING `+tenantColumns,
		rec.ID, rec.Subdomain, rec.Name, rec.OwnerEmail, rec.OwnerID,
		rec.DBName, rec.DBUser, rec.DBPasswordEnc, rec.SecretKeyEnc,
		rec.Status, rec.Plan, rec.CPULimit, rec.MemoryLimit, rec.SuspendReason,
		rec.CreatedAt, rec.ActivatedAt, rec.SuspendedAt, rec.DeletedAt,
		rec.TournamentCount, rec.TotalRequests,
	)
	return scanTenantRecord(row)
}

// Update persists the mutable lifecycle fields of a tenant.
func (s *TenantStore) Update(ctx context.Context, rec TenantRecord) (TenantRecord, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE tenants SET
			name = $2, owner_email = $3, owner_id = $4,
			db_password_enc = $5, secret_key_enc = $6,
			status = $7, plan = $8, suspend_reason = $9,
			activated_at = $10, suspended_at = $11, deleted_at = $12,
			tournament_count = $13, total_requests = $14
		WHERE id = $1
		RETURNING `+tenantColumns,
		rec.ID, rec.Name, rec.OwnerEmail, rec.OwnerID,
		rec.DBPasswordEnc, rec.SecretKeyEnc,
		rec.Status, rec.Plan, rec.SuspendReason,
		rec.ActivatedAt, rec.SuspendedAt, rec.DeletedAt,
		rec.TournamentCount, rec.TotalRequests,
	)
	return scanTenantRecord(row)
}

// GetByID fetches a tenant by its derived ID.
func (s *TenantStore) GetByID(ctx context.Context, id string) (TenantRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	return scanTenantRecord(row)
}

// GetBySubdomain fetches a tenant by subdomain.
func (s *TenantStore) GetBySubdomain(ctx context.Context, subdomain string) (TenantRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE subdomain = $1`, subdomain)
	return scanTenantRecord(row)
}

// List returns a page of tenants with an optional status filter plus the
// unfiltered-within-status total.
func (s *TenantStore) List(ctx context.Context, status *string, limit, offset int) ([]TenantRecord, int, error) {
	where := ""
	args := []any{}
	if status != nil {
		where = " WHERE status = $1"
		args = append(args, *status)
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM tenants"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + tenantColumns + " FROM tenants" + where +
		" ORDER BY created_at, id" +
		" LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []TenantRecord
	for rows.Next() {
		rec, err := scanTenantRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

// StatusCounts aggregates tenants and their tournament counters by status.
func (s *TenantStore) StatusCounts(ctx context.Context) (map[string]int, int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(tournament_count), 0) FROM tenants GROUP BY status`)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	tournaments := 0
	for rows.Next() {
		var status string
		var n, sum int
		if err := rows.Scan(&status, &n, &sum); err != nil {
			return nil, 0, err
		}
		counts[status] = n
		tournaments += sum
	}
	return counts, tournaments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenantRecord(row rowScanner) (TenantRecord, error) {
	var rec TenantRecord
	err := row.Scan(
		&rec.ID, &rec.Subdomain, &rec.Name, &rec.OwnerEmail, &rec.OwnerID,
		&rec.DBName, &rec.DBUser, &rec.DBPasswordEnc, &rec.SecretKeyEnc,
		&rec.Status, &rec.Plan, &rec.CPULimit, &rec.MemoryLimit, &rec.SuspendReason,
		&rec.CreatedAt, &rec.ActivatedAt, &rec.SuspendedAt, &rec.DeletedAt,
		&rec.TournamentCount, &rec.TotalRequests,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return TenantRecord{}, ErrNotFound
	}
	if err != nil {
		return TenantRecord{}, err
	}
	return rec, nil
}
