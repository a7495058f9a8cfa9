package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProvisioningLogRecord is one entry in the append-only audit trail.
// TenantID is a plain value, not a foreign key, so entries outlive the
// tenant row they describe.
type ProvisioningLogRecord struct {
	ID         uuid.UUID
	TenantID   string
	Action     string
	Status     string
	Message    string
	Details    map[string]any
	DurationMS int64
	CreatedAt  time.Time
}

// ProvisioningLogStore persists audit entries for tenant lifecycle actions.
type ProvisioningLogStore struct {
	pool *pgxpool.Pool
}

func NewProvisioningLogStore(pool *pgxpool.Pool) (*ProvisioningLogStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &ProvisioningLogStore{pool: pool}, nil
}

// Append inserts one entry. Each call is its own statement so a failing
// lifecycle step never loses the entries recorded before it.
func (s *ProvisioningLogStore) Append(ctx context.Context, rec ProvisioningLogRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var details []byte
	if rec.Details != nil {
		var err error
		details, err = json.Marshal(rec.Details)
		if err != nil {
			return err
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO provisioning_logs (id, tenant_id, action, status, message, details, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.TenantID, rec.Action, rec.Status, rec.Message, details, rec.DurationMS, rec.CreatedAt,
	)
	return err
}

// ListByTenant returns the trail for one tenant, oldest first.
func (s *ProvisioningLogStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]ProvisioningLogRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, action, status, message, COALESCE(details, 'null'::jsonb), COALESCE(duration_ms, 0), created_at
		FROM provisioning_logs
		WHERE tenant_id = $1
		ORDER BY created_at
		LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProvisioningLogRecord
	for rows.Next() {
		var rec ProvisioningLogRecord
		var details []byte
		var message *string
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.Action, &rec.Status, &message, &details, &rec.DurationMS, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if message != nil {
			rec.Message = *message
		}
		if len(details) > 0 && string(details) != "null" {
			if err := json.Unmarshal(details, &rec.Details); err != nil {
				return nil, err
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
