package repo

import (
	"context"
	"time"

	"github.com/nekotab/control-plane/domains/tenants/service"
	"github.com/nekotab/control-plane/platform/persistence"
)

// PostgresAuditLog writes lifecycle actions to the provisioning_logs table.
type PostgresAuditLog struct {
	store *persistence.ProvisioningLogStore
}

// NewPostgresAuditLog constructs a PostgresAuditLog.
func NewPostgresAuditLog(store *persistence.ProvisioningLogStore) *PostgresAuditLog {
	if store == nil {
		panic("provisioning log store is required")
	}
	return &PostgresAuditLog{store: store}
}

func (l *PostgresAuditLog) Append(ctx context.Context, entry service.AuditEntry) error {
	return l.store.Append(ctx, persistence.ProvisioningLogRecord{
		TenantID:   entry.TenantID,
		Action:     entry.Action,
		Status:     entry.Status,
		Message:    entry.Message,
		Details:    entry.Details,
		DurationMS: entry.Duration.Milliseconds(),
	})
}

func (l *PostgresAuditLog) List(ctx context.Context, tenantID string, limit int) ([]service.AuditEntry, error) {
	recs, err := l.store.ListByTenant(ctx, tenantID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]service.AuditEntry, 0, len(recs))
	for _, rec := range recs {
		out = append(out, service.AuditEntry{
			TenantID:  rec.TenantID,
			Action:    rec.Action,
			Status:    rec.Status,
			Message:   rec.Message,
			Details:   rec.Details,
			Duration:  time.Duration(rec.DurationMS) * time.Millisecond,
			CreatedAt: rec.CreatedAt,
		})
	}
	return out, nil
}

var _ service.AuditLog = (*PostgresAuditLog)(nil)
