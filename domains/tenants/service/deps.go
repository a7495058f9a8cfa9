package service

import (
	"context"
	"time"
)

// Repository abstracts tenant registry persistence.
type Repository interface {
	Create(ctx context.Context, t Tenant) (Tenant, error)
	Update(ctx context.Context, t Tenant) (Tenant, error)
	Get(ctx context.Context, id string) (Tenant, error)
	FindBySubdomain(ctx context.Context, subdomain string) (Tenant, error)
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	StatusCounts(ctx context.Context) (map[Status]int, int, error)
}

// AuditEntry is one record of a lifecycle action against a tenant.
type AuditEntry struct {
	TenantID  string
	Action    string
	Status    string
	Message   string
	Details   map[string]any
	Duration  time.Duration
	CreatedAt time.Time
}

// AuditLog records lifecycle actions. Implementations must be append-only;
// a failed write is logged by the caller but never fails the action itself.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
	// List returns up to limit entries for one tenant, oldest first.
	List(ctx context.Context, tenantID string, limit int) ([]AuditEntry, error)
}

// DatabaseProvisioner creates and destroys per-tenant databases and roles
// on the shared Postgres cluster.
type DatabaseProvisioner interface {
	CreateDatabase(ctx context.Context, dbName, dbUser, password string) error
	DropDatabase(ctx context.Context, dbName, dbUser string) error
}

// StackParams carries everything the orchestrator needs to render and
// deploy one tenant stack.
type StackParams struct {
	TenantID   string
	Subdomain  string
	SecretKey  string
	DBName     string
	DBUser     string
	DBPassword string
}

// StackOrchestrator drives the container platform that runs tenant
// application stacks.
type StackOrchestrator interface {
	Deploy(ctx context.Context, params StackParams) error
	Remove(ctx context.Context, tenantID string) error
	Scale(ctx context.Context, tenantID string, replicas int) error
	// WaitHealthy blocks until the tenant's web service reports at least
	// one running task or the deadline passes. Returns false on timeout.
	WaitHealthy(ctx context.Context, tenantID string) (bool, error)
	RunMigrations(ctx context.Context, tenantID string) error
}
