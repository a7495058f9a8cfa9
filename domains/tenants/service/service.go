package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nekotab/control-plane/platform/metrics"
	"github.com/nekotab/control-plane/platform/secrets"
	"github.com/nekotab/control-plane/platform/tenant"
)

// Status is the tenant lifecycle state.
type Status string

const (
	StatusPending      Status = "pending"
	StatusProvisioning Status = "provisioning"
	StatusActive       Status = "active"
	StatusSuspended    Status = "suspended"
	StatusDeleted      Status = "deleted"
	StatusError        Status = "error"
)

// StatusFromString converts a stored string to Status; defaults to pending
// on unknown input.
func StatusFromString(s string) Status {
	switch Status(s) {
	case StatusPending, StatusProvisioning, StatusActive, StatusSuspended, StatusDeleted, StatusError:
		return Status(s)
	default:
		return StatusPending
	}
}

// Errors returned by the service layer.
var (
	ErrNotFound           = errors.New("tenant not found")
	ErrDuplicateSubdomain = errors.New("subdomain already registered")
	ErrInvalidTransition  = errors.New("invalid tenant state transition")
)

// ProvisioningError reports which pipeline step failed. The tenant is left
// in the error state and the step is recorded in the audit trail.
type ProvisioningError struct {
	Step string
	Err  error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning step %s: %v", e.Step, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// Tenant is the domain model for one registry entry. Credential fields
// hold ciphertext only; plaintext never touches the registry.
type Tenant struct {
	ID              string
	Subdomain       string
	Name            *string
	OwnerEmail      *string
	OwnerID         *string
	DBName          string
	DBUser          string
	DBPasswordEnc   *string
	SecretKeyEnc    *string
	Status          Status
	Plan            string
	CPULimit        string
	MemoryLimit     string
	SuspendReason   *string
	CreatedAt       time.Time
	ActivatedAt     *time.Time
	SuspendedAt     *time.Time
	DeletedAt       *time.Time
	TournamentCount int
	TotalRequests   int64
}

// URL returns the tenant's public entry point under the platform domain.
func (t Tenant) URL(domain string) string {
	return tenant.URL(t.Subdomain, domain)
}

// ProvisionInput is the request to provision a new tenant.
type ProvisionInput struct {
	Subdomain  string
	Name       *string
	OwnerEmail *string
	OwnerID    *string
	Plan       string
}

// ListOptions captures filters and pagination.
type ListOptions struct {
	Page     int
	PageSize int
	Status   *Status
}

// ListResult wraps paginated tenants.
type ListResult struct {
	Tenants    []Tenant
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// Stats is the aggregate view served by the stats endpoint.
type Stats struct {
	Total            int
	ByStatus         map[Status]int
	TotalTournaments int
}

// Config holds the tunables the service needs beyond its dependencies.
type Config struct {
	Reserved    map[string]struct{}
	CPULimit    string
	MemoryLimit string
	DefaultPlan string
	// TeardownSettle is how long Delete waits after removing the stack
	// before dropping the database, giving the platform time to stop
	// tasks and release connections. Zero selects the 10s default; a
	// negative value disables the wait.
	TeardownSettle time.Duration
}

// Service implements the tenant lifecycle: provision, suspend, resume,
// delete, plus read paths.
type Service struct {
	repo   Repository
	audit  AuditLog
	db     DatabaseProvisioner
	stack  StackOrchestrator
	box    *secrets.Box
	logger *zap.Logger
	cfg    Config

	now func() time.Time
}

// New constructs a Service. All dependencies are required.
func New(repo Repository, audit AuditLog, db DatabaseProvisioner, stack StackOrchestrator, box *secrets.Box, logger *zap.Logger, cfg Config) *Service {
	if repo == nil || audit == nil || db == nil || stack == nil || box == nil {
		panic("tenants service: all dependencies are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Reserved == nil {
		cfg.Reserved = tenant.ReservedSet(tenant.DefaultReservedSubdomains)
	}
	if cfg.CPULimit == "" {
		cfg.CPULimit = "1.0"
	}
	if cfg.MemoryLimit == "" {
		cfg.MemoryLimit = "512M"
	}
	if cfg.DefaultPlan == "" {
		cfg.DefaultPlan = "free"
	}
	if cfg.TeardownSettle == 0 {
		cfg.TeardownSettle = 10 * time.Second
	}
	return &Service{
		repo:   repo,
		audit:  audit,
		db:     db,
		stack:  stack,
		box:    box,
		logger: logger,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Validate checks the subdomain without side effects. Handlers call it
// before accepting a provisioning request.
func (s *Service) Validate(subdomain string) error {
	return tenant.Validate(subdomain, s.cfg.Reserved)
}

// CheckAvailable returns ErrDuplicateSubdomain if the subdomain is taken.
// The unique index on the registry remains the authoritative guard; this
// check only gives callers a synchronous answer.
func (s *Service) CheckAvailable(ctx context.Context, subdomain string) error {
	_, err := s.repo.FindBySubdomain(ctx, subdomain)
	if err == nil {
		return ErrDuplicateSubdomain
	}
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// Provision runs the full pipeline for one tenant: persist the registry
// record, create the database, deploy the stack, wait for health, run
// migrations, then activate. Any failure flips the tenant to the error
// state; already-created resources are kept for operator inspection.
func (s *Service) Provision(ctx context.Context, input ProvisionInput) (Tenant, error) {
	started := s.now()

	if err := s.Validate(input.Subdomain); err != nil {
		return Tenant{}, err
	}

	id := tenant.GenerateID(input.Subdomain)
	log := s.logger.With(zap.String("tenant_id", id), zap.String("subdomain", input.Subdomain))

	dbPassword, err := secrets.NewDBPassword()
	if err != nil {
		return Tenant{}, fmt.Errorf("generate db password: %w", err)
	}
	secretKey, err := secrets.NewAppSecret()
	if err != nil {
		return Tenant{}, fmt.Errorf("generate secret key: %w", err)
	}
	passwordEnc, err := s.box.Encrypt(dbPassword)
	if err != nil {
		return Tenant{}, fmt.Errorf("encrypt db password: %w", err)
	}
	secretEnc, err := s.box.Encrypt(secretKey)
	if err != nil {
		return Tenant{}, fmt.Errorf("encrypt secret key: %w", err)
	}

	plan := input.Plan
	if plan == "" {
		plan = s.cfg.DefaultPlan
	}

	t := Tenant{
		ID:            id,
		Subdomain:     input.Subdomain,
		Name:          input.Name,
		OwnerEmail:    input.OwnerEmail,
		OwnerID:       input.OwnerID,
		DBName:        tenant.DBName(id),
		DBUser:        tenant.DBUser(id),
		DBPasswordEnc: &passwordEnc,
		SecretKeyEnc:  &secretEnc,
		Status:        StatusProvisioning,
		Plan:          plan,
		CPULimit:      s.cfg.CPULimit,
		MemoryLimit:   s.cfg.MemoryLimit,
		CreatedAt:     started,
	}

	t, err = s.repo.Create(ctx, t)
	if err != nil {
		if errors.Is(err, ErrDuplicateSubdomain) {
			return Tenant{}, ErrDuplicateSubdomain
		}
		return Tenant{}, fmt.Errorf("persist tenant: %w", err)
	}

	s.appendAudit(ctx, AuditEntry{
		TenantID: id,
		Action:   "create",
		Status:   "started",
		Details:  map[string]any{"subdomain": input.Subdomain, "plan": plan},
	})

	if err := s.db.CreateDatabase(ctx, t.DBName, t.DBUser, dbPassword); err != nil {
		return s.failProvision(ctx, t, started, "create_database", err, log)
	}
	log.Info("tenant database created", zap.String("db_name", t.DBName))

	params := StackParams{
		TenantID:   id,
		Subdomain:  t.Subdomain,
		SecretKey:  secretKey,
		DBName:     t.DBName,
		DBUser:     t.DBUser,
		DBPassword: dbPassword,
	}
	if err := s.stack.Deploy(ctx, params); err != nil {
		return s.failProvision(ctx, t, started, "deploy_stack", err, log)
	}
	log.Info("tenant stack deployed", zap.String("stack", tenant.StackName(id)))

	healthy, err := s.stack.WaitHealthy(ctx, id)
	if err != nil {
		return s.failProvision(ctx, t, started, "health_check", err, log)
	}
	if !healthy {
		return s.failProvision(ctx, t, started, "health_check", errors.New("service did not become healthy in time"), log)
	}

	if err := s.stack.RunMigrations(ctx, id); err != nil {
		return s.failProvision(ctx, t, started, "migrations", err, log)
	}
	log.Info("tenant migrations applied")

	now := s.now()
	t.Status = StatusActive
	t.ActivatedAt = &now
	t, err = s.repo.Update(ctx, t)
	if err != nil {
		return s.failProvision(ctx, t, started, "activate", err, log)
	}

	duration := s.now().Sub(started)
	s.appendAudit(ctx, AuditEntry{
		TenantID: id,
		Action:   "create",
		Status:   "success",
		Message:  "tenant active",
		Duration: duration,
	})
	metrics.ProvisionTotal.WithLabelValues("success").Inc()
	log.Info("tenant provisioned", zap.Duration("duration", duration))

	return t, nil
}

func (s *Service) failProvision(ctx context.Context, t Tenant, started time.Time, step string, cause error, log *zap.Logger) (Tenant, error) {
	t.Status = StatusError
	if _, err := s.repo.Update(ctx, t); err != nil {
		log.Error("mark tenant errored", zap.Error(err))
	}

	s.appendAudit(ctx, AuditEntry{
		TenantID: t.ID,
		Action:   "create",
		Status:   "failed",
		Message:  cause.Error(),
		Details:  map[string]any{"step": step},
		Duration: s.now().Sub(started),
	})
	metrics.ProvisionTotal.WithLabelValues("failed").Inc()
	log.Error("tenant provisioning failed", zap.String("step", step), zap.Error(cause))

	return t, &ProvisioningError{Step: step, Err: cause}
}

// Suspend scales a tenant's stack to zero and marks it suspended. The
// scale call is best-effort: the registry state changes even when the
// platform call fails, so the tenant stops being served either way.
func (s *Service) Suspend(ctx context.Context, id, reason string) (Tenant, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	if t.Status != StatusActive {
		return Tenant{}, fmt.Errorf("suspend from %s: %w", t.Status, ErrInvalidTransition)
	}

	if err := s.stack.Scale(ctx, id, 0); err != nil {
		s.logger.Warn("scale to zero failed, suspending anyway",
			zap.String("tenant_id", id), zap.Error(err))
	}

	now := s.now()
	t.Status = StatusSuspended
	t.SuspendedAt = &now
	if reason != "" {
		t.SuspendReason = &reason
	}
	t, err = s.repo.Update(ctx, t)
	if err != nil {
		return Tenant{}, err
	}

	s.appendAudit(ctx, AuditEntry{
		TenantID: id,
		Action:   "suspend",
		Status:   "success",
		Message:  reason,
	})
	metrics.LifecycleActionTotal.WithLabelValues("suspend", "success").Inc()
	return t, nil
}

// Resume scales a suspended tenant back to one replica and reactivates it.
func (s *Service) Resume(ctx context.Context, id string) (Tenant, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	if t.Status != StatusSuspended {
		return Tenant{}, fmt.Errorf("resume from %s: %w", t.Status, ErrInvalidTransition)
	}

	if err := s.stack.Scale(ctx, id, 1); err != nil {
		s.appendAudit(ctx, AuditEntry{
			TenantID: id,
			Action:   "resume",
			Status:   "failed",
			Message:  err.Error(),
		})
		metrics.LifecycleActionTotal.WithLabelValues("resume", "failed").Inc()
		return Tenant{}, fmt.Errorf("scale up: %w", err)
	}

	t.Status = StatusActive
	t.SuspendedAt = nil
	t.SuspendReason = nil
	t, err = s.repo.Update(ctx, t)
	if err != nil {
		return Tenant{}, err
	}

	s.appendAudit(ctx, AuditEntry{
		TenantID: id,
		Action:   "resume",
		Status:   "success",
	})
	metrics.LifecycleActionTotal.WithLabelValues("resume", "success").Inc()
	return t, nil
}

// Delete tears a tenant down: remove the stack, drop the database and
// role, then soft-delete the registry row. The row is kept so the audit
// trail and derived IDs stay resolvable.
func (s *Service) Delete(ctx context.Context, id string) (Tenant, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	if t.Status == StatusDeleted {
		return Tenant{}, fmt.Errorf("delete from %s: %w", t.Status, ErrInvalidTransition)
	}

	if err := s.stack.Remove(ctx, id); err != nil {
		return s.failLifecycle(ctx, id, "delete", fmt.Errorf("remove stack: %w", err))
	}

	// Stack removal is asynchronous on the platform side; let the tasks
	// stop and drop their connections before the database goes away.
	if s.cfg.TeardownSettle > 0 {
		timer := time.NewTimer(s.cfg.TeardownSettle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return s.failLifecycle(ctx, id, "delete", fmt.Errorf("await stack teardown: %w", ctx.Err()))
		case <-timer.C:
		}
	}

	if err := s.db.DropDatabase(ctx, t.DBName, t.DBUser); err != nil {
		return s.failLifecycle(ctx, id, "delete", fmt.Errorf("drop database: %w", err))
	}

	now := s.now()
	t.Status = StatusDeleted
	t.DeletedAt = &now
	t, err = s.repo.Update(ctx, t)
	if err != nil {
		return Tenant{}, err
	}

	s.appendAudit(ctx, AuditEntry{
		TenantID: id,
		Action:   "delete",
		Status:   "success",
	})
	metrics.LifecycleActionTotal.WithLabelValues("delete", "success").Inc()
	return t, nil
}

func (s *Service) failLifecycle(ctx context.Context, id, action string, cause error) (Tenant, error) {
	s.appendAudit(ctx, AuditEntry{
		TenantID: id,
		Action:   action,
		Status:   "failed",
		Message:  cause.Error(),
	})
	metrics.LifecycleActionTotal.WithLabelValues(action, "failed").Inc()
	return Tenant{}, cause
}

// Get returns a tenant by ID.
func (s *Service) Get(ctx context.Context, id string) (Tenant, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of tenants.
func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	return s.repo.List(ctx, opts)
}

// Stats aggregates registry counts by status.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	counts, tournaments, err := s.repo.StatusCounts(ctx)
	if err != nil {
		return Stats{}, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return Stats{Total: total, ByStatus: counts, TotalTournaments: tournaments}, nil
}

// Audit returns the lifecycle trail for one tenant, oldest first. The
// tenant must exist, though deleted tenants keep their trail.
func (s *Service) Audit(ctx context.Context, id string) ([]AuditEntry, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.audit.List(ctx, id, 100)
}

func (s *Service) appendAudit(ctx context.Context, entry AuditEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Error("append audit entry",
			zap.String("tenant_id", entry.TenantID),
			zap.String("action", entry.Action),
			zap.Error(err))
	}
}
