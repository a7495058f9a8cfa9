package provisioning

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nekotab/control-plane/domains/tenants/service"
	"github.com/nekotab/control-plane/platform/swarm"
	"github.com/nekotab/control-plane/platform/tenant"
)

// SwarmConfig carries the deployment knobs the orchestrator needs beyond
// per-tenant parameters.
type SwarmConfig struct {
	Domain          string
	RegistryURL     string
	ImageTag        string
	CPULimit        string
	MemoryLimit     string
	ComposeTemplate string // rendered template text, not a path
	HealthTimeout   time.Duration
	HealthInterval  time.Duration
	MigrateCommand  []string
}

// SwarmOrchestrator implements service.StackOrchestrator on Docker Swarm.
type SwarmOrchestrator struct {
	cli    *swarm.CLI
	cfg    SwarmConfig
	logger *zap.Logger
}

// NewSwarmOrchestrator constructs a SwarmOrchestrator.
func NewSwarmOrchestrator(cli *swarm.CLI, cfg SwarmConfig, logger *zap.Logger) *SwarmOrchestrator {
	if cli == nil {
		panic("swarm cli is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 120 * time.Second
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 5 * time.Second
	}
	if len(cfg.MigrateCommand) == 0 {
		cfg.MigrateCommand = []string{"python", "manage.py", "migrate", "--noinput"}
	}
	return &SwarmOrchestrator{cli: cli, cfg: cfg, logger: logger}
}

// Deploy renders the tenant compose definition and deploys the stack.
func (o *SwarmOrchestrator) Deploy(ctx context.Context, params service.StackParams) error {
	compose, err := swarm.RenderCompose(o.cfg.ComposeTemplate, swarm.StackParams{
		TenantID:    params.TenantID,
		Subdomain:   params.Subdomain,
		SecretKey:   params.SecretKey,
		DBName:      params.DBName,
		DBUser:      params.DBUser,
		DBPassword:  params.DBPassword,
		Domain:      o.cfg.Domain,
		RegistryURL: o.cfg.RegistryURL,
		ImageTag:    o.cfg.ImageTag,
		CPULimit:    o.cfg.CPULimit,
		MemoryLimit: o.cfg.MemoryLimit,
	})
	if err != nil {
		return err
	}
	return o.cli.DeployStack(ctx, tenant.StackName(params.TenantID), compose)
}

// Remove tears down the tenant stack.
func (o *SwarmOrchestrator) Remove(ctx context.Context, tenantID string) error {
	return o.cli.RemoveStack(ctx, tenant.StackName(tenantID))
}

// Scale sets the replica count of the tenant's web service.
func (o *SwarmOrchestrator) Scale(ctx context.Context, tenantID string, replicas int) error {
	return o.cli.ScaleService(ctx, tenant.ServiceName(tenantID), replicas)
}

// WaitHealthy polls the web service until at least one task is running.
// Transient `service ps` errors are expected right after deploy, while the
// service object is still propagating, so they are logged and retried.
func (o *SwarmOrchestrator) WaitHealthy(ctx context.Context, tenantID string) (bool, error) {
	svc := tenant.ServiceName(tenantID)
	deadline := time.Now().Add(o.cfg.HealthTimeout)

	ticker := time.NewTicker(o.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		running, err := o.cli.RunningTasks(ctx, svc)
		if err != nil {
			o.logger.Debug("health poll", zap.String("service", svc), zap.Error(err))
		} else if running > 0 {
			return true, nil
		}

		if time.Now().After(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunMigrations executes the migration command inside the tenant's web
// container.
func (o *SwarmOrchestrator) RunMigrations(ctx context.Context, tenantID string) error {
	svc := tenant.ServiceName(tenantID)
	out, err := o.cli.ExecInService(ctx, svc, o.cfg.MigrateCommand...)
	if err != nil {
		return err
	}
	o.logger.Info("migrations applied",
		zap.String("service", svc),
		zap.String("output_tail", tail(out, 500)))
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Ensure interface compliance.
var _ service.StackOrchestrator = (*SwarmOrchestrator)(nil)
