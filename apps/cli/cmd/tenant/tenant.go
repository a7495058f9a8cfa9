// Package tenantcmd gives operators direct access to the tenant lifecycle
// without going through the HTTP API. Provisioning runs synchronously in
// the foreground so failures are visible immediately.
package tenantcmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nekotab/control-plane/domains/tenants/provisioning"
	"github.com/nekotab/control-plane/domains/tenants/repo"
	"github.com/nekotab/control-plane/domains/tenants/service"
	"github.com/nekotab/control-plane/platform/config"
	"github.com/nekotab/control-plane/platform/logging"
	"github.com/nekotab/control-plane/platform/persistence"
	"github.com/nekotab/control-plane/platform/secrets"
	"github.com/nekotab/control-plane/platform/swarm"
	"github.com/nekotab/control-plane/platform/tenant"
)

// Command groups tenant lifecycle helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant lifecycle (provision/suspend/resume/delete)",
	}

	cmd.AddCommand(provisionCommand())
	cmd.AddCommand(suspendCommand())
	cmd.AddCommand(resumeCommand())
	cmd.AddCommand(deleteCommand())
	return cmd
}

// wiring bundles the dependencies every subcommand shares.
type wiring struct {
	svc     *service.Service
	cleanup func()
}

func wire(ctx context.Context) (*wiring, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(logging.Config{
		Component: "tenant-cli",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	box, err := secrets.NewBox(cfg.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("init secret box: %w", err)
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("init pool: %w", err)
	}
	if err := persistence.BootstrapControlPlane(ctx, pool); err != nil {
		persistence.ClosePool(pool)
		return nil, fmt.Errorf("bootstrap control-plane schema: %w", err)
	}

	adminPool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.PostgresAdminURL})
	if err != nil {
		persistence.ClosePool(pool)
		return nil, fmt.Errorf("init admin pool: %w", err)
	}

	tenantStore, err := persistence.NewTenantStore(pool)
	if err != nil {
		persistence.ClosePool(pool)
		persistence.ClosePool(adminPool)
		return nil, err
	}
	auditStore, err := persistence.NewProvisioningLogStore(pool)
	if err != nil {
		persistence.ClosePool(pool)
		persistence.ClosePool(adminPool)
		return nil, err
	}

	composeTemplate, err := swarm.LoadComposeTemplate(cfg.ComposeTemplatePath)
	if err != nil {
		persistence.ClosePool(pool)
		persistence.ClosePool(adminPool)
		return nil, err
	}

	orchestrator := provisioning.NewSwarmOrchestrator(
		swarm.NewCLI(logger, cfg.DeployTimeout),
		provisioning.SwarmConfig{
			Domain:          cfg.Domain,
			RegistryURL:     cfg.RegistryURL,
			ImageTag:        cfg.ImageTag,
			CPULimit:        cfg.TenantCPULimit,
			MemoryLimit:     cfg.TenantMemoryLimit,
			ComposeTemplate: composeTemplate,
			HealthTimeout:   cfg.HealthTimeout,
			HealthInterval:  cfg.HealthInterval,
		},
		logger,
	)

	reserved := tenant.DefaultReservedSubdomains
	if len(cfg.ReservedSubdomains) > 0 {
		reserved = cfg.ReservedSubdomains
	}

	svc := service.New(
		repo.NewPostgresRepository(tenantStore),
		repo.NewPostgresAuditLog(auditStore),
		provisioning.NewDBProvisioner(adminPool, logger),
		orchestrator,
		box,
		logger,
		service.Config{
			Reserved:    tenant.ReservedSet(reserved),
			CPULimit:    cfg.TenantCPULimit,
			MemoryLimit: cfg.TenantMemoryLimit,
		},
	)

	return &wiring{
		svc: svc,
		cleanup: func() {
			persistence.ClosePool(pool)
			persistence.ClosePool(adminPool)
			_ = logger.Sync()
		},
	}, nil
}

func provisionCommand() *cobra.Command {
	var (
		subdomain  string
		name       string
		ownerEmail string
		plan       string
	)

	c := &cobra.Command{
		Use:   "provision",
		Short: "Provision a tenant end to end (database, stack, migrations)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			w, err := wire(ctx)
			if err != nil {
				return err
			}
			defer w.cleanup()

			t, err := w.svc.Provision(ctx, service.ProvisionInput{
				Subdomain:  subdomain,
				Name:       strPtrOrNil(name),
				OwnerEmail: strPtrOrNil(ownerEmail),
				Plan:       plan,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s provisioned: %s (status %s)\n",
				t.ID, t.Subdomain, t.Status)
			return nil
		},
	}

	c.Flags().StringVar(&subdomain, "subdomain", "", "Tenant subdomain")
	c.Flags().StringVar(&name, "name", "", "Organization display name")
	c.Flags().StringVar(&ownerEmail, "owner-email", "", "Owner contact email")
	c.Flags().StringVar(&plan, "plan", "free", "Billing plan")
	_ = c.MarkFlagRequired("subdomain")

	return c
}

func suspendCommand() *cobra.Command {
	var reason string

	c := &cobra.Command{
		Use:   "suspend <tenant-id>",
		Short: "Scale a tenant to zero and mark it suspended",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			w, err := wire(ctx)
			if err != nil {
				return err
			}
			defer w.cleanup()

			t, err := w.svc.Suspend(ctx, args[0], reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s suspended\n", t.ID)
			return nil
		},
	}

	c.Flags().StringVar(&reason, "reason", "", "Suspension reason, recorded on the tenant")
	return c
}

func resumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <tenant-id>",
		Short: "Scale a suspended tenant back up",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			w, err := wire(ctx)
			if err != nil {
				return err
			}
			defer w.cleanup()

			t, err := w.svc.Resume(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s active\n", t.ID)
			return nil
		},
	}
}

func deleteCommand() *cobra.Command {
	var confirm bool

	c := &cobra.Command{
		Use:   "delete <tenant-id>",
		Short: "Tear down a tenant: remove stack, drop database, soft-delete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("deletion drops the tenant database; rerun with --confirm")
			}

			ctx := context.Background()
			w, err := wire(ctx)
			if err != nil {
				return err
			}
			defer w.cleanup()

			t, err := w.svc.Delete(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s deleted\n", t.ID)
			return nil
		},
	}

	c.Flags().BoolVar(&confirm, "confirm", false, "Acknowledge that the tenant database will be dropped")
	return c
}

func strPtrOrNil(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
