package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	tenantshandler "github.com/nekotab/control-plane/domains/tenants/handler"
	tenantsprov "github.com/nekotab/control-plane/domains/tenants/provisioning"
	tenantsrepo "github.com/nekotab/control-plane/domains/tenants/repo"
	tenantsservice "github.com/nekotab/control-plane/domains/tenants/service"
	"github.com/nekotab/control-plane/platform/config"
	"github.com/nekotab/control-plane/platform/logging"
	platformmiddleware "github.com/nekotab/control-plane/platform/middleware"
	"github.com/nekotab/control-plane/platform/persistence"
	"github.com/nekotab/control-plane/platform/secrets"
	"github.com/nekotab/control-plane/platform/swarm"
	"github.com/nekotab/control-plane/platform/tenant"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Component: "control-plane-api",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	box, err := secrets.NewBox(cfg.MasterKey)
	if err != nil {
		logger.Fatal("init secret box", zap.Error(err))
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	if err := persistence.BootstrapControlPlane(ctx, pool); err != nil {
		logger.Fatal("bootstrap control-plane schema", zap.Error(err))
	}

	adminPool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.PostgresAdminURL})
	if err != nil {
		logger.Fatal("init admin postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(adminPool)

	tenantStore, err := persistence.NewTenantStore(pool)
	if err != nil {
		logger.Fatal("init tenant store", zap.Error(err))
	}
	auditStore, err := persistence.NewProvisioningLogStore(pool)
	if err != nil {
		logger.Fatal("init provisioning log store", zap.Error(err))
	}

	composeTemplate, err := swarm.LoadComposeTemplate(cfg.ComposeTemplatePath)
	if err != nil {
		logger.Fatal("load compose template", zap.Error(err))
	}

	orchestrator := tenantsprov.NewSwarmOrchestrator(
		swarm.NewCLI(logger, cfg.DeployTimeout),
		tenantsprov.SwarmConfig{
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

	tenantService := tenantsservice.New(
		tenantsrepo.NewPostgresRepository(tenantStore),
		tenantsrepo.NewPostgresAuditLog(auditStore),
		tenantsprov.NewDBProvisioner(adminPool, logger),
		orchestrator,
		box,
		logger,
		tenantsservice.Config{
			Reserved:    tenant.ReservedSet(reserved),
			CPULimit:    cfg.TenantCPULimit,
			MemoryLimit: cfg.TenantMemoryLimit,
		},
	)

	queueCtx, stopQueue := context.WithCancel(ctx)
	queue := tenantsservice.NewProvisionQueue(tenantService, logger, 32)
	queue.Start(queueCtx)

	tenantHandler := tenantshandler.New(tenantService, queue, cfg.Domain)

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)
	rootRouter.Use(logging.RequestLogger(logger))

	rootRouter.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Handle("/metrics", promhttp.Handler())

	rootRouter.Route("/api/v1", func(r chi.Router) {
		r.Use(tenantshandler.APIKeyAuth(cfg.APIKey))
		r.Group(tenantHandler.Routes)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: 2 * cfg.RequestTimeout,
	}

	go func() {
		logger.Info("starting control-plane api", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	// Let in-flight provisioning jobs finish before the pools close.
	stopQueue()
	queue.Wait()
}
