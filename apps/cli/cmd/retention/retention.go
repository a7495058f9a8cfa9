// Package retentioncmd runs the retention engine from cron or an operator
// shell.
package retentioncmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nekotab/control-plane/domains/retention/engine"
	"github.com/nekotab/control-plane/domains/retention/export"
	"github.com/nekotab/control-plane/domains/retention/notify"
	"github.com/nekotab/control-plane/domains/retention/repo"
	"github.com/nekotab/control-plane/platform/cache"
	"github.com/nekotab/control-plane/platform/config"
	"github.com/nekotab/control-plane/platform/logging"
	"github.com/nekotab/control-plane/platform/mail"
	"github.com/nekotab/control-plane/platform/persistence"
)

// Command groups retention operations.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retention",
		Short: "Data retention: schedule, export and delete stale tournaments",
	}

	cmd.AddCommand(runCommand())
	return cmd
}

func runCommand() *cobra.Command {
	var (
		databaseURL   string
		dryRun        bool
		retentionDays int
		graceHours    int
		mode          string
		exportDir     string
		exportFormat  string
	)

	c := &cobra.Command{
		Use:   "run",
		Short: "Run one retention cycle (schedule eligible, process due)",
		Long: "Schedules tournaments older than the retention threshold for deletion " +
			"after the grace period, and processes tournaments whose grace period has " +
			"expired: export first (unless mode is delete), then delete. Every outcome " +
			"lands in the deletion log. Per-item failures do not fail the run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := config.LoadRetention()
			if err != nil {
				return err
			}

			// Flags override environment configuration.
			if databaseURL == "" {
				databaseURL = cfg.DatabaseURL
			}
			if databaseURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}
			if !cmd.Flags().Changed("retention-days") {
				retentionDays = cfg.RetentionDays
			}
			if !cmd.Flags().Changed("grace-hours") {
				graceHours = cfg.RetentionGraceHours
			}
			if !cmd.Flags().Changed("mode") {
				mode = cfg.RetentionMode
			}
			if !cmd.Flags().Changed("export-dir") {
				exportDir = cfg.ArchiveDir
			}
			if !cmd.Flags().Changed("format") {
				exportFormat = cfg.ExportFormat
			}

			parsedMode, err := engine.ParseMode(mode)
			if err != nil {
				return err
			}

			logger, err := logging.NewLogger(logging.Config{
				Component: "retention-cli",
				Level:     cfg.LogLevel,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() {
				_ = logger.Sync()
			}()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			if err := persistence.BootstrapRetention(ctx, pool); err != nil {
				return fmt.Errorf("bootstrap retention schema: %w", err)
			}

			retentionRepo := repo.NewPostgresRepository(pool)
			deletionLog := repo.NewPostgresDeletionLog(pool)

			format := export.FormatCSV
			if exportFormat == string(export.FormatJSON) {
				format = export.FormatJSON
			}
			exporter := export.NewExporter(repo.NewPostgresSource(pool), exportDir, format, logger)

			mailer := mail.New(mail.Config{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				From:     cfg.SMTPFrom,
				Username: cfg.SMTPUser,
				Password: cfg.SMTPPass,
			})
			notifier := notify.NewMailNotifier(mailer, cfg.NotifyEmails)

			var purger engine.Purger
			if cfg.RedisURL != "" {
				p, err := cache.NewPurger(cfg.RedisURL)
				if err != nil {
					return fmt.Errorf("init cache purger: %w", err)
				}
				defer p.Close()
				purger = p
			}

			eng := engine.New(retentionRepo, deletionLog, exporter, notifier, purger, engine.Config{
				RetentionDays: retentionDays,
				GraceHours:    graceHours,
				Mode:          parsedMode,
			}, logger)

			report, err := eng.RunCycle(ctx, dryRun)
			if err != nil {
				return err
			}

			printReport(cmd, report)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "Tabulation database connection string (defaults to DATABASE_URL)")
	c.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would happen without writing anything")
	c.Flags().IntVar(&retentionDays, "retention-days", 0, "Age threshold in days; 0 disables scheduling")
	c.Flags().IntVar(&graceHours, "grace-hours", 24, "Delay between scheduling and deletion")
	c.Flags().StringVar(&mode, "mode", string(engine.ModeExportThenDelete), "export-delete (default) or delete")
	c.Flags().StringVar(&exportDir, "export-dir", "./archives", "Directory for export archives")
	c.Flags().StringVar(&exportFormat, "format", string(export.FormatCSV), "Archive format: CSV or JSON")

	return c
}

func printReport(cmd *cobra.Command, report engine.Report) {
	out := cmd.OutOrStdout()

	prefix := ""
	if report.DryRun {
		prefix = "[dry-run] "
	}

	for _, e := range report.Scheduled {
		fmt.Fprintf(out, "%s%-10s %s (%d)\n", prefix, e.Status, e.Slug, e.TournamentID)
	}
	for _, e := range report.Processed {
		fmt.Fprintf(out, "%s%-10s %s (%d)", prefix, e.Status, e.Slug, e.TournamentID)
		if e.ArchivePath != "" {
			fmt.Fprintf(out, " archive=%s", e.ArchivePath)
		}
		if e.ErrorMessage != "" {
			fmt.Fprintf(out, " error=%s", e.ErrorMessage)
		}
		fmt.Fprintln(out)
	}

	counts := report.Counts()
	fmt.Fprintf(out, "%seligible=%d due=%d scheduled=%d deleted=%d failed=%d skipped=%d\n",
		prefix,
		len(report.Scheduled),
		len(report.Processed),
		counts[engine.StatusScheduled],
		counts[engine.StatusDeleted],
		counts[engine.StatusFailed],
		counts[engine.StatusSkipped])
}
