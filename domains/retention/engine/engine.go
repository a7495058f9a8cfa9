// Package engine implements data retention for tournament collections:
// stale collections are scheduled with a grace period, then exported and
// deleted, with every outcome recorded in an append-only deletion log.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nekotab/control-plane/domains/retention/export"
	"github.com/nekotab/control-plane/platform/metrics"
)

// Status is the terminal state of one retention action, as recorded in
// the deletion log.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusExported  Status = "EXPORTED"
	StatusDeleted   Status = "DELETED"
	StatusFailed    Status = "FAILED"
	StatusSkipped   Status = "SKIPPED"
	StatusDryRun    Status = "DRY_RUN"
)

// Mode selects what happens to collections past their grace period.
type Mode string

const (
	ModeExportThenDelete Mode = "EXPORT_THEN_DELETE"
	ModeDeleteOnly       Mode = "DELETE_ONLY"
)

// ParseMode maps a config string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeExportThenDelete, "EXPORT-DELETE", "":
		return ModeExportThenDelete, nil
	case ModeDeleteOnly, "DELETE":
		return ModeDeleteOnly, nil
	default:
		return "", fmt.Errorf("unknown retention mode %q", s)
	}
}

// Collection is the retention view of one tournament.
type Collection struct {
	ID                     int64
	Slug                   string
	Name                   string
	OwnerEmail             string
	OwnerName              string
	CreatedAt              time.Time
	RetentionExempt        bool
	ScheduledForDeletionAt *time.Time
}

// SnapshotCounts captures collection size before deletion, for the log.
type SnapshotCounts struct {
	Teams   int
	Rounds  int
	Debates int
}

// LogEntry is one deletion-log record.
type LogEntry struct {
	TournamentID int64
	Slug         string
	Name         string
	OwnerEmail   string
	OwnerName    string
	Counts       SnapshotCounts
	Status       Status
	ArchivePath  string
	ErrorMessage string
}

// Repository provides the tournament-side retention queries.
type Repository interface {
	// Eligible returns collections older than cutoff that are neither
	// exempt nor already scheduled.
	Eligible(ctx context.Context, cutoff time.Time) ([]Collection, error)
	// PastGrace returns scheduled, non-exempt collections whose grace
	// period expired at or before now.
	PastGrace(ctx context.Context, now time.Time) ([]Collection, error)
	// Schedule stamps a collection for deletion at the given time.
	Schedule(ctx context.Context, id int64, at time.Time) error
	// SnapshotCounts sizes a collection. Called before deletion.
	SnapshotCounts(ctx context.Context, id int64) (SnapshotCounts, error)
	// Delete removes the collection and all dependent rows in a single
	// transaction.
	Delete(ctx context.Context, id int64) error
}

// DeletionLog records retention outcomes. Append-only.
type DeletionLog interface {
	Append(ctx context.Context, entry LogEntry) error
}

// Exporter archives a collection before deletion.
type Exporter interface {
	Export(ctx context.Context, col export.Collection) (string, error)
}

// Notifier reports a finished cycle to operators. May be nil.
type Notifier interface {
	NotifyCycle(ctx context.Context, report Report) error
}

// Purger evicts cached state for a deleted collection. May be nil.
type Purger interface {
	Purge(ctx context.Context, slug string) error
}

// Config carries the retention policy knobs.
type Config struct {
	// RetentionDays is the age threshold; zero or negative disables
	// retention entirely.
	RetentionDays int
	// GraceHours is the delay between scheduling and deletion. Zero means
	// scheduled collections are due immediately.
	GraceHours int
	Mode       Mode
}

// Report summarizes one retention cycle.
type Report struct {
	DryRun    bool
	Scheduled []LogEntry
	Processed []LogEntry
}

// Counts tallies processed entries by status.
func (r Report) Counts() map[Status]int {
	out := make(map[Status]int)
	for _, e := range r.Scheduled {
		out[e.Status]++
	}
	for _, e := range r.Processed {
		out[e.Status]++
	}
	return out
}

// Engine drives the retention policy.
type Engine struct {
	repo     Repository
	log      DeletionLog
	exporter Exporter
	notifier Notifier
	purger   Purger
	cfg      Config
	logger   *zap.Logger

	now func() time.Time
}

// New constructs an Engine. notifier and purger are optional.
func New(repo Repository, log DeletionLog, exporter Exporter, notifier Notifier, purger Purger, cfg Config, logger *zap.Logger) *Engine {
	if repo == nil || log == nil {
		panic("retention engine requires repository and deletion log")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeExportThenDelete
	}
	if cfg.Mode == ModeExportThenDelete && exporter == nil {
		panic("export-then-delete mode requires an exporter")
	}
	if cfg.GraceHours < 0 {
		cfg.GraceHours = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		repo:     repo,
		log:      log,
		exporter: exporter,
		notifier: notifier,
		purger:   purger,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Eligible returns the collections the policy would schedule right now.
// With retention disabled it always returns an empty slice.
func (e *Engine) Eligible(ctx context.Context) ([]Collection, error) {
	if e.cfg.RetentionDays <= 0 {
		return nil, nil
	}
	cutoff := e.now().AddDate(0, 0, -e.cfg.RetentionDays)
	return e.repo.Eligible(ctx, cutoff)
}

// ScheduleEligible stamps every eligible collection for deletion after the
// grace period. In dry-run mode collections are left untouched; the entries
// carry the DRY_RUN status and still land in the deletion log.
func (e *Engine) ScheduleEligible(ctx context.Context, dryRun bool) ([]LogEntry, error) {
	eligible, err := e.Eligible(ctx)
	if err != nil {
		return nil, fmt.Errorf("find eligible collections: %w", err)
	}

	deleteAt := e.now().Add(time.Duration(e.cfg.GraceHours) * time.Hour)
	entries := make([]LogEntry, 0, len(eligible))

	for _, col := range eligible {
		entry := LogEntry{
			TournamentID: col.ID,
			Slug:         col.Slug,
			Name:         col.Name,
			OwnerEmail:   col.OwnerEmail,
			OwnerName:    col.OwnerName,
			Status:       StatusScheduled,
		}
		if counts, err := e.repo.SnapshotCounts(ctx, col.ID); err == nil {
			entry.Counts = counts
		}

		if dryRun {
			entry.Status = StatusDryRun
			e.appendLog(ctx, entry)
			entries = append(entries, entry)
			continue
		}

		if err := e.repo.Schedule(ctx, col.ID, deleteAt); err != nil {
			entry.Status = StatusFailed
			entry.ErrorMessage = err.Error()
			e.logger.Error("schedule collection", zap.String("slug", col.Slug), zap.Error(err))
		} else {
			e.logger.Info("collection scheduled for deletion",
				zap.String("slug", col.Slug),
				zap.Time("delete_at", deleteAt))
		}

		e.appendLog(ctx, entry)
		entries = append(entries, entry)
	}

	return entries, nil
}

// ProcessDeletions handles every collection whose grace period has
// expired. An export failure leaves the collection untouched: the FAILED
// entry keeps it visible and the next cycle retries.
func (e *Engine) ProcessDeletions(ctx context.Context, dryRun bool) ([]LogEntry, error) {
	due, err := e.repo.PastGrace(ctx, e.now())
	if err != nil {
		return nil, fmt.Errorf("find due collections: %w", err)
	}

	entries := make([]LogEntry, 0, len(due))
	for _, col := range due {
		entry := e.processOne(ctx, col, dryRun)
		metrics.RetentionProcessedTotal.WithLabelValues(string(entry.Status)).Inc()
		entries = append(entries, entry)
	}
	return entries, nil
}

func (e *Engine) processOne(ctx context.Context, col Collection, dryRun bool) LogEntry {
	// Owner identity is captured before deletion; the rows it comes from
	// are about to disappear.
	entry := LogEntry{
		TournamentID: col.ID,
		Slug:         col.Slug,
		Name:         col.Name,
		OwnerEmail:   col.OwnerEmail,
		OwnerName:    col.OwnerName,
	}

	// Exemption set during the grace period wins over the schedule.
	if col.RetentionExempt {
		entry.Status = StatusSkipped
		e.appendLog(ctx, entry)
		return entry
	}

	if dryRun {
		entry.Status = StatusDryRun
		e.appendLog(ctx, entry)
		return entry
	}

	counts, err := e.repo.SnapshotCounts(ctx, col.ID)
	if err != nil {
		entry.Status = StatusFailed
		entry.ErrorMessage = fmt.Sprintf("snapshot counts: %v", err)
		e.appendLog(ctx, entry)
		return entry
	}
	entry.Counts = counts

	if e.cfg.Mode == ModeExportThenDelete {
		path, err := e.exporter.Export(ctx, export.Collection{ID: col.ID, Slug: col.Slug, Name: col.Name})
		if err != nil {
			entry.Status = StatusFailed
			entry.ErrorMessage = fmt.Sprintf("export: %v", err)
			e.logger.Error("export failed, collection kept",
				zap.String("slug", col.Slug), zap.Error(err))
			e.appendLog(ctx, entry)
			return entry
		}
		entry.ArchivePath = path

		exported := entry
		exported.Status = StatusExported
		e.appendLog(ctx, exported)
	}

	if err := e.repo.Delete(ctx, col.ID); err != nil {
		entry.Status = StatusFailed
		entry.ErrorMessage = fmt.Sprintf("delete: %v", err)
		e.logger.Error("delete failed", zap.String("slug", col.Slug), zap.Error(err))
		e.appendLog(ctx, entry)
		return entry
	}

	entry.Status = StatusDeleted
	e.appendLog(ctx, entry)
	e.logger.Info("collection deleted",
		zap.String("slug", col.Slug),
		zap.Int64("tournament_id", col.ID),
		zap.String("archive", entry.ArchivePath))

	if e.purger != nil {
		if err := e.purger.Purge(ctx, col.Slug); err != nil {
			e.logger.Warn("cache purge failed", zap.String("slug", col.Slug), zap.Error(err))
		}
	}

	return entry
}

// RunCycle schedules newly eligible collections and processes due ones,
// then notifies operators if a notifier is configured.
func (e *Engine) RunCycle(ctx context.Context, dryRun bool) (Report, error) {
	report := Report{DryRun: dryRun}

	scheduled, err := e.ScheduleEligible(ctx, dryRun)
	if err != nil {
		return report, err
	}
	report.Scheduled = scheduled

	processed, err := e.ProcessDeletions(ctx, dryRun)
	if err != nil {
		return report, err
	}
	report.Processed = processed

	if e.notifier != nil && !dryRun && (len(scheduled) > 0 || len(processed) > 0) {
		if err := e.notifier.NotifyCycle(ctx, report); err != nil {
			e.logger.Warn("cycle notification failed", zap.Error(err))
		}
	}

	return report, nil
}

func (e *Engine) appendLog(ctx context.Context, entry LogEntry) {
	if err := e.log.Append(ctx, entry); err != nil {
		e.logger.Error("append deletion log",
			zap.String("slug", entry.Slug),
			zap.String("status", string(entry.Status)),
			zap.Error(err))
	}
}
