package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nekotab/control-plane/domains/retention/export"
)

type memoryRepo struct {
	mu          sync.Mutex
	collections map[int64]*Collection
	counts      map[int64]SnapshotCounts
	deleted     []int64
	deleteErr   error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		collections: make(map[int64]*Collection),
		counts:      make(map[int64]SnapshotCounts),
	}
}

func (r *memoryRepo) add(col Collection) {
	c := col
	r.collections[col.ID] = &c
}

func (r *memoryRepo) Eligible(ctx context.Context, cutoff time.Time) ([]Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Collection
	for _, c := range r.collections {
		if c.RetentionExempt || c.ScheduledForDeletionAt != nil {
			continue
		}
		if c.CreatedAt.Before(cutoff) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *memoryRepo) PastGrace(ctx context.Context, now time.Time) ([]Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Collection
	for _, c := range r.collections {
		if c.ScheduledForDeletionAt == nil {
			continue
		}
		if !c.ScheduledForDeletionAt.After(now) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *memoryRepo) Schedule(ctx context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.collections[id]
	if !ok {
		return errors.New("collection not found")
	}
	c.ScheduledForDeletionAt = &at
	return nil
}

func (r *memoryRepo) SnapshotCounts(ctx context.Context, id int64) (SnapshotCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[id], nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.collections[id]; !ok {
		return errors.New("collection not found")
	}
	delete(r.collections, id)
	r.deleted = append(r.deleted, id)
	return nil
}

type memoryLog struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (l *memoryLog) Append(ctx context.Context, entry LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

type stubExporter struct {
	err      error
	exported []int64
}

func (s *stubExporter) Export(ctx context.Context, col export.Collection) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.exported = append(s.exported, col.ID)
	return "/archives/" + col.Slug + "-archive.zip", nil
}

type stubNotifier struct {
	reports []Report
}

func (s *stubNotifier) NotifyCycle(ctx context.Context, report Report) error {
	s.reports = append(s.reports, report)
	return nil
}

type stubPurger struct {
	purged []string
}

func (s *stubPurger) Purge(ctx context.Context, slug string) error {
	s.purged = append(s.purged, slug)
	return nil
}

type fixture struct {
	engine   *Engine
	repo     *memoryRepo
	log      *memoryLog
	exporter *stubExporter
	notifier *stubNotifier
	purger   *stubPurger
	clock    time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newMemoryRepo(),
		log:      &memoryLog{},
		exporter: &stubExporter{},
		notifier: &stubNotifier{},
		purger:   &stubPurger{},
		clock:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.engine = New(f.repo, f.log, f.exporter, f.notifier, f.purger, cfg, zap.NewNop())
	f.engine.now = func() time.Time { return f.clock }
	return f
}

func defaultConfig() Config {
	return Config{RetentionDays: 180, GraceHours: 24, Mode: ModeExportThenDelete}
}

func (f *fixture) addStale(id int64, slug string) {
	f.repo.add(Collection{
		ID:         id,
		Slug:       slug,
		Name:       slug,
		OwnerEmail: slug + "@example.org",
		CreatedAt:  f.clock.AddDate(0, 0, -200),
	})
	f.repo.counts[id] = SnapshotCounts{Teams: 8, Rounds: 5, Debates: 20}
}

func TestEligibleRespectsCutoffAndExemption(t *testing.T) {
	f := newFixture(t, defaultConfig())

	f.addStale(1, "old-open")
	f.repo.add(Collection{ID: 2, Slug: "fresh-open", CreatedAt: f.clock.AddDate(0, 0, -10)})
	f.repo.add(Collection{ID: 3, Slug: "kept-open", CreatedAt: f.clock.AddDate(0, 0, -400), RetentionExempt: true})

	eligible, err := f.engine.Eligible(context.Background())
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, "old-open", eligible[0].Slug)
}

func TestEligibleDisabledWhenRetentionDaysZero(t *testing.T) {
	f := newFixture(t, Config{RetentionDays: 0, GraceHours: 24, Mode: ModeExportThenDelete})
	f.addStale(1, "old-open")

	eligible, err := f.engine.Eligible(context.Background())
	require.NoError(t, err)
	assert.Empty(t, eligible)
}

func TestScheduleEligibleSetsGracePeriod(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.addStale(1, "old-open")

	entries, err := f.engine.ScheduleEligible(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusScheduled, entries[0].Status)
	assert.Equal(t, SnapshotCounts{Teams: 8, Rounds: 5, Debates: 20}, entries[0].Counts)

	scheduled := f.repo.collections[1].ScheduledForDeletionAt
	require.NotNil(t, scheduled)
	assert.Equal(t, f.clock.Add(24*time.Hour), *scheduled)

	// Already-scheduled collections are not scheduled twice.
	entries, err = f.engine.ScheduleEligible(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestScheduleDryRunLeavesCollectionsUntouched(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.addStale(1, "old-open")

	entries, err := f.engine.ScheduleEligible(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusDryRun, entries[0].Status)
	assert.Nil(t, f.repo.collections[1].ScheduledForDeletionAt)

	// The dry run still leaves an audit trail in the deletion log.
	require.Len(t, f.log.entries, 1)
	assert.Equal(t, StatusDryRun, f.log.entries[0].Status)
}

func TestZeroGracePeriodIsImmediatelyDue(t *testing.T) {
	f := newFixture(t, Config{RetentionDays: 90, GraceHours: 0, Mode: ModeDeleteOnly})
	f.addStale(1, "old-open")

	_, err := f.engine.ScheduleEligible(context.Background(), false)
	require.NoError(t, err)

	// No clock advance: a zero grace period makes the collection due now.
	entries, err := f.engine.ProcessDeletions(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusDeleted, entries[0].Status)
	assert.Equal(t, []int64{1}, f.repo.deleted)
}

func TestProcessDeletionsGraceBoundary(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.addStale(1, "old-open")

	_, err := f.engine.ScheduleEligible(context.Background(), false)
	require.NoError(t, err)

	// Inside the grace period nothing happens.
	entries, err := f.engine.ProcessDeletions(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Exactly at the grace boundary the collection is due.
	f.clock = f.clock.Add(24 * time.Hour)
	entries, err = f.engine.ProcessDeletions(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusDeleted, entries[0].Status)
	assert.Equal(t, []int64{1}, f.repo.deleted)
	assert.Equal(t, []int64{1}, f.exporter.exported)
	assert.NotEmpty(t, entries[0].ArchivePath)
}

func TestExemptionDuringGraceSkipsDeletion(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.addStale(1, "old-open")

	_, err := f.engine.ScheduleEligible(context.Background(), false)
	require.NoError(t, err)

	// Owner marks the collection exempt before the grace period ends.
	f.repo.collections[1].RetentionExempt = true
	f.clock = f.clock.Add(48 * time.Hour)

	entries, err := f.engine.ProcessDeletions(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusSkipped, entries[0].Status)
	assert.Empty(t, f.repo.deleted)
	assert.Empty(t, f.exporter.exported)
}

func TestExportFailureKeepsCollection(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.addStale(1, "old-open")
	f.exporter.err = errors.New("disk full")

	_, err := f.engine.ScheduleEligible(context.Background(), false)
	require.NoError(t, err)
	f.clock = f.clock.Add(48 * time.Hour)

	entries, err := f.engine.ProcessDeletions(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusFailed, entries[0].Status)
	assert.Contains(t, entries[0].ErrorMessage, "disk full")

	// The collection survives and stays scheduled for the next cycle.
	assert.Empty(t, f.repo.deleted)
	assert.Contains(t, f.repo.collections, int64(1))
	assert.NotNil(t, f.repo.collections[1].ScheduledForDeletionAt)
}

func TestDeleteOnlyModeSkipsExport(t *testing.T) {
	cfg := defaultConfig()
	cfg.Mode = ModeDeleteOnly
	f := newFixture(t, cfg)
	f.addStale(1, "old-open")

	_, err := f.engine.ScheduleEligible(context.Background(), false)
	require.NoError(t, err)
	f.clock = f.clock.Add(48 * time.Hour)

	entries, err := f.engine.ProcessDeletions(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusDeleted, entries[0].Status)
	assert.Empty(t, entries[0].ArchivePath)
	assert.Empty(t, f.exporter.exported)
}

func TestOwnerCapturedBeforeDeletion(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.addStale(1, "old-open")

	_, err := f.engine.ScheduleEligible(context.Background(), false)
	require.NoError(t, err)
	f.clock = f.clock.Add(48 * time.Hour)

	entries, err := f.engine.ProcessDeletions(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "old-open@example.org", entries[0].OwnerEmail)
	assert.Equal(t, SnapshotCounts{Teams: 8, Rounds: 5, Debates: 20}, entries[0].Counts)
}

func TestProcessDryRunDeletesNothing(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.addStale(1, "old-open")

	_, err := f.engine.ScheduleEligible(context.Background(), false)
	require.NoError(t, err)
	f.clock = f.clock.Add(48 * time.Hour)

	entries, err := f.engine.ProcessDeletions(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusDryRun, entries[0].Status)
	assert.Empty(t, f.repo.deleted)
	assert.Empty(t, f.exporter.exported)

	// SCHEDULED from the real scheduling run, then the dry-run marker.
	require.Len(t, f.log.entries, 2)
	assert.Equal(t, StatusDryRun, f.log.entries[1].Status)
}

func TestExportedEntryLoggedBeforeDeletion(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.addStale(1, "old-open")

	_, err := f.engine.ScheduleEligible(context.Background(), false)
	require.NoError(t, err)
	f.clock = f.clock.Add(48 * time.Hour)

	_, err = f.engine.ProcessDeletions(context.Background(), false)
	require.NoError(t, err)

	statuses := make([]Status, 0, len(f.log.entries))
	for _, e := range f.log.entries {
		statuses = append(statuses, e.Status)
	}
	assert.Equal(t, []Status{StatusScheduled, StatusExported, StatusDeleted}, statuses)

	// The EXPORTED entry records where the archive landed.
	assert.NotEmpty(t, f.log.entries[1].ArchivePath)
	assert.Equal(t, f.log.entries[1].ArchivePath, f.log.entries[2].ArchivePath)
}

func TestRunCycleNotifiesAndPurges(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.addStale(1, "old-open")

	// First cycle schedules; second cycle (past grace) deletes.
	report, err := f.engine.RunCycle(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, report.Scheduled, 1)
	assert.Empty(t, report.Processed)

	f.clock = f.clock.Add(48 * time.Hour)
	report, err = f.engine.RunCycle(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, report.Processed, 1)
	assert.Equal(t, StatusDeleted, report.Processed[0].Status)
	assert.Equal(t, map[Status]int{StatusDeleted: 1}, report.Counts())

	assert.Equal(t, []string{"old-open"}, f.purger.purged)
	require.Len(t, f.notifier.reports, 2)
}

func TestRunCycleDryRunSkipsNotification(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.addStale(1, "old-open")

	_, err := f.engine.RunCycle(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, f.notifier.reports)

	// DRY_RUN entries are logged, but the collection stays untouched.
	require.Len(t, f.log.entries, 1)
	assert.Equal(t, StatusDryRun, f.log.entries[0].Status)
	assert.Nil(t, f.repo.collections[1].ScheduledForDeletionAt)
}

func TestDeleteFailureRecordedAsFailed(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.addStale(1, "old-open")
	f.repo.deleteErr = errors.New("deadlock detected")

	_, err := f.engine.ScheduleEligible(context.Background(), false)
	require.NoError(t, err)
	f.clock = f.clock.Add(48 * time.Hour)

	entries, err := f.engine.ProcessDeletions(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusFailed, entries[0].Status)
	// The export ran, so the archive path is preserved in the failure entry.
	assert.NotEmpty(t, entries[0].ArchivePath)
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("export_then_delete")
	require.NoError(t, err)
	assert.Equal(t, ModeExportThenDelete, mode)

	mode, err = ParseMode("DELETE_ONLY")
	require.NoError(t, err)
	assert.Equal(t, ModeDeleteOnly, mode)

	mode, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeExportThenDelete, mode)

	mode, err = ParseMode("export-delete")
	require.NoError(t, err)
	assert.Equal(t, ModeExportThenDelete, mode)

	mode, err = ParseMode("delete")
	require.NoError(t, err)
	assert.Equal(t, ModeDeleteOnly, mode)

	_, err = ParseMode("shred")
	require.Error(t, err)
}
