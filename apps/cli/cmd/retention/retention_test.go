package retentioncmd

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"github.com/nekotab/control-plane/domains/retention/engine"
)

func TestPrintReportSummarizesCycle(t *testing.T) {
	report := engine.Report{
		Scheduled: []engine.LogEntry{
			{TournamentID: 1, Slug: "old-open", Status: engine.StatusScheduled},
			{TournamentID: 2, Slug: "stale-iv", Status: engine.StatusScheduled},
		},
		Processed: []engine.LogEntry{
			{TournamentID: 3, Slug: "worlds2024", Status: engine.StatusDeleted, ArchivePath: "/archives/worlds2024.zip"},
			{TournamentID: 4, Slug: "broken-open", Status: engine.StatusFailed, ErrorMessage: "export: disk full"},
		},
	}

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	printReport(cmd, report)

	out := buf.String()
	assert.Contains(t, out, "SCHEDULED  old-open (1)")
	assert.Contains(t, out, "archive=/archives/worlds2024.zip")
	assert.Contains(t, out, "error=export: disk full")
	assert.Contains(t, out, "eligible=2 due=2 scheduled=2 deleted=1 failed=1 skipped=0")
}

func TestPrintReportDryRunPrefix(t *testing.T) {
	report := engine.Report{
		DryRun: true,
		Scheduled: []engine.LogEntry{
			{TournamentID: 1, Slug: "old-open", Status: engine.StatusDryRun},
		},
	}

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	printReport(cmd, report)

	out := buf.String()
	assert.Contains(t, out, "[dry-run] DRY_RUN")
	assert.Contains(t, out, "[dry-run] eligible=1 due=0")
}
