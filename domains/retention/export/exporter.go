// Package export writes tournament archives before retention deletes the
// underlying rows. Archives are either a zip of per-table CSVs or a single
// JSON document; both carry a manifest describing what was exported.
package export

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// BatchSize is the number of rows fetched per round trip. Large
// tournaments export in bounded memory.
const BatchSize = 2000

// Format selects the archive layout.
type Format string

const (
	FormatCSV  Format = "CSV"
	FormatJSON Format = "JSON"
)

// Row is one exported record. Values may be nested maps; column names
// address into them with double-underscore separators.
type Row = map[string]any

// Table describes one exportable table: its name in the archive and the
// ordered column paths forming the CSV header.
type Table struct {
	Name    string
	Columns []string
}

// Source supplies tournament data table by table, in batches.
type Source interface {
	// Tables lists the exportable tables in archive order.
	Tables() []Table
	// Fetch returns up to limit rows of one table, offset-based. An empty
	// slice signals the end of the table.
	Fetch(ctx context.Context, tournamentID int64, table string, offset, limit int) ([]Row, error)
}

// Collection identifies what is being exported.
type Collection struct {
	ID   int64
	Slug string
	Name string
}

// Exporter writes archives to a local directory.
type Exporter struct {
	source Source
	dir    string
	format Format
	logger *zap.Logger

	now func() time.Time
}

// NewExporter constructs an Exporter. dir is created on first use.
func NewExporter(source Source, dir string, format Format, logger *zap.Logger) *Exporter {
	if source == nil {
		panic("export source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if format != FormatJSON {
		format = FormatCSV
	}
	return &Exporter{
		source: source,
		dir:    dir,
		format: format,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Export writes one archive and returns its path. A partially written
// archive is removed on failure so callers never see a truncated file.
func (e *Exporter) Export(ctx context.Context, col Collection) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	stamp := e.now().Format("20060102-150405")
	base := fmt.Sprintf("%s-%d-%s-archive", col.Slug, col.ID, stamp)

	var path string
	var err error
	switch e.format {
	case FormatJSON:
		path = filepath.Join(e.dir, base+".json")
		err = e.exportJSON(ctx, col, path)
	default:
		path = filepath.Join(e.dir, base+".zip")
		err = e.exportCSVZip(ctx, col, path)
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}

	e.logger.Info("archive written",
		zap.String("slug", col.Slug),
		zap.Int64("tournament_id", col.ID),
		zap.String("path", path))
	return path, nil
}

type manifest struct {
	TournamentID   int64           `json:"tournament_id"`
	TournamentName string          `json:"tournament_name"`
	Slug           string          `json:"slug"`
	ExportedAt     time.Time       `json:"exported_at"`
	Format         string          `json:"format"`
	Tables         []manifestTable `json:"tables"`
}

// manifestTable lists one exported table in archive order.
type manifestTable struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
}

func (e *Exporter) exportCSVZip(ctx context.Context, col Collection, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	var counts []manifestTable

	for _, table := range e.source.Tables() {
		w, err := zw.Create(table.Name + ".csv")
		if err != nil {
			return fmt.Errorf("add %s.csv: %w", table.Name, err)
		}

		cw := csv.NewWriter(w)
		if err := cw.Write(table.Columns); err != nil {
			return fmt.Errorf("write %s header: %w", table.Name, err)
		}

		n, err := e.streamTable(ctx, col.ID, table, func(row Row) error {
			record := make([]string, len(table.Columns))
			for i, path := range table.Columns {
				record[i] = cell(Value(row, path))
			}
			return cw.Write(record)
		})
		if err != nil {
			return fmt.Errorf("export %s: %w", table.Name, err)
		}

		cw.Flush()
		if err := cw.Error(); err != nil {
			return fmt.Errorf("flush %s: %w", table.Name, err)
		}
		counts = append(counts, manifestTable{Name: table.Name, Rows: n})
	}

	m := manifest{
		TournamentID:   col.ID,
		TournamentName: col.Name,
		Slug:           col.Slug,
		ExportedAt:     e.now(),
		Format:         string(FormatCSV),
		Tables:         counts,
	}
	mw, err := zw.Create("_manifest.json")
	if err != nil {
		return fmt.Errorf("add manifest: %w", err)
	}
	enc := json.NewEncoder(mw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return f.Close()
}

func (e *Exporter) exportJSON(ctx context.Context, col Collection, path string) error {
	doc := make(map[string]any)
	var counts []manifestTable

	for _, table := range e.source.Tables() {
		rows := make([]Row, 0)
		n, err := e.streamTable(ctx, col.ID, table, func(row Row) error {
			rows = append(rows, row)
			return nil
		})
		if err != nil {
			return fmt.Errorf("export %s: %w", table.Name, err)
		}
		doc[table.Name] = rows
		counts = append(counts, manifestTable{Name: table.Name, Rows: n})
	}

	doc["_meta"] = manifest{
		TournamentID:   col.ID,
		TournamentName: col.Name,
		Slug:           col.Slug,
		ExportedAt:     e.now(),
		Format:         string(FormatJSON),
		Tables:         counts,
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	return f.Close()
}

// streamTable walks one table in BatchSize chunks, calling fn per row.
func (e *Exporter) streamTable(ctx context.Context, tournamentID int64, table Table, fn func(Row) error) (int, error) {
	total := 0
	for offset := 0; ; offset += BatchSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		rows, err := e.source.Fetch(ctx, tournamentID, table.Name, offset, BatchSize)
		if err != nil {
			return total, err
		}
		for _, row := range rows {
			if err := fn(row); err != nil {
				return total, err
			}
		}
		total += len(rows)
		if len(rows) < BatchSize {
			return total, nil
		}
	}
}
