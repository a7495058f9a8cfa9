package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nekotab/control-plane/domains/retention/export"
)

// exportTable pairs a table's archive schema with the query that produces
// it. Related records are folded into jsonb objects so the exporter can
// address them through double-underscore column paths.
type exportTable struct {
	table export.Table
	query string
}

var exportTables = []exportTable{
	{
		table: export.Table{
			Name:    "teams",
			Columns: []string{"id", "short_name", "long_name", "institution__name", "institution__code"},
		},
		query: `
			SELECT t.id, t.short_name, t.long_name,
				CASE WHEN i.id IS NULL THEN NULL
				     ELSE jsonb_build_object('name', i.name, 'code', i.code) END AS institution
			FROM teams t
			LEFT JOIN institutions i ON i.id = t.institution_id
			WHERE t.tournament_id = $1
			ORDER BY t.id LIMIT $2 OFFSET $3`,
	},
	{
		table: export.Table{
			Name:    "speakers",
			Columns: []string{"id", "name", "email", "team__short_name"},
		},
		query: `
			SELECT s.id, s.name, s.email,
				jsonb_build_object('short_name', t.short_name) AS team
			FROM speakers s
			JOIN teams t ON t.id = s.team_id
			WHERE t.tournament_id = $1
			ORDER BY s.id LIMIT $2 OFFSET $3`,
	},
	{
		table: export.Table{
			Name:    "adjudicators",
			Columns: []string{"id", "name", "email", "institution__name"},
		},
		query: `
			SELECT a.id, a.name, a.email,
				CASE WHEN i.id IS NULL THEN NULL
				     ELSE jsonb_build_object('name', i.name) END AS institution
			FROM adjudicators a
			LEFT JOIN institutions i ON i.id = a.institution_id
			WHERE a.tournament_id = $1
			ORDER BY a.id LIMIT $2 OFFSET $3`,
	},
	{
		table: export.Table{
			Name:    "rounds",
			Columns: []string{"id", "seq", "name", "abbreviation", "stage", "draw_type", "completed"},
		},
		query: `
			SELECT id, seq, name, abbreviation, stage, draw_type, completed
			FROM rounds
			WHERE tournament_id = $1
			ORDER BY seq, id LIMIT $2 OFFSET $3`,
	},
	{
		table: export.Table{
			Name:    "motions",
			Columns: []string{"id", "text", "reference", "round__seq", "round__name"},
		},
		query: `
			SELECT m.id, m.text, m.reference,
				jsonb_build_object('seq', r.seq, 'name', r.name) AS round
			FROM motions m
			JOIN rounds r ON r.id = m.round_id
			WHERE r.tournament_id = $1
			ORDER BY m.id LIMIT $2 OFFSET $3`,
	},
	{
		table: export.Table{
			Name:    "debates",
			Columns: []string{"id", "round__seq", "round__name", "venue", "result_status"},
		},
		query: `
			SELECT d.id,
				jsonb_build_object('seq', r.seq, 'name', r.name) AS round,
				d.venue, d.result_status
			FROM debates d
			JOIN rounds r ON r.id = d.round_id
			WHERE r.tournament_id = $1
			ORDER BY d.id LIMIT $2 OFFSET $3`,
	},
	{
		table: export.Table{
			Name:    "venues",
			Columns: []string{"id", "name", "priority"},
		},
		query: `
			SELECT id, name, priority
			FROM venues
			WHERE tournament_id = $1
			ORDER BY id LIMIT $2 OFFSET $3`,
	},
	{
		table: export.Table{
			Name:    "break_categories",
			Columns: []string{"id", "name", "slug", "break_size", "priority"},
		},
		query: `
			SELECT id, name, slug, break_size, priority
			FROM break_categories
			WHERE tournament_id = $1
			ORDER BY priority, id LIMIT $2 OFFSET $3`,
	},
	{
		table: export.Table{
			Name:    "breaking_teams",
			Columns: []string{"id", "break_category__name", "team__short_name", "rank"},
		},
		query: `
			SELECT bt.id,
				jsonb_build_object('name', bc.name) AS break_category,
				jsonb_build_object('short_name', t.short_name) AS team,
				bt.rank
			FROM breaking_teams bt
			JOIN break_categories bc ON bc.id = bt.break_category_id
			JOIN teams t ON t.id = bt.team_id
			WHERE bc.tournament_id = $1
			ORDER BY bc.priority, bt.rank, bt.id LIMIT $2 OFFSET $3`,
	},
	{
		table: export.Table{
			Name:    "adjudicator_feedback",
			Columns: []string{"id", "adjudicator__name", "debate__id", "score", "comments"},
		},
		query: `
			SELECT af.id,
				jsonb_build_object('name', a.name) AS adjudicator,
				jsonb_build_object('id', af.debate_id) AS debate,
				af.score, af.comments
			FROM adjudicator_feedback af
			JOIN adjudicators a ON a.id = af.adjudicator_id
			WHERE a.tournament_id = $1
			ORDER BY af.id LIMIT $2 OFFSET $3`,
	},
	{
		table: export.Table{
			Name:    "team_scores",
			Columns: []string{"id", "team__short_name", "debate__id", "points", "score", "win"},
		},
		query: `
			SELECT ts.id,
				jsonb_build_object('short_name', t.short_name) AS team,
				jsonb_build_object('id', d.id) AS debate,
				ts.points, ts.score, ts.win
			FROM team_scores ts
			JOIN ballots b ON b.id = ts.ballot_id
			JOIN debates d ON d.id = b.debate_id
			JOIN rounds r ON r.id = d.round_id
			JOIN teams t ON t.id = ts.team_id
			WHERE r.tournament_id = $1
			ORDER BY ts.id LIMIT $2 OFFSET $3`,
	},
	{
		table: export.Table{
			Name:    "speaker_scores",
			Columns: []string{"id", "speaker__name", "speaker__team__short_name", "position", "score"},
		},
		query: `
			SELECT ss.id,
				jsonb_build_object('name', s.name,
					'team', jsonb_build_object('short_name', t.short_name)) AS speaker,
				ss.position, ss.score
			FROM speaker_scores ss
			JOIN ballots b ON b.id = ss.ballot_id
			JOIN debates d ON d.id = b.debate_id
			JOIN rounds r ON r.id = d.round_id
			JOIN speakers s ON s.id = ss.speaker_id
			JOIN teams t ON t.id = s.team_id
			WHERE r.tournament_id = $1
			ORDER BY ss.id LIMIT $2 OFFSET $3`,
	},
}

// PostgresSource feeds the exporter straight from the tabulation database.
type PostgresSource struct {
	pool    *pgxpool.Pool
	queries map[string]string
	tables  []export.Table
}

// NewPostgresSource constructs a PostgresSource.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	if pool == nil {
		panic("pool is required")
	}
	queries := make(map[string]string, len(exportTables))
	tables := make([]export.Table, 0, len(exportTables))
	for _, et := range exportTables {
		queries[et.table.Name] = et.query
		tables = append(tables, et.table)
	}
	return &PostgresSource{pool: pool, queries: queries, tables: tables}
}

func (s *PostgresSource) Tables() []export.Table { return s.tables }

func (s *PostgresSource) Fetch(ctx context.Context, tournamentID int64, table string, offset, limit int) ([]export.Row, error) {
	query, ok := s.queries[table]
	if !ok {
		return nil, fmt.Errorf("unknown export table %q", table)
	}

	rows, err := s.pool.Query(ctx, query, tournamentID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", table, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []export.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read %s row: %w", table, err)
		}
		row := make(export.Row, len(fields))
		for i, fd := range fields {
			row[string(fd.Name)] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Ensure interface compliance.
var _ export.Source = (*PostgresSource)(nil)
