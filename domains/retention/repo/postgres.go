// Package repo implements the retention engine's persistence against the
// tabulation database.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nekotab/control-plane/domains/retention/engine"
)

// PostgresRepository runs retention queries on the tabulation database.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a PostgresRepository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("pool is required")
	}
	return &PostgresRepository{pool: pool}
}

const collectionColumns = `
	t.id, t.slug, t.name,
	COALESCE(u.email, ''), COALESCE(u.first_name || ' ' || u.last_name, ''),
	t.created_at, t.retention_exempt, t.scheduled_for_deletion_at`

const collectionJoin = `
	FROM tournaments t
	LEFT JOIN auth_user u ON u.id = t.owner_id`

func (r *PostgresRepository) Eligible(ctx context.Context, cutoff time.Time) ([]engine.Collection, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+collectionColumns+collectionJoin+`
		WHERE t.retention_exempt = FALSE
		  AND t.scheduled_for_deletion_at IS NULL
		  AND t.created_at < $1
		ORDER BY t.created_at`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query eligible: %w", err)
	}
	defer rows.Close()
	return scanCollections(rows)
}

func (r *PostgresRepository) PastGrace(ctx context.Context, now time.Time) ([]engine.Collection, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+collectionColumns+collectionJoin+`
		WHERE t.scheduled_for_deletion_at IS NOT NULL
		  AND t.scheduled_for_deletion_at <= $1
		ORDER BY t.scheduled_for_deletion_at`, now)
	if err != nil {
		return nil, fmt.Errorf("query past grace: %w", err)
	}
	defer rows.Close()
	return scanCollections(rows)
}

func (r *PostgresRepository) Schedule(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tournaments SET scheduled_for_deletion_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("schedule deletion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New("tournament not found")
	}
	return nil
}

func (r *PostgresRepository) SnapshotCounts(ctx context.Context, id int64) (engine.SnapshotCounts, error) {
	var counts engine.SnapshotCounts
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM teams WHERE tournament_id = $1),
			(SELECT COUNT(*) FROM rounds WHERE tournament_id = $1),
			(SELECT COUNT(*) FROM debates d JOIN rounds r ON r.id = d.round_id WHERE r.tournament_id = $1)`,
		id).Scan(&counts.Teams, &counts.Rounds, &counts.Debates)
	if err != nil {
		return engine.SnapshotCounts{}, fmt.Errorf("snapshot counts: %w", err)
	}
	return counts, nil
}

// Delete removes a tournament and every dependent row in one transaction.
// Child tables are cleared explicitly, leaf tables first, so the delete
// does not depend on ON DELETE CASCADE being configured.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	statements := []string{
		`DELETE FROM adjudicator_feedback WHERE adjudicator_id IN (
			SELECT id FROM adjudicators WHERE tournament_id = $1)`,
		`DELETE FROM breaking_teams WHERE break_category_id IN (
			SELECT id FROM break_categories WHERE tournament_id = $1)`,
		`DELETE FROM speaker_scores WHERE ballot_id IN (
			SELECT b.id FROM ballots b
			JOIN debates d ON d.id = b.debate_id
			JOIN rounds r ON r.id = d.round_id
			WHERE r.tournament_id = $1)`,
		`DELETE FROM team_scores WHERE ballot_id IN (
			SELECT b.id FROM ballots b
			JOIN debates d ON d.id = b.debate_id
			JOIN rounds r ON r.id = d.round_id
			WHERE r.tournament_id = $1)`,
		`DELETE FROM ballots WHERE debate_id IN (
			SELECT d.id FROM debates d
			JOIN rounds r ON r.id = d.round_id
			WHERE r.tournament_id = $1)`,
		`DELETE FROM debates WHERE round_id IN (
			SELECT id FROM rounds WHERE tournament_id = $1)`,
		`DELETE FROM motions WHERE round_id IN (
			SELECT id FROM rounds WHERE tournament_id = $1)`,
		`DELETE FROM rounds WHERE tournament_id = $1`,
		`DELETE FROM speakers WHERE team_id IN (
			SELECT id FROM teams WHERE tournament_id = $1)`,
		`DELETE FROM teams WHERE tournament_id = $1`,
		`DELETE FROM adjudicators WHERE tournament_id = $1`,
		`DELETE FROM break_categories WHERE tournament_id = $1`,
		`DELETE FROM venues WHERE tournament_id = $1`,
		`DELETE FROM tournaments WHERE id = $1`,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt, id); err != nil {
			return fmt.Errorf("cascade delete: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func scanCollections(rows pgx.Rows) ([]engine.Collection, error) {
	var out []engine.Collection
	for rows.Next() {
		var c engine.Collection
		if err := rows.Scan(&c.ID, &c.Slug, &c.Name, &c.OwnerEmail, &c.OwnerName,
			&c.CreatedAt, &c.RetentionExempt, &c.ScheduledForDeletionAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PostgresDeletionLog writes retention outcomes to the deletion_logs table.
type PostgresDeletionLog struct {
	pool *pgxpool.Pool
}

// NewPostgresDeletionLog constructs a PostgresDeletionLog.
func NewPostgresDeletionLog(pool *pgxpool.Pool) *PostgresDeletionLog {
	if pool == nil {
		panic("pool is required")
	}
	return &PostgresDeletionLog{pool: pool}
}

func (l *PostgresDeletionLog) Append(ctx context.Context, entry engine.LogEntry) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO deletion_logs (
			id, tournament_id, slug, name, owner_email, owner_name,
			team_count, round_count, debate_count, status, archive_path, error_message, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		uuid.New(), entry.TournamentID, entry.Slug, entry.Name,
		entry.OwnerEmail, entry.OwnerName,
		entry.Counts.Teams, entry.Counts.Rounds, entry.Counts.Debates,
		string(entry.Status), entry.ArchivePath, entry.ErrorMessage, time.Now().UTC(),
	)
	return err
}

// Ensure interface compliance.
var (
	_ engine.Repository  = (*PostgresRepository)(nil)
	_ engine.DeletionLog = (*PostgresDeletionLog)(nil)
)
