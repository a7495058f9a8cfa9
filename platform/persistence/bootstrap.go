package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/nekotab/control-plane/database"
)

// BootstrapControlPlane applies the control-plane metadata DDL (tenants,
// provisioning_logs) in a single transaction. SQL is embedded at build time
// so binaries stay self-contained. Idempotent.
func BootstrapControlPlane(ctx context.Context, pool *pgxpool.Pool) error {
	return applyDDL(ctx, pool, sqlassets.ControlPlaneSQL)
}

// BootstrapRetention applies the retention bookkeeping DDL (retention
// columns on tournaments, deletion_logs) on the tabulation database.
// Idempotent.
func BootstrapRetention(ctx context.Context, pool *pgxpool.Pool) error {
	return applyDDL(ctx, pool, sqlassets.RetentionSQL)
}

func applyDDL(ctx context.Context, pool *pgxpool.Pool, ddl string) error {
	if pool == nil {
		return fmt.Errorf("bootstrap: pool is required")
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, stmt := range splitStatements(ddl) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply ddl: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// splitStatements breaks a DDL asset into individual statements. The
// embedded assets contain no string literals with semicolons, so a plain
// split is sufficient.
func splitStatements(ddl string) []string {
	parts := strings.Split(ddl, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
