// Package provisioning implements the side-effecting halves of tenant
// lifecycle management: per-tenant Postgres databases and Swarm stacks.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Derived names are lowercase hex plus fixed prefixes, so anything outside
// this set indicates a caller bug, never user input.
var identifierPattern = regexp.MustCompile(`^[a-z0-9_]{1,63}$`)

const (
	createAttempts        = 3
	createInitialInterval = 2 * time.Second
)

// DBProvisioner creates and drops tenant databases using a superuser
// connection to the shared cluster.
type DBProvisioner struct {
	admin  *pgxpool.Pool
	logger *zap.Logger
}

// NewDBProvisioner constructs a DBProvisioner over an admin pool.
func NewDBProvisioner(admin *pgxpool.Pool, logger *zap.Logger) *DBProvisioner {
	if admin == nil {
		panic("admin pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBProvisioner{admin: admin, logger: logger}
}

// CreateDatabase creates a login role and a database owned by it, retrying
// transient failures. CREATE DATABASE cannot run inside a transaction, so
// each statement executes on its own and the whole sequence is idempotent:
// an existing role gets its password rotated and an existing database is
// reused.
func (p *DBProvisioner) CreateDatabase(ctx context.Context, dbName, dbUser, password string) error {
	if err := checkIdentifier(dbName); err != nil {
		return err
	}
	if err := checkIdentifier(dbUser); err != nil {
		return err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = createInitialInterval
	policy := backoff.WithContext(
		backoff.WithMaxRetries(expo, createAttempts-1),
		ctx,
	)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		if err := p.createOnce(ctx, dbName, dbUser, password); err != nil {
			p.logger.Warn("create tenant database attempt failed",
				zap.String("db_name", dbName),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		return nil
	}, policy)
}

func (p *DBProvisioner) createOnce(ctx context.Context, dbName, dbUser, password string) error {
	user := pgx.Identifier{dbUser}.Sanitize()
	db := pgx.Identifier{dbName}.Sanitize()
	pass := quoteLiteral(password)

	var exists bool
	if err := p.admin.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)`, dbUser).Scan(&exists); err != nil {
		return fmt.Errorf("check role: %w", err)
	}

	if exists {
		if _, err := p.admin.Exec(ctx, fmt.Sprintf(`ALTER ROLE %s WITH LOGIN PASSWORD %s`, user, pass)); err != nil {
			return fmt.Errorf("rotate role password: %w", err)
		}
	} else {
		if _, err := p.admin.Exec(ctx, fmt.Sprintf(`CREATE ROLE %s WITH LOGIN PASSWORD %s`, user, pass)); err != nil {
			return fmt.Errorf("create role: %w", err)
		}
	}

	if _, err := p.admin.Exec(ctx, fmt.Sprintf(`CREATE DATABASE %s OWNER %s`, db, user)); err != nil {
		if !isDuplicateDatabase(err) {
			return fmt.Errorf("create database: %w", err)
		}
	}

	if _, err := p.admin.Exec(ctx, fmt.Sprintf(`REVOKE ALL ON DATABASE %s FROM PUBLIC`, db)); err != nil {
		return fmt.Errorf("revoke public: %w", err)
	}
	if _, err := p.admin.Exec(ctx, fmt.Sprintf(`GRANT ALL PRIVILEGES ON DATABASE %s TO %s`, db, user)); err != nil {
		return fmt.Errorf("grant owner: %w", err)
	}

	return nil
}

// DropDatabase terminates open connections, then drops the database and
// role. Both drops use IF EXISTS so a partially provisioned tenant can
// still be cleaned up.
func (p *DBProvisioner) DropDatabase(ctx context.Context, dbName, dbUser string) error {
	if err := checkIdentifier(dbName); err != nil {
		return err
	}
	if err := checkIdentifier(dbUser); err != nil {
		return err
	}

	if _, err := p.admin.Exec(ctx, `
		SELECT pg_terminate_backend(pid)
		FROM pg_stat_activity
		WHERE datname = $1 AND pid <> pg_backend_pid()`, dbName); err != nil {
		return fmt.Errorf("terminate backends: %w", err)
	}

	db := pgx.Identifier{dbName}.Sanitize()
	user := pgx.Identifier{dbUser}.Sanitize()

	if _, err := p.admin.Exec(ctx, fmt.Sprintf(`DROP DATABASE IF EXISTS %s`, db)); err != nil {
		return fmt.Errorf("drop database: %w", err)
	}
	if _, err := p.admin.Exec(ctx, fmt.Sprintf(`DROP ROLE IF EXISTS %s`, user)); err != nil {
		return fmt.Errorf("drop role: %w", err)
	}

	p.logger.Info("tenant database dropped", zap.String("db_name", dbName))
	return nil
}

func checkIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return errors.New("unsafe identifier: " + name)
	}
	return nil
}

// quoteLiteral escapes a string for use as a SQL literal. Passwords cannot
// be bound as parameters inside CREATE ROLE.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func isDuplicateDatabase(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P04"
}
