// internal/store/postgres.go
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DefaultTable is the table the PostgreSQL backend uses when none is configured.
const DefaultTable = "automation_sessions"

// DBPool abstracts *pgxpool.Pool so the store can be tested with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres is a KV backed by one PostgreSQL table. Every row is scoped to a
// namespace (one per browser tab) so several runs can share the table.
type Postgres struct {
	pool      DBPool
	log       *zap.Logger
	table     string
	namespace string
}

// NewPostgres verifies the connection and returns a store scoped to namespace.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger, table, namespace string) (*Postgres, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if table == "" {
		table = DefaultTable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres{
		pool:      pool,
		log:       logger.Named("store").With(zap.String("namespace", namespace)),
		table:     pgx.Identifier{table}.Sanitize(),
		namespace: namespace,
	}, nil
}

// EnsureSchema creates the table if it does not exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (namespace, key)
		);`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create session table: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	query := fmt.Sprintf(`SELECT value FROM %s WHERE namespace = $1 AND key = $2;`, s.table)
	rows, err := s.pool.Query(ctx, query, s.namespace, key)
	if err != nil {
		return "", false, fmt.Errorf("failed to query session key %q: %w", key, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", false, fmt.Errorf("error iterating session rows: %w", err)
		}
		return "", false, nil
	}
	var value string
	if err := rows.Scan(&value); err != nil {
		return "", false, fmt.Errorf("failed to scan session value: %w", err)
	}
	return value, true, nil
}

func (s *Postgres) Set(ctx context.Context, key, value string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (namespace, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at;`, s.table)
	if _, err := s.pool.Exec(ctx, query, s.namespace, key, value); err != nil {
		return fmt.Errorf("failed to store session key %q: %w", key, err)
	}
	return nil
}

func (s *Postgres) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE namespace = $1 AND key = ANY($2);`, s.table)
	tag, err := s.pool.Exec(ctx, query, s.namespace, keys)
	if err != nil {
		return fmt.Errorf("failed to delete session keys: %w", err)
	}
	s.log.Debug("Deleted session keys.", zap.Int64("rows", tag.RowsAffected()))
	return nil
}
