package db

import (
	"context"
	_ "embed"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/snipe-engine/pkg/models"
)

// schemaSQL is compiled into the binary at build time so schema init works
// inside the Docker runtime image, which does not copy the .sql file.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore is the optional bundle-audit sink. The engine runs fully
// without it; the caller simply passes no sink when DATABASE_URL is absent.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}
	log.Println("Successfully connected to PostgreSQL for bundle audit log")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *PostgresStore) InitSchema() error {
	if _, err := s.pool.Exec(context.Background(), schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}
	log.Println("Bundle audit schema initialized")
	return nil
}

// SaveBundleEvent appends one lifecycle event to the audit log.
func (s *PostgresStore) SaveBundleEvent(ctx context.Context, ev models.BundleEvent) error {
	const insertSQL = `
		INSERT INTO bundle_events (cluster, owner, local_id, remote_id, state, error, event_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err := s.pool.Exec(ctx, insertSQL,
		ev.Cluster,
		ev.Owner,
		ev.LocalID,
		nullable(ev.RemoteID),
		ev.State,
		nullable(ev.Error),
		ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bundle_events: %v", err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
