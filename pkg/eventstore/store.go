// Package eventstore implements the durable side of the replay contract:
// a Postgres-backed append log of a wallet's replica.ReplicaEvent history,
// adapted from the teacher's pkg/database/client.go connection-pool and
// migration-embed pattern. It is one satisfying implementation of the
// replay contract, not a mandated persistence policy — pkg/replica itself
// has no dependency on this package.
package eventstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/vaultmint/at2-replica/pkg/replica"
	"github.com/vaultmint/at2-replica/pkg/wallet"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a Postgres-backed append log, one row per (wallet, sequence
// number) pair, storing each replica.ReplicaEvent as canonical msgpack
// bytes.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Option is a functional option for configuring the Store.
type Option func(*Store)

// WithLogger sets a custom logger for the store.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Config holds the connection parameters a Store needs; kept separate
// from pkg/config.EventStoreSettings so this package doesn't depend on
// pkg/config.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to cfg.DSN, configures the connection pool, and verifies
// connectivity with a ping.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("event store DSN cannot be empty")
	}

	s := &Store{logger: log.New(log.Writer(), "[EventStore] ", log.LstdFlags)}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	s.db = db

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping event store: %w", err)
	}

	s.logger.Printf("connected to event store")
	return s, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append writes events in order, continuing the wallet's sequence from
// wherever it last left off. Each call is wrapped in a single transaction:
// either every event in the batch is recorded or none are.
func (s *Store) Append(ctx context.Context, walletID string, events []replica.ReplicaEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append transaction: %w", err)
	}
	defer tx.Rollback()

	var nextSeq int64
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), -1) + 1 FROM wallet_events WHERE wallet_id = $1`, walletID).Scan(&nextSeq)
	if err != nil {
		return fmt.Errorf("determine next sequence: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO wallet_events (wallet_id, seq, kind, payload) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, ev := range events {
		payload, err := wallet.CanonicalBytes(ev)
		if err != nil {
			return fmt.Errorf("encode event %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, walletID, nextSeq+int64(i), ev.Kind, payload); err != nil {
			return fmt.Errorf("insert event %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// decodeEvent decodes one row's payload back into a replica.ReplicaEvent.
// msgpack is self-describing, so the stored Kind column is redundant with
// the payload's own Kind field; it is kept for indexing and manual
// inspection, not decoded separately.
func decodeEvent(payload []byte) (replica.ReplicaEvent, error) {
	var ev replica.ReplicaEvent
	if err := wallet.CanonicalUnmarshal(payload, &ev); err != nil {
		return replica.ReplicaEvent{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

// Load returns every recorded event for walletID in sequence order, the
// input FromHistory needs to rebuild a replica.WalletReplica.
func (s *Store) Load(ctx context.Context, walletID string) ([]replica.ReplicaEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM wallet_events WHERE wallet_id = $1 ORDER BY seq ASC`, walletID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []replica.ReplicaEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		ev, err := decodeEvent(payload)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// MigrateUp executes every embedded migration in filename order on each
// call. It does not consult schema_migrations to skip migrations already
// applied; the embedded migrations are written to be re-runnable
// (CREATE TABLE IF NOT EXISTS, ON CONFLICT DO NOTHING).
func (s *Store) MigrateUp(ctx context.Context) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		sqlBytes, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		s.logger.Printf("applying migration %s", name)
		if _, err := s.db.ExecContext(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}
