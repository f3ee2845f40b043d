package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Registers the pgx driver
	_ "modernc.org/sqlite"             // Registers the sqlite driver
)

// ErrNotFound is returned when a learner's card, deck or source does not exist.
var ErrNotFound = errors.New("storage: not found")

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn     *sql.DB
	postgres bool
	now      func() time.Time
}

// Open creates a new database connection and ensures the schema is up to date.
// driver is "sqlite" (modernc) or "pgx" (PostgreSQL).
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	var schema []string
	switch driver {
	case DriverSQLite:
		schema = sqliteSchema
	case DriverPostgres:
		schema = postgresSchema
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// One connection serialises writers and keeps ":memory:" databases alive.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	for _, stmt := range schema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return &DB{
		conn:     conn,
		postgres: driver == DriverPostgres,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// rebind rewrites "?" placeholders to "$n" for PostgreSQL.
func (db *DB) rebind(query string) string {
	if !db.postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// forUpdate is appended to reads that precede a write in the same transaction.
// SQLite already serialises through the single connection.
func (db *DB) forUpdate() string {
	if db.postgres {
		return " FOR UPDATE"
	}
	return ""
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withinTx runs fn in a transaction, committing only if fn succeeds.
func (db *DB) withinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// refreshDeckCounts recomputes card_count for the given decks.
func (db *DB) refreshDeckCounts(ctx context.Context, q queryer, deckIDs ...string) error {
	seen := make(map[string]bool, len(deckIDs))
	for _, id := range deckIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		_, err := q.ExecContext(ctx, db.rebind(`
			UPDATE decks
			SET card_count = (SELECT COUNT(*) FROM flashcards WHERE deck_id = ?), updated_at = ?
			WHERE id = ?
		`), id, db.now(), id)
		if err != nil {
			return fmt.Errorf("failed to refresh card count for deck %s: %w", id, err)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
