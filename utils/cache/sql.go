package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"   // postgres driver
	_ "modernc.org/sqlite" // sqlite driver
)

// Dialect captures the placeholder differences between the supported SQL backends
type Dialect struct {
	Name        string
	Driver      string
	placeholder func(n int) string
}

var (
	// Postgres uses $n placeholders and the lib/pq driver
	Postgres = Dialect{Name: "postgres", Driver: "postgres", placeholder: func(n int) string { return fmt.Sprintf("$%d", n) }}
	// SQLite uses ? placeholders and the modernc.org/sqlite driver
	SQLite = Dialect{Name: "sqlite", Driver: "sqlite", placeholder: func(int) string { return "?" }}
)

const cacheTable = "prompt_cache"

// SQLStore implements Store on a single table in a SQL database
type SQLStore struct {
	db        *sql.DB
	dialect   Dialect
	now       func() time.Time
	selectSQL string
	upsertSQL string
}

// NewSQLStore wraps an open database. The table must exist, see EnsureSchema.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	p := dialect.placeholder
	return &SQLStore{
		db:        db,
		dialect:   dialect,
		now:       time.Now,
		selectSQL: fmt.Sprintf("SELECT value, expires_at FROM %s WHERE cache_key = %s", cacheTable, p(1)),
		upsertSQL: fmt.Sprintf(
			"INSERT INTO %s (cache_key, value, expires_at) VALUES (%s, %s, %s) "+
				"ON CONFLICT (cache_key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at",
			cacheTable, p(1), p(2), p(3)),
	}
}

// OpenPostgresStore opens a Postgres database and creates the cache table if needed
func OpenPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	return openSQLStore(ctx, Postgres, dsn)
}

// OpenSQLiteStore opens a SQLite database file and creates the cache table if needed
func OpenSQLiteStore(ctx context.Context, dsn string) (*SQLStore, error) {
	return openSQLStore(ctx, SQLite, dsn)
}

func openSQLStore(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s cache: %w", dialect.Name, err)
	}
	if dialect.Name == SQLite.Name {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	}
	store := NewSQLStore(db, dialect)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// EnsureSchema creates the cache table when it does not exist
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (cache_key TEXT PRIMARY KEY, value TEXT NOT NULL, expires_at BIGINT)", cacheTable)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create %s cache table: %w", s.dialect.Name, err)
	}
	return nil
}

// Get returns the value stored under key, treating expired rows as misses
func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var expiresAt sql.NullInt64

	err := s.db.QueryRowContext(ctx, s.selectSQL, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s cache get error: %w", s.dialect.Name, err)
	}
	if expiresAt.Valid && s.now().Unix() >= expiresAt.Int64 {
		return "", false, nil
	}
	return value, true, nil
}

// Set upserts value under key. A zero ttl stores a row without expiry.
func (s *SQLStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	var expiresAt sql.NullInt64
	if ttl > 0 {
		expiresAt = sql.NullInt64{Int64: s.now().Add(ttl).Unix(), Valid: true}
	}
	if _, err := s.db.ExecContext(ctx, s.upsertSQL, key, value, expiresAt); err != nil {
		return fmt.Errorf("%s cache set error: %w", s.dialect.Name, err)
	}
	return nil
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}
