package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/datallboy/hlsget/internal/infra/config"
)

const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "postgres"
)

// ErrNotFound is returned when a job id is not in the history.
var ErrNotFound = errors.New("job not found")

// PersistentStore keeps the job history in SQLite or Postgres.
type PersistentStore struct {
	db      *sql.DB
	dialect string
}

// Open returns the store selected by store.driver, or nil when history is
// disabled.
func Open(cfg config.StoreConfig) (*PersistentStore, error) {
	switch cfg.Driver {
	case "":
		return nil, nil
	case dialectSQLite:
		return NewSQLiteStore(cfg.SQLitePath)
	case dialectPostgres:
		return NewPostgresStore(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

func NewSQLiteStore(dbPath string) (*PersistentStore, error) {
	dbDir := filepath.Dir(dbPath)

	// Ensure the database directory exists
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	return newStore(db, dialectSQLite)
}

func NewPostgresStore(dsn string) (*PersistentStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	return newStore(db, dialectPostgres)
}

func newStore(db *sql.DB, dialect string) (*PersistentStore, error) {
	// Ping makes sure the database is actually reachable and the DSN is valid
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", dialect, err)
	}

	store := &PersistentStore{db: db, dialect: dialect}

	if err := store.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}

	return store, nil
}

// rebind rewrites ? placeholders into $n for Postgres.
func (s *PersistentStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}

	var b strings.Builder
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

func (s *PersistentStore) Close() error {
	return s.db.Close()
}
