package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"teacherbot/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var ErrBackupUnsupported = errors.New("storage: backup is only available for sqlite")

// Config configures storage.
//
// Driver values:
//   - "sqlite" (default): database file at Path, ":memory:" for tests
//   - "postgres": DSN passed to lib/pq
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration
}

// Store bundles the repositories over one connection pool.
type Store struct {
	db     *sqlx.DB
	driver string
	log    logx.Logger

	Teachers      *TeacherRepo
	Admins        *GrantRepo
	SuperAdmins   *GrantRepo
	Messages      *MessageRepo
	Confirmations *ConfirmationRepo
}

// Open connects, applies pragmas (sqlite) and runs migrations.
func Open(ctx context.Context, cfg Config, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))

	var (
		db  *sqlx.DB
		err error
	)
	switch driver {
	case "", "sqlite", "sqlite3":
		driver = "sqlite"
		db, err = openSQLite(ctx, cfg)
	case "postgres", "postgresql", "pg":
		driver = "postgres"
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, errors.New("postgres dsn is required")
		}
		db, err = sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	st := NewWithDB(db, driver, log)
	if err := st.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", driver))
	return st, nil
}

// NewWithDB wraps an existing handle. driver selects the migration file.
func NewWithDB(db *sqlx.DB, driver string, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		db:            db,
		driver:        driver,
		log:           log,
		Teachers:      NewTeacherRepo(db),
		Admins:        NewGrantRepo(db, Admins),
		SuperAdmins:   NewGrantRepo(db, SuperAdmins),
		Messages:      NewMessageRepo(db),
		Confirmations: NewConfirmationRepo(db),
	}
}

func (s *Store) Driver() string { return s.driver }

// Grants dispatches a typed role table to its repository.
func (s *Store) Grants(t RoleTable) (*GrantRepo, error) {
	switch t {
	case Admins:
		return s.Admins, nil
	case SuperAdmins:
		return s.SuperAdmins, nil
	}
	return nil, fmt.Errorf("unknown role table %d", t)
}

// Migrate creates missing tables and indexes. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	name := "migrations/sqlite.sql"
	if s.driver == "postgres" {
		name = "migrations/postgres.sql"
	}
	b, err := migrationsFS.ReadFile(name)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Stats counts rows of every table in one round trip.
func (s *Store) Stats(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.GetContext(ctx, &c, `SELECT
		(SELECT COUNT(*) FROM teachers) AS teachers,
		(SELECT COUNT(*) FROM admins) AS admins,
		(SELECT COUNT(*) FROM super_admins) AS super_admins,
		(SELECT COUNT(*) FROM messages) AS messages,
		(SELECT COUNT(*) FROM read_confirmations) AS confirmations`)
	if err != nil {
		return Counts{}, fmt.Errorf("stats: %w", err)
	}
	return c, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
