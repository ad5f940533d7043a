package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"converse-backend/internal/config"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds every read and write the domain needs. The same methods run
// inside or outside a transaction depending on the querier behind them.
type Queries struct {
	q querier
}

type Store struct {
	*Queries
	db     *sql.DB
	sqlite bool
}

func setPragmaValues(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	// these next 2 extremely speed up performance of sqlite
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, "PRAGMA synchronous = normal"); err != nil {
		return err
	}

	return nil
}

func readPragmaValues(ctx context.Context, sugar *zap.SugaredLogger, db *sql.DB) error {
	var foreignKeysValue bool
	if err := db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeysValue); err != nil {
		return err
	}

	var journalModeValue string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalModeValue); err != nil {
		return err
	}

	var synchronousValue int
	if err := db.QueryRowContext(ctx, "PRAGMA synchronous").Scan(&synchronousValue); err != nil {
		return err
	}

	var synchronousValueStr string
	switch synchronousValue {
	case 0:
		synchronousValueStr = "off"
	case 1:
		synchronousValueStr = "normal"
	case 2:
		synchronousValueStr = "full"
	case 3:
		synchronousValueStr = "extra"
	default:
		return fmt.Errorf("synchronous value is unsupported")
	}

	sugar.Infof("sqlite PRAGMA foreign_keys: %t, journal_mode: %s, synchronous: %s", foreignKeysValue, journalModeValue, synchronousValueStr)
	return nil
}

func Setup(ctx context.Context, sugar *zap.SugaredLogger, cfg *config.Config) (*Store, error) {
	if cfg.SelfContained {
		sugar.Info("Connecting to database sqlite...")
		return OpenSqlite(ctx, sugar, cfg.SqlitePath)
	}

	sugar.Info("Connecting to database mysql/mariadb...")

	db, err := sql.Open("mysql", cfg.MysqlDSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &Store{Queries: &Queries{q: db}, db: db}
	if err := store.setupTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// OpenSqlite opens (or creates) the sqlite database at path. ":memory:" gives
// a private in-memory database.
func OpenSqlite(ctx context.Context, sugar *zap.SugaredLogger, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// there can be sqlite busy errors if this is not set to 1
	db.SetMaxOpenConns(1)

	if err := setPragmaValues(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := readPragmaValues(ctx, sugar, db); err != nil {
		db.Close()
		return nil, err
	}

	store := &Store{Queries: &Queries{q: db}, db: db, sqlite: true}
	if err := store.setupTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn inside one transaction. Any error from fn rolls back every
// write fn made.
func (s *Store) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(&Queries{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

func isDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		switch code {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(sqliteErr.Error(), "UNIQUE")
		}
	}
	return false
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// notFound turns sql.ErrNoRows into ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
