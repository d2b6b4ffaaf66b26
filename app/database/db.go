package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// DB wraps the connection pool together with the SQL dialect it speaks.
type DB struct {
	*sql.DB
	dialect string
}

// Open connects to PostgreSQL when databaseURL is set and to the embedded
// SQLite file at dbPath otherwise, then applies pending migrations.
func Open(ctx context.Context, databaseURL, dbPath string) (*DB, error) {
	var (
		db  *DB
		err error
	)
	if databaseURL != "" {
		db, err = openPostgres(ctx, databaseURL)
	} else {
		db, err = openSQLite(ctx, dbPath)
	}
	if err != nil {
		return nil, err
	}

	var version uint
	var dirty bool
	if db.dialect == DialectPostgres {
		version, dirty, err = RunPostgresMigrations(db.DB)
	} else {
		version, dirty, err = RunSQLiteMigrations(db.DB)
	}
	if err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("Database ready", "dialect", db.dialect, "migration_version", version, "dirty", dirty)
	return db, nil
}

func openSQLite(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single writer connection keeps upserts serialized.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	return &DB{DB: sqlDB, dialect: DialectSQLite}, nil
}

func openPostgres(ctx context.Context, databaseURL string) (*DB, error) {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}

	return &DB{DB: sqlDB, dialect: DialectPostgres}, nil
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (db *DB) rebind(query string) string {
	if db.dialect != DialectPostgres {
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

// timeArg encodes a timestamp for the active dialect. SQLite keeps unix microseconds.
func (db *DB) timeArg(t time.Time) any {
	t = t.UTC().Truncate(time.Microsecond)
	if db.dialect == DialectSQLite {
		return t.UnixMicro()
	}
	return t
}

// nullTime scans either an INTEGER microsecond column or a native timestamp.
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (n *nullTime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
	case int64:
		n.Time, n.Valid = time.UnixMicro(v).UTC(), true
	case time.Time:
		n.Time, n.Valid = v.UTC(), true
	case []byte:
		return n.parse(string(v))
	case string:
		return n.parse(v)
	default:
		return fmt.Errorf("unsupported timestamp type %T", value)
	}
	return nil
}

func (n *nullTime) parse(s string) error {
	if micros, err := strconv.ParseInt(s, 10, 64); err == nil {
		n.Time, n.Valid = time.UnixMicro(micros).UTC(), true
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	n.Time, n.Valid = t.UTC(), true
	return nil
}

func (n nullTime) Ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}
