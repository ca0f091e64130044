package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/opensource-finance/claimrisk/internal/domain"
)

// sqlitePragmas apply to every community-tier connection.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
	"foreign_keys(ON)",
}

// dataSource resolves the database/sql driver name and DSN for cfg.
func dataSource(cfg domain.RepositoryConfig) (driverName, dsn string, err error) {
	switch cfg.Driver {
	case "sqlite":
		return "sqlite", sqliteDSN(cfg.SQLitePath), nil
	case "postgres":
		return "postgres", postgresDSN(cfg), nil
	default:
		return "", "", fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
}

func sqliteDSN(path string) string {
	if path == "" {
		path = "./claimrisk.db"
	}
	params := make([]string, len(sqlitePragmas))
	for i, p := range sqlitePragmas {
		params[i] = "_pragma=" + p
	}
	return "file:" + path + "?" + strings.Join(params, "&")
}

func postgresDSN(cfg domain.RepositoryConfig) string {
	port := cfg.PostgresPort
	if port == 0 {
		port = 5432
	}

	pairs := [][2]string{
		{"host", orDefault(cfg.PostgresHost, "localhost")},
		{"port", fmt.Sprint(port)},
		{"user", cfg.PostgresUser},
		{"password", cfg.PostgresPassword},
		{"dbname", orDefault(cfg.PostgresDB, "claimrisk")},
		{"sslmode", orDefault(cfg.PostgresSSLMode, "disable")},
	}

	parts := make([]string, 0, len(pairs))
	for _, kv := range pairs {
		if kv[1] == "" {
			continue
		}
		parts = append(parts, kv[0]+"="+quoteConnValue(kv[1]))
	}
	return strings.Join(parts, " ")
}

// quoteConnValue quotes a libpq keyword/value when it contains spaces,
// quotes or backslashes.
func quoteConnValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// open connects and pings the configured database. SQLite parent
// directories are created on demand.
func open(cfg domain.RepositoryConfig) (*sql.DB, error) {
	driverName, dsn, err := dataSource(cfg)
	if err != nil {
		return nil, err
	}

	if driverName == "sqlite" && cfg.SQLitePath != "" {
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", cfg.Driver, err)
	}
	return db, nil
}
