// Package database talks to the application's PostgreSQL database, when one
// is reachable from the build.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrNoURL means no database URL was configured.
var ErrNoURL = errors.New("no database URL configured")

// ServerVersion returns server_version_num (e.g. 90605 for 9.6.5) of the
// database at dsn.
func ServerVersion(ctx context.Context, dsn string) (int, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return 0, ErrNoURL
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return 0, fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return 0, fmt.Errorf("connect: %w", err)
	}
	var raw string
	if err := db.QueryRowContext(ctx, "SHOW server_version_num").Scan(&raw); err != nil {
		return 0, fmt.Errorf("query server version: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse server version %q: %w", raw, err)
	}
	return n, nil
}
