package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrStoreUnavailable marks failures where the store itself cannot be
// reached. The orchestrator aborts the run on this class instead of
// attempting further batches.
var ErrStoreUnavailable = errors.New("store unavailable")

// DBTX is satisfied by both *sql.DB and *sql.Tx, so the dimension resolver
// can run inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Open connects to the relational store and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: ping: %w: %w", ErrStoreUnavailable, err)
	}
	return db, nil
}

// isUniqueViolation reports whether err is the store rejecting a duplicate
// natural key.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// isConnectivity reports whether err means the store became unreachable, as
// opposed to rejecting a statement. Unrecognized errors are not connectivity:
// the safe default is to fail only the current batch and keep going.
func isConnectivity(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr)
}
