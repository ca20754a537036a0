// Package drivertest provides an in-memory PostgresPool for service tests
// whose repositories are faked and only need transaction bookkeeping.
package drivertest

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errNotSupported = errors.New("drivertest: statement execution not supported")

type Pool struct {
	mu        sync.Mutex
	BeginErr  error
	CommitErr error
	Commits   int
	Rollbacks int
}

func NewPool() *Pool {
	return &Pool{}
}

func (p *Pool) Begin(context.Context) (pgx.Tx, error) {
	if p.BeginErr != nil {
		return nil, p.BeginErr
	}
	return &tx{pool: p}, nil
}

func (p *Pool) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errNotSupported
}

func (p *Pool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errNotSupported
}

func (p *Pool) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{}
}

func (p *Pool) Ping(context.Context) error { return nil }

type errRow struct{}

func (errRow) Scan(...any) error { return errNotSupported }

// tx satisfies pgx.Tx; only Commit and Rollback are implemented. A failed
// commit closes the transaction like pgx does.
type tx struct {
	pgx.Tx
	pool *Pool
	done bool
}

func (t *tx) Commit(context.Context) error {
	t.pool.mu.Lock()
	defer t.pool.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	if t.pool.CommitErr != nil {
		return t.pool.CommitErr
	}
	t.pool.Commits++
	return nil
}

func (t *tx) Rollback(context.Context) error {
	t.pool.mu.Lock()
	defer t.pool.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.pool.Rollbacks++
	return nil
}
