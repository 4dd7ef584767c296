package postgres

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// pool wraps a *pgxpool.Pool behind a mutex so that a reopen triggered by
// the store gateway's retry policy is synchronized: concurrent callers that
// observe a stale connection all wait for the same new handle instead of
// each racing to reconnect (spec §5, "Shared resources").
type pool struct {
	dsn string

	mu  sync.Mutex
	pgx *pgxpool.Pool
}

func newPool(ctx context.Context, dsn string) (*pool, error) {
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return &pool{dsn: dsn, pgx: p}, nil
}

// get returns the current handle for use by an operation.
func (p *pool) get() *pgxpool.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pgx
}

// reopen closes the current handle and opens a fresh one, used as the
// store gateway's retry-once reconnect step.
func (p *pool) reopen(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pgx.Close()

	fresh, err := pgxpool.New(ctx, p.dsn)
	if err != nil {
		return err
	}
	p.pgx = fresh
	return nil
}

func (p *pool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pgx.Close()
}
