// Package postgres persists campaigns, batches, sale records and domain
// events with pgx. Every table is keyed by tenant; records and campaigns are
// stored as JSONB next to the columns queries filter on.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-kasir/internal/sale"
	"github.com/noah-isme/backend-kasir/internal/tenant"
)

// ErrTenantMissing is returned when the context carries no tenant id.
var ErrTenantMissing = errors.New("tenant missing")

const uniqueViolation = "23505"

// querier is the subset shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements sale.Store, campaign.Repository, inventory.Repository and
// events.EventStore on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func tenantID(ctx context.Context) (string, error) {
	id, ok := tenant.FromContext(ctx)
	if !ok {
		return "", ErrTenantMissing
	}
	return id, nil
}

// InTx implements sale.Store. fn runs in a read-committed transaction that
// is committed only when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx sale.Tx) error) error {
	tid, err := tenantID(ctx)
	if err != nil {
		return err
	}
	pgtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = pgtx.Rollback(ctx)
	}()
	if err := fn(ctx, &tx{q: pgtx, tenant: tid}); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	pgtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = pgtx.Rollback(ctx)
	}()
	if err := fn(pgtx); err != nil {
		return err
	}
	return pgtx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
