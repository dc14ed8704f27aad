package postgres

import (
	"context"
	"fmt"

	"github.com/noah-isme/backend-kasir/internal/inventory"
)

// PutBatch implements inventory.Repository.
func (s *Store) PutBatch(ctx context.Context, b inventory.Batch) error {
	tid, err := tenantID(ctx)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO batches
		(tenant_id, id, product_id, quantity, cost_price, selling_price, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			quantity = EXCLUDED.quantity,
			cost_price = EXCLUDED.cost_price,
			selling_price = EXCLUDED.selling_price,
			expires_at = EXCLUDED.expires_at`,
		tid, b.ID, b.ProductID, b.Quantity, b.CostPrice, b.SellingPrice, b.ExpiresAt, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("put batch %s: %w", b.ID, err)
	}
	return nil
}

// ListBatches implements inventory.Repository.
func (s *Store) ListBatches(ctx context.Context, productID string) ([]inventory.Batch, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return nil, err
	}
	return listBatches(ctx, s.pool, tid, productID, false)
}
