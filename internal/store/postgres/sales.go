package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/inventory"
	"github.com/noah-isme/backend-kasir/internal/sale"
)

const batchColumns = `id, product_id, quantity, cost_price, selling_price, expires_at, created_at`

type tx struct {
	q      querier
	tenant string
}

func (t *tx) NextBillSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO bill_sequences (tenant_id, last_value) VALUES ($1, 1)
		ON CONFLICT (tenant_id) DO UPDATE SET last_value = bill_sequences.last_value + 1
		RETURNING last_value`, t.tenant).Scan(&seq)
	return seq, err
}

func (t *tx) ListBatches(ctx context.Context, productID string) ([]inventory.Batch, error) {
	return listBatches(ctx, t.q, t.tenant, productID, true)
}

func (t *tx) GetBatch(ctx context.Context, batchID string) (inventory.Batch, error) {
	row := t.q.QueryRow(ctx, `SELECT `+batchColumns+` FROM batches
		WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, t.tenant, batchID)
	b, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.Batch{}, fmt.Errorf("%s: %w", batchID, inventory.ErrBatchNotFound)
	}
	return b, err
}

// AdjustBatchQuantity adds delta to the batch, refusing to go below zero.
func (t *tx) AdjustBatchQuantity(ctx context.Context, batchID string, delta decimal.Decimal) error {
	tag, err := t.q.Exec(ctx, `UPDATE batches SET quantity = quantity + $3
		WHERE tenant_id = $1 AND id = $2 AND quantity + $3 >= 0`, t.tenant, batchID, delta)
	if err != nil {
		return fmt.Errorf("adjust batch %s: %w", batchID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM batches WHERE tenant_id = $1 AND id = $2)`,
		t.tenant, batchID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s: %w", batchID, inventory.ErrBatchNotFound)
	}
	return fmt.Errorf("batch %s: %w", batchID, inventory.ErrInsufficientStock)
}

func (t *tx) InsertRecord(ctx context.Context, rec sale.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = t.q.Exec(ctx, `INSERT INTO sale_records
		(tenant_id, id, bill_number, status, return_id, superseded, total_amount, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10)`,
		t.tenant, rec.ID, rec.BillNumber, string(rec.Status), rec.ReturnID, rec.Superseded,
		rec.TotalAmount, payload, rec.CreatedAt, rec.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("bill %s already has a %s record: %w", rec.BillNumber, rec.Status, err)
	}
	return err
}

// UpdateRecord rewrites a stored record. Return transaction rows never match.
func (t *tx) UpdateRecord(ctx context.Context, rec sale.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	tag, err := t.q.Exec(ctx, `UPDATE sale_records
		SET superseded = $3, total_amount = $4, payload = $5, updated_at = $6
		WHERE tenant_id = $1 AND id = $2 AND status <> 'RETURN_TRANSACTION_COMPLETED'`,
		t.tenant, rec.ID, rec.Superseded, rec.TotalAmount, payload, rec.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", rec.ID, sale.ErrRecordNotFound)
	}
	return nil
}

func (t *tx) GetRecord(ctx context.Context, billNumber string, status sale.Status, forUpdate bool) (sale.Record, error) {
	query := `SELECT payload FROM sale_records
		WHERE tenant_id = $1 AND bill_number = $2 AND status = $3`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rec, err := scanRecord(t.q.QueryRow(ctx, query, t.tenant, billNumber, string(status)))
	if errors.Is(err, pgx.ErrNoRows) {
		return sale.Record{}, sale.ErrRecordNotFound
	}
	return rec, err
}

func (t *tx) ListReturnTransactions(ctx context.Context, billNumber string) ([]sale.Record, error) {
	rows, err := t.q.Query(ctx, `SELECT payload FROM sale_records
		WHERE tenant_id = $1 AND bill_number = $2 AND status = 'RETURN_TRANSACTION_COMPLETED'
		ORDER BY created_at, id`, t.tenant, billNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]sale.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (sale.Record, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		return sale.Record{}, err
	}
	var rec sale.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return sale.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func listBatches(ctx context.Context, q querier, tenantID, productID string, forUpdate bool) ([]inventory.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches
		WHERE tenant_id = $1 AND product_id = $2 ORDER BY created_at, id`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, query, tenantID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]inventory.Batch, 0)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBatch(row pgx.Row) (inventory.Batch, error) {
	var b inventory.Batch
	err := row.Scan(&b.ID, &b.ProductID, &b.Quantity, &b.CostPrice, &b.SellingPrice, &b.ExpiresAt, &b.CreatedAt)
	return b, err
}
