package sale

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/discount"
	"github.com/noah-isme/backend-kasir/internal/inventory"
)

// ErrRecordNotFound is returned by Tx lookups when no record matches.
var ErrRecordNotFound = errors.New("sale record not found")

// Tx is the unit of work the sale and return workflows run in. Every method
// sees the writes made earlier in the same Tx.
type Tx interface {
	NextBillSequence(ctx context.Context) (int64, error)
	ListBatches(ctx context.Context, productID string) ([]inventory.Batch, error)
	GetBatch(ctx context.Context, batchID string) (inventory.Batch, error)
	AdjustBatchQuantity(ctx context.Context, batchID string, delta decimal.Decimal) error
	InsertRecord(ctx context.Context, rec Record) error
	UpdateRecord(ctx context.Context, rec Record) error
	// GetRecord loads the record of billNumber with status. forUpdate locks
	// the row until the transaction ends.
	GetRecord(ctx context.Context, billNumber string, status Status, forUpdate bool) (Record, error)
	ListReturnTransactions(ctx context.Context, billNumber string) ([]Record, error)
}

// Store opens transactions. InTx commits when fn returns nil and rolls
// back otherwise; nothing fn wrote is visible after a rollback.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// CampaignSource resolves the campaign a sale is priced with.
type CampaignSource interface {
	Campaign(ctx context.Context, id string) (discount.Campaign, bool, error)
	Current(ctx context.Context) (discount.Campaign, bool, error)
}
