package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/common"
)

// ErrInvalidBatch is wrapped by batch validation failures.
var ErrInvalidBatch = errors.New("invalid batch")

// Repository stores batches outside of a sale transaction.
type Repository interface {
	PutBatch(ctx context.Context, b Batch) error
	ListBatches(ctx context.Context, productID string) ([]Batch, error)
}

// BatchInput is the body of a batch upsert.
type BatchInput struct {
	ProductID    string          `json:"productId" validate:"required,max=128"`
	Quantity     decimal.Decimal `json:"quantity" validate:"gte=0"`
	CostPrice    decimal.Decimal `json:"costPrice" validate:"gte=0"`
	SellingPrice decimal.Decimal `json:"sellingPrice" validate:"gte=0"`
	ExpiresAt    *time.Time      `json:"expiresAt,omitempty"`
	CreatedAt    *time.Time      `json:"createdAt,omitempty"`
}

// Service manages stock batches.
type Service struct {
	repo     Repository
	logger   zerolog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger
	Validator  *validator.Validate
	Now        func() time.Time
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repository == nil {
		return nil, errors.New("inventory: repository is required")
	}
	if cfg.Validator == nil {
		cfg.Validator = common.NewValidator()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{repo: cfg.Repository, logger: cfg.Logger, validate: cfg.Validator, now: cfg.Now}, nil
}

// Put creates or replaces batch id. The receipt time defaults to now and
// decides its place in FIFO order.
func (s *Service) Put(ctx context.Context, id string, in BatchInput) (Batch, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Batch{}, fmt.Errorf("%w: id is required", ErrInvalidBatch)
	}
	if err := s.validate.StructCtx(ctx, in); err != nil {
		return Batch{}, err
	}
	b := Batch{
		ID:           id,
		ProductID:    strings.TrimSpace(in.ProductID),
		Quantity:     in.Quantity,
		CostPrice:    in.CostPrice,
		SellingPrice: in.SellingPrice,
		ExpiresAt:    in.ExpiresAt,
		CreatedAt:    s.now().UTC(),
	}
	if in.CreatedAt != nil {
		b.CreatedAt = in.CreatedAt.UTC()
	}
	if err := s.repo.PutBatch(ctx, b); err != nil {
		return Batch{}, err
	}
	s.logger.Info().Str("batch_id", b.ID).Str("product_id", b.ProductID).Str("quantity", b.Quantity.String()).Msg("batch stored")
	return b, nil
}

// List returns the batches of productID in FIFO order.
func (s *Service) List(ctx context.Context, productID string) ([]Batch, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, fmt.Errorf("%w: product id is required", ErrInvalidBatch)
	}
	batches, err := s.repo.ListBatches(ctx, productID)
	if err != nil {
		return nil, err
	}
	return oldestFirst(batches), nil
}

// Available sums the stock of productID across its batches.
func Available(batches []Batch) decimal.Decimal {
	sum := decimal.Zero
	for _, b := range batches {
		sum = sum.Add(b.Quantity)
	}
	return sum
}
