package sale

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/discount"
	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/inventory"
	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/pricing"
)

var (
	// ErrEmptyCart is returned when a sale has no items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrCampaignNotFound is returned when a sale names an unknown campaign.
	ErrCampaignNotFound = errors.New("campaign not found")
	// ErrCampaignInactive is returned when a sale names a campaign that is switched off.
	ErrCampaignInactive = errors.New("campaign is not active")
	// ErrBatchMismatch is returned when a line names a batch of another product.
	ErrBatchMismatch = errors.New("batch does not belong to product")
)

var tracer = otel.Tracer("github.com/noah-isme/backend-kasir/internal/sale")

// Request is the cart submitted for preview or completion.
type Request struct {
	DiscountSetID string              `json:"discountSetId,omitempty"`
	Items         []discount.LineItem `json:"items" validate:"required,dive"`
}

// Quote is the priced cart returned by Preview.
type Quote struct {
	Discounts discount.Snapshot `json:"discounts"`
	Bill      Record            `json:"bill"`
}

// Bill groups every record of one logical bill.
type Bill struct {
	Original Record   `json:"original"`
	Adjusted *Record  `json:"adjusted,omitempty"`
	Returns  []Record `json:"returns"`
}

// Current returns the record that reflects the bill today.
func (b Bill) Current() Record {
	if b.Adjusted != nil {
		return *b.Adjusted
	}
	return b.Original
}

// Service prices carts and completes sales.
type Service struct {
	store      Store
	campaigns  CampaignSource
	rates      pricing.Rates
	events     *events.Bus
	logger     zerolog.Logger
	validate   *validator.Validate
	billPrefix string
	now        func() time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store      Store
	Campaigns  CampaignSource
	Rates      pricing.Rates
	Events     *events.Bus
	Logger     zerolog.Logger
	Validator  *validator.Validate
	BillPrefix string
	Now        func() time.Time
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("sale: store is required")
	}
	if cfg.Validator == nil {
		cfg.Validator = common.NewValidator()
	}
	if cfg.BillPrefix == "" {
		cfg.BillPrefix = "INV"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:      cfg.Store,
		campaigns:  cfg.Campaigns,
		rates:      cfg.Rates,
		events:     cfg.Events,
		logger:     cfg.Logger,
		validate:   cfg.Validator,
		billPrefix: cfg.BillPrefix,
		now:        cfg.Now,
	}, nil
}

// Rates returns the tax rates new sales are priced with.
func (s *Service) Rates() pricing.Rates { return s.rates }

// Preview prices the cart without persisting anything.
func (s *Service) Preview(ctx context.Context, req Request) (Quote, error) {
	cart, campaign, err := s.prepare(ctx, req)
	if err != nil {
		return Quote{}, err
	}
	res, sum := s.compute(ctx, "preview", campaign, cart)
	rec := Build(Draft{
		Cart:     cart,
		Result:   res,
		Summary:  sum,
		Campaign: campaign,
		TaxRate:  s.rates.GlobalPercent,
		Now:      s.now().UTC(),
	})
	return Quote{Discounts: res.Snapshot(), Bill: rec}, nil
}

// Complete prices the cart, allocates stock and persists a COMPLETED_ORIGINAL record.
func (s *Service) Complete(ctx context.Context, req Request) (Record, error) {
	ctx, span := tracer.Start(ctx, "sale.Complete")
	defer span.End()

	rec, err := s.complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		obs.RecordSale("error", 0, 0)
		s.logger.Error().Err(err).Str("discount_set_id", req.DiscountSetID).Msg("sale completion failed")
		return Record{}, err
	}
	span.SetAttributes(
		attribute.String("sale.bill_number", rec.BillNumber),
		attribute.String("sale.discount_set_id", rec.DiscountSetID),
	)
	itemDisc, _ := rec.TotalItemDiscountAmount.Float64()
	cartDisc, _ := rec.TotalCartDiscountAmount.Float64()
	obs.RecordSale("ok", itemDisc, cartDisc)
	s.logger.Info().
		Str("bill_number", rec.BillNumber).
		Str("discount_set_id", rec.DiscountSetID).
		Str("total", rec.TotalAmount.String()).
		Str("item_discount", rec.TotalItemDiscountAmount.String()).
		Str("cart_discount", rec.TotalCartDiscountAmount.String()).
		Msg("sale completed")

	if s.events != nil {
		payload := map[string]any{
			"billNumber":    rec.BillNumber,
			"discountSetId": rec.DiscountSetID,
			"totalAmount":   rec.TotalAmount,
		}
		if _, err := s.events.Emit(ctx, events.TopicSaleCompleted, rec.BillNumber, payload); err != nil {
			s.logger.Warn().Err(err).Str("bill_number", rec.BillNumber).Msg("emit sale.completed")
		}
	}
	return rec, nil
}

func (s *Service) complete(ctx context.Context, req Request) (Record, error) {
	cart, campaign, err := s.prepare(ctx, req)
	if err != nil {
		return Record{}, err
	}
	res, sum := s.compute(ctx, "complete", campaign, cart)
	now := s.now().UTC()

	var out Record
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		seq, err := tx.NextBillSequence(ctx)
		if err != nil {
			return fmt.Errorf("next bill sequence: %w", err)
		}
		rec := Build(Draft{
			Status:     StatusCompletedOriginal,
			BillNumber: s.billNumber(now, seq),
			Cart:       cart,
			Result:     res,
			Summary:    sum,
			Campaign:   campaign,
			TaxRate:    s.rates.GlobalPercent,
			Now:        now,
		})
		rec.ID = uuid.NewString()
		for i := range rec.Items {
			if err := allocate(ctx, tx, &rec.Items[i]); err != nil {
				return err
			}
		}
		if err := tx.InsertRecord(ctx, rec); err != nil {
			return fmt.Errorf("insert bill %s: %w", rec.BillNumber, err)
		}
		out = rec
		return nil
	})
	return out, err
}

// allocate picks the batches a line is served from, deducts their stock and
// fills the line's cost price.
func allocate(ctx context.Context, tx Tx, it *Item) error {
	var allocs []inventory.Allocation
	if it.BatchID != "" {
		batch, err := tx.GetBatch(ctx, it.BatchID)
		if err != nil {
			return fmt.Errorf("line %s: %w", it.LineID, err)
		}
		if batch.ProductID != it.ProductID {
			return fmt.Errorf("line %s: batch %s, product %s: %w", it.LineID, it.BatchID, it.ProductID, ErrBatchMismatch)
		}
		a, err := inventory.AllocateBatch(batch, it.Quantity)
		if err != nil {
			return fmt.Errorf("line %s: %w", it.LineID, err)
		}
		allocs = []inventory.Allocation{a}
	} else {
		batches, err := tx.ListBatches(ctx, it.ProductID)
		if err != nil {
			return fmt.Errorf("line %s: list batches: %w", it.LineID, err)
		}
		allocs, err = inventory.AllocateFIFO(batches, it.ProductID, it.Quantity)
		if err != nil {
			return fmt.Errorf("line %s: %w", it.LineID, err)
		}
	}
	for _, a := range allocs {
		if err := tx.AdjustBatchQuantity(ctx, a.BatchID, a.Quantity.Neg()); err != nil {
			return fmt.Errorf("line %s: deduct batch %s: %w", it.LineID, a.BatchID, err)
		}
	}
	it.Allocations = allocs
	it.CostPriceAtSale = inventory.WeightedCost(allocs)
	return nil
}

// Get loads the original, adjusted and return records of a bill.
func (s *Service) Get(ctx context.Context, billNumber string) (Bill, error) {
	var bill Bill
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		bill, err = LoadBill(ctx, tx, billNumber, false)
		return err
	})
	return bill, err
}

// LoadBill reads every record of billNumber inside tx. forUpdate locks the
// original record so concurrent return workflows on one bill serialize.
func LoadBill(ctx context.Context, tx Tx, billNumber string, forUpdate bool) (Bill, error) {
	orig, err := tx.GetRecord(ctx, billNumber, StatusCompletedOriginal, forUpdate)
	if err != nil {
		return Bill{}, fmt.Errorf("bill %s: %w", billNumber, err)
	}
	bill := Bill{Original: orig}
	adj, err := tx.GetRecord(ctx, billNumber, StatusAdjustedActive, forUpdate)
	switch {
	case err == nil:
		bill.Adjusted = &adj
	case !errors.Is(err, ErrRecordNotFound):
		return Bill{}, fmt.Errorf("bill %s adjusted record: %w", billNumber, err)
	}
	bill.Returns, err = tx.ListReturnTransactions(ctx, billNumber)
	if err != nil {
		return Bill{}, fmt.Errorf("bill %s returns: %w", billNumber, err)
	}
	if bill.Returns == nil {
		bill.Returns = []Record{}
	}
	return bill, nil
}

func (s *Service) prepare(ctx context.Context, req Request) (discount.Cart, discount.Campaign, error) {
	if len(req.Items) == 0 {
		return discount.Cart{}, discount.Campaign{}, ErrEmptyCart
	}
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return discount.Cart{}, discount.Campaign{}, err
	}
	cart := discount.Cart{Items: req.Items}
	if err := cart.Validate(); err != nil {
		return discount.Cart{}, discount.Campaign{}, err
	}
	campaign, err := s.resolveCampaign(ctx, strings.TrimSpace(req.DiscountSetID))
	if err != nil {
		return discount.Cart{}, discount.Campaign{}, err
	}
	return cart, campaign, nil
}

func (s *Service) resolveCampaign(ctx context.Context, id string) (discount.Campaign, error) {
	if s.campaigns == nil {
		if id != "" {
			return discount.Campaign{}, fmt.Errorf("%s: %w", id, ErrCampaignNotFound)
		}
		return discount.Campaign{}, nil
	}
	if id != "" {
		c, ok, err := s.campaigns.Campaign(ctx, id)
		if err != nil {
			return discount.Campaign{}, err
		}
		if !ok {
			return discount.Campaign{}, fmt.Errorf("%s: %w", id, ErrCampaignNotFound)
		}
		if !c.IsActive {
			return discount.Campaign{}, fmt.Errorf("%s: %w", id, ErrCampaignInactive)
		}
		return c, nil
	}
	c, ok, err := s.campaigns.Current(ctx)
	if err != nil {
		return discount.Campaign{}, err
	}
	if !ok {
		return discount.Campaign{}, nil
	}
	return c, nil
}

func (s *Service) compute(ctx context.Context, caller string, campaign discount.Campaign, cart discount.Cart) (*discount.Result, pricing.Summary) {
	_, span := tracer.Start(ctx, "discount.Engine.Process")
	defer span.End()
	start := time.Now()
	res, sum := Compute(campaign, cart, s.rates)
	obs.ObserveEngine(caller, time.Since(start))
	span.SetAttributes(
		attribute.String("discount.campaign_id", campaign.ID),
		attribute.Int("discount.lines", len(cart.Items)),
		attribute.Int("discount.applied_rules", len(res.AppliedRulesSummary())),
	)
	return res, sum
}

func (s *Service) billNumber(now time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%06d", s.billPrefix, now.Format("20060102"), seq)
}
