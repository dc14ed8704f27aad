package returns

import (
	"context"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/discount"
	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/inventory"
	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/sale"
	"github.com/noah-isme/backend-kasir/internal/tenant"
)

var tracer = otel.Tracer("github.com/noah-isme/backend-kasir/internal/returns")

// Locker serializes work on one key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Request is one return event.
type Request struct {
	Items  []ItemRequest `json:"items" validate:"required,min=1,dive"`
	Reason string        `json:"reason,omitempty" validate:"max=255"`
}

// Outcome is the result of a return or undo.
type Outcome struct {
	ReturnID string          `json:"returnId"`
	Refund   decimal.Decimal `json:"refundAmount"`
	Return   *sale.Record    `json:"return,omitempty"`
	Adjusted sale.Record     `json:"adjusted"`
}

// Service processes returns and their undo.
type Service struct {
	store     sale.Store
	campaigns sale.CampaignSource
	locker    Locker
	lockTTL   time.Duration
	events    *events.Bus
	logger    zerolog.Logger
	validate  *validator.Validate
	now       func() time.Time
}

// ServiceConfig groups Service dependencies. Locker is optional; the store's
// row lock on the original record already serializes returns on one bill.
type ServiceConfig struct {
	Store     sale.Store
	Campaigns sale.CampaignSource
	Locker    Locker
	LockTTL   time.Duration
	Events    *events.Bus
	Logger    zerolog.Logger
	Validator *validator.Validate
	Now       func() time.Time
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("returns: store is required")
	}
	if cfg.Validator == nil {
		cfg.Validator = common.NewValidator()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:     cfg.Store,
		campaigns: cfg.Campaigns,
		locker:    cfg.Locker,
		lockTTL:   cfg.LockTTL,
		events:    cfg.Events,
		logger:    cfg.Logger,
		validate:  cfg.Validator,
		now:       cfg.Now,
	}, nil
}

// Process returns items from billNumber. All writes happen in one
// transaction: the adjusted record, the return transaction record, the
// original's superseded flag and the restocked batches.
func (s *Service) Process(ctx context.Context, billNumber string, req Request) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "returns.Process")
	defer span.End()
	span.SetAttributes(attribute.String("sale.bill_number", billNumber))

	if err := s.validate.StructCtx(ctx, req); err != nil {
		return Outcome{}, err
	}
	var out Outcome
	err := s.withLock(ctx, billNumber, func(ctx context.Context) error {
		var err error
		out, err = s.process(ctx, billNumber, req)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		obs.RecordReturn("process", "error", 0)
		s.logger.Error().Err(err).Str("bill_number", billNumber).Msg("return failed")
		return Outcome{}, err
	}
	refund, _ := out.Refund.Float64()
	obs.RecordReturn("process", "ok", refund)
	s.logger.Info().
		Str("bill_number", billNumber).
		Str("return_id", out.ReturnID).
		Str("refund", out.Refund.String()).
		Str("adjusted_total", out.Adjusted.TotalAmount.String()).
		Msg("return processed")
	s.emit(ctx, events.TopicSaleReturned, billNumber, map[string]any{
		"billNumber":    billNumber,
		"returnId":      out.ReturnID,
		"refundAmount":  out.Refund,
		"adjustedTotal": out.Adjusted.TotalAmount,
	})
	return out, nil
}

func (s *Service) process(ctx context.Context, billNumber string, req Request) (Outcome, error) {
	campaign, err := s.pricedWith(ctx, billNumber)
	if err != nil {
		return Outcome{}, err
	}
	now := s.now().UTC()
	returnID := uuid.NewString()
	var out Outcome
	err = s.store.InTx(ctx, func(ctx context.Context, tx sale.Tx) error {
		bill, err := loadBill(ctx, tx, billNumber)
		if err != nil {
			return err
		}
		orig := bill.Original
		log := []sale.ReturnLogEntry{}
		if bill.Adjusted != nil {
			log = append(log, bill.Adjusted.ReturnedItemsLog...)
		}
		l, err := replay(orig.Items, log)
		if err != nil {
			return fmt.Errorf("bill %s: %w", billNumber, err)
		}

		var (
			entries  []sale.ReturnLogEntry
			returned []sale.Item
			restock  []inventory.Allocation
			refund   = decimal.Zero
		)
		for _, it := range req.Items {
			portions, err := l.drain(it.ProductID, it.BatchID, it.Quantity)
			if err != nil {
				return fmt.Errorf("bill %s: %w", billNumber, err)
			}
			plan := l.restock(portions)
			amount := Refund(orig.Items, portions)
			entries = append(entries, sale.ReturnLogEntry{
				ID:           uuid.NewString(),
				ReturnID:     returnID,
				ProductID:    it.ProductID,
				BatchID:      it.BatchID,
				Quantity:     it.Quantity,
				RefundAmount: amount,
				Reason:       req.Reason,
				ReturnedAt:   now,
				Restocked:    plan,
			})
			returned = append(returned, returnedItems(orig.Items, portions)...)
			restock = append(restock, plan...)
			refund = refund.Add(amount)
		}
		log = append(log, entries...)

		adj, err := Recompute(orig, log, campaign, now)
		if err != nil {
			return fmt.Errorf("bill %s: %w", billNumber, err)
		}
		if bill.Adjusted != nil {
			adj.ID = bill.Adjusted.ID
			adj.CreatedAt = bill.Adjusted.CreatedAt
			if err := tx.UpdateRecord(ctx, adj); err != nil {
				return fmt.Errorf("update adjusted bill %s: %w", billNumber, err)
			}
		} else {
			adj.ID = uuid.NewString()
			if err := tx.InsertRecord(ctx, adj); err != nil {
				return fmt.Errorf("insert adjusted bill %s: %w", billNumber, err)
			}
		}

		ret := sale.Record{
			ID:                      uuid.NewString(),
			BillNumber:              billNumber,
			OriginalID:              orig.ID,
			Status:                  sale.StatusReturnTransaction,
			Items:                   returned,
			SubtotalOriginal:        decimal.Zero,
			TotalItemDiscountAmount: decimal.Zero,
			TotalCartDiscountAmount: decimal.Zero,
			NetSubtotal:             decimal.Zero,
			AppliedDiscountSummary:  []discount.AppliedRuleInfo{},
			TaxRate:                 orig.TaxRate,
			TaxAmount:               decimal.Zero,
			TotalAmount:             refund,
			RefundAmount:            refund,
			DiscountSetID:           orig.DiscountSetID,
			ReturnedItemsLog:        entries,
			ReturnID:                returnID,
			CreatedAt:               now,
			UpdatedAt:               now,
		}
		if err := tx.InsertRecord(ctx, ret); err != nil {
			return fmt.Errorf("insert return %s: %w", returnID, err)
		}

		if !orig.Superseded {
			orig.Superseded = true
			orig.UpdatedAt = now
			if err := tx.UpdateRecord(ctx, orig); err != nil {
				return fmt.Errorf("supersede bill %s: %w", billNumber, err)
			}
		}
		for _, a := range restock {
			if err := tx.AdjustBatchQuantity(ctx, a.BatchID, a.Quantity); err != nil {
				return fmt.Errorf("restock batch %s: %w", a.BatchID, err)
			}
		}
		out = Outcome{ReturnID: returnID, Refund: refund, Return: &ret, Adjusted: adj}
		return nil
	})
	return out, err
}

// Undo reverses one return event: its log entries are marked undone, the
// adjusted record is recomputed without them and the restocked units are
// taken out of stock again. Return transaction records stay untouched.
func (s *Service) Undo(ctx context.Context, billNumber, returnID string) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "returns.Undo")
	defer span.End()
	span.SetAttributes(
		attribute.String("sale.bill_number", billNumber),
		attribute.String("sale.return_id", returnID),
	)

	var out Outcome
	err := s.withLock(ctx, billNumber, func(ctx context.Context) error {
		var err error
		out, err = s.undo(ctx, billNumber, returnID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		obs.RecordReturn("undo", "error", 0)
		s.logger.Error().Err(err).Str("bill_number", billNumber).Str("return_id", returnID).Msg("return undo failed")
		return Outcome{}, err
	}
	refund, _ := out.Refund.Float64()
	obs.RecordReturn("undo", "ok", refund)
	s.logger.Info().
		Str("bill_number", billNumber).
		Str("return_id", returnID).
		Str("adjusted_total", out.Adjusted.TotalAmount.String()).
		Msg("return undone")
	s.emit(ctx, events.TopicSaleReturnUndone, billNumber, map[string]any{
		"billNumber":    billNumber,
		"returnId":      returnID,
		"refundAmount":  out.Refund,
		"adjustedTotal": out.Adjusted.TotalAmount,
	})
	return out, nil
}

func (s *Service) undo(ctx context.Context, billNumber, returnID string) (Outcome, error) {
	campaign, err := s.pricedWith(ctx, billNumber)
	if err != nil {
		return Outcome{}, err
	}
	now := s.now().UTC()
	var out Outcome
	err = s.store.InTx(ctx, func(ctx context.Context, tx sale.Tx) error {
		bill, err := loadBill(ctx, tx, billNumber)
		if err != nil {
			return err
		}
		if bill.Adjusted == nil {
			return fmt.Errorf("bill %s return %s: %w", billNumber, returnID, ErrReturnNotFound)
		}
		log := append([]sale.ReturnLogEntry{}, bill.Adjusted.ReturnedItemsLog...)
		var (
			matched  int
			active   int
			restock  []inventory.Allocation
			refunded = decimal.Zero
		)
		for i := range log {
			if log[i].ReturnID != returnID {
				continue
			}
			matched++
			if log[i].Undone {
				continue
			}
			active++
			undoneAt := now
			log[i].Undone = true
			log[i].UndoneAt = &undoneAt
			restock = append(restock, log[i].Restocked...)
			refunded = refunded.Add(log[i].RefundAmount)
		}
		if matched == 0 {
			return fmt.Errorf("bill %s return %s: %w", billNumber, returnID, ErrReturnNotFound)
		}
		if active == 0 {
			return fmt.Errorf("bill %s return %s: %w", billNumber, returnID, ErrAlreadyUndone)
		}

		adj, err := Recompute(bill.Original, log, campaign, now)
		if err != nil {
			return fmt.Errorf("bill %s: %w", billNumber, err)
		}
		adj.ID = bill.Adjusted.ID
		adj.CreatedAt = bill.Adjusted.CreatedAt
		if err := tx.UpdateRecord(ctx, adj); err != nil {
			return fmt.Errorf("update adjusted bill %s: %w", billNumber, err)
		}
		for _, a := range restock {
			if err := tx.AdjustBatchQuantity(ctx, a.BatchID, a.Quantity.Neg()); err != nil {
				return fmt.Errorf("unrestock batch %s: %w", a.BatchID, err)
			}
		}
		out = Outcome{ReturnID: returnID, Refund: refunded, Adjusted: adj}
		return nil
	})
	return out, err
}

func loadBill(ctx context.Context, tx sale.Tx, billNumber string) (sale.Bill, error) {
	bill, err := sale.LoadBill(ctx, tx, billNumber, true)
	if errors.Is(err, sale.ErrRecordNotFound) {
		return sale.Bill{}, fmt.Errorf("bill %s: %w", billNumber, ErrBillNotFound)
	}
	return bill, err
}

// pricedWith resolves the campaign of billNumber's original record before
// the write transaction opens, so a live lookup never runs under the
// store's transaction. The fields it reads never change after the sale.
func (s *Service) pricedWith(ctx context.Context, billNumber string) (discount.Campaign, error) {
	var orig sale.Record
	err := s.store.InTx(ctx, func(ctx context.Context, tx sale.Tx) error {
		var err error
		orig, err = tx.GetRecord(ctx, billNumber, sale.StatusCompletedOriginal, false)
		return err
	})
	if errors.Is(err, sale.ErrRecordNotFound) {
		return discount.Campaign{}, fmt.Errorf("bill %s: %w", billNumber, ErrBillNotFound)
	}
	if err != nil {
		return discount.Campaign{}, err
	}
	return s.campaignFor(ctx, orig)
}

// campaignFor returns the campaign the original sale was priced with: the
// stored snapshot, else a live lookup of its id for records written without one.
func (s *Service) campaignFor(ctx context.Context, orig sale.Record) (discount.Campaign, error) {
	if c, ok := orig.Campaign(); ok {
		return c, nil
	}
	if orig.DiscountSetID == "" {
		return discount.Campaign{}, nil
	}
	if s.campaigns == nil {
		return discount.Campaign{}, fmt.Errorf("bill %s campaign %s: %w", orig.BillNumber, orig.DiscountSetID, sale.ErrCampaignNotFound)
	}
	c, ok, err := s.campaigns.Campaign(ctx, orig.DiscountSetID)
	if err != nil {
		return discount.Campaign{}, err
	}
	if !ok {
		return discount.Campaign{}, fmt.Errorf("bill %s campaign %s: %w", orig.BillNumber, orig.DiscountSetID, sale.ErrCampaignNotFound)
	}
	return c, nil
}

func (s *Service) withLock(ctx context.Context, billNumber string, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithLock(ctx, tenant.Key(ctx, "lock", "bill", billNumber), s.lockTTL, fn)
}

func (s *Service) emit(ctx context.Context, topic, billNumber string, payload any) {
	if s.events == nil {
		return
	}
	if _, err := s.events.Emit(ctx, topic, billNumber, payload); err != nil {
		s.logger.Warn().Err(err).Str("bill_number", billNumber).Str("topic", topic).Msg("emit event")
	}
}
