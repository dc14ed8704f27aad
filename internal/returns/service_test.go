package returns_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/campaign"
	"github.com/noah-isme/backend-kasir/internal/discount"
	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/inventory"
	"github.com/noah-isme/backend-kasir/internal/lock"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/returns"
	"github.com/noah-isme/backend-kasir/internal/sale"
	"github.com/noah-isme/backend-kasir/internal/store/memory"
	"github.com/noah-isme/backend-kasir/internal/tenant"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func requireDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, d(want).Equal(got), "expected %s, got %s %v", want, got, msgAndArgs)
}

type fixture struct {
	ctx       context.Context
	store     *memory.Store
	campaigns *campaign.Service
	sales     *sale.Service
	returns   *returns.Service
	bill      sale.Record
}

func newFixture(t *testing.T, locker returns.Locker) fixture {
	t.Helper()
	ctx := tenant.With(context.Background(), "outlet1")
	store := memory.New()
	now := func() time.Time { return time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC) }
	bus := &events.Bus{Store: store}

	campaigns, err := campaign.NewService(campaign.ServiceConfig{Repository: store, Logger: zerolog.Nop()})
	require.NoError(t, err)
	sales, err := sale.NewService(sale.ServiceConfig{
		Store:     store,
		Campaigns: campaigns,
		Rates:     pricing.Rates{GlobalPercent: d("10")},
		Events:    bus,
		Logger:    zerolog.Nop(),
		Now:       now,
	})
	require.NoError(t, err)
	svc, err := returns.NewService(returns.ServiceConfig{
		Store:     store,
		Campaigns: campaigns,
		Locker:    locker,
		Events:    bus,
		Logger:    zerolog.Nop(),
		Now:       now,
	})
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.PutBatch(ctx, inventory.Batch{ID: "shirt-a", ProductID: "shirt", Quantity: d("2"), CostPrice: d("50"), CreatedAt: base})
	store.PutBatch(ctx, inventory.Batch{ID: "shirt-b", ProductID: "shirt", Quantity: d("5"), CostPrice: d("65"), CreatedAt: base.AddDate(0, 1, 0)})
	store.PutBatch(ctx, inventory.Batch{ID: "sock-1", ProductID: "sock", Quantity: d("10"), CostPrice: d("2"), CreatedAt: base})

	_, err = campaigns.Save(ctx, discount.Campaign{
		ID:        "ten",
		Name:      "Ten percent",
		IsActive:  true,
		IsDefault: true,
		DefaultItem: discount.ItemRules{Value: &discount.RuleConfig{
			Enabled: true, Name: "10%", Type: discount.KindPercentage, Value: d("10"),
		}},
	})
	require.NoError(t, err)

	bill, err := sales.Complete(ctx, sale.Request{Items: []discount.LineItem{
		{LineID: "1", ProductID: "shirt", UnitPrice: d("100"), Quantity: d("3")},
		{LineID: "2", ProductID: "sock", BatchID: "sock-1", UnitPrice: d("10"), Quantity: d("2")},
	}})
	require.NoError(t, err)
	return fixture{ctx: ctx, store: store, campaigns: campaigns, sales: sales, returns: svc, bill: bill}
}

func (f fixture) stock(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	b, ok := f.store.Batch(f.ctx, id)
	require.True(t, ok)
	return b.Quantity
}

func returnOne(product string) returns.Request {
	return returns.Request{Items: []returns.ItemRequest{{ProductID: product, Quantity: d("1")}}}
}

func TestProcessRefundsEffectivePriceAndRecomputes(t *testing.T) {
	f := newFixture(t, nil)
	requireDec(t, "0", f.stock(t, "shirt-a"))
	requireDec(t, "4", f.stock(t, "shirt-b"))

	out, err := f.returns.Process(f.ctx, f.bill.BillNumber, returnOne("shirt"))
	require.NoError(t, err)
	requireDec(t, "90", out.Refund)
	require.NotNil(t, out.Return)
	require.Equal(t, sale.StatusReturnTransaction, out.Return.Status)
	requireDec(t, "90", out.Return.RefundAmount)

	adj := out.Adjusted
	require.Equal(t, sale.StatusAdjustedActive, adj.Status)
	require.Equal(t, f.bill.ID, adj.OriginalID)
	requireDec(t, "2", adj.Items[0].Quantity)
	requireDec(t, "220", adj.SubtotalOriginal)
	requireDec(t, "198", adj.NetSubtotal)
	requireDec(t, "217.8", adj.TotalAmount)
	require.Len(t, adj.ReturnedItemsLog, 1)

	requireDec(t, "5", f.stock(t, "shirt-b"), "newest batch restocked first")
	requireDec(t, "0", f.stock(t, "shirt-a"))

	bill, err := f.sales.Get(f.ctx, f.bill.BillNumber)
	require.NoError(t, err)
	require.True(t, bill.Original.Superseded)
	require.Len(t, bill.Original.Items, 2)
	requireDec(t, "3", bill.Original.Items[0].Quantity, "original stays pristine")
	require.NotNil(t, bill.Adjusted)
	require.Len(t, bill.Returns, 1)

	evs := f.store.Events(f.ctx)
	require.Equal(t, events.TopicSaleReturned, evs[len(evs)-1].Topic)
}

func TestSecondReturnUpdatesAdjustedRecord(t *testing.T) {
	f := newFixture(t, nil)
	first, err := f.returns.Process(f.ctx, f.bill.BillNumber, returnOne("shirt"))
	require.NoError(t, err)
	second, err := f.returns.Process(f.ctx, f.bill.BillNumber, returns.Request{Items: []returns.ItemRequest{
		{ProductID: "shirt", Quantity: d("1")},
		{ProductID: "sock", BatchID: "sock-1", Quantity: d("2")},
	}})
	require.NoError(t, err)

	require.Equal(t, first.Adjusted.ID, second.Adjusted.ID)
	require.Len(t, second.Adjusted.Items, 1)
	requireDec(t, "1", second.Adjusted.Items[0].Quantity)
	require.Len(t, second.Adjusted.ReturnedItemsLog, 3)
	requireDec(t, "108", second.Refund)
	requireDec(t, "1", f.stock(t, "shirt-a"), "second unit goes back to the older batch")
	requireDec(t, "10", f.stock(t, "sock-1"))

	bill, err := f.sales.Get(f.ctx, f.bill.BillNumber)
	require.NoError(t, err)
	require.Len(t, bill.Returns, 2)
}

func TestProcessUsesCampaignSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.campaigns.Save(f.ctx, discount.Campaign{
		ID:        "ten",
		Name:      "Now fifty",
		IsActive:  true,
		IsDefault: true,
		DefaultItem: discount.ItemRules{Value: &discount.RuleConfig{
			Enabled: true, Name: "50%", Type: discount.KindPercentage, Value: d("50"),
		}},
	})
	require.NoError(t, err)

	out, err := f.returns.Process(f.ctx, f.bill.BillNumber, returns.Request{Items: []returns.ItemRequest{
		{ProductID: "sock", BatchID: "sock-1", Quantity: d("1")},
	}})
	require.NoError(t, err)
	requireDec(t, "31", out.Adjusted.TotalItemDiscountAmount)
}

// dropSnapshot rewrites the original record as one stored before campaign
// snapshots existed.
func (f fixture) dropSnapshot(t *testing.T) {
	t.Helper()
	err := f.store.InTx(f.ctx, func(ctx context.Context, tx sale.Tx) error {
		orig, err := tx.GetRecord(ctx, f.bill.BillNumber, sale.StatusCompletedOriginal, true)
		if err != nil {
			return err
		}
		orig.CampaignSnapshot = nil
		return tx.UpdateRecord(ctx, orig)
	})
	require.NoError(t, err)
}

func TestProcessWithoutSnapshotUsesLiveCampaign(t *testing.T) {
	f := newFixture(t, nil)
	f.dropSnapshot(t)
	_, err := f.campaigns.Save(f.ctx, discount.Campaign{
		ID:        "ten",
		Name:      "Now fifty",
		IsActive:  true,
		IsDefault: true,
		DefaultItem: discount.ItemRules{Value: &discount.RuleConfig{
			Enabled: true, Name: "50%", Type: discount.KindPercentage, Value: d("50"),
		}},
	})
	require.NoError(t, err)

	type result struct {
		out returns.Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := f.returns.Process(f.ctx, f.bill.BillNumber, returns.Request{Items: []returns.ItemRequest{
			{ProductID: "sock", BatchID: "sock-1", Quantity: d("1")},
		}})
		done <- result{out, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("return on a record without campaign snapshot did not finish")
	}
	require.NoError(t, res.err)
	requireDec(t, "155", res.out.Adjusted.TotalItemDiscountAmount)
	requireDec(t, "9", res.out.Refund, "refund keeps the price paid at sale time")

	undone, err := f.returns.Undo(f.ctx, f.bill.BillNumber, res.out.ReturnID)
	require.NoError(t, err)
	requireDec(t, "160", undone.Adjusted.TotalItemDiscountAmount)
}

func TestProcessFailsAtomically(t *testing.T) {
	f := newFixture(t, nil)
	before := len(f.store.Records(f.ctx))

	_, err := f.returns.Process(f.ctx, f.bill.BillNumber, returns.Request{Items: []returns.ItemRequest{
		{ProductID: "shirt", Quantity: d("1")},
		{ProductID: "hat", Quantity: d("1")},
	}})
	require.ErrorIs(t, err, returns.ErrItemNotInBill)
	require.Len(t, f.store.Records(f.ctx), before)
	requireDec(t, "4", f.stock(t, "shirt-b"))

	_, err = f.returns.Process(f.ctx, f.bill.BillNumber, returns.Request{Items: []returns.ItemRequest{
		{ProductID: "shirt", Quantity: d("4")},
	}})
	require.ErrorIs(t, err, returns.ErrQuantityExceeded)

	_, err = f.returns.Process(f.ctx, "missing", returnOne("shirt"))
	require.ErrorIs(t, err, returns.ErrBillNotFound)

	_, err = f.returns.Process(f.ctx, f.bill.BillNumber, returns.Request{})
	require.Error(t, err)
}

func TestUndoRestoresBill(t *testing.T) {
	f := newFixture(t, nil)
	out, err := f.returns.Process(f.ctx, f.bill.BillNumber, returnOne("shirt"))
	require.NoError(t, err)

	undone, err := f.returns.Undo(f.ctx, f.bill.BillNumber, out.ReturnID)
	require.NoError(t, err)
	requireDec(t, "3", undone.Adjusted.Items[0].Quantity)
	require.True(t, undone.Adjusted.TotalAmount.Equal(f.bill.TotalAmount))
	require.True(t, undone.Adjusted.ReturnedItemsLog[0].Undone)
	require.NotNil(t, undone.Adjusted.ReturnedItemsLog[0].UndoneAt)
	requireDec(t, "4", f.stock(t, "shirt-b"))

	_, err = f.returns.Undo(f.ctx, f.bill.BillNumber, out.ReturnID)
	require.ErrorIs(t, err, returns.ErrAlreadyUndone)
	_, err = f.returns.Undo(f.ctx, f.bill.BillNumber, "nope")
	require.ErrorIs(t, err, returns.ErrReturnNotFound)

	bill, err := f.sales.Get(f.ctx, f.bill.BillNumber)
	require.NoError(t, err)
	require.Len(t, bill.Returns, 1)
	requireDec(t, "90", bill.Returns[0].RefundAmount)

	again, err := f.returns.Process(f.ctx, f.bill.BillNumber, returns.Request{Items: []returns.ItemRequest{
		{ProductID: "shirt", Quantity: d("3")},
	}})
	require.NoError(t, err, "undone units can be returned again")
	requireDec(t, "270", again.Refund)

	evs := f.store.Events(f.ctx)
	topics := make([]string, 0, len(evs))
	for _, ev := range evs {
		topics = append(topics, ev.Topic)
	}
	require.Contains(t, topics, events.TopicSaleReturnUndone)
}

func TestProcessWithRedisLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond})
	_, err := f.returns.Process(f.ctx, f.bill.BillNumber, returnOne("shirt"))
	require.NoError(t, err)
	require.Empty(t, mr.Keys(), "lock released")
}

func routed(ctx context.Context, r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return r.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rctx))
}

func TestHandlers(t *testing.T) {
	f := newFixture(t, nil)
	h := returns.NewHandler(returns.HandlerConfig{Service: f.returns})
	params := map[string]string{"billNumber": f.bill.BillNumber}
	path := "/api/v1/sales/" + f.bill.BillNumber + "/returns"

	req := routed(f.ctx, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"items":[{"productId":"shirt","quantity":"1"}]}`)), params)
	rec := httptest.NewRecorder()
	h.Process(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"refundAmount":"90"`)

	out, err := f.sales.Get(f.ctx, f.bill.BillNumber)
	require.NoError(t, err)
	returnID := out.Returns[0].ReturnID

	over := routed(f.ctx, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"items":[{"productId":"shirt","quantity":"9"}]}`)), params)
	overRec := httptest.NewRecorder()
	h.Process(overRec, over)
	require.Equal(t, http.StatusUnprocessableEntity, overRec.Code)
	require.Contains(t, overRec.Body.String(), "RETURN_QUANTITY_EXCEEDED")

	missing := routed(f.ctx, httptest.NewRequest(http.MethodPost, "/api/v1/sales/nope/returns", strings.NewReader(`{"items":[{"productId":"shirt","quantity":"1"}]}`)), map[string]string{"billNumber": "nope"})
	missingRec := httptest.NewRecorder()
	h.Process(missingRec, missing)
	require.Equal(t, http.StatusNotFound, missingRec.Code)
	require.Contains(t, missingRec.Body.String(), "BILL_NOT_FOUND")

	undoParams := map[string]string{"billNumber": f.bill.BillNumber, "returnId": returnID}
	undo := routed(f.ctx, httptest.NewRequest(http.MethodPost, path+"/"+returnID+"/undo", nil), undoParams)
	undoRec := httptest.NewRecorder()
	h.Undo(undoRec, undo)
	require.Equal(t, http.StatusOK, undoRec.Code, undoRec.Body.String())

	again := routed(f.ctx, httptest.NewRequest(http.MethodPost, path+"/"+returnID+"/undo", nil), undoParams)
	againRec := httptest.NewRecorder()
	h.Undo(againRec, again)
	require.Equal(t, http.StatusConflict, againRec.Code)
	require.Contains(t, againRec.Body.String(), "RETURN_ALREADY_UNDONE")
}
