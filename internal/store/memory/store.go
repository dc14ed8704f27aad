// Package memory is an in-process implementation of the persistence ports.
// Transactions are serialized by one mutex and run against a copy of the
// tenant's data that is swapped in only on commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/campaign"
	"github.com/noah-isme/backend-kasir/internal/discount"
	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/inventory"
	"github.com/noah-isme/backend-kasir/internal/sale"
	"github.com/noah-isme/backend-kasir/internal/tenant"
)

type tenantData struct {
	billSeq   int64
	batches   map[string]inventory.Batch
	records   map[string]sale.Record
	campaigns map[string]discount.Campaign
	events    []events.Event
}

func newTenantData() *tenantData {
	return &tenantData{
		batches:   make(map[string]inventory.Batch),
		records:   make(map[string]sale.Record),
		campaigns: make(map[string]discount.Campaign),
	}
}

func (d *tenantData) clone() *tenantData {
	out := &tenantData{
		billSeq:   d.billSeq,
		batches:   make(map[string]inventory.Batch, len(d.batches)),
		records:   make(map[string]sale.Record, len(d.records)),
		campaigns: make(map[string]discount.Campaign, len(d.campaigns)),
		events:    append([]events.Event(nil), d.events...),
	}
	for k, v := range d.batches {
		out.batches[k] = v
	}
	for k, v := range d.records {
		out.records[k] = v
	}
	for k, v := range d.campaigns {
		out.campaigns[k] = v
	}
	return out
}

// Store keeps all data in memory, partitioned by tenant.
type Store struct {
	mu      sync.Mutex
	tenants map[string]*tenantData
	now     func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{tenants: make(map[string]*tenantData), now: time.Now}
}

func (s *Store) dataLocked(ctx context.Context) *tenantData {
	id, _ := tenant.FromContext(ctx)
	d, ok := s.tenants[id]
	if !ok {
		d = newTenantData()
		s.tenants[id] = d
	}
	return d
}

// InTx implements sale.Store.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx sale.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	id, _ := tenant.FromContext(ctx)
	work := s.dataLocked(ctx).clone()
	if err := fn(ctx, &tx{data: work}); err != nil {
		return err
	}
	s.tenants[id] = work
	return nil
}

// PutBatch implements inventory.Repository.
func (s *Store) PutBatch(ctx context.Context, b inventory.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now().UTC()
	}
	s.dataLocked(ctx).batches[b.ID] = b
	return nil
}

// ListBatches implements inventory.Repository.
func (s *Store) ListBatches(ctx context.Context, productID string) ([]inventory.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{data: s.dataLocked(ctx)}).ListBatches(ctx, productID)
}

// Batch returns a batch by id.
func (s *Store) Batch(ctx context.Context, id string) (inventory.Batch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.dataLocked(ctx).batches[id]
	return b, ok
}

// Records returns every stored record of the tenant ordered by creation.
func (s *Store) Records(ctx context.Context) []sale.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sale.Record, 0)
	for _, r := range s.dataLocked(ctx).records {
		out = append(out, cloneRecord(r))
	}
	sortRecords(out)
	return out
}

// Events returns the persisted domain events of the tenant.
func (s *Store) Events(ctx context.Context) []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.dataLocked(ctx).events...)
}

// InsertDomainEvent implements events.EventStore.
func (s *Store) InsertDomainEvent(ctx context.Context, ev events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.dataLocked(ctx)
	d.events = append(d.events, ev)
	return nil
}

// SaveCampaign implements campaign.Repository.
func (s *Store) SaveCampaign(ctx context.Context, c discount.Campaign) (discount.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.dataLocked(ctx)
	if prev, ok := d.campaigns[c.ID]; ok {
		c.Version = prev.Version + 1
	} else {
		c.Version = 1
	}
	if c.IsDefault && c.IsActive {
		for id, other := range d.campaigns {
			if id != c.ID && other.IsDefault {
				other.IsDefault = false
				other.Version++
				d.campaigns[id] = other
			}
		}
	}
	d.campaigns[c.ID] = c
	return c, nil
}

// GetCampaign implements campaign.Repository.
func (s *Store) GetCampaign(ctx context.Context, id string) (discount.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.dataLocked(ctx).campaigns[id]
	if !ok {
		return discount.Campaign{}, fmt.Errorf("%s: %w", id, campaign.ErrNotFound)
	}
	return c, nil
}

// ListCampaigns implements campaign.Repository.
func (s *Store) ListCampaigns(ctx context.Context, limit, offset int) ([]discount.Campaign, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]discount.Campaign, 0)
	for _, c := range s.dataLocked(ctx).campaigns {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if offset >= total {
		return []discount.Campaign{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

// CurrentCampaign implements campaign.Repository.
func (s *Store) CurrentCampaign(ctx context.Context) (discount.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.dataLocked(ctx).campaigns {
		if c.IsDefault && c.IsActive {
			return c, nil
		}
	}
	return discount.Campaign{}, campaign.ErrNotFound
}

type tx struct {
	data *tenantData
}

func (t *tx) NextBillSequence(context.Context) (int64, error) {
	t.data.billSeq++
	return t.data.billSeq, nil
}

func (t *tx) ListBatches(_ context.Context, productID string) ([]inventory.Batch, error) {
	out := make([]inventory.Batch, 0)
	for _, b := range t.data.batches {
		if b.ProductID == productID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) GetBatch(_ context.Context, batchID string) (inventory.Batch, error) {
	b, ok := t.data.batches[batchID]
	if !ok {
		return inventory.Batch{}, fmt.Errorf("%s: %w", batchID, inventory.ErrBatchNotFound)
	}
	return b, nil
}

func (t *tx) AdjustBatchQuantity(_ context.Context, batchID string, delta decimal.Decimal) error {
	b, ok := t.data.batches[batchID]
	if !ok {
		return fmt.Errorf("%s: %w", batchID, inventory.ErrBatchNotFound)
	}
	next := b.Quantity.Add(delta)
	if next.IsNegative() {
		return fmt.Errorf("batch %s: %w", batchID, inventory.ErrInsufficientStock)
	}
	b.Quantity = next
	t.data.batches[batchID] = b
	return nil
}

func (t *tx) InsertRecord(_ context.Context, rec sale.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if _, dup := t.data.records[rec.ID]; dup {
		return fmt.Errorf("record %s already exists", rec.ID)
	}
	if rec.Status != sale.StatusReturnTransaction {
		for _, r := range t.data.records {
			if r.BillNumber == rec.BillNumber && r.Status == rec.Status {
				return fmt.Errorf("bill %s already has a %s record", rec.BillNumber, rec.Status)
			}
		}
	}
	t.data.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (t *tx) UpdateRecord(_ context.Context, rec sale.Record) error {
	prev, ok := t.data.records[rec.ID]
	if !ok {
		return fmt.Errorf("%s: %w", rec.ID, sale.ErrRecordNotFound)
	}
	if prev.Status == sale.StatusReturnTransaction {
		return fmt.Errorf("record %s is immutable", rec.ID)
	}
	t.data.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (t *tx) GetRecord(_ context.Context, billNumber string, status sale.Status, _ bool) (sale.Record, error) {
	for _, r := range t.data.records {
		if r.BillNumber == billNumber && r.Status == status {
			return cloneRecord(r), nil
		}
	}
	return sale.Record{}, sale.ErrRecordNotFound
}

func (t *tx) ListReturnTransactions(_ context.Context, billNumber string) ([]sale.Record, error) {
	out := make([]sale.Record, 0)
	for _, r := range t.data.records {
		if r.BillNumber == billNumber && r.Status == sale.StatusReturnTransaction {
			out = append(out, cloneRecord(r))
		}
	}
	sortRecords(out)
	return out, nil
}

func sortRecords(rs []sale.Record) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].CreatedAt.Before(rs[j].CreatedAt)
	})
}

// cloneRecord copies the slices of r so stored records never alias caller memory.
func cloneRecord(r sale.Record) sale.Record {
	items := make([]sale.Item, len(r.Items))
	for i, it := range r.Items {
		it.Allocations = append([]inventory.Allocation(nil), it.Allocations...)
		items[i] = it
	}
	r.Items = items
	r.AppliedDiscountSummary = append([]discount.AppliedRuleInfo{}, r.AppliedDiscountSummary...)
	log := make([]sale.ReturnLogEntry, len(r.ReturnedItemsLog))
	for i, e := range r.ReturnedItemsLog {
		e.Restocked = append([]inventory.Allocation(nil), e.Restocked...)
		log[i] = e
	}
	r.ReturnedItemsLog = log
	return r
}
