package postgres

import (
	"context"

	"github.com/noah-isme/backend-kasir/internal/events"
)

// InsertDomainEvent implements events.EventStore.
func (s *Store) InsertDomainEvent(ctx context.Context, ev events.Event) error {
	tid := ev.TenantID
	if tid == "" {
		var err error
		if tid, err = tenantID(ctx); err != nil {
			return err
		}
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO domain_events (id, tenant_id, topic, aggregate_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, tid, ev.Topic, ev.AggregateID, []byte(ev.Payload), ev.OccurredAt)
	return err
}
