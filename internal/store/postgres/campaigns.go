package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-kasir/internal/campaign"
	"github.com/noah-isme/backend-kasir/internal/discount"
)

const campaignColumns = `payload, version, is_active, is_default`

// SaveCampaign implements campaign.Repository. Saving an active default
// demotes the previous default inside the same transaction.
func (s *Store) SaveCampaign(ctx context.Context, c discount.Campaign) (discount.Campaign, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return discount.Campaign{}, err
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return discount.Campaign{}, fmt.Errorf("encode campaign: %w", err)
	}
	err = s.withTx(ctx, func(q pgx.Tx) error {
		if c.IsDefault && c.IsActive {
			if _, err := q.Exec(ctx, `UPDATE campaigns
				SET is_default = false, version = version + 1, updated_at = now()
				WHERE tenant_id = $1 AND id <> $2 AND is_default`, tid, c.ID); err != nil {
				return fmt.Errorf("demote default campaign: %w", err)
			}
		}
		return q.QueryRow(ctx, `INSERT INTO campaigns (tenant_id, id, name, version, is_active, is_default, payload)
			VALUES ($1, $2, $3, 1, $4, $5, $6)
			ON CONFLICT (tenant_id, id) DO UPDATE SET
				name = EXCLUDED.name,
				version = campaigns.version + 1,
				is_active = EXCLUDED.is_active,
				is_default = EXCLUDED.is_default,
				payload = EXCLUDED.payload,
				updated_at = now()
			RETURNING version`, tid, c.ID, c.Name, c.IsActive, c.IsDefault, payload).Scan(&c.Version)
	})
	if err != nil {
		return discount.Campaign{}, err
	}
	return c, nil
}

// GetCampaign implements campaign.Repository.
func (s *Store) GetCampaign(ctx context.Context, id string) (discount.Campaign, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return discount.Campaign{}, err
	}
	c, err := scanCampaign(s.pool.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns
		WHERE tenant_id = $1 AND id = $2`, tid, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return discount.Campaign{}, fmt.Errorf("%s: %w", id, campaign.ErrNotFound)
	}
	return c, err
}

// ListCampaigns implements campaign.Repository.
func (s *Store) ListCampaigns(ctx context.Context, limit, offset int) ([]discount.Campaign, int, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM campaigns WHERE tenant_id = $1`, tid).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx, `SELECT `+campaignColumns+` FROM campaigns
		WHERE tenant_id = $1 ORDER BY id LIMIT $2 OFFSET $3`, tid, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]discount.Campaign, 0)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// CurrentCampaign implements campaign.Repository.
func (s *Store) CurrentCampaign(ctx context.Context) (discount.Campaign, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return discount.Campaign{}, err
	}
	c, err := scanCampaign(s.pool.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns
		WHERE tenant_id = $1 AND is_default AND is_active`, tid))
	if errors.Is(err, pgx.ErrNoRows) {
		return discount.Campaign{}, campaign.ErrNotFound
	}
	return c, err
}

// scanCampaign decodes the payload and lets the columns win for the fields
// other saves may change.
func scanCampaign(row pgx.Row) (discount.Campaign, error) {
	var (
		payload []byte
		c       discount.Campaign
		version int
		active  bool
		def     bool
	)
	if err := row.Scan(&payload, &version, &active, &def); err != nil {
		return discount.Campaign{}, err
	}
	if err := json.Unmarshal(payload, &c); err != nil {
		return discount.Campaign{}, fmt.Errorf("decode campaign: %w", err)
	}
	c.Version = version
	c.IsActive = active
	c.IsDefault = def
	return c, nil
}
