package campaign

import (
	"context"
	"errors"

	"github.com/noah-isme/backend-kasir/internal/discount"
)

var (
	// ErrNotFound is returned when no campaign matches.
	ErrNotFound = errors.New("campaign not found")
	// ErrInvalid is wrapped by save-time validation failures.
	ErrInvalid = errors.New("invalid campaign")
)

// Repository persists campaigns per tenant.
type Repository interface {
	// SaveCampaign inserts or replaces c, bumping its version. When c is the
	// active default, any other default campaign is demoted in the same write.
	SaveCampaign(ctx context.Context, c discount.Campaign) (discount.Campaign, error)
	GetCampaign(ctx context.Context, id string) (discount.Campaign, error)
	ListCampaigns(ctx context.Context, limit, offset int) ([]discount.Campaign, int, error)
	// CurrentCampaign returns the active default campaign.
	CurrentCampaign(ctx context.Context) (discount.Campaign, error)
}
