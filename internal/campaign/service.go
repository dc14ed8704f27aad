package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/cache"
	"github.com/noah-isme/backend-kasir/internal/discount"
	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/tenant"
)

const currentKey = "current"

// Service validates, stores and serves campaigns through a read-through cache.
type Service struct {
	repo     Repository
	cache    *cache.Cache
	events   *events.Bus
	logger   zerolog.Logger
	validate *validator.Validate
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Repository Repository
	Cache      *cache.Cache
	Events     *events.Bus
	Logger     zerolog.Logger
	Validator  *validator.Validate
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repository == nil {
		return nil, errors.New("campaign: repository is required")
	}
	if cfg.Validator == nil {
		cfg.Validator = NewValidator()
	} else {
		Register(cfg.Validator)
	}
	return &Service{
		repo:     cfg.Repository,
		cache:    cfg.Cache,
		events:   cfg.Events,
		logger:   cfg.Logger,
		validate: cfg.Validator,
	}, nil
}

func cacheKey(ctx context.Context, id string) string {
	return tenant.Key(ctx, "campaign", id)
}

// Save validates c and stores it. An empty ID creates a new campaign. Every
// cached campaign of the tenant is invalidated because saving a default
// campaign may demote another one.
func (s *Service) Save(ctx context.Context, c discount.Campaign) (discount.Campaign, error) {
	c.ID = strings.TrimSpace(c.ID)
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.ID == currentKey {
		return discount.Campaign{}, fmt.Errorf("%w: id %q is reserved", ErrInvalid, c.ID)
	}
	if err := Validate(s.validate, c); err != nil {
		return discount.Campaign{}, err
	}
	saved, err := s.repo.SaveCampaign(ctx, c)
	if err != nil {
		return discount.Campaign{}, err
	}
	if n, err := s.cache.InvalidatePattern(ctx, tenant.Pattern(ctx, "campaign", "*")); err != nil {
		s.logger.Warn().Err(err).Str("campaign_id", saved.ID).Msg("campaign cache invalidation failed")
	} else if n > 0 {
		s.logger.Debug().Int("keys", n).Str("campaign_id", saved.ID).Msg("campaign cache invalidated")
	}
	s.logger.Info().
		Str("campaign_id", saved.ID).
		Int("version", saved.Version).
		Bool("default", saved.IsDefault).
		Msg("campaign saved")
	if s.events != nil {
		payload := map[string]any{"id": saved.ID, "version": saved.Version, "isDefault": saved.IsDefault}
		if _, err := s.events.Emit(ctx, events.TopicCampaignSaved, saved.ID, payload); err != nil {
			s.logger.Warn().Err(err).Str("campaign_id", saved.ID).Msg("emit campaign.saved")
		}
	}
	return saved, nil
}

// Get returns the campaign with id or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (discount.Campaign, error) {
	key := cacheKey(ctx, id)
	var c discount.Campaign
	if ok, err := s.cache.GetJSON(ctx, key, &c); err == nil && ok {
		return c, nil
	} else if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("campaign cache read failed")
	}
	c, err := s.repo.GetCampaign(ctx, id)
	if err != nil {
		return discount.Campaign{}, err
	}
	s.store(ctx, key, c)
	return c, nil
}

// List returns one page of campaigns and the total count.
func (s *Service) List(ctx context.Context, limit, offset int) ([]discount.Campaign, int, error) {
	return s.repo.ListCampaigns(ctx, limit, offset)
}

// Campaign resolves id for pricing; unknown ids report false.
func (s *Service) Campaign(ctx context.Context, id string) (discount.Campaign, bool, error) {
	c, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return discount.Campaign{}, false, nil
	}
	if err != nil {
		return discount.Campaign{}, false, err
	}
	return c, true, nil
}

// Current returns the active default campaign, reporting false when none is set.
func (s *Service) Current(ctx context.Context) (discount.Campaign, bool, error) {
	key := cacheKey(ctx, currentKey)
	var c discount.Campaign
	if ok, err := s.cache.GetJSON(ctx, key, &c); err == nil && ok {
		return c, true, nil
	} else if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("campaign cache read failed")
	}
	c, err := s.repo.CurrentCampaign(ctx)
	if errors.Is(err, ErrNotFound) {
		return discount.Campaign{}, false, nil
	}
	if err != nil {
		return discount.Campaign{}, false, err
	}
	s.store(ctx, key, c)
	return c, true, nil
}

func (s *Service) store(ctx context.Context, key string, c discount.Campaign) {
	if err := s.cache.SetJSON(ctx, key, c); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("campaign cache write failed")
	}
}
