package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/app"
	"github.com/noah-isme/backend-kasir/internal/campaign"
	"github.com/noah-isme/backend-kasir/internal/discount"
	"github.com/noah-isme/backend-kasir/internal/inventory"
	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/store/postgres"
	"github.com/noah-isme/backend-kasir/internal/tenant"
)

func main() {
	var (
		tenantID = flag.String("tenant", "default", "store id to seed")
		migrate  = flag.Bool("migrate", true, "apply migrations first")
	)
	flag.Parse()

	_ = godotenv.Load()
	logger := obs.NewLogger("console", "info")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}
	if *migrate {
		m, err := postgres.NewMigrator(dbURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("open migrations")
		}
		if err := app.RunMigrations(m); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	store := postgres.New(pool)
	ctx = tenant.With(ctx, *tenantID)

	inv, err := inventory.NewService(inventory.ServiceConfig{Repository: store, Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("inventory service")
	}
	seedBatches(ctx, inv, logger)

	campaigns, err := campaign.NewService(campaign.ServiceConfig{Repository: store, Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("campaign service")
	}
	seedCampaign(ctx, campaigns, logger)

	logger.Info().Str("tenant", *tenantID).Msg("seeding completed")
}

func seedBatches(ctx context.Context, svc *inventory.Service, logger zerolog.Logger) {
	now := time.Now().UTC()
	batches := []struct {
		ID, Product      string
		Qty, Cost, Price string
		AgeDays          int
	}{
		{"beras-5kg-a", "beras-5kg", "40", "62000", "75000", 30},
		{"beras-5kg-b", "beras-5kg", "60", "64000", "75000", 5},
		{"minyak-1l-a", "minyak-1l", "100", "14500", "18000", 20},
		{"gula-1kg-a", "gula-1kg", "80", "13000", "16500", 12},
		{"kopi-sachet-a", "kopi-sachet", "500", "1200", "2000", 3},
	}
	for _, b := range batches {
		at := now.AddDate(0, 0, -b.AgeDays)
		_, err := svc.Put(ctx, b.ID, inventory.BatchInput{
			ProductID:    b.Product,
			Quantity:     decimal.RequireFromString(b.Qty),
			CostPrice:    decimal.RequireFromString(b.Cost),
			SellingPrice: decimal.RequireFromString(b.Price),
			CreatedAt:    &at,
		})
		if err != nil {
			logger.Fatal().Err(err).Str("batch", b.ID).Msg("seed batch")
		}
	}
}

func seedCampaign(ctx context.Context, svc *campaign.Service, logger zerolog.Logger) {
	pct := func(v string) *discount.RuleConfig {
		return &discount.RuleConfig{Enabled: true, Type: discount.KindPercentage, Value: decimal.RequireFromString(v)}
	}
	minQty := decimal.NewFromInt(10)
	minCart := decimal.NewFromInt(500000)

	bulkKopi := pct("15")
	bulkKopi.Name = "kopi grosir"
	bulkKopi.ConditionMin = &minQty

	cartRule := &discount.RuleConfig{
		Enabled:      true,
		Name:         "belanja besar",
		Type:         discount.KindFixed,
		Value:        decimal.NewFromInt(25000),
		ConditionMin: &minCart,
	}

	c := discount.Campaign{
		ID:        "promo-harian",
		Name:      "Promo Harian",
		IsActive:  true,
		IsDefault: true,
		Products: []discount.ProductConfig{
			{ProductID: "kopi-sachet", Active: true, Rules: discount.ItemRules{Quantity: bulkKopi}},
		},
		BuyGet: []discount.BuyGetRule{{
			Name:          "beli 2 minyak gratis 1 gula",
			BuyProductID:  "minyak-1l",
			BuyQuantity:   decimal.NewFromInt(2),
			GetProductID:  "gula-1kg",
			GetQuantity:   decimal.NewFromInt(1),
			DiscountType:  discount.KindPercentage,
			DiscountValue: decimal.NewFromInt(100),
		}},
		Cart: discount.CartRules{Price: cartRule},
	}
	saved, err := svc.Save(ctx, c)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed campaign")
	}
	logger.Info().Str("campaign", saved.ID).Int("version", saved.Version).Msg("campaign seeded")
}
