// Command seed-db applies the schema and loads sample coupons, an automatic
// discount, and an API key for local development.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/broxiva/promo-engine/internal/domain/coupon"
	"github.com/broxiva/promo-engine/internal/domain/promotion"
	"github.com/broxiva/promo-engine/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or PROMO_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or PROMO_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("PROMO_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or PROMO_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("PROMO_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	couponRepo := postgres.NewCouponRepository(pool)
	promotionRepo := postgres.NewPromotionRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	if err := seedCoupons(ctx, coupon.NewEngine(couponRepo)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedPromotion(ctx, promotionRepo); err != nil {
		return errors.Wrap(err, "seed promotion")
	}
	if err := seedAPIKey(ctx, apikeyRepo, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedCoupons(ctx context.Context, engine *coupon.Engine) error {
	slog.Info("seeding sample coupons")

	year := time.Now().AddDate(1, 0, 0)
	coupons := []*coupon.Coupon{
		{
			Code:          "SAVE10",
			Name:          "10% off orders over $50",
			Type:          coupon.DiscountPercentage,
			Value:         decimal.NewFromInt(10),
			MinOrderValue: decimal.NewFromInt(50),
			MaxDiscount:   decimal.NewFromInt(25),
			EndsAt:        &year,
			Active:        true,
		},
		{
			Code:   "FIXED20",
			Name:   "$20 off any order",
			Type:   coupon.DiscountFixedAmount,
			Value:  decimal.NewFromInt(20),
			Active: true,
		},
		{
			Code:           "WELCOME",
			Name:           "Free shipping on your first order",
			Type:           coupon.DiscountFreeShipping,
			FirstOrderOnly: true,
			Active:         true,
		},
		{
			Code: "SPENDMORE",
			Name: "Spend more, save more",
			Type: coupon.DiscountTiered,
			Tiers: []coupon.TierRule{
				{MinAmount: decimal.NewFromInt(50), Percent: decimal.NewFromInt(5)},
				{MinAmount: decimal.NewFromInt(100), Percent: decimal.NewFromInt(10)},
				{MinAmount: decimal.NewFromInt(200), Percent: decimal.NewFromInt(15)},
			},
			Active: true,
		},
		{
			Code:        "BOGO",
			Name:        "Buy two get one free",
			Type:        coupon.DiscountBuyXGetY,
			BuyQuantity: 2,
			GetQuantity: 1,
			Active:      true,
		},
	}

	for _, c := range coupons {
		created, err := engine.CreateCoupon(ctx, c)
		if err != nil {
			if errors.Is(err, coupon.ErrDuplicateCode) {
				slog.Info("coupon already exists, skipping", slog.String("code", c.Code))
				continue
			}
			return errors.Wrapf(err, "create coupon %s", c.Code)
		}
		slog.Info("created coupon", slog.String("code", created.Code), slog.String("name", created.Name))
	}

	return nil
}

func seedPromotion(ctx context.Context, repo *postgres.PromotionRepository) error {
	slog.Info("seeding automatic discount")

	p := &promotion.Promotion{
		ID:       "seed-summer-sale",
		Name:     "Summer sale: 5% off carts over $100",
		Type:     coupon.DiscountPercentage,
		Value:    decimal.NewFromInt(5),
		Priority: 10,
		Rules: []promotion.Rule{
			{Kind: promotion.RuleMinCartValue, Operator: promotion.OpGTE, Value: decimal.NewFromInt(100)},
		},
		StartsAt:  time.Now(),
		Active:    true,
		CreatedAt: time.Now(),
	}

	if err := repo.Create(ctx, p); err != nil {
		slog.Info("automatic discount already exists, skipping", slog.String("id", p.ID))
		return nil
	}

	slog.Info("created automatic discount", slog.String("id", p.ID), slog.String("name", p.Name))
	return nil
}

func seedAPIKey(ctx context.Context, repo *postgres.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if err := repo.Create(ctx, "default", keyHash, "Default test key", []string{"manage_coupons"}); err != nil {
		slog.Info("API key already exists, skipping", slog.String("id", "default"))
		return nil
	}

	slog.Info("created API key", slog.String("id", "default"), slog.String("name", "Default test key"))
	return nil
}
