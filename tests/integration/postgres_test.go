//go:build integration

package integration

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/broxiva/promo-engine/internal/domain/coupon"
	"github.com/broxiva/promo-engine/internal/domain/promotion"
	"github.com/broxiva/promo-engine/internal/storage/postgres"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "promo",
			"POSTGRES_PASSWORD": "promo",
			"POSTGRES_DB":       "promo",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		log.Fatalf("start postgres container: %v", err)
	}
	defer func() {
		if err := container.Terminate(context.Background()); err != nil {
			log.Printf("terminate container: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://promo:promo@%s:%s/promo?sslmode=disable", host, port.Port())

	pool, err = postgres.NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	return m.Run()
}

func TestCouponRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewCouponRepository(pool)
	engine := coupon.NewEngine(repo)

	ends := time.Now().Add(24 * time.Hour).UTC()
	created, err := engine.CreateCoupon(ctx, &coupon.Coupon{
		Code:          "roundtrip10",
		Name:          "Round trip",
		Type:          coupon.DiscountTiered,
		MinOrderValue: decimal.NewFromInt(10),
		Tiers: []coupon.TierRule{
			{MinAmount: decimal.NewFromInt(50), Percent: decimal.NewFromInt(5)},
			{MinAmount: decimal.NewFromInt(100), Percent: decimal.NewFromInt(10)},
		},
		EndsAt: &ends,
		Active: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "ROUNDTRIP10", created.Code)

	found, err := repo.FindByCode(ctx, "ROUNDTRIP10")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, coupon.DiscountTiered, found.Type)
	require.Len(t, found.Tiers, 2)
	assert.True(t, found.MinOrderValue.Equal(decimal.NewFromInt(10)))

	res, err := engine.Validate(ctx, "roundtrip10", coupon.Checkout{
		UserID:   "user-rt",
		Subtotal: decimal.NewFromInt(120),
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.True(t, res.Discount.Equal(decimal.NewFromInt(12)), "got %s", res.Discount)
}

func TestDuplicateCode(t *testing.T) {
	ctx := context.Background()
	engine := coupon.NewEngine(postgres.NewCouponRepository(pool))

	def := &coupon.Coupon{
		Code:   "DUPLICATE",
		Type:   coupon.DiscountFixedAmount,
		Value:  decimal.NewFromInt(5),
		Active: true,
	}
	_, err := engine.CreateCoupon(ctx, def)
	require.NoError(t, err)

	_, err = engine.CreateCoupon(ctx, def)
	require.ErrorIs(t, err, coupon.ErrDuplicateCode)
}

func TestUnknownCodeNotFound(t *testing.T) {
	repo := postgres.NewCouponRepository(pool)

	_, err := repo.FindByCode(context.Background(), "NO-SUCH-CODE")
	require.ErrorIs(t, err, coupon.ErrNotFound)
}

// TestConcurrentApplyLastUse exercises the real conditional-increment path:
// many goroutines race over a coupon with one remaining use, and exactly one
// redemption may commit.
func TestConcurrentApplyLastUse(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewCouponRepository(pool)
	engine := coupon.NewEngine(repo)

	_, err := engine.CreateCoupon(ctx, &coupon.Coupon{
		Code:            "LASTONE",
		Type:            coupon.DiscountPercentage,
		Value:           decimal.NewFromInt(10),
		TotalUsageLimit: 1,
		Active:          true,
	})
	require.NoError(t, err)

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = engine.Apply(ctx, "LASTONE", coupon.Checkout{
				UserID:   fmt.Sprintf("racer-%d", i),
				Subtotal: decimal.NewFromInt(100),
			})
		}()
	}
	wg.Wait()

	var successes int
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		var applyErr *coupon.ApplyError
		require.ErrorAs(t, err, &applyErr)
	}
	assert.Equal(t, 1, successes, "exactly one concurrent apply must commit")

	c, err := repo.FindByCode(ctx, "LASTONE")
	require.NoError(t, err)
	assert.Equal(t, 1, c.TimesUsed)

	var total int
	err = pool.QueryRow(ctx, `SELECT count(*) FROM coupon_usage WHERE coupon_id = $1`, c.ID).Scan(&total)
	require.NoError(t, err)
	assert.Equal(t, 1, total, "a usage row exists only for the winning apply")
}

func TestPerUserLimitAcrossApplies(t *testing.T) {
	ctx := context.Background()
	engine := coupon.NewEngine(postgres.NewCouponRepository(pool))

	_, err := engine.CreateCoupon(ctx, &coupon.Coupon{
		Code:              "ONCEPERUSER",
		Type:              coupon.DiscountFixedAmount,
		Value:             decimal.NewFromInt(5),
		UsageLimitPerUser: 1,
		Active:            true,
	})
	require.NoError(t, err)

	chk := coupon.Checkout{UserID: "repeat-user", Subtotal: decimal.NewFromInt(50)}

	_, err = engine.Apply(ctx, "ONCEPERUSER", chk)
	require.NoError(t, err)

	_, err = engine.Apply(ctx, "ONCEPERUSER", chk)
	var applyErr *coupon.ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, coupon.ReasonPerUserLimit, applyErr.Reason)

	// A different user still has their use available.
	_, err = engine.Apply(ctx, "ONCEPERUSER", coupon.Checkout{
		UserID:   "other-user",
		Subtotal: decimal.NewFromInt(50),
	})
	require.NoError(t, err)
}

func TestPromotionListOrder(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewPromotionRepository(pool)

	base := time.Now().Add(-time.Hour).UTC()
	for i, p := range []*promotion.Promotion{
		{ID: "promo-low", Name: "low", Priority: 1},
		{ID: "promo-high", Name: "high", Priority: 50},
		{ID: "promo-mid", Name: "mid", Priority: 10},
	} {
		p.Type = coupon.DiscountPercentage
		p.Value = decimal.NewFromInt(5)
		p.StartsAt = base
		p.Active = true
		p.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Create(ctx, p))
	}

	listed, err := repo.ListActive(ctx, time.Now())
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(listed), 3)

	var ids []string
	for _, p := range listed {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"promo-high", "promo-mid", "promo-low"}, ids[:3])

	sel := promotion.NewSelector(repo)
	best, err := sel.Best(ctx, coupon.Checkout{Subtotal: decimal.NewFromInt(100)})
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, "promo-high", best.Promotion.ID)
}
