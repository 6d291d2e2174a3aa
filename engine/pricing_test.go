package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pos-engine/engine"
)

func completedSale(productID string, at time.Time) engine.Order {
	return engine.Order{
		ID:        "sale-1",
		Status:    engine.OrderCompleted,
		Items:     []engine.OrderItem{{ProductID: engine.ProductID(productID), Quantity: dec("1"), UnitPrice: dec("9.90")}},
		CreatedAt: at,
		UpdatedAt: at,
		Version:   2,
	}
}

func TestChangePrice_Accepted(t *testing.T) {
	products, _ := burgerCatalog()
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	guard := engine.NewPriceGuard(engine.FixedClock{At: now}, nil)

	result, err := guard.ChangePrice(products["burger"], dec("10.90"), "alice", "cost increase", nil)
	require.NoError(t, err)

	assert.True(t, result.Product.Price.Equal(dec("10.90")))
	assert.True(t, result.Entry.OldPrice.Equal(dec("9.90")))
	assert.True(t, result.Entry.NewPrice.Equal(dec("10.90")))
	assert.Equal(t, "alice", result.Entry.Actor)
	assert.Equal(t, now, result.Entry.ChangedAt)
	assert.Empty(t, result.Warnings)
}

func TestChangePrice_RejectsNonPositiveAndNoop(t *testing.T) {
	products, _ := burgerCatalog()
	guard := engine.NewPriceGuard(nil, nil)

	_, err := guard.ChangePrice(products["burger"], dec("0"), "alice", "", nil)
	assert.ErrorIs(t, err, engine.ErrInvalidPrice)

	_, err = guard.ChangePrice(products["burger"], dec("-5"), "alice", "", nil)
	assert.ErrorIs(t, err, engine.ErrInvalidPrice)

	_, err = guard.ChangePrice(products["burger"], dec("9.90"), "alice", "", nil)
	assert.ErrorIs(t, err, engine.ErrInvalidPrice, "no-op change is a usage error")
}

func TestChangePrice_RetroactiveGuard(t *testing.T) {
	// GIVEN: Burger sold 10 hours ago
	// WHEN: Changing its price
	// THEN: Rejected; after the 24h window the same change succeeds

	products, _ := burgerCatalog()
	now := time.Date(2026, time.March, 10, 22, 0, 0, 0, time.UTC)
	soldAt := now.Add(-10 * time.Hour)
	recent := []engine.Order{completedSale("burger", soldAt)}

	guard := engine.NewPriceGuard(engine.FixedClock{At: now}, nil)
	_, err := guard.ChangePrice(products["burger"], dec("10.90"), "alice", "", recent)

	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrPriceHistoryConflict)
	var retro *engine.RetroactivePriceError
	require.ErrorAs(t, err, &retro)
	assert.Equal(t, soldAt, retro.LastSoldAt)

	// 25 hours after the sale the lock is gone
	later := engine.NewPriceGuard(engine.FixedClock{At: soldAt.Add(25 * time.Hour)}, nil)
	_, err = later.ChangePrice(products["burger"], dec("10.90"), "alice", "", recent)
	assert.NoError(t, err)
}

func TestChangePrice_PendingAndRefundedSalesDontLock(t *testing.T) {
	products, _ := burgerCatalog()
	now := time.Now()

	pending := completedSale("burger", now.Add(-time.Hour))
	pending.Status = engine.OrderPending

	refunded := completedSale("burger", now.Add(-time.Hour))
	refunded.Items[0].Refunded = true

	guard := engine.NewPriceGuard(engine.FixedClock{At: now}, nil)
	_, err := guard.ChangePrice(products["burger"], dec("10.90"), "alice", "", []engine.Order{pending, refunded})
	assert.NoError(t, err)
}

func TestChangePrice_LargeSwingWarnsButProceeds(t *testing.T) {
	// 9.90 -> 19.90 is a ~101% swing: warning plus observer notification,
	// but the change goes through.

	products, _ := burgerCatalog()
	obs := &recordingObserver{}
	guard := engine.NewPriceGuard(nil, obs)

	result, err := guard.ChangePrice(products["burger"], dec("19.90"), "alice", "", nil)
	require.NoError(t, err)

	require.Len(t, result.Warnings, 1)
	var swing *engine.LargeSwingWarning
	require.ErrorAs(t, result.Warnings[0], &swing)
	assert.True(t, swing.Relative.GreaterThan(dec("1")))
	assert.Equal(t, 1, obs.swings)
	assert.True(t, result.Product.Price.Equal(dec("19.90")))
}

func TestChangePrice_ExactlyFiftyPercentIsNotLarge(t *testing.T) {
	products, _ := burgerCatalog()
	guard := engine.NewPriceGuard(nil, nil)

	// 10.00 -> 15.00 is exactly 50%, the threshold is strict
	product := products["burger"]
	product.Price = dec("10.00")
	result, err := guard.ChangePrice(product, dec("15.00"), "alice", "", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
}

func TestPriceAsOf(t *testing.T) {
	t0 := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	history := []engine.PriceHistoryEntry{
		{ProductID: "burger", NewPrice: dec("8.90"), ChangedAt: t0},
		{ProductID: "burger", NewPrice: dec("9.90"), ChangedAt: t0.AddDate(0, 2, 0)},
		{ProductID: "soda", NewPrice: dec("2.00"), ChangedAt: t0.AddDate(0, 1, 0)},
	}

	// Before any change: fallback
	got := engine.PriceAsOf(history, "burger", t0.Add(-time.Hour), dec("7.00"))
	assert.True(t, got.Equal(dec("7.00")))

	// Between the two changes
	got = engine.PriceAsOf(history, "burger", t0.AddDate(0, 1, 0), dec("7.00"))
	assert.True(t, got.Equal(dec("8.90")))

	// After the latest change
	got = engine.PriceAsOf(history, "burger", t0.AddDate(1, 0, 0), dec("7.00"))
	assert.True(t, got.Equal(dec("9.90")))
}
