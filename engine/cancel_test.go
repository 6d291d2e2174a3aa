package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pos-engine/engine"
)

func TestCancelWithRestock_InsideWindow(t *testing.T) {
	// GIVEN: Order created 30 minutes ago, 60-minute window
	// WHEN: Cancelling with a reason
	// THEN: Stock comes back and the audit entry records what was restocked

	products, ingredients := burgerCatalog()
	order := pendingOrder()
	clock := engine.FixedClock{At: order.CreatedAt.Add(30 * time.Minute)}

	result, err := engine.CancelOrderWithRestock(order, "customer left", "alice", products, ingredients, engine.DefaultCancellationConfig(), clock)
	require.NoError(t, err)

	// 2 burgers restocked
	assert.True(t, result.Stock.Ingredients["bun"].Stock.Equal(dec("52")))
	assert.True(t, result.Stock.Ingredients["steak"].Stock.Equal(dec("5.3")))

	audit := result.Audit
	assert.Equal(t, engine.AuditOrderRestocked, audit.Action)
	assert.Equal(t, "alice", audit.Actor)
	assert.Equal(t, "customer left", audit.Reason)
	assert.Equal(t, order.ID, audit.OrderID)
	assert.Equal(t, "2", audit.Payload["bun"])
	assert.Equal(t, "0.3", audit.Payload["steak"])
}

func TestCancelWithRestock_WindowExpired(t *testing.T) {
	// GIVEN: Order created 2 hours ago, 60-minute window
	// WHEN: Attempting to cancel
	// THEN: CancellationWindowError, no stock computed

	products, ingredients := burgerCatalog()
	order := pendingOrder()
	clock := engine.FixedClock{At: order.CreatedAt.Add(2 * time.Hour)}

	_, err := engine.CancelOrderWithRestock(order, "too slow", "alice", products, ingredients, engine.DefaultCancellationConfig(), clock)

	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrOrderCannotCancel)
	var winErr *engine.CancellationWindowError
	require.ErrorAs(t, err, &winErr)
	assert.Equal(t, order.ID, winErr.OrderID)
	assert.Equal(t, 2*time.Hour, winErr.Elapsed)
	assert.Equal(t, 60*time.Minute, winErr.MaxDelay)
}

func TestCancelWithRestock_ReasonRequired(t *testing.T) {
	products, ingredients := burgerCatalog()
	order := pendingOrder()
	clock := engine.FixedClock{At: order.CreatedAt.Add(5 * time.Minute)}

	_, err := engine.CancelOrderWithRestock(order, "   ", "alice", products, ingredients, engine.DefaultCancellationConfig(), clock)
	assert.ErrorIs(t, err, engine.ErrReasonRequired)

	// Reason optional when configured off
	cfg := engine.DefaultCancellationConfig()
	cfg.RequireReason = false
	_, err = engine.CancelOrderWithRestock(order, "", "alice", products, ingredients, cfg, clock)
	assert.NoError(t, err)
}

func TestCancelWithRestock_AlreadyCancelled(t *testing.T) {
	products, ingredients := burgerCatalog()
	order := pendingOrder()
	order.Status = engine.OrderCancelled
	clock := engine.FixedClock{At: order.CreatedAt}

	_, err := engine.CancelOrderWithRestock(order, "again", "alice", products, ingredients, engine.DefaultCancellationConfig(), clock)
	assert.ErrorIs(t, err, engine.ErrOrderAlreadyCancelled)
}

func TestCancelWithRestock_WiderWindowConfig(t *testing.T) {
	// Deployments wanting the "same business day" rule configure 24h.
	products, ingredients := burgerCatalog()
	order := pendingOrder()
	clock := engine.FixedClock{At: order.CreatedAt.Add(5 * time.Hour)}

	cfg := engine.CancellationConfig{MaxCancellationDelay: 24 * time.Hour, RequireReason: true}
	_, err := engine.CancelOrderWithRestock(order, "late void", "alice", products, ingredients, cfg, clock)
	assert.NoError(t, err)
}
