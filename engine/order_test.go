package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pos-engine/engine"
)

func newTestMutator(policy engine.StockPolicy, at time.Time) *engine.Mutator {
	return engine.NewMutator(
		engine.NewPolicyEvaluator(policy, nil),
		engine.FixedClock{At: at},
	)
}

func pendingOrder() engine.Order {
	created := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	items := []engine.OrderItem{burgerItem("2")}
	return engine.Order{
		ID:            "ord-1",
		Number:        42,
		TenantID:      "t1",
		Items:         items,
		Total:         engine.ItemsTotal(items),
		Status:        engine.OrderPending,
		KitchenStatus: engine.KitchenQueued,
		ServedBy:      "alice",
		CreatedAt:     created,
		UpdatedAt:     created,
		Version:       1,
	}
}

// =============================================================================
// ITEM MUTATIONS
// =============================================================================

func TestAddItem_DestocksAndBumpsVersion(t *testing.T) {
	products, ingredients := burgerCatalog()
	now := time.Date(2026, time.March, 10, 12, 5, 0, 0, time.UTC)
	m := newTestMutator(engine.PolicyWarn, now)
	order := pendingOrder()

	result, err := m.AddItem(order, burgerItem("1"), products, ingredients)
	require.NoError(t, err)

	assert.Len(t, result.Order.Items, 3)
	assert.Equal(t, 2, result.Order.Version)
	assert.Equal(t, now, result.Order.UpdatedAt)
	assert.True(t, result.Order.Total.Equal(dec("29.70")), "total %s", result.Order.Total)
	assert.True(t, result.Stock.Ingredients["bun"].Stock.Equal(dec("49")))

	// Input order untouched
	assert.Len(t, order.Items, 2)
	assert.Equal(t, 1, order.Version)
}

func TestAddItem_InvalidQuantity(t *testing.T) {
	products, ingredients := burgerCatalog()
	m := newTestMutator(engine.PolicyWarn, time.Now())

	_, err := m.AddItem(pendingOrder(), burgerItem("0"), products, ingredients)
	assert.ErrorIs(t, err, engine.ErrInvalidQuantity)
}

func TestAddItem_BlockPolicyRejectsShortfall(t *testing.T) {
	products, ingredients := burgerCatalog()
	m := newTestMutator(engine.PolicyBlock, time.Now())

	_, err := m.AddItem(pendingOrder(), burgerItem("40"), products, ingredients)
	assert.ErrorIs(t, err, engine.ErrStockInsufficient)
}

func TestRemoveItem_RestocksRemovedLine(t *testing.T) {
	products, ingredients := burgerCatalog()
	m := newTestMutator(engine.PolicyWarn, time.Now())

	result, err := m.RemoveItem(pendingOrder(), 0, products, ingredients)
	require.NoError(t, err)

	assert.Empty(t, result.Order.Items)
	assert.True(t, result.Order.Total.IsZero())
	// 2 burgers back: 50 + 2 buns
	assert.True(t, result.Stock.Ingredients["bun"].Stock.Equal(dec("52")))
	for _, mv := range result.Stock.Movements {
		assert.Equal(t, engine.MovementRestock, mv.Type)
	}
}

func TestRemoveItem_IndexOutOfRange(t *testing.T) {
	products, ingredients := burgerCatalog()
	m := newTestMutator(engine.PolicyWarn, time.Now())

	_, err := m.RemoveItem(pendingOrder(), 5, products, ingredients)
	assert.ErrorIs(t, err, engine.ErrInvalidQuantity)
}

func TestUpdateQuantity_IncreaseDestocksOnlyDelta(t *testing.T) {
	// GIVEN: Order with 2 burgers
	// WHEN: Quantity goes 2 -> 5
	// THEN: Only the 3-burger delta is destocked (47 buns, not 45)

	products, ingredients := burgerCatalog()
	m := newTestMutator(engine.PolicyWarn, time.Now())

	result, err := m.UpdateQuantity(pendingOrder(), 0, dec("5"), products, ingredients)
	require.NoError(t, err)

	assert.True(t, result.Order.Items[0].Quantity.Equal(dec("5")))
	assert.True(t, result.Stock.Ingredients["bun"].Stock.Equal(dec("47")))
	assert.True(t, result.Order.Total.Equal(dec("49.50").Add(dec("9.90"))), "total %s", result.Order.Total)
}

func TestUpdateQuantity_DecreaseRestocksDelta(t *testing.T) {
	products, ingredients := burgerCatalog()
	m := newTestMutator(engine.PolicyWarn, time.Now())

	result, err := m.UpdateQuantity(pendingOrder(), 0, dec("1"), products, ingredients)
	require.NoError(t, err)

	assert.True(t, result.Stock.Ingredients["bun"].Stock.Equal(dec("51")))
}

func TestUpdateQuantity_ZeroEqualsRemoval(t *testing.T) {
	products, ingredients := burgerCatalog()
	m := newTestMutator(engine.PolicyWarn, time.Now())

	result, err := m.UpdateQuantity(pendingOrder(), 0, dec("0"), products, ingredients)
	require.NoError(t, err)
	assert.Empty(t, result.Order.Items)
}

func TestUpdateQuantity_UnchangedIsError(t *testing.T) {
	products, ingredients := burgerCatalog()
	m := newTestMutator(engine.PolicyWarn, time.Now())

	_, err := m.UpdateQuantity(pendingOrder(), 0, dec("2"), products, ingredients)
	assert.ErrorIs(t, err, engine.ErrInvalidQuantity)
}

func TestMutations_CancelledIsTerminal(t *testing.T) {
	products, ingredients := burgerCatalog()
	m := newTestMutator(engine.PolicyWarn, time.Now())
	order := pendingOrder()
	order.Status = engine.OrderCancelled

	_, err := m.AddItem(order, burgerItem("1"), products, ingredients)
	assert.ErrorIs(t, err, engine.ErrOrderAlreadyCancelled)

	_, err = m.RemoveItem(order, 0, products, ingredients)
	assert.ErrorIs(t, err, engine.ErrOrderAlreadyCancelled)

	_, err = m.Complete(order, engine.PayCash)
	assert.ErrorIs(t, err, engine.ErrOrderAlreadyCancelled)

	_, err = m.AdvanceKitchen(order)
	assert.ErrorIs(t, err, engine.ErrOrderAlreadyCancelled)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestComplete_SetsStatusAndPayment(t *testing.T) {
	m := newTestMutator(engine.PolicyWarn, time.Now())

	next, err := m.Complete(pendingOrder(), engine.PayCard)
	require.NoError(t, err)
	assert.Equal(t, engine.OrderCompleted, next.Status)
	assert.Equal(t, engine.PayCard, next.PaymentMethod)
	assert.Equal(t, 2, next.Version)

	_, err = m.Complete(next, engine.PayCard)
	assert.ErrorIs(t, err, engine.ErrDuplicateEntry, "double completion is rejected")
}

func TestCancel_SimplePath_RejectsCompleted(t *testing.T) {
	m := newTestMutator(engine.PolicyWarn, time.Now())
	order := pendingOrder()

	cancelled, err := m.Cancel(order)
	require.NoError(t, err)
	assert.Equal(t, engine.OrderCancelled, cancelled.Status)

	completed, err := m.Complete(order, engine.PayCash)
	require.NoError(t, err)
	_, err = m.Cancel(completed)
	assert.ErrorIs(t, err, engine.ErrOrderCannotCancel)
}

func TestPartialRefund_ReducesTotalKeepsItems(t *testing.T) {
	m := newTestMutator(engine.PolicyWarn, time.Now())
	order := pendingOrder()
	order.Items = append(order.Items, engine.OrderItem{ProductID: "soda", Quantity: dec("1"), UnitPrice: dec("2.50")})
	order.Total = engine.ItemsTotal(order.Items)
	completed, err := m.Complete(order, engine.PayCash)
	require.NoError(t, err)

	refunded, err := m.PartialRefund(completed, []int{1})
	require.NoError(t, err)

	assert.Len(t, refunded.Items, 2, "refunded items are retained for audit")
	assert.True(t, refunded.Items[1].Refunded)
	assert.True(t, refunded.Total.Equal(dec("19.80")), "total %s", refunded.Total)

	_, err = m.PartialRefund(refunded, []int{1})
	assert.ErrorIs(t, err, engine.ErrDuplicateEntry, "item cannot be refunded twice")
}

func TestPartialRefund_RequiresCompletedOrder(t *testing.T) {
	m := newTestMutator(engine.PolicyWarn, time.Now())

	_, err := m.PartialRefund(pendingOrder(), []int{0})
	assert.ErrorIs(t, err, engine.ErrOrderNotCompleted)
}

// =============================================================================
// KITCHEN STATUS
// =============================================================================

func TestAdvanceKitchen_WalksTheAxis(t *testing.T) {
	m := newTestMutator(engine.PolicyWarn, time.Now())
	order := pendingOrder()

	want := []engine.KitchenStatus{engine.KitchenPreparing, engine.KitchenReady, engine.KitchenServed}
	for _, expected := range want {
		var err error
		order, err = m.AdvanceKitchen(order)
		require.NoError(t, err)
		assert.Equal(t, expected, order.KitchenStatus)
	}

	_, err := m.AdvanceKitchen(order)
	assert.ErrorIs(t, err, engine.ErrInvalidTransition, "served is terminal")
}
