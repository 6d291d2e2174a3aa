/*
order.go - Single-order mutation operations

PURPOSE:
  Item add/remove/quantity-change, lifecycle transitions, and partial
  refunds on one order. Every operation produces a NEW order value plus the
  ledger side-effects the caller must persist atomically with it.

OWNERSHIP:
  This file exclusively owns Order.Version and Order.UpdatedAt semantics.
  Version increments on every mutation; UpdatedAt comes from the injected
  clock. No other component constructs these fields.

PRECONDITIONS:
  Every item mutation requires status != cancelled. Cancelled is terminal.

CONCURRENCY:
  Two live concurrent mutations on the SAME order must be serialized by the
  caller through the store's version precondition (ErrVersionConflict).
  The merge algorithm in merge.go is the reconciliation path for offline
  edits, not a substitute for that check.
*/
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Mutator applies order mutations under a tenant's stock policy.
type Mutator struct {
	Evaluator *PolicyEvaluator
	Clock     Clock
}

func NewMutator(evaluator *PolicyEvaluator, clock Clock) *Mutator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Mutator{Evaluator: evaluator, Clock: clock}
}

// MutationResult is the outcome of an item mutation: the new order version,
// the stock side-effects to persist with it, and any Warn-policy warnings.
type MutationResult struct {
	Order    Order
	Stock    DestockResult
	Warnings []error
}

// touch returns a copy of the order with cloned items, bumped version, and
// refreshed timestamp. All mutations go through it.
func (m *Mutator) touch(order Order) Order {
	items := make([]OrderItem, len(order.Items))
	copy(items, order.Items)
	order.Items = items
	order.Version++
	order.UpdatedAt = m.Clock.Now()
	return order
}

func requireMutable(order Order) error {
	if order.Status == OrderCancelled {
		return ErrOrderAlreadyCancelled
	}
	return nil
}

// =============================================================================
// ITEM MUTATIONS
// =============================================================================

// AddItem validates stock for the new item through the policy evaluator,
// appends it, and destocks its recipe requirement.
func (m *Mutator) AddItem(order Order, item OrderItem, products Products, ingredients Ingredients) (MutationResult, error) {
	if err := requireMutable(order); err != nil {
		return MutationResult{}, err
	}
	if item.Quantity.LessThanOrEqual(decimal.Zero) {
		return MutationResult{}, fmt.Errorf("add item: quantity %s: %w", item.Quantity, ErrInvalidQuantity)
	}

	warnings, err := m.Evaluator.Evaluate([]OrderItem{item}, products, ingredients)
	if err != nil {
		return MutationResult{}, err
	}

	next := m.touch(order)
	next.Items = append(next.Items, item)
	next.Total = ItemsTotal(next.Items)

	stock := Destock([]OrderItem{item}, products, ingredients, string(order.ID), next.UpdatedAt)
	return MutationResult{Order: next, Stock: stock, Warnings: warnings}, nil
}

// RemoveItem deletes the item at index, restocking its recipe requirement.
// An out-of-range index is a usage error, not silently ignored.
func (m *Mutator) RemoveItem(order Order, index int, products Products, ingredients Ingredients) (MutationResult, error) {
	if err := requireMutable(order); err != nil {
		return MutationResult{}, err
	}
	if index < 0 || index >= len(order.Items) {
		return MutationResult{}, fmt.Errorf("remove item: index %d out of range [0,%d): %w", index, len(order.Items), ErrInvalidQuantity)
	}

	removed := order.Items[index]
	next := m.touch(order)
	next.Items = append(next.Items[:index], next.Items[index+1:]...)
	next.Total = ItemsTotal(next.Items)

	stock := RestockForOrder([]OrderItem{removed}, products, ingredients, string(order.ID), next.UpdatedAt)
	return MutationResult{Order: next, Stock: stock}, nil
}

// UpdateQuantity changes an item's quantity. A new quantity <= 0 is
// equivalent to removal. Increases validate and destock only the DELTA
// quantity; decreases restock the delta. Total adjusts by unitPrice x delta.
func (m *Mutator) UpdateQuantity(order Order, index int, newQty decimal.Decimal, products Products, ingredients Ingredients) (MutationResult, error) {
	if err := requireMutable(order); err != nil {
		return MutationResult{}, err
	}
	if index < 0 || index >= len(order.Items) {
		return MutationResult{}, fmt.Errorf("update quantity: index %d out of range [0,%d): %w", index, len(order.Items), ErrInvalidQuantity)
	}
	if newQty.LessThanOrEqual(decimal.Zero) {
		return m.RemoveItem(order, index, products, ingredients)
	}

	current := order.Items[index]
	delta := newQty.Sub(current.Quantity)
	if delta.IsZero() {
		return MutationResult{}, fmt.Errorf("update quantity: unchanged: %w", ErrInvalidQuantity)
	}

	deltaItem := OrderItem{ProductID: current.ProductID, Quantity: delta.Abs(), UnitPrice: current.UnitPrice}

	var warnings []error
	var stock DestockResult
	if delta.IsPositive() {
		var err error
		warnings, err = m.Evaluator.Evaluate([]OrderItem{deltaItem}, products, ingredients)
		if err != nil {
			return MutationResult{}, err
		}
	}

	next := m.touch(order)
	next.Items[index].Quantity = newQty
	next.Total = ItemsTotal(next.Items)

	if delta.IsPositive() {
		stock = Destock([]OrderItem{deltaItem}, products, ingredients, string(order.ID), next.UpdatedAt)
	} else {
		stock = RestockForOrder([]OrderItem{deltaItem}, products, ingredients, string(order.ID), next.UpdatedAt)
	}
	return MutationResult{Order: next, Stock: stock, Warnings: warnings}, nil
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Complete marks a pending order as paid.
func (m *Mutator) Complete(order Order, method PaymentMethod) (Order, error) {
	if err := requireMutable(order); err != nil {
		return Order{}, err
	}
	if order.Status == OrderCompleted {
		return Order{}, fmt.Errorf("order %s: %w", order.ID, ErrDuplicateEntry)
	}
	next := m.touch(order)
	next.Status = OrderCompleted
	next.PaymentMethod = method
	return next, nil
}

// Cancel is the simple cancellation path, permitted only while the order is
// not completed. A completed (paid) order must go through the restock
// workflow in cancel.go or a partial refund, never through this path.
// No restock happens here; nothing was prepared yet at this stage of the
// caller's flow, or the caller pairs it with CancelOrderWithRestock.
func (m *Mutator) Cancel(order Order) (Order, error) {
	if err := requireMutable(order); err != nil {
		return Order{}, err
	}
	if order.Status == OrderCompleted {
		return Order{}, fmt.Errorf("order %s is completed: %w", order.ID, ErrOrderCannotCancel)
	}
	next := m.touch(order)
	next.Status = OrderCancelled
	return next, nil
}

// PartialRefund marks the items at the given indices as refunded, reducing
// the total by their value. Items are retained for audit, never deleted.
// Permitted only on completed orders.
func (m *Mutator) PartialRefund(order Order, indices []int) (Order, error) {
	if err := requireMutable(order); err != nil {
		return Order{}, err
	}
	if order.Status != OrderCompleted {
		return Order{}, fmt.Errorf("order %s: %w", order.ID, ErrOrderNotCompleted)
	}
	if len(indices) == 0 {
		return Order{}, fmt.Errorf("partial refund: no items selected: %w", ErrInvalidQuantity)
	}
	for _, idx := range indices {
		if idx < 0 || idx >= len(order.Items) {
			return Order{}, fmt.Errorf("partial refund: index %d out of range [0,%d): %w", idx, len(order.Items), ErrInvalidQuantity)
		}
		if order.Items[idx].Refunded {
			return Order{}, fmt.Errorf("partial refund: item %d already refunded: %w", idx, ErrDuplicateEntry)
		}
	}

	next := m.touch(order)
	for _, idx := range indices {
		next.Items[idx].Refunded = true
	}
	next.Total = ItemsTotal(next.Items)
	return next, nil
}

// =============================================================================
// KITCHEN STATUS - Independent axis from the order lifecycle
// =============================================================================

var kitchenNext = map[KitchenStatus]KitchenStatus{
	KitchenQueued:    KitchenPreparing,
	KitchenPreparing: KitchenReady,
	KitchenReady:     KitchenServed,
}

// AdvanceKitchen moves the kitchen status one step forward. Served is
// terminal on this axis.
func (m *Mutator) AdvanceKitchen(order Order) (Order, error) {
	if err := requireMutable(order); err != nil {
		return Order{}, err
	}
	nextStatus, ok := kitchenNext[order.KitchenStatus]
	if !ok {
		return Order{}, fmt.Errorf("kitchen status %q is terminal: %w", order.KitchenStatus, ErrInvalidTransition)
	}
	next := m.touch(order)
	next.KitchenStatus = nextStatus
	return next, nil
}
