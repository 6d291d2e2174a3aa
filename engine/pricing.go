/*
pricing.go - Price change guard and history

PURPOSE:
  Validates and records product price changes, blocking changes that would
  retroactively distort recently issued documents. Every accepted change
  appends one immutable PriceHistoryEntry; history is never edited or
  deleted, only appended and queried.

RULES:
  - newPrice <= 0 is rejected
  - a no-op change (newPrice == current) is a usage error, not a silent
    success
  - a relative change above 50% raises a NON-blocking warning
  - a product with a completed order inside the protection window (24h)
    is rejected outright: prices must never be altered in a way that could
    misstate an already-issued document
*/
package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RetroactiveWindow is how long after a completed sale a product's price is
// locked.
const RetroactiveWindow = 24 * time.Hour

// largeSwingThreshold is the relative change above which a warning is
// raised.
var largeSwingThreshold = decimal.NewFromFloat(0.5)

// PriceGuard validates and records price changes.
type PriceGuard struct {
	Clock    Clock
	Observer Observer
}

func NewPriceGuard(clock Clock, observer Observer) *PriceGuard {
	if clock == nil {
		clock = SystemClock{}
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &PriceGuard{Clock: clock, Observer: observer}
}

// PriceChangeResult carries the updated product, the history entry to
// append, and any non-blocking warnings.
type PriceChangeResult struct {
	Product  Product
	Entry    PriceHistoryEntry
	Warnings []error
}

// LargeSwingWarning is the non-blocking signal for changes above the
// threshold.
type LargeSwingWarning struct {
	ProductID ProductID
	OldPrice  decimal.Decimal
	NewPrice  decimal.Decimal
	Relative  decimal.Decimal
}

func (w *LargeSwingWarning) Error() string {
	return fmt.Sprintf("price of %s changes by %s%% (from %s to %s)",
		w.ProductID, w.Relative.Mul(decimal.NewFromInt(100)).Round(1), w.OldPrice, w.NewPrice)
}

// ChangePrice applies the guard rules. recentOrders is the set of orders the
// caller considers relevant (typically the last 24h of completed orders for
// the tenant); only completed orders containing the product count against
// the retroactive guard.
func (g *PriceGuard) ChangePrice(product Product, newPrice decimal.Decimal, actor, reason string, recentOrders []Order) (PriceChangeResult, error) {
	if newPrice.LessThanOrEqual(decimal.Zero) {
		return PriceChangeResult{}, fmt.Errorf("price %s: %w", newPrice, ErrInvalidPrice)
	}
	if newPrice.Equal(product.Price) {
		return PriceChangeResult{}, fmt.Errorf("price unchanged at %s: %w", newPrice, ErrInvalidPrice)
	}

	now := g.Clock.Now()
	if soldAt, sold := lastCompletedSale(product.ID, recentOrders); sold && now.Sub(soldAt) < RetroactiveWindow {
		return PriceChangeResult{}, &RetroactivePriceError{
			ProductID:  product.ID,
			LastSoldAt: soldAt,
			Window:     RetroactiveWindow,
		}
	}

	var warnings []error
	if !product.Price.IsZero() {
		relative := newPrice.Sub(product.Price).Abs().Div(product.Price)
		if relative.GreaterThan(largeSwingThreshold) {
			w := &LargeSwingWarning{ProductID: product.ID, OldPrice: product.Price, NewPrice: newPrice, Relative: relative}
			warnings = append(warnings, w)
			g.Observer.LargePriceSwing(product.ID, product.Price.String(), newPrice.String())
		}
	}

	entry := PriceHistoryEntry{
		ID:        uuid.NewString(),
		ProductID: product.ID,
		OldPrice:  product.Price,
		NewPrice:  newPrice,
		ChangedAt: now,
		Actor:     actor,
		Reason:    reason,
	}

	updated := product
	updated.Price = newPrice
	return PriceChangeResult{Product: updated, Entry: entry, Warnings: warnings}, nil
}

// lastCompletedSale finds the most recent completed order containing the
// product. Refunded lines don't count: their value was already returned.
func lastCompletedSale(id ProductID, orders []Order) (time.Time, bool) {
	var last time.Time
	found := false
	for _, o := range orders {
		if o.Status != OrderCompleted {
			continue
		}
		for _, it := range o.Items {
			if it.ProductID == id && !it.Refunded {
				at := o.UpdatedAt
				if at.IsZero() {
					at = o.CreatedAt
				}
				if !found || at.After(last) {
					last = at
					found = true
				}
				break
			}
		}
	}
	return last, found
}

// PriceAsOf answers "what was the price of product X at time at": the
// NewPrice of the latest history entry with ChangedAt <= at, else fallback
// (the product's current price when no history predates the instant).
func PriceAsOf(history []PriceHistoryEntry, productID ProductID, at time.Time, fallback decimal.Decimal) decimal.Decimal {
	entries := make([]PriceHistoryEntry, 0, len(history))
	for _, e := range history {
		if e.ProductID == productID && !e.ChangedAt.After(at) {
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		return fallback
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ChangedAt.Before(entries[j].ChangedAt) })
	return entries[len(entries)-1].NewPrice
}
