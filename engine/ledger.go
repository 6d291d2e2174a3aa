/*
ledger.go - Stock ledger and recipe costing

PURPOSE:
  Pure functions converting (order items, product recipes, ingredient stock)
  into validation results, stock deltas, and weighted-average cost updates.
  No persistence; every function takes immutable snapshots and returns new
  ones, safe for any number of concurrent callers without locking.

CRITICAL INVARIANTS:
  1. AGGREGATION: Requirements are summed per ingredient across the whole
     batch before comparison. Two items needing the same ingredient are
     validated against the cumulative requirement, never independently.
  2. NON-MUTATION: Destock/Restock return a fresh ingredient snapshot plus
     movements; the caller persists both in one transaction.
  3. GRACEFUL DEGRADATION: Costing never fails on a missing ingredient - it
     contributes zero. Validation is where the broken reference surfaces,
     as an explicit missing-ingredient error.

IDEMPOTENCY:
  Destock performs no internal dedup: calling it twice with the same
  documentRef double-depletes. Preventing that is the caller's job (the
  storage collaborator's transaction boundary).

SEE ALSO:
  - policy.go: Turns validation results into errors/warnings per policy
  - cancel.go: RestockForOrder reuses the same aggregation
*/
package engine

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// VALIDATION
// =============================================================================

// StockValidation is the outcome of checking a batch of order items against
// current stock.
type StockValidation struct {
	Valid     bool
	Shortages []Shortage
	Missing   []MissingIngredientError
}

// Errors flattens the validation into error values, shortages first.
func (v StockValidation) Errors() []error {
	var errs []error
	if len(v.Shortages) > 0 {
		errs = append(errs, &InsufficientStockError{Missing: v.Shortages})
	}
	for i := range v.Missing {
		m := v.Missing[i]
		errs = append(errs, &m)
	}
	return errs
}

// RequiredQuantities aggregates the recipe requirement per ingredient across
// all items in the batch. Products without a recipe contribute nothing.
func RequiredQuantities(items []OrderItem, products Products) map[IngredientID]decimal.Decimal {
	required := make(map[IngredientID]decimal.Decimal)
	for _, it := range items {
		product, ok := products[it.ProductID]
		if !ok || !product.HasRecipe() {
			continue
		}
		for _, line := range product.Recipe {
			need := line.Quantity.Mul(it.Quantity)
			required[line.IngredientID] = required[line.IngredientID].Add(need)
		}
	}
	return required
}

// ValidateStock checks whether the aggregated recipe requirement of the batch
// can be met by current stock. An ingredient referenced by a recipe but
// absent from the collection is reported as a missing-ingredient error, not
// silently ignored.
func ValidateStock(items []OrderItem, products Products, ingredients Ingredients) StockValidation {
	result := StockValidation{Valid: true}

	// Missing references are detected per product so the error names the
	// offending recipe, not just the ingredient.
	seenMissing := make(map[IngredientID]bool)
	for _, it := range items {
		product, ok := products[it.ProductID]
		if !ok || !product.HasRecipe() {
			continue
		}
		for _, line := range product.Recipe {
			if _, exists := ingredients[line.IngredientID]; !exists && !seenMissing[line.IngredientID] {
				seenMissing[line.IngredientID] = true
				result.Missing = append(result.Missing, MissingIngredientError{
					ProductID:    product.ID,
					IngredientID: line.IngredientID,
				})
			}
		}
	}

	required := RequiredQuantities(items, products)
	for _, id := range sortedIngredientIDs(required) {
		ing, ok := ingredients[id]
		if !ok {
			continue // already reported as missing
		}
		need := required[id]
		if need.GreaterThan(ing.Stock) {
			result.Shortages = append(result.Shortages, Shortage{
				IngredientID: id,
				Name:         ing.Name,
				Required:     need,
				Available:    ing.Stock,
			})
		}
	}

	result.Valid = len(result.Shortages) == 0 && len(result.Missing) == 0
	return result
}

// =============================================================================
// DESTOCK / RESTOCK
// =============================================================================

// DestockResult carries the new ingredient snapshot and the movements to
// persist alongside it.
type DestockResult struct {
	Ingredients Ingredients
	Movements   []StockMovement
}

// Destock returns a new ingredient collection with stock reduced by the
// batch's aggregated requirement, plus one SALE movement (negative quantity)
// per ingredient actually affected. Ingredients with zero requirement and
// ingredients missing from the collection produce no movement.
func Destock(items []OrderItem, products Products, ingredients Ingredients, documentRef string, at time.Time) DestockResult {
	return applyRequirement(items, products, ingredients, documentRef, at, MovementSale, true)
}

// RestockForOrder reverses a prior destock: one RESTOCK movement (positive
// quantity) per affected ingredient, stock increased by the same aggregated
// requirement.
func RestockForOrder(items []OrderItem, products Products, ingredients Ingredients, documentRef string, at time.Time) DestockResult {
	return applyRequirement(items, products, ingredients, documentRef, at, MovementRestock, false)
}

func applyRequirement(items []OrderItem, products Products, ingredients Ingredients, documentRef string, at time.Time, typ MovementType, consume bool) DestockResult {
	required := RequiredQuantities(items, products)
	updated := ingredients.Clone()
	var movements []StockMovement

	for _, id := range sortedIngredientIDs(required) {
		need := required[id]
		if need.IsZero() {
			continue
		}
		ing, ok := updated[id]
		if !ok {
			continue
		}
		delta := need
		if consume {
			delta = need.Neg()
		}
		ing.Stock = ing.Stock.Add(delta)
		updated[id] = ing
		movements = append(movements, StockMovement{
			ID:           uuid.NewString(),
			IngredientID: id,
			Quantity:     delta,
			Type:         typ,
			At:           at,
			DocumentRef:  documentRef,
		})
	}
	return DestockResult{Ingredients: updated, Movements: movements}
}

// Deterministic movement order regardless of map iteration.
func sortedIngredientIDs(m map[IngredientID]decimal.Decimal) []IngredientID {
	ids := make([]IngredientID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// =============================================================================
// PURCHASING - Goods received, weighted-average cost update
// =============================================================================

// ReceivePurchase applies a goods receipt: stock increases by receivedQty,
// the average cost is re-blended, and one PURCHASE movement is emitted.
func ReceivePurchase(ingredients Ingredients, id IngredientID, receivedQty, unitCost decimal.Decimal, documentRef string, at time.Time) (DestockResult, error) {
	if receivedQty.LessThanOrEqual(decimal.Zero) {
		return DestockResult{}, ErrInvalidQuantity
	}
	ing, ok := ingredients[id]
	if !ok {
		return DestockResult{}, &MissingIngredientError{IngredientID: id}
	}

	updated := ingredients.Clone()
	ing.AverageCost = WeightedAverageCost(ing.Stock, ing.AverageCost, receivedQty, unitCost)
	ing.Stock = ing.Stock.Add(receivedQty)
	updated[id] = ing

	return DestockResult{
		Ingredients: updated,
		Movements: []StockMovement{{
			ID:           uuid.NewString(),
			IngredientID: id,
			Quantity:     receivedQty,
			Type:         MovementPurchase,
			At:           at,
			DocumentRef:  documentRef,
		}},
	}, nil
}

// RecordWaste removes spoiled/lost stock with a WASTE movement. Quantity is
// the positive amount wasted; the movement is recorded negative.
func RecordWaste(ingredients Ingredients, id IngredientID, qty decimal.Decimal, reason string, at time.Time) (DestockResult, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return DestockResult{}, ErrInvalidQuantity
	}
	ing, ok := ingredients[id]
	if !ok {
		return DestockResult{}, &MissingIngredientError{IngredientID: id}
	}
	if qty.GreaterThan(ing.Stock) {
		return DestockResult{}, ErrStockNegative
	}

	updated := ingredients.Clone()
	ing.Stock = ing.Stock.Sub(qty)
	updated[id] = ing

	return DestockResult{
		Ingredients: updated,
		Movements: []StockMovement{{
			ID:           uuid.NewString(),
			IngredientID: id,
			Quantity:     qty.Neg(),
			Type:         MovementWaste,
			At:           at,
			Reason:       reason,
		}},
	}, nil
}

// AdjustStock applies a signed manual correction with an ADJUSTMENT
// movement. The resulting stock may not go negative.
func AdjustStock(ingredients Ingredients, id IngredientID, delta decimal.Decimal, reason string, at time.Time) (DestockResult, error) {
	if delta.IsZero() {
		return DestockResult{}, ErrInvalidQuantity
	}
	ing, ok := ingredients[id]
	if !ok {
		return DestockResult{}, &MissingIngredientError{IngredientID: id}
	}
	next := ing.Stock.Add(delta)
	if next.IsNegative() {
		return DestockResult{}, ErrStockNegative
	}

	updated := ingredients.Clone()
	ing.Stock = next
	updated[id] = ing

	return DestockResult{
		Ingredients: updated,
		Movements: []StockMovement{{
			ID:           uuid.NewString(),
			IngredientID: id,
			Quantity:     delta,
			Type:         MovementAdjustment,
			At:           at,
			Reason:       reason,
		}},
	}, nil
}

// =============================================================================
// COSTING
// =============================================================================

// ProductCost sums AverageCost x recipe quantity across the recipe. Zero for
// recipe-less products; ingredients missing from the collection contribute
// zero rather than aborting the computation.
func ProductCost(product Product, ingredients Ingredients) decimal.Decimal {
	cost := decimal.Zero
	for _, line := range product.Recipe {
		ing, ok := ingredients[line.IngredientID]
		if !ok {
			continue
		}
		cost = cost.Add(ing.AverageCost.Mul(line.Quantity))
	}
	return cost
}

// WeightedAverageCost blends the current average cost with a received lot:
//
//	((currentStock x currentAvg) + (receivedQty x receivedCost)) / (currentStock + receivedQty)
//
// Defined as receivedCost when currentStock is zero and currentAvg when
// receivedQty is zero. Never returns a negative value: a negative received
// cost is treated as a correction of an earlier data-entry error and clamped
// to the non-negative current average.
func WeightedAverageCost(currentStock, currentAvg, receivedQty, receivedCost decimal.Decimal) decimal.Decimal {
	if receivedQty.IsZero() {
		return clampNonNegative(currentAvg)
	}
	if currentStock.LessThanOrEqual(decimal.Zero) {
		return clampNonNegative(receivedCost)
	}
	total := currentStock.Add(receivedQty)
	blended := currentStock.Mul(currentAvg).Add(receivedQty.Mul(receivedCost)).Div(total)
	if blended.IsNegative() {
		return clampNonNegative(currentAvg)
	}
	return blended
}

func clampNonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// LowStock returns the ingredients at or below their minimum threshold,
// sorted by id for stable output.
func LowStock(ingredients Ingredients) []Ingredient {
	var low []Ingredient
	for _, ing := range ingredients {
		if ing.BelowMinimum() {
			low = append(low, ing)
		}
	}
	sort.Slice(low, func(i, j int) bool { return low[i].ID < low[j].ID })
	return low
}
