/*
Package engine provides the order & inventory consistency core.

PURPOSE:
  This package contains the domain types and algorithms that keep ingredient
  stock consistent with what has actually been sold, prepared, cancelled, or
  purchased; reconcile divergent copies of the same order set produced by
  offline-capable clients; and emit the gapless, hash-chained sequence of
  financial documents (invoice numbers, end-of-day closing reports) required
  for anti-fraud compliance.

KEY CONCEPTS IN THIS FILE (types.go):
  - Ingredient: Stock-carrying raw material with a weighted-average cost
  - Product/RecipeLine: What is sold, and what it consumes per unit
  - Order/OrderItem: A sale in progress, versioned for optimistic concurrency
  - StockMovement: An immutable ledger entry recording a stock change
  - PriceHistoryEntry: Append-only record of product price changes
  - InvoiceNumber/ZReport: Sequentially numbered, tamper-evident documents

DESIGN PRINCIPLES:
  1. Immutability: Ledger functions take snapshots and return new snapshots
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing product/ingredient IDs
  4. Auditability: Every stock change carries a document reference

SEE ALSO:
  - ledger.go:  Stock validation, destocking, recipe costing
  - policy.go:  Block/Warn/Silent disposition of stock shortfalls
  - order.go:   Order item mutations
  - merge.go:   Offline reconciliation of divergent order sets
  - invoice.go: Gapless invoice numbering
  - zreport.go: Hash-chained closing reports
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID string
type IngredientID string
type ProductID string
type OrderID string

// =============================================================================
// INGREDIENT - Stock-carrying raw material
// =============================================================================

// Unit is the unit of measure an ingredient is stocked in.
type Unit string

const (
	UnitPiece Unit = "piece"
	UnitKg    Unit = "kg"
	UnitGram  Unit = "g"
	UnitLiter Unit = "l"
	UnitMl    Unit = "ml"
)

// Ingredient holds the current stock projection for one raw material.
// Stock and AverageCost are derived from the movement history and are
// mutated ONLY by ledger operations; callers never assign them directly.
type Ingredient struct {
	ID          IngredientID
	Name        string
	Unit        Unit
	Stock       decimal.Decimal
	MinStock    decimal.Decimal
	AverageCost decimal.Decimal
}

// BelowMinimum reports whether the stock projection is at or under the
// reorder threshold.
func (i Ingredient) BelowMinimum() bool {
	return i.Stock.LessThanOrEqual(i.MinStock)
}

// Ingredients is a point-in-time snapshot of the ingredient collection.
// Ledger functions treat it as immutable and return fresh copies.
type Ingredients map[IngredientID]Ingredient

// Clone returns a shallow copy safe for the ledger to update.
func (in Ingredients) Clone() Ingredients {
	out := make(Ingredients, len(in))
	for id, ing := range in {
		out[id] = ing
	}
	return out
}

// =============================================================================
// PRODUCT & RECIPE
// =============================================================================

// RecipeLine is one (ingredient, quantity-per-unit) pair of a product recipe.
type RecipeLine struct {
	IngredientID IngredientID
	Quantity     decimal.Decimal // consumed per single product unit
}

// Product is a sellable item. A product with an empty recipe has zero
// material cost and never fails stock validation.
type Product struct {
	ID       ProductID
	Name     string
	Category string
	Price    decimal.Decimal
	VATRate  decimal.Decimal // e.g. 0.10 for 10%
	Recipe   []RecipeLine
}

func (p Product) HasRecipe() bool { return len(p.Recipe) > 0 }

// Products is a point-in-time snapshot of the product catalog.
type Products map[ProductID]Product

// =============================================================================
// ORDER - Versioned sale document
// =============================================================================

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// KitchenStatus is an independent axis from the order lifecycle: a pending
// order may already be served, a completed order may still be preparing.
type KitchenStatus string

const (
	KitchenQueued    KitchenStatus = "queued"
	KitchenPreparing KitchenStatus = "preparing"
	KitchenReady     KitchenStatus = "ready"
	KitchenServed    KitchenStatus = "served"
)

// OrderItem is one line of an order. UnitPrice and VATRate are snapshots
// taken at order time and never change afterwards, even if the product's
// catalog price moves.
type OrderItem struct {
	ProductID ProductID
	Name      string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	VATRate   decimal.Decimal
	Note      string
	Refunded  bool
}

// LineTotal returns UnitPrice x Quantity. Refunded items contribute zero.
func (it OrderItem) LineTotal() decimal.Decimal {
	if it.Refunded {
		return decimal.Zero
	}
	return it.UnitPrice.Mul(it.Quantity)
}

// Order is the versioned sale document.
//
// INVARIANTS:
//   - Total always equals the sum of LineTotal over current items
//   - Version strictly increases on every mutation
//   - Cancelled is terminal: no further item mutation is permitted
type Order struct {
	ID            OrderID
	Number        int64 // monotonically increasing display number
	TenantID      TenantID
	Items         []OrderItem
	Total         decimal.Decimal
	Status        OrderStatus
	KitchenStatus KitchenStatus
	ServedBy      string
	PaymentMethod PaymentMethod
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Version       int
}

// PaymentMethod is how a completed order was settled.
type PaymentMethod string

const (
	PayCash PaymentMethod = "cash"
	PayCard PaymentMethod = "card"
)

// ItemsTotal recomputes the total from the current items. Mutation
// operations use it to maintain the Total invariant.
func ItemsTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// =============================================================================
// STOCK MOVEMENT - Append-only ledger entry
// =============================================================================

type MovementType string

const (
	MovementSale       MovementType = "sale"       // consumption from a sale (negative)
	MovementPurchase   MovementType = "purchase"   // goods received (positive)
	MovementAdjustment MovementType = "adjustment" // manual correction (either sign)
	MovementWaste      MovementType = "waste"      // spoilage/loss (negative)
	MovementRestock    MovementType = "restock"    // cancellation reversal (positive)
)

// StockMovement records one stock change. Movements are never mutated or
// deleted; the Ingredient's stock is a cached projection of movement history,
// updated in the same transaction that appends the movement.
type StockMovement struct {
	ID           string
	IngredientID IngredientID
	Quantity     decimal.Decimal // signed: negative = consumption
	Type         MovementType
	At           time.Time
	DocumentRef  string // originating order/purchase reference
	Reason       string
}

// =============================================================================
// PRICE HISTORY - Append-only price change record
// =============================================================================

type PriceHistoryEntry struct {
	ID          string
	ProductID   ProductID
	OldPrice    decimal.Decimal
	NewPrice    decimal.Decimal
	ChangedAt   time.Time
	Actor       string
	Reason      string
	Retroactive bool // flagged when the change was forced inside the guard window
}

// =============================================================================
// AUDIT TRAIL DOCUMENTS
// =============================================================================

// InvoiceNumber is a legally sequential (year, sequence) pair. Sequence
// resets to 1 on year change and otherwise increases by exactly 1 with no
// gaps and no repeats within a year.
type InvoiceNumber struct {
	Year     int
	Sequence int
}

// VATLine is the tax breakdown for one rate on a closing report.
type VATLine struct {
	Rate   decimal.Decimal
	Base   decimal.Decimal
	Amount decimal.Decimal
}

// StaffLine is the per-staff sales breakdown on a closing report.
type StaffLine struct {
	Staff      string
	OrderCount int
	Total      decimal.Decimal
}

// ZReport is the end-of-day closing report. SequenceNumber is global and
// never resets. CurrentHash is a digest over the canonical payload of
// {sequence, date, total sales, previous hash}, so altering or deleting any
// historical report invalidates every subsequent hash. Immutable once
// archived.
type ZReport struct {
	ID              string
	TenantID        TenantID
	SequenceNumber  int64
	Date            time.Time
	CashTotal       decimal.Decimal
	CardTotal       decimal.Decimal
	TotalSales      decimal.Decimal
	OpeningCash     decimal.Decimal
	ClosingCash     decimal.Decimal
	TheoreticalCash decimal.Decimal
	CashVariance    decimal.Decimal
	VATBreakdown    []VATLine
	StaffBreakdown  []StaffLine
	PreviousHash    string // empty for the very first report
	CurrentHash     string
	GeneratedAt     time.Time
}

// =============================================================================
// AUDIT ENTRY - Who did what, when, why
// =============================================================================

// AuditEntry records a sensitive operation (cancellation with restock,
// forced price change). Append-only, separate from the movement ledger.
type AuditEntry struct {
	ID        string
	TenantID  TenantID
	At        time.Time
	Actor     string
	Action    AuditAction
	OrderID   OrderID
	Reason    string
	Payload   map[string]string
}

type AuditAction string

const (
	AuditOrderCancelled   AuditAction = "order_cancelled"
	AuditOrderRestocked   AuditAction = "order_restocked"
	AuditPriceChanged     AuditAction = "price_changed"
	AuditPartialRefund    AuditAction = "partial_refund"
	AuditStockAdjusted    AuditAction = "stock_adjusted"
	AuditReportGenerated  AuditAction = "report_generated"
)
