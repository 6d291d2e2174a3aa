/*
store.go - Persistence interfaces for the engine's collaborators

PURPOSE:
  Defines the boundary between the engine and whatever holds its data.
  The engine reads point-in-time snapshots per call and writes results
  back through these interfaces; it never touches disk or network itself.

APPEND-ONLY CONTRACT:
  Movements, price history, audit entries, and closing reports have no
  Update or Delete. Ever. Corrections happen through new entries
  (adjustment movements, reversal restocks).

OPTIMISTIC LOCKING:
  SaveOrder takes the version the caller read. Implementations reject the
  write with ErrVersionConflict when the stored version differs, forcing a
  re-read and retry. This is the live-editing serialization the merge
  algorithm deliberately does not replace.

IMPLEMENTATIONS:
  - engine/store: in-memory, for tests and development
  - store/sqlite: production SQLite
*/
package engine

import "context"

// OrderStore persists versioned orders per tenant.
type OrderStore interface {
	// SaveOrder writes the order if the stored version equals
	// expectedVersion (0 for a new order). Returns ErrVersionConflict
	// otherwise.
	SaveOrder(ctx context.Context, order Order, expectedVersion int) error

	// GetOrder returns the current representation of one order.
	GetOrder(ctx context.Context, tenant TenantID, id OrderID) (Order, error)

	// ListOrders returns all orders for a tenant, newest first.
	ListOrders(ctx context.Context, tenant TenantID) ([]Order, error)

	// NextOrderNumber allocates the next display number for a tenant.
	NextOrderNumber(ctx context.Context, tenant TenantID) (int64, error)
}

// CatalogStore serves point-in-time snapshots of products and ingredients
// and accepts the ledger's ingredient updates.
type CatalogStore interface {
	Products(ctx context.Context, tenant TenantID) (Products, error)
	Ingredients(ctx context.Context, tenant TenantID) (Ingredients, error)

	SaveProduct(ctx context.Context, tenant TenantID, p Product) error

	// SaveIngredients replaces the stock projection for the given
	// ingredients. Only the ledger's outputs are ever passed here.
	SaveIngredients(ctx context.Context, tenant TenantID, ingredients []Ingredient) error
}

// MovementStore is the append-only stock movement log.
type MovementStore interface {
	AppendMovements(ctx context.Context, tenant TenantID, movements []StockMovement) error
	MovementsByIngredient(ctx context.Context, tenant TenantID, id IngredientID) ([]StockMovement, error)
	MovementsByDocument(ctx context.Context, tenant TenantID, documentRef string) ([]StockMovement, error)
}

// PriceHistoryStore is the append-only price change record.
type PriceHistoryStore interface {
	AppendPriceChange(ctx context.Context, tenant TenantID, entry PriceHistoryEntry) error
	PriceHistory(ctx context.Context, tenant TenantID, id ProductID) ([]PriceHistoryEntry, error)
}

// AuditTrailStore holds the tenant's sequential documents: the invoice
// counter, the z-report chain, and audit entries.
type AuditTrailStore interface {
	// LastInvoiceNumber returns the most recently issued number, or nil
	// when none has been issued.
	LastInvoiceNumber(ctx context.Context, tenant TenantID) (*InvoiceNumber, error)
	RecordInvoiceNumber(ctx context.Context, tenant TenantID, n InvoiceNumber) error

	// LastZReport returns the chain head, or nil for a fresh chain.
	LastZReport(ctx context.Context, tenant TenantID) (*ZReport, error)
	AppendZReport(ctx context.Context, tenant TenantID, report ZReport) error
	ZReports(ctx context.Context, tenant TenantID) ([]ZReport, error)

	AppendAudit(ctx context.Context, entry AuditEntry) error
	AuditEntries(ctx context.Context, tenant TenantID) ([]AuditEntry, error)
}

// Store aggregates every persistence concern the engine consumes.
type Store interface {
	OrderStore
	CatalogStore
	MovementStore
	PriceHistoryStore
	AuditTrailStore
}

// TxStore adds atomic multi-write support. The movement append and the
// stock projection update for one operation belong in one WithTx call so
// the projection can never drift from the log.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
