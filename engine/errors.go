/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error kinds in one place for consistency and discoverability. Every
  rejection carries a machine-readable sentinel (use errors.Is), a technical
  message for logs, and enough structured context that the caller can render
  a user-facing message without engineering involvement.

ERROR CATEGORIES:
  1. Stock errors      - Insufficient/negative stock, broken recipe references
  2. Order errors      - Terminal-state violations, cancellation windows
  3. Pricing errors    - Invalid prices, retroactive change conflicts
  4. Document errors   - Duplicate/out-of-sequence invoice numbers

PROPAGATION POLICY:
  Validation failures are returned as explicit results to the immediate
  caller - never panics that could leave a partial state change applied.
  Warnings (Warn-policy shortfalls, large price swings) accompany a
  SUCCESSFUL result and are forwarded to the Observer independently.

USAGE:
  if errors.Is(err, engine.ErrStockInsufficient) {
      var shortage *engine.InsufficientStockError
      errors.As(err, &shortage)
      // shortage.Missing lists ingredient/need/have triples
  }
*/
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrStockInsufficient is returned when the aggregated recipe requirement
	// of an order exceeds current stock under the Block policy.
	ErrStockInsufficient = errors.New("stock insufficient")

	// ErrStockNegative is returned when an operation would drive a stock
	// projection below zero outside the ledger's control.
	ErrStockNegative = errors.New("stock would become negative")

	// ErrMissingIngredient is returned when a recipe references an ingredient
	// absent from the ingredient collection. A data-quality signal, reported
	// by validation rather than crashing order flow.
	ErrMissingIngredient = errors.New("recipe references missing ingredient")

	// ErrInvalidQuantity is returned for zero/negative order quantities and
	// out-of-range item indices.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidPrice is returned for zero/negative prices and no-op changes.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrInvalidDate is returned for malformed report dates.
	ErrInvalidDate = errors.New("invalid date")

	// ErrDuplicateEntry is returned when an append-only collection already
	// holds the given key (invoice number, report sequence).
	ErrDuplicateEntry = errors.New("duplicate entry")

	// ErrOrderAlreadyCancelled is returned when mutating a cancelled order.
	// Cancelled is terminal.
	ErrOrderAlreadyCancelled = errors.New("order already cancelled")

	// ErrOrderCannotCancel is returned when cancellation is outside the
	// configured window or the order's state forbids the simple path.
	ErrOrderCannotCancel = errors.New("order cannot be cancelled")

	// ErrOrderNotCompleted is returned when a refund is attempted on an
	// order that has not been paid.
	ErrOrderNotCompleted = errors.New("order not completed")

	// ErrPriceHistoryConflict is returned when a price change would
	// retroactively distort recently issued documents.
	ErrPriceHistoryConflict = errors.New("price history conflict")

	// ErrReasonRequired is returned when configuration demands a
	// cancellation reason and none was given.
	ErrReasonRequired = errors.New("cancellation reason required")

	// ErrChainBroken is returned when closing-report verification finds a
	// hash or sequence mismatch.
	ErrChainBroken = errors.New("closing report chain broken")

	// ErrVersionConflict is returned by stores when an optimistic-locking
	// precondition fails; the caller should re-read and retry.
	ErrVersionConflict = errors.New("version conflict")

	// ErrOrderNotFound is returned when a referenced order doesn't exist.
	ErrOrderNotFound = errors.New("order not found")

	// ErrProductNotFound is returned when a referenced product doesn't exist.
	ErrProductNotFound = errors.New("product not found")

	// ErrInvalidTransition is returned for illegal kitchen status moves.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// Shortage describes one ingredient shortfall: how much the batch needs
// against how much is in stock.
type Shortage struct {
	IngredientID IngredientID
	Name         string
	Required     decimal.Decimal
	Available    decimal.Decimal
}

func (s Shortage) String() string {
	return fmt.Sprintf("%s: need %s, have %s", s.Name, s.Required, s.Available)
}

// InsufficientStockError lists every shortfall found in a batch.
type InsufficientStockError struct {
	Missing []Shortage
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %d ingredient(s)", len(e.Missing))
}

func (e *InsufficientStockError) Unwrap() error { return ErrStockInsufficient }

// UserMessage renders a resolution-oriented message for the end user.
func (e *InsufficientStockError) UserMessage() string {
	msg := "Not enough stock: "
	for i, s := range e.Missing {
		if i > 0 {
			msg += "; "
		}
		msg += s.String()
	}
	return msg
}

// MissingIngredientError reports a recipe pointing at an ingredient that is
// not in the collection.
type MissingIngredientError struct {
	ProductID    ProductID
	IngredientID IngredientID
}

func (e *MissingIngredientError) Error() string {
	return fmt.Sprintf("product %s recipe references missing ingredient %s", e.ProductID, e.IngredientID)
}

func (e *MissingIngredientError) Unwrap() error { return ErrMissingIngredient }

func (e *MissingIngredientError) UserMessage() string {
	return fmt.Sprintf("A recipe ingredient is missing from inventory (product %s). Check the recipe setup.", e.ProductID)
}

// CancellationWindowError reports a cancellation attempted after the
// configured delay.
type CancellationWindowError struct {
	OrderID   OrderID
	CreatedAt time.Time
	MaxDelay  time.Duration
	Elapsed   time.Duration
}

func (e *CancellationWindowError) Error() string {
	return fmt.Sprintf("order %s created %s ago exceeds cancellation window %s", e.OrderID, e.Elapsed, e.MaxDelay)
}

func (e *CancellationWindowError) Unwrap() error { return ErrOrderCannotCancel }

func (e *CancellationWindowError) UserMessage() string {
	return "This order can no longer be cancelled: the cancellation window has expired. Contact support."
}

// RetroactivePriceError reports a price change blocked because the product
// sold recently: altering the price could misstate already-issued documents.
type RetroactivePriceError struct {
	ProductID  ProductID
	LastSoldAt time.Time
	Window     time.Duration
}

func (e *RetroactivePriceError) Error() string {
	return fmt.Sprintf("product %s sold at %s, inside the %s protection window", e.ProductID, e.LastSoldAt.Format(time.RFC3339), e.Window)
}

func (e *RetroactivePriceError) Unwrap() error { return ErrPriceHistoryConflict }

func (e *RetroactivePriceError) UserMessage() string {
	return "This product was sold recently. Price changes are locked for 24 hours after a sale to protect issued documents."
}

// SequenceError reports a violation in an invoice sequence. Kind names the
// violation class directly instead of leaving callers to infer it from the
// Expected/Got pair.
type SequenceError struct {
	Year     int
	Expected int
	Got      int
	Number   string
	Kind     string // "gap", "duplicate"
}

func (e *SequenceError) Error() string {
	if e.Kind == "duplicate" {
		return fmt.Sprintf("duplicate invoice number %s", e.Number)
	}
	return fmt.Sprintf("invoice sequence gap in %d: expected %d, got %d", e.Year, e.Expected, e.Got)
}

func (e *SequenceError) Unwrap() error {
	if e.Kind == "duplicate" {
		return ErrDuplicateEntry
	}
	return ErrChainBroken
}

// ChainError reports the first tampered link found during chain verification.
type ChainError struct {
	SequenceNumber int64
	Field          string // "sequence", "previous_hash", "current_hash"
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("report chain broken at sequence %d (%s mismatch)", e.SequenceNumber, e.Field)
}

func (e *ChainError) Unwrap() error { return ErrChainBroken }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// UserFacing is implemented by errors that carry a message suitable for
// display past the engine boundary.
type UserFacing interface {
	UserMessage() string
}

// UserMessage extracts the user-facing message from err, falling back to a
// generic one so raw internal messages never surface.
func UserMessage(err error) string {
	var uf UserFacing
	if errors.As(err, &uf) {
		return uf.UserMessage()
	}
	switch {
	case errors.Is(err, ErrOrderAlreadyCancelled):
		return "This order is already cancelled."
	case errors.Is(err, ErrInvalidQuantity):
		return "The quantity is not valid."
	case errors.Is(err, ErrStockNegative):
		return "This movement would take stock below zero."
	case errors.Is(err, ErrInvalidPrice):
		return "The price is not valid."
	case errors.Is(err, ErrReasonRequired):
		return "A cancellation reason is required."
	case errors.Is(err, ErrVersionConflict):
		return "Someone else modified this order. Refresh and try again."
	default:
		return "The operation could not be completed."
	}
}

// IsClientError returns true if the error is due to invalid client input
// rather than an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrStockInsufficient) ||
		errors.Is(err, ErrStockNegative) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidPrice) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrDuplicateEntry) ||
		errors.Is(err, ErrOrderAlreadyCancelled) ||
		errors.Is(err, ErrOrderCannotCancel) ||
		errors.Is(err, ErrOrderNotCompleted) ||
		errors.Is(err, ErrPriceHistoryConflict) ||
		errors.Is(err, ErrReasonRequired) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
