/*
cancel.go - Full-order cancellation with restock

PURPOSE:
  Orchestrates cancelling a whole order: eligibility checks, restock
  computation (reusing the ledger's batch aggregation), and an audit record
  of who/when/why/what-was-restocked.

STATE TRANSITION:
  This workflow does NOT flip order.Status. The caller flips it once the
  restock write succeeds, keeping the state transition atomic with the
  stock write inside whatever transaction the store provides.

CONFIGURATION:
  The window is a single configurable duration. Deployments that want the
  looser "same business day" rule configure 24h at that call site instead
  of hard-coding two competing limits.
*/
package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CancellationConfig is the per-tenant cancellation rule set.
type CancellationConfig struct {
	// MaxCancellationDelay is the longest elapsed time since order creation
	// after which cancellation is refused.
	MaxCancellationDelay time.Duration

	// RequireReason refuses cancellations with a blank reason.
	RequireReason bool
}

// DefaultCancellationConfig reflects the usual in-flight rule: one hour,
// reason required.
func DefaultCancellationConfig() CancellationConfig {
	return CancellationConfig{
		MaxCancellationDelay: 60 * time.Minute,
		RequireReason:        true,
	}
}

// CancellationResult is the outcome the caller persists atomically: the
// restocked ingredient snapshot, the RESTOCK movements, and the audit entry.
type CancellationResult struct {
	Stock DestockResult
	Audit AuditEntry
}

// CancelOrderWithRestock checks eligibility and computes the stock reversal
// for a full-order cancellation.
//
// Failure modes:
//   - ErrOrderAlreadyCancelled when status is already cancelled
//   - CancellationWindowError when the configured delay has elapsed
//   - ErrReasonRequired when config demands a reason and none was given
func CancelOrderWithRestock(order Order, reason, actor string, products Products, ingredients Ingredients, cfg CancellationConfig, clock Clock) (CancellationResult, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	now := clock.Now()

	if order.Status == OrderCancelled {
		return CancellationResult{}, fmt.Errorf("order %s: %w", order.ID, ErrOrderAlreadyCancelled)
	}

	if cfg.MaxCancellationDelay > 0 {
		elapsed := now.Sub(order.CreatedAt)
		if elapsed > cfg.MaxCancellationDelay {
			return CancellationResult{}, &CancellationWindowError{
				OrderID:   order.ID,
				CreatedAt: order.CreatedAt,
				MaxDelay:  cfg.MaxCancellationDelay,
				Elapsed:   elapsed,
			}
		}
	}

	if cfg.RequireReason && strings.TrimSpace(reason) == "" {
		return CancellationResult{}, fmt.Errorf("order %s: %w", order.ID, ErrReasonRequired)
	}

	stock := RestockForOrder(order.Items, products, ingredients, string(order.ID), now)

	payload := make(map[string]string, len(stock.Movements))
	for _, mv := range stock.Movements {
		payload[string(mv.IngredientID)] = mv.Quantity.String()
	}

	return CancellationResult{
		Stock: stock,
		Audit: AuditEntry{
			ID:       uuid.NewString(),
			TenantID: order.TenantID,
			At:       now,
			Actor:    actor,
			Action:   AuditOrderRestocked,
			OrderID:  order.ID,
			Reason:   reason,
			Payload:  payload,
		},
	}, nil
}
