/*
observer.go - Fire-and-forget observability collaborator

PURPOSE:
  Warn-policy stock shortages, large price swings, and cancellation audit
  entries are interesting to operators but must NEVER block or fail the
  underlying business operation. The Observer interface is that one-way
  channel; implementations swallow their own failures.

IMPLEMENTATIONS:
  NopObserver: discards everything (Silent wiring, tests)
  LogObserver: structured logging via logrus
*/
package engine

import (
	"github.com/sirupsen/logrus"
)

// Observer receives advisory events. Implementations must not return errors
// and must not panic; a lost notification is acceptable, a failed sale is
// not.
type Observer interface {
	StockShortage(err *InsufficientStockError)
	MissingIngredient(err MissingIngredientError)
	LargePriceSwing(productID ProductID, oldPrice, newPrice string)
	AuditRecorded(entry AuditEntry)
}

// NopObserver discards all notifications.
type NopObserver struct{}

func (NopObserver) StockShortage(*InsufficientStockError)          {}
func (NopObserver) MissingIngredient(MissingIngredientError)       {}
func (NopObserver) LargePriceSwing(ProductID, string, string)      {}
func (NopObserver) AuditRecorded(AuditEntry)                       {}

// LogObserver writes structured log entries for each event.
type LogObserver struct {
	Log *logrus.Logger
}

func NewLogObserver(log *logrus.Logger) *LogObserver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogObserver{Log: log}
}

func (o *LogObserver) StockShortage(err *InsufficientStockError) {
	fields := logrus.Fields{"event": "stock_shortage", "count": len(err.Missing)}
	for _, s := range err.Missing {
		fields["shortage."+string(s.IngredientID)] = s.String()
	}
	o.Log.WithFields(fields).Warn("order proceeding with insufficient stock")
}

func (o *LogObserver) MissingIngredient(err MissingIngredientError) {
	o.Log.WithFields(logrus.Fields{
		"event":      "missing_ingredient",
		"product":    err.ProductID,
		"ingredient": err.IngredientID,
	}).Warn("recipe references ingredient absent from inventory")
}

func (o *LogObserver) LargePriceSwing(productID ProductID, oldPrice, newPrice string) {
	o.Log.WithFields(logrus.Fields{
		"event":     "large_price_swing",
		"product":   productID,
		"old_price": oldPrice,
		"new_price": newPrice,
	}).Warn("price change exceeds 50% of previous price")
}

func (o *LogObserver) AuditRecorded(entry AuditEntry) {
	o.Log.WithFields(logrus.Fields{
		"event":  "audit",
		"action": entry.Action,
		"actor":  entry.Actor,
		"order":  entry.OrderID,
		"reason": entry.Reason,
	}).Info("audit entry recorded")
}
