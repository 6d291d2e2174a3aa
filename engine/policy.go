/*
policy.go - Stock policy evaluator

PURPOSE:
  Wraps ValidateStock with the per-tenant rule deciding what a stock
  shortfall means for an order: a hard error (Block), a warning the caller
  may surface (Warn), or nothing at all (Silent).

KEY PROPERTY:
  The insufficiency set is computed ONCE, policy-independently. Policy only
  changes the disposition of that set - never which ingredients are in it.
  This keeps validation logic single-sourced across all three policies.

OBSERVABILITY:
  Under Warn, shortfalls are also forwarded to the Observer. Observer
  failures never block or fail the order; notification is fire-and-forget.
*/
package engine

// StockPolicy is the closed set of dispositions for insufficient stock.
type StockPolicy string

const (
	// PolicyBlock treats insufficient stock as a hard error; the order must
	// not be created.
	PolicyBlock StockPolicy = "block"

	// PolicyWarn lets the order proceed but reports the shortfall to the
	// caller and the observer. The default.
	PolicyWarn StockPolicy = "warn"

	// PolicySilent lets the order proceed with no signal.
	PolicySilent StockPolicy = "silent"
)

// DefaultStockPolicy applies when a tenant has no explicit configuration.
const DefaultStockPolicy = PolicyWarn

// ValidPolicy reports whether p is one of the known dispositions.
func ValidPolicy(p StockPolicy) bool {
	switch p {
	case PolicyBlock, PolicyWarn, PolicySilent:
		return true
	}
	return false
}

// PolicyEvaluator applies a tenant's stock policy to validation results.
type PolicyEvaluator struct {
	Policy   StockPolicy
	Observer Observer
}

// NewPolicyEvaluator builds an evaluator, falling back to the default policy
// for unknown values and a no-op observer when none is given.
func NewPolicyEvaluator(policy StockPolicy, observer Observer) *PolicyEvaluator {
	if !ValidPolicy(policy) {
		policy = DefaultStockPolicy
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &PolicyEvaluator{Policy: policy, Observer: observer}
}

// Evaluate validates the batch and applies the policy disposition.
//
// Returns:
//   - warnings: the shortfall set, when policy is Warn
//   - err: non-nil when the order must not proceed (Block shortfall, or a
//     missing-ingredient reference under any policy is still reported in
//     warnings/error per below)
//
// Missing-ingredient references are a data-quality signal, not a stock
// shortfall: they are always returned as warnings (never block the sale) and
// always notified, regardless of policy.
func (pe *PolicyEvaluator) Evaluate(items []OrderItem, products Products, ingredients Ingredients) (warnings []error, err error) {
	validation := ValidateStock(items, products, ingredients)

	for i := range validation.Missing {
		m := validation.Missing[i]
		warnings = append(warnings, &m)
		pe.Observer.MissingIngredient(m)
	}

	if len(validation.Shortages) == 0 {
		return warnings, nil
	}

	shortage := &InsufficientStockError{Missing: validation.Shortages}
	switch pe.Policy {
	case PolicyBlock:
		return warnings, shortage
	case PolicyWarn:
		pe.Observer.StockShortage(shortage)
		return append(warnings, shortage), nil
	default: // PolicySilent
		return warnings, nil
	}
}
