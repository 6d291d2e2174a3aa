package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pos-engine/engine"
)

// recordingObserver captures notifications for assertions.
type recordingObserver struct {
	shortages []*engine.InsufficientStockError
	missing   []engine.MissingIngredientError
	swings    int
	audits    []engine.AuditEntry
}

func (r *recordingObserver) StockShortage(err *engine.InsufficientStockError) {
	r.shortages = append(r.shortages, err)
}
func (r *recordingObserver) MissingIngredient(err engine.MissingIngredientError) {
	r.missing = append(r.missing, err)
}
func (r *recordingObserver) LargePriceSwing(engine.ProductID, string, string) { r.swings++ }
func (r *recordingObserver) AuditRecorded(entry engine.AuditEntry)            { r.audits = append(r.audits, entry) }

func TestPolicyBlock_ShortfallIsHardError(t *testing.T) {
	// GIVEN: 5kg steak, policy BLOCK
	// WHEN: Evaluating 40 burgers (needs 6kg)
	// THEN: Hard error naming the shortfall; no warnings

	products, ingredients := burgerCatalog()
	pe := engine.NewPolicyEvaluator(engine.PolicyBlock, nil)

	warnings, err := pe.Evaluate([]engine.OrderItem{burgerItem("40")}, products, ingredients)

	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrStockInsufficient)
	var stockErr *engine.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, engine.IngredientID("steak"), stockErr.Missing[0].IngredientID)
	assert.Empty(t, warnings)
}

func TestPolicyWarn_ShortfallProceedsWithWarning(t *testing.T) {
	products, ingredients := burgerCatalog()
	obs := &recordingObserver{}
	pe := engine.NewPolicyEvaluator(engine.PolicyWarn, obs)

	warnings, err := pe.Evaluate([]engine.OrderItem{burgerItem("40")}, products, ingredients)

	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.ErrorIs(t, warnings[0], engine.ErrStockInsufficient)
	assert.Len(t, obs.shortages, 1, "observer must be notified under warn")
}

func TestPolicySilent_ShortfallProducesNothing(t *testing.T) {
	products, ingredients := burgerCatalog()
	obs := &recordingObserver{}
	pe := engine.NewPolicyEvaluator(engine.PolicySilent, obs)

	warnings, err := pe.Evaluate([]engine.OrderItem{burgerItem("40")}, products, ingredients)

	assert.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Empty(t, obs.shortages)
}

func TestPolicy_SameInsufficiencySetAcrossPolicies(t *testing.T) {
	// The policy changes the disposition of the shortfall set, never its
	// contents: block's error and warn's warning carry the same shortages.

	products, ingredients := burgerCatalog()
	items := []engine.OrderItem{burgerItem("40")}

	_, blockErr := engine.NewPolicyEvaluator(engine.PolicyBlock, nil).Evaluate(items, products, ingredients)
	warnings, _ := engine.NewPolicyEvaluator(engine.PolicyWarn, nil).Evaluate(items, products, ingredients)

	var fromBlock, fromWarn *engine.InsufficientStockError
	require.ErrorAs(t, blockErr, &fromBlock)
	require.Len(t, warnings, 1)
	require.ErrorAs(t, warnings[0], &fromWarn)
	assert.Equal(t, fromBlock.Missing, fromWarn.Missing)
}

func TestPolicy_MissingIngredient_WarnsUnderEveryPolicy(t *testing.T) {
	// A broken recipe reference is a data-quality signal: reported and
	// notified regardless of policy, never blocking the sale by itself.

	products, ingredients := burgerCatalog()
	delete(ingredients, "steak")

	for _, policy := range []engine.StockPolicy{engine.PolicyBlock, engine.PolicyWarn, engine.PolicySilent} {
		obs := &recordingObserver{}
		pe := engine.NewPolicyEvaluator(policy, obs)

		warnings, err := pe.Evaluate([]engine.OrderItem{burgerItem("1")}, products, ingredients)

		assert.NoError(t, err, "policy %s", policy)
		require.Len(t, warnings, 1, "policy %s", policy)
		assert.ErrorIs(t, warnings[0], engine.ErrMissingIngredient)
		assert.Len(t, obs.missing, 1, "policy %s", policy)
	}
}

func TestNewPolicyEvaluator_UnknownPolicyFallsBackToDefault(t *testing.T) {
	pe := engine.NewPolicyEvaluator("bogus", nil)
	assert.Equal(t, engine.DefaultStockPolicy, pe.Policy)
}
