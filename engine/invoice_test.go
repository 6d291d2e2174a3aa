package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pos-engine/engine"
)

func TestInvoiceNumber_Format(t *testing.T) {
	assert.Equal(t, "2026-00001", engine.InvoiceNumber{Year: 2026, Sequence: 1}.Format())
	assert.Equal(t, "2026-00142", engine.InvoiceNumber{Year: 2026, Sequence: 142}.Format())
}

func TestNextInvoiceNumber_StartsAtOne(t *testing.T) {
	now := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

	next := engine.NextInvoiceNumber(nil, now)

	assert.Equal(t, engine.InvoiceNumber{Year: 2026, Sequence: 1}, next)
}

func TestNextInvoiceNumber_Increments(t *testing.T) {
	now := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	last := engine.InvoiceNumber{Year: 2026, Sequence: 41}

	next := engine.NextInvoiceNumber(&last, now)

	assert.Equal(t, engine.InvoiceNumber{Year: 2026, Sequence: 42}, next)
}

func TestNextInvoiceNumber_YearRollover(t *testing.T) {
	// GIVEN: Last invoice of 2026 is 2026-00987
	// WHEN: Issuing on Jan 1st 2027
	// THEN: Sequence resets to 1

	jan1 := time.Date(2027, time.January, 1, 0, 0, 1, 0, time.UTC)
	last := engine.InvoiceNumber{Year: 2026, Sequence: 987}

	next := engine.NextInvoiceNumber(&last, jan1)

	assert.Equal(t, engine.InvoiceNumber{Year: 2027, Sequence: 1}, next)
}

func TestValidateInvoiceSequence_Intact(t *testing.T) {
	invoices := []engine.InvoiceNumber{
		{Year: 2026, Sequence: 2},
		{Year: 2026, Sequence: 1},
		{Year: 2026, Sequence: 3},
		{Year: 2027, Sequence: 1}, // each year validates independently
	}

	assert.NoError(t, engine.ValidateInvoiceSequence(invoices))
}

func TestValidateInvoiceSequence_Gap(t *testing.T) {
	invoices := []engine.InvoiceNumber{
		{Year: 2026, Sequence: 1},
		{Year: 2026, Sequence: 2},
		{Year: 2026, Sequence: 4},
	}

	err := engine.ValidateInvoiceSequence(invoices)

	require.Error(t, err)
	var seqErr *engine.SequenceError
	require.ErrorAs(t, err, &seqErr)
	assert.Equal(t, 3, seqErr.Expected)
	assert.Equal(t, 4, seqErr.Got)
	assert.Equal(t, "gap", seqErr.Kind)
	assert.ErrorIs(t, err, engine.ErrChainBroken)
}

func TestValidateInvoiceSequence_Duplicate(t *testing.T) {
	invoices := []engine.InvoiceNumber{
		{Year: 2026, Sequence: 1},
		{Year: 2026, Sequence: 2},
		{Year: 2026, Sequence: 2},
	}

	err := engine.ValidateInvoiceSequence(invoices)

	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrDuplicateEntry)
	var seqErr *engine.SequenceError
	require.ErrorAs(t, err, &seqErr)
	assert.Equal(t, "duplicate", seqErr.Kind)
}

func TestValidateInvoiceSequence_MustStartAtOne(t *testing.T) {
	err := engine.ValidateInvoiceSequence([]engine.InvoiceNumber{{Year: 2026, Sequence: 2}})

	require.Error(t, err)
	var seqErr *engine.SequenceError
	require.ErrorAs(t, err, &seqErr)
	assert.Equal(t, 1, seqErr.Expected)
}

func TestValidateInvoiceSequence_Empty(t *testing.T) {
	assert.NoError(t, engine.ValidateInvoiceSequence(nil))
}
