package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pos-engine/engine"
)

func mergeOrder(id string, version int, updatedAt time.Time) engine.Order {
	return engine.Order{
		ID:        engine.OrderID(id),
		TenantID:  "t1",
		Status:    engine.OrderPending,
		UpdatedAt: updatedAt,
		Version:   version,
	}
}

func TestMergeOrders_HigherVersionWins(t *testing.T) {
	t0 := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	local := []engine.Order{mergeOrder("a", 3, t0)}
	remote := []engine.Order{mergeOrder("a", 5, t0.Add(-time.Hour))}

	merged := engine.MergeOrders(local, remote)

	require.Len(t, merged, 1)
	assert.Equal(t, 5, merged[0].Version, "version beats recency")
}

func TestMergeOrders_VersionTie_LaterTimestampWins(t *testing.T) {
	t0 := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	local := []engine.Order{mergeOrder("a", 3, t0)}
	remote := []engine.Order{mergeOrder("a", 3, t0.Add(time.Minute))}

	merged := engine.MergeOrders(local, remote)

	require.Len(t, merged, 1)
	assert.Equal(t, t0.Add(time.Minute), merged[0].UpdatedAt)
}

func TestMergeOrders_UnionOfDisjointSets(t *testing.T) {
	t0 := time.Now()
	local := []engine.Order{mergeOrder("a", 1, t0)}
	remote := []engine.Order{mergeOrder("b", 1, t0), mergeOrder("c", 1, t0)}

	merged := engine.MergeOrders(local, remote)

	require.Len(t, merged, 3)
	// Sorted by id for stable output
	assert.Equal(t, engine.OrderID("a"), merged[0].ID)
	assert.Equal(t, engine.OrderID("b"), merged[1].ID)
	assert.Equal(t, engine.OrderID("c"), merged[2].ID)
}

func TestMergeOrders_Symmetric(t *testing.T) {
	t0 := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	setA := []engine.Order{
		mergeOrder("a", 4, t0),
		mergeOrder("b", 1, t0.Add(time.Minute)),
	}
	setB := []engine.Order{
		mergeOrder("a", 2, t0.Add(time.Hour)),
		mergeOrder("b", 1, t0),
		mergeOrder("c", 7, t0),
	}

	ab := engine.MergeOrders(setA, setB)
	ba := engine.MergeOrders(setB, setA)

	require.Equal(t, len(ab), len(ba))
	for i := range ab {
		assert.Equal(t, ab[i].ID, ba[i].ID)
		assert.Equal(t, ab[i].Version, ba[i].Version)
		assert.Equal(t, ab[i].UpdatedAt, ba[i].UpdatedAt)
	}
}

func TestMergeOrders_Idempotent(t *testing.T) {
	t0 := time.Now()
	local := []engine.Order{mergeOrder("a", 4, t0), mergeOrder("b", 1, t0)}
	remote := []engine.Order{mergeOrder("a", 2, t0), mergeOrder("c", 7, t0)}

	once := engine.MergeOrders(local, remote)
	twice := engine.MergeOrders(once, once)

	assert.Equal(t, once, twice)
}

func TestMergeOrders_WholeOrderResolution(t *testing.T) {
	// The winner is one complete representation: the loser's item edits do
	// not bleed into the winning copy.

	t0 := time.Now()
	localCopy := mergeOrder("a", 2, t0)
	localCopy.Items = []engine.OrderItem{burgerItem("1")}
	localCopy.ServedBy = "alice"

	remoteCopy := mergeOrder("a", 3, t0)
	remoteCopy.Items = []engine.OrderItem{burgerItem("2"), burgerItem("3")}
	remoteCopy.ServedBy = "bob"

	merged := engine.MergeOrders([]engine.Order{localCopy}, []engine.Order{remoteCopy})

	require.Len(t, merged, 1)
	assert.Equal(t, "bob", merged[0].ServedBy)
	assert.Len(t, merged[0].Items, 2)
}
