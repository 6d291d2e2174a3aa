/*
merge.go - Offline reconciliation of divergent order sets

PURPOSE:
  When a device edited orders while disconnected, two snapshots of the same
  order set diverge. MergeOrders resolves them: for every order present in
  both, the copy with the higher Version wins; on a version tie, the later
  UpdatedAt wins. Orders present on only one side are kept unconditionally.

PROPERTIES:
  - Whole-order resolution: the winner is one complete representation,
    never a field-by-field blend of two versions.
  - Deterministic: the same two inputs always produce the same output,
    regardless of input ordering. On a full tie the contents are identical
    by definition of the versioning contract, so either copy is the answer.
  - Symmetric: MergeOrders(A, B) picks the same winner per id as
    MergeOrders(B, A).
  - Idempotent: merging the result with itself is a fixed point.

NOT A LOCK:
  This is the reconciliation path for edits made while serialization was
  impossible. Live concurrent edits to one order are rejected at the store
  via the version precondition and retried, not merged.
*/
package engine

import "sort"

// MergeOrders reconciles two divergent snapshots of the same order set.
// The result is the union of ids from both inputs, each id resolved to
// exactly one winning representation, sorted by id for stable output.
func MergeOrders(local, remote []Order) []Order {
	byID := make(map[OrderID]Order, len(local)+len(remote))
	for _, o := range local {
		byID[o.ID] = o
	}
	for _, o := range remote {
		existing, seen := byID[o.ID]
		if !seen {
			byID[o.ID] = o
			continue
		}
		if wins(o, existing) {
			byID[o.ID] = o
		}
	}

	merged := make([]Order, 0, len(byID))
	for _, o := range byID {
		merged = append(merged, o)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ID < merged[j].ID })
	return merged
}

// wins reports whether challenger beats incumbent: higher version first,
// later UpdatedAt as the tie-break. A full tie keeps the incumbent, which is
// symmetric because two copies with equal version and timestamp are the same
// mutation.
func wins(challenger, incumbent Order) bool {
	if challenger.Version != incumbent.Version {
		return challenger.Version > incumbent.Version
	}
	return challenger.UpdatedAt.After(incumbent.UpdatedAt)
}
