// Package reconcile maps freshly parsed node ids back onto the stable
// ids of a previously known tree. Re-parsing text always produces new
// ids; reconciliation keeps identity continuity when a document is
// edited externally and re-read.
package reconcile

import (
	"github.com/starford/strata/internal/models"
)

// Reconcile matches the freshly parsed tree against the old tree and
// returns a new node map in which every fresh node that corresponds to
// an old node carries the old node's id. Matching runs per parent-level
// pair, pos-ordered:
//
//  1. greedy, order-preserving match on first-line text equality, so
//     duplicate-text siblings pair with their counterpart by relative
//     position;
//  2. remaining children are paired positionally in order (pure text
//     edits keep their node);
//
// children still unmatched after both phases are genuinely new subtrees
// and keep their parsed ids. The result takes every field from the
// fresh parse except the collapsed flag, which is preserved from the
// matched old node.
func Reconcile(old models.NodeMap, oldRootID string, fresh models.NodeMap, freshRootID string) (models.NodeMap, string) {
	idMap := make(map[string]string, len(fresh))
	idMap[freshRootID] = oldRootID

	matchLevel(old, oldRootID, fresh, freshRootID, idMap)

	out := make(models.NodeMap, len(fresh))
	for _, fn := range fresh {
		mapped := fn.Clone()
		if oldID, ok := idMap[fn.ID]; ok {
			mapped.ID = oldID
			if on, exists := old[oldID]; exists {
				mapped.Collapsed = on.Collapsed
			}
		}
		if parentOld, ok := idMap[fn.ParentID]; ok {
			mapped.ParentID = parentOld
		}
		out[mapped.ID] = mapped
	}
	return out, oldRootID
}

// matchLevel pairs the children of one matched (old, fresh) parent pair
// and recurses into each match.
func matchLevel(old models.NodeMap, oldParent string, fresh models.NodeMap, freshParent string, idMap map[string]string) {
	oldKids := orderedChildren(old, oldParent)
	freshKids := orderedChildren(fresh, freshParent)

	matched := make([]string, len(freshKids)) // fresh index -> old id
	oldUsed := make([]bool, len(oldKids))

	// Phase 1: greedy order-preserving match on first-line text. Each
	// old index is consumed at most once and matches advance
	// monotonically through the old list.
	next := 0
	for fi, fk := range freshKids {
		for oi := next; oi < len(oldKids); oi++ {
			if oldKids[oi].Title() == fk.Title() {
				matched[fi] = oldKids[oi].ID
				oldUsed[oi] = true
				next = oi + 1
				break
			}
		}
	}

	// Phase 2: pair the leftovers positionally in order. This keeps a
	// node "the same item" when only its text changed.
	oi := 0
	for fi := range freshKids {
		if matched[fi] != "" {
			continue
		}
		for oi < len(oldKids) && oldUsed[oi] {
			oi++
		}
		if oi >= len(oldKids) {
			break
		}
		matched[fi] = oldKids[oi].ID
		oldUsed[oi] = true
	}

	for fi, fk := range freshKids {
		if matched[fi] != "" {
			idMap[fk.ID] = matched[fi]
			matchLevel(old, matched[fi], fresh, fk.ID, idMap)
		} else {
			// Genuinely new subtree: keep parsed ids, recurse with an
			// empty old side so descendants keep theirs too.
			matchLevel(old, "", fresh, fk.ID, idMap)
		}
	}
}

// orderedChildren returns non-deleted children of parentID in pos
// order. An empty parent id stands for "no old side" and has no
// children by definition.
func orderedChildren(nodes models.NodeMap, parentID string) []*models.Node {
	if parentID == "" {
		return nil
	}
	return models.OrderedChildren(nodes, parentID)
}
