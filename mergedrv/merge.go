package mergedrv

import (
	"time"

	. "github.com/stevegt/goadapt"
	"github.com/stevegt/pippin/element"
	"github.com/stevegt/pippin/history"
	"github.com/stevegt/pippin/sum"
)

// CommonAncestor finds a common ancestor of a and b by breadth-first
// walking both states' parent links and intersecting the visited
// sets (spec.md §4.5). It only considers nearest common ancestors
// (those that are not an ancestor of another common ancestor), and
// among such ties it picks the lexicographically smallest sum, for
// determinism. It returns ok=false if a and b share
// no ancestor at all (only possible for two independently created
// root states, which spec.md's single-partition model does not
// produce, but which this function still handles safely).
func CommonAncestor(dag *history.Dag, a, b sum.Sum) (ancestor sum.Sum, ok bool) {
	aAnc := dag.Ancestors(a)
	bAnc := dag.Ancestors(b)
	notNearest := map[sum.Sum]bool{}
	for s := range aAnc {
		if st, ok := dag.Get(s); ok && bAnc[s] {
			for _, p := range st.Parents {
				for q := range dag.Ancestors(p) {
					notNearest[q] = true
				}
			}
		}
	}
	var best sum.Sum
	found := false
	for s := range aAnc {
		if !bAnc[s] || notNearest[s] {
			continue
		}
		if !found || s.Less(best) {
			best = s
			found = true
		}
	}
	return best, found
}

// Merge resolves the full current tip set of dag into a single new
// merge PartState (spec.md §4.5). For more than two tips it reduces
// pairwise, using each adjacent pair's common ancestor as the
// three-way base and threading the accumulated result forward as the
// next "left" — a pragmatic reading of spec.md's "iterated for t>2
// pairwise", since the spec does not pin down an exact reduction
// order for more than two tips. The returned PartState's parent list
// is the full original tip set, stably sorted by sum, regardless of
// how many pairwise steps it took to build its element set.
func Merge(dag *history.Dag, partitionID uint64, resolver Resolver, now time.Time, userMetaTag [2]byte, userMeta []byte) (*history.PartState, error) {
	tipSums := dag.TipSums()
	Assert(len(tipSums) >= 2, "mergedrv: Merge called with fewer than 2 tips")

	tips := make([]*history.PartState, len(tipSums))
	for i, s := range tipSums {
		st, ok := dag.Get(s)
		Assert(ok, "mergedrv: tip sum %s not found in dag", s)
		tips[i] = st
	}

	accState := tips[0]
	accSet := tips[0].Set
	for i := 1; i < len(tips); i++ {
		next := tips[i]
		ancSum, ok := CommonAncestor(dag, accState.Sum, next.Sum)
		ancestorSet := ancestorOrEmpty(dag, ancSum, ok)
		merged, err := ThreeWay(ancestorSet, accSet, next.Set, resolver)
		if err != nil {
			return nil, err
		}
		accSet = merged
		accState = next
	}

	meta := history.DeriveMeta(tips, now, userMetaTag, userMeta)
	st := &history.PartState{Parents: tipSums, Meta: meta, Set: accSet}
	st.Sum = st.ComputeSum(partitionID)
	return st, nil
}

// ancestorOrEmpty returns the element set of the common ancestor at
// ancSum, or an empty set if the pair shares no recorded ancestor.
func ancestorOrEmpty(dag *history.Dag, ancSum sum.Sum, ok bool) *element.Set {
	if !ok {
		return element.NewSet()
	}
	st, found := dag.Get(ancSum)
	Assert(found, "mergedrv: common ancestor sum %s missing from dag", ancSum)
	return st.Set
}
