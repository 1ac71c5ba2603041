package mergedrv

import (
	"testing"
	"time"

	"github.com/stevegt/pippin/codec"
	"github.com/stevegt/pippin/element"
	"github.com/stevegt/pippin/history"
	"github.com/stevegt/pippin/sum"
)

func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper()
	if !cond {
		t.Fatalf(txt, args...)
	}
}

const testPartitionID = 0x01

func TestThreeWayNoConflictBothUnchanged(t *testing.T) {
	anc := element.NewSet()
	anc.Insert(element.Id(1), []byte("v1"))

	left := anc.Clone()
	right := anc.Clone()

	merged, err := ThreeWay(anc, left, right, nil)
	tassert(t, err == nil, "ThreeWay: %v", err)
	e, ok := merged.Get(element.Id(1))
	tassert(t, ok && string(e.Payload) == "v1", "expected v1 preserved")
}

func TestThreeWayOnlyRightChanged(t *testing.T) {
	anc := element.NewSet()
	anc.Insert(element.Id(1), []byte("v1"))
	left := anc.Clone()
	right := anc.Clone()
	right.Replace(element.Id(1), []byte("v2"))

	merged, err := ThreeWay(anc, left, right, nil)
	tassert(t, err == nil, "ThreeWay: %v", err)
	e, _ := merged.Get(element.Id(1))
	tassert(t, string(e.Payload) == "v2", "expected v2, got %q", e.Payload)
}

func TestThreeWayInsertedOnLeftOnly(t *testing.T) {
	anc := element.NewSet()
	left := anc.Clone()
	left.Insert(element.Id(1), []byte("new"))
	right := anc.Clone()

	merged, err := ThreeWay(anc, left, right, nil)
	tassert(t, err == nil, "ThreeWay: %v", err)
	_, ok := merged.Get(element.Id(1))
	tassert(t, ok, "expected left-only insert to survive")
}

func TestThreeWayBothDeleted(t *testing.T) {
	anc := element.NewSet()
	anc.Insert(element.Id(1), []byte("v1"))
	left := anc.Clone()
	left.Delete(element.Id(1))
	right := anc.Clone()
	right.Delete(element.Id(1))

	merged, err := ThreeWay(anc, left, right, nil)
	tassert(t, err == nil, "ThreeWay: %v", err)
	tassert(t, merged.Len() == 0, "expected deletion to stick")
}

func TestThreeWayConflictDeclinedWithoutResolver(t *testing.T) {
	anc := element.NewSet()
	anc.Insert(element.Id(1), []byte("v1"))
	left := anc.Clone()
	left.Replace(element.Id(1), []byte("v2"))
	right := anc.Clone()
	right.Replace(element.Id(1), []byte("v3"))

	_, err := ThreeWay(anc, left, right, nil)
	tassert(t, err != nil, "expected decline error")
	_, ok := err.(*ErrMergeDeclined)
	tassert(t, ok, "expected *ErrMergeDeclined, got %T", err)
}

func TestThreeWayConflictResolvedKeepLeft(t *testing.T) {
	anc := element.NewSet()
	anc.Insert(element.Id(1), []byte("v1"))
	left := anc.Clone()
	left.Replace(element.Id(1), []byte("v2"))
	right := anc.Clone()
	right.Replace(element.Id(1), []byte("v3"))

	resolver := ResolverFunc(func(c Conflict) (Resolution, []byte) { return KeepLeft, nil })
	merged, err := ThreeWay(anc, left, right, resolver)
	tassert(t, err == nil, "ThreeWay: %v", err)
	e, _ := merged.Get(element.Id(1))
	tassert(t, string(e.Payload) == "v2", "expected keep-left value, got %q", e.Payload)
}

// buildInsertCommit constructs a single-parent commit record inserting
// one element, with a correctly computed state sum, mirroring the
// helper used in the history package's own tests.
func buildInsertCommit(partitionID uint64, parent *history.PartState, id uint64, payload []byte, commitNumber uint32, now time.Time) codec.CommitRecord {
	es := sum.ElementSum(id, payload)
	meta := codec.CommitMeta{Timestamp: now.Unix(), CommitNumber: commitNumber}
	newAgg := parent.Set.Aggregate().Xor(es)
	metaSum := sum.MetaSum(partitionID, meta.CommitNumber, meta.Timestamp, []sum.Sum{parent.Sum}, nil)
	stateSum := sum.StateSum(metaSum, newAgg)
	return codec.CommitRecord{
		Meta:     meta,
		Parents:  []sum.Sum{parent.Sum},
		Changes:  []codec.Change{{Kind: codec.ChangeInsert, Id: id, Payload: payload, Sum: es}},
		StateSum: stateSum,
	}
}

func mustApply(t *testing.T, partitionID uint64, parent *history.PartState, id uint64, payload string, commitNumber uint32, now time.Time) *history.PartState {
	rec := buildInsertCommit(partitionID, parent, id, []byte(payload), commitNumber, now)
	child, err := history.ApplyCommit(partitionID, parent, rec)
	tassert(t, err == nil, "ApplyCommit: %v", err)
	return child
}

func TestMergeTwoTips(t *testing.T) {
	now := time.Unix(5000, 0)
	root := history.NewRoot(testPartitionID, now)

	dag := history.NewDag()
	dag.Add(root)

	left := mustApply(t, testPartitionID, root, 1, "left-val", 1, now)
	right := mustApply(t, testPartitionID, root, 2, "right-val", 1, now)
	dag.Add(left)
	dag.Add(right)

	merged, err := Merge(dag, testPartitionID, nil, now.Add(time.Second), [2]byte{}, nil)
	tassert(t, err == nil, "Merge: %v", err)
	tassert(t, len(merged.Parents) == 2, "expected 2 parents, got %d", len(merged.Parents))
	_, ok1 := merged.Set.Get(element.Id(1))
	_, ok2 := merged.Set.Get(element.Id(2))
	tassert(t, ok1 && ok2, "expected both tips' inserts present in merge")
}

func TestMergeThreeTipsKeepsFullParentSet(t *testing.T) {
	now := time.Unix(6000, 0)
	root := history.NewRoot(testPartitionID, now)

	dag := history.NewDag()
	dag.Add(root)

	t1 := mustApply(t, testPartitionID, root, 1, "a", 1, now)
	t2 := mustApply(t, testPartitionID, root, 2, "b", 1, now)
	t3 := mustApply(t, testPartitionID, root, 3, "c", 1, now)
	dag.Add(t1)
	dag.Add(t2)
	dag.Add(t3)

	merged, err := Merge(dag, testPartitionID, nil, now.Add(time.Second), [2]byte{}, nil)
	tassert(t, err == nil, "Merge: %v", err)
	tassert(t, len(merged.Parents) == 3, "expected 3 parents, got %d", len(merged.Parents))
	for _, id := range []uint64{1, 2, 3} {
		_, ok := merged.Set.Get(element.Id(id))
		tassert(t, ok, "expected element %d present after 3-way reduction", id)
	}
}
