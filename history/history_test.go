package history

import (
	"testing"
	"time"

	"github.com/stevegt/pippin/codec"
	"github.com/stevegt/pippin/element"
	"github.com/stevegt/pippin/sum"
)

func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper()
	if !cond {
		t.Fatalf(txt, args...)
	}
}

const testPartitionID = 0x01

func TestRootStateSumIsMetaSumOfEmptyRoot(t *testing.T) {
	root := NewRoot(testPartitionID, time.Unix(0, 0))
	tassert(t, root.Set.Len() == 0, "expected empty root")
	want := sum.MetaSum(testPartitionID, 0, 0, nil, nil)
	tassert(t, root.Sum == want, "root sum mismatch")
}

func buildInsertCommit(partitionID uint64, parent *PartState, id uint64, payload []byte, commitNumber uint32, now time.Time) codec.CommitRecord {
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

func TestApplyCommitInsert(t *testing.T) {
	now := time.Unix(1000, 0)
	root := NewRoot(testPartitionID, now)
	rec := buildInsertCommit(testPartitionID, root, 1, []byte("hi"), 1, now)

	child, err := ApplyCommit(testPartitionID, root, rec)
	tassert(t, err == nil, "ApplyCommit: %v", err)
	tassert(t, child.Set.Len() == 1, "expected 1 element")
	e, ok := child.Set.Get(element.Id(1))
	tassert(t, ok, "element not found")
	tassert(t, string(e.Payload) == "hi", "payload mismatch: %q", e.Payload)
}

func TestApplyCommitInsertConflict(t *testing.T) {
	now := time.Unix(1000, 0)
	root := NewRoot(testPartitionID, now)
	rec := buildInsertCommit(testPartitionID, root, 1, []byte("hi"), 1, now)
	child, err := ApplyCommit(testPartitionID, root, rec)
	tassert(t, err == nil, "ApplyCommit: %v", err)

	// Re-inserting the same id on top of child must fail: it's live.
	rec2 := buildInsertCommit(testPartitionID, child, 1, []byte("again"), 2, now)
	_, err = ApplyCommit(testPartitionID, child, rec2)
	tassert(t, err != nil, "expected conflict error for re-insert of live id")
	_, ok := err.(*ErrChangeConflict)
	tassert(t, ok, "expected *ErrChangeConflict, got %T", err)
}

func TestApplyCommitStateSumMismatchRejected(t *testing.T) {
	now := time.Unix(1000, 0)
	root := NewRoot(testPartitionID, now)
	rec := buildInsertCommit(testPartitionID, root, 1, []byte("hi"), 1, now)
	rec.StateSum = sum.Zero // corrupt the declared sum

	_, err := ApplyCommit(testPartitionID, root, rec)
	tassert(t, err != nil, "expected state sum mismatch error")
	_, ok := err.(*ErrStateSumMismatch)
	tassert(t, ok, "expected *ErrStateSumMismatch, got %T", err)
}

func TestReplayBuildsLinearChain(t *testing.T) {
	now := time.Unix(1000, 0)
	root := NewRoot(testPartitionID, now)
	rec1 := buildInsertCommit(testPartitionID, root, 1, []byte("a"), 1, now)
	child1, err := ApplyCommit(testPartitionID, root, rec1)
	tassert(t, err == nil, "ApplyCommit 1: %v", err)
	rec2 := buildInsertCommit(testPartitionID, child1, 2, []byte("b"), 2, now)

	snapshot := codec.SnapshotBody{Meta: root.Meta, StateSum: root.Sum}
	result := Replay(testPartitionID, []codec.SnapshotBody{snapshot}, []codec.CommitRecord{rec2, rec1})

	tassert(t, len(result.Dropped) == 0, "unexpected dropped commits: %v", result.Dropped)
	tassert(t, len(result.Rejected) == 0, "unexpected rejected commits: %v", result.Rejected)
	tips := result.Dag.TipSums()
	tassert(t, len(tips) == 1, "expected 1 tip, got %d", len(tips))
}

func TestDeriveMetaOrsFlags(t *testing.T) {
	now := time.Unix(2000, 0)
	p1 := &PartState{Meta: codec.CommitMeta{CommitNumber: 3, ExtFlags: 0b01}}
	p2 := &PartState{Meta: codec.CommitMeta{CommitNumber: 5, ExtFlags: 0b10}}
	m := DeriveMeta([]*PartState{p1, p2}, now, [2]byte{}, nil)
	tassert(t, m.CommitNumber == 6, "expected commit number 6, got %d", m.CommitNumber)
	tassert(t, m.ExtFlags == 0b11, "expected flags OR'd, got %b", m.ExtFlags)
}
