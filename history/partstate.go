// Package history implements Pippin's history DAG: immutable
// PartStates keyed by state sum, loaded from a snapshot plus its
// commit logs and replayed into a tip set (spec.md §4.4).
package history

import (
	"time"

	"github.com/stevegt/pippin/codec"
	"github.com/stevegt/pippin/element"
	"github.com/stevegt/pippin/sum"
)

// PartState is one immutable state of a partition: its sum, parent
// sums, element set, and commit metadata (spec.md §3). It is created
// by load or commit and never mutated afterward.
type PartState struct {
	Sum     sum.Sum
	Parents []sum.Sum
	Meta    codec.CommitMeta
	Set     *element.Set
}

// ComputeSum recomputes s's state sum from its parents, meta, and
// element set, for verification against the declared Sum (spec.md
// §8 universal invariant: compute_state_sum(S) == S.sum).
func (s *PartState) ComputeSum(partitionID uint64) sum.Sum {
	meta := sum.MetaSum(partitionID, s.Meta.CommitNumber, s.Meta.Timestamp, s.Parents, metaExtra(s.Meta))
	return sum.StateSum(meta, s.Set.Aggregate())
}

// metaExtra packs a CommitMeta's extension payload and user metadata
// into the "extra_metadata_bytes" fed into meta_sum, so that changing
// either changes the state sum (spec.md §4.1).
func metaExtra(m codec.CommitMeta) []byte {
	out := append([]byte{}, m.ExtPayload...)
	out = append(out, m.UserMeta...)
	return out
}

// RootMeta builds the CommitMeta for a brand-new, parentless root
// state created when a partition is empty (spec.md §8 boundary case:
// "Empty partition (0 elements): state sum equals meta_sum of the
// empty root").
func RootMeta(now time.Time) codec.CommitMeta {
	return codec.CommitMeta{Timestamp: now.Unix(), CommitNumber: 0}
}

// NewRoot builds the root PartState of a freshly created partition:
// no parents, no elements, commit number 0.
func NewRoot(partitionID uint64, now time.Time) *PartState {
	meta := RootMeta(now)
	s := &PartState{Meta: meta, Set: element.NewSet()}
	s.Sum = s.ComputeSum(partitionID)
	return s
}

// DeriveMeta builds the CommitMeta for a new child of one or more
// parent states: the timestamp is now, the commit number is one past
// the maximum parent commit number, and extension flags are inherited
// — OR'd together across all parents (spec.md §4.2: "Flags are
// inherited by child commits; merges take the bitwise OR of parents'
// flags").
func DeriveMeta(parents []*PartState, now time.Time, userMetaTag [2]byte, userMeta []byte) codec.CommitMeta {
	var maxCommit uint32
	var flags uint16
	for _, p := range parents {
		if p.Meta.CommitNumber > maxCommit {
			maxCommit = p.Meta.CommitNumber
		}
		flags |= p.Meta.ExtFlags
	}
	return codec.CommitMeta{
		Timestamp:    now.Unix(),
		CommitNumber: maxCommit + 1,
		ExtFlags:     flags,
		UserMetaTag:  userMetaTag,
		UserMeta:     userMeta,
	}
}
