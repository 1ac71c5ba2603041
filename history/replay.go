package history

import (
	"fmt"
	"time"

	. "github.com/stevegt/goadapt"
	"github.com/stevegt/pippin/codec"
	"github.com/stevegt/pippin/element"
	"github.com/stevegt/pippin/sum"
)

// ErrStateSumMismatch means a loaded snapshot's or a replayed
// commit's computed state sum does not match its declared one
// (spec.md §4.4 steps 1 and 3).
type ErrStateSumMismatch struct {
	Declared, Computed sum.Sum
}

func (e *ErrStateSumMismatch) Error() string {
	return fmt.Sprintf("history: state sum mismatch: declared %s, computed %s", e.Declared, e.Computed)
}

// ErrChangeConflict means a commit record's change is invalid against
// its parent state: an INS whose id is already live, a REPL or DEL
// whose id is absent (spec.md §4.2: "INS is valid only when the
// identifier is free in the parent; REPL only when it currently maps
// to an element; DEL only when present").
type ErrChangeConflict struct {
	Id   uint64
	Kind codec.ChangeKind
}

func (e *ErrChangeConflict) Error() string {
	return fmt.Sprintf("history: change conflict for id %d (kind %d)", e.Id, e.Kind)
}

// StateFromSnapshot builds the PartState a snapshot body declares,
// and verifies its state sum (spec.md §4.4 step 1).
func StateFromSnapshot(partitionID uint64, body codec.SnapshotBody) (st *PartState, err error) {
	defer Return(&err)
	set := element.NewSet()
	for _, rec := range body.Elements {
		set.ApplyRaw(element.Element{Id: element.Id(rec.Id), Payload: rec.Payload, Sum: rec.Sum})
	}
	st = &PartState{Parents: body.Parents, Meta: body.Meta, Set: set}
	st.Sum = st.ComputeSum(partitionID)
	if st.Sum != body.StateSum {
		return nil, &ErrStateSumMismatch{Declared: body.StateSum, Computed: st.Sum}
	}
	return st, nil
}

// ApplyCommit builds the child PartState that results from applying
// rec to parent (rec's first-listed parent, per spec.md §4.4 step 3),
// and verifies the resulting state sum.
func ApplyCommit(partitionID uint64, parent *PartState, rec codec.CommitRecord) (child *PartState, err error) {
	defer Return(&err)
	set := parent.Set.Clone()
	for _, c := range rec.Changes {
		id := element.Id(c.Id)
		_, live := set.Get(id)
		switch c.Kind {
		case codec.ChangeInsert:
			if live {
				return nil, &ErrChangeConflict{Id: c.Id, Kind: c.Kind}
			}
			set.ApplyRaw(element.Element{Id: id, Payload: c.Payload, Sum: c.Sum})
		case codec.ChangeReplace:
			if !live {
				return nil, &ErrChangeConflict{Id: c.Id, Kind: c.Kind}
			}
			set.ApplyRaw(element.Element{Id: id, Payload: c.Payload, Sum: c.Sum})
		case codec.ChangeDelete:
			if !live {
				return nil, &ErrChangeConflict{Id: c.Id, Kind: c.Kind}
			}
			set.RemoveRaw(id)
		default:
			Assert(false, "history: unknown change kind %d", c.Kind)
		}
	}
	child = &PartState{Parents: rec.Parents, Meta: rec.Meta, Set: set}
	child.Sum = child.ComputeSum(partitionID)
	if child.Sum != rec.StateSum {
		return nil, &ErrStateSumMismatch{Declared: rec.StateSum, Computed: child.Sum}
	}
	return child, nil
}

// ReplayResult is the outcome of replaying a partition's snapshots
// and commit logs into a Dag (spec.md §4.4).
type ReplayResult struct {
	Dag      *Dag
	Dropped  []DroppedCommit // unresolved after every retry: missing ancestor or corrupt
	Rejected []RejectedCommit
}

// DroppedCommit is a commit whose parent was never found among the
// loaded snapshots/commits — an ancestor from files this load did not
// have (spec.md §4.4 step 4a).
type DroppedCommit struct {
	Record codec.CommitRecord
	Reason string
}

// RejectedCommit is a commit that was resolved (its parent was
// found) but could not be applied — a change conflicting with the
// parent's element set, or a declared state sum that did not match the
// recomputed one — genuine corruption (spec.md §4.4 step 4b). A
// snapshot whose state sum fails to verify is also recorded here, with
// a zero Record.
type RejectedCommit struct {
	Record codec.CommitRecord
	Err    error
}

// Replay builds a Dag from a partition's decoded snapshot bodies and
// commit records, following spec.md §4.4 steps 1-4 (step 5, invoking
// the merge driver when multiple tips remain, is the caller's job —
// this package has no opinion on conflict resolution).
func Replay(partitionID uint64, snapshots []codec.SnapshotBody, commits []codec.CommitRecord) *ReplayResult {
	dag := NewDag()
	result := &ReplayResult{Dag: dag}

	for _, body := range snapshots {
		st, err := StateFromSnapshot(partitionID, body)
		if err != nil {
			// spec.md step 1: mismatch is a corruption error for this
			// file, but loading continues with the others.
			result.Rejected = append(result.Rejected, RejectedCommit{Err: err})
			continue
		}
		dag.Add(st)
	}

	pending := append([]codec.CommitRecord{}, commits...)
	for {
		progressed := false
		var stillPending []codec.CommitRecord
		for _, rec := range pending {
			if len(rec.Parents) == 0 {
				result.Dropped = append(result.Dropped, DroppedCommit{Record: rec, Reason: "commit record has no parent"})
				progressed = true
				continue
			}
			parent, ok := dag.Get(rec.Parents[0])
			if !ok {
				stillPending = append(stillPending, rec)
				continue
			}
			child, err := ApplyCommit(partitionID, parent, rec)
			if err != nil {
				result.Rejected = append(result.Rejected, RejectedCommit{Record: rec, Err: err})
				progressed = true
				continue
			}
			dag.Add(child)
			progressed = true
		}
		pending = stillPending
		if !progressed || len(pending) == 0 {
			break
		}
	}
	for _, rec := range pending {
		result.Dropped = append(result.Dropped, DroppedCommit{Record: rec, Reason: "parent not found among loaded files"})
	}

	if dag.Len() == 0 {
		dag.Add(NewRoot(partitionID, time.Now()))
	}

	return result
}
