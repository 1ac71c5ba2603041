package partition

import (
	"time"

	. "github.com/stevegt/goadapt"
	"github.com/stevegt/pippin/codec"
	"github.com/stevegt/pippin/element"
	"github.com/stevegt/pippin/history"
	"github.com/stevegt/pippin/mergedrv"
)

// Merge folds every current tip down to one state via resolver,
// writes the result as a MERGE record in the session's owned log, and
// advances the Dag (spec.md §4.5, §6 "merge(resolver) → State"). If
// the partition already has a single tip, Merge is a no-op that
// returns it.
func (p *Partition) Merge(resolver mergedrv.Resolver, userMetaTag [2]byte, userMeta []byte) (st *history.PartState, err error) {
	defer Return(&err)
	p.mu.Lock()
	defer p.mu.Unlock()

	if tip, ok := p.Tip(); ok {
		return tip, nil
	}

	merged, err := mergedrv.Merge(p.dag, p.cfg.PartitionId, resolver, time.Now(), userMetaTag, userMeta)
	Ck(err)

	first, ok := p.dag.Get(merged.Parents[0])
	Assert(ok, "partition: merge result's first parent %s missing from dag", merged.Parents[0])

	rec := codec.CommitRecord{
		IsMerge:  true,
		Meta:     merged.Meta,
		Parents:  merged.Parents,
		Changes:  diffChanges(first.Set, merged.Set),
		StateSum: merged.Sum,
	}

	n, err := p.appendCommit(rec)
	Ck(err)
	p.bytesSinceSnapshot += n

	p.dag.Add(merged)
	return merged, nil
}

// diffChanges computes the []codec.Change that turns before into
// after, for recording a merge (or any other non-mutator-driven
// transition) as a commit-log record (spec.md §4.2's commit-log body:
// one ELT DEL/INS/REPL change per affected element).
func diffChanges(before, after *element.Set) []codec.Change {
	var changes []codec.Change
	seen := make(map[element.Id]bool)

	before.Each(func(e element.Element) {
		seen[e.Id] = true
		na, ok := after.Get(e.Id)
		if !ok {
			changes = append(changes, codec.Change{Kind: codec.ChangeDelete, Id: uint64(e.Id)})
			return
		}
		if na.Sum != e.Sum {
			changes = append(changes, codec.Change{Kind: codec.ChangeReplace, Id: uint64(e.Id), Payload: na.Payload, Sum: na.Sum})
		}
	})
	after.Each(func(e element.Element) {
		if seen[e.Id] {
			return
		}
		changes = append(changes, codec.Change{Kind: codec.ChangeInsert, Id: uint64(e.Id), Payload: e.Payload, Sum: e.Sum})
	})
	return changes
}
