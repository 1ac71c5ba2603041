package partition

import (
	"time"

	. "github.com/stevegt/goadapt"
	"github.com/stevegt/pippin/codec"
	"github.com/stevegt/pippin/element"
	"github.com/stevegt/pippin/history"
	"github.com/stevegt/pippin/sum"
)

// Mutator is a working copy of a partition's element set, used to
// stage Insert/Replace/Remove operations before Commit turns them
// into one CommitRecord (spec.md §4.6 "Commit creation": "working
// state is a private clone of the chosen tip's element set; mutator
// operations apply to this clone and are recorded as changes").
type Mutator struct {
	parent  *history.PartState
	set     *element.Set
	changes []codec.Change
	gen     *element.SuffixGenerator
	partId  element.PartitionId
}

// Working derives a Mutator from the partition's single current tip.
// It fails with ErrMultipleTips if the partition currently has more
// than one tip (spec.md §6: "working_from(state) → Mutator").
func (p *Partition) Working() (*Mutator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tip, ok := p.Tip()
	if !ok {
		tips := p.dag.TipSums()
		return nil, &ErrMultipleTips{Tips: tips}
	}
	return p.workingFrom(tip), nil
}

// WorkingFrom derives a Mutator from an explicit, already-known state
// rather than the current tip — used by callers replaying a specific
// branch before merging (spec.md §6: "working_from(state) → Mutator").
func (p *Partition) WorkingFrom(st *history.PartState) *Mutator {
	return p.workingFrom(st)
}

func (p *Partition) workingFrom(st *history.PartState) *Mutator {
	partId := element.PartitionId(p.cfg.PartitionId)
	set := st.Set.Clone()
	return &Mutator{
		parent: st,
		set:    set,
		gen:    element.NewSuffixGeneratorFor(set, partId),
		partId: partId,
	}
}

// Insert stages the addition of a brand-new element, allocating a
// fresh id within this partition's suffix space (spec.md §4.3).
func (m *Mutator) Insert(payload []byte) (element.Id, error) {
	suffix, err := m.gen.Next()
	if err != nil {
		return 0, &ErrIdentifierClash{Err: err}
	}
	id := element.NewId(m.partId, suffix)
	e := m.set.Insert(id, payload)
	m.changes = append(m.changes, codec.Change{Kind: codec.ChangeInsert, Id: uint64(id), Payload: payload, Sum: e.Sum})
	return id, nil
}

// Replace stages a payload change to a live element.
func (m *Mutator) Replace(id element.Id, payload []byte) error {
	if _, ok := m.set.Get(id); !ok {
		return &history.ErrChangeConflict{Id: uint64(id), Kind: codec.ChangeReplace}
	}
	_, newE := m.set.Replace(id, payload)
	m.changes = append(m.changes, codec.Change{Kind: codec.ChangeReplace, Id: uint64(id), Payload: payload, Sum: newE.Sum})
	return nil
}

// Remove stages the deletion of a live element.
func (m *Mutator) Remove(id element.Id) error {
	if _, ok := m.set.Get(id); !ok {
		return &history.ErrChangeConflict{Id: uint64(id), Kind: codec.ChangeDelete}
	}
	m.set.Delete(id)
	m.changes = append(m.changes, codec.Change{Kind: codec.ChangeDelete, Id: uint64(id)})
	return nil
}

// Get reads the current (possibly staged) value of id.
func (m *Mutator) Get(id element.Id) (element.Element, bool) {
	return m.set.Get(id)
}

// Len reports the working set's current element count.
func (m *Mutator) Len() int {
	return m.set.Len()
}

// Commit turns m's staged changes into a CommitRecord, appends it to
// the session's owned log, and advances the Dag to the resulting
// PartState (spec.md §4.6 "Commit creation", §6 "commit(mutator) →
// State"). A Mutator with no staged changes still produces a commit.
func (p *Partition) Commit(m *Mutator, userMetaTag [2]byte, userMeta []byte) (st *history.PartState, err error) {
	defer Return(&err)
	p.mu.Lock()
	defer p.mu.Unlock()

	meta := history.DeriveMeta([]*history.PartState{m.parent}, time.Now(), userMetaTag, userMeta)
	metaSum := sum.MetaSum(p.cfg.PartitionId, meta.CommitNumber, meta.Timestamp, []sum.Sum{m.parent.Sum}, metaExtraFor(meta))
	stateSum := sum.StateSum(metaSum, m.set.Aggregate())

	rec := codec.CommitRecord{
		IsMerge:  false,
		Meta:     meta,
		Parents:  []sum.Sum{m.parent.Sum},
		Changes:  m.changes,
		StateSum: stateSum,
	}

	child, err := history.ApplyCommit(p.cfg.PartitionId, m.parent, rec)
	Ck(err)

	n, err := p.appendCommit(rec)
	Ck(err)
	p.bytesSinceSnapshot += n

	p.dag.Add(child)

	if p.bytesSinceSnapshot >= p.cfg.threshold() {
		if serr := p.snapshotLocked(); serr != nil {
			p.cfg.logger().Warnf("automatic snapshot failed: %v", serr)
		}
	}
	return child, nil
}

// metaExtraFor mirrors history.PartState's private metaExtra so the
// commit-side state-sum precomputation above agrees with the one
// ApplyCommit performs when it recomputes the child's sum.
func metaExtraFor(m codec.CommitMeta) []byte {
	out := append([]byte{}, m.ExtPayload...)
	out = append(out, m.UserMeta...)
	return out
}
