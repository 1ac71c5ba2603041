package partition

import (
	"github.com/stevegt/pippin/history"
)

// Snapshot writes a fresh snapshot of the partition's current tip and
// returns the number it was written under (spec.md §4.6 "Snapshot
// policy": "a snapshot may be written at any time the partition has a
// single tip"). It fails with ErrMultipleTips if there is more than
// one tip; Merge first.
func (p *Partition) Snapshot() (n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err = p.snapshotLocked(); err != nil {
		return 0, err
	}
	return p.snapshotNum, nil
}

// snapshotLocked is Snapshot's body, callable by Commit while p.mu is
// already held.
func (p *Partition) snapshotLocked() error {
	tips := p.dag.Tips()
	if len(tips) != 1 {
		return &ErrMultipleTips{Tips: p.dag.TipSums()}
	}
	n := p.nextSnapshotNum
	if err := p.writeSnapshot(n, []*history.PartState{tips[0]}); err != nil {
		return err
	}
	p.nextSnapshotNum = n + 1
	// A fresh snapshot starts a fresh owned log bound to it, so future
	// commits are recorded under the new snapshot number rather than
	// appended past files a reader might have already truncated reads
	// against the old one.
	p.currentLogName = ""
	p.nextLogNum = 0
	return nil
}
