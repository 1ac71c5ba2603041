package history

import (
	"github.com/stevegt/pippin/sum"
)

// Dag is a history DAG: states indexed by state sum, plus the tip
// set (sums not referenced as a parent by any loaded state) (spec.md
// §3 HistoryDag). It grows monotonically during a session — states
// are never removed once added.
type Dag struct {
	states map[sum.Sum]*PartState
	tips   map[sum.Sum]bool
}

// NewDag returns an empty Dag.
func NewDag() *Dag {
	return &Dag{states: make(map[sum.Sum]*PartState), tips: make(map[sum.Sum]bool)}
}

// Get looks up a state by its sum.
func (d *Dag) Get(s sum.Sum) (*PartState, bool) {
	st, ok := d.states[s]
	return st, ok
}

// Has reports whether s is a known state sum.
func (d *Dag) Has(s sum.Sum) bool {
	_, ok := d.states[s]
	return ok
}

// Add records a new state in the DAG: it becomes a tip, and every
// sum it lists as a parent is removed from the tip set (a state with
// a recorded child is no longer a tip).
func (d *Dag) Add(st *PartState) {
	d.states[st.Sum] = st
	d.tips[st.Sum] = true
	for _, p := range st.Parents {
		delete(d.tips, p)
	}
}

// Tips returns the current tip set: states not referenced as a
// parent by any loaded state.
func (d *Dag) Tips() []*PartState {
	out := make([]*PartState, 0, len(d.tips))
	for s := range d.tips {
		out = append(out, d.states[s])
	}
	return out
}

// TipSums returns the current tip set's sums, sorted ascending —
// the stable ordering spec.md §4.5 requires when building a merge
// commit's parent list.
func (d *Dag) TipSums() []sum.Sum {
	out := make([]sum.Sum, 0, len(d.tips))
	for s := range d.tips {
		out = append(out, s)
	}
	sum.SortBySum(out)
	return out
}

// Len returns the number of states recorded in the DAG.
func (d *Dag) Len() int {
	return len(d.states)
}

// Ancestors returns the set of every state reachable by walking
// parent links from start, including start itself. Used by the
// merge driver's breadth-first common-ancestor walk (spec.md §4.5).
func (d *Dag) Ancestors(start sum.Sum) map[sum.Sum]bool {
	seen := map[sum.Sum]bool{}
	queue := []sum.Sum{start}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		if seen[s] {
			continue
		}
		seen[s] = true
		st, ok := d.states[s]
		if !ok {
			continue
		}
		queue = append(queue, st.Parents...)
	}
	return seen
}
