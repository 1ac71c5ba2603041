package element

import (
	. "github.com/stevegt/goadapt"
	"github.com/stevegt/pippin/sum"
)

// Set is the live element membership of one PartState: a map from id
// to Element, plus an aggregate that is the XOR of every live
// element's sum, maintained incrementally so that recomputing it from
// scratch is never required on the hot path (spec.md §4.1, §4.3).
type Set struct {
	elements map[Id]Element
	agg      sum.Sum
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{elements: make(map[Id]Element)}
}

// Clone returns a deep copy, used to derive a working state from a
// tip's ElementSet before mutating it (spec.md §4.6 "Commit creation").
func (s *Set) Clone() *Set {
	out := &Set{elements: make(map[Id]Element, len(s.elements)), agg: s.agg}
	for id, e := range s.elements {
		out.elements[id] = e
	}
	return out
}

// Aggregate returns the XOR of every live element's sum.
func (s *Set) Aggregate() sum.Sum {
	return s.agg
}

// Len returns the number of live elements.
func (s *Set) Len() int {
	return len(s.elements)
}

// Get returns the element at id, if live.
func (s *Set) Get(id Id) (Element, bool) {
	e, ok := s.elements[id]
	return e, ok
}

// Has reports whether id is taken, for use as a SuffixGenerator's
// taken predicate scoped to a single partition.
func (s *Set) Has(p PartitionId, suffix uint64) bool {
	_, ok := s.elements[NewId(p, suffix)]
	return ok
}

// Each calls fn for every live element, in unspecified order.
func (s *Set) Each(fn func(Element)) {
	for _, e := range s.elements {
		fn(e)
	}
}

// Insert adds a brand-new element at id. id must not already be live;
// use Replace to change an existing element's payload.
func (s *Set) Insert(id Id, payload []byte) Element {
	_, exists := s.elements[id]
	Assert(!exists, "element: insert of already-live id %s", id)
	e := New(id, payload)
	s.elements[id] = e
	s.agg = s.agg.Xor(e.Sum)
	return e
}

// Replace changes the payload of a live element, returning the old
// and new Elements so the caller can build a Commit record.
func (s *Set) Replace(id Id, payload []byte) (old, new Element) {
	old, exists := s.elements[id]
	Assert(exists, "element: replace of non-live id %s", id)
	new = New(id, payload)
	s.elements[id] = new
	s.agg = s.agg.Xor(old.Sum).Xor(new.Sum)
	return old, new
}

// Delete removes a live element, returning it so the caller can build
// a Commit record.
func (s *Set) Delete(id Id) (old Element) {
	old, exists := s.elements[id]
	Assert(exists, "element: delete of non-live id %s", id)
	delete(s.elements, id)
	s.agg = s.agg.Xor(old.Sum)
	return old
}

// applyRaw installs e directly (id, payload, sum already known) and
// folds its sum into the aggregate, without the "must not already
// exist" assertion Insert makes. Used by the history package when
// replaying a snapshot or commit log, where elements arrive already
// validated.
func (s *Set) applyRaw(e Element) {
	if old, exists := s.elements[e.Id]; exists {
		s.agg = s.agg.Xor(old.Sum)
	}
	s.elements[e.Id] = e
	s.agg = s.agg.Xor(e.Sum)
}

// ApplyRaw exposes applyRaw to other packages in this module that
// build a Set from already-known elements (history, mergedrv).
func (s *Set) ApplyRaw(e Element) {
	s.applyRaw(e)
}

// RemoveRaw removes id without the "must be live" assertion Delete
// makes. Used the same way as ApplyRaw, for replay of a delete record
// whose target is trusted to exist.
func (s *Set) RemoveRaw(id Id) {
	if old, exists := s.elements[id]; exists {
		delete(s.elements, id)
		s.agg = s.agg.Xor(old.Sum)
	}
}

// NewSuffixGeneratorFor returns a SuffixGenerator scoped to s, so the
// caller can allocate a fresh Id within partition p without colliding
// with any element currently live in s.
func NewSuffixGeneratorFor(s *Set, p PartitionId) *SuffixGenerator {
	return NewSuffixGenerator(func(suffix uint64) bool { return s.Has(p, suffix) })
}
