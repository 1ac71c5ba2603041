// Package element implements Pippin's element store: an in-memory
// mapping from element identifier to opaque byte payload, with an
// incrementally maintained XOR aggregate of element sums (spec.md §4.3).
package element

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	. "github.com/stevegt/goadapt"
)

// PartitionId is the 40-bit partition identifier stored in the high
// bits of every ElementId belonging to that partition (spec.md §3).
type PartitionId uint64

// MaxPartitionId is the largest value a PartitionId can hold (2^40 - 1).
const MaxPartitionId PartitionId = (1 << 40) - 1

// suffixBits is the width of the per-partition suffix occupying the
// low bits of an ElementId.
const suffixBits = 24

// MaxSuffix is the largest value a per-partition suffix can hold.
const MaxSuffix = (uint64(1) << suffixBits) - 1

// Id is a 64-bit element identifier: the high 40 bits are the owning
// partition's id, the low 24 bits are a per-partition suffix
// (spec.md §3). It is assigned on insert and never changes thereafter.
type Id uint64

// NewId packs a PartitionId and a 24-bit suffix into an Id.
func NewId(p PartitionId, suffix uint64) Id {
	Assert(p <= MaxPartitionId, "element: partition id %d exceeds 40 bits", p)
	Assert(suffix <= MaxSuffix, "element: suffix %d exceeds 24 bits", suffix)
	return Id(uint64(p)<<suffixBits | suffix)
}

// Partition returns the high 40 bits of id: the owning PartitionId.
func (id Id) Partition() PartitionId {
	return PartitionId(uint64(id) >> suffixBits)
}

// Suffix returns the low 24 bits of id: the per-partition suffix.
func (id Id) Suffix() uint64 {
	return uint64(id) & MaxSuffix
}

// String renders id as partition:suffix in hex, which is more useful
// for debugging than the raw combined integer.
func (id Id) String() string {
	return fmt.Sprintf("%010x:%06x", uint64(id.Partition()), id.Suffix())
}

// ErrSuffixesExhausted is returned by a suffix generator when the
// entire 24-bit suffix space of a partition is in use (spec.md §7,
// "identifier clash ... random id generation exhausted").
var ErrSuffixesExhausted = fmt.Errorf("element: all 2^24 suffixes in this partition are taken")

// SuffixGenerator draws fresh, currently-unused 24-bit suffixes for a
// partition. It draws uniformly at random from the 24-bit space and
// then linearly probes forward until it finds a value not already
// claimed, exactly as spec.md §4.3 specifies.
type SuffixGenerator struct {
	taken func(suffix uint64) bool
}

// NewSuffixGenerator builds a generator that consults taken to decide
// whether a candidate suffix is already in use. Callers typically pass
// a closure over an ElementSet's current membership.
func NewSuffixGenerator(taken func(suffix uint64) bool) *SuffixGenerator {
	return &SuffixGenerator{taken: taken}
}

// Next draws a fresh suffix, probing forward (wrapping at 2^24) from a
// random starting point. It returns ErrSuffixesExhausted only once it
// has probed every one of the 2^24 possible values without finding a
// free one.
func (g *SuffixGenerator) Next() (uint64, error) {
	start, err := randomSuffix()
	if err != nil {
		return 0, err
	}
	for i := uint64(0); i <= MaxSuffix; i++ {
		candidate := (start + i) & MaxSuffix
		if !g.taken(candidate) {
			return candidate, nil
		}
	}
	return 0, ErrSuffixesExhausted
}

func randomSuffix() (uint64, error) {
	var buf [8]byte
	_, err := rand.Read(buf[:])
	if err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(buf[:])
	return v % (MaxSuffix + 1), nil
}
