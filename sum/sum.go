// Package sum implements Pippin's checksum primitive: 256-bit BLAKE2b,
// used uniformly for file-integrity sums, per-element sums, and state
// sums. See spec.md §4.1.
package sum

import (
	"encoding/hex"
	"fmt"

	. "github.com/stevegt/goadapt"
)

// Bytes is the fixed width of every Sum, in bytes.
const Bytes = 32

// Sum is a 256-bit digest. It is a value type: equality is by bytes,
// ordering is lexicographic on the raw bytes.
type Sum [Bytes]byte

// Zero is the all-zero sum, used as the sentinel "no state yet" value
// by a partition bootstrap (spec.md §4.1) and as the XOR identity.
var Zero = Sum{}

// Load builds a Sum from a byte slice, which must be exactly Bytes long.
func Load(b []byte) (s Sum) {
	Assert(len(b) == Bytes, "sum: wrong length %d, want %d", len(b), Bytes)
	copy(s[:], b)
	return
}

// IsZero reports whether s is the all-zero sentinel.
func (s Sum) IsZero() bool {
	return s == Zero
}

// Xor returns s XOR other. XOR is commutative and associative, which
// is what lets the partition engine update a state sum incrementally
// as elements are inserted, replaced, and deleted (spec.md §4.1).
func (s Sum) Xor(other Sum) (out Sum) {
	for i := range s {
		out[i] = s[i] ^ other[i]
	}
	return
}

// Less reports whether s sorts before other, lexicographically on the
// raw bytes. Used to produce the stable parent ordering a merge commit
// records (spec.md §4.5).
func (s Sum) Less(other Sum) bool {
	for i := range s {
		if s[i] != other[i] {
			return s[i] < other[i]
		}
	}
	return false
}

// String returns the lower-case hex encoding of s.
func (s Sum) String() string {
	return hex.EncodeToString(s[:])
}

// Parse decodes a hex string into a Sum.
func Parse(hexstr string) (s Sum, err error) {
	defer Return(&err)
	b, err := hex.DecodeString(hexstr)
	Ck(err)
	if len(b) != Bytes {
		return Sum{}, fmt.Errorf("sum: wrong length %d, want %d", len(b), Bytes)
	}
	return Load(b), nil
}

// SortBySum sorts a slice of Sums in place, ascending.
func SortBySum(sums []Sum) {
	// insertion sort: partitions rarely have more than a handful of
	// tips at merge time, so O(n^2) is fine and keeps this dependency-free.
	for i := 1; i < len(sums); i++ {
		for j := i; j > 0 && sums[j].Less(sums[j-1]); j-- {
			sums[j], sums[j-1] = sums[j-1], sums[j]
		}
	}
}
