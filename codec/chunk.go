// Package codec implements Pippin's chunk-aligned binary file format:
// snapshot and commit-log headers, the commit-meta block, and the
// per-element and per-change record shapes (spec.md §4.2).
package codec

import (
	"bytes"

	. "github.com/stevegt/goadapt"
)

// ChunkSize is the alignment boundary every block in the format is
// padded to.
const ChunkSize = 16

// PadLen returns the number of zero bytes needed to round n up to the
// next multiple of ChunkSize (0 if n is already aligned).
func PadLen(n int) int {
	r := n % ChunkSize
	if r == 0 {
		return 0
	}
	return ChunkSize - r
}

// Align rounds n up to the next multiple of ChunkSize.
func Align(n int) int {
	return n + PadLen(n)
}

// PadTo16 appends zero bytes to b so its length is a multiple of
// ChunkSize, returning the padded slice.
func PadTo16(b []byte) []byte {
	return append(b, make([]byte, PadLen(len(b)))...)
}

// FixedField encodes s as width bytes, truncated or zero-padded. Used
// for fields like the 16-byte repository name that are fixed-width
// regardless of content length.
func FixedField(s string, width int) []byte {
	b := make([]byte, width)
	n := copy(b, s)
	Assert(n <= width, "codec: field %q exceeds width %d", s, width)
	return b
}

// TrimField strips trailing zero bytes from a fixed-width field and
// returns it as a string.
func TrimField(b []byte) string {
	return string(bytes.TrimRight(b, "\x00"))
}
