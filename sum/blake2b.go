package sum

import (
	"encoding/binary"
	"hash"
	"io"

	. "github.com/stevegt/goadapt"
	"golang.org/x/crypto/blake2b"
)

// NewHasher returns a fresh 256-bit BLAKE2b hasher. Every checksum in
// the system — header sum, body sum, element sum, commit sum, state
// meta-sum — goes through this one constructor.
func NewHasher() hash.Hash {
	h, err := blake2b.New256(nil)
	Ck(err)
	return h
}

// Calculate is a one-shot digest of data.
func Calculate(data []byte) Sum {
	h := NewHasher()
	h.Write(data)
	return Load(h.Sum(nil))
}

// ElementSum computes BLAKE2b(id_be ‖ payload), the element sum defined
// in spec.md §4.1. id_be is the element identifier as 8 big-endian bytes.
func ElementSum(id uint64, payload []byte) Sum {
	h := NewHasher()
	var idbuf [8]byte
	binary.BigEndian.PutUint64(idbuf[:], id)
	h.Write(idbuf[:])
	h.Write(payload)
	return Load(h.Sum(nil))
}

// HashReader wraps an io.Reader, feeding every byte read through a
// BLAKE2b hasher so the caller can recover the digest of everything
// that has passed through once reading is done, the read-side mirror
// of a WORM file feeding written bytes into its hash.Hash as it writes.
type HashReader struct {
	inner io.Reader
	h     hash.Hash
}

// NewHashReader wraps r.
func NewHashReader(r io.Reader) *HashReader {
	return &HashReader{inner: r, h: NewHasher()}
}

func (hr *HashReader) Read(p []byte) (n int, err error) {
	n, err = hr.inner.Read(p)
	if n > 0 {
		hr.h.Write(p[:n])
	}
	return
}

// Sum returns the digest of everything read so far.
func (hr *HashReader) Sum() Sum {
	return Load(hr.h.Sum(nil))
}

// HashWriter wraps an io.Writer, feeding every byte written through a
// BLAKE2b hasher. Used when writing a header, snapshot body, or commit
// record: the integrity sum appended at the end is the digest this
// accumulates.
type HashWriter struct {
	inner io.Writer
	h     hash.Hash
}

// NewHashWriter wraps w.
func NewHashWriter(w io.Writer) *HashWriter {
	return &HashWriter{inner: w, h: NewHasher()}
}

func (hw *HashWriter) Write(p []byte) (n int, err error) {
	n, err = hw.inner.Write(p)
	if n > 0 {
		hw.h.Write(p[:n])
	}
	return
}

// Sum returns the digest of everything written so far.
func (hw *HashWriter) Sum() Sum {
	return Load(hw.h.Sum(nil))
}
