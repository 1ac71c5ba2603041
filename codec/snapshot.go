package codec

import (
	"bytes"
	"encoding/binary"
	"io"
	"io/ioutil"

	. "github.com/stevegt/goadapt"
	"github.com/stevegt/pippin/sum"
)

// ElementRecord is one element's on-disk representation inside a
// snapshot body: its id, payload, and element sum (spec.md §4.2).
type ElementRecord struct {
	Id      uint64
	Payload []byte
	Sum     sum.Sum
}

// SnapshotBody is the fully decoded payload of a snapshot file, after
// the shared Header (spec.md §4.2 "Snapshot body").
type SnapshotBody struct {
	Meta     CommitMeta
	Parents  []sum.Sum
	Elements []ElementRecord
	StateSum sum.Sum
}

// EncodeSnapshotBody writes b's body (everything after the Header) to
// w and returns the body integrity sum, computed over every byte
// written including the trailing STATESUM section but excluding the
// final body_integrity_sum field itself.
func EncodeSnapshotBody(w io.Writer, b SnapshotBody) (bodySum sum.Sum, err error) {
	defer Return(&err)
	hw := sum.NewHashWriter(w)

	_, err = hw.Write(FixedField("SNAPSH", 6))
	Ck(err)
	Assert(len(b.Parents) <= 255, "codec: too many parents: %d", len(b.Parents))
	_, err = hw.Write([]byte{byte(len(b.Parents))})
	Ck(err)
	_, err = hw.Write(FixedField("U", 1)) // pad SNAPSH(6)+count(1)+pad(1) to 8 bytes total
	Ck(err)

	_, err = hw.Write(EncodeCommitMeta(b.Meta))
	Ck(err)

	for _, p := range b.Parents {
		_, err = hw.Write(p[:])
		Ck(err)
	}

	_, err = hw.Write(FixedField("ELEMENTS", 8))
	Ck(err)
	var cbuf [8]byte
	binary.BigEndian.PutUint64(cbuf[:], uint64(len(b.Elements)))
	_, err = hw.Write(cbuf[:])
	Ck(err)

	for _, e := range b.Elements {
		err = writeElementRecord(hw, e)
		Ck(err)
	}

	_, err = hw.Write(FixedField("STATESUM", 8))
	Ck(err)
	binary.BigEndian.PutUint64(cbuf[:], uint64(len(b.Elements)))
	_, err = hw.Write(cbuf[:])
	Ck(err)
	_, err = hw.Write(b.StateSum[:])
	Ck(err)

	bodySum = hw.Sum()
	_, err = w.Write(bodySum[:])
	Ck(err)
	return bodySum, nil
}

func writeElementRecord(w io.Writer, e ElementRecord) (err error) {
	defer Return(&err)
	_, err = w.Write(FixedField("ELEMENT", 8))
	Ck(err)
	var idbuf [8]byte
	binary.BigEndian.PutUint64(idbuf[:], e.Id)
	_, err = w.Write(idbuf[:])
	Ck(err)
	_, err = w.Write(FixedField("BYTES", 8))
	Ck(err)
	var lenbuf [8]byte
	binary.BigEndian.PutUint64(lenbuf[:], uint64(len(e.Payload)))
	_, err = w.Write(lenbuf[:])
	Ck(err)
	_, err = w.Write(PadTo16(append([]byte{}, e.Payload...)))
	Ck(err)
	_, err = w.Write(e.Sum[:])
	Ck(err)
	return nil
}

// DecodeSnapshotBody reads a SnapshotBody from r (positioned right
// after the Header) and verifies its integrity sum.
func DecodeSnapshotBody(r io.Reader) (b SnapshotBody, err error) {
	defer Return(&err)
	hr := sum.NewHashReader(r)

	tag := make([]byte, 6)
	_, err = io.ReadFull(hr, tag)
	Ck(err)
	Assert(string(tag) == "SNAPSH", "codec: expected SNAPSH marker, got %q", tag)

	countBuf := make([]byte, 1)
	_, err = io.ReadFull(hr, countBuf)
	Ck(err)
	nparents := int(countBuf[0])

	pad := make([]byte, 1)
	_, err = io.ReadFull(hr, pad)
	Ck(err)

	b.Meta, err = DecodeCommitMeta(hr)
	Ck(err)

	for i := 0; i < nparents; i++ {
		var p [sum.Bytes]byte
		_, err = io.ReadFull(hr, p[:])
		Ck(err)
		b.Parents = append(b.Parents, sum.Load(p[:]))
	}

	elemsTag := make([]byte, 8)
	_, err = io.ReadFull(hr, elemsTag)
	Ck(err)
	Assert(string(bytes.TrimRight(elemsTag, "\x00")) == "ELEMENTS", "codec: expected ELEMENTS marker, got %q", elemsTag)

	var cbuf [8]byte
	_, err = io.ReadFull(hr, cbuf[:])
	Ck(err)
	count := binary.BigEndian.Uint64(cbuf[:])

	for i := uint64(0); i < count; i++ {
		rec, err := readElementRecord(hr)
		Ck(err)
		b.Elements = append(b.Elements, rec)
	}

	// A deprecated ELTMOVES section may follow here; readers accept
	// and discard it. Absence is the common case and is not an error.
	ssTag := make([]byte, 8)
	_, err = io.ReadFull(hr, ssTag)
	Ck(err)
	if string(bytes.TrimRight(ssTag, "\x00")) == "ELTMOVES" {
		err = skipDeprecatedSection(hr)
		Ck(err)
		_, err = io.ReadFull(hr, ssTag)
		Ck(err)
	}
	Assert(string(bytes.TrimRight(ssTag, "\x00")) == "STATESUM", "codec: expected STATESUM marker, got %q", ssTag)

	_, err = io.ReadFull(hr, cbuf[:]) // repeated element count
	Ck(err)

	var ssbuf [sum.Bytes]byte
	_, err = io.ReadFull(hr, ssbuf[:])
	Ck(err)
	b.StateSum = sum.Load(ssbuf[:])

	computed := hr.Sum()
	var declaredBuf [sum.Bytes]byte
	_, err = io.ReadFull(r, declaredBuf[:])
	Ck(err)
	declared := sum.Load(declaredBuf[:])
	if declared != computed {
		return b, &ErrIntegrity{Component: "snapshot body", Want: declared, Got: computed}
	}
	return b, nil
}

func readElementRecord(r io.Reader) (e ElementRecord, err error) {
	defer Return(&err)
	tag := make([]byte, 8)
	_, err = io.ReadFull(r, tag)
	Ck(err)
	Assert(string(bytes.TrimRight(tag, "\x00")) == "ELEMENT", "codec: expected ELEMENT marker, got %q", tag)

	var idbuf [8]byte
	_, err = io.ReadFull(r, idbuf[:])
	Ck(err)
	e.Id = binary.BigEndian.Uint64(idbuf[:])

	btag := make([]byte, 8)
	_, err = io.ReadFull(r, btag)
	Ck(err)
	Assert(string(bytes.TrimRight(btag, "\x00")) == "BYTES", "codec: expected BYTES marker, got %q", btag)

	var lenbuf [8]byte
	_, err = io.ReadFull(r, lenbuf[:])
	Ck(err)
	n := binary.BigEndian.Uint64(lenbuf[:])

	padded := Align(int(n))
	buf := make([]byte, padded)
	_, err = io.ReadFull(r, buf)
	Ck(err)
	e.Payload = buf[:n]

	var sbuf [sum.Bytes]byte
	_, err = io.ReadFull(r, sbuf[:])
	Ck(err)
	e.Sum = sum.Load(sbuf[:])
	return e, nil
}

// skipDeprecatedSection discards a deprecated ELTMOVES section: a u64
// move count followed by that many 16-byte (old id, new id) records.
// No writer in this codebase emits one, but a reader must still
// tolerate and drop one left behind by an older writer.
func skipDeprecatedSection(r io.Reader) (err error) {
	defer Return(&err)
	var cbuf [8]byte
	_, err = io.ReadFull(r, cbuf[:])
	Ck(err)
	n := binary.BigEndian.Uint64(cbuf[:])
	_, err = io.CopyN(ioutil.Discard, r, int64(n)*16)
	Ck(err)
	return nil
}
