package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	. "github.com/stevegt/goadapt"
	"github.com/stevegt/pippin/sum"
)

// ChangeKind is the operation a CommitRecord's per-element change
// represents (spec.md §4.2 commit-log body: "ELT DEL"/"ELT
// INS"/"ELT REPL").
type ChangeKind int

const (
	ChangeDelete ChangeKind = iota
	ChangeInsert
	ChangeReplace
)

// Change is one element-level mutation carried by a CommitRecord.
type Change struct {
	Kind    ChangeKind
	Id      uint64
	Payload []byte  // unused for ChangeDelete
	Sum     sum.Sum // unused for ChangeDelete
}

// CommitRecord is one commit or merge entry inside a commit-log body
// (spec.md §4.2 "Commit-log body").
type CommitRecord struct {
	IsMerge  bool
	Meta     CommitMeta
	Parents  []sum.Sum
	Changes  []Change
	StateSum sum.Sum
}

// CommitLogHeaderLine is the 16-byte marker that opens a commit-log
// body immediately after the shared Header.
const CommitLogHeaderLine = "COMMIT LOG"

// commitWordWidth is the width of a commit record's opening word
// field: "COMMIT" for a single-parent commit, or "MERGE" followed by
// a 1-byte parent count for a merge. A fixed "\x00U" pad (2 bytes)
// follows, so the whole opening line is 8 bytes.
const commitWordWidth = 6

// changeTagWidth is the fixed width of one change's opening tag.
const changeTagWidth = 8

// EncodeCommitLogOpen writes the commit-log body's opening marker.
// Call it once per file, before any EncodeCommitRecord calls.
func EncodeCommitLogOpen(w io.Writer) (err error) {
	_, err = w.Write(FixedField(CommitLogHeaderLine, ChunkSize))
	return err
}

// DecodeCommitLogOpen reads and validates the commit-log body's
// opening marker.
func DecodeCommitLogOpen(r io.Reader) (err error) {
	defer Return(&err)
	buf := make([]byte, ChunkSize)
	_, err = io.ReadFull(r, buf)
	Ck(err)
	Assert(TrimField(buf) == CommitLogHeaderLine, "codec: expected commit-log open marker, got %q", buf)
	return nil
}

// EncodeCommitRecord writes one commit (or merge) record to w and
// returns its integrity sum, covering every byte from the start of
// this record (the COMMIT/MERGE line) through the state sum field.
func EncodeCommitRecord(w io.Writer, rec CommitRecord) (recSum sum.Sum, err error) {
	defer Return(&err)
	hw := sum.NewHashWriter(w)

	line := make([]byte, commitWordWidth)
	if rec.IsMerge {
		Assert(len(rec.Parents) >= 2 && len(rec.Parents) <= 255, "codec: merge record needs 2-255 parents, got %d", len(rec.Parents))
		copy(line, "MERGE")
		line[5] = byte(len(rec.Parents))
	} else {
		Assert(len(rec.Parents) == 1, "codec: non-merge record needs exactly one parent, got %d", len(rec.Parents))
		copy(line, "COMMIT")
	}
	_, err = hw.Write(line)
	Ck(err)
	_, err = hw.Write([]byte("\x00U"))
	Ck(err)

	_, err = hw.Write(EncodeCommitMeta(rec.Meta))
	Ck(err)

	for _, p := range rec.Parents {
		_, err = hw.Write(p[:])
		Ck(err)
	}

	_, err = hw.Write(FixedField("ELEMENTS", 8))
	Ck(err)
	var cbuf [8]byte
	binary.BigEndian.PutUint64(cbuf[:], uint64(len(rec.Changes)))
	_, err = hw.Write(cbuf[:])
	Ck(err)

	for _, c := range rec.Changes {
		err = writeChange(hw, c)
		Ck(err)
	}

	_, err = hw.Write(rec.StateSum[:])
	Ck(err)

	recSum = hw.Sum()
	_, err = w.Write(recSum[:])
	Ck(err)
	return recSum, nil
}

func writeChange(w io.Writer, c Change) (err error) {
	defer Return(&err)
	switch c.Kind {
	case ChangeDelete:
		_, err = w.Write(FixedField("ELT DEL", changeTagWidth))
		Ck(err)
		var idbuf [8]byte
		binary.BigEndian.PutUint64(idbuf[:], c.Id)
		_, err = w.Write(idbuf[:])
		Ck(err)
	case ChangeInsert, ChangeReplace:
		tag := "ELT INS"
		if c.Kind == ChangeReplace {
			tag = "ELT REPL"
		}
		_, err = w.Write(FixedField(tag, changeTagWidth))
		Ck(err)
		var idbuf [8]byte
		binary.BigEndian.PutUint64(idbuf[:], c.Id)
		_, err = w.Write(idbuf[:])
		Ck(err)
		_, err = w.Write(FixedField("ELT DATA", changeTagWidth))
		Ck(err)
		var lenbuf [8]byte
		binary.BigEndian.PutUint64(lenbuf[:], uint64(len(c.Payload)))
		_, err = w.Write(lenbuf[:])
		Ck(err)
		_, err = w.Write(PadTo16(append([]byte{}, c.Payload...)))
		Ck(err)
		_, err = w.Write(c.Sum[:])
		Ck(err)
	default:
		Assert(false, "codec: unknown change kind %d", c.Kind)
	}
	return nil
}

// DecodeCommitRecord reads one commit record from r and verifies its
// integrity sum. It returns io.EOF (unwrapped) when r has no more
// records — callers use this to know when a commit-log body ends.
func DecodeCommitRecord(r io.Reader) (rec CommitRecord, err error) {
	defer Return(&err)
	hr := sum.NewHashReader(r)

	line := make([]byte, commitWordWidth+2)
	n, rerr := io.ReadFull(hr, line)
	if rerr == io.EOF || (rerr == io.ErrUnexpectedEOF && n == 0) {
		return CommitRecord{}, io.EOF
	}
	Ck(rerr)

	var nparents int
	switch {
	case string(line[:6]) == "COMMIT":
		rec.IsMerge = false
		nparents = 1
	case string(line[:5]) == "MERGE":
		rec.IsMerge = true
		nparents = int(line[5])
		if nparents < 2 {
			return rec, fmt.Errorf("codec: merge record declares %d parents, want at least 2", nparents)
		}
	default:
		return rec, fmt.Errorf("codec: expected COMMIT or MERGE marker, got %q", line[:6])
	}
	Assert(string(line[6:8]) == "\x00U", "codec: expected commit record pad, got %q", line[6:8])

	rec.Meta, err = DecodeCommitMeta(hr)
	Ck(err)

	for i := 0; i < nparents; i++ {
		var p [sum.Bytes]byte
		_, err = io.ReadFull(hr, p[:])
		Ck(err)
		rec.Parents = append(rec.Parents, sum.Load(p[:]))
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
		c, skip, err := readChange(hr)
		Ck(err)
		if skip {
			continue
		}
		rec.Changes = append(rec.Changes, c)
	}

	var ssbuf [sum.Bytes]byte
	_, err = io.ReadFull(hr, ssbuf[:])
	Ck(err)
	rec.StateSum = sum.Load(ssbuf[:])

	computed := hr.Sum()
	var declaredBuf [sum.Bytes]byte
	_, err = io.ReadFull(r, declaredBuf[:])
	Ck(err)
	declared := sum.Load(declaredBuf[:])
	if declared != computed {
		return rec, &ErrIntegrity{Component: "commit record", Want: declared, Got: computed}
	}
	return rec, nil
}

// readChange reads one per-change section. skip reports a deprecated
// ELT MOV/MOVO section: its payload has been consumed and discarded,
// and the zero Change returned carries no information the caller
// should keep.
func readChange(r io.Reader) (c Change, skip bool, err error) {
	defer Return(&err)
	tag := make([]byte, changeTagWidth)
	_, err = io.ReadFull(r, tag)
	Ck(err)
	word := string(bytes.TrimRight(tag, "\x00"))

	var idbuf [8]byte
	_, err = io.ReadFull(r, idbuf[:])
	Ck(err)
	c.Id = binary.BigEndian.Uint64(idbuf[:])

	switch word {
	case "ELT DEL":
		c.Kind = ChangeDelete
		return c, false, nil
	case "ELT INS":
		c.Kind = ChangeInsert
	case "ELT REPL":
		c.Kind = ChangeReplace
	case "ELT MOV", "ELT MOVO":
		// No writer in this codebase emits a move marker, but a
		// reader must still tolerate one: its payload is a fixed
		// "NEW ELT" tag plus the new element id, 16 bytes total.
		discard := make([]byte, changeTagWidth+8)
		_, err = io.ReadFull(r, discard)
		Ck(err)
		return Change{}, true, nil
	default:
		return c, false, fmt.Errorf("codec: unknown change tag %q", word)
	}

	dtag := make([]byte, changeTagWidth)
	_, err = io.ReadFull(r, dtag)
	Ck(err)
	Assert(string(bytes.TrimRight(dtag, "\x00")) == "ELT DATA", "codec: expected ELT DATA marker, got %q", dtag)

	var lenbuf [8]byte
	_, err = io.ReadFull(r, lenbuf[:])
	Ck(err)
	n := binary.BigEndian.Uint64(lenbuf[:])

	padded := Align(int(n))
	buf := make([]byte, padded)
	_, err = io.ReadFull(r, buf)
	Ck(err)
	c.Payload = buf[:n]

	var sbuf [sum.Bytes]byte
	_, err = io.ReadFull(r, sbuf[:])
	Ck(err)
	c.Sum = sum.Load(sbuf[:])
	return c, false, nil
}
