package codec

import (
	"bytes"
	"testing"

	"github.com/stevegt/readercomp"

	"github.com/stevegt/pippin/sum"
)

func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper()
	if !cond {
		t.Fatalf(txt, args...)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	blocks := []Block{RemarkBlock("hello world"), UserBlock([]byte{1, 2, 3, 4, 5})}
	wantSum, err := WriteHeader(&buf, KindSnapshot, "myrepo", blocks)
	tassert(t, err == nil, "WriteHeader: %v", err)

	h, err := ReadHeader(&buf, KindSnapshot)
	tassert(t, err == nil, "ReadHeader: %v", err)
	tassert(t, h.RepoName == "myrepo", "repo name mismatch: %q", h.RepoName)
	tassert(t, h.Sum == wantSum, "header sum mismatch")
	tassert(t, !h.SafeMode, "unexpected safe mode")
	tassert(t, len(h.Blocks) == 2, "expected 2 blocks, got %d", len(h.Blocks))
	tassert(t, h.Blocks[0].Tag == "R" && string(h.Blocks[0].Payload) == "hello world", "remark block mismatch")
	tassert(t, h.Blocks[1].Tag == "U" && bytes.Equal(h.Blocks[1].Payload, []byte{1, 2, 3, 4, 5}), "user block mismatch")
}

func TestHeaderEssentialUnknownForcesSafeMode(t *testing.T) {
	var buf bytes.Buffer
	blocks := []Block{{Tag: "Z", Payload: []byte("future extension")}}
	_, err := WriteHeader(&buf, KindCommitLog, "r", blocks)
	tassert(t, err == nil, "WriteHeader: %v", err)

	h, err := ReadHeader(&buf, KindCommitLog)
	tassert(t, err == nil, "ReadHeader: %v", err)
	tassert(t, h.SafeMode, "expected safe mode for unknown essential block")
}

func TestHeaderBadMagic(t *testing.T) {
	buf := bytes.NewBufferString("NOTaPIPPINMAGIC!")
	_, err := ReadHeader(buf, KindSnapshot)
	tassert(t, err != nil, "expected bad-magic error")
	_, ok := err.(*ErrBadMagic)
	tassert(t, ok, "expected *ErrBadMagic, got %T", err)
}

func TestCommitMetaRoundTrip(t *testing.T) {
	m := CommitMeta{
		Timestamp:    1234567890,
		CommitNumber: 7,
		ExtFlags:     0,
		UserMetaTag:  [2]byte{0, 0},
		UserMeta:     []byte("user data"),
	}
	buf := EncodeCommitMeta(m)
	got, err := DecodeCommitMeta(bytes.NewReader(buf))
	tassert(t, err == nil, "DecodeCommitMeta: %v", err)
	tassert(t, got.Timestamp == m.Timestamp, "timestamp mismatch")
	tassert(t, got.CommitNumber == m.CommitNumber, "commit number mismatch")
	tassert(t, bytes.Equal(got.UserMeta, m.UserMeta), "user meta mismatch: %q != %q", got.UserMeta, m.UserMeta)
}

func TestSnapshotBodyRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body := SnapshotBody{
		Meta: CommitMeta{Timestamp: 42, CommitNumber: 0},
		Elements: []ElementRecord{
			{Id: 1, Payload: []byte("hi"), Sum: sum.ElementSum(1, []byte("hi"))},
			{Id: 2, Payload: []byte("there"), Sum: sum.ElementSum(2, []byte("there"))},
		},
		StateSum: sum.Calculate([]byte("state")),
	}
	wantSum, err := EncodeSnapshotBody(&buf, body)
	tassert(t, err == nil, "EncodeSnapshotBody: %v", err)

	got, err := DecodeSnapshotBody(&buf)
	tassert(t, err == nil, "DecodeSnapshotBody: %v", err)
	tassert(t, got.StateSum == body.StateSum, "state sum mismatch")
	tassert(t, len(got.Elements) == 2, "expected 2 elements, got %d", len(got.Elements))
	tassert(t, string(got.Elements[0].Payload) == "hi", "element 0 payload mismatch: %q", got.Elements[0].Payload)
	tassert(t, string(got.Elements[1].Payload) == "there", "element 1 payload mismatch: %q", got.Elements[1].Payload)
	_ = wantSum
}

func TestCommitLogRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	err := EncodeCommitLogOpen(&buf)
	tassert(t, err == nil, "EncodeCommitLogOpen: %v", err)

	rec := CommitRecord{
		Meta:    CommitMeta{Timestamp: 99, CommitNumber: 1},
		Parents: []sum.Sum{sum.Calculate([]byte("parent"))},
		Changes: []Change{
			{Kind: ChangeInsert, Id: 5, Payload: []byte("v1"), Sum: sum.ElementSum(5, []byte("v1"))},
			{Kind: ChangeDelete, Id: 6},
		},
		StateSum: sum.Calculate([]byte("newstate")),
	}
	_, err = EncodeCommitRecord(&buf, rec)
	tassert(t, err == nil, "EncodeCommitRecord: %v", err)

	err = DecodeCommitLogOpen(&buf)
	tassert(t, err == nil, "DecodeCommitLogOpen: %v", err)

	got, err := DecodeCommitRecord(&buf)
	tassert(t, err == nil, "DecodeCommitRecord: %v", err)
	tassert(t, !got.IsMerge, "expected non-merge record")
	tassert(t, len(got.Changes) == 2, "expected 2 changes, got %d", len(got.Changes))
	tassert(t, got.Changes[0].Kind == ChangeInsert, "change 0 kind mismatch")
	tassert(t, got.Changes[1].Kind == ChangeDelete, "change 1 kind mismatch")
	tassert(t, got.StateSum == rec.StateSum, "state sum mismatch")

	_, err = DecodeCommitRecord(&buf)
	tassert(t, err != nil, "expected EOF-ish error at end of records")
}

// TestSnapshotByteIdenticalRoundTrip checks the boundary-case law
// that a written-then-reread snapshot is byte-identical: decoding an
// encoded header+body and re-encoding the decoded body (under a header
// written with the same arguments) must reproduce the original bytes, the
// way db/stream_test.go and db/tree_test.go use readercomp.Equal to
// confirm a reconstructed stream matches its source exactly.
func TestSnapshotByteIdenticalRoundTrip(t *testing.T) {
	body := SnapshotBody{
		Meta: CommitMeta{Timestamp: 42, CommitNumber: 0},
		Elements: []ElementRecord{
			{Id: 1, Payload: []byte("hi"), Sum: sum.ElementSum(1, []byte("hi"))},
			{Id: 2, Payload: []byte("there"), Sum: sum.ElementSum(2, []byte("there"))},
		},
		StateSum: sum.Calculate([]byte("state")),
	}

	var first bytes.Buffer
	_, err := WriteHeader(&first, KindSnapshot, "myrepo", nil)
	tassert(t, err == nil, "WriteHeader: %v", err)
	_, err = EncodeSnapshotBody(&first, body)
	tassert(t, err == nil, "EncodeSnapshotBody: %v", err)

	r := bytes.NewReader(first.Bytes())
	_, err = ReadHeader(r, KindSnapshot)
	tassert(t, err == nil, "ReadHeader: %v", err)
	decoded, err := DecodeSnapshotBody(r)
	tassert(t, err == nil, "DecodeSnapshotBody: %v", err)

	var second bytes.Buffer
	_, err = WriteHeader(&second, KindSnapshot, "myrepo", nil)
	tassert(t, err == nil, "WriteHeader: %v", err)
	_, err = EncodeSnapshotBody(&second, decoded)
	tassert(t, err == nil, "EncodeSnapshotBody: %v", err)

	ok, err := readercomp.Equal(bytes.NewReader(first.Bytes()), bytes.NewReader(second.Bytes()), 64)
	tassert(t, err == nil, "readercomp.Equal: %v", err)
	tassert(t, ok, "re-encoding a decoded snapshot body produced different bytes")
}

func TestBlockShapeSelection(t *testing.T) {
	small := encodeBlock(RemarkBlock("hi"))
	tassert(t, len(small)%ChunkSize == 0, "small block not chunk-aligned: %d", len(small))
	tassert(t, small[0] == 'H', "expected 'H' shape for small block, got %q", small[0])

	mid := encodeBlock(RemarkBlock(string(bytes.Repeat([]byte("x"), 100))))
	tassert(t, len(mid)%ChunkSize == 0, "mid block not chunk-aligned: %d", len(mid))
	tassert(t, mid[0] == 'Q', "expected 'Q' shape for mid block, got %q", mid[0])
}
