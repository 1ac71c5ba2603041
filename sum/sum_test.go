package sum

import (
	"testing"
)

func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper()
	if !cond {
		t.Fatalf(txt, args...)
	}
}

func TestXorIdentity(t *testing.T) {
	a := Calculate([]byte("hello"))
	tassert(t, a.Xor(Zero) == a, "xor with zero changed the value")
	tassert(t, a.Xor(a) == Zero, "xor with self did not cancel")
}

func TestXorCommutativeAssociative(t *testing.T) {
	a := Calculate([]byte("a"))
	b := Calculate([]byte("b"))
	c := Calculate([]byte("c"))
	tassert(t, a.Xor(b) == b.Xor(a), "xor not commutative")
	tassert(t, a.Xor(b).Xor(c) == a.Xor(b.Xor(c)), "xor not associative")
}

func TestElementSumDeterministic(t *testing.T) {
	s1 := ElementSum(42, []byte("payload"))
	s2 := ElementSum(42, []byte("payload"))
	tassert(t, s1 == s2, "element sum not deterministic")

	s3 := ElementSum(43, []byte("payload"))
	tassert(t, s1 != s3, "element sum ignores id")
}

func TestStateSumIncremental(t *testing.T) {
	meta := MetaSum(1, 0, 100, nil, nil)
	old := ElementSum(1, []byte("v1"))
	new := ElementSum(1, []byte("v2"))

	before := StateSum(meta, old)
	after := before.Xor(old).Xor(new)
	tassert(t, after == StateSum(meta, new), "incremental replace did not match recomputation")
}

func TestStringRoundTrip(t *testing.T) {
	s := Calculate([]byte("round trip me"))
	parsed, err := Parse(s.String())
	tassert(t, err == nil, "Parse: %v", err)
	tassert(t, parsed == s, "round trip mismatch: %s != %s", parsed, s)
}

func TestSortBySum(t *testing.T) {
	a := Calculate([]byte("a"))
	b := Calculate([]byte("b"))
	c := Calculate([]byte("c"))
	sums := []Sum{c, a, b}
	SortBySum(sums)
	tassert(t, sums[0].Less(sums[1]) || sums[0] == sums[1], "not sorted at 0")
	tassert(t, sums[1].Less(sums[2]) || sums[1] == sums[2], "not sorted at 1")
}

func TestRevertDiffersFromOriginal(t *testing.T) {
	// Parent sums differ between the original commit and the revert
	// commit, so meta_sum — and thus state_sum — differs even though
	// elements end up identical.
	root := MetaSum(1, 0, 0, nil, nil)
	insert := ElementSum(1, []byte("v1"))
	afterInsert := StateSum(root, insert)

	metaForCommit1 := MetaSum(1, 1, 1, []Sum{root}, nil)
	afterCommit1 := StateSum(metaForCommit1, insert)
	tassert(t, afterCommit1 != afterInsert, "meta sum ignored parent")

	metaForRevert := MetaSum(1, 2, 2, []Sum{afterCommit1}, nil)
	afterRevert := StateSum(metaForRevert) // no elements: deleted again
	tassert(t, afterRevert != root, "revert produced same sum as original root")
}
