package codec

import (
	"io"

	. "github.com/stevegt/goadapt"
	"github.com/stevegt/pippin/sum"
)

// RepoNameLen is the fixed width of the repository name field that
// follows a file's magic.
const RepoNameLen = 16

// Header is the decoded form of a snapshot or commit-log file's
// leading section (spec.md §4.2): magic, repo name, header blocks,
// and the checksum block that terminates it.
type Header struct {
	Kind     Kind
	RepoName string
	Blocks   []Block // R/U/unknown blocks, in file order; excludes SUM
	Sum      sum.Sum // header's own integrity sum
	SafeMode bool    // an unrecognized essential block was present
	OldMagic bool    // magic matched but is a deprecated one
}

// sumBlockTag is the always-last block naming the checksum algorithm.
// Only "BLAKE2 16" (32-byte BLAKE2b) is live; spec.md says the SUM
// block is immediately followed by the 32-byte integrity sum.
const sumBlockTag = "SUM"
const sumAlgoName = "BLAKE2 16"

// WriteHeader serializes a Header's magic, repo name, and blocks to
// w, appends the SUM block, and returns the integrity sum it computed
// over everything written (including the SUM block itself).
func WriteHeader(w io.Writer, kind Kind, repoName string, blocks []Block) (headerSum sum.Sum, err error) {
	defer Return(&err)
	hw := sum.NewHashWriter(w)

	var magic string
	switch kind {
	case KindSnapshot:
		magic = CurrentSnapshotMagic
	case KindCommitLog:
		magic = CurrentCommitLogMagic
	default:
		Assert(false, "codec: unknown file kind %v", kind)
	}
	_, err = hw.Write([]byte(magic))
	Ck(err)
	_, err = hw.Write(FixedField(repoName, RepoNameLen))
	Ck(err)

	for _, b := range blocks {
		_, err = hw.Write(encodeBlock(b))
		Ck(err)
	}

	sumBlock := Block{Tag: sumBlockTag, Payload: []byte(sumAlgoName)}
	_, err = hw.Write(encodeBlock(sumBlock))
	Ck(err)

	headerSum = hw.Sum()
	_, err = w.Write(headerSum[:])
	Ck(err)
	return headerSum, nil
}

// ReadHeader parses a Header from the front of r, verifying the
// declared magic and the header's own integrity sum. It returns
// SafeMode set (not an error) when an unrecognized essential block
// forces read-only handling, per spec.md §4.2.
func ReadHeader(r io.Reader, wantKind Kind) (h Header, err error) {
	defer Return(&err)
	hr := sum.NewHashReader(r)

	magicBuf := make([]byte, MagicLen)
	_, err = io.ReadFull(hr, magicBuf)
	Ck(err)
	ok, current := CheckMagic(wantKind, string(magicBuf))
	if !ok {
		return Header{}, &ErrBadMagic{Kind: wantKind, Got: string(magicBuf)}
	}
	h.Kind = wantKind
	h.OldMagic = !current

	nameBuf := make([]byte, RepoNameLen)
	_, err = io.ReadFull(hr, nameBuf)
	Ck(err)
	h.RepoName = TrimField(nameBuf)

	// Each block's shape byte carries its own length (H fixed, Q's
	// base-36 digit, B's 24-bit count), so blocks can be read directly
	// off hr one at a time with no outer buffering.
	for {
		block, atSum, err := readOneBlock(hr)
		Ck(err)
		if atSum {
			h.Sum = hr.Sum()
			var sumBuf [sum.Bytes]byte
			_, err = io.ReadFull(r, sumBuf[:])
			Ck(err)
			declared := sum.Load(sumBuf[:])
			if declared != h.Sum {
				return h, &ErrIntegrity{Component: "header", Want: declared, Got: h.Sum}
			}
			return h, nil
		}
		if block.IsEssential() {
			h.SafeMode = true
		}
		h.Blocks = append(h.Blocks, block)
	}
}

// ErrIntegrity is returned when a stored integrity sum does not match
// the recomputed one, for a header, snapshot body, or commit record.
type ErrIntegrity struct {
	Component string
	Want      sum.Sum
	Got       sum.Sum
}

func (e *ErrIntegrity) Error() string {
	return "codec: " + e.Component + " integrity sum mismatch: want " + e.Want.String() + " got " + e.Got.String()
}

// readOneBlock reads a single shape-framed block from r. It reports
// atSum=true (with a zero Block) when the block it just read was the
// terminating SUM block, signaling the caller to read the trailing
// integrity sum next.
func readOneBlock(r io.Reader) (block Block, atSum bool, err error) {
	defer Return(&err)
	shape := make([]byte, 1)
	_, err = io.ReadFull(r, shape)
	Ck(err)

	switch shape[0] {
	case 'H':
		rest := make([]byte, ChunkSize-1)
		_, err = io.ReadFull(r, rest)
		Ck(err)
		block = decodeContent(rest)
	case 'Q':
		digit := make([]byte, 1)
		_, err = io.ReadFull(r, digit)
		Ck(err)
		x := base36Value(digit[0])
		rest := make([]byte, x*ChunkSize-2)
		_, err = io.ReadFull(r, rest)
		Ck(err)
		block = decodeContent(rest)
	case 'B':
		lenbuf := make([]byte, 3)
		_, err = io.ReadFull(r, lenbuf)
		Ck(err)
		total := int(lenbuf[0])<<16 | int(lenbuf[1])<<8 | int(lenbuf[2])
		padded := Align(total)
		rest := make([]byte, padded-4)
		_, err = io.ReadFull(r, rest)
		Ck(err)
		block = decodeContent(rest[:total-4])
	default:
		return Block{}, false, &UnknownShapeError{Shape: shape[0]}
	}
	if block.Tag == sumBlockTag {
		return Block{}, true, nil
	}
	return block, false, nil
}

// UnknownShapeError is returned when a header block's leading shape
// byte is none of 'H', 'Q', 'B'.
type UnknownShapeError struct{ Shape byte }

func (e *UnknownShapeError) Error() string {
	return "codec: unknown header block shape byte"
}
