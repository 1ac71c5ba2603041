package codec

import (
	"bytes"

	. "github.com/stevegt/goadapt"
)

// Block is one header block: a tag (e.g. "R", "U", "SUM", or some
// future/unknown tag) plus its payload (spec.md §4.2).
type Block struct {
	Tag     string
	Payload []byte
}

// IsEssential reports whether an unrecognized block of this tag would
// force safe-mode: true when the tag's leading rune is upper-case and
// the tag is not one of the always-recognized ones.
func (b Block) IsEssential() bool {
	if b.Tag == "" {
		return false
	}
	switch b.Tag {
	case "R", "U", sumBlockTag:
		return false
	}
	c := b.Tag[0]
	return c >= 'A' && c <= 'Z'
}

// RemarkBlock builds an ignorable UTF-8 remark block.
func RemarkBlock(text string) Block {
	return Block{Tag: "R", Payload: []byte(text)}
}

// UserBlock builds a pass-through user byte field block.
func UserBlock(data []byte) Block {
	return Block{Tag: "U", Payload: data}
}

// base36Digits is the alphabet used by the 'Q' shape's length digit.
const base36Digits = "0123456789abcdefghijklmnopqrstuvwxyz"

// encodeContent packs a block's tag and payload into the bytes that
// follow the shape marker. The SUM block uses the fixed keyword "SUM"
// followed by a space and its algorithm name; every other block's tag
// is a single byte followed directly by the payload, with no length
// field of its own — the shape's own length (H/Q/B) bounds the whole
// line, and the tag is recovered on read from that same fixed run.
func encodeContent(b Block) []byte {
	if b.Tag == sumBlockTag {
		var buf bytes.Buffer
		buf.WriteString(sumBlockTag)
		buf.WriteByte(' ')
		buf.Write(b.Payload)
		return buf.Bytes()
	}
	Assert(len(b.Tag) == 1, "codec: block tag must be a single byte, got %q", b.Tag)
	return append([]byte(b.Tag), b.Payload...)
}

// decodeContent reverses encodeContent. content is exactly the shape's
// declared length, still carrying whatever zero padding encodeBlock
// added to reach it; that padding is trimmed off the tail of the
// payload, matching the original Pippin reader's use of zero-trimming
// to recover block content.
func decodeContent(content []byte) Block {
	if len(content) >= len(sumBlockTag) && string(content[:len(sumBlockTag)]) == sumBlockTag {
		rest := bytes.TrimRight(content[len(sumBlockTag):], "\x00")
		rest = bytes.TrimPrefix(rest, []byte(" "))
		return Block{Tag: sumBlockTag, Payload: rest}
	}
	tag := string(content[:1])
	payload := bytes.TrimRight(content[1:], "\x00")
	return Block{Tag: tag, Payload: payload}
}

// encodeBlock serializes one block using the smallest of the three
// shapes that fits (§4.2: 'H' fixed 16-byte line, 'Q' up to 35*16
// bytes, 'B' arbitrary length up to 2^24-1 bytes).
func encodeBlock(b Block) []byte {
	content := encodeContent(b)

	// Shape H: 1 (shape char) + content fits in 16 bytes total.
	if 1+len(content) <= ChunkSize {
		line := make([]byte, ChunkSize)
		line[0] = 'H'
		copy(line[1:], content)
		return line
	}

	// Shape Q: 2-byte marker ("Q" + base36 digit) + content, total
	// rounded to a whole number of 16-byte chunks, x in [1, 35].
	total := 2 + len(content)
	chunks := (total + ChunkSize - 1) / ChunkSize
	if chunks <= 35 {
		out := make([]byte, chunks*ChunkSize)
		out[0] = 'Q'
		out[1] = base36Digits[chunks]
		copy(out[2:], content)
		return out
	}

	// Shape B: 4-byte marker ("B" + 24-bit big-endian length) +
	// content, length counts the marker itself and is unpadded;
	// storage is padded to the next 16-byte boundary.
	total = 4 + len(content)
	Assert(total <= 1<<24-1, "codec: block too large for 'B' shape: %d bytes", total)
	out := make([]byte, Align(total))
	out[0] = 'B'
	out[1] = byte(total >> 16)
	out[2] = byte(total >> 8)
	out[3] = byte(total)
	copy(out[4:], content)
	return out
}

func base36Value(c byte) int {
	i := bytes.IndexByte([]byte(base36Digits), c)
	Assert(i >= 0, "codec: invalid base36 digit %q", c)
	return i
}
