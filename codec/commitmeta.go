package codec

import (
	"bytes"
	"encoding/binary"
	"io"

	. "github.com/stevegt/goadapt"
)

// ExtFlagReclassify is the one extension flag spec.md defines. It is
// deprecated: writers leave it clear and readers ignore it.
const ExtFlagReclassify uint16 = 1 << 0

// CommitMeta is the metadata block attached to every PartState and
// every commit record (spec.md §4.2, §4.4): a timestamp, an
// inheritable extension-flags header, a commit number, and an
// arbitrary user metadata byte string.
type CommitMeta struct {
	Timestamp    int64
	CommitNumber uint32
	ExtFlags     uint16
	ExtPayload   []byte // opaque extension payload beyond the flags word
	UserMetaTag  [2]byte // "\x00\x00" or "TT"
	UserMeta     []byte
}

// extHeaderFixedLen is the part of the extension header counted in
// every cluster total even when ExtPayload is empty: 'F' + length
// byte + 2 flag bytes + 4 commit-number bytes.
const extHeaderFixedLen = 8

// EncodeCommitMeta serializes m in the wire layout spec.md §4.2
// describes.
func EncodeCommitMeta(m CommitMeta) []byte {
	var buf bytes.Buffer

	var tsbuf [8]byte
	binary.BigEndian.PutUint64(tsbuf[:], uint64(m.Timestamp))
	buf.Write(tsbuf[:])

	extPayload := padTo(m.ExtPayload, 8)
	total := extHeaderFixedLen + len(extPayload)
	clusters := total / 8
	Assert(clusters <= 255, "codec: extension header too long: %d clusters", clusters)

	buf.WriteByte('F')
	buf.WriteByte(byte(clusters))
	var flagbuf [2]byte
	binary.BigEndian.PutUint16(flagbuf[:], m.ExtFlags)
	buf.Write(flagbuf[:])
	var cnbuf [4]byte
	binary.BigEndian.PutUint32(cnbuf[:], m.CommitNumber)
	buf.Write(cnbuf[:])
	buf.Write(extPayload)

	buf.WriteString("XM")
	tag := m.UserMetaTag
	buf.Write(tag[:])
	var lenbuf [4]byte
	binary.BigEndian.PutUint32(lenbuf[:], uint32(len(m.UserMeta)))
	buf.Write(lenbuf[:])
	buf.Write(PadTo16(append([]byte{}, m.UserMeta...)))

	return buf.Bytes()
}

// padTo returns b with zero bytes appended so its length is a
// multiple of width.
func padTo(b []byte, width int) []byte {
	out := append([]byte{}, b...)
	if r := len(out) % width; r != 0 {
		out = append(out, make([]byte, width-r)...)
	}
	return out
}

// DecodeCommitMeta reads a CommitMeta from the front of r.
func DecodeCommitMeta(r io.Reader) (m CommitMeta, err error) {
	defer Return(&err)

	var tsbuf [8]byte
	_, err = io.ReadFull(r, tsbuf[:])
	Ck(err)
	m.Timestamp = int64(binary.BigEndian.Uint64(tsbuf[:]))

	fbuf := make([]byte, 1)
	_, err = io.ReadFull(r, fbuf)
	Ck(err)
	Assert(fbuf[0] == 'F', "codec: expected 'F' extension marker, got %q", fbuf[0])

	lenbuf := make([]byte, 1)
	_, err = io.ReadFull(r, lenbuf)
	Ck(err)
	clusters := int(lenbuf[0])

	var flagbuf [2]byte
	_, err = io.ReadFull(r, flagbuf[:])
	Ck(err)
	m.ExtFlags = binary.BigEndian.Uint16(flagbuf[:])

	var cnbuf [4]byte
	_, err = io.ReadFull(r, cnbuf[:])
	Ck(err)
	m.CommitNumber = binary.BigEndian.Uint32(cnbuf[:])

	payloadLen := clusters*8 - extHeaderFixedLen
	if payloadLen > 0 {
		m.ExtPayload = make([]byte, payloadLen)
		_, err = io.ReadFull(r, m.ExtPayload)
		Ck(err)
	}

	xmBuf := make([]byte, 2)
	_, err = io.ReadFull(r, xmBuf)
	Ck(err)
	Assert(string(xmBuf) == "XM", "codec: expected 'XM' user-metadata marker, got %q", xmBuf)

	var tagbuf [2]byte
	_, err = io.ReadFull(r, tagbuf[:])
	Ck(err)
	m.UserMetaTag = tagbuf

	var umlenbuf [4]byte
	_, err = io.ReadFull(r, umlenbuf[:])
	Ck(err)
	umlen := int(binary.BigEndian.Uint32(umlenbuf[:]))

	padded := Align(umlen)
	buf := make([]byte, padded)
	_, err = io.ReadFull(r, buf)
	Ck(err)
	m.UserMeta = buf[:umlen]

	return m, nil
}
