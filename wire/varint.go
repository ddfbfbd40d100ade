// Package wire implements the canonical little-endian variable-length
// binary encoding spec.md §6 requires for every serialized consensus
// record (blocks, transactions, operations, authorities). Encoding/decoding
// must be bit-for-bit reproducible across implementations -- this is a
// hand-written codec because no library in the retrieval pack reproduces
// Graphene/Steem-style ordinal-tagged variant framing (see DESIGN.md).
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Writer accumulates a canonical byte encoding.
type Writer struct {
	buf bytes.Buffer
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// PutUvarint writes v using the repository's variable-length scheme:
// values below 128 fit in a single byte; larger values use a 7-bit
// continuation scheme identical to LEB128 (spec.md §6).
func (w *Writer) PutUvarint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf.Write(tmp[:n])
}

// PutTag writes an operation's ordinal as a variant tag (spec.md §6: "Variants
// are tagged by a leading variable-length integer whose value is the
// operation's ordinal").
func (w *Writer) PutTag(ordinal uint64) { w.PutUvarint(ordinal) }

// PutBytes writes a length-prefixed byte string.
func (w *Writer) PutBytes(b []byte) {
	w.PutUvarint(uint64(len(b)))
	w.buf.Write(b)
}

// PutString writes a length-prefixed UTF-8 string.
func (w *Writer) PutString(s string) { w.PutBytes([]byte(s)) }

// PutFixed writes b verbatim with no length prefix (used for fixed-size
// fields: hashes, public keys, signatures).
func (w *Writer) PutFixed(b []byte) { w.buf.Write(b) }

// PutUint16/32/64 write little-endian fixed-width integers (used for fields
// the spec calls out as fixed width rather than varint, e.g. ref_block_num).
func (w *Writer) PutUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) PutUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) PutInt64(v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	w.buf.Write(b[:])
}

// Reader parses a canonical byte encoding.
type Reader struct {
	r *bytes.Reader
}

func NewReader(b []byte) *Reader { return &Reader{r: bytes.NewReader(b)} }

func (r *Reader) Uvarint() (uint64, error) {
	v, err := binary.ReadUvarint(r.r)
	if err != nil {
		return 0, fmt.Errorf("wire: read varint: %w", err)
	}
	return v, nil
}

func (r *Reader) Tag() (uint64, error) { return r.Uvarint() }

func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, fmt.Errorf("wire: read %d bytes: %w", n, err)
	}
	return buf, nil
}

func (r *Reader) String() (string, error) {
	b, err := r.Bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) Fixed(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, fmt.Errorf("wire: read %d fixed bytes: %w", n, err)
	}
	return buf, nil
}

func (r *Reader) Uint16() (uint16, error) {
	b, err := r.Fixed(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) Uint32() (uint32, error) {
	b, err := r.Fixed(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) Int64() (int64, error) {
	b, err := r.Fixed(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

// Remaining reports how many bytes are left unread.
func (r *Reader) Remaining() int { return r.r.Len() }
