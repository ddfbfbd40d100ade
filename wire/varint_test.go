package wire

import "testing"

func TestUvarintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 129, 300, 1 << 20, 1 << 40, ^uint64(0)}
	for _, v := range cases {
		w := NewWriter()
		w.PutUvarint(v)
		r := NewReader(w.Bytes())
		got, err := r.Uvarint()
		if err != nil {
			t.Fatalf("decode %d: %v", v, err)
		}
		if got != v {
			t.Fatalf("round trip mismatch: want %d got %d", v, got)
		}
	}
}

func TestUvarintSingleByteBelow128(t *testing.T) {
	for v := uint64(0); v < 128; v++ {
		w := NewWriter()
		w.PutUvarint(v)
		if len(w.Bytes()) != 1 {
			t.Fatalf("value %d should encode in one byte, got %d bytes", v, len(w.Bytes()))
		}
	}
}

func TestBytesRoundTrip(t *testing.T) {
	w := NewWriter()
	w.PutBytes([]byte("hello world"))
	w.PutString("second field")
	r := NewReader(w.Bytes())
	b, err := r.Bytes()
	if err != nil || string(b) != "hello world" {
		t.Fatalf("bytes round trip failed: %v %q", err, b)
	}
	s, err := r.String()
	if err != nil || s != "second field" {
		t.Fatalf("string round trip failed: %v %q", err, s)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected no remaining bytes, got %d", r.Remaining())
	}
}

func TestTagIsOrdinal(t *testing.T) {
	w := NewWriter()
	w.PutTag(42)
	r := NewReader(w.Bytes())
	tag, err := r.Tag()
	if err != nil || tag != 42 {
		t.Fatalf("tag round trip failed: %v %d", err, tag)
	}
}
