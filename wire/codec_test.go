package wire

import "testing"

type point struct {
	X, Y uint64
}

func (p point) MarshalWire(w *Writer) {
	w.PutUvarint(p.X)
	w.PutUvarint(p.Y)
}

func (p *point) UnmarshalWire(r *Reader) error {
	x, err := r.Uvarint()
	if err != nil {
		return err
	}
	y, err := r.Uvarint()
	if err != nil {
		return err
	}
	p.X, p.Y = x, y
	return nil
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := point{X: 7, Y: 1 << 20}
	b := Encode(want)

	var got point
	if err := Decode(b, &got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: want %+v got %+v", want, got)
	}
}

func TestDecodeSurfacesUnmarshalError(t *testing.T) {
	var got point
	if err := Decode(nil, &got); err == nil {
		t.Fatal("Decode of an empty buffer should surface the underlying Uvarint error")
	}
}
