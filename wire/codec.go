package wire

// Encodable is implemented by every wire-level value (operations,
// authorities, transaction envelopes, block envelopes) so that the pipeline
// and the object store never need type-switch on concrete payload types to
// serialize them.
type Encodable interface {
	MarshalWire(w *Writer)
}

// Decodable is the paired decode-side contract. Implementations must be
// able to round-trip: Decode(Encode(v)) == v for every legal v (spec.md §8
// round-trip law).
type Decodable interface {
	UnmarshalWire(r *Reader) error
}

// Encode serializes v using its MarshalWire method.
func Encode(v Encodable) []byte {
	w := NewWriter()
	v.MarshalWire(w)
	return w.Bytes()
}

// Decode parses b into v using its UnmarshalWire method.
func Decode(b []byte, v Decodable) error {
	return v.UnmarshalWire(NewReader(b))
}
