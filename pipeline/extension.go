package pipeline

import (
	"github.com/ethereum/go-ethereum/rlp"

	"nodechain/wire"
)

// ExtensionTag identifies the payload layout carried by an Extension
// (spec.md §6: transaction and block envelopes both carry "extensions:
// Vec<Ext>"). A node that does not recognize a tag still has to be able to
// carry it, so the payload itself is opaque to the wire codec.
type ExtensionTag uint16

// ExtHardforkVersionVote is the one extension kind spec.md names explicitly
// (§4.4.4 step 5): a producer's vote for a hardfork version that disagrees
// with the elected schedule's version.
const ExtHardforkVersionVote ExtensionTag = 1

// Extension is a forward-compatible (tag, payload) pair. Payload layout is
// tag-specific and RLP-encoded -- RLP is the fallback container encoding
// the DOMAIN STACK wires in for extension fields, since no single struct
// describes every extension kind a future hardfork might add.
type Extension struct {
	Tag     ExtensionTag
	Payload []byte
}

func (e Extension) MarshalWire(w *wire.Writer) {
	w.PutUint16(uint16(e.Tag))
	w.PutBytes(e.Payload)
}

func (e *Extension) UnmarshalWire(r *wire.Reader) error {
	tag, err := r.Uint16()
	if err != nil {
		return err
	}
	payload, err := r.Bytes()
	if err != nil {
		return err
	}
	e.Tag = ExtensionTag(tag)
	e.Payload = payload
	return nil
}

func marshalExtensions(w *wire.Writer, exts []Extension) {
	w.PutUvarint(uint64(len(exts)))
	for _, e := range exts {
		e.MarshalWire(w)
	}
}

func unmarshalExtensions(r *wire.Reader) ([]Extension, error) {
	n, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	exts := make([]Extension, 0, n)
	for i := uint64(0); i < n; i++ {
		var e Extension
		if err := e.UnmarshalWire(r); err != nil {
			return nil, err
		}
		exts = append(exts, e)
	}
	return exts, nil
}

// NewHardforkVersionVoteExtension encodes a producer's hardfork-version
// vote extension (spec.md §4.4.4 step 5).
func NewHardforkVersionVoteExtension(version uint32) Extension {
	payload, err := rlp.EncodeToBytes(version)
	if err != nil {
		panic("pipeline: rlp encode of a uint32 cannot fail: " + err.Error())
	}
	return Extension{Tag: ExtHardforkVersionVote, Payload: payload}
}

// HardforkVersionVote reports the version a block's producer voted for, if
// its extensions carry a vote extension.
func HardforkVersionVote(exts []Extension) (uint32, bool) {
	for _, e := range exts {
		if e.Tag != ExtHardforkVersionVote {
			continue
		}
		var version uint32
		if err := rlp.DecodeBytes(e.Payload, &version); err != nil {
			return 0, false
		}
		return version, true
	}
	return 0, false
}
