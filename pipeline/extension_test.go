package pipeline_test

import (
	"bytes"
	"testing"

	"nodechain/evaluator"
	"nodechain/pipeline"
	"nodechain/wire"
	"nodechain/xtypes"
)

func TestTransactionExtensionsRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		exts []pipeline.Extension
	}{
		{name: "none", exts: nil},
		{name: "one", exts: []pipeline.Extension{pipeline.NewHardforkVersionVoteExtension(7)}},
		{name: "many", exts: []pipeline.Extension{
			pipeline.NewHardforkVersionVoteExtension(2),
			{Tag: 99, Payload: []byte("opaque")},
		}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tx := &pipeline.Transaction{
				Expiration: 1_000_000,
				Operations: []evaluator.Operation{&pipeline.Transfer{From: "alice", To: "bob", Amount: xtypes.NewAsset(1, pipeline.NativeSymbol)}},
				Extensions: c.exts,
			}
			var decoded pipeline.Transaction
			if err := wire.Decode(wire.Encode(tx), &decoded); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(decoded.Extensions) != len(c.exts) {
				t.Fatalf("expected %d extensions, got %d", len(c.exts), len(decoded.Extensions))
			}
			for i, e := range c.exts {
				if decoded.Extensions[i].Tag != e.Tag || !bytes.Equal(decoded.Extensions[i].Payload, e.Payload) {
					t.Fatalf("extension %d mismatch: got %+v, want %+v", i, decoded.Extensions[i], e)
				}
			}
		})
	}
}

func TestHardforkVersionVoteExtensionRoundTrip(t *testing.T) {
	ext := pipeline.NewHardforkVersionVoteExtension(5)
	version, ok := pipeline.HardforkVersionVote([]pipeline.Extension{ext})
	if !ok || version != 5 {
		t.Fatalf("expected version 5, got %d (ok=%v)", version, ok)
	}
	if _, ok := pipeline.HardforkVersionVote(nil); ok {
		t.Fatal("expected no vote in an empty extension list")
	}
}

func TestBlockExtensionsRoundTrip(t *testing.T) {
	var seed [32]byte
	seed[0] = 1
	key := xtypes.GeneratePrivateKey(seed)
	b := &pipeline.Block{
		Timestamp:  1,
		Producer:   "alice",
		Extensions: []pipeline.Extension{pipeline.NewHardforkVersionVoteExtension(3)},
	}
	b.ProducerSig = key.Sign(xtypes.Sha256([]byte("test digest")))
	var decoded pipeline.Block
	if err := wire.Decode(wire.Encode(b), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Extensions) != 1 || decoded.Extensions[0].Tag != pipeline.ExtHardforkVersionVote {
		t.Fatalf("expected hardfork extension to survive round trip, got %+v", decoded.Extensions)
	}
}
