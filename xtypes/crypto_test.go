package xtypes

import "testing"

func TestSignAndVerifyRoundTrip(t *testing.T) {
	var seed [32]byte
	seed[0] = 0x42
	priv := GeneratePrivateKey(seed)
	pub := priv.Public()

	digest := Sha256([]byte("a transaction body"))
	sig := priv.Sign(digest)

	if !pub.Verify(digest, sig) {
		t.Fatal("Verify should accept a signature produced by the matching private key")
	}

	otherDigest := Sha256([]byte("a different body"))
	if pub.Verify(otherDigest, sig) {
		t.Fatal("Verify should reject a signature over a different digest")
	}

	var otherSeed [32]byte
	otherSeed[0] = 0x43
	otherPub := GeneratePrivateKey(otherSeed).Public()
	if otherPub.Verify(digest, sig) {
		t.Fatal("Verify should reject a signature from an unrelated key")
	}
}

func TestPublicKeyAndSignatureByteRoundTrip(t *testing.T) {
	var seed [32]byte
	seed[0] = 0x7
	priv := GeneratePrivateKey(seed)
	pub := priv.Public()
	digest := Sha256([]byte("round trip"))
	sig := priv.Sign(digest)

	decodedPub, err := PublicKeyFromBytes(pub.Bytes())
	if err != nil {
		t.Fatalf("PublicKeyFromBytes: %v", err)
	}
	if !decodedPub.Equal(pub) {
		t.Fatal("decoded public key should equal the original")
	}

	decodedSig, err := SignatureFromBytes(sig.Bytes())
	if err != nil {
		t.Fatalf("SignatureFromBytes: %v", err)
	}
	if !pub.Verify(digest, decodedSig) {
		t.Fatal("a signature decoded from bytes should still verify")
	}
}

func TestBlockIDEmbedsHeightInHighBits(t *testing.T) {
	id := BlockID([]byte("header bytes"), 12345)
	if id.Height() != 12345 {
		t.Fatalf("Height() = %d, want 12345", id.Height())
	}

	reheighted := id.WithHeight(99)
	if reheighted.Height() != 99 {
		t.Fatalf("WithHeight(99).Height() = %d, want 99", reheighted.Height())
	}
	if reheighted.Hex()[8:] != id.Hex()[8:] {
		t.Fatal("WithHeight should only change the high 32 bits, not the rest of the id")
	}
}

func TestTransactionIDDoesNotEmbedHeight(t *testing.T) {
	id := TransactionID([]byte("tx bytes"))
	same := TransactionID([]byte("tx bytes"))
	if id != same {
		t.Fatal("TransactionID should be deterministic over identical input")
	}
	different := TransactionID([]byte("other tx bytes"))
	if id == different {
		t.Fatal("TransactionID should differ for different input")
	}
}
