package xtypes

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Hash256 is a 256-bit SHA-256 digest.
type Hash256 [32]byte

func Sha256(data []byte) Hash256 { return sha256.Sum256(data) }

func (h Hash256) Hex() string { return hex.EncodeToString(h[:]) }

func (h Hash256) IsZero() bool { return h == Hash256{} }

// ID160 is a 160-bit identifier derived by truncating a Hash256. Block and
// transaction ids are ID160s whose high 32 bits embed the block height so
// that the height is recoverable from the id alone (spec.md §3.1, §6).
type ID160 [20]byte

func (id ID160) Hex() string { return hex.EncodeToString(id[:]) }

// NewID160 truncates a Hash256 to its low 160 bits.
func NewID160(h Hash256) ID160 {
	var id ID160
	copy(id[:], h[12:]) // low 20 bytes of a 32-byte hash
	return id
}

// Height returns the block height embedded in the high 32 bits of id.
func (id ID160) Height() uint32 {
	return binary.BigEndian.Uint32(id[:4])
}

// WithHeight overwrites the high 32 bits of id with height, big-endian.
func (id ID160) WithHeight(height uint32) ID160 {
	out := id
	binary.BigEndian.PutUint32(out[:4], height)
	return out
}

// BlockID computes a block's id: SHA-256 of the header, truncated to 160
// bits, with the high 32 bits overwritten by the big-endian block number
// (spec.md §6).
func BlockID(headerBytes []byte, height uint32) ID160 {
	h := Sha256(headerBytes)
	return NewID160(h).WithHeight(height)
}

// TransactionID computes a transaction's id: SHA-256 of its canonical
// encoding, truncated to 160 bits (spec.md §6). Unlike block ids, no height
// is embedded -- a transaction does not know its block until applied.
func TransactionID(canonicalBytes []byte) ID160 {
	h := Sha256(canonicalBytes)
	return NewID160(h)
}

// PrivateKey is a Secp256k1 signing key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// PublicKey is a Secp256k1 verification key.
type PublicKey struct {
	key *secp256k1.PublicKey
}

// Signature is a Secp256k1 ECDSA signature; Bytes and SignatureFromBytes
// use its DER encoding.
type Signature struct {
	sig *ecdsa.Signature
}

// GeneratePrivateKey derives a PrivateKey from 32 bytes of seed entropy.
// Callers are responsible for sourcing cryptographically secure entropy;
// this core never generates randomness for a key itself (that belongs to
// the external wallet/keystore, spec.md §1).
func GeneratePrivateKey(seed [32]byte) PrivateKey {
	return PrivateKey{key: secp256k1.PrivKeyFromBytes(seed[:])}
}

func (p PrivateKey) Public() PublicKey {
	return PublicKey{key: p.key.PubKey()}
}

func (p PrivateKey) Bytes() []byte { return p.key.Serialize() }

// Sign produces a deterministic (RFC6979) ECDSA signature over digest.
func (p PrivateKey) Sign(digest Hash256) Signature {
	return Signature{sig: ecdsa.Sign(p.key, digest[:])}
}

func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	key, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return PublicKey{}, fmt.Errorf("parse public key: %w", err)
	}
	return PublicKey{key: key}, nil
}

func (pk PublicKey) Bytes() []byte {
	if pk.key == nil {
		return nil
	}
	return pk.key.SerializeCompressed()
}

func (pk PublicKey) Hex() string { return hex.EncodeToString(pk.Bytes()) }

func (pk PublicKey) IsZero() bool { return pk.key == nil }

func (pk PublicKey) Equal(other PublicKey) bool {
	return pk.Hex() == other.Hex()
}

// Verify checks that sig is a valid signature over digest by pk.
func (pk PublicKey) Verify(digest Hash256, sig Signature) bool {
	if pk.key == nil || sig.sig == nil {
		return false
	}
	return sig.sig.Verify(digest[:], pk.key)
}

func SignatureFromBytes(b []byte) (Signature, error) {
	sig, err := ecdsa.ParseDERSignature(b)
	if err != nil {
		return Signature{}, fmt.Errorf("parse signature: %w", err)
	}
	return Signature{sig: sig}, nil
}

func (s Signature) Bytes() []byte {
	if s.sig == nil {
		return nil
	}
	return s.sig.Serialize()
}
