package pipeline

import (
	"nodechain/chainerr"
	"nodechain/evaluator"
	"nodechain/wire"
	"nodechain/xtypes"
)

// Transaction is the signed envelope spec.md §6 describes: "(ref_block_num:
// u16, ref_block_prefix: u32, expiration: time, operations: Vec<Operation>,
// extensions: Vec<Ext>, signatures: Vec<Sig>)".
type Transaction struct {
	RefBlockNum    uint16
	RefBlockPrefix uint32
	Expiration     xtypes.TimePoint
	Operations     []evaluator.Operation
	Extensions     []Extension
	Signatures     []xtypes.Signature
}

// digestBytes returns the bytes a signature is computed over: the
// transaction's encoding with its signatures omitted.
func (tx *Transaction) digestBytes() []byte {
	w := wire.NewWriter()
	tx.marshalBody(w)
	return w.Bytes()
}

// Digest returns the hash a signer must sign (and a verifier must check
// signatures against): SHA-256 of the transaction's encoding with its
// signatures omitted.
func (tx *Transaction) Digest() xtypes.Hash256 {
	return xtypes.Sha256(tx.digestBytes())
}

// ID computes the transaction's id: the SHA-256 of its canonical encoding
// (body plus signatures), truncated to 160 bits (spec.md §6).
func (tx *Transaction) ID() xtypes.ID160 {
	return xtypes.TransactionID(wire.Encode(tx))
}

func (tx *Transaction) marshalBody(w *wire.Writer) {
	w.PutUint16(tx.RefBlockNum)
	w.PutUint32(tx.RefBlockPrefix)
	w.PutInt64(int64(tx.Expiration))
	w.PutUvarint(uint64(len(tx.Operations)))
	for _, op := range tx.Operations {
		enc, ok := op.(wire.Encodable)
		if !ok {
			continue
		}
		w.PutTag(uint64(op.Tag()))
		enc.MarshalWire(w)
	}
	marshalExtensions(w, tx.Extensions)
}

// MarshalWire implements wire.Encodable.
func (tx *Transaction) MarshalWire(w *wire.Writer) {
	tx.marshalBody(w)
	w.PutUvarint(uint64(len(tx.Signatures)))
	for _, sig := range tx.Signatures {
		w.PutBytes(sig.Bytes())
	}
}

// UnmarshalWire implements wire.Decodable.
func (tx *Transaction) UnmarshalWire(r *wire.Reader) error {
	refNum, err := r.Uint16()
	if err != nil {
		return err
	}
	refPrefix, err := r.Uint32()
	if err != nil {
		return err
	}
	exp, err := r.Int64()
	if err != nil {
		return err
	}
	n, err := r.Uvarint()
	if err != nil {
		return err
	}
	ops := make([]evaluator.Operation, 0, n)
	for i := uint64(0); i < n; i++ {
		tag, err := r.Tag()
		if err != nil {
			return err
		}
		decode, ok := operationDecoders[evaluator.Tag(tag)]
		if !ok {
			return chainerr.New(chainerr.InvalidEncoding, "pipeline: unknown operation tag in transaction")
		}
		op, err := decode(r)
		if err != nil {
			return err
		}
		ops = append(ops, op)
	}
	exts, err := unmarshalExtensions(r)
	if err != nil {
		return err
	}
	sigCount, err := r.Uvarint()
	if err != nil {
		return err
	}
	sigs := make([]xtypes.Signature, 0, sigCount)
	for i := uint64(0); i < sigCount; i++ {
		b, err := r.Bytes()
		if err != nil {
			return err
		}
		sig, err := xtypes.SignatureFromBytes(b)
		if err != nil {
			return chainerr.Wrap(chainerr.InvalidEncoding, "pipeline: decode signature", err)
		}
		sigs = append(sigs, sig)
	}
	tx.RefBlockNum = refNum
	tx.RefBlockPrefix = refPrefix
	tx.Expiration = xtypes.TimePoint(exp)
	tx.Operations = ops
	tx.Extensions = exts
	tx.Signatures = sigs
	return nil
}

// Block is the block envelope spec.md §6 describes: "(previous: block_id,
// timestamp, producer, transaction_merkle_root, extensions,
// producer_signature, transactions: Vec<Transaction>)".
type Block struct {
	Previous     xtypes.ID160
	Timestamp    xtypes.TimePoint
	Producer     xtypes.AccountName
	MerkleRoot   xtypes.Hash256
	Extensions   []Extension
	ProducerSig  xtypes.Signature
	Transactions []*Transaction
}

// headerBytes returns the bytes the block id and producer signature are
// computed over: every header field except the signature itself.
func (b *Block) headerBytes() []byte {
	w := wire.NewWriter()
	w.PutFixed(b.Previous[:])
	w.PutInt64(int64(b.Timestamp))
	w.PutString(string(b.Producer))
	w.PutFixed(b.MerkleRoot[:])
	marshalExtensions(w, b.Extensions)
	return w.Bytes()
}

// ID computes the block's id: SHA-256 of the header, truncated to 160
// bits, with the high 32 bits overwritten by the big-endian block number
// (spec.md §6).
func (b *Block) ID(height uint32) xtypes.ID160 {
	return xtypes.BlockID(b.headerBytes(), height)
}

// MarshalWire implements wire.Encodable.
func (b *Block) MarshalWire(w *wire.Writer) {
	w.PutFixed(b.Previous[:])
	w.PutInt64(int64(b.Timestamp))
	w.PutString(string(b.Producer))
	w.PutFixed(b.MerkleRoot[:])
	marshalExtensions(w, b.Extensions)
	w.PutBytes(b.ProducerSig.Bytes())
	w.PutUvarint(uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		tx.MarshalWire(w)
	}
}

// UnmarshalWire implements wire.Decodable.
func (b *Block) UnmarshalWire(r *wire.Reader) error {
	prev, err := r.Fixed(20)
	if err != nil {
		return err
	}
	ts, err := r.Int64()
	if err != nil {
		return err
	}
	producer, err := r.String()
	if err != nil {
		return err
	}
	root, err := r.Fixed(32)
	if err != nil {
		return err
	}
	exts, err := unmarshalExtensions(r)
	if err != nil {
		return err
	}
	sigBytes, err := r.Bytes()
	if err != nil {
		return err
	}
	sig, err := xtypes.SignatureFromBytes(sigBytes)
	if err != nil {
		return chainerr.Wrap(chainerr.InvalidEncoding, "pipeline: decode producer signature", err)
	}
	n, err := r.Uvarint()
	if err != nil {
		return err
	}
	txs := make([]*Transaction, 0, n)
	for i := uint64(0); i < n; i++ {
		tx := &Transaction{}
		if err := tx.UnmarshalWire(r); err != nil {
			return err
		}
		txs = append(txs, tx)
	}

	copy(b.Previous[:], prev)
	b.Timestamp = xtypes.TimePoint(ts)
	b.Producer = xtypes.AccountName(producer)
	copy(b.MerkleRoot[:], root)
	b.Extensions = exts
	b.ProducerSig = sig
	b.Transactions = txs
	return nil
}

// MerkleRootOf computes the merkle root over a set of transaction ids
// (spec.md §4.4.4 step 6). A balanced pairwise SHA-256 tree; an odd last
// id is paired with itself, the common convention this is grounded on.
func MerkleRootOf(ids []xtypes.ID160) xtypes.Hash256 {
	if len(ids) == 0 {
		return xtypes.Hash256{}
	}
	level := make([]xtypes.Hash256, len(ids))
	for i, id := range ids {
		var buf [20]byte
		copy(buf[:], id[:])
		level[i] = xtypes.Sha256(buf[:])
	}
	for len(level) > 1 {
		next := make([]xtypes.Hash256, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			var buf [64]byte
			copy(buf[:32], level[i][:])
			if i+1 < len(level) {
				copy(buf[32:], level[i+1][:])
			} else {
				copy(buf[32:], level[i][:])
			}
			next = append(next, xtypes.Sha256(buf[:]))
		}
		level = next
	}
	return level[0]
}
