package pipeline_test

import (
	"testing"

	"nodechain/authority"
	"nodechain/evaluator"
	"nodechain/objectstore"
	"nodechain/pipeline"
	"nodechain/xtypes"
)

// testAccount creates an account whose owner/active/posting authorities
// are all satisfied by a single generated key, returning that key so
// callers can sign transactions on its behalf.
func testAccount(t *testing.T, ctx *pipeline.Context, name xtypes.AccountName, seed byte) xtypes.PrivateKey {
	t.Helper()
	var buf [32]byte
	buf[0] = seed
	key := xtypes.GeneratePrivateKey(buf)
	auth := authority.Authority{
		WeightThreshold: 1,
		KeyAuths:        []authority.KeyAuth{{Key: key.Public(), Weight: 1}},
	}
	if _, err := ctx.Authorities.Create(name, auth, auth, auth, key.Public(), 0); err != nil {
		t.Fatalf("create account %s: %v", name, err)
	}
	return key
}

// signTx signs tx with key, overwriting any existing signatures.
func signTx(tx *pipeline.Transaction, key xtypes.PrivateKey) {
	tx.Signatures = []xtypes.Signature{key.Sign(tx.Digest())}
}

func signedTransfer(key xtypes.PrivateKey, from, to xtypes.AccountName, amount xtypes.Asset, expiration xtypes.TimePoint) *pipeline.Transaction {
	tx := &pipeline.Transaction{
		Expiration: expiration,
		Operations: []evaluator.Operation{&pipeline.Transfer{From: from, To: to, Amount: amount}},
	}
	signTx(tx, key)
	return tx
}

func newTestContext(t *testing.T) *pipeline.Context {
	t.Helper()
	db := objectstore.NewDatabase()
	return pipeline.NewContext(db)
}

func TestApplyTransactionTransferMovesBalance(t *testing.T) {
	ctx := newTestContext(t)
	aliceKey := testAccount(t, ctx, "alice", 1)
	testAccount(t, ctx, "bob", 2)

	if err := ctx.Ledger.CreditLiquid("alice", xtypes.NewAsset(1000, pipeline.NativeSymbol)); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	tx := signedTransfer(aliceKey, "alice", "bob", xtypes.NewAsset(400, pipeline.NativeSymbol), 1_000_000)

	if err := pipeline.ApplyTransaction(ctx, tx, 0, 1, pipeline.SkipTaPoS); err != nil {
		t.Fatalf("apply transaction: %v", err)
	}

	if got := ctx.Ledger.BalanceOf("alice", pipeline.NativeSymbol).Liquid; got != 600 {
		t.Fatalf("alice liquid = %d, want 600", got)
	}
	if got := ctx.Ledger.BalanceOf("bob", pipeline.NativeSymbol).Liquid; got != 400 {
		t.Fatalf("bob liquid = %d, want 400", got)
	}
}

func TestApplyTransactionRejectsBadSignature(t *testing.T) {
	ctx := newTestContext(t)
	testAccount(t, ctx, "alice", 1)
	testAccount(t, ctx, "bob", 2)
	ctx.Ledger.CreditLiquid("alice", xtypes.NewAsset(1000, pipeline.NativeSymbol))

	var wrongSeed [32]byte
	wrongSeed[0] = 99
	wrongKey := xtypes.GeneratePrivateKey(wrongSeed)

	tx := signedTransfer(wrongKey, "alice", "bob", xtypes.NewAsset(100, pipeline.NativeSymbol), 1_000_000)

	if err := pipeline.ApplyTransaction(ctx, tx, 0, 1, pipeline.SkipTaPoS); err == nil {
		t.Fatal("expected authority failure for unauthorized signer")
	}
}

func TestApplyTransactionRejectsExpired(t *testing.T) {
	ctx := newTestContext(t)
	aliceKey := testAccount(t, ctx, "alice", 1)
	testAccount(t, ctx, "bob", 2)
	ctx.Ledger.CreditLiquid("alice", xtypes.NewAsset(1000, pipeline.NativeSymbol))

	tx := signedTransfer(aliceKey, "alice", "bob", xtypes.NewAsset(100, pipeline.NativeSymbol), 10)

	if err := pipeline.ApplyTransaction(ctx, tx, 1000, 1, pipeline.SkipTaPoS); err == nil {
		t.Fatal("expected expiration failure")
	}
}

func TestApplyTransactionRejectsDuplicate(t *testing.T) {
	ctx := newTestContext(t)
	aliceKey := testAccount(t, ctx, "alice", 1)
	testAccount(t, ctx, "bob", 2)
	ctx.Ledger.CreditLiquid("alice", xtypes.NewAsset(1000, pipeline.NativeSymbol))

	tx := signedTransfer(aliceKey, "alice", "bob", xtypes.NewAsset(100, pipeline.NativeSymbol), 1_000_000)

	if err := pipeline.ApplyTransaction(ctx, tx, 0, 1, pipeline.SkipTaPoS); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := pipeline.ApplyTransaction(ctx, tx, 0, 1, pipeline.SkipTaPoS); err == nil {
		t.Fatal("expected duplicate-transaction rejection")
	}
}
