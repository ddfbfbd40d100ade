package pipeline_test

import (
	"testing"

	"nodechain/pipeline"
	"nodechain/xtypes"
)

func TestProduceBlockPacksMempoolTransactions(t *testing.T) {
	p := openTestPipeline(t, 10)
	ctx := p.Context()

	aliceKey := testAccount(t, ctx, "alice", 1)
	testAccount(t, ctx, "bob", 2)
	if err := ctx.Ledger.CreditLiquid("alice", xtypes.NewAsset(1000, pipeline.NativeSymbol)); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	tx := signedTransfer(aliceKey, "alice", "bob", xtypes.NewAsset(250, pipeline.NativeSymbol), 5_000_000)
	if err := p.PushTransaction(tx); err != nil {
		t.Fatalf("push transaction: %v", err)
	}

	blk, err := p.ProduceBlock("producer1", xtypes.GeneratePrivateKey([32]byte{7}), 1_000_000)
	if err != nil {
		t.Fatalf("produce block: %v", err)
	}
	if len(blk.Transactions) != 1 {
		t.Fatalf("produced block has %d transactions, want 1", len(blk.Transactions))
	}

	if got := ctx.Ledger.BalanceOf("bob", pipeline.NativeSymbol).Liquid; got != 250 {
		t.Fatalf("bob liquid after produced block = %d, want 250", got)
	}
	if got := p.Status().HeadBlockNumber; got != 1 {
		t.Fatalf("head block number = %d, want 1 after producing", got)
	}
}

func TestProduceBlockRejectsWrongProducer(t *testing.T) {
	cfg := pipeline.ChainConfig{BlockInterval: 1_000_000, ConfirmationDepth: 10, MaxBlockSize: 1 << 20}
	p, err := pipeline.Open(t.TempDir(), cfg)
	if err != nil {
		t.Fatalf("open pipeline: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	// Schedule enforcement stays on; with no registered schedule, every
	// producer is rejected (spec.md §4.4.4 step 1).
	p.SetSkipFlags(pipeline.SkipAuthority | pipeline.SkipTaPoS | pipeline.SkipProducerSignature | pipeline.SkipTransactionSignatures)

	_, err = p.ProduceBlock("not-scheduled", xtypes.GeneratePrivateKey([32]byte{9}), 1_000_000)
	if err == nil {
		t.Fatal("expected produce_block to reject a producer with no schedule entry")
	}
}

func TestProduceBlockEmitsHardforkVersionVoteOnMismatch(t *testing.T) {
	p := openTestPipeline(t, 10)
	ctx := p.Context()
	ctx.State.SetHardfork(3, 0)

	blk, err := p.ProduceBlock("producer1", xtypes.GeneratePrivateKey([32]byte{7}), 1_000_000)
	if err != nil {
		t.Fatalf("produce block: %v", err)
	}
	version, ok := pipeline.HardforkVersionVote(blk.Extensions)
	if !ok || version != 3 {
		t.Fatalf("expected a hardfork-version-vote extension for version 3, got ok=%v version=%d", ok, version)
	}
}

func TestProduceBlockOmitsHardforkVersionVoteWhenCurrent(t *testing.T) {
	p := openTestPipeline(t, 10)

	blk, err := p.ProduceBlock("producer1", xtypes.GeneratePrivateKey([32]byte{7}), 1_000_000)
	if err != nil {
		t.Fatalf("produce block: %v", err)
	}
	if _, ok := pipeline.HardforkVersionVote(blk.Extensions); ok {
		t.Fatal("expected no hardfork-version-vote extension when already on the scheduled version")
	}
}
