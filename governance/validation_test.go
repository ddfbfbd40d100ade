package governance_test

import (
	"testing"

	"nodechain/assets"
	"nodechain/governance"
	"nodechain/objectstore"
	"nodechain/xtypes"
)

func newCommitmentsFixture() (*governance.Commitments, *assets.Ledger) {
	db := objectstore.NewDatabase()
	ledger := assets.NewLedger(db)
	return governance.NewCommitments(db, ledger), ledger
}

func TestVerifyBlockIdempotent(t *testing.T) {
	c, _ := newCommitmentsFixture()
	id := xtypes.ID160{1}
	if err := c.VerifyBlock("alice", 10, id); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := c.VerifyBlock("alice", 10, id); err != nil {
		t.Fatalf("verify again: %v", err)
	}
}

func TestCommitBlockDebitsStake(t *testing.T) {
	c, ledger := newCommitmentsFixture()
	if err := ledger.CreditLiquid("alice", xtypes.NewAsset(1000, "CORE")); err != nil {
		t.Fatalf("seed balance: %v", err)
	}
	id := xtypes.ID160{1}
	if err := c.CommitBlock("alice", 10, id, xtypes.NewAsset(100, "CORE")); err != nil {
		t.Fatalf("commit: %v", err)
	}
	bal := ledger.BalanceOf("alice", "CORE")
	if bal.Liquid != 900 {
		t.Fatalf("expected liquid balance 900 after stake, got %d", bal.Liquid)
	}
}

func TestCommitBlockDuplicateRejected(t *testing.T) {
	c, ledger := newCommitmentsFixture()
	if err := ledger.CreditLiquid("alice", xtypes.NewAsset(1000, "CORE")); err != nil {
		t.Fatalf("seed balance: %v", err)
	}
	id := xtypes.ID160{1}
	if err := c.CommitBlock("alice", 10, id, xtypes.NewAsset(100, "CORE")); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := c.CommitBlock("alice", 10, id, xtypes.NewAsset(100, "CORE")); err == nil {
		t.Fatal("expected error for duplicate commitment")
	}
}

func TestSlashConflictingForfeitsDisagreeingStake(t *testing.T) {
	c, ledger := newCommitmentsFixture()
	if err := ledger.CreditLiquid("alice", xtypes.NewAsset(1000, "CORE")); err != nil {
		t.Fatalf("seed alice: %v", err)
	}
	if err := ledger.CreditLiquid("bob", xtypes.NewAsset(1000, "CORE")); err != nil {
		t.Fatalf("seed bob: %v", err)
	}
	canonical := xtypes.ID160{1}
	conflicting := xtypes.ID160{2}
	if err := c.CommitBlock("alice", 10, canonical, xtypes.NewAsset(100, "CORE")); err != nil {
		t.Fatalf("alice commit: %v", err)
	}
	if err := c.CommitBlock("bob", 10, conflicting, xtypes.NewAsset(100, "CORE")); err != nil {
		t.Fatalf("bob commit: %v", err)
	}

	slashed, err := c.SlashConflicting(10, canonical)
	if err != nil {
		t.Fatalf("slash: %v", err)
	}
	if slashed != 100 {
		t.Fatalf("expected 100 slashed, got %d", slashed)
	}

	slashedAgain, err := c.SlashConflicting(10, canonical)
	if err != nil {
		t.Fatalf("slash again: %v", err)
	}
	if slashedAgain != 0 {
		t.Fatalf("expected no double slashing, got %d", slashedAgain)
	}
}
