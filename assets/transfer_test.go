package assets

import (
	"testing"

	"nodechain/objectstore"
	"nodechain/xtypes"
)

const core = xtypes.Symbol("CORE")

func TestTransferMovesLiquidBalance(t *testing.T) {
	db := objectstore.NewDatabase()
	l := NewLedger(db)

	if err := l.CreditLiquid("alice", xtypes.NewAsset(1000, core)); err != nil {
		t.Fatalf("seed alice: %v", err)
	}
	if err := l.Transfer("alice", "bob", xtypes.NewAsset(300, core)); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if got := l.BalanceOf("alice", core).Liquid; got != 700 {
		t.Fatalf("alice liquid = %d, want 700", got)
	}
	if got := l.BalanceOf("bob", core).Liquid; got != 300 {
		t.Fatalf("bob liquid = %d, want 300", got)
	}
}

func TestTransferFailsOnInsufficientBalanceWithoutSideEffects(t *testing.T) {
	db := objectstore.NewDatabase()
	l := NewLedger(db)
	l.CreditLiquid("alice", xtypes.NewAsset(50, core))

	if err := l.Transfer("alice", "bob", xtypes.NewAsset(100, core)); err == nil {
		t.Fatalf("expected insufficient balance error")
	}
	if got := l.BalanceOf("alice", core).Liquid; got != 50 {
		t.Fatalf("failed transfer must not touch sender balance, got %d", got)
	}
	if got := l.BalanceOf("bob", core).Liquid; got != 0 {
		t.Fatalf("failed transfer must not touch recipient balance, got %d", got)
	}
}

func TestTransferRejectsNonPositiveAmount(t *testing.T) {
	db := objectstore.NewDatabase()
	l := NewLedger(db)
	l.CreditLiquid("alice", xtypes.NewAsset(50, core))
	if err := l.Transfer("alice", "bob", xtypes.NewAsset(0, core)); err == nil {
		t.Fatalf("expected error transferring zero")
	}
}

func TestTransferUndoableWithinSession(t *testing.T) {
	db := objectstore.NewDatabase()
	l := NewLedger(db)
	l.CreditLiquid("alice", xtypes.NewAsset(1000, core))

	session := db.StartUndoSession(true)
	if err := l.Transfer("alice", "bob", xtypes.NewAsset(400, core)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	session.Discard()

	if got := l.BalanceOf("alice", core).Liquid; got != 1000 {
		t.Fatalf("discard should restore sender balance, got %d", got)
	}
	if got := l.BalanceOf("bob", core).Liquid; got != 0 {
		t.Fatalf("discard should restore recipient balance, got %d", got)
	}
}

func TestStakeAndUnstakeInstallments(t *testing.T) {
	db := objectstore.NewDatabase()
	l := NewLedger(db)
	l.CreditLiquid("alice", xtypes.NewAsset(1300, core))

	if err := l.Stake("alice", xtypes.NewAsset(1300, core)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if got := l.BalanceOf("alice", core).Staked; got != 1300 {
		t.Fatalf("staked = %d, want 1300", got)
	}

	const week = xtypes.TimePoint(7 * 24 * 60 * 60 * 1_000_000)
	if err := l.BeginUnstake("alice", xtypes.NewAsset(1300, core), 0, week); err != nil {
		t.Fatalf("begin unstake: %v", err)
	}

	if err := l.ProcessUnstakes(week); err != nil {
		t.Fatalf("process unstakes: %v", err)
	}
	if got := l.BalanceOf("alice", core).Liquid; got != 100 {
		t.Fatalf("first installment liquid = %d, want 100", got)
	}
	if got := l.BalanceOf("alice", core).Staked; got != 1200 {
		t.Fatalf("first installment staked = %d, want 1200", got)
	}
}

func TestSavingsWithdrawalDelay(t *testing.T) {
	db := objectstore.NewDatabase()
	l := NewLedger(db)
	l.CreditLiquid("alice", xtypes.NewAsset(500, core))
	l.SavingsDeposit("alice", xtypes.NewAsset(500, core))

	if err := l.RequestSavingsWithdrawal("alice", "bob", xtypes.NewAsset(200, core), 1, 0); err != nil {
		t.Fatalf("request withdrawal: %v", err)
	}
	if got := l.BalanceOf("alice", core).Savings; got != 300 {
		t.Fatalf("savings after request = %d, want 300", got)
	}

	if err := l.ProcessSavingsWithdrawals(100); err != nil {
		t.Fatalf("process too early: %v", err)
	}
	if got := l.BalanceOf("bob", core).Liquid; got != 0 {
		t.Fatalf("withdrawal should not complete before delay elapses")
	}

	if err := l.ProcessSavingsWithdrawals(savingsWithdrawDelay + 1); err != nil {
		t.Fatalf("process after delay: %v", err)
	}
	if got := l.BalanceOf("bob", core).Liquid; got != 200 {
		t.Fatalf("bob liquid after delay = %d, want 200", got)
	}
}

func TestDelegateAndUndelegateStake(t *testing.T) {
	db := objectstore.NewDatabase()
	l := NewLedger(db)
	l.CreditLiquid("alice", xtypes.NewAsset(1000, core))
	l.Stake("alice", xtypes.NewAsset(1000, core))

	if err := l.DelegateStake("alice", "bob", xtypes.NewAsset(400, core)); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	if got := l.BalanceOf("bob", core).DelegatedIn; got != 400 {
		t.Fatalf("bob delegated-in = %d, want 400", got)
	}

	if err := l.DelegateStake("alice", "carol", xtypes.NewAsset(700, core)); err == nil {
		t.Fatalf("expected error delegating more than undelegated staked balance")
	}

	if err := l.UndelegateStake("alice", "bob", xtypes.NewAsset(400, core)); err != nil {
		t.Fatalf("undelegate: %v", err)
	}
	if got := l.BalanceOf("alice", core).DelegatedOut; got != 0 {
		t.Fatalf("alice delegated-out after undelegate = %d, want 0", got)
	}
}
