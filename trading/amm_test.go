package trading

import (
	"testing"

	"nodechain/assets"
	"nodechain/objectstore"
	"nodechain/xtypes"
)

func newTestAMM(t *testing.T) (*AMM, *assets.Ledger, *assets.Registry) {
	t.Helper()
	db := objectstore.NewDatabase()
	ledger := assets.NewLedger(db)
	registry := assets.NewRegistry(db)
	if _, err := registry.Create(xtypes.LiquidityPoolSymbol(btc, usd), assets.KindLiquidityPoolAsset, "issuer", 8, 1<<62, 0); err != nil {
		t.Fatalf("create LP asset: %v", err)
	}
	return NewAMM(db, ledger, registry), ledger, registry
}

func TestCreatePoolRejectsDuplicatePair(t *testing.T) {
	amm, _, _ := newTestAMM(t)
	if _, err := amm.CreatePool(btc, usd, 0); err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if _, err := amm.CreatePool(usd, btc, 0); err == nil {
		t.Fatalf("expected error creating duplicate pool (order-independent pair)")
	}
}

func TestAddLiquidityMintsGeometricMeanShares(t *testing.T) {
	amm, ledger, _ := newTestAMM(t)
	pool, err := amm.CreatePool(btc, usd, 0)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	ledger.CreditLiquid("alice", xtypes.NewAsset(100, btc))
	ledger.CreditLiquid("alice", xtypes.NewAsset(10000, usd))

	minted, err := amm.AddLiquidity("alice", pool, 100, 10000)
	if err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	if minted <= 0 {
		t.Fatalf("expected positive minted shares, got %d", minted)
	}
	if got := ledger.BalanceOf("alice", pool.ShareAsset).Liquid; got != minted {
		t.Fatalf("alice's LP balance should equal minted shares, got %d want %d", got, minted)
	}
}

func TestSwapFollowsConstantProduct(t *testing.T) {
	amm, ledger, _ := newTestAMM(t)
	pool, _ := amm.CreatePool(btc, usd, 0)
	ledger.CreditLiquid("alice", xtypes.NewAsset(10_000_000, btc))
	ledger.CreditLiquid("alice", xtypes.NewAsset(1_000_000_000, usd))
	if _, err := amm.AddLiquidity("alice", pool, 10_000_000, 1_000_000_000); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}

	ledger.CreditLiquid("bob", xtypes.NewAsset(10_000, usd))
	out, err := amm.Swap("bob", pool, xtypes.NewAsset(10_000, usd), 1)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if out.Symbol != btc {
		t.Fatalf("expected output in btc, got %s", out.Symbol)
	}
	if out.Amount <= 0 || out.Amount >= 1_000_000 {
		t.Fatalf("expected a small positive btc output relative to pool depth, got %d", out.Amount)
	}
	if got := ledger.BalanceOf("bob", usd).Liquid; got != 0 {
		t.Fatalf("bob's usd should be fully spent, got %d", got)
	}
}

func TestSwapRejectsBelowMinOut(t *testing.T) {
	amm, ledger, _ := newTestAMM(t)
	pool, _ := amm.CreatePool(btc, usd, 0)
	ledger.CreditLiquid("alice", xtypes.NewAsset(10_000_000, btc))
	ledger.CreditLiquid("alice", xtypes.NewAsset(1_000_000_000, usd))
	amm.AddLiquidity("alice", pool, 10_000_000, 1_000_000_000)

	ledger.CreditLiquid("bob", xtypes.NewAsset(10, usd))
	if _, err := amm.Swap("bob", pool, xtypes.NewAsset(10, usd), 1_000_000); err == nil {
		t.Fatalf("expected error when output falls below minOut")
	}
}

func TestRemoveLiquidityReturnsProportionalShare(t *testing.T) {
	amm, ledger, _ := newTestAMM(t)
	pool, _ := amm.CreatePool(btc, usd, 0)
	ledger.CreditLiquid("alice", xtypes.NewAsset(100, btc))
	ledger.CreditLiquid("alice", xtypes.NewAsset(10_000, usd))
	minted, err := amm.AddLiquidity("alice", pool, 100, 10_000)
	if err != nil {
		t.Fatalf("add liquidity: %v", err)
	}

	outA, outB, err := amm.RemoveLiquidity("alice", pool, minted)
	if err != nil {
		t.Fatalf("remove liquidity: %v", err)
	}
	if outA.Amount != 100 || outB.Amount != 10_000 {
		t.Fatalf("full redemption should return full balances, got %d/%d", outA.Amount, outB.Amount)
	}
}
