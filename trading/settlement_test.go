package trading

import (
	"testing"

	"nodechain/assets"
	"nodechain/objectstore"
	"nodechain/xtypes"
)

const bitusd = xtypes.Symbol("BITUSD")

// newTestBitasset creates a market-issued bitasset backed by usd collateral
// with a published feed and one open call order, wired through CallOrders
// exactly as the produce pipeline would reach it.
func newTestBitasset(t *testing.T) (*objectstore.Database, *assets.Ledger, *assets.Registry, *assets.Asset, *assets.BitassetData, *CallOrders) {
	t.Helper()
	db := objectstore.NewDatabase()
	ledger := assets.NewLedger(db)
	registry := assets.NewRegistry(db)

	a, err := registry.Create(bitusd, assets.KindBitasset, "issuer1", 4, 1_000_000_000, 0)
	if err != nil {
		t.Fatalf("create bitasset: %v", err)
	}
	b, err := registry.BitassetDataOf(a.ID)
	if err != nil {
		t.Fatalf("bitasset data: %v", err)
	}

	feed := assets.FeedEntry{
		Publisher:                  "feeder1",
		SettlementPrice:            xtypes.NewPrice(xtypes.NewAsset(1, bitusd), xtypes.NewAsset(1, usd)),
		MaintenanceCollateralRatio: 1750,
		PublishedAt:                1,
	}
	if err := registry.PublishFeed(b, feed); err != nil {
		t.Fatalf("publish feed: %v", err)
	}
	b, _ = registry.BitassetDataOf(a.ID)

	callOrders := NewCallOrders(db, ledger, registry)
	ledger.CreditLiquid("borrower1", xtypes.NewAsset(2000, usd))
	if _, err := callOrders.Open("borrower1", a, b, usd, 2000, 1000); err != nil {
		t.Fatalf("open call order: %v", err)
	}

	return db, ledger, registry, a, b, callOrders
}

func TestForceSettleReservesBalanceAndQueues(t *testing.T) {
	db, ledger, registry, a, _, callOrders := newTestBitasset(t)
	settlements := NewSettlements(db, ledger, registry, callOrders)

	ledger.CreditLiquid("holder1", xtypes.NewAsset(100, bitusd))
	req, err := settlements.ForceSettle("holder1", a, 100, 0, 1000)
	if err != nil {
		t.Fatalf("force settle: %v", err)
	}
	if req.MaturesAt != 1000 {
		t.Fatalf("expected maturity at now+delay, got %d", req.MaturesAt)
	}
	if got := ledger.BalanceOf("holder1", bitusd).Liquid; got != 0 {
		t.Fatalf("force settle should reserve the bitasset balance, got %d liquid", got)
	}
}

func TestProcessMaturedSettlementsPaysOutAtOffsetFeed(t *testing.T) {
	db, ledger, registry, a, b, callOrders := newTestBitasset(t)
	settlements := NewSettlements(db, ledger, registry, callOrders)

	ledger.CreditLiquid("holder1", xtypes.NewAsset(100, bitusd))
	if _, err := settlements.ForceSettle("holder1", a, 100, 0, 0); err != nil {
		t.Fatalf("force settle: %v", err)
	}

	if err := settlements.ProcessMaturedSettlements(a, b, 1, 500, 1000); err != nil {
		t.Fatalf("process matured settlements: %v", err)
	}
	if got := ledger.BalanceOf("holder1", usd).Liquid; got == 0 {
		t.Fatalf("expected holder1 to receive collateral from matured settlement, got %d", got)
	}
	if got := ledger.BalanceOf("holder1", usd).Liquid; got >= 100 {
		t.Fatalf("a 5%% offset should pay out strictly less than the 1:1 feed price, got %d", got)
	}
}

func TestProcessMaturedSettlementsSkipsUnmaturedRequests(t *testing.T) {
	db, ledger, registry, a, b, callOrders := newTestBitasset(t)
	settlements := NewSettlements(db, ledger, registry, callOrders)

	ledger.CreditLiquid("holder1", xtypes.NewAsset(100, bitusd))
	req, err := settlements.ForceSettle("holder1", a, 100, 0, 10_000)
	if err != nil {
		t.Fatalf("force settle: %v", err)
	}

	if err := settlements.ProcessMaturedSettlements(a, b, 1, 0, 1000); err != nil {
		t.Fatalf("process matured settlements: %v", err)
	}
	if got := ledger.BalanceOf("holder1", usd).Liquid; got != 0 {
		t.Fatalf("unmatured request should not be paid out yet, got %d", got)
	}
	if _, err := settlements.pending.Get(req.ID); err != nil {
		t.Fatalf("unmatured request should remain queued: %v", err)
	}
}

func TestGlobalSettleSweepsCollateralAndMarksAsset(t *testing.T) {
	db, ledger, registry, a, b, callOrders := newTestBitasset(t)
	settlements := NewSettlements(db, ledger, registry, callOrders)

	settlePrice := xtypes.NewPrice(xtypes.NewAsset(1, bitusd), xtypes.NewAsset(1, usd))
	if err := settlements.GlobalSettle(a, b, settlePrice); err != nil {
		t.Fatalf("global settle: %v", err)
	}
	if len(callOrders.ForDebtAsset(bitusd)) != 0 {
		t.Fatalf("global settlement should sweep every open call order")
	}

	b, err := registry.BitassetDataOf(a.ID)
	if err != nil {
		t.Fatalf("bitasset data: %v", err)
	}
	if !b.HasSettlement {
		t.Fatalf("expected asset to be marked globally settled")
	}
	if b.SettlementFund != 2000 {
		t.Fatalf("expected settlement fund to hold the swept collateral, got %d", b.SettlementFund)
	}
}

func TestRedeemGlobalSettlementPaysProportionalShare(t *testing.T) {
	db, ledger, registry, a, b, callOrders := newTestBitasset(t)
	settlements := NewSettlements(db, ledger, registry, callOrders)

	settlePrice := xtypes.NewPrice(xtypes.NewAsset(1, bitusd), xtypes.NewAsset(1, usd))
	if err := settlements.GlobalSettle(a, b, settlePrice); err != nil {
		t.Fatalf("global settle: %v", err)
	}
	b, _ = registry.BitassetDataOf(a.ID)

	ledger.CreditLiquid("holder1", xtypes.NewAsset(500, bitusd))
	out, err := settlements.RedeemGlobalSettlement("holder1", a, b, 500)
	if err != nil {
		t.Fatalf("redeem global settlement: %v", err)
	}
	if out.Symbol != usd || out.Amount != 500 {
		t.Fatalf("expected 500 usd at a 1:1 settlement price, got %s", out)
	}
	if got := ledger.BalanceOf("holder1", bitusd).Liquid; got != 0 {
		t.Fatalf("redemption should burn the debt, got %d bitusd remaining", got)
	}
}

func TestRedeemGlobalSettlementRejectsBeforeSettlement(t *testing.T) {
	db, ledger, registry, a, b, callOrders := newTestBitasset(t)
	settlements := NewSettlements(db, ledger, registry, callOrders)

	ledger.CreditLiquid("holder1", xtypes.NewAsset(500, bitusd))
	if _, err := settlements.RedeemGlobalSettlement("holder1", a, b, 500); err == nil {
		t.Fatalf("expected error redeeming before global settlement")
	}
}
