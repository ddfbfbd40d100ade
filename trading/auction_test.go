package trading

import (
	"testing"

	"nodechain/assets"
	"nodechain/objectstore"
	"nodechain/xtypes"
)

func newTestAuctions(t *testing.T) (*Auctions, *assets.Ledger) {
	t.Helper()
	db := objectstore.NewDatabase()
	ledger := assets.NewLedger(db)
	return NewAuctions(db, ledger), ledger
}

func TestAuctionPlaceReservesSellAmount(t *testing.T) {
	a, ledger := newTestAuctions(t)
	ledger.CreditLiquid("alice", xtypes.NewAsset(10, btc))

	price := xtypes.NewPrice(xtypes.NewAsset(1, btc), xtypes.NewAsset(100, usd))
	order, err := a.Place("alice", xtypes.NewAsset(10, btc), price, 0)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if order.ForSale != 10 {
		t.Fatalf("expected full amount queued, got %d", order.ForSale)
	}
	if got := ledger.BalanceOf("alice", btc).Liquid; got != 0 {
		t.Fatalf("alice's btc should be reserved by the order, got %d liquid", got)
	}
}

func TestAuctionCancelRefundsSeller(t *testing.T) {
	a, ledger := newTestAuctions(t)
	ledger.CreditLiquid("alice", xtypes.NewAsset(10, btc))
	price := xtypes.NewPrice(xtypes.NewAsset(1, btc), xtypes.NewAsset(100, usd))
	order, err := a.Place("alice", xtypes.NewAsset(10, btc), price, 0)
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	if err := a.Cancel("alice", order.OrderUUID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := ledger.BalanceOf("alice", btc).Liquid; got != 10 {
		t.Fatalf("cancel should refund the reserved amount, got %d", got)
	}
}

func TestAuctionCancelRejectsNonOwner(t *testing.T) {
	a, ledger := newTestAuctions(t)
	ledger.CreditLiquid("alice", xtypes.NewAsset(10, btc))
	price := xtypes.NewPrice(xtypes.NewAsset(1, btc), xtypes.NewAsset(100, usd))
	order, err := a.Place("alice", xtypes.NewAsset(10, btc), price, 0)
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	if err := a.Cancel("mallory", order.OrderUUID); err == nil {
		t.Fatalf("expected error cancelling another seller's order")
	}
}

func TestAuctionExpireOrdersRefundsPastExpiration(t *testing.T) {
	a, ledger := newTestAuctions(t)
	ledger.CreditLiquid("alice", xtypes.NewAsset(10, btc))
	price := xtypes.NewPrice(xtypes.NewAsset(1, btc), xtypes.NewAsset(100, usd))
	if _, err := a.Place("alice", xtypes.NewAsset(10, btc), price, 100); err != nil {
		t.Fatalf("place: %v", err)
	}

	if err := a.ExpireOrders(200); err != nil {
		t.Fatalf("expire orders: %v", err)
	}
	if got := ledger.BalanceOf("alice", btc).Liquid; got != 10 {
		t.Fatalf("expired order should refund the seller, got %d", got)
	}
}

func TestClearMarketMatchesCrossingOrdersAtUniformPrice(t *testing.T) {
	a, ledger := newTestAuctions(t)
	ledger.CreditLiquid("alice", xtypes.NewAsset(100, btc))
	ledger.CreditLiquid("bob", xtypes.NewAsset(10_000, usd))

	// alice asks 100 btc for at least 90 usd/btc; bob bids up to 110 usd/btc
	// for 100 btc worth of usd. They cross: clearing price is alice's ask.
	askPrice := xtypes.NewPrice(xtypes.NewAsset(1, btc), xtypes.NewAsset(90, usd))
	if _, err := a.Place("alice", xtypes.NewAsset(100, btc), askPrice, 0); err != nil {
		t.Fatalf("place ask: %v", err)
	}
	// bob sells usd for btc at a rate no worse than 110 usd per btc.
	bobLimit := xtypes.NewPrice(xtypes.NewAsset(110, usd), xtypes.NewAsset(1, btc))
	if _, err := a.Place("bob", xtypes.NewAsset(9_000, usd), bobLimit, 0); err != nil {
		t.Fatalf("place bid: %v", err)
	}

	if err := a.ClearMarket(btc, usd); err != nil {
		t.Fatalf("clear market: %v", err)
	}

	if got := ledger.BalanceOf("bob", btc).Liquid; got == 0 {
		t.Fatalf("expected bob to receive btc from the crossing clear, got %d", got)
	}
	if got := ledger.BalanceOf("alice", usd).Liquid; got == 0 {
		t.Fatalf("expected alice to receive usd from the crossing clear, got %d", got)
	}
}

func TestClearMarketLeavesNonCrossingOrdersQueued(t *testing.T) {
	a, ledger := newTestAuctions(t)
	ledger.CreditLiquid("alice", xtypes.NewAsset(100, btc))
	ledger.CreditLiquid("bob", xtypes.NewAsset(1_000, usd))

	askPrice := xtypes.NewPrice(xtypes.NewAsset(1, btc), xtypes.NewAsset(200, usd))
	order, err := a.Place("alice", xtypes.NewAsset(100, btc), askPrice, 0)
	if err != nil {
		t.Fatalf("place ask: %v", err)
	}
	bobLimit := xtypes.NewPrice(xtypes.NewAsset(100, usd), xtypes.NewAsset(1, btc))
	if _, err := a.Place("bob", xtypes.NewAsset(500, usd), bobLimit, 0); err != nil {
		t.Fatalf("place bid: %v", err)
	}

	if err := a.ClearMarket(btc, usd); err != nil {
		t.Fatalf("clear market: %v", err)
	}
	if _, err := a.orders.Get(order.ID); err != nil {
		t.Fatalf("non-crossing ask should remain queued: %v", err)
	}
	if got := ledger.BalanceOf("bob", btc).Liquid; got != 0 {
		t.Fatalf("non-crossing bid should not fill, got %d btc", got)
	}
}
