package trading

import (
	"testing"

	"nodechain/assets"
	"nodechain/objectstore"
	"nodechain/xtypes"
)

const callOptBtc = xtypes.Symbol("CALLBTC")

func newTestOptionOrders(t *testing.T) (*OptionOrders, *assets.Ledger, *assets.Asset) {
	t.Helper()
	db := objectstore.NewDatabase()
	ledger := assets.NewLedger(db)
	registry := assets.NewRegistry(db)

	optAsset, err := registry.Create(callOptBtc, assets.KindStandard, "writer1", 4, 1_000_000_000, 0)
	if err != nil {
		t.Fatalf("create option asset: %v", err)
	}

	return NewOptionOrders(db, ledger, registry), ledger, optAsset
}

func TestOpenOptionOrderLocksUnderlyingAndIssuesPosition(t *testing.T) {
	orders, ledger, optAsset := newTestOptionOrders(t)
	ledger.CreditLiquid("writer1", xtypes.NewAsset(10, btc))

	strike := xtypes.NewPrice(xtypes.NewAsset(1, btc), xtypes.NewAsset(50000, callOptBtc))
	order, err := orders.Open("writer1", optAsset, btc, 10, 5, strike, OptionCall, 1000)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if order.OrderUUID == "" {
		t.Fatalf("expected a non-empty order UUID")
	}
	if got := ledger.BalanceOf("writer1", btc).Liquid; got != 0 {
		t.Fatalf("underlying should be fully locked, got %d liquid", got)
	}
	if got := ledger.BalanceOf("writer1", callOptBtc).Liquid; got != 5 {
		t.Fatalf("expected the option position to be minted, got %d", got)
	}
}

func TestExerciseCallInTheMoneyPaysOut(t *testing.T) {
	orders, ledger, optAsset := newTestOptionOrders(t)
	ledger.CreditLiquid("writer1", xtypes.NewAsset(10, btc))

	strike := xtypes.NewPrice(xtypes.NewAsset(1, btc), xtypes.NewAsset(50000, callOptBtc))
	order, err := orders.Open("writer1", optAsset, btc, 10, 5, strike, OptionCall, 1000)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	settle := xtypes.NewPrice(xtypes.NewAsset(1, btc), xtypes.NewAsset(60000, callOptBtc))
	if err := orders.Exercise(order, settle, 1000); err != nil {
		t.Fatalf("exercise: %v", err)
	}
	if got := ledger.BalanceOf("writer1", callOptBtc).Liquid; got != 0 {
		t.Fatalf("exercising should retire the option position, got %d remaining", got)
	}
	if got := ledger.BalanceOf("writer1", btc).Liquid; got != 10 {
		t.Fatalf("exercising should return the locked underlying, got %d liquid", got)
	}
}

func TestExerciseRejectsBeforeExpiration(t *testing.T) {
	orders, ledger, optAsset := newTestOptionOrders(t)
	ledger.CreditLiquid("writer1", xtypes.NewAsset(10, btc))

	strike := xtypes.NewPrice(xtypes.NewAsset(1, btc), xtypes.NewAsset(50000, callOptBtc))
	order, err := orders.Open("writer1", optAsset, btc, 10, 5, strike, OptionCall, 1000)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	settle := xtypes.NewPrice(xtypes.NewAsset(1, btc), xtypes.NewAsset(60000, callOptBtc))
	if err := orders.Exercise(order, settle, 500); err == nil {
		t.Fatalf("expected exercise before expiration to fail")
	}
}

func TestClosePositionReturnsFullUnderlying(t *testing.T) {
	orders, ledger, optAsset := newTestOptionOrders(t)
	ledger.CreditLiquid("writer1", xtypes.NewAsset(10, btc))

	strike := xtypes.NewPrice(xtypes.NewAsset(1, btc), xtypes.NewAsset(50000, callOptBtc))
	order, err := orders.Open("writer1", optAsset, btc, 10, 5, strike, OptionPut, 1000)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := orders.Close(order); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := ledger.BalanceOf("writer1", btc).Liquid; got != 10 {
		t.Fatalf("closing should return the full locked underlying, got %d", got)
	}
	if got := ledger.BalanceOf("writer1", callOptBtc).Liquid; got != 0 {
		t.Fatalf("closing should retire the option position, got %d remaining", got)
	}
}

func TestGetByUUIDFindsOpenOrder(t *testing.T) {
	orders, ledger, optAsset := newTestOptionOrders(t)
	ledger.CreditLiquid("writer1", xtypes.NewAsset(10, btc))

	strike := xtypes.NewPrice(xtypes.NewAsset(1, btc), xtypes.NewAsset(50000, callOptBtc))
	order, err := orders.Open("writer1", optAsset, btc, 10, 5, strike, OptionCall, 1000)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	found, err := orders.GetByUUID(order.OrderUUID)
	if err != nil {
		t.Fatalf("get by uuid: %v", err)
	}
	if found.ID != order.ID {
		t.Fatalf("expected to find the same order, got a different one")
	}
}
