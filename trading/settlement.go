package trading

import (
	"nodechain/assets"
	"nodechain/chainerr"
	"nodechain/objectstore"
	"nodechain/xtypes"
)

// ForceSettlement is a pending redemption of bitasset debt for a
// proportional share of collateral, maturing after the asset's configured
// settlement delay (spec.md §4.6.7 force settle).
type ForceSettlement struct {
	objectstore.Base
	Owner     xtypes.AccountName
	DebtAsset xtypes.Symbol
	Amount    xtypes.ShareAmount
	MaturesAt xtypes.TimePoint
}

// Settlements owns every pending force-settlement request and the global
// settlement state keyed per bitasset.
type Settlements struct {
	pending    *objectstore.Store[ForceSettlement]
	ledger     *assets.Ledger
	registry   *assets.Registry
	callOrders *CallOrders
}

func NewSettlements(db *objectstore.Database, ledger *assets.Ledger, registry *assets.Registry, callOrders *CallOrders) *Settlements {
	s := &Settlements{ledger: ledger, registry: registry, callOrders: callOrders}
	s.pending = objectstore.NewStore[ForceSettlement](db, "force_settlement", func(f *ForceSettlement) uint64 { return f.ID }).
		WithIndex("by_debt_asset", func(f *ForceSettlement) (string, bool) { return string(f.DebtAsset), true })
	return s
}

// ForceSettle reserves amount of the caller's bitasset balance and queues a
// settlement request maturing after delay (spec.md §4.6.7).
func (s *Settlements) ForceSettle(owner xtypes.AccountName, bitasset *assets.Asset, amount xtypes.ShareAmount, now, delay xtypes.TimePoint) (*ForceSettlement, error) {
	if amount <= 0 {
		return nil, chainerr.New(chainerr.InvariantViolation, "trading: force settlement amount must be positive")
	}
	if err := s.ledger.DebitLiquid(owner, xtypes.NewAsset(amount, bitasset.Symbol)); err != nil {
		return nil, err
	}
	return s.pending.Create(
		func(f *ForceSettlement, id uint64) { f.ID = id },
		func(f *ForceSettlement) {
			f.Owner = owner
			f.DebtAsset = bitasset.Symbol
			f.Amount = amount
			f.MaturesAt = now + delay
		})
}

// ProcessMaturedSettlements matches every force-settlement request whose
// maturity has arrived against the debt asset's lowest-collateralization
// call orders at the feed price minus offsetBps, up to maxVolume units of
// debt per call (spec.md §4.6.7 "up to the daily maximum-settlement
// volume"). Matured requests that cannot be fully covered remain queued
// and are retried the next time this runs.
func (s *Settlements) ProcessMaturedSettlements(bitasset *assets.Asset, bdata *assets.BitassetData, now xtypes.TimePoint, offsetBps uint32, maxVolume xtypes.ShareAmount) error {
	if bdata.HasSettlement {
		return nil
	}
	feedMilli := feedPriceMilli(bdata.CurrentFeed.SettlementPrice)
	if feedMilli == 0 {
		return nil
	}
	settleMilli := feedMilli * uint64(10000-offsetBps) / 10000

	remaining := maxVolume
	for _, req := range s.pending.ListByIndex("by_debt_asset", string(bitasset.Symbol)) {
		if req.MaturesAt > now || remaining <= 0 {
			continue
		}
		filled, err := s.settleAgainstCallOrders(bitasset, req, settleMilli, remaining)
		if err != nil {
			return err
		}
		remaining -= filled
	}
	return nil
}

// settleAgainstCallOrders matches up to req.Amount (capped by budget) of
// req against the asset's least-collateralized call orders, paying
// collateral out at settleMilli (collateral units per 1000 debt units) and
// burning the matched debt from both sides.
func (s *Settlements) settleAgainstCallOrders(bitasset *assets.Asset, req *ForceSettlement, settleMilli uint64, budget xtypes.ShareAmount) (xtypes.ShareAmount, error) {
	orders := s.callOrders.ForDebtAsset(bitasset.Symbol)
	sortCallOrdersByRiskiestFirst(orders)

	want := req.Amount
	if want > budget {
		want = budget
	}
	var filled xtypes.ShareAmount

	for _, o := range orders {
		if want <= 0 {
			break
		}
		amt := o.Debt
		if amt > want {
			amt = want
		}
		collateralOut := xtypes.ShareAmount(uint64(amt) * settleMilli / 1000)
		if collateralOut > o.Collateral {
			collateralOut = o.Collateral
			amt = xtypes.ShareAmount(uint64(collateralOut) * 1000 / settleMilli)
		}
		if amt <= 0 {
			continue
		}
		if err := s.callOrders.orders.Modify(o, func(o *CallOrder) {
			o.Debt -= amt
			o.Collateral -= collateralOut
		}); err != nil {
			return filled, err
		}
		if err := s.registry.Reserve(bitasset, amt); err != nil {
			return filled, err
		}
		if err := s.ledger.CreditLiquid(req.Owner, xtypes.NewAsset(collateralOut, o.CollateralAsset)); err != nil {
			return filled, err
		}
		if o.Debt == 0 {
			s.callOrders.orders.Remove(o)
		}
		want -= amt
		filled += amt
	}

	switch {
	case want == 0:
		s.pending.Remove(req)
	case want < req.Amount:
		if err := s.pending.Modify(req, func(f *ForceSettlement) { f.Amount = want }); err != nil {
			return filled, err
		}
	}
	return filled, nil
}

func sortCallOrdersByRiskiestFirst(orders []*CallOrder) {
	for i := 1; i < len(orders); i++ {
		for j := i; j > 0 && orders[j].CollateralRatioMilli() < orders[j-1].CollateralRatioMilli(); j-- {
			orders[j], orders[j-1] = orders[j-1], orders[j]
		}
	}
}

// GlobalSettle triggers global settlement for bitasset at settlePrice
// (spec.md §4.6.7): every outstanding call order contributes its full
// collateral into the asset's settlement fund and is removed, and the
// asset is marked as globally settled at settlePrice so that future debt
// holders redeem a proportional share of the fund instead of trading.
// No operation or block step calls this; CallOrders.MarginCall returns
// WouldTriggerBlackSwan to its caller without invoking it.
func (s *Settlements) GlobalSettle(bitasset *assets.Asset, bdata *assets.BitassetData, settlePrice xtypes.Price) error {
	if bdata.HasSettlement {
		return chainerr.New(chainerr.InvariantViolation, "trading: asset already globally settled")
	}
	settleMilli := feedPriceMilli(settlePrice)
	if settleMilli == 0 {
		return chainerr.New(chainerr.InvariantViolation, "trading: invalid global settlement price")
	}

	var fund xtypes.ShareAmount
	for _, o := range s.callOrders.orders.ListByIndex("by_debt_asset", string(bitasset.Symbol)) {
		fund += o.Collateral
		s.callOrders.orders.Remove(o)
	}
	return s.registry.MarkGloballySettled(bdata, settlePrice, fund)
}

// RedeemGlobalSettlement exchanges amount of debt for its proportional
// share of the settlement fund, at the price the asset settled at.
func (s *Settlements) RedeemGlobalSettlement(owner xtypes.AccountName, bitasset *assets.Asset, bdata *assets.BitassetData, amount xtypes.ShareAmount) (xtypes.Asset, error) {
	if !bdata.HasSettlement {
		return xtypes.Asset{}, chainerr.New(chainerr.InvariantViolation, "trading: asset has not globally settled")
	}
	if amount <= 0 {
		return xtypes.Asset{}, chainerr.New(chainerr.InvariantViolation, "trading: redemption amount must be positive")
	}
	settleMilli := feedPriceMilli(bdata.SettlementPrice)
	payout := xtypes.ShareAmount(uint64(amount) * settleMilli / 1000)
	if payout > bdata.SettlementFund {
		payout = bdata.SettlementFund
	}

	if err := s.ledger.DebitLiquid(owner, xtypes.NewAsset(amount, bitasset.Symbol)); err != nil {
		return xtypes.Asset{}, err
	}
	if err := s.registry.Reserve(bitasset, amount); err != nil {
		return xtypes.Asset{}, err
	}
	collateralSymbol := bdata.SettlementPrice.Quote.Symbol
	if err := s.registry.DrawSettlementFund(bdata, payout); err != nil {
		return xtypes.Asset{}, err
	}
	out := xtypes.NewAsset(payout, collateralSymbol)
	if err := s.ledger.CreditLiquid(owner, out); err != nil {
		return xtypes.Asset{}, err
	}
	return out, nil
}
