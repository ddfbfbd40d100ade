package trading

import (
	"nodechain/assets"
	"nodechain/chainerr"
	"nodechain/objectstore"
	"nodechain/xtypes"
)

// CallOrder is a collateralized debt position backing one unit of a
// bitasset's circulating supply (spec.md §3.2, §4.5): opening one mints
// DebtAsset to the borrower against locked CollateralAsset, and the
// position must maintain at least the asset's feed-published maintenance
// collateral ratio or it becomes eligible for margin call.
type CallOrder struct {
	objectstore.Base
	Borrower        xtypes.AccountName
	DebtAsset       xtypes.Symbol
	CollateralAsset xtypes.Symbol
	Collateral      xtypes.ShareAmount
	Debt            xtypes.ShareAmount
}

// CallOrders owns every open call order for every bitasset.
type CallOrders struct {
	orders   *objectstore.Store[CallOrder]
	ledger   *assets.Ledger
	registry *assets.Registry
}

func NewCallOrders(db *objectstore.Database, ledger *assets.Ledger, registry *assets.Registry) *CallOrders {
	c := &CallOrders{ledger: ledger, registry: registry}
	c.orders = objectstore.NewStore[CallOrder](db, "call_order", func(o *CallOrder) uint64 { return o.ID }).
		WithIndex("by_debt_asset", func(o *CallOrder) (string, bool) { return string(o.DebtAsset), true }).
		WithIndex("by_borrower", func(o *CallOrder) (string, bool) { return string(o.Borrower), true })
	return c
}

// feedPriceMilli extracts the collateral-per-debt-unit ratio, scaled by
// 1000, from a bitasset's aggregated feed price (Base=debt asset,
// Quote=collateral asset).
func feedPriceMilli(p xtypes.Price) uint64 {
	if p.Base.Amount <= 0 {
		return 0
	}
	return uint64(p.Quote.Amount) * 1000 / uint64(p.Base.Amount)
}

// Open borrows newDebt of the bitasset against newCollateral, requiring
// the resulting position to already meet the maintenance collateral ratio
// (spec.md §4.5 open call order, Scenario C worked example).
func (c *CallOrders) Open(borrower xtypes.AccountName, bitasset *assets.Asset, bdata *assets.BitassetData, collateralAsset xtypes.Symbol, collateral, debt xtypes.ShareAmount) (*CallOrder, error) {
	if collateral <= 0 || debt <= 0 {
		return nil, chainerr.New(chainerr.InvariantViolation, "trading: collateral and debt must be positive")
	}
	price := feedPriceMilli(bdata.CurrentFeed.SettlementPrice)
	if price == 0 {
		return nil, chainerr.New(chainerr.NotFound, "trading: no active price feed for this bitasset")
	}
	if !xtypes.MeetsMaintenanceRatio(collateral, debt, price, bdata.CurrentFeed.MaintenanceCollateralRatio) {
		return nil, chainerr.New(chainerr.InsufficientCollateral, "trading: position does not meet maintenance collateral ratio")
	}

	if err := c.ledger.DebitLiquid(borrower, xtypes.NewAsset(collateral, collateralAsset)); err != nil {
		return nil, err
	}
	if err := c.registry.Issue(bitasset, debt); err != nil {
		_ = c.ledger.CreditLiquid(borrower, xtypes.NewAsset(collateral, collateralAsset))
		return nil, err
	}
	if err := c.ledger.CreditLiquid(borrower, xtypes.NewAsset(debt, bitasset.Symbol)); err != nil {
		return nil, err
	}

	return c.orders.Create(
		func(o *CallOrder, id uint64) { o.ID = id },
		func(o *CallOrder) {
			o.Borrower = borrower
			o.DebtAsset = bitasset.Symbol
			o.CollateralAsset = collateralAsset
			o.Collateral = collateral
			o.Debt = debt
		})
}

// Close repays the full debt and returns the locked collateral.
func (c *CallOrders) Close(order *CallOrder, bitasset *assets.Asset) error {
	if err := c.ledger.DebitLiquid(order.Borrower, xtypes.NewAsset(order.Debt, order.DebtAsset)); err != nil {
		return err
	}
	if err := c.registry.Reserve(bitasset, order.Debt); err != nil {
		return err
	}
	if err := c.ledger.CreditLiquid(order.Borrower, xtypes.NewAsset(order.Collateral, order.CollateralAsset)); err != nil {
		return err
	}
	c.orders.Remove(order)
	return nil
}

// CollateralRatioMilli returns the order's current collateral/debt ratio in
// milli-ratio units.
func (o *CallOrder) CollateralRatioMilli() uint32 {
	return xtypes.CollateralRatio(o.Collateral, o.Debt)
}

// ForDebtAsset returns every open call order for debtAsset in ascending id
// order; it applies no risk ordering (settleAgainstCallOrders sorts the
// result riskiest first itself).
func (c *CallOrders) ForDebtAsset(debtAsset xtypes.Symbol) []*CallOrder {
	return c.orders.ListByIndex("by_debt_asset", string(debtAsset))
}

// MarginCall checks every open order against bdata's current feed and, for
// any order that has fallen below the maintenance ratio, liquidates its
// collateral at the feed price to retire its debt (spec.md §4.5 margin
// call). Orders that cannot be covered even by liquidating all their
// collateral trigger a black swan (spec.md §4.5, §7 WouldTriggerBlackSwan)
// and the caller must initiate global settlement instead.
func (c *CallOrders) MarginCall(bitasset *assets.Asset, bdata *assets.BitassetData) error {
	price := feedPriceMilli(bdata.CurrentFeed.SettlementPrice)
	if price == 0 {
		return nil
	}
	for _, o := range c.orders.ListByIndex("by_debt_asset", string(bitasset.Symbol)) {
		if xtypes.MeetsMaintenanceRatio(o.Collateral, o.Debt, price, bdata.CurrentFeed.MaintenanceCollateralRatio) {
			continue
		}
		if uint64(o.Collateral)*1000 < uint64(o.Debt)*price {
			return chainerr.New(chainerr.WouldTriggerBlackSwan,
				"trading: call order collateral cannot cover its debt at the feed price, global settlement required")
		}
		if err := c.liquidate(bitasset, o, price); err != nil {
			return err
		}
	}
	return nil
}

// liquidate sells enough of the order's collateral at the current feed
// price to retire its entire debt, returning any leftover collateral to
// the borrower.
func (c *CallOrders) liquidate(bitasset *assets.Asset, o *CallOrder, feedMilli uint64) error {
	neededCollateral := xtypes.ShareAmount(uint64(o.Debt) * feedMilli / 1000)
	if neededCollateral > o.Collateral {
		neededCollateral = o.Collateral
	}

	if err := c.registry.Reserve(bitasset, o.Debt); err != nil {
		return err
	}
	leftover := o.Collateral - neededCollateral
	if leftover > 0 {
		if err := c.ledger.CreditLiquid(o.Borrower, xtypes.NewAsset(leftover, o.CollateralAsset)); err != nil {
			return err
		}
	}
	c.orders.Remove(o)
	return nil
}
