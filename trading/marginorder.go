package trading

import (
	"github.com/google/uuid"

	"nodechain/assets"
	"nodechain/chainerr"
	"nodechain/objectstore"
	"nodechain/xtypes"
)

// MarginOrder borrows from a credit pool against collateral, converts the
// borrowed debt into a position, and later repays the loan out of that
// position plus any remaining collateral (spec.md §4.6.2). Liquidation
// threshold crossings are evaluated by MaintainOne, which hands a
// liquidating position to sellPosition; the stop-loss and take-profit
// prices are stored on the order but nothing evaluates them.
// OrderUUID is the order id spec.md §3.2 names for margin orders.
type MarginOrder struct {
	objectstore.Base
	OrderUUID        string
	Owner            xtypes.AccountName
	CollateralAsset  xtypes.Symbol
	Collateral       xtypes.ShareAmount
	DebtAsset        xtypes.Symbol
	Debt             xtypes.ShareAmount
	PositionAsset    xtypes.Symbol
	Position         xtypes.ShareAmount
	LastInterestTime xtypes.TimePoint
	Liquidating      bool
	StopLossPrice         xtypes.Price
	TakeProfitPrice       xtypes.Price
	LimitStopLossPrice    xtypes.Price
	LimitTakeProfitPrice  xtypes.Price
}

// MarginOrders owns every open margin position, against one shared credit
// pool engine and a limit-order book used to sell a liquidating position
// for debt (spec.md §4.6.2 step 6).
type MarginOrders struct {
	orders      *objectstore.Store[MarginOrder]
	ledger      *assets.Ledger
	pools       *CreditPools
	book        *Book
	variableBps uint32 // variable component of the interest rate, spec.md §4.6.2 step 5
}

// DefaultMarginVariableRateBps is the variable-rate component margin
// orders use when the caller has no asset-specific override (spec.md
// §4.6.2 step 5: "fixed + variable·utilization").
const DefaultMarginVariableRateBps = 2000

func NewMarginOrders(db *objectstore.Database, ledger *assets.Ledger, pools *CreditPools, book *Book, variableRateBps uint32) *MarginOrders {
	m := &MarginOrders{ledger: ledger, pools: pools, book: book, variableBps: variableRateBps}
	m.orders = objectstore.NewStore[MarginOrder](db, "margin_order", func(o *MarginOrder) uint64 { return o.ID }).
		WithIndex("by_owner", func(o *MarginOrder) (string, bool) { return string(o.Owner), true }).
		WithIndex("by_debt_asset", func(o *MarginOrder) (string, bool) { return string(o.DebtAsset), true }).
		WithUniqueIndex("by_uuid", func(o *MarginOrder) (string, bool) { return o.OrderUUID, true })
	return m
}

// Open borrows debtAmount from pool against collateral and immediately
// converts the borrowed debt into position at entryPrice (spec.md §4.6.2
// steps 1-3; entryPrice stands in for the sell_price the full order book
// would otherwise discover through matching).
func (m *MarginOrders) Open(owner xtypes.AccountName, pool *CreditPool, collateralAsset xtypes.Symbol, collateral xtypes.ShareAmount, debtAmount xtypes.ShareAmount, positionAsset xtypes.Symbol, entryPrice xtypes.Price, now xtypes.TimePoint) (*MarginOrder, error) {
	if collateral <= 0 || debtAmount <= 0 {
		return nil, chainerr.New(chainerr.InvariantViolation, "trading: margin order collateral and debt must be positive")
	}
	if entryPrice.IsNull() || entryPrice.Base.Symbol != pool.BaseAsset || entryPrice.Quote.Symbol != positionAsset {
		return nil, chainerr.New(chainerr.MismatchedSymbols, "trading: entry price must convert debt asset to position asset")
	}

	if err := m.ledger.DebitLiquid(owner, xtypes.NewAsset(collateral, collateralAsset)); err != nil {
		return nil, err
	}
	if err := m.pools.Borrow(owner, pool, debtAmount); err != nil {
		_ = m.ledger.CreditLiquid(owner, xtypes.NewAsset(collateral, collateralAsset))
		return nil, err
	}
	position, err := entryPrice.Mul(xtypes.NewAsset(debtAmount, pool.BaseAsset))
	if err != nil {
		return nil, err
	}
	if err := m.ledger.DebitLiquid(owner, xtypes.NewAsset(debtAmount, pool.BaseAsset)); err != nil {
		return nil, err
	}
	if err := m.ledger.CreditLiquid(owner, position); err != nil {
		return nil, err
	}

	return m.orders.Create(
		func(o *MarginOrder, id uint64) { o.ID = id },
		func(o *MarginOrder) {
			o.OrderUUID = uuid.New().String()
			o.Owner = owner
			o.CollateralAsset = collateralAsset
			o.Collateral = collateral
			o.DebtAsset = pool.BaseAsset
			o.Debt = debtAmount
			o.PositionAsset = positionAsset
			o.Position = position.Amount
			o.LastInterestTime = now
		})
}

// AccrueInterest adds one period's interest to order.Debt at
// fixed + variable·utilization (spec.md §4.6.2 step 5), where utilization
// is the pool's borrowed fraction of its total balance.
func (m *MarginOrders) AccrueInterest(order *MarginOrder, pool *CreditPool, now xtypes.TimePoint, periodsPerYear uint32) error {
	if periodsPerYear == 0 || order.Liquidating {
		return nil
	}
	utilizationBps := uint64(0)
	if pool.TotalBalance > 0 {
		utilizationBps = uint64(pool.TotalBorrowed) * 10_000 / uint64(pool.TotalBalance)
	}
	rateBps := uint64(pool.APRBps) + uint64(m.variableBps)*utilizationBps/10_000
	interest := xtypes.ShareAmount(uint64(order.Debt) * rateBps / 10_000 / uint64(periodsPerYear))
	if interest <= 0 {
		return nil
	}
	return m.orders.Modify(order, func(o *MarginOrder) {
		o.Debt += interest
		o.LastInterestTime = now
	})
}

// collateralizationMilli computes (collateral + position + debt − debt)
// expressed via feed price feedMilli (collateral units per 1000 debt
// units), over debt, scaled by 1000 (spec.md §4.6.2 step 6).
func collateralizationMilli(o *MarginOrder, feedMilli uint64) uint64 {
	if o.Debt <= 0 {
		return 0
	}
	positionInCollateral := uint64(o.Position) * feedMilli / 1000
	numerator := uint64(o.Collateral) + positionInCollateral
	return numerator * 1000 / uint64(o.Debt)
}

// MaintainOne evaluates a single margin order against the prevailing feed
// price (collateral units per 1000 debt units) and liquidation threshold
// (spec.md §4.6.2 steps 6-7): it flags the order for liquidation if
// undercollateralized and places its position on the book. The order's
// stop-loss and take-profit prices are not consulted.
func (m *MarginOrders) MaintainOne(order *MarginOrder, feedMilli uint64, liquidationThresholdMilli uint64) error {
	if order.Liquidating {
		return m.sellPosition(order)
	}
	if collateralizationMilli(order, feedMilli) < liquidationThresholdMilli {
		if err := m.orders.Modify(order, func(o *MarginOrder) { o.Liquidating = true }); err != nil {
			return err
		}
		return m.sellPosition(order)
	}
	return nil
}

// sellPosition places the order's entire remaining position on the limit
// order book, offered for its debt asset, once liquidation has been
// triggered (spec.md §4.6.2 step 6 "places the position on the book to
// sell for debt at the best available price").
func (m *MarginOrders) sellPosition(order *MarginOrder) error {
	if order.Position <= 0 {
		return nil
	}
	sellPrice := xtypes.Price{
		Base:  xtypes.Asset{Symbol: order.PositionAsset, Amount: 1},
		Quote: xtypes.Asset{Symbol: order.DebtAsset, Amount: 1},
	}
	if err := m.ledger.CreditLiquid(order.Owner, xtypes.NewAsset(order.Position, order.PositionAsset)); err != nil {
		return err
	}
	if _, err := m.book.Place(order.Owner, xtypes.NewAsset(order.Position, order.PositionAsset), sellPrice, 0); err != nil {
		return err
	}
	return m.orders.Modify(order, func(o *MarginOrder) { o.Position = 0 })
}

// Close repays the order's outstanding debt and interest to pool and
// returns the remaining collateral plus any accumulated position to the
// owner (spec.md §4.6.2 step 8).
func (m *MarginOrders) Close(order *MarginOrder, pool *CreditPool) error {
	if err := m.pools.Repay(order.Owner, pool, order.Debt); err != nil {
		return err
	}
	if order.Position > 0 {
		if err := m.ledger.CreditLiquid(order.Owner, xtypes.NewAsset(order.Position, order.PositionAsset)); err != nil {
			return err
		}
	}
	if err := m.ledger.CreditLiquid(order.Owner, xtypes.NewAsset(order.Collateral, order.CollateralAsset)); err != nil {
		return err
	}
	m.orders.Remove(order)
	return nil
}

// ForDebtAsset returns every open margin order borrowing debtAsset, the
// set a caller runs MaintainOne over; ApplyBlock does not call MaintainOne.
func (m *MarginOrders) ForDebtAsset(debtAsset xtypes.Symbol) []*MarginOrder {
	return m.orders.ListByIndex("by_debt_asset", string(debtAsset))
}

// GetByUUID looks up an open margin order by its spec.md §3.2 order id.
func (m *MarginOrders) GetByUUID(orderUUID string) (*MarginOrder, error) {
	return m.orders.GetByIndex("by_uuid", orderUUID)
}
