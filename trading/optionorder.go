package trading

import (
	"github.com/google/uuid"

	"nodechain/assets"
	"nodechain/chainerr"
	"nodechain/objectstore"
	"nodechain/xtypes"
)

// OptionKind distinguishes a call from a put (spec.md §3.2: "strike price
// with call/put").
type OptionKind uint8

const (
	OptionCall OptionKind = iota
	OptionPut
)

// OptionOrder is a cash-settled option position (spec.md §3.2, §4.6): the
// owner locked Underlying of UnderlyingAsset as collateral and received
// Position (the option's debt) of OptionAsset, redeemable at or after
// Expiration for a payout determined by Strike, Kind, and the prevailing
// settlement price. OrderUUID is the order id spec.md §3.2 names for
// option orders.
type OptionOrder struct {
	objectstore.Base
	OrderUUID       string
	Owner           xtypes.AccountName
	UnderlyingAsset xtypes.Symbol
	Underlying      xtypes.ShareAmount
	OptionAsset     xtypes.Symbol
	Position        xtypes.ShareAmount // option position (debt)
	Strike          xtypes.Price       // Base=UnderlyingAsset, Quote=OptionAsset
	Kind            OptionKind
	Expiration      xtypes.TimePoint
}

// OptionOrders owns every open option position across every underlying and
// option asset pair.
type OptionOrders struct {
	orders   *objectstore.Store[OptionOrder]
	ledger   *assets.Ledger
	registry *assets.Registry
}

func NewOptionOrders(db *objectstore.Database, ledger *assets.Ledger, registry *assets.Registry) *OptionOrders {
	o := &OptionOrders{ledger: ledger, registry: registry}
	o.orders = objectstore.NewStore[OptionOrder](db, "option_order", func(x *OptionOrder) uint64 { return x.ID }).
		WithIndex("by_owner", func(x *OptionOrder) (string, bool) { return string(x.Owner), true }).
		WithIndex("by_option_asset", func(x *OptionOrder) (string, bool) { return string(x.OptionAsset), true }).
		WithUniqueIndex("by_uuid", func(x *OptionOrder) (string, bool) { return x.OrderUUID, true })
	return o
}

// Open locks underlying collateral and writes a new option position
// (spec.md §4.6 option order open): the owner commits `underlying` of
// underlyingAsset and mints `position` of optionAsset to themselves,
// struck at strike with the given call/put kind and expiration.
func (o *OptionOrders) Open(owner xtypes.AccountName, optionAsset *assets.Asset, underlyingAsset xtypes.Symbol, underlying, position xtypes.ShareAmount, strike xtypes.Price, kind OptionKind, expiration xtypes.TimePoint) (*OptionOrder, error) {
	if underlying <= 0 || position <= 0 {
		return nil, chainerr.New(chainerr.InvariantViolation, "trading: option underlying and position must be positive")
	}
	if strike.IsNull() || strike.Base.Symbol != underlyingAsset || strike.Quote.Symbol != optionAsset.Symbol {
		return nil, chainerr.New(chainerr.MismatchedSymbols, "trading: option strike must convert underlying asset to option asset")
	}

	if err := o.ledger.DebitLiquid(owner, xtypes.NewAsset(underlying, underlyingAsset)); err != nil {
		return nil, err
	}
	if err := o.registry.Issue(optionAsset, position); err != nil {
		_ = o.ledger.CreditLiquid(owner, xtypes.NewAsset(underlying, underlyingAsset))
		return nil, err
	}
	if err := o.ledger.CreditLiquid(owner, xtypes.NewAsset(position, optionAsset.Symbol)); err != nil {
		return nil, err
	}

	return o.orders.Create(
		func(x *OptionOrder, id uint64) { x.ID = id },
		func(x *OptionOrder) {
			x.OrderUUID = uuid.New().String()
			x.Owner = owner
			x.UnderlyingAsset = underlyingAsset
			x.Underlying = underlying
			x.OptionAsset = optionAsset.Symbol
			x.Position = position
			x.Strike = strike
			x.Kind = kind
			x.Expiration = expiration
		})
}

// payoutMilli returns the in-the-money payout (option-asset units per 1000
// underlying units) for kind at strikeMilli given settleMilli, and whether
// the option is in the money at all.
func payoutMilli(kind OptionKind, strikeMilli, settleMilli uint64) (uint64, bool) {
	switch kind {
	case OptionCall:
		if settleMilli > strikeMilli {
			return settleMilli - strikeMilli, true
		}
	case OptionPut:
		if settleMilli < strikeMilli {
			return strikeMilli - settleMilli, true
		}
	}
	return 0, false
}

// Exercise settles order at settlePrice (same Base/Quote orientation as
// Strike) once its expiration has passed (spec.md §4.6 option order
// exercise): the position's option-asset debt is retired, an in-the-money
// payout is drawn from the locked underlying, and whatever underlying
// remains is returned to the owner.
func (o *OptionOrders) Exercise(order *OptionOrder, settlePrice xtypes.Price, now xtypes.TimePoint) error {
	if now < order.Expiration {
		return chainerr.New(chainerr.InvariantViolation, "trading: option is not yet exercisable")
	}
	if settlePrice.IsNull() || settlePrice.Base.Symbol != order.UnderlyingAsset || settlePrice.Quote.Symbol != order.OptionAsset {
		return chainerr.New(chainerr.MismatchedSymbols, "trading: settlement price must convert underlying asset to option asset")
	}

	optionAsset, err := o.registry.BySymbol(order.OptionAsset)
	if err != nil {
		return err
	}
	if err := o.ledger.DebitLiquid(order.Owner, xtypes.NewAsset(order.Position, order.OptionAsset)); err != nil {
		return err
	}
	if err := o.registry.Reserve(optionAsset, order.Position); err != nil {
		return err
	}

	var payout xtypes.ShareAmount
	if milli, inTheMoney := payoutMilli(order.Kind, feedPriceMilli(order.Strike), feedPriceMilli(settlePrice)); inTheMoney {
		payout = xtypes.ShareAmount(uint64(order.Position) * milli / 1000)
		if payout > order.Underlying {
			payout = order.Underlying
		}
		if err := o.ledger.CreditLiquid(order.Owner, xtypes.NewAsset(payout, order.UnderlyingAsset)); err != nil {
			return err
		}
	}
	if remainder := order.Underlying - payout; remainder > 0 {
		if err := o.ledger.CreditLiquid(order.Owner, xtypes.NewAsset(remainder, order.UnderlyingAsset)); err != nil {
			return err
		}
	}
	o.orders.Remove(order)
	return nil
}

// Close lets the owner unwind the position early, before expiration: the
// option-asset debt is repaid in full and the entire locked underlying is
// returned, with no payout computed.
func (o *OptionOrders) Close(order *OptionOrder) error {
	if err := o.ledger.DebitLiquid(order.Owner, xtypes.NewAsset(order.Position, order.OptionAsset)); err != nil {
		return err
	}
	optionAsset, err := o.registry.BySymbol(order.OptionAsset)
	if err != nil {
		return err
	}
	if err := o.registry.Reserve(optionAsset, order.Position); err != nil {
		return err
	}
	if err := o.ledger.CreditLiquid(order.Owner, xtypes.NewAsset(order.Underlying, order.UnderlyingAsset)); err != nil {
		return err
	}
	o.orders.Remove(order)
	return nil
}

// GetByUUID looks up an open option order by its spec.md §3.2 order id.
func (o *OptionOrders) GetByUUID(orderUUID string) (*OptionOrder, error) {
	return o.orders.GetByIndex("by_uuid", orderUUID)
}

// ForOptionAsset returns every open option order against optionAsset.
func (o *OptionOrders) ForOptionAsset(optionAsset xtypes.Symbol) []*OptionOrder {
	return o.orders.ListByIndex("by_option_asset", string(optionAsset))
}
