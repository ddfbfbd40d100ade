// Package trading implements the matching engines spec.md §4.5 describes:
// limit orders, margin orders, auction orders, call orders, option orders,
// constant-product AMM liquidity pools, interest-bearing credit pools, and
// force/global settlement. Every engine shares the same account-balance
// ledger (assets.Ledger) so that a fill in one market is indistinguishable
// from a direct transfer to the rest of the chain.
//
// Grounded on the teacher's core/liquidity_pools.go (constant-product pool
// lifecycle, fee-bps accounting) and core/loanpool.go (interest-bearing
// pool share accounting), generalized to limit-order book matching, which
// the teacher does not implement. The engines hold no mutex and do no
// logging of their own.
package trading

import (
	"sort"

	"github.com/google/uuid"

	"nodechain/assets"
	"nodechain/chainerr"
	"nodechain/objectstore"
	"nodechain/xtypes"
)

// LimitOrder rests in the book until fully filled, cancelled, or expired
// (spec.md §3.2, §4.5). Price.Base is always SellSymbol; the order will
// not accept a rate worse than Price (quote received per base sold).
// OrderUUID is the order id spec.md §3.2 names for limit orders; Base.ID
// is the object store's own monotonic key and is never exposed off-chain.
type LimitOrder struct {
	objectstore.Base
	OrderUUID  string
	Seller     xtypes.AccountName
	SellSymbol xtypes.Symbol
	ForSale    xtypes.ShareAmount
	Price      xtypes.Price
	Expiration xtypes.TimePoint
}

// minOrderSize is the "cull small orders" threshold (spec.md §4.5): resting
// remainders too small to ever fill usefully are removed outright rather
// than left to clutter the book.
const minOrderSize = xtypes.ShareAmount(1)

func marketKey(a, b xtypes.Symbol) string {
	if a < b {
		return string(a) + "/" + string(b)
	}
	return string(b) + "/" + string(a)
}

// Book owns every resting limit order.
type Book struct {
	orders  *objectstore.Store[LimitOrder]
	ledger  *assets.Ledger
	fees    *assets.Registry
}

func NewBook(db *objectstore.Database, ledger *assets.Ledger, fees *assets.Registry) *Book {
	b := &Book{ledger: ledger, fees: fees}
	b.orders = objectstore.NewStore[LimitOrder](db, "limit_order", func(o *LimitOrder) uint64 { return o.ID }).
		WithIndex("by_market", func(o *LimitOrder) (string, bool) { return marketKey(o.SellSymbol, o.Price.Quote.Symbol), true }).
		WithIndex("by_seller", func(o *LimitOrder) (string, bool) { return string(o.Seller), true }).
		WithUniqueIndex("by_uuid", func(o *LimitOrder) (string, bool) { return o.OrderUUID, true })
	return b
}

// crosses reports whether a resting order paying rate `resting` (selling
// quoteSymbol for baseSymbol) can satisfy an incoming order that demands
// at least `incoming` (selling baseSymbol for quoteSymbol).
func crosses(incoming, resting xtypes.Price) bool {
	restingInverted := resting.Invert()
	// restingInverted is now in incoming's orientation: compare quote/base
	// ratios via cross-multiplication to avoid floating point.
	lhs := int64(restingInverted.Quote.Amount) * int64(incoming.Base.Amount)
	rhs := int64(incoming.Quote.Amount) * int64(restingInverted.Base.Amount)
	return lhs >= rhs
}

// Place submits a new limit order and immediately attempts to match it
// against the resting book, in price-then-time priority (spec.md §4.5
// place/match). Any unfilled remainder rests in the book unless it is
// smaller than minOrderSize, in which case it is discarded.
func (b *Book) Place(seller xtypes.AccountName, sell xtypes.Asset, price xtypes.Price, expiration xtypes.TimePoint) (*LimitOrder, error) {
	if sell.Amount <= 0 {
		return nil, chainerr.New(chainerr.InvariantViolation, "trading: sell amount must be positive")
	}
	if price.IsNull() || price.Base.Symbol != sell.Symbol {
		return nil, chainerr.New(chainerr.MismatchedSymbols, "trading: order price base must match sell symbol")
	}
	if err := b.ledger.DebitLiquid(seller, sell); err != nil {
		return nil, err
	}

	order, err := b.orders.Create(
		func(o *LimitOrder, id uint64) { o.ID = id },
		func(o *LimitOrder) {
			o.OrderUUID = uuid.New().String()
			o.Seller = seller
			o.SellSymbol = sell.Symbol
			o.ForSale = sell.Amount
			o.Price = price
			o.Expiration = expiration
		})
	if err != nil {
		return nil, err
	}

	if err := b.match(order); err != nil {
		return nil, err
	}
	if order.ForSale > 0 && order.ForSale < minOrderSize {
		if err := b.ledger.CreditLiquid(order.Seller, xtypes.NewAsset(order.ForSale, order.SellSymbol)); err != nil {
			return nil, err
		}
		b.orders.Remove(order)
	}
	return order, nil
}

// match repeatedly crosses `incoming` against the best opposing resting
// order until it is exhausted or no further crossing order remains.
func (b *Book) match(incoming *LimitOrder) error {
	for incoming.ForSale > 0 {
		resting := b.bestOpposing(incoming)
		if resting == nil || !crosses(incoming.Price, resting.Price) {
			return nil
		}
		if err := b.fill(incoming, resting); err != nil {
			return err
		}
	}
	return nil
}

// bestOpposing returns the highest-priority resting order on the other
// side of incoming's market: best price first, earliest id breaking ties
// (spec.md §4.5 price-time priority).
func (b *Book) bestOpposing(incoming *LimitOrder) *LimitOrder {
	candidates := b.orders.ListByIndex("by_market", marketKey(incoming.SellSymbol, incoming.Price.Quote.Symbol))
	var best *LimitOrder
	for _, o := range candidates {
		if o.ID == incoming.ID || o.SellSymbol != incoming.Price.Quote.Symbol {
			continue
		}
		if best == nil || betterForMaker(o.Price, best.Price) || (pricesEqual(o.Price, best.Price) && o.ID < best.ID) {
			best = o
		}
	}
	return best
}

// betterForMaker reports whether price a is more aggressive (more likely
// to cross) than price b, both expressed as Base(sell)/Quote(receive).
func betterForMaker(a, b xtypes.Price) bool {
	lhs := int64(a.Quote.Amount) * int64(b.Base.Amount)
	rhs := int64(b.Quote.Amount) * int64(a.Base.Amount)
	return lhs < rhs
}

func pricesEqual(a, b xtypes.Price) bool {
	return int64(a.Quote.Amount)*int64(b.Base.Amount) == int64(b.Quote.Amount)*int64(a.Base.Amount)
}

// fill executes one match between incoming and resting at the resting
// (maker) order's price, crediting each seller with what they bought
// (spec.md §4.5: "trades execute at the older order's price").
func (b *Book) fill(incoming, resting *LimitOrder) error {
	restingSells := xtypes.NewAsset(resting.ForSale, resting.SellSymbol)
	maxFromResting, err := resting.Price.Mul(restingSells) // resting.SellSymbol -> incoming.SellSymbol, at resting's rate
	if err != nil {
		return err
	}

	fillIncomingSide := incoming.ForSale
	if maxFromResting.Amount < fillIncomingSide {
		fillIncomingSide = maxFromResting.Amount
	}
	if fillIncomingSide <= 0 {
		return nil
	}

	fillRestingSide, err := resting.Price.Invert().Mul(xtypes.NewAsset(fillIncomingSide, incoming.SellSymbol))
	if err != nil {
		return err
	}
	if fillRestingSide.Amount > resting.ForSale {
		fillRestingSide.Amount = resting.ForSale
	}

	if err := b.ledger.CreditLiquid(resting.Seller, xtypes.NewAsset(fillIncomingSide, incoming.SellSymbol)); err != nil {
		return err
	}
	if err := b.ledger.CreditLiquid(incoming.Seller, fillRestingSide); err != nil {
		return err
	}

	if err := b.orders.Modify(incoming, func(o *LimitOrder) { o.ForSale -= fillIncomingSide }); err != nil {
		return err
	}
	if err := b.orders.Modify(resting, func(o *LimitOrder) { o.ForSale -= fillRestingSide.Amount }); err != nil {
		return err
	}
	if resting.ForSale <= 0 {
		b.orders.Remove(resting)
	}
	return nil
}

// Cancel removes a still-open order and refunds its remaining balance.
// orderUUID is the order's spec.md §3.2 business-facing id, not the object
// store's internal Base.ID.
func (b *Book) Cancel(seller xtypes.AccountName, orderUUID string) error {
	o, err := b.orders.GetByIndex("by_uuid", orderUUID)
	if err != nil {
		return err
	}
	if o.Seller != seller {
		return chainerr.New(chainerr.AuthorityInsufficient, "trading: only the order's seller may cancel it")
	}
	if err := b.ledger.CreditLiquid(seller, xtypes.NewAsset(o.ForSale, o.SellSymbol)); err != nil {
		return err
	}
	b.orders.Remove(o)
	return nil
}

// ExpireOrders cancels and refunds every order whose expiration has
// passed (spec.md §4.4 maintenance interval duty).
func (b *Book) ExpireOrders(now xtypes.TimePoint) error {
	for _, o := range b.orders.All() {
		if o.Expiration != 0 && now >= o.Expiration {
			if err := b.ledger.CreditLiquid(o.Seller, xtypes.NewAsset(o.ForSale, o.SellSymbol)); err != nil {
				return err
			}
			b.orders.Remove(o)
		}
	}
	return nil
}

// OrdersBySeller returns every open order belonging to seller, ordered by
// id (deterministic, spec.md §4.5).
func (b *Book) OrdersBySeller(seller xtypes.AccountName) []*LimitOrder {
	orders := b.orders.ListByIndex("by_seller", string(seller))
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders
}
