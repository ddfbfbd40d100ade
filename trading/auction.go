package trading

import (
	"sort"

	"github.com/google/uuid"

	"nodechain/assets"
	"nodechain/chainerr"
	"nodechain/objectstore"
	"nodechain/xtypes"
)

// AuctionOrder rests until the market's next daily clearing or its own
// expiration, whichever comes first (spec.md §4.6.3). Unlike a LimitOrder
// it never matches immediately on Place; it only ever fills during
// Auctions.ClearMarket. OrderUUID is the order id spec.md §3.2 names for
// auction orders.
type AuctionOrder struct {
	objectstore.Base
	OrderUUID  string
	Seller     xtypes.AccountName
	SellSymbol xtypes.Symbol
	ForSale    xtypes.ShareAmount
	LimitPrice xtypes.Price // Base=SellSymbol; worst rate this order will accept
	Expiration xtypes.TimePoint
}

// Auctions owns every resting auction order across every market.
type Auctions struct {
	orders *objectstore.Store[AuctionOrder]
	ledger *assets.Ledger
}

func NewAuctions(db *objectstore.Database, ledger *assets.Ledger) *Auctions {
	a := &Auctions{ledger: ledger}
	a.orders = objectstore.NewStore[AuctionOrder](db, "auction_order", func(o *AuctionOrder) uint64 { return o.ID }).
		WithIndex("by_market", func(o *AuctionOrder) (string, bool) { return marketKey(o.SellSymbol, o.LimitPrice.Quote.Symbol), true }).
		WithIndex("by_seller", func(o *AuctionOrder) (string, bool) { return string(o.Seller), true }).
		WithUniqueIndex("by_uuid", func(o *AuctionOrder) (string, bool) { return o.OrderUUID, true })
	return a
}

// Place reserves sell from the seller's liquid balance and queues the
// order for the market's next clearing (spec.md §4.6.3).
func (a *Auctions) Place(seller xtypes.AccountName, sell xtypes.Asset, limitPrice xtypes.Price, expiration xtypes.TimePoint) (*AuctionOrder, error) {
	if sell.Amount <= 0 {
		return nil, chainerr.New(chainerr.InvariantViolation, "trading: sell amount must be positive")
	}
	if limitPrice.IsNull() || limitPrice.Base.Symbol != sell.Symbol {
		return nil, chainerr.New(chainerr.MismatchedSymbols, "trading: auction order price base must match sell symbol")
	}
	if err := a.ledger.DebitLiquid(seller, sell); err != nil {
		return nil, err
	}
	return a.orders.Create(
		func(o *AuctionOrder, id uint64) { o.ID = id },
		func(o *AuctionOrder) {
			o.OrderUUID = uuid.New().String()
			o.Seller = seller
			o.SellSymbol = sell.Symbol
			o.ForSale = sell.Amount
			o.LimitPrice = limitPrice
			o.Expiration = expiration
		})
}

// Cancel removes a still-queued order and refunds its reserved balance.
// orderUUID is the order's spec.md §3.2 business-facing id.
func (a *Auctions) Cancel(seller xtypes.AccountName, orderUUID string) error {
	o, err := a.orders.GetByIndex("by_uuid", orderUUID)
	if err != nil {
		return err
	}
	if o.Seller != seller {
		return chainerr.New(chainerr.AuthorityInsufficient, "trading: only the order's seller may cancel it")
	}
	if err := a.ledger.CreditLiquid(seller, xtypes.NewAsset(o.ForSale, o.SellSymbol)); err != nil {
		return err
	}
	a.orders.Remove(o)
	return nil
}

// ExpireOrders cancels and refunds every queued order whose expiration has
// passed without the market having cleared (spec.md §4.6.3 "non-crossable
// orders remain until expiration").
func (a *Auctions) ExpireOrders(now xtypes.TimePoint) error {
	for _, o := range a.orders.All() {
		if o.Expiration != 0 && now >= o.Expiration {
			if err := a.ledger.CreditLiquid(o.Seller, xtypes.NewAsset(o.ForSale, o.SellSymbol)); err != nil {
				return err
			}
			a.orders.Remove(o)
		}
	}
	return nil
}

// ClearMarket's asks and bids slices (auctionLeg values) hold one market's
// two order flows, both expressed in units of the "ask" symbol (the symbol
// asks sell and bids buy), with price as quote-per-base scaled by priceScale.
const priceScale = 1_000_000

type auctionLeg struct {
	order       *AuctionOrder
	quantity    xtypes.ShareAmount // in the ask symbol
	priceMilli  uint64             // quote-per-ask-symbol, scaled by priceScale
}

func milliRatio(p xtypes.Price) uint64 {
	if p.Base.Amount <= 0 {
		return 0
	}
	return uint64(p.Quote.Amount) * priceScale / uint64(p.Base.Amount)
}

// ClearAllMarkets runs ClearMarket once per distinct market currently
// carrying a resting order (spec.md §4.7 "Auction clearing | daily |
// single-price auction clearing across every market").
func (a *Auctions) ClearAllMarkets() error {
	seen := make(map[string][2]xtypes.Symbol)
	for _, o := range a.orders.All() {
		key := marketKey(o.SellSymbol, o.LimitPrice.Quote.Symbol)
		if _, ok := seen[key]; !ok {
			seen[key] = [2]xtypes.Symbol{o.SellSymbol, o.LimitPrice.Quote.Symbol}
		}
	}
	for _, pair := range seen {
		if err := a.ClearMarket(pair[0], pair[1]); err != nil {
			return err
		}
	}
	return nil
}

// ClearMarket runs the once-daily single-price auction clearing for the
// market between symbolA and symbolB (spec.md §4.6.3): every resting order
// is sorted by limit price, the uniform clearing price that maximizes
// matched volume is computed, and every crossable order fills at that
// price simultaneously. Orders that do not cross remain queued.
func (a *Auctions) ClearMarket(symbolA, symbolB xtypes.Symbol) error {
	resting := a.orders.ListByIndex("by_market", marketKey(symbolA, symbolB))
	if len(resting) == 0 {
		return nil
	}

	var asks, bids []auctionLeg
	for _, o := range resting {
		if o.SellSymbol == symbolA {
			// Ask: sells A for B, won't accept less than LimitPrice (A base).
			asks = append(asks, auctionLeg{order: o, quantity: o.ForSale, priceMilli: milliRatio(o.LimitPrice)})
		} else {
			// Bid: sells B for A; expressed in A terms, it demands at most
			// milliRatio(LimitPrice.Invert()) units of B per unit of A.
			inv := o.LimitPrice.Invert()
			price := milliRatio(inv)
			if price == 0 {
				continue
			}
			qtyA := xtypes.ShareAmount(uint64(o.ForSale) * priceScale / price)
			bids = append(bids, auctionLeg{order: o, quantity: qtyA, priceMilli: price})
		}
	}
	if len(asks) == 0 || len(bids) == 0 {
		return nil
	}

	sort.Slice(asks, func(i, j int) bool { return asks[i].priceMilli < asks[j].priceMilli })
	sort.Slice(bids, func(i, j int) bool { return bids[i].priceMilli > bids[j].priceMilli })

	// Merge-walk both legs like two sorted runs, consuming whichever side
	// has less quantity remaining at each step, until the next ask would
	// price above the next bid. The last ask price touched is the uniform
	// clearing price, and the running total is the matched volume
	// (spec.md §4.6.3).
	i, j := 0, 0
	remAsk, remBid := asks[0].quantity, bids[0].quantity
	var matchedVolume xtypes.ShareAmount
	clearingMilli := uint64(0)
	for i < len(asks) && j < len(bids) {
		if asks[i].priceMilli > bids[j].priceMilli {
			break
		}
		clearingMilli = asks[i].priceMilli
		step := remAsk
		if remBid < step {
			step = remBid
		}
		matchedVolume += step
		remAsk -= step
		remBid -= step
		if remAsk == 0 {
			i++
			if i < len(asks) {
				remAsk = asks[i].quantity
			}
		}
		if remBid == 0 {
			j++
			if j < len(bids) {
				remBid = bids[j].quantity
			}
		}
	}
	if clearingMilli == 0 || matchedVolume <= 0 {
		return nil
	}
	crossAsk, crossBid := i, j
	if crossAsk >= len(asks) {
		crossAsk = len(asks) - 1
	}
	if crossBid >= len(bids) {
		crossBid = len(bids) - 1
	}

	return a.settleAtClearingPrice(asks[:crossAsk+1], bids[:crossBid+1], matchedVolume, clearingMilli, symbolB)
}

// settleAtClearingPrice fills every crossing ask and bid up to matchedVolume
// units of symbolA at clearingMilli units of symbolB per unit of symbolA and
// removes orders that fill completely; a partly filled order stays queued
// with its unfilled remainder (settleLeg refunds one below minOrderSize).
func (a *Auctions) settleAtClearingPrice(asks, bids []auctionLeg, matchedVolume xtypes.ShareAmount, clearingMilli uint64, symbolB xtypes.Symbol) error {
	remaining := matchedVolume
	for _, leg := range asks {
		if remaining <= 0 {
			break
		}
		fillA := leg.quantity
		if fillA > remaining {
			fillA = remaining
		}
		payB := xtypes.ShareAmount(uint64(fillA) * clearingMilli / priceScale)
		if err := a.ledger.CreditLiquid(leg.order.Seller, xtypes.NewAsset(payB, symbolB)); err != nil {
			return err
		}
		if err := a.settleLeg(leg, fillA); err != nil {
			return err
		}
		remaining -= fillA
	}

	remaining = matchedVolume
	for _, leg := range bids {
		if remaining <= 0 {
			break
		}
		fillA := leg.quantity
		if fillA > remaining {
			fillA = remaining
		}
		payA := fillA
		if err := a.ledger.CreditLiquid(leg.order.Seller, xtypes.NewAsset(payA, leg.order.LimitPrice.Quote.Symbol)); err != nil {
			return err
		}
		spendB := xtypes.ShareAmount(uint64(fillA) * clearingMilli / priceScale)
		if err := a.settleLeg(leg, spendB); err != nil {
			return err
		}
		remaining -= fillA
	}
	return nil
}

// settleLeg reduces order's resting balance by consumed (in its own
// SellSymbol units) and removes it once fully spent, refunding any leftover
// dust below minOrderSize the same way the limit-order book does.
func (a *Auctions) settleLeg(leg auctionLeg, consumed xtypes.ShareAmount) error {
	o := leg.order
	if consumed >= o.ForSale {
		a.orders.Remove(o)
		return nil
	}
	if err := a.orders.Modify(o, func(o *AuctionOrder) { o.ForSale -= consumed }); err != nil {
		return err
	}
	if o.ForSale < minOrderSize {
		if err := a.ledger.CreditLiquid(o.Seller, xtypes.NewAsset(o.ForSale, o.SellSymbol)); err != nil {
			return err
		}
		a.orders.Remove(o)
	}
	return nil
}
