// Package assets implements the multi-kind asset registry and account
// balance subsystem spec.md §3.2/§4.3 describe: asset creation and issuance,
// the dynamic supply/fee-pool data every asset carries, bitasset price-feed
// aggregation, and the liquid/staked/savings/reward/delegated balance model
// with its installment and withdrawal-delay queues.
//
// Grounded on the teacher's core/common_structs.go (Account/Token shape)
// and core/coin.go (supply accounting), generalized to the asset-kind
// taxonomy and balance categories spec.md §3.2 names.
package assets

import (
	"fmt"

	"nodechain/chainerr"
	"nodechain/objectstore"
	"nodechain/xtypes"
)

// Kind enumerates the asset kinds spec.md §3.2 lists.
type Kind uint8

const (
	KindStandard Kind = iota
	KindCurrency
	KindEquity
	KindCredit
	KindBitasset
	KindLiquidityPoolAsset
	KindCreditPoolAsset
)

// Asset is one asset's immutable-identity metadata plus its mutable issuer
// controls (spec.md §3.2).
type Asset struct {
	objectstore.Base
	Symbol            xtypes.Symbol
	Kind              Kind
	Issuer            xtypes.AccountName
	Precision         uint8
	MaxSupply         xtypes.ShareAmount
	MarketFeePercent  uint16 // basis points taken on market trades, spec.md §4.3
	MaxMarketFee      xtypes.ShareAmount
	IsMarketIssuedOnly bool // true for BITASSET/CREDIT_POOL_ASSET/LIQUIDITY_POOL_ASSET: cannot be issued directly
}

// DynamicData is the mutable, frequently-updated half of an asset's state
// (spec.md §3.2): split out from Asset so that supply changes don't
// reindex the (rarely modified) symbol/issuer fields.
type DynamicData struct {
	objectstore.Base
	AssetID       uint64
	CurrentSupply xtypes.ShareAmount
	FeePool       xtypes.ShareAmount // core-asset fees collected, spec.md §4.3 claim_fees
}

// FeedEntry is one price-feed publication (spec.md §4.5).
type FeedEntry struct {
	Publisher          xtypes.AccountName
	SettlementPrice    xtypes.Price
	MaintenanceCollateralRatio uint32 // milli-ratio units, e.g. 1750 = 175%
	MaxShortSqueezeRatio       uint32
	PublishedAt        xtypes.TimePoint
}

// BitassetData is the market-issued-asset state a BITASSET kind carries
// (spec.md §3.2, §4.5): the currently aggregated feed, the raw per-producer
// feeds it was computed from, and global settlement state.
type BitassetData struct {
	objectstore.Base
	AssetID           uint64
	BackingAssetID    uint64
	FeedLifetime      xtypes.TimePoint // duration, not a point; feeds older than this are excluded
	MinimumFeeds      uint32
	Feeds             map[xtypes.AccountName]FeedEntry
	CurrentFeed       FeedEntry
	IsPredictionMarket bool
	HasSettlement     bool
	SettlementPrice   xtypes.Price
	SettlementFund    xtypes.ShareAmount
}

// Registry owns every Asset and its DynamicData, keyed by symbol.
type Registry struct {
	db       *objectstore.Database
	assets   *objectstore.Store[Asset]
	dynamic  *objectstore.Store[DynamicData]
	bitasset *objectstore.Store[BitassetData]
}

func NewRegistry(db *objectstore.Database) *Registry {
	r := &Registry{db: db}
	r.assets = objectstore.NewStore[Asset](db, "asset", func(a *Asset) uint64 { return a.ID }).
		WithUniqueIndex("by_symbol", func(a *Asset) (string, bool) { return string(a.Symbol), true })
	r.dynamic = objectstore.NewStore[DynamicData](db, "asset_dynamic_data", func(d *DynamicData) uint64 { return d.ID }).
		WithUniqueIndex("by_asset", func(d *DynamicData) (string, bool) { return fmt.Sprint(d.AssetID), true })
	r.bitasset = objectstore.NewStore[BitassetData](db, "bitasset_data", func(b *BitassetData) uint64 { return b.ID }).
		WithUniqueIndex("by_asset", func(b *BitassetData) (string, bool) { return fmt.Sprint(b.AssetID), true })
	return r
}

// Create registers a new asset (spec.md §4.3 create_asset). issuer must
// sign the operation; that is enforced by the evaluator, not here.
func (r *Registry) Create(symbol xtypes.Symbol, kind Kind, issuer xtypes.AccountName, precision uint8, maxSupply xtypes.ShareAmount, marketFeeBps uint16) (*Asset, error) {
	if !symbol.Valid() {
		return nil, chainerr.New(chainerr.InvalidName, "assets: invalid symbol")
	}
	if maxSupply <= 0 {
		return nil, chainerr.New(chainerr.InvariantViolation, "assets: max_supply must be positive")
	}
	if _, ok := r.assets.FindByIndex("by_symbol", string(symbol)); ok {
		return nil, chainerr.New(chainerr.SymbolInUse, string(symbol))
	}

	a, err := r.assets.Create(
		func(a *Asset, id uint64) { a.ID = id },
		func(a *Asset) {
			a.Symbol = symbol
			a.Kind = kind
			a.Issuer = issuer
			a.Precision = precision
			a.MaxSupply = maxSupply
			a.MarketFeePercent = marketFeeBps
			a.IsMarketIssuedOnly = kind == KindBitasset || kind == KindCreditPoolAsset || kind == KindLiquidityPoolAsset
		})
	if err != nil {
		return nil, err
	}

	if _, err := r.dynamic.Create(
		func(d *DynamicData, id uint64) { d.ID = id },
		func(d *DynamicData) { d.AssetID = a.ID }); err != nil {
		return nil, err
	}

	if kind == KindBitasset {
		if _, err := r.bitasset.Create(
			func(b *BitassetData, id uint64) { b.ID = id },
			func(b *BitassetData) {
				b.AssetID = a.ID
				b.MinimumFeeds = 1
				b.Feeds = make(map[xtypes.AccountName]FeedEntry)
			}); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (r *Registry) BySymbol(symbol xtypes.Symbol) (*Asset, error) {
	return r.assets.GetByIndex("by_symbol", string(symbol))
}

func (r *Registry) DynamicDataOf(assetID uint64) (*DynamicData, error) {
	return r.dynamic.GetByIndex("by_asset", fmt.Sprint(assetID))
}

func (r *Registry) BitassetDataOf(assetID uint64) (*BitassetData, error) {
	return r.bitasset.GetByIndex("by_asset", fmt.Sprint(assetID))
}

// UpdateIssuer reassigns control of an asset (spec.md §4.3 update_issuer).
func (r *Registry) UpdateIssuer(a *Asset, newIssuer xtypes.AccountName) error {
	return r.assets.Modify(a, func(a *Asset) { a.Issuer = newIssuer })
}

// UpdateMarketFee changes the market fee an asset's trades pay its issuer.
func (r *Registry) UpdateMarketFee(a *Asset, bps uint16) error {
	return r.assets.Modify(a, func(a *Asset) { a.MarketFeePercent = bps })
}

// Issue increases an asset's current supply (spec.md §4.3 issue_asset).
// Market-issued kinds (BITASSET, *_POOL_ASSET) can never be issued
// directly -- they are minted only by the trading engine.
func (r *Registry) Issue(a *Asset, amount xtypes.ShareAmount) error {
	if a.IsMarketIssuedOnly {
		return chainerr.New(chainerr.InvariantViolation, "assets: market-issued asset cannot be issued directly")
	}
	dd, err := r.DynamicDataOf(a.ID)
	if err != nil {
		return err
	}
	if dd.CurrentSupply+amount > a.MaxSupply {
		return chainerr.New(chainerr.InvariantViolation, "assets: issue would exceed max_supply")
	}
	return r.dynamic.Modify(dd, func(d *DynamicData) { d.CurrentSupply += amount })
}

// Reserve permanently destroys supply (spec.md §4.3 reserve_asset).
func (r *Registry) Reserve(a *Asset, amount xtypes.ShareAmount) error {
	dd, err := r.DynamicDataOf(a.ID)
	if err != nil {
		return err
	}
	if amount > dd.CurrentSupply {
		return chainerr.New(chainerr.InsufficientBalance, "assets: reserve exceeds current supply")
	}
	return r.dynamic.Modify(dd, func(d *DynamicData) { d.CurrentSupply -= amount })
}

// ClaimFees withdraws accumulated market fees from the fee pool to the
// issuer's balance (spec.md §4.3 claim_fees); the caller is responsible for
// crediting the issuer's balance with the returned amount.
func (r *Registry) ClaimFees(a *Asset, amount xtypes.ShareAmount) (xtypes.ShareAmount, error) {
	dd, err := r.DynamicDataOf(a.ID)
	if err != nil {
		return 0, err
	}
	if amount > dd.FeePool {
		return 0, chainerr.New(chainerr.InsufficientBalance, "assets: claim exceeds fee pool")
	}
	if err := r.dynamic.Modify(dd, func(d *DynamicData) { d.FeePool -= amount }); err != nil {
		return 0, err
	}
	return amount, nil
}

// CollectMarketFee adds a market-trade fee to an asset's fee pool.
func (r *Registry) CollectMarketFee(a *Asset, amount xtypes.ShareAmount) error {
	dd, err := r.DynamicDataOf(a.ID)
	if err != nil {
		return err
	}
	return r.dynamic.Modify(dd, func(d *DynamicData) { d.FeePool += amount })
}

// PublishFeed records a single producer's price feed and recomputes the
// asset's aggregated current feed as the weight-ordered median (spec.md
// §4.5): the median of the surviving feeds' settlement price, maintenance
// collateral ratio, and max short-squeeze ratio are each taken
// independently, matching the historical Graphene feed-median algorithm.
func (r *Registry) PublishFeed(b *BitassetData, entry FeedEntry) error {
	return r.bitasset.Modify(b, func(b *BitassetData) {
		if b.Feeds == nil {
			b.Feeds = make(map[xtypes.AccountName]FeedEntry)
		}
		b.Feeds[entry.Publisher] = entry
		b.CurrentFeed = medianFeed(b.Feeds, entry.PublishedAt, b.FeedLifetime, b.MinimumFeeds)
	})
}

// MarkGloballySettled records a bitasset's irreversible transition into
// global settlement (spec.md §4.6.7): every call order's collateral has
// already been swept into fund by the caller, and holders henceforth
// redeem debt for a proportional share of it instead of trading it.
func (r *Registry) MarkGloballySettled(b *BitassetData, settlePrice xtypes.Price, fund xtypes.ShareAmount) error {
	return r.bitasset.Modify(b, func(b *BitassetData) {
		b.HasSettlement = true
		b.SettlementPrice = settlePrice
		b.SettlementFund = fund
	})
}

// DrawSettlementFund withdraws amount from a globally settled bitasset's
// settlement fund as part of a holder's redemption.
func (r *Registry) DrawSettlementFund(b *BitassetData, amount xtypes.ShareAmount) error {
	if amount > b.SettlementFund {
		return chainerr.New(chainerr.InsufficientBalance, "assets: settlement fund draw exceeds fund balance")
	}
	return r.bitasset.Modify(b, func(b *BitassetData) { b.SettlementFund -= amount })
}

func medianFeed(feeds map[xtypes.AccountName]FeedEntry, now, lifetime xtypes.TimePoint, minimumFeeds uint32) FeedEntry {
	var live []FeedEntry
	for _, f := range feeds {
		if now-f.PublishedAt <= lifetime {
			live = append(live, f)
		}
	}
	if uint32(len(live)) < minimumFeeds || len(live) == 0 {
		return FeedEntry{}
	}

	prices := make([]xtypes.Price, len(live))
	mcrs := make([]uint32, len(live))
	mssrs := make([]uint32, len(live))
	for i, f := range live {
		prices[i] = f.SettlementPrice
		mcrs[i] = f.MaintenanceCollateralRatio
		mssrs[i] = f.MaxShortSqueezeRatio
	}
	sortPricesByRatio(prices)
	sortUint32(mcrs)
	sortUint32(mssrs)

	mid := len(live) / 2
	return FeedEntry{
		SettlementPrice:            prices[mid],
		MaintenanceCollateralRatio: mcrs[mid],
		MaxShortSqueezeRatio:       mssrs[mid],
		PublishedAt:                now,
	}
}

func sortPricesByRatio(p []xtypes.Price) {
	// Insertion sort by base/quote cross-multiplication; the feed-count is
	// always small (one entry per active witness/producer).
	for i := 1; i < len(p); i++ {
		for j := i; j > 0 && priceLess(p[j], p[j-1]); j-- {
			p[j], p[j-1] = p[j-1], p[j]
		}
	}
}

func priceLess(a, b xtypes.Price) bool {
	lhs := int64(a.Base.Amount) * int64(b.Quote.Amount)
	rhs := int64(b.Base.Amount) * int64(a.Quote.Amount)
	return lhs < rhs
}

func sortUint32(s []uint32) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
