package trading

import (
	"fmt"

	"nodechain/assets"
	"nodechain/chainerr"
	"nodechain/objectstore"
	"nodechain/xtypes"
)

// Pool is a constant-product (x*y=k) liquidity pool (spec.md §3.2, §4.5),
// grounded on the teacher's core/liquidity_pools.go Pool/AMM shape.
type Pool struct {
	objectstore.Base
	AssetA   xtypes.Symbol
	AssetB   xtypes.Symbol
	ShareAsset xtypes.Symbol // the LP token minted to liquidity providers
	BalanceA xtypes.ShareAmount
	BalanceB xtypes.ShareAmount
	FeeBps   uint16
}

// defaultPoolFeeBps mirrors the teacher's defaultFeeBps (30 bps = 0.30%).
const defaultPoolFeeBps = 30

// AMM owns every constant-product pool.
type AMM struct {
	pools   *objectstore.Store[Pool]
	ledger  *assets.Ledger
	issuer  *assets.Registry
}

func NewAMM(db *objectstore.Database, ledger *assets.Ledger, issuer *assets.Registry) *AMM {
	a := &AMM{ledger: ledger, issuer: issuer}
	a.pools = objectstore.NewStore[Pool](db, "liquidity_pool", func(p *Pool) uint64 { return p.ID }).
		WithUniqueIndex("by_pair", func(p *Pool) (string, bool) { return marketKey(p.AssetA, p.AssetB), true })
	return a
}

// CreatePool registers an empty pool for a new asset pair and its LP share
// asset (spec.md §4.5 create liquidity pool). feeBps of 0 selects the
// default 30 bps fee.
func (a *AMM) CreatePool(assetA, assetB xtypes.Symbol, feeBps uint16) (*Pool, error) {
	if assetA == assetB {
		return nil, chainerr.New(chainerr.MismatchedSymbols, "trading: pool requires two distinct assets")
	}
	if feeBps == 0 {
		feeBps = defaultPoolFeeBps
	}
	if _, ok := a.pools.FindByIndex("by_pair", marketKey(assetA, assetB)); ok {
		return nil, chainerr.New(chainerr.SymbolInUse, fmt.Sprintf("pool for %s/%s already exists", assetA, assetB))
	}
	shareSymbol := xtypes.LiquidityPoolSymbol(assetA, assetB)
	return a.pools.Create(
		func(p *Pool, id uint64) { p.ID = id },
		func(p *Pool) {
			p.AssetA = assetA
			p.AssetB = assetB
			p.ShareAsset = shareSymbol
			p.FeeBps = feeBps
		})
}

func (a *AMM) PoolFor(assetA, assetB xtypes.Symbol) (*Pool, error) {
	return a.pools.GetByIndex("by_pair", marketKey(assetA, assetB))
}

// approxSqrtShares computes the geometric-mean initial LP share count the
// same way the historical constant-product AMM design does: sqrt(a*b).
func approxSqrtShares(a, b xtypes.ShareAmount) xtypes.ShareAmount {
	prod := xtypes.U128FromUint64(uint64(a)).Mul64(uint64(b))
	return xtypes.ShareAmount(prod.ApproxSqrt())
}

// AddLiquidity deposits amtA and amtB (which must already be in the
// pool's ratio, or as close as the caller can manage) and mints LP shares
// proportional to the contribution (spec.md §4.5).
func (a *AMM) AddLiquidity(provider xtypes.AccountName, p *Pool, amtA, amtB xtypes.ShareAmount) (xtypes.ShareAmount, error) {
	if amtA <= 0 || amtB <= 0 {
		return 0, chainerr.New(chainerr.InvariantViolation, "trading: liquidity amounts must be positive")
	}
	if err := a.ledger.DebitLiquid(provider, xtypes.NewAsset(amtA, p.AssetA)); err != nil {
		return 0, err
	}
	if err := a.ledger.DebitLiquid(provider, xtypes.NewAsset(amtB, p.AssetB)); err != nil {
		_ = a.ledger.CreditLiquid(provider, xtypes.NewAsset(amtA, p.AssetA))
		return 0, err
	}

	var minted xtypes.ShareAmount
	shareAsset, err := a.issuer.BySymbol(p.ShareAsset)
	if err != nil {
		return 0, err
	}
	dd, err := a.issuer.DynamicDataOf(shareAsset.ID)
	if err != nil {
		return 0, err
	}
	if dd.CurrentSupply == 0 {
		minted = approxSqrtShares(amtA, amtB)
	} else {
		// Proportional mint: share of pool contributed, taking the
		// stricter (smaller) of the two sides to never dilute existing
		// providers (spec.md §4.5).
		mintedFromA := xtypes.ShareAmount(int64(amtA) * int64(dd.CurrentSupply) / int64(p.BalanceA))
		mintedFromB := xtypes.ShareAmount(int64(amtB) * int64(dd.CurrentSupply) / int64(p.BalanceB))
		if mintedFromA < mintedFromB {
			minted = mintedFromA
		} else {
			minted = mintedFromB
		}
	}
	if minted <= 0 {
		return 0, chainerr.New(chainerr.InvariantViolation, "trading: contribution too small to mint any shares")
	}

	if err := a.issuer.Issue(shareAsset, minted); err != nil {
		return 0, err
	}
	if err := a.ledger.CreditLiquid(provider, xtypes.NewAsset(minted, p.ShareAsset)); err != nil {
		return 0, err
	}
	if err := a.pools.Modify(p, func(p *Pool) { p.BalanceA += amtA; p.BalanceB += amtB }); err != nil {
		return 0, err
	}
	return minted, nil
}

// RemoveLiquidity burns LP shares and returns a proportional share of both
// pool balances (spec.md §4.5).
func (a *AMM) RemoveLiquidity(provider xtypes.AccountName, p *Pool, shares xtypes.ShareAmount) (xtypes.Asset, xtypes.Asset, error) {
	if shares <= 0 {
		return xtypes.Asset{}, xtypes.Asset{}, chainerr.New(chainerr.InvariantViolation, "trading: shares must be positive")
	}
	shareAsset, err := a.issuer.BySymbol(p.ShareAsset)
	if err != nil {
		return xtypes.Asset{}, xtypes.Asset{}, err
	}
	dd, err := a.issuer.DynamicDataOf(shareAsset.ID)
	if err != nil {
		return xtypes.Asset{}, xtypes.Asset{}, err
	}
	if shares > dd.CurrentSupply {
		return xtypes.Asset{}, xtypes.Asset{}, chainerr.New(chainerr.InvariantViolation, "trading: cannot remove more shares than exist")
	}

	if err := a.ledger.DebitLiquid(provider, xtypes.NewAsset(shares, p.ShareAsset)); err != nil {
		return xtypes.Asset{}, xtypes.Asset{}, err
	}
	if err := a.issuer.Reserve(shareAsset, shares); err != nil {
		return xtypes.Asset{}, xtypes.Asset{}, err
	}

	outA := xtypes.ShareAmount(int64(p.BalanceA) * int64(shares) / int64(dd.CurrentSupply))
	outB := xtypes.ShareAmount(int64(p.BalanceB) * int64(shares) / int64(dd.CurrentSupply))

	if err := a.pools.Modify(p, func(p *Pool) { p.BalanceA -= outA; p.BalanceB -= outB }); err != nil {
		return xtypes.Asset{}, xtypes.Asset{}, err
	}
	aOut := xtypes.NewAsset(outA, p.AssetA)
	bOut := xtypes.NewAsset(outB, p.AssetB)
	if err := a.ledger.CreditLiquid(provider, aOut); err != nil {
		return xtypes.Asset{}, xtypes.Asset{}, err
	}
	if err := a.ledger.CreditLiquid(provider, bOut); err != nil {
		return xtypes.Asset{}, xtypes.Asset{}, err
	}
	return aOut, bOut, nil
}

// Swap exchanges `in` for the other side of the pool using the constant-
// product formula, after deducting the pool's fee (spec.md §4.5). Returns
// the asset delivered to the trader.
func (a *AMM) Swap(trader xtypes.AccountName, p *Pool, in xtypes.Asset, minOut xtypes.ShareAmount) (xtypes.Asset, error) {
	var reserveIn, reserveOut *xtypes.ShareAmount
	var outSymbol xtypes.Symbol
	switch in.Symbol {
	case p.AssetA:
		reserveIn, reserveOut, outSymbol = &p.BalanceA, &p.BalanceB, p.AssetB
	case p.AssetB:
		reserveIn, reserveOut, outSymbol = &p.BalanceB, &p.BalanceA, p.AssetA
	default:
		return xtypes.Asset{}, chainerr.New(chainerr.MismatchedSymbols, "trading: asset not in this pool")
	}
	if in.Amount <= 0 || *reserveIn <= 0 || *reserveOut <= 0 {
		return xtypes.Asset{}, chainerr.New(chainerr.InvariantViolation, "trading: empty pool or non-positive swap amount")
	}

	feeAmount := int64(in.Amount) * int64(p.FeeBps) / 10_000
	inAfterFee := int64(in.Amount) - feeAmount

	// constant product: (reserveIn + inAfterFee) * (reserveOut - out) = reserveIn * reserveOut
	numerator := inAfterFee * int64(*reserveOut)
	denominator := int64(*reserveIn) + inAfterFee
	out := numerator / denominator
	if out <= 0 || xtypes.ShareAmount(out) < minOut {
		return xtypes.Asset{}, chainerr.New(chainerr.InvariantViolation, "trading: swap output below minimum")
	}

	if err := a.ledger.DebitLiquid(trader, in); err != nil {
		return xtypes.Asset{}, err
	}
	outAsset := xtypes.NewAsset(xtypes.ShareAmount(out), outSymbol)
	if err := a.ledger.CreditLiquid(trader, outAsset); err != nil {
		_ = a.ledger.CreditLiquid(trader, in)
		return xtypes.Asset{}, err
	}

	if err := a.pools.Modify(p, func(p *Pool) {
		*reserveIn += xtypes.ShareAmount(in.Amount)
		*reserveOut -= xtypes.ShareAmount(out)
	}); err != nil {
		return xtypes.Asset{}, err
	}
	return outAsset, nil
}
