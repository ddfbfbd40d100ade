package trading

import (
	"nodechain/assets"
	"nodechain/chainerr"
	"nodechain/objectstore"
	"nodechain/xtypes"
)

// CreditPool is an interest-bearing lending pool for a single base asset
// (spec.md §3.2, §4.5), grounded on the teacher's core/loanpool.go share
// accounting. Lenders deposit the base asset and receive pool shares whose
// redemption price monotonically increases as borrowers repay interest;
// it can never decrease, matching spec.md Invariant (redemption price is
// monotonic non-decreasing).
type CreditPool struct {
	objectstore.Base
	BaseAsset    xtypes.Symbol
	ShareAsset   xtypes.Symbol
	TotalBalance xtypes.ShareAmount // base asset held, available to borrow or redeem
	TotalBorrowed xtypes.ShareAmount
	APRBps       uint32 // annual borrow interest rate, basis points
}

// CreditPools owns every credit pool.
type CreditPools struct {
	pools  *objectstore.Store[CreditPool]
	ledger *assets.Ledger
	issuer *assets.Registry
}

func NewCreditPools(db *objectstore.Database, ledger *assets.Ledger, issuer *assets.Registry) *CreditPools {
	c := &CreditPools{ledger: ledger, issuer: issuer}
	c.pools = objectstore.NewStore[CreditPool](db, "credit_pool", func(p *CreditPool) uint64 { return p.ID }).
		WithUniqueIndex("by_base", func(p *CreditPool) (string, bool) { return string(p.BaseAsset), true })
	return c
}

// CreatePool opens a new credit pool for baseAsset (spec.md §4.5).
func (c *CreditPools) CreatePool(baseAsset xtypes.Symbol, aprBps uint32) (*CreditPool, error) {
	if _, ok := c.pools.FindByIndex("by_base", string(baseAsset)); ok {
		return nil, chainerr.New(chainerr.SymbolInUse, "trading: credit pool for this asset already exists")
	}
	shareSymbol := xtypes.CreditPoolSymbol(baseAsset)
	return c.pools.Create(
		func(p *CreditPool, id uint64) { p.ID = id },
		func(p *CreditPool) {
			p.BaseAsset = baseAsset
			p.ShareAsset = shareSymbol
			p.APRBps = aprBps
		})
}

func (c *CreditPools) PoolFor(baseAsset xtypes.Symbol) (*CreditPool, error) {
	return c.pools.GetByIndex("by_base", string(baseAsset))
}

// redemptionPriceMilli returns the current base-asset-per-share rate,
// scaled by 1000 for integer precision; it equals 1000 (parity) for an
// empty pool and only ever grows from there (spec.md Invariant 4 /
// xtypes.MinNetworkCreditPrice, resolving Open Question 4).
func redemptionPriceMilli(pool *CreditPool, shareSupply xtypes.ShareAmount) uint64 {
	if shareSupply <= 0 {
		return 1000
	}
	return uint64(pool.TotalBalance) * 1000 / uint64(shareSupply)
}

// Lend deposits baseAsset and mints pool shares at the current redemption
// price (spec.md §4.5 lend).
func (c *CreditPools) Lend(lender xtypes.AccountName, pool *CreditPool, amount xtypes.ShareAmount) (xtypes.ShareAmount, error) {
	if amount <= 0 {
		return 0, chainerr.New(chainerr.InvariantViolation, "trading: lend amount must be positive")
	}
	if err := c.ledger.DebitLiquid(lender, xtypes.NewAsset(amount, pool.BaseAsset)); err != nil {
		return 0, err
	}

	shareAsset, err := c.issuer.BySymbol(pool.ShareAsset)
	if err != nil {
		return 0, err
	}
	dd, err := c.issuer.DynamicDataOf(shareAsset.ID)
	if err != nil {
		return 0, err
	}
	price := redemptionPriceMilli(pool, dd.CurrentSupply)
	minted := xtypes.ShareAmount(uint64(amount) * 1000 / price)
	if minted <= 0 {
		return 0, chainerr.New(chainerr.InvariantViolation, "trading: lend amount too small to mint a share")
	}

	if err := c.issuer.Issue(shareAsset, minted); err != nil {
		return 0, err
	}
	if err := c.ledger.CreditLiquid(lender, xtypes.NewAsset(minted, pool.ShareAsset)); err != nil {
		return 0, err
	}
	return minted, c.pools.Modify(pool, func(p *CreditPool) { p.TotalBalance += amount })
}

// Redeem burns pool shares for their current base-asset value (spec.md
// §4.5 redeem); because the redemption price only rises, a lender never
// receives less base asset than they originally deposited at parity.
func (c *CreditPools) Redeem(lender xtypes.AccountName, pool *CreditPool, shares xtypes.ShareAmount) (xtypes.Asset, error) {
	if shares <= 0 {
		return xtypes.Asset{}, chainerr.New(chainerr.InvariantViolation, "trading: redeem amount must be positive")
	}
	shareAsset, err := c.issuer.BySymbol(pool.ShareAsset)
	if err != nil {
		return xtypes.Asset{}, err
	}
	dd, err := c.issuer.DynamicDataOf(shareAsset.ID)
	if err != nil {
		return xtypes.Asset{}, err
	}
	price := redemptionPriceMilli(pool, dd.CurrentSupply)
	out := xtypes.ShareAmount(uint64(shares) * price / 1000)
	if out > pool.TotalBalance-pool.TotalBorrowed {
		return xtypes.Asset{}, chainerr.New(chainerr.InsufficientBalance, "trading: pool does not have enough idle liquidity to redeem")
	}

	if err := c.ledger.DebitLiquid(lender, xtypes.NewAsset(shares, pool.ShareAsset)); err != nil {
		return xtypes.Asset{}, err
	}
	if err := c.issuer.Reserve(shareAsset, shares); err != nil {
		return xtypes.Asset{}, err
	}
	outAsset := xtypes.NewAsset(out, pool.BaseAsset)
	if err := c.ledger.CreditLiquid(lender, outAsset); err != nil {
		return xtypes.Asset{}, err
	}
	return outAsset, c.pools.Modify(pool, func(p *CreditPool) { p.TotalBalance -= out })
}

// AccrueInterest applies one period's worth of borrower interest to the
// pool balance (spec.md §4.4 maintenance interval duty): this is what
// makes the redemption price rise over time. periodsPerYear lets callers
// express arbitrary maintenance cadences (e.g. 52 for weekly).
func (c *CreditPools) AccrueInterest(pool *CreditPool, periodsPerYear uint32) error {
	if pool.TotalBorrowed <= 0 || periodsPerYear == 0 {
		return nil
	}
	interest := xtypes.ShareAmount(uint64(pool.TotalBorrowed) * uint64(pool.APRBps) / 10_000 / uint64(periodsPerYear))
	if interest <= 0 {
		return nil
	}
	return c.pools.Modify(pool, func(p *CreditPool) { p.TotalBalance += interest })
}

// Borrow draws down the pool's idle base-asset balance against
// caller-supplied collateral enforced elsewhere (margin/call order code);
// credit pools here only track the resulting utilization for interest
// accrual (spec.md §4.5).
func (c *CreditPools) Borrow(borrower xtypes.AccountName, pool *CreditPool, amount xtypes.ShareAmount) error {
	if amount <= 0 {
		return chainerr.New(chainerr.InvariantViolation, "trading: borrow amount must be positive")
	}
	if amount > pool.TotalBalance-pool.TotalBorrowed {
		return chainerr.New(chainerr.InsufficientBalance, "trading: credit pool has insufficient idle liquidity")
	}
	if err := c.ledger.CreditLiquid(borrower, xtypes.NewAsset(amount, pool.BaseAsset)); err != nil {
		return err
	}
	return c.pools.Modify(pool, func(p *CreditPool) { p.TotalBorrowed += amount })
}

// Repay returns previously borrowed principal to the pool.
func (c *CreditPools) Repay(borrower xtypes.AccountName, pool *CreditPool, amount xtypes.ShareAmount) error {
	if amount <= 0 || amount > pool.TotalBorrowed {
		return chainerr.New(chainerr.InvariantViolation, "trading: repay amount invalid")
	}
	if err := c.ledger.DebitLiquid(borrower, xtypes.NewAsset(amount, pool.BaseAsset)); err != nil {
		return err
	}
	return c.pools.Modify(pool, func(p *CreditPool) { p.TotalBorrowed -= amount })
}
