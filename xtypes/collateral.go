package xtypes

import "github.com/holiman/uint256"

// CollateralRatio computes collateral/debt scaled by 1000 (i.e. the result
// is in "milli-ratio" units: a ratio of 1.75 is returned as 1750) using
// 256-bit intermediate arithmetic so that large collateral/debt products
// never silently wrap (spec.md §3.1: "256-bit integers bound margin-call
// collateral arithmetic").
func CollateralRatio(collateral, debt ShareAmount) uint32 {
	if debt <= 0 {
		return ^uint32(0) // infinite ratio sentinel: no debt outstanding
	}
	c := uint256.NewInt(uint64(collateral))
	c.Mul(c, uint256.NewInt(1000))
	d := uint256.NewInt(uint64(debt))
	c.Div(c, d)
	if !c.IsUint64() || c.Uint64() > uint64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(c.Uint64())
}

// MeetsMaintenanceRatio reports whether collateral/debt >= feedPrice*mcr,
// where mcr is expressed in milli-ratio units (1750 == 1.75x), matching
// spec.md §3.3 Invariant 4 and the Scenario C worked example.
func MeetsMaintenanceRatio(collateral, debt ShareAmount, feedPriceMilli uint64, mcrMilli uint32) bool {
	if debt <= 0 {
		return true
	}
	// required_collateral = debt * feedPriceMilli * mcrMilli / 1000 / 1000
	c := uint256.NewInt(uint64(debt))
	c.Mul(c, uint256.NewInt(feedPriceMilli))
	c.Mul(c, uint256.NewInt(uint64(mcrMilli)))
	c.Div(c, uint256.NewInt(1_000_000))
	have := uint256.NewInt(uint64(collateral))
	return have.Cmp(c) >= 0
}

// MinNetworkCreditPrice is the minimum acceptable credit-pool share price
// (in base-asset units per 100 shares) for network-credit issuance,
// resolving spec.md §9 Open Question 4: the source encodes this limit
// twice with different constants (a raw share-price floor and a
// percentage-of-initial-price floor); this implementation keeps the
// raw share-price floor (100 credit-pool shares may never be redeemable
// for less than 1 unit of the underlying base asset) and drops the
// percentage-based duplicate.
const MinNetworkCreditPrice ShareAmount = 1
