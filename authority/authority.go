// Package authority resolves whether a set of signing keys satisfies an
// account's weighted multi-key authority, including authorities delegated
// to other accounts, and enforces the owner-authority change rate limit
// spec.md §3.2/§4.3 describe.
package authority

import (
	"sync"

	"nodechain/chainerr"
	"nodechain/xtypes"
)

// maxRecursionDepth bounds how many levels of account-authority delegation
// satisfaction-checking will follow, preventing a cycle of accounts naming
// each other as authorities from looping forever.
const maxRecursionDepth = 4

// KeyAuth is one (public key, weight) pair in an authority.
type KeyAuth struct {
	Key    xtypes.PublicKey
	Weight uint16
}

// AccountAuth is one (account, weight) pair in an authority: satisfying
// that account's own active authority contributes Weight toward this one.
type AccountAuth struct {
	Account xtypes.AccountName
	Weight  uint16
}

// Authority is a weighted threshold of keys and/or delegated accounts
// (spec.md §3.2).
type Authority struct {
	WeightThreshold uint32
	KeyAuths        []KeyAuth
	AccountAuths    []AccountAuth
}

// Resolver looks up another account's active authority, used to verify
// delegated AccountAuths recursively.
type Resolver interface {
	ActiveAuthority(account xtypes.AccountName) (Authority, error)
}

// Satisfies reports whether signedBy (the set of public keys recovered
// from valid signatures on the transaction) meets this authority's weight
// threshold, resolving delegated account authorities through resolver.
func (a Authority) Satisfies(signedBy map[string]bool, resolver Resolver) bool {
	return a.satisfies(signedBy, resolver, maxRecursionDepth)
}

func (a Authority) satisfies(signedBy map[string]bool, resolver Resolver, depth int) bool {
	var total uint32
	for _, ka := range a.KeyAuths {
		if signedBy[ka.Key.Hex()] {
			total += uint32(ka.Weight)
		}
	}
	if depth > 0 && resolver != nil {
		for _, aa := range a.AccountAuths {
			sub, err := resolver.ActiveAuthority(aa.Account)
			if err != nil {
				continue
			}
			if sub.satisfies(signedBy, resolver, depth-1) {
				total += uint32(aa.Weight)
			}
		}
	}
	return total >= a.WeightThreshold
}

// Validate rejects a degenerate authority: an empty one, one whose
// threshold cannot possibly be met, or one with a zero weight entry.
func (a Authority) Validate() error {
	if a.WeightThreshold == 0 {
		return chainerr.New(chainerr.InvariantViolation, "authority: threshold must be positive")
	}
	var maxTotal uint32
	for _, ka := range a.KeyAuths {
		if ka.Weight == 0 {
			return chainerr.New(chainerr.InvariantViolation, "authority: zero-weight key auth")
		}
		maxTotal += uint32(ka.Weight)
	}
	for _, aa := range a.AccountAuths {
		if aa.Weight == 0 {
			return chainerr.New(chainerr.InvariantViolation, "authority: zero-weight account auth")
		}
		maxTotal += uint32(aa.Weight)
	}
	if maxTotal < a.WeightThreshold {
		return chainerr.New(chainerr.InvariantViolation, "authority: threshold unreachable by any combination of signers")
	}
	return nil
}

// OwnerUpdateLimiter enforces spec.md's "at most one owner-authority
// change per account per hour" rate limit.
type OwnerUpdateLimiter struct {
	mu   sync.Mutex
	last map[xtypes.AccountName]xtypes.TimePoint
}

func NewOwnerUpdateLimiter() *OwnerUpdateLimiter {
	return &OwnerUpdateLimiter{last: make(map[xtypes.AccountName]xtypes.TimePoint)}
}

const ownerUpdateCooldown = xtypes.TimePoint(60 * 60 * 1_000_000) // one hour, in microseconds

// Allow reports whether account may change its owner authority at now,
// and if so records now as the new last-change time. Returns RateLimited
// otherwise.
func (l *OwnerUpdateLimiter) Allow(account xtypes.AccountName, now xtypes.TimePoint) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.last[account]; ok && now-last < ownerUpdateCooldown {
		return chainerr.New(chainerr.RateLimited, "authority: owner authority changed less than an hour ago")
	}
	l.last[account] = now
	return nil
}
