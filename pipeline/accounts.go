package pipeline

import (
	"nodechain/authority"
	"nodechain/chainerr"
	"nodechain/evaluator"
	"nodechain/objectstore"
	"nodechain/xtypes"
)

// AccountRecord is one registered account (spec.md §3.2 "Account"): a name,
// its three operational authorities, and the membership/role bookkeeping
// the pipeline consults when dispatching operations.
type AccountRecord struct {
	objectstore.Base
	Name            xtypes.AccountName
	Owner           authority.Authority
	Active          authority.Authority
	Posting         authority.Authority
	SecureKey       xtypes.PublicKey
	LastOwnerUpdate xtypes.TimePoint
	CreatedAt       xtypes.TimePoint
}

// AccountAuthorities owns every account's authority records and implements
// authority.Resolver so that weighted account-authority delegation
// (spec.md §3.2 "Account authority") can be resolved recursively without
// the authority package importing this one.
type AccountAuthorities struct {
	accounts *objectstore.Store[AccountRecord]
	limiter  *authority.OwnerUpdateLimiter
}

func NewAccountAuthorities(db *objectstore.Database) *AccountAuthorities {
	a := &AccountAuthorities{limiter: authority.NewOwnerUpdateLimiter()}
	a.accounts = objectstore.NewStore[AccountRecord](db, "account", func(r *AccountRecord) uint64 { return r.ID }).
		WithUniqueIndex("by_name", func(r *AccountRecord) (string, bool) { return string(r.Name), true })
	return a
}

// Create registers a new account with its initial authorities (spec.md
// §3.2). owner and active must each independently meet Authority.Validate.
func (a *AccountAuthorities) Create(name xtypes.AccountName, owner, active, posting authority.Authority, secureKey xtypes.PublicKey, now xtypes.TimePoint) (*AccountRecord, error) {
	if !name.Valid() {
		return nil, chainerr.New(chainerr.InvalidName, "pipeline: invalid account name")
	}
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if err := active.Validate(); err != nil {
		return nil, err
	}
	if err := posting.Validate(); err != nil {
		return nil, err
	}
	if _, ok := a.accounts.FindByIndex("by_name", string(name)); ok {
		return nil, chainerr.New(chainerr.UniqueKeyViolation, "pipeline: account name already registered")
	}
	return a.accounts.Create(
		func(r *AccountRecord, id uint64) { r.ID = id },
		func(r *AccountRecord) {
			r.Name = name
			r.Owner = owner
			r.Active = active
			r.Posting = posting
			r.SecureKey = secureKey
			r.CreatedAt = now
		})
}

func (a *AccountAuthorities) ByName(name xtypes.AccountName) (*AccountRecord, error) {
	return a.accounts.GetByIndex("by_name", string(name))
}

// ActiveAuthority implements authority.Resolver: it is consulted whenever
// one account's authority names another account as a delegated signer.
func (a *AccountAuthorities) ActiveAuthority(name xtypes.AccountName) (authority.Authority, error) {
	r, err := a.ByName(name)
	if err != nil {
		return authority.Authority{}, err
	}
	return r.Active, nil
}

// AuthorityFor returns the authority an operation requiring level must be
// satisfied against (spec.md §4.4.3 step 3: "Posting-only operations
// permit posting keys; financial operations require active; authority
// edits require owner" -- each level also satisfies any operation that
// only needed a weaker one, since a signer who can authorize owner-level
// changes can authorize everything beneath it).
func (a *AccountAuthorities) AuthorityFor(name xtypes.AccountName, level evaluator.AuthorityLevel) (authority.Authority, error) {
	r, err := a.ByName(name)
	if err != nil {
		return authority.Authority{}, err
	}
	switch level {
	case evaluator.AuthorityOwner:
		return r.Owner, nil
	case evaluator.AuthorityActive:
		return r.Active, nil
	default:
		return r.Posting, nil
	}
}

// UpdateOwner replaces an account's owner authority, enforcing the
// once-per-hour rate limit (spec.md §3.3 invariant 7).
func (a *AccountAuthorities) UpdateOwner(name xtypes.AccountName, newOwner authority.Authority, now xtypes.TimePoint) error {
	if err := newOwner.Validate(); err != nil {
		return err
	}
	r, err := a.ByName(name)
	if err != nil {
		return err
	}
	if err := a.limiter.Allow(name, now); err != nil {
		return err
	}
	return a.accounts.Modify(r, func(r *AccountRecord) {
		r.Owner = newOwner
		r.LastOwnerUpdate = now
	})
}

// UpdateActive replaces an account's active authority (no rate limit).
func (a *AccountAuthorities) UpdateActive(name xtypes.AccountName, newActive authority.Authority) error {
	if err := newActive.Validate(); err != nil {
		return err
	}
	r, err := a.ByName(name)
	if err != nil {
		return err
	}
	return a.accounts.Modify(r, func(r *AccountRecord) { r.Active = newActive })
}

// UpdatePosting replaces an account's posting authority (no rate limit).
func (a *AccountAuthorities) UpdatePosting(name xtypes.AccountName, newPosting authority.Authority) error {
	if err := newPosting.Validate(); err != nil {
		return err
	}
	r, err := a.ByName(name)
	if err != nil {
		return err
	}
	return a.accounts.Modify(r, func(r *AccountRecord) { r.Posting = newPosting })
}
