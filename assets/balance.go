package assets

import (
	"fmt"

	"nodechain/chainerr"
	"nodechain/objectstore"
	"nodechain/xtypes"
)

// Balance is one account's holdings of one asset, split into the balance
// categories spec.md §3.2 names: liquid (spendable), staked (earns a yield,
// withdraws only through the unstake installment queue), savings (behind a
// withdrawal delay), reward (pending content/curation payouts not yet
// liquid), and delegated-out (staked power lent to another account, which
// that account may use for influence but never spend).
type Balance struct {
	objectstore.Base
	Account     xtypes.AccountName
	Symbol      xtypes.Symbol
	Liquid      xtypes.ShareAmount
	Staked      xtypes.ShareAmount
	Savings     xtypes.ShareAmount
	Reward      xtypes.ShareAmount
	DelegatedOut xtypes.ShareAmount
	DelegatedIn  xtypes.ShareAmount
}

func balanceKey(account xtypes.AccountName, symbol xtypes.Symbol) string {
	return fmt.Sprintf("%s/%s", account, symbol)
}

// UnstakeRequest is one pending withdrawal installment (spec.md §4.3
// unstake, withdrawn over a fixed number of periods).
type UnstakeRequest struct {
	objectstore.Base
	Account           xtypes.AccountName
	Symbol            xtypes.Symbol
	TotalAmount        xtypes.ShareAmount
	AmountPerPeriod    xtypes.ShareAmount
	PeriodsRemaining   uint32
	NextWithdrawalTime xtypes.TimePoint
	PeriodDuration     xtypes.TimePoint
}

// SavingsWithdrawal is one pending delayed savings withdrawal.
type SavingsWithdrawal struct {
	objectstore.Base
	From      xtypes.AccountName
	To        xtypes.AccountName
	Symbol    xtypes.Symbol
	Amount    xtypes.ShareAmount
	RequestID uint32
	CompleteAt xtypes.TimePoint
}

// Ledger owns every account balance and the pending installment/delay
// queues (spec.md §3.2, §4.3).
type Ledger struct {
	db        *objectstore.Database
	balances  *objectstore.Store[Balance]
	unstakes  *objectstore.Store[UnstakeRequest]
	withdrawals *objectstore.Store[SavingsWithdrawal]
}

func NewLedger(db *objectstore.Database) *Ledger {
	l := &Ledger{db: db}
	l.balances = objectstore.NewStore[Balance](db, "balance", func(b *Balance) uint64 { return b.ID }).
		WithUniqueIndex("by_account_symbol", func(b *Balance) (string, bool) {
			return balanceKey(b.Account, b.Symbol), true
		}).
		WithIndex("by_account", func(b *Balance) (string, bool) { return string(b.Account), true })
	l.unstakes = objectstore.NewStore[UnstakeRequest](db, "unstake_request", func(u *UnstakeRequest) uint64 { return u.ID }).
		WithIndex("by_account", func(u *UnstakeRequest) (string, bool) { return string(u.Account), true })
	l.withdrawals = objectstore.NewStore[SavingsWithdrawal](db, "savings_withdrawal", func(w *SavingsWithdrawal) uint64 { return w.ID }).
		WithIndex("by_from", func(w *SavingsWithdrawal) (string, bool) { return string(w.From), true })
	return l
}

// BalanceOf returns an account's balance record for symbol, creating an
// empty one on first access.
func (l *Ledger) BalanceOf(account xtypes.AccountName, symbol xtypes.Symbol) *Balance {
	if b, ok := l.balances.FindByIndex("by_account_symbol", balanceKey(account, symbol)); ok {
		return b
	}
	b, err := l.balances.Create(
		func(b *Balance, id uint64) { b.ID = id },
		func(b *Balance) { b.Account = account; b.Symbol = symbol })
	if err != nil {
		// Only a concurrent duplicate create could fail here, which the
		// store's own locking rules out within a single call stack.
		panic(err)
	}
	return b
}

func (l *Ledger) AllForAccount(account xtypes.AccountName) []*Balance {
	return l.balances.ListByIndex("by_account", string(account))
}

// CreditLiquid adds to an account's liquid balance (used by issue, trade
// settlement, reward cashout).
func (l *Ledger) CreditLiquid(account xtypes.AccountName, amount xtypes.Asset) error {
	b := l.BalanceOf(account, amount.Symbol)
	return l.balances.Modify(b, func(b *Balance) { b.Liquid += amount.Amount })
}

// DebitLiquid removes from an account's liquid balance, failing with
// InsufficientBalance if it is not enough.
func (l *Ledger) DebitLiquid(account xtypes.AccountName, amount xtypes.Asset) error {
	b := l.BalanceOf(account, amount.Symbol)
	if b.Liquid < amount.Amount {
		return chainerr.New(chainerr.InsufficientBalance,
			fmt.Sprintf("%s has %d %s, needs %d", account, b.Liquid, amount.Symbol, amount.Amount))
	}
	return l.balances.Modify(b, func(b *Balance) { b.Liquid -= amount.Amount })
}

// Transfer moves a liquid balance between two accounts atomically from the
// caller's point of view: on failure neither side is changed (spec.md §4.3
// transfer, exercised by the transfer scenario test).
func (l *Ledger) Transfer(from, to xtypes.AccountName, amount xtypes.Asset) error {
	if amount.Amount <= 0 {
		return chainerr.New(chainerr.InvariantViolation, "assets: transfer amount must be positive")
	}
	if err := l.DebitLiquid(from, amount); err != nil {
		return err
	}
	if err := l.CreditLiquid(to, amount); err != nil {
		// Roll back the debit: CreditLiquid only fails on an impossible
		// duplicate-create race, but be defensive regardless.
		_ = l.CreditLiquid(from, amount)
		return err
	}
	return nil
}

// Stake converts liquid balance into staked balance immediately (spec.md
// §4.3 stake); staked balance earns yield and carries voting weight but can
// only leave via Unstake's installment queue.
func (l *Ledger) Stake(account xtypes.AccountName, amount xtypes.Asset) error {
	if err := l.DebitLiquid(account, amount); err != nil {
		return err
	}
	b := l.BalanceOf(account, amount.Symbol)
	return l.balances.Modify(b, func(b *Balance) { b.Staked += amount.Amount })
}

const unstakePeriods = 13 // weekly installments over ~13 weeks, matching the teacher's vesting cadence

// BeginUnstake schedules a staked balance for withdrawal over
// unstakePeriods equal installments starting one period from now (spec.md
// §4.3 unstake). Any prior unstake request for the same (account, symbol)
// is replaced, mirroring "withdraw_vesting resets the schedule" semantics.
func (l *Ledger) BeginUnstake(account xtypes.AccountName, amount xtypes.Asset, now, periodDuration xtypes.TimePoint) error {
	b := l.BalanceOf(account, amount.Symbol)
	if b.Staked-b.DelegatedOut < amount.Amount {
		return chainerr.New(chainerr.InsufficientBalance, "assets: unstake exceeds undelegated staked balance")
	}
	if existing, ok := l.balances.FindByIndex("by_account_symbol", balanceKey(account, amount.Symbol)); ok {
		for _, u := range l.unstakes.ListByIndex("by_account", string(account)) {
			if u.Symbol == amount.Symbol {
				l.unstakes.Remove(u)
			}
		}
		_ = existing
	}

	perPeriod := xtypes.ShareAmount(int64(amount.Amount) / unstakePeriods)
	if perPeriod == 0 {
		perPeriod = amount.Amount
	}
	_, err := l.unstakes.Create(
		func(u *UnstakeRequest, id uint64) { u.ID = id },
		func(u *UnstakeRequest) {
			u.Account = account
			u.Symbol = amount.Symbol
			u.TotalAmount = amount.Amount
			u.AmountPerPeriod = perPeriod
			u.PeriodsRemaining = unstakePeriods
			u.NextWithdrawalTime = now + periodDuration
			u.PeriodDuration = periodDuration
		})
	return err
}

// ProcessUnstakes pays out every due installment across all accounts
// (spec.md §4.4; ApplyBlock invokes it for every applied block).
func (l *Ledger) ProcessUnstakes(now xtypes.TimePoint) error {
	for _, u := range l.unstakes.All() {
		for u.PeriodsRemaining > 0 && now >= u.NextWithdrawalTime {
			amount := u.AmountPerPeriod
			if u.PeriodsRemaining == 1 {
				amount = u.TotalAmount - u.AmountPerPeriod*xtypes.ShareAmount(unstakePeriods-1)
			}
			b := l.BalanceOf(u.Account, u.Symbol)
			if b.Staked < amount {
				amount = b.Staked
			}
			if err := l.balances.Modify(b, func(b *Balance) { b.Staked -= amount; b.Liquid += amount }); err != nil {
				return err
			}
			if err := l.unstakes.Modify(u, func(u *UnstakeRequest) {
				u.PeriodsRemaining--
				u.NextWithdrawalTime += u.PeriodDuration
			}); err != nil {
				return err
			}
		}
		if u.PeriodsRemaining == 0 {
			l.unstakes.Remove(u)
		}
	}
	return nil
}

// SavingsDeposit moves liquid balance into savings immediately.
func (l *Ledger) SavingsDeposit(account xtypes.AccountName, amount xtypes.Asset) error {
	if err := l.DebitLiquid(account, amount); err != nil {
		return err
	}
	b := l.BalanceOf(account, amount.Symbol)
	return l.balances.Modify(b, func(b *Balance) { b.Savings += amount.Amount })
}

const savingsWithdrawDelay = xtypes.TimePoint(3 * 24 * 60 * 60 * 1_000_000) // three days, in microseconds

// RequestSavingsWithdrawal schedules a delayed transfer out of savings
// (spec.md §4.3 savings transfer); requestID lets an account have several
// such requests outstanding at once and cancel them individually.
func (l *Ledger) RequestSavingsWithdrawal(from, to xtypes.AccountName, amount xtypes.Asset, requestID uint32, now xtypes.TimePoint) error {
	b := l.BalanceOf(from, amount.Symbol)
	if b.Savings < amount.Amount {
		return chainerr.New(chainerr.InsufficientBalance, "assets: savings withdrawal exceeds savings balance")
	}
	if err := l.balances.Modify(b, func(b *Balance) { b.Savings -= amount.Amount }); err != nil {
		return err
	}
	_, err := l.withdrawals.Create(
		func(w *SavingsWithdrawal, id uint64) { w.ID = id },
		func(w *SavingsWithdrawal) {
			w.From = from
			w.To = to
			w.Symbol = amount.Symbol
			w.Amount = amount.Amount
			w.RequestID = requestID
			w.CompleteAt = now + savingsWithdrawDelay
		})
	return err
}

// CancelSavingsWithdrawal reverses a still-pending request, restoring the
// funds directly to savings.
func (l *Ledger) CancelSavingsWithdrawal(from xtypes.AccountName, requestID uint32) error {
	for _, w := range l.withdrawals.ListByIndex("by_from", string(from)) {
		if w.RequestID == requestID {
			b := l.BalanceOf(w.From, w.Symbol)
			if err := l.balances.Modify(b, func(b *Balance) { b.Savings += w.Amount }); err != nil {
				return err
			}
			l.withdrawals.Remove(w)
			return nil
		}
	}
	return chainerr.New(chainerr.NotFound, "assets: no such savings withdrawal request")
}

// ProcessSavingsWithdrawals completes every due withdrawal, crediting the
// destination account's liquid balance.
func (l *Ledger) ProcessSavingsWithdrawals(now xtypes.TimePoint) error {
	for _, w := range l.withdrawals.All() {
		if now < w.CompleteAt {
			continue
		}
		if err := l.CreditLiquid(w.To, xtypes.NewAsset(w.Amount, w.Symbol)); err != nil {
			return err
		}
		l.withdrawals.Remove(w)
	}
	return nil
}

// DelegateStake lends staked balance's influence to another account
// without transferring ownership (spec.md §4.3 delegate stake): the
// delegator's Staked is unaffected for yield purposes but DelegatedOut
// marks it unavailable for a new delegation or unstake until returned.
func (l *Ledger) DelegateStake(from, to xtypes.AccountName, amount xtypes.Asset) error {
	fb := l.BalanceOf(from, amount.Symbol)
	available := fb.Staked - fb.DelegatedOut
	if available < amount.Amount {
		return chainerr.New(chainerr.InsufficientBalance, "assets: delegate exceeds undelegated staked balance")
	}
	if err := l.balances.Modify(fb, func(b *Balance) { b.DelegatedOut += amount.Amount }); err != nil {
		return err
	}
	tb := l.BalanceOf(to, amount.Symbol)
	return l.balances.Modify(tb, func(b *Balance) { b.DelegatedIn += amount.Amount })
}

// UndelegateStake returns previously delegated influence to the delegator.
func (l *Ledger) UndelegateStake(from, to xtypes.AccountName, amount xtypes.Asset) error {
	tb := l.BalanceOf(to, amount.Symbol)
	if tb.DelegatedIn < amount.Amount {
		return chainerr.New(chainerr.InvariantViolation, "assets: undelegate exceeds delegated-in balance")
	}
	if err := l.balances.Modify(tb, func(b *Balance) { b.DelegatedIn -= amount.Amount }); err != nil {
		return err
	}
	fb := l.BalanceOf(from, amount.Symbol)
	return l.balances.Modify(fb, func(b *Balance) { b.DelegatedOut -= amount.Amount })
}

// CreditReward adds to an account's pending reward balance (content
// cashout payouts land here before an explicit claim moves them to
// liquid, spec.md §4.8).
func (l *Ledger) CreditReward(account xtypes.AccountName, amount xtypes.Asset) error {
	b := l.BalanceOf(account, amount.Symbol)
	return l.balances.Modify(b, func(b *Balance) { b.Reward += amount.Amount })
}

// ClaimReward moves an account's pending reward balance to liquid.
func (l *Ledger) ClaimReward(account xtypes.AccountName, amount xtypes.Asset) error {
	b := l.BalanceOf(account, amount.Symbol)
	if b.Reward < amount.Amount {
		return chainerr.New(chainerr.InsufficientBalance, "assets: claim exceeds reward balance")
	}
	return l.balances.Modify(b, func(b *Balance) { b.Reward -= amount.Amount; b.Liquid += amount.Amount })
}
