// Package chainstate holds the small set of singleton chain-wide records
// spec.md §3.3 describes: the dynamic global properties every block
// updates, the hardfork version table, the current producer schedule, and
// the per-currency reward funds that content payouts draw from.
//
// These are plain guarded structs rather than objectstore.Store entries --
// there is exactly one of each per chain, so the multi-index machinery
// objectstore provides would be pure overhead (see DESIGN.md).
package chainstate

import (
	"sync"

	"nodechain/chainerr"
	"nodechain/xtypes"
)

// DynamicGlobalProperties is updated by every applied block (spec.md §3.3,
// §4.4).
type DynamicGlobalProperties struct {
	HeadBlockNumber    uint64
	HeadBlockID        xtypes.ID160
	Time               xtypes.TimePoint
	CurrentProducer    xtypes.AccountName
	CurrentSupply      xtypes.Asset
	CurrentAslot       uint64
	RecentSlotsFilled  uint64 // bitmap, bit 0 = most recent slot
	ParticipationCount uint8  // popcount of RecentSlotsFilled, maintained incrementally
}

// ParticipationRate returns the fraction (0..1) of the last 64 scheduled
// slots that were actually filled by a producer (spec.md §4.6: used to
// gate certain operations when participation drops too low).
func (d *DynamicGlobalProperties) ParticipationRate() float64 {
	return float64(d.ParticipationCount) / 64.0
}

// HardforkProperty tracks which protocol version is active and when the
// next scheduled upgrade takes effect (spec.md §3.3).
type HardforkProperty struct {
	CurrentHardforkVersion uint32
	NextHardforkTime       xtypes.TimePoint
}

// ProducerSchedule is the currently shuffled block-producing order
// (spec.md §4.6). Building a new one is governance's job; chainstate only
// stores the result.
type ProducerSchedule struct {
	Version   uint32
	Producers []xtypes.AccountName
}

// RewardRole is one of the named balances a reward fund carries (spec.md
// §3.2 "Reward funds": "running content/activity/validation/work/
// supernode/community/development/marketing/advocacy balances").
type RewardRole uint8

const (
	RewardRoleContent RewardRole = iota
	RewardRoleActivity
	RewardRoleValidation
	RewardRoleWork
	RewardRoleSupernode
	RewardRoleCommunity
	RewardRoleDevelopment
	RewardRoleMarketing
	RewardRoleAdvocacy
)

// RewardFund is one currency's reward pool (spec.md §3.2, §3.3, §4.8): nine
// named role balances fed by inflation, plus a decaying "recent claims"
// denominator the content role uses to convert a post's reward shares into
// an asset payout (spec.md §4.7 "Content cashout").
type RewardFund struct {
	Symbol             xtypes.Symbol
	RewardBalance      xtypes.Asset // role RewardRoleContent; kept as an Asset for content.go's existing cashout math
	ActivityBalance    xtypes.ShareAmount
	ValidationBalance  xtypes.ShareAmount
	WorkBalance        xtypes.ShareAmount
	SupernodeBalance   xtypes.ShareAmount
	CommunityBalance   xtypes.ShareAmount
	DevelopmentBalance xtypes.ShareAmount
	MarketingBalance   xtypes.ShareAmount
	AdvocacyBalance    xtypes.ShareAmount
	RecentClaims       xtypes.Uint128
	LastUpdate         xtypes.TimePoint
}

// roleBalance returns a pointer to role's balance field, or nil for
// RewardRoleContent (whose balance lives in RewardBalance.Amount and is
// handled separately since it carries a symbol).
func (rf *RewardFund) roleBalance(role RewardRole) *xtypes.ShareAmount {
	switch role {
	case RewardRoleActivity:
		return &rf.ActivityBalance
	case RewardRoleValidation:
		return &rf.ValidationBalance
	case RewardRoleWork:
		return &rf.WorkBalance
	case RewardRoleSupernode:
		return &rf.SupernodeBalance
	case RewardRoleCommunity:
		return &rf.CommunityBalance
	case RewardRoleDevelopment:
		return &rf.DevelopmentBalance
	case RewardRoleMarketing:
		return &rf.MarketingBalance
	case RewardRoleAdvocacy:
		return &rf.AdvocacyBalance
	default:
		return nil
	}
}

// BalanceFor returns role's current balance, uniformly across all nine
// roles (spec.md §3.2).
func (rf *RewardFund) BalanceFor(role RewardRole) xtypes.ShareAmount {
	if role == RewardRoleContent {
		return rf.RewardBalance.Amount
	}
	if p := rf.roleBalance(role); p != nil {
		return *p
	}
	return 0
}

// State is the chain's singleton record set.
type State struct {
	mu          sync.RWMutex
	Dynamic     DynamicGlobalProperties
	Hardfork    HardforkProperty
	Schedule    ProducerSchedule
	RewardFunds map[xtypes.Symbol]*RewardFund
}

func New() *State {
	return &State{RewardFunds: make(map[xtypes.Symbol]*RewardFund)}
}

// AdvanceBlock records the effects every applied block has on dynamic
// global properties (spec.md §4.4 apply_block).
func (s *State) AdvanceBlock(id xtypes.ID160, number uint64, producer xtypes.AccountName, t xtypes.TimePoint, aslot uint64, missedSlots uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Dynamic.HeadBlockID = id
	s.Dynamic.HeadBlockNumber = number
	s.Dynamic.CurrentProducer = producer
	s.Dynamic.Time = t
	s.Dynamic.CurrentAslot += missedSlots + 1

	// Shift the slot-fill bitmap by the number of slots elapsed (missed
	// slots shift in zero bits), then mark the current slot filled.
	shift := missedSlots + 1
	if shift >= 64 {
		s.Dynamic.RecentSlotsFilled = 0
		s.Dynamic.ParticipationCount = 0
	} else {
		dropped := s.Dynamic.RecentSlotsFilled >> (64 - shift)
		s.Dynamic.ParticipationCount -= uint8(popcount64(dropped & ((1 << shift) - 1)))
		s.Dynamic.RecentSlotsFilled <<= shift
	}
	s.Dynamic.RecentSlotsFilled |= 1
	s.Dynamic.ParticipationCount++
}

func popcount64(x uint64) int {
	n := 0
	for x != 0 {
		n += int(x & 1)
		x >>= 1
	}
	return n
}

// SetHardfork records that version becomes active, effective at t.
func (s *State) SetHardfork(version uint32, t xtypes.TimePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Hardfork.CurrentHardforkVersion = version
	s.Hardfork.NextHardforkTime = t
}

// SetSchedule installs a freshly shuffled producer list (spec.md §4.6).
func (s *State) SetSchedule(sched ProducerSchedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Schedule = sched
}

// CurrentSchedule returns a copy of the active producer schedule.
func (s *State) CurrentSchedule() ProducerSchedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.Schedule
	out.Producers = append([]xtypes.AccountName(nil), s.Schedule.Producers...)
	return out
}

// RewardFundFor returns the fund for symbol, creating an empty one if absent.
func (s *State) RewardFundFor(symbol xtypes.Symbol) *RewardFund {
	s.mu.Lock()
	defer s.mu.Unlock()
	rf, ok := s.RewardFunds[symbol]
	if !ok {
		rf = &RewardFund{Symbol: symbol, RewardBalance: xtypes.Asset{Symbol: symbol}}
		s.RewardFunds[symbol] = rf
	}
	return rf
}

// AddToRewardBalance feeds newly minted inflation into a reward fund.
func (s *State) AddToRewardBalance(symbol xtypes.Symbol, amount xtypes.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rf, ok := s.RewardFunds[symbol]
	if !ok {
		rf = &RewardFund{Symbol: symbol, RewardBalance: xtypes.Asset{Symbol: symbol}}
		s.RewardFunds[symbol] = rf
	}
	sum, err := rf.RewardBalance.Add(amount)
	if err != nil {
		return chainerr.Wrap(chainerr.MismatchedSymbols, "chainstate: add to reward balance", err)
	}
	rf.RewardBalance = sum
	return nil
}

// CreditRewardRole feeds amount into role's slice of symbol's reward fund
// (spec.md §3.2 "Reward funds"). RewardRoleContent is rejected since its
// balance is an xtypes.Asset fed through AddToRewardBalance instead.
func (s *State) CreditRewardRole(symbol xtypes.Symbol, role RewardRole, amount xtypes.ShareAmount) error {
	if role == RewardRoleContent {
		return chainerr.New(chainerr.InvariantViolation, "chainstate: use AddToRewardBalance for the content reward role")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rf, ok := s.RewardFunds[symbol]
	if !ok {
		rf = &RewardFund{Symbol: symbol, RewardBalance: xtypes.Asset{Symbol: symbol}}
		s.RewardFunds[symbol] = rf
	}
	p := rf.roleBalance(role)
	if p == nil {
		return chainerr.New(chainerr.InvariantViolation, "chainstate: unknown reward role")
	}
	*p += amount
	return nil
}

// DrawRewardRole pays amount out of role's slice of symbol's reward fund,
// failing if the slice does not hold enough.
func (s *State) DrawRewardRole(symbol xtypes.Symbol, role RewardRole, amount xtypes.ShareAmount) error {
	if role == RewardRoleContent {
		return chainerr.New(chainerr.InvariantViolation, "chainstate: use the content cashout path for the content reward role")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rf, ok := s.RewardFunds[symbol]
	if !ok {
		return chainerr.New(chainerr.InsufficientBalance, "chainstate: reward fund has no balance for this role")
	}
	p := rf.roleBalance(role)
	if p == nil {
		return chainerr.New(chainerr.InvariantViolation, "chainstate: unknown reward role")
	}
	if *p < amount {
		return chainerr.New(chainerr.InsufficientBalance, "chainstate: reward fund role slice has insufficient balance")
	}
	*p -= amount
	return nil
}
