package governance

import (
	"nodechain/chainerr"
	"nodechain/chainstate"
	"nodechain/objectstore"
	"nodechain/xtypes"
)

// RoleKind is one of the elected network roles spec.md §3.2 names
// alongside Producer: "Network officer (development/marketing/advocacy),
// executive board, governance account, supernode, interface, mediator,
// community enterprise: each is an elected role earning from its reward
// fund slice when approval thresholds are met." Mediator is modeled
// separately in the content package (SPEC_FULL.md §3.5) since it carries
// its own accept/decline workflow rather than a stake-weighted approval
// vote; the remaining roles share the uniform shape below.
type RoleKind uint8

const (
	RoleNetworkOfficerDevelopment RoleKind = iota
	RoleNetworkOfficerMarketing
	RoleNetworkOfficerAdvocacy
	RoleExecutiveBoard
	RoleGovernanceAccount
	RoleSupernode
	RoleInterface
	RoleCommunityEnterprise
)

// ElectedRole is one account's candidacy for one RoleKind (spec.md §3.2).
// ApprovalPower accumulates stake-weighted approval votes the same way
// Producer.ApprovalPower does; Approved is recomputed against a threshold
// by RecomputeApprovals, the daily "Producer/officer/executive/governance
// updates" job (spec.md §4.7).
type ElectedRole struct {
	objectstore.Base
	Kind          RoleKind
	Owner         xtypes.AccountName
	ApprovalPower xtypes.ShareAmount
	Approved      bool
	LastUpdate    xtypes.TimePoint
}

// roleApprovalVote is one account's approval vote for one (kind, owner)
// candidacy, tracked separately so re-voting or unvoting can adjust
// ApprovalPower without double counting (mirrors approvalVote in
// producer.go).
type roleApprovalVote struct {
	objectstore.Base
	Voter xtypes.AccountName
	Kind  RoleKind
	Owner xtypes.AccountName
	Power xtypes.ShareAmount
}

func roleKey(kind RoleKind, owner xtypes.AccountName) string {
	return roleKindString(kind) + "/" + string(owner)
}

func roleVoteKey(voter xtypes.AccountName, kind RoleKind, owner xtypes.AccountName) string {
	return string(voter) + "/" + roleKey(kind, owner)
}

func roleKindString(kind RoleKind) string {
	switch kind {
	case RoleNetworkOfficerDevelopment:
		return "officer_development"
	case RoleNetworkOfficerMarketing:
		return "officer_marketing"
	case RoleNetworkOfficerAdvocacy:
		return "officer_advocacy"
	case RoleExecutiveBoard:
		return "executive_board"
	case RoleGovernanceAccount:
		return "governance_account"
	case RoleSupernode:
		return "supernode"
	case RoleInterface:
		return "interface"
	case RoleCommunityEnterprise:
		return "community_enterprise"
	default:
		return "unknown_role"
	}
}

// ElectedRoles owns every candidacy across every RoleKind.
type ElectedRoles struct {
	roles *objectstore.Store[ElectedRole]
	votes *objectstore.Store[roleApprovalVote]
}

func NewElectedRoles(db *objectstore.Database) *ElectedRoles {
	r := &ElectedRoles{}
	r.roles = objectstore.NewStore[ElectedRole](db, "elected_role", func(e *ElectedRole) uint64 { return e.ID }).
		WithUniqueIndex("by_kind_owner", func(e *ElectedRole) (string, bool) { return roleKey(e.Kind, e.Owner), true }).
		WithIndex("by_kind", func(e *ElectedRole) (string, bool) { return roleKindString(e.Kind), true })
	r.votes = objectstore.NewStore[roleApprovalVote](db, "elected_role_vote", func(v *roleApprovalVote) uint64 { return v.ID }).
		WithUniqueIndex("by_voter_kind_owner", func(v *roleApprovalVote) (string, bool) { return roleVoteKey(v.Voter, v.Kind, v.Owner), true })
	return r
}

// Register enrolls owner as a candidate for kind (spec.md §3.2).
func (r *ElectedRoles) Register(kind RoleKind, owner xtypes.AccountName) (*ElectedRole, error) {
	if _, ok := r.roles.FindByIndex("by_kind_owner", roleKey(kind, owner)); ok {
		return nil, chainerr.New(chainerr.UniqueKeyViolation, "governance: account already holds this role candidacy")
	}
	return r.roles.Create(
		func(e *ElectedRole, id uint64) { e.ID = id },
		func(e *ElectedRole) { e.Kind = kind; e.Owner = owner })
}

func (r *ElectedRoles) ByOwner(kind RoleKind, owner xtypes.AccountName) (*ElectedRole, error) {
	return r.roles.GetByIndex("by_kind_owner", roleKey(kind, owner))
}

func (r *ElectedRoles) ForKind(kind RoleKind) []*ElectedRole {
	return r.roles.ListByIndex("by_kind", roleKindString(kind))
}

// Vote casts or updates voter's approval vote for (kind, owner), weighted
// by the voter's current staked power (spec.md §4.6 approval-voting
// pattern, reused here from Producer.Vote).
func (r *ElectedRoles) Vote(voter xtypes.AccountName, kind RoleKind, owner xtypes.AccountName, power xtypes.ShareAmount) error {
	e, err := r.roles.GetByIndex("by_kind_owner", roleKey(kind, owner))
	if err != nil {
		return err
	}
	key := roleVoteKey(voter, kind, owner)
	existing, ok := r.votes.FindByIndex("by_voter_kind_owner", key)
	if ok {
		delta := power - existing.Power
		if err := r.votes.Modify(existing, func(v *roleApprovalVote) { v.Power = power }); err != nil {
			return err
		}
		return r.roles.Modify(e, func(e *ElectedRole) { e.ApprovalPower += delta })
	}
	if _, err := r.votes.Create(
		func(v *roleApprovalVote, id uint64) { v.ID = id },
		func(v *roleApprovalVote) { v.Voter = voter; v.Kind = kind; v.Owner = owner; v.Power = power }); err != nil {
		return err
	}
	return r.roles.Modify(e, func(e *ElectedRole) { e.ApprovalPower += power })
}

// Unvote removes voter's approval vote for (kind, owner), if any.
func (r *ElectedRoles) Unvote(voter xtypes.AccountName, kind RoleKind, owner xtypes.AccountName) error {
	key := roleVoteKey(voter, kind, owner)
	existing, ok := r.votes.FindByIndex("by_voter_kind_owner", key)
	if !ok {
		return nil
	}
	e, err := r.roles.GetByIndex("by_kind_owner", roleKey(kind, owner))
	if err != nil {
		return err
	}
	r.votes.Remove(existing)
	return r.roles.Modify(e, func(e *ElectedRole) { e.ApprovalPower -= existing.Power })
}

// RecomputeApprovals sets Approved on every candidacy of kind according to
// whether its ApprovalPower has reached threshold (spec.md §4.7
// "Producer/officer/executive/governance updates", the daily maintenance
// job that recomputes approval status for every elected role).
func (r *ElectedRoles) RecomputeApprovals(kind RoleKind, threshold xtypes.ShareAmount, now xtypes.TimePoint) error {
	for _, e := range r.ForKind(kind) {
		approved := e.ApprovalPower >= threshold
		if approved == e.Approved {
			continue
		}
		if err := r.roles.Modify(e, func(e *ElectedRole) {
			e.Approved = approved
			e.LastUpdate = now
		}); err != nil {
			return err
		}
	}
	return nil
}

// rewardRoleFor maps a RoleKind to the chainstate reward-fund slice it
// earns from (spec.md §3.2's reward-fund role list names content, activity,
// validation, work, supernode, community, development, marketing, and
// advocacy balances; executive board, governance account, and interface
// have no role slice of their own in that list, so they are not paid
// through DistributeRoleRewards -- see DESIGN.md).
func rewardRoleFor(kind RoleKind) (chainstate.RewardRole, bool) {
	switch kind {
	case RoleNetworkOfficerDevelopment:
		return chainstate.RewardRoleDevelopment, true
	case RoleNetworkOfficerMarketing:
		return chainstate.RewardRoleMarketing, true
	case RoleNetworkOfficerAdvocacy:
		return chainstate.RewardRoleAdvocacy, true
	case RoleSupernode:
		return chainstate.RewardRoleSupernode, true
	case RoleCommunityEnterprise:
		return chainstate.RewardRoleCommunity, true
	default:
		return 0, false
	}
}

// DistributeRoleRewards splits symbol's reward-fund slice for kind equally
// among kind's currently approved candidates, crediting each one's liquid
// balance (spec.md §3.2: "each is an elected role earning from its reward
// fund slice when approval thresholds are met"). It is a no-op for role
// kinds with no mapped reward-fund slice.
func (r *ElectedRoles) DistributeRoleRewards(state *chainstate.State, credit func(xtypes.AccountName, xtypes.Asset) error, symbol xtypes.Symbol, kind RoleKind) error {
	role, ok := rewardRoleFor(kind)
	if !ok {
		return nil
	}
	var approved []*ElectedRole
	for _, e := range r.ForKind(kind) {
		if e.Approved {
			approved = append(approved, e)
		}
	}
	if len(approved) == 0 {
		return nil
	}
	fund := state.RewardFundFor(symbol)
	total := fund.BalanceFor(role)
	per := total / xtypes.ShareAmount(len(approved))
	if per <= 0 {
		return nil
	}
	for _, e := range approved {
		if err := state.DrawRewardRole(symbol, role, per); err != nil {
			return err
		}
		if err := credit(e.Owner, xtypes.NewAsset(per, symbol)); err != nil {
			return err
		}
	}
	return nil
}
