// Package content implements the social graph spec.md §3.2/§4.6 describes:
// posts ("comments"), votes, views, shares, and communities, plus the
// reward-curve cashout that pays a post's accumulated rshares out of a
// currency's reward fund to its author and the accounts that voted,
// viewed, or shared it (spec.md §4.7 "Content cashout").
//
// Grounded on the teacher's core/dao.go/core/dao_proposal.go proposal/
// vote-counting shape (weighted-power accumulation against a fixed
// deadline, reused here for reward-power accumulation against a post's
// cashout time) and on
// original_source/libraries/plugins/tags/include/node/tags/tags_plugin.hpp
// for the rolling-counter and cashout-time fields spec.md's distillation
// left implicit.
package content

import (
	"fmt"

	"nodechain/assets"
	"nodechain/chainerr"
	"nodechain/chainstate"
	"nodechain/objectstore"
	"nodechain/xtypes"
)

// cashoutDelay is the time between a post's creation and its payout,
// matching the historical seven-day cashout window.
const cashoutDelay = xtypes.TimePoint(7 * 24 * 60 * 60 * 1_000_000)

// Comment is one post or reply (spec.md §3.2: "Comment (post)"). Replies
// address their parent by (author, permlink) rather than a live pointer,
// per spec.md §9's "replace in-memory pointer cycles with name/id keys"
// design note.
type Comment struct {
	objectstore.Base
	Author         xtypes.AccountName
	Permlink       string
	ParentAuthor   xtypes.AccountName // empty for a root post
	ParentPermlink string
	RewardSymbol   xtypes.Symbol
	CreatedAt      xtypes.TimePoint
	CashoutTime    xtypes.TimePoint
	NetRshares     xtypes.Uint128 // signed-magnitude not needed: downvotes saturate at zero, never subtract past it
	ChildCount     uint32
	CashedOut      bool
}

func commentKey(author xtypes.AccountName, permlink string) string {
	return fmt.Sprintf("%s/%s", author, permlink)
}

// VoteEntry is one account's vote on a post (spec.md §3.2 "comment vote").
// Weight is a percentage in [-10000, 10000] (hundredths of a percent, the
// historical convention) of the voter's available voting power.
type VoteEntry struct {
	objectstore.Base
	CommentID uint64
	Voter     xtypes.AccountName
	Weight    int16
	Rshares   int64
	VotedAt   xtypes.TimePoint
}

// ViewEntry is one account's view of a post (spec.md §3.2 "comment view"):
// views contribute a small, fixed reward-power weight distinct from votes.
type ViewEntry struct {
	objectstore.Base
	CommentID uint64
	Viewer    xtypes.AccountName
	ViewedAt  xtypes.TimePoint
}

// ShareEntry is one account's share/reblog of a post (spec.md §3.2
// "comment share").
type ShareEntry struct {
	objectstore.Base
	CommentID uint64
	Sharer    xtypes.AccountName
	SharedAt  xtypes.TimePoint
}

// Community is a named grouping accounts can join, post into, and
// moderate (spec.md §3.2).
type Community struct {
	objectstore.Base
	Name      string
	Owner     xtypes.AccountName
	CreatedAt xtypes.TimePoint
}

// Mediator is an elected dispute-resolution role for escrowed transfers
// (SPEC_FULL.md §3.5, from original_source's network_object.hpp
// escrow_acceptable / accepted_mediator_rating fields): an account stakes
// to be nominated, then must Accept or Decline the role before it becomes
// active. MinAcceptedRating is the escrow_acceptable threshold -- the
// lowest counterparty rating this mediator will handle a dispute for.
type Mediator struct {
	objectstore.Base
	Account           xtypes.AccountName
	Stake             xtypes.ShareAmount
	Rating            uint32
	MinAcceptedRating uint32
	Active            bool
}

// CommunityEvent is a scheduled event tied to a community (SPEC_FULL.md
// §3.5, from original_source's community_object.hpp): it has a start/end
// window and an attendee list. Expired events are not swept by a periodic
// job; UpcomingEvents filters them out lazily on read instead.
type CommunityEvent struct {
	objectstore.Base
	CommunityID uint64
	Name        string
	StartTime   xtypes.TimePoint
	EndTime     xtypes.TimePoint
	Attendees   []xtypes.AccountName
}

// Store owns every content entity kind and the voting-power accounting
// that feeds cashout.
type Store struct {
	comments        *objectstore.Store[Comment]
	votes           *objectstore.Store[VoteEntry]
	views           *objectstore.Store[ViewEntry]
	shares          *objectstore.Store[ShareEntry]
	communities     *objectstore.Store[Community]
	mediators       *objectstore.Store[Mediator]
	communityEvents *objectstore.Store[CommunityEvent]
	ledger          *assets.Ledger
	state           *chainstate.State
}

func NewStore(db *objectstore.Database, ledger *assets.Ledger, state *chainstate.State) *Store {
	s := &Store{ledger: ledger, state: state}
	s.comments = objectstore.NewStore[Comment](db, "comment", func(c *Comment) uint64 { return c.ID }).
		WithUniqueIndex("by_author_permlink", func(c *Comment) (string, bool) { return commentKey(c.Author, c.Permlink), true })
	s.votes = objectstore.NewStore[VoteEntry](db, "comment_vote", func(v *VoteEntry) uint64 { return v.ID }).
		WithIndex("by_comment", func(v *VoteEntry) (string, bool) { return fmt.Sprint(v.CommentID), true })
	s.views = objectstore.NewStore[ViewEntry](db, "comment_view", func(v *ViewEntry) uint64 { return v.ID }).
		WithIndex("by_comment", func(v *ViewEntry) (string, bool) { return fmt.Sprint(v.CommentID), true })
	s.shares = objectstore.NewStore[ShareEntry](db, "comment_share", func(v *ShareEntry) uint64 { return v.ID }).
		WithIndex("by_comment", func(v *ShareEntry) (string, bool) { return fmt.Sprint(v.CommentID), true })
	s.communities = objectstore.NewStore[Community](db, "community", func(c *Community) uint64 { return c.ID }).
		WithUniqueIndex("by_name", func(c *Community) (string, bool) { return c.Name, true })
	s.mediators = objectstore.NewStore[Mediator](db, "mediator", func(m *Mediator) uint64 { return m.ID }).
		WithUniqueIndex("by_account", func(m *Mediator) (string, bool) { return string(m.Account), true })
	s.communityEvents = objectstore.NewStore[CommunityEvent](db, "community_event", func(e *CommunityEvent) uint64 { return e.ID }).
		WithIndex("by_community", func(e *CommunityEvent) (string, bool) { return fmt.Sprint(e.CommunityID), true })
	return s
}

// Post creates a new root post or reply (spec.md §3.2/§4.6).
func (s *Store) Post(author xtypes.AccountName, permlink string, parentAuthor xtypes.AccountName, parentPermlink string, rewardSymbol xtypes.Symbol, now xtypes.TimePoint) (*Comment, error) {
	if permlink == "" {
		return nil, chainerr.New(chainerr.InvalidName, "content: permlink must not be empty")
	}
	if _, ok := s.comments.FindByIndex("by_author_permlink", commentKey(author, permlink)); ok {
		return nil, chainerr.New(chainerr.UniqueKeyViolation, "content: author already used this permlink")
	}
	if parentAuthor != "" {
		parent, err := s.comments.GetByIndex("by_author_permlink", commentKey(parentAuthor, parentPermlink))
		if err != nil {
			return nil, err
		}
		if err := s.comments.Modify(parent, func(c *Comment) { c.ChildCount++ }); err != nil {
			return nil, err
		}
	}
	return s.comments.Create(
		func(c *Comment, id uint64) { c.ID = id },
		func(c *Comment) {
			c.Author = author
			c.Permlink = permlink
			c.ParentAuthor = parentAuthor
			c.ParentPermlink = parentPermlink
			c.RewardSymbol = rewardSymbol
			c.CreatedAt = now
			c.CashoutTime = now + cashoutDelay
		})
}

func (s *Store) Find(author xtypes.AccountName, permlink string) (*Comment, error) {
	return s.comments.GetByIndex("by_author_permlink", commentKey(author, permlink))
}

// votePower converts a vote's percentage weight and the voter's staked
// balance into rshares, the post's reward-weight currency (spec.md §4.6):
// proportional to both stake and requested weight.
func votePower(voterStaked xtypes.ShareAmount, weight int16) int64 {
	return int64(voterStaked) * int64(weight) / 10_000
}

// Vote records or updates an account's vote on a post, recomputing its net
// rshares (spec.md §3.2 comment vote, §4.6). A post that has already been
// cashed out can no longer be voted on.
func (s *Store) Vote(c *Comment, voter xtypes.AccountName, weight int16, voterStaked xtypes.ShareAmount, now xtypes.TimePoint) error {
	if c.CashedOut {
		return chainerr.New(chainerr.InvariantViolation, "content: cannot vote on a cashed-out post")
	}
	if weight < -10_000 || weight > 10_000 {
		return chainerr.New(chainerr.InvariantViolation, "content: vote weight out of range")
	}
	rshares := votePower(voterStaked, weight)

	var existing *VoteEntry
	for _, v := range s.votes.ListByIndex("by_comment", fmt.Sprint(c.ID)) {
		if v.Voter == voter {
			existing = v
			break
		}
	}
	delta := rshares
	if existing != nil {
		delta = rshares - existing.Rshares
		if err := s.votes.Modify(existing, func(v *VoteEntry) {
			v.Weight = weight
			v.Rshares = rshares
			v.VotedAt = now
		}); err != nil {
			return err
		}
	} else {
		if _, err := s.votes.Create(
			func(v *VoteEntry, id uint64) { v.ID = id },
			func(v *VoteEntry) {
				v.CommentID = c.ID
				v.Voter = voter
				v.Weight = weight
				v.Rshares = rshares
				v.VotedAt = now
			}); err != nil {
			return err
		}
	}

	return s.comments.Modify(c, func(c *Comment) {
		c.NetRshares = addSignedRshares(c.NetRshares, delta)
	})
}

// addSignedRshares applies delta (which may be negative, for a downvote
// or a vote being reduced) to a Uint128 accumulator, saturating at zero
// rather than wrapping (spec.md §3.3: reward shares never go negative).
func addSignedRshares(acc xtypes.Uint128, delta int64) xtypes.Uint128 {
	if delta >= 0 {
		return acc.Add(xtypes.U128FromUint64(uint64(delta)))
	}
	dec := xtypes.U128FromUint64(uint64(-delta))
	if acc.Cmp(dec) < 0 {
		return xtypes.Uint128{}
	}
	return acc.Sub(dec)
}

// View records an account's view of a post, contributing a small fixed
// reward-power weight (spec.md §3.2 comment view, §4.6).
const viewRshares = int64(1_000_000)

func (s *Store) View(c *Comment, viewer xtypes.AccountName, now xtypes.TimePoint) error {
	if c.CashedOut {
		return nil
	}
	if _, err := s.views.Create(
		func(v *ViewEntry, id uint64) { v.ID = id },
		func(v *ViewEntry) { v.CommentID = c.ID; v.Viewer = viewer; v.ViewedAt = now }); err != nil {
		return err
	}
	return s.comments.Modify(c, func(c *Comment) {
		c.NetRshares = c.NetRshares.Add(xtypes.U128FromUint64(uint64(viewRshares)))
	})
}

// Share records an account's share/reblog of a post (spec.md §3.2 comment
// share, §4.6), contributing its own fixed reward-power weight.
const shareRshares = int64(2_000_000)

func (s *Store) Share(c *Comment, sharer xtypes.AccountName, now xtypes.TimePoint) error {
	if c.CashedOut {
		return nil
	}
	if _, err := s.shares.Create(
		func(v *ShareEntry, id uint64) { v.ID = id },
		func(v *ShareEntry) { v.CommentID = c.ID; v.Sharer = sharer; v.SharedAt = now }); err != nil {
		return err
	}
	return s.comments.Modify(c, func(c *Comment) {
		c.NetRshares = c.NetRshares.Add(xtypes.U128FromUint64(uint64(shareRshares)))
	})
}

// CreateCommunity registers a new community (spec.md §3.2).
func (s *Store) CreateCommunity(name string, owner xtypes.AccountName, now xtypes.TimePoint) (*Community, error) {
	if _, ok := s.communities.FindByIndex("by_name", name); ok {
		return nil, chainerr.New(chainerr.UniqueKeyViolation, "content: community name already in use")
	}
	return s.communities.Create(
		func(c *Community, id uint64) { c.ID = id },
		func(c *Community) { c.Name = name; c.Owner = owner; c.CreatedAt = now })
}

// FindCommunityByID looks up a community by its object-store id.
func (s *Store) FindCommunityByID(id uint64) (*Community, error) {
	return s.communities.Get(id)
}

// NominateMediator registers account as a mediator candidate with a stake
// and the minimum counterparty rating it is willing to handle disputes
// for (SPEC_FULL.md §3.5). The mediator is inactive until it Accepts.
func (s *Store) NominateMediator(account xtypes.AccountName, stake xtypes.ShareAmount, minAcceptedRating uint32) (*Mediator, error) {
	if _, ok := s.mediators.FindByIndex("by_account", string(account)); ok {
		return nil, chainerr.New(chainerr.UniqueKeyViolation, "content: account is already a mediator candidate")
	}
	if stake <= 0 {
		return nil, chainerr.New(chainerr.InvariantViolation, "content: mediator stake must be positive")
	}
	return s.mediators.Create(
		func(m *Mediator, id uint64) { m.ID = id },
		func(m *Mediator) {
			m.Account = account
			m.Stake = stake
			m.MinAcceptedRating = minAcceptedRating
		})
}

// AcceptMediator activates a nominated mediator (spec.md-named accept/
// decline evaluator, SPEC_FULL.md §3.5).
func (s *Store) AcceptMediator(account xtypes.AccountName) error {
	m, err := s.mediators.GetByIndex("by_account", string(account))
	if err != nil {
		return err
	}
	return s.mediators.Modify(m, func(m *Mediator) { m.Active = true })
}

// DeclineMediator deactivates a mediator, withdrawing it from dispute
// rotation without removing its record (its stake and rating history stay
// addressable if it re-nominates).
func (s *Store) DeclineMediator(account xtypes.AccountName) error {
	m, err := s.mediators.GetByIndex("by_account", string(account))
	if err != nil {
		return err
	}
	return s.mediators.Modify(m, func(m *Mediator) { m.Active = false })
}

// FindMediator looks up a mediator by account.
func (s *Store) FindMediator(account xtypes.AccountName) (*Mediator, error) {
	return s.mediators.GetByIndex("by_account", string(account))
}

// ScheduleCommunityEvent creates a new event tied to community, running
// from startTime to endTime (SPEC_FULL.md §3.5).
func (s *Store) ScheduleCommunityEvent(community *Community, name string, startTime, endTime xtypes.TimePoint) (*CommunityEvent, error) {
	if endTime <= startTime {
		return nil, chainerr.New(chainerr.InvariantViolation, "content: community event end time must be after start time")
	}
	return s.communityEvents.Create(
		func(e *CommunityEvent, id uint64) { e.ID = id },
		func(e *CommunityEvent) {
			e.CommunityID = community.ID
			e.Name = name
			e.StartTime = startTime
			e.EndTime = endTime
		})
}

// FindCommunityEventByID looks up a community event by its object-store id.
func (s *Store) FindCommunityEventByID(id uint64) (*CommunityEvent, error) {
	return s.communityEvents.Get(id)
}

// AttendCommunityEvent adds account to an event's attendee list, unless it
// has already ended.
func (s *Store) AttendCommunityEvent(event *CommunityEvent, account xtypes.AccountName, now xtypes.TimePoint) error {
	if now >= event.EndTime {
		return chainerr.New(chainerr.InvariantViolation, "content: community event has already ended")
	}
	for _, a := range event.Attendees {
		if a == account {
			return nil
		}
	}
	return s.communityEvents.Modify(event, func(e *CommunityEvent) {
		e.Attendees = append(e.Attendees, account)
	})
}

// UpcomingEvents returns community's events that have not yet ended as of
// now, pruning expired ones lazily on read instead of through a periodic
// job (SPEC_FULL.md §3.5).
func (s *Store) UpcomingEvents(community *Community, now xtypes.TimePoint) []*CommunityEvent {
	var upcoming []*CommunityEvent
	for _, e := range s.communityEvents.ListByIndex("by_community", fmt.Sprint(community.ID)) {
		if now < e.EndTime {
			upcoming = append(upcoming, e)
		}
	}
	return upcoming
}

// ProcessCashouts pays out every post whose cashout time has arrived,
// crediting half of its share of the reward fund to the author and the
// other half to the accounts that voted, viewed, or shared it (see
// distributeCuratorShare for how that half is divided) (spec.md §4.7
// "Content cashout"). The fund's claim uses xtypes.Uint128.ApproxSqrt so
// that a post's payout grows sublinearly in its rshares, the historical
// "convergent" reward-curve shape, computed deterministically per
// spec.md §9's bit-matching requirement.
func (s *Store) ProcessCashouts(now xtypes.TimePoint) error {
	for _, c := range s.comments.All() {
		if c.CashedOut || now < c.CashoutTime {
			continue
		}
		if err := s.cashout(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) cashout(c *Comment) error {
	fund := s.state.RewardFundFor(c.RewardSymbol)
	claim := xtypes.U128FromUint64(c.NetRshares.ApproxSqrt())
	fund.RecentClaims = fund.RecentClaims.Add(claim)
	if fund.RecentClaims.IsZero() || claim.IsZero() || fund.RewardBalance.Amount <= 0 {
		return s.comments.Modify(c, func(c *Comment) { c.CashedOut = true })
	}

	payout := xtypes.ShareAmount(uint64(fund.RewardBalance.Amount) * claim.Lo / fund.RecentClaims.Lo)
	if payout <= 0 {
		return s.comments.Modify(c, func(c *Comment) { c.CashedOut = true })
	}
	if payout > fund.RewardBalance.Amount {
		payout = fund.RewardBalance.Amount
	}
	fund.RewardBalance.Amount -= payout

	authorShare := payout / 2
	curatorShare := payout - authorShare

	if err := s.ledger.CreditReward(c.Author, xtypes.NewAsset(authorShare, c.RewardSymbol)); err != nil {
		return err
	}
	if err := s.distributeCuratorShare(c, curatorShare); err != nil {
		return err
	}
	return s.comments.Modify(c, func(c *Comment) { c.CashedOut = true })
}

// distributeCuratorShare splits curatorShare among voters (weighted by
// rshares), viewers, and sharers (weighted equally within their own
// group) -- voters' contribution dominates since they carry the post's
// actual reward-power weight, while viewers and sharers each split a flat
// tenth evenly within their group (spec.md §4.7: "split among author, voters ..., viewers,
// sharers, commenters, moderators").
func (s *Store) distributeCuratorShare(c *Comment, curatorShare xtypes.ShareAmount) error {
	votes := s.votes.ListByIndex("by_comment", fmt.Sprint(c.ID))
	views := s.views.ListByIndex("by_comment", fmt.Sprint(c.ID))
	shares := s.shares.ListByIndex("by_comment", fmt.Sprint(c.ID))

	viewShareTotal := curatorShare / 10
	shareShareTotal := curatorShare / 10
	voteShareTotal := curatorShare - viewShareTotal - shareShareTotal

	var totalVoteRshares int64
	for _, v := range votes {
		if v.Rshares > 0 {
			totalVoteRshares += v.Rshares
		}
	}
	if totalVoteRshares > 0 {
		for _, v := range votes {
			if v.Rshares <= 0 {
				continue
			}
			amt := xtypes.ShareAmount(int64(voteShareTotal) * v.Rshares / totalVoteRshares)
			if amt <= 0 {
				continue
			}
			if err := s.ledger.CreditReward(v.Voter, xtypes.NewAsset(amt, c.RewardSymbol)); err != nil {
				return err
			}
		}
	}
	if len(views) > 0 {
		per := viewShareTotal / xtypes.ShareAmount(len(views))
		if per > 0 {
			for _, v := range views {
				if err := s.ledger.CreditReward(v.Viewer, xtypes.NewAsset(per, c.RewardSymbol)); err != nil {
					return err
				}
			}
		}
	}
	if len(shares) > 0 {
		per := shareShareTotal / xtypes.ShareAmount(len(shares))
		if per > 0 {
			for _, sh := range shares {
				if err := s.ledger.CreditReward(sh.Sharer, xtypes.NewAsset(per, c.RewardSymbol)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
