// Package governance implements producer registration, schedule election
// and shuffle, proof-of-work mining, and block-validation duties spec.md
// §4.8 "Consensus scheduling and proof of work" describes.
//
// Grounded on the teacher's core/consensus.go (PoH+PoS+PoW hybrid: kept
// the sub-block-header hashing shape and difficulty-retarget constant)
// and core/authority_nodes.go (staking and
// approval counters, reused here for producer approval-power tallying).
package governance

import (
	"nodechain/chainerr"
	"nodechain/objectstore"
	"nodechain/xtypes"
)

// Producer is one registered block-producer candidate (a.k.a. witness,
// spec.md §3.3 GLOSSARY: "signing key, running version, last-confirmed
// block, total missed, accumulated activity stake").
type Producer struct {
	objectstore.Base
	Owner              xtypes.AccountName
	SigningKey         xtypes.PublicKey
	RunningVersion     uint32
	LastConfirmedBlock uint64
	TotalMissed        uint32
	ApprovalPower      xtypes.ShareAmount // sum of staked approval votes
	RecentWork         xtypes.Uint128     // most recent proof-of-work summary; lower is better
	LastWorkTime       xtypes.TimePoint
	Active             bool
}

// Registry owns every registered producer and the per-account approval
// votes that feed ApprovalPower.
type Registry struct {
	producers *objectstore.Store[Producer]
	votes     *objectstore.Store[approvalVote]
}

// approvalVote is one account's approval vote for one producer (spec.md
// §4.6 "vote_for_producer"); tracked separately so re-voting or unvoting
// can adjust ApprovalPower without double counting.
type approvalVote struct {
	objectstore.Base
	Voter    xtypes.AccountName
	Producer xtypes.AccountName
	Power    xtypes.ShareAmount
}

func voteKey(voter, producer xtypes.AccountName) string {
	return string(voter) + "/" + string(producer)
}

func NewRegistry(db *objectstore.Database) *Registry {
	r := &Registry{}
	r.producers = objectstore.NewStore[Producer](db, "producer", func(p *Producer) uint64 { return p.ID }).
		WithUniqueIndex("by_owner", func(p *Producer) (string, bool) { return string(p.Owner), true })
	r.votes = objectstore.NewStore[approvalVote](db, "producer_vote", func(v *approvalVote) uint64 { return v.ID }).
		WithUniqueIndex("by_voter_producer", func(v *approvalVote) (string, bool) { return voteKey(v.Voter, v.Producer), true }).
		WithIndex("by_producer", func(v *approvalVote) (string, bool) { return string(v.Producer), true })
	return r
}

// Register enrolls owner as a producer candidate (spec.md §4.6).
func (r *Registry) Register(owner xtypes.AccountName, signingKey xtypes.PublicKey) (*Producer, error) {
	if _, ok := r.producers.FindByIndex("by_owner", string(owner)); ok {
		return nil, chainerr.New(chainerr.UniqueKeyViolation, "governance: account is already a registered producer")
	}
	return r.producers.Create(
		func(p *Producer, id uint64) { p.ID = id },
		func(p *Producer) {
			p.Owner = owner
			p.SigningKey = signingKey
			p.Active = true
		})
}

func (r *Registry) ByOwner(owner xtypes.AccountName) (*Producer, error) {
	return r.producers.GetByIndex("by_owner", string(owner))
}

func (r *Registry) All() []*Producer {
	return r.producers.All()
}

// Vote casts or updates voter's approval vote for producer, weighted by
// the voter's current staked power (spec.md §4.6 "vote_for_producer",
// §4.7 "Producer/officer/executive/governance updates" daily recompute).
func (r *Registry) Vote(voter, producer xtypes.AccountName, power xtypes.ShareAmount) error {
	p, err := r.producers.GetByIndex("by_owner", string(producer))
	if err != nil {
		return err
	}
	existing, ok := r.votes.FindByIndex("by_voter_producer", voteKey(voter, producer))
	if ok {
		delta := power - existing.Power
		if err := r.votes.Modify(existing, func(v *approvalVote) { v.Power = power }); err != nil {
			return err
		}
		return r.producers.Modify(p, func(p *Producer) { p.ApprovalPower += delta })
	}
	if _, err := r.votes.Create(
		func(v *approvalVote, id uint64) { v.ID = id },
		func(v *approvalVote) { v.Voter = voter; v.Producer = producer; v.Power = power }); err != nil {
		return err
	}
	return r.producers.Modify(p, func(p *Producer) { p.ApprovalPower += power })
}

// Unvote removes voter's approval vote for producer, if any.
func (r *Registry) Unvote(voter, producer xtypes.AccountName) error {
	existing, ok := r.votes.FindByIndex("by_voter_producer", voteKey(voter, producer))
	if !ok {
		return nil
	}
	p, err := r.producers.GetByIndex("by_owner", string(producer))
	if err != nil {
		return err
	}
	r.votes.Remove(existing)
	return r.producers.Modify(p, func(p *Producer) { p.ApprovalPower -= existing.Power })
}

// RecordProduced updates a producer's bookkeeping after it signs a block
// (spec.md §4.4 step 6: "update signing producer: missed counters,
// running version, last-confirmed block").
func (r *Registry) RecordProduced(owner xtypes.AccountName, blockNumber uint64, version uint32) error {
	p, err := r.producers.GetByIndex("by_owner", string(owner))
	if err != nil {
		return err
	}
	return r.producers.Modify(p, func(p *Producer) {
		p.LastConfirmedBlock = blockNumber
		p.RunningVersion = version
	})
}

// RecordMissed increments owner's missed-slot counter (spec.md §4.4 step
// 1: a block not produced for a scheduled slot is a miss, tallied against
// whichever producer held that slot).
func (r *Registry) RecordMissed(owner xtypes.AccountName) error {
	p, err := r.producers.GetByIndex("by_owner", string(owner))
	if err != nil {
		return err
	}
	return r.producers.Modify(p, func(p *Producer) { p.TotalMissed++ })
}
