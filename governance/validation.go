package governance

import (
	"nodechain/assets"
	"nodechain/chainerr"
	"nodechain/objectstore"
	"nodechain/xtypes"
)

// Commitment is one producer's signed claim to have observed a block at
// or below the confirmation depth (spec.md §4.8 "Block validation
// duties": "producers submit signed verify_block and commit_block
// transactions observing blocks at the confirmation depth. A commit
// stakes a configured amount; if the producer later supports a
// conflicting fork at that height, the stake is slashed").
type Commitment struct {
	objectstore.Base
	Producer    xtypes.AccountName
	BlockNumber uint64
	BlockID     xtypes.ID160
	Stake       xtypes.Asset
	Slashed     bool
}

// Commitments owns every outstanding block-validation stake.
type Commitments struct {
	commitments *objectstore.Store[Commitment]
	ledger      *assets.Ledger
}

func commitKey(producer xtypes.AccountName, blockNumber uint64) string {
	return string(producer) + "@" + uintToString(blockNumber)
}

func uintToString(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func NewCommitments(db *objectstore.Database, ledger *assets.Ledger) *Commitments {
	c := &Commitments{ledger: ledger}
	c.commitments = objectstore.NewStore[Commitment](db, "commitment", func(m *Commitment) uint64 { return m.ID }).
		WithUniqueIndex("by_producer_block", func(m *Commitment) (string, bool) {
			return commitKey(m.Producer, m.BlockNumber), true
		}).
		WithIndex("by_block", func(m *Commitment) (string, bool) { return uintToString(m.BlockNumber), true })
	return c
}

// VerifyBlock records a producer's observation of a block at the
// confirmation depth without staking anything (spec.md §4.8 "verify_block
// ... transactions"). It is idempotent per (producer, block).
func (c *Commitments) VerifyBlock(producer xtypes.AccountName, blockNumber uint64, blockID xtypes.ID160) error {
	if _, ok := c.commitments.FindByIndex("by_producer_block", commitKey(producer, blockNumber)); ok {
		return nil
	}
	_, err := c.commitments.Create(
		func(m *Commitment, id uint64) { m.ID = id },
		func(m *Commitment) { m.Producer = producer; m.BlockNumber = blockNumber; m.BlockID = blockID })
	return err
}

// CommitBlock stakes amount behind producer's claim that blockID is the
// canonical block at blockNumber (spec.md §4.8 "commit_block ... a
// commit stakes a configured amount").
func (c *Commitments) CommitBlock(producer xtypes.AccountName, blockNumber uint64, blockID xtypes.ID160, stake xtypes.Asset) error {
	if _, ok := c.commitments.FindByIndex("by_producer_block", commitKey(producer, blockNumber)); ok {
		return chainerr.New(chainerr.UniqueKeyViolation, "governance: producer already committed at this block number")
	}
	if err := c.ledger.DebitLiquid(producer, stake); err != nil {
		return err
	}
	_, err := c.commitments.Create(
		func(m *Commitment, id uint64) { m.ID = id },
		func(m *Commitment) {
			m.Producer = producer
			m.BlockNumber = blockNumber
			m.BlockID = blockID
			m.Stake = stake
		})
	return err
}

// SlashConflicting inspects every commitment recorded at blockNumber and
// slashes (forfeits to the network revenue pool, via the caller) any
// whose committed block id disagrees with canonicalID -- the producer
// supported a conflicting fork at that height after committing (spec.md
// §4.8: "if the producer later supports a conflicting fork at that
// height, the stake is slashed"). Returns the total slashed amount for
// the caller to route into chain revenue.
func (c *Commitments) SlashConflicting(blockNumber uint64, canonicalID xtypes.ID160) (xtypes.ShareAmount, error) {
	var total xtypes.ShareAmount
	for _, m := range c.commitments.ListByIndex("by_block", uintToString(blockNumber)) {
		if m.Slashed || m.Stake.Amount <= 0 || m.BlockID == canonicalID {
			continue
		}
		if err := c.commitments.Modify(m, func(m *Commitment) { m.Slashed = true }); err != nil {
			return total, err
		}
		total += m.Stake.Amount
	}
	return total, nil
}
