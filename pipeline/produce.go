package pipeline

import (
	"nodechain/chainerr"
	"nodechain/governance"
	"nodechain/wire"
	"nodechain/xtypes"
)

// ProduceBlock implements spec.md §4.4.4: assert this node is the slot's
// scheduled producer, rebuild the pending-transaction session against the
// new block's timestamp, pack as many mempool transactions as fit under
// the block-size ceiling, sign the header with signingKey, and push the
// result through the node's own Pipeline.PushBlock.
func (p *Pipeline) ProduceBlock(producer xtypes.AccountName, signingKey xtypes.PrivateKey, timestamp xtypes.TimePoint) (*Block, error) {
	p.mu.Lock()

	if !p.skip.Has(SkipSchedule) {
		slot := governance.SlotAtTime(p.cfg.Genesis, timestamp, p.cfg.BlockInterval)
		sched := p.ctx.State.CurrentSchedule()
		expected, ok := governance.ScheduledProducer(sched, p.ctx.State.Dynamic.CurrentAslot, slot)
		if !ok || expected != producer {
			p.mu.Unlock()
			return nil, chainerr.New(chainerr.InvariantViolation, "pipeline: produce_block: not this node's slot")
		}
	}

	head := p.fork.Head()
	if head == nil {
		p.mu.Unlock()
		return nil, chainerr.New(chainerr.InvariantViolation, "pipeline: produce_block: no head block")
	}

	// Rebuild the pending-transaction session against the new block's
	// time so time-dependent checks (expiration, TaPoS) evaluate as they
	// will when the block is actually applied (spec.md §4.4.4 step 2).
	p.closeMempool()
	p.openMempool()

	candidates := p.mempoolTxs
	p.mempoolTxs = nil

	packed := make([]*Transaction, 0, len(candidates))
	var postponed []*Transaction
	size := 0
	for _, tx := range candidates {
		encoded := wire.Encode(tx)
		if size+len(encoded) > p.cfg.MaxBlockSize {
			postponed = append(postponed, tx)
			continue
		}
		if err := ApplyTransaction(p.ctx, tx, timestamp, head.Number, p.skip); err != nil {
			// A transaction that no longer applies against the new block
			// time (e.g. it just expired) is dropped, not postponed.
			continue
		}
		packed = append(packed, tx)
		size += len(encoded)
	}
	p.mempoolTxs = postponed

	ids := make([]xtypes.ID160, len(packed))
	for i, tx := range packed {
		ids[i] = tx.ID()
	}

	var exts []Extension
	if p.ctx.State.Hardfork.CurrentHardforkVersion != p.ctx.State.Schedule.Version {
		exts = append(exts, NewHardforkVersionVoteExtension(p.ctx.State.Hardfork.CurrentHardforkVersion))
	}

	blk := &Block{
		Previous:     head.ID,
		Timestamp:    timestamp,
		Producer:     producer,
		MerkleRoot:   MerkleRootOf(ids),
		Extensions:   exts,
		Transactions: packed,
	}
	digest := xtypes.Sha256(blk.headerBytes())
	blk.ProducerSig = signingKey.Sign(digest)

	p.mu.Unlock()

	if err := p.PushBlock(blk); err != nil {
		return nil, err
	}
	return blk, nil
}
