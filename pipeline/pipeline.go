// Package pipeline ties the object store, fork database, and block log
// together into the push_block/push_transaction/produce_block pipeline
// spec.md §4.4 describes, dispatching every operation through the
// evaluator registry wired up in context.go.
package pipeline

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"nodechain/blocklog"
	"nodechain/chainerr"
	"nodechain/forkdb"
	"nodechain/objectstore"
	"nodechain/wire"
	"nodechain/xtypes"
)

// blockFrame pairs one accepted-but-not-yet-irreversible block with the
// object-store session that applied it (spec.md §3.4: "On block
// acceptance, the session opened to apply the block is committed").
type blockFrame struct {
	number  uint64
	id      xtypes.ID160
	session *objectstore.Session
}

// Pipeline is one running node's state machine: the object store, the
// fork database of competing in-memory branches, and the durable block
// log of everything that has become irreversible.
type Pipeline struct {
	mu sync.Mutex

	db  *objectstore.Database
	ctx *Context

	fork *forkdb.Database
	log  *blocklog.BlockLog

	cfg  ChainConfig
	skip SkipFlags

	pending []blockFrame // ascending by number; oldest not-yet-irreversible first

	mempoolSession *objectstore.Session
	mempoolTxs     []*Transaction
}

// Open creates (or reopens) a node rooted at dataDir/block_log and
// dataDir/block_log.index, with a fresh in-memory object store and fork
// database (spec.md §6 "Persisted layout").
func Open(dataDir string, cfg ChainConfig) (*Pipeline, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, chainerr.Wrap(chainerr.InvariantViolation, "pipeline: create data dir", err)
	}
	blockLog, err := blocklog.Open(filepath.Join(dataDir, "block_log"), filepath.Join(dataDir, "block_log.index"))
	if err != nil {
		return nil, err
	}

	db := objectstore.NewDatabase()
	ctx := NewContext(db)
	forkDB := forkdb.New(logrus.NewEntry(logrus.StandardLogger()))
	forkDB.StartBlock(&forkdb.Node{ID: xtypes.ID160{}, Number: 0})

	p := &Pipeline{db: db, ctx: ctx, fork: forkDB, log: blockLog, cfg: cfg, skip: SkipNothing}
	p.openMempool()
	return p, nil
}

// Close releases the block log's file handles. The in-memory object store
// and fork database have nothing to flush.
func (p *Pipeline) Close() error {
	return p.log.Close()
}

// Context returns the node's evaluator context, for callers that need
// read access to chain state (RPC handlers, tests) outside the pipeline.
func (p *Pipeline) Context() *Context { return p.ctx }

// SetSkipFlags overrides the validation layers applied to every
// subsequently pushed block (spec.md §6 "Skip flags"); used during
// trusted replay/reindex.
func (p *Pipeline) SetSkipFlags(skip SkipFlags) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.skip = skip
}

// Status is the node's read-only head/irreversibility summary (spec.md
// §6 "Read-only accessors for every entity kind").
type Status struct {
	HeadBlockNumber             uint64
	HeadBlockID                 xtypes.ID160
	LastIrreversibleBlockNumber uint64
}

// Status reports the current head and last-irreversible block, the
// latter being the newest block already committed to the block log.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	head := p.fork.Head()
	s := Status{HeadBlockNumber: p.ctx.State.Dynamic.HeadBlockNumber, HeadBlockID: p.ctx.State.Dynamic.HeadBlockID}
	if head != nil {
		s.HeadBlockNumber = head.Number
		s.HeadBlockID = head.ID
	}
	s.LastIrreversibleBlockNumber = p.log.Head()
	return s
}

func (p *Pipeline) openMempool() {
	p.mempoolSession = p.db.StartUndoSession(true)
	p.mempoolTxs = nil
}

// closeMempool discards every speculative (not-yet-block-applied)
// transaction, undoing their effects. Called before building or applying
// a real block, whose apply_transaction calls must start from clean state.
func (p *Pipeline) closeMempool() {
	if p.mempoolSession != nil && !p.mempoolSession.Closed() {
		p.mempoolSession.Discard()
	}
}

// PushTransaction speculatively applies tx against the current head state
// inside the mempool session, so that a later produce_block can pack it
// (spec.md §4.4.3, applied here outside of any block). Failure leaves the
// mempool's other pending transactions untouched.
func (p *Pipeline) PushTransaction(tx *Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	headTime := p.ctx.State.Dynamic.Time
	headNumber := p.ctx.State.Dynamic.HeadBlockNumber
	if err := ApplyTransaction(p.ctx, tx, headTime, headNumber, p.skip); err != nil {
		return err
	}
	p.mempoolTxs = append(p.mempoolTxs, tx)
	return nil
}

// nextBlockNumber resolves previous's forkdb node to derive the new
// block's height.
func (p *Pipeline) nextBlockNumber(previous xtypes.ID160) (uint64, error) {
	parent, err := p.fork.FetchBlock(previous)
	if err != nil {
		return 0, chainerr.Wrap(chainerr.NotFound, "pipeline: push_block: unknown parent", err)
	}
	return parent.Number + 1, nil
}

// PushBlock runs spec.md §4.4.1 against blk.
func (p *Pipeline) PushBlock(blk *Block) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	number, err := p.nextBlockNumber(blk.Previous)
	if err != nil {
		return err
	}
	id := blk.ID(uint32(number))

	if _, err := p.fork.FetchBlock(id); err == nil {
		return nil // step 1: already known, no-op
	}

	headBefore := p.fork.Head()
	node := &forkdb.Node{ID: id, Previous: blk.Previous, Number: number, Block: blk}
	if err := p.fork.PushBlock(node); err != nil {
		return err
	}
	headAfter := p.fork.Head()

	if headAfter.ID != id {
		// Inserted, but a longer branch is still head: store only.
		return nil
	}

	p.closeMempool()
	defer p.openMempool()

	if headBefore == nil || node.Previous == headBefore.ID {
		if err := p.applyAndRecord(node, blk, number); err != nil {
			p.fork.Remove(id)
			return err
		}
		return nil
	}

	return p.switchForks(headBefore, node)
}

// applyAndRecord runs apply_block for node inside a fresh session and, on
// success, keeps that session open on the pending stack (Push, not
// Commit) so it remains undoable until irreversibility catches up to it
// (spec.md §3.4, §4.4.2 step 7).
func (p *Pipeline) applyAndRecord(node *forkdb.Node, blk *Block, number uint64) error {
	session := p.db.StartUndoSession(true)
	if err := ApplyBlock(p.ctx, blk, number, p.cfg, p.skip); err != nil {
		session.Discard()
		return err
	}
	session.Push()
	p.fork.MarkValidated(node.ID)
	p.pending = append(p.pending, blockFrame{number: number, id: node.ID, session: session})
	// revision() must equal head_block_number after every successful block
	// application (spec.md §4.1), even though the underlying session stays
	// uncommitted (Push, not Commit) until irreversibility catches up to it.
	p.db.SetRevision(number)
	return p.advanceIrreversibility()
}

// switchForks implements spec.md §4.4.1 step 3: pop sessions back to the
// common ancestor, apply every block on the new branch, and on any
// failure restore the old branch exactly as it stood.
func (p *Pipeline) switchForks(oldHead, newHead *forkdb.Node) error {
	oldBranch, newBranch, err := p.fork.FetchBranchFrom(oldHead.ID, newHead.ID)
	if err != nil {
		p.fork.Remove(newHead.ID)
		_ = p.fork.SetHead(oldHead.ID)
		return err
	}

	// Pop the old branch's sessions, tip-first, reverting their effects.
	// Each was finalized with Push() when applied (so Closed() is already
	// true) but remains resident on the session stack until Discard() or
	// Commit() actually removes it; Discard() here reverts it now.
	for range oldBranch {
		if len(p.pending) == 0 {
			break
		}
		last := p.pending[len(p.pending)-1]
		p.pending = p.pending[:len(p.pending)-1]
		last.session.Discard()
	}

	// Apply the new branch, ancestor-to-tip (FetchBranchFrom returns
	// tip-to-ancestor order, so walk it backwards).
	applied := make([]*forkdb.Node, 0, len(newBranch))
	for i := len(newBranch) - 1; i >= 0; i-- {
		n := newBranch[i]
		blk, ok := n.Block.(*Block)
		if !ok {
			err = chainerr.New(chainerr.InvariantViolation, "pipeline: fork branch node missing decoded block")
			break
		}
		if applyErr := p.applyBranchNode(n, blk); applyErr != nil {
			err = applyErr
			break
		}
		applied = append(applied, n)
	}

	if err == nil {
		_ = p.fork.SetHead(newHead.ID)
		return p.advanceIrreversibility()
	}

	// Failure: undo whatever of the new branch we managed to apply, drop
	// the offending blocks from the fork database, and re-apply the old
	// branch so the node ends up exactly as it started (spec.md §4.4.1
	// step 3b).
	for i := len(applied) - 1; i >= 0; i-- {
		if len(p.pending) > 0 {
			last := p.pending[len(p.pending)-1]
			p.pending = p.pending[:len(p.pending)-1]
			last.session.Discard()
		}
		p.fork.Remove(applied[i].ID)
	}
	p.fork.Remove(newHead.ID)

	for i := len(oldBranch) - 1; i >= 0; i-- {
		n := oldBranch[i]
		blk, ok := n.Block.(*Block)
		if !ok {
			continue
		}
		_ = p.applyBranchNode(n, blk)
	}
	_ = p.fork.SetHead(oldHead.ID)
	return chainerr.Wrap(chainerr.ForkSwitchFailed, "pipeline: fork switch failed, old branch restored", err)
}

func (p *Pipeline) applyBranchNode(n *forkdb.Node, blk *Block) error {
	session := p.db.StartUndoSession(true)
	if err := ApplyBlock(p.ctx, blk, n.Number, p.cfg, p.skip); err != nil {
		session.Discard()
		return err
	}
	session.Push()
	p.fork.MarkValidated(n.ID)
	p.pending = append(p.pending, blockFrame{number: n.Number, id: n.ID, session: session})
	p.db.SetRevision(n.Number)
	return nil
}

// advanceIrreversibility commits every pending session whose block height
// has reached the configured confirmation depth behind the current head,
// appends those blocks to the block log, and prunes the fork database
// down to the new irreversible root (spec.md §4.4.2 step 7).
func (p *Pipeline) advanceIrreversibility() error {
	head := p.fork.Head()
	if head == nil || head.Number < p.cfg.ConfirmationDepth {
		return nil
	}
	irreversibleHeight := head.Number - p.cfg.ConfirmationDepth

	cut := 0
	for cut < len(p.pending) && p.pending[cut].number <= irreversibleHeight {
		cut++
	}
	if cut == 0 {
		return nil
	}

	// Session.Commit() commits its own frame and every frame below it on
	// the stack at once, so committing the newest-to-be-irreversible
	// frame collapses everything older in a single call.
	newestToCommit := p.pending[cut-1]
	if !skipBlockLogFor(p.skip) {
		for i := 0; i < cut; i++ {
			frame := p.pending[i]
			node, err := p.fork.FetchBlock(frame.id)
			if err != nil {
				continue
			}
			blk, ok := node.Block.(*Block)
			if !ok {
				continue
			}
			if err := p.log.Append(frame.number, wire.Encode(blk)); err != nil {
				return err
			}
		}
	}
	// newestToCommit's session was already finalized with Push() when its
	// block was applied (spec.md §3.4: "push() finalizes ... held for
	// later undo"); Commit() now permanently collapses it, and every
	// still-pushed session below it on the stack, into the store (spec.md
	// §4.1 "commit() marks all prior sessions permanent up to this one").
	newestToCommit.session.Commit()
	// Commit() advances the store's internal revision by exactly one
	// regardless of how many frames it cascaded over; re-pin it to
	// head_block_number so revision() == head_block_number continues to
	// hold (spec.md §4.1).
	p.db.SetRevision(head.Number)
	p.pending = p.pending[cut:]

	if newRoot, err := p.fork.FetchBlock(newestToCommit.id); err == nil {
		p.fork.Prune(newRoot)
	}
	return nil
}

func skipBlockLogFor(skip SkipFlags) bool { return skip.Has(SkipBlockLog) }

// Reindex replays every block in the block log from scratch, rebuilding
// object-store state with every validation layer skipped except the
// merkle check (spec.md §4.3, §6 "reindex may skip everything except
// merkle checks").
func (p *Pipeline) Reindex() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closeMempool()
	defer p.openMempool()

	originalSkip := p.skip

	p.db = objectstore.NewDatabase()
	p.ctx = NewContext(p.db)
	p.fork = forkdb.New(logrus.NewEntry(logrus.StandardLogger()))
	p.fork.StartBlock(&forkdb.Node{ID: xtypes.ID160{}, Number: 0})
	p.pending = nil
	p.skip = ReindexSkip

	head := p.log.Head()
	for n := uint64(1); n <= head; n++ {
		raw, err := p.log.ReadBlock(n)
		if err != nil {
			return err
		}
		blk := &Block{}
		if err := wire.Decode(raw, blk); err != nil {
			return chainerr.Wrap(chainerr.InvalidEncoding, "pipeline: reindex: decode block", err)
		}
		if err := ApplyBlock(p.ctx, blk, n, p.cfg, p.skip); err != nil {
			return chainerr.Wrap(chainerr.InvariantViolation, "pipeline: reindex: apply block", err)
		}
		id := blk.ID(uint32(n))
		node := &forkdb.Node{ID: id, Previous: blk.Previous, Number: n, Block: blk, Validated: true}
		if err := p.fork.PushBlock(node); err != nil {
			return err
		}
	}
	p.db.SetRevision(head)
	p.skip = originalSkip
	return nil
}
