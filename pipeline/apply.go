package pipeline

import (
	"encoding/binary"
	"fmt"

	"nodechain/authority"
	"nodechain/chainerr"
	"nodechain/evaluator"
	"nodechain/governance"
	"nodechain/objectstore"
	"nodechain/xtypes"
)

// ChainConfig holds the consensus parameters apply_block and produce_block
// read (spec.md §4.4, §4.8, §6). Values are fixed at genesis and do not
// change except by hardfork.
type ChainConfig struct {
	Genesis           xtypes.TimePoint
	BlockInterval     xtypes.TimePoint
	ConfirmationDepth uint64
	MaxBlockSize      int
	Election          governance.ElectionConfig
}

// DefaultChainConfig returns reasonable defaults for a fresh chain: a
// 3-second block interval, 15-block confirmation depth (spec.md §4.8
// "commit at the confirmation depth"), a 2 MiB block-size ceiling, and a
// 19-DPoS/2-PoW election split.
func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		BlockInterval:     xtypes.TimePoint(3_000_000),
		ConfirmationDepth: 15,
		MaxBlockSize:      2 << 20,
		Election:          governance.ElectionConfig{NumDPoS: 19, NumPoW: 2},
	}
}

// authorityRecursionDepth bounds delegated-account authority walks,
// matching authority.Authority.Satisfies' own recursion limit.
const authorityRecursionDepth = 4

// MaxExpirationDelta bounds how far in the future a transaction's
// expiration may be set (spec.md §4.4.3 step 1).
const MaxExpirationDelta = xtypes.TimePoint(120 * 1_000_000) // 2 minutes, in microseconds

// BlockSummary records the block id last seen at height mod 0x10000, a
// ring buffer consulted by TaPoS checks (spec.md §4.4.2 step 4, §4.4.3
// step 2).
type BlockSummary struct {
	objectstore.Base
	Key     uint16
	BlockID xtypes.ID160
}

// TxEntry indexes one applied transaction id for the duration of its
// expiration window, rejecting replays (spec.md §4.4.3 step 4).
type TxEntry struct {
	objectstore.Base
	TxID       xtypes.ID160
	Expiration xtypes.TimePoint
}

func blockSummaryKey(height uint64) string { return fmt.Sprintf("%d", uint16(height%0x10000)) }
func txIndexKey(id xtypes.ID160) string    { return string(id[:]) }

// Bookkeeping owns the block-summary ring and transaction-dedup index
// apply_block and apply_transaction consult (spec.md §4.4.2, §4.4.3).
type Bookkeeping struct {
	summaries *objectstore.Store[BlockSummary]
	txIndex   *objectstore.Store[TxEntry]
}

func NewBookkeeping(db *objectstore.Database) *Bookkeeping {
	bk := &Bookkeeping{}
	bk.summaries = objectstore.NewStore[BlockSummary](db, "block_summary", func(s *BlockSummary) uint64 { return s.ID }).
		WithUniqueIndex("by_key", func(s *BlockSummary) (string, bool) { return fmt.Sprintf("%d", s.Key), true })
	bk.txIndex = objectstore.NewStore[TxEntry](db, "tx_index", func(e *TxEntry) uint64 { return e.ID }).
		WithUniqueIndex("by_txid", func(e *TxEntry) (string, bool) { return txIndexKey(e.TxID), true })
	return bk
}

// RecordBlockSummary overwrites the ring-buffer slot for height with id.
func (bk *Bookkeeping) RecordBlockSummary(height uint64, id xtypes.ID160) error {
	key := blockSummaryKey(height)
	if existing, ok := bk.summaries.FindByIndex("by_key", key); ok {
		return bk.summaries.Modify(existing, func(s *BlockSummary) { s.BlockID = id })
	}
	_, err := bk.summaries.Create(
		func(s *BlockSummary, id uint64) { s.ID = id },
		func(s *BlockSummary) { s.Key = uint16(height % 0x10000); s.BlockID = id })
	return err
}

// BlockIDAt returns the block id currently occupying height's ring slot,
// which is only meaningful if height is within the last 0x10000 blocks.
func (bk *Bookkeeping) BlockIDAt(height uint64) (xtypes.ID160, bool) {
	s, ok := bk.summaries.FindByIndex("by_key", blockSummaryKey(height))
	if !ok {
		return xtypes.ID160{}, false
	}
	return s.BlockID, true
}

// refBlockPrefix extracts the 4 bytes following a block id's embedded
// height, the convention TaPoS prefixes are drawn from (spec.md §6: ids
// are SHA-256 truncated to 160 bits with the height overwriting the first
// 4 bytes, leaving bytes 4:8 as the first real hash bytes).
func refBlockPrefix(id xtypes.ID160) uint32 {
	return binary.LittleEndian.Uint32(id[4:8])
}

// RecordTransaction indexes tx's id for the duration of its expiration
// window (spec.md §4.4.3 step 6).
func (bk *Bookkeeping) RecordTransaction(id xtypes.ID160, expiration xtypes.TimePoint) error {
	_, err := bk.txIndex.Create(
		func(e *TxEntry, id uint64) { e.ID = id },
		func(e *TxEntry) { e.TxID = id; e.Expiration = expiration })
	return err
}

// ClearExpiredTransactions drops every indexed transaction id whose
// expiration has passed (spec.md §4.7 "Clear expired transactions").
func (bk *Bookkeeping) ClearExpiredTransactions(now xtypes.TimePoint) {
	for _, e := range bk.txIndex.All() {
		if now >= e.Expiration {
			bk.txIndex.Remove(e)
		}
	}
}

// ApplyTransaction runs spec.md §4.4.3 against tx inside a nested session
// of ctx.DB. headTime is the block's timestamp (the "now" every
// expiration/TaPoS check is relative to); refHeight is the height of the
// block tx is being applied within (used to resolve RefBlockNum into an
// absolute height for the TaPoS lookup).
func ApplyTransaction(ctx *Context, tx *Transaction, headTime xtypes.TimePoint, refHeight uint64, skip SkipFlags) error {
	bk := ctx.Bookkeeping
	session := ctx.DB.StartUndoSession(true)
	defer func() {
		if !session.Closed() {
			session.Discard()
		}
	}()

	if !skip.Has(SkipValidate) {
		if tx.Expiration <= headTime || tx.Expiration > headTime+MaxExpirationDelta {
			return chainerr.New(chainerr.Expired, "pipeline: transaction expiration out of bounds")
		}
	}

	if !skip.Has(SkipTaPoS) {
		refAbsHeight := (refHeight &^ 0xFFFF) | uint64(tx.RefBlockNum)
		if refAbsHeight > refHeight {
			refAbsHeight -= 0x10000
		}
		summaryID, ok := bk.BlockIDAt(refAbsHeight)
		if !ok || refBlockPrefix(summaryID) != tx.RefBlockPrefix {
			return chainerr.New(chainerr.TaposMismatch, "pipeline: ref_block_num/ref_block_prefix do not match block history")
		}
	}

	if !skip.Has(SkipTransactionDupeCheck) {
		if _, ok := bk.txIndex.FindByIndex("by_txid", txIndexKey(tx.ID())); ok {
			return chainerr.New(chainerr.DuplicateTransaction, "pipeline: transaction id already applied")
		}
	}

	if !skip.Has(SkipAuthority) {
		if err := verifyTransactionAuthority(ctx, tx); err != nil {
			return err
		}
	}

	for _, op := range tx.Operations {
		if err := ctx.Evaluators.Dispatch(ctx, op); err != nil {
			return err
		}
	}

	if err := bk.RecordTransaction(tx.ID(), tx.Expiration); err != nil {
		return err
	}

	session.Squash()
	return nil
}

// verifyTransactionAuthority computes every operation's required
// authorities and checks that tx's signatures resolve to a key set
// satisfying each one (spec.md §4.4.3 step 3).
func verifyTransactionAuthority(ctx *Context, tx *Transaction) error {
	reqs := requiredSigners(tx)

	auths := make([]authority.Authority, 0, len(reqs))
	keySet := make(map[string]xtypes.PublicKey)
	for _, req := range reqs {
		auth, err := ctx.Authorities.AuthorityFor(req.Account, req.Level)
		if err != nil {
			return err
		}
		auths = append(auths, auth)
		collectKeys(auth, ctx.Authorities, authorityRecursionDepth, keySet)
	}

	digest := tx.Digest()
	signedBy := make(map[string]bool, len(tx.Signatures))
	for _, sig := range tx.Signatures {
		for hex, key := range keySet {
			if !signedBy[hex] && key.Verify(digest, sig) {
				signedBy[hex] = true
				break
			}
		}
	}

	for i, req := range reqs {
		if !auths[i].Satisfies(signedBy, ctx.Authorities) {
			return chainerr.New(chainerr.AuthorityInsufficient, fmt.Sprintf("pipeline: signatures do not satisfy %s's required authority", req.Account))
		}
	}
	return nil
}

// collectKeys gathers every public key reachable from auth, following
// delegated account authorities up to depth levels deep, the same limit
// Authority.Satisfies applies.
func collectKeys(auth authority.Authority, resolver authority.Resolver, depth int, into map[string]xtypes.PublicKey) {
	for _, ka := range auth.KeyAuths {
		into[ka.Key.Hex()] = ka.Key
	}
	if depth <= 0 {
		return
	}
	for _, aa := range auth.AccountAuths {
		sub, err := resolver.ActiveAuthority(aa.Account)
		if err != nil {
			continue
		}
		collectKeys(sub, resolver, depth-1, into)
	}
}

// ApplyBlock runs spec.md §4.4.2 steps 1-6 and 8-10 against blk inside the
// session that is current on ctx.DB (the caller, Pipeline.PushBlock, opens
// and later pushes or discards that session; step 7 -- advancing
// irreversibility, committing sessions, and appending to the block log --
// needs the fork database and block log, so it lives in Pipeline itself).
func ApplyBlock(ctx *Context, blk *Block, number uint64, cfg ChainConfig, skip SkipFlags) error {
	slot := governance.SlotAtTime(cfg.Genesis, blk.Timestamp, cfg.BlockInterval)

	var missedSlots uint64
	if !skip.Has(SkipSchedule) {
		sched := ctx.State.CurrentSchedule()
		expectedSlot := ctx.State.Dynamic.CurrentAslot + 1
		if slot > expectedSlot {
			missedSlots = slot - expectedSlot
		}
		expected, ok := governance.ScheduledProducer(sched, ctx.State.Dynamic.CurrentAslot, slot)
		if ok && expected != blk.Producer {
			return chainerr.New(chainerr.InvariantViolation, "pipeline: block producer does not match scheduled producer for slot")
		}
		for i := uint64(0); i < missedSlots; i++ {
			if missed, ok := governance.ScheduledProducer(sched, ctx.State.Dynamic.CurrentAslot, expectedSlot+i); ok {
				_ = ctx.Governance.RecordMissed(missed)
			}
		}
	}

	for _, tx := range blk.Transactions {
		if err := ApplyTransaction(ctx, tx, blk.Timestamp, number, skip); err != nil {
			return err
		}
	}

	if !skip.Has(SkipMerkle) {
		ids := make([]xtypes.ID160, len(blk.Transactions))
		for i, tx := range blk.Transactions {
			ids[i] = tx.ID()
		}
		if MerkleRootOf(ids) != blk.MerkleRoot {
			return chainerr.New(chainerr.InvariantViolation, "pipeline: merkle root mismatch")
		}
	}

	if err := ctx.Bookkeeping.RecordBlockSummary(number, blk.ID(uint32(number))); err != nil {
		return err
	}

	ctx.State.AdvanceBlock(blk.ID(uint32(number)), number, blk.Producer, blk.Timestamp, slot, missedSlots)

	if !skip.Has(SkipSchedule) {
		version := ctx.State.Hardfork.CurrentHardforkVersion
		if vote, ok := HardforkVersionVote(blk.Extensions); ok {
			version = vote
		}
		if err := ctx.Governance.RecordProduced(blk.Producer, number, version); err != nil {
			return err
		}
	}

	if !skip.Has(SkipInvariants) {
		ctx.Bookkeeping.ClearExpiredTransactions(blk.Timestamp)
		if err := ctx.Ledger.ProcessUnstakes(blk.Timestamp); err != nil {
			return err
		}
		if err := ctx.Ledger.ProcessSavingsWithdrawals(blk.Timestamp); err != nil {
			return err
		}
		if err := ctx.Book.ExpireOrders(blk.Timestamp); err != nil {
			return err
		}
		if err := ctx.Auctions.ExpireOrders(blk.Timestamp); err != nil {
			return err
		}
		if err := ctx.Content.ProcessCashouts(blk.Timestamp); err != nil {
			return err
		}
	}

	// Auction clearing runs once per day (spec.md §4.7); blocksPerDay
	// derives from the configured block interval so the cadence scales
	// with whatever interval the chain was genesis-configured with.
	if !skip.Has(SkipInvariants) && cfg.BlockInterval > 0 {
		blocksPerDay := uint64(86_400_000_000 / int64(cfg.BlockInterval))
		if blocksPerDay > 0 && number%blocksPerDay == 0 {
			if err := ctx.Auctions.ClearAllMarkets(); err != nil {
				return err
			}
		}
	}

	if number%governance.DifficultyRetargetWindow == 0 {
		// actual counts the producers that have ever submitted work, not
		// the submissions accepted within the just-completed window.
		actual := uint32(0)
		for _, p := range ctx.Governance.All() {
			if p.LastWorkTime > 0 {
				actual++
			}
		}
		ctx.PoWTarget = governance.RetargetDifficulty(ctx.PoWTarget, actual)
	}

	return nil
}

// requiredSigners flattens every operation's RequiredAuths, deduplicated
// by (account, level), preserving first-seen order for determinism.
func requiredSigners(tx *Transaction) []evaluator.RequiredAuth {
	type key struct {
		account string
		level   evaluator.AuthorityLevel
	}
	seen := make(map[key]bool)
	var out []evaluator.RequiredAuth
	for _, op := range tx.Operations {
		for _, ra := range op.RequiredAuths() {
			k := key{account: string(ra.Account), level: ra.Level}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, ra)
		}
	}
	return out
}
