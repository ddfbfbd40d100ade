package pipeline

// SkipFlags is a bitmask controlling which validation layers apply_block
// and apply_transaction perform, used during reindex or trusted ingest
// (spec.md §6 "Skip flags"). A production node pushing freshly received
// blocks skips nothing (SkipNothing); reindex skips everything except the
// merkle-root check.
type SkipFlags uint32

const SkipNothing SkipFlags = 0

const (
	SkipProducerSignature SkipFlags = 1 << iota
	SkipTransactionSignatures
	SkipTransactionDupeCheck
	SkipTaPoS
	SkipMerkle
	SkipSchedule
	SkipAuthority
	SkipValidate
	SkipInvariants
	SkipUndoBlock
	SkipBlockLog
)

// ReindexSkip skips every layer except the merkle-root check (spec.md §6:
// "reindex may skip everything except merkle checks").
const ReindexSkip = SkipProducerSignature | SkipTransactionSignatures | SkipTransactionDupeCheck |
	SkipTaPoS | SkipSchedule | SkipAuthority | SkipValidate | SkipInvariants | SkipUndoBlock | SkipBlockLog

func (f SkipFlags) Has(bit SkipFlags) bool { return f&bit != 0 }
