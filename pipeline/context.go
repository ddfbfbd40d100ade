package pipeline

import (
	"nodechain/assets"
	"nodechain/chainstate"
	"nodechain/content"
	"nodechain/evaluator"
	"nodechain/governance"
	"nodechain/objectstore"
	"nodechain/trading"
	"nodechain/xtypes"
)

// Context bundles every engine an operation handler may need to mutate
// (spec.md §4.1 "Evaluator registry": "Handlers receive a context carrying
// every subsystem; they never reach for global state directly"). One
// Context is constructed per Pipeline and lives for the process lifetime;
// every mutation it performs happens inside whatever undo session is
// current on DB at dispatch time.
type Context struct {
	DB *objectstore.Database

	Ledger        *assets.Ledger
	AssetRegistry *assets.Registry
	Authorities   *AccountAuthorities
	Content       *content.Store
	Governance    *governance.Registry
	Commitments   *governance.Commitments
	ElectedRoles  *governance.ElectedRoles
	Book          *trading.Book
	AMM           *trading.AMM
	CallOrders    *trading.CallOrders
	CreditPools   *trading.CreditPools
	MarginOrders  *trading.MarginOrders
	Auctions      *trading.Auctions
	OptionOrders  *trading.OptionOrders
	Settlements   *trading.Settlements
	State         *chainstate.State
	Bookkeeping   *Bookkeeping

	// PoWTarget is the current proof-of-work difficulty target (spec.md
	// §4.4.7), retargeted every governance.DifficultyRetargetWindow blocks.
	PoWTarget xtypes.Uint128

	Evaluators *evaluator.Registry[Context]
}

// NewContext wires every engine into a fresh Context over db and registers
// every operation handler (spec.md §4.1). Callers needing a running node
// use Pipeline.Open, which constructs and owns one Context internally;
// tests construct one directly against an in-memory database.
func NewContext(db *objectstore.Database) *Context {
	ledger := assets.NewLedger(db)
	assetRegistry := assets.NewRegistry(db)

	state := chainstate.New()
	book := trading.NewBook(db, ledger, assetRegistry)
	callOrders := trading.NewCallOrders(db, ledger, assetRegistry)
	creditPools := trading.NewCreditPools(db, ledger, assetRegistry)
	ctx := &Context{
		DB:            db,
		Ledger:        ledger,
		AssetRegistry: assetRegistry,
		Authorities:   NewAccountAuthorities(db),
		Content:       content.NewStore(db, ledger, state),
		Governance:    governance.NewRegistry(db),
		Commitments:   governance.NewCommitments(db, ledger),
		ElectedRoles:  governance.NewElectedRoles(db),
		Book:          book,
		AMM:           trading.NewAMM(db, ledger, assetRegistry),
		CallOrders:    callOrders,
		CreditPools:   creditPools,
		MarginOrders:  trading.NewMarginOrders(db, ledger, creditPools, book, trading.DefaultMarginVariableRateBps),
		Auctions:      trading.NewAuctions(db, ledger),
		OptionOrders:  trading.NewOptionOrders(db, ledger, assetRegistry),
		Settlements:   trading.NewSettlements(db, ledger, assetRegistry, callOrders),
		State:         state,
		Bookkeeping:   NewBookkeeping(db),
		PoWTarget:     xtypes.U128FromUint64(1),
		Evaluators:    evaluator.NewRegistry[Context](),
	}
	RegisterHandlers(ctx.Evaluators)
	return ctx
}
