// Package evaluator implements the operation-tag dispatch registry spec.md
// §4.1 "Evaluator registry" describes: every operation variant carries a
// fixed ordinal tag, and applying a transaction walks its operations,
// dispatching each to the handler registered for its tag. Handlers mutate
// state only through the engine references embedded in a Context, never
// directly, so that every mutation happens inside the enclosing pipeline
// session (spec.md §4.4.3, §9 "exceptions for control flow").
//
// No repo in the retrieval pack implements this shape directly (the
// teacher, Synnergy, is a flat ~280-file package with ad hoc function
// calls per node type); this is grounded on
// tolelom-tolchain/vm/registry.go's map[Tag]Handler-with-panic-on-
// duplicate-registration pattern, borrowed from the wider pack per the
// "enrich from the rest of the pack" instruction.
package evaluator

import (
	"fmt"
	"sync"

	"nodechain/xtypes"
)

// Tag is an operation's fixed wire ordinal (spec.md §6: "Each operation has
// a fixed ordinal; ordinals must not change without a hardfork").
type Tag uint64

// AuthorityLevel is the minimum key level a signer must present to satisfy
// an operation's required authority (spec.md §4.1 "Authority checker").
type AuthorityLevel uint8

const (
	// AuthorityNone is used by operations nobody needs to sign for directly
	// (there are none in this implementation, but the zero value must be
	// distinguishable from a real level).
	AuthorityNone AuthorityLevel = iota
	// AuthorityPosting satisfies content operations (spec.md §3.2: "posting
	// ... used ... for content").
	AuthorityPosting
	// AuthorityActive satisfies financial operations (spec.md §3.2:
	// "active ... used ... for spending").
	AuthorityActive
	// AuthorityOwner satisfies authority-editing operations (spec.md §3.2:
	// "owner ... used ... for recovery").
	AuthorityOwner
)

func (l AuthorityLevel) String() string {
	switch l {
	case AuthorityPosting:
		return "posting"
	case AuthorityActive:
		return "active"
	case AuthorityOwner:
		return "owner"
	default:
		return "none"
	}
}

// RequiredAuth names one account and the authority level it must supply
// for an operation to be considered authorized (spec.md §4.4.3 step 3).
type RequiredAuth struct {
	Account xtypes.AccountName
	Level   AuthorityLevel
}

// Operation is implemented by every operation variant. Tag identifies
// which handler dispatches it; RequiredAuths lists every account whose
// signature must be present, and at what level, before the operation may
// be applied.
type Operation interface {
	Tag() Tag
	RequiredAuths() []RequiredAuth
}

// Handler mutates state on behalf of one operation variant. C is the
// caller-defined context type bundling every engine reference a handler
// might need (the object store, ledger, order books, ...); evaluator
// itself stays ignorant of its shape so that registering operations never
// creates an import cycle back into the packages that implement them.
// ctx is that context; op is the already type-asserted operation value
// the handler registered for.
type Handler[C any] func(ctx *C, op Operation) error

// Registry maps operation tags to the handler that implements their
// contract (spec.md §4.1 "Evaluator registry").
type Registry[C any] struct {
	mu       sync.RWMutex
	handlers map[Tag]Handler[C]
}

func NewRegistry[C any]() *Registry[C] {
	return &Registry[C]{handlers: make(map[Tag]Handler[C])}
}

// Register associates tag with h. Panics on duplicate registration: tags
// are assigned once, at startup, by this module's own init-time wiring,
// so a collision is a programming error, not a runtime condition.
func (r *Registry[C]) Register(tag Tag, h Handler[C]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[tag]; exists {
		panic(fmt.Sprintf("evaluator: handler already registered for tag %d", tag))
	}
	r.handlers[tag] = h
}

// Dispatch runs the handler registered for op's tag.
func (r *Registry[C]) Dispatch(ctx *C, op Operation) error {
	r.mu.RLock()
	h, ok := r.handlers[op.Tag()]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("evaluator: no handler registered for tag %d", op.Tag())
	}
	return h(ctx, op)
}

// Has reports whether a handler is registered for tag (used by tests).
func (r *Registry[C]) Has(tag Tag) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[tag]
	return ok
}
