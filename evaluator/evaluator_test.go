package evaluator_test

import (
	"testing"

	"nodechain/evaluator"
	"nodechain/xtypes"
)

type fakeCtx struct {
	applied []string
}

type fakeOp struct {
	tag     evaluator.Tag
	account xtypes.AccountName
}

func (o fakeOp) Tag() evaluator.Tag { return o.tag }
func (o fakeOp) RequiredAuths() []evaluator.RequiredAuth {
	return []evaluator.RequiredAuth{{Account: o.account, Level: evaluator.AuthorityActive}}
}

func TestDispatch(t *testing.T) {
	r := evaluator.NewRegistry[fakeCtx]()
	r.Register(1, func(ctx *fakeCtx, op evaluator.Operation) error {
		ctx.applied = append(ctx.applied, string(op.(fakeOp).account))
		return nil
	})

	ctx := &fakeCtx{}
	if err := r.Dispatch(ctx, fakeOp{tag: 1, account: "alice"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(ctx.applied) != 1 || ctx.applied[0] != "alice" {
		t.Fatalf("unexpected applied list: %v", ctx.applied)
	}
}

func TestDispatchUnknownTag(t *testing.T) {
	r := evaluator.NewRegistry[fakeCtx]()
	if err := r.Dispatch(&fakeCtx{}, fakeOp{tag: 99}); err == nil {
		t.Fatal("expected error for unregistered tag")
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	r := evaluator.NewRegistry[fakeCtx]()
	r.Register(1, func(ctx *fakeCtx, op evaluator.Operation) error { return nil })
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	r.Register(1, func(ctx *fakeCtx, op evaluator.Operation) error { return nil })
}

func TestHas(t *testing.T) {
	r := evaluator.NewRegistry[fakeCtx]()
	if r.Has(1) {
		t.Fatal("expected tag 1 unregistered")
	}
	r.Register(1, func(ctx *fakeCtx, op evaluator.Operation) error { return nil })
	if !r.Has(1) {
		t.Fatal("expected tag 1 registered")
	}
}
