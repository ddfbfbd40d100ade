package governance_test

import (
	"testing"

	"nodechain/governance"
	"nodechain/objectstore"
	"nodechain/xtypes"
)

func newTestRegistry() *governance.Registry {
	return governance.NewRegistry(objectstore.NewDatabase())
}

func testKey() xtypes.PublicKey {
	priv := xtypes.GeneratePrivateKey([32]byte{1, 2, 3})
	return priv.Public()
}

func TestRegisterAndLookup(t *testing.T) {
	r := newTestRegistry()
	key := testKey()
	if _, err := r.Register("alice", key); err != nil {
		t.Fatalf("register: %v", err)
	}
	p, err := r.ByOwner("alice")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if p.Owner != "alice" || !p.Active {
		t.Fatalf("unexpected producer state: %+v", p)
	}
}

func TestRegisterDuplicateRejected(t *testing.T) {
	r := newTestRegistry()
	key := testKey()
	if _, err := r.Register("alice", key); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := r.Register("alice", key); err == nil {
		t.Fatal("expected error for duplicate registration")
	}
}

func TestVoteAndUnvoteAdjustApprovalPower(t *testing.T) {
	r := newTestRegistry()
	key := testKey()
	if _, err := r.Register("alice", key); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Vote("bob", "alice", 1000); err != nil {
		t.Fatalf("vote: %v", err)
	}
	p, _ := r.ByOwner("alice")
	if p.ApprovalPower != 1000 {
		t.Fatalf("expected approval power 1000, got %d", p.ApprovalPower)
	}
	if err := r.Vote("bob", "alice", 500); err != nil {
		t.Fatalf("re-vote: %v", err)
	}
	p, _ = r.ByOwner("alice")
	if p.ApprovalPower != 500 {
		t.Fatalf("expected approval power 500 after re-vote, got %d", p.ApprovalPower)
	}
	if err := r.Unvote("bob", "alice"); err != nil {
		t.Fatalf("unvote: %v", err)
	}
	p, _ = r.ByOwner("alice")
	if p.ApprovalPower != 0 {
		t.Fatalf("expected approval power 0 after unvote, got %d", p.ApprovalPower)
	}
}

func TestRecordProducedAndMissed(t *testing.T) {
	r := newTestRegistry()
	key := testKey()
	if _, err := r.Register("alice", key); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.RecordProduced("alice", 42, 3); err != nil {
		t.Fatalf("record produced: %v", err)
	}
	p, _ := r.ByOwner("alice")
	if p.LastConfirmedBlock != 42 || p.RunningVersion != 3 {
		t.Fatalf("unexpected producer state: %+v", p)
	}
	if err := r.RecordMissed("alice"); err != nil {
		t.Fatalf("record missed: %v", err)
	}
	p, _ = r.ByOwner("alice")
	if p.TotalMissed != 1 {
		t.Fatalf("expected 1 missed slot, got %d", p.TotalMissed)
	}
}
