package forkdb

import (
	"testing"

	"nodechain/xtypes"
)

func id(n uint64) xtypes.ID160 {
	h := xtypes.Hash256{byte(n), byte(n >> 8), byte(n >> 16)}
	return xtypes.NewID160(h).WithHeight(uint32(n))
}

func TestPushBlockRejectsUnknownParent(t *testing.T) {
	db := New(nil)
	root := &Node{ID: id(0), Number: 0}
	db.StartBlock(root)

	orphan := &Node{ID: id(5), Previous: id(4), Number: 5}
	if err := db.PushBlock(orphan); err == nil {
		t.Fatalf("expected error pushing block with unknown parent")
	}
}

func TestPushBlockAdvancesHead(t *testing.T) {
	db := New(nil)
	root := &Node{ID: id(0), Number: 0}
	db.StartBlock(root)

	b1 := &Node{ID: id(1), Previous: id(0), Number: 1}
	if err := db.PushBlock(b1); err != nil {
		t.Fatalf("push b1: %v", err)
	}
	if db.Head().ID != b1.ID {
		t.Fatalf("expected head to advance to b1")
	}
}

func TestFetchBranchFromFindsCommonAncestor(t *testing.T) {
	db := New(nil)
	root := &Node{ID: id(0), Number: 0}
	db.StartBlock(root)

	b1 := &Node{ID: id(1), Previous: id(0), Number: 1}
	b2a := &Node{ID: id(20), Previous: id(1), Number: 2}
	b3a := &Node{ID: id(30), Previous: id(20), Number: 3}
	b2b := &Node{ID: id(21), Previous: id(1), Number: 2}

	for _, n := range []*Node{b1, b2a, b3a, b2b} {
		if err := db.PushBlock(n); err != nil {
			t.Fatalf("push %v: %v", n.ID, err)
		}
	}

	oldBranch, newBranch, err := db.FetchBranchFrom(b3a.ID, b2b.ID)
	if err != nil {
		t.Fatalf("fetch branch: %v", err)
	}
	if len(oldBranch) != 2 || oldBranch[0].ID != b3a.ID || oldBranch[1].ID != b2a.ID {
		t.Fatalf("unexpected old branch: %+v", oldBranch)
	}
	if len(newBranch) != 1 || newBranch[0].ID != b2b.ID {
		t.Fatalf("unexpected new branch: %+v", newBranch)
	}
}

func TestPruneRemovesStaleForks(t *testing.T) {
	db := New(nil)
	root := &Node{ID: id(0), Number: 0}
	db.StartBlock(root)

	b1 := &Node{ID: id(1), Previous: id(0), Number: 1}
	b2a := &Node{ID: id(20), Previous: id(1), Number: 2}
	b2b := &Node{ID: id(21), Previous: id(1), Number: 2}
	for _, n := range []*Node{b1, b2a, b2b} {
		db.PushBlock(n)
	}

	db.Prune(b2a)

	if _, err := db.FetchBlock(b2b.ID); err == nil {
		t.Fatalf("expected stale fork b2b to be pruned")
	}
	if _, err := db.FetchBlock(b2a.ID); err != nil {
		t.Fatalf("new root must remain fetchable: %v", err)
	}
}

func TestPopBlockMovesHeadToParent(t *testing.T) {
	db := New(nil)
	root := &Node{ID: id(0), Number: 0}
	db.StartBlock(root)

	b1 := &Node{ID: id(1), Previous: id(0), Number: 1}
	db.PushBlock(b1)
	db.PopBlock(b1.ID)

	if db.Head().ID != root.ID {
		t.Fatalf("expected head to revert to root after pop")
	}
}
