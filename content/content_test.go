package content_test

import (
	"testing"

	"nodechain/assets"
	"nodechain/chainstate"
	"nodechain/content"
	"nodechain/objectstore"
	"nodechain/xtypes"
)

func newFixture() (*content.Store, *assets.Ledger, *chainstate.State) {
	db := objectstore.NewDatabase()
	ledger := assets.NewLedger(db)
	state := chainstate.New()
	return content.NewStore(db, ledger, state), ledger, state
}

func TestPostAndFindRoundtrip(t *testing.T) {
	store, _, _ := newFixture()
	now := xtypes.TimePoint(1_000_000)
	c, err := store.Post("alice", "hello-world", "", "", "CORE", now)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	got, err := store.Find("alice", "hello-world")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != c.ID {
		t.Fatalf("expected same comment, got different id")
	}
	if got.CashoutTime <= now {
		t.Fatal("expected cashout time in the future")
	}
}

func TestPostDuplicatePermlinkRejected(t *testing.T) {
	store, _, _ := newFixture()
	now := xtypes.TimePoint(1)
	if _, err := store.Post("alice", "p", "", "", "CORE", now); err != nil {
		t.Fatalf("first post: %v", err)
	}
	if _, err := store.Post("alice", "p", "", "", "CORE", now); err == nil {
		t.Fatal("expected error on duplicate permlink")
	}
}

func TestReplyIncrementsParentChildCount(t *testing.T) {
	store, _, _ := newFixture()
	now := xtypes.TimePoint(1)
	parent, err := store.Post("alice", "root", "", "", "CORE", now)
	if err != nil {
		t.Fatalf("post root: %v", err)
	}
	if _, err := store.Post("bob", "reply", "alice", "root", "CORE", now); err != nil {
		t.Fatalf("post reply: %v", err)
	}
	parent, err = store.Find("alice", "root")
	if err != nil {
		t.Fatalf("find root: %v", err)
	}
	if parent.ChildCount != 1 {
		t.Fatalf("expected child count 1, got %d", parent.ChildCount)
	}
}

func TestVoteAccumulatesRshares(t *testing.T) {
	store, _, _ := newFixture()
	now := xtypes.TimePoint(1)
	c, err := store.Post("alice", "p", "", "", "CORE", now)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if err := store.Vote(c, "bob", 10_000, 1_000_000, now); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if c.NetRshares.IsZero() {
		t.Fatal("expected positive rshares after upvote")
	}
}

func TestVoteChangeAdjustsDelta(t *testing.T) {
	store, _, _ := newFixture()
	now := xtypes.TimePoint(1)
	c, err := store.Post("alice", "p", "", "", "CORE", now)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if err := store.Vote(c, "bob", 10_000, 1_000_000, now); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	first := c.NetRshares
	if err := store.Vote(c, "bob", 5_000, 1_000_000, now); err != nil {
		t.Fatalf("second vote: %v", err)
	}
	if c.NetRshares.Cmp(first) >= 0 {
		t.Fatal("expected rshares to decrease after lowering vote weight")
	}
}

func TestVoteOutOfRangeRejected(t *testing.T) {
	store, _, _ := newFixture()
	now := xtypes.TimePoint(1)
	c, err := store.Post("alice", "p", "", "", "CORE", now)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if err := store.Vote(c, "bob", 20_000, 1_000_000, now); err == nil {
		t.Fatal("expected error for out-of-range weight")
	}
}

func TestViewAndShareAddRshares(t *testing.T) {
	store, _, _ := newFixture()
	now := xtypes.TimePoint(1)
	c, err := store.Post("alice", "p", "", "", "CORE", now)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if err := store.View(c, "bob", now); err != nil {
		t.Fatalf("view: %v", err)
	}
	if err := store.Share(c, "carol", now); err != nil {
		t.Fatalf("share: %v", err)
	}
	if c.NetRshares.IsZero() {
		t.Fatal("expected positive rshares from view+share")
	}
}

func TestCreateCommunityDuplicateNameRejected(t *testing.T) {
	store, _, _ := newFixture()
	now := xtypes.TimePoint(1)
	if _, err := store.CreateCommunity("gophers", "alice", now); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CreateCommunity("gophers", "bob", now); err == nil {
		t.Fatal("expected error for duplicate community name")
	}
}

func TestProcessCashoutsPaysAuthorAndMarksCashedOut(t *testing.T) {
	store, ledger, state := newFixture()
	now := xtypes.TimePoint(1)
	c, err := store.Post("alice", "p", "", "", "CORE", now)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if err := store.Vote(c, "bob", 10_000, 1_000_000, now); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := state.AddToRewardBalance("CORE", xtypes.NewAsset(1_000_000, "CORE")); err != nil {
		t.Fatalf("fund reward pool: %v", err)
	}

	future := c.CashoutTime + 1
	if err := store.ProcessCashouts(future); err != nil {
		t.Fatalf("process cashouts: %v", err)
	}

	got, err := store.Find("alice", "p")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.CashedOut {
		t.Fatal("expected post to be marked cashed out")
	}
	bal := ledger.BalanceOf("alice", "CORE")
	if bal.Reward <= 0 {
		t.Fatalf("expected author to receive a reward payout, got %d", bal.Reward)
	}
}

func TestProcessCashoutsSkipsUnduePosts(t *testing.T) {
	store, _, _ := newFixture()
	now := xtypes.TimePoint(1)
	c, err := store.Post("alice", "p", "", "", "CORE", now)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if err := store.ProcessCashouts(now); err != nil {
		t.Fatalf("process cashouts: %v", err)
	}
	got, err := store.Find("alice", "p")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.CashedOut {
		t.Fatal("expected post not yet due for cashout to remain open")
	}
	_ = c
}
