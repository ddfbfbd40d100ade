package chainstate

import (
	"testing"

	"nodechain/xtypes"
)

func TestAdvanceBlockTracksParticipation(t *testing.T) {
	s := New()
	for i := uint64(1); i <= 5; i++ {
		s.AdvanceBlock(xtypes.ID160{byte(i)}, i, xtypes.AccountName("producer1"), xtypes.TimePoint(int64(i)), i, 0)
	}
	if s.Dynamic.HeadBlockNumber != 5 {
		t.Fatalf("expected head block number 5, got %d", s.Dynamic.HeadBlockNumber)
	}
	if s.Dynamic.ParticipationCount != 5 {
		t.Fatalf("expected participation count 5, got %d", s.Dynamic.ParticipationCount)
	}
	if rate := s.Dynamic.ParticipationRate(); rate <= 0 || rate > 1 {
		t.Fatalf("participation rate out of range: %f", rate)
	}
}

func TestAdvanceBlockAccountsForMissedSlots(t *testing.T) {
	s := New()
	s.AdvanceBlock(xtypes.ID160{1}, 1, "producer1", 1, 1, 0)
	s.AdvanceBlock(xtypes.ID160{2}, 2, "producer2", 2, 3, 2) // two slots missed before this one
	if s.Dynamic.ParticipationCount != 2 {
		t.Fatalf("missed slots must not count toward participation, got %d", s.Dynamic.ParticipationCount)
	}
	if s.Dynamic.CurrentAslot != 4 {
		t.Fatalf("expected aslot to advance by missed+1 each call, got %d", s.Dynamic.CurrentAslot)
	}
}

func TestRewardFundAccumulates(t *testing.T) {
	s := New()
	sym := xtypes.Symbol("CORE")
	if err := s.AddToRewardBalance(sym, xtypes.NewAsset(100, sym)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddToRewardBalance(sym, xtypes.NewAsset(50, sym)); err != nil {
		t.Fatalf("add: %v", err)
	}
	rf := s.RewardFundFor(sym)
	if rf.RewardBalance.Amount != 150 {
		t.Fatalf("expected reward balance 150, got %d", rf.RewardBalance.Amount)
	}
}

func TestCreditAndDrawRewardRole(t *testing.T) {
	s := New()
	sym := xtypes.Symbol("CORE")
	if err := s.CreditRewardRole(sym, RewardRoleSupernode, 300); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if got := s.RewardFundFor(sym).BalanceFor(RewardRoleSupernode); got != 300 {
		t.Fatalf("expected supernode balance 300, got %d", got)
	}
	if err := s.DrawRewardRole(sym, RewardRoleSupernode, 200); err != nil {
		t.Fatalf("draw: %v", err)
	}
	if got := s.RewardFundFor(sym).BalanceFor(RewardRoleSupernode); got != 100 {
		t.Fatalf("expected supernode balance 100 after draw, got %d", got)
	}
	if err := s.DrawRewardRole(sym, RewardRoleSupernode, 1000); err == nil {
		t.Fatal("expected draw beyond balance to fail")
	}
}

func TestRewardRoleSlicesAreIndependent(t *testing.T) {
	s := New()
	sym := xtypes.Symbol("CORE")
	if err := s.CreditRewardRole(sym, RewardRoleDevelopment, 10); err != nil {
		t.Fatalf("credit development: %v", err)
	}
	if err := s.CreditRewardRole(sym, RewardRoleMarketing, 20); err != nil {
		t.Fatalf("credit marketing: %v", err)
	}
	rf := s.RewardFundFor(sym)
	if rf.BalanceFor(RewardRoleDevelopment) != 10 || rf.BalanceFor(RewardRoleMarketing) != 20 {
		t.Fatalf("expected independent role slices, got %+v", rf)
	}
	if err := s.CreditRewardRole(sym, RewardRoleContent, 5); err == nil {
		t.Fatal("expected CreditRewardRole to reject the content role")
	}
}

func TestSetAndCurrentSchedule(t *testing.T) {
	s := New()
	s.SetSchedule(ProducerSchedule{Version: 1, Producers: []xtypes.AccountName{"a", "b", "c"}})
	got := s.CurrentSchedule()
	if len(got.Producers) != 3 || got.Producers[1] != "b" {
		t.Fatalf("unexpected schedule: %+v", got)
	}
	got.Producers[0] = "mutated"
	if s.CurrentSchedule().Producers[0] == "mutated" {
		t.Fatalf("CurrentSchedule must return a defensive copy")
	}
}
