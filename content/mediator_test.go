package content_test

import (
	"testing"

	"nodechain/xtypes"
)

func TestNominateMediatorStartsInactive(t *testing.T) {
	store, _, _ := newFixture()
	m, err := store.NominateMediator("alice", 1000, 50)
	if err != nil {
		t.Fatalf("nominate: %v", err)
	}
	if m.Active {
		t.Fatal("expected a freshly nominated mediator to be inactive")
	}
}

func TestNominateMediatorDuplicateRejected(t *testing.T) {
	store, _, _ := newFixture()
	if _, err := store.NominateMediator("alice", 1000, 50); err != nil {
		t.Fatalf("nominate: %v", err)
	}
	if _, err := store.NominateMediator("alice", 2000, 10); err == nil {
		t.Fatal("expected a second nomination for the same account to fail")
	}
}

func TestAcceptAndDeclineMediator(t *testing.T) {
	store, _, _ := newFixture()
	if _, err := store.NominateMediator("alice", 1000, 50); err != nil {
		t.Fatalf("nominate: %v", err)
	}
	if err := store.AcceptMediator("alice"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	m, err := store.FindMediator("alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !m.Active {
		t.Fatal("expected mediator to be active after accepting")
	}
	if err := store.DeclineMediator("alice"); err != nil {
		t.Fatalf("decline: %v", err)
	}
	m, err = store.FindMediator("alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if m.Active {
		t.Fatal("expected mediator to be inactive after declining")
	}
}

func TestScheduleCommunityEventRejectsBackwardsWindow(t *testing.T) {
	store, _, _ := newFixture()
	community, err := store.CreateCommunity("gophers", "alice", 0)
	if err != nil {
		t.Fatalf("create community: %v", err)
	}
	if _, err := store.ScheduleCommunityEvent(community, "meetup", 2000, 1000); err == nil {
		t.Fatal("expected an event ending before it starts to be rejected")
	}
}

func TestAttendCommunityEventAndUpcomingEvents(t *testing.T) {
	store, _, _ := newFixture()
	community, err := store.CreateCommunity("gophers", "alice", 0)
	if err != nil {
		t.Fatalf("create community: %v", err)
	}
	event, err := store.ScheduleCommunityEvent(community, "meetup", 1000, 2000)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := store.AttendCommunityEvent(event, "bob", 1500); err != nil {
		t.Fatalf("attend: %v", err)
	}
	if err := store.AttendCommunityEvent(event, "bob", 1500); err != nil {
		t.Fatalf("re-attend: %v", err)
	}
	found, err := store.FindCommunityEventByID(event.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if len(found.Attendees) != 1 || found.Attendees[0] != xtypes.AccountName("bob") {
		t.Fatalf("expected exactly one attendee, got %v", found.Attendees)
	}

	if got := store.UpcomingEvents(community, 1999); len(got) != 1 {
		t.Fatalf("expected the event to still be upcoming, got %d", len(got))
	}
	if got := store.UpcomingEvents(community, 2000); len(got) != 0 {
		t.Fatalf("expected the event to have expired, got %d", len(got))
	}

	if err := store.AttendCommunityEvent(event, "carol", 2001); err == nil {
		t.Fatal("expected attending an ended event to fail")
	}
}
