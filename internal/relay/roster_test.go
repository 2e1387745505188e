package relay

import (
	"sort"
	"sync"
	"testing"
)

func TestRosterSubscribeIdempotent(t *testing.T) {
	r := NewRoster()
	if err := r.Register("s1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := r.Subscribe("r1", "s1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := r.Subscribe("r1", "s1"); err != nil {
		t.Fatalf("second subscribe: %v", err)
	}

	if got := r.MembersOf("r1"); len(got) != 1 || got[0] != "s1" {
		t.Fatalf("unexpected members: %v", got)
	}
}

func TestRosterDuplicateRegister(t *testing.T) {
	r := NewRoster()
	if err := r.Register("s1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("s1"); err != ErrSessionExists {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
}

func TestRosterSubscribeUnknownSession(t *testing.T) {
	r := NewRoster()
	if err := r.Subscribe("r1", "ghost"); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if got := r.MembersOf("r1"); got != nil {
		t.Fatalf("room should not exist, got %v", got)
	}
}

func TestRosterUnsubscribePrunesEmptyRoom(t *testing.T) {
	r := NewRoster()
	_ = r.Register("s1")
	_ = r.Subscribe("r1", "s1")

	r.Unsubscribe("r1", "s1")

	if got := r.MembersOf("r1"); got != nil {
		t.Fatalf("expected pruned room, got %v", got)
	}
	// Unknown room and unknown session are both no-ops.
	r.Unsubscribe("r1", "s1")
	r.Unsubscribe("ghost", "s1")
}

func TestRosterSnapshotIsACopy(t *testing.T) {
	r := NewRoster()
	_ = r.Register("s1")
	_ = r.Register("s2")
	_ = r.Subscribe("r1", "s1")

	snap := r.MembersOf("r1")
	_ = r.Subscribe("r1", "s2")

	if len(snap) != 1 {
		t.Fatalf("snapshot mutated by later subscribe: %v", snap)
	}
}

func TestRosterRemoveReturnsJoinedRooms(t *testing.T) {
	r := NewRoster()
	_ = r.Register("s1")
	_ = r.Subscribe("r1", "s1")
	_ = r.Subscribe("r2", "s1")

	left := r.Remove("s1")
	sort.Strings(left)
	if len(left) != 2 || left[0] != "r1" || left[1] != "r2" {
		t.Fatalf("unexpected rooms: %v", left)
	}
	if r.MembersOf("r1") != nil || r.MembersOf("r2") != nil {
		t.Fatal("rooms still carry removed session")
	}

	// Second remove is a safe no-op.
	if left := r.Remove("s1"); left != nil {
		t.Fatalf("expected nil on double remove, got %v", left)
	}
}

func TestRosterAttachIdentity(t *testing.T) {
	r := NewRoster()
	_ = r.Register("s1")

	if _, _, authed, registered := r.Identity("s1"); authed || !registered {
		t.Fatal("fresh session should be registered but unauthenticated")
	}
	if err := r.AttachIdentity("s1", 42, "alice"); err != nil {
		t.Fatalf("attach identity: %v", err)
	}
	userID, username, authed, _ := r.Identity("s1")
	if userID != 42 || username != "alice" || !authed {
		t.Fatalf("unexpected identity: %d %q %v", userID, username, authed)
	}

	if err := r.AttachIdentity("ghost", 1, "x"); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRosterConcurrentJoins(t *testing.T) {
	r := NewRoster()

	const sessions = 100
	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		id := "s" + string(rune('0'+i/10)) + string(rune('0'+i%10))
		if err := r.Register(id); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
		wg.Add(1)
		go func(sessionID string) {
			defer wg.Done()
			_ = r.Subscribe("busy", sessionID)
		}(id)
	}
	wg.Wait()

	members := r.MembersOf("busy")
	if len(members) != sessions {
		t.Fatalf("expected %d members, got %d", sessions, len(members))
	}
	seen := make(map[string]struct{}, len(members))
	for _, id := range members {
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate member %s", id)
		}
		seen[id] = struct{}{}
	}
}
