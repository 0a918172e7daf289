package realtime

import "testing"

func TestJoinIsIdempotent(t *testing.T) {
	registry := NewRegistry()
	conn := &fakeConn{}

	registry.Join("chat-1", conn)
	registry.Join("chat-1", conn)

	members := registry.MembersOf("chat-1")
	if len(members) != 1 {
		t.Fatalf("expected one member after double join, got %d", len(members))
	}
}

func TestLeaveUnknownMemberIsNoOp(t *testing.T) {
	registry := NewRegistry()
	member := &fakeConn{}
	stranger := &fakeConn{}
	registry.Join("chat-1", member)

	registry.Leave("chat-1", stranger)
	registry.Leave("never-created", stranger)

	if len(registry.MembersOf("chat-1")) != 1 {
		t.Fatalf("existing membership must be untouched")
	}
}

func TestLeaveLastMemberPrunesRoom(t *testing.T) {
	registry := NewRegistry()
	conn := &fakeConn{}
	registry.Join("chat-1", conn)

	registry.Leave("chat-1", conn)

	if members := registry.MembersOf("chat-1"); members != nil {
		t.Fatalf("expected empty room to be pruned, got %d members", len(members))
	}
}

func TestIdentifyLastRegisteredWins(t *testing.T) {
	registry := NewRegistry()
	first := &fakeConn{}
	second := &fakeConn{}

	registry.Identify("a@x.com", first)
	registry.Identify("a@x.com", second)

	resolved, ok := registry.Resolve("a@x.com")
	if !ok {
		t.Fatalf("expected identity to resolve")
	}
	if resolved != Conn(second) {
		t.Fatalf("expected the most recent connection to win")
	}
}

func TestResolveUnknownIdentity(t *testing.T) {
	registry := NewRegistry()
	if _, ok := registry.Resolve("ghost@x.com"); ok {
		t.Fatalf("unknown identity must not resolve")
	}
}

func TestForgetOnlyRemovesOwnEntries(t *testing.T) {
	registry := NewRegistry()
	old := &fakeConn{}
	current := &fakeConn{}
	registry.Identify("a@x.com", old)
	registry.Identify("a@x.com", current)

	// The stale connection disconnecting must not evict the newer mapping.
	registry.Forget(old)

	resolved, ok := registry.Resolve("a@x.com")
	if !ok || resolved != Conn(current) {
		t.Fatalf("newer mapping must survive the older connection's cleanup")
	}
}

func TestDropReturnsAffectedRoomsExactlyOnce(t *testing.T) {
	registry := NewRegistry()
	conn := &fakeConn{}
	registry.Join("chat-1", conn)
	registry.Join("chat-2", conn)
	registry.Identify("a@x.com", conn)

	affected := registry.Drop(conn)
	if len(affected) != 2 {
		t.Fatalf("expected two affected rooms, got %v", affected)
	}
	if _, ok := registry.Resolve("a@x.com"); ok {
		t.Fatalf("identity must be cleared on drop")
	}

	if again := registry.Drop(conn); len(again) != 0 {
		t.Fatalf("second drop must find nothing, got %v", again)
	}
}

func TestDropLeavesOtherMembersInPlace(t *testing.T) {
	registry := NewRegistry()
	leaving := &fakeConn{}
	staying := &fakeConn{}
	registry.Join("chat-1", leaving)
	registry.Join("chat-1", staying)

	registry.Drop(leaving)

	members := registry.MembersOf("chat-1")
	if len(members) != 1 || members[0] != Conn(staying) {
		t.Fatalf("remaining member must still be joined")
	}
}
