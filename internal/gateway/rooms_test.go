package gateway

import "testing"

func TestRoomNamesAreDeterministic(t *testing.T) {
	if got := SiteRoom("shop"); got != "site:shop" {
		t.Fatalf("SiteRoom = %q", got)
	}
	if got := SiteIPRoom("shop", "203.0.113.5"); got != "site:shop:ip:203.0.113.5" {
		t.Fatalf("SiteIPRoom = %q", got)
	}
}

func TestRoomSetBroadcastAndLeave(t *testing.T) {
	rs := NewRoomSet()
	a := newFakeConn("s1")
	b := newFakeConn("s2")

	room := SiteIPRoom("shop", "203.0.113.5")
	rs.Join(room, a)
	rs.Join(room, b)

	if got := rs.Broadcast(room, Text("hi")); got != 2 {
		t.Fatalf("Broadcast reached %d, want 2", got)
	}

	rs.Leave(room, "s1")
	if got := rs.Broadcast(room, Text("again")); got != 1 {
		t.Fatalf("Broadcast after leave reached %d, want 1", got)
	}

	if got := rs.Broadcast("site:empty", Text("void")); got != 0 {
		t.Fatalf("Broadcast to unknown room reached %d, want 0", got)
	}
}

func TestRegistryLookupAndLists(t *testing.T) {
	r := NewRegistry()
	a := newFakeConn("s1")
	b := newFakeConn("s2")

	r.Register(Identity{ConnectionID: "s1", IP: "203.0.113.5", SiteID: "shop"}, a)
	r.Register(Identity{ConnectionID: "s2", IP: "203.0.113.5", SiteID: "blog"}, b)

	if _, ok := r.Lookup("ghost"); ok {
		t.Fatal("lookup of unregistered id must report absent")
	}

	identity, ok := r.Lookup("s1")
	if !ok || identity.IP != "203.0.113.5" || identity.SiteID != "shop" {
		t.Fatalf("Lookup = %+v, ok=%v", identity, ok)
	}

	if got := len(r.ListByIP("203.0.113.5")); got != 2 {
		t.Fatalf("ListByIP = %d entries, want 2", got)
	}
	if got := len(r.ListBySite("shop")); got != 1 {
		t.Fatalf("ListBySite = %d entries, want 1", got)
	}

	r.Unregister("s1")
	if got := len(r.ListByIP("203.0.113.5")); got != 1 {
		t.Fatalf("ListByIP after unregister = %d entries, want 1", got)
	}
}
