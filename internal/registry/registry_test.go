package registry

import "testing"

func TestPutAndLookup(t *testing.T) {
	r := New()
	r.Put(Entry{SessionID: "s1", SystemID: "alice", CanReceive: true})
	r.Put(Entry{SessionID: "s2", SystemID: "alice", CanReceive: false})

	ids := r.Lookup("alice")
	if len(ids) != 1 || ids[0] != "s1" {
		t.Errorf("Lookup(alice) => %v, expected [s1]", ids)
	}
	if r.Len() != 2 {
		t.Errorf("Len() => %d, expected 2", r.Len())
	}
}

func TestRemove(t *testing.T) {
	r := New()
	r.Put(Entry{SessionID: "s1", SystemID: "alice", CanReceive: true})
	r.Remove("s1")
	if got := r.Lookup("alice"); len(got) != 0 {
		t.Errorf("Lookup(alice) after Remove => %v, expected empty", got)
	}
	if r.Len() != 0 {
		t.Errorf("Len() => %d, expected 0", r.Len())
	}
}

func TestLookupUnknownSystemID(t *testing.T) {
	r := New()
	if got := r.Lookup("nobody"); got != nil {
		t.Errorf("Lookup(nobody) => %v, expected nil", got)
	}
}

func TestPutRebindsSystemID(t *testing.T) {
	r := New()
	r.Put(Entry{SessionID: "s1", SystemID: "alice", CanReceive: true})
	r.Put(Entry{SessionID: "s1", SystemID: "bob", CanReceive: true})

	if got := r.Lookup("alice"); len(got) != 0 {
		t.Errorf("Lookup(alice) after rebind => %v, expected empty", got)
	}
	if got := r.Lookup("bob"); len(got) != 1 {
		t.Errorf("Lookup(bob) after rebind => %v, expected [s1]", got)
	}
}
