package poll

import "testing"

func TestEventsFromBitsTruncatesUnknownBits(t *testing.T) {
	ev := EventsFromBits(0xFFFFFFFF)
	if ev != In|Out|Err|Hup {
		t.Fatalf("expected all known bits, got %#x", ev.Bits())
	}
	if EventsFromBits(0x1000) != Empty {
		t.Fatal("unknown-only bits should truncate to EMPTY")
	}
}

func TestEventsSetOperations(t *testing.T) {
	ev := Empty
	ev.Insert(In)
	ev.Insert(Hup)
	if !ev.Intersects(In) || !ev.Intersects(Hup) {
		t.Fatalf("insert lost bits: %v", ev)
	}
	if ev.Intersects(Out) {
		t.Fatal("OUT should not intersect")
	}
	if !ev.Contains(In | Hup) {
		t.Fatal("Contains should see both bits")
	}
	if ev.And(Out|Err) != Empty {
		t.Fatal("And with disjoint set should be EMPTY")
	}

	// EMPTY is the union identity.
	if Empty.Or(ev) != ev {
		t.Fatal("EMPTY union X must be X")
	}
}

func TestEventsString(t *testing.T) {
	if s := (In | Hup).String(); s != "IN|HUP" {
		t.Fatalf("unexpected string %q", s)
	}
	if s := Empty.String(); s != "EMPTY" {
		t.Fatalf("unexpected string %q", s)
	}
}

func TestFdFlags(t *testing.T) {
	var f FdFlags
	if f.Contains(FlagNonblock) {
		t.Fatal("zero flags should not contain O_NONBLOCK")
	}
	f.Insert(FlagNonblock)
	if !f.Contains(FlagNonblock) {
		t.Fatal("insert failed")
	}
	f.Remove(FlagNonblock)
	if f.Contains(FlagNonblock) {
		t.Fatal("remove failed")
	}
}
