package poll

import "strings"

// PollEvents is the readiness bit set shared by interest registration and
// readiness computation. It is a plain value type; the zero value is Empty.
type PollEvents uint32

const (
	Empty PollEvents = 0
	In    PollEvents = 0x001
	Out   PollEvents = 0x004
	Err   PollEvents = 0x008
	Hup   PollEvents = 0x010
)

const allEvents = In | Out | Err | Hup

// EventsFromBits constructs a PollEvents from a raw integer as received at
// the guest boundary. Unknown bits are truncated, not rejected, so guests
// compiled against a newer event vocabulary keep working.
func EventsFromBits(v uint32) PollEvents {
	return PollEvents(v) & allEvents
}

// Bits returns the raw bit representation for the guest boundary.
func (e PollEvents) Bits() uint32 { return uint32(e) }

// IsEmpty reports whether no event is set.
func (e PollEvents) IsEmpty() bool { return e == 0 }

// Intersects reports whether the two sets share any bit.
func (e PollEvents) Intersects(other PollEvents) bool { return e&other != 0 }

// Contains reports whether every bit of other is set in e.
func (e PollEvents) Contains(other PollEvents) bool { return e&other == other }

// And returns the intersection of the two sets.
func (e PollEvents) And(other PollEvents) PollEvents { return e & other }

// Or returns the union of the two sets.
func (e PollEvents) Or(other PollEvents) PollEvents { return e | other }

// Insert adds every bit of other to e.
func (e *PollEvents) Insert(other PollEvents) { *e |= other }

func (e PollEvents) String() string {
	if e == 0 {
		return "EMPTY"
	}
	var parts []string
	if e.Intersects(In) {
		parts = append(parts, "IN")
	}
	if e.Intersects(Out) {
		parts = append(parts, "OUT")
	}
	if e.Intersects(Err) {
		parts = append(parts, "ERR")
	}
	if e.Intersects(Hup) {
		parts = append(parts, "HUP")
	}
	return strings.Join(parts, "|")
}

// names returns the mask as EPOLL* flag names for status payloads.
func (e PollEvents) names() []string {
	names := make([]string, 0, 4)
	if e.Intersects(In) {
		names = append(names, "EPOLLIN")
	}
	if e.Intersects(Out) {
		names = append(names, "EPOLLOUT")
	}
	if e.Intersects(Err) {
		names = append(names, "EPOLLERR")
	}
	if e.Intersects(Hup) {
		names = append(names, "EPOLLHUP")
	}
	return names
}

// FdFlags is the per-entry flag set manipulated through FdCtl.
type FdFlags uint32

const (
	FlagNonblock FdFlags = 0x1
)

// Contains reports whether every bit of other is set.
func (f FdFlags) Contains(other FdFlags) bool { return f&other == other }

// Insert adds every bit of other.
func (f *FdFlags) Insert(other FdFlags) { *f |= other }

// Remove clears every bit of other.
func (f *FdFlags) Remove(other FdFlags) { *f &^= other }
