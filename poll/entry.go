package poll

import "sync"

// FdKind tags the connection-state variant owned by an entry.
type FdKind uint8

const (
	KindEpoll FdKind = iota
	KindMedia
	KindStream
)

func (k FdKind) String() string {
	switch k {
	case KindEpoll:
		return "epoll"
	case KindMedia:
		return "media"
	case KindStream:
		return "stream"
	}
	return "unknown"
}

// ConnState is the closed set of per-backend connection states. Each variant
// owns exactly one readiness rule recomputed under the table lock after every
// mutation; pollMask is total - it never blocks and never fails. Adding a
// backend type means adding a variant here, never touching the table.
type ConnState interface {
	Kind() FdKind

	// pollMask recomputes the entry's readiness from current state.
	pollMask(closed bool) PollEvents

	// ctl handles variant-specific FdCtl commands. Runs under the table
	// lock; the table recomputes readiness afterwards.
	ctl(cmd int32, payload []byte) ([]byte, Errno)

	// metrics returns a JSON snapshot for FdCtlGetMetrics.
	metrics() []byte
}

// FdEntry is one virtual file descriptor: a connection-state variant, the
// closed flag, and the last-computed readiness mask. Entries are reachable
// only through the table's lock; no reference escapes a locked scope.
type FdEntry struct {
	fd       int32
	kind     FdKind
	flags    FdFlags
	closed   bool
	mask     PollEvents
	watchers map[int32]struct{} // epfds with this fd in their interest set
	state    ConnState
}

// Fd returns the entry's descriptor number.
func (e *FdEntry) Fd() int32 { return e.fd }

// Kind returns the connection-state variant tag.
func (e *FdEntry) Kind() FdKind { return e.kind }

// Closed reports whether Close has been called on the entry.
func (e *FdEntry) Closed() bool { return e.closed }

// Mask returns the last-computed readiness mask. Only meaningful while the
// table lock is held.
func (e *FdEntry) Mask() PollEvents { return e.mask }

// State returns the connection-state variant for type-asserted mutation
// inside Table.Mutate callbacks.
func (e *FdEntry) State() ConnState { return e.state }

// recompute reruns the variant's readiness computer. Must be called inside
// the same critical section as the mutation that could affect the mask.
func (e *FdEntry) recompute() {
	e.mask = e.state.pollMask(e.closed)
}

// epollState is the interest set of one epoll instance plus the wait/notify
// primitive releasing blocked EpWaitReady callers. The cond shares the table
// mutex so interest updates and wakeups stay atomic with readiness changes.
type epollState struct {
	interest map[int32]PollEvents
	cond     *sync.Cond
	seq      uint64
	closed   bool
}

func newEpollState(l sync.Locker) *epollState {
	return &epollState{
		interest: make(map[int32]PollEvents),
		cond:     sync.NewCond(l),
	}
}

func (s *epollState) Kind() FdKind { return KindEpoll }

func (s *epollState) pollMask(bool) PollEvents { return Empty }

func (s *epollState) ctl(int32, []byte) ([]byte, Errno) { return nil, ErrInval }

func (s *epollState) metrics() []byte { return []byte("{}") }

// bump advances the sequence counter and releases every blocked waiter so it
// re-evaluates readiness against current state.
func (s *epollState) bump() {
	s.seq++
	s.cond.Broadcast()
}
