package poll

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Epoll control operations, matching the OS epoll contract.
const (
	EpCtlAdd int32 = 1
	EpCtlMod int32 = 2
	EpCtlDel int32 = 3
)

// Generic FdCtl commands handled by the table for every variant.
const (
	FdCtlSetFlags   int32 = 1
	FdCtlGetFlags   int32 = 2
	FdCtlGetKind    int32 = 3
	FdCtlGetStatus  int32 = 4
	FdCtlGetMetrics int32 = 5
)

// DefaultMaxFds bounds the number of live descriptors per table.
const DefaultMaxFds = 4096

// Ready is one (fd, asserted-events) pair returned by EpWaitReady.
type Ready struct {
	Fd     int32
	Events PollEvents
}

// Table is the registry owning every FdEntry and every epoll interest set.
// A single mutex serializes guest syscalls against backend I/O producers so
// a reader can never observe a state change without its mask update.
type Table struct {
	mu      sync.Mutex
	nextFd  int32
	maxFds  int
	entries map[int32]*FdEntry
	// closedFds keeps tombstones for removed descriptors so double close is
	// an idempotent no-op while stale references still fail with EBADF.
	closedFds map[int32]struct{}
}

// NewTable creates an empty table allocating descriptors from startFD.
func NewTable(startFD int32) *Table {
	return &Table{
		nextFd:    startFD,
		maxFds:    DefaultMaxFds,
		entries:   make(map[int32]*FdEntry),
		closedFds: make(map[int32]struct{}),
	}
}

// Alloc registers a new connection state and returns its descriptor, or
// -ENOMEM when the table is exhausted.
func (t *Table) Alloc(state ConnState) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allocLocked(state)
}

func (t *Table) allocLocked(state ConnState) int32 {
	if len(t.entries) >= t.maxFds {
		return int32(ErrNoMem)
	}
	fd := t.nextFd
	t.nextFd++
	e := &FdEntry{
		fd:       fd,
		kind:     state.Kind(),
		watchers: make(map[int32]struct{}),
		state:    state,
	}
	e.recompute()
	t.entries[fd] = e
	return fd
}

// EpCreate allocates a fresh epoll instance with an empty interest set.
func (t *Table) EpCreate() int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allocLocked(newEpollState(&t.mu))
}

// EpCtl updates epfd's interest set. ADD fails with -EEXIST if fd is already
// registered, MOD fails with -ENOENT if it is not, DEL removes regardless of
// the prior interest value. The update is atomic with respect to readiness
// recomputation: both run under the table mutex.
func (t *Table) EpCtl(epfd, op, fd int32, events PollEvents) Errno {
	t.mu.Lock()
	defer t.mu.Unlock()

	if epfd == fd {
		return ErrInval
	}
	ep, st, rc := t.epollLocked(epfd)
	if rc != OK {
		return rc
	}
	target, ok := t.entries[fd]
	if !ok {
		return ErrBadFd
	}
	if target.kind == KindEpoll {
		return ErrInval
	}

	switch op {
	case EpCtlAdd:
		if _, exists := st.interest[fd]; exists {
			return ErrExist
		}
		st.interest[fd] = events
		target.watchers[ep.fd] = struct{}{}
	case EpCtlMod:
		if _, exists := st.interest[fd]; !exists {
			return ErrNoEnt
		}
		st.interest[fd] = events
	case EpCtlDel:
		delete(st.interest, fd)
		delete(target.watchers, ep.fd)
	default:
		return ErrInval
	}
	st.bump()
	return OK
}

// EpWaitReady returns every (fd, mask∩interest) pair registered on epfd whose
// current readiness intersects its interest, sorted by fd. Level-triggered:
// readiness is recomputed from current state on every call, so an undrained
// fd is reported again. With no ready fd the caller blocks up to timeoutMS
// (0 polls once, negative waits indefinitely) and is released early by any
// readiness-affecting mutation in the table. Timeout expiry and epoll
// closure both yield an empty, non-error result.
func (t *Table) EpWaitReady(epfd, timeoutMS int32) ([]Ready, Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, st, rc := t.epollLocked(epfd)
	if rc != OK {
		return nil, rc
	}

	var deadline time.Time
	if timeoutMS > 0 {
		deadline = time.Now().Add(time.Duration(timeoutMS) * time.Millisecond)
	}

	for {
		if st.closed {
			return []Ready{}, OK
		}

		ready := make([]Ready, 0, len(st.interest))
		for fd, interest := range st.interest {
			e, ok := t.entries[fd]
			if !ok {
				continue
			}
			if m := e.mask.And(interest); !m.IsEmpty() {
				ready = append(ready, Ready{Fd: fd, Events: m})
			}
		}
		sort.Slice(ready, func(i, j int) bool { return ready[i].Fd < ready[j].Fd })
		if len(ready) > 0 {
			return ready, OK
		}
		if timeoutMS == 0 {
			return []Ready{}, OK
		}

		seq := st.seq
		if timeoutMS > 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return []Ready{}, OK
			}
			timedOut := false
			timer := time.AfterFunc(remaining, func() {
				t.mu.Lock()
				timedOut = true
				st.cond.Broadcast()
				t.mu.Unlock()
			})
			for st.seq == seq && !st.closed && !timedOut {
				st.cond.Wait()
			}
			timer.Stop()
			if timedOut && st.seq == seq && !st.closed {
				return []Ready{}, OK
			}
		} else {
			for st.seq == seq && !st.closed {
				st.cond.Wait()
			}
		}
	}
}

// Close marks the entry closed, recomputes readiness one final time so HUP
// is asserted, purges the fd from every epoll interest set, and removes the
// entry. Closing an already-closed fd is an idempotent no-op; closing an
// unknown fd fails with -EBADF. Closing an epoll fd releases its blocked
// waiters with an empty result and drops its interest set without touching
// the watched entries' state.
func (t *Table) Close(fd int32) Errno {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[fd]
	if !ok {
		if _, tomb := t.closedFds[fd]; tomb {
			return OK
		}
		return ErrBadFd
	}

	e.closed = true
	e.recompute()

	// Eager purge: no epoll instance may report this fd once Close returns.
	for epfd := range e.watchers {
		if ep, ok := t.entries[epfd]; ok {
			if st, ok := ep.state.(*epollState); ok {
				delete(st.interest, fd)
				st.bump()
			}
		}
	}

	if st, ok := e.state.(*epollState); ok {
		st.closed = true
		st.bump()
		for wfd := range st.interest {
			if w, ok := t.entries[wfd]; ok {
				delete(w.watchers, fd)
			}
		}
	}

	delete(t.entries, fd)
	t.closedFds[fd] = struct{}{}
	return OK
}

// CloseAll tears down every live descriptor, used when the owning task is
// being destroyed.
func (t *Table) CloseAll() {
	t.mu.Lock()
	fds := make([]int32, 0, len(t.entries))
	for fd := range t.entries {
		fds = append(fds, fd)
	}
	t.mu.Unlock()
	for _, fd := range fds {
		t.Close(fd)
	}
}

// Mutate runs fn on the entry under the table lock, then recomputes the
// readiness mask within the same critical section and wakes every epoll
// instance watching the fd if the mask changed. This is the single entry
// point both guest syscalls and backend I/O goroutines mutate state through.
func (t *Table) Mutate(fd int32, fn func(*FdEntry) Errno) Errno {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[fd]
	if !ok || e.closed {
		return ErrBadFd
	}
	old := e.mask
	rc := fn(e)
	e.recompute()
	if e.mask != old {
		t.notifyLocked(e)
	}
	return rc
}

// Len returns the number of live descriptors.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Table) notifyLocked(e *FdEntry) {
	for epfd := range e.watchers {
		if ep, ok := t.entries[epfd]; ok {
			if st, ok := ep.state.(*epollState); ok {
				st.bump()
			}
		}
	}
}

func (t *Table) epollLocked(epfd int32) (*FdEntry, *epollState, Errno) {
	ep, ok := t.entries[epfd]
	if !ok || ep.closed {
		return nil, nil, ErrBadFd
	}
	st, ok := ep.state.(*epollState)
	if !ok {
		return nil, nil, ErrInval
	}
	return ep, st, OK
}

type fdFlagsPayload struct {
	Set   []string `json:"set"`
	Clear []string `json:"clear"`
}

// FdCtl is the generic control channel. Commands 1-5 are handled uniformly
// by the table; anything else is routed to the connection-state variant's
// own handler, which fails with -EINVAL for commands it does not support.
func (t *Table) FdCtl(fd, cmd int32, payload []byte) ([]byte, Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[fd]
	if !ok || e.closed {
		return nil, ErrBadFd
	}

	switch cmd {
	case FdCtlSetFlags:
		if payload == nil {
			return nil, ErrInval
		}
		var p fdFlagsPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, ErrInval
		}
		for _, name := range p.Set {
			if name == "O_NONBLOCK" {
				e.flags.Insert(FlagNonblock)
			}
		}
		for _, name := range p.Clear {
			if name == "O_NONBLOCK" {
				e.flags.Remove(FlagNonblock)
			}
		}
		return nil, OK

	case FdCtlGetFlags:
		return marshalCtl(map[string]any{"flags": flagNames(e.flags)})

	case FdCtlGetKind:
		return marshalCtl(map[string]any{"kind": e.kind.String()})

	case FdCtlGetStatus:
		return marshalCtl(map[string]any{
			"kind":      e.kind.String(),
			"flags":     flagNames(e.flags),
			"poll_mask": e.mask.names(),
			"closed":    e.closed,
		})

	case FdCtlGetMetrics:
		return e.state.metrics(), OK
	}

	old := e.mask
	out, rc := e.state.ctl(cmd, payload)
	e.recompute()
	if e.mask != old {
		t.notifyLocked(e)
	}
	return out, rc
}

func marshalCtl(v map[string]any) ([]byte, Errno) {
	out, err := json.Marshal(v)
	if err != nil {
		return []byte("{}"), OK
	}
	return out, OK
}

func flagNames(f FdFlags) []string {
	names := make([]string, 0, 1)
	if f.Contains(FlagNonblock) {
		names = append(names, "O_NONBLOCK")
	}
	return names
}
