package hostapi

import (
	"context"
	"math/rand"
	"sync"

	"github.com/lfedgeai/spear-hostapi/capability"
	"github.com/lfedgeai/spear-hostapi/errors"
	"github.com/lfedgeai/spear-hostapi/poll"
	"github.com/lfedgeai/spear-hostapi/storage"
)

// StubHost is a deterministic API implementation for tests: fixed clock,
// seeded randomness, scripted HTTP responses, in-memory everything. The fd
// table is the real multiplexer, so polling behavior matches production.
type StubHost struct {
	// Responses maps "METHOD url" to the scripted outbound-call result.
	Responses map[string]*HTTPResponse

	Env  map[string]string
	Caps *capability.Set

	mu    sync.Mutex
	table *poll.Table
	store *storage.MemoryStore
	rng   *rand.Rand
	nowMS uint64
	logs  []string
}

// NewStubHost creates a deterministic host double.
func NewStubHost() *StubHost {
	return &StubHost{
		Responses: make(map[string]*HTTPResponse),
		Env:       make(map[string]string),
		Caps:      capability.Default(),
		table:     poll.NewTable(StartFD),
		store:     storage.NewMemoryStore(),
		rng:       rand.New(rand.NewSource(1)),
		nowMS:     1_700_000_000_000,
	}
}

// Table exposes the underlying fd table for direct state injection.
func (s *StubHost) Table() *poll.Table { return s.table }

// Logs returns every line recorded via Log.
func (s *StubHost) Logs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.logs...)
}

func (s *StubHost) EpCreate() int32 { return s.table.EpCreate() }

func (s *StubHost) EpCtl(epfd, op, fd, events int32) int32 {
	return int32(s.table.EpCtl(epfd, op, fd, poll.EventsFromBits(uint32(events))))
}

func (s *StubHost) EpWaitReady(epfd, timeoutMS int32) ([]poll.Ready, int32) {
	ready, rc := s.table.EpWaitReady(epfd, timeoutMS)
	return ready, int32(rc)
}

func (s *StubHost) CloseFd(fd int32) int32 { return int32(s.table.Close(fd)) }

func (s *StubHost) FdCtl(fd, cmd int32, payload []byte) ([]byte, int32) {
	out, rc := s.table.FdCtl(fd, cmd, payload)
	return out, int32(rc)
}

func (s *StubHost) MediaOpen() int32 {
	if !s.Caps.SupportsOperation(capability.OpMediaOpen) {
		return int32(poll.ErrPerm)
	}
	return s.table.Alloc(poll.NewMediaState())
}

func (s *StubHost) MediaRead(fd int32) ([]byte, int32) {
	var chunk []byte
	rc := s.table.Mutate(fd, func(e *poll.FdEntry) poll.Errno {
		st, ok := e.State().(*poll.MediaState)
		if !ok {
			return poll.ErrBadFd
		}
		c, ok := st.Pop()
		if !ok {
			return poll.ErrAgain
		}
		chunk = c
		return poll.OK
	})
	if rc != poll.OK {
		return nil, int32(rc)
	}
	return chunk, 0
}

func (s *StubHost) StreamOpen() int32 {
	if !s.Caps.SupportsOperation(capability.OpStreamOpen) {
		return int32(poll.ErrPerm)
	}
	return s.table.Alloc(poll.NewStreamState())
}

func (s *StubHost) StreamWrite(fd int32, p []byte) int32 {
	n := len(p)
	rc := s.table.Mutate(fd, func(e *poll.FdEntry) poll.Errno {
		st, ok := e.State().(*poll.StreamState)
		if !ok {
			return poll.ErrBadFd
		}
		if st.Lifecycle == poll.StreamError {
			return poll.ErrIO
		}
		if !st.Lifecycle.Writable() {
			return poll.ErrBadFd
		}
		if !st.EnqueueSend(poll.SendItem{Data: append([]byte(nil), p...)}) {
			return poll.ErrAgain
		}
		return poll.OK
	})
	if rc != poll.OK {
		return int32(rc)
	}
	return int32(n)
}

func (s *StubHost) StreamRead(fd int32) ([]byte, int32) {
	var event []byte
	rc := s.table.Mutate(fd, func(e *poll.FdEntry) poll.Errno {
		st, ok := e.State().(*poll.StreamState)
		if !ok {
			return poll.ErrBadFd
		}
		ev, ok := st.PopRecv()
		if !ok {
			return poll.ErrAgain
		}
		event = ev
		return poll.OK
	})
	if rc != poll.OK {
		return nil, int32(rc)
	}
	return event, 0
}

func (s *StubHost) Log(level, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, level+": "+message)
}

// TimeNowMS returns a fixed epoch advancing one millisecond per call.
func (s *StubHost) TimeNowMS() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowMS++
	return s.nowMS
}

// RandomBytes returns bytes from a seeded generator, identical between runs.
func (s *StubHost) RandomBytes(n int) ([]byte, error) {
	if !s.Caps.SupportsOperation(capability.OpRandomBytes) {
		return nil, errors.NotSupported(capability.OpRandomBytes)
	}
	if n < 0 || n > MaxRandomBytes {
		return nil, errors.InvalidInput(capability.OpRandomBytes,
			"requested length out of range")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, n)
	s.rng.Read(buf)
	return buf, nil
}

func (s *StubHost) GetEnv(key string) (string, bool) {
	v, ok := s.Env[key]
	return v, ok
}

// HTTPCall replays a scripted response for "METHOD url"; unscripted calls
// fail with a transport error.
func (s *StubHost) HTTPCall(_ context.Context, method, url string, _ map[string]string, _ []byte) (*HTTPResponse, error) {
	if !s.Caps.SupportsOperation(capability.OpHTTPCall) {
		return nil, errors.NotSupported(capability.OpHTTPCall)
	}
	if resp, ok := s.Responses[method+" "+url]; ok {
		return resp, nil
	}
	return nil, errors.New(errors.PhaseTransport, errors.KindTransport).
		Op(capability.OpHTTPCall).
		Detail("no scripted response for %s %s", method, url).
		Build()
}

func (s *StubHost) PutResult(taskID string, data []byte, metadata map[string]string) (string, error) {
	return s.store.PutResult(taskID, data, metadata)
}

func (s *StubHost) GetObject(id string) ([]byte, error) { return s.store.Get(id) }

func (s *StubHost) PutObject(name string, data []byte) (string, error) {
	return s.store.Put(name, data)
}
