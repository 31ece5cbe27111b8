package hostapi

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/lfedgeai/spear-hostapi/capability"
	"github.com/lfedgeai/spear-hostapi/poll"
)

// StreamOpen allocates a real-time-session descriptor. A fresh session is
// immediately writable: the initial mask carries OUT.
func (h *Host) StreamOpen() int32 {
	if !h.caps.SupportsOperation(capability.OpStreamOpen) {
		return int32(poll.ErrPerm)
	}
	return h.table.Alloc(poll.NewStreamState())
}

// StreamWrite queues p for transmission and returns the byte count, -EAGAIN
// when the write would exceed the send byte limit, -EIO when the session is
// in the error state, -EBADF once the lifecycle is draining or closed.
func (h *Host) StreamWrite(fd int32, p []byte) int32 {
	n := len(p)
	rc := h.table.Mutate(fd, func(e *poll.FdEntry) poll.Errno {
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

// StreamRead pops the oldest inbound event, or -EAGAIN when none is queued.
func (h *Host) StreamRead(fd int32) ([]byte, int32) {
	var event []byte
	rc := h.table.Mutate(fd, func(e *poll.FdEntry) poll.Errno {
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

// startStreamBackend runs the stub session backend for fd: it acknowledges
// the connect, then consumes the send queue and delivers one event per
// consumed item. Lifecycle transitions and deliveries go through
// Table.Mutate so readiness stays consistent with state.
func (h *Host) startStreamBackend(fd int32) {
	h.spawn(func() {
		rc := h.table.Mutate(fd, func(e *poll.FdEntry) poll.Errno {
			st, ok := e.State().(*poll.StreamState)
			if !ok {
				return poll.ErrBadFd
			}
			if st.Lifecycle != poll.StreamConnecting {
				return poll.ErrInval
			}
			st.Lifecycle = poll.StreamConnected
			st.PushRecv(stubEvent("session.created", 0))
			return poll.OK
		})
		if rc != poll.OK {
			h.logger.Debug("stream backend not started",
				zap.Int32("fd", fd), zap.String("rc", poll.Errno(rc).String()))
			return
		}

		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			rc := h.table.Mutate(fd, func(e *poll.FdEntry) poll.Errno {
				st, ok := e.State().(*poll.StreamState)
				if !ok {
					return poll.ErrBadFd
				}
				if st.Lifecycle != poll.StreamConnected {
					return poll.ErrBadFd
				}
				for {
					item, ok := st.PopSend()
					if !ok {
						break
					}
					if item.Text {
						st.PushRecv(stubEvent("event.ack", item.Len()))
					} else {
						st.PushRecv(stubEvent("transcript.delta", item.Len()))
					}
				}
				return poll.OK
			})
			if rc != poll.OK {
				return
			}
		}
	})
}

func stubEvent(kind string, bytes int) []byte {
	out, err := json.Marshal(map[string]any{"type": kind, "bytes": bytes})
	if err != nil {
		return []byte(`{"type":"` + kind + `"}`)
	}
	return out
}
