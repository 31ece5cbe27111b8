package poll

import (
	"encoding/json"

	"github.com/eapache/queue"
)

// Variant-specific FdCtl command space for stream descriptors.
const (
	StreamCtlSetParam  int32 = 0x201
	StreamCtlConnect   int32 = 0x202
	StreamCtlGetStatus int32 = 0x203
	StreamCtlSendEvent int32 = 0x204
)

// StreamLifecycle is the protocol state of a real-time session.
type StreamLifecycle uint8

const (
	StreamInit StreamLifecycle = iota
	StreamConfigured
	StreamConnecting
	StreamConnected
	StreamDraining
	StreamClosed
	StreamError
)

func (l StreamLifecycle) String() string {
	switch l {
	case StreamInit:
		return "init"
	case StreamConfigured:
		return "configured"
	case StreamConnecting:
		return "connecting"
	case StreamConnected:
		return "connected"
	case StreamDraining:
		return "draining"
	case StreamClosed:
		return "closed"
	case StreamError:
		return "error"
	}
	return "unknown"
}

// Writable reports whether the lifecycle still accepts outbound writes.
// Draining, closed and error are terminal for the send direction.
func (l StreamLifecycle) Writable() bool {
	return l != StreamDraining && l != StreamClosed && l != StreamError
}

// SendItem is one queued outbound frame: binary payload or control text.
type SendItem struct {
	Text bool
	Data []byte
}

func (i SendItem) Len() int { return len(i.Data) }

// DefaultStreamQueueBytes bounds a stream's send and receive queues.
const DefaultStreamQueueBytes = 1 << 20

// StreamState is the real-time-session connection state: inbound event
// queue, byte-accounted outbound queue, and the protocol lifecycle.
type StreamState struct {
	Lifecycle StreamLifecycle
	Params    map[string]any

	MaxSendQueueBytes int
	MaxRecvQueueBytes int
	DroppedEvents     uint64

	sendQueue      *queue.Queue
	sendQueueBytes int
	recvQueue      *queue.Queue
	recvQueueBytes int
	lastErr        string
}

// NewStreamState returns a stream state in the initial lifecycle with
// default queue limits.
func NewStreamState() *StreamState {
	return &StreamState{
		Lifecycle:         StreamInit,
		Params:            make(map[string]any),
		MaxSendQueueBytes: DefaultStreamQueueBytes,
		MaxRecvQueueBytes: DefaultStreamQueueBytes,
		sendQueue:         queue.New(),
		recvQueue:         queue.New(),
	}
}

func (s *StreamState) Kind() FdKind { return KindStream }

// EnqueueSend appends an outbound item if it fits under the byte limit.
func (s *StreamState) EnqueueSend(item SendItem) bool {
	if s.sendQueueBytes+item.Len() > s.MaxSendQueueBytes {
		return false
	}
	s.sendQueue.Add(item)
	s.sendQueueBytes += item.Len()
	return true
}

// PopSend removes the oldest outbound item for transmission.
func (s *StreamState) PopSend() (SendItem, bool) {
	if s.sendQueue.Length() == 0 {
		return SendItem{}, false
	}
	item := s.sendQueue.Remove().(SendItem)
	s.sendQueueBytes -= item.Len()
	return item, true
}

// PushRecv queues an inbound event. Events past the byte limit are dropped
// and counted so a slow guest cannot grow the host unbounded.
func (s *StreamState) PushRecv(event []byte) bool {
	if s.recvQueueBytes+len(event) > s.MaxRecvQueueBytes {
		s.DroppedEvents++
		return false
	}
	s.recvQueue.Add(event)
	s.recvQueueBytes += len(event)
	return true
}

// PopRecv removes and returns the oldest inbound event.
func (s *StreamState) PopRecv() ([]byte, bool) {
	if s.recvQueue.Length() == 0 {
		return nil, false
	}
	event := s.recvQueue.Remove().([]byte)
	s.recvQueueBytes -= len(event)
	return event, true
}

// SetError moves the lifecycle to the error state and records the cause.
func (s *StreamState) SetError(msg string) {
	s.Lifecycle = StreamError
	s.lastErr = msg
}

// LastError returns the recorded error, if any.
func (s *StreamState) LastError() string { return s.lastErr }

// SendQueueBytes returns the outbound byte count.
func (s *StreamState) SendQueueBytes() int { return s.sendQueueBytes }

// SendQueueLen returns the number of queued outbound items.
func (s *StreamState) SendQueueLen() int { return s.sendQueue.Length() }

// RecvQueueLen returns the number of queued inbound events.
func (s *StreamState) RecvQueueLen() int { return s.recvQueue.Length() }

// OUT is a three-way gate: byte backpressure, protocol lifecycle and handle
// closure must all permit writes.
func (s *StreamState) pollMask(closed bool) PollEvents {
	mask := Empty
	if s.recvQueue.Length() > 0 {
		mask.Insert(In)
	}
	if s.sendQueueBytes < s.MaxSendQueueBytes && s.Lifecycle.Writable() && !closed {
		mask.Insert(Out)
	}
	if s.Lifecycle == StreamError {
		mask.Insert(Err)
	}
	if closed || s.Lifecycle == StreamClosed {
		mask.Insert(Hup)
	}
	return mask
}

type streamParam struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (s *StreamState) ctl(cmd int32, payload []byte) ([]byte, Errno) {
	switch cmd {
	case StreamCtlSetParam:
		if payload == nil {
			return nil, ErrInval
		}
		var p streamParam
		if err := json.Unmarshal(payload, &p); err != nil || p.Key == "" {
			return nil, ErrInval
		}
		s.Params[p.Key] = p.Value
		if s.Lifecycle == StreamInit {
			s.Lifecycle = StreamConfigured
		}
		if n, ok := p.Value.(float64); ok && n > 0 {
			switch p.Key {
			case "max_send_queue_bytes":
				s.MaxSendQueueBytes = int(n)
			case "max_recv_queue_bytes":
				s.MaxRecvQueueBytes = int(n)
			}
		}
		return nil, OK

	case StreamCtlConnect:
		switch s.Lifecycle {
		case StreamClosed:
			return nil, ErrBadFd
		case StreamError:
			return nil, ErrIO
		case StreamConnecting, StreamConnected:
			return nil, OK
		}
		s.Lifecycle = StreamConnecting
		return nil, OK

	case StreamCtlGetStatus:
		out, err := json.Marshal(map[string]any{
			"state":            s.Lifecycle.String(),
			"send_queue_bytes": s.sendQueueBytes,
			"recv_queue_len":   s.recvQueue.Length(),
			"last_error":       s.lastErr,
		})
		if err != nil {
			return []byte("{}"), OK
		}
		return out, OK

	case StreamCtlSendEvent:
		if payload == nil {
			return nil, ErrInval
		}
		if s.Lifecycle == StreamError {
			return nil, ErrIO
		}
		if !s.Lifecycle.Writable() {
			return nil, ErrBadFd
		}
		item := SendItem{Text: true, Data: append([]byte(nil), payload...)}
		if !s.EnqueueSend(item) {
			return nil, ErrAgain
		}
		return nil, OK
	}
	return nil, ErrInval
}

func (s *StreamState) metrics() []byte {
	out, err := json.Marshal(map[string]any{
		"state":            s.Lifecycle.String(),
		"send_queue_bytes": s.sendQueueBytes,
		"recv_queue_bytes": s.recvQueueBytes,
		"dropped_events":   s.DroppedEvents,
	})
	if err != nil {
		return []byte("{}")
	}
	return out
}
