package hostapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/lfedgeai/spear-hostapi/capability"
	"github.com/lfedgeai/spear-hostapi/errors"
	"github.com/lfedgeai/spear-hostapi/poll"
)

// waitFor blocks until fd reports any of want on epfd. Other asserted
// level-triggered bits can make each wait return early, so retries back off
// briefly instead of spinning.
func waitFor(t *testing.T, h API, epfd, fd int32, want poll.PollEvents) poll.PollEvents {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ready, rc := h.EpWaitReady(epfd, 1000)
		if rc != 0 {
			t.Fatalf("EpWaitReady: rc=%d", rc)
		}
		for _, r := range ready {
			if r.Fd == fd && r.Events.Intersects(want) {
				return r.Events
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("fd %d never reported %v", fd, want)
	return poll.Empty
}

func TestMediaStubSourceDeliversFrames(t *testing.T) {
	h := newTestHost(t, Config{})

	fd := h.MediaOpen()
	if fd < 0 {
		t.Fatalf("MediaOpen: %d", fd)
	}
	epfd := h.EpCreate()
	if rc := h.EpCtl(epfd, poll.EpCtlAdd, fd, int32(poll.In.Bits())); rc != 0 {
		t.Fatalf("EpCtl: %d", rc)
	}

	if _, rc := h.MediaRead(fd); rc != int32(poll.ErrAgain) {
		t.Fatalf("read on empty queue: rc=%d, want -EAGAIN", rc)
	}

	pcm := bytes.Repeat([]byte{0x01, 0x02}, 400)
	payload, _ := json.Marshal(map[string]any{
		"sample_rate_hz": 8000,
		"channels":       1,
		"frame_ms":       5,
		"format":         "pcm16",
		"stub_pcm16_b64": base64.StdEncoding.EncodeToString(pcm),
	})
	if _, rc := h.FdCtl(fd, poll.MediaCtlSetParam, payload); rc != 0 {
		t.Fatalf("FdCtl set param: %d", rc)
	}

	ev := waitFor(t, h, epfd, fd, poll.In)
	if !ev.Contains(poll.In) {
		t.Fatalf("events = %v", ev)
	}

	chunk, rc := h.MediaRead(fd)
	if rc != 0 {
		t.Fatalf("MediaRead: rc=%d", rc)
	}
	// 8kHz mono pcm16 at 5ms per frame.
	if len(chunk) != 80 {
		t.Fatalf("frame size = %d, want 80", len(chunk))
	}

	if rc := h.CloseFd(fd); rc != 0 {
		t.Fatalf("CloseFd: %d", rc)
	}
	if _, rc := h.MediaRead(fd); rc != int32(poll.ErrBadFd) {
		t.Fatalf("read after close: rc=%d, want -EBADF", rc)
	}
}

func TestStreamStubBackendRoundTrip(t *testing.T) {
	h := newTestHost(t, Config{})

	fd := h.StreamOpen()
	if fd < 0 {
		t.Fatalf("StreamOpen: %d", fd)
	}
	epfd := h.EpCreate()
	if rc := h.EpCtl(epfd, poll.EpCtlAdd, fd, int32((poll.In | poll.Out).Bits())); rc != 0 {
		t.Fatalf("EpCtl: %d", rc)
	}

	ready, rc := h.EpWaitReady(epfd, 0)
	if rc != 0 || len(ready) != 1 || !ready[0].Events.Contains(poll.Out) {
		t.Fatalf("fresh stream not writable: %v rc=%d", ready, rc)
	}

	if _, rc := h.FdCtl(fd, poll.StreamCtlConnect, nil); rc != 0 {
		t.Fatalf("connect: %d", rc)
	}

	waitFor(t, h, epfd, fd, poll.In)
	ev, rc := h.StreamRead(fd)
	if rc != 0 {
		t.Fatalf("StreamRead: rc=%d", rc)
	}
	var created struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(ev, &created); err != nil || created.Type != "session.created" {
		t.Fatalf("first event = %s", ev)
	}

	if n := h.StreamWrite(fd, []byte("audio-frame")); n != 11 {
		t.Fatalf("StreamWrite = %d", n)
	}
	waitFor(t, h, epfd, fd, poll.In)
	ev, rc = h.StreamRead(fd)
	if rc != 0 {
		t.Fatalf("StreamRead: rc=%d", rc)
	}
	var delta struct {
		Type  string `json:"type"`
		Bytes int    `json:"bytes"`
	}
	if err := json.Unmarshal(ev, &delta); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if delta.Type != "transcript.delta" || delta.Bytes != 11 {
		t.Fatalf("delta event = %s", ev)
	}

	if rc := h.CloseFd(fd); rc != 0 {
		t.Fatalf("CloseFd: %d", rc)
	}
	if n := h.StreamWrite(fd, []byte("x")); n != int32(poll.ErrBadFd) {
		t.Fatalf("write after close = %d, want -EBADF", n)
	}
}

func TestStreamWriteBackpressure(t *testing.T) {
	h := newTestHost(t, Config{})

	fd := h.StreamOpen()
	limit, _ := json.Marshal(map[string]any{"key": "max_send_queue_bytes", "value": 10})
	if _, rc := h.FdCtl(fd, poll.StreamCtlSetParam, limit); rc != 0 {
		t.Fatalf("set param: %d", rc)
	}

	if n := h.StreamWrite(fd, []byte("123456789")); n != 9 {
		t.Fatalf("first write = %d", n)
	}
	if n := h.StreamWrite(fd, []byte("AB")); n != int32(poll.ErrAgain) {
		t.Fatalf("over-limit write = %d, want -EAGAIN", n)
	}
	if n := h.StreamWrite(fd, []byte("A")); n != 1 {
		t.Fatalf("exact-limit write = %d", n)
	}
}

func TestStreamWriteRejectsTerminalLifecycles(t *testing.T) {
	setLifecycle := func(t *testing.T, table *poll.Table, fd int32, l poll.StreamLifecycle) {
		t.Helper()
		rc := table.Mutate(fd, func(e *poll.FdEntry) poll.Errno {
			e.State().(*poll.StreamState).Lifecycle = l
			return poll.OK
		})
		if rc != poll.OK {
			t.Fatalf("mutate: %v", rc)
		}
	}

	h := newTestHost(t, Config{})
	for _, tc := range []struct {
		lifecycle poll.StreamLifecycle
		want      poll.Errno
	}{
		{poll.StreamDraining, poll.ErrBadFd},
		{poll.StreamClosed, poll.ErrBadFd},
		{poll.StreamError, poll.ErrIO},
	} {
		fd := h.StreamOpen()
		setLifecycle(t, h.Table(), fd, tc.lifecycle)
		if n := h.StreamWrite(fd, []byte("abc")); n != int32(tc.want) {
			t.Fatalf("write in %v = %d, want %d", tc.lifecycle, n, int32(tc.want))
		}
	}

	s := NewStubHost()
	fd := s.StreamOpen()
	setLifecycle(t, s.Table(), fd, poll.StreamDraining)
	if n := s.StreamWrite(fd, []byte("abc")); n != int32(poll.ErrBadFd) {
		t.Fatalf("stub write while draining = %d, want -EBADF", n)
	}
}

func TestStubHostDeterminism(t *testing.T) {
	a := NewStubHost()
	b := NewStubHost()

	ra, err := a.RandomBytes(16)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	rb, _ := b.RandomBytes(16)
	if !bytes.Equal(ra, rb) {
		t.Fatal("seeded random streams diverge")
	}

	t1 := a.TimeNowMS()
	t2 := a.TimeNowMS()
	if t2 != t1+1 {
		t.Fatalf("clock not monotonic by 1ms: %d then %d", t1, t2)
	}
	if b.TimeNowMS() != t1 {
		t.Fatal("fresh stubs start at different epochs")
	}
}

func TestStubHostHonorsCaps(t *testing.T) {
	s := NewStubHost()
	s.Caps = &capability.Set{}

	if fd := s.MediaOpen(); fd != int32(poll.ErrPerm) {
		t.Fatalf("MediaOpen = %d, want -EPERM", fd)
	}
	if fd := s.StreamOpen(); fd != int32(poll.ErrPerm) {
		t.Fatalf("StreamOpen = %d, want -EPERM", fd)
	}
	if _, err := s.RandomBytes(8); err == nil {
		t.Fatal("ungated RandomBytes succeeded")
	}
	_, err := s.HTTPCall(context.Background(), "GET", "https://x", nil, nil)
	he, ok := err.(*errors.Error)
	if !ok || he.Kind != errors.KindUnsupported {
		t.Fatalf("ungated HTTPCall error = %v", err)
	}
}

func TestStubHostScriptedHTTP(t *testing.T) {
	s := NewStubHost()
	s.Responses["GET https://api.example.com/v1/ping"] = &HTTPResponse{
		Status: 200, Body: []byte("pong"),
	}

	resp, err := s.HTTPCall(context.Background(), "GET", "https://api.example.com/v1/ping", nil, nil)
	if err != nil {
		t.Fatalf("scripted call: %v", err)
	}
	if resp.Status != 200 || string(resp.Body) != "pong" {
		t.Fatalf("resp = %+v", resp)
	}

	if _, err := s.HTTPCall(context.Background(), "GET", "https://api.example.com/other", nil, nil); err == nil {
		t.Fatal("unscripted call succeeded")
	}
}

func TestStubHostSharesRealTable(t *testing.T) {
	s := NewStubHost()

	fd := s.MediaOpen()
	epfd := s.EpCreate()
	if rc := s.EpCtl(epfd, poll.EpCtlAdd, fd, int32(poll.In.Bits())); rc != 0 {
		t.Fatalf("EpCtl: %d", rc)
	}

	s.Table().Mutate(fd, func(e *poll.FdEntry) poll.Errno {
		e.State().(*poll.MediaState).Push([]byte("chunk"))
		return poll.OK
	})

	ready, rc := s.EpWaitReady(epfd, 0)
	if rc != 0 || len(ready) != 1 || !ready[0].Events.Contains(poll.In) {
		t.Fatalf("ready = %v rc=%d", ready, rc)
	}
	chunk, rc := s.MediaRead(fd)
	if rc != 0 || string(chunk) != "chunk" {
		t.Fatalf("read = %q rc=%d", chunk, rc)
	}
}
