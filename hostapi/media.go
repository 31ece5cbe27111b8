package hostapi

import (
	"time"

	"go.uber.org/zap"

	"github.com/lfedgeai/spear-hostapi/capability"
	"github.com/lfedgeai/spear-hostapi/poll"
)

// MediaOpen allocates a buffered-media descriptor. The descriptor starts
// quiescent; configure it with FdCtl(MediaCtlSetParam) to attach a source.
func (h *Host) MediaOpen() int32 {
	if !h.caps.SupportsOperation(capability.OpMediaOpen) {
		return int32(poll.ErrPerm)
	}
	return h.table.Alloc(poll.NewMediaState())
}

// MediaRead pops the oldest queued chunk, or -EAGAIN when the queue is
// empty. Draining the queue withdraws IN on the next readiness computation,
// which happens in the same critical section as the pop.
func (h *Host) MediaRead(fd int32) ([]byte, int32) {
	var chunk []byte
	rc := h.table.Mutate(fd, func(e *poll.FdEntry) poll.Errno {
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

// startMediaSource launches the configured source for fd on the host pool.
// Only the stub source is wired here; real device capture plugs in at the
// same seam.
func (h *Host) startMediaSource(fd int32) {
	var (
		frameBytes int
		frameEvery time.Duration
		generation uint64
		run        bool
	)
	h.table.Mutate(fd, func(e *poll.FdEntry) poll.Errno {
		st, ok := e.State().(*poll.MediaState)
		if !ok || st.Config == nil || len(st.StubPCM) == 0 || st.Running {
			return poll.OK
		}
		cfg := st.Config
		// pcm16: two bytes per sample per channel.
		frameBytes = int(cfg.SampleRateHz) * int(cfg.Channels) * 2 *
			int(cfg.FrameMS) / 1000
		frameEvery = time.Duration(cfg.FrameMS) * time.Millisecond
		st.Running = true
		generation = st.Generation
		run = true
		return poll.OK
	})
	if !run || frameBytes <= 0 {
		return
	}

	h.spawn(func() {
		ticker := time.NewTicker(frameEvery)
		defer ticker.Stop()
		for range ticker.C {
			rc := h.table.Mutate(fd, func(e *poll.FdEntry) poll.Errno {
				st, ok := e.State().(*poll.MediaState)
				if !ok {
					return poll.ErrBadFd
				}
				if st.Generation != generation {
					return poll.ErrBadFd
				}
				st.Push(st.NextStubFrame(frameBytes))
				return poll.OK
			})
			if rc != poll.OK {
				h.logger.Debug("media source stopped",
					zap.Int32("fd", fd), zap.Uint64("generation", generation))
				return
			}
		}
	})
}
