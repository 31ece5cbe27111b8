package hostapi

import "github.com/lfedgeai/spear-hostapi/poll"

// The fd/epoll surface reinterpreted as guest-callable syscalls with fixed
// integer signatures. Raw event bits are converted at this boundary only;
// unknown bits are truncated, never rejected.

// EpCreate allocates a fresh epoll instance.
func (h *Host) EpCreate() int32 {
	return h.table.EpCreate()
}

// EpCtl adds, modifies or deletes interest in fd on epfd.
func (h *Host) EpCtl(epfd, op, fd, events int32) int32 {
	return int32(h.table.EpCtl(epfd, op, fd, poll.EventsFromBits(uint32(events))))
}

// EpWaitReady blocks up to timeoutMS for readiness on epfd.
func (h *Host) EpWaitReady(epfd, timeoutMS int32) ([]poll.Ready, int32) {
	ready, rc := h.table.EpWaitReady(epfd, timeoutMS)
	return ready, int32(rc)
}

// CloseFd closes any descriptor, epoll instances included. Stream
// descriptors move their protocol lifecycle to closed first so the final
// readiness recomputation observes it.
func (h *Host) CloseFd(fd int32) int32 {
	h.table.Mutate(fd, func(e *poll.FdEntry) poll.Errno {
		if st, ok := e.State().(*poll.StreamState); ok {
			st.Lifecycle = poll.StreamClosed
		}
		if st, ok := e.State().(*poll.MediaState); ok {
			st.Running = false
			st.Generation++
		}
		return poll.OK
	})
	return int32(h.table.Close(fd))
}

// FdCtl is the generic per-descriptor control channel. Variant commands
// that establish a backend (media source configuration, stream connect) also
// start the matching background source on the host's pool.
func (h *Host) FdCtl(fd, cmd int32, payload []byte) ([]byte, int32) {
	out, rc := h.table.FdCtl(fd, cmd, payload)
	if rc == poll.OK {
		switch cmd {
		case poll.MediaCtlSetParam:
			h.startMediaSource(fd)
		case poll.StreamCtlConnect:
			h.startStreamBackend(fd)
		}
	}
	return out, int32(rc)
}
