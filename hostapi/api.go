package hostapi

import (
	"context"

	"github.com/lfedgeai/spear-hostapi/poll"
)

// HTTPResponse is the result of an outbound HTTP call.
type HTTPResponse struct {
	Status  int
	Body    []byte
	Headers map[string]string
}

// API is the syscall-like surface exposed to sandboxed task code.
//
// Two operation groups with deliberately different error vocabularies: the
// fd/epoll surface returns errno-style integer codes for allocation-free
// signaling, while capability operations return structured errors carrying a
// category so guests can tell transient from fatal failures.
//
// Host is the production implementation; StubHost is a deterministic double
// for tests.
type API interface {
	// fd/epoll surface.
	EpCreate() int32
	EpCtl(epfd, op, fd, events int32) int32
	EpWaitReady(epfd, timeoutMS int32) ([]poll.Ready, int32)
	CloseFd(fd int32) int32
	FdCtl(fd, cmd int32, payload []byte) ([]byte, int32)

	// Connection descriptors.
	MediaOpen() int32
	MediaRead(fd int32) ([]byte, int32)
	StreamOpen() int32
	StreamWrite(fd int32, p []byte) int32
	StreamRead(fd int32) ([]byte, int32)

	// Capability operations.
	Log(level, message string)
	TimeNowMS() uint64
	RandomBytes(n int) ([]byte, error)
	GetEnv(key string) (string, bool)
	HTTPCall(ctx context.Context, method, url string, headers map[string]string, body []byte) (*HTTPResponse, error)
	PutResult(taskID string, data []byte, metadata map[string]string) (string, error)
	GetObject(id string) ([]byte, error)
	PutObject(name string, data []byte) (string, error)
}
