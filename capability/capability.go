// Package capability declares which operations, features and transports a
// given execution environment supports. The host facade consults the set
// before dispatching any gated operation; a failed check is a caller-visible
// rejection, never a silent no-op.
package capability

// Operation names checked by the host facade.
const (
	OpLog         = "log"
	OpTimeNowMS   = "time_now_ms"
	OpRandomBytes = "random_bytes"
	OpGetEnv      = "get_env"
	OpHTTPCall    = "http_call"
	OpPutResult   = "put_result"
	OpGetObject   = "get_object"
	OpPutObject   = "put_object"
	OpMediaOpen   = "media_open"
	OpStreamOpen  = "stream_open"
)

// Transport names.
const (
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
)

// Set is the capability declaration supplied by the orchestration layer at
// task-start time. Read-only from the host API's perspective; ordering of
// the slices is irrelevant.
type Set struct {
	Operations []string
	Features   []string
	Transports []string
}

// Default returns the full production capability set.
func Default() *Set {
	return &Set{
		Operations: []string{
			OpLog, OpTimeNowMS, OpRandomBytes, OpGetEnv, OpHTTPCall,
			OpPutResult, OpGetObject, OpPutObject, OpMediaOpen, OpStreamOpen,
		},
		Features:   []string{"stub_sources"},
		Transports: []string{TransportHTTP, TransportWebSocket},
	}
}

// SupportsOperation reports whether op is declared.
func (s *Set) SupportsOperation(op string) bool {
	return contains(s.Operations, op)
}

// HasFeature reports whether the named feature is declared.
func (s *Set) HasFeature(name string) bool {
	return contains(s.Features, name)
}

// HasTransport reports whether the named transport is declared.
func (s *Set) HasTransport(name string) bool {
	return contains(s.Transports, name)
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
