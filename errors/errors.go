package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the host API the error occurred
type Phase string

const (
	PhaseHost       Phase = "host"       // facade dispatch
	PhaseCapability Phase = "capability" // capability gating
	PhaseTransport  Phase = "transport"  // outbound HTTP / streaming backends
	PhaseStorage    Phase = "storage"    // object store
	PhaseRuntime    Phase = "runtime"    // guest runtime integration
)

// Kind categorizes the error
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindInvalidInput      Kind = "invalid_input"
	KindUnsupported       Kind = "unsupported"
	KindResourceExhausted Kind = "resource_exhausted"
	KindTimeout           Kind = "timeout"
	KindTransport         Kind = "transport"
	KindInternal          Kind = "internal"
)

// Error is the structured error type returned by capability-level host
// operations. The fd/epoll surface uses integer codes instead; see poll.
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Op     string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Retryable reports whether the failure is transient: callers may retry
// timeouts, transport faults and exhaustion, never the rest.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindTransport, KindResourceExhausted:
		return true
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Op sets the operation name
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// NotSupported creates an unsupported-operation error for capability
// rejections.
func NotSupported(op string) *Error {
	return &Error{
		Phase:  PhaseCapability,
		Kind:   KindUnsupported,
		Op:     op,
		Detail: fmt.Sprintf("operation %q not supported by this environment", op),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(op, detail string) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindInvalidInput,
		Op:     op,
		Detail: detail,
	}
}

// TransportFailed wraps an outbound transport failure
func TransportFailed(op string, cause error) *Error {
	return &Error{
		Phase: PhaseTransport,
		Kind:  KindTransport,
		Op:    op,
		Cause: cause,
	}
}

// TransportStatus creates a transport error for a non-success HTTP status
func TransportStatus(op string, status int) *Error {
	return &Error{
		Phase:  PhaseTransport,
		Kind:   KindTransport,
		Op:     op,
		Detail: fmt.Sprintf("unexpected status %d", status),
	}
}

// StorageFailed wraps an object-store failure
func StorageFailed(op string, cause error) *Error {
	return &Error{
		Phase: PhaseStorage,
		Kind:  KindInternal,
		Op:    op,
		Cause: cause,
	}
}

// Timeout creates a timeout error
func Timeout(op string, ms int64) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindTimeout,
		Op:     op,
		Detail: fmt.Sprintf("timed out after %dms", ms),
	}
}
