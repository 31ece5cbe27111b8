// Package errors provides structured error types for capability-level host
// operations.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category), letting guests distinguish transient conditions from fatal ones
// via Retryable. The fd/epoll syscall surface deliberately does not use this
// package: it returns errno-style integer codes, which are cheap to cross
// the guest boundary with.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseTransport, errors.KindTimeout).
//		Op("http_call").
//		Detail("request to %s timed out", url).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotSupported("http_call")
//	err := errors.TransportStatus("fetch_artifact", 404)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
