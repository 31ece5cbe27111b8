// Package hostapi implements the syscall-like surface a sandboxed task uses
// to reach the outside world.
//
// The facade splits into two groups. The fd/epoll surface (EpCreate, EpCtl,
// EpWaitReady, CloseFd, FdCtl plus the media and stream descriptor
// operations) speaks errno-style negative integers and delegates to a
// poll.Table. Capability operations (logging, clock, randomness, env, HTTP,
// object storage) return structured errors and are gated by a
// capability.Set; an undeclared operation is rejected before any work
// happens.
//
// Host is the production implementation: background media sources and
// stream backends run on a shared goroutine pool and feed descriptor state
// exclusively through Table.Mutate, so readiness is always recomputed in
// the same critical section as the state change. StubHost implements the
// same interface deterministically for tests.
package hostapi
