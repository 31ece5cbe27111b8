// Package poll emulates POSIX epoll semantics over virtual file
// descriptors so sandboxed task code can multiplex heterogeneous host
// connections without operating-system descriptors.
//
// # Descriptors and readiness
//
// Every descriptor is an FdEntry owning one connection-state variant
// (buffered media, real-time stream session, or an epoll instance itself).
// Each variant carries its own readiness computer: a total function from
// current state to a PollEvents mask, rerun under the table lock after every
// state-affecting mutation. The mask is therefore never a stale snapshot.
//
//	table := poll.NewTable(1000)
//	fd := table.Alloc(poll.NewMediaState())
//	epfd := table.EpCreate()
//	table.EpCtl(epfd, poll.EpCtlAdd, fd, poll.In)
//
//	ready, rc := table.EpWaitReady(epfd, 100)
//
// # Level-triggered waits
//
// EpWaitReady reports every registered fd whose current mask intersects its
// interest. Readiness is a function of state, not an edge notification: an
// undrained queue keeps the fd ready across calls. Blocked waiters park on a
// condition variable scoped to the table and are released by any mutation
// that could affect their interest set; timeout expiry returns an empty,
// non-error result.
//
// # Error codes
//
// Operations return negated errno-style codes (Errno) rather than Go errors:
// this surface is crossed on every guest syscall and stays allocation-free.
package poll
