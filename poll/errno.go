package poll

// Errno is the cheap integer status returned across the guest/host boundary
// by fd and epoll operations. Zero is success; failures are negated errno
// values mirroring the POSIX codes guests already know how to branch on.
type Errno int32

const (
	OK Errno = 0

	ErrPerm  Errno = -1  // EPERM: operation not permitted by capabilities
	ErrNoEnt Errno = -2  // ENOENT: interest not registered
	ErrIO    Errno = -5  // EIO: backend failure
	ErrBadFd Errno = -9  // EBADF: unknown or closed fd/epfd
	ErrAgain Errno = -11 // EAGAIN: would block (queue empty or full)
	ErrNoMem Errno = -12 // ENOMEM: fd space exhausted
	ErrExist Errno = -17 // EEXIST: interest already registered
	ErrInval Errno = -22 // EINVAL: invalid argument or operation
)

func (e Errno) String() string {
	switch e {
	case OK:
		return "OK"
	case ErrPerm:
		return "EPERM"
	case ErrNoEnt:
		return "ENOENT"
	case ErrIO:
		return "EIO"
	case ErrBadFd:
		return "EBADF"
	case ErrAgain:
		return "EAGAIN"
	case ErrNoMem:
		return "ENOMEM"
	case ErrExist:
		return "EEXIST"
	case ErrInval:
		return "EINVAL"
	}
	return "E?"
}
