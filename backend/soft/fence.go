package soft

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// fence is an eventfd-backed completion object. The software queue is
// synchronous, so fences are signaled the moment they are created; the
// eventfd exists so callers can hand out pollable fds exactly as they
// would with a GPU sync object.
type fence struct {
	fd       int // -1 when fd export is disabled
	signaled bool
}

// newFence creates a signaled fence. When exportFd is false the fence
// carries no file descriptor, emulating drivers without native-fence
// support so that timer-fallback paths can be tested.
func newFence(exportFd bool) (*fence, error) {
	f := &fence{fd: -1, signaled: true}
	if !exportFd {
		return f, nil
	}
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("soft: eventfd: %w", err)
	}
	f.fd = fd
	var one [8]byte
	one[0] = 1
	if _, err := unix.Write(fd, one[:]); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("soft: signal eventfd: %w", err)
	}
	return f, nil
}

func (f *fence) Fd() (int, bool) {
	if f.fd < 0 {
		return -1, false
	}
	dup, err := unix.Dup(f.fd)
	if err != nil {
		return -1, false
	}
	return dup, true
}

func (f *fence) Signaled() bool { return f.signaled }

func (f *fence) Close() {
	if f.fd >= 0 {
		unix.Close(f.fd)
		f.fd = -1
	}
}

// waitFenceFd blocks until the fd becomes readable or the timeout (in
// milliseconds) elapses.
func waitFenceFd(fd int, timeoutMs int) error {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(pfd, timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("soft: poll fence fd %d: %w", fd, err)
		}
		if n == 0 {
			return fmt.Errorf("soft: fence fd %d did not signal within %dms", fd, timeoutMs)
		}
		return nil
	}
}
