//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package netconn

import (
	"errors"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// pollConn runs poll(2) on the descriptor behind conn.
func pollConn(conn net.Conn, mode PollMode, timeout time.Duration) (bool, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return true, nil
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return false, err
	}

	events := int16(unix.POLLOUT)
	if mode == PollRead {
		events = unix.POLLIN
	}

	var (
		ready   bool
		pollErr error
	)

	ctrlErr := raw.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
		deadline := time.Now().Add(timeout)

		for {
			// a negative timeout would block forever
			ms := max(int(time.Until(deadline).Milliseconds()), 0)
			n, err := unix.Poll(fds, ms)
			if errors.Is(err, unix.EINTR) && time.Now().Before(deadline) {
				continue
			}

			if err != nil {
				pollErr = err
				return
			}

			ready = n > 0 && isReady(mode, fds[0].Revents)
			return
		}
	})
	if ctrlErr != nil {
		return false, ctrlErr
	}

	return ready, pollErr
}

// isReady interprets poll events. A socket in error or hung up is not
// writable, so Write replaces it. For reading the same conditions count as
// ready: the receive then reports end of stream or the pending error.
func isReady(mode PollMode, revents int16) bool {
	if mode == PollRead {
		return revents&(unix.POLLIN|unix.POLLERR|unix.POLLHUP) != 0
	}

	return revents&unix.POLLOUT != 0 && revents&(unix.POLLERR|unix.POLLHUP) == 0
}
