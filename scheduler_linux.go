//go:build linux

package jrtos

import (
	"sync"

	"golang.org/x/sys/unix"
)

// eventfdDoorbell is the Linux doorbell: a single non-blocking eventfd, rung
// by writing a nonzero 8-byte value and drained by reading until EAGAIN. Grounded directly on
// wakeup_linux.go's createWakeFd/drainWakeUpPipe, adapted from the teacher's
// run-loop wake-up pipe to the scheduler's wait-for-event primitive of §6.
type eventfdDoorbell struct {
	fd int

	mu     sync.Mutex
	closed bool
}

func newDoorbell() (doorbell, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &eventfdDoorbell{fd: fd}, nil
}

// ring posts one wake-up; safe from any goroutine. Grounded on
// submitWakeup's eventfd write path.
func (d *eventfdDoorbell) ring() {
	var buf [8]byte
	buf[7] = 1
	_, _ = unix.Write(d.fd, buf[:])
}

// wait blocks the scheduler-loop goroutine until ring is called at least
// once since the last wait/drain, standing in for the CPU's
// wait-for-event/wait-for-interrupt instruction. Grounded on
// drainWakeUpPipe, generalized from a drain-then-return into a genuine
// blocking wait via unix.Poll, since the scheduler-loop (unlike the
// teacher's run loop) has nothing else useful to do while priomask is
// empty.
func (d *eventfdDoorbell) wait() {
	fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		if n > 0 {
			break
		}
	}
	var buf [8]byte
	for {
		_, err := unix.Read(d.fd, buf[:])
		if err != nil {
			break
		}
	}
}

func (d *eventfdDoorbell) close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return unix.Close(d.fd)
}
