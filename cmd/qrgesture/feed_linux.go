//go:build linux

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// pollReader reads a FIFO (or file) through its raw descriptor and fails with
// a stall error when no data shows up within timeout.
//
// The descriptor is opened non-blocking so that opening a FIFO does not wait
// for the sidecar, and readiness is polled in short slices so that ctx
// cancellation is noticed promptly.
type pollReader struct {
	ctx     context.Context
	fd      int
	timeout time.Duration
}

const pollSlice = 250 * time.Millisecond

func (r *pollReader) Read(p []byte) (int, error) {
	deadline := time.Now().Add(r.timeout)
	fds := []unix.PollFd{{Fd: int32(r.fd), Events: unix.POLLIN}}

	for {
		if err := r.ctx.Err(); err != nil {
			return 0, err
		}

		wait := pollSlice
		if r.timeout > 0 {
			left := time.Until(deadline)
			if left <= 0 {
				return 0, stallError(r.timeout)
			}
			if left < wait {
				wait = left
			}
		}

		n, err := unix.Poll(fds, int(wait/time.Millisecond))
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			return 0, fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			continue
		}

		nr, err := unix.Read(r.fd, p)
		if err != nil {
			if err == syscall.EINTR || err == syscall.EAGAIN {
				continue
			}
			return 0, fmt.Errorf("read: %w", err)
		}
		if nr == 0 {
			return 0, io.EOF
		}
		return nr, nil
	}
}

type fdCloser int

func (c fdCloser) Close() error { return unix.Close(int(c)) }

// openFeed opens the frame feed at path.
func openFeed(ctx context.Context, path string, stall time.Duration, clock func() time.Time, logger *slog.Logger) (*feedSource, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &DeviceError{Device: path, Op: "open", Err: err}
	}
	r := &pollReader{ctx: ctx, fd: fd, timeout: stall}
	return newFeedSource(path, r, fdCloser(fd), clock, logger), nil
}
