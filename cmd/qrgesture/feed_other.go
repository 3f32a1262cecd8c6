//go:build !linux

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"
)

// deadlineReader applies the stall timeout through os.File read deadlines.
// Files that do not support deadlines (regular files) read without one.
type deadlineReader struct {
	f       *os.File
	timeout time.Duration
}

func (r *deadlineReader) Read(p []byte) (int, error) {
	if r.timeout > 0 {
		if err := r.f.SetReadDeadline(time.Now().Add(r.timeout)); err == nil {
			n, err := r.f.Read(p)
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return n, stallError(r.timeout)
			}
			return n, err
		}
	}
	return r.f.Read(p)
}

// openFeed opens the frame feed at path.
func openFeed(ctx context.Context, path string, stall time.Duration, clock func() time.Time, logger *slog.Logger) (*feedSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DeviceError{Device: path, Op: "open", Err: err}
	}
	go func() {
		<-ctx.Done()
		_ = f.Close()
	}()
	return newFeedSource(path, &deadlineReader{f: f, timeout: stall}, f, clock, logger), nil
}
