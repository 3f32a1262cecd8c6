package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// ============================================================================
// Frames
// ============================================================================
// Camera capture, QR decoding and hand tracking run in a vision sidecar that
// owns the camera. It writes one JSON object per captured frame to the feed
// path (a FIFO), e.g.:
//
//   {"seq":12,"width":1280,"height":720,
//    "qr":{"payload":"WIFI:S:Home;;","polygon":[{"x":1,"y":2},...]},
//    "pointer":{"x":0.41,"y":0.22}}
//
// The daemon only consumes the payload and the index fingertip.
// ============================================================================

// DecodeResult is one decoded QR code. Polygon is only forwarded for drawing.
type DecodeResult struct {
	Payload string  `json:"payload"`
	Polygon []Point `json:"polygon,omitempty"`
}

// Frame is one captured frame as reported by the sidecar. At is the local
// receive time; the sidecar's own timestamp is opaque and only logged.
type Frame struct {
	Seq       uint64        `json:"seq"`
	At        time.Time     `json:"-"`
	SidecarTS string        `json:"ts,omitempty"`
	Width     int           `json:"width,omitempty"`
	Height    int           `json:"height,omitempty"`
	QR        *DecodeResult `json:"qr,omitempty"`
	Pointer   *Point        `json:"pointer,omitempty"`
}

// FrameSource yields captured frames in order. Errors are terminal.
type FrameSource interface {
	NextFrame(ctx context.Context) (Frame, error)
}

// QRDecoder extracts a QR payload from a frame.
type QRDecoder interface {
	DecodeQR(f Frame) (DecodeResult, bool)
}

// PointerTracker extracts the pointer (index fingertip) from a frame, in pixels.
type PointerTracker interface {
	TrackPointer(f Frame) (Point, bool)
}

// sidecarDecoder reads the decode the sidecar already attached to the frame.
type sidecarDecoder struct{}

func (sidecarDecoder) DecodeQR(f Frame) (DecodeResult, bool) {
	if f.QR == nil {
		return DecodeResult{}, false
	}
	return *f.QR, true
}

// sidecarPointer reads the fingertip attached to the frame. Hand trackers
// report landmarks in [0,1]; when normalized is set they are scaled by the
// frame size (or the configured default size when the frame has none).
type sidecarPointer struct {
	normalized    bool
	defaultWidth  int
	defaultHeight int
}

func (p sidecarPointer) TrackPointer(f Frame) (Point, bool) {
	if f.Pointer == nil {
		return Point{}, false
	}
	pt := *f.Pointer
	if !p.normalized {
		return pt, true
	}

	w, h := f.Width, f.Height
	if w <= 0 {
		w = p.defaultWidth
	}
	if h <= 0 {
		h = p.defaultHeight
	}
	return Point{X: pt.X * float64(w), Y: pt.Y * float64(h)}, true
}

// feedSource decodes line-delimited JSON frames from a reader.
// Malformed lines are skipped; end of stream is a DeviceError.
type feedSource struct {
	path   string
	r      *bufio.Reader
	closer io.Closer
	clock  func() time.Time
	logger *slog.Logger

	lastSeq uint64
	skipped uint64
}

func newFeedSource(path string, r io.Reader, closer io.Closer, clock func() time.Time, logger *slog.Logger) *feedSource {
	if clock == nil {
		clock = time.Now
	}
	return &feedSource{
		path:   path,
		r:      bufio.NewReaderSize(r, 64*1024),
		closer: closer,
		clock:  clock,
		logger: logger,
	}
}

func (s *feedSource) NextFrame(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}

		line, err := s.readLine()
		if err != nil {
			if ctx.Err() != nil {
				return Frame{}, ctx.Err()
			}
			op := "read"
			if errors.Is(err, io.EOF) {
				op = "read (feed closed)"
			} else if errors.Is(err, errFeedStalled) {
				op = "grab frame"
			}
			return Frame{}, &DeviceError{Device: s.path, Op: op, Err: err}
		}
		if len(line) == 0 {
			continue
		}

		var f Frame
		if err := json.Unmarshal(line, &f); err != nil {
			s.skipped++
			s.logger.Debug("skipping malformed frame", "error", err, "skipped", s.skipped)
			continue
		}

		if f.Seq == 0 {
			f.Seq = s.lastSeq + 1
		}
		s.lastSeq = f.Seq
		f.At = s.clock()
		return f, nil
	}
}

// readLine returns the next line without its terminator. Lines longer than
// maxFrameLineBytes are discarded whole.
func (s *feedSource) readLine() ([]byte, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, isPrefix, err := s.r.ReadLine()
		if err != nil {
			return nil, err
		}
		if !tooLong {
			buf = append(buf, chunk...)
			if len(buf) > maxFrameLineBytes {
				tooLong = true
				buf = nil
			}
		}
		if isPrefix {
			continue
		}
		if tooLong {
			s.skipped++
			s.logger.Warn("frame line exceeds limit, skipped", "limit", maxFrameLineBytes)
			return nil, nil
		}
		return buf, nil
	}
}

func (s *feedSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

var errFeedStalled = errors.New("no frame within stall timeout")

// stallError carries the timeout for log output.
func stallError(timeout time.Duration) error {
	return fmt.Errorf("%w (%s)", errFeedStalled, timeout)
}
