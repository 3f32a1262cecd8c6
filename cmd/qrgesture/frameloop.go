package main

import (
	"context"
	"log/slog"
)

// runFrameLoop pulls frames, extracts the decode and pointer and hands each
// frame to the daemon as a FrameObserved event. Frames are delivered in
// order and the send blocks, so the daemon reduces frame N before it ever
// sees frame N+1.
//
// It returns the source error (a *DeviceError for capture failures) or
// ctx.Err() on shutdown.
func runFrameLoop(
	ctx context.Context,
	src FrameSource,
	dec QRDecoder,
	ptr PointerTracker,
	events chan<- Event,
	logger *slog.Logger,
) error {
	logger.Info("frame loop starting")

	for {
		f, err := src.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("frame loop stopping (context canceled)")
				return ctx.Err()
			}
			logger.Error("frame source failed", "error", err)
			return err
		}

		ev := observeFrame(f, dec, ptr)
		if ev.Payload != nil {
			logger.Debug("qr decoded", "seq", f.Seq, "sidecar_ts", f.SidecarTS)
		}

		select {
		case <-ctx.Done():
			logger.Info("frame loop stopping (context canceled)")
			return ctx.Err()
		case events <- ev:
		}
	}
}

// observeFrame runs the decoder and the pointer tracker on one frame. The
// event is left unstamped; the daemon applies its own clock on receipt.
func observeFrame(f Frame, dec QRDecoder, ptr PointerTracker) FrameObserved {
	ev := FrameObserved{Seq: f.Seq}
	if res, ok := dec.DecodeQR(f); ok {
		payload := res.Payload
		ev.Payload = &payload
	}
	if p, ok := ptr.TrackPointer(f); ok {
		ev.Pointer = &p
	}
	return ev
}
