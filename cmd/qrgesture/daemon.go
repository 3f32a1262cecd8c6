package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Central Daemon Loop - Reducer-driven
// ============================================================================
//
// Design rules enforced here:
//   - The reducer performs no I/O and computes: next state + commands + broadcasts.
//   - The daemon loop is the only place that executes side effects.
//   - Effect outcomes are turned into Events and fed back into the reducer.
//   - Explicit event and command queues; nothing re-enters Reduce.
//
// Frames arrive on the same channel as IPC and websocket requests, so they
// are reduced strictly one at a time and in arrival order.
//
// ============================================================================

// daemonOptions bundles the daemon's collaborators.
type daemonOptions struct {
	cfg        LoopConfig
	deps       effectDeps
	tickHz     int
	broadcasts chan<- StateBroadcast // nil disables publishing
	clock      func() time.Time
}

// runDaemon is the main daemon loop that:
//   - Receives Events from the frame loop, IPC and the websocket server
//   - Emits Tick events on a fixed cadence
//   - Reduces events into (state, commands, broadcasts)
//   - Executes commands and feeds outcomes back into the reducer
//
// Shutdown semantics:
//   - Exits when ctx is canceled
//   - Exits cleanly when the events channel is closed
//
// It returns the final state.
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	state *FrameLoopState,
	opts daemonOptions,
	logger *slog.Logger,
) *FrameLoopState {
	if state == nil {
		state = NewFrameLoopState(opts.cfg)
	}
	clock := opts.clock
	if clock == nil {
		clock = time.Now
	}
	if opts.deps.clock == nil {
		opts.deps.clock = clock
	}

	tickHz := opts.tickHz
	if tickHz <= 0 {
		tickHz = defaultTickHz
	}
	ticker := time.NewTicker(time.Second / time.Duration(tickHz))
	defer ticker.Stop()

	var eventQueue []Event
	var cmdQueue []Command

	enqueueEvent := func(ev Event) {
		eventQueue = append(eventQueue, ev)
	}

	publish := func(bcasts []StateBroadcast) {
		if opts.broadcasts == nil {
			return
		}
		for _, b := range bcasts {
			select {
			case opts.broadcasts <- b:
			default:
				logger.Warn("broadcast queue full, dropping state update")
			}
		}
	}

	// Reduce all queued events, enqueuing any resulting commands.
	flushEvents := func() {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]

			rr := Reduce(state, ev, opts.cfg)
			if rr.State != nil {
				state = rr.State
			}
			cmdQueue = append(cmdQueue, rr.Commands...)
			publish(rr.Broadcasts)
		}
	}

	// Execute all queued commands, enqueuing outcome events.
	flushCommands := func() {
		for len(cmdQueue) > 0 {
			cmd := cmdQueue[0]
			cmdQueue = cmdQueue[1:]

			logger.Debug("executing command", "command", cmd.String())
			runEffect(ctx, opts.deps, cmd, logger, enqueueEvent)

			// Outcomes are reduced before the next command so that state stays coherent.
			flushEvents()
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return state

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return state
			}
			// Frames are timed on the daemon clock only, like ticks and dispatch results.
			if f, isFrame := ev.(FrameObserved); isFrame {
				f.At = clock()
				ev = f
			}
			enqueueEvent(TimedEvent{Event: ev, At: clock()})
			flushEvents()
			flushCommands()

		case <-ticker.C:
			enqueueEvent(Tick{Now: clock()})
			flushEvents()
			flushCommands()
		}
	}
}
