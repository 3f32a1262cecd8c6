package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// effectDeps are the external systems reducer commands act on.
type effectDeps struct {
	dispatcher *Dispatcher
	history    HistoryRecorder // nil disables history
	stop       func()          // cancels the daemon
	clock      func() time.Time
	newID      func() uuid.UUID
}

// runEffect executes a single reducer-emitted Command and reports the outcome
// as an Event via onEvent.
//
// Design rules:
// - This function is allowed to perform I/O.
// - It must never call Reduce() directly; it only emits Events to be reduced by the daemon loop.
// - Dispatch runs synchronously, so the daemon never has two handlers in flight.
func runEffect(
	ctx context.Context,
	deps effectDeps,
	cmd Command,
	logger *slog.Logger,
	onEvent func(Event),
) {
	clock := deps.clock
	if clock == nil {
		clock = time.Now
	}

	switch c := cmd.(type) {
	case CmdDispatch:
		newID := deps.newID
		if newID == nil {
			newID = uuid.New
		}
		id := newID()
		started := clock()

		var status StatusMessage
		if deps.dispatcher == nil {
			logger.Error("dispatch requested without a dispatcher", "id", id, "kind", kindOf(c.Action))
			status = StatusMessage{Text: "Unsupported action.", CreatedAt: started, TTL: defaultStatusTTL}
		} else {
			logger.Info("dispatching", "id", id, "kind", kindOf(c.Action), "label", c.Label)
			status = deps.dispatcher.Dispatch(ctx, c.Action, started)
			// Messages live from when the handler returned, not when it started.
			status.CreatedAt = clock()
		}

		logger.Info("dispatch finished", "id", id, "ok", status.OK, "message", status.Text,
			"duration", status.CreatedAt.Sub(started))

		if onEvent != nil {
			onEvent(DispatchCompleted{
				ID:        id,
				Kind:      kindOf(c.Action),
				Label:     c.Label,
				Action:    c.Action,
				Status:    status,
				StartedAt: started,
			})
		}

	case CmdRecordDispatch:
		if deps.history == nil {
			return
		}
		if err := deps.history.Record(ctx, c.Record); err != nil {
			// History is best-effort; the dispatch already happened.
			logger.Warn("history record failed", "error", err, "id", c.Record.ID)
		}

	case CmdPublishStateSnapshot:
		// Deliver reducer-produced snapshot to the requester.
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}

		// Never block the daemon indefinitely.
		select {
		case c.Reply <- c.Snapshot:
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	case CmdQuit:
		logger.Info("quit requested")
		if deps.stop != nil {
			deps.stop()
		}

	default:
		logger.Warn("unknown command type", "command", cmd.String())
	}
}
