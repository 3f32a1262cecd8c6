package main

import "time"

// This file implements the reducer:
//
//   - Events: frames, ticks, dispatch results, IPC / websocket requests
//   - Commands: side effects (run a handler, persist history, reply to a snapshot)
//   - Broadcasts: state change notifications for websocket clients
//
// The reducer must be pure. It performs no I/O and never blocks; the daemon
// loop executes Commands and feeds their outcomes back as Events.

// ReduceResult is the output of Reduce(): next state, side effects to run and
// notifications to publish.
type ReduceResult struct {
	State      *FrameLoopState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// Reduce is the pure reducer.
//
// A TimedEvent supplies the timestamp for events that carry none of their own.
func Reduce(s *FrameLoopState, e Event, cfg LoopConfig) ReduceResult {
	if s == nil {
		s = NewFrameLoopState(cfg)
	}

	var at time.Time
	if te, ok := e.(TimedEvent); ok {
		e, at = te.Event, te.At
	}

	var (
		cmds   []Command
		bcasts []StateBroadcast
	)

	switch ev := e.(type) {
	case FrameObserved:
		now := ev.At
		if now.IsZero() {
			now = at
		}
		before := s.rawView()
		prevPointer := s.Pointer

		s.Stats.Frames++
		if ev.Seq != 0 {
			s.LastFrameSeq = ev.Seq
		}
		s.LastFrameAt = now

		s.applyDecode(ev.Payload, now, cfg)
		s.expireStatus(now)
		s.Pointer = ev.Pointer

		next, fire := UpdatePress(ev.Pointer, s.Button, now, s.Press)
		if fire && s.Dispatching {
			// A handler is still running: swallow the fire without starting
			// a new cooldown window.
			next.LastFireAt = s.Press.LastFireAt
			next.PressedLabel = s.Press.PressedLabel
			fire = false
		}
		s.Press = next

		if fire {
			s.Dispatching = true
			cmds = append(cmds, CmdDispatch{
				Action: s.Button.Action,
				Label:  s.Button.Label,
				At:     now,
			})
		}

		after := s.View(now)
		if !sameDrawable(before, after) {
			bcasts = append(bcasts, BroadcastViewChanged{View: after, At: now})
		}
		if !samePoint(prevPointer, s.Pointer) {
			bcasts = append(bcasts, BroadcastPointerMoved{Pointer: after.Pointer, At: now})
		}

	case Tick:
		before := s.rawView()
		s.applyDecode(nil, ev.Now, cfg)
		s.expireStatus(ev.Now)
		if after := s.View(ev.Now); !sameDrawable(before, after) {
			bcasts = append(bcasts, BroadcastViewChanged{View: after, At: ev.Now})
		}

	case DispatchCompleted:
		now := ev.Status.CreatedAt
		if now.IsZero() {
			now = at
		}
		s.Dispatching = false
		st := ev.Status
		s.Status = &st
		s.Stats.Dispatches++
		if !st.OK {
			s.Stats.Failures++
		}

		cmds = append(cmds, CmdRecordDispatch{Record: DispatchRecord{
			ID:        ev.ID,
			Kind:      ev.Kind,
			Label:     ev.Label,
			Detail:    displayText(ev.Action),
			OK:        st.OK,
			Message:   st.Text,
			StartedAt: ev.StartedAt,
			At:        now,
		}})
		bcasts = append(bcasts,
			BroadcastDispatched{ID: ev.ID, Kind: ev.Kind, Label: ev.Label, Text: st.Text, OK: st.OK, At: now},
			BroadcastViewChanged{View: s.View(now), At: now},
		)

	case RequestStateSnapshot:
		now := at
		if now.IsZero() {
			now = s.LastFrameAt
		}
		cmds = append(cmds, CmdPublishStateSnapshot{Reply: ev.Reply, Snapshot: s.View(now)})

	case ResetDetection:
		s.Detection = s.Detection.Clear()
		s.Button = nil
		s.Press.IsPressed = false
		bcasts = append(bcasts, BroadcastViewChanged{View: s.View(at), At: at})

	case Quit:
		cmds = append(cmds, CmdQuit{})

	default:
		// Unknown event type: no-op.
	}

	return ReduceResult{
		State:      s,
		Commands:   cmds,
		Broadcasts: bcasts,
	}
}

// applyDecode feeds one decode outcome into the detection state and keeps
// the button in sync with it.
func (s *FrameLoopState) applyDecode(payload *string, now time.Time, cfg LoopConfig) {
	if payload != nil {
		s.Stats.Decodes++
	}

	det, change := s.Detection.OnDecodeResult(payload, now)
	s.Detection = det
	if change.ClassifyErr != nil {
		s.Stats.ClassifyErrors++
	}

	switch change.Kind {
	case ChangeReplaced:
		s.Button = DeriveButton(det, cfg.ButtonRect)
	case ChangeCleared:
		s.Button = nil
	}
}

func (s *FrameLoopState) expireStatus(now time.Time) {
	if s.Status != nil && s.Status.Expired(now) {
		s.Status = nil
	}
}
