package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memHistory is an in-memory HistoryRecorder.
type memHistory struct {
	mu   sync.Mutex
	recs []DispatchRecord
	err  error
}

func (m *memHistory) Record(_ context.Context, r DispatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, r)
	return m.err
}

func (m *memHistory) Records() []DispatchRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DispatchRecord(nil), m.recs...)
}

// manualClock is a settable clock shared by the daemon and the test.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type daemonHarness struct {
	events     chan Event
	broadcasts chan StateBroadcast
	exec       *fakeExecutor
	history    *memHistory
	clock      *manualClock
	cancel     context.CancelFunc
	done       chan *FrameLoopState
}

func startDaemon(t *testing.T) *daemonHarness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	h := &daemonHarness{
		events:     make(chan Event),
		broadcasts: make(chan StateBroadcast, 256),
		exec:       &fakeExecutor{},
		history:    &memHistory{},
		clock:      &manualClock{now: t0},
		cancel:     cancel,
		done:       make(chan *FrameLoopState, 1),
	}
	cfg := DefaultLoopConfig()
	opts := daemonOptions{
		cfg: cfg,
		deps: effectDeps{
			dispatcher: newTestDispatcher(h.exec),
			history:    h.history,
			stop:       cancel,
		},
		tickHz:     1000,
		broadcasts: h.broadcasts,
		clock:      h.clock.Now,
	}
	go func() {
		h.done <- runDaemon(ctx, h.events, NewFrameLoopState(cfg), opts, discardLogger())
	}()
	t.Cleanup(cancel)
	return h
}

// snapshot round-trips a state request through the daemon.
func (h *daemonHarness) snapshot(t *testing.T) View {
	t.Helper()
	v, err := requestSnapshot(context.Background(), h.events)
	require.NoError(t, err)
	return v
}

func (h *daemonHarness) waitDispatched(t *testing.T) BroadcastDispatched {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case b := <-h.broadcasts:
			if d, ok := b.(BroadcastDispatched); ok {
				return d
			}
		case <-timeout:
			t.Fatal("timeout waiting for dispatched broadcast")
		}
	}
}

func TestDaemon_ScanTouchDispatch(t *testing.T) {
	h := startDaemon(t)

	h.events <- FrameObserved{Payload: strp("hello")}
	v := h.snapshot(t)
	require.NotNil(t, v.Button)
	assert.Equal(t, "Copy Text", v.Button.Label)
	assert.Equal(t, "Text: hello", v.DisplayText)

	h.clock.Set(t0.Add(100 * time.Millisecond))
	h.events <- FrameObserved{Pointer: insideButton}

	d := h.waitDispatched(t)
	assert.True(t, d.OK)
	assert.Equal(t, "Text copied to clipboard.", d.Text)
	assert.NotEqual(t, uuid.Nil, d.ID)
	assert.Equal(t, []string{"CopyText"}, h.exec.Calls())

	v = h.snapshot(t)
	require.NotNil(t, v.Status)
	assert.Equal(t, "Text copied to clipboard.", v.Status.Text)
	assert.Equal(t, uint64(1), v.Stats.Dispatches)

	recs := h.history.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, d.ID, recs[0].ID)
	assert.Equal(t, KindPlainText, recs[0].Kind)
}

func TestDaemon_PlainTextTwiceAfterCooldown(t *testing.T) {
	h := startDaemon(t)

	h.events <- FrameObserved{Payload: strp("hello"), Pointer: insideButton}
	h.waitDispatched(t)

	// Still within the cooldown: nothing new.
	h.clock.Set(t0.Add(time.Second))
	h.events <- FrameObserved{Pointer: insideButton}
	h.snapshot(t)
	assert.Len(t, h.exec.Calls(), 1)

	h.clock.Set(t0.Add(2010 * time.Millisecond))
	h.events <- FrameObserved{Pointer: insideButton}
	d := h.waitDispatched(t)
	assert.Equal(t, "Text copied to clipboard.", d.Text)
	assert.Equal(t, []string{"CopyText", "CopyText"}, h.exec.Calls())
}

func TestDaemon_FailingHandlerKeepsRunning(t *testing.T) {
	h := startDaemon(t)
	h.exec.err = errors.New("nmcli: exit status 10")
	h.history.err = errors.New("disk full")

	h.events <- FrameObserved{Payload: strp("WIFI:S:Home;P:pw;;"), Pointer: insideButton}
	d := h.waitDispatched(t)
	assert.False(t, d.OK)
	assert.Equal(t, "Failed to connect to Home.", d.Text)

	// History failures are logged, not fatal.
	v := h.snapshot(t)
	assert.Equal(t, uint64(1), v.Stats.Failures)
	assert.Equal(t, "SSID: Home", v.DisplayText)
}

func TestDaemon_TickExpiresDetection(t *testing.T) {
	h := startDaemon(t)

	h.events <- FrameObserved{Payload: strp("https://example.com")}
	require.NotNil(t, h.snapshot(t).Button)

	h.clock.Set(t0.Add(5100 * time.Millisecond))
	waitUntil(t, time.Second, func() bool {
		return h.snapshot(t).Button == nil
	}, "detection did not expire on tick")
}

func TestDaemon_FramesUseDaemonClock(t *testing.T) {
	h := startDaemon(t)

	// A frame timestamped by some other clock, six seconds behind.
	h.events <- FrameObserved{At: t0.Add(-6 * time.Second), Payload: strp("hello")}
	require.NotNil(t, h.snapshot(t).Button)

	h.clock.Set(t0.Add(100 * time.Millisecond))
	time.Sleep(20 * time.Millisecond) // let a few ticks run
	v := h.snapshot(t)
	require.NotNil(t, v.Button, "detection cleared by a tick 100ms after decode")
	assert.Equal(t, "Text: hello", v.DisplayText)

	h.clock.Set(t0.Add(5100 * time.Millisecond))
	waitUntil(t, time.Second, func() bool {
		return h.snapshot(t).Button == nil
	}, "detection did not expire on the daemon clock")
}

func TestDaemon_QuitStops(t *testing.T) {
	h := startDaemon(t)

	h.events <- FrameObserved{Payload: strp("hello")}
	h.events <- Quit{}

	select {
	case st := <-h.done:
		require.NotNil(t, st)
		assert.Equal(t, uint64(1), st.Stats.Frames)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop on Quit")
	}
}

func TestDaemon_StopsWhenEventsClosed(t *testing.T) {
	h := startDaemon(t)
	close(h.events)

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop when events closed")
	}
}

func TestRunEffect_NilDispatcher(t *testing.T) {
	var got []Event
	runEffect(context.Background(), effectDeps{clock: func() time.Time { return t0 }}, CmdDispatch{Action: PlainText{Text: "x"}}, discardLogger(), func(e Event) {
		got = append(got, e)
	})
	require.Len(t, got, 1)
	dc := got[0].(DispatchCompleted)
	assert.False(t, dc.Status.OK)
	assert.Equal(t, "Unsupported action.", dc.Status.Text)
}

func TestRunEffect_StampsStatusAfterHandlerReturns(t *testing.T) {
	times := []time.Time{t0, t0.Add(700 * time.Millisecond)}
	clock := func() time.Time {
		now := times[0]
		if len(times) > 1 {
			times = times[1:]
		}
		return now
	}
	id := uuid.New()

	var dc DispatchCompleted
	runEffect(context.Background(), effectDeps{
		dispatcher: newTestDispatcher(&fakeExecutor{}),
		clock:      clock,
		newID:      func() uuid.UUID { return id },
	}, CmdDispatch{Action: Link{URL: "u"}, Label: "Go to Link"}, discardLogger(), func(e Event) {
		dc = e.(DispatchCompleted)
	})

	assert.Equal(t, id, dc.ID)
	assert.Equal(t, t0, dc.StartedAt)
	assert.Equal(t, t0.Add(700*time.Millisecond), dc.Status.CreatedAt)
	assert.Equal(t, KindLink, dc.Kind)
}

func TestRunEffect_SnapshotReplyNeverBlocks(t *testing.T) {
	reply := make(chan View) // nobody receives
	done := make(chan struct{})
	go func() {
		runEffect(context.Background(), effectDeps{}, CmdPublishStateSnapshot{Reply: reply}, discardLogger(), nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runEffect blocked on snapshot reply")
	}
}
