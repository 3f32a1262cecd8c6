package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeExecutor records calls and returns the configured error (or panics).
type fakeExecutor struct {
	mu    sync.Mutex
	calls []string
	args  [][]string

	err      error
	panicMsg string
	block    chan struct{}
}

func (f *fakeExecutor) record(name string, args ...string) error {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.args = append(f.args, args)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.err
}

func (f *fakeExecutor) JoinWifi(_ context.Context, w WifiJoin) error {
	return f.record("JoinWifi", w.SSID, w.Password, w.AuthType)
}

func (f *fakeExecutor) OpenURL(_ context.Context, rawURL string) error {
	return f.record("OpenURL", rawURL)
}

func (f *fakeExecutor) CopyText(_ context.Context, text string) error {
	return f.record("CopyText", text)
}

func (f *fakeExecutor) SaveAndOpen(_ context.Context, content, ext string) error {
	return f.record("SaveAndOpen", content, ext)
}

func (f *fakeExecutor) ComposeSMS(_ context.Context, phone, message string) error {
	return f.record("ComposeSMS", phone, message)
}

func (f *fakeExecutor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestDispatcher(exec Executor) *Dispatcher {
	return NewDispatcher(exec, DispatcherConfig{StatusTTL: 3 * time.Second}, discardLogger())
}

func TestDispatch_SuccessMessages(t *testing.T) {
	tests := []struct {
		action Action
		call   string
		args   []string
		text   string
	}{
		{WifiJoin{SSID: "Home", Password: "pw", AuthType: "WPA"}, "JoinWifi", []string{"Home", "pw", "WPA"}, "Connected to Home."},
		{Contact{VCard: "BEGIN:VCARD"}, "SaveAndOpen", []string{"BEGIN:VCARD", ".vcf"}, "Contact saved."},
		{CalendarEvent{ICal: "BEGIN:VEVENT"}, "SaveAndOpen", []string{"BEGIN:VEVENT", ".ics"}, "Event saved."},
		{Email{MailtoURI: "mailto:a@b.c"}, "OpenURL", []string{"mailto:a@b.c"}, "Opening email client."},
		{SMS{Phone: "+1", Message: "yo"}, "ComposeSMS", []string{"+1", "yo"}, "Opening SMS application."},
		{Geo{Latitude: "37.7", Longitude: "-122.4"}, "OpenURL", []string{"https://www.google.com/maps/search/?api=1&query=37.7,-122.4"}, "Opening location in map."},
		{SocialProfile{URL: "https://instagram.com/x"}, "OpenURL", []string{"https://instagram.com/x"}, "Opening social media profile..."},
		{Link{URL: "https://example.com"}, "OpenURL", []string{"https://example.com"}, "Opening link..."},
		{PlainText{Text: "hello"}, "CopyText", []string{"hello"}, "Text copied to clipboard."},
	}

	for _, tt := range tests {
		t.Run(string(tt.action.Kind()), func(t *testing.T) {
			exec := &fakeExecutor{}
			d := newTestDispatcher(exec)

			msg := d.Dispatch(context.Background(), tt.action, t0)
			assert.True(t, msg.OK)
			assert.Equal(t, tt.text, msg.Text)
			assert.Equal(t, t0, msg.CreatedAt)
			assert.Equal(t, 3*time.Second, msg.TTL)

			require.Equal(t, []string{tt.call}, exec.Calls(), "exactly one handler call")
			assert.Equal(t, tt.args, exec.args[0])
		})
	}
}

func TestDispatch_FailureMessages(t *testing.T) {
	tests := []struct {
		action Action
		text   string
	}{
		{WifiJoin{SSID: "Home"}, "Failed to connect to Home."},
		{Contact{}, "Failed to save contact."},
		{CalendarEvent{}, "Failed to save event."},
		{Email{}, "Failed to send email."},
		{SMS{Phone: "+1"}, "Failed to send SMS."},
		{Geo{Latitude: "1", Longitude: "2"}, "Failed to open location."},
	}

	for _, tt := range tests {
		t.Run(string(tt.action.Kind()), func(t *testing.T) {
			exec := &fakeExecutor{err: errors.New("boom")}
			msg := newTestDispatcher(exec).Dispatch(context.Background(), tt.action, t0)
			assert.False(t, msg.OK)
			assert.Equal(t, tt.text, msg.Text)
			assert.Len(t, exec.Calls(), 1, "no retry")
		})
	}
}

func TestDispatch_InfallibleHandlersReportSuccess(t *testing.T) {
	for _, a := range []Action{SocialProfile{URL: "u"}, Link{URL: "u"}, PlainText{Text: "t"}} {
		exec := &fakeExecutor{err: errors.New("no browser")}
		msg := newTestDispatcher(exec).Dispatch(context.Background(), a, t0)
		assert.True(t, msg.OK, "%s", a.Kind())
	}
}

func TestDispatch_PanicIsRecovered(t *testing.T) {
	exec := &fakeExecutor{panicMsg: "handler exploded"}
	d := newTestDispatcher(exec)

	var msg StatusMessage
	require.NotPanics(t, func() {
		msg = d.Dispatch(context.Background(), WifiJoin{SSID: "Home"}, t0)
	})
	assert.False(t, msg.OK)
	assert.Equal(t, "Failed to connect to Home.", msg.Text)
}

func TestDispatch_IncompleteGeoNeverOpens(t *testing.T) {
	exec := &fakeExecutor{}
	msg := newTestDispatcher(exec).Dispatch(context.Background(), Geo{Latitude: "37.7"}, t0)
	assert.False(t, msg.OK)
	assert.Equal(t, "Failed to open location.", msg.Text)
	assert.Empty(t, exec.Calls())
}

func TestDispatch_PlainTextTwiceCopiesTwice(t *testing.T) {
	exec := &fakeExecutor{}
	d := newTestDispatcher(exec)

	m1 := d.Dispatch(context.Background(), PlainText{Text: "hello"}, t0)
	m2 := d.Dispatch(context.Background(), PlainText{Text: "hello"}, t0.Add(2*time.Second))

	assert.Equal(t, "Text copied to clipboard.", m1.Text)
	assert.Equal(t, "Text copied to clipboard.", m2.Text)
	assert.Equal(t, []string{"CopyText", "CopyText"}, exec.Calls())
}

func TestDispatch_UnknownAndNilAction(t *testing.T) {
	exec := &fakeExecutor{}
	msg := newTestDispatcher(exec).Dispatch(context.Background(), nil, t0)
	assert.False(t, msg.OK)
	assert.Equal(t, "Unsupported action.", msg.Text)
	assert.Empty(t, exec.Calls())
}

func TestDispatch_NoExecutor(t *testing.T) {
	msg := newTestDispatcher(nil).Dispatch(context.Background(), Email{MailtoURI: "mailto:x"}, t0)
	assert.False(t, msg.OK)
	assert.Equal(t, "Failed to send email.", msg.Text)
}

type slowExecutor struct{ fakeExecutor }

func (s *slowExecutor) OpenURL(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestDispatch_TimeoutBoundsHandler(t *testing.T) {
	d := NewDispatcher(&slowExecutor{}, DispatcherConfig{Timeout: 20 * time.Millisecond}, discardLogger())

	start := time.Now()
	msg := d.Dispatch(context.Background(), Email{MailtoURI: "mailto:x"}, t0)
	assert.False(t, msg.OK)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDispatch_MapsURLEscapesCoordinates(t *testing.T) {
	d := NewDispatcher(&fakeExecutor{}, DispatcherConfig{MapsURL: "https://maps.example/?q={lat},{lon}"}, discardLogger())
	assert.Equal(t, "https://maps.example/?q=1+2,%263", d.mapsURL(Geo{Latitude: "1 2", Longitude: "&3"}))
}

func TestStatusMessage_Expired(t *testing.T) {
	m := StatusMessage{Text: "x", CreatedAt: t0, TTL: 3 * time.Second}
	assert.False(t, m.Expired(t0.Add(2999*time.Millisecond)))
	assert.True(t, m.Expired(t0.Add(3*time.Second)))
}
