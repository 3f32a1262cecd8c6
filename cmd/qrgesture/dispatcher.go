package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// StatusMessage is the transient feedback shown after a dispatch.
type StatusMessage struct {
	Text      string        `json:"text"`
	OK        bool          `json:"ok"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"-"`
}

// Expired reports whether the message should no longer be shown at now.
func (m StatusMessage) Expired(now time.Time) bool {
	return now.Sub(m.CreatedAt) >= m.TTL
}

// Executor is the OS capability surface used by action handlers.
// Implementations are selected per platform at startup; tests use fakes.
type Executor interface {
	JoinWifi(ctx context.Context, w WifiJoin) error
	OpenURL(ctx context.Context, rawURL string) error
	CopyText(ctx context.Context, text string) error
	SaveAndOpen(ctx context.Context, content, ext string) error
	ComposeSMS(ctx context.Context, phone, message string) error
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// MapsURL is a template with {lat} and {lon} placeholders.
	MapsURL string
	// Timeout bounds a single handler invocation; zero disables the bound.
	Timeout time.Duration
	// StatusTTL is the display lifetime of produced status messages.
	StatusTTL time.Duration
}

// Dispatcher runs exactly one handler per call and always yields a status message.
// It never retries and never lets a handler error or panic escape.
type Dispatcher struct {
	exec   Executor
	cfg    DispatcherConfig
	logger *slog.Logger
}

func NewDispatcher(exec Executor, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.MapsURL == "" {
		cfg.MapsURL = defaultMapsURL
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = defaultStatusTTL
	}
	return &Dispatcher{exec: exec, cfg: cfg, logger: logger}
}

// Dispatch invokes the handler registered for the action's variant.
// now stamps the returned message.
func (d *Dispatcher) Dispatch(ctx context.Context, a Action, now time.Time) StatusMessage {
	msg := StatusMessage{CreatedAt: now, TTL: d.cfg.StatusTTL}

	spec, ok := actionRegistry[kindOf(a)]
	if !ok {
		d.logger.Warn("dispatch for unknown action", "kind", kindOf(a))
		msg.Text = "Unsupported action."
		return msg
	}

	err := d.run(ctx, spec, a)
	if err != nil && !spec.Infallible {
		d.logger.Warn("action handler failed", "error", err, "kind", a.Kind())
		msg.Text = spec.Failure(a)
		return msg
	}
	if err != nil {
		d.logger.Warn("action handler reported an error (ignored)", "error", err, "kind", a.Kind())
	}

	msg.Text = spec.Success(a)
	msg.OK = true
	return msg
}

func (d *Dispatcher) run(ctx context.Context, spec actionSpec, a Action) (err error) {
	if d.exec == nil {
		return &HandlerFailure{Kind: a.Kind(), Err: errNoExecutor{}}
	}
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = &HandlerFailure{Kind: a.Kind(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if herr := spec.Run(ctx, d, a); herr != nil {
		return &HandlerFailure{Kind: a.Kind(), Err: herr}
	}
	return nil
}

// mapsURL fills the configured template with query-escaped coordinates.
func (d *Dispatcher) mapsURL(g Geo) string {
	r := strings.NewReplacer(
		"{lat}", url.QueryEscape(g.Latitude),
		"{lon}", url.QueryEscape(g.Longitude),
	)
	return r.Replace(d.cfg.MapsURL)
}

// errNoExecutor indicates the dispatcher was built without an executor.
type errNoExecutor struct{}

func (errNoExecutor) Error() string { return "no executor configured" }
