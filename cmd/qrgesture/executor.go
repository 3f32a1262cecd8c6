package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"strings"
)

// ============================================================================
// Platform Executor
// ============================================================================
// Action handlers shell out to the tools each operating system ships with
// (xdg-open / open / rundll32, nmcli / networksetup / netsh, clipboard
// utilities). The platform is chosen once at startup from runtime.GOOS and
// the dispatcher only sees the Executor interface.
// ============================================================================

// commandRunner runs an external program. stdin may be empty.
type commandRunner interface {
	Run(ctx context.Context, stdin string, name string, args ...string) ([]byte, error)
}

// execRunner is the os/exec backed commandRunner.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, stdin string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.Bytes(), fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return stdout.Bytes(), fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// platform describes the OS-specific commands used by platformExecutor.
type platform struct {
	goos string

	// open is the command prefix that opens a URL or file with the default application.
	open []string

	// clipboard lists candidate commands (first one found wins) that read text on stdin.
	clipboard [][]string

	// joinWifi performs the OS-specific network join.
	joinWifi func(ctx context.Context, e *platformExecutor, w WifiJoin) error
}

func platformFor(goos string) platform {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return platform{
			goos: goos,
			open: []string{"xdg-open"},
			clipboard: [][]string{
				{"wl-copy"},
				{"xclip", "-selection", "clipboard"},
				{"xsel", "--clipboard", "--input"},
			},
			joinWifi: joinWifiNmcli,
		}
	case "darwin":
		return platform{
			goos:      goos,
			open:      []string{"open"},
			clipboard: [][]string{{"pbcopy"}},
			joinWifi:  joinWifiNetworksetup,
		}
	case "windows":
		return platform{
			goos:      goos,
			open:      []string{"rundll32", "url.dll,FileProtocolHandler"},
			clipboard: [][]string{{"clip"}},
			joinWifi:  joinWifiNetsh,
		}
	default:
		return platform{goos: goos}
	}
}

// ExecutorConfig configures the platform executor.
type ExecutorConfig struct {
	// SaveDir receives the .vcf/.ics files handed to the default application.
	SaveDir string
	// SMSOpen opens an sms: URI in addition to logging the composed message.
	SMSOpen bool
}

// platformExecutor implements Executor on top of a platform command table.
type platformExecutor struct {
	plat     platform
	run      commandRunner
	lookPath func(string) (string, error)
	cfg      ExecutorConfig
	logger   *slog.Logger
}

// newPlatformExecutor builds the executor for goos (normally runtime.GOOS).
func newPlatformExecutor(goos string, cfg ExecutorConfig, logger *slog.Logger) *platformExecutor {
	if cfg.SaveDir == "" {
		cfg.SaveDir = os.TempDir()
	}
	return &platformExecutor{
		plat:     platformFor(goos),
		run:      execRunner{},
		lookPath: exec.LookPath,
		cfg:      cfg,
		logger:   logger,
	}
}

func (e *platformExecutor) JoinWifi(ctx context.Context, w WifiJoin) error {
	if e.plat.joinWifi == nil {
		return errUnsupportedPlatform{goos: e.plat.goos, op: "wifi join"}
	}
	if w.SSID == "" {
		return fmt.Errorf("wifi join: empty SSID")
	}
	return e.plat.joinWifi(ctx, e, w)
}

func (e *platformExecutor) OpenURL(ctx context.Context, rawURL string) error {
	if len(e.plat.open) == 0 {
		return errUnsupportedPlatform{goos: e.plat.goos, op: "open"}
	}
	args := append(append([]string{}, e.plat.open[1:]...), rawURL)
	if _, err := e.run.Run(ctx, "", e.plat.open[0], args...); err != nil {
		return fmt.Errorf("open %q: %w", rawURL, err)
	}
	return nil
}

func (e *platformExecutor) CopyText(ctx context.Context, text string) error {
	for _, c := range e.plat.clipboard {
		if _, err := e.lookPath(c[0]); err != nil {
			continue
		}
		if _, err := e.run.Run(ctx, text, c[0], c[1:]...); err != nil {
			return fmt.Errorf("copy to clipboard: %w", err)
		}
		return nil
	}
	return errUnsupportedPlatform{goos: e.plat.goos, op: "clipboard"}
}

// SaveAndOpen writes content to a new file with extension ext and opens it
// with the default application (contacts / calendar importer).
func (e *platformExecutor) SaveAndOpen(ctx context.Context, content, ext string) error {
	prefix := "qrgesture"
	switch ext {
	case ".vcf":
		prefix = "contact"
	case ".ics":
		prefix = "event"
	}

	if err := os.MkdirAll(ExpandPath(e.cfg.SaveDir), 0o755); err != nil {
		return fmt.Errorf("create save dir: %w", err)
	}
	f, err := os.CreateTemp(ExpandPath(e.cfg.SaveDir), prefix+"-*"+ext)
	if err != nil {
		return fmt.Errorf("create %s file: %w", ext, err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", f.Name(), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", f.Name(), err)
	}

	e.logger.Debug("saved payload", "path", f.Name(), "bytes", len(content))
	return e.OpenURL(ctx, f.Name())
}

// ComposeSMS logs the message; sending SMS from a desktop is platform dependent,
// so an sms: URI is only handed to the OS when configured.
func (e *platformExecutor) ComposeSMS(ctx context.Context, phone, message string) error {
	if phone == "" {
		return fmt.Errorf("compose sms: empty phone number")
	}
	e.logger.Info("composing SMS", "phone", phone, "message", message)
	if !e.cfg.SMSOpen {
		return nil
	}
	uri := "sms:" + phone
	if message != "" {
		uri += "?body=" + url.QueryEscape(message)
	}
	return e.OpenURL(ctx, uri)
}
