package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"
)

const version = "0.3.0"

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "qrgesture v%s\n", version)
	fmt.Fprintln(w, "Gesture-driven QR code action daemon")
}

func printUsage() {
	w := os.Stderr
	printVersion(w)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  qrgesture [OPTIONS]")
	fmt.Fprintln(w, "  qrgesture history [OPTIONS]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "DESCRIPTION:")
	fmt.Fprintln(w, "  Reads frames (QR decode + index fingertip) from a vision sidecar, turns")
	fmt.Fprintln(w, "  the decoded payload into a single on-screen action button and runs the")
	fmt.Fprintln(w, "  action when the fingertip touches the button.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "OPTIONS:")
	fmt.Fprintln(w, "  -config string")
	fmt.Fprintln(w, "        YAML config file (flags below override it)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  -capture-device string")
	fmt.Fprintf(w, "        Camera device probed at startup; empty skips the probe (default %q)\n", defaultCaptureDevice)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  -capture-feed string")
	fmt.Fprintf(w, "        FIFO the sidecar writes JSON frames to (default %q)\n", defaultFeedPath)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  -stall-timeout-ms int")
	fmt.Fprintf(w, "        Fail when no frame arrives within this window; 0 waits forever (default %d)\n", defaultStallTimeoutMS)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  -detection-ttl-ms int")
	fmt.Fprintf(w, "        Keep a decoded action this long without a new decode (default %d)\n", defaultDetectionTTL.Milliseconds())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  -cooldown-ms int")
	fmt.Fprintf(w, "        Minimum interval between two button presses (default %d)\n", defaultCooldown.Milliseconds())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  -press-mode string")
	fmt.Fprintln(w, "        cooldown: re-fire while held after each cooldown; edge: also require leaving the button (default \"cooldown\")")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  -status-ttl-ms int")
	fmt.Fprintf(w, "        How long a dispatch status message stays visible (default %d)\n", defaultStatusTTL.Milliseconds())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  -dispatch-timeout-ms int")
	fmt.Fprintf(w, "        Upper bound for one action handler; 0 disables (default %d)\n", defaultDispatchTimeoutMS)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  -save-dir string")
	fmt.Fprintln(w, "        Directory for generated .vcf/.ics/Wi-Fi profile files (default: system temp dir)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  -ipc-socket string")
	fmt.Fprintf(w, "        Unix domain socket path for IPC (default %q)\n", defaultIPCSocket)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  -http-port int")
	fmt.Fprintf(w, "        HTTP port for /ws/state and /healthz; 0 disables (default %d)\n", defaultHTTPPort)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  -history / -history-path string")
	fmt.Fprintf(w, "        Record dispatches in SQLite (default true, %q)\n", defaultHistoryPath)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  -log-level string")
	fmt.Fprintln(w, "        Log level: error, warn, info, debug (default \"info\")")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  -version")
	fmt.Fprintln(w, "        Print version and exit")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "SUBCOMMANDS:")
	fmt.Fprintln(w, "  history [-n N] [-counts] [-json]")
	fmt.Fprintln(w, "        Print recent dispatches (or per-kind counts) from the history database")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "EXAMPLES:")
	fmt.Fprintln(w, "  # Start with defaults (sidecar writes to /tmp/qrgesture.feed)")
	fmt.Fprintln(w, "  qrgesture")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  # Require the finger to leave the button between presses")
	fmt.Fprintln(w, "  qrgesture -press-mode edge")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  # Last 50 dispatches")
	fmt.Fprintln(w, "  qrgesture history -n 50")
	fmt.Fprintln(w)
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "history" {
		os.Exit(runHistorySubcommand(os.Args[2:], os.Stdout))
	}
	os.Exit(run(os.Args[1:]))
}

// loadConfig applies defaults, the optional file and the flags that were
// explicitly set, then validates.
func loadConfig(path string, o FlagOverrides) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadConfigFile(path); err != nil {
			return Config{}, err
		}
	}
	o.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// run starts the daemon and returns the process exit code.
func run(args []string) int {
	fs := flag.NewFlagSet("qrgesture", flag.ContinueOnError)
	fs.Usage = printUsage

	var (
		configPath = fs.String("config", "", "YAML config file")

		captureDevice = fs.String("capture-device", defaultCaptureDevice, "camera device probed at startup")
		captureFeed   = fs.String("capture-feed", defaultFeedPath, "FIFO the sidecar writes frames to")
		stallTimeout  = fs.Int("stall-timeout-ms", defaultStallTimeoutMS, "frame stall timeout in ms")

		detectionTTL = fs.Int("detection-ttl-ms", int(defaultDetectionTTL.Milliseconds()), "detection TTL in ms")
		cooldown     = fs.Int("cooldown-ms", int(defaultCooldown.Milliseconds()), "press cooldown in ms")
		pressMode    = fs.String("press-mode", string(PressModeCooldown), "press mode: cooldown|edge")
		statusTTL    = fs.Int("status-ttl-ms", int(defaultStatusTTL.Milliseconds()), "status message TTL in ms")

		dispatchTimeout = fs.Int("dispatch-timeout-ms", defaultDispatchTimeoutMS, "action handler timeout in ms")
		saveDir         = fs.String("save-dir", os.TempDir(), "directory for generated files")

		ipcSocketPath = fs.String("ipc-socket", defaultIPCSocket, "Unix domain socket path for IPC")
		httpPort      = fs.Int("http-port", defaultHTTPPort, "HTTP port; 0 disables")

		historyEnabled = fs.Bool("history", true, "record dispatch history")
		historyPath    = fs.String("history-path", defaultHistoryPath, "history database path")

		logLevelStr = fs.String("log-level", "info", "Log level: error, warn, info, debug")
		showVersion = fs.Bool("version", false, "Print version and exit")
	)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *showVersion {
		printVersion(os.Stdout)
		return 0
	}

	// Only flags given on the command line override the file.
	var o FlagOverrides
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "capture-device":
			o.CaptureDevice = captureDevice
		case "capture-feed":
			o.CaptureFeed = captureFeed
		case "stall-timeout-ms":
			o.StallTimeout = stallTimeout
		case "detection-ttl-ms":
			o.DetectionTTLMS = detectionTTL
		case "cooldown-ms":
			o.CooldownMS = cooldown
		case "press-mode":
			o.PressMode = pressMode
		case "status-ttl-ms":
			o.StatusTTLMS = statusTTL
		case "dispatch-timeout-ms":
			o.DispatchTimeoutMS = dispatchTimeout
		case "save-dir":
			o.SaveDir = saveDir
		case "ipc-socket":
			o.IPCSocketPath = ipcSocketPath
		case "http-port":
			o.HTTPPort = httpPort
		case "history":
			o.HistoryEnabled = historyEnabled
		case "history-path":
			o.HistoryPath = historyPath
		case "log-level":
			o.LogLevel = logLevelStr
		}
	})

	cfg, err := loadConfig(*configPath, o)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	logger := setupLogger(os.Stdout, logLevel)

	if err := probeCaptureDevice(cfg.Capture.Device); err != nil {
		logger.Error("capture device unavailable", "error", err, "tip", "check the camera is connected and readable by this user")
		return 1
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	ctx, quit := context.WithCancel(sigCtx)
	defer quit()

	g, gctx := errgroup.WithContext(ctx)

	feed, err := openFeed(gctx, ExpandPath(cfg.Capture.Feed), ms(cfg.Capture.StallTimeoutMS), time.Now, logger)
	if err != nil {
		logger.Error("failed to open frame feed", "error", err)
		return 1
	}
	defer feed.Close()

	deps := effectDeps{
		dispatcher: NewDispatcher(
			newPlatformExecutor(runtime.GOOS, ExecutorConfig{SaveDir: cfg.Dispatch.SaveDir, SMSOpen: cfg.Dispatch.SMSOpen}, logger),
			cfg.DispatcherConfig(),
			logger,
		),
		stop: quit,
	}

	if cfg.History.Enabled {
		store, err := OpenHistoryStore(cfg.History.Path)
		if err != nil {
			// History is optional; keep running without it.
			logger.Warn("history disabled", "error", err, "path", cfg.History.Path)
		} else {
			defer store.Close()
			deps.history = store
		}
	}

	events := make(chan Event, 64)
	var broadcasts chan StateBroadcast
	if cfg.HTTP.Port > 0 {
		broadcasts = make(chan StateBroadcast, 256)
	}

	loopCfg := cfg.LoopConfig()

	g.Go(func() error {
		runDaemon(gctx, events, NewFrameLoopState(loopCfg), daemonOptions{
			cfg:        loopCfg,
			deps:       deps,
			tickHz:     cfg.Loop.TickHz,
			broadcasts: broadcasts,
		}, logger)
		return nil
	})

	g.Go(func() error {
		err := runFrameLoop(gctx, feed, sidecarDecoder{}, sidecarPointer{
			normalized:    cfg.Capture.NormalizedPointer,
			defaultWidth:  cfg.Capture.FrameWidth,
			defaultHeight: cfg.Capture.FrameHeight,
		}, events, logger)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		return runIPCServer(gctx, cfg.IPC.SocketPath, IPCLimits{Rate: cfg.IPC.Rate, Burst: cfg.IPC.Burst}, events, logger)
	})

	if cfg.HTTP.Port > 0 {
		state := NewStateServer(logger, events, HubConfig{})
		g.Go(func() error {
			state.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(gctx, state.Hub(), broadcasts, logger)
			return nil
		})
		g.Go(func() error {
			return runHTTPServer(gctx, cfg.HTTP.Port, newHTTPMux(state, events, time.Now(), logger), logger)
		})
	}

	logger.Debug("configuration",
		"capture_device", cfg.Capture.Device,
		"capture_feed", cfg.Capture.Feed,
		"stall_timeout_ms", cfg.Capture.StallTimeoutMS,
		"detection_ttl_ms", cfg.Detection.TTLMS,
		"cooldown_ms", cfg.Press.CooldownMS,
		"press_mode", cfg.Press.Mode,
		"button", cfg.Press.Button.String(),
		"status_ttl_ms", cfg.Status.TTLMS,
		"dispatch_timeout_ms", cfg.Dispatch.TimeoutMS,
		"history", cfg.History.Enabled)
	logger.Info("listening",
		"feed", cfg.Capture.Feed,
		"ipc", cfg.IPC.SocketPath,
		"http_port", cfg.HTTP.Port,
		"platform", runtime.GOOS,
		"version", version)

	if err := g.Wait(); err != nil {
		var devErr *DeviceError
		if errors.As(err, &devErr) {
			logger.Error("capture failed, exiting", "device", devErr.Device, "op", devErr.Op, "error", devErr.Err)
		} else {
			logger.Error("daemon stopped with error", "error", err)
		}
		return 1
	}

	logger.Info("shut down")
	return 0
}

// runHistorySubcommand prints dispatch history. Returns the exit code.
func runHistorySubcommand(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")
	path := fs.String("history-path", "", "history database path (overrides config)")
	limit := fs.Int("n", 20, "number of records")
	counts := fs.Bool("counts", false, "print per-kind totals instead of records")
	asJSON := fs.Bool("json", false, "print JSON")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	var o FlagOverrides
	if *path != "" {
		o.HistoryPath = path
	}
	cfg, err := loadConfig(*configPath, o)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	store, err := OpenHistoryStore(cfg.History.Path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if *counts {
		rows, err := store.CountsByKind(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return 1
		}
		if *asJSON {
			return writeJSON(out, rows)
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KIND\tTOTAL\tFAILURES")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", r.Kind, r.Total, r.Failures)
		}
		tw.Flush()
		return 0
	}

	recs, err := store.Recent(ctx, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	if *asJSON {
		return writeJSON(out, recs)
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKIND\tOK\tMESSAGE\tDETAIL")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%s\n", r.At.Local().Format(time.DateTime), r.Kind, r.OK, r.Message, r.Detail)
	}
	tw.Flush()
	return 0
}

func writeJSON(out io.Writer, v any) int {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
