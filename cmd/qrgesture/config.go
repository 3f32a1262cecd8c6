package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the qrgesture daemon.
//
// Defaults and validation live here so the rest of the code can assume a
// well-formed config. The file is the primary surface; flags override.
type Config struct {
	Capture   CaptureConfig   `yaml:"capture"`
	Detection DetectionConfig `yaml:"detection"`
	Press     PressConfig     `yaml:"press"`
	Status    StatusConfig    `yaml:"status"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Loop      LoopFileConfig  `yaml:"loop"`
	IPC       IPCConfig       `yaml:"ipc"`
	HTTP      HTTPConfig      `yaml:"http"`
	History   HistoryConfig   `yaml:"history"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type CaptureConfig struct {
	// Device is the camera node probed at startup; empty skips the probe.
	Device string `yaml:"device"`
	// Feed is the FIFO the vision sidecar writes frames to.
	Feed           string `yaml:"feed"`
	FrameWidth     int    `yaml:"frame_width"`
	FrameHeight    int    `yaml:"frame_height"`
	StallTimeoutMS int    `yaml:"stall_timeout_ms"`
	// NormalizedPointer means the sidecar reports fingertips in [0,1].
	NormalizedPointer bool `yaml:"normalized_pointer"`
}

type DetectionConfig struct {
	TTLMS int `yaml:"ttl_ms"`
}

type PressConfig struct {
	CooldownMS int    `yaml:"cooldown_ms"`
	Mode       string `yaml:"mode"` // "cooldown" or "edge"
	Button     Rect   `yaml:"button"`
}

type StatusConfig struct {
	TTLMS int `yaml:"ttl_ms"`
}

type DispatchConfig struct {
	TimeoutMS int    `yaml:"timeout_ms"`
	SaveDir   string `yaml:"save_dir"`
	MapsURL   string `yaml:"maps_url"`
	SMSOpen   bool   `yaml:"sms_open"`
}

type LoopFileConfig struct {
	TickHz int `yaml:"tick_hz"`
}

type IPCConfig struct {
	SocketPath string  `yaml:"socket_path"`
	Rate       float64 `yaml:"rate"`
	Burst      int     `yaml:"burst"`
}

type HTTPConfig struct {
	Port int `yaml:"port"` // 0 disables the server
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Capture: CaptureConfig{
			Device:            defaultCaptureDevice,
			Feed:              defaultFeedPath,
			FrameWidth:        defaultFrameWidth,
			FrameHeight:       defaultFrameHeight,
			StallTimeoutMS:    defaultStallTimeoutMS,
			NormalizedPointer: true,
		},
		Detection: DetectionConfig{TTLMS: int(defaultDetectionTTL / time.Millisecond)},
		Press: PressConfig{
			CooldownMS: int(defaultCooldown / time.Millisecond),
			Mode:       string(PressModeCooldown),
			Button:     Rect{X1: defaultButtonX1, Y1: defaultButtonY1, X2: defaultButtonX2, Y2: defaultButtonY2},
		},
		Status: StatusConfig{TTLMS: int(defaultStatusTTL / time.Millisecond)},
		Dispatch: DispatchConfig{
			TimeoutMS: defaultDispatchTimeoutMS,
			SaveDir:   os.TempDir(),
			MapsURL:   defaultMapsURL,
		},
		Loop: LoopFileConfig{TickHz: defaultTickHz},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocket,
			Rate:       defaultIPCRate,
			Burst:      defaultIPCBurst,
		},
		HTTP:    HTTPConfig{Port: defaultHTTPPort},
		History: HistoryConfig{Enabled: true, Path: defaultHistoryPath},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parseConfig(b)
}

func parseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file: defaults only.
			return cfg, nil
		}
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds flag values that take precedence over the file.
// A nil pointer means "not set on the command line".
type FlagOverrides struct {
	CaptureDevice *string
	CaptureFeed   *string
	StallTimeout  *int

	DetectionTTLMS *int
	CooldownMS     *int
	PressMode      *string
	StatusTTLMS    *int

	DispatchTimeoutMS *int
	SaveDir           *string

	IPCSocketPath *string
	HTTPPort      *int

	HistoryEnabled *bool
	HistoryPath    *string

	LogLevel *string
}

// Apply merges the overrides into cfg. If the pointer is non-nil, the value
// is applied (even if it is a zero value).
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	setString(&cfg.Capture.Device, o.CaptureDevice)
	setString(&cfg.Capture.Feed, o.CaptureFeed)
	setInt(&cfg.Capture.StallTimeoutMS, o.StallTimeout)

	setInt(&cfg.Detection.TTLMS, o.DetectionTTLMS)
	setInt(&cfg.Press.CooldownMS, o.CooldownMS)
	setString(&cfg.Press.Mode, o.PressMode)
	setInt(&cfg.Status.TTLMS, o.StatusTTLMS)

	setInt(&cfg.Dispatch.TimeoutMS, o.DispatchTimeoutMS)
	setString(&cfg.Dispatch.SaveDir, o.SaveDir)

	setString(&cfg.IPC.SocketPath, o.IPCSocketPath)
	setInt(&cfg.HTTP.Port, o.HTTPPort)

	if o.HistoryEnabled != nil {
		cfg.History.Enabled = *o.HistoryEnabled
	}
	setString(&cfg.History.Path, o.HistoryPath)

	setString(&cfg.Logging.Level, o.LogLevel)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	if c.Capture.Feed == "" {
		return errors.New("capture.feed must not be empty")
	}
	if c.Capture.FrameWidth <= 0 || c.Capture.FrameHeight <= 0 {
		return errors.New("capture.frame_width and capture.frame_height must be > 0")
	}
	if c.Capture.StallTimeoutMS < 0 {
		return errors.New("capture.stall_timeout_ms must be >= 0")
	}

	if c.Detection.TTLMS <= 0 {
		return errors.New("detection.ttl_ms must be > 0")
	}
	if c.Press.CooldownMS < 0 {
		return errors.New("press.cooldown_ms must be >= 0")
	}
	if _, err := parsePressMode(c.Press.Mode); err != nil {
		return fmt.Errorf("press.mode: %w", err)
	}
	if !c.Press.Button.Valid() {
		return fmt.Errorf("press.button %s must have x1 < x2 and y1 < y2", c.Press.Button)
	}
	if c.Status.TTLMS <= 0 {
		return errors.New("status.ttl_ms must be > 0")
	}

	if c.Dispatch.TimeoutMS < 0 {
		return errors.New("dispatch.timeout_ms must be >= 0")
	}
	if c.Dispatch.MapsURL == "" {
		return errors.New("dispatch.maps_url must not be empty")
	}

	if c.Loop.TickHz <= 0 || c.Loop.TickHz > 1000 {
		return errors.New("loop.tick_hz must be between 1 and 1000")
	}

	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.IPC.Rate < 0 || c.IPC.Burst < 0 {
		return errors.New("ipc.rate and ipc.burst must be >= 0")
	}

	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port must be between 0 and 65535")
	}

	if c.History.Enabled && c.History.Path == "" {
		return errors.New("history.enabled is true but history.path is empty")
	}

	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// LoopConfig converts the file config into the reducer configuration.
// Call after Validate.
func (c *Config) LoopConfig() LoopConfig {
	mode, _ := parsePressMode(c.Press.Mode)
	return LoopConfig{
		ButtonRect:   c.Press.Button,
		DetectionTTL: ms(c.Detection.TTLMS),
		Cooldown:     ms(c.Press.CooldownMS),
		PressMode:    mode,
		StatusTTL:    ms(c.Status.TTLMS),
	}
}

// DispatcherConfig converts the dispatch section.
func (c *Config) DispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MapsURL:   c.Dispatch.MapsURL,
		Timeout:   ms(c.Dispatch.TimeoutMS),
		StatusTTL: ms(c.Status.TTLMS),
	}
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
