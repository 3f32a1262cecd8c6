package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// ============================================================================
// qrgesture-ctl - Command-line IPC Client
// ============================================================================
// Injects events into a running qrgesture daemon. Useful for driving the
// frame loop without a camera (demos, scripted checks).
//
// Usage:
//   qrgesture-ctl scan "WIFI:S:Home;T:WPA;P:secret;;"
//   qrgesture-ctl point 120 90
//   qrgesture-ctl frame -payload "https://example.com" -x 120 -y 90
//   qrgesture-ctl reset
//   qrgesture-ctl quit
// ============================================================================

// Event types (duplicated from the daemon package for a standalone binary).
type Event interface{}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type FrameObserved struct {
	Payload *string `json:"payload,omitempty"`
	Pointer *Point  `json:"pointer,omitempty"`
}

type ResetDetection struct{}

type Quit struct{}

// EventEnvelope wraps events for JSON
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

const defaultSocket = "/tmp/qrgesture.sock"

func main() {
	socketPath := defaultSocket
	if env := os.Getenv("QRGESTURE_SOCKET"); env != "" {
		socketPath = env
	}

	args := os.Args[1:]
	if len(args) > 0 && (args[0] == "-socket" || args[0] == "--socket") {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	events, err := parseCommand(args)
	if err != nil {
		if err == flag.ErrHelp {
			printUsage()
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	for _, ev := range events {
		if err := sendEvent(socketPath, ev); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("ok")
}

// parseCommand maps the command line to the events to send.
func parseCommand(args []string) ([]Event, error) {
	switch args[0] {
	case "scan":
		if len(args) < 2 {
			return nil, fmt.Errorf("scan requires a payload")
		}
		p := args[1]
		return []Event{FrameObserved{Payload: &p}}, nil

	case "point":
		if len(args) < 3 {
			return nil, fmt.Errorf("point requires x and y")
		}
		x, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid x: %w", err)
		}
		y, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid y: %w", err)
		}
		return []Event{FrameObserved{Pointer: &Point{X: x, Y: y}}}, nil

	case "frame":
		return parseFrame(args[1:])

	case "press":
		// Scan and hold the fingertip in the button centre for one frame.
		if len(args) < 2 {
			return nil, fmt.Errorf("press requires a payload")
		}
		p := args[1]
		return []Event{
			FrameObserved{Payload: &p},
			FrameObserved{Payload: &p, Pointer: &Point{X: 200, Y: 100}},
		}, nil

	case "reset":
		return []Event{ResetDetection{}}, nil

	case "quit":
		return []Event{Quit{}}, nil

	case "help", "-h", "--help":
		return nil, flag.ErrHelp

	default:
		return nil, fmt.Errorf("unknown command: %s", args[0])
	}
}

func parseFrame(args []string) ([]Event, error) {
	fs := flag.NewFlagSet("frame", flag.ContinueOnError)
	payload := fs.String("payload", "", "decoded QR payload")
	x := fs.Float64("x", -1, "fingertip x (pixels)")
	y := fs.Float64("y", -1, "fingertip y (pixels)")
	repeat := fs.Int("repeat", 1, "send the frame this many times")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var f FrameObserved
	if *payload != "" {
		f.Payload = payload
	}
	if *x >= 0 && *y >= 0 {
		f.Pointer = &Point{X: *x, Y: *y}
	}
	if *repeat < 1 {
		*repeat = 1
	}
	out := make([]Event, 0, *repeat)
	for i := 0; i < *repeat; i++ {
		out = append(out, f)
	}
	return out, nil
}

func sendEvent(socketPath string, ev Event) error {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := marshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// Line-delimited JSON
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return fmt.Errorf("send event: %w", err)
	}

	var response IPCResponse
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if response.Status == "error" {
		return fmt.Errorf("daemon error: %s", response.Error)
	}
	return nil
}

func marshalEvent(ev Event) ([]byte, error) {
	var env EventEnvelope

	switch e := ev.(type) {
	case FrameObserved:
		env.Type = "frame"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal FrameObserved: %w", err)
		}
		env.Data = data

	case ResetDetection:
		env.Type = "reset"

	case Quit:
		env.Type = "quit"

	default:
		return nil, fmt.Errorf("unknown event type: %T", ev)
	}

	return json.Marshal(env)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `qrgesture-ctl - Drive a qrgesture daemon via IPC

Usage:
  qrgesture-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: %s, or $QRGESTURE_SOCKET)

Commands:
  scan <payload>          Inject a frame with a decoded QR payload
  point <x> <y>           Inject a frame with only a fingertip position
  press <payload>         Scan, then touch the default button
  frame [flags]           Inject a frame (-payload, -x, -y, -repeat)
  reset                   Drop the active detection
  quit                    Stop the daemon
  help, -h, --help        Show this help message

Examples:
  qrgesture-ctl scan "MATMSG:TO:a@b.c;SUB:Hi;BODY:Yo;;"
  qrgesture-ctl frame -payload "tel:+15551234" -x 200 -y 100 -repeat 3
  qrgesture-ctl -socket /run/qrgesture.sock reset
`, defaultSocket)
}
