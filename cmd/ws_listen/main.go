package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// ws_listen follows a qrgesture daemon's /ws/state stream and prints one line
// per message. Pointer updates are hidden unless -pointer is set.

type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type view struct {
	Button *struct {
		Label   string `json:"label"`
		Pressed bool   `json:"pressed"`
	} `json:"button,omitempty"`
	DisplayText string `json:"display_text"`
	Kind        string `json:"kind,omitempty"`
	Status      *struct {
		Text string `json:"text"`
		OK   bool   `json:"ok"`
	} `json:"status,omitempty"`
	Stats struct {
		Frames     uint64 `json:"frames"`
		Dispatches uint64 `json:"dispatches"`
		Failures   uint64 `json:"failures"`
	} `json:"stats"`
}

type dispatched struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Label string `json:"label"`
	Text  string `json:"text"`
	OK    bool   `json:"ok"`
}

func main() {
	var (
		wsURL       = flag.String("ws", "ws://127.0.0.1:3002/ws/state", "qrgesture state websocket URL")
		showPointer = flag.Bool("pointer", false, "Print pointer_moved messages")
		raw         = flag.Bool("raw", false, "Print raw JSON instead of summaries")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	// Answer server pings and extend the deadline.
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				fmt.Printf("[BINARY] %d bytes\n", len(message))
				continue
			}
			if *raw {
				fmt.Println(string(message))
				continue
			}
			handleTextMessage(message, *showPointer)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

func handleTextMessage(message []byte, showPointer bool) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return
	}

	ts := ""
	if env.Ts != nil {
		ts = env.Ts.Local().Format("15:04:05.000") + " "
	}

	switch env.Type {
	case "state_init", "view_changed":
		var v view
		if err := json.Unmarshal(env.Data, &v); err != nil {
			fmt.Printf("%s[%s] bad data: %v\n", ts, env.Type, err)
			return
		}
		fmt.Printf("%s[%s] %s\n", ts, env.Type, summarizeView(v))

	case "pointer_moved":
		if !showPointer {
			return
		}
		var p struct {
			Pointer *point `json:"pointer"`
		}
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		if p.Pointer == nil {
			fmt.Printf("%s[pointer] none\n", ts)
			return
		}
		fmt.Printf("%s[pointer] %.0f,%.0f\n", ts, p.Pointer.X, p.Pointer.Y)

	case "dispatched":
		var d dispatched
		if err := json.Unmarshal(env.Data, &d); err != nil {
			fmt.Printf("%s[dispatched] bad data: %v\n", ts, err)
			return
		}
		result := "OK"
		if !d.OK {
			result = "FAILED"
		}
		fmt.Printf("%s[dispatched] %s %s %q (%s)\n", ts, result, d.Kind, d.Text, d.ID)

	default:
		fmt.Printf("%s[%s] %s\n", ts, env.Type, string(env.Data))
	}
}

func summarizeView(v view) string {
	s := fmt.Sprintf("%q", v.DisplayText)
	if v.Button != nil {
		s += fmt.Sprintf(" button=%q", v.Button.Label)
		if v.Button.Pressed {
			s += " (pressed)"
		}
	}
	if v.Status != nil {
		s += fmt.Sprintf(" status=%q ok=%v", v.Status.Text, v.Status.OK)
	}
	s += fmt.Sprintf(" frames=%d dispatches=%d failures=%d", v.Stats.Frames, v.Stats.Dispatches, v.Stats.Failures)
	return s
}
