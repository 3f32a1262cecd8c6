package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ============================================================================
// HTTP Server
// ============================================================================
// Hosts the state websocket and a health endpoint.
// ============================================================================

// healthResponse is the /healthz body.
type healthResponse struct {
	Status    string    `json:"status"`
	Uptime    string    `json:"uptime"`
	WSClients int       `json:"ws_clients"`
	Stats     LoopStats `json:"stats"`
	Active    string    `json:"active,omitempty"`
}

// newHTTPMux wires the routes served on http.port.
func newHTTPMux(state *StateServer, events chan<- Event, started time.Time, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	state.Register(mux, "/ws/state")
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:    "ok",
			Uptime:    time.Since(started).Round(time.Second).String(),
			WSClients: state.Hub().ClientCount(),
		}

		// The daemon answers within a tick; a stuck daemon is unhealthy.
		view, err := requestSnapshot(r.Context(), events)
		code := http.StatusOK
		if err != nil {
			resp.Status = "daemon unresponsive"
			code = http.StatusServiceUnavailable
		} else {
			resp.Stats = view.Stats
			resp.Active = string(view.Kind)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Debug("healthz write failed", "error", err)
		}
	})
	return mux
}

// runHTTPServer serves handler on port and shuts it down gracefully when ctx
// is canceled.
func runHTTPServer(ctx context.Context, port int, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("http server listening", "port", port)

	errCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on Shutdown; treat that as clean exit.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}
