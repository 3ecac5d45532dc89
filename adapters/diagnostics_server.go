package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
	"xgos-feed/application"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	diagnosticsShutdownTimeout = 5 * time.Second
	diagnosticsWriteTimeout    = 10 * time.Second
)

// FeedSource is the read-only view of the feed the diagnostics server needs.
type FeedSource interface {
	State() *application.StateObservable
	Buffer() *application.MessageBuffer
	Status() application.FeedStatus
}

type DiagnosticsServerParams struct {
	Addr string
	Feed FeedSource

	Log zerolog.Logger
}

type stateResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type statusResponse struct {
	State             stateResponse `json:"state"`
	MessageCount      uint64        `json:"message_count"`
	AlertCount        uint64        `json:"alert_count"`
	VideoCount        uint64        `json:"video_count"`
	UnrecognizedCount uint64        `json:"unrecognized_count"`
	Buffered          int           `json:"buffered"`
	LastReceived      time.Time     `json:"last_received"`
}

type messageResponse struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	Payload    string    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

// DiagnosticsServer exposes the live connection state and the message buffer over HTTP.
type DiagnosticsServer struct {
	params DiagnosticsServerParams

	upgrader websocket.Upgrader

	log zerolog.Logger
}

func NewDiagnosticsServer(params DiagnosticsServerParams) (*DiagnosticsServer, error) {
	if params.Feed == nil {
		return nil, fmt.Errorf("Feed is nil")
	}
	return &DiagnosticsServer{
		params: params,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: params.Log,
	}, nil
}

func (d *DiagnosticsServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", d.handleHealth)
	r.Get("/state", d.handleState)
	r.Get("/status", d.handleStatus)
	r.Get("/messages", d.handleMessages)
	r.Get("/ws/state", d.handleStateStream)
	return r
}

// Run listens on Addr and serves until ctx is done.
func (d *DiagnosticsServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.params.Addr)
	if err != nil {
		return fmt.Errorf("diagnostics listen: %w", err)
	}
	return d.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done. Request contexts derive from ctx, so
// hijacked state streams end with it too.
func (d *DiagnosticsServer) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           d.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		d.log.Info().Str("addr", ln.Addr().String()).Msg("diagnostics server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), diagnosticsShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	d.log.Info().Msg("diagnostics server stopped")
	return nil
}

func (d *DiagnosticsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !d.params.Feed.State().Current().IsConnected() {
		d.writeJSON(w, http.StatusServiceUnavailable, toStateResponse(d.params.Feed.State().Current()))
		return
	}
	d.writeJSON(w, http.StatusOK, toStateResponse(d.params.Feed.State().Current()))
}

func (d *DiagnosticsServer) handleState(w http.ResponseWriter, r *http.Request) {
	d.writeJSON(w, http.StatusOK, toStateResponse(d.params.Feed.State().Current()))
}

func (d *DiagnosticsServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s := d.params.Feed.Status()
	d.writeJSON(w, http.StatusOK, statusResponse{
		State:             toStateResponse(s.State),
		MessageCount:      s.MessageCount,
		AlertCount:        s.AlertCount,
		VideoCount:        s.VideoCount,
		UnrecognizedCount: s.UnrecognizedCount,
		Buffered:          s.Buffered,
		LastReceived:      s.LastReceived,
	})
}

func (d *DiagnosticsServer) handleMessages(w http.ResponseWriter, r *http.Request) {
	snapshot := d.params.Feed.Buffer().Snapshot()

	out := make([]messageResponse, 0, len(snapshot))
	for _, m := range snapshot {
		out = append(out, messageResponse{ID: m.ID, Topic: m.Topic, Payload: m.Payload, ReceivedAt: m.ReceivedAt})
	}
	d.writeJSON(w, http.StatusOK, out)
}

func (d *DiagnosticsServer) handleStateStream(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	states, cancel := d.params.Feed.State().Subscribe()
	defer cancel()

	// reader goroutine only exists to notice the peer closing
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case s, ok := <-states:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(diagnosticsWriteTimeout))
			if err := conn.WriteJSON(toStateResponse(s)); err != nil {
				d.log.Debug().Err(err).Msg("state stream closed")
				return
			}
		}
	}
}

func (d *DiagnosticsServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		d.log.Warn().Err(err).Msg("failed to write response")
	}
}

func toStateResponse(s application.ConnectionState) stateResponse {
	out := stateResponse{Status: s.Status.String()}
	if s.Reason != nil {
		out.Reason = s.Reason.Error()
	}
	return out
}

var _ FeedSource = &application.ConnectionManager{}
