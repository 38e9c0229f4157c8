// Package http serves a small operational API next to the control socket:
// liveness and a snapshot of the active sessions.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rover-control/roverd/registry"
)

const (
	defaultShutdownDeadline = 10 * time.Second
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type SessionInfo struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	CreatedAt  time.Time `json:"created_at"`
}

type StatusResponse struct {
	UptimeSeconds float64       `json:"uptime_seconds"`
	Sessions      []SessionInfo `json:"sessions"`
}

type Server struct {
	logger   zerolog.Logger
	registry *registry.Registry
	started  time.Time
	*http.Server
}

type Config struct {
	Logger     *zerolog.Logger
	Registry   *registry.Registry
	ListenAddr string
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger:   cfg.Logger.With().Str("component", "status-server").Logger(),
		registry: cfg.Registry,
		started:  time.Now(),
	}

	r := http.NewServeMux()
	r.HandleFunc("GET /status", srv.status)
	r.HandleFunc("GET /healthz", srv.healthz)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}
	return srv
}

func (srv *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (srv *Server) status(w http.ResponseWriter, _ *http.Request) {
	sessions := srv.registry.Sessions()
	resp := StatusResponse{
		UptimeSeconds: time.Since(srv.started).Seconds(),
		Sessions:      make([]SessionInfo, 0, len(sessions)),
	}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, SessionInfo{
			ID:         s.ID,
			RemoteAddr: s.RemoteAddr,
			CreatedAt:  s.CreatedAt,
		})
	}

	b, err := json.Marshal(&resp)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeBytes(w, http.StatusOK, b)
}

func writeBytes(w http.ResponseWriter, code int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	if _, err := w.Write(b); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}
