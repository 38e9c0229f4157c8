// Package websocket accepts client connections and hands each one to a
// session coordinator. One connection per client; the server runs until
// process shutdown and closes every live session on the way out.
package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rover-control/roverd/registry"
)

const (
	defaultShutdownDeadline = 10 * time.Second

	defaultReadBufferSize   = 10000
	defaultWriteBufferSize  = 10000
	defaultHandshakeTimeout = 3 * time.Second
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type (
	// Coordinator runs one client session to completion.
	Coordinator interface {
		Run(ctx context.Context, conn *websocket.Conn)
	}

	Config struct {
		Logger      *zerolog.Logger
		Registry    *registry.Registry
		Coordinator Coordinator
		ListenAddr  string
	}

	Server struct {
		coordinator Coordinator
		registry    *registry.Registry
		ws          *websocket.Upgrader
		*http.Server

		logger zerolog.Logger

		// base context for sessions, set by Run
		mu      sync.Mutex
		baseCtx context.Context
	}
)

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger:      cfg.Logger.With().Str("component", "websocket-server").Logger(),
		coordinator: cfg.Coordinator,
		registry:    cfg.Registry,
		ws: &websocket.Upgrader{
			HandshakeTimeout: defaultHandshakeTimeout,
			ReadBufferSize:   defaultReadBufferSize,
			WriteBufferSize:  defaultWriteBufferSize,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/control", srv.control)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}
	return srv
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	srv.mu.Lock()
	srv.baseCtx = ctx
	srv.mu.Unlock()

	errSrv := make(chan error)
	go func() {
		errSrv <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-errSrv:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		srv.registry.CloseAll()
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}

func (srv *Server) control(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.ws.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	// The request context ends when this handler returns, which is before
	// the session does; sessions run on the server's lifecycle instead.
	srv.mu.Lock()
	ctx := srv.baseCtx
	srv.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	go srv.coordinator.Run(ctx, conn)
}
