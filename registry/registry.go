// Package registry tracks the process-wide set of live client sessions.
// Telemetry loops gate their sends on continued membership, so removing a
// session from the registry is observed promptly by everything it runs.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var ErrAlreadyRegistered = errors.New("session is already registered")

// Session is one connected client. Close cancels the session's activities;
// it is idempotent and safe to call from any goroutine.
type Session struct {
	ID         string
	RemoteAddr string
	CreatedAt  time.Time

	closeOnce sync.Once
	closeFn   func()
}

// NewSession wires a session to its cancellation function.
func NewSession(id, remoteAddr string, closeFn func()) *Session {
	return &Session{
		ID:         id,
		RemoteAddr: remoteAddr,
		CreatedAt:  time.Now(),
		closeFn:    closeFn,
	}
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.closeFn != nil {
			s.closeFn()
		}
	})
}

type Registry struct {
	mx       *sync.Mutex
	sessions map[string]*Session
	logger   zerolog.Logger
}

func New(logger *zerolog.Logger) *Registry {
	return &Registry{
		mx:       &sync.Mutex{},
		sessions: make(map[string]*Session),
		logger:   logger.With().Str("component", "registry").Logger(),
	}
}

func (r *Registry) Add(s *Session) error {
	r.mx.Lock()
	defer r.mx.Unlock()

	if _, ok := r.sessions[s.ID]; ok {
		return ErrAlreadyRegistered
	}
	r.sessions[s.ID] = s
	r.logger.Debug().
		Str("sessionID", s.ID).
		Str("remoteAddr", s.RemoteAddr).
		Msg("session registered")
	return nil
}

// Remove deregisters a session. Removing an absent session is a no-op,
// so teardown paths may race without harm.
func (r *Registry) Remove(id string) {
	r.mx.Lock()
	defer r.mx.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	r.logger.Debug().Str("sessionID", id).Msg("session deregistered")
}

func (r *Registry) Contains(id string) bool {
	r.mx.Lock()
	defer r.mx.Unlock()
	_, ok := r.sessions[id]
	return ok
}

func (r *Registry) Len() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return len(r.sessions)
}

// Sessions returns a snapshot of the current membership.
func (r *Registry) Sessions() []*Session {
	r.mx.Lock()
	defer r.mx.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// CloseAll closes every registered session. Used on process shutdown;
// each session deregisters itself as its coordinator unwinds.
func (r *Registry) CloseAll() {
	for _, s := range r.Sessions() {
		s.Close()
	}
	r.logger.Debug().Msg("close requested for all sessions")
}
