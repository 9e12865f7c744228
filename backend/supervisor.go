package backend

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Factory builds a new session.
type Factory func(ctx context.Context) (*Session, error)

// NewFactory returns a Factory starting spec with options.
func NewFactory(spec LaunchSpec, options *Options) Factory {
	return func(ctx context.Context) (*Session, error) {
		return Start(ctx, spec, options)
	}
}

// Supervisor holds the single shared session, creating it lazily and replacing it
// after a fault. Creation and teardown happen under one lock.
type Supervisor struct {
	factory Factory
	logger  zerolog.Logger
	mux     sync.Mutex
	current *Session
}

// NewSupervisor creates a supervisor building sessions with factory.
func NewSupervisor(factory Factory, logger zerolog.Logger) *Supervisor {
	return &Supervisor{factory: factory, logger: logger}
}

// GetOrCreate returns the live session, starting one if needed. A failed start
// caches nothing.
func (s *Supervisor) GetOrCreate(ctx context.Context) (*Session, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.current != nil {
		if s.current.Alive() {
			return s.current, nil
		}
		s.closeCurrent("session no longer alive")
	}
	session, err := s.factory(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to start amg-mcp session")
		return nil, err
	}
	s.current = session
	return session, nil
}

// Current returns the cached session without creating one.
func (s *Supervisor) Current() *Session {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.current
}

// Invalidate closes and forgets the current session.
func (s *Supervisor) Invalidate(reason string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.current != nil {
		s.closeCurrent(reason)
	}
}

// InvalidateSession invalidates session only if it is still the current one.
func (s *Supervisor) InvalidateSession(session *Session, reason string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if session == nil || s.current != session {
		return
	}
	s.closeCurrent(reason)
}

// Warm starts the session ahead of the first call.
func (s *Supervisor) Warm(ctx context.Context) error {
	session, err := s.GetOrCreate(ctx)
	if err != nil {
		return err
	}
	s.logger.Info().Str("session", session.ID).Strs("tools", session.Tools()).Msg("amg-mcp warmed up")
	return nil
}

// Close shuts the current session down.
func (s *Supervisor) Close() {
	s.Invalidate("shutdown")
}

func (s *Supervisor) closeCurrent(reason string) {
	session := s.current
	s.current = nil
	s.logger.Warn().Str("session", session.ID).Int("pid", session.PID()).Str("reason", reason).Msg("invalidating amg-mcp session")
	session.Close()
}
