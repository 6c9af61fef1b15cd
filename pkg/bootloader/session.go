// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

import (
	"context"
	"sync"
	"time"

	"github.com/Thermoquad/stboot/pkg/stm32boot"
	"github.com/rs/zerolog"
)

// Dialer opens a transport and describes it for display
type Dialer func() (conn stm32boot.Conn, info string, err error)

// SessionState is the connection lifecycle of a Session
type SessionState int

const (
	Disconnected SessionState = iota
	Connected
	Reconnecting
	Closed
)

func (s SessionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Result is the outcome of a submitted Plan
type Result struct {
	Report *Report
	Err    error
}

type job struct {
	plan   Plan
	result chan Result
}

// Session owns one connection at a time and the worker goroutine that runs
// plans on it. Blocking transport reads happen only on the worker; callers
// submit plans and receive results and events over channels.
//
// Closing the session closes the transport, which is the only way to abort
// an in-flight command.
type Session struct {
	dial   Dialer
	opts   []Option
	log    zerolog.Logger
	events chan Event

	mu       sync.RWMutex
	conn     stm32boot.Conn
	connInfo string
	engine   *Engine
	state    SessionState
	closed   bool

	statsMu sync.Mutex
	stats   *Statistics

	initialBackoff time.Duration
	maxBackoff     time.Duration

	jobs      chan job
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSession creates a session and starts its worker. It does not dial;
// call Connect first. opts configure every engine the session creates.
func NewSession(dial Dialer, opts ...Option) *Session {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Session{
		dial:           dial,
		opts:           opts,
		log:            cfg.Logger.With().Str("component", "session").Logger(),
		events:         make(chan Event, 1024),
		stats:          NewStatistics(),
		initialBackoff: 1 * time.Second,
		maxBackoff:     30 * time.Second,
		jobs:           make(chan job, 16),
		done:           make(chan struct{}),
	}

	s.wg.Add(1)
	go s.worker()
	return s
}

// SetBackoff overrides the reconnect backoff bounds
func (s *Session) SetBackoff(initial, max time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialBackoff = initial
	s.maxBackoff = max
}

// Events returns the event stream. Progress events are dropped first when
// the consumer falls behind.
func (s *Session) Events() <-chan Event {
	return s.events
}

// State returns the connection state
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ConnInfo describes the current connection
func (s *Session) ConnInfo() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connInfo
}

// Engine returns the engine bound to the current connection, or nil
func (s *Session) Engine() *Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Statistics returns a copy of the counters accumulated over all connections
func (s *Session) Statistics() Statistics {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return *s.stats
}

// Connect dials a new connection, replacing any current one. The new engine
// starts from an unsynced state.
func (s *Session) Connect() error {
	conn, info, err := s.dial()
	if err != nil {
		return err
	}

	opts := append(append([]Option(nil), s.opts...),
		WithProgressCallback(func(p Progress) { s.emit(p) }),
		WithCompletionCallback(func(c Completion) { s.emit(c) }),
	)
	eng := New(conn, opts...)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return ErrSessionClosed
	}
	old := s.conn
	s.conn = conn
	s.connInfo = info
	s.engine = eng
	s.state = Connected
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	s.log.Info().Str("conn", info).Msg("connected")
	return nil
}

// Reconnect drops the current connection and dials again with exponential
// backoff until it succeeds, ctx is cancelled or the session is closed.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	old := s.conn
	s.conn = nil
	s.engine = nil
	s.state = Reconnecting
	backoff := s.initialBackoff
	maxBackoff := s.maxBackoff
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}

	for {
		select {
		case <-s.done:
			return ErrSessionClosed
		case <-ctx.Done():
			s.setState(Disconnected)
			return ctx.Err()
		case <-time.After(backoff):
		}

		err := s.Connect()
		if err == nil {
			return nil
		}
		if err == ErrSessionClosed {
			return err
		}
		s.log.Warn().Err(err).Dur("backoff", backoff).Msg("reconnect failed")

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Submit queues plan for the worker. The returned channel receives exactly
// one Result.
func (s *Session) Submit(plan Plan) <-chan Result {
	result := make(chan Result, 1)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		result <- Result{Err: ErrSessionClosed}
		return result
	}

	select {
	case s.jobs <- job{plan: plan, result: result}:
	case <-s.done:
		result <- Result{Err: ErrSessionClosed}
	}
	return result
}

// Run submits plan and waits for its result
func (s *Session) Run(ctx context.Context, plan Plan) (*Report, error) {
	select {
	case r := <-s.Submit(plan):
		return r.Report, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the worker and closes the transport. A command in flight is
// aborted by the closed transport and reports its failure as usual. The
// engine state is reset once the worker has exited.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		s.closed = true
		conn := s.conn
		s.conn = nil
		s.state = Closed
		s.mu.Unlock()

		if conn != nil {
			err = conn.Close()
		}
		s.wg.Wait()

		// The worker is gone, so nothing can race the reset
		if eng := s.Engine(); eng != nil {
			eng.Reset()
		}

		for {
			select {
			case j := <-s.jobs:
				j.result <- Result{Err: ErrSessionClosed}
			default:
				s.log.Debug().Msg("session closed")
				return
			}
		}
	})
	return err
}

func (s *Session) worker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		select {
		case <-s.done:
			return
		case j := <-s.jobs:
			j.result <- s.execute(j.plan)
		}
	}
}

func (s *Session) execute(plan Plan) Result {
	eng := s.Engine()
	if eng == nil {
		return Result{Err: ErrNotConnected}
	}

	report, err := eng.Run(plan)
	if IsFatal(err) {
		s.log.Error().Err(err).Msg("transport failed, connection dropped")
		eng.Reset()
		s.setState(Disconnected)
	}
	return Result{Report: report, Err: err}
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.state = state
	}
}

// emit records ev in the statistics and forwards it to the event stream
func (s *Session) emit(ev Event) {
	s.statsMu.Lock()
	s.stats.Update(ev)
	s.statsMu.Unlock()

	// Progress may only fill half the buffer so completions always fit
	if _, ok := ev.(Progress); ok && len(s.events) >= cap(s.events)/2 {
		return
	}

	select {
	case s.events <- ev:
	default:
		if c, ok := ev.(Completion); ok {
			s.log.Warn().Str("command", c.Command.Name).Msg("event stream full, completion dropped")
		}
	}
}
