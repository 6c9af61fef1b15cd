// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bootloader drives an STM32 system bootloader over a byte-stream
// transport: discovery (INIT, GET, GVRP, GID), mass erase, paged flash read
// and write, and GO.
//
// An Engine runs one command at a time. Commands report progress and
// completion through callbacks; a Session wraps an Engine with connection
// management and a worker goroutine.
package bootloader

import (
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/stboot/pkg/stm32boot"
	"github.com/rs/zerolog"
)

// Engine is the bootloader command engine for a single connection.
//
// Engine is safe for concurrent use, but only one command runs at a time:
// a command issued while another is in flight fails with ErrBusy without
// touching the transport.
type Engine struct {
	conn   stm32boot.Conn
	config Config
	log    zerolog.Logger

	mu      sync.Mutex
	state   State
	busy    bool
	current stm32boot.Command
}

// New creates an Engine on conn.
//
// Example:
//
//	eng := bootloader.New(conn,
//	    bootloader.WithTimeout(time.Second),
//	    bootloader.WithSkipEmpty(32),
//	)
//	if err := eng.Init(); err != nil { ... }
func New(conn stm32boot.Conn, opts ...Option) *Engine {
	if conn == nil {
		panic("conn cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.normalize()

	return &Engine{
		conn:   conn,
		config: cfg,
		log:    cfg.Logger.With().Str("component", "bootloader").Logger(),
	}
}

// Config returns the effective configuration
func (e *Engine) Config() Config {
	return e.config
}

// State returns a snapshot of the discovery state and last results
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

// Busy reports whether a command is in flight, and which
func (e *Engine) Busy() (stm32boot.Command, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current, e.busy
}

// Reset forgets everything learned about the target. It is called when the
// connection is replaced; it does not touch the transport.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = State{}
}

// precondition is checked under the lock before a command starts
type precondition func(s *State) error

// run executes fn as command cmd: it enforces the single-flight rule and the
// preconditions, then reports a Completion. Nothing is written to the
// transport unless both checks pass.
func (e *Engine) run(cmd stm32boot.Command, check precondition, fn func() error) error {
	e.mu.Lock()
	if e.busy {
		running := e.current
		e.mu.Unlock()
		e.log.Warn().Str("command", cmd.Name).Str("running", running.Name).Msg("rejected: busy")
		return ErrBusy
	}
	if check != nil {
		if err := check(&e.state); err != nil {
			e.mu.Unlock()
			e.log.Warn().Err(err).Str("command", cmd.Name).Msg("rejected")
			e.complete(cmd, err, 0)
			return err
		}
	}
	e.busy = true
	e.current = cmd
	e.mu.Unlock()

	start := time.Now()
	e.log.Debug().Str("command", cmd.Name).Msg("start")

	err := fn()

	e.mu.Lock()
	e.busy = false
	e.current = stm32boot.Command{}
	e.mu.Unlock()

	elapsed := time.Since(start)
	if err != nil {
		e.log.Error().Err(err).Str("command", cmd.Name).Dur("elapsed", elapsed).Msg("failed")
	} else {
		e.log.Info().Str("command", cmd.Name).Dur("elapsed", elapsed).Msg("done")
	}
	e.complete(cmd, err, elapsed)
	return err
}

func (e *Engine) complete(cmd stm32boot.Command, err error, elapsed time.Duration) {
	if e.config.CompletionCallback == nil {
		return
	}
	page, offset := failureLocation(err)
	e.config.CompletionCallback(Completion{
		Command: cmd,
		Err:     err,
		Page:    page,
		Offset:  offset,
		Elapsed: elapsed,
	})
}

func (e *Engine) progress(p Progress) {
	if e.config.ProgressCallback != nil {
		e.config.ProgressCallback(p)
	}
}

// requireStage builds a precondition on the discovery stage
func requireStage(cmd stm32boot.Command, stage Stage) precondition {
	return func(s *State) error {
		if s.Stage < stage {
			return &PreconditionError{Command: cmd, Need: stage.String()}
		}
		return nil
	}
}

// requireCommand builds a precondition on the stage and the GET ledger
func requireCommand(cmd stm32boot.Command, stage Stage) precondition {
	atStage := requireStage(cmd, stage)
	return func(s *State) error {
		if err := atStage(s); err != nil {
			return err
		}
		if !s.Commands.Contains(cmd.Opcode) {
			return &PreconditionError{Command: cmd, Need: fmt.Sprintf("opcode 0x%02X in GET reply", cmd.Opcode)}
		}
		return nil
	}
}

// send writes a frame, wrapping failures as fatal transport errors
func (e *Engine) send(cmd stm32boot.Command, page int, frame []byte) error {
	e.log.Trace().Str("command", cmd.Name).Hex("tx", frame).Msg("write")
	if _, err := e.conn.Write(frame); err != nil {
		return &TransportError{Command: cmd, Op: "write", Page: page, Err: err}
	}
	return nil
}

// ack waits for an acknowledgement, classifying the failure
func (e *Engine) ack(cmd stm32boot.Command, step string, page, offset int, timeout time.Duration) error {
	err := stm32boot.ExpectAck(e.conn, timeout)
	if err == nil {
		return nil
	}
	return e.replyError(cmd, step, page, offset, err)
}

// replyError wraps a failed read as a protocol or transport error
func (e *Engine) replyError(cmd stm32boot.Command, step string, page, offset int, err error) error {
	if stm32boot.IsReplyError(err) {
		e.log.Debug().Str("command", cmd.Name).Str("step", step).Str("reply", stm32boot.ReplyKind(err)).Msg("no ack")
		return &ProtocolError{Command: cmd, Step: step, Page: page, Offset: offset, Err: err}
	}
	return &TransportError{Command: cmd, Op: "read", Page: page, Err: err}
}

// sendCommand writes the opcode frame and waits for its acknowledgement
func (e *Engine) sendCommand(cmd stm32boot.Command, page int) error {
	if err := e.send(cmd, page, stm32boot.EncodeOpcode(cmd.Opcode)); err != nil {
		return err
	}
	return e.ack(cmd, "command", page, 0, e.config.Timeout)
}
