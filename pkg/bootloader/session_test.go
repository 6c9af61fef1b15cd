// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/stboot/pkg/stm32boot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SessionSuite struct {
	suite.Suite

	mu      sync.Mutex
	targets []*simTarget
	fail    int // Dial attempts to fail before succeeding
	session *Session
}

func (s *SessionSuite) dial() (stm32boot.Conn, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return nil, "", errors.New("port busy")
	}
	t := newSimTarget(4)
	s.targets = append(s.targets, t)
	return t, "sim", nil
}

func (s *SessionSuite) SetupTest() {
	s.targets = nil
	s.fail = 0
	s.session = NewSession(s.dial,
		WithTimeout(50*time.Millisecond),
		WithPacing(0),
		WithPageCount(4),
	)
	s.session.SetBackoff(time.Millisecond, 5*time.Millisecond)
}

func (s *SessionSuite) TearDownTest() {
	s.session.Close()
}

func (s *SessionSuite) TestRunWithoutConnection() {
	_, err := s.session.Run(context.Background(), ProbePlan(false))
	s.ErrorIs(err, ErrNotConnected)
}

func (s *SessionSuite) TestProbe() {
	s.Require().NoError(s.session.Connect())
	s.Equal(Connected, s.session.State())
	s.Equal("sim", s.session.ConnInfo())

	report, err := s.session.Run(context.Background(), ProbePlan(true))
	s.Require().NoError(err)
	s.Equal(StageIdentified, report.State.Stage)
	s.NotNil(report.State.Protection)

	stats := s.session.Statistics()
	s.Equal(uint64(4), stats.Commands)
	s.Equal(uint64(4), stats.Succeeded)
}

func (s *SessionSuite) TestEvents() {
	s.Require().NoError(s.session.Connect())

	out := filepath.Join(s.T().TempDir(), "dump.bin")
	_, err := s.session.Run(context.Background(), ReadPlan(out, false))
	s.Require().NoError(err)

	var completions []string
	progress := 0
	for {
		select {
		case ev := <-s.session.Events():
			switch ev := ev.(type) {
			case Completion:
				completions = append(completions, ev.Command.Name)
			case Progress:
				progress++
			}
			continue
		default:
		}
		break
	}

	s.Equal([]string{"INIT", "GET", "GID", "READ"}, completions)
	s.Positive(progress)

	stats := s.session.Statistics()
	s.Equal(uint64(4*stm32boot.PageSize), stats.BytesRead)
	s.Equal(uint64(4), stats.PagesRead)
}

func (s *SessionSuite) TestConnectReplacesEngine() {
	s.Require().NoError(s.session.Connect())
	_, err := s.session.Run(context.Background(), ProbePlan(false))
	s.Require().NoError(err)

	s.Require().NoError(s.session.Connect())
	s.Equal(StageUnsynced, s.session.Engine().State().Stage)
	s.True(s.targets[0].closed)
}

func (s *SessionSuite) TestReconnectBackoff() {
	s.Require().NoError(s.session.Connect())
	s.fail = 2

	s.Require().NoError(s.session.Reconnect(context.Background()))
	s.Equal(Connected, s.session.State())
	s.Len(s.targets, 2)
	s.True(s.targets[0].closed)
}

func (s *SessionSuite) TestReconnectCancelled() {
	s.fail = 1000
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.session.Reconnect(ctx)
	s.ErrorIs(err, context.DeadlineExceeded)
	s.Equal(Disconnected, s.session.State())
}

func (s *SessionSuite) TestTransportFailureDisconnects() {
	s.Require().NoError(s.session.Connect())
	s.targets[0].mu.Lock()
	s.targets[0].writeErr = errors.New("unplugged")
	s.targets[0].mu.Unlock()

	_, err := s.session.Run(context.Background(), ProbePlan(false))
	s.True(IsFatal(err))
	s.Equal(Disconnected, s.session.State())
}

func (s *SessionSuite) TestClose() {
	s.Require().NoError(s.session.Connect())
	s.Require().NoError(s.session.Close())

	s.Equal(Closed, s.session.State())
	s.True(s.targets[0].closed)

	r := <-s.session.Submit(ProbePlan(false))
	s.ErrorIs(r.Err, ErrSessionClosed)
	s.ErrorIs(s.session.Connect(), ErrSessionClosed)
}

func (s *SessionSuite) TestCloseResetsEngineState() {
	s.Require().NoError(s.session.Connect())
	_, err := s.session.Run(context.Background(), ProbePlan(false))
	s.Require().NoError(err)
	s.Require().Equal(StageIdentified, s.session.Engine().State().Stage)

	s.Require().NoError(s.session.Close())

	st := s.session.Engine().State()
	s.Equal(StageUnsynced, st.Stage)
	s.False(st.Synced())
	s.Nil(st.Device)
	s.Zero(st.Commands.Len())
}

func (s *SessionSuite) TestTransportFailureResetsEngineState() {
	s.Require().NoError(s.session.Connect())
	_, err := s.session.Run(context.Background(), ProbePlan(false))
	s.Require().NoError(err)

	s.targets[0].mu.Lock()
	s.targets[0].writeErr = errors.New("unplugged")
	s.targets[0].mu.Unlock()

	_, err = s.session.Run(context.Background(), ProbePlan(false))
	s.Require().True(IsFatal(err))

	st := s.session.Engine().State()
	s.Equal(StageUnsynced, st.Stage)
	s.Nil(st.Device)
	s.Zero(st.Commands.Len())
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func TestSessionCloseAbortsInFlight(t *testing.T) {
	target := newSimTarget(4)
	target.mute = true
	s := NewSession(func() (stm32boot.Conn, string, error) { return target, "sim", nil },
		WithTimeout(5*time.Second))
	require.NoError(t, s.Connect())

	result := s.Submit(ProbePlan(false))
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	require.NoError(t, s.Close())

	r := <-result
	assert.Error(t, r.Err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
