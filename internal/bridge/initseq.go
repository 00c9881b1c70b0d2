package bridge

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/banshee-data/codeshield-bridge/internal/board"
	"github.com/banshee-data/codeshield-bridge/internal/serialmux"
)

// InitStatus is the state of the init sequencer.
type InitStatus int

const (
	InitPending InitStatus = iota
	InitReady
	InitFailed
)

func (s InitStatus) String() string {
	switch s {
	case InitPending:
		return "init"
	case InitReady:
		return "ready"
	case InitFailed:
		return "failed"
	default:
		return fmt.Sprintf("InitStatus(%d)", int(s))
	}
}

// InitError reports the first init step the board did not acknowledge.
type InitError struct {
	Step    int
	Request serialmux.Request
	Reply   serialmux.Reply
}

func (e *InitError) Error() string {
	return fmt.Sprintf("init step %d %s: unexpected reply %q", e.Step, e.Request, e.Reply.Raw)
}

// InitSteps derives the board setup requests from the device list: inputs are
// configured (and pulled high where required), outputs are configured and
// driven low.
func InitSteps(devices []board.Device) []serialmux.Request {
	var steps []serialmux.Request
	for _, d := range devices {
		steps = append(steps, serialmux.ModeCommand(d.Pin, d.Direction))
		switch {
		case d.Direction == board.Input && d.PullUp:
			steps = append(steps, serialmux.WriteCommand(d.Pin, board.Digital, 1))
		case d.Direction == board.Output:
			steps = append(steps, serialmux.WriteCommand(d.Pin, board.Digital, 0))
		}
	}
	return steps
}

// InitSequencer sends the setup requests in order. Every reply must be the empty
// acknowledgment; the first one that is not stops the sequence for good.
type InitSequencer struct {
	dev      Device
	steps    []serialmux.Request
	status   atomic.Int32
	executed int
}

// NewInitSequencer returns a sequencer for the CodeShield init plan.
func NewInitSequencer(dev Device) *InitSequencer {
	return &InitSequencer{dev: dev, steps: InitSteps(board.InitOrder)}
}

// Run executes the steps and returns how many were sent.
func (s *InitSequencer) Run(ctx context.Context) (int, error) {
	if st := s.Status(); st != InitPending {
		return s.executed, fmt.Errorf("init sequencer already %s", st)
	}

	for i, req := range s.steps {
		s.executed = i + 1
		reply, err := s.dev.Exchange(ctx, req)
		if err != nil {
			s.status.Store(int32(InitFailed))
			return s.executed, fmt.Errorf("init step %d %s: %w", s.executed, req, err)
		}
		if !reply.IsAck() {
			s.status.Store(int32(InitFailed))
			return s.executed, &InitError{Step: s.executed, Request: req, Reply: reply}
		}
	}

	s.status.Store(int32(InitReady))
	return s.executed, nil
}

// Status returns the current sequencer state. It may be called from any
// goroutine.
func (s *InitSequencer) Status() InitStatus { return InitStatus(s.status.Load()) }
