// Package bridge translates between the Scratch client protocol and the
// CodeShield board protocol. A Session owns one client connection and the board
// for its whole lifetime; every fatal error ends it and closes both.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/codeshield-bridge/internal/monitoring"
)

// DefaultPort is the TCP port the Scratch extension connects to.
const DefaultPort = 50207

// DeviceCloser is a Device the session can shut down.
type DeviceCloser interface {
	Device
	io.Closer
}

// MessageError wraps a failure to translate or dispatch one client message.
// It always ends the session.
type MessageError struct {
	Line string
	Err  error
}

func (e *MessageError) Error() string {
	return fmt.Sprintf("failed to handle message %q: %v", e.Line, e.Err)
}

func (e *MessageError) Unwrap() error { return e.Err }

// SessionOptions configures a Session.
type SessionOptions struct {
	// Port is advertised in the policy document.
	Port int
	// History, if set, records readings and commands for each session.
	History History
}

// Session drives one client connection against the board.
type Session struct {
	ID string

	client io.ReadWriteCloser
	dev    DeviceCloser
	state  *State
	init   *InitSequencer
	router *Router
	frames *FrameReader
	policy []byte
	record SessionRecord
	logf   func(format string, v ...interface{})

	closeOnce sync.Once
}

// NewSession wires a session. Nothing is sent until Run.
func NewSession(client io.ReadWriteCloser, dev DeviceCloser, opts SessionOptions) *Session {
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	id := uuid.NewString()
	logf := monitoring.WithPrefix("session " + id[:8])
	state := NewState()

	var record SessionRecord
	if opts.History != nil {
		var err error
		if record, err = opts.History.BeginSession(id); err != nil {
			logf("failed to start session history, continuing without: %v", err)
			record = nil
		}
	}

	return &Session{
		ID:     id,
		client: client,
		dev:    dev,
		state:  state,
		init:   NewInitSequencer(dev),
		router: NewRouter(dev, state, client, record, logf),
		frames: NewFrameReader(client),
		policy: PolicyDocument(opts.Port),
		record: record,
		logf:   logf,
	}
}

// State returns the live session state.
func (s *Session) State() *State { return s.state }

// InitStatus returns the init sequencer state.
func (s *Session) InitStatus() InitStatus { return s.init.Status() }

// Run initialises the board and serves client frames until the client goes
// away, a fatal error occurs or ctx is cancelled. Both transports are closed
// before Run returns. A client disconnect returns nil.
func (s *Session) Run(ctx context.Context) (err error) {
	defer func() {
		s.shutdown()
		s.endRecord(err)
	}()
	stop := context.AfterFunc(ctx, s.shutdown)
	defer stop()

	n, err := s.init.Run(ctx)
	if err != nil {
		return s.exitErr(ctx, fmt.Errorf("failed to initialize board: %w", err))
	}
	s.logf("initialized %d steps", n)

	for {
		fr, err := s.frames.Next()
		if errors.Is(err, io.EOF) {
			s.logf("client disconnected")
			return nil
		}
		if err != nil {
			return s.exitErr(ctx, fmt.Errorf("failed to read from client: %w", err))
		}

		switch fr.Kind {
		case HandshakeFrame:
			if _, err := s.client.Write(s.policy); err != nil {
				return s.exitErr(ctx, fmt.Errorf("failed to send policy: %w", err))
			}
			s.logf("sent policy document")

		case MessageFrame:
			err := s.router.Handle(ctx, fr.Text)
			if errors.Is(err, ErrUnknownOperation) {
				s.logf("%v", err)
				continue
			}
			if err != nil {
				return s.exitErr(ctx, &MessageError{Line: fr.Text, Err: err})
			}
		}
	}
}

// exitErr prefers the cancellation cause once shutdown has been requested, since
// closing the transports makes any in-flight read fail.
func (s *Session) exitErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Session) endRecord(err error) {
	if s.record == nil {
		return
	}
	reason := "client disconnected"
	if err != nil {
		reason = err.Error()
	}
	if err := s.record.End(reason); err != nil {
		s.logf("failed to close session history: %v", err)
	}
}

func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		if err := s.dev.Close(); err != nil {
			s.logf("failed to close board connection: %v", err)
		}
		if err := s.client.Close(); err != nil {
			s.logf("failed to close client connection: %v", err)
		}
	})
}
