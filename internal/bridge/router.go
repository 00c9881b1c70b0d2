package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/codeshield-bridge/internal/board"
	"github.com/banshee-data/codeshield-bridge/internal/serialmux"
)

// Client methods.
const (
	MethodPoll             = "poll"
	MethodLEDSelect        = "LEDSelect"
	MethodLEDDigitalSelect = "LEDDigitalSelect"
	MethodPiezoTone        = "piezoTone"
	MethodServoDegrees     = "servoDegrees"
	MethodRelayState       = "relayState"
)

var (
	// ErrUnknownOperation is returned for a method the bridge does not know. It
	// is the only Handle error a session survives.
	ErrUnknownOperation = errors.New("unknown operation")
	ErrMissingParam     = errors.New("missing parameter")
	ErrMissingMethod    = errors.New("message has no method")
)

// Recorder receives a copy of the traffic for the history store. Failures are
// logged and never interrupt the session.
type Recorder interface {
	RecordCommand(method string, params []int) error
	RecordReading(key string, pin, value int) error
}

// SessionRecord is a Recorder bound to one session.
type SessionRecord interface {
	Recorder
	End(reason string) error
}

// History opens a record for each new session.
type History interface {
	BeginSession(id string) (SessionRecord, error)
}

// HistoryFunc adapts a function to History.
type HistoryFunc func(id string) (SessionRecord, error)

func (f HistoryFunc) BeginSession(id string) (SessionRecord, error) { return f(id) }

// Command is a parsed client message.
type Command struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// ParseCommand decodes one client line.
func ParseCommand(line string) (Command, error) {
	var cmd Command
	if err := json.Unmarshal([]byte(line), &cmd); err != nil {
		return Command{}, fmt.Errorf("failed to parse message: %w", err)
	}
	if cmd.Method == "" {
		return Command{}, ErrMissingMethod
	}
	return cmd, nil
}

// Int returns parameter i as an integer. Numbers are truncated toward zero and
// numeric strings are accepted, since block inputs are sometimes sent quoted.
func (c Command) Int(i int) (int, error) {
	if i >= len(c.Params) {
		return 0, fmt.Errorf("%w %d for %s", ErrMissingParam, i, c.Method)
	}
	raw := c.Params[i]

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return truncate(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %d for %s: %w", i, c.Method, err)
		}
		return truncate(f)
	}
	return 0, fmt.Errorf("parameter %d for %s is not a number: %s", i, c.Method, raw)
}

func truncate(f float64) (int, error) {
	if math.IsNaN(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("parameter out of range: %v", f)
	}
	return int(f), nil
}

// ints decodes the first n parameters.
func (c Command) ints(n int) ([]int, error) {
	out := make([]int, n)
	for i := range out {
		v, err := c.Int(i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Router translates client commands into board requests and sends sensor
// reports back to the client.
type Router struct {
	dev      Device
	state    *State
	poller   *Poller
	client   io.Writer
	recorder Recorder
	logf     func(format string, v ...interface{})
}

// NewRouter wires a router for one session. recorder may be nil.
func NewRouter(dev Device, state *State, client io.Writer, recorder Recorder, logf func(string, ...interface{})) *Router {
	return &Router{
		dev:      dev,
		state:    state,
		poller:   NewPoller(dev, state, logf),
		client:   client,
		recorder: recorder,
		logf:     logf,
	}
}

// Handle processes one client line. Any returned error other than
// ErrUnknownOperation ends the session.
func (r *Router) Handle(ctx context.Context, line string) error {
	cmd, err := ParseCommand(line)
	if err != nil {
		return err
	}

	if cmd.Method == MethodPoll {
		return r.poll(ctx)
	}

	var params []int
	switch cmd.Method {
	case MethodLEDSelect, MethodLEDDigitalSelect:
		if params, err = cmd.ints(2); err != nil {
			return err
		}
		pwm := cmd.Method == MethodLEDSelect
		if err := r.selectLED(ctx, board.Color(params[0]), params[1], pwm); err != nil {
			return err
		}

	case MethodPiezoTone:
		if params, err = cmd.ints(2); err != nil {
			return err
		}
		if err := r.actuate(ctx, serialmux.ToneCommand(board.PinPiezo, params[0], params[1])); err != nil {
			return err
		}

	case MethodServoDegrees:
		if params, err = cmd.ints(1); err != nil {
			return err
		}
		// the servo library breaks PWM on the RGB pins
		r.state.latchDigitalOnly()
		if err := r.actuate(ctx, serialmux.WriteCommand(board.PinServo, serialmux.TypeServo, params[0])); err != nil {
			return err
		}

	case MethodRelayState:
		if params, err = cmd.ints(1); err != nil {
			return err
		}
		state := 0
		if params[0] != 0 {
			state = 1
		}
		if err := r.actuate(ctx, serialmux.WriteCommand(board.PinRelay, board.Digital, state)); err != nil {
			return err
		}

	default:
		return fmt.Errorf("%w %q", ErrUnknownOperation, cmd.Method)
	}

	if r.recorder != nil {
		if err := r.recorder.RecordCommand(cmd.Method, params); err != nil {
			r.logf("failed to record command %s: %v", cmd.Method, err)
		}
	}
	return nil
}

func (r *Router) poll(ctx context.Context) error {
	report, err := r.poller.Poll(ctx)
	if err != nil || report == nil {
		return err
	}

	line, err := report.MarshalLine()
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if _, err := r.client.Write(line); err != nil {
		return fmt.Errorf("failed to send report: %w", err)
	}

	if r.recorder != nil {
		pin := -1
		for _, s := range board.Sensors {
			if s.ReportKey == report.Key {
				pin = s.Pin
			}
		}
		if err := r.recorder.RecordReading(report.Key, pin, report.Value); err != nil {
			r.logf("failed to record reading %s: %v", report.Key, err)
		}
	}
	return nil
}

// actuate sends a single actuator write and logs anything but an empty ack.
func (r *Router) actuate(ctx context.Context, req serialmux.Request) error {
	reply, err := r.dev.Exchange(ctx, req)
	if err != nil {
		return err
	}
	if !reply.IsAck() {
		r.logf("unexpected reply from board: %q to %s", reply.Raw, req)
	}
	return nil
}
