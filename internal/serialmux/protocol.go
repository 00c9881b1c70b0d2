package serialmux

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/codeshield-bridge/internal/board"
)

// Write types understood by the board firmware besides analog/digital.
const (
	TypeTone  board.PinType = "piezo"
	TypeServo board.PinType = "servo"
)

// ErrNoPinValue is returned when a reply to a read carries no pinValue object.
var ErrNoPinValue = errors.New("reply has no pinValue")

// Request is one line sent to the board. Exactly one of the fields is set.
type Request struct {
	Mode  *ModeRequest  `json:"mode,omitempty"`
	Write *WriteRequest `json:"write,omitempty"`
	Read  *ReadRequest  `json:"read,omitempty"`
}

type ModeRequest struct {
	Mode board.Direction `json:"mode"`
	Pin  int             `json:"pin"`
}

type WriteRequest struct {
	Pin      int           `json:"pin"`
	Type     board.PinType `json:"type"`
	Value    int           `json:"value"`
	Duration *int          `json:"duration,omitempty"`
}

type ReadRequest struct {
	Pin     *int          `json:"pin,omitempty"`
	Type    board.PinType `json:"type,omitempty"`
	Encoder *int          `json:"encoder,omitempty"`
}

// ModeCommand configures a pin as input or output.
func ModeCommand(pin int, dir board.Direction) Request {
	return Request{Mode: &ModeRequest{Mode: dir, Pin: pin}}
}

// WriteCommand drives a pin.
func WriteCommand(pin int, typ board.PinType, value int) Request {
	return Request{Write: &WriteRequest{Pin: pin, Type: typ, Value: value}}
}

// ToneCommand plays a tone of freq Hz for duration ms on the piezo pin.
func ToneCommand(pin, freq, duration int) Request {
	return Request{Write: &WriteRequest{Pin: pin, Type: TypeTone, Value: freq, Duration: &duration}}
}

// ReadCommand samples a pin.
func ReadCommand(pin int, typ board.PinType) Request {
	return Request{Read: &ReadRequest{Pin: &pin, Type: typ}}
}

// EncoderCommand reads the quadrature encoder channel.
func EncoderCommand(channel int) Request {
	return Request{Read: &ReadRequest{Encoder: &channel}}
}

// SensorCommand builds the read request for a polled sensor.
func SensorCommand(d board.Device) Request {
	if d.Encoder {
		return EncoderCommand(0)
	}
	return ReadCommand(d.Pin, d.Type)
}

// Marshal encodes the request as a single JSON line without the terminator.
func (r Request) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

func (r Request) String() string {
	b, err := r.Marshal()
	if err != nil {
		return fmt.Sprintf("invalid request: %v", err)
	}
	return string(b)
}

// PinValue is a sensor report from the board.
type PinValue struct {
	Pin   int    `json:"pin"`
	Value int    `json:"value"`
	Type  string `json:"type"`
}

// Reply is one line received from the board.
type Reply struct {
	// Raw is the line with the CR/LF terminator removed.
	Raw string

	members  map[string]json.RawMessage
	parseErr error
}

// ParseReply decodes a reply line. Lines that are not JSON objects still produce a
// Reply so callers can log them; IsAck and IsReady report false for those.
func ParseReply(line string) Reply {
	r := Reply{Raw: strings.TrimRight(line, "\r\n")}
	if err := json.Unmarshal([]byte(r.Raw), &r.members); err != nil {
		r.parseErr = err
	} else if r.members == nil {
		r.parseErr = errors.New("reply is null")
	}
	return r
}

// IsAck reports whether the reply is the empty acknowledgment object.
func (r Reply) IsAck() bool {
	return r.parseErr == nil && len(r.members) == 0
}

// IsReady reports whether the reply is the one-time {"status":"ready"} handshake.
func (r Reply) IsReady() bool {
	if r.parseErr != nil {
		return false
	}
	raw, ok := r.members["status"]
	if !ok {
		return false
	}
	var status string
	return json.Unmarshal(raw, &status) == nil && status == "ready"
}

// PinValue extracts the pinValue report.
func (r Reply) PinValue() (PinValue, error) {
	if r.parseErr != nil {
		return PinValue{}, fmt.Errorf("failed to parse reply %q: %w", r.Raw, r.parseErr)
	}
	raw, ok := r.members["pinValue"]
	if !ok {
		return PinValue{}, fmt.Errorf("%w: %q", ErrNoPinValue, r.Raw)
	}
	var pv PinValue
	if err := json.Unmarshal(raw, &pv); err != nil {
		return PinValue{}, fmt.Errorf("failed to decode pinValue %q: %w", r.Raw, err)
	}
	return pv, nil
}

func (r Reply) String() string { return r.Raw }
