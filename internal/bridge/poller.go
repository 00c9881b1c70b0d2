package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/banshee-data/codeshield-bridge/internal/board"
	"github.com/banshee-data/codeshield-bridge/internal/serialmux"
)

// Device is the board side of the bridge: one request, one reply.
type Device interface {
	Exchange(ctx context.Context, req serialmux.Request) (serialmux.Reply, error)
}

// Report is a sensor value sent to the client.
type Report struct {
	Key   string
	Value int
}

// MarshalLine encodes the report as {"method":"update","params":[[key,value]]}
// followed by a newline.
func (r Report) MarshalLine() ([]byte, error) {
	msg := struct {
		Method string          `json:"method"`
		Params [][]interface{} `json:"params"`
	}{
		Method: "update",
		Params: [][]interface{}{{r.Key, r.Value}},
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Poller turns client polls into at most one board read per pollDivisor polls,
// cycling through the sensors in board order.
type Poller struct {
	dev     Device
	state   *State
	sensors []board.Device
	logf    func(format string, v ...interface{})
}

// NewPoller builds a poller over the CodeShield sensor list.
func NewPoller(dev Device, state *State, logf func(string, ...interface{})) *Poller {
	return &Poller{
		dev:     dev,
		state:   state,
		sensors: board.Sensors,
		logf:    logf,
	}
}

// Poll handles one client poll. It returns nil without touching the board when
// the throttle swallows the poll, and nil when the board reports a pin with no
// client name. Transport failures and replies without a pinValue are errors.
func (p *Poller) Poll(ctx context.Context) (*Report, error) {
	slot, triggered := p.state.tick(len(p.sensors))
	if !triggered {
		return nil, nil
	}

	sensor := p.sensors[slot]
	reply, err := p.dev.Exchange(ctx, serialmux.SensorCommand(sensor))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sensor.Name, err)
	}

	pv, err := reply.PinValue()
	if err != nil {
		return nil, fmt.Errorf("failed to translate %s reading: %w", sensor.Name, err)
	}
	if !p.state.record(pv.Pin, pv.Value) {
		return nil, fmt.Errorf("board reported out of range pin %d", pv.Pin)
	}

	key, ok := board.ReportKey(pv.Pin)
	if !ok {
		p.logf("unknown pin value: %d", pv.Pin)
		return nil, nil
	}
	return &Report{Key: key, Value: pv.Value}, nil
}
