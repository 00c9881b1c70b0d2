package serialmux

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/codeshield-bridge/internal/board"
	"github.com/banshee-data/codeshield-bridge/internal/timeutil"
)

// Simulator emulates the CodeShield firmware so the bridge can run without
// hardware (-dev) and so sessions can be exercised end to end in tests. It prints
// the ready handshake on creation, acknowledges mode and write requests with {}
// and answers reads with pinValue reports.
type Simulator struct {
	*TestableSerialPort

	clock timeutil.Clock
	start time.Time

	mu      sync.Mutex
	modes   map[int]board.Direction
	outputs map[int]int
	inputs  map[int]int
	encoder int
}

// NewSimulator creates a simulated board. Analog inputs follow slow sine waves
// derived from clock unless pinned with SetInput.
func NewSimulator(clock timeutil.Clock) *Simulator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	s := &Simulator{
		TestableSerialPort: NewTestableSerialPort(),
		clock:              clock,
		start:              clock.Now(),
		modes:              make(map[int]board.Direction),
		outputs:            make(map[int]int),
		inputs:             make(map[int]int),
	}
	s.BlockReads = true
	s.Responder = s.respond
	s.AddReadData([]byte("{\"status\":\"ready\"}\r\n"))
	return s
}

// SetInput pins the value reported for an input pin.
func (s *Simulator) SetInput(pin, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs[pin] = value
}

// Output returns the last value written to a pin.
func (s *Simulator) Output(pin int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.outputs[pin]
	return v, ok
}

// Mode returns the configured mode of a pin.
func (s *Simulator) Mode(pin int) (board.Direction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.modes[pin]
	return d, ok
}

func (s *Simulator) respond(line []byte) []byte {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return []byte(fmt.Sprintf("{\"error\":%q}\n", err.Error()))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case req.Mode != nil:
		s.modes[req.Mode.Pin] = req.Mode.Mode
		return []byte("{}\n")
	case req.Write != nil:
		s.outputs[req.Write.Pin] = req.Write.Value
		return []byte("{}\n")
	case req.Read != nil && req.Read.Encoder != nil:
		s.encoder++
		return s.pinValue(board.PinEncoderA, s.encoder, board.Digital)
	case req.Read != nil && req.Read.Pin != nil:
		pin := *req.Read.Pin
		if pin < 0 || pin >= board.MaxPins {
			return []byte(fmt.Sprintf("{\"error\":\"no such pin %d\"}\n", pin))
		}
		return s.pinValue(pin, s.sample(pin, req.Read.Type), req.Read.Type)
	}
	return []byte("{\"error\":\"unknown request\"}\n")
}

func (s *Simulator) sample(pin int, typ board.PinType) int {
	if v, ok := s.inputs[pin]; ok {
		return v
	}
	if v, ok := s.outputs[pin]; ok && s.modes[pin] == board.Output {
		return v
	}
	elapsed := s.clock.Now().Sub(s.start).Seconds()
	if typ == board.Digital {
		// toggles every pin+1 seconds
		return int(elapsed/float64(pin+1)) % 2
	}
	period := 5.0 + float64(pin)
	return int(511.5 + 511.5*math.Sin(2*math.Pi*elapsed/period))
}

func (s *Simulator) pinValue(pin, value int, typ board.PinType) []byte {
	b, _ := json.Marshal(map[string]PinValue{"pinValue": {Pin: pin, Value: value, Type: string(typ)}})
	return append(b, '\n')
}
