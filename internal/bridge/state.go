package bridge

import (
	"sync"

	"github.com/banshee-data/codeshield-bridge/internal/board"
)

// pollDivisor is how many client polls make one board read.
const pollDivisor = 3

// State is the per-session mutable state: the poll throttle, the round-robin
// sensor index, the last reading per pin and the digital-only LED latch.
//
// The session goroutine is the only writer. The mutex exists so the admin routes
// can take a consistent snapshot while the session runs.
type State struct {
	mu sync.Mutex

	throttle    int
	index       int
	readings    [board.MaxPins]int
	seen        [board.MaxPins]bool
	digitalOnly bool

	polls     uint64
	triggered uint64
}

// NewState returns the state for a fresh session.
func NewState() *State {
	return &State{}
}

// tick counts one client poll. It reports whether the poll should reach the
// board and, if so, which sensor slot to read. The index advances modulo
// sensors on every triggered poll.
func (s *State) tick(sensors int) (slot int, triggered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.polls++
	s.throttle++
	if s.throttle < pollDivisor {
		return 0, false
	}
	s.throttle = 0
	s.triggered++

	slot = s.index
	s.index = (s.index + 1) % sensors
	return slot, true
}

// record stores the latest value for pin. The cache is informational only;
// reports are sent whether or not the value changed.
func (s *State) record(pin, value int) bool {
	if pin < 0 || pin >= board.MaxPins {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[pin] = value
	s.seen[pin] = true
	return true
}

// LastReading returns the most recent value seen for pin.
func (s *State) LastReading(pin int) (int, bool) {
	if pin < 0 || pin >= board.MaxPins {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readings[pin], s.seen[pin]
}

// latchDigitalOnly forces every later LED write to digital mode. It is never
// cleared for the rest of the session.
func (s *State) latchDigitalOnly() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digitalOnly = true
}

// DigitalOnly reports whether the servo latch is set.
func (s *State) DigitalOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.digitalOnly
}

// Snapshot is a point-in-time copy of State for diagnostics.
type Snapshot struct {
	Throttle    int            `json:"throttle"`
	Index       int            `json:"sensor_index"`
	DigitalOnly bool           `json:"led_digital_only"`
	Polls       uint64         `json:"polls"`
	Triggered   uint64         `json:"triggered_polls"`
	Readings    map[string]int `json:"readings"`
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Throttle:    s.throttle,
		Index:       s.index,
		DigitalOnly: s.digitalOnly,
		Polls:       s.polls,
		Triggered:   s.triggered,
		Readings:    make(map[string]int),
	}
	for pin, ok := range s.seen {
		if !ok {
			continue
		}
		key, known := board.ReportKey(pin)
		if !known {
			continue
		}
		snap.Readings[key] = s.readings[pin]
	}
	return snap
}
