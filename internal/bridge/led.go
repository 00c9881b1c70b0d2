package bridge

import (
	"context"

	"github.com/banshee-data/codeshield-bridge/internal/board"
	"github.com/banshee-data/codeshield-bridge/internal/serialmux"
)

// maxPWM is the largest analog value sent to the board; 255 is reserved by the
// firmware.
const maxPWM = 254

func clampPWM(v int) int {
	switch {
	case v > maxPWM:
		return maxPWM
	case v < 0:
		return 0
	}
	return v
}

func clampDigital(v int) int {
	if v >= 1 {
		return 1
	}
	return 0
}

// selectLED resolves a client color selection into LED writes.
func (r *Router) selectLED(ctx context.Context, color board.Color, intensity int, pwm bool) error {
	mix, ok := board.LookupColor(color)
	if !ok {
		r.logf("unknown LED selection %d", int(color))
		return nil
	}

	if !mix.Composite() {
		return r.writeLED(ctx, mix.LED, intensity, pwm)
	}

	for _, led := range board.RGBOff {
		if err := r.writeLED(ctx, led, 0, false); err != nil {
			return err
		}
	}
	if intensity == 0 {
		return nil
	}
	for _, c := range mix.Components {
		if err := r.writeLED(ctx, c.LED, c.Value, pwm); err != nil {
			return err
		}
	}
	return nil
}

// writeLED sends one LED write. Once a servo command has been seen every write
// goes out as digital.
func (r *Router) writeLED(ctx context.Context, led board.Device, intensity int, pwm bool) error {
	if r.state.DigitalOnly() {
		pwm = false
	}

	var req serialmux.Request
	if pwm {
		intensity = clampPWM(intensity)
		req = serialmux.WriteCommand(led.Pin, board.Analog, intensity)
	} else {
		intensity = clampDigital(intensity)
		req = serialmux.WriteCommand(led.Pin, board.Digital, intensity)
	}

	reply, err := r.dev.Exchange(ctx, req)
	if err != nil {
		return err
	}
	if !reply.IsAck() {
		r.logf("writeLED unexpected reply from board: %q for pin %d at intensity %d", reply.Raw, led.Pin, intensity)
	}
	return nil
}
