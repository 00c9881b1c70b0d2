package serialmux

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/codeshield-bridge/internal/board"
	"github.com/banshee-data/codeshield-bridge/internal/timeutil"
)

func TestSimulator(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	sim := NewSimulator(clock)
	conn := NewConn(sim)
	defer conn.Close()
	ctx := context.Background()

	require.NoError(t, conn.AwaitReady())

	t.Run("acks mode and write", func(t *testing.T) {
		r, err := conn.Exchange(ctx, ModeCommand(board.PinRGBRed, board.Output))
		require.NoError(t, err)
		assert.True(t, r.IsAck())

		r, err = conn.Exchange(ctx, WriteCommand(board.PinRGBRed, board.Analog, 200))
		require.NoError(t, err)
		assert.True(t, r.IsAck())

		v, ok := sim.Output(board.PinRGBRed)
		assert.True(t, ok)
		assert.Equal(t, 200, v)
		d, _ := sim.Mode(board.PinRGBRed)
		assert.Equal(t, board.Output, d)
	})

	t.Run("pinned input", func(t *testing.T) {
		sim.SetInput(board.PinThermistor, 321)
		r, err := conn.Exchange(ctx, SensorCommand(board.Thermistor))
		require.NoError(t, err)
		pv, err := r.PinValue()
		require.NoError(t, err)
		assert.Equal(t, PinValue{Pin: 4, Value: 321, Type: "analog"}, pv)
	})

	t.Run("analog input in range", func(t *testing.T) {
		clock.Advance(1700 * time.Millisecond)
		r, err := conn.Exchange(ctx, SensorCommand(board.Potentiometer))
		require.NoError(t, err)
		pv, err := r.PinValue()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, pv.Value, 0)
		assert.LessOrEqual(t, pv.Value, 1023)
	})

	t.Run("encoder counts", func(t *testing.T) {
		var last int
		for i := 0; i < 3; i++ {
			r, err := conn.Exchange(ctx, SensorCommand(board.EncoderA))
			require.NoError(t, err)
			pv, err := r.PinValue()
			require.NoError(t, err)
			assert.Equal(t, board.PinEncoderA, pv.Pin)
			assert.Greater(t, pv.Value, last)
			last = pv.Value
		}
	})

	t.Run("digital pin zero", func(t *testing.T) {
		r, err := conn.Exchange(ctx, ReadCommand(0, board.Digital))
		require.NoError(t, err)
		pv, err := r.PinValue()
		require.NoError(t, err)
		assert.Contains(t, []int{0, 1}, pv.Value)
	})

	t.Run("pin outside board", func(t *testing.T) {
		for _, pin := range []int{-1, board.MaxPins, 40} {
			r, err := conn.Exchange(ctx, ReadCommand(pin, board.Digital))
			require.NoError(t, err)
			assert.Contains(t, r.Raw, "no such pin")
			_, err = r.PinValue()
			assert.ErrorIs(t, err, ErrNoPinValue)
		}
	})

	t.Run("garbage request", func(t *testing.T) {
		r, err := conn.ExchangeRaw(ctx, "not json")
		require.NoError(t, err)
		assert.False(t, r.IsAck())
		assert.Contains(t, r.Raw, "error")
	})

	lines := sim.WrittenLines()
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t, `{"mode":{"mode":"output","pin":11}}`, lines[0])
	assert.Equal(t, `{"write":{"pin":11,"type":"analog","value":200}}`, lines[1])
	assert.Equal(t, "not json", lines[len(lines)-1])
}
