package bridge

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/codeshield-bridge/internal/serialmux"
	"github.com/banshee-data/codeshield-bridge/internal/testutil"
)

type fakeRecorder struct {
	commands []string
	params   [][]int
	readings []Report
	pins     []int
	err      error
}

func (r *fakeRecorder) RecordCommand(method string, params []int) error {
	r.commands = append(r.commands, method)
	r.params = append(r.params, params)
	return r.err
}

func (r *fakeRecorder) RecordReading(key string, pin, value int) error {
	r.readings = append(r.readings, Report{Key: key, Value: value})
	r.pins = append(r.pins, pin)
	return r.err
}

type routerFixture struct {
	dev    *fakeDevice
	state  *State
	client *bytes.Buffer
	rec    *fakeRecorder
	logs   *testutil.LogSink
	router *Router
}

func newRouterFixture() *routerFixture {
	f := &routerFixture{
		dev:    &fakeDevice{},
		state:  NewState(),
		client: &bytes.Buffer{},
		rec:    &fakeRecorder{},
		logs:   &testutil.LogSink{},
	}
	f.router = NewRouter(f.dev, f.state, f.client, f.rec, f.logs.Logf)
	return f
}

func (f *routerFixture) handle(t *testing.T, lines ...string) {
	t.Helper()
	for _, l := range lines {
		require.NoError(t, f.router.Handle(context.Background(), l), l)
	}
}

func (f *routerFixture) assertSent(t *testing.T, want ...string) {
	t.Helper()
	if diff := cmp.Diff(want, f.dev.sent()); diff != "" {
		t.Errorf("device requests mismatch (-want +got):\n%s", diff)
	}
}

func TestIntensityClamping(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"pwm above range", `{"method":"LEDSelect","params":[4,255]}`, writeLine(6, "analog", 254)},
		{"pwm far above range", `{"method":"LEDSelect","params":[4,1000]}`, writeLine(6, "analog", 254)},
		{"pwm in range", `{"method":"LEDSelect","params":[4,100]}`, writeLine(6, "analog", 100)},
		{"pwm negative", `{"method":"LEDSelect","params":[4,-5]}`, writeLine(6, "analog", 0)},
		{"digital above one", `{"method":"LEDDigitalSelect","params":[1,7]}`, writeLine(11, "digital", 1)},
		{"digital negative", `{"method":"LEDDigitalSelect","params":[2,-3]}`, writeLine(10, "digital", 0)},
		{"digital zero", `{"method":"LEDDigitalSelect","params":[3,0]}`, writeLine(9, "digital", 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture()
			f.handle(t, tt.line)
			f.assertSent(t, tt.want)
		})
	}
}

func TestClampHelpers(t *testing.T) {
	assert.Equal(t, 254, clampPWM(255))
	assert.Equal(t, 254, clampPWM(254))
	assert.Equal(t, 0, clampPWM(-1))
	assert.Equal(t, 1, clampDigital(7))
	assert.Equal(t, 1, clampDigital(1))
	assert.Equal(t, 0, clampDigital(0))
	assert.Equal(t, 0, clampDigital(-3))
}

var rgbOff = []string{
	writeLine(9, "digital", 0),
	writeLine(10, "digital", 0),
	writeLine(11, "digital", 0),
}

func TestColorCompositing(t *testing.T) {
	t.Run("orange on", func(t *testing.T) {
		f := newRouterFixture()
		f.handle(t, `{"method":"LEDSelect","params":[6,1]}`)
		// red 255 goes through the PWM clamp like every other LED write
		f.assertSent(t, append(rgbOff,
			writeLine(11, "analog", 254),
			writeLine(10, "analog", 128),
		)...)
	})

	t.Run("orange off", func(t *testing.T) {
		f := newRouterFixture()
		f.handle(t, `{"method":"LEDSelect","params":[6,0]}`)
		f.assertSent(t, rgbOff...)
	})

	t.Run("indigo", func(t *testing.T) {
		f := newRouterFixture()
		f.handle(t, `{"method":"LEDSelect","params":[5,10]}`)
		f.assertSent(t, append(rgbOff,
			writeLine(11, "analog", 128),
			writeLine(10, "analog", 128),
			writeLine(9, "analog", 254),
		)...)
	})

	t.Run("violet digital", func(t *testing.T) {
		f := newRouterFixture()
		f.handle(t, `{"method":"LEDDigitalSelect","params":[8,1]}`)
		f.assertSent(t, append(rgbOff,
			writeLine(11, "digital", 1),
			writeLine(9, "digital", 1),
		)...)
	})

	t.Run("yellow", func(t *testing.T) {
		f := newRouterFixture()
		f.handle(t, `{"method":"LEDSelect","params":[7,1]}`)
		f.assertSent(t, append(rgbOff,
			writeLine(11, "analog", 254),
			writeLine(10, "analog", 254),
		)...)
	})
}

func TestUnknownColor(t *testing.T) {
	f := newRouterFixture()
	f.handle(t, `{"method":"LEDSelect","params":[42,1]}`)
	f.assertSent(t)
	assert.Contains(t, f.logs.Lines(), "unknown LED selection 42")
}

func TestDigitalOnlyLatch(t *testing.T) {
	f := newRouterFixture()
	f.handle(t,
		`{"method":"LEDSelect","params":[4,200]}`,
		`{"method":"servoDegrees","params":[90]}`,
		`{"method":"LEDSelect","params":[4,200]}`,
		`{"method":"LEDSelect","params":[1,0]}`,
	)

	f.assertSent(t,
		writeLine(6, "analog", 200),
		writeLine(5, "servo", 90),
		writeLine(6, "digital", 1),
		writeLine(11, "digital", 0),
	)
	assert.True(t, f.state.DigitalOnly())
}

func TestActuators(t *testing.T) {
	f := newRouterFixture()
	f.handle(t,
		`{"method":"piezoTone","params":[440,250]}`,
		`{"method":"relayState","params":[1]}`,
		`{"method":"relayState","params":[5]}`,
		`{"method":"relayState","params":[0]}`,
	)

	f.assertSent(t,
		`{"write":{"pin":3,"type":"piezo","value":440,"duration":250}}`,
		writeLine(2, "digital", 1),
		writeLine(2, "digital", 1),
		writeLine(2, "digital", 0),
	)
	assert.Equal(t, []string{"piezoTone", "relayState", "relayState", "relayState"}, f.rec.commands)
	assert.Equal(t, []int{440, 250}, f.rec.params[0])
}

func TestLenientParams(t *testing.T) {
	f := newRouterFixture()
	f.handle(t,
		`{"method":"servoDegrees","params":[45.9]}`,
		`{"method":"servoDegrees","params":["120"]}`,
	)
	f.assertSent(t,
		writeLine(5, "servo", 45),
		writeLine(5, "servo", 120),
	)
}

func TestUnexpectedReplyIsNotFatal(t *testing.T) {
	f := newRouterFixture()
	f.dev.reply = func(serialmux.Request) string { return `{"error":"busy"}` }

	f.handle(t,
		`{"method":"relayState","params":[1]}`,
		`{"method":"LEDSelect","params":[4,1]}`,
	)

	logs := f.logs.Lines()
	require.Len(t, logs, 2)
	assert.Contains(t, logs[0], "unexpected reply from board")
	assert.Equal(t, `writeLED unexpected reply from board: "{\"error\":\"busy\"}" for pin 6 at intensity 1`, logs[1])
}

func TestPollWritesReport(t *testing.T) {
	f := newRouterFixture()
	f.dev.reply = echoReadings(321)

	f.handle(t, `{"method":"poll"}`, `{"method":"poll"}`)
	assert.Empty(t, f.client.String())

	f.handle(t, `{"method":"poll"}`)
	assert.Equal(t, "{\"method\":\"update\",\"params\":[[\"potVal\",321]]}\n", f.client.String())
	assert.Equal(t, []Report{{Key: "potVal", Value: 321}}, f.rec.readings)
	assert.Equal(t, []int{2}, f.rec.pins)
	assert.Empty(t, f.rec.commands, "polls are not recorded as commands")
}

func TestRecorderErrorsAreLogged(t *testing.T) {
	f := newRouterFixture()
	f.rec.err = errors.New("disk full")

	f.handle(t, `{"method":"relayState","params":[1]}`)
	assert.Contains(t, f.logs.Lines(), "failed to record command relayState: disk full")
}

func TestHandleErrors(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr error
	}{
		{"unknown method", `{"method":"dance","params":[1]}`, ErrUnknownOperation},
		{"missing method", `{"params":[1]}`, ErrMissingMethod},
		{"missing params", `{"method":"LEDSelect","params":[1]}`, ErrMissingParam},
		{"no params", `{"method":"servoDegrees"}`, ErrMissingParam},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture()
			err := f.router.Handle(context.Background(), tt.line)
			assert.ErrorIs(t, err, tt.wantErr)
			f.assertSent(t)
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		f := newRouterFixture()
		err := f.router.Handle(context.Background(), `{"method":`)
		assert.ErrorContains(t, err, "failed to parse message")
	})

	t.Run("non numeric param", func(t *testing.T) {
		f := newRouterFixture()
		err := f.router.Handle(context.Background(), `{"method":"relayState","params":[true]}`)
		assert.ErrorContains(t, err, "not a number")
	})

	t.Run("transport error", func(t *testing.T) {
		f := newRouterFixture()
		f.dev.err = serialmux.ErrReadTimeout
		err := f.router.Handle(context.Background(), `{"method":"relayState","params":[1]}`)
		assert.ErrorIs(t, err, serialmux.ErrReadTimeout)
		assert.Empty(t, f.rec.commands)
	})
}
