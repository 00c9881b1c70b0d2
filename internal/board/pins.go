// Package board describes the CodeShield pin layout: which logical device sits on
// which Arduino pin, its electrical type, and the report key the client expects for
// sensors. The tables are fixed by the hardware and never change at runtime.
//
// Several devices share a pin (potentiometer/relay on 2, Hall-effect/piezo on 3,
// photocell/servo on 5). The shield is used one way or the other; nothing here
// enforces that and the bridge will happily drive a pin that is also polled.
package board

// PinType is the electrical type tag used on the device protocol.
type PinType string

const (
	Analog  PinType = "analog"
	Digital PinType = "digital"
)

// Direction is the pin mode configured during init.
type Direction string

const (
	Input  Direction = "input"
	Output Direction = "output"
)

// Arduino pin numbers as wired on the CodeShield.
const (
	PinPotentiometer = 2 // shared with relay
	PinHallEffect    = 3 // shared with piezo
	PinThermistor    = 4
	PinPhotocell     = 5 // shared with servo
	PinWhiteLED      = 6
	PinRGBBlue       = 9
	PinRGBGreen      = 10
	PinRGBRed        = 11
	PinPushButton    = 12
	PinSlideSwitch   = 13
	PinEncoderA      = 14
	PinEncoderB      = 15

	PinRelay = PinPotentiometer
	PinPiezo = PinHallEffect
	PinServo = PinPhotocell
)

// MaxPins bounds the pin numbers the board can report.
const MaxPins = 16

// Device is one logical sensor or actuator.
type Device struct {
	Name      string
	Pin       int
	Type      PinType
	Direction Direction
	// ReportKey is the client-facing name for sensor values; empty for actuators.
	ReportKey string
	// PullUp drives an input pin high after configuring it.
	PullUp bool
	// Encoder marks the quadrature encoder, which is read by channel rather than pin.
	Encoder bool
}

var (
	Potentiometer = Device{Name: "potentiometer", Pin: PinPotentiometer, Type: Analog, Direction: Input, ReportKey: "potVal"}
	HallEffect    = Device{Name: "hall effect", Pin: PinHallEffect, Type: Analog, Direction: Input, ReportKey: "hallVal"}
	Thermistor    = Device{Name: "thermistor", Pin: PinThermistor, Type: Analog, Direction: Input, ReportKey: "thermVal"}
	Photocell     = Device{Name: "photocell", Pin: PinPhotocell, Type: Analog, Direction: Input, ReportKey: "photoVal"}
	PushButton    = Device{Name: "push button", Pin: PinPushButton, Type: Digital, Direction: Input, ReportKey: "buttonVal"}
	SlideSwitch   = Device{Name: "slide switch", Pin: PinSlideSwitch, Type: Digital, Direction: Input, ReportKey: "switchVal"}
	EncoderA      = Device{Name: "encoder", Pin: PinEncoderA, Type: Digital, Direction: Input, ReportKey: "encoderVal", PullUp: true, Encoder: true}
	EncoderB      = Device{Name: "encoder b", Pin: PinEncoderB, Type: Digital, Direction: Input, PullUp: true}

	Relay    = Device{Name: "relay", Pin: PinRelay, Type: Digital, Direction: Output}
	Piezo    = Device{Name: "piezo", Pin: PinPiezo, Type: Digital, Direction: Output}
	Servo    = Device{Name: "servo", Pin: PinServo, Type: Digital, Direction: Output}
	WhiteLED = Device{Name: "white LED", Pin: PinWhiteLED, Type: Digital, Direction: Output}
	RGBBlue  = Device{Name: "RGB blue", Pin: PinRGBBlue, Type: Digital, Direction: Output}
	RGBGreen = Device{Name: "RGB green", Pin: PinRGBGreen, Type: Digital, Direction: Output}
	RGBRed   = Device{Name: "RGB red", Pin: PinRGBRed, Type: Digital, Direction: Output}
)

// Sensors is the round-robin polling order.
var Sensors = []Device{
	Potentiometer,
	HallEffect,
	Thermistor,
	Photocell,
	PushButton,
	SlideSwitch,
	EncoderA,
}

// InitOrder lists the devices configured at session start, inputs first. The
// Hall-effect sensor is not configured as an input: its pin boots as the piezo
// output.
var InitOrder = []Device{
	Potentiometer,
	Thermistor,
	Photocell,
	PushButton,
	SlideSwitch,
	EncoderA,
	EncoderB,
	Piezo,
	WhiteLED,
	RGBBlue,
	RGBGreen,
	RGBRed,
}

// ReportKey returns the client report key for a sensor pin.
func ReportKey(pin int) (string, bool) {
	for _, d := range Sensors {
		if d.Pin == pin {
			return d.ReportKey, true
		}
	}
	return "", false
}
