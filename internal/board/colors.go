package board

import "fmt"

// Color is the LED selection value sent by the client's LED blocks.
type Color int

const (
	Red Color = iota + 1
	Green
	Blue
	White
	Indigo
	Orange
	Yellow
	Violet
)

func (c Color) String() string {
	if m, ok := colorMixes[c]; ok {
		return m.Name
	}
	return fmt.Sprintf("color(%d)", int(c))
}

// Level is one LED write inside a composite color.
type Level struct {
	LED   Device
	Value int
}

// ColorMix describes how a color is produced. Single-LED colors carry the LED
// and pass the requested intensity through. Composites first switch every RGB
// channel off and then, only for a non-zero intensity, write Components in
// order with fixed values.
type ColorMix struct {
	Name       string
	LED        Device
	Components []Level
}

// Composite reports whether the color is mixed from several RGB channels.
func (m ColorMix) Composite() bool { return len(m.Components) > 0 }

// RGBOff is the order in which composites clear the RGB channels.
var RGBOff = []Device{RGBBlue, RGBGreen, RGBRed}

var colorMixes = map[Color]ColorMix{
	White: {Name: "white", LED: WhiteLED},
	Red:   {Name: "red", LED: RGBRed},
	Green: {Name: "green", LED: RGBGreen},
	Blue:  {Name: "blue", LED: RGBBlue},
	Orange: {Name: "orange", Components: []Level{
		// 255 reaches the board as 254: every PWM LED write is clamped
		{RGBRed, 255},
		{RGBGreen, 128},
	}},
	Yellow: {Name: "yellow", Components: []Level{
		{RGBRed, 255},
		{RGBGreen, 255},
	}},
	Indigo: {Name: "indigo", Components: []Level{
		{RGBRed, 128},
		{RGBGreen, 128},
		{RGBBlue, 255},
	}},
	Violet: {Name: "violet", Components: []Level{
		{RGBRed, 180},
		{RGBBlue, 255},
	}},
}

// LookupColor returns the mix for a client color selection.
func LookupColor(c Color) (ColorMix, bool) {
	m, ok := colorMixes[c]
	return m, ok
}
