// Package hal describes the hardware the driver stack runs on: GPIO pins, a
// byte-at-a-time SPI peripheral with a completion interrupt, maskable
// interrupt lines and a millisecond clock.
package hal

import (
	"fmt"
	"strings"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Level represents the logical level of a pin (Low or High).
type Level bool

const (
	Low  Level = false
	High Level = true
)

// Pull represents the internal pull-up/down resistor state.
type Pull uint8

const (
	PullNoChange Pull = iota
	PullFloat
	PullDown
	PullUp
)

// Edge represents the signal edge to trigger an interrupt.
type Edge uint8

const (
	NoEdge Edge = iota
	RisingEdge
	FallingEdge
	BothEdges
)

func (e Edge) String() string {
	switch e {
	case RisingEdge:
		return "rising"
	case FallingEdge:
		return "falling"
	case BothEdges:
		return "both"
	default:
		return "none"
	}
}

// ParseEdge converts "rising", "falling", "both" or "none" into an Edge.
func ParseEdge(s string) (Edge, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rising":
		return RisingEdge, nil
	case "falling":
		return FallingEdge, nil
	case "both":
		return BothEdges, nil
	case "none", "":
		return NoEdge, nil
	}
	return NoEdge, fmt.Errorf("hal: unknown edge %q", s)
}

// UnmarshalYAML accepts the names produced by String.
func (e *Edge) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := ParseEdge(s)
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// Pin represents a generic GPIO pin.
type Pin interface {
	// Out sets the pin as output with the given level.
	Out(l Level) error
	// In sets the pin as input with the given pull mode.
	In(pull Pull) error
	// Read returns the current level of the pin.
	Read() Level
	// Watch configures an interrupt/callback on the specified edge.
	// The handler should be called when the edge is detected.
	Watch(edge Edge, handler func()) error
	// Unwatch removes the interrupt/callback.
	Unwatch() error
}

// Line is a maskable interrupt source. A line starts masked; edges raised
// while it is masked stay pending and are delivered on Unmask.
type Line interface {
	// Listen installs the handler run in interrupt context.
	Listen(handler func()) error
	Mask()
	Unmask()
}

// Port is a master SPI peripheral that shifts one byte at a time and raises
// its completion Line once the byte has been clocked out and the reply
// clocked in.
type Port interface {
	// Configure sets clock polarity/phase and the bus frequency.
	Configure(mode spi.Mode, freq physic.Frequency) error
	// Put starts shifting b out.
	Put(b byte)
	// Get returns the byte clocked in by the last Put.
	Get() byte
	// Busy reports whether a byte is still being shifted.
	Busy() bool
	// Interrupt is the byte completion line.
	Interrupt() Line
}

// Clock is the time source used for fixed hardware delays.
type Clock interface {
	// Millis returns a monotonic millisecond counter.
	Millis() uint32
	// Sleep blocks for d.
	Sleep(d time.Duration)
}

// SystemClock is a Clock backed by the runtime timer.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a Clock whose counter starts at zero.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Millis() uint32 {
	return uint32(time.Since(c.start) / time.Millisecond)
}

func (c *SystemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
