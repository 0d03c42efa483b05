// Package haltest provides deterministic fakes of the hal interfaces for
// driver tests. Nothing here is safe for concurrent use; handlers run inline
// on the goroutine that raises them, which is how a single-core MCU with
// nested interrupts behaves.
package haltest

import (
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/michcald/nrf24irq/hal"
)

// Line implements hal.Line.
//
// Raised edges are delivered immediately unless the line is masked or Hold is
// set; then they stay pending until Unmask, Step or Release.
type Line struct {
	Handler func()
	// Hold queues edges instead of delivering them inline.
	Hold bool
	// Deliveries counts handler invocations.
	Deliveries int

	masked  bool
	pending bool
}

// NewLine returns a masked line.
func NewLine() *Line {
	return &Line{masked: true}
}

func (l *Line) Listen(handler func()) error {
	l.Handler = handler
	return nil
}

func (l *Line) Mask() { l.masked = true }

func (l *Line) Unmask() {
	l.masked = false
	l.deliver()
}

// Masked reports whether delivery is blocked.
func (l *Line) Masked() bool { return l.masked }

// Pending reports whether an edge is waiting.
func (l *Line) Pending() bool { return l.pending }

// Raise simulates an edge.
func (l *Line) Raise() {
	l.pending = true
	l.deliver()
}

// Step delivers one pending edge regardless of Hold. It reports whether a
// handler ran.
func (l *Line) Step() bool {
	if l.masked || !l.pending || l.Handler == nil {
		return false
	}
	l.pending = false
	l.Deliveries++
	l.Handler()
	return true
}

// Drain steps until no deliverable edge is left.
func (l *Line) Drain() {
	for l.Step() {
	}
}

// Release clears Hold and delivers any pending edge.
func (l *Line) Release() {
	l.Hold = false
	l.deliver()
}

func (l *Line) deliver() {
	if l.Hold {
		return
	}
	l.Step()
}

// Port implements hal.Port. Each Put is answered through Respond and
// completes by raising Line.
type Port struct {
	Line *Line
	// Respond returns the byte clocked in while out is clocked out.
	// A nil Respond answers 0x00.
	Respond func(out byte) byte
	// Sent records every byte put on the wire.
	Sent []byte

	Mode         spi.Mode
	Freq         physic.Frequency
	Configured   int
	ConfigureErr error

	last byte
}

// NewPort returns a port with a fresh masked completion line.
func NewPort() *Port {
	return &Port{Line: NewLine()}
}

func (p *Port) Configure(mode spi.Mode, freq physic.Frequency) error {
	if p.ConfigureErr != nil {
		return p.ConfigureErr
	}
	p.Mode = mode
	p.Freq = freq
	p.Configured++
	return nil
}

func (p *Port) Put(b byte) {
	p.Sent = append(p.Sent, b)
	p.last = 0
	if p.Respond != nil {
		p.last = p.Respond(b)
	}
	p.Line.Raise()
}

func (p *Port) Get() byte           { return p.last }
func (p *Port) Busy() bool          { return false }
func (p *Port) Interrupt() hal.Line { return p.Line }

// Pin implements hal.Pin.
type Pin struct {
	Level   hal.Level
	Pull    hal.Pull
	Edge    hal.Edge
	Handler func()
	// History records every level driven through Out.
	History []hal.Level
	// OnOut, when set, observes every Out call.
	OnOut func(l hal.Level)
	// OutErr is returned by Out after the level has been recorded.
	OutErr error
}

func (p *Pin) Out(l hal.Level) error {
	p.Level = l
	p.History = append(p.History, l)
	if p.OnOut != nil {
		p.OnOut(l)
	}
	return p.OutErr
}

func (p *Pin) In(pull hal.Pull) error {
	p.Pull = pull
	return nil
}

func (p *Pin) Read() hal.Level { return p.Level }

func (p *Pin) Watch(edge hal.Edge, handler func()) error {
	p.Edge = edge
	p.Handler = handler
	return nil
}

func (p *Pin) Unwatch() error {
	p.Edge = hal.NoEdge
	p.Handler = nil
	return nil
}

// Clock implements hal.Clock without sleeping.
type Clock struct {
	Now   uint32
	Slept []time.Duration
}

func (c *Clock) Millis() uint32 { return c.Now }

func (c *Clock) Sleep(d time.Duration) {
	c.Slept = append(c.Slept, d)
	c.Now += uint32(d / time.Millisecond)
}

// Faults records faults instead of halting.
type Faults struct {
	Errs []error
}

// Record is a diag.Fault.
func (f *Faults) Record(err error) {
	f.Errs = append(f.Errs, err)
}

// Last returns the most recent fault, or nil.
func (f *Faults) Last() error {
	if len(f.Errs) == 0 {
		return nil
	}
	return f.Errs[len(f.Errs)-1]
}
