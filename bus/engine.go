// Package bus turns a byte-at-a-time SPI peripheral into a non-blocking,
// multi-byte transfer service completed by callback from interrupt context.
package bus

import (
	"errors"
	"fmt"
	"sync/atomic"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/michcald/nrf24irq/diag"
	"github.com/michcald/nrf24irq/hal"
)

// MaxLength is the longest transfer a single descriptor can carry.
const MaxLength = 255

var (
	ErrBusy     = errors.New("bus: attempt to initiate a transfer while another is in progress")
	ErrNilWrite = errors.New("bus: received nil write buffer")
	ErrLength   = errors.New("bus: invalid transfer length")
)

// Done is called from interrupt context once the last byte has been clocked.
// The engine is idle by then, so Done may start the next transfer.
type Done func()

// Option configures an Engine.
type Option func(*Engine)

// WithFault sets the sink for precondition violations. Defaults to diag.Halt.
func WithFault(f diag.Fault) Option {
	return func(e *Engine) { e.fault = f }
}

// Engine owns the SPI port, its completion interrupt and the select line.
// At most one transfer is active at a time.
type Engine struct {
	port  hal.Port
	irq   hal.Line
	sel   hal.Pin
	fault diag.Fault

	busy   atomic.Bool
	halted atomic.Bool

	// Active descriptor. Written by Transfer while idle, then only by
	// HandleInterrupt until busy clears.
	write  []byte
	read   []byte
	length int
	index  int
	done   Done
}

// New binds an engine to port and its select line. The port's completion
// interrupt is claimed here and stays masked until a transfer starts.
func New(port hal.Port, sel hal.Pin, opts ...Option) (*Engine, error) {
	if port == nil {
		return nil, fmt.Errorf("bus: port not configured")
	}
	if sel == nil {
		return nil, fmt.Errorf("bus: select pin not configured")
	}
	e := &Engine{
		port: port,
		irq:  port.Interrupt(),
		sel:  sel,
	}
	for _, o := range opts {
		o(e)
	}
	e.fault = diag.OrHalt(e.fault)

	e.irq.Mask()
	if err := e.irq.Listen(e.HandleInterrupt); err != nil {
		return nil, fmt.Errorf("bus: failed to claim completion interrupt: %w", err)
	}
	return e, nil
}

// Mode returns the SPI mode for the given clock polarity and phase.
func Mode(cpol, cpha bool) spi.Mode {
	switch {
	case !cpol && !cpha:
		return spi.Mode0
	case !cpol && cpha:
		return spi.Mode1
	case cpol && !cpha:
		return spi.Mode2
	default:
		return spi.Mode3
	}
}

// Init configures the port as master at freq and deasserts the select line.
func (e *Engine) Init(cpol, cpha bool, freq physic.Frequency) error {
	if err := e.port.Configure(Mode(cpol, cpha), freq); err != nil {
		return fmt.Errorf("bus: failed to configure port: %w", err)
	}
	if err := e.sel.Out(hal.High); err != nil {
		return fmt.Errorf("bus: failed to drive select line: %w", err)
	}
	e.busy.Store(false)
	diag.Log().Debug("bus: configured as " + Mode(cpol, cpha).String() + " at " + freq.String())
	return nil
}

// IsBusy reports whether a transfer is active.
func (e *Engine) IsBusy() bool {
	return e.busy.Load()
}

// Halted reports whether a fault stopped the engine.
func (e *Engine) Halted() bool {
	return e.halted.Load()
}

// Transfer clocks out w[:n] and, when r is not nil, stores the bytes clocked
// in into r[:n]. It returns as soon as the first byte is on the wire; done
// runs from interrupt context after the last one. w and r must stay valid
// until then.
func (e *Engine) Transfer(w, r []byte, n int, done Done) {
	if e.halted.Load() {
		return
	}
	switch {
	case e.busy.Load():
		e.halt(ErrBusy)
		return
	case w == nil:
		e.halt(ErrNilWrite)
		return
	case n < 1 || n > MaxLength || len(w) < n || (r != nil && len(r) < n):
		e.halt(fmt.Errorf("%w: %d", ErrLength, n))
		return
	}

	e.busy.Store(true)
	e.write = w
	e.read = r
	e.length = n
	e.index = 0
	e.done = done

	e.selectOut(hal.Low)
	e.irq.Unmask()
	e.port.Put(e.write[0])
}

// HandleInterrupt is the byte completion handler.
func (e *Engine) HandleInterrupt() {
	if e.halted.Load() || !e.busy.Load() {
		return
	}
	for e.port.Busy() {
	}

	b := e.port.Get()
	if e.read != nil {
		e.read[e.index] = b
	}
	e.index++

	if e.index != e.length {
		e.port.Put(e.write[e.index])
		return
	}

	e.selectOut(hal.High)
	e.irq.Mask()

	done := e.done
	e.write, e.read, e.done = nil, nil, nil
	e.busy.Store(false)

	if done != nil {
		done()
	}
}

// selectOut drives the select line. A pin error cannot be reported from
// interrupt context, so it is logged and the transfer carries on.
func (e *Engine) selectOut(l hal.Level) {
	if err := e.sel.Out(l); err != nil {
		diag.Log().Error("bus: failed to drive select line: " + err.Error())
	}
}

func (e *Engine) halt(err error) {
	e.halted.Store(true)
	e.fault(err)
}
