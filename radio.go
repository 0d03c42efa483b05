// Package nrf24 drives an nRF24L01+ transceiver over an interrupt-chained SPI
// bus. Every public operation returns at once; results arrive through
// callbacks invoked from interrupt context.
package nrf24

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	"periph.io/x/conn/v3/physic"

	"github.com/michcald/nrf24irq/bus"
	"github.com/michcald/nrf24irq/diag"
	"github.com/michcald/nrf24irq/hal"
)

var (
	ErrPkg                = errors.New("nrf24")
	ErrNotReady           = errors.New("radio has not completed initialisation")
	ErrWrongRole          = errors.New("operation not available in this role")
	ErrTransmitInFlight   = errors.New("transmit already in progress")
	ErrPayloadLength      = errors.New("payload length must be between 1 and 32")
	ErrCallbackRegistered = errors.New("receive callback already registered")
	ErrNilCallback        = errors.New("nil callback")
	ErrAckUploadInFlight  = errors.New("ack payload upload already in progress")
	ErrHalted             = errors.New("radio halted after a fault")
	errLinkState          = errors.New("link event not valid in current state")
)

// TxDone reports the outcome of a Transmit. ack is nil unless the receiver
// attached an ack payload; it aliases driver memory and is only valid until
// the callback returns.
type TxDone func(success bool, ack []byte)

// RxDone delivers a received payload. payload aliases driver memory and is
// only valid until the callback returns.
type RxDone func(payload []byte)

// scratchSize fits the longest transaction: a command byte plus a full payload,
// rounded up.
const scratchSize = 40

// Radio is a single nRF24L01+ session. Callbacks run in interrupt context
// with the critical section released, so they may call back into the Radio,
// e.g. to queue the next Transmit or the next ack payload.
type Radio struct {
	config   HardwareConfig
	bus      *bus.Engine
	irq      hal.Line
	ce       hal.Pin
	clock    hal.Clock
	critical sync.Locker
	fault    diag.Fault
	closers  []io.Closer

	role   atomic.Uint32 // Role
	step   initStep
	ready  atomic.Bool
	halted atomic.Bool

	// out carries commands to the chip; the status byte of a NOP read lands
	// in out[0]. in receives payload reads, status byte first.
	out   [scratchSize]byte
	in    [scratchSize]byte
	width [2]byte

	tx txSession
	rx rxSession

	// Bound once so chaining a transaction does not allocate.
	onInit     bus.Done
	onTx       bus.Done
	onRx       bus.Done
	onUploaded bus.Done
}

// NewWithHardware creates a Radio on the provided hardware interfaces.
// The IRQ line is claimed but left masked; call Init to bring the chip up.
func NewWithHardware(c HardwareConfig) (*Radio, error) {
	c.RadioConfig.setDefaults()
	if err := c.RadioConfig.validate(); err != nil {
		return nil, err
	}
	if c.CE == nil {
		return nil, fmt.Errorf("%w: CE pin not configured", ErrPkg)
	}
	if c.IRQ == nil {
		return nil, fmt.Errorf("%w: IRQ line not configured", ErrPkg)
	}
	if c.Clock == nil {
		c.Clock = hal.NewSystemClock()
	}
	if c.Critical == nil {
		c.Critical = noLock{}
	}
	c.Fault = diag.OrHalt(c.Fault)

	r := &Radio{
		config:   c,
		irq:      c.IRQ,
		ce:       c.CE,
		clock:    c.Clock,
		critical: c.Critical,
		fault:    c.Fault,
	}
	engine, err := bus.New(c.Port, c.CS, bus.WithFault(r.halt))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPkg, err)
	}
	r.bus = engine
	r.onInit = r.initNext
	r.onTx = r.txNext
	r.onRx = r.rxNext
	r.onUploaded = r.ackUploaded

	r.irq.Mask()
	if err := r.irq.Listen(r.HandleInterrupt); err != nil {
		return nil, fmt.Errorf("%w: failed to watch IRQ line: %w", ErrPkg, err)
	}
	return r, nil
}

// Init brings the chip up in the given role and blocks until it is ready.
// It may be called again to restart the chip; the receive callback survives.
func (r *Radio) Init(role Role) error {
	if role != Transmitter && role != Receiver {
		return fmt.Errorf("%w: unknown role %d", ErrPkg, role)
	}
	if r.halted.Load() {
		return fmt.Errorf("%w: %w", ErrPkg, ErrHalted)
	}

	r.critical.Lock()
	r.irq.Mask()
	r.ready.Store(false)
	r.role.Store(uint32(role))
	r.step = stepConfig
	r.tx.reset()
	r.rx.reset()
	r.critical.Unlock()

	diag.Log().Info("Initializing NRF24L01 as " + role.String() + "...")

	r.ce.Out(hal.Low)
	r.clock.Sleep(r.config.StartupDelay)

	freq := physic.Frequency(r.config.SPIClockHz) * physic.Hertz
	if err := r.bus.Init(false, false, freq); err != nil {
		return fmt.Errorf("%w: failed to configure SPI: %w", ErrPkg, err)
	}

	r.critical.Lock()
	r.initNext()
	r.critical.Unlock()

	for !r.ready.Load() {
		if r.halted.Load() {
			return fmt.Errorf("%w: %w", ErrPkg, ErrHalted)
		}
		runtime.Gosched()
	}

	r.clock.Sleep(r.config.SettleDelay)
	r.irq.Unmask()
	diag.Log().Info("NRF24L01 initialized and powered up. Ready to operate.")
	return nil
}

// Role returns the role passed to the last Init.
func (r *Radio) Role() Role {
	return Role(r.role.Load())
}

// Ready reports whether bring-up has completed.
func (r *Radio) Ready() bool {
	return r.ready.Load()
}

// Halted reports whether a fault has stopped the radio.
func (r *Radio) Halted() bool {
	return r.halted.Load()
}

func (r *Radio) String() string {
	r.critical.Lock()
	defer r.critical.Unlock()

	return fmt.Sprintf("NRF24L01(Role=%s, Channel=%d, DataRate=%s, PALevel=%s, Address=%s, Ready=%v)",
		r.Role(),
		r.config.Channel,
		r.config.DataRate,
		r.config.PALevel,
		PipeAddress,
		r.ready.Load(),
	)
}

// Close masks the IRQ line, drops CE and releases adapter resources.
// The radio is unusable afterwards.
func (r *Radio) Close() error {
	r.critical.Lock()
	r.irq.Mask()
	r.ready.Store(false)
	r.halted.Store(true)
	r.critical.Unlock()

	errs := []error{r.ce.Out(hal.Low)}
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i].Close())
	}
	r.closers = nil
	diag.Log().Info("NRF24L01 closed.")
	return errors.Join(errs...)
}

// HandleInterrupt is the IRQ line handler. The line is masked on entry and
// unmasked again by the transaction chain that services the event.
func (r *Radio) HandleInterrupt() {
	if r.halted.Load() {
		return
	}
	r.irq.Mask()
	if !r.ready.Load() {
		// Left over from before the last reset.
		return
	}
	switch r.Role() {
	case Transmitter:
		r.txInterrupt()
	case Receiver:
		r.linkEvent(evIRQ)
	}
}

// admit checks the preconditions shared by the foreground operations.
// Call with the critical section held.
func (r *Radio) admit(role Role) bool {
	if r.halted.Load() {
		return false
	}
	if !r.ready.Load() {
		r.halt(fmt.Errorf("%w: %w", ErrPkg, ErrNotReady))
		return false
	}
	if cur := r.Role(); cur != role {
		r.halt(fmt.Errorf("%w: %w: needs %s, radio is %s", ErrPkg, ErrWrongRole, role, cur))
		return false
	}
	return true
}

func checkPayload(data []byte) error {
	if len(data) < 1 || len(data) > MaxPayload {
		return fmt.Errorf("%w: %w: got %d", ErrPkg, ErrPayloadLength, len(data))
	}
	return nil
}

// halt stops all further progress and reports err.
func (r *Radio) halt(err error) {
	if r.halted.Swap(true) {
		return
	}
	r.ready.Store(false)
	r.fault(err)
}

// --- Bus transactions ---

func (r *Radio) writeRegister(reg, val byte, done bus.Done) {
	r.out[0] = _W_REGISTER | reg
	r.out[1] = val
	r.bus.Transfer(r.out[:], nil, lenRegister, done)
}

func (r *Radio) writeAddress(reg byte, done bus.Done) {
	r.out[0] = _W_REGISTER | reg
	copy(r.out[1:], PipeAddress[:])
	r.bus.Transfer(r.out[:], nil, lenAddress, done)
}

func (r *Radio) command(cmd byte, done bus.Done) {
	r.out[0] = cmd
	r.bus.Transfer(r.out[:], nil, lenCommand, done)
}

// readStatus clocks a NOP; the status byte replaces it in out[0].
func (r *Radio) readStatus(done bus.Done) {
	r.out[0] = _NOP
	r.bus.Transfer(r.out[:], r.out[:], lenCommand, done)
}

// readWidth leaves the top RX FIFO payload width in width[1].
func (r *Radio) readWidth(done bus.Done) {
	r.out[0] = _R_RX_PL_WID
	r.out[1] = _NOP
	r.bus.Transfer(r.out[:], r.width[:], 2, done)
}

// readPayload leaves n payload bytes in in[1:n+1].
func (r *Radio) readPayload(n int, done bus.Done) {
	r.out[0] = _R_RX_PAYLOAD
	for i := 1; i <= n; i++ {
		r.out[i] = _NOP
	}
	r.bus.Transfer(r.out[:], r.in[:], n+1, done)
}

func (r *Radio) writePayload(cmd byte, data []byte, done bus.Done) {
	r.out[0] = cmd
	copy(r.out[1:], data)
	r.bus.Transfer(r.out[:], nil, len(data)+1, done)
}

// widthValid reports whether the width the chip reported can be read back.
func widthValid(n byte) bool {
	return n >= 1 && n <= MaxPayload
}
