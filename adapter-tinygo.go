//go:build tinygo

package nrf24

import (
	"context"
	"errors"
	"machine"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/michcald/nrf24irq/hal"
)

// tinygoPin wraps a machine.Pin to satisfy the hal.Pin interface.
type tinygoPin struct {
	pin machine.Pin
}

func (p *tinygoPin) Out(l hal.Level) error {
	p.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.pin.Set(bool(l))
	return nil
}

func (p *tinygoPin) In(pull hal.Pull) error {
	var mPull machine.PinMode
	switch pull {
	case hal.PullUp:
		mPull = machine.PinInputPullup
	case hal.PullDown:
		mPull = machine.PinInputPulldown
	default:
		mPull = machine.PinInput
	}
	p.pin.Configure(machine.PinConfig{Mode: mPull})
	return nil
}

func (p *tinygoPin) Read() hal.Level {
	return hal.Level(p.pin.Get())
}

func (p *tinygoPin) Watch(edge hal.Edge, handler func()) error {
	var mEdge machine.PinChange
	switch edge {
	case hal.RisingEdge:
		mEdge = machine.PinRising
	case hal.FallingEdge:
		mEdge = machine.PinFalling
	case hal.BothEdges:
		mEdge = machine.PinToggle
	default:
		return nil
	}

	return p.pin.SetInterrupt(mEdge, func(machine.Pin) {
		handler()
	})
}

func (p *tinygoPin) Unwatch() error {
	return p.pin.SetInterrupt(0, nil)
}

// tinygoPort shifts single bytes with machine.SPI.Transfer and raises the
// completion vector afterwards.
type tinygoPort struct {
	spi *machine.SPI
	vec *hal.Vector
	r   byte
}

func (p *tinygoPort) Configure(mode spi.Mode, freq physic.Frequency) error {
	return p.spi.Configure(machine.SPIConfig{
		Frequency: uint32(freq / physic.Hertz),
		Mode:      uint8(mode & 0x3),
	})
}

func (p *tinygoPort) Put(b byte) {
	r, err := p.spi.Transfer(b)
	if err != nil {
		r = 0
	}
	p.r = r
	p.vec.Raise()
}

func (p *tinygoPort) Get() byte           { return p.r }
func (p *tinygoPort) Busy() bool          { return false }
func (p *tinygoPort) Interrupt() hal.Line { return p.vec }

// Config holds the configuration for the TinyGo driver.
type Config struct {
	RadioConfig
	// Role is the side of the link this radio plays. Required.
	Role Role
	// SPI is the bus the radio is attached to. Required.
	SPI *machine.SPI
	// CSPin, CEPin and IRQPin are required and must differ. The zero
	// machine.Pin is a real pin (GP0 on the Pico), not "unset", so a Config
	// that leaves them all zero is rejected as a shared pin.
	CSPin  machine.Pin
	CEPin  machine.Pin
	IRQPin machine.Pin
}

// New creates a new NRF24L01 driver for TinyGo systems and brings it up in c.Role.
func New(c Config) (*Radio, error) {
	if c.SPI == nil {
		return nil, errors.New("nrf24: SPI not configured")
	}
	if err := checkPins(machine.NoPin, c.CSPin, c.CEPin, c.IRQPin); err != nil {
		return nil, err
	}
	c.RadioConfig.setDefaults()

	ctl := hal.NewController()
	port := &tinygoPort{spi: c.SPI, vec: ctl.NewVector("spi", hal.PriorityBus)}
	line := hal.NewPinLine(ctl, "nrf24-irq", hal.PriorityRadio, &tinygoPin{pin: c.IRQPin}, c.IRQEdge)

	dev, err := NewWithHardware(HardwareConfig{
		RadioConfig: c.RadioConfig,
		Port:        port,
		CS:          &tinygoPin{pin: c.CSPin},
		CE:          &tinygoPin{pin: c.CEPin},
		IRQ:         line,
		Critical:    ctl,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go ctl.Run(ctx)
	dev.closers = append(dev.closers, cancelCloser(cancel), line)

	if err := dev.Init(c.Role); err != nil {
		dev.Close()
		return nil, err
	}
	return dev, nil
}

type cancelCloser context.CancelFunc

func (c cancelCloser) Close() error {
	c()
	return nil
}
