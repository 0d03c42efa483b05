//go:build !tinygo

package nrf24

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/michcald/nrf24irq/diag"
	"github.com/michcald/nrf24irq/hal"
)

// watchSlice bounds each WaitForEdge so a watcher notices Unwatch even on
// drivers whose Halt does not interrupt the wait.
const watchSlice = 100 * time.Millisecond

var (
	periphPulls = map[hal.Pull]gpio.Pull{
		hal.PullFloat: gpio.Float,
		hal.PullDown:  gpio.PullDown,
		hal.PullUp:    gpio.PullUp,
	}
	periphEdges = map[hal.Edge]gpio.Edge{
		hal.RisingEdge:  gpio.RisingEdge,
		hal.FallingEdge: gpio.FallingEdge,
		hal.BothEdges:   gpio.BothEdges,
	}
)

// periphPin adapts a gpio.PinIO to hal.Pin. Edges are picked up by one
// watcher goroutine per Watch, which feeds the handler (normally a
// hal.Vector's Raise) and exits before Unwatch returns.
type periphPin struct {
	gpio.PinIO
	pull gpio.Pull

	stop    context.CancelFunc
	stopped chan struct{}
}

func (p *periphPin) Out(l hal.Level) error {
	return p.PinIO.Out(gpio.Level(l))
}

// In switches to input. The pull is kept for later Watch calls.
func (p *periphPin) In(pull hal.Pull) error {
	pp, ok := periphPulls[pull]
	if !ok {
		pp = gpio.PullNoChange
	}
	p.pull = pp
	return p.PinIO.In(pp, gpio.NoEdge)
}

func (p *periphPin) Read() hal.Level {
	return hal.Level(p.PinIO.Read())
}

func (p *periphPin) Watch(edge hal.Edge, handler func()) error {
	e, ok := periphEdges[edge]
	if !ok {
		return fmt.Errorf("%w: %s: cannot watch edge %v", ErrPkg, p.PinIO, edge)
	}
	if err := p.Unwatch(); err != nil {
		return err
	}
	if err := p.PinIO.In(p.pull, e); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.stop, p.stopped = cancel, make(chan struct{})
	go p.watch(ctx, handler, p.stopped)
	return nil
}

func (p *periphPin) watch(ctx context.Context, handler func(), stopped chan<- struct{}) {
	defer close(stopped)
	for ctx.Err() == nil {
		if p.PinIO.WaitForEdge(watchSlice) && ctx.Err() == nil {
			handler()
		}
	}
}

// Unwatch stops the watcher and turns edge detection off.
func (p *periphPin) Unwatch() error {
	if p.stop == nil {
		return nil
	}
	p.stop()
	<-p.stopped
	p.stop, p.stopped = nil, nil
	return p.PinIO.In(p.pull, gpio.NoEdge)
}

// periphPort shifts single bytes over an spi.Conn. The kernel transfer is
// synchronous, so the completion vector is raised as soon as Tx returns and
// the handler runs on the controller goroutine.
type periphPort struct {
	port spi.PortCloser
	conn spi.Conn
	mode spi.Mode
	freq physic.Frequency
	vec  *hal.Vector

	w, r [1]byte
}

func (p *periphPort) Configure(mode spi.Mode, freq physic.Frequency) error {
	// A periph.io port can only be connected once; re-Init keeps the connection.
	if p.conn != nil {
		if mode == p.mode && freq == p.freq {
			return nil
		}
		return fmt.Errorf("SPI already connected as %s at %s", p.mode, p.freq)
	}
	// Chip select is driven by the bus engine as a GPIO.
	conn, err := p.port.Connect(freq, mode|spi.NoCS, 8)
	if err != nil {
		return fmt.Errorf("failed to create SPI connection: %w", err)
	}
	p.conn, p.mode, p.freq = conn, mode, freq
	return nil
}

func (p *periphPort) Put(b byte) {
	p.w[0] = b
	if err := p.conn.Tx(p.w[:], p.r[:]); err != nil {
		diag.Log().Error("SPI Transfer Error")
		p.r[0] = 0
	}
	p.vec.Raise()
}

func (p *periphPort) Get() byte           { return p.r[0] }
func (p *periphPort) Busy() bool          { return false }
func (p *periphPort) Interrupt() hal.Line { return p.vec }

type cancelCloser context.CancelFunc

func (c cancelCloser) Close() error {
	c()
	return nil
}

// Config holds the configuration for the Linux/periph.io driver.
type Config struct {
	RadioConfig `yaml:",inline"`
	// Role is the side of the link this radio plays. Required.
	Role Role `yaml:"role"`
	// CEPin is the GPIO pin number (BCM numbering) for the Chip Enable (CE) pin.
	// Defaults to 25 if not provided.
	CEPin int `yaml:"cePin"`
	// IRQPin is the GPIO pin number (BCM numbering) for the Interrupt Request (IRQ) pin.
	// Defaults to 24 if not provided.
	IRQPin int `yaml:"irqPin"`
	// CSPin is the GPIO pin number (BCM numbering) driven as chip select.
	// Defaults to 8 (CE0) if not provided.
	CSPin int `yaml:"csPin"`
	// SpiBusPath is the path to the SPI bus (e.g., "/dev/spidev0.0").
	// Defaults to "/dev/spidev0.0" if not provided.
	SpiBusPath string `yaml:"spiBusPath"`
	// Log, when set, replaces the global logger (see diag.Configure).
	Log diag.Options `yaml:"log"`
}

func (c *Config) setDefaults() {
	c.RadioConfig.setDefaults()
	if c.CEPin == 0 {
		c.CEPin = 25
	}
	if c.IRQPin == 0 {
		c.IRQPin = 24
	}
	if c.CSPin == 0 {
		c.CSPin = 8
	}
	if c.SpiBusPath == "" {
		c.SpiBusPath = "/dev/spidev0.0"
	}
}

func (c *Config) validate() error {
	if err := c.RadioConfig.validate(); err != nil {
		return err
	}
	return checkPins(0, c.CSPin, c.CEPin, c.IRQPin)
}

func openPin(kind string, n int) (*periphPin, error) {
	name := fmt.Sprintf("GPIO%d", n)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: failed to open %s pin %s", ErrPkg, kind, name)
	}
	return &periphPin{PinIO: p}, nil
}

// New creates and initializes a new NRF24L01 driver for Linux systems.
// It applies configuration defaults, opens the SPI port and GPIO pins using
// periph.io, starts the interrupt controller and brings the radio up in c.Role.
func New(c Config) (*Radio, error) {
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.Log != (diag.Options{}) {
		if err := diag.Configure(c.Log); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPkg, err)
		}
	}

	// Required for both SPI and GPIO
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize periph.io host: %w", ErrPkg, err)
	}

	p, err := spireg.Open(c.SpiBusPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open SPI port: %w", ErrPkg, err)
	}

	pins := make([]*periphPin, 3)
	for i, n := range []int{c.CSPin, c.CEPin, c.IRQPin} {
		pin, err := openPin([]string{"CS", "CE", "IRQ"}[i], n)
		if err != nil {
			p.Close()
			return nil, err
		}
		pins[i] = pin
	}

	dev, err := newPeriph(c, p, pins[0], pins[1], pins[2])
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := dev.Init(c.Role); err != nil {
		dev.Close()
		return nil, err
	}
	return dev, nil
}

// newPeriph wires an opened port and pins to a Radio driven by its own
// interrupt controller. The controller runs until the Radio is closed.
func newPeriph(c Config, p spi.PortCloser, cs, ce, irq hal.Pin) (*Radio, error) {
	ctl := hal.NewController()
	port := &periphPort{port: p, vec: ctl.NewVector("spi", hal.PriorityBus)}
	line := hal.NewPinLine(ctl, "nrf24-irq", hal.PriorityRadio, irq, c.IRQEdge)

	dev, err := NewWithHardware(HardwareConfig{
		RadioConfig: c.RadioConfig,
		Port:        port,
		CS:          cs,
		CE:          ce,
		IRQ:         line,
		Critical:    ctl,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go ctl.Run(ctx)
	dev.closers = append(dev.closers, p, cancelCloser(cancel), line)
	return dev, nil
}
