package nrf24

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/michcald/nrf24irq/diag"
	"github.com/michcald/nrf24irq/hal"
)

// Role selects which side of the link the radio plays.
type Role uint8

const (
	roleUnset Role = iota
	// Transmitter sends payloads and may receive ack payloads back.
	Transmitter
	// Receiver listens on pipe 0 and may attach ack payloads to its acknowledgments.
	Receiver
)

func (r Role) String() string {
	switch r {
	case Transmitter:
		return "transmitter"
	case Receiver:
		return "receiver"
	default:
		return "unset"
	}
}

// ParseRole converts "transmitter"/"tx" or "receiver"/"rx" into a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "transmitter", "tx":
		return Transmitter, nil
	case "receiver", "rx":
		return Receiver, nil
	}
	return roleUnset, fmt.Errorf("%w: unknown role %q", ErrPkg, s)
}

// UnmarshalYAML lets config files spell the role out.
func (r *Role) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	role, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = role
	return nil
}

type (
	DataRate byte
	PALevel  byte
)

// The zero values are the link defaults (2mbps, 0dBm).
const (
	// DataRate2mbps represents a data rate of 2mbps
	DataRate2mbps DataRate = iota
	// DataRate1mbps represents a data rate of 1mbps
	DataRate1mbps
	// DataRate250kbps represents a data rate of 250kbps
	DataRate250kbps
)

func (d DataRate) String() string {
	switch d {
	case DataRate250kbps:
		return "250kbps"
	case DataRate1mbps:
		return "1mbps"
	case DataRate2mbps:
		return "2mbps"
	default:
		return "unknown"
	}
}

const (
	// PALevelMax represents a power amplifier level of 0dBm
	PALevelMax PALevel = iota
	// PALevelHigh represents a power amplifier level of -6dBm
	PALevelHigh
	// PALevelLow represents a power amplifier level of -12dBm
	PALevelLow
	// PALevelMin represents a power amplifier level of -18dBm
	PALevelMin
)

func (p PALevel) String() string {
	switch p {
	case PALevelMin:
		return "-18dBm"
	case PALevelLow:
		return "-12dBm"
	case PALevelHigh:
		return "-6dBm"
	case PALevelMax:
		return "0dBm"
	default:
		return "unknown"
	}
}

const (
	defaultChannel        = 50
	defaultRetransmitWait = 500
	defaultRetransmits    = 10
	defaultSPIClockHz     = 100000
	defaultStartupDelay   = 150 * time.Millisecond
	defaultSettleDelay    = 2 * time.Millisecond
)

type RadioConfig struct {
	// Channel determines the radio frequency (2400 + Channel MHz).
	// Range: 1 to 124. Defaults to 50 if not provided.
	Channel byte `yaml:"channel"`
	// DataRate sets the air data rate.
	// Defaults to DataRate2mbps.
	DataRate DataRate `yaml:"dataRate"`
	// PALevel sets the power amplifier level.
	// Defaults to PALevelMax.
	PALevel PALevel `yaml:"paLevel"`
	// AutoRetransmitDelay sets the auto-retransmit delay.
	// The value is in microseconds and must be a multiple of 250.
	// Range: 250 to 4000.
	// Defaults to 500 if not provided.
	AutoRetransmitDelay uint16 `yaml:"autoRetransmitDelay"`
	// AutoRetransmitCount sets the auto-retransmit count.
	// Range: 1 to 15.
	// Defaults to 10 if not provided.
	AutoRetransmitCount byte `yaml:"autoRetransmitCount"`
	// SPIClockHz is the SPI clock frequency in Hz.
	// Defaults to 100000 (100kHz) if not provided.
	SPIClockHz int `yaml:"spiClockHz"`
	// IRQEdge is the edge of the IRQ line that signals an event.
	// Defaults to hal.RisingEdge.
	IRQEdge hal.Edge `yaml:"irqEdge"`
	// StartupDelay is how long the chip is left alone after CE goes low.
	// Defaults to 150ms.
	StartupDelay time.Duration `yaml:"startupDelay"`
	// SettleDelay is waited after CE goes high, before the IRQ line is unmasked.
	// Defaults to 2ms.
	SettleDelay time.Duration `yaml:"settleDelay"`
}

func (c *RadioConfig) setDefaults() {
	if c.Channel == 0 {
		c.Channel = defaultChannel
	}
	if c.AutoRetransmitDelay == 0 {
		c.AutoRetransmitDelay = defaultRetransmitWait
	}
	if c.AutoRetransmitCount == 0 {
		c.AutoRetransmitCount = defaultRetransmits
	}
	if c.SPIClockHz == 0 {
		c.SPIClockHz = defaultSPIClockHz
	}
	if c.IRQEdge == hal.NoEdge {
		c.IRQEdge = hal.RisingEdge
	}
	if c.StartupDelay == 0 {
		c.StartupDelay = defaultStartupDelay
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = defaultSettleDelay
	}
}

func (c *RadioConfig) validate() error {
	if c.Channel > 124 {
		return fmt.Errorf("%w: channel number must be between 1 and 124", ErrPkg)
	}
	if c.DataRate > DataRate250kbps {
		return fmt.Errorf("%w: unknown data rate %d", ErrPkg, c.DataRate)
	}
	if c.PALevel > PALevelMin {
		return fmt.Errorf("%w: unknown PA level %d", ErrPkg, c.PALevel)
	}
	if c.AutoRetransmitDelay < 250 || c.AutoRetransmitDelay > 4000 || c.AutoRetransmitDelay%250 != 0 {
		return fmt.Errorf("%w: delay must be between 250 and 4000 us and multiple of 250", ErrPkg)
	}
	if c.AutoRetransmitCount > 15 {
		return fmt.Errorf("%w: count must be between 0 and 15", ErrPkg)
	}
	if c.SPIClockHz < 0 {
		return fmt.Errorf("%w: negative SPI clock", ErrPkg)
	}
	if c.StartupDelay < 0 || c.SettleDelay < 0 {
		return fmt.Errorf("%w: negative delay", ErrPkg)
	}
	return nil
}

// configValue is the CONFIG register: 2 byte CRC, role, optionally powered up.
func (c *RadioConfig) configValue(role Role, powerUp bool) byte {
	v := byte(_EN_CRC | _CRCO)
	if role == Receiver {
		v |= _PRIM_RX
	}
	if powerUp {
		v |= _PWR_UP
	}
	return v
}

func (c *RadioConfig) retransmitValue() byte {
	ard := (c.AutoRetransmitDelay/250 - 1) & 0x0F
	arc := c.AutoRetransmitCount & 0x0F
	return (byte(ard) << 4) | arc
}

func (c *RadioConfig) rfSetupValue() byte {
	var rfSetup byte
	switch c.DataRate {
	case DataRate1mbps:
		// RF_DR_HIGH = 0, RF_DR_LOW = 0
	case DataRate2mbps:
		rfSetup |= _RF_DR_HIGH
	case DataRate250kbps:
		rfSetup |= _RF_DR_LOW
	}
	switch c.PALevel {
	case PALevelMin:
		// 0
	case PALevelLow:
		rfSetup |= 1 << 1
	case PALevelHigh:
		rfSetup |= 2 << 1
	case PALevelMax:
		rfSetup |= 3 << 1
	}
	return rfSetup
}

// checkPins rejects wiring where a pin is unset or two functions share one.
func checkPins[P comparable](unset, cs, ce, irq P) error {
	pins := [...]struct {
		name string
		pin  P
	}{{"CS", cs}, {"CE", ce}, {"IRQ", irq}}
	for i, a := range pins {
		if a.pin == unset {
			return fmt.Errorf("%w: %s pin not configured", ErrPkg, a.name)
		}
		for _, b := range pins[:i] {
			if a.pin == b.pin {
				return fmt.Errorf("%w: %s and %s share pin %v", ErrPkg, b.name, a.name, a.pin)
			}
		}
	}
	return nil
}

// HardwareConfig wires a Radio to its hardware.
type HardwareConfig struct {
	RadioConfig
	// Port is the SPI peripheral the radio is attached to.
	Port hal.Port
	// CS is the chip select pin, driven by the bus engine.
	CS hal.Pin
	// CE is the Chip Enable pin interface.
	CE hal.Pin
	// IRQ is the radio's interrupt line. It must start masked.
	IRQ hal.Line
	// Clock is used for the bring-up delays.
	// Defaults to hal.NewSystemClock().
	Clock hal.Clock
	// Critical is held by foreground calls while they touch driver state.
	// It must be the lock interrupt handlers run under (e.g. *hal.Controller);
	// the Radio releases it while an application callback runs.
	// Optional when handlers never run concurrently with the caller.
	Critical sync.Locker
	// Fault receives programming errors.
	// Defaults to diag.Halt.
	Fault diag.Fault
}

type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}
