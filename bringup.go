package nrf24

import "github.com/michcald/nrf24irq/hal"

// initStep is the position in the bring-up chain. Each step but the last
// two issues exactly one bus transaction whose completion runs the next.
type initStep uint8

const (
	stepConfig         initStep = iota // CONFIG: CRC and role, powered down
	stepAutoAck                        // EN_AA: pipe 0
	stepRxPipes                        // EN_RXADDR: pipe 0
	stepAddressWidth                   // SETUP_AW: 5 bytes
	stepRetransmit                     // SETUP_RETR
	stepChannel                        // RF_CH
	stepRFSetup                        // RF_SETUP
	stepRxAddress                      // RX_ADDR_P0
	stepTxAddress                      // TX_ADDR
	stepDynamicPayload                 // DYNPD: pipe 0
	stepActivate                       // ACTIVATE 0x73
	stepFeature                        // FEATURE: dynamic payload + ack payload
	stepClearStatus                    // STATUS: clear RX_DR, TX_DS, MAX_RT
	stepFlushTX
	stepFlushRX
	stepPowerUp    // CONFIG |= PWR_UP
	stepChipEnable // CE high, no transaction
	stepReady
	initSteps
)

var initStepNames = [initSteps]string{
	"config", "auto-ack", "rx-pipes", "address-width", "retransmit", "channel",
	"rf-setup", "rx-address", "tx-address", "dynamic-payload", "activate",
	"feature", "clear-status", "flush-tx", "flush-rx", "power-up",
	"chip-enable", "ready",
}

func (s initStep) String() string {
	if s < initSteps {
		return initStepNames[s]
	}
	return "done"
}

// initNext runs the current bring-up step and advances. It is the bus
// completion for every step that issues a transaction.
func (r *Radio) initNext() {
	if r.halted.Load() || r.step >= initSteps {
		return
	}
	step := r.step
	r.step++

	c := &r.config.RadioConfig
	switch step {
	case stepConfig:
		r.writeRegister(_CONFIG, c.configValue(r.Role(), false), r.onInit)
	case stepAutoAck:
		r.writeRegister(_EN_AA, _ENAA_P0, r.onInit)
	case stepRxPipes:
		r.writeRegister(_EN_RXADDR, _ERX_P0, r.onInit)
	case stepAddressWidth:
		r.writeRegister(_SETUP_AW, _AW_5_BYTES, r.onInit)
	case stepRetransmit:
		r.writeRegister(_SETUP_RETR, c.retransmitValue(), r.onInit)
	case stepChannel:
		r.writeRegister(_RF_CH, c.Channel, r.onInit)
	case stepRFSetup:
		r.writeRegister(_RF_SETUP, c.rfSetupValue(), r.onInit)
	case stepRxAddress:
		r.writeAddress(_RX_ADDR_P0, r.onInit)
	case stepTxAddress:
		r.writeAddress(_TX_ADDR, r.onInit)
	case stepDynamicPayload:
		r.writeRegister(_DYNPD, _DPL_P0, r.onInit)
	case stepActivate:
		r.out[0] = _ACTIVATE
		r.out[1] = _ACTIVATE_DATA
		r.bus.Transfer(r.out[:], nil, 2, r.onInit)
	case stepFeature:
		r.writeRegister(_FEATURE, _EN_DPL|_EN_ACK_PAY, r.onInit)
	case stepClearStatus:
		r.writeRegister(_STATUS, _RX_DR|_TX_DS|_MAX_RT, r.onInit)
	case stepFlushTX:
		r.command(_FLUSH_TX, r.onInit)
	case stepFlushRX:
		r.command(_FLUSH_RX, r.onInit)
	case stepPowerUp:
		r.writeRegister(_CONFIG, c.configValue(r.Role(), true), r.onInit)
	case stepChipEnable:
		r.ce.Out(hal.High)
		r.initNext()
	case stepReady:
		r.ready.Store(true)
	}
}
