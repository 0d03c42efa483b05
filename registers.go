package nrf24

import "fmt"

// Address is a pipe address as written to RX_ADDR_P0 and TX_ADDR.
type Address [5]byte

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4])
}

// PipeAddress is the only address this driver uses, on both sides of the link.
var PipeAddress = Address{0xE7, 0xE7, 0xE7, 0xE7, 0xE7}

// MaxPayload is the largest payload the chip carries in one packet.
const MaxPayload = 32

// Status Register Bits
const (
	StatusDataReady  = 1 << 6 // RX_DR
	StatusDataSent   = 1 << 5 // TX_DS
	StatusMaxRetries = 1 << 4 // MAX_RT
	StatusTXFIFOFull = 1 << 0 // TX_FULL
)

// --- NRF24L01 Registers/Commands/Bits ---

// NRF24 Register Addresses
const (
	_CONFIG     = 0x00
	_EN_AA      = 0x01 // Auto Ack
	_EN_RXADDR  = 0x02
	_SETUP_AW   = 0x03
	_SETUP_RETR = 0x04
	_RF_CH      = 0x05
	_RF_SETUP   = 0x06
	_STATUS     = 0x07
	_RX_ADDR_P0 = 0x0A
	_TX_ADDR    = 0x10
	_DYNPD      = 0x1C // Dynamic Payload Register
	_FEATURE    = 0x1D // Feature Register
)

// NRF24 Commands
const (
	_W_REGISTER    = 0x20
	_R_RX_PL_WID   = 0x60
	_R_RX_PAYLOAD  = 0x61
	_W_TX_PAYLOAD  = 0xA0
	_W_ACK_PAYLOAD = 0xA8 // + pipe (0-5)
	_FLUSH_TX      = 0xE1
	_FLUSH_RX      = 0xE2
	_ACTIVATE      = 0x50 // followed by _ACTIVATE_DATA
	_ACTIVATE_DATA = 0x73
	_NOP           = 0xFF
)

// NRF24 Register Bit Definitions
const (
	_PWR_UP  = 1 << 1
	_PRIM_RX = 1 << 0
	_EN_CRC  = 1 << 3
	_CRCO    = 1 << 2 // 2 byte CRC

	_RX_DR  = 1 << 6
	_TX_DS  = 1 << 5
	_MAX_RT = 1 << 4

	_ENAA_P0 = 1 << 0
	_ERX_P0  = 1 << 0
	_DPL_P0  = 1 << 0

	_AW_5_BYTES = 0x03

	_RF_DR_LOW  = 1 << 5
	_RF_DR_HIGH = 1 << 3

	_EN_DPL     = 1 << 2 // Enable Dynamic Payload Length
	_EN_ACK_PAY = 1 << 1 // Enable ACK Payload
)

// Transaction lengths of the elementary bus operations.
const (
	lenCommand  = 1
	lenRegister = 2
	lenAddress  = 1 + len(Address{})
)
