package nrf24

import (
	"fmt"
	"sync/atomic"

	"github.com/michcald/nrf24irq/diag"
)

// txStage is where a transmit stands. Each stage names the transaction
// currently on the bus, or the event being waited for.
type txStage uint8

const (
	txIdle         txStage = iota
	txUploading            // W_TX_PAYLOAD
	txUploadingIRQ         // W_TX_PAYLOAD, IRQ already latched
	txAwaitIRQ             // payload in the chip
	txStatus               // NOP status read
	txClearMaxRT           // STATUS = MAX_RT
	txFlush                // FLUSH_TX after MAX_RT
	txClearSent            // STATUS = TX_DS
	txClearSentAck         // STATUS = TX_DS | RX_DR
	txAckWidth             // R_RX_PL_WID
	txAckPayload           // R_RX_PAYLOAD
	txAckFlush             // FLUSH_RX, bad ack width
)

var txStageNames = [...]string{
	"idle", "uploading", "uploading+irq", "await-irq", "status", "clear-max-rt",
	"flush-tx", "clear-sent", "clear-sent-ack", "ack-width", "ack-payload", "ack-flush",
}

func (s txStage) String() string {
	if int(s) < len(txStageNames) {
		return txStageNames[s]
	}
	return "unknown"
}

type txSession struct {
	inFlight atomic.Bool
	stage    txStage
	done     TxDone
}

func (s *txSession) reset() {
	s.inFlight.Store(false)
	s.stage = txIdle
	s.done = nil
}

// Transmit uploads data and returns. done is called exactly once, from
// interrupt context, when the chip reports the outcome.
// Only one transmit may be in flight; see IsBusy.
func (r *Radio) Transmit(data []byte, done TxDone) {
	r.critical.Lock()
	defer r.critical.Unlock()

	if !r.admit(Transmitter) {
		return
	}
	if r.tx.inFlight.Load() {
		r.halt(fmt.Errorf("%w: %w", ErrPkg, ErrTransmitInFlight))
		return
	}
	if err := checkPayload(data); err != nil {
		r.halt(err)
		return
	}

	r.tx.inFlight.Store(true)
	r.tx.done = done
	r.tx.stage = txUploading
	r.writePayload(_W_TX_PAYLOAD, data, r.onTx)
}

// IsBusy reports whether a transmit is in flight. It does not take the
// critical section, so callbacks may poll it.
func (r *Radio) IsBusy() bool {
	if r.halted.Load() {
		return false
	}
	if r.Role() != Transmitter {
		r.halt(fmt.Errorf("%w: %w: IsBusy needs transmitter", ErrPkg, ErrWrongRole))
		return false
	}
	return r.tx.inFlight.Load()
}

func (r *Radio) txInterrupt() {
	switch r.tx.stage {
	case txAwaitIRQ:
		r.tx.stage = txStatus
		r.readStatus(r.onTx)
	case txUploading:
		// The bus is still ours; pick the event up when the upload completes.
		r.tx.stage = txUploadingIRQ
	default:
		diag.Log().Warn("nrf24: spurious IRQ with no transmit pending")
		r.irq.Unmask()
	}
}

// txNext is the bus completion for every transaction of the transmit chain.
func (r *Radio) txNext() {
	if r.halted.Load() {
		return
	}
	switch r.tx.stage {
	case txUploading:
		r.tx.stage = txAwaitIRQ
	case txUploadingIRQ:
		r.tx.stage = txStatus
		r.readStatus(r.onTx)
	case txStatus:
		status := r.out[0]
		switch {
		case status&_MAX_RT != 0:
			r.tx.stage = txClearMaxRT
			r.writeRegister(_STATUS, _MAX_RT, r.onTx)
		case status&_RX_DR != 0:
			r.tx.stage = txClearSentAck
			r.writeRegister(_STATUS, _TX_DS|_RX_DR, r.onTx)
		default:
			r.tx.stage = txClearSent
			r.writeRegister(_STATUS, _TX_DS, r.onTx)
		}
	case txClearMaxRT:
		r.tx.stage = txFlush
		r.irq.Unmask()
		r.command(_FLUSH_TX, r.onTx)
	case txFlush:
		diag.Log().Debug("nrf24: maximum retransmissions reached")
		r.txComplete(false, nil)
	case txClearSent:
		r.irq.Unmask()
		r.txComplete(true, nil)
	case txClearSentAck:
		r.tx.stage = txAckWidth
		r.irq.Unmask()
		r.readWidth(r.onTx)
	case txAckWidth:
		if n := r.width[1]; !widthValid(n) {
			diag.Log().Warn("nrf24: invalid ack payload width, flushing RX FIFO")
			r.tx.stage = txAckFlush
			r.command(_FLUSH_RX, r.onTx)
			return
		}
		r.tx.stage = txAckPayload
		r.readPayload(int(r.width[1]), r.onTx)
	case txAckPayload:
		r.txComplete(true, r.in[1:1+int(r.width[1])])
	case txAckFlush:
		r.txComplete(true, nil)
	}
}

// txComplete retires the transmit before calling done outside the critical
// section, so done may start the next one.
func (r *Radio) txComplete(success bool, ack []byte) {
	done := r.tx.done
	r.tx.done = nil
	r.tx.stage = txIdle
	r.tx.inFlight.Store(false)
	if done != nil {
		r.critical.Unlock()
		defer r.critical.Lock()
		done(success, ack)
	}
}
