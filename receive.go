package nrf24

import (
	"fmt"

	"github.com/michcald/nrf24irq/diag"
)

// rxStage names the transaction of the receive chain currently on the bus.
type rxStage uint8

const (
	rxIdle    rxStage = iota
	rxStatus          // NOP status read
	rxClear           // STATUS = TX_DS | RX_DR
	rxWidth           // R_RX_PL_WID
	rxPayload         // R_RX_PAYLOAD
	rxFlush           // FLUSH_RX, bad width
)

type rxSession struct {
	done  RxDone
	link  link
	stage rxStage

	// ack is the latest payload handed to StoreAckPayload.
	ack    [MaxPayload]byte
	ackLen int
}

// reset keeps the registered callback.
func (s *rxSession) reset() {
	s.link = linkIdle
	s.stage = rxIdle
	s.ackLen = 0
}

// RegisterReceiveCallback sets the function payloads are delivered to.
// It may be called once per Radio.
func (r *Radio) RegisterReceiveCallback(done RxDone) {
	r.critical.Lock()
	defer r.critical.Unlock()

	if r.halted.Load() {
		return
	}
	if cur := r.Role(); cur != Receiver {
		r.halt(fmt.Errorf("%w: %w: RegisterReceiveCallback needs receiver, radio is %s", ErrPkg, ErrWrongRole, cur))
		return
	}
	if done == nil {
		r.halt(fmt.Errorf("%w: %w", ErrPkg, ErrNilCallback))
		return
	}
	if r.rx.done != nil {
		r.halt(fmt.Errorf("%w: %w", ErrPkg, ErrCallbackRegistered))
		return
	}
	r.rx.done = done
}

// StoreAckPayload queues data to be sent back with the next acknowledgment.
// If a receive is being serviced the upload is deferred until its callback
// has returned; a later call before then replaces the earlier data.
// Calling it while a previous upload is still on the bus is a fault.
func (r *Radio) StoreAckPayload(data []byte) {
	r.critical.Lock()
	defer r.critical.Unlock()

	if !r.admit(Receiver) {
		return
	}
	if err := checkPayload(data); err != nil {
		r.halt(err)
		return
	}
	if r.rx.link == linkUploading {
		r.halt(fmt.Errorf("%w: %w", ErrPkg, ErrAckUploadInFlight))
		return
	}
	r.rx.ackLen = copy(r.rx.ack[:], data)
	r.linkEvent(evStore)
}

// linkEvent feeds ev to the rendezvous and carries out the resulting action.
func (r *Radio) linkEvent(ev linkEvent) {
	from := r.rx.link
	to, act := from.next(ev)
	if act == actFault {
		r.halt(fmt.Errorf("%w: %w: %s in %s", ErrPkg, errLinkState, ev, from))
		return
	}
	r.rx.link = to

	switch act {
	case actUpload:
		r.writePayload(_W_ACK_PAYLOAD|0, r.rx.ack[:r.rx.ackLen], r.onUploaded)
	case actReceive:
		r.rx.stage = rxStatus
		r.readStatus(r.onRx)
	case actDefer:
		diag.Log().Debug("nrf24: ack payload deferred until receive completes")
	}
}

func (r *Radio) ackUploaded() {
	if r.halted.Load() {
		return
	}
	r.linkEvent(evUploadDone)
}

// deliver hands payload to the receive callback outside the critical section.
// A StoreAckPayload made from the callback is deferred until the receive has
// been retired.
func (r *Radio) deliver(payload []byte) {
	done := r.rx.done
	if done == nil {
		return
	}
	r.critical.Unlock()
	defer r.critical.Lock()
	done(payload)
}

// rxNext is the bus completion for every transaction of the receive chain.
func (r *Radio) rxNext() {
	if r.halted.Load() {
		return
	}
	switch r.rx.stage {
	case rxStatus:
		r.rx.stage = rxClear
		r.writeRegister(_STATUS, _TX_DS|_RX_DR, r.onRx)
	case rxClear:
		r.rx.stage = rxWidth
		r.irq.Unmask()
		r.readWidth(r.onRx)
	case rxWidth:
		if n := r.width[1]; !widthValid(n) {
			diag.Log().Warn("nrf24: invalid payload width, flushing RX FIFO")
			r.rx.stage = rxFlush
			r.command(_FLUSH_RX, r.onRx)
			return
		}
		r.rx.stage = rxPayload
		r.readPayload(int(r.width[1]), r.onRx)
	case rxPayload:
		r.rx.stage = rxIdle
		r.deliver(r.in[1 : 1+int(r.width[1])])
		if r.halted.Load() {
			return
		}
		r.linkEvent(evReceiveDone)
	case rxFlush:
		r.rx.stage = rxIdle
		r.linkEvent(evReceiveDone)
	}
}
