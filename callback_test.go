package nrf24

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/michcald/nrf24irq/hal"
	"github.com/michcald/nrf24irq/hal/haltest"
)

// vectorPort completes bytes through a hal.Controller vector instead of the
// inline haltest line, so handlers run under the controller's critical section.
type vectorPort struct {
	*haltest.Port
	vec *hal.Vector
}

func (p *vectorPort) Put(b byte) {
	p.Port.Put(b)
	p.vec.Raise()
}

func (p *vectorPort) Interrupt() hal.Line { return p.vec }

// newControllerRadio brings a radio up with a hal.Controller as its critical
// section. The controller goroutine is stopped once Init returns; tests then
// drive interrupts with service.
func newControllerRadio(t *testing.T, role Role) (*Radio, *simChip, *hal.Controller, *hal.Vector, *haltest.Faults) {
	t.Helper()
	chip := newSimChip()
	faults := &haltest.Faults{}
	ctl := hal.NewController()
	irq := ctl.NewVector("nrf24-irq", hal.PriorityRadio)

	hw := chip.hardware(faults)
	hw.Port = &vectorPort{Port: chip.port, vec: ctl.NewVector("spi", hal.PriorityBus)}
	hw.IRQ = irq
	hw.Critical = ctl

	r, err := NewWithHardware(hw)
	if err != nil {
		t.Fatalf("NewWithHardware failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		ctl.Run(ctx)
		close(stopped)
	}()
	err = r.Init(role)
	cancel()
	<-stopped
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if len(faults.Errs) != 0 {
		t.Fatalf("Unexpected faults during Init: %v", faults.Errs)
	}
	chip.forget()
	return r, chip, ctl, irq, faults
}

// service runs pending handlers and fails if they do not return.
func service(t *testing.T, ctl *hal.Controller) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		ctl.Service()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Interrupt handlers did not return")
	}
}

func TestTransmitFromTxDone(t *testing.T) {
	r, chip, ctl, irq, faults := newControllerRadio(t, Transmitter)

	var results []string
	r.Transmit([]byte("one"), func(success bool, ack []byte) {
		results = append(results, "one")
		r.Transmit([]byte("two"), func(success bool, ack []byte) {
			results = append(results, "two")
		})
	})
	service(t, ctl)

	chip.status |= StatusDataSent
	irq.Raise()
	service(t, ctl)

	if len(results) != 1 || results[0] != "one" {
		t.Fatalf("Expected [one], got %v", results)
	}
	if !r.IsBusy() {
		t.Error("Expected the transmit started from the callback to be in flight")
	}
	if len(chip.uploaded) != 2 || !bytes.Equal(chip.uploaded[1], []byte("two")) {
		t.Errorf("Expected both payloads uploaded, got %q", chip.uploaded)
	}

	chip.status |= StatusDataSent
	irq.Raise()
	service(t, ctl)

	if len(results) != 2 || results[1] != "two" {
		t.Errorf("Expected [one two], got %v", results)
	}
	if r.IsBusy() {
		t.Error("Expected no transmit in flight")
	}
	if len(faults.Errs) != 0 {
		t.Errorf("Unexpected faults: %v", faults.Errs)
	}
}

func TestStoreAckPayloadFromRxDone(t *testing.T) {
	r, chip, ctl, irq, faults := newControllerRadio(t, Receiver)

	r.RegisterReceiveCallback(func(p []byte) {
		chip.event("rx " + string(p))
		r.StoreAckPayload([]byte("ack"))
		if len(chip.acks) != 0 {
			t.Error("Expected the upload to wait for the receive to retire")
		}
	})

	chip.rxFIFO = [][]byte{[]byte("ping")}
	chip.status |= StatusDataReady
	irq.Raise()
	service(t, ctl)

	want := []string{
		"spi FF",
		"spi 27 60",
		"spi 60 FF",
		"spi 61 FF FF FF FF",
		"rx ping",
		"spi A8 61 63 6B",
	}
	if len(chip.events) != len(want) {
		t.Fatalf("Expected events %q, got %q", want, chip.events)
	}
	for i := range want {
		if chip.events[i] != want[i] {
			t.Errorf("Event %d: expected %q, got %q", i, want[i], chip.events[i])
		}
	}
	if len(chip.acks) != 1 {
		t.Errorf("Expected exactly one upload, got %q", chip.acks)
	}
	if r.rx.link != linkIdle || len(faults.Errs) != 0 {
		t.Errorf("Expected idle link without faults, got %s %v", r.rx.link, faults.Errs)
	}
}

func TestForegroundWaitsForHandlers(t *testing.T) {
	r, chip, ctl, irq, faults := newControllerRadio(t, Receiver)
	r.RegisterReceiveCallback(func(p []byte) {})

	// Hold the critical section the way a running handler does.
	ctl.Lock()
	chip.rxFIFO = [][]byte{[]byte("hi")}
	chip.status |= StatusDataReady
	irq.Raise()

	stored := make(chan struct{})
	go func() {
		r.StoreAckPayload([]byte("ack"))
		close(stored)
	}()
	select {
	case <-stored:
		t.Fatal("StoreAckPayload entered the critical section while it was held")
	case <-time.After(20 * time.Millisecond):
	}
	ctl.Unlock()
	<-stored

	service(t, ctl)
	if len(chip.acks) != 1 || !bytes.Equal(chip.acks[0], []byte("ack")) {
		t.Errorf("Expected one ack upload, got %q", chip.acks)
	}
	if r.rx.link != linkIdle || len(faults.Errs) != 0 {
		t.Errorf("Expected idle link without faults, got %s %v", r.rx.link, faults.Errs)
	}
}
