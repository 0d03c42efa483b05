package bus

import (
	"bytes"
	"errors"
	"testing"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/michcald/nrf24irq/diag"
	"github.com/michcald/nrf24irq/hal"
	"github.com/michcald/nrf24irq/hal/haltest"
)

func newTestEngine(t *testing.T) (*Engine, *haltest.Port, *haltest.Pin, *haltest.Faults) {
	t.Helper()
	port := haltest.NewPort()
	sel := &haltest.Pin{}
	faults := &haltest.Faults{}
	e, err := New(port, sel, WithFault(faults.Record))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := e.Init(false, false, 100*physic.KiloHertz); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return e, port, sel, faults
}

// scripted answers each clocked byte with the next byte of miso.
func scripted(miso []byte) func(byte) byte {
	i := 0
	return func(byte) byte {
		b := miso[i%len(miso)]
		i++
		return b
	}
}

func TestMode(t *testing.T) {
	cases := []struct {
		cpol, cpha bool
		want       spi.Mode
	}{
		{false, false, spi.Mode0},
		{false, true, spi.Mode1},
		{true, false, spi.Mode2},
		{true, true, spi.Mode3},
	}
	for _, c := range cases {
		if got := Mode(c.cpol, c.cpha); got != c.want {
			t.Errorf("Mode(%v, %v) = %v, want %v", c.cpol, c.cpha, got, c.want)
		}
	}
}

func TestInit(t *testing.T) {
	e, port, sel, _ := newTestEngine(t)

	if port.Mode != spi.Mode0 || port.Freq != 100*physic.KiloHertz {
		t.Errorf("Expected Mode0 at 100kHz, got %v at %v", port.Mode, port.Freq)
	}
	if sel.Level != hal.High {
		t.Error("Expected select line deasserted after Init")
	}
	if e.IsBusy() {
		t.Error("Expected idle engine after Init")
	}
	if !port.Line.Masked() {
		t.Error("Expected completion interrupt masked while idle")
	}

	port.ConfigureErr = errors.New("no such bus")
	if err := e.Init(true, true, physic.MegaHertz); err == nil {
		t.Error("Expected Init to surface port configuration errors")
	}
}

func TestTransferRoundTrip(t *testing.T) {
	e, port, sel, faults := newTestEngine(t)

	for n := 1; n <= 40; n++ {
		miso := make([]byte, n)
		for i := range miso {
			miso[i] = byte(0x80 + i)
		}
		port.Respond = scripted(miso)
		port.Sent = nil

		w := make([]byte, n)
		for i := range w {
			w[i] = byte(i)
		}
		r := make([]byte, n)
		calls := 0
		var busyInDone bool
		selLevelInDone := hal.Low

		e.Transfer(w, r, n, func() {
			calls++
			busyInDone = e.IsBusy()
			selLevelInDone = sel.Level
		})

		if calls != 1 {
			t.Fatalf("n=%d: expected exactly one completion, got %d", n, calls)
		}
		if busyInDone {
			t.Errorf("n=%d: expected engine idle inside completion", n)
		}
		if selLevelInDone != hal.High {
			t.Errorf("n=%d: expected select deasserted before completion", n)
		}
		if !bytes.Equal(r, miso) {
			t.Errorf("n=%d: read %X, want %X", n, r, miso)
		}
		if !bytes.Equal(port.Sent, w) {
			t.Errorf("n=%d: wrote %X, want %X", n, port.Sent, w)
		}
	}
	if len(faults.Errs) != 0 {
		t.Errorf("Unexpected faults: %v", faults.Errs)
	}
}

func TestTransferWithoutReadBuffer(t *testing.T) {
	e, port, _, _ := newTestEngine(t)
	port.Respond = scripted([]byte{0xAA})

	w := []byte{0x20, 0x0F}
	done := false
	e.Transfer(w, nil, 2, func() { done = true })

	if !done {
		t.Fatal("Expected completion")
	}
	if !bytes.Equal(w, []byte{0x20, 0x0F}) {
		t.Errorf("Expected write buffer untouched, got %X", w)
	}
}

func TestTransferSharedBuffer(t *testing.T) {
	e, port, _, _ := newTestEngine(t)
	port.Respond = scripted([]byte{0x0E})

	// Status read: the reply overwrites the command in place.
	buf := []byte{0xFF}
	e.Transfer(buf, buf, 1, nil)
	if buf[0] != 0x0E {
		t.Errorf("Expected status 0x0E in place, got 0x%02X", buf[0])
	}
}

func TestTransferWhileBusyFaults(t *testing.T) {
	e, port, sel, faults := newTestEngine(t)
	port.Respond = scripted([]byte{1, 2, 3})
	port.Line.Hold = true

	r := make([]byte, 3)
	calls := 0
	e.Transfer([]byte{0xA, 0xB, 0xC}, r, 3, func() { calls++ })

	if !e.IsBusy() {
		t.Fatal("Expected engine busy while bytes are in flight")
	}
	if sel.Level != hal.Low {
		t.Error("Expected select asserted during transfer")
	}

	e.Transfer([]byte{0xFF}, nil, 1, func() { calls += 100 })
	if !errors.Is(faults.Last(), ErrBusy) {
		t.Fatalf("Expected ErrBusy fault, got %v", faults.Last())
	}
	if !e.Halted() {
		t.Error("Expected engine halted after fault")
	}
	if len(port.Sent) != 1 || port.Sent[0] != 0xA {
		t.Errorf("Second request must not reach the wire, sent %X", port.Sent)
	}

	// A halted engine never makes progress again.
	port.Line.Drain()
	if calls != 0 {
		t.Errorf("Expected no completion after fault, got %d", calls)
	}
}

func TestTransferPreconditions(t *testing.T) {
	cases := []struct {
		name string
		w, r []byte
		n    int
		want error
	}{
		{"nil write", nil, nil, 1, ErrNilWrite},
		{"zero length", []byte{1}, nil, 0, ErrLength},
		{"too long", make([]byte, 256), nil, 256, ErrLength},
		{"short write", []byte{1}, nil, 2, ErrLength},
		{"short read", []byte{1, 2}, []byte{0}, 2, ErrLength},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e, port, _, faults := newTestEngine(t)
			e.Transfer(c.w, c.r, c.n, nil)
			if !errors.Is(faults.Last(), c.want) {
				t.Errorf("Expected %v, got %v", c.want, faults.Last())
			}
			if len(port.Sent) != 0 {
				t.Errorf("Expected nothing on the wire, got %X", port.Sent)
			}
		})
	}
}

func TestTransferMaxLength(t *testing.T) {
	e, _, _, faults := newTestEngine(t)
	done := false
	e.Transfer(make([]byte, MaxLength), nil, MaxLength, func() { done = true })
	if !done || len(faults.Errs) != 0 {
		t.Errorf("Expected a %d byte transfer to complete, done=%v faults=%v", MaxLength, done, faults.Errs)
	}
}

func TestDoneCanChainTransfer(t *testing.T) {
	e, port, _, faults := newTestEngine(t)
	port.Line.Hold = true

	var order []string
	first := []byte{0x01, 0x02}
	second := []byte{0x03}
	e.Transfer(first, nil, 2, func() {
		order = append(order, "first")
		e.Transfer(second, nil, 1, func() { order = append(order, "second") })
	})
	port.Line.Drain()

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("Expected [first second], got %v", order)
	}
	if !bytes.Equal(port.Sent, []byte{1, 2, 3}) {
		t.Errorf("Expected chained bytes 010203, got %X", port.Sent)
	}
	if len(faults.Errs) != 0 {
		t.Errorf("Unexpected faults: %v", faults.Errs)
	}
}

// errorLog keeps the messages logged at error level.
type errorLog struct {
	errors []string
}

func (l *errorLog) Debug(string)     {}
func (l *errorLog) Info(string)      {}
func (l *errorLog) Warn(string)      {}
func (l *errorLog) Error(msg string) { l.errors = append(l.errors, msg) }

func TestSelectErrorLogged(t *testing.T) {
	e, port, sel, faults := newTestEngine(t)
	log := &errorLog{}
	prev := diag.Log()
	diag.SetLogger(log)
	t.Cleanup(func() { diag.SetLogger(prev) })

	sel.OutErr = errors.New("gpio unexported")
	done := false
	e.Transfer([]byte{0xAA, 0xBB}, nil, 2, func() { done = true })

	if !done {
		t.Error("Expected the transfer to complete despite select errors")
	}
	if !bytes.Equal(port.Sent, []byte{0xAA, 0xBB}) {
		t.Errorf("Expected AABB on the wire, got %X", port.Sent)
	}
	if len(log.errors) != 2 {
		t.Errorf("Expected assert and deassert errors logged, got %q", log.errors)
	}
	if len(faults.Errs) != 0 {
		t.Errorf("Expected no fault for a pin error, got %v", faults.Errs)
	}
	if e.IsBusy() {
		t.Error("Expected engine idle")
	}
}
