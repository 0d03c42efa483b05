package nrf24

import "testing"

func TestLinkTransitions(t *testing.T) {
	type result struct {
		next link
		act  linkAction
	}
	const (
		idle = linkIdle
		up   = linkUploading
		upR  = linkUploadingRecvPending
		upRS = linkUploadingRecvPendingSendPending
		rx   = linkReceiving
		rxS  = linkReceivingSendPending
		rxR  = linkReceivingRecvPending
		rxRS = linkReceivingRecvPendingSendPending
	)
	fault := func(l link) result { return result{l, actFault} }

	// Columns: store, irq, upload done, receive done.
	table := map[link][4]result{
		idle: {{up, actUpload}, {rx, actReceive}, fault(idle), fault(idle)},
		up:   {fault(up), {upR, actNone}, {idle, actNone}, fault(up)},
		upR:  {{upRS, actDefer}, {upR, actNone}, {rx, actReceive}, fault(upR)},
		upRS: {{upRS, actDefer}, {upRS, actNone}, {rxS, actReceive}, fault(upRS)},
		rx:   {{rxS, actDefer}, {rxR, actNone}, fault(rx), {idle, actNone}},
		rxS:  {{rxS, actDefer}, {rxRS, actNone}, fault(rxS), {up, actUpload}},
		rxR:  {{rxRS, actDefer}, {rxR, actNone}, fault(rxR), {rx, actReceive}},
		rxRS: {{rxRS, actDefer}, {rxRS, actNone}, fault(rxRS), {upR, actUpload}},
	}
	if len(table) != len(linkNames) {
		t.Fatalf("Table covers %d states, want %d", len(table), len(linkNames))
	}

	events := []linkEvent{evStore, evIRQ, evUploadDone, evReceiveDone}
	for from, row := range table {
		for i, ev := range events {
			next, act := from.next(ev)
			if next != row[i].next || act != row[i].act {
				t.Errorf("%s on %s: expected (%s, %s), got (%s, %s)", ev, from, row[i].next, row[i].act, next, act)
			}
		}
	}
}

// Walks every event sequence up to a fixed depth and checks that the bus is
// never claimed twice and no request is dropped.
func TestLinkNeverDoubleBooksBus(t *testing.T) {
	type sim struct {
		state     link
		busy      bool // upload or receive chain on the bus
		uploading bool
		stores    int // StoreAckPayload calls not yet uploaded
		irqs      int // interrupts not yet serviced
	}
	var walk func(s sim, depth int)
	walk = func(s sim, depth int) {
		if depth == 0 {
			return
		}
		for _, ev := range []linkEvent{evStore, evIRQ, evUploadDone, evReceiveDone} {
			switch ev {
			case evStore:
				if s.uploading && !s.state.recvPending() {
					continue // a fault by contract
				}
			case evUploadDone:
				if !s.busy || !s.uploading {
					continue
				}
			case evReceiveDone:
				if !s.busy || s.uploading {
					continue
				}
			}
			next, act := s.state.next(ev)
			if act == actFault {
				t.Fatalf("%s on %s faulted", ev, s.state)
			}
			n := s
			n.state = next
			switch ev {
			case evStore:
				n.stores = 1
			case evIRQ:
				n.irqs = 1
			case evUploadDone, evReceiveDone:
				n.busy, n.uploading = false, false
			}
			switch act {
			case actUpload, actReceive:
				if n.busy {
					t.Fatalf("%s on %s started %s on a busy bus", ev, s.state, act)
				}
				n.busy = true
				n.uploading = act == actUpload
				if act == actUpload {
					n.stores = 0
				} else {
					n.irqs = 0
				}
			}
			if !n.busy && (n.stores > 0 || n.irqs > 0) {
				t.Fatalf("%s on %s left the bus idle with work pending (%+v)", ev, s.state, n)
			}
			walk(n, depth-1)
		}
	}
	walk(sim{}, 8)
}

func (l link) recvPending() bool {
	return l == linkUploadingRecvPending || l == linkUploadingRecvPendingSendPending
}
