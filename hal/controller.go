package hal

import (
	"context"
	"sync"
	"sync/atomic"
)

// Priority orders vectors. Lower values are serviced first.
type Priority uint8

const (
	PriorityBus Priority = iota
	PriorityRadio
)

// Controller is a software interrupt controller. Handlers of all its vectors
// run one at a time on the goroutine calling Run, which makes that goroutine
// the interrupt context of the driver stack. The Controller doubles as the
// critical section (sync.Locker) foreground code takes before touching state
// shared with handlers: no handler runs while it is held.
type Controller struct {
	mu   sync.Mutex
	wake chan struct{}

	vmu     sync.Mutex
	vectors []*Vector
}

// NewController returns a Controller with no vectors.
func NewController() *Controller {
	return &Controller{wake: make(chan struct{}, 1)}
}

// Lock enters the critical section.
func (c *Controller) Lock() { c.mu.Lock() }

// Unlock leaves the critical section.
func (c *Controller) Unlock() { c.mu.Unlock() }

// NewVector registers a masked vector with no handler.
func (c *Controller) NewVector(name string, prio Priority) *Vector {
	v := &Vector{ctl: c, name: name, prio: prio}
	v.masked.Store(true)

	c.vmu.Lock()
	c.vectors = append(c.vectors, v)
	c.vmu.Unlock()
	return v
}

// Run services vectors until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake:
		}
		c.Service()
	}
}

// Service runs pending, unmasked handlers in priority order until none is left.
// Handlers run with the critical section held.
func (c *Controller) Service() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		v, h := c.next()
		if v == nil {
			return
		}
		if h != nil {
			h()
		}
	}
}

func (c *Controller) next() (*Vector, func()) {
	c.vmu.Lock()
	defer c.vmu.Unlock()

	var best *Vector
	for _, v := range c.vectors {
		if !v.pending.Load() || v.masked.Load() {
			continue
		}
		if best == nil || v.prio < best.prio {
			best = v
		}
	}
	if best == nil {
		return nil, nil
	}
	// Cleared on pick: an edge raised from here on is serviced again.
	best.pending.Store(false)
	return best, best.handler
}

func (c *Controller) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Vector is one interrupt source of a Controller. It implements Line.
type Vector struct {
	ctl     *Controller
	name    string
	prio    Priority
	handler func()

	pending atomic.Bool
	masked  atomic.Bool
}

// Name returns the name given at registration.
func (v *Vector) Name() string { return v.name }

// Listen installs the handler.
func (v *Vector) Listen(handler func()) error {
	v.ctl.vmu.Lock()
	v.handler = handler
	v.ctl.vmu.Unlock()
	return nil
}

// Raise latches the vector as pending. It is safe from any goroutine.
func (v *Vector) Raise() {
	v.pending.Store(true)
	if !v.masked.Load() {
		v.ctl.signal()
	}
}

// Mask blocks delivery. Raised edges stay pending.
func (v *Vector) Mask() { v.masked.Store(true) }

// Unmask allows delivery and schedules any pending edge.
func (v *Vector) Unmask() {
	v.masked.Store(false)
	if v.pending.Load() {
		v.ctl.signal()
	}
}

// Pending reports whether an edge is waiting to be serviced.
func (v *Vector) Pending() bool { return v.pending.Load() }

// Masked reports whether delivery is blocked.
func (v *Vector) Masked() bool { return v.masked.Load() }

// PinLine is a Line fed by edges on a GPIO pin.
type PinLine struct {
	pin  Pin
	edge Edge
	vec  *Vector
}

// NewPinLine routes edges of pin through a new vector of ctl.
func NewPinLine(ctl *Controller, name string, prio Priority, pin Pin, edge Edge) *PinLine {
	return &PinLine{pin: pin, edge: edge, vec: ctl.NewVector(name, prio)}
}

// Listen installs handler and starts watching the pin.
func (l *PinLine) Listen(handler func()) error {
	if err := l.vec.Listen(handler); err != nil {
		return err
	}
	if err := l.pin.In(PullUp); err != nil {
		return err
	}
	return l.pin.Watch(l.edge, l.vec.Raise)
}

func (l *PinLine) Mask()   { l.vec.Mask() }
func (l *PinLine) Unmask() { l.vec.Unmask() }

// Close masks the line and stops watching the pin.
func (l *PinLine) Close() error {
	l.vec.Mask()
	return l.pin.Unwatch()
}
