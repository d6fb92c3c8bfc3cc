// Package capture drives the frame loop: it renders every frame and, when an operator asked for
// it, projects, assembles, and writes the current frame as a PCD file.
package capture

import (
	"go.uber.org/atomic"
)

// State is the save request state of a Controller.
type State int32

// The controller states.
const (
	Idle State = iota
	SavePending
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case SavePending:
		return "save_pending"
	default:
		return "unknown"
	}
}

// Controller holds at most one pending save request. Trigger may be called from any goroutine.
type Controller struct {
	state atomic.Int32
}

// NewController returns an idle controller.
func NewController() *Controller {
	return &Controller{}
}

// Trigger requests a save. It returns false when a save is already pending, in which case the
// call has no effect.
func (c *Controller) Trigger() bool {
	return c.state.CompareAndSwap(int32(Idle), int32(SavePending))
}

// Pending reports whether a save was requested and not yet consumed.
func (c *Controller) Pending() bool {
	return c.State() == SavePending
}

// State returns the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Consume runs fn if a save is pending and then returns to Idle, whether or not fn failed. The
// request stays pending while fn runs, so triggers during a save are dropped.
func (c *Controller) Consume(fn func() error) (bool, error) {
	if !c.Pending() {
		return false, nil
	}
	defer c.state.Store(int32(Idle))
	return true, fn()
}
