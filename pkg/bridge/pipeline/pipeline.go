// Package pipeline implements the receive/transform/send state machines
// of spec.md sections 4.5 and 4.6 (C6): the two directional pipelines
// (NEST->TVB and TVB->NEST) that drive one coupling direction, dispatched
// to the receiver and sender role-goroutines set up by the facade.
package pipeline

import (
	"context"
	"time"

	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/buffer"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/metrics"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/types"
)

// pollInterval is the busy-wait sleep between polls of the shared buffer
// state cell, the sole coordination mechanism between the receiver and
// sender roles (spec.md section 5), kept at the value the spec mandates.
const pollInterval = time.Millisecond

// Result is the outcome of one loop (Receive or Emit), matching the
// exit-code contract of spec.md section 6.
type Result struct {
	OK  bool
	Err error
}

// Status renders the exit code spec.md section 6 names.
func (r Result) Status() string {
	if r.OK {
		return "OK"
	}
	return "ERROR"
}

func ok() Result          { return Result{OK: true} }
func fail(err error) Result { return Result{OK: false, Err: err} }

// waitForState busy-waits until the buffer's state cell equals want, or
// ctx is cancelled. The 1ms sleep is explicit and intentional per
// spec.md section 5: the shared-memory medium has no cross-group
// condition variable to block on instead.
func waitForState(ctx context.Context, b *buffer.Buffer, index int, want types.BufferState, m *metrics.Registry, direction types.Direction, role types.Role) error {
	start := time.Now()
	defer func() {
		if m != nil {
			m.BufferWaitTime.WithLabelValues(direction.String(), role.String()).Observe(time.Since(start).Seconds())
		}
	}()
	for {
		if b.GetStateAt(index) == want {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
