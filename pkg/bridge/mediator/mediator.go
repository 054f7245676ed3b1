// Package mediator implements the thin façade of spec.md section 4.4: it
// routes transform calls to the correct kernel method and owns the
// run-scoped simulation-step counter. No rank other than the emit role
// ever advances the counter (spec.md section 9, "Global run-scoped
// state").
package mediator

import (
	"fmt"
	"sync"

	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/buffer"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/transform"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/types"
)

// Mediator is the single owner of the step counter and the route to the
// numeric kernel.
type Mediator struct {
	mu      sync.Mutex
	count   int
	kernel  *transform.Kernel
	buffers *buffer.Manager
}

// New builds a Mediator over the given kernel and buffer manager, starting
// the step counter at 0 (spec.md section 3: "k... starts at 0").
func New(kernel *transform.Kernel, buffers *buffer.Manager) *Mediator {
	return &Mediator{kernel: kernel, buffers: buffers}
}

// Count returns the current step counter without advancing it.
func (m *Mediator) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// SpikesToRate reads the header at headerIndex and the payload from the
// named buffer, invokes the spikes->rate kernel over the current step
// counter, and advances the counter on success (spec.md section 4.5: the
// emit loop calls this once per delivered step, then increments count).
func (m *Mediator) SpikesToRate(headerIndex int, bufferType types.BufferType) (times [2]float64, rates []float64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.buffers.Get(bufferType)
	if err != nil {
		return times, nil, fmt.Errorf("%w: %v", types.ErrTransformFailure, err)
	}
	size := b.GetHeaderAt(headerIndex)
	payload := b.GetSlice(0)
	times, rates, err = m.kernel.SpikesToRate(m.count, payload, size)
	if err != nil {
		return times, nil, err
	}
	m.count++
	return times, rates, nil
}

// RateToSpikes reads [t_start, t_end] from the first two payload cells and
// the rate samples up to the header, invokes the rate->spikes kernel, and
// advances the counter on success.
func (m *Mediator) RateToSpikes(bufferType types.BufferType) ([][]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.buffers.Get(bufferType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrTransformFailure, err)
	}
	header := b.GetHeaderAt(-2)
	tStart := b.GetAt(0)
	tStop := b.GetAt(1)
	rates := b.GetSlice(2)
	if header < len(rates) {
		rates = rates[:header]
	}
	trains, err := m.kernel.RateToSpikes(tStart, tStop, rates)
	if err != nil {
		return nil, err
	}
	m.count++
	return trains, nil
}
