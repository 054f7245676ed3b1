// Package buffer implements the shared data buffer (spec.md section 3/4.2):
// a fixed-size contiguous array of float64 carrying one simulation step of
// payload plus two trailing control cells (header, state).
//
// In the MPI source this array lives in a process-group-shared memory
// window; here one Go process holds the receiver and sender role-goroutines,
// so "shared" reduces to "referenced by every goroutine holding the *Buffer". The state cell is
// still accessed through sync/atomic to give the acquire/release ordering
// spec.md section 5 requires between the single producer and single
// consumer, even though they are goroutines rather than separate address
// spaces.
package buffer

import (
	"fmt"
	"sync/atomic"

	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/types"
)

// Buffer is one shared data buffer: Size = 2 + max_events float64 cells.
// Index -1 (Size-1) is the state cell, index -2 (Size-2) is the header
// cell, cells [0, Size-2) carry payload.
type Buffer struct {
	data  []float64
	state int32 // accessed only via sync/atomic; mirrors data[len(data)-1]
}

// New allocates a zeroed buffer of the given size (spec.md invariant: size
// = 2 + max_events). Size must be at least 2 to hold the two control
// cells.
func New(size int) (*Buffer, error) {
	if size < 2 {
		return nil, fmt.Errorf("%w: buffer size %d must be at least 2", types.ErrSetupFailure, size)
	}
	return &Buffer{data: make([]float64, size)}, nil
}

// Len returns the total cell count, including the two control cells.
func (b *Buffer) Len() int { return len(b.data) }

// PayloadLen returns the number of payload cells (Len - 2).
func (b *Buffer) PayloadLen() int { return len(b.data) - 2 }

// resolve maps the conventional -2/-1 offsets used throughout spec.md
// (header and state cells) into real slice indices. Any other index is passed
// through unchanged so GetAt/SetAt on payload cells remain simple.
func (b *Buffer) resolve(index int) int {
	if index < 0 {
		return len(b.data) + index
	}
	return index
}

// SetStateAt writes a buffer-state value at the given (typically -1)
// index. This is the sole mutation point for the synchronization cell and
// uses a release-store so a subsequent acquire-load by the other role
// observes every payload write that happened-before it.
func (b *Buffer) SetStateAt(index int, state types.BufferState) {
	i := b.resolve(index)
	b.data[i] = float64(state)
	atomic.StoreInt32(&b.state, int32(state))
}

// GetStateAt reads the buffer-state with acquire semantics.
func (b *Buffer) GetStateAt(index int) types.BufferState {
	return types.BufferState(atomic.LoadInt32(&b.state))
}

// SetHeaderAt writes an integer header (cast to float64) at the given
// (typically -2) index. header must satisfy invariant 2: header in
// [0, Len-2].
func (b *Buffer) SetHeaderAt(index int, header int) error {
	if header < 0 || header > b.PayloadLen() {
		return fmt.Errorf("%w: header %d out of range [0,%d]", types.ErrSetupFailure, header, b.PayloadLen())
	}
	i := b.resolve(index)
	b.data[i] = float64(header)
	return nil
}

// GetHeaderAt reads the header cell back as an int.
func (b *Buffer) GetHeaderAt(index int) int {
	i := b.resolve(index)
	return int(b.data[i])
}

// GetAt returns the single float64 at index (supports negative indexing).
func (b *Buffer) GetAt(index int) float64 {
	return b.data[b.resolve(index)]
}

// SetAt writes a single float64 at index.
func (b *Buffer) SetAt(index int, value float64) {
	b.data[b.resolve(index)] = value
}

// GetSlice returns a view of the payload starting at start and running to
// the end of the payload region (Len-2), suitable for the wire layer to
// read from or write into in place.
func (b *Buffer) GetSlice(start int) []float64 {
	end := len(b.data) - 2
	if start > end {
		start = end
	}
	return b.data[start:end]
}

// WriteAt copies values into the buffer starting at offset, returning the
// offset one past the last element written (the new running head).
func (b *Buffer) WriteAt(offset int, values []float64) (int, error) {
	if offset < 0 || offset+len(values) > b.PayloadLen() {
		return offset, fmt.Errorf("%w: write of %d floats at offset %d overflows payload of length %d",
			types.ErrSetupFailure, len(values), offset, b.PayloadLen())
	}
	copy(b.data[offset:offset+len(values)], values)
	return offset + len(values), nil
}

// Manager owns the (at most two) buffers for a run, distinguished by
// types.BufferType, matching the BufferManager contract of spec.md
// section 4.2.
type Manager struct {
	buffers map[types.BufferType]*Buffer
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{buffers: make(map[types.BufferType]*Buffer)}
}

// Create allocates a buffer of the given size under bufferType. At most two
// buffer types are meaningful (Input, Output); creating the same type
// twice replaces the previous allocation.
func (m *Manager) Create(size int, bufferType types.BufferType) (*Buffer, error) {
	b, err := New(size)
	if err != nil {
		return nil, err
	}
	m.buffers[bufferType] = b
	return b, nil
}

// Get returns the buffer for bufferType, or an error if it was never
// created.
func (m *Manager) Get(bufferType types.BufferType) (*Buffer, error) {
	b, ok := m.buffers[bufferType]
	if !ok {
		return nil, fmt.Errorf("%w: no buffer of type %s", types.ErrSetupFailure, bufferType)
	}
	return b, nil
}

// Destroy drops the reference to the buffer of the given type; there is no
// explicit OS resource to release since the buffer is a plain Go slice.
func (m *Manager) Destroy(bufferType types.BufferType) {
	delete(m.buffers, bufferType)
}
