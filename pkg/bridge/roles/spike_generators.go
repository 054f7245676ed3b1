package roles

import "fmt"

// SpikeGeneratorTable resolves a wire-level spike generator id (used both
// as a spike-train index and, per spec.md section 9's documented
// ambiguity, as an MPI/protocol tag) back to a zero-based index relative
// to the first spike generator id configured at startup
// (spec.md section 4.6).
type SpikeGeneratorTable struct {
	firstID int
	count   int
}

// NewSpikeGeneratorTable builds a table for `count` generators starting at
// firstID, as read from the handshake id file (spec.md section 4.7).
func NewSpikeGeneratorTable(firstID, count int) *SpikeGeneratorTable {
	return &SpikeGeneratorTable{firstID: firstID, count: count}
}

// IndexOf maps a wire generator id to its zero-based slot, or an error if
// the id falls outside the configured range. The offset conflation
// (index and protocol tag sharing one integer) is preserved for wire
// compatibility per spec.md section 9; IndexOf only ever performs the
// index half of that conflation.
func (t *SpikeGeneratorTable) IndexOf(id int) (int, error) {
	idx := id - t.firstID
	if idx < 0 || idx >= t.count {
		return 0, fmt.Errorf("spike generator id %d out of configured range [%d,%d)", id, t.firstID, t.firstID+t.count)
	}
	return idx, nil
}

// FirstID returns the configured first spike generator id.
func (t *SpikeGeneratorTable) FirstID() int { return t.firstID }

// Count returns the number of configured spike generators.
func (t *SpikeGeneratorTable) Count() int { return t.count }
