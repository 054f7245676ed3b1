// Package roles implements the IntraGroupPartitioner of spec.md section
// 4.7 (C5): splitting the process group into three disjoint rank sets,
// receivers, transformers, senders, and the spike-generator id table used
// by the TVB->NEST emit loop.
package roles

import "fmt"

// Partition is the fixed, never-reassigned mapping from rank id to role
// (spec.md section 3: "Role membership is fixed at start and never
// changes").
type Partition struct {
	Receivers    []int
	Transformers []int
	Senders      []int
}

// NewPartition builds the MVP partition described in spec.md section 3:
// R_recv and R_send are each a single explicit rank, and every remaining
// rank (out of the groupSize ranks numbered [0, groupSize)) belongs to
// R_xform.
func NewPartition(groupSize int, recvRank, sendRank int) (*Partition, error) {
	if groupSize < 3 {
		return nil, fmt.Errorf("group size %d must be at least 3 to hold distinct receiver, transformer and sender ranks", groupSize)
	}
	if recvRank == sendRank {
		return nil, fmt.Errorf("receiver rank %d and sender rank %d must differ", recvRank, sendRank)
	}
	if recvRank < 0 || recvRank >= groupSize || sendRank < 0 || sendRank >= groupSize {
		return nil, fmt.Errorf("receiver/sender rank out of range [0,%d)", groupSize)
	}

	p := &Partition{Receivers: []int{recvRank}, Senders: []int{sendRank}}
	for r := 0; r < groupSize; r++ {
		if r != recvRank && r != sendRank {
			p.Transformers = append(p.Transformers, r)
		}
	}
	return p, nil
}

// RoleOf returns which role the given rank belongs to.
func (p *Partition) RoleOf(rank int) (string, bool) {
	for _, r := range p.Receivers {
		if r == rank {
			return "receiver", true
		}
	}
	for _, r := range p.Senders {
		if r == rank {
			return "sender", true
		}
	}
	for _, r := range p.Transformers {
		if r == rank {
			return "transformer", true
		}
	}
	return "", false
}
