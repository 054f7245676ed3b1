// Package types holds the shared vocabulary of the bridge: the direction
// and role enums, the buffer-state alphabet, control tags and the sentinel
// errors every other package builds on.
package types

import "fmt"

// Direction selects which pair of external simulators is coupled for the
// life of one run. Exactly one direction is active per launch.
type Direction int

const (
	// NESTToTVB couples an upstream spiking-network simulator (NEST) to a
	// downstream mean-field simulator (TVB): spikes in, rates out.
	NESTToTVB Direction = iota
	// TVBToNEST couples an upstream mean-field simulator to a downstream
	// spiking-network simulator: rates in, spikes out.
	TVBToNEST
)

func (d Direction) String() string {
	switch d {
	case NESTToTVB:
		return "nest-to-tvb"
	case TVBToNEST:
		return "tvb-to-nest"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection maps the configuration string to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "nest-to-tvb", "NEST_TO_TVB", "nest_to_tvb":
		return NESTToTVB, nil
	case "tvb-to-nest", "TVB_TO_NEST", "tvb_to_nest":
		return TVBToNEST, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

// BufferState is the sole synchronization variable between the receiver and
// sender roles, stored in the shared buffer's tail cell.
type BufferState int32

const (
	// Wait is the idle state before a buffer has been armed for its first
	// step; not used by either directional state machine after startup.
	Wait BufferState = iota
	// ReadyToReceive / Ready means the receiver role may write payload.
	ReadyToReceive
	// ReadyToTransform means the NEST->TVB emit role may read payload.
	ReadyToTransform
	// Head means the TVB->NEST emit role may read payload (the TVB->NEST
	// direction's subset alphabet names this state Head instead of
	// ReadyToTransform; spec.md section 3 treats the two names as the same
	// slot in each direction's two-token ping-pong).
	Head
)

// Ready is an alias for ReadyToReceive used by the TVB->NEST direction,
// which only ever distinguishes Ready/Head (spec.md section 3).
const Ready = ReadyToReceive

func (s BufferState) String() string {
	switch s {
	case Wait:
		return "WAIT"
	case ReadyToReceive:
		return "READY_TO_RECEIVE"
	case ReadyToTransform:
		return "READY_TO_TRANSFORM"
	case Head:
		return "HEAD"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// BufferType distinguishes the (at most two) shared buffers a run may
// allocate, when the transformer's input and output formats differ.
type BufferType int

const (
	Input BufferType = iota
	Output
)

func (t BufferType) String() string {
	if t == Input {
		return "INPUT"
	}
	return "OUTPUT"
}

// ControlTag is the small ordered alphabet used by the wire protocol with
// the external simulators (spec.md section 3).
type ControlTag int32

const (
	// TagPayload means payload follows this control message.
	TagPayload ControlTag = 0
	// TagSkip means advance the simulation step without payload (NEST->TVB
	// receive loop) or end-of-simulation (TVB->NEST receive loop) depending
	// on direction; TagEnd is used for the unambiguous hard-stop case.
	TagSkip ControlTag = 1
	// TagEnd is a hard end-of-simulation marker.
	TagEnd ControlTag = 2
)

func (t ControlTag) Valid() bool {
	return t == TagPayload || t == TagSkip || t == TagEnd
}

func (t ControlTag) String() string {
	switch t {
	case TagPayload:
		return "PAYLOAD"
	case TagSkip:
		return "SKIP"
	case TagEnd:
		return "END"
	default:
		return fmt.Sprintf("tag(%d)", int(t))
	}
}

// Role is one of the three disjoint rank sets partitioning the process
// group (spec.md section 3, "Rank Roles").
type Role int

const (
	RoleReceiver Role = iota
	RoleTransformer
	RoleSender
)

func (r Role) String() string {
	switch r {
	case RoleReceiver:
		return "receiver"
	case RoleTransformer:
		return "transformer"
	case RoleSender:
		return "sender"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}
