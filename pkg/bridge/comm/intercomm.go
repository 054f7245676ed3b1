// Package comm implements the IntercommManager contract of spec.md
// section 4.1: publish an endpoint address, persist it to a handshake
// file the peer simulator reads, accept the peer's connection(s), and
// yield a communicator usable by every local role. The MPI notion of an
// "inter-group communicator" collapses here to a TCP listener plus the
// ordered set of accepted peer connections, and no retrieved example repo
// ships a framing library that matches spec.md section 6's raw
// tag-then-length-then-payload wire format, so the stdlib net package is
// the correct tool (see DESIGN.md).
package comm

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/types"
)

// Link is the inter-group communicator: one TCP listener and the ordered
// set of peer connections accepted on it. Rank assignment within a Link is
// by arrival order, since the wire protocol itself carries no rank id.
type Link struct {
	listener net.Listener
	Peers    []net.Conn
	Addr     string
	log      types.Logger
}

// Manager opens and tears down Links, matching the IntercommManager
// contract.
type Manager struct {
	log types.Logger
}

// NewManager builds a Manager. log must not be nil.
func NewManager(log types.Logger) *Manager {
	return &Manager{log: log}
}

// OpenAndAccept publishes a new TCP endpoint, persists its address to
// path, and blocks until numPeers connections have arrived, returning the
// resulting Link. On any failure the call returns a wrapped
// types.ErrSetupFailure and the run must abort (spec.md section 4.1).
func (m *Manager) OpenAndAccept(path string, direction types.Direction, numPeers int) (*Link, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("%w: listen for %s: %v", types.ErrSetupFailure, direction, err)
	}

	addr := listener.Addr().String()
	if err := persistHandshake(path, addr); err != nil {
		listener.Close()
		return nil, fmt.Errorf("%w: persist handshake at %s: %v", types.ErrSetupFailure, path, err)
	}

	link := &Link{listener: listener, Addr: addr, log: m.log}
	for i := 0; i < numPeers; i++ {
		conn, err := listener.Accept()
		if err != nil {
			link.Close()
			return nil, fmt.Errorf("%w: accept peer %d/%d on %s: %v", types.ErrSetupFailure, i+1, numPeers, addr, err)
		}
		link.Peers = append(link.Peers, conn)
	}
	m.log.Infof("accepted %d peer connection(s) for %s on %s", numPeers, direction, addr)
	return link, nil
}

// persistHandshake writes addr as plain text to path, creating parent
// directories as needed (the handshake file is the sole mechanism the
// peer uses to find this endpoint, spec.md section 6).
func persistHandshake(path, addr string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(addr), 0o644)
}

// Close disconnects every peer connection and the listener, returning the
// first error met. Teardown is best-effort: the facade's Stop collects
// the error and cmd/bridge only logs it, never escalating it to a fatal
// run error (spec.md section 4.1).
func (l *Link) Close() error {
	var firstErr error
	for _, c := range l.Peers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if l.listener != nil {
		if err := l.listener.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// --- wire primitives shared by both directional pipelines ---

// RecvTag reads a single control tag (int32) from peer index idx.
func (l *Link) RecvTag(idx int) (types.ControlTag, error) {
	var raw int32
	if err := binary.Read(l.Peers[idx], binary.BigEndian, &raw); err != nil {
		return 0, fmt.Errorf("recv tag from peer %d: %w", idx, err)
	}
	return types.ControlTag(raw), nil
}

// SendBool writes a single boolean to peer index idx (used as the
// receiver's go-ahead reply in the NEST->TVB direction, and as the
// readiness announcement in the TVB->NEST direction).
func (l *Link) SendBool(idx int, v bool) error {
	var b byte
	if v {
		b = 1
	}
	_, err := l.Peers[idx].Write([]byte{b})
	return err
}

// RecvInt32 reads one big-endian int32 from peer idx.
func (l *Link) RecvInt32(idx int) (int32, error) {
	var v int32
	err := binary.Read(l.Peers[idx], binary.BigEndian, &v)
	return v, err
}

// SendInt32 writes one big-endian int32 to peer idx.
func (l *Link) SendInt32(idx int, v int32) error {
	return binary.Write(l.Peers[idx], binary.BigEndian, v)
}

// RecvFloatsInto reads len(dst) big-endian float64 values from peer idx
// directly into dst (spec.md section 4.5: "receive shape[s] floats directly
// into the shared buffer").
func (l *Link) RecvFloatsInto(idx int, dst []float64) error {
	return binary.Read(l.Peers[idx], binary.BigEndian, dst)
}

// SendFloats writes the float64 slice to peer idx.
func (l *Link) SendFloats(idx int, values []float64) error {
	return binary.Write(l.Peers[idx], binary.BigEndian, values)
}

// RecvInt32Slice reads n big-endian int32 values from peer idx.
func (l *Link) RecvInt32Slice(idx int, n int) ([]int32, error) {
	values := make([]int32, n)
	err := binary.Read(l.Peers[idx], binary.BigEndian, values)
	return values, err
}

// SendInt32Slice writes the int32 slice to peer idx.
func (l *Link) SendInt32Slice(idx int, values []int32) error {
	return binary.Write(l.Peers[idx], binary.BigEndian, values)
}

// tagArrival is the result of a single peer's control-tag read, used by
// RecvTagAny to race reads across every peer connection.
type tagArrival struct {
	peer int
	tag  types.ControlTag
	err  error
}

// RecvTagAny posts a read on every peer connection and returns the first
// control tag to arrive, along with the index of the peer that sent it
// (spec.md section 4.5: "post a non-blocking receive on the outbound
// intercomm from any source/tag"). The losing reads are abandoned; their
// goroutines exit once their Read call returns (on data, on connection
// close, or when ctx is cancelled and the caller closes the link).
func (l *Link) RecvTagAny(ctx context.Context) (int, types.ControlTag, error) {
	results := make(chan tagArrival, len(l.Peers))
	for i := range l.Peers {
		go func(idx int) {
			tag, err := l.RecvTag(idx)
			select {
			case results <- tagArrival{peer: idx, tag: tag, err: err}:
			case <-ctx.Done():
			}
		}(i)
	}
	select {
	case r := <-results:
		return r.peer, r.tag, r.err
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	}
}

// SetDeadline applies an overall read/write deadline to every peer
// connection. A zero duration clears the deadline (no deadline, the
// default).
func (l *Link) SetDeadline(d time.Duration) {
	var deadline time.Time
	if d > 0 {
		deadline = time.Now().Add(d)
	}
	for _, c := range l.Peers {
		c.SetDeadline(deadline)
	}
}
