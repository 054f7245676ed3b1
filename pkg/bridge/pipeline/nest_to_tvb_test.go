package pipeline

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/buffer"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/comm"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/logging"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/mediator"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/transform"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/types"
)

func writeTag(t *testing.T, conn net.Conn, tag types.ControlTag) {
	t.Helper()
	require.NoError(t, binary.Write(conn, binary.BigEndian, int32(tag)))
}

func readBool(t *testing.T, conn net.Conn) bool {
	t.Helper()
	buf := make([]byte, 1)
	_, err := conn.Read(buf)
	require.NoError(t, err)
	return buf[0] != 0
}

func newPipeLink(n int) (*comm.Link, []net.Conn) {
	link := &comm.Link{}
	var peers []net.Conn
	for i := 0; i < n; i++ {
		a, b := net.Pipe()
		link.Peers = append(link.Peers, a)
		peers = append(peers, b)
	}
	return link, peers
}

func newMediator(t *testing.T, bt types.BufferType, size int) (*buffer.Buffer, *mediator.Mediator) {
	t.Helper()
	bm := buffer.NewManager()
	b, err := bm.Create(size, bt)
	require.NoError(t, err)
	kernel := transform.New(transform.Config{TimeSynchronization: 1.0, Resolution: 0.1, NumNeurons: 2}, nil)
	return b, mediator.New(kernel, bm)
}

func TestNestToTVB_S1OneStepSpikesToRates(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))

	upstream, nestPeers := newPipeLink(1)
	downstream, tvbPeers := newPipeLink(1)

	buf, med := newMediator(t, types.Input, 10)
	log := logging.NewDefaultLogger()
	p := &NestToTVB{Upstream: upstream, Downstream: downstream, Buf: buf, Mediator: med, Log: log}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recvDone := make(chan Result, 1)
	go func() { recvDone <- p.ReceiveLoop(ctx) }()
	emitDone := make(chan Result, 1)
	go func() { emitDone <- p.EmitLoop(ctx) }()

	// NEST side: one peer sends tag 0, shape 6, then 2 spikes worth of triples.
	go func() {
		writeTag(t, nestPeers[0], types.TagPayload)
		readBool(t, nestPeers[0])
		require.NoError(t, binary.Write(nestPeers[0], binary.BigEndian, int32(6)))
		spikes := []float64{100.0, 0.0, 0.5, 100.0, 1.0, 0.7}
		require.NoError(t, binary.Write(nestPeers[0], binary.BigEndian, spikes))
	}()

	// TVB side: demands data, reads times/size/rates back.
	writeTag(t, tvbPeers[0], types.TagPayload)
	var times [2]float64
	require.NoError(t, binary.Read(tvbPeers[0], binary.BigEndian, &times))
	assert.Equal(t, [2]float64{0.0, 1.0}, times)

	var size int32
	require.NoError(t, binary.Read(tvbPeers[0], binary.BigEndian, &size))
	assert.Greater(t, size, int32(0))

	rates := make([]float64, size)
	require.NoError(t, binary.Read(tvbPeers[0], binary.BigEndian, rates))

	// Terminate both loops cleanly.
	go func() { writeTag(t, nestPeers[0], types.TagEnd) }()
	writeTag(t, tvbPeers[0], types.TagSkip)

	select {
	case r := <-recvDone:
		assert.True(t, r.OK)
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop did not terminate")
	}
	select {
	case r := <-emitDone:
		assert.True(t, r.OK)
	case <-time.After(2 * time.Second):
		t.Fatal("emit loop did not terminate")
	}

	assert.Equal(t, types.ReadyToReceive, buf.GetStateAt(stateIndex))

	for _, c := range nestPeers {
		c.Close()
	}
	for _, c := range tvbPeers {
		c.Close()
	}
	upstream.Close()
	downstream.Close()
}

func TestNestToTVB_S2ZeroPayloadStep(t *testing.T) {
	upstream, nestPeers := newPipeLink(1)
	downstream, tvbPeers := newPipeLink(1)
	buf, med := newMediator(t, types.Input, 10)
	p := &NestToTVB{Upstream: upstream, Downstream: downstream, Buf: buf, Mediator: med, Log: logging.NewDefaultLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recvDone := make(chan Result, 1)
	go func() { recvDone <- p.ReceiveLoop(ctx) }()
	emitDone := make(chan Result, 1)
	go func() { emitDone <- p.EmitLoop(ctx) }()

	go func() {
		writeTag(t, nestPeers[0], types.TagPayload)
		readBool(t, nestPeers[0])
		require.NoError(t, binary.Write(nestPeers[0], binary.BigEndian, int32(0)))
	}()

	writeTag(t, tvbPeers[0], types.TagPayload)
	var times [2]float64
	require.NoError(t, binary.Read(tvbPeers[0], binary.BigEndian, &times))
	var size int32
	require.NoError(t, binary.Read(tvbPeers[0], binary.BigEndian, &size))
	rates := make([]float64, size)
	require.NoError(t, binary.Read(tvbPeers[0], binary.BigEndian, rates))
	for _, r := range rates {
		assert.Zero(t, r)
	}

	go func() { writeTag(t, nestPeers[0], types.TagEnd) }()
	writeTag(t, tvbPeers[0], types.TagSkip)

	<-recvDone
	<-emitDone

	for _, c := range nestPeers {
		c.Close()
	}
	for _, c := range tvbPeers {
		c.Close()
	}
}

func TestNestToTVB_S3CleanTermination(t *testing.T) {
	upstream, nestPeers := newPipeLink(1)
	downstream, _ := newPipeLink(1)
	buf, med := newMediator(t, types.Input, 10)
	p := &NestToTVB{Upstream: upstream, Downstream: downstream, Buf: buf, Mediator: med, Log: logging.NewDefaultLogger()}

	go writeTag(t, nestPeers[0], types.TagEnd)

	result := p.ReceiveLoop(context.Background())
	assert.True(t, result.OK)
	nestPeers[0].Close()
}

func TestNestToTVB_S4TagMismatch(t *testing.T) {
	upstream, nestPeers := newPipeLink(2)
	downstream, _ := newPipeLink(1)
	buf, med := newMediator(t, types.Input, 10)
	p := &NestToTVB{Upstream: upstream, Downstream: downstream, Buf: buf, Mediator: med, Log: logging.NewDefaultLogger()}

	go writeTag(t, nestPeers[0], types.TagPayload)
	go writeTag(t, nestPeers[1], types.TagSkip)

	result := p.ReceiveLoop(context.Background())
	assert.False(t, result.OK)
	require.Error(t, result.Err)

	for _, c := range nestPeers {
		c.Close()
	}
}

func TestNestToTVB_S5BadTag(t *testing.T) {
	upstream, nestPeers := newPipeLink(1)
	downstream, _ := newPipeLink(1)
	buf, med := newMediator(t, types.Input, 10)
	p := &NestToTVB{Upstream: upstream, Downstream: downstream, Buf: buf, Mediator: med, Log: logging.NewDefaultLogger()}

	go writeTag(t, nestPeers[0], types.ControlTag(7))

	result := p.ReceiveLoop(context.Background())
	assert.False(t, result.OK)
	require.ErrorIs(t, result.Err, types.ErrBadTag)

	nestPeers[0].Close()
}
