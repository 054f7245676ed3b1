package pipeline

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/logging"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/roles"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/types"
)

func TestTvbToNest_S6OneStepRateToSpikes(t *testing.T) {
	upstream, tvbPeers := newPipeLink(1)
	downstream, nestPeers := newPipeLink(1)

	buf, med := newMediator(t, types.Output, 10)
	gens := roles.NewSpikeGeneratorTable(100, 1)
	p := &TvbToNest{Upstream: upstream, Downstream: downstream, Buf: buf, Mediator: med, Generators: gens, Log: logging.NewDefaultLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recvDone := make(chan Result, 1)
	go func() { recvDone <- p.ReceiveLoop(ctx) }()
	emitDone := make(chan Result, 1)
	go func() { emitDone <- p.EmitLoop(ctx) }()

	// TVB side: wait for readiness, send tag, times, size, rate payload.
	go func() {
		readBool(t, tvbPeers[0])
		writeTag(t, tvbPeers[0], types.TagPayload)
		times := [2]float64{0.0, 1.0}
		require.NoError(t, binary.Write(tvbPeers[0], binary.BigEndian, times))
		require.NoError(t, binary.Write(tvbPeers[0], binary.BigEndian, int32(1)))
		require.NoError(t, binary.Write(tvbPeers[0], binary.BigEndian, []float64{50.0}))
	}()

	// NEST side: sends tag, requests 1 id, reads back shape + spike times.
	writeTag(t, nestPeers[0], types.TagPayload)
	require.NoError(t, binary.Write(nestPeers[0], binary.BigEndian, int32(1)))
	require.NoError(t, binary.Write(nestPeers[0], binary.BigEndian, int32(100)))

	var total int32
	require.NoError(t, binary.Read(nestPeers[0], binary.BigEndian, &total))
	var count int32
	require.NoError(t, binary.Read(nestPeers[0], binary.BigEndian, &count))
	assert.Equal(t, total, count)
	assert.InDelta(t, 50, int(total), 25)

	spikes := make([]float64, total)
	require.NoError(t, binary.Read(nestPeers[0], binary.BigEndian, spikes))
	for _, s := range spikes {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}

	go func() {
		readBool(t, tvbPeers[0])
		writeTag(t, tvbPeers[0], tagEndOfSimulation)
	}()
	writeTag(t, nestPeers[0], types.TagEnd)

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

	for _, c := range tvbPeers {
		c.Close()
	}
	for _, c := range nestPeers {
		c.Close()
	}
}

func TestTvbToNest_S4TagMismatch(t *testing.T) {
	upstream, _ := newPipeLink(1)
	downstream, nestPeers := newPipeLink(2)
	buf, med := newMediator(t, types.Output, 10)
	gens := roles.NewSpikeGeneratorTable(100, 1)
	p := &TvbToNest{Upstream: upstream, Downstream: downstream, Buf: buf, Mediator: med, Generators: gens, Log: logging.NewDefaultLogger()}

	go writeTag(t, nestPeers[0], types.TagPayload)
	go writeTag(t, nestPeers[1], types.TagEnd)

	result := p.EmitLoop(context.Background())
	assert.False(t, result.OK)
	require.ErrorIs(t, result.Err, types.ErrTagInconsistency)

	for _, c := range nestPeers {
		c.Close()
	}
}

func TestTvbToNest_EndOfSimulation(t *testing.T) {
	upstream, tvbPeers := newPipeLink(1)
	downstream, _ := newPipeLink(1)
	buf, med := newMediator(t, types.Output, 10)
	gens := roles.NewSpikeGeneratorTable(100, 1)
	p := &TvbToNest{Upstream: upstream, Downstream: downstream, Buf: buf, Mediator: med, Generators: gens, Log: logging.NewDefaultLogger()}

	go func() {
		readBool(t, tvbPeers[0])
		writeTag(t, tvbPeers[0], tagEndOfSimulation)
	}()

	result := p.ReceiveLoop(context.Background())
	assert.True(t, result.OK)
	tvbPeers[0].Close()
}
