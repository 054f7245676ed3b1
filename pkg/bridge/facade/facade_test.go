package facade

import (
	"bufio"
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/internal/config"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/comm"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/logging"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/metrics"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/types"

	"github.com/prometheus/client_golang/prometheus"
)

func baseConfig(t *testing.T, direction string) config.Config {
	t.Helper()
	return config.Config{
		Path:                t.TempDir(),
		Direction:           direction,
		TimeSynchronization: 1.0,
		Resolution:          0.1,
		NumNeurons:          2,
		MaxEvents:           100,
		GroupSize:           3,
		ReceiverRank:        1,
		SenderRank:          2,
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(config.Config{}, logging.NewDefaultLogger(), nil)
	require.Error(t, err)
}

func TestNew_BuildsPartition(t *testing.T) {
	cfg := baseConfig(t, "nest-to-tvb")
	reg := metrics.New(prometheus.NewRegistry())
	m, err := New(cfg, logging.NewDefaultLogger(), reg)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, m.part.Receivers)
	assert.Equal(t, []int{2}, m.part.Senders)
	assert.Equal(t, []int{0}, m.part.Transformers)
}

// readHandshakeAddr polls until the handshake file appears and returns its
// contents.
func readHandshakeAddr(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		addr, err := comm.ReadHandshakeAddress(path)
		if err == nil {
			return addr
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("handshake file %s never appeared", path)
	return ""
}

func TestManager_NestToTVBEndToEnd(t *testing.T) {
	cfg := baseConfig(t, "nest-to-tvb")
	cfg.NumUpstreamPeers = 1
	reg := metrics.New(prometheus.NewRegistry())
	m, err := New(cfg, logging.NewDefaultLogger(), reg)
	require.NoError(t, err)

	startErr := make(chan error, 1)
	go func() { startErr <- m.Start() }()

	nestConn := dialHandshake(t, cfg.SpikeDetectorHandshakePath(0))
	tvbConn := dialHandshake(t, cfg.SendToTVBHandshakePath())

	require.NoError(t, <-startErr)

	// NEST sends one step, TVB demands it and reads back.
	require.NoError(t, binary.Write(nestConn, binary.BigEndian, int32(types.TagPayload)))
	readByte(t, nestConn)
	require.NoError(t, binary.Write(nestConn, binary.BigEndian, int32(6)))
	require.NoError(t, binary.Write(nestConn, binary.BigEndian, []float64{100.0, 0.0, 0.5, 100.0, 1.0, 0.7}))

	require.NoError(t, binary.Write(tvbConn, binary.BigEndian, int32(types.TagPayload)))
	var times [2]float64
	require.NoError(t, binary.Read(tvbConn, binary.BigEndian, &times))
	assert.Equal(t, [2]float64{0.0, 1.0}, times)
	var size int32
	require.NoError(t, binary.Read(tvbConn, binary.BigEndian, &size))
	rates := make([]float64, size)
	require.NoError(t, binary.Read(tvbConn, binary.BigEndian, rates))

	require.NoError(t, binary.Write(nestConn, binary.BigEndian, int32(types.TagEnd)))
	require.NoError(t, binary.Write(tvbConn, binary.BigEndian, int32(types.TagSkip)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Wait() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("manager did not finish in time")
	}

	nestConn.Close()
	tvbConn.Close()
	m.Stop()
}

func dialHandshake(t *testing.T, path string) net.Conn {
	t.Helper()
	addr := readHandshakeAddr(t, path)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	return conn
}

func readByte(t *testing.T, conn net.Conn) {
	t.Helper()
	r := bufio.NewReader(conn)
	_, err := r.ReadByte()
	require.NoError(t, err)
}
