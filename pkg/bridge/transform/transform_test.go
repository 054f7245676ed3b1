package transform

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpikesToRate_S1TwoSpikesTwoNeurons(t *testing.T) {
	k := New(Config{
		TimeSynchronization: 1.0,
		Resolution:          0.1,
		NumNeurons:          2,
		FirstNeuronID:       0,
	}, rand.New(rand.NewSource(1)))

	spikes := []float64{100.0, 0.0, 0.5, 100.0, 1.0, 0.7}
	times, rates, err := k.SpikesToRate(0, spikes, len(spikes))
	require.NoError(t, err)

	assert.Equal(t, [2]float64{0.0, 1.0}, times)
	require.NotEmpty(t, rates)

	var nonZero int
	for _, r := range rates {
		if r > 0 {
			nonZero++
		}
	}
	assert.Greater(t, nonZero, 0, "expected at least one non-zero rate sample near the spikes")
}

func TestSpikesToRate_S2ZeroPayload(t *testing.T) {
	k := New(Config{
		TimeSynchronization: 1.0,
		Resolution:          0.1,
		NumNeurons:          2,
		FirstNeuronID:       0,
	}, nil)

	times, rates, err := k.SpikesToRate(0, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, [2]float64{0.0, 1.0}, times)
	for _, r := range rates {
		assert.Zero(t, r)
	}
}

func TestSpikesToRate_RejectsBadSize(t *testing.T) {
	k := New(Config{TimeSynchronization: 1.0, Resolution: 0.1, NumNeurons: 1}, nil)
	_, _, err := k.SpikesToRate(0, []float64{1, 2}, 2)
	require.Error(t, err)
}

func TestRateToSpikes_S6SingleGenerator(t *testing.T) {
	k := New(Config{}, rand.New(rand.NewSource(42)))

	trains, err := k.RateToSpikes(0.0, 1.0, []float64{50.0})
	require.NoError(t, err)
	require.Len(t, trains, 1)

	train := trains[0]
	assert.InDelta(t, 50, len(train), 25, "expected roughly 50 spikes for a 50Hz/1.0 window")
	for i, tm := range train {
		assert.GreaterOrEqual(t, tm, 0.0)
		assert.Less(t, tm, 1.0)
		if i > 0 {
			assert.GreaterOrEqual(t, tm, train[i-1], "spike times must be sorted")
		}
	}
}

func TestRateToSpikes_EmptyNeuronYieldsEmptyTrain(t *testing.T) {
	k := New(Config{}, rand.New(rand.NewSource(1)))
	trains, err := k.RateToSpikes(0.0, 1.0, []float64{0.0})
	require.NoError(t, err)
	require.Len(t, trains, 1)
	assert.Empty(t, trains[0])
}

func TestRateToSpikes_RejectsInvertedWindow(t *testing.T) {
	k := New(Config{}, nil)
	_, err := k.RateToSpikes(1.0, 0.0, []float64{1.0})
	require.Error(t, err)
}
