// Package transform implements the stateless numeric kernel of spec.md
// section 4.3: spikes<->rate conversion over one synchronization window.
// Both directions are pure functions of their inputs, no I/O, no shared
// state, grounded on original_source/refactored_modular/wrapper/
// elephant_wrapper_files/Spiketrain_to_rate.py, which this package
// re-expresses as a closed-form rectangular-kernel convolution instead of
// delegating to the elephant/neo Python stack (out of scope per spec.md
// section 1: "the rate/spike transformation numerics beyond their
// input/output shape").
package transform

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/types"
)

// AdaptationConstant is the fixed divisor applied to the mean firing rate
// before it is handed to TVB (spec.md section 4.3).
const AdaptationConstant = 10.0

// kernelWidthMS is the rectangular kernel width used by
// instantaneous_rate(..., kernel=RectangularKernel(1.0 * ms)) in the
// original implementation.
const kernelWidthMS = 1.0

// samplingEpsilon mirrors the original's `(self.__dt - 0.000001) * ms`
// sampling period, nudging the sample grid off the window boundary so the
// last sample always falls strictly inside [t_start, t_stop).
const samplingEpsilon = 1e-6

// stopPad mirrors `t_stop + 0.0001` in the original SpikeTrain construction
// (spec.md section 4.3: "t_stop is padded by +1e-4 ms to admit the final
// sample").
const stopPad = 1e-4

// Config carries the run-scoped parameters the kernel needs but cannot
// derive from a single buffer slice.
type Config struct {
	// TimeSynchronization is the synchronization window T, in ms.
	TimeSynchronization float64
	// Resolution is the integrator sampling resolution dt, in ms.
	Resolution float64
	// NumNeurons is the number of upstream (spike-side) neurons.
	NumNeurons int
	// FirstNeuronID is the id of the first neuron, used to turn a wire
	// neuron id into a zero-based bucket index.
	FirstNeuronID int
}

// Kernel is the Transformer record of spec.md section 4.4's Design Notes
// ("a record of two function pointers... the routing happens by which
// method the caller chose"): no reflection, just two named operations.
type Kernel struct {
	cfg Config
	rng *rand.Rand
}

// New builds a Kernel for the given configuration. rng may be nil, in
// which case a source seeded with the fixed value 1 is used, so the spike
// trains repeat from run to run.
func New(cfg Config, rng *rand.Rand) *Kernel {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Kernel{cfg: cfg, rng: rng}
}

// SpikesToRate interprets spikes[0:size] as a flat sequence of
// (device_id, neuron_id, spike_time) triples, three float64 per spike,
// and returns the window endpoints plus the per-sample rate in Hz,
// averaged across neurons and divided by AdaptationConstant.
func (k *Kernel) SpikesToRate(count int, spikes []float64, size int) (times [2]float64, rates []float64, err error) {
	if size%3 != 0 {
		return times, nil, fmt.Errorf("%w: spike buffer size %d is not a multiple of 3", types.ErrTransformFailure, size)
	}
	if size > len(spikes) {
		return times, nil, fmt.Errorf("%w: spike buffer size %d exceeds slice length %d", types.ErrTransformFailure, size, len(spikes))
	}

	tStart := float64(count) * k.cfg.TimeSynchronization
	tStop := float64(count+1) * k.cfg.TimeSynchronization
	times = [2]float64{tStart, tStop}

	perNeuron := make([][]float64, k.cfg.NumNeurons)
	for i := range perNeuron {
		perNeuron[i] = nil
	}
	for i := 0; i < size/3; i++ {
		neuronID := int(math.Round(spikes[i*3+1]))
		spikeTime := spikes[i*3+2]
		idx := neuronID - k.cfg.FirstNeuronID
		if idx < 0 || idx >= k.cfg.NumNeurons {
			return times, nil, fmt.Errorf("%w: neuron id %d out of configured range", types.ErrTransformFailure, neuronID)
		}
		perNeuron[idx] = append(perNeuron[idx], spikeTime)
	}

	samplePeriod := k.cfg.Resolution - samplingEpsilon
	if samplePeriod <= 0 {
		return times, nil, fmt.Errorf("%w: non-positive sampling period", types.ErrTransformFailure)
	}
	paddedStop := tStop + stopPad
	nSamples := int(math.Floor((paddedStop-tStart)/samplePeriod)) + 1

	rates = make([]float64, nSamples)
	halfKernel := kernelWidthMS / 2
	for s := 0; s < nSamples; s++ {
		sampleTime := tStart + float64(s)*samplePeriod
		var sumHz float64
		for n := 0; n < k.cfg.NumNeurons; n++ {
			count := countWithin(perNeuron[n], sampleTime-halfKernel, sampleTime+halfKernel)
			sumHz += (float64(count) / kernelWidthMS) * 1000.0
		}
		mean := 0.0
		if k.cfg.NumNeurons > 0 {
			mean = sumHz / float64(k.cfg.NumNeurons)
		}
		rates[s] = mean / AdaptationConstant
	}
	return times, rates, nil
}

// countWithin returns how many values in ts fall in [lo, hi).
func countWithin(ts []float64, lo, hi float64) int {
	n := 0
	for _, t := range ts {
		if t >= lo && t < hi {
			n++
		}
	}
	return n
}

// RateToSpikes interprets rates as one instantaneous firing rate (Hz) per
// downstream neuron, constant across [tStart, tStop), and generates one
// homogeneous Poisson spike train per neuron via exponential
// inter-arrival sampling (a degenerate, but exact, case of an
// inhomogeneous Poisson process when the rate function is piecewise
// constant over the window, which is all the wire data model carries per
// step, spec.md section 4.3). An empty or zero rate yields an empty spike
// train, never nil with an error (spec.md's empty-neuron edge case).
func (k *Kernel) RateToSpikes(tStart, tStop float64, rates []float64) ([][]float64, error) {
	if tStop < tStart {
		return nil, fmt.Errorf("%w: t_stop %f before t_start %f", types.ErrTransformFailure, tStop, tStart)
	}
	duration := tStop - tStart
	trains := make([][]float64, len(rates))
	for i, rateHz := range rates {
		trains[i] = k.poissonTrain(tStart, duration, rateHz)
	}
	return trains, nil
}

// poissonTrain draws spike times in [tStart, tStart+duration) for a
// homogeneous Poisson process of the given rate, via exponential
// inter-arrival times.
func (k *Kernel) poissonTrain(tStart, duration, rateHz float64) []float64 {
	if rateHz <= 0 || duration <= 0 {
		return []float64{}
	}
	var spikes []float64
	t := tStart
	for {
		t += k.rng.ExpFloat64() / rateHz
		if t >= tStart+duration {
			break
		}
		spikes = append(spikes, t)
	}
	if spikes == nil {
		spikes = []float64{}
	}
	sort.Float64s(spikes)
	return spikes
}
