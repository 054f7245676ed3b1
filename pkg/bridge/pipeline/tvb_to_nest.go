package pipeline

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/buffer"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/comm"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/mediator"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/metrics"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/roles"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/types"
)

// tagEndOfSimulation documents the TVB->NEST direction's two-tag receive
// alphabet (spec.md section 4.6): tag 1 here means "end of simulation",
// unlike the NEST->TVB receive loop where tag 1 means "skip this step".
// The wire value is the same types.TagSkip constant; only the meaning
// differs by direction, which is why each loop interprets it locally
// rather than sharing a name across both directions.
const tagEndOfSimulation = types.TagSkip

// TvbToNest drives the TVB->NEST coupling direction: rates in, spikes out
// (spec.md section 4.6).
type TvbToNest struct {
	Upstream    *comm.Link // from TVB
	Downstream  *comm.Link // to NEST spike generators
	Buf         *buffer.Buffer
	Mediator    *mediator.Mediator
	Generators  *roles.SpikeGeneratorTable
	Metrics     *metrics.Registry
	Log         types.Logger
}

// ReceiveLoop implements spec.md section 4.6's Receive Loop (from TVB).
func (p *TvbToNest) ReceiveLoop(ctx context.Context) Result {
	p.Buf.SetStateAt(stateIndex, types.Ready)
	if err := p.Buf.SetHeaderAt(headerIndex, 0); err != nil {
		return fail(xerrors.Errorf("tvb->nest receive init: %w", err))
	}

	for {
		for s := range p.Upstream.Peers {
			if err := p.Upstream.SendBool(s, true); err != nil {
				return fail(xerrors.Errorf("tvb->nest receive: readiness to peer %d: %w", s, err))
			}
		}

		tag, err := p.Upstream.RecvTag(0)
		if err != nil {
			return fail(xerrors.Errorf("tvb->nest receive: tag from peer 0: %w", err))
		}

		switch tag {
		case types.TagPayload:
			if err := p.receivePayloadStep(ctx); err != nil {
				return fail(err)
			}
		case tagEndOfSimulation:
			p.Log.Infof("tvb->nest receive: end of simulation")
			return ok()
		default:
			p.fault(types.ErrBadTag)
			return fail(xerrors.Errorf("tvb->nest receive: %w: %s", types.ErrBadTag, tag))
		}
	}
}

func (p *TvbToNest) receivePayloadStep(ctx context.Context) error {
	var times [2]float64
	if err := p.Upstream.RecvFloatsInto(0, times[:]); err != nil {
		return xerrors.Errorf("tvb->nest receive: t_start/t_end: %w", err)
	}

	if err := waitForState(ctx, p.Buf, stateIndex, types.Ready, p.Metrics, types.TVBToNEST, types.RoleReceiver); err != nil {
		return xerrors.Errorf("tvb->nest receive: waiting for READY: %w", err)
	}

	size, err := p.Upstream.RecvInt32(0)
	if err != nil {
		return xerrors.Errorf("tvb->nest receive: rate array size: %w", err)
	}

	if _, err := p.Buf.WriteAt(0, times[:]); err != nil {
		return xerrors.Errorf("tvb->nest receive: %w", err)
	}
	if size > 0 {
		dst := p.Buf.GetSlice(2)
		if int(size) > len(dst) {
			return xerrors.Errorf("tvb->nest receive: rate size %d overflows buffer capacity %d", size, len(dst))
		}
		if err := p.Upstream.RecvFloatsInto(0, dst[:size]); err != nil {
			return xerrors.Errorf("tvb->nest receive: rate payload: %w", err)
		}
	}

	if err := p.Buf.SetHeaderAt(headerIndex, int(size)); err != nil {
		return xerrors.Errorf("tvb->nest receive: %w", err)
	}
	p.Buf.SetStateAt(stateIndex, types.Head)
	if p.Metrics != nil {
		p.Metrics.StepsTotal.WithLabelValues(types.TVBToNEST.String(), types.RoleReceiver.String()).Inc()
		p.Metrics.BufferHeaderLen.WithLabelValues(types.Output.String()).Set(float64(size))
	}
	p.Log.WithField("step_id", p.Mediator.Count()).Debugf("tvb->nest receive: payload step complete, %d rate samples", size)
	return nil
}

// EmitLoop implements spec.md section 4.6's Emit Loop (to NEST spike
// generators). Where the source diverges across peer ranks (spec.md
// section 9's documented ambiguity: "only the last peer's tag is checked
// against downstream state"), this implementation requires every
// downstream rank to agree on the step's tag, exactly like the NEST->TVB
// receive loop already does, and treats disagreement as a
// TagInconsistency fault rather than silently using the last reader's
// value.
func (p *TvbToNest) EmitLoop(ctx context.Context) Result {
	for {
		tag0, err := p.Downstream.RecvTag(0)
		if err != nil {
			return fail(xerrors.Errorf("tvb->nest emit: tag from peer 0: %w", err))
		}
		for i := 1; i < len(p.Downstream.Peers); i++ {
			tag, err := p.Downstream.RecvTag(i)
			if err != nil {
				return fail(xerrors.Errorf("tvb->nest emit: tag from peer %d: %w", i, err))
			}
			if tag != tag0 {
				p.fault(types.ErrTagInconsistency)
				return fail(xerrors.Errorf("tvb->nest emit: peer %d sent tag %s, expected %s matching peer 0: %w", i, tag, tag0, types.ErrTagInconsistency))
			}
		}

		switch tag0 {
		case types.TagPayload:
			if err := p.emitStep(ctx); err != nil {
				return fail(err)
			}
		case types.TagSkip:
			// Per-step sentinel marker; nothing to do this round.
			continue
		case types.TagEnd:
			p.Log.Infof("tvb->nest emit: end of simulation")
			return ok()
		default:
			p.fault(types.ErrBadTag)
			return fail(xerrors.Errorf("tvb->nest emit: %w: %s", types.ErrBadTag, tag0))
		}
	}
}

func (p *TvbToNest) emitStep(ctx context.Context) error {
	if err := waitForState(ctx, p.Buf, stateIndex, types.Head, p.Metrics, types.TVBToNEST, types.RoleSender); err != nil {
		return xerrors.Errorf("tvb->nest emit: waiting for HEAD: %w", err)
	}

	stepID := p.Mediator.Count()
	trains, err := p.Mediator.RateToSpikes(types.Output)
	if err != nil {
		p.fault(types.ErrTransformFailure)
		return xerrors.Errorf("tvb->nest emit: transform: %w", err)
	}

	p.Buf.SetStateAt(stateIndex, types.Ready)

	for r := range p.Downstream.Peers {
		k, err := p.Downstream.RecvInt32(r)
		if err != nil {
			return xerrors.Errorf("tvb->nest emit: request count from peer %d: %w", r, err)
		}
		if k <= 0 {
			continue
		}
		ids, err := p.Downstream.RecvInt32Slice(r, int(k))
		if err != nil {
			return xerrors.Errorf("tvb->nest emit: requested ids from peer %d: %w", r, err)
		}

		var total int32
		counts := make([]int32, len(ids))
		var data []float64
		for i, id := range ids {
			idx, err := p.Generators.IndexOf(int(id))
			if err != nil {
				return xerrors.Errorf("tvb->nest emit: %w", err)
			}
			if idx >= len(trains) {
				return xerrors.Errorf("tvb->nest emit: generator index %d has no spike train (only %d trains)", idx, len(trains))
			}
			train := trains[idx]
			counts[i] = int32(len(train))
			total += int32(len(train))
			data = append(data, train...)
		}

		sendShape := append([]int32{total}, counts...)
		// The first requested id doubles as the protocol tag (spec.md
		// section 9's documented conflation); wire framing here is purely
		// positional, so the tag has no further effect on this send.
		if err := p.Downstream.SendInt32Slice(r, sendShape); err != nil {
			return xerrors.Errorf("tvb->nest emit: send shape to peer %d: %w", r, err)
		}
		if err := p.Downstream.SendFloats(r, data); err != nil {
			return xerrors.Errorf("tvb->nest emit: send spike times to peer %d: %w", r, err)
		}
	}

	if p.Metrics != nil {
		p.Metrics.StepsTotal.WithLabelValues(types.TVBToNEST.String(), types.RoleSender.String()).Inc()
	}
	p.Log.WithField("step_id", stepID).Debugf("tvb->nest emit: spikes sent to %d generators", len(p.Downstream.Peers))
	return nil
}

func (p *TvbToNest) fault(kind error) {
	if p.Metrics != nil {
		p.Metrics.ProtocolFaults.WithLabelValues(kind.Error()).Inc()
	}
}
