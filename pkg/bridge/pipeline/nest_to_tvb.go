package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/xerrors"

	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/buffer"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/comm"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/mediator"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/metrics"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/types"
)

// NestToTVB drives the NEST->TVB coupling direction: spikes in, rates out
// (spec.md section 4.5). The receiver role writes spike payload into the
// shared buffer; the sender role (which in the MVP also performs the
// transform, per the section's design note) reads it, converts to rate,
// and forwards it to TVB.
type NestToTVB struct {
	Upstream   *comm.Link // from NEST
	Downstream *comm.Link // to TVB
	Buf        *buffer.Buffer
	Mediator   *mediator.Mediator
	Metrics    *metrics.Registry
	Log        types.Logger
}

// headerIndex/stateIndex are the conventional tail-cell offsets used by
// both directions (spec.md section 3).
const (
	headerIndex = -2
	stateIndex  = -1
)

// ReceiveLoop implements spec.md section 4.5's Receive Loop, executed by
// the R_recv rank.
func (p *NestToTVB) ReceiveLoop(ctx context.Context) Result {
	p.Buf.SetStateAt(stateIndex, types.ReadyToReceive)
	if err := p.Buf.SetHeaderAt(headerIndex, 0); err != nil {
		return fail(xerrors.Errorf("nest->tvb receive init: %w", err))
	}

	for {
		tag0, err := p.Upstream.RecvTag(0)
		if err != nil {
			return fail(xerrors.Errorf("nest->tvb receive tag from peer 0: %w", err))
		}
		for i := 1; i < len(p.Upstream.Peers); i++ {
			tag, err := p.Upstream.RecvTag(i)
			if err != nil {
				return fail(xerrors.Errorf("nest->tvb receive tag from peer %d: %w", i, err))
			}
			if tag != tag0 {
				p.fault(types.ErrTagInconsistency)
				return fail(xerrors.Errorf("nest->tvb: peer %d sent tag %s, expected %s matching peer 0: %w", i, tag, tag0, types.ErrTagInconsistency))
			}
		}

		switch tag0 {
		case types.TagPayload:
			if err := p.receivePayloadStep(ctx); err != nil {
				return fail(err)
			}
		case types.TagSkip:
			p.Log.Debugf("nest->tvb receive: skip tag, no payload this step")
			continue
		case types.TagEnd:
			p.Log.Infof("nest->tvb receive: end of simulation")
			return ok()
		default:
			p.fault(types.ErrBadTag)
			return fail(xerrors.Errorf("nest->tvb receive: %w: %s", types.ErrBadTag, tag0))
		}
	}
}

func (p *NestToTVB) receivePayloadStep(ctx context.Context) error {
	if err := waitForState(ctx, p.Buf, stateIndex, types.ReadyToReceive, p.Metrics, types.NESTToTVB, types.RoleReceiver); err != nil {
		return xerrors.Errorf("nest->tvb receive: waiting for READY_TO_RECEIVE: %w", err)
	}

	runningHead := 0
	for s := range p.Upstream.Peers {
		if err := p.Upstream.SendBool(s, true); err != nil {
			return xerrors.Errorf("nest->tvb receive: go-ahead to peer %d: %w", s, err)
		}
		shape, err := p.Upstream.RecvInt32(s)
		if err != nil {
			return xerrors.Errorf("nest->tvb receive: shape from peer %d: %w", s, err)
		}
		dst := p.Buf.GetSlice(runningHead)
		if int(shape) > len(dst) {
			return fmt.Errorf("%w: peer %d shape %d overflows remaining payload capacity %d", types.ErrSetupFailure, s, shape, len(dst))
		}
		if shape > 0 {
			if err := p.Upstream.RecvFloatsInto(s, dst[:shape]); err != nil {
				return xerrors.Errorf("nest->tvb receive: payload from peer %d: %w", s, err)
			}
		}
		runningHead += int(shape)
	}

	if err := p.Buf.SetHeaderAt(headerIndex, runningHead); err != nil {
		return xerrors.Errorf("nest->tvb receive: %w", err)
	}
	p.Buf.SetStateAt(stateIndex, types.ReadyToTransform)
	if p.Metrics != nil {
		p.Metrics.StepsTotal.WithLabelValues(types.NESTToTVB.String(), types.RoleReceiver.String()).Inc()
		p.Metrics.BufferHeaderLen.WithLabelValues(types.Input.String()).Set(float64(runningHead))
	}
	p.Log.WithField("step_id", p.Mediator.Count()).Debugf("nest->tvb receive: payload step complete, %d values", runningHead)
	return nil
}

// EmitLoop implements spec.md section 4.5's Emit Loop, executed by the
// R_send rank (which also performs the fold-in transform step per the
// MVP design note).
func (p *NestToTVB) EmitLoop(ctx context.Context) Result {
	for {
		source, tag, err := p.Downstream.RecvTagAny(ctx)
		if err != nil {
			return fail(xerrors.Errorf("nest->tvb emit: waiting for demand signal: %w", err))
		}

		switch tag {
		case types.TagPayload:
			if err := p.emitStep(ctx, source); err != nil {
				return fail(err)
			}
		case types.TagSkip:
			p.Log.Infof("nest->tvb emit: downstream signalled end")
			return ok()
		default:
			p.fault(types.ErrBadTag)
			return fail(xerrors.Errorf("nest->tvb emit: %w: %s", types.ErrBadTag, tag))
		}
	}
}

func (p *NestToTVB) emitStep(ctx context.Context, source int) error {
	if err := waitForState(ctx, p.Buf, stateIndex, types.ReadyToTransform, p.Metrics, types.NESTToTVB, types.RoleSender); err != nil {
		return xerrors.Errorf("nest->tvb emit: waiting for READY_TO_TRANSFORM: %w", err)
	}

	stepID := p.Mediator.Count()
	times, rates, err := p.Mediator.SpikesToRate(headerIndex, types.Input)
	if err != nil {
		p.fault(types.ErrTransformFailure)
		return xerrors.Errorf("nest->tvb emit: transform: %w", err)
	}
	p.Log.WithField("step_id", stepID).Debugf("nest->tvb emit: %d rate samples to peer %d", len(rates), source)

	// Re-arm the receiver before replying, matching spec.md section 4.5.
	p.Buf.SetStateAt(stateIndex, types.ReadyToReceive)

	if err := p.Downstream.SendFloats(source, times[:]); err != nil {
		return xerrors.Errorf("nest->tvb emit: send times to peer %d: %w", source, err)
	}
	if err := p.Downstream.SendInt32(source, int32(len(rates))); err != nil {
		return xerrors.Errorf("nest->tvb emit: send rate size to peer %d: %w", source, err)
	}
	if err := p.Downstream.SendFloats(source, rates); err != nil {
		return xerrors.Errorf("nest->tvb emit: send rates to peer %d: %w", source, err)
	}

	if p.Metrics != nil {
		p.Metrics.StepsTotal.WithLabelValues(types.NESTToTVB.String(), types.RoleSender.String()).Inc()
	}
	return nil
}

func (p *NestToTVB) fault(kind error) {
	if p.Metrics != nil {
		p.Metrics.ProtocolFaults.WithLabelValues(kind.Error()).Inc()
	}
}
