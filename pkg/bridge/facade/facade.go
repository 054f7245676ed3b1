// Package facade implements the ManagerFacade (spec.md section 4.7, C7):
// the single entrypoint that loads configuration, opens both intercomms,
// allocates the shared buffer, builds the role partition and the
// appropriate directional pipeline, and runs it to completion. Lifecycle
// is a cancellable context plus a WaitGroup of role-goroutines, the same
// shape the teacher's Peer uses for its own poll loop
// (chaitanyaphalak-go-mcast/pkg/mcast/core/peer.go).
package facade

import (
	"context"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/xerrors"

	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/internal/config"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/buffer"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/comm"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/mediator"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/metrics"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/pipeline"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/roles"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/transform"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/types"
)

// Manager is the ManagerFacade: it owns every resource opened for one run
// and is the sole thing cmd/bridge talks to.
type Manager struct {
	cfg     config.Config
	log     types.Logger
	metrics *metrics.Registry

	commMgr    *comm.Manager
	upstream   *comm.Link
	downstream *comm.Link

	buffers *buffer.Manager
	part    *roles.Partition
	gens    *roles.SpikeGeneratorTable

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	results chan pipeline.Result
}

// New constructs a Manager without opening any resources; call Start to
// perform the handshake and begin the run (spec.md section 4.7: "load
// parameters; construct IntercommManager").
func New(cfg config.Config, log types.Logger, reg *metrics.Registry) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	part, err := roles.NewPartition(cfg.GroupSize, cfg.ReceiverRank, cfg.SenderRank)
	if err != nil {
		return nil, xerrors.Errorf("facade: %w: %v", types.ErrSetupFailure, err)
	}
	// Every log line for this run carries a run id, the Go equivalent of
	// the named run-scoped logger manager_base.py builds per InterscaleHub
	// instance (original_source/Interscale_hub/manager_base.py).
	runLog := log.WithField("run_id", uuid.New().String())
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:     cfg,
		log:     runLog,
		metrics: reg,
		commMgr: comm.NewManager(runLog),
		buffers: buffer.NewManager(),
		part:    part,
		ctx:     ctx,
		cancel:  cancel,
		results: make(chan pipeline.Result, 2),
	}, nil
}

// Start performs the handshake sequence (spec.md section 4.7) and
// dispatches the receiver and sender role-goroutines for the configured
// direction. It returns once both handshakes complete; the pipeline
// itself keeps running until Wait returns.
func (m *Manager) Start() error {
	direction, err := m.cfg.ParsedDirection()
	if err != nil {
		return err
	}

	bufType := types.Input
	if direction == types.TVBToNEST {
		bufType = types.Output
	}
	buf, err := m.buffers.Create(m.cfg.BufferSize(), bufType)
	if err != nil {
		return xerrors.Errorf("facade: allocate buffer: %w", err)
	}

	kernel := transform.New(transform.Config{
		TimeSynchronization: m.cfg.TimeSynchronization,
		Resolution:          m.cfg.Resolution,
		NumNeurons:          m.cfg.NumNeurons,
		FirstNeuronID:       m.cfg.IDFirstNeurons,
	}, rand.New(rand.NewSource(1)))
	med := mediator.New(kernel, m.buffers)

	switch direction {
	case types.NESTToTVB:
		return m.startNestToTVB(buf, med)
	case types.TVBToNEST:
		return m.startTvbToNest(buf, med)
	default:
		return xerrors.Errorf("facade: %w: unhandled direction %s", types.ErrSetupFailure, direction)
	}
}

func (m *Manager) startNestToTVB(buf *buffer.Buffer, med *mediator.Mediator) error {
	upstream, err := m.commMgr.OpenAndAccept(m.cfg.SpikeDetectorHandshakePath(0), types.NESTToTVB, m.cfg.EffectiveUpstreamPeers())
	if err != nil {
		return xerrors.Errorf("facade: %w", err)
	}
	m.upstream = upstream

	downstream, err := m.commMgr.OpenAndAccept(m.cfg.SendToTVBHandshakePath(), types.NESTToTVB, 1)
	if err != nil {
		upstream.Close()
		return xerrors.Errorf("facade: %w", err)
	}
	m.downstream = downstream

	p := &pipeline.NestToTVB{
		Upstream:   upstream,
		Downstream: downstream,
		Buf:        buf,
		Mediator:   med,
		Metrics:    m.metrics,
		Log:        m.log,
	}

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.results <- p.ReceiveLoop(m.ctx)
	}()
	go func() {
		defer m.wg.Done()
		m.results <- p.EmitLoop(m.ctx)
	}()
	return nil
}

func (m *Manager) startTvbToNest(buf *buffer.Buffer, med *mediator.Mediator) error {
	ids, err := comm.WaitForUnlockSentinel(m.ctx, m.cfg.SpikeGeneratorIDPath())
	if err != nil {
		return xerrors.Errorf("facade: %w", err)
	}
	if len(ids) == 0 {
		return xerrors.Errorf("facade: %w: no spike generator ids found at %s", types.ErrSetupFailure, m.cfg.SpikeGeneratorIDPath())
	}
	m.gens = roles.NewSpikeGeneratorTable(ids[0], len(ids))

	upstream, err := m.commMgr.OpenAndAccept(m.cfg.ReceiveFromTVBHandshakePath(), types.TVBToNEST, 1)
	if err != nil {
		return xerrors.Errorf("facade: %w", err)
	}
	m.upstream = upstream

	downstream, err := m.commMgr.OpenAndAccept(m.cfg.SpikeGeneratorHandshakePath(m.gens.FirstID(), 0), types.TVBToNEST, m.gens.Count())
	if err != nil {
		upstream.Close()
		return xerrors.Errorf("facade: %w", err)
	}
	m.downstream = downstream

	p := &pipeline.TvbToNest{
		Upstream:   upstream,
		Downstream: downstream,
		Buf:        buf,
		Mediator:   med,
		Generators: m.gens,
		Metrics:    m.metrics,
		Log:        m.log,
	}

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.results <- p.ReceiveLoop(m.ctx)
	}()
	go func() {
		defer m.wg.Done()
		m.results <- p.EmitLoop(m.ctx)
	}()
	return nil
}

// Wait blocks until both role-goroutines exit, returning the first
// non-OK result (if any) as an error. A fatal result from either loop
// cancels the run's context so the other loop unwinds too.
func (m *Manager) Wait() error {
	var firstErr error
	for i := 0; i < 2; i++ {
		r := <-m.results
		if !r.OK && firstErr == nil {
			firstErr = r.Err
			m.cancel()
		}
	}
	m.wg.Wait()
	return firstErr
}

// Stop cancels the run and closes both intercomms, aggregating any
// teardown errors (spec.md section 4.7: "close both intercomms and
// finalize"). Teardown is best-effort, matching comm.Link.Close.
func (m *Manager) Stop() error {
	m.cancel()
	var result *multierror.Error
	if m.upstream != nil {
		if err := m.upstream.Close(); err != nil {
			result = multierror.Append(result, xerrors.Errorf("close upstream: %w", err))
		}
	}
	if m.downstream != nil {
		if err := m.downstream.Close(); err != nil {
			result = multierror.Append(result, xerrors.Errorf("close downstream: %w", err))
		}
	}
	return result.ErrorOrNil()
}
