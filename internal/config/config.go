// Package config loads the bridge's launch dictionary (spec.md section 6):
// the shared directory, coupling direction, neuron/region ids, and the
// transform window parameters, from an optional YAML file with CLI flag
// overrides, matching the configuration layer's place in the pack's
// Packt linksrus services (flags first, file as a base).
package config

import (
	"fmt"
	"os"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"

	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/types"
)

// Config is the parsed launch dictionary of spec.md section 6.
type Config struct {
	Path                  string  `yaml:"path"`
	Direction             string  `yaml:"direction"`
	IDFirstNeurons        int     `yaml:"id_first_neurons"`
	IDFirstSpikeDetector  int     `yaml:"id_first_spike_detector"`
	IDNestRegion          int     `yaml:"id_nest_region"`
	TimeSynchronization   float64 `yaml:"time_synchronization"`
	Resolution            float64 `yaml:"resolution"`
	NumNeurons            int     `yaml:"nb_neurons"`
	MaxEvents             int     `yaml:"max_events"`
	GroupSize             int     `yaml:"group_size"`
	ReceiverRank          int     `yaml:"receiver_rank"`
	SenderRank            int     `yaml:"sender_rank"`
	// NumUpstreamPeers is the remote peer group's size for the direction's
	// input intercomm, the Go stand-in for MPI's Get_remote_size(), which
	// a TCP listener cannot discover on its own (original_source/Interscale_hub/
	// communicator_nest_to_tvb.py's "_num_sending = comm_receiver.Get_remote_size()").
	NumUpstreamPeers int `yaml:"num_upstream_peers"`
}

// Load reads the YAML file at path, returning a zero-valued Config when
// path is empty (CLI flags are expected to fill it in that case). A
// non-empty path that cannot be read or parsed is an error.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, xerrors.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, xerrors.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ParsedDirection resolves the configured direction string into the
// bridge's Direction enum, failing fast (spec.md section 7: unrecognized
// launch configuration is a SetupFailure) on anything else.
func (c Config) ParsedDirection() (types.Direction, error) {
	d, err := types.ParseDirection(c.Direction)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrSetupFailure, err)
	}
	return d, nil
}

// EffectiveUpstreamPeers returns the configured remote peer count for the
// input intercomm, defaulting to 1 when unset (the common single-sender
// MVP case).
func (c Config) EffectiveUpstreamPeers() int {
	if c.NumUpstreamPeers <= 0 {
		return 1
	}
	return c.NumUpstreamPeers
}

// BufferSize returns the shared buffer's total cell count (spec.md
// section 3: B = 2 + max_events).
func (c Config) BufferSize() int {
	return 2 + c.MaxEvents
}

// Validate checks the invariants the facade relies on before it starts
// opening intercomms (spec.md section 4.7's "load parameters" step).
func (c Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path must be set", types.ErrSetupFailure)
	}
	if _, err := c.ParsedDirection(); err != nil {
		return err
	}
	if c.MaxEvents <= 0 {
		return fmt.Errorf("%w: max_events must be positive, got %d", types.ErrSetupFailure, c.MaxEvents)
	}
	if c.Resolution <= 0 {
		return fmt.Errorf("%w: resolution must be positive, got %f", types.ErrSetupFailure, c.Resolution)
	}
	if c.TimeSynchronization <= 0 {
		return fmt.Errorf("%w: time_synchronization must be positive, got %f", types.ErrSetupFailure, c.TimeSynchronization)
	}
	if c.GroupSize < 3 {
		return fmt.Errorf("%w: group_size must be at least 3, got %d", types.ErrSetupFailure, c.GroupSize)
	}
	return nil
}

// ReceiveFromTVBHandshakePath is the file the bridge writes with its
// input endpoint address for the TVB->NEST direction, read by TVB
// (original_source/refactored_modular/manager_tvb_to_nest.py's
// __get_path_to_TVB, spec.md section 6).
func (c Config) ReceiveFromTVBHandshakePath() string {
	return fmt.Sprintf("%s/transformation/receive_from_tvb/%d.txt", c.Path, c.IDNestRegion)
}

// SendToTVBHandshakePath is the file the bridge writes with its output
// endpoint address for the NEST->TVB direction, read by TVB. Named by
// symmetry with ReceiveFromTVBHandshakePath since no retrieved source
// file implements this direction's manager.
func (c Config) SendToTVBHandshakePath() string {
	return fmt.Sprintf("%s/transformation/send_to_tvb/%d.txt", c.Path, c.IDNestRegion)
}

// SpikeDetectorHandshakePath is the file the bridge writes with its
// input endpoint address for the k-th upstream NEST spike detector,
// read by NEST (NEST->TVB direction, symmetric with
// SpikeGeneratorHandshakePath).
func (c Config) SpikeDetectorHandshakePath(k int) string {
	return fmt.Sprintf("%s/transformation/spike_detector/%d.txt", c.Path, c.IDFirstSpikeDetector+k)
}

// SpikeGeneratorIDPath is the file NEST writes listing spike generator
// ids, guarded by an ".unlock" sentinel (spec.md section 6).
func (c Config) SpikeGeneratorIDPath() string {
	return c.Path + "/nest/spike_generator.txt"
}

// SpikeGeneratorHandshakePath is the file the bridge writes with its
// output endpoint address for the k-th downstream spike generator, read
// by NEST (original_source/refactored_modular/manager_tvb_to_nest.py's
// __get_path_to_spike_generators, spec.md section 6).
func (c Config) SpikeGeneratorHandshakePath(firstID, k int) string {
	return fmt.Sprintf("%s/transformation/spike_generator/%d.txt", c.Path, firstID+k)
}
