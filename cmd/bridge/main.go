// Command bridge launches one InterscaleHub run: it loads the launch
// configuration, starts the configured directional pipeline, and exits
// non-zero on any fatal protocol error (spec.md section 6). Flag and
// logging setup follow the pack's Packt linksrus CLI services
// (PacktPublishing-Hands-On-Software-Engineering-with-Golang/Chapter11/linksrus/pagerank/main.go).
package main

import (
	"os"

	"github.com/urfave/cli"

	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/internal/config"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/facade"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/logging"
	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	appName = "interscalehub-bridge"
	appSha  = "populated-at-link-time"
	log     = logging.NewDefaultLogger()
)

func main() {
	if err := makeApp().Run(os.Args); err != nil {
		log.WithField("err", err).Error("shutting down due to error")
		os.Exit(1)
	}
}

func makeApp() *cli.App {
	app := cli.NewApp()
	app.Name = appName
	app.Version = appSha
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", EnvVar: "BRIDGE_CONFIG", Usage: "YAML file with the launch dictionary"},
		cli.StringFlag{Name: "path", EnvVar: "BRIDGE_PATH", Usage: "shared handshake directory"},
		cli.StringFlag{Name: "direction", EnvVar: "BRIDGE_DIRECTION", Usage: "nest-to-tvb or tvb-to-nest"},
		cli.IntFlag{Name: "id-first-neurons", EnvVar: "BRIDGE_ID_FIRST_NEURONS"},
		cli.IntFlag{Name: "id-first-spike-detector", EnvVar: "BRIDGE_ID_FIRST_SPIKE_DETECTOR"},
		cli.IntFlag{Name: "id-nest-region", EnvVar: "BRIDGE_ID_NEST_REGION"},
		cli.Float64Flag{Name: "time-synchronization", EnvVar: "BRIDGE_TIME_SYNCHRONIZATION"},
		cli.Float64Flag{Name: "resolution", EnvVar: "BRIDGE_RESOLUTION"},
		cli.IntFlag{Name: "nb-neurons", EnvVar: "BRIDGE_NB_NEURONS"},
		cli.IntFlag{Name: "max-events", EnvVar: "BRIDGE_MAX_EVENTS"},
		cli.IntFlag{Name: "group-size", EnvVar: "BRIDGE_GROUP_SIZE"},
		cli.IntFlag{Name: "receiver-rank", EnvVar: "BRIDGE_RECEIVER_RANK"},
		cli.IntFlag{Name: "sender-rank", EnvVar: "BRIDGE_SENDER_RANK"},
		cli.IntFlag{Name: "num-upstream-peers", EnvVar: "BRIDGE_NUM_UPSTREAM_PEERS"},
		cli.BoolFlag{Name: "debug", EnvVar: "BRIDGE_DEBUG", Usage: "enable debug-level logging"},
	}
	app.Action = runMain
	return app
}

func runMain(c *cli.Context) error {
	log.ToggleDebug(c.Bool("debug"))

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	applyFlagOverrides(&cfg, c)

	reg := metrics.New(prometheus.NewRegistry())

	mgr, err := facade.New(cfg, log, reg)
	if err != nil {
		return err
	}
	defer func() {
		if err := mgr.Stop(); err != nil {
			log.WithField("err", err).Warn("teardown reported errors")
		}
	}()

	log.WithField("direction", cfg.Direction).Info("starting bridge run")
	if err := mgr.Start(); err != nil {
		return err
	}
	if err := mgr.Wait(); err != nil {
		return err
	}
	log.Info("bridge run completed")
	return nil
}

// applyFlagOverrides lets explicit CLI flags win over a loaded YAML file,
// matching the pack's flags-over-file precedent.
func applyFlagOverrides(cfg *config.Config, c *cli.Context) {
	if v := c.String("path"); v != "" {
		cfg.Path = v
	}
	if v := c.String("direction"); v != "" {
		cfg.Direction = v
	}
	if c.IsSet("id-first-neurons") {
		cfg.IDFirstNeurons = c.Int("id-first-neurons")
	}
	if c.IsSet("id-first-spike-detector") {
		cfg.IDFirstSpikeDetector = c.Int("id-first-spike-detector")
	}
	if c.IsSet("id-nest-region") {
		cfg.IDNestRegion = c.Int("id-nest-region")
	}
	if c.IsSet("time-synchronization") {
		cfg.TimeSynchronization = c.Float64("time-synchronization")
	}
	if c.IsSet("resolution") {
		cfg.Resolution = c.Float64("resolution")
	}
	if c.IsSet("nb-neurons") {
		cfg.NumNeurons = c.Int("nb-neurons")
	}
	if c.IsSet("max-events") {
		cfg.MaxEvents = c.Int("max-events")
	}
	if c.IsSet("group-size") {
		cfg.GroupSize = c.Int("group-size")
	}
	if c.IsSet("receiver-rank") {
		cfg.ReceiverRank = c.Int("receiver-rank")
	}
	if c.IsSet("sender-rank") {
		cfg.SenderRank = c.Int("sender-rank")
	}
	if c.IsSet("num-upstream-peers") {
		cfg.NumUpstreamPeers = c.Int("num-upstream-peers")
	}
}
