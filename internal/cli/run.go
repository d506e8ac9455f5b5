package cli

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/config"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/ghs"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/network"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/result"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/sim"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/storage"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/topology"
)

var (
	// Run flags
	runMode      string
	runGenerator string
	runNodes     int
	runExtra     int
	runSeed      int64
	runWakeup    string
	runNoPersist bool
)

// runCmd builds one spanning tree inside this process
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build a minimum spanning tree in one process",
	Long: `Build the minimum spanning tree of the configured graph inside this process.

In sim mode every message travels through a deterministic discrete-event network
with seeded link delays. In local mode every node runs in its own goroutine.
The tree is checked against Kruskal and stored unless --no-persist is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRunFlags(cmd, conf)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, err := runOnce(ctx, conf, logger, cmd.OutOrStdout())
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runMode, "mode", "", "sim or local")
	runCmd.Flags().StringVar(&runGenerator, "generator", "", "complete, ring or random")
	runCmd.Flags().IntVarP(&runNodes, "nodes", "n", 0, "number of nodes of the generated graph")
	runCmd.Flags().IntVar(&runExtra, "extra", 0, "extra edges of a random graph")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "seed of the graph and of the simulated delays")
	runCmd.Flags().StringVar(&runWakeup, "wakeup", "", "all, first or random")
	runCmd.Flags().BoolVar(&runNoPersist, "no-persist", false, "do not store the result")
}

func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		c.Run.Mode = runMode
	}
	if flags.Changed("generator") {
		c.Topology.Generator = runGenerator
		c.Edges = nil
	}
	if flags.Changed("nodes") {
		c.Topology.Nodes = runNodes
		c.Edges = nil
	}
	if flags.Changed("extra") {
		c.Topology.ExtraEdges = runExtra
	}
	if flags.Changed("seed") {
		c.Topology.Seed = runSeed
		c.Run.Seed = runSeed
	}
	if flags.Changed("wakeup") {
		c.Run.Wakeup = runWakeup
	}
	if runNoPersist {
		c.Run.Persist = false
	}
}

// wakeupSet picks the nodes that wake up spontaneously.
func wakeupSet(policy string, topo *topology.Topology, seed int64) ([]ghs.NodeID, error) {
	switch policy {
	case config.WakeupAll:
		return append([]ghs.NodeID(nil), topo.Nodes...), nil
	case config.WakeupFirst:
		return topo.Nodes[:1], nil
	case config.WakeupRandom:
		rng := rand.New(rand.NewSource(seed))
		var ids []ghs.NodeID
		for _, id := range topo.Nodes {
			if rng.Intn(2) == 0 {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			ids = append(ids, topo.Nodes[rng.Intn(len(topo.Nodes))])
		}
		return ids, nil
	default:
		return nil, fmt.Errorf("unknown wakeup policy %q", policy)
	}
}

// runOnce builds, verifies, prints and optionally stores one tree.
func runOnce(ctx context.Context, c *config.Config, log zerolog.Logger, out io.Writer) (*result.Result, error) {
	topo, err := c.BuildTopology()
	if err != nil {
		return nil, err
	}
	wake, err := wakeupSet(c.Run.Wakeup, topo, c.Run.Seed)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("mode", c.Run.Mode).
		Int("nodes", topo.Size()).
		Int("edges", len(topo.Edges)).
		Int("initiators", len(wake)).
		Msg("starting run")

	var res *result.Result
	switch c.Run.Mode {
	case result.ModeSim:
		s, err := sim.New(topo, c.SimConfig(), log)
		if err != nil {
			return nil, err
		}
		if err := s.Start(wake...); err != nil {
			return nil, err
		}
		if res, err = s.Run(); err != nil {
			return nil, err
		}
	case result.ModeLocal:
		l, err := network.NewLocal(topo, network.WithLogger(log))
		if err != nil {
			return nil, err
		}
		if err := l.Start(wake...); err != nil {
			return nil, err
		}
		runCtx, cancel := context.WithTimeout(ctx, c.Run.Timeout)
		defer cancel()
		if res, err = l.Run(runCtx); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown mode %q", c.Run.Mode)
	}
	res.Seed = c.Run.Seed

	if err := res.Verify(topo); err != nil {
		return nil, err
	}
	if c.Run.Persist {
		if err := persist(ctx, c.Storage, res); err != nil {
			return nil, err
		}
		log.Info().Uint64("id", res.ID).Str("path", c.Storage.Path).Msg("run stored")
	}
	if err := res.Print(out); err != nil {
		return nil, err
	}
	return res, nil
}

func persist(ctx context.Context, cfg storage.Config, res *result.Result) error {
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	_, err = store.Save(ctx, res)
	return err
}
