package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/config"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/ghs"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/peer"
)

var (
	// Node flags
	nodeID     int
	nodeListen string
	nodeWake   bool
	nodeExit   bool
)

// nodeCmd hosts one vertex of the graph behind the gRPC peer service
var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run one node as a gRPC daemon",
	Long: `Run the node [node].id of the configured graph. The daemon listens on
[node].listen and reaches its neighbours at the addresses of the [[nodes]] table.
Wake it up with --start or with "ghsd start".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("id") {
			conf.Node.ID = nodeID
			if addr, ok := conf.Address(ghs.NodeID(nodeID)); ok && !cmd.Flags().Changed("listen") {
				conf.Node.Listen = addr
			}
		}
		if cmd.Flags().Changed("listen") {
			conf.Node.Listen = nodeListen
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runDaemon(ctx, conf, logger, daemonOptions{wake: nodeWake, exitOnHalt: nodeExit})
	},
}

func init() {
	rootCmd.AddCommand(nodeCmd)

	nodeCmd.Flags().IntVar(&nodeID, "id", 0, "id of the hosted node")
	nodeCmd.Flags().StringVar(&nodeListen, "listen", "", "listen address")
	nodeCmd.Flags().BoolVar(&nodeWake, "start", false, "wake the node up once listening")
	nodeCmd.Flags().BoolVar(&nodeExit, "exit-on-halt", false, "stop once the node halted and its outbox drained")
}

type daemonOptions struct {
	wake       bool
	exitOnHalt bool
	dialOpts   []grpc.DialOption
	serve      func(*peer.Server) error
}

// errHalted ends the daemon group after a halt when exit-on-halt is set.
var errHalted = errors.New("node halted")

func runDaemon(ctx context.Context, c *config.Config, log zerolog.Logger, opts daemonOptions) error {
	topo, err := c.BuildTopology()
	if err != nil {
		return err
	}
	self := ghs.NodeID(c.Node.ID)
	if !topo.Has(self) {
		return fmt.Errorf("node %d is not part of the graph", self)
	}
	routes, err := c.Routes(topo)
	if err != nil {
		return err
	}

	router, err := peer.NewRouter(self, routes, c.RouterConfig(),
		peer.WithDialOptions(opts.dialOpts...),
		peer.WithRouterLogger(log))
	if err != nil {
		return err
	}
	defer router.Close()

	halts := ghs.NewHaltCollector(1)
	node, err := ghs.NewNode(self, topo.Links(self), router,
		ghs.WithObserver(halts),
		ghs.WithLogger(log))
	if err != nil {
		return err
	}
	srv, err := peer.NewServer(c.ServerConfig(), node, log)
	if err != nil {
		return err
	}
	serve := opts.serve
	if serve == nil {
		serve = (*peer.Server).ListenAndServe
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := serve(srv); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		srv.Stop()
		return nil
	})
	g.Go(func() error {
		if opts.wake {
			if err := node.Start(); err != nil {
				return err
			}
		}
		select {
		case <-halts.Done():
		case <-router.Failed():
			return router.Err()
		case <-gctx.Done():
			return nil
		}
		if err := node.Err(); err != nil {
			return err
		}
		if err := router.Flush(gctx); err != nil && gctx.Err() == nil {
			return err
		}
		snap := node.Snapshot()
		log.Info().
			Int("level", snap.Level).
			Stringer("fragment", snap.Fragment).
			Bool("declared", snap.Declared).
			Int("branches", len(snap.Tree())).
			Interface("messages", router.Messages()).
			Msg("node halted")
		if opts.exitOnHalt {
			return errHalted
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errHalted) {
		return err
	}
	return nil
}
