package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/config"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/ghs"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/peer"
)

var (
	// Start and status flags
	targetIDs   []int
	callTimeout time.Duration
)

// startCmd wakes running daemons up
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Wake nodes up",
	Long:  `Send the spontaneous wakeup to the given nodes, or to every node of the [[nodes]] table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
		defer cancel()
		return startNodes(ctx, conf, toNodeIDs(targetIDs), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().IntSliceVar(&targetIDs, "ids", nil, "nodes to wake up (default all)")
	startCmd.Flags().DurationVar(&callTimeout, "timeout", 10*time.Second, "overall deadline")
}

func toNodeIDs(ids []int) []ghs.NodeID {
	out := make([]ghs.NodeID, len(ids))
	for i, id := range ids {
		out[i] = ghs.NodeID(id)
	}
	return out
}

// targets returns ids, or every configured node when ids is empty.
func targets(c *config.Config, ids []ghs.NodeID) []ghs.NodeID {
	if len(ids) > 0 {
		return ids
	}
	all := make([]ghs.NodeID, len(c.Nodes))
	for i, n := range c.Nodes {
		all[i] = ghs.NodeID(n.ID)
	}
	return all
}

func startNodes(ctx context.Context, c *config.Config, ids []ghs.NodeID, out io.Writer, opts ...grpc.DialOption) error {
	ids = targets(c, ids)
	if len(ids) == 0 {
		return fmt.Errorf("no nodes to start: %w", config.ErrNoAddress)
	}
	for _, id := range ids {
		addr, ok := c.Address(id)
		if !ok {
			return fmt.Errorf("node %d: %w", id, config.ErrNoAddress)
		}
		woken, err := peer.StartRemote(ctx, addr, id, opts...)
		if err != nil {
			return fmt.Errorf("start node %d at %s: %w", id, addr, err)
		}
		state := "woken"
		if !woken {
			state = "already awake"
		}
		fmt.Fprintf(out, "node %d: %s\n", id, state)
	}
	return nil
}
