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
	"github.com/guwenyu1996/Distributed-Algorithms/internal/result"
)

var statusPersist bool

// statusCmd queries running daemons and assembles their tree
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of running nodes",
	Long: `Query the given nodes, or every node of the [[nodes]] table. Once every node
of the graph halted, the branches they report are joined into the spanning tree,
checked against Kruskal and optionally stored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
		defer cancel()

		res, err := collectStatus(ctx, conf, toNodeIDs(targetIDs), cmd.OutOrStdout())
		if err != nil || res == nil {
			return err
		}
		if statusPersist {
			if err := persist(ctx, conf.Storage, res); err != nil {
				return err
			}
			logger.Info().Uint64("id", res.ID).Msg("run stored")
		}
		return res.Print(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().IntSliceVar(&targetIDs, "ids", nil, "nodes to query (default all)")
	statusCmd.Flags().DurationVar(&callTimeout, "timeout", 10*time.Second, "overall deadline")
	statusCmd.Flags().BoolVar(&statusPersist, "persist", false, "store the assembled tree")
}

// collectStatus prints one line per node. It returns the verified tree when every
// node of the graph was queried and halted, nil otherwise.
func collectStatus(ctx context.Context, c *config.Config, ids []ghs.NodeID, out io.Writer, opts ...grpc.DialOption) (*result.Result, error) {
	topo, err := c.BuildTopology()
	if err != nil {
		return nil, err
	}
	ids = targets(c, ids)

	var (
		spans    []ghs.Span
		halted   int
		declared = ghs.None
	)
	for _, id := range ids {
		addr, ok := c.Address(id)
		if !ok {
			return nil, fmt.Errorf("node %d: %w", id, config.ErrNoAddress)
		}
		st, err := peer.StatusRemote(ctx, addr, opts...)
		if err != nil {
			return nil, fmt.Errorf("status of node %d at %s: %w", id, addr, err)
		}
		fmt.Fprintf(out, "node %d: level %d fragment %s state %s halted %t deferred %d branches %d",
			st.Node, st.Level, st.Fragment, st.State, st.Halted, st.Deferred, len(st.Tree))
		if st.Err != "" {
			fmt.Fprintf(out, " error %q", st.Err)
		}
		fmt.Fprintln(out)

		spans = append(spans, st.Tree...)
		if st.Halted {
			halted++
		}
		if st.Declared {
			declared = st.Node
		}
	}
	if halted < topo.Size() {
		return nil, nil
	}

	res := result.New(result.ModeGRPC, topo, dedupe(spans))
	res.Declared = declared
	res.Started = time.Now()
	if err := res.Verify(topo); err != nil {
		return nil, err
	}
	return res, nil
}

// dedupe drops the second report of every tree edge.
func dedupe(spans []ghs.Span) []ghs.Span {
	seen := make(map[ghs.Span]bool, len(spans))
	var out []ghs.Span
	for _, s := range spans {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
