package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/storage"
)

// treeCmd represents the tree command group
var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Inspect stored spanning trees",
}

var treeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(s *storage.RunStore) error {
			return listRuns(cmd.Context(), s, cmd.OutOrStdout())
		})
	},
}

var treeShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Print a stored run, the latest by default",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(s *storage.RunStore) error {
			ctx := cmd.Context()
			if len(args) == 0 {
				res, err := s.Latest(ctx)
				if err != nil {
					return err
				}
				return res.Print(cmd.OutOrStdout())
			}
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}
			res, err := s.Get(ctx, id)
			if err != nil {
				return err
			}
			return res.Print(cmd.OutOrStdout())
		})
	},
}

var treeDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid run id %q: %w", args[0], err)
		}
		return withStore(cmd.Context(), func(s *storage.RunStore) error {
			return s.Delete(cmd.Context(), id)
		})
	},
}

func init() {
	rootCmd.AddCommand(treeCmd)
	treeCmd.AddCommand(treeListCmd, treeShowCmd, treeDeleteCmd)
}

func withStore(ctx context.Context, fn func(*storage.RunStore) error) error {
	s, err := storage.Open(ctx, conf.Storage)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func listRuns(ctx context.Context, s *storage.RunStore, out io.Writer) error {
	runs, err := s.List(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs stored")
		return nil
	}
	fmt.Fprintf(out, "%-6s %-6s %-6s %-6s %-10s %-9s %s\n", "ID", "MODE", "NODES", "EDGES", "WEIGHT", "MESSAGES", "STARTED")
	for _, r := range runs {
		fmt.Fprintf(out, "%-6d %-6s %-6d %-6d %-10s %-9d %s\n",
			r.ID, r.Mode, r.Nodes, r.Edges, r.Weight, r.TotalMessages(), r.Started.Format(time.RFC3339))
	}
	return nil
}
