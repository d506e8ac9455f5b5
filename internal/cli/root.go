package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/config"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/logging"
)

var (
	// Global flags
	configFile string
	debug      bool
	verbose    bool
	quiet      bool

	// Loaded before every command runs
	conf   *config.Config
	logger zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ghsd",
	Short: "ghsd - distributed minimum spanning tree construction",
	Long: `ghsd builds the minimum spanning tree of a weighted graph with the
Gallager-Humblet-Spira protocol. Every vertex is an independent node that only
exchanges messages with its neighbours. Runs can be simulated, executed with one
goroutine per node, or spread over daemons that talk gRPC.`,
	Version:           "0.1.0-dev",
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path (default ./ghsd.toml when present)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable trace logging")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")
}

// initConfig reads the config file and GHSD_ environment variables and sets up the logger.
func initConfig(cmd *cobra.Command, _ []string) error {
	paths := config.ConfigPaths{Main: configFile}
	if paths.Main == "" {
		if def := config.DefaultConfigPaths(); fileExists(def.Main) {
			paths = def
		}
	}
	c, err := config.LoadConfig(paths)
	if err != nil {
		return err
	}
	conf = c

	lc := logging.DefaultConfig(logging.ProfileRuntime)
	lc.Out = cmd.ErrOrStderr()
	if lvl, ok := logging.ParseLevel(conf.Log.Level); ok {
		lc.Level = lvl
	}
	lc.NoColor = conf.Log.NoColor
	switch {
	case debug:
		lc.Level = zerolog.TraceLevel
	case verbose:
		lc.Level = zerolog.DebugLevel
	case quiet:
		lc.Level = zerolog.WarnLevel
	}
	logger = logging.New("ghsd", lc)
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
