package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/ghs"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/peer"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/sim"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/storage"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/topology"
)

// Config represents the complete ghsd configuration
type Config struct {
	// This daemon, in grpc mode
	Node NodeConfig `toml:"node" mapstructure:"node"`

	// Addresses of every node, in grpc mode
	Nodes []PeerConfig `toml:"nodes" mapstructure:"nodes"`

	// Explicit graph. When empty the [topology] generator is used.
	Edges []EdgeConfig `toml:"edges" mapstructure:"edges"`

	Topology TopologyConfig `toml:"topology" mapstructure:"topology"`
	Run      RunConfig      `toml:"run" mapstructure:"run"`
	Peer     PeerTuning     `toml:"peer" mapstructure:"peer"`
	Storage  storage.Config `toml:"storage" mapstructure:"storage"`
	Log      LogConfig      `toml:"log" mapstructure:"log"`

	// Internal fields (not from config file)
	configPath string
}

// NodeConfig identifies the node hosted by a daemon.
type NodeConfig struct {
	ID     int    `toml:"id" mapstructure:"id"`
	Listen string `toml:"listen" mapstructure:"listen"`
}

// PeerConfig is one entry of the [[nodes]] table.
type PeerConfig struct {
	ID      int    `toml:"id" mapstructure:"id"`
	Address string `toml:"address" mapstructure:"address"`
}

// EdgeConfig is one entry of the [[edges]] table.
type EdgeConfig struct {
	A      int   `toml:"a" mapstructure:"a"`
	B      int   `toml:"b" mapstructure:"b"`
	Weight int64 `toml:"weight" mapstructure:"weight"`
}

// TopologyConfig describes a generated graph.
type TopologyConfig struct {
	Generator  string `toml:"generator" mapstructure:"generator"`
	Nodes      int    `toml:"nodes" mapstructure:"nodes"`
	ExtraEdges int    `toml:"extra_edges" mapstructure:"extra_edges"`
	Seed       int64  `toml:"seed" mapstructure:"seed"`
}

// Wakeup policies.
const (
	WakeupAll    = "all"
	WakeupFirst  = "first"
	WakeupRandom = "random"
)

// RunConfig tunes a single-process run.
type RunConfig struct {
	Mode      string        `toml:"mode" mapstructure:"mode"`
	Wakeup    string        `toml:"wakeup" mapstructure:"wakeup"`
	Timeout   time.Duration `toml:"timeout" mapstructure:"timeout"`
	Seed      int64         `toml:"seed" mapstructure:"seed"`
	MinDelay  time.Duration `toml:"min_delay" mapstructure:"min_delay"`
	MaxDelay  time.Duration `toml:"max_delay" mapstructure:"max_delay"`
	Jitter    time.Duration `toml:"jitter" mapstructure:"jitter"`
	MaxEvents int           `toml:"max_events" mapstructure:"max_events"`
	Persist   bool          `toml:"persist" mapstructure:"persist"`
}

// PeerTuning tunes gRPC delivery between daemons.
type PeerTuning struct {
	CallTimeout    time.Duration `toml:"call_timeout" mapstructure:"call_timeout"`
	MaxAttempts    int           `toml:"max_attempts" mapstructure:"max_attempts"`
	Backoff        time.Duration `toml:"backoff" mapstructure:"backoff"`
	MaxBackoff     time.Duration `toml:"max_backoff" mapstructure:"max_backoff"`
	MaxRecvMsgSize int           `toml:"max_recv_msg_size" mapstructure:"max_recv_msg_size"`
	MaxSendMsgSize int           `toml:"max_send_msg_size" mapstructure:"max_send_msg_size"`
}

// LogConfig sets the log output.
type LogConfig struct {
	Level   string `toml:"level" mapstructure:"level"`
	NoColor bool   `toml:"no_color" mapstructure:"no_color"`
}

// ConfigPaths holds paths to configuration files
type ConfigPaths struct {
	Main string
}

// DefaultConfigPaths returns default configuration file paths
func DefaultConfigPaths() ConfigPaths {
	return ConfigPaths{
		Main: "ghsd.toml",
	}
}

// ConfigPathsFromDir creates config paths from a directory
func ConfigPathsFromDir(configDir string) ConfigPaths {
	return ConfigPaths{
		Main: filepath.Join(configDir, "ghsd.toml"),
	}
}

// GetConfigPath returns the path to the main config file, empty when defaults only
func (c *Config) GetConfigPath() string {
	return c.configPath
}

// BuildTopology returns the explicit [[edges]] graph, or the generated one.
func (c *Config) BuildTopology() (*topology.Topology, error) {
	var topo *topology.Topology
	if len(c.Edges) > 0 {
		spans := make([]ghs.Span, len(c.Edges))
		for i, e := range c.Edges {
			spans[i] = ghs.NewSpan(ghs.NodeID(e.A), ghs.NodeID(e.B), ghs.Weight(e.Weight))
		}
		topo = topology.FromEdges(spans)
		// nodes listed without edges still count
		for _, n := range c.Nodes {
			if !topo.Has(ghs.NodeID(n.ID)) {
				topo = topology.New(append(topo.Nodes, ghs.NodeID(n.ID)), topo.Edges)
			}
		}
	} else {
		var err error
		topo, err = topology.Generate(c.Topology.Generator, c.Topology.Nodes, c.Topology.ExtraEdges, c.Topology.Seed)
		if err != nil {
			return nil, err
		}
	}
	if err := topo.Validate(); err != nil {
		return nil, fmt.Errorf("topology: %w", err)
	}
	return topo, nil
}

// SimConfig returns the simulator settings of [run].
func (c *Config) SimConfig() sim.Config {
	return sim.Config{
		MinDelay:  c.Run.MinDelay,
		MaxDelay:  c.Run.MaxDelay,
		Jitter:    c.Run.Jitter,
		Seed:      c.Run.Seed,
		MaxEvents: c.Run.MaxEvents,
	}
}

// ServerConfig returns the gRPC server settings of this daemon.
func (c *Config) ServerConfig() *peer.ServerConfig {
	return &peer.ServerConfig{
		Address:        c.Node.Listen,
		MaxRecvMsgSize: c.Peer.MaxRecvMsgSize,
		MaxSendMsgSize: c.Peer.MaxSendMsgSize,
	}
}

// RouterConfig returns the outbound delivery settings.
func (c *Config) RouterConfig() peer.RouterConfig {
	return peer.RouterConfig{
		CallTimeout: c.Peer.CallTimeout,
		MaxAttempts: c.Peer.MaxAttempts,
		Backoff:     c.Peer.Backoff,
		MaxBackoff:  c.Peer.MaxBackoff,
	}
}

// Address returns the configured address of node id.
func (c *Config) Address(id ghs.NodeID) (string, bool) {
	for _, n := range c.Nodes {
		if ghs.NodeID(n.ID) == id {
			return n.Address, true
		}
	}
	return "", false
}

// Routes returns the addresses of the neighbours of this daemon's node in topo.
func (c *Config) Routes(topo *topology.Topology) ([]peer.Route, error) {
	self := ghs.NodeID(c.Node.ID)
	var routes []peer.Route
	for _, id := range topo.Neighbors(self) {
		addr, ok := c.Address(id)
		if !ok {
			return nil, fmt.Errorf("node %d: %w", id, ErrNoAddress)
		}
		routes = append(routes, peer.Route{ID: id, Address: addr})
	}
	return routes, nil
}
