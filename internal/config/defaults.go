package config

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaults sets every default value. A run with no config file simulates a
// complete graph of eight nodes.
func setDefaults(v *viper.Viper) {
	// Node defaults
	v.SetDefault("node.id", 0)
	v.SetDefault("node.listen", "127.0.0.1:7400")

	// Topology defaults
	v.SetDefault("topology.generator", "complete")
	v.SetDefault("topology.nodes", 8)
	v.SetDefault("topology.extra_edges", 0)
	v.SetDefault("topology.seed", 1)

	// Run defaults
	v.SetDefault("run.mode", "sim")
	v.SetDefault("run.wakeup", WakeupAll)
	v.SetDefault("run.timeout", 30*time.Second)
	v.SetDefault("run.seed", 1)
	v.SetDefault("run.min_delay", time.Millisecond)
	v.SetDefault("run.max_delay", 10*time.Millisecond)
	v.SetDefault("run.jitter", 5*time.Millisecond)
	v.SetDefault("run.max_events", 10_000_000)
	v.SetDefault("run.persist", true)

	// Peer defaults
	v.SetDefault("peer.call_timeout", 5*time.Second)
	v.SetDefault("peer.max_attempts", 10)
	v.SetDefault("peer.backoff", 100*time.Millisecond)
	v.SetDefault("peer.max_backoff", 3*time.Second)
	v.SetDefault("peer.max_recv_msg_size", 1<<20)
	v.SetDefault("peer.max_send_msg_size", 1<<20)

	// Storage defaults
	v.SetDefault("storage.backend", "pebble")
	v.SetDefault("storage.path", "ghsd-data")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.cache_size", 64)
	v.SetDefault("storage.compression", "lz4")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.no_color", false)
}
