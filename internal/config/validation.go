package config

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/result"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/storage"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/storage/compression"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/topology"
)

var (
	ErrNoAddress     = errors.New("no address configured")
	ErrDuplicateNode = errors.New("node listed twice")
)

// ValidateConfig performs validation on the complete configuration
func ValidateConfig(config *Config) error {
	if err := validateNodes(config); err != nil {
		return fmt.Errorf("nodes validation failed: %w", err)
	}
	if err := validateTopology(&config.Topology, len(config.Edges) > 0); err != nil {
		return fmt.Errorf("topology validation failed: %w", err)
	}
	if err := validateRun(&config.Run); err != nil {
		return fmt.Errorf("run validation failed: %w", err)
	}
	if err := config.RouterConfig().Validate(); err != nil {
		return fmt.Errorf("peer validation failed: %w", err)
	}
	if err := validateStorage(&config.Storage); err != nil {
		return fmt.Errorf("storage validation failed: %w", err)
	}
	if _, err := zerolog.ParseLevel(config.Log.Level); err != nil {
		return fmt.Errorf("log validation failed: %w", err)
	}
	return nil
}

func validateNodes(config *Config) error {
	if config.Node.ID < 0 {
		return fmt.Errorf("node id must not be negative, got %d", config.Node.ID)
	}
	seen := make(map[int]bool, len(config.Nodes))
	for _, n := range config.Nodes {
		if n.ID < 0 {
			return fmt.Errorf("node id must not be negative, got %d", n.ID)
		}
		if seen[n.ID] {
			return fmt.Errorf("node %d: %w", n.ID, ErrDuplicateNode)
		}
		seen[n.ID] = true
		if n.Address == "" {
			return fmt.Errorf("node %d: %w", n.ID, ErrNoAddress)
		}
	}
	for _, e := range config.Edges {
		if e.Weight < 0 {
			return fmt.Errorf("edge %d-%d: %w", e.A, e.B, topology.ErrInvalidWeight)
		}
	}
	return nil
}

func validateTopology(t *TopologyConfig, explicit bool) error {
	if explicit {
		return nil
	}
	switch t.Generator {
	case topology.GeneratorComplete, topology.GeneratorRing, topology.GeneratorRandom:
	default:
		return fmt.Errorf("%w: %q", topology.ErrUnknownGenerator, t.Generator)
	}
	if t.Nodes <= 0 {
		return fmt.Errorf("nodes must be positive, got %d", t.Nodes)
	}
	if t.ExtraEdges < 0 {
		return fmt.Errorf("extra_edges must not be negative, got %d", t.ExtraEdges)
	}
	return nil
}

func validateRun(r *RunConfig) error {
	switch r.Mode {
	case result.ModeSim, result.ModeLocal:
	default:
		return fmt.Errorf("unknown mode %q, want %s or %s", r.Mode, result.ModeSim, result.ModeLocal)
	}
	switch r.Wakeup {
	case WakeupAll, WakeupFirst, WakeupRandom:
	default:
		return fmt.Errorf("unknown wakeup policy %q", r.Wakeup)
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if r.MinDelay < 0 || r.MaxDelay < r.MinDelay {
		return fmt.Errorf("invalid delay range %s..%s", r.MinDelay, r.MaxDelay)
	}
	if r.Jitter < 0 {
		return fmt.Errorf("jitter must not be negative")
	}
	return nil
}

func validateStorage(s *storage.Config) error {
	switch s.Backend {
	case storage.BackendMemory:
	case storage.BackendPebble, storage.BackendLevelDB, storage.BackendSQLite:
		if s.Path == "" {
			return fmt.Errorf("%s backend needs a path", s.Backend)
		}
	case storage.BackendPostgres:
		if s.DSN == "" {
			return fmt.Errorf("%s backend needs a dsn", s.Backend)
		}
	default:
		return fmt.Errorf("%w: %q", storage.ErrUnknownBackend, s.Backend)
	}
	if s.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative")
	}
	if _, err := compression.Get(s.Compression); err != nil {
		return err
	}
	return nil
}
