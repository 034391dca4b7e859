// Package config loads a node's cluster membership and tuning parameters
// from a YAML file, the same format the teacher's indirect yaml.v2
// dependency implies but whose loading code wasn't part of the retrieved
// pack.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/rlong/raftkv/internal/raft"
)

// Peer is one other cluster member: its id and the base URL
// internal/transport's PeerClient dials it at.
type Peer struct {
	Id      string `yaml:"id"`
	Address string `yaml:"address"`
}

// Config is the on-disk shape of a node's configuration file.
type Config struct {
	Id         string `yaml:"id"`
	Listen     string `yaml:"listen"`
	PeerListen string `yaml:"peer_listen"`
	DataDir    string `yaml:"data_dir"`
	Peers      []Peer `yaml:"peers"`

	ElectionTimeoutMinMs int `yaml:"election_timeout_min_ms"`
	ElectionTimeoutMaxMs int `yaml:"election_timeout_max_ms"`
	HeartbeatIntervalMs  int `yaml:"heartbeat_interval_ms"`
}

// defaults mirror the teacher's own election/heartbeat timing choices
// (leifdb's node.go uses a 1s-ish heartbeat and a randomized election
// window a few times that), scaled to round numbers.
const (
	defaultElectionTimeoutMinMs = 150
	defaultElectionTimeoutMaxMs = 300
	defaultHeartbeatIntervalMs  = 50
)

// Load reads and parses a YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, cfg.Validate()
}

func (c *Config) applyDefaults() {
	if c.ElectionTimeoutMinMs == 0 {
		c.ElectionTimeoutMinMs = defaultElectionTimeoutMinMs
	}
	if c.ElectionTimeoutMaxMs == 0 {
		c.ElectionTimeoutMaxMs = defaultElectionTimeoutMaxMs
	}
	if c.HeartbeatIntervalMs == 0 {
		c.HeartbeatIntervalMs = defaultHeartbeatIntervalMs
	}
}

// Validate reports an error for a config missing required fields or
// carrying an inconsistent timeout window.
func (c *Config) Validate() error {
	if c.Id == "" {
		return fmt.Errorf("config: id is required")
	}
	if c.Listen == "" {
		return fmt.Errorf("config: listen address is required")
	}
	if c.PeerListen == "" {
		return fmt.Errorf("config: peer_listen address is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	if c.ElectionTimeoutMaxMs <= c.ElectionTimeoutMinMs {
		return fmt.Errorf("config: election_timeout_max_ms must exceed election_timeout_min_ms")
	}
	for _, p := range c.Peers {
		if p.Id == "" || p.Address == "" {
			return fmt.Errorf("config: every peer needs an id and an address")
		}
	}
	return nil
}

// PeerIds returns the configured peer ids as raft.NodeIds.
func (c *Config) PeerIds() []raft.NodeId {
	out := make([]raft.NodeId, len(c.Peers))
	for i, p := range c.Peers {
		out[i] = raft.NodeId(p.Id)
	}
	return out
}

// PeerAddresses returns the id -> base URL map internal/transport.PeerClient
// needs.
func (c *Config) PeerAddresses() map[raft.NodeId]string {
	out := make(map[raft.NodeId]string, len(c.Peers))
	for _, p := range c.Peers {
		out[raft.NodeId(p.Id)] = p.Address
	}
	return out
}

// ElectionTimeoutMin, ElectionTimeoutMax, HeartbeatInterval convert the
// YAML's millisecond fields to time.Duration for internal/nodehost.Config.
func (c *Config) ElectionTimeoutMin() time.Duration {
	return time.Duration(c.ElectionTimeoutMinMs) * time.Millisecond
}

func (c *Config) ElectionTimeoutMax() time.Duration {
	return time.Duration(c.ElectionTimeoutMaxMs) * time.Millisecond
}

func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}
