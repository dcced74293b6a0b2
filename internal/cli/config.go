package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/raskyld/tvio/pkg/bus/p2pbus"
	"gopkg.in/yaml.v3"
)

// Bus kinds accepted in the configuration file.
const (
	BusMemory = "memory"
	BusGossip = "gossip"
	BusP2P    = "p2p"
	BusRedis  = "redis"
)

// Config is the content of the --config file.
type Config struct {
	Bus         BusConfig     `yaml:"bus"`
	Heartbeat   time.Duration `yaml:"heartbeat"`
	PeerTimeout time.Duration `yaml:"peer_timeout"`
	// Labels are added to every metric.
	Labels map[string]string `yaml:"labels"`
}

type BusConfig struct {
	Kind   string         `yaml:"kind"`
	Gossip GossipConfig   `yaml:"gossip"`
	P2P    p2pbus.Options `yaml:"p2p"`
	Redis  RedisConfig    `yaml:"redis"`
}

type GossipConfig struct {
	Name       string   `yaml:"name"`
	BindAddr   string   `yaml:"bind_addr"`
	BindPort   int      `yaml:"bind_port"`
	Neighbours []string `yaml:"neighbours"`
	// Local selects timings fit for a single host.
	Local bool `yaml:"local"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// DefaultConfig gossips on the LAN, which needs no infrastructure.
func DefaultConfig() Config {
	return Config{
		Bus: BusConfig{
			Kind: BusGossip,
			Gossip: GossipConfig{
				BindAddr: "0.0.0.0",
				BindPort: 7946,
			},
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "tvio:",
			},
		},
		Heartbeat:   time.Second,
		PeerTimeout: 5 * time.Second,
	}
}

// LoadConfig reads path over the defaults. An empty path gives the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	switch cfg.Bus.Kind {
	case BusMemory, BusGossip, BusP2P, BusRedis:
	default:
		return cfg, fmt.Errorf("unknown bus kind %q", cfg.Bus.Kind)
	}
	return cfg, nil
}
