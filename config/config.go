package config

import (
	"fmt"
	"os"

	"github.com/naoina/toml"
)

// TLSConfig holds paths to the PEM files needed for mTLS.
// When nil or all paths empty, the node falls back to plain TCP.
type TLSConfig struct {
	CACert   string `toml:"ca_cert"`   // CA certificate PEM path
	NodeCert string `toml:"node_cert"` // node certificate PEM path
	NodeKey  string `toml:"node_key"`  // node private key PEM path
}

// NodeSection is the `[node]` TOML table (spec.md §6).
type NodeSection struct {
	P2PPort      int      `toml:"p2p_port"`
	RPCPort      int      `toml:"rpc_port"`
	DBPath       string   `toml:"db_path"`
	LogLevel     string   `toml:"log_level"`
	IdentityFile string   `toml:"identity_file"`
	Bootnodes    []string `toml:"bootnodes"`
	GenesisFile  string   `toml:"genesis_file"`
	MaxBlockTxs  int      `toml:"max_block_txs"` // drain size K per producer round; 0 → 500
	RPCAuthToken string   `toml:"rpc_auth_token"`
}

// ConsensusSection is the `[consensus]` TOML table (spec.md §6).
type ConsensusSection struct {
	SlotDurationMs       int64 `toml:"slot_duration_ms"`
	PoHIterationsPerTick uint64 `toml:"poh_iterations_per_tick"`
}

// Config holds all node configuration, loaded from a TOML file plus the
// genesis file it names. TLS is an optional `[tls]` table; the teacher's
// mTLS path is carried unconditionally since it is an ambient transport
// concern, not a spec feature gated by a Non-goal.
type Config struct {
	Node       NodeSection       `toml:"node"`
	Consensus  ConsensusSection  `toml:"consensus"`
	TLS        *TLSConfig        `toml:"tls"`
	Validators []string          `toml:"-"` // populated from genesis.initial_validators after Load
	Genesis    *GenesisFile      `toml:"-"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		Node: NodeSection{
			P2PPort:     30303,
			RPCPort:     8545,
			DBPath:      "./data",
			LogLevel:    "info",
			MaxBlockTxs: 500,
		},
		Consensus: ConsensusSection{
			SlotDurationMs:       400,
			PoHIterationsPerTick: 10_000,
		},
	}
}

// Load reads a TOML config file from path, then loads and validates the
// genesis file it names.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse toml config: %w", err)
	}
	if cfg.Node.GenesisFile == "" {
		return nil, fmt.Errorf("node.genesis_file must not be empty")
	}
	gen, err := LoadGenesisFile(cfg.Node.GenesisFile)
	if err != nil {
		return nil, fmt.Errorf("load genesis file: %w", err)
	}
	cfg.Genesis = gen
	cfg.Validators = gen.InitialValidators
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.Node.DBPath == "" {
		return fmt.Errorf("node.db_path must not be empty")
	}
	if c.Node.RPCPort <= 0 || c.Node.RPCPort > 65535 {
		return fmt.Errorf("node.rpc_port must be 1-65535, got %d", c.Node.RPCPort)
	}
	if c.Node.P2PPort <= 0 || c.Node.P2PPort > 65535 {
		return fmt.Errorf("node.p2p_port must be 1-65535, got %d", c.Node.P2PPort)
	}
	if c.Node.RPCPort == c.Node.P2PPort {
		return fmt.Errorf("node.rpc_port and node.p2p_port must not be the same (%d)", c.Node.RPCPort)
	}
	if c.Consensus.SlotDurationMs <= 0 {
		return fmt.Errorf("consensus.slot_duration_ms must be > 0")
	}
	if c.Consensus.PoHIterationsPerTick == 0 {
		return fmt.Errorf("consensus.poh_iterations_per_tick must be > 0")
	}
	if len(c.Validators) == 0 {
		return fmt.Errorf("genesis.initial_validators must not be empty")
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

// Save writes cfg to path as formatted TOML.
func Save(cfg *Config, path string) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
