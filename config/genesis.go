package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/vm"
)

// BalanceEntry is one element of genesis.json's initial_balances array.
type BalanceEntry struct {
	Account string `json:"account"`
	Asset   string `json:"asset"` // empty → core.NativeAsset
	Balance uint64 `json:"balance"`
}

// GenesisFile is the on-disk JSON shape named by spec.md §6: "JSON with
// {chain_id, timestamp, initial_balances[], initial_validators[]}". Admins
// and oracle_threshold extend it per SPEC_FULL.md's governance/oracle
// supplements; the genesis-block hash is deterministic from this content,
// so a mismatch on P2P handshake isolates incompatible networks.
type GenesisFile struct {
	ChainID           string         `json:"chain_id"`
	Timestamp         int64          `json:"timestamp"`
	InitialBalances   []BalanceEntry `json:"initial_balances"`
	InitialValidators []string       `json:"initial_validators"`
	Admins            []string       `json:"admins"`
	OracleThreshold   int            `json:"oracle_threshold"`
}

// LoadGenesisFile reads and validates a genesis JSON file.
func LoadGenesisFile(path string) (*GenesisFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var g GenesisFile
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse genesis json: %w", err)
	}
	if g.ChainID == "" {
		return nil, fmt.Errorf("genesis.chain_id must not be empty")
	}
	if len(g.InitialValidators) == 0 {
		return nil, fmt.Errorf("genesis.initial_validators must not be empty")
	}
	if g.OracleThreshold <= 0 {
		return nil, fmt.Errorf("genesis.oracle_threshold must be a positive integer (Open Question: no implicit default)")
	}
	return &g, nil
}

// toGenesisBody collapses the array-shaped on-disk format into the
// map-shaped core.GenesisBody embedded (and hashed) in block #0's header.
func (g *GenesisFile) toGenesisBody() core.GenesisBody {
	balances := make(map[string]uint64, len(g.InitialBalances))
	for _, e := range g.InitialBalances {
		balances[e.Account] = e.Balance
	}
	return core.GenesisBody{
		ChainID:           g.ChainID,
		Timestamp:         g.Timestamp,
		InitialBalances:   balances,
		InitialValidators: g.InitialValidators,
		OracleThreshold:   g.OracleThreshold,
		Admins:            g.Admins,
	}
}

// BuildGenesisBlock builds and signs the height-0 Genesis block, seeds
// initial balances/validators/admins into state, configures the package-wide
// oracle threshold, and commits. proposerPriv signs the block; by convention
// this is the first initial validator's key.
func BuildGenesisBlock(g *GenesisFile, state core.State, proposerPriv crypto.PrivateKey) (*core.Block, error) {
	for _, e := range g.InitialBalances {
		asset := e.Asset
		if asset == "" {
			asset = core.NativeAsset
		}
		if err := state.SetBalance(e.Account, asset, e.Balance); err != nil {
			return nil, fmt.Errorf("seed balance for %s: %w", e.Account, err)
		}
	}
	for _, pub := range g.InitialValidators {
		v := &core.Validator{ValidatorID: pub, PubKey: pub}
		if err := state.SetValidator(v); err != nil {
			return nil, fmt.Errorf("seed validator %s: %w", pub, err)
		}
	}
	if err := state.SetAdmins(g.Admins); err != nil {
		return nil, fmt.Errorf("seed admin set: %w", err)
	}
	vm.SetOracleThreshold(g.OracleThreshold)

	proposerPub := proposerPriv.Public().Hex()
	block, err := core.NewGenesisBlock(g.ChainID, proposerPub, g.toGenesisBody())
	if err != nil {
		return nil, fmt.Errorf("build genesis block: %w", err)
	}

	stateRoot := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return nil, fmt.Errorf("commit genesis state: %w", err)
	}
	block.Header.StateRoot = stateRoot
	block.Sign(proposerPriv)
	return block, nil
}
