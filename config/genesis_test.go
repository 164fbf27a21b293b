package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchain/config"
	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/internal/testutil"
)

func writeGenesisFile(t *testing.T, g config.GenesisFile) string {
	t.Helper()
	data, err := json.Marshal(g)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestLoadGenesisFileRequiresChainID(t *testing.T) {
	path := writeGenesisFile(t, config.GenesisFile{
		InitialValidators: []string{"val-1"},
		OracleThreshold:   1,
	})
	_, err := config.LoadGenesisFile(path)
	require.Error(t, err)
}

func TestLoadGenesisFileRequiresOracleThreshold(t *testing.T) {
	path := writeGenesisFile(t, config.GenesisFile{
		ChainID:           "chain-1",
		InitialValidators: []string{"val-1"},
	})
	_, err := config.LoadGenesisFile(path)
	require.Error(t, err)
}

func TestLoadGenesisFileAcceptsWellFormedFile(t *testing.T) {
	path := writeGenesisFile(t, config.GenesisFile{
		ChainID:           "chain-1",
		InitialValidators: []string{"val-1"},
		OracleThreshold:   2,
	})
	g, err := config.LoadGenesisFile(path)
	require.NoError(t, err)
	require.Equal(t, "chain-1", g.ChainID)
	require.EqualValues(t, 2, g.OracleThreshold)
}

func TestBuildGenesisBlockSeedsBalancesAndValidators(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	g := &config.GenesisFile{
		ChainID:           "chain-1",
		InitialValidators: []string{pub.Hex()},
		InitialBalances:   []config.BalanceEntry{{Account: "alice", Balance: 500}},
		Admins:            []string{pub.Hex()},
		OracleThreshold:   1,
	}

	state := testutil.NewStateDB()
	block, err := config.BuildGenesisBlock(g, state, priv)
	require.NoError(t, err)
	require.EqualValues(t, 0, block.Header.Height)
	require.NotEmpty(t, block.Hash)

	bal, err := state.GetBalance("alice", core.NativeAsset)
	require.NoError(t, err)
	require.EqualValues(t, 500, bal)

	v, err := state.GetValidator(pub.Hex())
	require.NoError(t, err)
	require.Equal(t, pub.Hex(), v.ValidatorID)

	isAdmin, err := state.IsAdmin(pub.Hex())
	require.NoError(t, err)
	require.True(t, isAdmin)
}
