package core_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/internal/testutil"
)

func TestGenesisBlockHashIsDeterministic(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	block, err := core.NewGenesisBlock("chain-1", pub.Hex(), core.GenesisBody{
		ChainID:           "chain-1",
		InitialValidators: []string{pub.Hex()},
		OracleThreshold:   2,
	})
	require.NoError(t, err)
	block.Sign(priv)

	require.NotEmpty(t, block.Hash)
	require.Equal(t, block.ComputeHash(), block.Hash)
}

func TestTxBlockHashChangesWithPrevHash(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	tx, err := core.NewTransaction("chain-1", core.TxTransfer, pub.Hex(), 0, 0, core.TransferPayload{
		To: "bob", Asset: core.NativeAsset, Amount: 1,
	})
	require.NoError(t, err)
	tx.Sign(priv)

	blockA, err := core.NewTxBlock("chain-1", 1, "prevA", pub.Hex(), tx)
	require.NoError(t, err)
	blockB, err := core.NewTxBlock("chain-1", 1, "prevB", pub.Hex(), tx)
	require.NoError(t, err)

	require.NotEqual(t, blockA.ComputeHash(), blockB.ComputeHash())
}

func TestBlockchainAddBlockEnforcesHeightAndPrevHash(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	bc := core.NewBlockchain(testutil.NewMemBlockStore())
	require.NoError(t, bc.Init())

	genesis, err := core.NewGenesisBlock("chain-1", pub.Hex(), core.GenesisBody{ChainID: "chain-1"})
	require.NoError(t, err)
	genesis.Sign(priv)
	require.NoError(t, bc.AddBlock(genesis))
	require.EqualValues(t, 0, bc.Height())

	tx, err := core.NewTransaction("chain-1", core.TxTransfer, pub.Hex(), 0, 0, core.TransferPayload{
		To: "bob", Asset: core.NativeAsset, Amount: 1,
	})
	require.NoError(t, err)
	tx.Sign(priv)

	// Wrong prev hash must be rejected.
	bad, err := core.NewTxBlock("chain-1", 1, "bogus-prev-hash", pub.Hex(), tx)
	require.NoError(t, err)
	bad.Sign(priv)
	require.Error(t, bc.AddBlock(bad))

	good, err := core.NewTxBlock("chain-1", 1, genesis.Hash, pub.Hex(), tx)
	require.NoError(t, err)
	good.Sign(priv)
	require.NoError(t, bc.AddBlock(good))
	require.EqualValues(t, 1, bc.Height())
	require.Equal(t, good.Hash, bc.HeadHash())
}
