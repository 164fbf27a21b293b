package rpc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchain/config"
	"github.com/tolelom/tolchain/consensus"
	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/indexer"
	"github.com/tolelom/tolchain/internal/testutil"
	"github.com/tolelom/tolchain/mempool"
	"github.com/tolelom/tolchain/rpc"
	"github.com/tolelom/tolchain/vm"

	_ "github.com/tolelom/tolchain/vm/modules/transfer"
)

// TestSubmitProduceQueryRoundTrip wires a mempool, consensus producer, VM
// executor, indexer and RPC handler together the way cmd/node does, and
// drives a transfer from submission through to a queryable balance and
// account tx history entry without going over HTTP or touching the
// filesystem.
func TestSubmitProduceQueryRoundTrip(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	bc := core.NewBlockchain(testutil.NewMemBlockStore())
	require.NoError(t, bc.Init())

	genesis, err := core.NewGenesisBlock("chain-1", pub.Hex(), core.GenesisBody{
		ChainID: "chain-1", InitialValidators: []string{pub.Hex()},
	})
	require.NoError(t, err)
	genesis.Sign(priv)
	require.NoError(t, bc.AddBlock(genesis))

	state := testutil.NewStateDB()
	require.NoError(t, state.SetBalance(pub.Hex(), core.NativeAsset, 1000))
	require.NoError(t, state.Commit())

	cfg := config.DefaultConfig()
	cfg.Genesis = &config.GenesisFile{ChainID: "chain-1"}
	cfg.Validators = []string{pub.Hex()}

	pool := mempool.New()
	emitter := events.NewEmitter()
	exec := vm.NewExecutor(state, emitter)
	producer := consensus.New(cfg, bc, state, pool, exec, emitter, priv)

	idx := indexer.New(testutil.NewMemDB(), emitter)
	h := rpc.NewHandler(bc, pool, state, idx, nil, "chain-1")

	tx, err := core.NewTransaction("chain-1", core.TxTransfer, pub.Hex(), 1, 1, core.TransferPayload{
		To: "bob", Asset: core.NativeAsset, Amount: 250,
	})
	require.NoError(t, err)
	tx.Sign(priv)

	submitResp := call(h, "submitTransfer", tx)
	require.Nil(t, submitResp.Error)
	submitResult := submitResp.Result.(map[string]any)
	require.Equal(t, "pending", submitResult["status"])

	blocks, err := producer.ProduceRound()
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	bobResp := call(h, "getBalance", map[string]any{"account": "bob"})
	require.Nil(t, bobResp.Error)
	require.EqualValues(t, 250, bobResp.Result.(map[string]any)["balance"])

	senderResp := call(h, "getAccountInfo", map[string]any{"account": pub.Hex()})
	require.Nil(t, senderResp.Error)
	senderInfo := senderResp.Result.(map[string]any)
	require.EqualValues(t, 750, senderInfo["balance"])
	require.EqualValues(t, 1, senderInfo["nonce"])
	require.EqualValues(t, 1, senderInfo["tx_count"])

	nodeInfoResp := call(h, "getNodeInfo", map[string]any{})
	require.Nil(t, nodeInfoResp.Error)
	require.EqualValues(t, 1, nodeInfoResp.Result.(map[string]any)["height"])
}

// TestDuplicateSubmitIsRejectedByMempool confirms a resubmitted, already
// pending transaction is reported as a duplicate rather than silently
// re-broadcast or double-counted.
func TestDuplicateSubmitIsRejectedByMempool(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	bc := core.NewBlockchain(testutil.NewMemBlockStore())
	require.NoError(t, bc.Init())
	genesis, err := core.NewGenesisBlock("chain-1", pub.Hex(), core.GenesisBody{ChainID: "chain-1"})
	require.NoError(t, err)
	genesis.Sign(priv)
	require.NoError(t, bc.AddBlock(genesis))

	state := testutil.NewStateDB()
	pool := mempool.New()
	idx := indexer.New(testutil.NewMemDB(), events.NewEmitter())
	h := rpc.NewHandler(bc, pool, state, idx, nil, "chain-1")

	tx, err := core.NewTransaction("chain-1", core.TxTransfer, pub.Hex(), 0, 1, core.TransferPayload{
		To: "bob", Asset: core.NativeAsset, Amount: 1,
	})
	require.NoError(t, err)
	tx.Sign(priv)

	first := call(h, "submitTransfer", tx)
	require.Nil(t, first.Error)
	require.Equal(t, "pending", first.Result.(map[string]any)["status"])

	second := call(h, "submitTransfer", tx)
	require.Nil(t, second.Error)
	require.Equal(t, "duplicate", second.Result.(map[string]any)["status"])
}
