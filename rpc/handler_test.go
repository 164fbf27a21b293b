package rpc_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/indexer"
	"github.com/tolelom/tolchain/internal/testutil"
	"github.com/tolelom/tolchain/mempool"
	"github.com/tolelom/tolchain/rpc"
)

func newTestHandler(t *testing.T) (*rpc.Handler, core.State, crypto.PrivateKey, crypto.PublicKey) {
	t.Helper()

	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	bc := core.NewBlockchain(testutil.NewMemBlockStore())
	require.NoError(t, bc.Init())

	genesis, err := core.NewGenesisBlock("chain-1", pub.Hex(), core.GenesisBody{ChainID: "chain-1"})
	require.NoError(t, err)
	genesis.Sign(priv)
	require.NoError(t, bc.AddBlock(genesis))

	state := testutil.NewStateDB()
	require.NoError(t, state.SetAccount(&core.Account{Address: pub.Hex(), Nonce: 0}))
	require.NoError(t, state.SetBalance(pub.Hex(), core.NativeAsset, 1000))
	require.NoError(t, state.Commit())

	idx := indexer.New(testutil.NewMemDB(), events.NewEmitter())

	h := rpc.NewHandler(bc, mempool.New(), state, idx, nil, "chain-1")
	return h, state, priv, pub
}

func call(h *rpc.Handler, method string, params any) rpc.Response {
	raw, _ := json.Marshal(params)
	return h.Dispatch(rpc.Request{JSONRPC: "2.0", ID: 1, Method: method, Params: raw})
}

func TestGetNodeInfoReportsHeightAndVersion(t *testing.T) {
	h, _, _, _ := newTestHandler(t)
	resp := call(h, "getNodeInfo", map[string]any{})
	require.Nil(t, resp.Error)
	info := resp.Result.(map[string]any)
	require.EqualValues(t, 0, info["height"])
	require.Equal(t, rpc.Version, info["version"])
	require.EqualValues(t, 0, info["peer_count"])
}

func TestGetBlockDefaultsToTip(t *testing.T) {
	h, _, _, _ := newTestHandler(t)
	resp := call(h, "getBlock", map[string]any{})
	require.Nil(t, resp.Error)
}

func TestGetBalanceReturnsSeededAmount(t *testing.T) {
	h, _, _, pub := newTestHandler(t)
	resp := call(h, "getBalance", map[string]any{"account": pub.Hex()})
	require.Nil(t, resp.Error)
	res := resp.Result.(map[string]any)
	require.EqualValues(t, 1000, res["balance"])
}

func TestGetBalanceRequiresAccount(t *testing.T) {
	h, _, _, _ := newTestHandler(t)
	resp := call(h, "getBalance", map[string]any{})
	require.NotNil(t, resp.Error)
	require.Equal(t, rpc.CodeInvalidParams, resp.Error.Code)
}

func TestGetNonceReturnsAccountNonce(t *testing.T) {
	h, _, _, pub := newTestHandler(t)
	resp := call(h, "getNonce", map[string]any{"account": pub.Hex()})
	require.Nil(t, resp.Error)
	res := resp.Result.(map[string]any)
	require.EqualValues(t, 0, res["nonce"])
}

func TestGetAccountInfoAggregatesFields(t *testing.T) {
	h, _, _, pub := newTestHandler(t)
	resp := call(h, "getAccountInfo", map[string]any{"account": pub.Hex()})
	require.Nil(t, resp.Error)
	res := resp.Result.(map[string]any)
	require.EqualValues(t, 1000, res["balance"])
	require.Equal(t, false, res["is_admin"])
}

func TestSubmitTransferAcceptsSignedTx(t *testing.T) {
	h, _, priv, pub := newTestHandler(t)

	tx, err := core.NewTransaction("chain-1", core.TxTransfer, pub.Hex(), 0, 1, core.TransferPayload{
		To: "bob", Asset: core.NativeAsset, Amount: 10,
	})
	require.NoError(t, err)
	tx.Sign(priv)

	resp := call(h, "submitTransfer", tx)
	require.Nil(t, resp.Error)
	res := resp.Result.(map[string]any)
	require.Equal(t, "pending", res["status"])
	require.NotEmpty(t, res["tx_hash"])
}

func TestSubmitRejectsWrongType(t *testing.T) {
	h, _, priv, pub := newTestHandler(t)

	tx, err := core.NewTransaction("chain-1", core.TxTransfer, pub.Hex(), 0, 1, core.TransferPayload{
		To: "bob", Asset: core.NativeAsset, Amount: 10,
	})
	require.NoError(t, err)
	tx.Sign(priv)

	resp := call(h, "submitMint", tx)
	require.NotNil(t, resp.Error)
	require.Equal(t, rpc.CodeInvalidParams, resp.Error.Code)
}

func TestSubmitRejectsUnsignedTx(t *testing.T) {
	h, _, _, pub := newTestHandler(t)

	tx, err := core.NewTransaction("chain-1", core.TxTransfer, pub.Hex(), 0, 1, core.TransferPayload{
		To: "bob", Asset: core.NativeAsset, Amount: 10,
	})
	require.NoError(t, err)
	// Not signed.

	resp := call(h, "submitTransfer", tx)
	require.NotNil(t, resp.Error)
	require.Equal(t, rpc.CodeInvalidSignature, resp.Error.Code)
}

func TestGetValidatorStatsNotFound(t *testing.T) {
	h, _, _, _ := newTestHandler(t)
	resp := call(h, "getValidatorStats", map[string]any{"validator": "missing"})
	require.NotNil(t, resp.Error)
	require.Equal(t, rpc.CodeNotFound, resp.Error.Code)
}

func TestGetPeersWithoutNodeReturnsEmpty(t *testing.T) {
	h, _, _, _ := newTestHandler(t)
	resp := call(h, "getPeers", map[string]any{})
	require.Nil(t, resp.Error)
	require.Equal(t, []string{}, resp.Result)
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	h, _, _, _ := newTestHandler(t)
	resp := call(h, "bogus", map[string]any{})
	require.NotNil(t, resp.Error)
	require.Equal(t, rpc.CodeMethodNotFound, resp.Error.Code)
}
