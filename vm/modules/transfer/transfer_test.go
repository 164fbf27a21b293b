package transfer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/internal/testutil"
	"github.com/tolelom/tolchain/vm"

	_ "github.com/tolelom/tolchain/vm/modules/transfer"
)

func signedTx(t *testing.T, priv crypto.PrivateKey, nonce, fee uint64, payload core.TransferPayload) *core.Transaction {
	t.Helper()
	tx, err := core.NewTransaction("test-chain", core.TxTransfer, priv.Public().Hex(), nonce, fee, payload)
	require.NoError(t, err)
	tx.Sign(priv)
	return tx
}

func TestHandleTransferMovesBalance(t *testing.T) {
	state := testutil.NewStateDB()
	exec := vm.NewExecutor(state, events.NewEmitter())

	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, state.SetBalance(pub.Hex(), core.NativeAsset, 1000))

	tx := signedTx(t, priv, 1, 10, core.TransferPayload{To: "bob", Asset: core.NativeAsset, Amount: 300})
	block, err := core.NewTxBlock("test-chain", 1, core.GenesisPrevHash, "proposer", tx)
	require.NoError(t, err)

	require.NoError(t, exec.ExecuteTx(block, tx))

	senderBal, err := state.GetBalance(pub.Hex(), core.NativeAsset)
	require.NoError(t, err)
	require.EqualValues(t, 690, senderBal) // 1000 - 300 transfer - 10 fee

	bobBal, err := state.GetBalance("bob", core.NativeAsset)
	require.NoError(t, err)
	require.EqualValues(t, 300, bobBal)
}

func TestHandleTransferRejectsZeroAmount(t *testing.T) {
	state := testutil.NewStateDB()
	exec := vm.NewExecutor(state, events.NewEmitter())

	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, state.SetBalance(pub.Hex(), core.NativeAsset, 100))

	tx := signedTx(t, priv, 1, 0, core.TransferPayload{To: "bob", Asset: core.NativeAsset, Amount: 0})
	block, err := core.NewTxBlock("test-chain", 1, core.GenesisPrevHash, "proposer", tx)
	require.NoError(t, err)

	require.Error(t, exec.ExecuteTx(block, tx))
}
