package core_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
)

func TestTransactionSignVerify(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	tx, err := core.NewTransaction("chain-1", core.TxTransfer, pub.Hex(), 0, 0, core.TransferPayload{
		To: "deadbeef", Asset: core.NativeAsset, Amount: 100,
	})
	require.NoError(t, err)
	tx.Sign(priv)

	require.NotEmpty(t, tx.ID)
	require.NoError(t, tx.Verify())

	tx.Fee = 999
	require.Error(t, tx.Verify())
}

func TestTransactionHashDeterministicForSameFields(t *testing.T) {
	_, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	txA, err := core.NewTransaction("chain-1", core.TxTransfer, pub.Hex(), 1, 5, core.TransferPayload{
		To: "bob", Asset: core.NativeAsset, Amount: 10,
	})
	require.NoError(t, err)
	txB, err := core.NewTransaction("chain-1", core.TxTransfer, pub.Hex(), 1, 5, core.TransferPayload{
		To: "bob", Asset: core.NativeAsset, Amount: 10,
	})
	require.NoError(t, err)
	txB.Timestamp = txA.Timestamp

	require.Equal(t, txA.Hash(), txB.Hash())
}

func TestTransactionVerifyRejectsMissingFrom(t *testing.T) {
	tx, err := core.NewTransaction("chain-1", core.TxTransfer, "", 0, 0, core.TransferPayload{
		To: "bob", Asset: core.NativeAsset, Amount: 1,
	})
	require.NoError(t, err)
	require.ErrorIs(t, tx.Verify(), core.ErrInvalidSignature)
}
