package validator_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/internal/testutil"
	"github.com/tolelom/tolchain/vm"

	_ "github.com/tolelom/tolchain/vm/modules/validator"
)

func TestRegisterValidatorRequiresAdmin(t *testing.T) {
	state := testutil.NewStateDB()
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	tx, err := core.NewTransaction("test-chain", core.TxRegisterValidator, pub.Hex(), 1, 0, core.RegisterValidatorPayload{
		ValidatorID: "val-1", PubKey: pub.Hex(), Stake: 100,
	})
	require.NoError(t, err)
	tx.Sign(priv)

	exec := vm.NewExecutor(state, events.NewEmitter())
	block, err := core.NewTxBlock("test-chain", 1, core.GenesisPrevHash, "proposer", tx)
	require.NoError(t, err)
	err = exec.ExecuteTx(block, tx)
	require.ErrorIs(t, err, core.ErrNotAuthorized)
}

func TestRegisterValidatorBurnsStake(t *testing.T) {
	state := testutil.NewStateDB()
	adminPriv, adminPub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, state.SetAdmins([]string{adminPub.Hex()}))
	require.NoError(t, state.SetBalance(adminPub.Hex(), core.NativeAsset, 1000))

	_, newValPub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	tx, err := core.NewTransaction("test-chain", core.TxRegisterValidator, adminPub.Hex(), 1, 0, core.RegisterValidatorPayload{
		ValidatorID: "val-1", PubKey: newValPub.Hex(), Stake: 400,
	})
	require.NoError(t, err)
	tx.Sign(adminPriv)

	exec := vm.NewExecutor(state, events.NewEmitter())
	block, err := core.NewTxBlock("test-chain", 1, core.GenesisPrevHash, "proposer", tx)
	require.NoError(t, err)
	require.NoError(t, exec.ExecuteTx(block, tx))

	bal, err := state.GetBalance(adminPub.Hex(), core.NativeAsset)
	require.NoError(t, err)
	require.EqualValues(t, 600, bal)

	val, err := state.GetValidator("val-1")
	require.NoError(t, err)
	require.EqualValues(t, 400, val.Stake)
}
