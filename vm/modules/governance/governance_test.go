package governance_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/internal/testutil"
	"github.com/tolelom/tolchain/vm"

	_ "github.com/tolelom/tolchain/vm/modules/governance"
)

func signedTx(t *testing.T, priv crypto.PrivateKey, typ core.TxType, nonce uint64, payload any) *core.Transaction {
	t.Helper()
	tx, err := core.NewTransaction("test-chain", typ, priv.Public().Hex(), nonce, 0, payload)
	require.NoError(t, err)
	tx.Sign(priv)
	return tx
}

func execOne(t *testing.T, state core.State, tx *core.Transaction, timestamp int64) error {
	t.Helper()
	exec := vm.NewExecutor(state, events.NewEmitter())
	block, err := core.NewTxBlock("test-chain", 1, core.GenesisPrevHash, "proposer", tx)
	require.NoError(t, err)
	block.Header.Timestamp = timestamp
	return exec.ExecuteTx(block, tx)
}

func TestProposalRequiresAdmin(t *testing.T) {
	state := testutil.NewStateDB()
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	tx := signedTx(t, priv, core.TxProposal, 1, core.ProposalPayload{ID: "p1", Text: "raise fee", Deadline: 9999999999999})
	err = execOne(t, state, tx, 1000)
	require.ErrorIs(t, err, core.ErrNotAuthorized)
}

func TestVoteLifecycle(t *testing.T) {
	state := testutil.NewStateDB()
	adminPriv, adminPub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, state.SetAdmins([]string{adminPub.Hex()}))

	propTx := signedTx(t, adminPriv, core.TxProposal, 1, core.ProposalPayload{ID: "p1", Text: "raise fee", Deadline: 5000})
	require.NoError(t, execOne(t, state, propTx, 1000))

	voterPriv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	voteTx := signedTx(t, voterPriv, core.TxVote, 1, core.VotePayload{ProposalID: "p1", Choice: "yes"})
	require.NoError(t, execOne(t, state, voteTx, 2000))

	// Double vote from the same voter (new tx, nonce bumped) rejected.
	voteTx2 := signedTx(t, voterPriv, core.TxVote, 2, core.VotePayload{ProposalID: "p1", Choice: "no"})
	err = execOne(t, state, voteTx2, 2500)
	require.ErrorIs(t, err, core.ErrDuplicateVote)

	// Vote after deadline rejected.
	latePriv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	lateTx := signedTx(t, latePriv, core.TxVote, 1, core.VotePayload{ProposalID: "p1", Choice: "yes"})
	err = execOne(t, state, lateTx, 6000)
	require.ErrorIs(t, err, core.ErrProposalExpired)
}

func TestRewardCreditsRecipient(t *testing.T) {
	state := testutil.NewStateDB()
	adminPriv, adminPub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, state.SetAdmins([]string{adminPub.Hex()}))

	tx := signedTx(t, adminPriv, core.TxReward, 1, core.RewardPayload{Recipient: "worker-1", Amount: 250, Reason: "compute job"})
	require.NoError(t, execOne(t, state, tx, 1000))

	bal, err := state.GetBalance("worker-1", core.NativeAsset)
	require.NoError(t, err)
	require.EqualValues(t, 250, bal)
}
