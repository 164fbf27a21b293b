package wallet_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/wallet"
)

func TestGenerateAndAddress(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)
	require.NotEmpty(t, w.PubKey())
	require.NotEmpty(t, w.Address())
}

func TestTransferBuildsSignedTx(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)

	tx, err := w.Transfer("test-chain", "bob", core.NativeAsset, 300, 1, 10)
	require.NoError(t, err)
	require.Equal(t, core.TxTransfer, tx.Type)
	require.Equal(t, w.PubKey(), tx.From)
	require.NoError(t, tx.Verify())
}

func TestMintDefaultsOwnerToSigner(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)

	tx, err := w.Mint("test-chain", 1, 5, core.MintPayload{
		VaultID:          "vault-1",
		CollateralAsset:  "usd-oracle",
		CollateralAmount: 1000,
		MintedAsset:      "stable-usd",
		MintAmount:       950,
		ExternalTxProof:  "proof-1",
	})
	require.NoError(t, err)
	require.Equal(t, core.TxMint, tx.Type)

	var payload core.MintPayload
	require.NoError(t, json.Unmarshal(tx.Payload, &payload))
	require.Equal(t, w.PubKey(), payload.Owner)
}

func TestBurnDefaultsRedeemerToSigner(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)

	tx, err := w.Burn("test-chain", 1, 5, core.BurnPayload{
		VaultID:     "vault-1",
		MintedAsset: "stable-usd",
		BurnAmount:  200,
		Destination: "external-addr",
	})
	require.NoError(t, err)

	var payload core.BurnPayload
	require.NoError(t, json.Unmarshal(tx.Payload, &payload))
	require.Equal(t, w.PubKey(), payload.Redeemer)
}

func TestVoteAndProposalRoundTrip(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)

	prop, err := w.Proposal("test-chain", 1, 0, core.ProposalPayload{ID: "p1", Text: "raise threshold", Deadline: 9999})
	require.NoError(t, err)
	require.Equal(t, core.TxProposal, prop.Type)

	vote, err := w.Vote("test-chain", "p1", "yes", 2, 0)
	require.NoError(t, err)
	require.Equal(t, core.TxVote, vote.Type)

	var payload core.VotePayload
	require.NoError(t, json.Unmarshal(vote.Payload, &payload))
	require.Equal(t, "p1", payload.ProposalID)
	require.Equal(t, "yes", payload.Choice)
}

func TestComputeJobAndResult(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)

	job, err := w.ComputeJob("test-chain", 1, 0, core.ComputeJobPayload{
		JobID: "job-1", ModelID: "m1", InputsHash: "hash", MaxUnits: 100, Reward: 10,
	})
	require.NoError(t, err)
	require.Equal(t, core.TxComputeJob, job.Type)

	result, err := w.ComputeResult("test-chain", 2, 0, core.ComputeResultPayload{
		JobID: "job-1", ResultHash: "rhash", MeasuredRate: 90,
	})
	require.NoError(t, err)
	require.Equal(t, core.TxComputeResult, result.Type)
}

func TestRegisterValidatorAndReward(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)

	rv, err := w.RegisterValidator("test-chain", 1, 0, core.RegisterValidatorPayload{
		ValidatorID: "v2", PubKey: "deadbeef", Stake: 500,
	})
	require.NoError(t, err)
	require.Equal(t, core.TxRegisterValidator, rv.Type)

	reward, err := w.Reward("test-chain", 2, 0, core.RewardPayload{
		Recipient: "v2", Amount: 50, Asset: core.NativeAsset, Reason: "uptime",
	})
	require.NoError(t, err)
	require.Equal(t, core.TxReward, reward.Type)
}
