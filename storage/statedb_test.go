package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/internal/testutil"
	"github.com/tolelom/tolchain/storage"
)

func TestBalanceAbsentIsZero(t *testing.T) {
	s := testutil.NewStateDB()
	bal, err := s.GetBalance("alice", core.NativeAsset)
	require.NoError(t, err)
	require.EqualValues(t, 0, bal)
}

func TestSetBalanceZeroDeletesKey(t *testing.T) {
	s := testutil.NewStateDB()
	require.NoError(t, s.SetBalance("alice", core.NativeAsset, 50))
	require.NoError(t, s.SetBalance("alice", core.NativeAsset, 0))

	bal, err := s.GetBalance("alice", core.NativeAsset)
	require.NoError(t, err)
	require.EqualValues(t, 0, bal)
}

func TestRevertToSnapshotRestoresPriorWrites(t *testing.T) {
	s := testutil.NewStateDB()
	require.NoError(t, s.SetBalance("alice", core.NativeAsset, 100))

	snap, err := s.Snapshot()
	require.NoError(t, err)

	require.NoError(t, s.SetBalance("alice", core.NativeAsset, 1))
	require.NoError(t, s.SetBalance("bob", core.NativeAsset, 999))

	require.NoError(t, s.RevertToSnapshot(snap))

	aliceBal, err := s.GetBalance("alice", core.NativeAsset)
	require.NoError(t, err)
	require.EqualValues(t, 100, aliceBal)

	bobBal, err := s.GetBalance("bob", core.NativeAsset)
	require.NoError(t, err)
	require.EqualValues(t, 0, bobBal)
}

func TestComputeRootIsDeterministicAndOrderIndependent(t *testing.T) {
	a := testutil.NewStateDB()
	require.NoError(t, a.SetBalance("alice", core.NativeAsset, 10))
	require.NoError(t, a.SetBalance("bob", core.NativeAsset, 20))

	b := testutil.NewStateDB()
	require.NoError(t, b.SetBalance("bob", core.NativeAsset, 20))
	require.NoError(t, b.SetBalance("alice", core.NativeAsset, 10))

	require.Equal(t, a.ComputeRoot(), b.ComputeRoot())
}

func TestComputeRootChangesAfterWrite(t *testing.T) {
	s := testutil.NewStateDB()
	before := s.ComputeRoot()
	require.NoError(t, s.SetBalance("alice", core.NativeAsset, 10))
	after := s.ComputeRoot()
	require.NotEqual(t, before, after)
}

func TestCommitPersistsAndClearsWriteBuffer(t *testing.T) {
	db := testutil.NewMemDB()
	s := storage.NewStateDB(db)

	require.NoError(t, s.SetBalance("alice", core.NativeAsset, 42))
	rootBeforeCommit := s.ComputeRoot()
	require.NoError(t, s.Commit())

	reopened := storage.NewStateDB(db)
	bal, err := reopened.GetBalance("alice", core.NativeAsset)
	require.NoError(t, err)
	require.EqualValues(t, 42, bal)
	require.Equal(t, rootBeforeCommit, reopened.ComputeRoot())
}

func TestValidatorSetDeduplicatesOnRepeatedRegistration(t *testing.T) {
	s := testutil.NewStateDB()
	v := &core.Validator{ValidatorID: "val-1"}
	require.NoError(t, s.SetValidator(v))
	require.NoError(t, s.SetValidator(v))

	ids, err := s.ListValidatorIDs()
	require.NoError(t, err)
	require.Equal(t, []string{"val-1"}, ids)
}

func TestAdminSetMembership(t *testing.T) {
	s := testutil.NewStateDB()
	isAdmin, err := s.IsAdmin("pub-1")
	require.NoError(t, err)
	require.False(t, isAdmin)

	require.NoError(t, s.SetAdmins([]string{"pub-1"}))
	isAdmin, err = s.IsAdmin("pub-1")
	require.NoError(t, err)
	require.True(t, isAdmin)
}

func TestProcessedProofIdempotency(t *testing.T) {
	s := testutil.NewStateDB()
	has, err := s.HasProcessedProof("proof-1")
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, s.MarkProcessedProof("proof-1"))
	has, err = s.HasProcessedProof("proof-1")
	require.NoError(t, err)
	require.True(t, has)
}
