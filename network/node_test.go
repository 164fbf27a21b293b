package network_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/mempool"
	"github.com/tolelom/tolchain/network"
)

func startNode(t *testing.T, nodeID, chainID, genesisHash string) (*network.Node, string) {
	t.Helper()
	pool := mempool.New()
	n := network.NewNode(nodeID, "127.0.0.1:0", chainID, genesisHash, pool, nil)
	require.NoError(t, n.Start())
	t.Cleanup(n.Stop)
	return n, n.ListenAddr()
}

func TestHandshakeAcceptsMatchingNetwork(t *testing.T) {
	a, _ := startNode(t, "node-a", "chain-1", "genesis-hash-1")
	_, addrB := startNode(t, "node-b", "chain-1", "genesis-hash-1")

	require.NoError(t, a.AddPeer("node-b", addrB))
	time.Sleep(50 * time.Millisecond)
	require.Contains(t, a.Peers(), "node-b")
}

func TestHandshakeRejectsMismatchedGenesis(t *testing.T) {
	a, _ := startNode(t, "node-a", "chain-1", "genesis-hash-1")
	_, addrB := startNode(t, "node-b", "chain-1", "genesis-hash-DIFFERENT")

	require.NoError(t, a.AddPeer("node-b", addrB))
	time.Sleep(50 * time.Millisecond)
	require.NotContains(t, a.Peers(), "node-b")
}

func TestBroadcastTxReachesMempool(t *testing.T) {
	poolB := mempool.New()
	a := network.NewNode("node-a", "127.0.0.1:0", "chain-1", "genesis-hash-1", mempool.New(), nil)
	require.NoError(t, a.Start())
	t.Cleanup(a.Stop)

	b := network.NewNode("node-b", "127.0.0.1:0", "chain-1", "genesis-hash-1", poolB, nil)
	require.NoError(t, b.Start())
	t.Cleanup(b.Stop)

	require.NoError(t, a.AddPeer("node-b", b.ListenAddr()))
	time.Sleep(50 * time.Millisecond)

	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	tx, err := core.NewTransaction("chain-1", core.TxTransfer, pub.Hex(), 1, 10, core.TransferPayload{
		To: "bob", Asset: core.NativeAsset, Amount: 5,
	})
	require.NoError(t, err)
	tx.Sign(priv)

	a.BroadcastTx(tx)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, poolB.Size())
}
