package poh_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/poh"
)

func decodePoHBody(t *testing.T, block *core.Block) core.PoHBody {
	t.Helper()
	var body core.PoHBody
	require.NoError(t, json.Unmarshal(block.Header.Body, &body))
	return body
}

// fakeLedger is a minimal poh.Ledger that just tracks the last appended block.
type fakeLedger struct {
	height int64
	head   string
	blocks []*core.Block
}

func (l *fakeLedger) Height() int64   { return l.height }
func (l *fakeLedger) HeadHash() string { return l.head }
func (l *fakeLedger) AddBlock(block *core.Block) error {
	l.blocks = append(l.blocks, block)
	l.height = block.Header.Height
	l.head = block.Hash
	return nil
}

const testGenesisHash = "deadbeefcafef00d1122334455667788"

func TestTickAppendsPoHBlockAndAdvancesHeight(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	ledger := &fakeLedger{head: testGenesisHash}
	r := poh.New("chain-1", ledger, priv, 4, testGenesisHash)

	_, err = r.Tick()
	require.NoError(t, err)
	require.Len(t, ledger.blocks, 1)
	require.EqualValues(t, 1, ledger.height)

	_, err = r.Tick()
	require.NoError(t, err)
	require.Len(t, ledger.blocks, 2)
	require.EqualValues(t, 2, ledger.height)
}

func TestTickChainsPoHOutputAcrossTicks(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	ledger := &fakeLedger{head: testGenesisHash}
	r := poh.New("chain-1", ledger, priv, 4, testGenesisHash)

	_, err = r.Tick()
	require.NoError(t, err)
	_, err = r.Tick()
	require.NoError(t, err)

	require.NotEqual(t, decodePoHBody(t, ledger.blocks[0]).VDFOutput, decodePoHBody(t, ledger.blocks[1]).VDFOutput)
}

func TestVerifyAcceptsGenuineProofAndRejectsTamperedOutput(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	ledger := &fakeLedger{head: testGenesisHash}
	r := poh.New("chain-1", ledger, priv, 4, testGenesisHash)

	_, err = r.Tick()
	require.NoError(t, err)

	body := decodePoHBody(t, ledger.blocks[0])
	require.NoError(t, poh.Verify(body, testGenesisHash))

	body.VDFOutput = "00"
	require.Error(t, poh.Verify(body, testGenesisHash))
}
