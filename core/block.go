package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tolelom/tolchain/crypto"
)

// BodyKind tags the variant carried by a BlockHeader. Exactly one kind of
// body is active per block; under the "transaction = block" design each
// non-Genesis, non-PoH block wraps exactly one signed Transaction.
type BodyKind string

const (
	BodyGenesis            BodyKind = "genesis"
	BodyPoH                BodyKind = "poh"
	BodyTransfer           BodyKind = "transfer"
	BodyMint               BodyKind = "mint"
	BodyBurn               BodyKind = "burn"
	BodyReward             BodyKind = "reward"
	BodyProposal           BodyKind = "proposal"
	BodyVote               BodyKind = "vote"
	BodyComputeJob         BodyKind = "compute_job"
	BodyComputeResult      BodyKind = "compute_result"
	BodyOracleAttestation  BodyKind = "oracle_attestation"
	BodyRegisterValidator  BodyKind = "register_validator"
)

// txBodyKind maps a transaction's TxType onto the BodyKind its enclosing
// block carries. Genesis and PoH have no corresponding TxType: they are
// produced directly by the node, never submitted through the mempool.
var txBodyKind = map[TxType]BodyKind{
	TxTransfer:           BodyTransfer,
	TxMint:               BodyMint,
	TxBurn:               BodyBurn,
	TxReward:             BodyReward,
	TxProposal:           BodyProposal,
	TxVote:               BodyVote,
	TxComputeJob:         BodyComputeJob,
	TxComputeResult:      BodyComputeResult,
	TxOracleAttestation:  BodyOracleAttestation,
	TxRegisterValidator:  BodyRegisterValidator,
}

// GenesisBody is the header.body payload for the one height-0 Genesis block.
type GenesisBody struct {
	ChainID           string            `json:"chain_id"`
	Timestamp         int64             `json:"timestamp"`
	InitialBalances   map[string]uint64 `json:"initial_balances"`
	InitialValidators []string          `json:"initial_validators"`
	OracleThreshold   int               `json:"oracle_threshold"`
	// Admins lists the pubkeys (hex) authorised to create Proposal blocks,
	// issue Reward blocks, and register new validators. There is no implicit
	// "admin" identity, unlike original_source/src/block.rs's hardcoded
	// is_admin() set — authority is whoever genesis names.
	Admins []string `json:"admins"`
}

// PoHBody is the header.body payload for a PoH tick block. It carries no
// state delta; it exists only to anchor wall-clock-independent ordering.
type PoHBody struct {
	Tick       uint64 `json:"tick"`
	Iterations uint64 `json:"iterations"`
	VDFOutput  string `json:"vdf_output"` // hex big-int
	Proof      string `json:"proof"`      // hex big-int (Wesolowski pi)
}

// BlockHeader contains the block metadata that is hashed and signed.
type BlockHeader struct {
	ChainID   string   `json:"chain_id"`
	Height    int64    `json:"height"`
	PrevHash  string   `json:"prev_hash"`
	StateRoot string   `json:"state_root"` // hash of state after executing this block
	TxRoot    string   `json:"tx_root"`    // hash of the body (Tx ID, or Body bytes for Genesis/PoH)
	Timestamp int64    `json:"timestamp"`
	Proposer  string   `json:"proposer"` // proposer's pubkey hex
	BodyKind  BodyKind `json:"body_kind"`
	// Body carries Genesis/PoH payloads. Transaction-kind blocks leave this
	// nil and carry their payload in Tx instead, since that payload is
	// itself signed by the transaction's sender (possibly not the proposer).
	Body json.RawMessage `json:"body,omitempty"`
}

// Block is the atomic unit of consensus: a header plus, for transaction-kind
// bodies, the originating signed Transaction.
type Block struct {
	Header    BlockHeader  `json:"header"`
	Tx        *Transaction `json:"tx,omitempty"`
	Hash      string       `json:"hash"`
	Signature string       `json:"signature"`
}

// ComputeHash returns the SHA-256 hash of the serialised header. Returns an
// empty string if marshalling fails (which cannot happen in practice).
func (b *Block) ComputeHash() string {
	data, err := json.Marshal(b.Header)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign sets Hash and signs the block with the proposer's private key.
func (b *Block) Sign(priv crypto.PrivateKey) {
	b.Hash = b.ComputeHash()
	b.Signature = crypto.Sign(priv, []byte(b.Hash))
}

// Verify checks that b.Hash matches the recomputed header hash and that the
// signature is valid. This prevents accepting blocks whose header was
// tampered with after signing.
func (b *Block) Verify(pub crypto.PublicKey) error {
	if computed := b.ComputeHash(); b.Hash != computed {
		return fmt.Errorf("%w: block hash mismatch: stored %s computed %s", ErrInvalidSignature, b.Hash, computed)
	}
	if err := crypto.Verify(pub, []byte(b.Hash), b.Signature); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// VerifyIntegrity checks the structural integrity of a block independently of
// the proposer signature: hash consistency and TxRoot correctness.
func (b *Block) VerifyIntegrity() error {
	if computed := b.ComputeHash(); b.Hash != computed {
		return fmt.Errorf("block hash mismatch: stored %s computed %s", b.Hash, computed)
	}
	if txRoot := ComputeTxRoot(b.Tx, b.Header.Body); b.Header.TxRoot != txRoot {
		return fmt.Errorf("tx_root mismatch")
	}
	return nil
}

// ComputeTxRoot builds a deterministic root hash for a block's body: the
// signed transaction's ID for transaction-kind blocks, or the raw body bytes
// for Genesis/PoH blocks.
func ComputeTxRoot(tx *Transaction, body json.RawMessage) string {
	if tx != nil {
		return crypto.Hash([]byte(tx.ID))
	}
	if len(body) == 0 {
		return crypto.Hash([]byte("empty"))
	}
	return crypto.Hash(body)
}

// NewTxBlock creates an unsigned block wrapping a single signed transaction.
func NewTxBlock(chainID string, height int64, prevHash, proposer string, tx *Transaction) (*Block, error) {
	kind, ok := txBodyKind[tx.Type]
	if !ok {
		return nil, fmt.Errorf("no body kind registered for tx type %q", tx.Type)
	}
	return &Block{
		Header: BlockHeader{
			ChainID:   chainID,
			Height:    height,
			PrevHash:  prevHash,
			TxRoot:    ComputeTxRoot(tx, nil),
			Timestamp: time.Now().UnixMilli(),
			Proposer:  proposer,
			BodyKind:  kind,
		},
		Tx: tx,
	}, nil
}

// NewGenesisBlock creates the unsigned height-0 Genesis block.
func NewGenesisBlock(chainID, proposer string, body GenesisBody) (*Block, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal genesis body: %w", err)
	}
	return &Block{
		Header: BlockHeader{
			ChainID:   chainID,
			Height:    0,
			PrevHash:  GenesisPrevHash,
			TxRoot:    ComputeTxRoot(nil, raw),
			Timestamp: body.Timestamp,
			Proposer:  proposer,
			BodyKind:  BodyGenesis,
			Body:      raw,
		},
	}, nil
}

// NewPoHBlock creates an unsigned PoH tick block. It carries no state delta.
func NewPoHBlock(chainID string, height int64, prevHash, proposer string, body PoHBody) (*Block, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal poh body: %w", err)
	}
	return &Block{
		Header: BlockHeader{
			ChainID:   chainID,
			Height:    height,
			PrevHash:  prevHash,
			TxRoot:    ComputeTxRoot(nil, raw),
			Timestamp: time.Now().UnixMilli(),
			Proposer:  proposer,
			BodyKind:  BodyPoH,
			Body:      raw,
		},
	}, nil
}

// GenesisPrevHash is the all-zero digest (64 hex chars, matching the length
// of a SHA-256 digest) used as PrevHash for height 0.
const GenesisPrevHash = "0000000000000000000000000000000000000000000000000000000000000000"

// IsGenesisHash reports whether h is the all-zero genesis PrevHash sentinel.
func IsGenesisHash(h string) bool {
	if len(h) != len(GenesisPrevHash) {
		return false
	}
	for _, c := range h {
		if c != '0' {
			return false
		}
	}
	return true
}
