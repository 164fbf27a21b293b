package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tolelom/tolchain/crypto"
)

// TxType identifies the kind of operation a transaction performs. Each value
// corresponds to a BlockHeader.BodyKind (see txBodyKind in block.go) once the
// transaction is drained from the mempool and wrapped in its own block.
type TxType string

const (
	TxTransfer          TxType = "transfer"
	TxMint              TxType = "mint"
	TxBurn              TxType = "burn"
	TxReward            TxType = "reward"
	TxProposal          TxType = "proposal"
	TxVote              TxType = "vote"
	TxComputeJob        TxType = "compute_job"
	TxComputeResult     TxType = "compute_result"
	TxOracleAttestation TxType = "oracle_attestation"
	TxRegisterValidator TxType = "register_validator"
)

// Transaction is the atomic unit of submission: a signed, typed operation
// pending inclusion in the ledger. From holds the sender's full hex-encoded
// ed25519 public key. Signature covers every field below except ID and
// Signature itself; ID is the signed hash.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"` // hex-encoded ed25519 public key
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// signingBody holds the fields that are covered by the signature.
type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature and ID).
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (tx *Transaction) Hash() string {
	body := signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Fee:       tx.Fee,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the signature and that From is a valid public key.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return fmt.Errorf("%w: missing from field", ErrInvalidSignature)
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("%w: invalid from (must be ed25519 pubkey hex): %v", ErrInvalidSignature, err)
	}
	if err := crypto.Verify(pub, []byte(tx.Hash()), tx.Signature); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(chainID string, typ TxType, from string, nonce, fee uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Fee:       fee,
		Timestamp: time.Now().UnixMilli(),
		Payload:   raw,
	}, nil
}

// ---- Payload types (one per TxType) ----

// TransferPayload moves Amount of Asset from the signer to To.
type TransferPayload struct {
	To     string `json:"to"`
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}

// MintPayload credits a vault-backed asset against verified external
// collateral. VaultID addresses the vault record; MintedAsset is the asset
// credited to Owner.
type MintPayload struct {
	VaultID          string            `json:"vault_id"`
	CollateralAsset  string            `json:"collateral_asset"`
	CollateralAmount uint64            `json:"collateral_amount"`
	MintedAsset      string            `json:"minted_asset"`
	MintAmount       uint64            `json:"mint_amount"`
	Owner            string            `json:"owner"`
	ExternalTxProof  string            `json:"external_tx_proof"`
	OracleSignatures []OracleSignature `json:"oracle_signatures"`
}

// BurnPayload redeems a vault-backed asset back to external collateral.
// Destination is an off-chain claim the core records but never moves itself.
type BurnPayload struct {
	VaultID     string `json:"vault_id"`
	MintedAsset string `json:"minted_asset"`
	BurnAmount  uint64 `json:"burn_amount"`
	Redeemer    string `json:"redeemer"`
	Destination string `json:"destination"`
}

// RewardPayload credits Recipient, valid only when From is in the genesis
// reward-authority set.
type RewardPayload struct {
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
	Asset     string `json:"asset"`
	Reason    string `json:"reason"`
}

// ProposalPayload records an on-chain governance proposal.
type ProposalPayload struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Deadline int64  `json:"deadline"` // unix ms
}

// VotePayload casts a vote on an existing, unexpired Proposal.
type VotePayload struct {
	ProposalID string `json:"proposal_id"`
	Choice     string `json:"choice"`
}

// ComputeJobPayload posts a unit-of-work job for off-chain workers.
type ComputeJobPayload struct {
	JobID     string `json:"job_id"`
	ModelID   string `json:"model_id"`
	InputsHash string `json:"inputs_hash"`
	MaxUnits  uint64 `json:"max_units"`
	Reward    uint64 `json:"reward"`
}

// ComputeResultPayload records a worker's result for a posted job.
type ComputeResultPayload struct {
	JobID        string `json:"job_id"`
	Worker       string `json:"worker"`
	ResultHash   string `json:"result_hash"`
	MeasuredRate uint64 `json:"measured_rate"`
}

// OracleSignature is one oracle's signature over an OracleAttestationPayload.
type OracleSignature struct {
	OraclePubKey string `json:"oracle_pubkey"`
	Signature    string `json:"signature"`
}

// OracleAttestationPayload is appended to the ledger only once it has
// collected at least the genesis-configured oracle_threshold of distinct
// oracle signatures (see oracle/accumulator.go).
type OracleAttestationPayload struct {
	Kind       string            `json:"kind"` // "price" | "deposit" | "withdrawal"
	Payload    json.RawMessage   `json:"payload"`
	Signatures []OracleSignature `json:"signatures"`
}

// RegisterValidatorPayload adds a new authorised proposer, admin-gated.
type RegisterValidatorPayload struct {
	ValidatorID string `json:"validator_id"`
	PubKey      string `json:"pubkey"`
	Stake       uint64 `json:"stake"`
}
