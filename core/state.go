package core

// NativeAsset is the chain's native fee/staking asset, credited and debited
// by Transfer/Reward/RegisterValidator and used to pay block-inclusion fees.
const NativeAsset = "COMPASS"

// Account holds a participant's replay-protection nonce. Address is the
// hex-encoded ed25519 public key. Balances are stored separately, keyed per
// asset (see State.GetBalance), since one account typically holds several.
type Account struct {
	Address string `json:"address"` // pubkey hex
	Nonce   uint64 `json:"nonce"`
}

// Vault pairs an external-chain collateral balance with a locally minted
// asset's supply. Keyed by MintedAsset: one vault per minted asset.
type Vault struct {
	MintedAsset     string  `json:"minted_asset"`
	CollateralAsset string  `json:"collateral_asset"`
	BackingBalance  uint64  `json:"backing_balance"`
	MintedSupply    uint64  `json:"minted_supply"`
	MintFeeRate     float64 `json:"mint_fee_rate"`
	RedeemFeeRate   float64 `json:"redeem_fee_rate"`
	AccumulatedFees uint64  `json:"accumulated_fees"`
}

// Validator is an authorised block proposer, seeded at genesis or added by a
// later RegisterValidator block.
type Validator struct {
	ValidatorID string `json:"validator_id"`
	PubKey      string `json:"pubkey"`
	Stake       uint64 `json:"stake"`
}

// Proposal is an on-chain governance record.
type Proposal struct {
	ID       string `json:"id"`
	Proposer string `json:"proposer"`
	Text     string `json:"text"`
	Deadline int64  `json:"deadline"` // unix ms
}

// ComputeJobRecord is a posted unit-of-work job, recorded verbatim.
type ComputeJobRecord struct {
	JobID      string `json:"job_id"`
	ModelID    string `json:"model_id"`
	InputsHash string `json:"inputs_hash"`
	MaxUnits   uint64 `json:"max_units"`
	Reward     uint64 `json:"reward"`
	Poster     string `json:"poster"`
}

// ComputeResultRecord is a worker's reported result for a posted job. It has
// no state impact beyond indexing; a Reward block from the authority pays
// the worker once it references the result.
type ComputeResultRecord struct {
	JobID        string `json:"job_id"`
	Worker       string `json:"worker"`
	ResultHash   string `json:"result_hash"`
	MeasuredRate uint64 `json:"measured_rate"`
}

// State is the persistent key/value world-state surface the ledger mutates.
// Implementations (storage.StateDB) buffer writes in memory, support
// snapshot/rollback for speculative per-transaction execution, and expose a
// deterministic root hash independent of when the buffer is flushed.
type State interface {
	// Balance map: (account, asset) -> u64. A missing entry is balance 0.
	GetBalance(account, asset string) (uint64, error)
	SetBalance(account, asset string, amount uint64) error

	// Account/nonce.
	GetAccount(address string) (*Account, error)
	SetAccount(acc *Account) error

	// Vault record: minted_asset -> vault.
	GetVault(mintedAsset string) (*Vault, error)
	SetVault(v *Vault) error

	// Processed-proof idempotency set for Mint's external_tx_proof.
	HasProcessedProof(proof string) (bool, error)
	MarkProcessedProof(proof string) error

	// Validator set.
	GetValidator(validatorID string) (*Validator, error)
	SetValidator(v *Validator) error
	ListValidatorIDs() ([]string, error)

	// Admin set, seeded from GenesisBody.Admins. Gates Proposal, Reward, and
	// RegisterValidator transactions.
	IsAdmin(pubkeyHex string) (bool, error)
	SetAdmins(pubkeyHex []string) error

	// Governance.
	GetProposal(id string) (*Proposal, error)
	SetProposal(p *Proposal) error
	HasVoted(proposalID, voter string) (bool, error)
	MarkVoted(proposalID, voter string) error

	// Compute jobs/results.
	GetComputeJob(jobID string) (*ComputeJobRecord, error)
	SetComputeJob(j *ComputeJobRecord) error
	SetComputeResult(r *ComputeResultRecord) error

	// Snapshot / rollback / commit.
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing. Call this before signing a block.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	// Always call ComputeRoot() first to obtain the root for the block header.
	Commit() error
}
