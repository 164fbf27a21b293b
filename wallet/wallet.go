package wallet

import (
	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
)

// Wallet holds a key pair and provides transaction-building helpers.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key (used as "from" address).
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// Address returns the short human-readable address (first 20 bytes of SHA-256(pubkey)).
func (w *Wallet) Address() string {
	return w.pub.Address()
}

// NewTx creates a signed transaction. chainID must match the target network.
// nonce must be the account's current nonce plus one.
func (w *Wallet) NewTx(chainID string, typ core.TxType, nonce, fee uint64, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(chainID, typ, w.pub.Hex(), nonce, fee, payload)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

// Transfer creates a signed transfer transaction for asset.
func (w *Wallet) Transfer(chainID, to, asset string, amount, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxTransfer, nonce, fee, core.TransferPayload{
		To:     to,
		Asset:  asset,
		Amount: amount,
	})
}

// Mint creates a signed mint transaction crediting the wallet's own address.
func (w *Wallet) Mint(chainID string, nonce, fee uint64, payload core.MintPayload) (*core.Transaction, error) {
	if payload.Owner == "" {
		payload.Owner = w.pub.Hex()
	}
	return w.NewTx(chainID, core.TxMint, nonce, fee, payload)
}

// Burn creates a signed burn transaction redeeming from the wallet's own
// balance.
func (w *Wallet) Burn(chainID string, nonce, fee uint64, payload core.BurnPayload) (*core.Transaction, error) {
	if payload.Redeemer == "" {
		payload.Redeemer = w.pub.Hex()
	}
	return w.NewTx(chainID, core.TxBurn, nonce, fee, payload)
}

// Vote creates a signed vote transaction.
func (w *Wallet) Vote(chainID, proposalID, choice string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxVote, nonce, fee, core.VotePayload{ProposalID: proposalID, Choice: choice})
}

// Proposal creates a signed proposal transaction. The signer must be an
// admin or vm/modules/governance rejects it at execution time.
func (w *Wallet) Proposal(chainID string, nonce, fee uint64, payload core.ProposalPayload) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxProposal, nonce, fee, payload)
}

// Reward creates a signed reward transaction. The signer must be an admin.
func (w *Wallet) Reward(chainID string, nonce, fee uint64, payload core.RewardPayload) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxReward, nonce, fee, payload)
}

// ComputeJob creates a signed compute-job posting transaction.
func (w *Wallet) ComputeJob(chainID string, nonce, fee uint64, payload core.ComputeJobPayload) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxComputeJob, nonce, fee, payload)
}

// ComputeResult creates a signed compute-result transaction. The executing
// handler attributes the result to the transaction's own signer, so Worker
// in payload is informational only.
func (w *Wallet) ComputeResult(chainID string, nonce, fee uint64, payload core.ComputeResultPayload) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxComputeResult, nonce, fee, payload)
}

// OracleAttestation creates a signed oracle-attestation transaction carrying
// the accumulated per-oracle signatures gathered off-chain.
func (w *Wallet) OracleAttestation(chainID string, nonce, fee uint64, payload core.OracleAttestationPayload) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxOracleAttestation, nonce, fee, payload)
}

// RegisterValidator creates a signed validator-registration transaction.
// The signer must be an admin.
func (w *Wallet) RegisterValidator(chainID string, nonce, fee uint64, payload core.RegisterValidatorPayload) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxRegisterValidator, nonce, fee, payload)
}

// FromIdentity loads and decrypts an identity file into a usable Wallet,
// alongside the IdentityFile metadata (name, role) for display.
func FromIdentity(path, password string) (*Wallet, *IdentityFile, error) {
	id, priv, err := LoadIdentity(path, password)
	if err != nil {
		return nil, nil, err
	}
	return New(priv), id, nil
}
