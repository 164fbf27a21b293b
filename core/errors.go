package core

import "errors"

// Sentinel errors returned by the ledger and state machine. rpc.Handler maps
// these onto the JSON-RPC domain error codes in rpc/types.go.
var (
	// ErrNotFound is returned when a requested object does not exist in storage.
	ErrNotFound = errors.New("not found")

	// ErrInvalidSignature covers both header and transaction signature checks.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInvalidNonce is returned when a Transfer's nonce is not exactly
	// stored_nonce(from) + 1.
	ErrInvalidNonce = errors.New("invalid nonce")

	// ErrInsufficientFunds is returned when a debit would take a balance
	// negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateProof is returned when a Mint's external_tx_proof has
	// already been consumed.
	ErrDuplicateProof = errors.New("external tx proof already processed")

	// ErrStateConflict is returned on prev_hash/height mismatch during append.
	ErrStateConflict = errors.New("state conflict: prev_hash or height mismatch")

	// ErrVDFVerificationFailed is returned when a PoH body's VDF proof does
	// not verify.
	ErrVDFVerificationFailed = errors.New("vdf verification failed")

	// ErrMempoolFull is returned by the mempool when capacity is exhausted
	// and no queued slot of equal or lower tier than the incoming
	// transaction's is left to evict.
	ErrMempoolFull = errors.New("mempool full")

	// ErrUnknownValidator is returned when a header's proposer is not in the
	// validator set.
	ErrUnknownValidator = errors.New("unknown validator")

	// ErrNotAuthorized is returned for admin-gated operations (Proposal,
	// Reward, RegisterValidator) signed by a non-authorized account.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrVaultNotFound is returned on Burn against an unregistered vault.
	ErrVaultNotFound = errors.New("vault not found")

	// ErrProposalNotFound is returned when a Vote references an unknown
	// proposal.
	ErrProposalNotFound = errors.New("proposal not found")

	// ErrProposalExpired is returned when a Vote arrives after its
	// proposal's deadline.
	ErrProposalExpired = errors.New("proposal expired")

	// ErrDuplicateVote is returned on a second Vote by the same voter on the
	// same proposal.
	ErrDuplicateVote = errors.New("duplicate vote")
)
