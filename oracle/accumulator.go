// Package oracle accumulates multi-signature attestations (price feeds,
// deposit proofs, bridge withdrawal approvals) outside the ledger until they
// reach the genesis-configured oracle_threshold (spec.md §4.6), grounded on
// original_source/src/oracle/attestation.rs's AttestationManager. Below
// threshold, an attestation simply waits; the core ledger never sees it.
package oracle

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
)

var (
	// ErrAlreadyExists is returned by Create when attestationID is already pending.
	ErrAlreadyExists = errors.New("attestation already exists")

	// ErrNotFound is returned when a signature targets an unknown attestation.
	ErrNotFound = errors.New("attestation not found")

	// ErrDuplicateSigner is returned when the same oracle pubkey signs an
	// attestation twice.
	ErrDuplicateSigner = errors.New("oracle already signed this attestation")
)

// CanonicalMessage is the exact byte string each oracle signs, binding the
// signature to the attestation kind and content. It deliberately excludes the
// accumulator's local attestation id: that id is an off-ledger bookkeeping
// handle, not part of the finalized OracleAttestationPayload, so any verifier
// working only from the on-ledger transaction (vm/modules/oracleattest,
// vm/modules/vault) must be able to reconstruct the exact same message.
func CanonicalMessage(kind string, payload json.RawMessage) []byte {
	msg := "oracle_attestation:" + kind + ":" + string(payload)
	return []byte(msg)
}

// Pending is one attestation still collecting signatures.
type Pending struct {
	ID        string
	Kind      string
	Payload   json.RawMessage
	Sigs      []core.OracleSignature
	CreatedAt int64 // unix ms
}

// Accumulator holds attestations awaiting quorum. It never touches the
// ledger directly; once an attestation reaches threshold, the caller (the
// node's submission path) is responsible for wrapping it as an
// OracleAttestation transaction and handing it to the mempool.
type Accumulator struct {
	mu      sync.Mutex
	pending map[string]*Pending
}

// New creates an empty attestation accumulator.
func New() *Accumulator {
	return &Accumulator{pending: make(map[string]*Pending)}
}

// Create registers a new attestation awaiting signatures.
func (a *Accumulator) Create(id, kind string, payload json.RawMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.pending[id]; exists {
		return ErrAlreadyExists
	}
	a.pending[id] = &Pending{
		ID:        id,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now().UnixMilli(),
	}
	return nil
}

// Submit verifies and records one oracle's signature over attestation id.
// Returns true once the accumulated signature count reaches threshold; the
// caller should then drain it via Finalize.
func (a *Accumulator) Submit(id, oraclePubKeyHex, signatureHex string, threshold int) (bool, error) {
	pub, err := crypto.PubKeyFromHex(oraclePubKeyHex)
	if err != nil {
		return false, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.pending[id]
	if !ok {
		return false, ErrNotFound
	}
	for _, s := range p.Sigs {
		if s.OraclePubKey == oraclePubKeyHex {
			return false, ErrDuplicateSigner
		}
	}

	msg := CanonicalMessage(p.Kind, p.Payload)
	if err := crypto.Verify(pub, msg, signatureHex); err != nil {
		return false, err
	}

	p.Sigs = append(p.Sigs, core.OracleSignature{OraclePubKey: oraclePubKeyHex, Signature: signatureHex})
	return len(p.Sigs) >= threshold, nil
}

// Finalize removes and returns a quorum-reached attestation as a payload
// ready to be wrapped in an OracleAttestation transaction. Returns false if
// id is unknown.
func (a *Accumulator) Finalize(id string) (core.OracleAttestationPayload, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pending[id]
	if !ok {
		return core.OracleAttestationPayload{}, false
	}
	delete(a.pending, id)
	return core.OracleAttestationPayload{
		Kind:       p.Kind,
		Payload:    p.Payload,
		Signatures: p.Sigs,
	}, true
}

// Pending returns a snapshot of a single attestation's current state, for
// RPC introspection.
func (a *Accumulator) Pending(id string) (*Pending, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pending[id]
	if !ok {
		return nil, false
	}
	cp := *p
	cp.Sigs = append([]core.OracleSignature(nil), p.Sigs...)
	return &cp, true
}

// CleanupStale removes pending attestations older than maxAge, mirroring
// original_source/src/oracle/attestation.rs's cleanup_stale garbage
// collection.
func (a *Accumulator) CleanupStale(maxAge time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cutoff := time.Now().UnixMilli() - maxAge.Milliseconds()
	for id, p := range a.pending {
		if p.CreatedAt < cutoff {
			delete(a.pending, id)
		}
	}
}

// Len returns the number of attestations still awaiting quorum.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}
