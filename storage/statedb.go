package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
)

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it. All prefix constants must be declared via
// this function; manually editing statePrefixes is not required.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

// statePrefixes is populated automatically by registerPrefix() below.
// ComputeRoot() iterates these prefixes to build the full world-state view.
var statePrefixes []string

// Key-space namespaces, one component each, per spec.md §4.4.
var (
	prefixBalance   = registerPrefix("bal:")
	prefixAccount   = registerPrefix("nonce:")
	prefixVault     = registerPrefix("vault:")
	prefixVaultProof = registerPrefix("vault_proof:")
	prefixValidator = registerPrefix("val_pubkey:")
	prefixValSet    = registerPrefix("val_set:")
	prefixProposal  = registerPrefix("proposal:")
	prefixVote      = registerPrefix("vote:")
	prefixComputeJob    = registerPrefix("compute_job:")
	prefixComputeResult = registerPrefix("compute_result:")
	prefixAdminSet      = registerPrefix("admin_set:")
)

type stateSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// StateDB implements core.State on top of a DB with in-memory write buffer,
// snapshot/rollback, and deterministic state-root computation.
type StateDB struct {
	db        DB
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	if s.deleted[key] {
		return nil, core.ErrNotFound
	}
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	delete(s.deleted, key)
	s.dirty[key] = val
}

func (s *StateDB) del(key string) {
	delete(s.dirty, key)
	s.deleted[key] = true
}

func balanceKey(account, asset string) string {
	return prefixBalance + account + ":" + asset
}

// ---- Balance ----

func (s *StateDB) GetBalance(account, asset string) (uint64, error) {
	data, err := s.get(balanceKey(account, asset))
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil // absent == zero balance, per spec.md §3
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(data), nil
}

func (s *StateDB) SetBalance(account, asset string, amount uint64) error {
	key := balanceKey(account, asset)
	if amount == 0 {
		s.del(key)
		return nil
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], amount)
	s.set(key, buf[:])
	return nil
}

// ---- Account / nonce ----

func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	data, err := s.get(prefixAccount + address)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address}, nil // zero-value account
	}
	if err != nil {
		return nil, err
	}
	var acc core.Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	s.set(prefixAccount+acc.Address, data)
	return nil
}

// ---- Vault ----

func (s *StateDB) GetVault(mintedAsset string) (*core.Vault, error) {
	data, err := s.get(prefixVault + mintedAsset)
	if err != nil {
		return nil, err
	}
	var v core.Vault
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *StateDB) SetVault(v *core.Vault) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(prefixVault+v.MintedAsset, data)
	return nil
}

// ---- Processed-proof idempotency set ----

func (s *StateDB) HasProcessedProof(proof string) (bool, error) {
	_, err := s.get(prefixVaultProof + proof)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *StateDB) MarkProcessedProof(proof string) error {
	s.set(prefixVaultProof+proof, []byte{1})
	return nil
}

// ---- Validator set ----

func (s *StateDB) GetValidator(validatorID string) (*core.Validator, error) {
	data, err := s.get(prefixValidator + validatorID)
	if err != nil {
		return nil, err
	}
	var v core.Validator
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *StateDB) SetValidator(v *core.Validator) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(prefixValidator+v.ValidatorID, data)

	ids, err := s.ListValidatorIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == v.ValidatorID {
			return nil
		}
	}
	ids = append(ids, v.ValidatorID)
	listData, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	s.set(prefixValSet+"all", listData)
	return nil
}

func (s *StateDB) ListValidatorIDs() ([]string, error) {
	data, err := s.get(prefixValSet + "all")
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// ---- Admin set ----

func (s *StateDB) IsAdmin(pubkeyHex string) (bool, error) {
	data, err := s.get(prefixAdminSet + "all")
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var admins []string
	if err := json.Unmarshal(data, &admins); err != nil {
		return false, err
	}
	for _, a := range admins {
		if a == pubkeyHex {
			return true, nil
		}
	}
	return false, nil
}

func (s *StateDB) SetAdmins(pubkeyHex []string) error {
	data, err := json.Marshal(pubkeyHex)
	if err != nil {
		return err
	}
	s.set(prefixAdminSet+"all", data)
	return nil
}

// ---- Governance ----

func (s *StateDB) GetProposal(id string) (*core.Proposal, error) {
	data, err := s.get(prefixProposal + id)
	if err != nil {
		return nil, err
	}
	var p core.Proposal
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *StateDB) SetProposal(p *core.Proposal) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	s.set(prefixProposal+p.ID, data)
	return nil
}

func voteKey(proposalID, voter string) string {
	return prefixVote + proposalID + ":" + voter
}

func (s *StateDB) HasVoted(proposalID, voter string) (bool, error) {
	_, err := s.get(voteKey(proposalID, voter))
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *StateDB) MarkVoted(proposalID, voter string) error {
	s.set(voteKey(proposalID, voter), []byte{1})
	return nil
}

// ---- Compute jobs/results ----

func (s *StateDB) GetComputeJob(jobID string) (*core.ComputeJobRecord, error) {
	data, err := s.get(prefixComputeJob + jobID)
	if err != nil {
		return nil, err
	}
	var j core.ComputeJobRecord
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *StateDB) SetComputeJob(j *core.ComputeJobRecord) error {
	data, err := json.Marshal(j)
	if err != nil {
		return err
	}
	s.set(prefixComputeJob+j.JobID, data)
	return nil
}

func (s *StateDB) SetComputeResult(r *core.ComputeResultRecord) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	s.set(prefixComputeResult+r.JobID+":"+r.Worker, data)
	return nil
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	snap := stateSnapshot{
		dirty:   make(map[string][]byte, len(s.dirty)),
		deleted: make(map[string]bool, len(s.deleted)),
	}
	for k, v := range s.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		snap.dirty[k] = cp
	}
	for k, v := range s.deleted {
		snap.deleted[k] = v
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot.
// The snapshot maps are deep-copied so that subsequent writes cannot corrupt them.
func (s *StateDB) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	snap := s.snapshots[id]

	dirty := make(map[string][]byte, len(snap.dirty))
	for k, v := range snap.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		dirty[k] = cp
	}
	deleted := make(map[string]bool, len(snap.deleted))
	for k, v := range snap.deleted {
		deleted[k] = v
	}

	s.dirty = dirty
	s.deleted = deleted
	s.snapshots = s.snapshots[:id]
	return nil
}

// ComputeRoot returns the deterministic hash of the complete world state.
// It merges all persisted state entries (scanned from DB by the known state
// prefixes) with the current write buffer, then hashes the sorted key-value
// pairs using length-prefix encoding. It does NOT flush or modify state, so
// it is safe to call before signing a block.
func (s *StateDB) ComputeRoot() string {
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			k := string(it.Key())
			v := make([]byte, len(it.Value()))
			copy(v, it.Value())
			merged[k] = v
		}
		it.Release()
	}

	for k, v := range s.dirty {
		merged[k] = v
	}
	for k := range s.deleted {
		delete(merged, k)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		kb := []byte(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(kb)))
		buf.Write(lenBuf[:])
		buf.Write(kb)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the underlying DB via a
// WriteBatch and then clears it. Call ComputeRoot() before signing the block,
// then call Commit() after the block is safely stored.
func (s *StateDB) Commit() error {
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
	return nil
}
