// Package indexer maintains secondary indexes over committed blocks so RPC
// callers can query an account's transaction history or the registered
// validator set without scanning the full chain.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/storage"
)

const (
	prefixAccountTxs  = "idx:account:txs:"
	keyValidatorIDs   = "idx:validators:all"
)

// Indexer subscribes to chain events and updates secondary lookup tables.
type Indexer struct {
	db      storage.DB
	emitter *events.Emitter
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db, emitter: emitter}
	emitter.Subscribe(events.EventTransfer, idx.onAccountEvent("from", "to"))
	emitter.Subscribe(events.EventVaultMinted, idx.onAccountEvent("owner"))
	emitter.Subscribe(events.EventVaultBurned, idx.onAccountEvent("redeemer"))
	emitter.Subscribe(events.EventRewardPaid, idx.onAccountEvent("recipient"))
	emitter.Subscribe(events.EventProposalCreated, idx.onAccountEvent())
	emitter.Subscribe(events.EventVoteCast, idx.onAccountEvent("voter"))
	emitter.Subscribe(events.EventComputeJobPosted, idx.onAccountEvent("poster"))
	emitter.Subscribe(events.EventComputeResult, idx.onAccountEvent("worker"))
	emitter.Subscribe(events.EventValidatorRegister, idx.onValidatorRegister)
	return idx
}

// GetAccountTxs returns the IDs of every transaction that touched account,
// oldest first.
func (idx *Indexer) GetAccountTxs(account string) ([]string, error) {
	return idx.getList(prefixAccountTxs + account)
}

// GetValidatorIDs returns every validator ID ever registered, in
// registration order.
func (idx *Indexer) GetValidatorIDs() ([]string, error) {
	return idx.getList(keyValidatorIDs)
}

// ---- event handlers ----

// onAccountEvent returns a handler that records ev.TxID against every
// non-empty string field named in fields, deduplicating accounts within a
// single event (e.g. a self-transfer only indexes once).
func (idx *Indexer) onAccountEvent(fields ...string) events.Handler {
	return func(ev events.Event) {
		seen := make(map[string]bool, len(fields))
		for _, f := range fields {
			account, _ := ev.Data[f].(string)
			if account == "" || seen[account] {
				continue
			}
			seen[account] = true
			if err := idx.addToList(prefixAccountTxs+account, ev.TxID); err != nil {
				log.Printf("[indexer] account tx index write failed (account=%s tx=%s): %v", account, ev.TxID, err)
			}
		}
	}
}

func (idx *Indexer) onValidatorRegister(ev events.Event) {
	validatorID, _ := ev.Data["validator_id"].(string)
	if validatorID == "" {
		return
	}
	if err := idx.addToList(keyValidatorIDs, validatorID); err != nil {
		log.Printf("[indexer] validator index write failed (validator=%s): %v", validatorID, err)
	}
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return fmt.Errorf("read list: %w", err)
	}
	for _, id := range ids {
		if id == value {
			return nil // already present
		}
	}
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
