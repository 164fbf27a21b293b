package vm

import (
	"fmt"
	"math"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/events"
)

// Context is passed to every Handler and provides access to the chain state,
// the current block, the triggering transaction, and the event emitter.
type Context struct {
	State   core.State
	Block   *core.Block
	Tx      *core.Transaction
	Emitter *events.Emitter
}

// Executor applies transactions to the state using the global Handler registry.
type Executor struct {
	state   core.State
	emitter *events.Emitter
}

// NewExecutor creates an Executor with the given state and event emitter.
func NewExecutor(state core.State, emitter *events.Emitter) *Executor {
	return &Executor{state: state, emitter: emitter}
}

// ExecuteBlock applies block's body to state. Genesis and PoH bodies carry
// no transaction and produce no delta; every other body kind wraps exactly
// one signed Transaction (the "transaction = block" design, SPEC_FULL.md),
// so there is no batch to partially apply — the block either succeeds
// whole or is rejected whole, satisfying spec.md §4.1 step 5 trivially.
// EventBlockCommit is emitted by the caller (consensus) after signing so the
// event carries the correct block hash.
func (e *Executor) ExecuteBlock(block *core.Block) error {
	if block.Tx == nil {
		return nil
	}
	if err := e.ExecuteTx(block, block.Tx); err != nil {
		return fmt.Errorf("tx %s failed: %w", block.Tx.ID, err)
	}
	return nil
}

// ExecuteTx verifies and executes a single transaction with snapshot/rollback.
func (e *Executor) ExecuteTx(block *core.Block, tx *core.Transaction) error {
	if err := tx.Verify(); err != nil {
		return err
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	if err := e.applyTx(block, tx); err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		return err
	}

	if e.emitter != nil {
		e.emitter.Emit(events.Event{
			Type:        events.EventTxExecuted,
			TxID:        tx.ID,
			BlockHeight: block.Header.Height,
			Data:        map[string]any{"type": string(tx.Type), "from": tx.From},
		})
	}
	return nil
}

// applyTx checks the nonce, deducts the fee, then dispatches to the handler
// registered for tx.Type.
func (e *Executor) applyTx(block *core.Block, tx *core.Transaction) error {
	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	// spec.md §3: "a transfer whose nonce is not exactly current+1 is
	// rejected (no gap skipping)" — applies to every tx type, not just
	// Transfer, since nonce is the account's single replay-protection counter.
	if tx.Nonce != acc.Nonce+1 {
		return fmt.Errorf("%w: expected %d got %d", core.ErrInvalidNonce, acc.Nonce+1, tx.Nonce)
	}
	bal, err := e.state.GetBalance(tx.From, core.NativeAsset)
	if err != nil {
		return fmt.Errorf("get balance: %w", err)
	}
	if bal < tx.Fee {
		return fmt.Errorf("%w: have %d need %d", core.ErrInsufficientFunds, bal, tx.Fee)
	}
	if acc.Nonce == math.MaxUint64 {
		return fmt.Errorf("nonce overflow for account %s", tx.From)
	}

	if err := e.state.SetBalance(tx.From, core.NativeAsset, bal-tx.Fee); err != nil {
		return err
	}
	if block.Header.Proposer != "" {
		proposerBal, err := e.state.GetBalance(block.Header.Proposer, core.NativeAsset)
		if err != nil {
			return fmt.Errorf("get proposer balance: %w", err)
		}
		if err := e.state.SetBalance(block.Header.Proposer, core.NativeAsset, proposerBal+tx.Fee); err != nil {
			return err
		}
	}
	acc.Nonce++
	if err := e.state.SetAccount(acc); err != nil {
		return err
	}

	ctx := &Context{
		State:   e.state,
		Block:   block,
		Tx:      tx,
		Emitter: e.emitter,
	}
	return globalRegistry.Execute(tx.Type, ctx, tx.Payload)
}
