// Package consensus drives transaction-block production and validation for
// a permissioned, single-authority chain: a fixed, genesis-named validator
// set proposes blocks in round-robin order (no BFT vote, no open election).
// Each block is signed by its proposer; other nodes verify the signature
// before accepting it. PoH ticks are produced by a separate poh.Recorder
// loop and interleave with transaction blocks through the shared ledger's
// own append lock (spec.md §4.2 Open Question 1).
package consensus

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tolelom/tolchain/config"
	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/mempool"
	"github.com/tolelom/tolchain/vm"
)

// Producer drives transaction-block proposal and validation.
type Producer struct {
	cfg     *config.Config
	bc      *core.Blockchain
	state   core.State
	pool    *mempool.GulfStream
	exec    *vm.Executor
	emitter *events.Emitter
	privKey crypto.PrivateKey
	pubKey  crypto.PublicKey
}

// New creates a Producer for the local validator identified by privKey.
func New(
	cfg *config.Config,
	bc *core.Blockchain,
	state core.State,
	pool *mempool.GulfStream,
	exec *vm.Executor,
	emitter *events.Emitter,
	privKey crypto.PrivateKey,
) *Producer {
	return &Producer{
		cfg:     cfg,
		bc:      bc,
		state:   state,
		pool:    pool,
		exec:    exec,
		emitter: emitter,
		privKey: privKey,
		pubKey:  privKey.Public(),
	}
}

// IsProposer reports whether this node should propose the next block.
func (p *Producer) IsProposer() bool {
	if len(p.cfg.Validators) == 0 {
		return false
	}
	nextHeight := p.bc.Height() + 1
	idx := int(nextHeight % int64(len(p.cfg.Validators)))
	return p.cfg.Validators[idx] == p.pubKey.Hex()
}

// ProduceRound drains up to K slots from the mempool and, for each, attempts
// to build, execute, sign and append a one-transaction block. Per spec.md
// §4.2 step 2, a failing transaction is rejected from the batch (and from
// the mempool) without halting the remaining slots. Returns the blocks that
// were successfully appended.
func (p *Producer) ProduceRound() ([]*core.Block, error) {
	if !p.IsProposer() {
		return nil, errors.New("not the proposer for this round")
	}

	limit := p.cfg.Node.MaxBlockTxs
	if limit <= 0 {
		limit = 500
	}
	slots := p.pool.DrainReady(limit)

	blocks := make([]*core.Block, 0, len(slots))
	for _, slot := range slots {
		block, err := p.produceOne(slot.Tx)
		if err != nil {
			log.Printf("[consensus] dropping tx %s: %v", slot.Tx.ID, err)
			p.pool.Reject(slot.Tx.ID)
			continue
		}
		p.pool.Confirm(slot.Tx.ID)
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// produceOne builds, executes, signs and appends a single transaction block.
func (p *Producer) produceOne(tx *core.Transaction) (*core.Block, error) {
	block, err := core.NewTxBlock(p.cfg.Genesis.ChainID, p.bc.Height()+1, p.bc.HeadHash(), p.pubKey.Hex(), tx)
	if err != nil {
		return nil, fmt.Errorf("build tx block: %w", err)
	}

	if err := p.exec.ExecuteBlock(block); err != nil {
		return nil, fmt.Errorf("execute block: %w", err)
	}

	// Compute root from the write buffer BEFORE flushing so that if AddBlock
	// fails the state has not yet been persisted and the node stays consistent.
	block.Header.StateRoot = p.state.ComputeRoot()
	block.Sign(p.privKey)

	if err := p.bc.AddBlock(block); err != nil {
		return nil, fmt.Errorf("add block: %w", err)
	}

	// Flush state only after the block is safely stored.
	if err := p.state.Commit(); err != nil {
		log.Fatalf("[consensus] FATAL: block %d stored but state commit failed: %v",
			block.Header.Height, err)
	}

	if p.emitter != nil {
		p.emitter.Emit(events.Event{
			Type:        events.EventBlockCommit,
			BlockHeight: block.Header.Height,
			Data:        map[string]any{"hash": block.Hash, "body_kind": string(block.Header.BodyKind)},
		})
	}
	return block, nil
}

// maxBlockTimeDrift is the maximum allowed clock drift for incoming blocks.
const maxBlockTimeDrift = int64((15 * time.Second) / time.Millisecond)

// ValidateBlock checks that block was proposed by the expected validator and
// is internally well-formed, before applying it (used by network.Syncer when
// accepting blocks from peers).
func (p *Producer) ValidateBlock(block *core.Block) error {
	if len(p.cfg.Validators) == 0 {
		return errors.New("no validators configured")
	}
	if block.Header.ChainID != p.cfg.Genesis.ChainID {
		return fmt.Errorf("chain ID mismatch: got %q want %q", block.Header.ChainID, p.cfg.Genesis.ChainID)
	}

	idx := int(block.Header.Height % int64(len(p.cfg.Validators)))
	expected := p.cfg.Validators[idx]
	if block.Header.Proposer != expected {
		return fmt.Errorf("wrong proposer: got %s want %s", block.Header.Proposer, expected)
	}

	pub, err := crypto.PubKeyFromHex(block.Header.Proposer)
	if err != nil {
		return fmt.Errorf("invalid proposer pubkey: %w", err)
	}
	// Verify() re-computes the header hash and checks the signature,
	// preventing acceptance of blocks with a tampered header.
	if err := block.Verify(pub); err != nil {
		return fmt.Errorf("block signature invalid: %w", err)
	}
	if err := block.VerifyIntegrity(); err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	if block.Header.Timestamp > now+maxBlockTimeDrift {
		return fmt.Errorf("block timestamp too far in future: %d (now %d)", block.Header.Timestamp, now)
	}

	tip := p.bc.Tip()
	if tip == nil {
		if !core.IsGenesisHash(block.Header.PrevHash) {
			return errors.New("first block must reference genesis prev-hash")
		}
	} else {
		if block.Header.PrevHash != tip.Hash {
			return fmt.Errorf("%w: got %s want %s", core.ErrStateConflict, block.Header.PrevHash, tip.Hash)
		}
		if block.Header.Height != tip.Header.Height+1 {
			return fmt.Errorf("%w: height got %d want %d", core.ErrStateConflict, block.Header.Height, tip.Header.Height+1)
		}
		if block.Header.Timestamp < tip.Header.Timestamp {
			return fmt.Errorf("block timestamp %d < previous block %d", block.Header.Timestamp, tip.Header.Timestamp)
		}
	}
	return nil
}

// Run starts the transaction-block production loop at the configured slot
// interval. It blocks until done is closed.
func (p *Producer) Run(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if p.IsProposer() {
				if _, err := p.ProduceRound(); err != nil {
					log.Printf("[consensus] produce round error: %v", err)
				}
			}
		}
	}
}
