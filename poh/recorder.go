// Package poh drives the Proof-of-History tick loop: each tick runs the VDF
// for a configured number of iterations and appends the result as a
// zero-state-delta PoH block, anchoring wall-clock-independent ordering
// between transaction blocks (spec.md §4.2).
//
// Grounded on original_source/src/poh_recorder.rs's tick_height/
// hashes_per_tick shape, and on the teacher's consensus/poa.go's
// Run(interval, done) ticker-loop idiom for the scheduling skeleton.
package poh

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/vdf"
)

// Ledger is the subset of *core.Blockchain the recorder needs. A narrow
// interface keeps poh decoupled from consensus.Producer, which also appends
// transaction blocks against the same Blockchain.
type Ledger interface {
	Height() int64
	HeadHash() string
	AddBlock(block *core.Block) error
}

// Recorder runs the PoH tick loop.
type Recorder struct {
	chainID         string
	ledger          Ledger
	vdf             *vdf.VDF
	privKey         crypto.PrivateKey
	pubKey          crypto.PublicKey
	iterationsPerTick uint64

	tickHeight  uint64
	currentOut  *big.Int
}

// New creates a Recorder seeded from the genesis hash (or current tip hash,
// on restart) so PoH output is deterministically chained to the ledger. seed
// is a hex-encoded block hash, decoded the same way Verify decodes
// prevOutputHex so a fresh chain's first tick actually verifies.
func New(chainID string, ledger Ledger, priv crypto.PrivateKey, iterationsPerTick uint64, seed string) *Recorder {
	pub := priv.Public()
	x, ok := new(big.Int).SetString(seed, 16)
	if !ok {
		x = new(big.Int).SetBytes([]byte(seed))
	}
	return &Recorder{
		chainID:           chainID,
		ledger:            ledger,
		vdf:               vdf.New(),
		privKey:           priv,
		pubKey:            pub,
		iterationsPerTick: iterationsPerTick,
		currentOut:        x,
	}
}

// Tick runs one VDF iteration batch and appends the resulting PoH block.
// Returns the wall-clock duration the VDF evaluation took, so Run can decide
// how long to sleep before the next tick.
func (r *Recorder) Tick() (time.Duration, error) {
	start := time.Now()

	proof := r.vdf.Evaluate(r.currentOut, r.iterationsPerTick)
	elapsed := time.Since(start)

	body := core.PoHBody{
		Tick:       r.tickHeight + 1,
		Iterations: r.iterationsPerTick,
		VDFOutput:  proof.Y.Text(16),
		Proof:      proof.Pi.Text(16),
	}

	block, err := core.NewPoHBlock(r.chainID, r.ledger.Height()+1, r.ledger.HeadHash(), r.pubKey.Hex(), body)
	if err != nil {
		return elapsed, fmt.Errorf("build poh block: %w", err)
	}
	block.Sign(r.privKey)

	if err := r.ledger.AddBlock(block); err != nil {
		return elapsed, fmt.Errorf("append poh block: %w", err)
	}

	r.tickHeight++
	r.currentOut = proof.Y
	return elapsed, nil
}

// Run ticks at targetSlot intervals until ctx is cancelled. If a tick takes
// longer than targetSlot (VDF evaluation overran the slot), the overshoot is
// logged and the next tick starts immediately rather than compounding delay.
func (r *Recorder) Run(ctx context.Context, targetSlot time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		elapsed, err := r.Tick()
		if err != nil {
			log.Printf("[poh] tick %d failed: %v", r.tickHeight+1, err)
		}

		if remaining := targetSlot - elapsed; remaining > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(remaining):
			}
		} else if err == nil {
			log.Printf("[poh] tick %d overran slot by %s", r.tickHeight, (elapsed - targetSlot).String())
		}
	}
}

// Verify checks a PoH block's body against the VDF relation, given the
// previous tick's VDF output in hex. Neither consensus.Producer.ValidateBlock
// nor network.Syncer calls it, so PoH blocks received from peers are
// appended without this check.
func Verify(body core.PoHBody, prevOutputHex string) error {
	x, ok := new(big.Int).SetString(prevOutputHex, 16)
	if !ok {
		return fmt.Errorf("%w: invalid prev vdf output encoding", core.ErrVDFVerificationFailed)
	}
	y, ok := new(big.Int).SetString(body.VDFOutput, 16)
	if !ok {
		return fmt.Errorf("%w: invalid vdf output encoding", core.ErrVDFVerificationFailed)
	}
	pi, ok := new(big.Int).SetString(body.Proof, 16)
	if !ok {
		return fmt.Errorf("%w: invalid proof encoding", core.ErrVDFVerificationFailed)
	}

	v := vdf.New()
	if !v.Verify(x, y, body.Iterations, vdf.Proof{Y: y, Pi: pi}) {
		return core.ErrVDFVerificationFailed
	}
	return nil
}
