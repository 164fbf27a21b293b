// Package oracleattest records an OracleAttestation transaction. By the time
// one reaches the mempool it has already cleared the genesis-configured
// oracle_threshold of distinct oracle signatures off-ledger (see
// oracle/accumulator.go); this handler re-verifies that invariant against
// the signatures carried on the transaction itself rather than trusting the
// submitter, since nothing else checks them once the tx is a candidate
// block.
package oracleattest

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/oracle"
	"github.com/tolelom/tolchain/vm"
)

func init() {
	vm.Register(core.TxOracleAttestation, handleOracleAttestation)
}

func handleOracleAttestation(ctx *vm.Context, payload json.RawMessage) error {
	var p core.OracleAttestationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode oracle_attestation payload: %w", err)
	}
	if p.Kind == "" {
		return errors.New("oracle_attestation requires a kind")
	}

	msg := oracle.CanonicalMessage(p.Kind, p.Payload)

	seen := make(map[string]bool, len(p.Signatures))
	valid := 0
	for _, sig := range p.Signatures {
		if seen[sig.OraclePubKey] {
			continue // duplicate signer does not count twice toward threshold
		}
		seen[sig.OraclePubKey] = true

		pub, err := crypto.PubKeyFromHex(sig.OraclePubKey)
		if err != nil {
			continue
		}
		if crypto.Verify(pub, msg, sig.Signature) == nil {
			valid++
		}
	}

	threshold, err := requiredThreshold(ctx)
	if err != nil {
		return err
	}
	if valid < threshold {
		return fmt.Errorf("oracle attestation has %d valid signatures, need %d", valid, threshold)
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventOracleAttestation,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data:        map[string]any{"kind": p.Kind, "valid_signatures": valid},
		})
	}
	return nil
}

// requiredThreshold returns the genesis-configured oracle_threshold, which
// is not stored in core.State; the node wires it in at startup via
// vm.SetOracleThreshold.
func requiredThreshold(ctx *vm.Context) (int, error) {
	t := vm.OracleThreshold()
	if t <= 0 {
		return 0, errors.New("oracle threshold not configured")
	}
	return t, nil
}
