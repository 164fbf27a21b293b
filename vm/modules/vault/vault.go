// Package vault handles Mint and Burn: crediting a vault-backed asset against
// externally-verified collateral, and redeeming it back. Grounded on
// original_source/src/vault.rs's deposit_and_mint/burn_and_redeem, adapted to
// the ledger's oracle_threshold multi-signature model (oracle/accumulator.go)
// in place of the Rust source's single oracle keypair.
package vault

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

// depositAttestation is the exact content oracles attest to for a given
// external deposit: which proof backs which mint, for whose benefit. Kept
// separate from MintPayload's field order so the signed message doesn't
// silently change shape if MintPayload ever gains unrelated fields.
type depositAttestation struct {
	VaultID          string `json:"vault_id"`
	CollateralAsset  string `json:"collateral_asset"`
	CollateralAmount uint64 `json:"collateral_amount"`
	MintedAsset      string `json:"minted_asset"`
	MintAmount       uint64 `json:"mint_amount"`
	Owner            string `json:"owner"`
	ExternalTxProof  string `json:"external_tx_proof"`
}

const mintAttestationKind = "mint_deposit"

// verifyMintAttestation checks p.OracleSignatures against the genesis-
// configured oracle_threshold, the same M-of-N policy
// vm/modules/oracleattest enforces for standalone attestations, rather than
// trusting a caller-supplied signature blindly.
func verifyMintAttestation(p core.MintPayload) error {
	threshold := vm.OracleThreshold()
	if threshold <= 0 {
		return errors.New("oracle threshold not configured")
	}
	if len(p.OracleSignatures) == 0 {
		return errors.New("mint requires an oracle attestation")
	}

	raw, err := json.Marshal(depositAttestation{
		VaultID: p.VaultID, CollateralAsset: p.CollateralAsset, CollateralAmount: p.CollateralAmount,
		MintedAsset: p.MintedAsset, MintAmount: p.MintAmount, Owner: p.Owner, ExternalTxProof: p.ExternalTxProof,
	})
	if err != nil {
		return fmt.Errorf("encode deposit attestation: %w", err)
	}
	msg := oracle.CanonicalMessage(mintAttestationKind, raw)

	seen := make(map[string]bool, len(p.OracleSignatures))
	valid := 0
	for _, sig := range p.OracleSignatures {
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
	if valid < threshold {
		return fmt.Errorf("mint has %d valid oracle signatures, need %d", valid, threshold)
	}
	return nil
}

func init() {
	vm.Register(core.TxMint, handleMint)
	vm.Register(core.TxBurn, handleBurn)
}

func handleMint(ctx *vm.Context, payload json.RawMessage) error {
	var p core.MintPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode mint payload: %w", err)
	}
	if p.MintAmount == 0 {
		return errors.New("mint amount must be > 0")
	}
	if p.MintedAsset == "" || p.Owner == "" || p.ExternalTxProof == "" {
		return errors.New("mint requires minted_asset, owner, and external_tx_proof")
	}
	if err := verifyMintAttestation(p); err != nil {
		return fmt.Errorf("oracle attestation: %w", err)
	}

	// external_tx_proof is a one-time claim: a given external deposit can
	// only ever mint once, regardless of how it is replayed into the mempool.
	processed, err := ctx.State.HasProcessedProof(p.ExternalTxProof)
	if err != nil {
		return fmt.Errorf("check processed proof: %w", err)
	}
	if processed {
		return fmt.Errorf("%w: %s", core.ErrDuplicateProof, p.ExternalTxProof)
	}

	vault, err := ctx.State.GetVault(p.MintedAsset)
	if errors.Is(err, core.ErrNotFound) {
		vault = &core.Vault{
			MintedAsset:     p.MintedAsset,
			CollateralAsset: p.CollateralAsset,
			MintFeeRate:     0.0025,
			RedeemFeeRate:   0.0050,
		}
	} else if err != nil {
		return fmt.Errorf("get vault: %w", err)
	}

	fee := uint64(float64(p.CollateralAmount) * vault.MintFeeRate)
	netCollateral := p.CollateralAmount - fee
	vault.BackingBalance += netCollateral
	vault.AccumulatedFees += fee
	vault.MintedSupply += p.MintAmount

	if err := ctx.State.SetVault(vault); err != nil {
		return err
	}
	if err := ctx.State.MarkProcessedProof(p.ExternalTxProof); err != nil {
		return err
	}

	ownerBal, err := ctx.State.GetBalance(p.Owner, p.MintedAsset)
	if err != nil {
		return fmt.Errorf("get owner balance: %w", err)
	}
	if err := ctx.State.SetBalance(p.Owner, p.MintedAsset, ownerBal+p.MintAmount); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventVaultMinted,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data: map[string]any{
				"minted_asset": p.MintedAsset, "owner": p.Owner,
				"mint_amount": p.MintAmount, "fee": fee,
			},
		})
	}
	return nil
}

func handleBurn(ctx *vm.Context, payload json.RawMessage) error {
	var p core.BurnPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode burn payload: %w", err)
	}
	if p.BurnAmount == 0 {
		return errors.New("burn amount must be > 0")
	}
	if p.Redeemer == "" || p.Destination == "" {
		return errors.New("burn requires redeemer and destination")
	}

	vault, err := ctx.State.GetVault(p.MintedAsset)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%w: %s", core.ErrVaultNotFound, p.MintedAsset)
	}
	if err != nil {
		return fmt.Errorf("get vault: %w", err)
	}
	if p.BurnAmount > vault.MintedSupply {
		return fmt.Errorf("burn amount %d exceeds minted supply %d", p.BurnAmount, vault.MintedSupply)
	}

	redeemerBal, err := ctx.State.GetBalance(p.Redeemer, p.MintedAsset)
	if err != nil {
		return fmt.Errorf("get redeemer balance: %w", err)
	}
	if redeemerBal < p.BurnAmount {
		return fmt.Errorf("%w: have %d need %d", core.ErrInsufficientFunds, redeemerBal, p.BurnAmount)
	}

	// Payout is the redeemer's pro-rata share of the vault's collateral,
	// per the proportional-backing rule (burn_amount / minted_supply of
	// backing_balance), not the fixed exchange-rate division used by
	// burn_and_redeem in original_source/src/vault.rs.
	grossPayout := vault.BackingBalance * p.BurnAmount / vault.MintedSupply
	fee := uint64(float64(grossPayout) * vault.RedeemFeeRate)
	netPayout := grossPayout - fee

	if err := ctx.State.SetBalance(p.Redeemer, p.MintedAsset, redeemerBal-p.BurnAmount); err != nil {
		return err
	}
	vault.MintedSupply -= p.BurnAmount
	vault.BackingBalance -= grossPayout
	vault.AccumulatedFees += fee
	if err := ctx.State.SetVault(vault); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventVaultBurned,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data: map[string]any{
				"minted_asset": p.MintedAsset, "redeemer": p.Redeemer,
				"destination": p.Destination, "burn_amount": p.BurnAmount,
				"net_payout": netPayout, "fee": fee,
			},
		})
	}
	return nil
}
