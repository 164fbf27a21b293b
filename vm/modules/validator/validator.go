// Package validator handles RegisterValidator: admin-gated addition of a new
// authorised block proposer. The registrant's declared stake is burned from
// its native balance, mirroring a bonding deposit, though this chain does
// not slash it (single-authority consensus, spec.md §2 Non-goals).
package validator

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/vm"
)

func init() {
	vm.Register(core.TxRegisterValidator, handleRegisterValidator)
}

func handleRegisterValidator(ctx *vm.Context, payload json.RawMessage) error {
	isAdmin, err := ctx.State.IsAdmin(ctx.Tx.From)
	if err != nil {
		return fmt.Errorf("check admin set: %w", err)
	}
	if !isAdmin {
		return fmt.Errorf("%w: %s is not an admin", core.ErrNotAuthorized, ctx.Tx.From)
	}

	var p core.RegisterValidatorPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode register_validator payload: %w", err)
	}
	if p.ValidatorID == "" || p.PubKey == "" {
		return errors.New("register_validator requires validator_id and pubkey")
	}

	if _, err := ctx.State.GetValidator(p.ValidatorID); err == nil {
		return fmt.Errorf("validator %q already registered", p.ValidatorID)
	} else if !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("get validator: %w", err)
	}

	if p.Stake > 0 {
		bal, err := ctx.State.GetBalance(ctx.Tx.From, core.NativeAsset)
		if err != nil {
			return fmt.Errorf("get admin balance: %w", err)
		}
		if bal < p.Stake {
			return fmt.Errorf("%w: have %d need %d", core.ErrInsufficientFunds, bal, p.Stake)
		}
		if err := ctx.State.SetBalance(ctx.Tx.From, core.NativeAsset, bal-p.Stake); err != nil {
			return err
		}
	}

	val := &core.Validator{ValidatorID: p.ValidatorID, PubKey: p.PubKey, Stake: p.Stake}
	if err := ctx.State.SetValidator(val); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventValidatorRegister,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data:        map[string]any{"validator_id": p.ValidatorID, "pubkey": p.PubKey, "stake": p.Stake},
		})
	}
	return nil
}
