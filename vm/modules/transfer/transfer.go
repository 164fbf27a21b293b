// Package transfer handles the Transfer transaction: moving a balance of an
// arbitrary asset from the signer to a recipient. Nonce and fee handling are
// centralised in vm.Executor.applyTx; this handler only moves the asset
// named in the payload.
package transfer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/vm"
)

func init() {
	vm.Register(core.TxTransfer, handleTransfer)
}

func handleTransfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer payload: %w", err)
	}
	if p.Amount == 0 {
		return errors.New("transfer amount must be > 0")
	}
	if p.To == "" {
		return errors.New("transfer requires a recipient")
	}
	if p.Asset == "" {
		return errors.New("transfer requires an asset")
	}

	bal, err := ctx.State.GetBalance(ctx.Tx.From, p.Asset)
	if err != nil {
		return fmt.Errorf("get sender balance: %w", err)
	}
	if bal < p.Amount {
		return fmt.Errorf("%w: have %d need %d", core.ErrInsufficientFunds, bal, p.Amount)
	}
	if err := ctx.State.SetBalance(ctx.Tx.From, p.Asset, bal-p.Amount); err != nil {
		return err
	}

	toBal, err := ctx.State.GetBalance(p.To, p.Asset)
	if err != nil {
		return fmt.Errorf("get recipient balance: %w", err)
	}
	if err := ctx.State.SetBalance(p.To, p.Asset, toBal+p.Amount); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventTransfer,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data:        map[string]any{"from": ctx.Tx.From, "to": p.To, "asset": p.Asset, "amount": p.Amount},
		})
	}
	return nil
}
