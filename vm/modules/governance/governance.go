// Package governance handles Proposal, Vote, and Reward. Proposal and Reward
// are admin-gated, per original_source/src/block.rs's is_admin() pattern,
// generalised to a genesis-configured admin set (core.GenesisBody.Admins)
// instead of the Rust source's hardcoded "admin"/"foundation" identities.
// Vote tallying lives off-ledger (rpc exposes a tally query over stored
// votes); this handler only records one vote per (proposal, voter) pair, the
// way original_source/src/chain.rs's append_vote does before tally_votes
// scans the chain.
package governance

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/vm"
)

func init() {
	vm.Register(core.TxProposal, handleProposal)
	vm.Register(core.TxVote, handleVote)
	vm.Register(core.TxReward, handleReward)
}

func requireAdmin(ctx *vm.Context) error {
	isAdmin, err := ctx.State.IsAdmin(ctx.Tx.From)
	if err != nil {
		return fmt.Errorf("check admin set: %w", err)
	}
	if !isAdmin {
		return fmt.Errorf("%w: %s is not an admin", core.ErrNotAuthorized, ctx.Tx.From)
	}
	return nil
}

func handleProposal(ctx *vm.Context, payload json.RawMessage) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	var p core.ProposalPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode proposal payload: %w", err)
	}
	if p.ID == "" {
		return errors.New("proposal requires an id")
	}
	if p.Deadline <= ctx.Block.Header.Timestamp {
		return errors.New("proposal deadline must be in the future")
	}

	if _, err := ctx.State.GetProposal(p.ID); err == nil {
		return fmt.Errorf("proposal %q already exists", p.ID)
	} else if !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("get proposal: %w", err)
	}

	prop := &core.Proposal{ID: p.ID, Proposer: ctx.Tx.From, Text: p.Text, Deadline: p.Deadline}
	if err := ctx.State.SetProposal(prop); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventProposalCreated,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data:        map[string]any{"proposal_id": p.ID, "deadline": p.Deadline},
		})
	}
	return nil
}

func handleVote(ctx *vm.Context, payload json.RawMessage) error {
	var p core.VotePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode vote payload: %w", err)
	}
	if p.Choice == "" {
		return errors.New("vote requires a choice")
	}

	prop, err := ctx.State.GetProposal(p.ProposalID)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%w: %s", core.ErrProposalNotFound, p.ProposalID)
	}
	if err != nil {
		return fmt.Errorf("get proposal: %w", err)
	}
	if ctx.Block.Header.Timestamp > prop.Deadline {
		return fmt.Errorf("%w: %s closed at %d", core.ErrProposalExpired, p.ProposalID, prop.Deadline)
	}

	voted, err := ctx.State.HasVoted(p.ProposalID, ctx.Tx.From)
	if err != nil {
		return fmt.Errorf("check vote: %w", err)
	}
	if voted {
		return fmt.Errorf("%w: %s already voted on %s", core.ErrDuplicateVote, ctx.Tx.From, p.ProposalID)
	}
	if err := ctx.State.MarkVoted(p.ProposalID, ctx.Tx.From); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventVoteCast,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data:        map[string]any{"proposal_id": p.ProposalID, "voter": ctx.Tx.From, "choice": p.Choice},
		})
	}
	return nil
}

func handleReward(ctx *vm.Context, payload json.RawMessage) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	var p core.RewardPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode reward payload: %w", err)
	}
	if p.Amount == 0 {
		return errors.New("reward amount must be > 0")
	}
	if p.Recipient == "" {
		return errors.New("reward requires a recipient")
	}
	asset := p.Asset
	if asset == "" {
		asset = core.NativeAsset
	}

	bal, err := ctx.State.GetBalance(p.Recipient, asset)
	if err != nil {
		return fmt.Errorf("get recipient balance: %w", err)
	}
	if err := ctx.State.SetBalance(p.Recipient, asset, bal+p.Amount); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventRewardPaid,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data:        map[string]any{"recipient": p.Recipient, "amount": p.Amount, "asset": asset, "reason": p.Reason},
		})
	}
	return nil
}
