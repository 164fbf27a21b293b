// Package compute records posted compute jobs and reported results verbatim.
// Neither transaction moves a balance on its own: a job's reward is paid by
// a later admin-issued Reward transaction once the poster accepts a result,
// so this module is pure bookkeeping, not payment.
package compute

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/vm"
)

func init() {
	vm.Register(core.TxComputeJob, handleComputeJob)
	vm.Register(core.TxComputeResult, handleComputeResult)
}

func handleComputeJob(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ComputeJobPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode compute_job payload: %w", err)
	}
	if p.JobID == "" || p.ModelID == "" || p.InputsHash == "" {
		return errors.New("compute_job requires job_id, model_id, and inputs_hash")
	}
	if p.MaxUnits == 0 {
		return errors.New("compute_job max_units must be > 0")
	}

	if _, err := ctx.State.GetComputeJob(p.JobID); err == nil {
		return fmt.Errorf("compute job %q already posted", p.JobID)
	} else if !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("get compute job: %w", err)
	}

	rec := &core.ComputeJobRecord{
		JobID: p.JobID, ModelID: p.ModelID, InputsHash: p.InputsHash,
		MaxUnits: p.MaxUnits, Reward: p.Reward, Poster: ctx.Tx.From,
	}
	if err := ctx.State.SetComputeJob(rec); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventComputeJobPosted,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data:        map[string]any{"job_id": p.JobID, "model_id": p.ModelID, "poster": ctx.Tx.From},
		})
	}
	return nil
}

func handleComputeResult(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ComputeResultPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode compute_result payload: %w", err)
	}
	if p.ResultHash == "" {
		return errors.New("compute_result requires a result_hash")
	}

	job, err := ctx.State.GetComputeJob(p.JobID)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("compute job %q not found", p.JobID)
	}
	if err != nil {
		return fmt.Errorf("get compute job: %w", err)
	}
	if p.MeasuredRate > job.MaxUnits {
		return fmt.Errorf("measured_rate %d exceeds job max_units %d", p.MeasuredRate, job.MaxUnits)
	}

	rec := &core.ComputeResultRecord{
		JobID: p.JobID, Worker: ctx.Tx.From, ResultHash: p.ResultHash, MeasuredRate: p.MeasuredRate,
	}
	if err := ctx.State.SetComputeResult(rec); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventComputeResult,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data:        map[string]any{"job_id": p.JobID, "worker": ctx.Tx.From, "measured_rate": p.MeasuredRate},
		})
	}
	return nil
}
