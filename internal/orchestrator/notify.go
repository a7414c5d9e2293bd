package orchestrator

import (
	"context"

	"github.com/shaiso/Spectra/internal/domain"
	"github.com/shaiso/Spectra/internal/mq"
)

// История и события не влияют на исход run: ошибки только логируются.
// Запись выполняется и после отмены run, поэтому используется
// контекст без отмены.

// recordRunStarted сохраняет run и публикует run.started.
func (o *Orchestrator) recordRunStarted(ctx context.Context, run *domain.Run) {
	ctx = context.WithoutCancel(ctx)

	if o.runRepo != nil {
		if err := o.runRepo.Create(ctx, run); err != nil {
			o.logger.Warn("failed to record run", "run_id", run.ID, "error", err)
		}
	}

	if o.publisher != nil {
		if err := o.publisher.PublishRunStarted(ctx, runPayload(run)); err != nil {
			o.logger.Warn("failed to publish run.started", "run_id", run.ID, "error", err)
		}
	}
}

// recordRunFinished обновляет run и публикует run.finished.
func (o *Orchestrator) recordRunFinished(ctx context.Context, run *domain.Run) {
	ctx = context.WithoutCancel(ctx)

	if o.runRepo != nil {
		if err := o.runRepo.Update(ctx, run); err != nil {
			o.logger.Warn("failed to update run", "run_id", run.ID, "error", err)
		}
	}

	if o.publisher != nil {
		if err := o.publisher.PublishRunFinished(ctx, runPayload(run)); err != nil {
			o.logger.Warn("failed to publish run.finished", "run_id", run.ID, "error", err)
		}
	}
}

// recordInstance сохраняет состояние экземпляра и публикует instance.completed
// для завершённых экземпляров.
func (o *Orchestrator) recordInstance(ctx context.Context, inst *domain.Instance) {
	ctx = context.WithoutCancel(ctx)

	if o.instanceRepo != nil {
		if err := o.instanceRepo.Upsert(ctx, inst); err != nil {
			o.logger.Warn("failed to record instance", "instance_id", inst.ID, "error", err)
		}
	}

	if o.publisher != nil && inst.IsFinished() {
		if err := o.publisher.PublishInstanceCompleted(ctx, instancePayload(inst)); err != nil {
			o.logger.Warn("failed to publish instance.completed", "instance_id", inst.ID, "error", err)
		}
	}
}

// publishInstanceReady сохраняет новый экземпляр и публикует instance.ready.
func (o *Orchestrator) publishInstanceReady(ctx context.Context, inst *domain.Instance) {
	o.recordInstance(ctx, inst)

	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishInstanceReady(context.WithoutCancel(ctx), instancePayload(inst)); err != nil {
		o.logger.Warn("failed to publish instance.ready", "instance_id", inst.ID, "error", err)
	}
}

func runPayload(run *domain.Run) mq.RunEventPayload {
	return mq.RunEventPayload{
		RunID:      run.ID,
		Pipeline:   run.Pipeline,
		Status:     string(run.Status),
		Samples:    len(run.Samples),
		Trigger:    run.Trigger,
		Error:      run.Error,
		DurationMS: run.Duration().Milliseconds(),
	}
}

func instancePayload(inst *domain.Instance) mq.InstanceEventPayload {
	return mq.InstanceEventPayload{
		InstanceID: inst.ID,
		RunID:      inst.RunID,
		Stage:      inst.Stage,
		SampleID:   inst.SampleID,
		Status:     string(inst.Status),
		ExitCode:   inst.ExitCode,
		Error:      inst.Error,
		DurationMS: inst.Duration().Milliseconds(),
	}
}
