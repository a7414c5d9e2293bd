package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shaiso/Spectra/internal/dataflow"
	"github.com/shaiso/Spectra/internal/domain"
	"github.com/shaiso/Spectra/internal/telemetry"
	"github.com/shaiso/Spectra/internal/worker"
)

// SummaryFile — имя файла сводки в каталоге pipeline_info.
const SummaryFile = "run_summary.json"

// handleCompletion обрабатывает завершение экземпляра.
//
// При успехе выходы эмитируются в каналы, каналы завершённой стадии
// закрываются, потребители получают новые token'ы.
// aborting=true — run уже останавливается: выходы не распространяются.
func (o *Orchestrator) handleCompletion(ctx context.Context, state *RunState, c completion, aborting bool, logger *slog.Logger) error {
	inst := c.inst
	instLogger := telemetry.WithStage(logger, inst.Stage, inst.SampleID)

	if c.err != nil {
		exitCode := -1
		var se *worker.StageError
		if errors.As(c.err, &se) {
			exitCode = se.ExitCode
		}

		cancelled := aborting && (errors.Is(c.err, context.Canceled) || errors.Is(c.err, context.DeadlineExceeded))
		if cancelled {
			inst.MarkFailed(exitCode, "cancelled")
		} else {
			inst.MarkFailed(exitCode, c.err.Error())
		}
		state.markFinished(inst)
		o.metrics.InstanceFinished(inst.Stage, inst.Status, inst.Duration())
		o.recordInstance(ctx, inst)

		if cancelled {
			instLogger.Info("instance cancelled", "instance_id", inst.ID)
			return nil
		}

		instLogger.Error("instance failed",
			"instance_id", inst.ID,
			"exit_code", exitCode,
			"work_dir", inst.WorkDir,
			"error", c.err,
		)
		return c.err
	}

	inst.MarkSucceeded(c.result.Outputs)
	stageDone := state.markFinished(inst)
	state.Summary.RecordPublished(c.result.Published...)
	o.metrics.InstanceFinished(inst.Stage, inst.Status, inst.Duration())
	o.recordInstance(ctx, inst)

	instLogger.Info("instance succeeded",
		"instance_id", inst.ID,
		"duration", inst.Duration(),
	)

	if aborting {
		return nil
	}

	// Эмитируем выходы
	for _, out := range c.stage.Outputs {
		tok, ok := c.result.Outputs[out.Name]
		if !ok {
			return protocolError(c.stage.Name, out.Name, ErrOutputNotProduced)
		}
		if err := state.Channel(out.Channel).Emit(tok); err != nil {
			return withStage(err, c.stage.Name)
		}
	}

	if stageDone {
		logger.Debug("stage completed", "stage", c.stage.Name, "instances", state.Expected(c.stage.Name))
		for _, out := range c.stage.Outputs {
			state.Channel(out.Channel).Close()
		}
	}

	for _, out := range c.stage.Outputs {
		if err := o.feed(ctx, state, out.Channel); err != nil {
			return err
		}
	}

	return nil
}

// feed передаёт новые token'ы канала всем стадиям-потребителям
// и ставит в очередь экземпляры для собравшихся наборов входов.
func (o *Orchestrator) feed(ctx context.Context, state *RunState, channel string) error {
	info, ok := o.dag.Channel(channel)
	if !ok {
		return fmt.Errorf("unknown channel %s", channel)
	}
	ch := state.Channel(channel)

	for _, ref := range info.Consumers {
		b := state.binders[ref.Stage]
		in, ok := b.stage.Input(ref.Input)
		if !ok {
			return fmt.Errorf("stage %s has no input %s", ref.Stage, ref.Input)
		}

		if err := b.pull(ch, *in); err != nil {
			return err
		}

		sets, err := b.ready()
		if err != nil {
			return err
		}
		for _, set := range sets {
			inst := state.enqueue(ref.Stage, b.sampleFor(set), set)
			o.publishInstanceReady(ctx, inst)
		}

		if err := b.check(); err != nil {
			return err
		}
	}

	return nil
}

// finish фиксирует итоговый статус run, сводку, историю и события.
func (o *Orchestrator) finish(ctx context.Context, state *RunState, runErr error, logger *slog.Logger) {
	run := state.Run
	summary := state.Summary

	switch {
	case runErr == nil:
		run.MarkSucceeded()
	case ctx.Err() != nil && errorKind(runErr) == ErrorKindCancelled:
		run.MarkCancelled(runErr.Error())
	default:
		run.MarkFailed(runErr.Error())
	}

	summary.Finish(run)
	if runErr != nil {
		summary.ErrorKind = errorKind(runErr)
		var se *worker.StageError
		if errors.As(runErr, &se) {
			summary.FailedStage = se.Stage
			summary.FailedSample = se.SampleID
		}
		var pe *dataflow.ProtocolError
		if errors.As(runErr, &pe) {
			summary.FailedStage = pe.Stage
			logger.Error("protocol violation", "stage", pe.Stage, "error", pe)
		}
	}

	o.metrics.RunFinished(run.Status, run.Duration())
	o.recordRunFinished(ctx, run)

	if err := o.writeSummary(run, summary); err != nil {
		logger.Warn("failed to write run summary", "error", err)
	}

	stats := state.Stats()
	switch run.Status {
	case domain.RunStatusSucceeded:
		logger.Info("run succeeded",
			"duration", run.Duration(),
			"instances", stats.Completed,
			"published", len(summary.Published),
		)
	case domain.RunStatusCancelled:
		logger.Warn("run cancelled",
			"duration", run.Duration(),
			"instances", stats.Completed,
		)
	default:
		logger.Error("run failed",
			"duration", run.Duration(),
			"error_kind", summary.ErrorKind,
			"failed_stage", summary.FailedStage,
			"failed_sample", summary.FailedSample,
			"error", runErr,
		)
	}
}

// writeSummary пишет сводку в <outdir>/pipeline_info/run_summary.json.
func (o *Orchestrator) writeSummary(run *domain.Run, summary *domain.RunSummary) error {
	dir := o.summaryDir
	if dir == "" {
		if run.OutDir == "" {
			return nil
		}
		dir = filepath.Join(run.OutDir, "pipeline_info")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create summary dir: %w", err)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	return os.WriteFile(filepath.Join(dir, SummaryFile), data, 0o644)
}

func isProtocol(err error) bool {
	return dataflow.IsProtocolError(err)
}
