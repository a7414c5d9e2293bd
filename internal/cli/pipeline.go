package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Spectra/internal/api"
	"github.com/shaiso/Spectra/internal/config"
	"github.com/shaiso/Spectra/internal/domain"
	"github.com/shaiso/Spectra/internal/engine"
	"github.com/shaiso/Spectra/internal/lock"
	"github.com/shaiso/Spectra/internal/orchestrator"
	"github.com/shaiso/Spectra/internal/report"
	"github.com/shaiso/Spectra/internal/stages"
	"github.com/shaiso/Spectra/internal/telemetry"
	"github.com/shaiso/Spectra/internal/worker"
)

// RunOptions — флаги запуска пайплайна (общие для run и schedule run).
type RunOptions struct {
	Spectra     string
	Database    string
	ParamsFile  string
	Params      []string
	OutDir      string
	WorkDir     string
	MaxParallel int
	ToolDir     string
	MetricsAddr string
}

func (o *RunOptions) addFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.Spectra, "spectra", "", "Glob pattern of raw spectra files (e.g. 'data/*.mzML')")
	f.StringVar(&o.Database, "database", "", "Protein database (FASTA)")
	f.StringVar(&o.ParamsFile, "params-file", "", "YAML file with pipeline parameters")
	f.StringArrayVar(&o.Params, "param", nil, "Parameter override as KEY=VALUE (repeatable)")
	f.StringVar(&o.OutDir, "outdir", "", "Publish directory (overrides outdir parameter)")
	f.StringVar(&o.WorkDir, "workdir", "", "Work directory (overrides workdir parameter)")
	f.IntVar(&o.MaxParallel, "max-parallel", 0, "Maximum concurrently running instances (default: number of CPUs)")
	f.StringVar(&o.ToolDir, "tool-dir", "", "Directory with tool executables (default: PATH)")
	f.StringVar(&o.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics and the status API on this address (e.g. :9090)")
}

// overrides возвращает --param с учётом --outdir и --workdir.
func (o *RunOptions) overrides() []string {
	overrides := append([]string(nil), o.Params...)
	if o.OutDir != "" {
		overrides = append(overrides, "outdir="+o.OutDir)
	}
	if o.WorkDir != "" {
		overrides = append(overrides, "workdir="+o.WorkDir)
	}
	return overrides
}

// Pipeline собирает и выполняет run пайплайна.
type Pipeline struct {
	infra    *Infra
	metrics  *telemetry.Metrics
	registry *worker.Registry
	logger   *slog.Logger

	mu      sync.Mutex
	current *orchestrator.Orchestrator
}

// NewPipeline создаёт Pipeline. registry nil — внешние инструменты
// плюс встроенная стадия отчёта.
func NewPipeline(infra *Infra, metrics *telemetry.Metrics, registry *worker.Registry, logger *slog.Logger) *Pipeline {
	if infra == nil {
		infra = &Infra{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{infra: infra, metrics: metrics, registry: registry, logger: logger}
}

// Prepare загружает параметры и входы и создаёт run (без выполнения).
func Prepare(opts *RunOptions) (*domain.Run, *config.Inputs, *engine.DAG, error) {
	params, err := config.LoadParams(opts.ParamsFile, opts.overrides())
	if err != nil {
		return nil, nil, nil, err
	}

	inputs, err := config.ResolveInputs(opts.Spectra, opts.Database)
	if err != nil {
		return nil, nil, nil, err
	}

	dag, err := engine.BuildDAG(stages.Catalog())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build pipeline graph: %w", err)
	}

	run := domain.NewRun(stages.PipelineName, inputs.Samples, params)
	return run, inputs, dag, nil
}

// Execute выполняет один run до завершения.
func (p *Pipeline) Execute(ctx context.Context, opts *RunOptions, trigger string) (*domain.Run, *domain.RunSummary, error) {
	run, inputs, dag, err := Prepare(opts)
	if err != nil {
		return nil, nil, err
	}
	run.Trigger = trigger

	// Потеря блокировки outdir отменяет run: публиковать в каталог,
	// которым владеет кто-то другой, нельзя.
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if p.infra.Locker != nil {
		lease, err := p.infra.Locker.AcquireDir(ctx, run.OutDir)
		if err != nil {
			return run, nil, fmt.Errorf("lock outdir %s: %w", run.OutDir, err)
		}
		lease.KeepAlive(ctx, cancel)
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				p.logger.Warn("failed to release outdir lock", "error", err)
			}
		}()
	}

	registry := p.registry
	if registry == nil {
		registry = worker.NewRegistry()
		registry.SetTool(&worker.ProcessExecutor{ToolDir: opts.ToolDir})
		registry.Register(stages.ReportStage, report.NewExecutor(run.Pipeline, p.logger))
	}

	w := worker.New(worker.Config{
		Registry: registry,
		Params:   run.Params,
		Logger:   p.logger,
	})

	orch := orchestrator.New(orchestrator.Config{
		DAG:          dag,
		Runner:       w,
		MaxParallel:  opts.MaxParallel,
		RunRepo:      p.infra.RunRepo,
		InstanceRepo: p.infra.InstanceRepo,
		Publisher:    p.infra.Publisher,
		Metrics:      p.metrics,
		Logger:       p.logger,
	})

	p.mu.Lock()
	p.current = orch
	p.mu.Unlock()

	summary, err := orch.Execute(ctx, run, inputs.Sources())
	if err != nil {
		if cause := context.Cause(ctx); errors.Is(cause, lock.ErrLost) {
			err = cause
		}
	}
	return run, summary, err
}

// ActiveRuns возвращает прогресс текущего run.
func (p *Pipeline) ActiveRuns() []orchestrator.ActiveRun {
	p.mu.Lock()
	orch := p.current
	p.mu.Unlock()

	if orch == nil {
		return nil
	}
	return orch.ActiveRuns()
}

// printSummary выводит сводку run.
func printSummary(out *Output, summary *domain.RunSummary) {
	if summary == nil {
		return
	}
	if out.IsJSON() {
		out.JSON(summary)
		return
	}

	headers := []string{"STAGE", "TOOL", "INSTANCES", "SUCCEEDED", "FAILED", "DURATION"}
	rows := make([][]string, len(summary.Stages))
	for i, s := range summary.Stages {
		rows[i] = []string{
			s.Name,
			s.Tool,
			strconv.Itoa(s.Instances),
			strconv.Itoa(s.Succeeded),
			strconv.Itoa(s.Failed),
			formatDuration(time.Duration(s.DurationMS) * time.Millisecond),
		}
	}
	out.Table(headers, rows)

	msg := fmt.Sprintf("Run %s %s in %s (%d samples, %d files published)",
		summary.RunID, summary.Status,
		formatDuration(time.Duration(summary.DurationMS)*time.Millisecond),
		len(summary.Samples), len(summary.Published))
	if summary.FailedStage != "" {
		msg += fmt.Sprintf("; failed at %s [%s]", summary.FailedStage, summary.FailedSample)
	}
	out.Success(msg)
}

// startPipeline создаёт Pipeline и, с --metrics-addr, сервер состояния.
func startPipeline(ctx context.Context, infra *Infra, opts *RunOptions, logger *slog.Logger) (*Pipeline, error) {
	if opts.MetricsAddr == "" {
		return NewPipeline(infra, nil, nil, logger), nil
	}

	metrics := telemetry.NewMetrics(nil)
	pipeline := NewPipeline(infra, metrics, nil, logger)
	if err := serveStatus(ctx, opts.MetricsAddr, pipeline, metrics, logger); err != nil {
		return nil, err
	}
	return pipeline, nil
}

// serveStatus поднимает /metrics, /healthz и API состояния до отмены ctx.
func serveStatus(ctx context.Context, addr string, pipeline *Pipeline, metrics *telemetry.Metrics, logger *slog.Logger) error {
	dag, err := engine.BuildDAG(stages.Catalog())
	if err != nil {
		return err
	}

	cfg := api.Config{
		Active:  pipeline,
		DAG:     dag,
		Metrics: metrics.Handler(),
		Logger:  logger,
	}
	// Интерфейсы заполняются только непустыми репозиториями.
	if pipeline.infra.RunRepo != nil {
		cfg.RunRepo = pipeline.infra.RunRepo
		cfg.InstanceRepo = pipeline.infra.InstanceRepo
		cfg.ScheduleRepo = pipeline.infra.ScheduleRepo
	}

	mux := http.NewServeMux()
	api.NewHandler(cfg).RegisterRoutes(mux)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("status server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	return nil
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
