package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Spectra/internal/domain"
	"github.com/shaiso/Spectra/internal/engine"
	"github.com/shaiso/Spectra/internal/mq"
	"github.com/shaiso/Spectra/internal/repo"
	"github.com/shaiso/Spectra/internal/telemetry"
	"github.com/shaiso/Spectra/internal/worker"
)

// Runner выполняет один экземпляр стадии (реализуется worker.Worker).
type Runner interface {
	// InstanceDir возвращает рабочую директорию экземпляра.
	InstanceDir(inst *domain.Instance) string

	// Run выполняет экземпляр и возвращает опубликованные выходы.
	Run(ctx context.Context, inst *domain.Instance, stage *domain.StageDef) (*worker.Result, error)
}

// Orchestrator управляет выполнением runs.
//
// Orchestrator — центральный компонент системы, который:
//   - Эмитирует token'ы источников в каналы графа
//   - Связывает входы стадий (сопоставление по образцу, barrier, broadcast)
//   - Запускает готовые экземпляры в пуле с ограничением параллелизма
//   - Публикует выходы в каналы и закрывает каналы завершённых стадий
//   - Останавливает run при первой ошибке (без повторных попыток)
//   - Возвращает явную сводку run
//
// Все изменения каналов и счётчиков выполняет одна горутина координатора,
// экземпляры выполняются в отдельных горутинах и сообщают о завершении
// через канал.
type Orchestrator struct {
	dag         *engine.DAG
	runner      Runner
	maxParallel int

	// History и события (опционально)
	runRepo      *repo.RunRepo
	instanceRepo *repo.InstanceRepo
	publisher    *mq.Publisher
	metrics      *telemetry.Metrics

	// Active runs — runs в процессе выполнения (runID → state)
	activeRuns map[uuid.UUID]*RunState
	mu         sync.RWMutex

	summaryDir string
	logger     *slog.Logger
}

// Config — конфигурация Orchestrator.
type Config struct {
	// DAG — собранный граф пайплайна (обязательно).
	DAG *engine.DAG

	// Runner — исполнитель экземпляров (обязательно).
	Runner Runner

	// MaxParallel — сколько экземпляров выполняется одновременно
	// (default: runtime.NumCPU()).
	MaxParallel int

	// Repositories (опционально)
	RunRepo      *repo.RunRepo
	InstanceRepo *repo.InstanceRepo

	// MQ (опционально)
	Publisher *mq.Publisher

	// Metrics (опционально)
	Metrics *telemetry.Metrics

	// SummaryDir — каталог для run_summary.json
	// (default: <run.OutDir>/pipeline_info, пусто и без OutDir — не писать).
	SummaryDir string

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = runtime.NumCPU()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		dag:          cfg.DAG,
		runner:       cfg.Runner,
		maxParallel:  maxParallel,
		runRepo:      cfg.RunRepo,
		instanceRepo: cfg.InstanceRepo,
		publisher:    cfg.Publisher,
		metrics:      cfg.Metrics,
		activeRuns:   make(map[uuid.UUID]*RunState),
		summaryDir:   cfg.SummaryDir,
		logger:       logger,
	}
}

// completion — сообщение о завершении экземпляра.
type completion struct {
	inst   *domain.Instance
	stage  *domain.StageDef
	result *worker.Result
	err    error
}

// Execute выполняет run до завершения.
//
// sources — token'ы каждого источника каталога (имя источника → token'ы).
// Возвращает сводку в любом случае; ошибка — первая причина остановки:
// *worker.StageError, *dataflow.ProtocolError или ошибка контекста.
func (o *Orchestrator) Execute(ctx context.Context, run *domain.Run, sources map[string][]domain.Token) (*domain.RunSummary, error) {
	if len(run.Samples) == 0 {
		return nil, ErrNoSamples
	}

	state, err := NewRunState(run, o.dag)
	if err != nil {
		return nil, err
	}

	if err := o.addActiveRun(state); err != nil {
		return nil, err
	}
	defer o.removeActiveRun(run.ID)

	logger := telemetry.WithRunID(o.logger, run.ID.String())

	run.MarkRunning()
	o.recordRunStarted(ctx, run)

	logger.Info("run started",
		"pipeline", run.Pipeline,
		"samples", len(run.Samples),
		"stages", o.dag.Size(),
		"max_parallel", o.maxParallel,
	)

	runErr := o.loop(ctx, state, sources, logger)

	o.finish(ctx, state, runErr, logger)

	return state.Summary, runErr
}

// loop — цикл координатора.
func (o *Orchestrator) loop(ctx context.Context, state *RunState, sources map[string][]domain.Token, logger *slog.Logger) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan completion)
	done := ctx.Done()

	var failure error
	fail := func(err error) {
		if failure == nil {
			failure = err
			cancel()
		}
	}

	if err := o.emitSources(ctx, state, sources); err != nil {
		fail(err)
	}

	for {
		if failure == nil {
			o.dispatch(ctx, runCtx, state, results, logger)
		}

		if state.RunningTotal() == 0 {
			if failure == nil && !state.IsComplete() {
				fail(protocolError("", "waiting on "+state.Unfinished(), ErrStalled))
			}
			return failure
		}

		select {
		case c := <-results:
			if err := o.handleCompletion(ctx, state, c, failure != nil, logger); err != nil {
				fail(err)
			}
		case <-done:
			done = nil
			logger.Warn("run cancelled, waiting for running instances",
				"running", state.RunningTotal(),
			)
			fail(ctx.Err())
		}
	}
}

// emitSources эмитирует token'ы источников и закрывает их каналы.
func (o *Orchestrator) emitSources(ctx context.Context, state *RunState, sources map[string][]domain.Token) error {
	for _, src := range o.dag.Catalog.Sources {
		tokens := sources[src.Name]

		want := 1
		if src.PerSample {
			want = len(state.Run.Samples)
		}
		if len(tokens) != want {
			return fmt.Errorf("%w: %s has %d tokens, expected %d", ErrMissingSource, src.Name, len(tokens), want)
		}

		ch := state.Channel(src.Channel)
		for _, t := range tokens {
			if err := ch.Emit(t); err != nil {
				return err
			}
		}
		ch.Close()

		if err := o.feed(ctx, state, src.Channel); err != nil {
			return err
		}
	}
	return nil
}

// dispatch запускает готовые экземпляры, пока есть свободные слоты.
func (o *Orchestrator) dispatch(ctx, runCtx context.Context, state *RunState, results chan<- completion, logger *slog.Logger) {
	queue := state.takeQueue()
	if len(queue) == 0 {
		return
	}

	waiting := make([]*domain.Instance, 0)
	for _, inst := range queue {
		node := o.dag.GetNode(inst.Stage)
		stage := node.Stage

		if state.RunningTotal() >= o.maxParallel ||
			(stage.Parallelism.MaxForks > 0 && state.RunningStage(stage.Name) >= stage.Parallelism.MaxForks) {
			waiting = append(waiting, inst)
			continue
		}

		state.markRunning(inst, o.runner.InstanceDir(inst))
		o.metrics.InstanceStarted(stage.Name)
		o.recordInstance(ctx, inst)

		instLogger := telemetry.WithStage(logger, inst.Stage, inst.SampleID)
		instLogger.Info("instance started", "instance_id", inst.ID)

		instCtx := telemetry.WithLogger(runCtx, instLogger)
		go func(inst *domain.Instance, stage *domain.StageDef) {
			res, err := o.runner.Run(instCtx, inst, stage)
			results <- completion{inst: inst, stage: stage, result: res, err: err}
		}(inst, stage)
	}

	if len(waiting) > 0 {
		state.requeue(waiting)
	}
}

// addActiveRun добавляет run в активные.
func (o *Orchestrator) addActiveRun(state *RunState) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.activeRuns[state.Run.ID]; exists {
		return ErrRunAlreadyActive
	}

	o.activeRuns[state.Run.ID] = state
	return nil
}

// removeActiveRun удаляет run из активных.
func (o *Orchestrator) removeActiveRun(runID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.activeRuns, runID)
}

// ActiveRunsCount возвращает количество активных runs.
func (o *Orchestrator) ActiveRunsCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.activeRuns)
}

// GetActiveRunStats возвращает статистику по активному run.
func (o *Orchestrator) GetActiveRunStats(runID uuid.UUID) (RunStats, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	state, exists := o.activeRuns[runID]
	if !exists {
		return RunStats{}, false
	}

	return state.Stats(), true
}

// ActiveRun — снимок выполняющегося run.
type ActiveRun struct {
	RunID     uuid.UUID
	Pipeline  string
	Samples   int
	StartedAt time.Time
	Stats     RunStats
}

// ActiveRuns возвращает снимки активных runs, ранние первыми.
func (o *Orchestrator) ActiveRuns() []ActiveRun {
	o.mu.RLock()
	defer o.mu.RUnlock()

	runs := make([]ActiveRun, 0, len(o.activeRuns))
	for id, state := range o.activeRuns {
		active := ActiveRun{
			RunID:    id,
			Pipeline: state.Run.Pipeline,
			Samples:  len(state.Run.Samples),
			Stats:    state.Stats(),
		}
		if state.Run.StartedAt != nil {
			active.StartedAt = *state.Run.StartedAt
		}
		runs = append(runs, active)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
	return runs
}

// errorKind классифицирует причину остановки run.
func errorKind(err error) string {
	var se *worker.StageError
	switch {
	case errors.As(err, &se):
		return ErrorKindStage
	case isProtocol(err):
		return ErrorKindProtocol
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorKindCancelled
	default:
		return ErrorKindInternal
	}
}
