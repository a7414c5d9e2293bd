package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shaiso/Spectra/internal/domain"
	"github.com/shaiso/Spectra/internal/engine"
	"github.com/shaiso/Spectra/internal/telemetry"
)

// Default configuration values.
const (
	defaultWorkDir = "./work"
	defaultOutDir  = "./results"
)

// Worker выполняет отдельные экземпляры стадий.
//
// Worker не хранит состояния между вызовами и безопасен для
// одновременного использования из нескольких горутин:
//   - Готовит изолированную рабочую директорию экземпляра
//   - Рендерит типизированную команду и запускает executor
//   - Проверяет, что все объявленные выходы созданы и непусты
//   - Публикует выходы в <outdir>/<stage>/ и возвращает token'ы
//
// Повторных попыток нет: любая ошибка возвращается вызывающему коду.
type Worker struct {
	registry *Registry
	params   domain.RunParams
	workDir  string
	outDir   string
	logger   *slog.Logger
}

// Config — конфигурация Worker.
type Config struct {
	// Executor registry (опционально; если nil — используется NewRegistry())
	Registry *Registry

	// Params — параметры запуска для рендеринга команд.
	Params domain.RunParams

	// WorkDir — корень рабочих директорий (default: Params.WorkDir или ./work).
	WorkDir string

	// OutDir — каталог публикации (default: Params.OutDir или ./results).
	OutDir string

	// Logger
	Logger *slog.Logger
}

// Result — результат успешного выполнения экземпляра.
type Result struct {
	// Outputs — опубликованные выходы (имя выхода → token).
	Outputs map[string]domain.Token

	// Published — пути опубликованных файлов.
	Published []string

	// ExitCode — код выхода инструмента.
	ExitCode int
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	workDir := firstNonEmpty(cfg.WorkDir, cfg.Params.WorkDir, defaultWorkDir)
	outDir := firstNonEmpty(cfg.OutDir, cfg.Params.OutDir, defaultOutDir)
	if abs, err := filepath.Abs(workDir); err == nil {
		workDir = abs
	}
	if abs, err := filepath.Abs(outDir); err == nil {
		outDir = abs
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		registry: registry,
		params:   cfg.Params,
		workDir:  workDir,
		outDir:   outDir,
		logger:   logger,
	}
}

// OutDir возвращает каталог публикации.
func (w *Worker) OutDir() string {
	return w.outDir
}

// InstanceDir возвращает рабочую директорию экземпляра:
// <workdir>/<stage>/<sample>-<id>.
func (w *Worker) InstanceDir(inst *domain.Instance) string {
	id := inst.ID.String()
	if len(id) > 8 {
		id = id[:8]
	}
	sample := inst.SampleID
	if sample == "" {
		sample = inst.Stage
	}
	return filepath.Join(w.workDir, inst.Stage, sanitize(sample)+"-"+id)
}

// Run выполняет экземпляр стадии.
//
// Ошибки инструмента и выходов возвращаются как *StageError.
// Отмена ctx возвращается как ctx.Err().
func (w *Worker) Run(ctx context.Context, inst *domain.Instance, stage *domain.StageDef) (*Result, error) {
	dir := w.InstanceDir(inst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	plans, err := engine.PlanOutputs(stage, inst.SampleID, inst.Inputs)
	if err != nil {
		return nil, fmt.Errorf("plan outputs: %w", err)
	}

	outputPaths := make(map[string][]string, len(plans))
	for _, plan := range plans {
		paths := make([]string, len(plan.Files))
		for i, f := range plan.Files {
			paths[i] = filepath.Join(dir, f)
		}
		outputPaths[plan.Name] = paths
	}

	req := &Request{
		Instance:    inst,
		Stage:       stage,
		WorkDir:     dir,
		OutputPaths: outputPaths,
		Params:      w.params,
	}

	if stage.Kind == domain.StageKindTool {
		argv, err := engine.RenderCommand(stage, engine.Binding{
			Inputs:  inst.Inputs,
			Outputs: outputPaths,
			Params:  w.params,
			Threads: engine.StageThreads(stage, w.params),
		})
		if err != nil {
			return nil, fmt.Errorf("render command: %w", err)
		}
		req.Argv = argv

		logger := telemetry.FromContext(ctx, telemetry.WithStage(w.logger, stage.Name, inst.SampleID))
		logger.Debug("command rendered", "command", engine.FormatCommand(argv))
	}

	executor, err := w.registry.Get(stage)
	if err != nil {
		return nil, err
	}

	result, err := executor.Execute(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, w.stageError(inst, dir, -1, "", err)
	}

	if result.ExitCode != 0 {
		return nil, w.stageError(inst, dir, result.ExitCode, result.Stderr, ErrToolFailed)
	}

	if err := verifyOutputs(outputPaths, plans); err != nil {
		return nil, w.stageError(inst, dir, result.ExitCode, result.Stderr, err)
	}

	outputs, published, err := w.publish(stage, inst, plans, outputPaths)
	if err != nil {
		return nil, w.stageError(inst, dir, result.ExitCode, "", err)
	}

	return &Result{
		Outputs:   outputs,
		Published: published,
		ExitCode:  result.ExitCode,
	}, nil
}

// verifyOutputs проверяет, что каждый объявленный файл существует и непуст.
func verifyOutputs(paths map[string][]string, plans []engine.PlannedOutput) error {
	for _, plan := range plans {
		for _, p := range paths[plan.Name] {
			info, err := os.Stat(p)
			if err != nil {
				return fmt.Errorf("%w: %s (%s)", ErrMissingOutput, plan.Name, filepath.Base(p))
			}
			if info.IsDir() || info.Size() == 0 {
				return fmt.Errorf("%w: %s (%s)", ErrEmptyOutput, plan.Name, filepath.Base(p))
			}
		}
	}
	return nil
}

// publish копирует выходы в <outdir>/<stage>/ и строит token'ы.
func (w *Worker) publish(stage *domain.StageDef, inst *domain.Instance, plans []engine.PlannedOutput, paths map[string][]string) (map[string]domain.Token, []string, error) {
	destDir := filepath.Join(w.outDir, stage.Name)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrPublish, err)
	}

	outputs := make(map[string]domain.Token, len(plans))
	published := make([]string, 0)

	for _, plan := range plans {
		tokens := make([]domain.Token, len(plan.Files))
		for i, src := range paths[plan.Name] {
			dest := filepath.Join(destDir, plan.Files[i])
			if err := copyFile(src, dest); err != nil {
				return nil, nil, fmt.Errorf("%w: %s: %v", ErrPublish, plan.Files[i], err)
			}
			published = append(published, dest)
			tokens[i] = domain.Token{Path: dest, SampleID: plan.SampleIDs[i], Stage: stage.Name}
		}

		if plan.Aggregate {
			outputs[plan.Name] = domain.NewAggregate(stage.Name, inst.SampleID, tokens)
		} else {
			outputs[plan.Name] = tokens[0]
		}
	}

	return outputs, published, nil
}

func (w *Worker) stageError(inst *domain.Instance, dir string, exitCode int, stderr string, err error) *StageError {
	return &StageError{
		Stage:    inst.Stage,
		SampleID: inst.SampleID,
		ExitCode: exitCode,
		Stderr:   stderr,
		WorkDir:  dir,
		Err:      err,
	}
}

// copyFile копирует файл через временный файл в каталоге назначения.
func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".publish-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':':
			return '_'
		}
		return r
	}, s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
