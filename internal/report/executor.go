package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/shaiso/Spectra/internal/telemetry"
	"github.com/shaiso/Spectra/internal/worker"
)

// Имена входа и выходов стадии отчёта.
const (
	InputMzTab = "mztab"
	OutputHTML = "html"
	OutputJSON = "json"
)

// Executor — встроенная стадия отчёта (worker.Executor).
// Читает mzTab, считает статистику и пишет HTML и JSON.
type Executor struct {
	pipeline string
	logger   *slog.Logger
}

// NewExecutor создаёт Executor отчёта для пайплайна.
func NewExecutor(pipeline string, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{pipeline: pipeline, logger: logger}
}

// Execute выполняет стадию отчёта.
func (e *Executor) Execute(ctx context.Context, req *worker.Request) (*worker.ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in, ok := req.Instance.Inputs[InputMzTab]
	if !ok || len(in.Paths()) == 0 {
		return nil, ErrMissingInput
	}

	m, err := ReadMzTab(in.Paths()[0])
	if err != nil {
		return nil, err
	}
	rep := Build(m, e.pipeline)

	if err := writeOutput(req, OutputJSON, func(buf *bytes.Buffer) error {
		enc := json.NewEncoder(buf)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}); err != nil {
		return nil, err
	}

	if err := writeOutput(req, OutputHTML, func(buf *bytes.Buffer) error {
		return RenderHTML(buf, rep)
	}); err != nil {
		return nil, err
	}

	telemetry.FromContext(ctx, e.logger).Info("report written",
		"proteins", rep.Proteins,
		"peptides", rep.Peptides,
		"psms", rep.PSMs,
		"runs", len(rep.Runs),
	)

	return &worker.ExecutionResult{ExitCode: 0}, nil
}

func writeOutput(req *worker.Request, name string, fill func(*bytes.Buffer) error) error {
	paths := req.OutputPaths[name]
	if len(paths) == 0 {
		return fmt.Errorf("report output %s has no path", name)
	}

	var buf bytes.Buffer
	if err := fill(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(paths[0], buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", name, err)
	}
	return nil
}
