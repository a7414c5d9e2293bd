package worker

import (
	"context"
	"fmt"

	"github.com/shaiso/Spectra/internal/domain"
)

// Executor — интерфейс для выполнения одного экземпляра стадии.
//
// Реализации: ProcessExecutor (внешний инструмент) и builtin стадии
// (report.Executor).
//
// Executor должен записать все файлы req.OutputPaths. Проверку выходов
// и публикацию выполняет Worker.
type Executor interface {
	Execute(ctx context.Context, req *Request) (*ExecutionResult, error)
}

// Request — всё, что нужно executor'у для запуска экземпляра.
type Request struct {
	// Instance — выполняемый экземпляр.
	Instance *domain.Instance

	// Stage — определение стадии.
	Stage *domain.StageDef

	// Argv — отрендеренная команда (только для tool стадий).
	Argv []string

	// WorkDir — изолированная рабочая директория.
	WorkDir string

	// OutputPaths — абсолютные пути выходов (имя выхода → пути).
	OutputPaths map[string][]string

	// Params — параметры запуска.
	Params domain.RunParams
}

// ExecutionResult — результат выполнения экземпляра.
type ExecutionResult struct {
	// ExitCode — код выхода процесса (0 для builtin стадий).
	ExitCode int

	// Stderr — хвост диагностического вывода.
	Stderr string
}

// Registry — реестр executor'ов.
//
// Tool стадии выполняются общим executor'ом, builtin — по имени стадии.
type Registry struct {
	tool     Executor
	builtins map[string]Executor
}

// NewRegistry создаёт реестр с ProcessExecutor для tool стадий.
func NewRegistry() *Registry {
	return &Registry{
		tool:     &ProcessExecutor{},
		builtins: make(map[string]Executor),
	}
}

// SetTool заменяет executor для tool стадий.
func (r *Registry) SetTool(executor Executor) {
	r.tool = executor
}

// Register добавляет executor для builtin стадии.
func (r *Registry) Register(stage string, executor Executor) {
	r.builtins[stage] = executor
}

// Get возвращает executor для стадии.
func (r *Registry) Get(stage *domain.StageDef) (Executor, error) {
	if stage.Kind == domain.StageKindTool {
		return r.tool, nil
	}
	executor, ok := r.builtins[stage.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBuiltin, stage.Name)
	}
	return executor, nil
}
