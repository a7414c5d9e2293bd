package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shaiso/Spectra/internal/domain"
)

// Binding — конкретные значения для рендеринга команды одного экземпляра.
type Binding struct {
	// Inputs — связанные входы (имя входа → token).
	Inputs map[string]domain.Token

	// Outputs — пути файлов для каждого объявленного выхода.
	Outputs map[string][]string

	// Params — параметры запуска.
	Params domain.RunParams

	// Threads — число потоков инструмента.
	Threads int
}

// RenderCommand строит argv инструмента из типизированной CommandSpec.
//
// Первый элемент — имя инструмента. Вход агрегата разворачивается
// в пути всех элементов после одного флага. Параметр с пустым значением
// пропускается вместе с флагом.
func RenderCommand(stage *domain.StageDef, b Binding) ([]string, error) {
	argv := []string{stage.Tool}
	values := b.Params.Values()

	for i, arg := range stage.Command.Args {
		switch arg.Source {
		case domain.ArgInput:
			tok, ok := b.Inputs[arg.Ref]
			if !ok {
				return nil, NewValidationError(stage.Name, "command",
					fmt.Sprintf("arg %d: input %q is not bound", i, arg.Ref), ErrUnboundInput)
			}
			argv = appendFlag(argv, arg.Flag, tok.Paths()...)

		case domain.ArgOutput:
			paths, ok := b.Outputs[arg.Ref]
			if !ok || len(paths) == 0 {
				return nil, NewValidationError(stage.Name, "command",
					fmt.Sprintf("arg %d: output %q has no path", i, arg.Ref), ErrUnboundOutput)
			}
			argv = appendFlag(argv, arg.Flag, paths...)

		case domain.ArgParam:
			v, ok := values[arg.Ref]
			if !ok {
				return nil, NewValidationError(stage.Name, "command",
					fmt.Sprintf("arg %d: unknown parameter %q", i, arg.Ref), ErrUnknownParam)
			}
			if v == "" {
				continue
			}
			argv = appendFlag(argv, arg.Flag, v)

		case domain.ArgThreads:
			threads := b.Threads
			if threads < 1 {
				threads = 1
			}
			argv = appendFlag(argv, arg.Flag, strconv.Itoa(threads))

		case domain.ArgLiteral:
			if arg.Value == "" {
				argv = appendFlag(argv, arg.Flag)
			} else {
				argv = appendFlag(argv, arg.Flag, arg.Value)
			}

		default:
			return nil, NewValidationError(stage.Name, "command",
				fmt.Sprintf("arg %d has unknown source %q", i, arg.Source), ErrInvalidCommand)
		}
	}

	return argv, nil
}

func appendFlag(argv []string, flag string, values ...string) []string {
	if flag != "" {
		argv = append(argv, flag)
	}
	return append(argv, values...)
}

// StageThreads возвращает число потоков для стадии.
func StageThreads(stage *domain.StageDef, params domain.RunParams) int {
	if stage.Parallelism.Threads > 0 {
		return stage.Parallelism.Threads
	}
	if params.MaxCPUs > 0 {
		return params.MaxCPUs
	}
	return 1
}

// FormatCommand возвращает argv одной строкой, пригодной для копирования в shell.
func FormatCommand(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = shellQuote(a)
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`()[]{}*?;&|<>!#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// PlannedOutput — файлы, которые экземпляр обязан произвести для одного выхода.
type PlannedOutput struct {
	// Name — имя выхода.
	Name string

	// Files — имена файлов относительно рабочей директории.
	Files []string

	// SampleIDs — ключ образца для каждого файла.
	SampleIDs []string

	// Aggregate — выход образует агрегатный token.
	Aggregate bool
}

// PlanOutputs вычисляет имена файлов выходов экземпляра.
//
// Обычный выход — один файл "<sample><suffix>". PerElement выход —
// по файлу на каждый элемент collected входа с ключом образца элемента.
func PlanOutputs(stage *domain.StageDef, sampleID string, inputs map[string]domain.Token) ([]PlannedOutput, error) {
	var collected *domain.Token
	for _, in := range stage.Inputs {
		if in.Cardinality == domain.CardinalityCollected {
			if tok, ok := inputs[in.Name]; ok {
				collected = &tok
			}
		}
	}

	plans := make([]PlannedOutput, 0, len(stage.Outputs))
	for _, out := range stage.Outputs {
		plan := PlannedOutput{Name: out.Name}

		if out.PerElement {
			if collected == nil {
				return nil, NewValidationError(stage.Name, "outputs",
					fmt.Sprintf("output %s needs the collected input to be bound", out.Name), ErrUnboundInput)
			}
			plan.Aggregate = true
			for _, id := range collected.SampleIDs() {
				plan.Files = append(plan.Files, id+out.Suffix)
				plan.SampleIDs = append(plan.SampleIDs, id)
			}
		} else {
			plan.Files = []string{sampleID + out.Suffix}
			plan.SampleIDs = []string{sampleID}
		}

		plans = append(plans, plan)
	}

	return plans, nil
}
