package engine

import "errors"

// Ошибки структуры каталога.
var (
	// ErrEmptyCatalog — каталог не содержит стадий.
	ErrEmptyCatalog = errors.New("catalog has no stages")

	// ErrEmptyStageName — стадия без имени.
	ErrEmptyStageName = errors.New("stage has empty name")

	// ErrDuplicateStage — несколько стадий с одинаковым именем.
	ErrDuplicateStage = errors.New("duplicate stage name")

	// ErrUnknownStageKind — неизвестный вид стадии.
	ErrUnknownStageKind = errors.New("unknown stage kind")

	// ErrMissingTool — tool-стадия без имени инструмента.
	ErrMissingTool = errors.New("tool stage has no tool")

	// ErrNoInputs — стадия без входов.
	ErrNoInputs = errors.New("stage has no inputs")

	// ErrNoOutputs — стадия без выходов.
	ErrNoOutputs = errors.New("stage has no outputs")

	// ErrDuplicateName — повтор имени входа или выхода внутри стадии.
	ErrDuplicateName = errors.New("duplicate input or output name")

	// ErrMissingChannel — вход или выход без имени или канала.
	ErrMissingChannel = errors.New("input or output has no name or channel")

	// ErrInvalidSource — некорректное объявление источника.
	ErrInvalidSource = errors.New("invalid source definition")
)

// Ошибки связывания каналов.
var (
	// ErrUnknownChannel — вход читает канал, который никто не производит.
	ErrUnknownChannel = errors.New("channel has no producer")

	// ErrDuplicateProducer — канал производится более чем одним узлом.
	ErrDuplicateProducer = errors.New("channel produced more than once")

	// ErrMultipleConsumers — у queue канала больше одного потребителя.
	ErrMultipleConsumers = errors.New("queue channel has more than one consumer")

	// ErrCyclicDependency — обнаружен цикл в зависимостях.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrSelfDependency — стадия читает собственный выход.
	ErrSelfDependency = errors.New("stage depends on itself")
)

// Ошибки кардинальности.
var (
	// ErrUnknownCardinality — неизвестная кардинальность входа или вид канала.
	ErrUnknownCardinality = errors.New("unknown cardinality")

	// ErrCardinalityMismatch — кардинальность входа несовместима с каналом.
	ErrCardinalityMismatch = errors.New("cardinality mismatch")

	// ErrWidthMismatch — per_item входы одной стадии имеют разную ширину.
	ErrWidthMismatch = errors.New("per-item inputs have different widths")

	// ErrFlattenNonAggregate — flatten из канала без агрегатов.
	ErrFlattenNonAggregate = errors.New("flatten of a non-aggregate channel")
)

// Ошибки команд.
var (
	// ErrInvalidCommand — некорректный аргумент CommandSpec.
	ErrInvalidCommand = errors.New("invalid command spec")

	// ErrUnknownParam — ссылка на неизвестный параметр запуска.
	ErrUnknownParam = errors.New("unknown run parameter")

	// ErrUnboundInput — вход не связан с token при рендеринге команды.
	ErrUnboundInput = errors.New("command input not bound")

	// ErrUnboundOutput — выход не имеет пути при рендеринге команды.
	ErrUnboundOutput = errors.New("command output not bound")
)

// ValidationError — ошибка сборки графа с контекстом.
type ValidationError struct {
	Stage   string // стадия, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Stage != "" {
		return "stage " + e.Stage + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stage, field, message string, err error) *ValidationError {
	return &ValidationError{
		Stage:   stage,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
