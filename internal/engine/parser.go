package engine

import (
	"fmt"
	"sort"

	"github.com/shaiso/Spectra/internal/domain"
)

// Допустимые виды стадий.
var validStageKinds = map[domain.StageKind]bool{
	domain.StageKindTool:    true,
	domain.StageKindBuiltin: true,
}

// Допустимые кардинальности входов.
var validCardinalities = map[domain.Cardinality]bool{
	domain.CardinalityBroadcast: true,
	domain.CardinalityPerItem:   true,
	domain.CardinalityCollected: true,
}

// Допустимые дисциплины каналов.
var validChannelKinds = map[domain.ChannelKind]bool{
	domain.ChannelQueue:     true,
	domain.ChannelFork:      true,
	domain.ChannelBroadcast: true,
}

// Validate выполняет структурную валидацию каталога.
//
// Проверяет:
// - Наличие стадий
// - Корректность источников
// - Уникальность имён стадий, входов и выходов
// - Корректность видов, кардинальностей и дисциплин
// - Ссылки CommandSpec на входы, выходы и параметры
//
// Связывание каналов, циклы и ширины проверяет BuildDAG.
func Validate(cat *domain.Catalog) error {
	if cat == nil || len(cat.Stages) == 0 {
		return NewValidationError("", "stages", "catalog has no stages", ErrEmptyCatalog)
	}

	for i := range cat.Sources {
		if err := validateSource(&cat.Sources[i]); err != nil {
			return err
		}
	}

	names := make(map[string]bool)
	for _, src := range cat.Sources {
		names[src.Name] = true
	}

	for i := range cat.Stages {
		if err := ValidateStage(&cat.Stages[i], names); err != nil {
			return err
		}
	}

	return nil
}

// ValidateStage валидирует одну стадию.
// names — уже встреченные имена стадий и источников (для проверки уникальности).
func ValidateStage(stage *domain.StageDef, names map[string]bool) error {
	if stage.Name == "" {
		return NewValidationError("", "name", "stage has empty name", ErrEmptyStageName)
	}

	if names[stage.Name] {
		return NewValidationError(stage.Name, "name",
			fmt.Sprintf("duplicate stage name: %s", stage.Name), ErrDuplicateStage)
	}
	names[stage.Name] = true

	if !validStageKinds[stage.Kind] {
		return NewValidationError(stage.Name, "kind",
			fmt.Sprintf("unknown stage kind: %q", stage.Kind), ErrUnknownStageKind)
	}

	if stage.Kind == domain.StageKindTool && stage.Tool == "" {
		return NewValidationError(stage.Name, "tool", "tool stage has no tool", ErrMissingTool)
	}

	if err := validateInputs(stage); err != nil {
		return err
	}

	if err := validateOutputs(stage); err != nil {
		return err
	}

	return validateCommand(stage)
}

// validateSource проверяет объявление источника.
func validateSource(src *domain.SourceDef) error {
	if src.Name == "" || src.Channel == "" {
		return NewValidationError(src.Name, "sources", "source needs a name and a channel", ErrInvalidSource)
	}
	if !validChannelKinds[src.Kind] {
		return NewValidationError(src.Name, "sources",
			fmt.Sprintf("unknown channel kind: %q", src.Kind), ErrUnknownCardinality)
	}
	if src.Kind == domain.ChannelBroadcast && src.PerSample {
		return NewValidationError(src.Name, "sources",
			"per-sample source cannot feed a broadcast channel", ErrCardinalityMismatch)
	}
	return nil
}

// validateInputs проверяет входы стадии.
func validateInputs(stage *domain.StageDef) error {
	if len(stage.Inputs) == 0 {
		return NewValidationError(stage.Name, "inputs", "stage has no inputs", ErrNoInputs)
	}

	seen := make(map[string]bool)
	collected := 0
	perItem := 0

	for _, in := range stage.Inputs {
		if in.Name == "" || in.Channel == "" {
			return NewValidationError(stage.Name, "inputs", "input needs a name and a channel", ErrMissingChannel)
		}
		if seen[in.Name] {
			return NewValidationError(stage.Name, "inputs",
				fmt.Sprintf("duplicate input name: %s", in.Name), ErrDuplicateName)
		}
		seen[in.Name] = true

		if !validCardinalities[in.Cardinality] {
			return NewValidationError(stage.Name, "inputs",
				fmt.Sprintf("input %s: unknown cardinality %q", in.Name, in.Cardinality), ErrUnknownCardinality)
		}

		if in.Flatten && in.Cardinality != domain.CardinalityPerItem {
			return NewValidationError(stage.Name, "inputs",
				fmt.Sprintf("input %s: flatten requires per_item cardinality", in.Name), ErrCardinalityMismatch)
		}

		switch in.Cardinality {
		case domain.CardinalityCollected:
			collected++
		case domain.CardinalityPerItem:
			perItem++
		}
	}

	if collected > 1 {
		return NewValidationError(stage.Name, "inputs",
			"stage has more than one collected input", ErrCardinalityMismatch)
	}
	if collected > 0 && perItem > 0 {
		return NewValidationError(stage.Name, "inputs",
			"stage mixes collected and per_item inputs", ErrCardinalityMismatch)
	}

	return nil
}

// validateOutputs проверяет выходы стадии.
func validateOutputs(stage *domain.StageDef) error {
	if len(stage.Outputs) == 0 {
		return NewValidationError(stage.Name, "outputs", "stage has no outputs", ErrNoOutputs)
	}

	hasCollected := false
	for _, in := range stage.Inputs {
		if in.Cardinality == domain.CardinalityCollected {
			hasCollected = true
		}
	}

	seen := make(map[string]bool)
	for _, out := range stage.Outputs {
		if out.Name == "" || out.Channel == "" {
			return NewValidationError(stage.Name, "outputs", "output needs a name and a channel", ErrMissingChannel)
		}
		if seen[out.Name] {
			return NewValidationError(stage.Name, "outputs",
				fmt.Sprintf("duplicate output name: %s", out.Name), ErrDuplicateName)
		}
		seen[out.Name] = true

		if !validChannelKinds[out.Kind] {
			return NewValidationError(stage.Name, "outputs",
				fmt.Sprintf("output %s: unknown channel kind %q", out.Name, out.Kind), ErrUnknownCardinality)
		}
		if out.Suffix == "" {
			return NewValidationError(stage.Name, "outputs",
				fmt.Sprintf("output %s has no file suffix", out.Name), ErrInvalidCommand)
		}
		if out.PerElement && !hasCollected {
			return NewValidationError(stage.Name, "outputs",
				fmt.Sprintf("output %s: per_element requires a collected input", out.Name), ErrCardinalityMismatch)
		}
	}

	return nil
}

// validateCommand проверяет ссылки аргументов команды.
func validateCommand(stage *domain.StageDef) error {
	for i, arg := range stage.Command.Args {
		switch arg.Source {
		case domain.ArgInput:
			if _, ok := stage.Input(arg.Ref); !ok {
				return NewValidationError(stage.Name, "command",
					fmt.Sprintf("arg %d references unknown input %q", i, arg.Ref), ErrInvalidCommand)
			}
		case domain.ArgOutput:
			if _, ok := stage.Output(arg.Ref); !ok {
				return NewValidationError(stage.Name, "command",
					fmt.Sprintf("arg %d references unknown output %q", i, arg.Ref), ErrInvalidCommand)
			}
		case domain.ArgParam:
			if !domain.IsParamKey(arg.Ref) {
				return NewValidationError(stage.Name, "command",
					fmt.Sprintf("arg %d references unknown parameter %q", i, arg.Ref), ErrUnknownParam)
			}
		case domain.ArgThreads:
		case domain.ArgLiteral:
			if arg.Value == "" && arg.Flag == "" {
				return NewValidationError(stage.Name, "command",
					fmt.Sprintf("arg %d is an empty literal", i), ErrInvalidCommand)
			}
		default:
			return NewValidationError(stage.Name, "command",
				fmt.Sprintf("arg %d has unknown source %q", i, arg.Source), ErrInvalidCommand)
		}
	}
	return nil
}

// IsValidCardinality проверяет, является ли кардинальность допустимой.
func IsValidCardinality(c domain.Cardinality) bool {
	return validCardinalities[c]
}

// GetValidChannelKinds возвращает список допустимых дисциплин каналов.
func GetValidChannelKinds() []string {
	kinds := make([]string, 0, len(validChannelKinds))
	for k := range validChannelKinds {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	return kinds
}
