package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/Spectra/internal/domain"
)

// precursorChargeKey — производный ключ "min:max".
const precursorChargeKey = "precursor_charge"

// LoadParams собирает параметры запуска: значения по умолчанию,
// затем YAML файл (если задан), затем переопределения key=value.
// Результат проверяется RunParams.Validate.
func LoadParams(file string, overrides []string) (domain.RunParams, error) {
	params := domain.DefaultParams()

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return params, fmt.Errorf("read params file: %w", err)
		}
		if err := decodeYAML(data, &params); err != nil {
			return params, fmt.Errorf("params file %s: %w", file, err)
		}
	}

	if err := ApplyOverrides(&params, overrides); err != nil {
		return params, err
	}

	if err := params.Validate(); err != nil {
		return params, err
	}
	return params, nil
}

// decodeYAML разбирает YAML в params; неизвестные ключи — ошибка.
func decodeYAML(data []byte, params *domain.RunParams) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(params); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}
	return nil
}

// ApplyOverrides применяет переопределения вида key=value.
// Значения приводятся к типу поля (mapstructure, weakly typed).
func ApplyOverrides(params *domain.RunParams, overrides []string) error {
	if len(overrides) == 0 {
		return nil
	}

	values := make(map[string]any, len(overrides))
	for _, o := range overrides {
		key, value, ok := strings.Cut(o, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fmt.Errorf("%w: override %q is not key=value", ErrInvalidParam, o)
		}
		if !domain.IsParamKey(key) {
			return fmt.Errorf("%w: unknown parameter %q", ErrInvalidParam, key)
		}

		if key == precursorChargeKey {
			lo, hi, ok := strings.Cut(value, ":")
			if !ok {
				return fmt.Errorf("%w: %s must be min:max", ErrInvalidParam, key)
			}
			values["min_precursor_charge"] = lo
			values["max_precursor_charge"] = hi
			continue
		}
		values[key] = value
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           params,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(values); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}
	return nil
}
