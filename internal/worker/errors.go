package worker

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки воркера.
var (
	// ErrUnknownBuiltin — нет executor'а для builtin стадии.
	ErrUnknownBuiltin = errors.New("unknown builtin stage")

	// ErrToolNotFound — исполняемый файл инструмента не найден.
	ErrToolNotFound = errors.New("tool executable not found")

	// ErrToolFailed — инструмент завершился с ненулевым кодом.
	ErrToolFailed = errors.New("tool exited with non-zero status")

	// ErrMissingOutput — объявленный выход не создан.
	ErrMissingOutput = errors.New("declared output missing")

	// ErrEmptyOutput — объявленный выход пустой.
	ErrEmptyOutput = errors.New("declared output is empty")

	// ErrPublish — не удалось опубликовать выход.
	ErrPublish = errors.New("publish output failed")
)

// StageError — ошибка выполнения экземпляра стадии.
//
// Содержит имя стадии, образец (для per-item экземпляров)
// и диагностику инструмента.
type StageError struct {
	Stage    string // имя стадии
	SampleID string // ключ образца экземпляра
	ExitCode int    // код выхода инструмента (-1, если процесс не запускался)
	Stderr   string // хвост stderr инструмента
	WorkDir  string // рабочая директория экземпляра
	Err      error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *StageError) Error() string {
	var sb strings.Builder
	sb.WriteString("stage ")
	sb.WriteString(e.Stage)
	if e.SampleID != "" {
		sb.WriteString(" (sample ")
		sb.WriteString(e.SampleID)
		sb.WriteString(")")
	}
	sb.WriteString(" failed: ")
	sb.WriteString(e.Err.Error())
	if e.ExitCode > 0 {
		sb.WriteString(fmt.Sprintf(" (exit code %d)", e.ExitCode))
	}
	if e.Stderr != "" {
		sb.WriteString("\n")
		sb.WriteString(e.Stderr)
	}
	return sb.String()
}

// Unwrap возвращает базовую ошибку.
func (e *StageError) Unwrap() error {
	return e.Err
}

// IsStageError проверяет, является ли ошибка ошибкой выполнения стадии.
func IsStageError(err error) bool {
	var se *StageError
	return errors.As(err, &se)
}
