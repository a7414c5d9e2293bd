package config

import (
	"errors"

	"github.com/shaiso/Spectra/internal/domain"
)

// Ошибки конфигурации run. Обнаруживаются до сборки графа.
var (
	// ErrMissingSpectra — не задан --spectra.
	ErrMissingSpectra = errors.New("spectra input pattern is required")

	// ErrMissingDatabase — не задан или не найден --database.
	ErrMissingDatabase = errors.New("protein database is required")

	// ErrBadGlob — некорректный шаблон --spectra.
	ErrBadGlob = errors.New("malformed spectra pattern")

	// ErrNoSpectraMatched — шаблон не нашёл ни одного файла.
	ErrNoSpectraMatched = errors.New("spectra pattern matched no files")

	// ErrDuplicateSample — два входа дают одинаковый ключ образца.
	ErrDuplicateSample = errors.New("duplicate sample id")

	// ErrInvalidSample — пустой или зарезервированный ключ образца.
	ErrInvalidSample = errors.New("invalid sample id")

	// ErrInvalidParam — неизвестный ключ или недопустимое значение параметра.
	ErrInvalidParam = domain.ErrInvalidParam
)
