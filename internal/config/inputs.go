package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shaiso/Spectra/internal/domain"
	"github.com/shaiso/Spectra/internal/stages"
)

// Inputs — сырые входы run.
type Inputs struct {
	// Samples — ключи образцов в порядке путей.
	Samples []string

	// Spectra — token'ы спектров (по одному на образец).
	Spectra []domain.Token

	// Database — token FASTA базы.
	Database domain.Token
}

// ResolveInputs находит спектры по шаблону и проверяет базу.
func ResolveInputs(spectraPattern, database string) (*Inputs, error) {
	if spectraPattern == "" {
		return nil, ErrMissingSpectra
	}
	if database == "" {
		return nil, ErrMissingDatabase
	}

	spectra, err := DiscoverSpectra(spectraPattern)
	if err != nil {
		return nil, err
	}

	dbPath, err := filepath.Abs(database)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingDatabase, err)
	}
	info, err := os.Stat(dbPath)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s not found", ErrMissingDatabase, database)
	}

	in := &Inputs{
		Samples:  make([]string, len(spectra)),
		Spectra:  spectra,
		Database: domain.Token{Path: dbPath, SampleID: SampleID(dbPath), Stage: stages.SourceDatabase},
	}
	for i, t := range spectra {
		in.Samples[i] = t.SampleID
	}
	return in, nil
}

// DiscoverSpectra раскрывает шаблон и строит token'ы спектров.
// Ключ образца — имя файла без расширения, ключи должны быть уникальны,
// непусты и не совпадать с stages.MergedSample.
func DiscoverSpectra(pattern string) ([]domain.Token, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBadGlob, pattern, err)
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		abs, err := filepath.Abs(m)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", m, err)
		}
		files = append(files, abs)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoSpectraMatched, pattern)
	}
	sort.Strings(files)

	seen := make(map[string]string, len(files))
	tokens := make([]domain.Token, 0, len(files))
	for _, f := range files {
		id := SampleID(f)
		switch id {
		case "":
			return nil, fmt.Errorf("%w: %s has no name before the extension", ErrInvalidSample, f)
		case stages.MergedSample:
			return nil, fmt.Errorf("%w: %q is reserved for aggregate outputs (%s)", ErrInvalidSample, id, f)
		}
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %q from %s and %s", ErrDuplicateSample, id, prev, f)
		}
		seen[id] = f
		tokens = append(tokens, domain.Token{Path: f, SampleID: id, Stage: stages.SourceSpectra})
	}
	return tokens, nil
}

// SampleID возвращает ключ образца: имя файла без расширения.
func SampleID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Sources возвращает token'ы источников каталога.
func (in *Inputs) Sources() map[string][]domain.Token {
	return map[string][]domain.Token{
		stages.SourceSpectra:  in.Spectra,
		stages.SourceDatabase: {in.Database},
	}
}
