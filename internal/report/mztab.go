package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Префиксы строк mzTab.
const (
	prefixComment  = "COM"
	prefixMetadata = "MTD"
	prefixPRH      = "PRH"
	prefixPRT      = "PRT"
	prefixPEH      = "PEH"
	prefixPEP      = "PEP"
	prefixPSH      = "PSH"
	prefixPSM      = "PSM"
)

// Row — строка секции mzTab (колонка заголовка → значение).
type Row map[string]string

// Section — табличная секция mzTab.
type Section struct {
	Header []string
	Rows   []Row
}

// MzTab — разобранный mzTab файл.
type MzTab struct {
	// Metadata — пары ключ/значение секции MTD в порядке появления ключей.
	Metadata map[string]string
	keys     []string

	Proteins Section
	Peptides Section
	PSMs     Section
}

// MetadataKeys возвращает ключи MTD в порядке появления.
func (m *MzTab) MetadataKeys() []string {
	return append([]string(nil), m.keys...)
}

// ReadMzTab разбирает mzTab файл по пути.
func ReadMzTab(path string) (*MzTab, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mztab: %w", err)
	}
	defer f.Close()
	return ParseMzTab(f)
}

// ParseMzTab разбирает mzTab по префиксу строки.
//
// Заголовки PRH/PEH/PSH задают колонки для PRT/PEP/PSM.
// Пустые строки, комментарии и неизвестные секции пропускаются.
func ParseMzTab(r io.Reader) (*MzTab, error) {
	m := &MzTab{Metadata: make(map[string]string)}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}

		fields := strings.Split(text, "\t")
		var err error
		switch fields[0] {
		case prefixMetadata:
			if len(fields) >= 3 {
				key := fields[1]
				if _, seen := m.Metadata[key]; !seen {
					m.keys = append(m.keys, key)
				}
				m.Metadata[key] = fields[2]
			}
		case prefixPRH:
			m.Proteins.Header = fields[1:]
		case prefixPEH:
			m.Peptides.Header = fields[1:]
		case prefixPSH:
			m.PSMs.Header = fields[1:]
		case prefixPRT:
			err = m.Proteins.add(fields[1:])
		case prefixPEP:
			err = m.Peptides.add(fields[1:])
		case prefixPSM:
			err = m.PSMs.add(fields[1:])
		}
		if err != nil {
			return nil, fmt.Errorf("line %d (%s): %w", line, fields[0], err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read mztab: %w", err)
	}

	if len(m.Metadata) == 0 {
		return nil, ErrNoMetadata
	}
	return m, nil
}

func (s *Section) add(values []string) error {
	if s.Header == nil {
		return ErrMissingHeader
	}
	if len(values) != len(s.Header) {
		return fmt.Errorf("%w: %d vs %d", ErrColumnCount, len(values), len(s.Header))
	}
	row := make(Row, len(values))
	for i, col := range s.Header {
		row[col] = values[i]
	}
	s.Rows = append(s.Rows, row)
	return nil
}

// Columns возвращает колонки заголовка с указанным префиксом.
func (s *Section) Columns(prefix string) []string {
	var cols []string
	for _, h := range s.Header {
		if strings.HasPrefix(h, prefix) {
			cols = append(cols, h)
		}
	}
	return cols
}
