package report

import "errors"

// Ошибки разбора mzTab и построения отчёта.
var (
	// ErrMissingHeader — строка данных раньше заголовка своей секции.
	ErrMissingHeader = errors.New("mztab data row before section header")

	// ErrColumnCount — число колонок строки не совпадает с заголовком.
	ErrColumnCount = errors.New("mztab row column count differs from header")

	// ErrNoMetadata — в файле нет секции MTD.
	ErrNoMetadata = errors.New("mztab has no metadata section")

	// ErrMissingInput — отчёту не передан mzTab.
	ErrMissingInput = errors.New("report input is not bound")
)
