package orchestrator

import (
	"errors"

	"github.com/shaiso/Spectra/internal/dataflow"
)

// Ошибки оркестратора.
var (
	// ErrNoSamples — run без образцов.
	ErrNoSamples = errors.New("run has no samples")

	// ErrMissingSource — для источника каталога не переданы token'ы.
	ErrMissingSource = errors.New("source has no tokens")

	// ErrRunAlreadyActive — run уже выполняется.
	ErrRunAlreadyActive = errors.New("run already being processed")

	// ErrInstanceCount — стадия получила не то количество наборов входов,
	// которое следует из ширины графа.
	ErrInstanceCount = errors.New("stage instance count differs from graph width")

	// ErrOutputNotProduced — экземпляр не вернул token объявленного выхода.
	ErrOutputNotProduced = errors.New("instance result lacks a declared output")

	// ErrStalled — нет выполняющихся экземпляров, но run не завершён.
	ErrStalled = errors.New("run stalled with unfinished stages")
)

// Виды ошибок run для сводки.
const (
	ErrorKindStage     = "stage"
	ErrorKindProtocol  = "protocol"
	ErrorKindCancelled = "cancelled"
	ErrorKindInternal  = "internal"
)

// protocolError оборачивает ошибку планировщика в нарушение протокола.
func protocolError(stage, message string, err error) error {
	return &dataflow.ProtocolError{Stage: stage, Message: message, Err: err}
}
