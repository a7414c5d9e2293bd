package dataflow

import (
	"errors"
	"strings"
)

// ErrProtocolViolation — общий признак нарушения протокола канала.
// Любая *ProtocolError удовлетворяет errors.Is(err, ErrProtocolViolation).
var ErrProtocolViolation = errors.New("protocol violation")

// Конкретные нарушения протокола.
var (
	// ErrBroadcastOverflow — в broadcast канал эмитирован второй token.
	ErrBroadcastOverflow = errors.New("second value emitted into broadcast channel")

	// ErrBroadcastEmpty — broadcast канал закрыт без значения.
	ErrBroadcastEmpty = errors.New("broadcast channel closed without a value")

	// ErrBarrierOverflow — barrier получил элемент сверх ожидаемого количества.
	ErrBarrierOverflow = errors.New("barrier received more items than expected")

	// ErrBarrierShort — upstream закрылся, не доставив ожидаемое количество.
	ErrBarrierShort = errors.New("barrier upstream closed before expected count")

	// ErrNotAggregate — flatten применён к обычному token.
	ErrNotAggregate = errors.New("flatten of a non-aggregate token")

	// ErrPairMismatch — ключи образцов во входах стадии не совпали.
	ErrPairMismatch = errors.New("sample key mismatch between paired inputs")

	// ErrEmitAfterClose — эмит в закрытый канал.
	ErrEmitAfterClose = errors.New("emit into closed channel")

	// ErrConsumerConflict — второй потребитель у queue канала
	// или чтение канала неподходящим способом.
	ErrConsumerConflict = errors.New("channel consumer conflict")
)

// ProtocolError — нарушение инварианта канала или barrier.
//
// Нарушение протокола означает дефект топологии, а не ошибку
// инструмента или данных, поэтому сообщается отдельно от ошибок стадий.
type ProtocolError struct {
	Channel string // канал, где обнаружено нарушение
	Stage   string // стадия-потребитель, если известна
	Message string // подробности
	Err     error  // конкретная причина (ErrBarrierOverflow и т.д.)
}

// Error реализует интерфейс error.
func (e *ProtocolError) Error() string {
	var b strings.Builder
	b.WriteString("protocol violation")
	if e.Stage != "" {
		b.WriteString(" in stage " + e.Stage)
	}
	if e.Channel != "" {
		b.WriteString(" on channel " + e.Channel)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	if e.Message != "" {
		b.WriteString(" (" + e.Message + ")")
	}
	return b.String()
}

// Unwrap возвращает конкретную причину.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Is сопоставляет ошибку с ErrProtocolViolation.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocolViolation
}

// newProtocolError создаёт ProtocolError.
func newProtocolError(channel, stage, message string, err error) *ProtocolError {
	return &ProtocolError{
		Channel: channel,
		Stage:   stage,
		Message: message,
		Err:     err,
	}
}

// IsProtocolError проверяет, является ли err нарушением протокола.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrProtocolViolation)
}
