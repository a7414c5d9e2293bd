package mq

import "errors"

// Ошибки MQ.
var (
	// ErrNoChannel — AMQP канал недоступен (соединение восстанавливается).
	ErrNoChannel = errors.New("no amqp channel available")

	// ErrClosed — соединение закрыто вызовом Close.
	ErrClosed = errors.New("amqp connection closed")
)
