// Package dataflow реализует каналы и операторы потока token'ов.
//
// # Обзор
//
// Данные пайплайна моделируются как потоки token'ов (domain.Token),
// текущие по именованным каналам от стадии-производителя к стадиям-потребителям.
// Пакет содержит примитивы синхронизации, на которых держится корректность
// ветвления и повторного схождения графа:
//
//   - Channel   — emit / first / drain для дисциплин queue, fork и broadcast
//   - Collector — barrier collect на заранее известное количество элементов
//   - Flatten   — развёртка агрегата в элементы с сохранением порядка
//   - Pairer    — сопоставление per_item входов стадии по ключу образца
//
// # Однописательская дисциплина
//
// Ни один тип пакета не защищён мьютексом. Каналы мутирует только
// координатор планировщика (orchestrator) от имени завершившегося
// экземпляра стадии; сами экземпляры каналов не видят.
//
// # Нарушения протокола
//
// Все нарушения инвариантов возвращаются как *ProtocolError и
// удовлетворяют errors.Is(err, ErrProtocolViolation):
//
//   - второй token в broadcast канале (ErrBroadcastOverflow)
//   - broadcast канал закрыт пустым (ErrBroadcastEmpty)
//   - barrier получил лишний элемент (ErrBarrierOverflow)
//   - upstream barrier закрылся раньше (ErrBarrierShort)
//   - ключи образцов не совпали при сопоставлении (ErrPairMismatch)
//
// Это дефекты топологии, а не ошибки инструментов; планировщик
// сообщает их отдельно и останавливает run.
package dataflow
