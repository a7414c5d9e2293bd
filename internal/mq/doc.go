// Package mq публикует события выполнения в RabbitMQ.
//
// Структура:
//   - connection.go — соединение с переподключением
//   - topology.go   — обменники и durable очереди
//   - publisher.go  — публикация событий
//   - consumer.go   — чтение событий (spectra events)
//
// События:
//   - run.started, run.finished              — spectra.runs
//   - instance.ready, instance.completed     — spectra.instances
//
// Очередь не управляет выполнением: экземпляры запускает оркестратор
// в процессе, события служат только для наблюдения.
package mq
