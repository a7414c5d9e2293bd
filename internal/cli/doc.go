// Package cli реализует инструмент командной строки Spectra.
//
// # Обзор
//
// CLI запускает пайплайн в текущем процессе: собирает параметры и
// входы, строит граф, выполняет run через orchestrator и печатает
// сводку. Инфраструктура подключается переменными окружения и
// каждая часть опциональна:
//   - DB_URL       — история runs и расписаний (PostgreSQL)
//   - RABBITMQ_URL — события runs и экземпляров
//   - REDIS_URL    — блокировка выходного каталога
//
// # Ключевые компоненты
//
// ## Pipeline
//
// Сборка и выполнение одного run. Используется командами run и
// schedule run.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) и логи — в stderr.
// Это позволяет использовать pipe: spectra stages --json | jq .
//
// ## Commands
//
//   - run, validate, graph, stages — пайплайн
//   - history: list, show — история runs
//   - events — поток событий RabbitMQ
//   - schedule: run, list, enable, disable — запуск по cron
//   - migrate: up, down, version — схема истории
//
// Каждая команда создаётся фабричной функцией (NewRunCmd и т.д.),
// принимающей outputFn — замыкание для ленивого создания Output
// после парсинга PersistentFlags.
package cli
