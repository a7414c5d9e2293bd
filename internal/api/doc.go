// Package api содержит HTTP API состояния Spectra.
//
// API только для чтения и поднимается рядом с /metrics
// (spectra run --metrics-addr):
//   - GET /healthz, GET /metrics
//   - GET /api/v1/stages, GET /api/v1/graph — граф пайплайна
//   - GET /api/v1/active — прогресс выполняющихся runs
//   - GET /api/v1/runs, /runs/{id}, /runs/{id}/instances — история (DB_URL)
//   - GET /api/v1/schedules — сохранённые расписания (DB_URL)
//
// Структура:
//   - handler.go          — Handler и интерфейсы хранилищ
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — ответы API
//   - run_handler.go      — обработчики для /runs и /active
//   - schedule_handler.go — обработчики для /schedules
//   - pipeline_handler.go — обработчики для /stages и /graph
package api
