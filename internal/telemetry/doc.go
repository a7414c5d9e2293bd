// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики выполнения стадий
//
// Метрики отдаются на /metrics, если задан --metrics-addr.
package telemetry
