// Package orchestrator выполняет run пайплайна над собранным DAG.
//
// Orchestrator отвечает за:
//   - Эмиссию token'ов источников в каналы графа
//   - Связывание входов стадий по ключу образца, barrier и broadcast
//   - Запуск экземпляров с ограничением MaxParallel и MaxForks стадии
//   - Закрытие каналов стадии после её последнего экземпляра
//   - Остановку run при первой ошибке экземпляра
//   - Итоговую сводку run (pipeline_info/run_summary.json)
//
// Повторных попыток нет: упавший экземпляр отменяет остальные,
// run завершается со статусом FAILED, отмена контекста — CANCELLED.
package orchestrator
