// Package worker выполняет отдельные экземпляры стадий.
//
// # Обзор
//
// Worker получает от планировщика экземпляр со связанными входами и:
//
//   - Создаёт рабочую директорию <workdir>/<stage>/<sample>-<id>
//   - Рендерит типизированную команду (engine.RenderCommand)
//   - Запускает executor: ProcessExecutor для tool стадий или
//     зарегистрированный builtin executor
//   - Проверяет, что все объявленные выходы существуют и непусты
//   - Публикует выходы в <outdir>/<stage>/ и возвращает token'ы
//
// # Executor
//
// Интерфейс для выполнения экземпляра:
//
//	type Executor interface {
//	    Execute(ctx context.Context, req *Request) (*ExecutionResult, error)
//	}
//
// ProcessExecutor пишет в рабочую директорию:
//
//	.command.sh   — команда в виде shell-скрипта
//	.command.out  — stdout инструмента
//	.command.err  — stderr инструмента
//	.exitcode     — код выхода
//
// # Ошибки
//
// Ошибки выполнения возвращаются как *StageError с именем стадии,
// образцом, кодом выхода и хвостом stderr. Повторных попыток нет.
package worker
