// Package scheduler перезапускает пайплайн по cron-расписанию.
//
// Структура:
//   - scheduler.go — цикл Scheduler (Start, Tick, Run)
//   - cron.go      — разбор cron-выражений и вычисление следующего срока
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Schedule: domain.NewSchedule("nightly", "0 2 * * *", "Europe/Moscow"),
//	    Run:      runOnce,
//	    Store:    scheduleRepo, // опционально
//	    Logger:   logger,
//	})
//	err = sched.Run(ctx)
//
// С Store состояние расписания переживает перезапуск процесса,
// а spectra schedule disable <name> ставит его на паузу.
package scheduler
