// Package repo хранит историю runs в PostgreSQL.
//
// Таблицы:
//   - runs            — runs пайплайна и их итоговый статус
//   - stage_instances — экземпляры стадий с входами, выходами и кодом выхода
//   - schedules       — расписания spectra schedule
//
// Схема создаётся встроенными миграциями (Migrate, spectra migrate).
// История необязательна: без DB_URL оркестратор её не пишет.
package repo
