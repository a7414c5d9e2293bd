package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule — расписание повторного запуска пайплайна.
//
// Используется командой spectra schedule: пайплайн перезапускается
// по cron-выражению над тем же набором входов (например, когда
// в директорию регулярно докладываются новые спектры).
type Schedule struct {
	// ID — уникальный идентификатор schedule.
	ID uuid.UUID `json:"id"`

	// Name — имя расписания для удобства.
	Name string `json:"name,omitempty"`

	// CronExpr — cron-выражение.
	// Формат: "минуты часы дни месяцы дни_недели"
	// Примеры:
	//   "0 2 * * *"     — каждую ночь в 2:00
	//   "*/30 * * * *"  — каждые 30 минут
	CronExpr string `json:"cron_expr"`

	// Timezone — часовой пояс для вычисления времени.
	// По умолчанию: "UTC".
	Timezone string `json:"timezone"`

	// Enabled — флаг активности расписания.
	Enabled bool `json:"enabled"`

	// NextDueAt — время следующего запуска.
	NextDueAt *time.Time `json:"next_due_at,omitempty"`

	// LastRunAt — время последнего запуска.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// LastRunID — ID последнего созданного run.
	LastRunID *uuid.UUID `json:"last_run_id,omitempty"`

	// Runs — количество запусков по расписанию.
	Runs int `json:"runs"`
}

// NewSchedule создаёт активное расписание.
func NewSchedule(name, cronExpr, timezone string) *Schedule {
	if timezone == "" {
		timezone = "UTC"
	}
	return &Schedule{
		ID:       uuid.New(),
		Name:     name,
		CronExpr: cronExpr,
		Timezone: timezone,
		Enabled:  true,
	}
}

// IsDue проверяет, пора ли запускать.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.NextDueAt == nil {
		return false
	}
	return now.After(*s.NextDueAt) || now.Equal(*s.NextDueAt)
}

// RecordRun записывает информацию о запуске.
func (s *Schedule) RecordRun(runID uuid.UUID, nextDue time.Time) {
	now := time.Now()
	s.LastRunAt = &now
	s.LastRunID = &runID
	s.NextDueAt = &nextDue
	s.Runs++
}
