package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Spectra/internal/domain"
)

// cronParser — парсер cron-выражений (5 полей и дескрипторы @daily, @every 1h).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CalculateNextDue вычисляет следующее время запуска после from.
// Учитывает timezone schedule; результат в UTC.
func CalculateNextDue(sched *domain.Schedule, from time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(sched.Timezone)
	if err != nil {
		// Fallback на UTC если timezone невалидный
		loc = time.UTC
	}

	schedule, err := cronParser.Parse(sched.CronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", sched.CronExpr, err)
	}
	return schedule.Next(from.In(loc)).UTC(), nil
}

// Validate проверяет cron-выражение и timezone расписания.
func Validate(sched *domain.Schedule) error {
	if _, err := cronParser.Parse(sched.CronExpr); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidCron, sched.CronExpr, err)
	}
	if _, err := time.LoadLocation(sched.Timezone); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTimezone, sched.Timezone)
	}
	return nil
}
