package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Spectra/internal/domain"
	"github.com/shaiso/Spectra/internal/repo"
)

// RunFunc запускает один run пайплайна и возвращает его ID.
// Блокирует до завершения run.
type RunFunc func(ctx context.Context) (uuid.UUID, error)

// Store — хранилище состояния расписания.
type Store interface {
	Save(ctx context.Context, s *domain.Schedule) error
	GetByName(ctx context.Context, name string) (*domain.Schedule, error)
}

// Config — конфигурация Scheduler.
type Config struct {
	// Schedule — расписание (обязательно).
	Schedule *domain.Schedule

	// Run — запуск пайплайна (обязателен).
	Run RunFunc

	// Store — опционально; сохраняет next_due_at и счётчики,
	// а также позволяет выключить расписание из другого процесса.
	Store Store

	// Logger — логгер (по умолчанию slog.Default()).
	Logger *slog.Logger

	// Now — источник времени (для тестов).
	Now func() time.Time
}

// Scheduler запускает пайплайн по cron-расписанию.
//
// Run выполняются последовательно: следующий срок вычисляется
// после завершения run, пропущенные за это время сроки не догоняются.
type Scheduler struct {
	sched  *domain.Schedule
	run    RunFunc
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// New создаёт Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Schedule == nil || cfg.Run == nil {
		return nil, errors.New("scheduler requires schedule and run func")
	}
	if err := Validate(cfg.Schedule); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Scheduler{
		sched:  cfg.Schedule,
		run:    cfg.Run,
		store:  cfg.Store,
		logger: cfg.Logger.With("schedule", cfg.Schedule.Name),
		now:    cfg.Now,
	}, nil
}

// Schedule возвращает текущее состояние расписания.
func (s *Scheduler) Schedule() *domain.Schedule {
	return s.sched
}

// Start подготавливает расписание: подтягивает сохранённое
// состояние из Store и вычисляет первый срок.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.store != nil {
		stored, err := s.store.GetByName(ctx, s.sched.Name)
		switch {
		case err == nil:
			s.sched.ID = stored.ID
			s.sched.Runs = stored.Runs
			s.sched.LastRunAt = stored.LastRunAt
			s.sched.LastRunID = stored.LastRunID
		case errors.Is(err, repo.ErrNotFound):
		default:
			return fmt.Errorf("load schedule: %w", err)
		}
	}

	next, err := CalculateNextDue(s.sched, s.now())
	if err != nil {
		return err
	}
	s.sched.NextDueAt = &next
	s.sched.Enabled = true

	if err := s.save(ctx); err != nil {
		return err
	}
	s.logger.Info("schedule armed", "cron", s.sched.CronExpr, "timezone", s.sched.Timezone, "next_due_at", next)
	return nil
}

// Tick запускает run, если срок наступил.
// Возвращает true, если run был запущен.
// Ошибка run не останавливает расписание.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	if err := s.refresh(ctx); err != nil {
		return false, err
	}

	now := s.now()
	if !s.sched.IsDue(now) {
		return false, nil
	}

	s.logger.Info("schedule due, starting run", "due_at", *s.sched.NextDueAt)

	runID, runErr := s.run(ctx)
	if runErr != nil {
		s.logger.Error("scheduled run failed", "run_id", runID, "error", runErr)
	}
	if ctx.Err() != nil {
		return true, ctx.Err()
	}

	next, err := CalculateNextDue(s.sched, s.now())
	if err != nil {
		return true, err
	}
	s.sched.RecordRun(runID, next)

	if err := s.save(ctx); err != nil {
		return true, err
	}
	s.logger.Info("next scheduled run", "next_due_at", next, "runs", s.sched.Runs)
	return true, nil
}

// Run выполняет расписание до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	for {
		wait := time.Second
		if s.sched.NextDueAt != nil {
			if d := s.sched.NextDueAt.Sub(s.now()); d < wait {
				wait = max(d, 0)
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped", "runs", s.sched.Runs)
			return nil
		case <-timer.C:
		}

		if _, err := s.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			s.logger.Error("scheduler tick failed", "error", err)
		}
	}
}

// refresh подтягивает флаг enabled из Store.
func (s *Scheduler) refresh(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	stored, err := s.store.GetByName(ctx, s.sched.Name)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("refresh schedule: %w", err)
	}
	if stored.Enabled != s.sched.Enabled {
		s.logger.Info("schedule toggled", "enabled", stored.Enabled)
	}
	s.sched.Enabled = stored.Enabled
	return nil
}

func (s *Scheduler) save(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Save(ctx, s.sched); err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	return nil
}
