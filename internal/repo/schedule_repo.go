package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Spectra/internal/domain"
)

// ScheduleRepo — расписания повторных запусков.
type ScheduleRepo struct {
	pool *pgxpool.Pool
}

// NewScheduleRepo создаёт новый ScheduleRepo.
func NewScheduleRepo(pool *pgxpool.Pool) *ScheduleRepo {
	return &ScheduleRepo{pool: pool}
}

const scheduleColumns = `id, name, cron_expr, timezone, enabled, next_due_at,
	last_run_at, last_run_id, runs`

// Save создаёт расписание или обновляет существующее с тем же именем.
func (r *ScheduleRepo) Save(ctx context.Context, s *domain.Schedule) error {
	query := `
		INSERT INTO schedules (` + scheduleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (name) DO UPDATE
		SET cron_expr = EXCLUDED.cron_expr,
		    timezone = EXCLUDED.timezone,
		    enabled = EXCLUDED.enabled,
		    next_due_at = EXCLUDED.next_due_at,
		    last_run_at = EXCLUDED.last_run_at,
		    last_run_id = EXCLUDED.last_run_id,
		    runs = EXCLUDED.runs
		RETURNING id
	`
	err := r.pool.QueryRow(ctx, query,
		s.ID,
		s.Name,
		s.CronExpr,
		s.Timezone,
		s.Enabled,
		s.NextDueAt,
		s.LastRunAt,
		s.LastRunID,
		s.Runs,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	return nil
}

// GetByName возвращает расписание по имени.
func (r *ScheduleRepo) GetByName(ctx context.Context, name string) (*domain.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE name = $1`
	return scanSchedule(r.pool.QueryRow(ctx, query, name))
}

// List возвращает все расписания по имени.
func (r *ScheduleRepo) List(ctx context.Context) ([]domain.Schedule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *s)
	}
	return schedules, rows.Err()
}

// SetEnabled включает/выключает расписание.
func (r *ScheduleRepo) SetEnabled(ctx context.Context, name string, enabled bool) error {
	result, err := r.pool.Exec(ctx, `UPDATE schedules SET enabled = $2 WHERE name = $1`, name, enabled)
	if err != nil {
		return fmt.Errorf("set enabled: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSchedule(row pgx.Row) (*domain.Schedule, error) {
	var s domain.Schedule
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.CronExpr,
		&s.Timezone,
		&s.Enabled,
		&s.NextDueAt,
		&s.LastRunAt,
		&s.LastRunID,
		&s.Runs,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	return &s, nil
}
