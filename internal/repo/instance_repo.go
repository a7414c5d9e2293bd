package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Spectra/internal/domain"
)

// InstanceRepo — история экземпляров стадий.
type InstanceRepo struct {
	pool *pgxpool.Pool
}

// NewInstanceRepo создаёт новый InstanceRepo.
func NewInstanceRepo(pool *pgxpool.Pool) *InstanceRepo {
	return &InstanceRepo{pool: pool}
}

// Upsert сохраняет экземпляр: вставляет новый или обновляет состояние.
func (r *InstanceRepo) Upsert(ctx context.Context, inst *domain.Instance) error {
	inputsJSON, err := json.Marshal(inst.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}
	outputsJSON, err := json.Marshal(inst.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}

	query := `
		INSERT INTO stage_instances (id, run_id, stage, sample_id, seq, status, workdir,
		                             exit_code, error, inputs, outputs, started_at,
		                             finished_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    workdir = EXCLUDED.workdir,
		    exit_code = EXCLUDED.exit_code,
		    error = EXCLUDED.error,
		    outputs = EXCLUDED.outputs,
		    started_at = EXCLUDED.started_at,
		    finished_at = EXCLUDED.finished_at
	`
	_, err = r.pool.Exec(ctx, query,
		inst.ID,
		inst.RunID,
		inst.Stage,
		inst.SampleID,
		inst.Seq,
		inst.Status,
		inst.WorkDir,
		inst.ExitCode,
		nullString(inst.Error),
		inputsJSON,
		outputsJSON,
		inst.StartedAt,
		inst.FinishedAt,
		inst.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert instance: %w", mapError(err))
	}
	return nil
}

// ListByRun возвращает экземпляры run в порядке создания.
func (r *InstanceRepo) ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.Instance, error) {
	query := `
		SELECT id, run_id, stage, sample_id, seq, status, workdir, exit_code, error,
		       inputs, outputs, started_at, finished_at, created_at
		FROM stage_instances
		WHERE run_id = $1
		ORDER BY created_at ASC, stage ASC, seq ASC
	`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var instances []domain.Instance
	for rows.Next() {
		var inst domain.Instance
		var instError *string
		var inputsJSON, outputsJSON []byte

		err := rows.Scan(
			&inst.ID,
			&inst.RunID,
			&inst.Stage,
			&inst.SampleID,
			&inst.Seq,
			&inst.Status,
			&inst.WorkDir,
			&inst.ExitCode,
			&instError,
			&inputsJSON,
			&outputsJSON,
			&inst.StartedAt,
			&inst.FinishedAt,
			&inst.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}

		if instError != nil {
			inst.Error = *instError
		}
		if err := json.Unmarshal(inputsJSON, &inst.Inputs); err != nil {
			return nil, fmt.Errorf("unmarshal inputs: %w", err)
		}
		if err := json.Unmarshal(outputsJSON, &inst.Outputs); err != nil {
			return nil, fmt.Errorf("unmarshal outputs: %w", err)
		}

		instances = append(instances, inst)
	}
	return instances, rows.Err()
}
