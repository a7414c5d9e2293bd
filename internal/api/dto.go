package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Spectra/internal/domain"
	"github.com/shaiso/Spectra/internal/orchestrator"
)

// RunResponse — run в ответе API.
type RunResponse struct {
	ID         uuid.UUID  `json:"id"`
	Pipeline   string     `json:"pipeline"`
	Status     string     `json:"status"`
	Samples    []string   `json:"samples"`
	OutDir     string     `json:"outdir"`
	Trigger    string     `json:"trigger,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMS int64      `json:"duration_ms"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r domain.Run) RunResponse {
	return RunResponse{
		ID:         r.ID,
		Pipeline:   r.Pipeline,
		Status:     string(r.Status),
		Samples:    r.Samples,
		OutDir:     r.OutDir,
		Trigger:    r.Trigger,
		Error:      r.Error,
		CreatedAt:  r.CreatedAt,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMS: r.Duration().Milliseconds(),
	}
}

// InstanceResponse — экземпляр стадии в ответе API.
type InstanceResponse struct {
	ID         uuid.UUID  `json:"id"`
	Stage      string     `json:"stage"`
	SampleID   string     `json:"sample_id"`
	Seq        int        `json:"seq"`
	Status     string     `json:"status"`
	ExitCode   int        `json:"exit_code"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// InstanceFromDomain конвертирует domain.Instance в InstanceResponse.
func InstanceFromDomain(i domain.Instance) InstanceResponse {
	return InstanceResponse{
		ID:         i.ID,
		Stage:      i.Stage,
		SampleID:   i.SampleID,
		Seq:        i.Seq,
		Status:     string(i.Status),
		ExitCode:   i.ExitCode,
		Error:      i.Error,
		StartedAt:  i.StartedAt,
		FinishedAt: i.FinishedAt,
	}
}

// ActiveRunResponse — выполняющийся run.
type ActiveRunResponse struct {
	RunID     uuid.UUID `json:"run_id"`
	Pipeline  string    `json:"pipeline"`
	Samples   int       `json:"samples"`
	StartedAt time.Time `json:"started_at"`
	Total     int       `json:"instances_total"`
	Completed int       `json:"instances_completed"`
	Running   int       `json:"instances_running"`
	Pending   int       `json:"instances_pending"`
	Failed    int       `json:"instances_failed"`
}

// ActiveRunFromOrchestrator конвертирует снимок orchestrator.
func ActiveRunFromOrchestrator(a orchestrator.ActiveRun) ActiveRunResponse {
	return ActiveRunResponse{
		RunID:     a.RunID,
		Pipeline:  a.Pipeline,
		Samples:   a.Samples,
		StartedAt: a.StartedAt,
		Total:     a.Stats.Total,
		Completed: a.Stats.Completed,
		Running:   a.Stats.Running,
		Pending:   a.Stats.Pending,
		Failed:    a.Stats.Failed,
	}
}

// ScheduleResponse — расписание в ответе API.
type ScheduleResponse struct {
	Name      string     `json:"name"`
	CronExpr  string     `json:"cron_expr"`
	Timezone  string     `json:"timezone"`
	Enabled   bool       `json:"enabled"`
	Runs      int        `json:"runs"`
	NextDueAt *time.Time `json:"next_due_at,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastRunID *uuid.UUID `json:"last_run_id,omitempty"`
}

// ScheduleFromDomain конвертирует domain.Schedule в ScheduleResponse.
func ScheduleFromDomain(s domain.Schedule) ScheduleResponse {
	return ScheduleResponse{
		Name:      s.Name,
		CronExpr:  s.CronExpr,
		Timezone:  s.Timezone,
		Enabled:   s.Enabled,
		Runs:      s.Runs,
		NextDueAt: s.NextDueAt,
		LastRunAt: s.LastRunAt,
		LastRunID: s.LastRunID,
	}
}

// StageResponse — стадия графа с шириной.
type StageResponse struct {
	Name      string   `json:"name"`
	Tool      string   `json:"tool"`
	Kind      string   `json:"kind"`
	Width     string   `json:"width"`
	DependsOn []string `json:"depends_on"`
}
