package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — один запуск пайплайна над набором образцов.
//
// Run создаётся когда:
// - Пользователь запускает пайплайн через CLI (spectra run)
// - Scheduler запускает пайплайн по cron-расписанию
//
// Каждый run имеет собственный набор экземпляров стадий,
// рабочую директорию и директорию публикации.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// Pipeline — имя каталога стадий.
	Pipeline string `json:"pipeline"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Samples — идентификаторы образцов в порядке перечисления входов.
	Samples []string `json:"samples"`

	// Params — параметры запуска после применения переопределений.
	Params RunParams `json:"params"`

	// OutDir — корень публикации выходов.
	OutDir string `json:"outdir"`

	// WorkDir — корень рабочих директорий экземпляров.
	WorkDir string `json:"workdir"`

	// Trigger — кто запустил run: "cli" или "schedule".
	Trigger string `json:"trigger,omitempty"`

	// StartedAt — время начала выполнения (когда статус стал RUNNING).
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки, если run завершился с FAILED или CANCELLED.
	Error string `json:"error,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// NewRun создаёт run в статусе PENDING.
func NewRun(pipeline string, samples []string, params RunParams) *Run {
	return &Run{
		ID:        uuid.New(),
		Pipeline:  pipeline,
		Status:    RunStatusPending,
		Samples:   samples,
		Params:    params,
		OutDir:    params.OutDir,
		WorkDir:   params.WorkDir,
		Trigger:   "cli",
		CreatedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус RUNNING.
func (r *Run) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// MarkSucceeded переводит run в статус SUCCEEDED.
func (r *Run) MarkSucceeded() {
	now := time.Now()
	r.Status = RunStatusSucceeded
	r.FinishedAt = &now
}

// MarkFailed переводит run в статус FAILED с ошибкой.
func (r *Run) MarkFailed(err string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = err
}

// MarkCancelled переводит run в статус CANCELLED.
func (r *Run) MarkCancelled(reason string) {
	now := time.Now()
	r.Status = RunStatusCancelled
	r.FinishedAt = &now
	r.Error = reason
}
