package domain

import (
	"time"

	"github.com/google/uuid"
)

// Instance — одно выполнение стадии над связанным набором входных token'ов.
//
// Instance создаётся планировщиком, когда входы стадии становятся
// удовлетворимыми, и выполняется в собственной рабочей директории.
type Instance struct {
	// ID — уникальный идентификатор экземпляра.
	ID uuid.UUID `json:"id"`

	// RunID — ссылка на родительский run.
	RunID uuid.UUID `json:"run_id"`

	// Stage — имя стадии.
	Stage string `json:"stage"`

	// SampleID — ключ образца per_item входа или MergedSample стадии.
	SampleID string `json:"sample_id"`

	// Seq — порядковый номер экземпляра внутри стадии.
	Seq int `json:"seq"`

	// Status — текущий статус.
	Status InstanceStatus `json:"status"`

	// Inputs — связанные входы (имя входа → token).
	Inputs map[string]Token `json:"inputs"`

	// Outputs — произведённые выходы (имя выхода → token).
	Outputs map[string]Token `json:"outputs,omitempty"`

	// WorkDir — изолированная рабочая директория.
	WorkDir string `json:"workdir,omitempty"`

	// ExitCode — код выхода инструмента (-1, если процесс не запускался).
	ExitCode int `json:"exit_code"`

	// Error — текст ошибки при неудаче.
	Error string `json:"error,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания экземпляра.
	CreatedAt time.Time `json:"created_at"`
}

// NewInstance создаёт экземпляр в статусе PENDING.
func NewInstance(runID uuid.UUID, stage, sampleID string, seq int) *Instance {
	return &Instance{
		ID:        uuid.New(),
		RunID:     runID,
		Stage:     stage,
		SampleID:  sampleID,
		Seq:       seq,
		Status:    InstanceStatusPending,
		Inputs:    make(map[string]Token),
		ExitCode:  -1,
		CreatedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
func (i *Instance) Duration() time.Duration {
	if i.StartedAt == nil || i.FinishedAt == nil {
		return 0
	}
	return i.FinishedAt.Sub(*i.StartedAt)
}

// IsFinished возвращает true, если экземпляр завершён.
func (i *Instance) IsFinished() bool {
	return i.Status.IsTerminal()
}

// Label возвращает человекочитаемое имя "stage[sample]".
func (i *Instance) Label() string {
	if i.SampleID == "" {
		return i.Stage
	}
	return i.Stage + "[" + i.SampleID + "]"
}

// MarkReady переводит экземпляр в READY.
func (i *Instance) MarkReady() {
	i.Status = InstanceStatusReady
}

// MarkRunning переводит экземпляр в RUNNING.
func (i *Instance) MarkRunning(workDir string) {
	now := time.Now()
	i.Status = InstanceStatusRunning
	i.WorkDir = workDir
	i.StartedAt = &now
}

// MarkSucceeded переводит экземпляр в SUCCEEDED с выходами.
func (i *Instance) MarkSucceeded(outputs map[string]Token) {
	now := time.Now()
	i.Status = InstanceStatusSucceeded
	i.FinishedAt = &now
	i.Outputs = outputs
	i.ExitCode = 0
}

// MarkFailed переводит экземпляр в FAILED с ошибкой.
func (i *Instance) MarkFailed(exitCode int, err string) {
	now := time.Now()
	if i.StartedAt == nil {
		i.StartedAt = &now
	}
	i.Status = InstanceStatusFailed
	i.FinishedAt = &now
	i.ExitCode = exitCode
	i.Error = err
}
