package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunSummary — итоговая сводка run.
//
// Сводка принадлежит координатору планировщика: только он вызывает
// Record* методы, поэтому сводка не требует синхронизации.
// Execute возвращает её вызывающему коду.
type RunSummary struct {
	RunID      uuid.UUID      `json:"run_id"`
	Pipeline   string         `json:"pipeline"`
	Status     RunStatus      `json:"status"`
	Samples    []string       `json:"samples"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	DurationMS int64          `json:"duration_ms"`
	Stages     []StageSummary `json:"stages"`
	Published  []string       `json:"published"`

	// Error — описание ошибки, завершившей run.
	Error string `json:"error,omitempty"`

	// ErrorKind — "stage", "protocol", "cancelled" или "internal".
	ErrorKind string `json:"error_kind,omitempty"`

	// FailedStage и FailedSample указывают на упавший экземпляр.
	FailedStage  string `json:"failed_stage,omitempty"`
	FailedSample string `json:"failed_sample,omitempty"`

	index map[string]int
}

// StageSummary — агрегированная статистика по стадии.
type StageSummary struct {
	Name       string `json:"name"`
	Tool       string `json:"tool"`
	Instances  int    `json:"instances"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	DurationMS int64  `json:"duration_ms"`
}

// NewRunSummary создаёт сводку с перечнем стадий в топологическом порядке.
func NewRunSummary(run *Run, stages []StageDef) *RunSummary {
	s := &RunSummary{
		RunID:     run.ID,
		Pipeline:  run.Pipeline,
		Status:    run.Status,
		Samples:   append([]string(nil), run.Samples...),
		StartedAt: time.Now(),
		Stages:    make([]StageSummary, len(stages)),
		Published: make([]string, 0),
		index:     make(map[string]int, len(stages)),
	}
	for i, st := range stages {
		s.Stages[i] = StageSummary{Name: st.Name, Tool: st.Tool}
		s.index[st.Name] = i
	}
	return s
}

// RecordInstance учитывает завершённый экземпляр.
func (s *RunSummary) RecordInstance(inst *Instance) {
	i, ok := s.index[inst.Stage]
	if !ok {
		return
	}
	st := &s.Stages[i]
	st.Instances++
	st.DurationMS += inst.Duration().Milliseconds()
	switch inst.Status {
	case InstanceStatusSucceeded:
		st.Succeeded++
	case InstanceStatusFailed:
		st.Failed++
	}
}

// RecordPublished добавляет опубликованные пути.
func (s *RunSummary) RecordPublished(paths ...string) {
	s.Published = append(s.Published, paths...)
}

// Stage возвращает сводку по стадии.
func (s *RunSummary) Stage(name string) (StageSummary, bool) {
	i, ok := s.index[name]
	if !ok {
		return StageSummary{}, false
	}
	return s.Stages[i], true
}

// Finish фиксирует финальный статус run.
func (s *RunSummary) Finish(run *Run) {
	s.Status = run.Status
	s.FinishedAt = time.Now()
	if run.StartedAt != nil {
		s.StartedAt = *run.StartedAt
	}
	if run.FinishedAt != nil {
		s.FinishedAt = *run.FinishedAt
	}
	s.DurationMS = s.FinishedAt.Sub(s.StartedAt).Milliseconds()
	if run.Error != "" && s.Error == "" {
		s.Error = run.Error
	}
}
