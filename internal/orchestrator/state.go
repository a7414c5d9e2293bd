package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shaiso/Spectra/internal/dataflow"
	"github.com/shaiso/Spectra/internal/domain"
	"github.com/shaiso/Spectra/internal/engine"
)

// RunState — состояние выполнения одного run в памяти.
//
// RunState создаётся в начале Execute и живёт до завершения run.
// Каналы и binders изменяет только горутина координатора;
// mu защищает счётчики, которые читает Stats.
//
// Содержит:
//   - Собранный DAG и каналы с token'ами
//   - Binder каждой стадии (сопоставление входов, barrier, broadcast)
//   - Очередь готовых экземпляров и счётчики выполнения
//   - Сводку run
type RunState struct {
	// Run — выполняемый run.
	Run *domain.Run

	// DAG — граф стадий.
	DAG *engine.DAG

	// Summary — сводка, которую вернёт Execute.
	Summary *domain.RunSummary

	channels map[string]*dataflow.Channel
	binders  map[string]*binder

	// expected — ожидаемое количество экземпляров стадии.
	expected map[string]int

	// succeeded — успешно завершённые экземпляры стадии.
	succeeded map[string]int

	// running — выполняющиеся экземпляры стадии.
	running      map[string]int
	totalRunning int

	// queue — готовые экземпляры, ожидающие свободного слота.
	queue []*domain.Instance

	instances []*domain.Instance
	failed    int
	seq       map[string]int

	mu sync.RWMutex
}

// RunStats — статистика выполнения run.
type RunStats struct {
	Total     int // всего созданных экземпляров
	Completed int // успешно завершённые
	Running   int // выполняются
	Failed    int // упавшие
	Pending   int // готовы, ждут слота
}

// NewRunState создаёт RunState: каналы, подписки потребителей и binders.
func NewRunState(run *domain.Run, dag *engine.DAG) (*RunState, error) {
	samples := len(run.Samples)

	s := &RunState{
		Run:       run,
		DAG:       dag,
		Summary:   domain.NewRunSummary(run, dag.StageOrder()),
		channels:  make(map[string]*dataflow.Channel, len(dag.Channels)),
		binders:   make(map[string]*binder, len(dag.Nodes)),
		expected:  make(map[string]int, len(dag.Nodes)),
		succeeded: make(map[string]int, len(dag.Nodes)),
		running:   make(map[string]int, len(dag.Nodes)),
		seq:       make(map[string]int, len(dag.Nodes)),
	}

	for name, info := range dag.Channels {
		ch := dataflow.NewChannel(name, info.Kind)
		for _, c := range info.Consumers {
			if err := ch.Subscribe(c.Stage); err != nil {
				return nil, err
			}
		}
		s.channels[name] = ch
	}

	for _, node := range dag.Order {
		stage := node.Stage
		collectedWidth := 0
		for _, in := range stage.Inputs {
			if in.Cardinality == domain.CardinalityCollected {
				collectedWidth = dag.Channels[in.Channel].Width.Resolve(samples)
			}
		}
		s.expected[stage.Name] = node.Width.Resolve(samples)
		s.binders[stage.Name] = newBinder(stage, s.expected[stage.Name], collectedWidth)
	}

	return s, nil
}

// RunID возвращает ID run.
func (s *RunState) RunID() string {
	return s.Run.ID.String()
}

// Channel возвращает канал по имени.
func (s *RunState) Channel(name string) *dataflow.Channel {
	return s.channels[name]
}

// Expected возвращает ожидаемое количество экземпляров стадии.
func (s *RunState) Expected(stage string) int {
	return s.expected[stage]
}

// enqueue создаёт экземпляр для набора входов и ставит его в очередь.
func (s *RunState) enqueue(stage, sampleID string, inputs map[string]domain.Token) *domain.Instance {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst := domain.NewInstance(s.Run.ID, stage, sampleID, s.seq[stage])
	s.seq[stage]++
	inst.Inputs = inputs
	inst.MarkReady()

	s.queue = append(s.queue, inst)
	s.instances = append(s.instances, inst)
	return inst
}

// markRunning отмечает запуск экземпляра.
func (s *RunState) markRunning(inst *domain.Instance, workDir string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst.MarkRunning(workDir)
	s.running[inst.Stage]++
	s.totalRunning++
}

// markFinished отмечает завершение экземпляра и учитывает его в сводке.
// Возвращает true, если стадия выполнила все ожидаемые экземпляры.
func (s *RunState) markFinished(inst *domain.Instance) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running[inst.Stage]--
	s.totalRunning--
	s.Summary.RecordInstance(inst)

	if inst.Status == domain.InstanceStatusFailed {
		s.failed++
		return false
	}
	s.succeeded[inst.Stage]++
	return s.succeeded[inst.Stage] == s.expected[inst.Stage]
}

// takeQueue забирает очередь готовых экземпляров.
func (s *RunState) takeQueue() []*domain.Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue
	s.queue = nil
	return q
}

// requeue возвращает экземпляры, для которых не нашлось слота, в начало очереди.
func (s *RunState) requeue(insts []*domain.Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(insts, s.queue...)
}

// RunningTotal возвращает количество выполняющихся экземпляров.
func (s *RunState) RunningTotal() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalRunning
}

// RunningStage возвращает количество выполняющихся экземпляров стадии.
func (s *RunState) RunningStage(stage string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running[stage]
}

// IsComplete возвращает true, если все стадии выполнили ожидаемые экземпляры.
func (s *RunState) IsComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for stage, n := range s.expected {
		if s.succeeded[stage] != n {
			return false
		}
	}
	return true
}

// Unfinished возвращает описание незавершённых стадий ("stage 1/3").
func (s *RunState) Unfinished() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	parts := make([]string, 0)
	for stage, n := range s.expected {
		if s.succeeded[stage] != n {
			parts = append(parts, fmt.Sprintf("%s %d/%d", stage, s.succeeded[stage], n))
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

// Instances возвращает все созданные экземпляры в порядке создания.
func (s *RunState) Instances() []*domain.Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*domain.Instance(nil), s.instances...)
}

// Stats возвращает статистику выполнения.
func (s *RunState) Stats() RunStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	completed := 0
	for _, n := range s.succeeded {
		completed += n
	}

	return RunStats{
		Total:     len(s.instances),
		Completed: completed,
		Running:   s.totalRunning,
		Failed:    s.failed,
		Pending:   len(s.queue),
	}
}
