package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Spectra/internal/domain"
	"github.com/shaiso/Spectra/internal/engine"
	"github.com/shaiso/Spectra/internal/orchestrator"
	"github.com/shaiso/Spectra/internal/repo"
)

// RunStore — история runs (реализуется repo.RunRepo).
type RunStore interface {
	List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
}

// InstanceStore — история экземпляров (реализуется repo.InstanceRepo).
type InstanceStore interface {
	ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.Instance, error)
}

// ScheduleStore — расписания (реализуется repo.ScheduleRepo).
type ScheduleStore interface {
	List(ctx context.Context) ([]domain.Schedule, error)
}

// ActiveRunSource — снимки выполняющихся runs.
type ActiveRunSource interface {
	ActiveRuns() []orchestrator.ActiveRun
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	runRepo      RunStore
	instanceRepo InstanceStore
	scheduleRepo ScheduleStore
	active       ActiveRunSource
	dag          *engine.DAG
	metrics      http.Handler
	logger       *slog.Logger
}

// Config — конфигурация для создания Handler.
//
// Все зависимости кроме DAG опциональны: без хранилищ
// соответствующие endpoints отвечают 503.
type Config struct {
	RunRepo      RunStore
	InstanceRepo InstanceStore
	ScheduleRepo ScheduleStore
	Active       ActiveRunSource
	DAG          *engine.DAG
	Metrics      http.Handler
	Logger       *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		runRepo:      cfg.RunRepo,
		instanceRepo: cfg.InstanceRepo,
		scheduleRepo: cfg.ScheduleRepo,
		active:       cfg.Active,
		dag:          cfg.DAG,
		metrics:      cfg.Metrics,
		logger:       logger,
	}
}

// Healthz отвечает ok.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
