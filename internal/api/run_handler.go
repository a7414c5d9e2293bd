package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/Spectra/internal/domain"
	"github.com/shaiso/Spectra/internal/repo"
)

// ListRuns возвращает список runs с фильтрацией.
// GET /api/v1/runs?pipeline=...&status=...&limit=...&offset=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runRepo == nil {
		Unavailable(w, "run history is disabled")
		return
	}

	q := r.URL.Query()
	filter := repo.RunFilter{
		Pipeline: q.Get("pipeline"),
		Status:   domain.RunStatus(q.Get("status")),
		Limit:    50,
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			BadRequest(w, "invalid offset")
			return
		}
		filter.Offset = offset
	}

	runs, err := h.runRepo.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run)
	}

	List(w, result, len(result))
}

// GetRun возвращает run по ID.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.runRepo == nil {
		Unavailable(w, "run history is disabled")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.runRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunFromDomain(*run))
}

// ListRunInstances возвращает экземпляры стадий run.
// GET /api/v1/runs/{id}/instances
func (h *Handler) ListRunInstances(w http.ResponseWriter, r *http.Request) {
	if h.instanceRepo == nil {
		Unavailable(w, "run history is disabled")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	instances, err := h.instanceRepo.ListByRun(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	result := make([]InstanceResponse, len(instances))
	for i, inst := range instances {
		result[i] = InstanceFromDomain(inst)
	}

	List(w, result, len(result))
}

// ListActiveRuns возвращает выполняющиеся runs с прогрессом.
// GET /api/v1/active
func (h *Handler) ListActiveRuns(w http.ResponseWriter, _ *http.Request) {
	result := []ActiveRunResponse{}
	if h.active != nil {
		for _, a := range h.active.ActiveRuns() {
			result = append(result, ActiveRunFromOrchestrator(a))
		}
	}
	List(w, result, len(result))
}
