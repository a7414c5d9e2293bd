package api

import "net/http"

// ListSchedules возвращает сохранённые расписания.
// GET /api/v1/schedules
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	if h.scheduleRepo == nil {
		Unavailable(w, "schedule store is disabled")
		return
	}

	schedules, err := h.scheduleRepo.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ScheduleResponse, len(schedules))
	for i, s := range schedules {
		result[i] = ScheduleFromDomain(s)
	}

	List(w, result, len(result))
}
