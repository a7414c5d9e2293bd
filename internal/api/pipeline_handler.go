package api

import (
	"net/http"

	"github.com/shaiso/Spectra/internal/engine"
)

// ListStages возвращает стадии графа в топологическом порядке.
// GET /api/v1/stages
func (h *Handler) ListStages(w http.ResponseWriter, _ *http.Request) {
	result := make([]StageResponse, 0, h.dag.Size())
	for _, node := range h.dag.Order {
		deps := make([]string, len(node.DependsOn))
		for i, d := range node.DependsOn {
			deps[i] = d.ID
		}
		result = append(result, StageResponse{
			Name:      node.ID,
			Tool:      node.Stage.Tool,
			Kind:      string(node.Stage.Kind),
			Width:     node.Width.String(),
			DependsOn: deps,
		})
	}

	List(w, result, len(result))
}

// GetGraph возвращает топологию в синтаксисе Mermaid.
// GET /api/v1/graph
func (h *Handler) GetGraph(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(engine.RenderMermaid(h.dag)))
}
