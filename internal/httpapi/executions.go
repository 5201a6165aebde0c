package httpapi

import "net/http"

// handleListExecutions: GET /jobs/:id/executions (spec §4.F: paginated,
// default limit=20, capped at 100, order started_at DESC).
func (h *Handler) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)
	if limit > maxListLimit {
		limit = maxListLimit
	}

	result, err := h.repo.ListExecutions(r.Context(), id, page, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"executions": result.Executions,
		"pagination": newPagination(result.Page, result.Limit, result.Total, result.TotalPages),
	})
}
