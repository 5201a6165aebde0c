package httpapi

import "net/http"

// handleJobStats: GET /jobs/stats (spec §4.F: scheduler, cache, database
// sub-documents).
func (h *Handler) handleJobStats(w http.ResponseWriter, r *http.Request) {
	dbStats, err := h.store.AggregateStats(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeSuccessRaw(w, http.StatusOK, map[string]any{
		"scheduler": h.sched.GetStats(),
		"cache":     h.cache.Stats(),
		"database":  dbStats,
		"recentRuns": h.sched.RecentRuns(),
	})
}
