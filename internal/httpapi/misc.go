package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cronkit/scheduler/internal/cronexpr"
)

type validateCronRequest struct {
	Expression string `json:"expression"`
}

// handleValidateCron: POST /jobs/validate-cron (spec §4.F). nextRuns is
// generated by repeatedly applying nextAfter, each seeded from the prior
// result + 1 second.
func (h *Handler) handleValidateCron(w http.ResponseWriter, r *http.Request) {
	var req validateCronRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation Error", "invalid JSON body", nil)
		return
	}

	isValid := cronexpr.Validate(req.Expression)
	var nextRuns []time.Time
	if isValid {
		cursor := time.Now().UTC()
		for i := 0; i < 5; i++ {
			cursor = cronexpr.NextAfter(req.Expression, cursor)
			nextRuns = append(nextRuns, cursor)
			cursor = cursor.Add(time.Second)
		}
	}

	writeSuccessRaw(w, http.StatusOK, map[string]any{
		"isValid":    isValid,
		"expression": req.Expression,
		"nextRuns":   nextRuns,
		"timezone":   "Asia/Kolkata",
	})
}

// handleHealth: GET /health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.store.HealthCheck(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeSuccessRaw(w, code, map[string]any{
		"healthy":   status.Healthy,
		"latencyMs": status.LatencyMS,
		"uptime":    time.Since(h.startedAt).String(),
	})
}

// handleRoot: GET / — service info.
func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	status := h.store.HealthCheck(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeSuccessRaw(w, code, map[string]any{
		"service":  "cronkit-scheduler",
		"uptime":   time.Since(h.startedAt).String(),
		"timezone": "Asia/Kolkata",
	})
}
