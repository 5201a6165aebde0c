package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cronkit/scheduler/internal/apperror"
)

// envelope is the success/timestamp wrapper every response body carries
// (spec §6: "Every response body carries success (bool) and timestamp").
type envelope struct {
	Success   bool  `json:"success"`
	Timestamp string `json:"timestamp"`
	Data      any   `json:"data,omitempty"`
}

// errorEnvelope matches spec §6's validation-error shape, generalized to
// every non-2xx response (spec §7: "a short error kind, a human-readable
// message, optional details, and timestamp").
type errorEnvelope struct {
	Success   bool                   `json:"success"`
	Error     string                 `json:"error"`
	Message   string                 `json:"message"`
	Details   []apperror.FieldDetail `json:"details,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// pagination is the envelope spec §6 mandates for every paginated endpoint.
type pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

func newPagination(page, limit int, total int64, totalPages int) pagination {
	return pagination{
		Page: page, Limit: limit, Total: total, TotalPages: totalPages,
		HasNext: page < totalPages,
		HasPrev: page > 1,
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Timestamp: nowISO(), Data: data})
}

// writeSuccessRaw writes top-level fields directly into the envelope rather
// than nesting under "data", for endpoints whose response shape is
// spec-mandated flat (job stats, cron validation).
func writeSuccessRaw(w http.ResponseWriter, status int, fields map[string]any) {
	body := map[string]any{"success": true, "timestamp": nowISO()}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func writeError(w http.ResponseWriter, status int, kind, message string, details []apperror.FieldDetail) {
	writeJSON(w, status, errorEnvelope{
		Success: false, Error: kind, Message: message, Details: details, Timestamp: nowISO(),
	})
}

// writeAppError maps an apperror.Kind to its HTTP status (spec §7) and
// writes the error envelope.
func writeAppError(w http.ResponseWriter, err error) {
	ae, ok := err.(*apperror.Error)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Internal Error", err.Error(), nil)
		return
	}
	switch ae.Kind {
	case apperror.KindValidation:
		writeError(w, http.StatusBadRequest, "Validation Error", ae.Message, ae.Details)
	case apperror.KindNotFound:
		writeError(w, http.StatusNotFound, "Not Found", ae.Message, nil)
	case apperror.KindTransient:
		writeError(w, http.StatusServiceUnavailable, "Service Unavailable", ae.Message, nil)
	case apperror.KindTimeout:
		writeError(w, http.StatusGatewayTimeout, "Timeout", ae.Message, nil)
	case apperror.KindFatalConfig:
		writeError(w, http.StatusInternalServerError, "Configuration Error", ae.Message, nil)
	default:
		writeError(w, http.StatusInternalServerError, "Internal Error", ae.Message, nil)
	}
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// withAuth wraps next with a bearer-token check (JWT_SECRET env var per
// spec §6). An empty authToken disables the check entirely — the same
// "no auth configured" convention as the teacher's tokenMatch.
func (h *Handler) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.authToken != "" && !tokenMatch(extractBearerToken(r), h.authToken) {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid bearer token", nil)
			return
		}
		next(w, r)
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

func tokenMatch(provided, expected string) bool {
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}
