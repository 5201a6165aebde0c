package httpapi

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/cronkit/scheduler/internal/apperror"
)

// pathUUID validates the {id} path parameter as a v4 UUID (spec §6:
// "UUID path parameters MUST be validated as v4; malformed returns 400
// with field:\"id\"").
func pathUUID(r *http.Request) (uuid.UUID, error) {
	raw := r.PathValue("id")
	id, err := uuid.Parse(raw)
	if err != nil || id.Version() != 4 {
		return uuid.Nil, apperror.Validation("invalid id", apperror.FieldDetail{
			Field: "id", Message: "must be a v4 UUID", RejectedValue: raw,
		})
	}
	return id, nil
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryBoolPtr(r *http.Request, key string) *bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}
