package httpapi

import (
	"encoding/json"
	"net/http"

	"inferd/internal/manager"
	"inferd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps a manager error to an HTTP status code. Unknown models
// and missing checkpoints are 404, an operation the serving engine
// cannot perform is 422, everything else (load failures, backend and
// network faults) is 500.
func statusFor(err error) int {
	switch {
	case manager.IsModelNotFound(err), manager.IsModelNotLoaded(err), manager.IsFileNotFound(err):
		return http.StatusNotFound
	case manager.IsUnsupportedOp(err):
		return http.StatusUnprocessableEntity
	default:
		if he, ok := err.(HTTPError); ok {
			return he.StatusCode()
		}
		return http.StatusInternalServerError
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

func writeManagerError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusFor(err), err.Error())
}
