package mockapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const maxBodySize = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeDetail writes a {"detail": msg} body, the shape the backend uses for
// non-field errors.
func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// writeFieldErrors writes a field-keyed validation error body.
func writeFieldErrors(w http.ResponseWriter, fields map[string][]string) {
	writeJSON(w, http.StatusBadRequest, fields)
}

func decodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeDetail(w, http.StatusBadRequest, "JSON parse error")
		}
		return req, false
	}
	return req, true
}
