package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

// maxErrorBody caps how much of an error response is buffered.
const maxErrorBody = 64 << 10

// nonFieldErrors is the key validation errors not tied to a field use.
const nonFieldErrors = "non_field_errors"

// APIError is returned for every non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	// Detail is the server's "detail" or "error" message, if any.
	Detail string
	// Body is the raw response body.
	Body []byte
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// FieldErrors decodes a field-keyed validation body such as
// {"username": ["already taken"], "password": "too short"}. The map is
// returned as the server sent it, without interpretation. Returns nil when
// the body is not a JSON object.
func (e *APIError) FieldErrors() map[string][]string {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(e.Body, &raw); err != nil {
		return nil
	}
	out := make(map[string][]string, len(raw))
	for field, v := range raw {
		var list []string
		if err := json.Unmarshal(v, &list); err == nil {
			out[field] = list
			continue
		}
		var single string
		if err := json.Unmarshal(v, &single); err == nil {
			out[field] = []string{single}
			continue
		}
		out[field] = []string{string(v)}
	}
	return out
}

// Message returns a human-readable message for the failure, preferring the
// server's detail, then a flattened field-error map, then fallback.
func (e *APIError) Message(fallback string) string {
	if e.Detail != "" {
		return e.Detail
	}
	if fields := e.FieldErrors(); len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			msg := strings.Join(fields[k], " ")
			if k != nonFieldErrors {
				msg = k + ": " + msg
			}
			parts = append(parts, msg)
		}
		return strings.Join(parts, "; ")
	}
	var s string
	if err := json.Unmarshal(e.Body, &s); err == nil && s != "" {
		return s
	}
	return fallback
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// Message extracts a user-facing message from any error returned by the
// client, falling back to fallback when the server sent nothing usable.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message(fallback)
	}
	if err != nil {
		return err.Error()
	}
	return fallback
}

func newAPIError(method, path string, resp *http.Response) *APIError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	e := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: body}

	var detail struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &detail); err == nil {
		e.Detail = detail.Detail
		if e.Detail == "" {
			e.Detail = detail.Error
		}
	}
	return e
}
