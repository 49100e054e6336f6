package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/toolcrib/gaugetrack/pkg/gauge"
)

// errorResponse is the JSON envelope for rejected requests.
type errorResponse struct {
	Code    string `json:"code,omitempty"`
	GaugeID string `json:"gaugeId,omitempty"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError maps the engine's typed errors onto HTTP statuses.
// Contention surfaces as 503 so clients know the request is retryable.
func writeDomainError(w http.ResponseWriter, err error) {
	var de *gauge.Error
	if !errors.As(err, &de) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, statusFor(de.Code), errorResponse{
		Code:    string(de.Code),
		GaugeID: de.GaugeID,
		Error:   de.Message,
	})
}

func statusFor(code gauge.Code) int {
	switch code {
	case gauge.CodeNotFound:
		return http.StatusNotFound
	case gauge.CodeSpecMismatch, gauge.CodeOwnershipMismatch:
		return http.StatusUnprocessableEntity
	case gauge.CodeAlreadyCompanioned, gauge.CodeInvalidState,
		gauge.CodeDuplicateIdentifier, gauge.CodeMissingCertificate:
		return http.StatusConflict
	case gauge.CodeContention:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// decodeOptional decodes a body that may legitimately be absent.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == io.EOF {
		return nil
	}
	return err
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
