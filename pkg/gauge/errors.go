package gauge

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Code is a machine-readable classification of a rejected operation.
type Code string

const (
	CodeSpecMismatch        Code = "SPEC_MISMATCH"
	CodeOwnershipMismatch   Code = "OWNERSHIP_MISMATCH"
	CodeAlreadyCompanioned  Code = "ALREADY_COMPANIONED"
	CodeInvalidState        Code = "INVALID_STATE"
	CodeDuplicateIdentifier Code = "DUPLICATE_IDENTIFIER"
	CodeMissingCertificate  Code = "MISSING_CERTIFICATE"
	CodeNotFound            Code = "NOT_FOUND"
	// CodeContention marks lock-timeout or deadlock conditions from the
	// store. Callers may retry the whole operation.
	CodeContention Code = "CONTENTION"
)

// Error is a structured rejection. Every rejected operation names the
// specific offending gauge and rule.
type Error struct {
	Code    Code   `json:"code"`
	GaugeID string `json:"gaugeId,omitempty"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// NewError builds a typed domain error.
func NewError(code Code, gaugeID, message string) *Error {
	return &Error{Code: code, GaugeID: gaugeID, Message: message}
}

// CodeOf extracts the domain code from an error chain.
// Returns the empty Code for non-domain errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsCode reports whether err carries the given domain code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Retryable reports whether err is a contention condition the caller may
// safely retry.
func Retryable(err error) bool {
	return IsCode(err, CodeContention)
}

// contentionMarkers are substrings of driver errors that indicate a lock
// timeout or deadlock rather than a data problem. Covers PostgreSQL
// (40P01 deadlock, 55P03 lock not available), MySQL and SQLite wording.
var contentionMarkers = []string{
	"deadlock",
	"40p01",
	"55p03",
	"lock wait timeout",
	"could not obtain lock",
	"database is locked",
	"database table is locked",
}

// classifyStoreError maps a raw storage error onto the domain taxonomy.
// Record-not-found becomes NotFound against the given gauge id, lock
// contention becomes the retryable Contention code, and anything else
// propagates unchanged.
func classifyStoreError(err error, gaugeID string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NewError(CodeNotFound, gaugeID, "gauge "+gaugeID+" not found")
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range contentionMarkers {
		if strings.Contains(msg, marker) {
			return NewError(CodeContention, gaugeID, "storage contention, retry: "+err.Error())
		}
	}
	return err
}
