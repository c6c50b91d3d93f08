package types

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the engine's error taxonomy per the error handling
// design: planner errors abort the run before execution; executor errors
// are classified locally per node and never abort the run (except
// StoreError, which is fatal).
type ErrorKind string

const (
	ErrParse                ErrorKind = "parse_error"
	ErrChildRunbookNotFound ErrorKind = "child_runbook_not_found"
	ErrChildRunbookInvalid  ErrorKind = "child_runbook_invalid"
	ErrCircularRunbook      ErrorKind = "circular_runbook"
	ErrInvalidPath          ErrorKind = "invalid_path"
	ErrMissingInputMapping  ErrorKind = "missing_input_mapping"
	ErrUnknownInputMapping  ErrorKind = "unknown_input_mapping"
	ErrInvalidOutputMapping ErrorKind = "invalid_output_mapping"
	ErrCyclicDependency     ErrorKind = "cyclic_dependency"
	ErrSchemaIncompatible   ErrorKind = "schema_incompatible"
	ErrProducerNotFound     ErrorKind = "producer_not_found"

	ErrArtifactNotFound  ErrorKind = "artifact_not_found"
	ErrReuseTargetMissing ErrorKind = "reuse_target_missing"
	ErrSchemaViolation    ErrorKind = "schema_violation"
	ErrProducerError      ErrorKind = "producer_error"
	ErrTimeout            ErrorKind = "timeout"
	ErrBudgetExceeded     ErrorKind = "budget_exceeded"
	ErrStoreError         ErrorKind = "store_error"
)

// IsPlanError reports whether a kind is raised by the planner (and so
// surfaces to the caller before any execution happens, maps to CLI exit
// code 3, and is never written to the store).
func (k ErrorKind) IsPlanError() bool {
	switch k {
	case ErrParse, ErrChildRunbookNotFound, ErrChildRunbookInvalid,
		ErrCircularRunbook, ErrInvalidPath, ErrMissingInputMapping,
		ErrUnknownInputMapping, ErrInvalidOutputMapping,
		ErrCyclicDependency, ErrSchemaIncompatible, ErrProducerNotFound:
		return true
	default:
		return false
	}
}

// EngineError is the engine's single structured error type. Kind drives
// programmatic classification (CLI exit codes, retry/skip decisions);
// Message is the human-readable detail; Detail carries kind-specific
// context (a cycle's member ids, a schema-incompatible pair, a path)
// formatted for display.
type EngineError struct {
	Kind    ErrorKind
	Message string
	Detail  []string
}

func (e *EngineError) Error() string {
	if len(e.Detail) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Detail)
}

// NewError constructs an EngineError with optional detail strings.
func NewError(kind ErrorKind, message string, detail ...string) *EngineError {
	return &EngineError{Kind: kind, Message: message, Detail: detail}
}

// KindOf extracts the ErrorKind from err if it is (or wraps) an
// *EngineError, returning ("", false) otherwise.
func KindOf(err error) (ErrorKind, bool) {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind, true
	}
	return "", false
}
