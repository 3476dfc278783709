package workflow

import (
	"fmt"
	"strings"
)

// WorkflowErrorCode represents specific error types that can occur while
// building, composing, or resolving workflows.
type WorkflowErrorCode string

const (
	WorkflowErrorCycleDetected     WorkflowErrorCode = "cycle_detected"
	WorkflowErrorReferenceNotFound WorkflowErrorCode = "reference_not_found"
	WorkflowErrorInvalidReference  WorkflowErrorCode = "invalid_reference"
	WorkflowErrorDuplicateName     WorkflowErrorCode = "duplicate_name"
	WorkflowErrorInvalidLink       WorkflowErrorCode = "invalid_link"
	WorkflowErrorInvalidWorkflow   WorkflowErrorCode = "invalid_workflow"
	WorkflowErrorIterationMismatch WorkflowErrorCode = "iteration_mismatch"
	WorkflowErrorMissingIteration  WorkflowErrorCode = "missing_iteration_value"
	WorkflowErrorParameterNotFound WorkflowErrorCode = "parameter_not_found"
)

// WorkflowError represents an error raised by the workflow model, the
// expression resolver, or the value resolution engine.
type WorkflowError struct {
	Code    WorkflowErrorCode `json:"code"`
	Message string            `json:"message"`
	Step    string            `json:"step,omitempty"`
	Cause   error             `json:"-"`
}

// Error implements the error interface for WorkflowError
func (e *WorkflowError) Error() string {
	if e.Step != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s [step: %s]: %s (caused by: %v)", e.Code, e.Step, e.Message, e.Cause)
		}
		return fmt.Sprintf("%s [step: %s]: %s", e.Code, e.Step, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface for WorkflowError
func (e *WorkflowError) Unwrap() error {
	return e.Cause
}

// GraphCycleError is returned when the execution graph of a composite plan
// is not acyclic. It enumerates the offending cycles by plan name in
// discovery order.
type GraphCycleError struct {
	Cycles [][]string `json:"cycles"`
}

// Error implements the error interface for GraphCycleError
func (e *GraphCycleError) Error() string {
	rendered := make([]string, 0, len(e.Cycles))
	for _, cycle := range e.Cycles {
		rendered = append(rendered, strings.Join(cycle, " -> "))
	}
	return fmt.Sprintf("cycle detected in execution graph: %s", strings.Join(rendered, "; "))
}
