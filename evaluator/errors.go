package evaluator

import "fmt"

// QueryFormulationError reports a generator failure during the analyze stage.
// It is recovered by the bounded retry loop.
type QueryFormulationError struct {
	Phase string
	Err   error
}

func (e *QueryFormulationError) Error() string {
	return fmt.Sprintf("query formulation (%s phase): %v", e.Phase, e.Err)
}

func (e *QueryFormulationError) Unwrap() error { return e.Err }

// ResearchValidationError reports that a research pass produced unusable
// output: an empty query, too few turns, or no references section. It is
// recovered by routing back to the analyze stage.
type ResearchValidationError struct {
	Reason string
	Output string
}

func (e *ResearchValidationError) Error() string {
	return fmt.Sprintf("research validation: %s", e.Reason)
}

// ReferenceParseError reports a malformed references block. It is soft: the
// stage degrades to zero extracted references instead of aborting.
type ReferenceParseError struct {
	Reason string
}

func (e *ReferenceParseError) Error() string {
	return fmt.Sprintf("reference parse: %s", e.Reason)
}

// SynthesisError reports a failure in a hypothesis or treatment sub-step.
// It is not retried; the run fails.
type SynthesisError struct {
	Stage string
	Err   error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis (%s): %v", e.Stage, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// EvaluationError is the terminal failure surfaced to the caller when no
// final report could be produced.
type EvaluationError struct {
	SessionID string
	Err       error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation %s failed: %v", e.SessionID, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }
