package agent

import "fmt"

// LoopDetectedError reports that the model chose the identical action twice
// in a row, which never produces new information.
type LoopDetectedError struct {
	Tool string
	Step int
}

func (e *LoopDetectedError) Error() string {
	return fmt.Sprintf("reasoning stalled at step %d: '%s' repeated with identical arguments", e.Step, e.Tool)
}

// MaxIterationsError reports that the loop hit its iteration cap without a
// terminal decision.
type MaxIterationsError struct {
	Limit int
}

func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("iteration cap of %d reached without a final answer", e.Limit)
}

// DelegationError wraps a failed delegated sub-task.
type DelegationError struct {
	Mode string
	Err  error
}

func (e *DelegationError) Error() string {
	return fmt.Sprintf("delegated '%s' task failed: %v", e.Mode, e.Err)
}

func (e *DelegationError) Unwrap() error {
	return e.Err
}

// ParseError reports model output that could not be read as a decision, even
// after the bounded repair re-prompt.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable model decision: %s", e.Reason)
}
