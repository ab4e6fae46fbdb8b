package agent

import (
	"context"
	"fmt"

	"lectern/streamers"
)

// delegate runs a subtask in another mode. The sub-session inherits the
// parent's owner and scope but is restricted to the target mode's tool
// subset; its answer folds back into the parent loop as an observation.
func (l *Loop) delegate(ctx context.Context, modeName, subtask string) (string, error) {
	target, ok := l.modes.Get(modeName)
	if !ok {
		return "", &DelegationError{Mode: modeName, Err: fmt.Errorf("unknown mode")}
	}

	allowed := false
	for _, d := range l.mode.Delegates {
		if d == modeName {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", &DelegationError{Mode: modeName, Err: fmt.Errorf("mode '%s' may not delegate to '%s'", l.mode.Name, modeName)}
	}

	l.handler.DelegateStarted(modeName, subtask)

	subSess, err := l.sess.Fork(modeName)
	if err != nil {
		delErr := &DelegationError{Mode: modeName, Err: err}
		l.handler.DelegateCompleted(modeName, delErr)
		return "", delErr
	}

	subLoop := NewLoop(l.provider, l.model, l.registry, l.modes, target, subSess,
		&delegateHandler{parent: l.handler, mode: modeName},
		WithLoopLogger(l.logger.With("delegate", modeName)))

	result, err := subLoop.Run(ctx, subtask)
	if err != nil {
		delErr := &DelegationError{Mode: modeName, Err: err}
		l.handler.DelegateCompleted(modeName, delErr)
		return "", delErr
	}
	if result.Outcome == OutcomeNeedsInput {
		// A delegate has no user to ask; treat it as a failed subtask.
		delErr := &DelegationError{Mode: modeName, Err: fmt.Errorf("delegate asked for input: %s", result.Question)}
		l.handler.DelegateCompleted(modeName, delErr)
		return "", delErr
	}

	l.handler.DelegateCompleted(modeName, nil)
	return result.Answer, nil
}

// delegateHandler relabels a sub-session's events with the delegated mode
// name and swallows its terminal message, which reaches the parent as an
// observation instead.
type delegateHandler struct {
	parent streamers.SessionHandler
	mode   string
}

func (h *delegateHandler) Thinking(step int) {
	h.parent.Thinking(step)
}

func (h *delegateHandler) ToolSelected(step int, tool string, args string) {
	h.parent.ToolSelected(step, h.mode+":"+tool, args)
}

func (h *delegateHandler) ToolExecuting(tool string) {
	h.parent.ToolExecuting(h.mode + ":" + tool)
}

func (h *delegateHandler) ToolResult(tool string, result string, err error) {
	h.parent.ToolResult(h.mode+":"+tool, result, err)
}

func (h *delegateHandler) DelegateStarted(mode string, subtask string) {
	h.parent.DelegateStarted(mode, subtask)
}

func (h *delegateHandler) DelegateCompleted(mode string, err error) {
	h.parent.DelegateCompleted(mode, err)
}

func (h *delegateHandler) Synthesizing() {}

func (h *delegateHandler) Message(string) {}

func (h *delegateHandler) MessageEnd() {}

func (h *delegateHandler) AskUser(string) {}

func (h *delegateHandler) Error(error) {}
