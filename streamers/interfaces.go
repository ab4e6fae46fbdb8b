package streamers

import "lectern/checkpoint"

// SessionHandler receives the ordered progress events of one reasoning
// session. Implementations render them live (terminal, websocket) or
// persist them; emission order always matches the loop's state
// transitions.
type SessionHandler interface {
	// Thinking is emitted when a reasoning step starts.
	Thinking(step int)

	// ToolSelected is emitted when the reasoning step has chosen an action.
	ToolSelected(step int, tool string, args string)

	// ToolExecuting is emitted just before the tool handler runs.
	ToolExecuting(tool string)

	// ToolResult is emitted with the observation; err is non-nil for failed
	// observations (the loop usually continues past those).
	ToolResult(tool string, result string, err error)

	// DelegateStarted/DelegateCompleted bracket a delegated sub-task; events
	// the sub-session emits in between arrive relabeled via a mode-scoped
	// handler.
	DelegateStarted(mode string, subtask string)
	DelegateCompleted(mode string, err error)

	// Synthesizing is emitted when the loop starts composing the final
	// message.
	Synthesizing()

	// Message delivers the final human-readable message, then MessageEnd
	// closes the stream.
	Message(content string)
	MessageEnd()

	// AskUser is emitted when the loop needs a follow-up from the caller.
	AskUser(question string)

	// Error terminates the stream.
	Error(err error)
}

// TaskHandler receives the lifecycle events of a batch task.
type TaskHandler interface {
	TaskStarted(taskID string, totalItems int)
	TaskResumed(taskID string, alreadyCompleted int)

	ItemStarted(taskID, itemID string, index int)
	ItemCompleted(taskID, itemID string, summary string)
	ItemFailed(taskID, itemID string, err error)
	ItemSkipped(taskID, itemID string)

	// Progress is emitted after every checkpoint write.
	Progress(p checkpoint.Progress)

	SynthesisStarted(taskID string)
	TaskCompleted(taskID string, failedItems int)
	TaskFailed(taskID string, err error)
}

// NullSessionHandler discards all events.
type NullSessionHandler struct{}

func (NullSessionHandler) Thinking(int)                        {}
func (NullSessionHandler) ToolSelected(int, string, string)    {}
func (NullSessionHandler) ToolExecuting(string)                {}
func (NullSessionHandler) ToolResult(string, string, error)    {}
func (NullSessionHandler) DelegateStarted(string, string)      {}
func (NullSessionHandler) DelegateCompleted(string, error)     {}
func (NullSessionHandler) Synthesizing()                       {}
func (NullSessionHandler) Message(string)                      {}
func (NullSessionHandler) MessageEnd()                         {}
func (NullSessionHandler) AskUser(string)                      {}
func (NullSessionHandler) Error(error)                         {}

// NullTaskHandler discards all events.
type NullTaskHandler struct{}

func (NullTaskHandler) TaskStarted(string, int)              {}
func (NullTaskHandler) TaskResumed(string, int)              {}
func (NullTaskHandler) ItemStarted(string, string, int)      {}
func (NullTaskHandler) ItemCompleted(string, string, string) {}
func (NullTaskHandler) ItemFailed(string, string, error)     {}
func (NullTaskHandler) ItemSkipped(string, string)           {}
func (NullTaskHandler) Progress(checkpoint.Progress)         {}
func (NullTaskHandler) SynthesisStarted(string)              {}
func (NullTaskHandler) TaskCompleted(string, int)            {}
func (NullTaskHandler) TaskFailed(string, error)             {}
