package agent

// DecisionKind is the action class a reasoning step chose.
type DecisionKind string

const (
	// DecisionUseTool invokes a registered tool with JSON arguments.
	DecisionUseTool DecisionKind = "use_tool"
	// DecisionDelegate hands a subtask to another mode.
	DecisionDelegate DecisionKind = "delegate"
	// DecisionFinish ends the loop with a final answer.
	DecisionFinish DecisionKind = "finish"
	// DecisionAskUser pauses the loop waiting for caller input.
	DecisionAskUser DecisionKind = "ask_user"
)

// Decision is one parsed reasoning step.
type Decision struct {
	Kind      DecisionKind
	Reasoning string

	// Tool fields, set when Kind == DecisionUseTool.
	Tool     string
	ArgsJSON string
	Args     map[string]any

	// Delegation fields, set when Kind == DecisionDelegate.
	DelegateMode string
	Subtask      string

	// Answer is the final message (DecisionFinish) and Question the follow-up
	// (DecisionAskUser).
	Answer   string
	Question string
}
