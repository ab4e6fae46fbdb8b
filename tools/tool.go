package tools

import "context"

// SideEffect classifies what a tool does to external state.
type SideEffect string

const (
	// SideEffectRead marks tools that only query collaborators.
	SideEffectRead SideEffect = "read"
	// SideEffectWrite marks tools that persist state. Their return value is
	// checked against an output schema before being reported as success.
	SideEffectWrite SideEffect = "write"
)

// Invocation carries everything a tool handler may rely on. Owner and Scope
// are injected by the engine from the session; they never come from model
// output.
type Invocation struct {
	Owner string
	Scope []string
	Args  map[string]any
}

// Tool defines the interface for engine tools
type Tool interface {
	// ToolName returns the unique name of the tool
	ToolName() string

	// ToolDescription returns a description used by the reasoning step
	ToolDescription() string

	// ToolParamSchema returns the JSON schema for the tool's arguments
	ToolParamSchema() Schema

	// ToolSideEffect reports whether the tool reads or writes external state
	ToolSideEffect() SideEffect

	// Call executes the tool. The result must be JSON-marshalable.
	Call(ctx context.Context, inv Invocation) (any, error)
}

// OutputValidated is implemented by mutating tools whose result payload is
// schema-checked before the engine treats the call as successful.
type OutputValidated interface {
	ToolOutputSchema() Schema
}

// identityArgKeys are argument names the model could use to smuggle in a
// different identity. They are stripped before the handler runs; the trusted
// owner always comes from the Invocation.
var identityArgKeys = []string{
	"owner", "owner_id", "owner_identity", "user", "user_id", "identity",
}

// stripIdentityArgs returns a copy with identity-shaped keys removed. The
// caller's map stays untouched.
func stripIdentityArgs(args map[string]any) map[string]any {
	cleaned := make(map[string]any, len(args))
	for k, v := range args {
		cleaned[k] = v
	}
	for _, k := range identityArgKeys {
		delete(cleaned, k)
	}
	return cleaned
}
