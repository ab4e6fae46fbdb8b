package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultCallTimeout bounds a single tool invocation unless the registry is
// configured otherwise.
const DefaultCallTimeout = 60 * time.Second

// outputRetryLimit bounds re-runs of a mutating tool whose result payload
// failed output-schema validation.
const outputRetryLimit = 3

// Registry is the catalog of callable tools. It is populated at startup and
// sealed before the first session runs; after sealing it is read-only and
// safe for concurrent use.
type Registry struct {
	tools       map[string]Tool
	callTimeout time.Duration
	sealed      bool
}

func NewRegistry() *Registry {
	return &Registry{
		tools:       make(map[string]Tool),
		callTimeout: DefaultCallTimeout,
	}
}

// SetCallTimeout overrides the per-invocation timeout. Must be called before
// Seal.
func (r *Registry) SetCallTimeout(d time.Duration) {
	if d > 0 {
		r.callTimeout = d
	}
}

// Register adds a tool. Duplicate names and post-seal registration are
// rejected.
func (r *Registry) Register(t Tool) error {
	if r.sealed {
		return fmt.Errorf("registry is sealed")
	}
	name := t.ToolName()
	if name == "" {
		return fmt.Errorf("tool has empty name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool '%s' already registered", name)
	}
	r.tools[name] = t
	return nil
}

// Seal freezes the registry.
func (r *Registry) Seal() {
	r.sealed = true
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe renders the named tools for the reasoning prompt. Unknown names
// are skipped.
func (r *Registry) Describe(names []string) string {
	var sb strings.Builder
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		sb.WriteString(fmt.Sprintf("- %s: %s\n  parameters: %s\n", t.ToolName(), t.ToolDescription(), t.ToolParamSchema().String()))
	}
	return sb.String()
}

// Invoke validates arguments, strips identity-like keys, and runs the tool
// under the registry's timeout. Mutating tools additionally get their result
// payload checked against the output schema, with a bounded number of
// handler re-runs before a hard failure.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any, owner string, scope []string) (any, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, &ToolError{Code: CodeUnknownTool, Tool: name, Err: fmt.Errorf("no such tool")}
	}

	if err := tool.ToolParamSchema().Validate(args); err != nil {
		return nil, &ToolError{Code: CodeValidation, Tool: name, Err: err}
	}

	inv := Invocation{
		Owner: owner,
		Scope: scope,
		Args:  stripIdentityArgs(args),
	}

	ov, needsOutputCheck := tool.(OutputValidated)
	if !needsOutputCheck || tool.ToolSideEffect() == SideEffectRead {
		return r.call(ctx, tool, inv)
	}

	var lastErr error
	for attempt := 0; attempt < outputRetryLimit; attempt++ {
		result, err := r.call(ctx, tool, inv)
		if err != nil {
			return nil, err
		}

		obj, ok := result.(map[string]any)
		if !ok {
			lastErr = fmt.Errorf("output is %T, expected object", result)
			continue
		}
		if err := ov.ToolOutputSchema().Validate(obj); err != nil {
			lastErr = err
			continue
		}
		return result, nil
	}

	return nil, &ToolError{
		Code: CodeOutputInvalid,
		Tool: name,
		Err:  fmt.Errorf("output invalid after %d attempts: %w", outputRetryLimit, lastErr),
	}
}

type callResult struct {
	value any
	err   error
}

// call runs the handler in its own goroutine so a stuck handler cannot hold
// the reasoning loop past the timeout.
func (r *Registry) call(ctx context.Context, tool Tool, inv Invocation) (any, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		value, err := tool.Call(callCtx, inv)
		done <- callResult{value: value, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if callCtx.Err() == context.DeadlineExceeded {
				return nil, &ToolError{Code: CodeTimeout, Tool: tool.ToolName(), Err: res.err}
			}
			return nil, &ToolError{Code: CodeExecution, Tool: tool.ToolName(), Err: res.err}
		}
		return res.value, nil
	case <-callCtx.Done():
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, &ToolError{Code: CodeTimeout, Tool: tool.ToolName(), Err: callCtx.Err()}
		}
		return nil, &ToolError{Code: CodeExecution, Tool: tool.ToolName(), Err: callCtx.Err()}
	}
}
