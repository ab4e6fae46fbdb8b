package tools_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"lectern/tools"
)

// fakeTool is a read-only tool for registry plumbing tests.
type fakeTool struct {
	name    string
	handler func(ctx context.Context, inv tools.Invocation) (any, error)

	mu          sync.Mutex
	invocations []tools.Invocation
}

func (t *fakeTool) ToolName() string        { return t.name }
func (t *fakeTool) ToolDescription() string { return "fake tool for tests" }

func (t *fakeTool) ToolParamSchema() tools.Schema {
	return tools.Schema{
		Type: tools.TypeObject,
		Properties: tools.PropertyMap{
			"query": {Type: tools.TypeString},
		},
		Required: []string{"query"},
	}
}

func (t *fakeTool) ToolSideEffect() tools.SideEffect { return tools.SideEffectRead }

func (t *fakeTool) Call(ctx context.Context, inv tools.Invocation) (any, error) {
	t.mu.Lock()
	t.invocations = append(t.invocations, inv)
	t.mu.Unlock()
	if t.handler != nil {
		return t.handler(ctx, inv)
	}
	return "ok", nil
}

func (t *fakeTool) calls() []tools.Invocation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]tools.Invocation(nil), t.invocations...)
}

// fakeMutatingTool writes state and declares an output schema, so the
// registry re-runs it when the result payload is malformed.
type fakeMutatingTool struct {
	fakeTool
	outputs []any
}

func (t *fakeMutatingTool) ToolSideEffect() tools.SideEffect { return tools.SideEffectWrite }

func (t *fakeMutatingTool) ToolOutputSchema() tools.Schema {
	return tools.Schema{
		Type: tools.TypeObject,
		Properties: tools.PropertyMap{
			"saved_id": {Type: tools.TypeString},
		},
		Required: []string{"saved_id"},
	}
}

func (t *fakeMutatingTool) Call(ctx context.Context, inv tools.Invocation) (any, error) {
	t.mu.Lock()
	t.invocations = append(t.invocations, inv)
	n := len(t.invocations)
	t.mu.Unlock()
	if n <= len(t.outputs) {
		return t.outputs[n-1], nil
	}
	return map[string]any{"saved_id": "final"}, nil
}

var _ = Describe("Registry", func() {
	var registry *tools.Registry

	BeforeEach(func() {
		registry = tools.NewRegistry()
	})

	Describe("Register", func() {
		It("rejects duplicate names", func() {
			Expect(registry.Register(&fakeTool{name: "search"})).To(Succeed())
			err := registry.Register(&fakeTool{name: "search"})
			Expect(err).To(MatchError(ContainSubstring("already registered")))
		})

		It("rejects registration after Seal", func() {
			registry.Seal()
			err := registry.Register(&fakeTool{name: "late"})
			Expect(err).To(MatchError(ContainSubstring("sealed")))
		})

		It("rejects empty names", func() {
			Expect(registry.Register(&fakeTool{})).To(MatchError(ContainSubstring("empty name")))
		})
	})

	Describe("Names and Describe", func() {
		BeforeEach(func() {
			Expect(registry.Register(&fakeTool{name: "zeta"})).To(Succeed())
			Expect(registry.Register(&fakeTool{name: "alpha"})).To(Succeed())
			registry.Seal()
		})

		It("returns names sorted", func() {
			Expect(registry.Names()).To(Equal([]string{"alpha", "zeta"}))
		})

		It("skips unknown names when describing", func() {
			desc := registry.Describe([]string{"alpha", "missing"})
			Expect(desc).To(ContainSubstring("alpha"))
			Expect(desc).NotTo(ContainSubstring("missing"))
		})
	})

	Describe("Invoke", func() {
		It("fails for unknown tools", func() {
			_, err := registry.Invoke(context.Background(), "nope", nil, "alice", nil)
			var te *tools.ToolError
			Expect(err).To(BeAssignableToTypeOf(te))
			Expect(err.(*tools.ToolError).Code).To(Equal(tools.CodeUnknownTool))
		})

		It("rejects arguments that fail the parameter schema", func() {
			ft := &fakeTool{name: "search"}
			Expect(registry.Register(ft)).To(Succeed())
			registry.Seal()

			_, err := registry.Invoke(context.Background(), "search", map[string]any{}, "alice", nil)
			Expect(err).To(HaveOccurred())
			Expect(err.(*tools.ToolError).Code).To(Equal(tools.CodeValidation))
			Expect(tools.IsRetryableValidation(err)).To(BeTrue())
			Expect(ft.calls()).To(BeEmpty(), "handler must not run on invalid args")
		})

		It("strips identity-like args and injects the trusted owner", func() {
			ft := &fakeTool{name: "search"}
			Expect(registry.Register(ft)).To(Succeed())
			registry.Seal()

			args := map[string]any{
				"query":   "graphene",
				"owner":   "mallory",
				"user_id": "other-user",
			}
			_, err := registry.Invoke(context.Background(), "search", args, "alice", []string{"tab-1"})
			Expect(err).NotTo(HaveOccurred())

			calls := ft.calls()
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].Owner).To(Equal("alice"))
			Expect(calls[0].Scope).To(Equal([]string{"tab-1"}))
			Expect(calls[0].Args).NotTo(HaveKey("owner"))
			Expect(calls[0].Args).NotTo(HaveKey("user_id"))
			Expect(calls[0].Args).To(HaveKeyWithValue("query", "graphene"))

			// Stripping works on a copy; the caller's map keeps its entries.
			Expect(args).To(HaveKeyWithValue("owner", "mallory"))
			Expect(args).To(HaveKeyWithValue("user_id", "other-user"))
		})

		It("wraps handler errors as execution errors", func() {
			ft := &fakeTool{
				name: "search",
				handler: func(ctx context.Context, inv tools.Invocation) (any, error) {
					return nil, fmt.Errorf("upstream down")
				},
			}
			Expect(registry.Register(ft)).To(Succeed())
			registry.Seal()

			_, err := registry.Invoke(context.Background(), "search", map[string]any{"query": "q"}, "alice", nil)
			Expect(err.(*tools.ToolError).Code).To(Equal(tools.CodeExecution))
			Expect(tools.IsRetryableValidation(err)).To(BeFalse())
		})

		It("times out stuck handlers", func() {
			ft := &fakeTool{
				name: "slow",
				handler: func(ctx context.Context, inv tools.Invocation) (any, error) {
					<-ctx.Done()
					return nil, ctx.Err()
				},
			}
			Expect(registry.Register(ft)).To(Succeed())
			registry.SetCallTimeout(20 * time.Millisecond)
			registry.Seal()

			_, err := registry.Invoke(context.Background(), "slow", map[string]any{"query": "q"}, "alice", nil)
			Expect(err.(*tools.ToolError).Code).To(Equal(tools.CodeTimeout))
		})
	})

	Describe("output validation for mutating tools", func() {
		It("re-runs the handler until the payload matches the output schema", func() {
			mt := &fakeMutatingTool{
				fakeTool: fakeTool{name: "save_summary"},
				outputs: []any{
					map[string]any{"wrong": true},
					map[string]any{"saved_id": "sum-42"},
				},
			}
			Expect(registry.Register(mt)).To(Succeed())
			registry.Seal()

			result, err := registry.Invoke(context.Background(), "save_summary", map[string]any{"query": "q"}, "alice", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(HaveKeyWithValue("saved_id", "sum-42"))
			Expect(mt.calls()).To(HaveLen(2))
		})

		It("fails with output_validation_error after the retry limit", func() {
			mt := &fakeMutatingTool{
				fakeTool: fakeTool{name: "save_summary"},
				outputs: []any{
					map[string]any{"wrong": true},
					map[string]any{"wrong": true},
					map[string]any{"wrong": true},
				},
			}
			Expect(registry.Register(mt)).To(Succeed())
			registry.Seal()

			_, err := registry.Invoke(context.Background(), "save_summary", map[string]any{"query": "q"}, "alice", nil)
			Expect(err).To(HaveOccurred())
			Expect(err.(*tools.ToolError).Code).To(Equal(tools.CodeOutputInvalid))
			Expect(mt.calls()).To(HaveLen(3))
		})
	})
})
