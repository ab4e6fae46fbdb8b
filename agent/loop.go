package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/hashicorp/go-hclog"

	"lectern/llm"
	"lectern/session"
	"lectern/streamers"
	"lectern/tools"
)

// validationRetryLimit bounds consecutive schema-rejected tool calls before
// the loop gives up on the step.
const validationRetryLimit = 3

// Outcome classifies how a loop run ended.
type Outcome string

const (
	// OutcomeAnswered means the loop produced a final answer.
	OutcomeAnswered Outcome = "answered"
	// OutcomeNeedsInput means the loop paused on a question for the caller.
	OutcomeNeedsInput Outcome = "needs_input"
	// OutcomeFailed covers loop detection, iteration cap, unrecoverable
	// parse or tool errors.
	OutcomeFailed Outcome = "failed"
	// OutcomeAborted means the context was cancelled.
	OutcomeAborted Outcome = "aborted"
)

// Result is the terminal outcome of a loop run. Answer always carries a
// human-readable message, including for failures.
type Result struct {
	Outcome  Outcome
	Answer   string
	Question string
	Steps    int
}

// Loop drives one reasoning session: think, act, observe, repeat, until a
// terminal decision or a guardrail fires.
type Loop struct {
	provider llm.Provider
	model    string
	registry *tools.Registry
	modes    *ModeSet
	mode     *Mode
	sess     *session.Session
	handler  streamers.SessionHandler
	logger   hclog.Logger

	memoryFragment string
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

func WithLoopLogger(logger hclog.Logger) LoopOption {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithMemory injects recalled facts into the system prompt.
func WithMemory(fragment string) LoopOption {
	return func(l *Loop) {
		l.memoryFragment = fragment
	}
}

func NewLoop(provider llm.Provider, model string, registry *tools.Registry, modes *ModeSet, mode *Mode, sess *session.Session, handler streamers.SessionHandler, opts ...LoopOption) *Loop {
	l := &Loop{
		provider: provider,
		model:    model,
		registry: registry,
		modes:    modes,
		mode:     mode,
		sess:     sess,
		handler:  handler,
		logger:   hclog.NewNullLogger(),
	}
	if l.handler == nil {
		l.handler = streamers.NullSessionHandler{}
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes the loop for one input. The returned error is non-nil for
// failed and aborted outcomes; the Result still carries the explanation
// delivered to the caller.
func (l *Loop) Run(ctx context.Context, input string) (*Result, error) {
	if err := l.sess.Append(llm.RoleUser, input); err != nil {
		return nil, err
	}

	systemPrompt := buildSystemPrompt(l.mode, l.registry, l.memoryFragment)
	limit := l.mode.IterationCap()

	// lastActionHash fingerprints the immediately preceding action, tool or
	// delegation, so only back-to-back identical repeats trip the detector.
	var lastActionHash uint64
	validationFailures := 0

	for step := 1; step <= limit; step++ {
		if ctx.Err() != nil {
			return l.fail(ctx, step, OutcomeAborted, fmt.Errorf("run cancelled: %w", ctx.Err()))
		}

		l.handler.Thinking(step)

		decision, err := l.decide(ctx, systemPrompt)
		if err != nil {
			return l.fail(ctx, step, OutcomeFailed, err)
		}

		switch decision.Kind {
		case DecisionFinish:
			l.handler.Synthesizing()
			l.handler.Message(decision.Answer)
			l.handler.MessageEnd()
			l.sess.Complete(nil)
			return &Result{Outcome: OutcomeAnswered, Answer: decision.Answer, Steps: step}, nil

		case DecisionAskUser:
			l.handler.AskUser(decision.Question)
			return &Result{Outcome: OutcomeNeedsInput, Question: decision.Question, Steps: step}, nil

		case DecisionUseTool:
			hash := actionHash(decision.Tool, decision.Args)
			if hash == lastActionHash && lastActionHash != 0 {
				return l.fail(ctx, step, OutcomeFailed, &LoopDetectedError{Tool: decision.Tool, Step: step})
			}
			lastActionHash = hash

			l.handler.ToolSelected(step, decision.Tool, decision.ArgsJSON)
			l.handler.ToolExecuting(decision.Tool)

			result, invErr := l.registry.Invoke(ctx, decision.Tool, decision.Args, l.sess.Owner, l.sess.Scope)
			if invErr != nil {
				l.handler.ToolResult(decision.Tool, "", invErr)
				if tools.IsRetryableValidation(invErr) {
					validationFailures++
					if validationFailures >= validationRetryLimit {
						return l.fail(ctx, step, OutcomeFailed, fmt.Errorf("tool input rejected %d times in a row: %w", validationFailures, invErr))
					}
				}
				if err := l.observe(fmt.Sprintf("ERROR: %v", invErr)); err != nil {
					return l.fail(ctx, step, OutcomeFailed, err)
				}
				continue
			}

			validationFailures = 0
			rendered := renderResult(result)
			l.handler.ToolResult(decision.Tool, rendered, nil)
			if err := l.observe(rendered); err != nil {
				return l.fail(ctx, step, OutcomeFailed, err)
			}

		case DecisionDelegate:
			hash := actionHash("delegate:"+decision.DelegateMode, map[string]any{"subtask": decision.Subtask})
			if hash == lastActionHash && lastActionHash != 0 {
				return l.fail(ctx, step, OutcomeFailed, &LoopDetectedError{Tool: decision.DelegateMode, Step: step})
			}
			lastActionHash = hash

			answer, delErr := l.delegate(ctx, decision.DelegateMode, decision.Subtask)
			if delErr != nil {
				if err := l.observe(fmt.Sprintf("ERROR: %v", delErr)); err != nil {
					return l.fail(ctx, step, OutcomeFailed, err)
				}
				continue
			}
			if err := l.observe(fmt.Sprintf("Result from '%s':\n%s", decision.DelegateMode, answer)); err != nil {
				return l.fail(ctx, step, OutcomeFailed, err)
			}
		}
	}

	return l.fail(ctx, limit, OutcomeFailed, &MaxIterationsError{Limit: limit})
}

// decide runs one model call and parses the decision, with one bounded
// repair re-prompt on malformed output.
func (l *Loop) decide(ctx context.Context, systemPrompt string) (*Decision, error) {
	resp, err := l.chat(ctx, systemPrompt, nil)
	if err != nil {
		return nil, fmt.Errorf("reasoning request: %w", err)
	}

	decision, parseErr := ParseDecision(resp.Content)
	if parseErr == nil {
		if err := l.sess.Append(llm.RoleAssistant, resp.Content); err != nil {
			return nil, err
		}
		return decision, nil
	}

	repair := []llm.Message{
		llm.NewMessage(llm.RoleAssistant, resp.Content),
		llm.NewMessage(llm.RoleUser, fmt.Sprintf("Your response could not be processed: %v. Respond again using exactly one of the documented patterns.", parseErr)),
	}
	resp, err = l.chat(ctx, systemPrompt, repair)
	if err != nil {
		return nil, fmt.Errorf("repair request: %w", err)
	}

	decision, parseErr = ParseDecision(resp.Content)
	if parseErr != nil {
		return nil, &ParseError{Reason: parseErr.Error()}
	}
	if err := l.sess.Append(llm.RoleAssistant, resp.Content); err != nil {
		return nil, err
	}
	return decision, nil
}

func (l *Loop) chat(ctx context.Context, systemPrompt string, extra []llm.Message) (*llm.ChatResponse, error) {
	messages := make([]llm.Message, 0, l.mode.IterationCap()+2)
	messages = append(messages, llm.NewMessage(llm.RoleSystem, systemPrompt))
	messages = append(messages, l.sess.Window()...)
	messages = append(messages, extra...)

	return l.provider.Chat(ctx, &llm.ChatRequest{
		Model:         l.model,
		Messages:      messages,
		StopSequences: []string{stopSequence},
	})
}

// observe folds a tool or delegation result back into the session so the
// next reasoning step sees it.
func (l *Loop) observe(content string) error {
	return l.sess.Append(llm.RoleUser, fmt.Sprintf("<OBSERVATION>\n%s\n</OBSERVATION>", content))
}

// fail ends the run with an explanation message. Failures still produce a
// readable final message; the session is closed with the error.
func (l *Loop) fail(ctx context.Context, step int, outcome Outcome, cause error) (*Result, error) {
	l.logger.Error("reasoning loop ended", "mode", l.mode.Name, "step", step, "outcome", outcome, "error", cause)

	explanation := fmt.Sprintf("I could not complete this task: %v", cause)
	l.sess.Append(llm.RoleAssistant, explanation)
	l.sess.Complete(cause)
	l.handler.Error(cause)

	return &Result{Outcome: outcome, Answer: explanation, Steps: step}, cause
}

// actionHash fingerprints (tool, args) for loop detection. json.Marshal
// writes map keys in sorted order, so semantically identical argument maps
// hash identically.
func actionHash(tool string, args map[string]any) uint64 {
	canonical, err := json.Marshal(args)
	if err != nil {
		canonical = []byte(fmt.Sprintf("%v", args))
	}
	h := fnv.New64a()
	h.Write([]byte(tool))
	h.Write([]byte{0})
	h.Write(canonical)
	return h.Sum64()
}

// renderResult turns a tool result into observation text.
func renderResult(result any) string {
	switch v := result.(type) {
	case nil:
		return "(no output)"
	case string:
		return v
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
