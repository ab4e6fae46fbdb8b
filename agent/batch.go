package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"lectern/checkpoint"
	"lectern/llm"
	"lectern/session"
	"lectern/store"
	"lectern/streamers"
	"lectern/tools"
)

// BatchTask is one multi-item pipeline: the objective applied per item of
// the scope, in a batch-capable mode.
type BatchTask struct {
	TaskID    string
	Owner     string
	Objective string
	// Scope is the ordered list of item ids to process.
	Scope []string
	Mode  *Mode
}

// BatchResult reports how a batch run ended. Partial means some items
// failed while the task itself completed.
type BatchResult struct {
	Completed int
	Failed    int
	Skipped   int
	Summary   string
	Partial   bool
}

// BatchRunner executes batch tasks item by item, checkpointing after each
// one so interrupted runs resume where they stopped.
type BatchRunner struct {
	provider llm.Provider
	model    string
	registry *tools.Registry
	modes    *ModeSet
	sessions store.SessionStore
	tasks    store.TaskStateStore
	logger   hclog.Logger

	windowSize int
}

// BatchOption configures a BatchRunner.
type BatchOption func(*BatchRunner)

func WithBatchLogger(logger hclog.Logger) BatchOption {
	return func(r *BatchRunner) {
		r.logger = logger
	}
}

// WithWindowSize overrides the per-item session window.
func WithWindowSize(n int) BatchOption {
	return func(r *BatchRunner) {
		r.windowSize = n
	}
}

func NewBatchRunner(provider llm.Provider, model string, registry *tools.Registry, modes *ModeSet, sessions store.SessionStore, tasks store.TaskStateStore, opts ...BatchOption) *BatchRunner {
	r := &BatchRunner{
		provider: provider,
		model:    model,
		registry: registry,
		modes:    modes,
		sessions: sessions,
		tasks:    tasks,
		logger:   hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes (or resumes) a batch task. Per-item failures are recorded
// and the batch continues; a checkpoint persistence failure pauses the task
// and stops the run.
func (r *BatchRunner) Run(ctx context.Context, task BatchTask, handler streamers.TaskHandler) (*BatchResult, error) {
	if handler == nil {
		handler = streamers.NullTaskHandler{}
	}
	if task.Mode == nil || !task.Mode.Batch {
		return nil, fmt.Errorf("task '%s' requires a batch-capable mode", task.TaskID)
	}

	cm := checkpoint.NewManager(r.tasks,
		checkpoint.WithLogger(r.logger.Named("checkpoint")),
		checkpoint.WithProgress(handler.Progress),
	)

	state, err := cm.LoadOrCreate(task.Owner, task.TaskID, task.Mode.Name, len(task.Scope))
	if err != nil {
		return nil, err
	}

	if len(state.CompletedItemIDs) > 0 {
		handler.TaskResumed(task.TaskID, len(state.CompletedItemIDs))
	} else {
		handler.TaskStarted(task.TaskID, len(task.Scope))
	}

	if err := cm.Start(); err != nil {
		handler.TaskFailed(task.TaskID, err)
		return nil, err
	}
	if err := cm.SetPhase("items"); err != nil {
		handler.TaskFailed(task.TaskID, err)
		return nil, err
	}

	result := &BatchResult{}
	var summaries []string

	for i, itemID := range task.Scope {
		if ctx.Err() != nil {
			err := fmt.Errorf("task cancelled: %w", ctx.Err())
			cm.Fail()
			handler.TaskFailed(task.TaskID, err)
			return nil, err
		}

		if cm.ShouldSkip(itemID) {
			result.Skipped++
			handler.ItemSkipped(task.TaskID, itemID)
			continue
		}

		handler.ItemStarted(task.TaskID, itemID, i)

		summary, itemErr := r.runItem(ctx, task, itemID)
		if itemErr != nil {
			handler.ItemFailed(task.TaskID, itemID, itemErr)
			result.Failed++
			if err := cm.MarkFailed(itemID, itemErr); err != nil {
				handler.TaskFailed(task.TaskID, err)
				return nil, err
			}
			continue
		}

		handler.ItemCompleted(task.TaskID, itemID, summary)
		result.Completed++
		summaries = append(summaries, fmt.Sprintf("[%s] %s", itemID, summary))
		if err := cm.MarkCompleted(itemID); err != nil {
			handler.TaskFailed(task.TaskID, err)
			return nil, err
		}
	}

	if err := cm.SetPhase("synthesis"); err != nil {
		handler.TaskFailed(task.TaskID, err)
		return nil, err
	}
	handler.SynthesisStarted(task.TaskID)

	result.Summary = r.synthesize(ctx, task, summaries, result)

	finalState := cm.State()
	result.Failed = len(finalState.FailedItems)
	result.Partial = result.Failed > 0

	if err := cm.Complete(); err != nil {
		handler.TaskFailed(task.TaskID, err)
		return nil, err
	}
	handler.TaskCompleted(task.TaskID, result.Failed)

	return result, nil
}

// runItem executes the per-item pipeline in its own sub-session.
func (r *BatchRunner) runItem(ctx context.Context, task BatchTask, itemID string) (string, error) {
	sess, err := session.New(r.sessions, task.Owner, task.Scope, session.Options{
		Mode:       task.Mode.Name,
		WindowSize: r.windowSize,
	})
	if err != nil {
		return "", fmt.Errorf("creating item session: %w", err)
	}

	loop := NewLoop(r.provider, r.model, r.registry, r.modes, task.Mode, sess,
		streamers.NullSessionHandler{},
		WithLoopLogger(r.logger.With("item", itemID)))

	input := fmt.Sprintf("%s\n\nProcess this item now: %s", task.Objective, itemID)
	res, err := loop.Run(ctx, input)
	if err != nil {
		return "", err
	}
	if res.Outcome != OutcomeAnswered {
		return "", fmt.Errorf("item pipeline ended with outcome '%s'", res.Outcome)
	}
	return res.Answer, nil
}

// synthesize composes the final task summary over this run's per-item
// results. A synthesis failure degrades to a plain count summary rather
// than failing a batch whose items already completed.
func (r *BatchRunner) synthesize(ctx context.Context, task BatchTask, summaries []string, result *BatchResult) string {
	fallback := fmt.Sprintf("Processed %d items (%d failed, %d already done).",
		result.Completed, result.Failed, result.Skipped)
	if len(summaries) == 0 {
		return fallback
	}

	prompt := fmt.Sprintf(`These are the per-item results of the task "%s":

%s

Write a short synthesis of the findings across all items, for the user.`,
		task.Objective, strings.Join(summaries, "\n"))

	resp, err := r.provider.Chat(ctx, &llm.ChatRequest{
		Model:    r.model,
		Messages: []llm.Message{llm.NewMessage(llm.RoleUser, prompt)},
	})
	if err != nil {
		r.logger.Warn("synthesis step failed", "task", task.TaskID, "error", err)
		return fallback
	}
	return strings.TrimSpace(resp.Content)
}
