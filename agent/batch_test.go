package agent_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"lectern/agent"
	"lectern/checkpoint"
	"lectern/llm"
	"lectern/store"
)

var _ = Describe("BatchRunner", func() {
	var (
		bundle    *store.Bundle
		batchMode *agent.Mode
	)

	itemAnswer := func(text string) string {
		return "<ANSWER>" + text + "</ANSWER>"
	}
	const itemFailure = "<ASK_USER>cannot process this without input</ASK_USER>"

	BeforeEach(func() {
		bundle = store.NewMemoryBundle()
		batchMode = &agent.Mode{
			Name:   "summarize",
			Prompt: "Summarize each paper.",
			Tools:  []string{"search_papers", "get_paper", "save_note"},
			Batch:  true,
		}
	})

	newRunner := func(mock *llm.MockProvider, tasks store.TaskStateStore) *agent.BatchRunner {
		registry, _ := newTestRegistry("search_papers", "get_paper", "save_note")
		modes := newTestModes(registry, batchMode)
		return agent.NewBatchRunner(mock, "mock-model", registry, modes, bundle.Sessions, tasks)
	}

	task := func(items ...string) agent.BatchTask {
		return agent.BatchTask{
			TaskID:    "task-1",
			Owner:     "alice",
			Objective: "Summarize every paper in the collection.",
			Scope:     items,
			Mode:      batchMode,
		}
	}

	It("rejects modes that are not batch-capable", func() {
		batchMode.Batch = false
		runner := newRunner(llm.NewMockProvider(), bundle.Tasks)
		_, err := runner.Run(context.Background(), task("a"), nil)
		Expect(err).To(MatchError(ContainSubstring("batch-capable")))
	})

	It("checkpoints each item and records per-item failures without stopping", func() {
		mock := llm.NewMockProvider(
			itemAnswer("summary of a"),
			itemAnswer("summary of b"),
			itemFailure, // item c
			itemAnswer("summary of d"),
			itemAnswer("summary of e"),
			"Across the collection, the papers agree on the main finding.", // synthesis
		)
		handler := &taskRecorder{}
		runner := newRunner(mock, bundle.Tasks)

		result, err := runner.Run(context.Background(), task("a", "b", "c", "d", "e"), handler)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Completed).To(Equal(4))
		Expect(result.Failed).To(Equal(1))
		Expect(result.Skipped).To(Equal(0))
		Expect(result.Partial).To(BeTrue())
		Expect(result.Summary).To(ContainSubstring("main finding"))

		state, err := bundle.Tasks.Load("alice", "task-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Status).To(Equal(store.TaskCompleted))
		Expect(state.CompletedItemIDs).To(Equal([]string{"a", "b", "d", "e"}))
		Expect(state.FailedItems).To(HaveKey("c"))

		events := handler.all()
		Expect(events[0]).To(Equal("task_started:5"))
		Expect(events).To(ContainElement("item_failed:c"))
		Expect(events[len(events)-1]).To(Equal("task_completed:1"))
	})

	It("resumes by skipping checkpointed items and retrying the failed one", func() {
		firstRun := llm.NewMockProvider(
			itemAnswer("a"), itemAnswer("b"), itemFailure,
			itemAnswer("d"), itemAnswer("e"),
			"first synthesis",
		)
		_, err := newRunner(firstRun, bundle.Tasks).Run(context.Background(), task("a", "b", "c", "d", "e"), nil)
		Expect(err).NotTo(HaveOccurred())

		resume := llm.NewMockProvider(
			itemAnswer("summary of c"),
			"second synthesis",
		)
		handler := &taskRecorder{}
		result, err := newRunner(resume, bundle.Tasks).Run(context.Background(), task("a", "b", "c", "d", "e"), handler)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Completed).To(Equal(1))
		Expect(result.Skipped).To(Equal(4))
		Expect(result.Failed).To(Equal(0))
		Expect(result.Partial).To(BeFalse())

		state, err := bundle.Tasks.Load("alice", "task-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(state.CompletedItemIDs).To(ConsistOf("a", "b", "d", "e", "c"))
		Expect(state.FailedItems).To(BeEmpty())

		events := handler.all()
		Expect(events[0]).To(Equal("task_resumed:4"))
		Expect(events).To(ContainElement("item_skipped:a"))
		Expect(events).To(ContainElement("item_started:c"))
		Expect(events).To(ContainElement("item_completed:c"))
		Expect(events).NotTo(ContainElement("item_started:a"))
	})

	It("stops the run when a checkpoint write cannot be persisted", func() {
		mock := llm.NewMockProvider(
			itemAnswer("a"), itemAnswer("b"), itemAnswer("c"),
		)
		// Start and SetPhase succeed, the first MarkCompleted does not.
		flaky := &failingTaskStore{inner: bundle.Tasks, failAfter: 2}
		handler := &taskRecorder{}

		_, err := newRunner(mock, flaky).Run(context.Background(), task("a", "b", "c"), handler)
		Expect(err).To(HaveOccurred())
		var pErr *checkpoint.PersistenceError
		Expect(err).To(BeAssignableToTypeOf(pErr))
		Expect(handler.all()).To(ContainElement("task_failed"))
		Expect(handler.all()).NotTo(ContainElement("item_started:b"))
	})

	It("fails fast when the context is cancelled", func() {
		runner := newRunner(llm.NewMockProvider(), bundle.Tasks)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := runner.Run(ctx, task("a"), &taskRecorder{})
		Expect(err).To(MatchError(ContainSubstring("cancelled")))

		state, loadErr := bundle.Tasks.Load("alice", "task-1")
		Expect(loadErr).NotTo(HaveOccurred())
		Expect(state.Status).To(Equal(store.TaskFailed))
	})
})
