package checkpoint_test

import (
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"lectern/checkpoint"
	"lectern/store"
)

// brokenStore fails every Save after the first n succeed.
type brokenStore struct {
	inner store.TaskStateStore

	mu        sync.Mutex
	succeed   int
	saves     int
	lastState *store.TaskState
}

func (s *brokenStore) Load(owner, taskID string) (*store.TaskState, error) {
	return s.inner.Load(owner, taskID)
}

func (s *brokenStore) Save(state *store.TaskState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	copied := *state
	s.lastState = &copied
	if s.saves > s.succeed {
		return fmt.Errorf("backend unavailable")
	}
	return s.inner.Save(state)
}

func (s *brokenStore) ListByOwner(owner string) ([]store.TaskState, error) {
	return s.inner.ListByOwner(owner)
}

var _ = Describe("Manager", func() {
	var tasks store.TaskStateStore

	BeforeEach(func() {
		tasks = store.NewMemoryBundle().Tasks
	})

	It("creates fresh pending state when none exists", func() {
		m := checkpoint.NewManager(tasks)
		state, err := m.LoadOrCreate("alice", "t-1", "summarize", 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Status).To(Equal(store.TaskPending))
		Expect(state.TotalItems).To(Equal(10))
		Expect(state.CompletedItemIDs).To(BeEmpty())
	})

	It("keeps completed item ids monotonic across saves", func() {
		m := checkpoint.NewManager(tasks)
		_, err := m.LoadOrCreate("alice", "t-1", "summarize", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Start()).To(Succeed())

		Expect(m.MarkCompleted("a")).To(Succeed())
		Expect(m.MarkCompleted("b")).To(Succeed())
		// Re-marking an already completed item must not duplicate it.
		Expect(m.MarkCompleted("a")).To(Succeed())

		state, err := tasks.Load("alice", "t-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(state.CompletedItemIDs).To(Equal([]string{"a", "b"}))

		// A second manager picking up the same task sees every prior id.
		m2 := checkpoint.NewManager(tasks)
		_, err = m2.LoadOrCreate("alice", "t-1", "summarize", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(m2.ShouldSkip("a")).To(BeTrue())
		Expect(m2.ShouldSkip("b")).To(BeTrue())
		Expect(m2.ShouldSkip("c")).To(BeFalse())
		Expect(m2.MarkCompleted("c")).To(Succeed())

		state, err = tasks.Load("alice", "t-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(state.CompletedItemIDs).To(Equal([]string{"a", "b", "c"}))
	})

	It("clears an item's failure record when it later completes", func() {
		m := checkpoint.NewManager(tasks)
		_, err := m.LoadOrCreate("alice", "t-1", "summarize", 2)
		Expect(err).NotTo(HaveOccurred())

		Expect(m.MarkFailed("a", fmt.Errorf("timeout"))).To(Succeed())
		Expect(m.State().FailedItems).To(HaveKeyWithValue("a", "timeout"))

		Expect(m.MarkCompleted("a")).To(Succeed())
		Expect(m.State().FailedItems).To(BeEmpty())
		Expect(m.State().Completed("a")).To(BeTrue())
	})

	It("emits progress after every checkpoint write", func() {
		var progress []checkpoint.Progress
		m := checkpoint.NewManager(tasks, checkpoint.WithProgress(func(p checkpoint.Progress) {
			progress = append(progress, p)
		}))
		_, err := m.LoadOrCreate("alice", "t-1", "summarize", 4)
		Expect(err).NotTo(HaveOccurred())

		Expect(m.SetPhase("items")).To(Succeed())
		Expect(m.MarkCompleted("a")).To(Succeed())
		Expect(m.MarkFailed("b", fmt.Errorf("nope"))).To(Succeed())

		Expect(progress).To(HaveLen(3))
		last := progress[len(progress)-1]
		Expect(last.Processed).To(Equal(1))
		Expect(last.Failed).To(Equal(1))
		Expect(last.Total).To(Equal(4))
		Expect(last.Percent).To(BeNumerically("==", 50))
		Expect(last.Phase).To(Equal("items"))
	})

	It("retries a failed write before giving up", func() {
		flaky := &brokenStore{inner: tasks, succeed: 0}
		m := checkpoint.NewManager(flaky, checkpoint.WithRetry(2, time.Millisecond))
		_, err := m.LoadOrCreate("alice", "t-1", "summarize", 1)
		Expect(err).NotTo(HaveOccurred())

		err = m.Start()
		Expect(err).To(HaveOccurred())
		// Start tried 1 + 2 retries, then one more attempt to persist the
		// paused status.
		Expect(flaky.saves).To(Equal(4))
	})

	It("pauses the task when persistence is exhausted, keeping progress", func() {
		flaky := &brokenStore{inner: tasks, succeed: 3}
		m := checkpoint.NewManager(flaky, checkpoint.WithRetry(1, time.Millisecond))
		_, err := m.LoadOrCreate("alice", "t-1", "summarize", 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Start()).To(Succeed())
		Expect(m.MarkCompleted("a")).To(Succeed())
		Expect(m.MarkCompleted("b")).To(Succeed())

		err = m.SetPhase("synthesis")
		Expect(err).To(HaveOccurred())
		var pErr *checkpoint.PersistenceError
		Expect(err).To(BeAssignableToTypeOf(pErr))

		// The paused status was offered to the store with progress intact.
		Expect(flaky.lastState.Status).To(Equal(store.TaskPaused))
		Expect(flaky.lastState.CompletedItemIDs).To(Equal([]string{"a", "b"}))

		// The durable copy still has everything from before the outage.
		state, loadErr := tasks.Load("alice", "t-1")
		Expect(loadErr).NotTo(HaveOccurred())
		Expect(state.CompletedItemIDs).To(Equal([]string{"a", "b"}))
	})
})
