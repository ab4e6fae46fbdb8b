package checkpoint

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"lectern/store"
)

// PersistenceError reports that a checkpoint write failed after retries.
// The task is left paused so a later resume can retry the same write.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("checkpoint persistence failed: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Progress describes checkpoint progress for live listeners.
type Progress struct {
	TaskID    string
	Processed int
	Failed    int
	Total     int
	Percent   float64
	Phase     string
}

// ProgressFunc receives a Progress after every checkpoint write.
type ProgressFunc func(Progress)

// Manager owns the TaskState of one batch task. All writes go through the
// manager, which serializes them, so completed item ids stay monotonic.
type Manager struct {
	tasks      store.TaskStateStore
	logger     hclog.Logger
	maxRetries int
	baseDelay  time.Duration
	onProgress ProgressFunc

	mu    sync.Mutex
	state *store.TaskState
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(logger hclog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithRetry overrides the persistence retry policy.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(m *Manager) {
		m.maxRetries = maxRetries
		m.baseDelay = baseDelay
	}
}

func WithProgress(fn ProgressFunc) Option {
	return func(m *Manager) {
		m.onProgress = fn
	}
}

func NewManager(tasks store.TaskStateStore, opts ...Option) *Manager {
	m := &Manager{
		tasks:      tasks,
		logger:     hclog.NewNullLogger(),
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadOrCreate loads the persisted state for (owner, taskID) or creates a
// fresh pending one. The returned state is a snapshot; callers should use
// State() for later reads.
func (m *Manager) LoadOrCreate(owner, taskID, taskType string, totalItems int) (*store.TaskState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.tasks.Load(owner, taskID)
	if err != nil {
		return nil, fmt.Errorf("loading task state: %w", err)
	}

	if state == nil {
		state = &store.TaskState{
			TaskID:      taskID,
			Owner:       owner,
			TaskType:    taskType,
			Status:      store.TaskPending,
			TotalItems:  totalItems,
			FailedItems: make(map[string]string),
			CreatedAt:   time.Now(),
		}
	} else {
		// Resuming: refresh the item count in case the scope changed. Failure
		// records stay until the item succeeds on a later attempt.
		state.TotalItems = totalItems
		if state.FailedItems == nil {
			state.FailedItems = make(map[string]string)
		}
	}

	m.state = state
	snapshot := *state
	return &snapshot, nil
}

// State returns a snapshot of the current task state.
func (m *Manager) State() store.TaskState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.state
}

// ShouldSkip reports whether an item was already completed in a prior run.
func (m *Manager) ShouldSkip(itemID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Completed(itemID)
}

// Start marks the task running.
func (m *Manager) Start() error {
	return m.update(func(s *store.TaskState) {
		s.Status = store.TaskRunning
	})
}

// SetPhase records the pipeline phase (e.g. "items", "synthesis").
func (m *Manager) SetPhase(phase string) error {
	return m.update(func(s *store.TaskState) {
		s.CurrentPhase = phase
	})
}

// MarkCompleted checkpoints one finished item. The write happens before the
// next item starts, so a crash redoes at most the in-flight item.
func (m *Manager) MarkCompleted(itemID string) error {
	return m.update(func(s *store.TaskState) {
		if !s.Completed(itemID) {
			s.CompletedItemIDs = append(s.CompletedItemIDs, itemID)
		}
		delete(s.FailedItems, itemID)
	})
}

// MarkFailed records a per-item failure. The batch continues; the item is
// retried on a future resume.
func (m *Manager) MarkFailed(itemID string, itemErr error) error {
	return m.update(func(s *store.TaskState) {
		s.FailedItems[itemID] = itemErr.Error()
	})
}

// Complete marks the task finished. Items left in FailedItems signal
// partial success to the caller.
func (m *Manager) Complete() error {
	return m.update(func(s *store.TaskState) {
		s.Status = store.TaskCompleted
	})
}

// Fail marks the task failed (loop-level errors, not per-item ones).
func (m *Manager) Fail() error {
	return m.update(func(s *store.TaskState) {
		s.Status = store.TaskFailed
	})
}

func (m *Manager) update(mutate func(*store.TaskState)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		return fmt.Errorf("manager has no loaded task state")
	}

	mutate(m.state)
	m.state.UpdatedAt = time.Now()

	if err := m.persist(); err != nil {
		// Progress is preserved under a paused status so a resume can retry
		// the same write instead of losing items.
		m.state.Status = store.TaskPaused
		if saveErr := m.tasks.Save(m.state); saveErr != nil {
			m.logger.Error("could not persist paused task state", "task", m.state.TaskID, "error", saveErr)
		}
		return &PersistenceError{Err: err}
	}

	m.emitProgress()
	return nil
}

func (m *Manager) persist() error {
	var lastErr error
	delay := m.baseDelay

	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}

		if lastErr = m.tasks.Save(m.state); lastErr == nil {
			return nil
		}
		m.logger.Warn("checkpoint write failed",
			"task", m.state.TaskID, "attempt", attempt+1, "error", lastErr)
	}

	return lastErr
}

func (m *Manager) emitProgress() {
	if m.onProgress == nil {
		return
	}

	processed := len(m.state.CompletedItemIDs)
	failed := len(m.state.FailedItems)
	percent := 0.0
	if m.state.TotalItems > 0 {
		percent = float64(processed+failed) / float64(m.state.TotalItems) * 100
	}

	m.onProgress(Progress{
		TaskID:    m.state.TaskID,
		Processed: processed,
		Failed:    failed,
		Total:     m.state.TotalItems,
		Percent:   percent,
		Phase:     m.state.CurrentPhase,
	})
}
