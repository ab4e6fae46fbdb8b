package store

import (
	"time"
)

// Bundle holds all persistence stores the engine writes through: session
// message history, batch task checkpoints, long-term memory facts, and the
// progress-event log.
type Bundle struct {
	Sessions SessionStore
	Tasks    TaskStateStore
	Facts    FactStore
	Events   EventStore
	closer   func() error
}

// Close cleans up the bundle resources
func (b *Bundle) Close() error {
	if b.closer != nil {
		return b.closer()
	}
	return nil
}

// Task status values.
const (
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
	TaskPaused    = "paused"
)

// Fact type values.
const (
	FactSemantic   = "semantic"
	FactPreference = "preference"
	FactEpisodic   = "episodic"
)

// SessionInfo describes a stored session
type SessionInfo struct {
	ID         string     `json:"id"`
	Owner      string     `json:"owner"`
	Mode       string     `json:"mode,omitempty"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// SessionMessage represents a single message in a session
type SessionMessage struct {
	ID        int       `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionStore tracks sessions and their append-only message history
type SessionStore interface {
	CreateSession(owner, mode string) (id string, err error)
	CompleteSession(id string, runErr error) error
	AppendMessage(sessionID, role, content string) error
	GetMessages(sessionID string) ([]SessionMessage, error)
	// ReadWindow returns the most recent n messages in chronological order.
	ReadWindow(sessionID string, n int) ([]SessionMessage, error)
	GetSessionsByOwner(owner string) ([]SessionInfo, error)
}

// TaskState is the persisted progress of a long batch pipeline. Writes must
// keep CompletedItemIDs monotonic: a save never removes an id that a prior
// save recorded.
type TaskState struct {
	TaskID           string            `json:"taskId"`
	Owner            string            `json:"owner"`
	TaskType         string            `json:"taskType"`
	Status           string            `json:"status"`
	CurrentPhase     string            `json:"currentPhase,omitempty"`
	TotalItems       int               `json:"totalItems"`
	CompletedItemIDs []string          `json:"completedItemIds"`
	FailedItems      map[string]string `json:"failedItems,omitempty"` // item id -> error
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// Completed reports whether an item id is already checkpointed.
func (s TaskState) Completed(itemID string) bool {
	for _, id := range s.CompletedItemIDs {
		if id == itemID {
			return true
		}
	}
	return false
}

// TaskStateStore is the keyed checkpoint store. Load returns (nil, nil) when
// no state exists for the key.
type TaskStateStore interface {
	Load(owner, taskID string) (*TaskState, error)
	Save(state *TaskState) error
	ListByOwner(owner string) ([]TaskState, error)
}

// Fact is one durable long-term memory entry for an owner.
type Fact struct {
	ID             string    `json:"id"`
	Owner          string    `json:"owner"`
	Text           string    `json:"text"`
	Embedding      []float32 `json:"embedding,omitempty"`
	FactType       string    `json:"factType"`
	Importance     float64   `json:"importance"`
	AccessCount    int       `json:"accessCount"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
	CreatedAt      time.Time `json:"createdAt"`
}

// FactMatch pairs a fact with its similarity to a query embedding.
type FactMatch struct {
	Fact  Fact
	Score float64
}

// FactStore persists memory facts, keyed by (owner, fact id).
type FactStore interface {
	Upsert(fact *Fact) error
	Delete(owner, id string) error
	ListByOwner(owner string) ([]Fact, error)
	// SearchSimilar returns the owner's facts ranked by cosine similarity to
	// the query embedding, best first, at most topK.
	SearchSimilar(owner string, embedding []float32, topK int) ([]FactMatch, error)
	// TouchAccess bumps access counts and last-accessed timestamps for the
	// given fact ids.
	TouchAccess(owner string, ids []string) error
}

// SessionEvent is one persisted progress event.
type SessionEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	EventType string    `json:"eventType"`
	DataJSON  string    `json:"dataJson,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// EventStore persists the stream of progress events for later inspection.
type EventStore interface {
	StoreEvent(event SessionEvent) error
	GetEventsBySession(sessionID string, limit, offset int) ([]SessionEvent, error)
}
