package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewMemoryBundle creates a Bundle backed entirely by in-memory stores
func NewMemoryBundle() *Bundle {
	return &Bundle{
		Sessions: &MemorySessionStore{sessions: make(map[string]*memSession)},
		Tasks:    &MemoryTaskStateStore{states: make(map[string]*TaskState)},
		Facts:    &MemoryFactStore{facts: make(map[string]map[string]*Fact)},
		Events:   &MemoryEventStore{events: make(map[string][]SessionEvent)},
	}
}

// =============================================================================
// MemorySessionStore
// =============================================================================

type memSession struct {
	info     SessionInfo
	messages []SessionMessage
}

type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*memSession
}

func (s *MemorySessionStore) CreateSession(owner, mode string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	s.sessions[id] = &memSession{
		info: SessionInfo{
			ID:        id,
			Owner:     owner,
			Mode:      mode,
			Status:    "running",
			StartedAt: time.Now(),
		},
	}
	return id, nil
}

func (s *MemorySessionStore) CompleteSession(id string, runErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session '%s' not found", id)
	}

	now := time.Now()
	sess.info.FinishedAt = &now
	if runErr != nil {
		sess.info.Status = "failed"
	} else {
		sess.info.Status = "completed"
	}
	return nil
}

func (s *MemorySessionStore) AppendMessage(sessionID, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session '%s' not found", sessionID)
	}

	sess.messages = append(sess.messages, SessionMessage{
		ID:        len(sess.messages) + 1,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *MemorySessionStore) GetMessages(sessionID string) ([]SessionMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session '%s' not found", sessionID)
	}

	out := make([]SessionMessage, len(sess.messages))
	copy(out, sess.messages)
	return out, nil
}

func (s *MemorySessionStore) ReadWindow(sessionID string, n int) ([]SessionMessage, error) {
	msgs, err := s.GetMessages(sessionID)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs, nil
}

func (s *MemorySessionStore) GetSessionsByOwner(owner string) ([]SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var infos []SessionInfo
	for _, sess := range s.sessions {
		if sess.info.Owner == owner {
			infos = append(infos, sess.info)
		}
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos, nil
}

// =============================================================================
// MemoryTaskStateStore
// =============================================================================

type MemoryTaskStateStore struct {
	mu     sync.Mutex
	states map[string]*TaskState // key: owner + "/" + taskID
}

func taskKey(owner, taskID string) string {
	return owner + "/" + taskID
}

func (s *MemoryTaskStateStore) Load(owner, taskID string) (*TaskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[taskKey(owner, taskID)]
	if !ok {
		return nil, nil
	}
	copied := cloneTaskState(state)
	return &copied, nil
}

func (s *MemoryTaskStateStore) Save(state *TaskState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := cloneTaskState(state)
	saved.UpdatedAt = time.Now()

	// Completed ids never regress, whatever the caller handed us.
	if existing, ok := s.states[taskKey(state.Owner, state.TaskID)]; ok {
		saved.CompletedItemIDs = unionIDs(existing.CompletedItemIDs, saved.CompletedItemIDs)
		saved.CreatedAt = existing.CreatedAt
	}

	s.states[taskKey(state.Owner, state.TaskID)] = &saved
	return nil
}

func (s *MemoryTaskStateStore) ListByOwner(owner string) ([]TaskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []TaskState
	for _, state := range s.states {
		if state.Owner == owner {
			out = append(out, cloneTaskState(state))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func cloneTaskState(state *TaskState) TaskState {
	copied := *state
	copied.CompletedItemIDs = append([]string(nil), state.CompletedItemIDs...)
	if state.FailedItems != nil {
		copied.FailedItems = make(map[string]string, len(state.FailedItems))
		for k, v := range state.FailedItems {
			copied.FailedItems[k] = v
		}
	}
	return copied
}

func unionIDs(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, id := range existing {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range incoming {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// =============================================================================
// MemoryFactStore
// =============================================================================

type MemoryFactStore struct {
	mu    sync.Mutex
	facts map[string]map[string]*Fact // owner -> id -> fact
}

func (s *MemoryFactStore) Upsert(fact *Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fact.ID == "" {
		fact.ID = uuid.New().String()
	}
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = time.Now()
	}

	ownerFacts, ok := s.facts[fact.Owner]
	if !ok {
		ownerFacts = make(map[string]*Fact)
		s.facts[fact.Owner] = ownerFacts
	}

	copied := *fact
	copied.Embedding = append([]float32(nil), fact.Embedding...)
	ownerFacts[fact.ID] = &copied
	return nil
}

func (s *MemoryFactStore) Delete(owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ownerFacts, ok := s.facts[owner]; ok {
		delete(ownerFacts, id)
	}
	return nil
}

func (s *MemoryFactStore) ListByOwner(owner string) ([]Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Fact
	for _, f := range s.facts[owner] {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryFactStore) SearchSimilar(owner string, embedding []float32, topK int) ([]FactMatch, error) {
	facts, err := s.ListByOwner(owner)
	if err != nil {
		return nil, err
	}
	return rankBySimilarity(facts, embedding, topK), nil
}

func (s *MemoryFactStore) TouchAccess(owner string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ownerFacts := s.facts[owner]
	now := time.Now()
	for _, id := range ids {
		if f, ok := ownerFacts[id]; ok {
			f.AccessCount++
			f.LastAccessedAt = now
		}
	}
	return nil
}

// =============================================================================
// MemoryEventStore
// =============================================================================

type MemoryEventStore struct {
	mu     sync.Mutex
	events map[string][]SessionEvent
}

func (s *MemoryEventStore) StoreEvent(event SessionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	s.events[event.SessionID] = append(s.events[event.SessionID], event)
	return nil
}

func (s *MemoryEventStore) GetEventsBySession(sessionID string, limit, offset int) ([]SessionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.events[sessionID]
	if offset >= len(events) {
		return nil, nil
	}
	events = events[offset:]
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	out := make([]SessionEvent, len(events))
	copy(out, events)
	return out, nil
}
