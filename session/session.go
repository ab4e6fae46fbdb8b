package session

import (
	"fmt"
	"sync"

	"lectern/llm"
	"lectern/store"
)

// DefaultWindowSize is how many recent messages feed prompt construction
// when the config does not override it.
const DefaultWindowSize = 6

// Session is the per-task conversational context: the trusted owner
// identity, the resource scope the task may touch, and an append-only
// message history with a bounded prompt window.
//
// Owner is supplied by the caller at creation and cannot change afterwards;
// nothing derived from model output ever touches it.
type Session struct {
	ID    string
	Owner string
	Scope []string
	Mode  string

	windowSize int
	sessions   store.SessionStore

	mu       sync.Mutex
	messages []llm.Message
}

// Options configures session creation.
type Options struct {
	// WindowSize bounds the prompt window; 0 means DefaultWindowSize.
	WindowSize int
	// Mode names the specialist toolset active for this session, empty for
	// direct execution.
	Mode string
}

// New creates a session for the given owner and scope, registering it in
// the session store.
func New(sessions store.SessionStore, owner string, scope []string, opts Options) (*Session, error) {
	if owner == "" {
		return nil, fmt.Errorf("session requires an owner identity")
	}

	windowSize := opts.WindowSize
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}

	id, err := sessions.CreateSession(owner, opts.Mode)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	return &Session{
		ID:         id,
		Owner:      owner,
		Scope:      append([]string(nil), scope...),
		Mode:       opts.Mode,
		windowSize: windowSize,
		sessions:   sessions,
	}, nil
}

// Append adds a message to the history and persists it. History is
// append-only; truncation only ever applies to the prompt window.
func (s *Session) Append(role llm.Role, content string) error {
	s.mu.Lock()
	s.messages = append(s.messages, llm.NewMessage(role, content))
	s.mu.Unlock()

	if err := s.sessions.AppendMessage(s.ID, string(role), content); err != nil {
		return fmt.Errorf("persisting message: %w", err)
	}
	return nil
}

// Window returns the most recent messages, bounded by the window size, in
// chronological order.
func (s *Session) Window() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages
	if len(msgs) > s.windowSize {
		msgs = msgs[len(msgs)-s.windowSize:]
	}
	out := make([]llm.Message, len(msgs))
	copy(out, msgs)
	return out
}

// History returns the full message history.
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]llm.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Fork creates a sub-session for a delegated task. The child inherits the
// parent's owner and scope but starts with an empty history and the
// delegated mode's name.
func (s *Session) Fork(mode string) (*Session, error) {
	return New(s.sessions, s.Owner, s.Scope, Options{
		WindowSize: s.windowSize,
		Mode:       mode,
	})
}

// Complete marks the session finished in the store.
func (s *Session) Complete(runErr error) error {
	return s.sessions.CompleteSession(s.ID, runErr)
}
