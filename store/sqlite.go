package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    owner TEXT NOT NULL,
    mode TEXT,
    status TEXT DEFAULT 'running',
    started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    finished_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions(owner);

CREATE TABLE IF NOT EXISTS session_messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES sessions(id),
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_session_messages_session ON session_messages(session_id);

CREATE TABLE IF NOT EXISTS session_events (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    data_json TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id);

CREATE TABLE IF NOT EXISTS task_states (
    task_id TEXT NOT NULL,
    owner TEXT NOT NULL,
    task_type TEXT,
    status TEXT DEFAULT 'pending',
    current_phase TEXT,
    total_items INTEGER DEFAULT 0,
    completed_ids_json TEXT,
    failed_items_json TEXT,
    created_at DATETIME,
    updated_at DATETIME,
    PRIMARY KEY (owner, task_id)
);

CREATE TABLE IF NOT EXISTS memory_facts (
    id TEXT NOT NULL,
    owner TEXT NOT NULL,
    text TEXT NOT NULL,
    embedding_json TEXT,
    fact_type TEXT,
    importance REAL DEFAULT 0,
    access_count INTEGER DEFAULT 0,
    last_accessed_at DATETIME,
    created_at DATETIME,
    PRIMARY KEY (owner, id)
);
`

// NewSQLiteBundle opens (or creates) the sqlite database at path and returns
// a Bundle backed by it.
func NewSQLiteBundle(path string) (*Bundle, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Bundle{
		Sessions: &SQLiteSessionStore{db: db},
		Tasks:    &SQLiteTaskStateStore{db: db},
		Facts:    &SQLiteFactStore{db: db},
		Events:   &SQLiteEventStore{db: db},
		closer:   db.Close,
	}, nil
}

// =============================================================================
// SQLiteSessionStore
// =============================================================================

type SQLiteSessionStore struct {
	db *sql.DB
}

func (s *SQLiteSessionStore) CreateSession(owner, mode string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, owner, mode) VALUES (?, ?, ?)`,
		id, owner, mode,
	)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

func (s *SQLiteSessionStore) CompleteSession(id string, runErr error) error {
	status := "completed"
	if runErr != nil {
		status = "failed"
	}
	_, err := s.db.Exec(
		`UPDATE sessions SET status = ?, finished_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id,
	)
	return err
}

func (s *SQLiteSessionStore) AppendMessage(sessionID, role, content string) error {
	_, err := s.db.Exec(
		`INSERT INTO session_messages (session_id, role, content) VALUES (?, ?, ?)`,
		sessionID, role, content,
	)
	return err
}

func (s *SQLiteSessionStore) GetMessages(sessionID string) ([]SessionMessage, error) {
	rows, err := s.db.Query(
		`SELECT id, role, content, created_at FROM session_messages WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *SQLiteSessionStore) ReadWindow(sessionID string, n int) ([]SessionMessage, error) {
	rows, err := s.db.Query(
		`SELECT id, role, content, created_at
		   FROM (SELECT id, role, content, created_at FROM session_messages
		          WHERE session_id = ? ORDER BY id DESC LIMIT ?)
		  ORDER BY id`,
		sessionID, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]SessionMessage, error) {
	var msgs []SessionMessage
	for rows.Next() {
		var m SessionMessage
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *SQLiteSessionStore) GetSessionsByOwner(owner string) ([]SessionInfo, error) {
	rows, err := s.db.Query(
		`SELECT id, owner, mode, status, started_at, finished_at
		   FROM sessions WHERE owner = ? ORDER BY started_at`,
		owner,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var mode sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&info.ID, &info.Owner, &mode, &info.Status, &info.StartedAt, &finished); err != nil {
			return nil, err
		}
		info.Mode = mode.String
		if finished.Valid {
			info.FinishedAt = &finished.Time
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// =============================================================================
// SQLiteTaskStateStore
// =============================================================================

type SQLiteTaskStateStore struct {
	db *sql.DB
}

func (s *SQLiteTaskStateStore) Load(owner, taskID string) (*TaskState, error) {
	row := s.db.QueryRow(
		`SELECT task_id, owner, task_type, status, current_phase, total_items,
		        completed_ids_json, failed_items_json, created_at, updated_at
		   FROM task_states WHERE owner = ? AND task_id = ?`,
		owner, taskID,
	)

	state, err := scanTaskState(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return state, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTaskState(row rowScanner) (*TaskState, error) {
	var state TaskState
	var phase sql.NullString
	var completedJSON, failedJSON sql.NullString
	var created, updated sql.NullTime

	err := row.Scan(&state.TaskID, &state.Owner, &state.TaskType, &state.Status,
		&phase, &state.TotalItems, &completedJSON, &failedJSON, &created, &updated)
	if err != nil {
		return nil, err
	}

	state.CurrentPhase = phase.String
	if completedJSON.Valid && completedJSON.String != "" {
		if err := json.Unmarshal([]byte(completedJSON.String), &state.CompletedItemIDs); err != nil {
			return nil, fmt.Errorf("decode completed ids: %w", err)
		}
	}
	if failedJSON.Valid && failedJSON.String != "" {
		if err := json.Unmarshal([]byte(failedJSON.String), &state.FailedItems); err != nil {
			return nil, fmt.Errorf("decode failed items: %w", err)
		}
	}
	if created.Valid {
		state.CreatedAt = created.Time
	}
	if updated.Valid {
		state.UpdatedAt = updated.Time
	}
	return &state, nil
}

func (s *SQLiteTaskStateStore) Save(state *TaskState) error {
	// Merge with any stored state first so completed ids never regress.
	existing, err := s.Load(state.Owner, state.TaskID)
	if err != nil {
		return err
	}

	completed := state.CompletedItemIDs
	created := state.CreatedAt
	if existing != nil {
		completed = unionIDs(existing.CompletedItemIDs, completed)
		created = existing.CreatedAt
	}
	if created.IsZero() {
		created = time.Now()
	}

	completedJSON, err := json.Marshal(completed)
	if err != nil {
		return fmt.Errorf("encode completed ids: %w", err)
	}
	failedJSON, err := json.Marshal(state.FailedItems)
	if err != nil {
		return fmt.Errorf("encode failed items: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO task_states
		   (task_id, owner, task_type, status, current_phase, total_items,
		    completed_ids_json, failed_items_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(owner, task_id) DO UPDATE SET
		   task_type = excluded.task_type,
		   status = excluded.status,
		   current_phase = excluded.current_phase,
		   total_items = excluded.total_items,
		   completed_ids_json = excluded.completed_ids_json,
		   failed_items_json = excluded.failed_items_json,
		   updated_at = CURRENT_TIMESTAMP`,
		state.TaskID, state.Owner, state.TaskType, state.Status, state.CurrentPhase,
		state.TotalItems, string(completedJSON), string(failedJSON), created,
	)
	return err
}

func (s *SQLiteTaskStateStore) ListByOwner(owner string) ([]TaskState, error) {
	rows, err := s.db.Query(
		`SELECT task_id, owner, task_type, status, current_phase, total_items,
		        completed_ids_json, failed_items_json, created_at, updated_at
		   FROM task_states WHERE owner = ? ORDER BY created_at`,
		owner,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []TaskState
	for rows.Next() {
		state, err := scanTaskState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, *state)
	}
	return states, rows.Err()
}

// =============================================================================
// SQLiteFactStore
// =============================================================================

type SQLiteFactStore struct {
	db *sql.DB
}

func (s *SQLiteFactStore) Upsert(fact *Fact) error {
	if fact.ID == "" {
		fact.ID = uuid.New().String()
	}
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = time.Now()
	}

	embeddingJSON, err := json.Marshal(fact.Embedding)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO memory_facts
		   (id, owner, text, embedding_json, fact_type, importance, access_count, last_accessed_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(owner, id) DO UPDATE SET
		   text = excluded.text,
		   embedding_json = excluded.embedding_json,
		   fact_type = excluded.fact_type,
		   importance = excluded.importance,
		   access_count = excluded.access_count,
		   last_accessed_at = excluded.last_accessed_at`,
		fact.ID, fact.Owner, fact.Text, string(embeddingJSON), fact.FactType,
		fact.Importance, fact.AccessCount, fact.LastAccessedAt, fact.CreatedAt,
	)
	return err
}

func (s *SQLiteFactStore) Delete(owner, id string) error {
	_, err := s.db.Exec(`DELETE FROM memory_facts WHERE owner = ? AND id = ?`, owner, id)
	return err
}

func (s *SQLiteFactStore) ListByOwner(owner string) ([]Fact, error) {
	rows, err := s.db.Query(
		`SELECT id, owner, text, embedding_json, fact_type, importance, access_count, last_accessed_at, created_at
		   FROM memory_facts WHERE owner = ? ORDER BY created_at`,
		owner,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		var f Fact
		var embeddingJSON sql.NullString
		var lastAccessed, created sql.NullTime
		if err := rows.Scan(&f.ID, &f.Owner, &f.Text, &embeddingJSON, &f.FactType,
			&f.Importance, &f.AccessCount, &lastAccessed, &created); err != nil {
			return nil, err
		}
		if embeddingJSON.Valid && embeddingJSON.String != "" {
			if err := json.Unmarshal([]byte(embeddingJSON.String), &f.Embedding); err != nil {
				return nil, fmt.Errorf("decode embedding: %w", err)
			}
		}
		if lastAccessed.Valid {
			f.LastAccessedAt = lastAccessed.Time
		}
		if created.Valid {
			f.CreatedAt = created.Time
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func (s *SQLiteFactStore) SearchSimilar(owner string, embedding []float32, topK int) ([]FactMatch, error) {
	facts, err := s.ListByOwner(owner)
	if err != nil {
		return nil, err
	}
	return rankBySimilarity(facts, embedding, topK), nil
}

func (s *SQLiteFactStore) TouchAccess(owner string, ids []string) error {
	for _, id := range ids {
		_, err := s.db.Exec(
			`UPDATE memory_facts SET access_count = access_count + 1, last_accessed_at = CURRENT_TIMESTAMP
			  WHERE owner = ? AND id = ?`,
			owner, id,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// SQLiteEventStore
// =============================================================================

type SQLiteEventStore struct {
	db *sql.DB
}

func (s *SQLiteEventStore) StoreEvent(event SessionEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	_, err := s.db.Exec(
		`INSERT INTO session_events (id, session_id, event_type, data_json) VALUES (?, ?, ?, ?)`,
		event.ID, event.SessionID, event.EventType, event.DataJSON,
	)
	return err
}

func (s *SQLiteEventStore) GetEventsBySession(sessionID string, limit, offset int) ([]SessionEvent, error) {
	if limit <= 0 {
		limit = -1 // unbounded
	}
	rows, err := s.db.Query(
		`SELECT id, session_id, event_type, data_json, created_at
		   FROM session_events WHERE session_id = ?
		  ORDER BY rowid LIMIT ? OFFSET ?`,
		sessionID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []SessionEvent
	for rows.Next() {
		var e SessionEvent
		var data sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.EventType, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.DataJSON = data.String
		events = append(events, e)
	}
	return events, rows.Err()
}
