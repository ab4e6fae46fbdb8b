package streamers

import (
	"encoding/json"
	"log"

	"lectern/checkpoint"
	"lectern/store"
)

// Event type strings, stable across storage and the wire.
const (
	EventThinking          = "thinking"
	EventToolSelected      = "tool_selected"
	EventToolExecuting     = "tool_executing"
	EventToolResult        = "tool_result"
	EventDelegateStarted   = "delegate_started"
	EventDelegateCompleted = "delegate_completed"
	EventSynthesizing      = "synthesizing"
	EventMessage           = "message"
	EventMessageEnd        = "message_end"
	EventAskUser           = "ask_user"
	EventError             = "error"

	EventTaskStarted      = "task_started"
	EventTaskResumed      = "task_resumed"
	EventItemStarted      = "item_started"
	EventItemCompleted    = "item_completed"
	EventItemFailed       = "item_failed"
	EventItemSkipped      = "item_skipped"
	EventTaskProgress     = "task_progress"
	EventSynthesisStarted = "synthesis_started"
	EventTaskCompleted    = "task_completed"
	EventTaskFailed       = "task_failed"
)

// StoringSessionHandler persists every event to the EventStore, then
// delegates to an inner handler (CLI, websocket, or null).
type StoringSessionHandler struct {
	inner     SessionHandler
	events    store.EventStore
	sessionID string
}

func NewStoringSessionHandler(inner SessionHandler, events store.EventStore, sessionID string) *StoringSessionHandler {
	return &StoringSessionHandler{inner: inner, events: events, sessionID: sessionID}
}

// storeEvent persists an event, logging (not failing) on error.
func (h *StoringSessionHandler) storeEvent(eventType string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		log.Printf("StoringSessionHandler: marshal event data: %v", err)
		return
	}
	if err := h.events.StoreEvent(store.SessionEvent{
		SessionID: h.sessionID,
		EventType: eventType,
		DataJSON:  string(dataJSON),
	}); err != nil {
		log.Printf("StoringSessionHandler: store event: %v", err)
	}
}

func (h *StoringSessionHandler) Thinking(step int) {
	h.storeEvent(EventThinking, map[string]any{"step": step})
	h.inner.Thinking(step)
}

func (h *StoringSessionHandler) ToolSelected(step int, tool string, args string) {
	h.storeEvent(EventToolSelected, map[string]any{"step": step, "tool": tool, "args": args})
	h.inner.ToolSelected(step, tool, args)
}

func (h *StoringSessionHandler) ToolExecuting(tool string) {
	h.storeEvent(EventToolExecuting, map[string]any{"tool": tool})
	h.inner.ToolExecuting(tool)
}

func (h *StoringSessionHandler) ToolResult(tool string, result string, err error) {
	data := map[string]any{"tool": tool, "result": result}
	if err != nil {
		data["error"] = err.Error()
	}
	h.storeEvent(EventToolResult, data)
	h.inner.ToolResult(tool, result, err)
}

func (h *StoringSessionHandler) DelegateStarted(mode string, subtask string) {
	h.storeEvent(EventDelegateStarted, map[string]any{"mode": mode, "subtask": subtask})
	h.inner.DelegateStarted(mode, subtask)
}

func (h *StoringSessionHandler) DelegateCompleted(mode string, err error) {
	data := map[string]any{"mode": mode}
	if err != nil {
		data["error"] = err.Error()
	}
	h.storeEvent(EventDelegateCompleted, data)
	h.inner.DelegateCompleted(mode, err)
}

func (h *StoringSessionHandler) Synthesizing() {
	h.storeEvent(EventSynthesizing, nil)
	h.inner.Synthesizing()
}

func (h *StoringSessionHandler) Message(content string) {
	h.storeEvent(EventMessage, map[string]any{"content": content})
	h.inner.Message(content)
}

func (h *StoringSessionHandler) MessageEnd() {
	h.storeEvent(EventMessageEnd, nil)
	h.inner.MessageEnd()
}

func (h *StoringSessionHandler) AskUser(question string) {
	h.storeEvent(EventAskUser, map[string]any{"question": question})
	h.inner.AskUser(question)
}

func (h *StoringSessionHandler) Error(err error) {
	h.storeEvent(EventError, map[string]any{"message": err.Error()})
	h.inner.Error(err)
}

// StoringTaskHandler persists batch task events, then delegates.
type StoringTaskHandler struct {
	inner     TaskHandler
	events    store.EventStore
	sessionID string
}

func NewStoringTaskHandler(inner TaskHandler, events store.EventStore, sessionID string) *StoringTaskHandler {
	return &StoringTaskHandler{inner: inner, events: events, sessionID: sessionID}
}

func (h *StoringTaskHandler) storeEvent(eventType string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		log.Printf("StoringTaskHandler: marshal event data: %v", err)
		return
	}
	if err := h.events.StoreEvent(store.SessionEvent{
		SessionID: h.sessionID,
		EventType: eventType,
		DataJSON:  string(dataJSON),
	}); err != nil {
		log.Printf("StoringTaskHandler: store event: %v", err)
	}
}

func (h *StoringTaskHandler) TaskStarted(taskID string, totalItems int) {
	h.storeEvent(EventTaskStarted, map[string]any{"taskId": taskID, "totalItems": totalItems})
	h.inner.TaskStarted(taskID, totalItems)
}

func (h *StoringTaskHandler) TaskResumed(taskID string, alreadyCompleted int) {
	h.storeEvent(EventTaskResumed, map[string]any{"taskId": taskID, "alreadyCompleted": alreadyCompleted})
	h.inner.TaskResumed(taskID, alreadyCompleted)
}

func (h *StoringTaskHandler) ItemStarted(taskID, itemID string, index int) {
	h.storeEvent(EventItemStarted, map[string]any{"taskId": taskID, "itemId": itemID, "index": index})
	h.inner.ItemStarted(taskID, itemID, index)
}

func (h *StoringTaskHandler) ItemCompleted(taskID, itemID string, summary string) {
	h.storeEvent(EventItemCompleted, map[string]any{"taskId": taskID, "itemId": itemID, "summary": summary})
	h.inner.ItemCompleted(taskID, itemID, summary)
}

func (h *StoringTaskHandler) ItemFailed(taskID, itemID string, err error) {
	h.storeEvent(EventItemFailed, map[string]any{"taskId": taskID, "itemId": itemID, "error": err.Error()})
	h.inner.ItemFailed(taskID, itemID, err)
}

func (h *StoringTaskHandler) ItemSkipped(taskID, itemID string) {
	h.storeEvent(EventItemSkipped, map[string]any{"taskId": taskID, "itemId": itemID})
	h.inner.ItemSkipped(taskID, itemID)
}

func (h *StoringTaskHandler) Progress(p checkpoint.Progress) {
	h.storeEvent(EventTaskProgress, p)
	h.inner.Progress(p)
}

func (h *StoringTaskHandler) SynthesisStarted(taskID string) {
	h.storeEvent(EventSynthesisStarted, map[string]any{"taskId": taskID})
	h.inner.SynthesisStarted(taskID)
}

func (h *StoringTaskHandler) TaskCompleted(taskID string, failedItems int) {
	h.storeEvent(EventTaskCompleted, map[string]any{"taskId": taskID, "failedItems": failedItems})
	h.inner.TaskCompleted(taskID, failedItems)
}

func (h *StoringTaskHandler) TaskFailed(taskID string, err error) {
	h.storeEvent(EventTaskFailed, map[string]any{"taskId": taskID, "error": err.Error()})
	h.inner.TaskFailed(taskID, err)
}
