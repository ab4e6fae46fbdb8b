package wsbridge

import (
	"github.com/hashicorp/go-hclog"

	"lectern/checkpoint"
	"lectern/streamers"
)

// WSSessionHandler implements streamers.SessionHandler by forwarding events
// over the WebSocket to the hub.
type WSSessionHandler struct {
	client    *Client
	sessionID string
	logger    hclog.Logger
}

// NewWSSessionHandler creates a WebSocket-backed session handler.
func NewWSSessionHandler(client *Client, sessionID string, logger hclog.Logger) *WSSessionHandler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &WSSessionHandler{client: client, sessionID: sessionID, logger: logger}
}

func (h *WSSessionHandler) sendEvent(eventType string, data any) {
	env, err := NewEvent(TypeSessionEvent, &SessionEventPayload{
		SessionID: h.sessionID,
		EventType: eventType,
		Data:      data,
	})
	if err != nil {
		h.logger.Error("marshal event", "type", eventType, "error", err)
		return
	}
	if err := h.client.SendEvent(env); err != nil {
		h.logger.Error("send event", "type", eventType, "error", err)
	}
}

func (h *WSSessionHandler) Thinking(step int) {
	h.sendEvent(streamers.EventThinking, map[string]any{"step": step})
}

func (h *WSSessionHandler) ToolSelected(step int, tool string, args string) {
	h.sendEvent(streamers.EventToolSelected, map[string]any{"step": step, "tool": tool, "args": args})
}

func (h *WSSessionHandler) ToolExecuting(tool string) {
	h.sendEvent(streamers.EventToolExecuting, map[string]any{"tool": tool})
}

func (h *WSSessionHandler) ToolResult(tool string, result string, err error) {
	data := map[string]any{"tool": tool, "result": result}
	if err != nil {
		data["error"] = err.Error()
	}
	h.sendEvent(streamers.EventToolResult, data)
}

func (h *WSSessionHandler) DelegateStarted(mode string, subtask string) {
	h.sendEvent(streamers.EventDelegateStarted, map[string]any{"mode": mode, "subtask": subtask})
}

func (h *WSSessionHandler) DelegateCompleted(mode string, err error) {
	data := map[string]any{"mode": mode}
	if err != nil {
		data["error"] = err.Error()
	}
	h.sendEvent(streamers.EventDelegateCompleted, data)
}

func (h *WSSessionHandler) Synthesizing() {
	h.sendEvent(streamers.EventSynthesizing, nil)
}

func (h *WSSessionHandler) Message(content string) {
	h.sendEvent(streamers.EventMessage, map[string]any{"content": content})
}

func (h *WSSessionHandler) MessageEnd() {
	h.sendEvent(streamers.EventMessageEnd, nil)
}

func (h *WSSessionHandler) AskUser(question string) {
	h.sendEvent(streamers.EventAskUser, map[string]any{"question": question})
}

func (h *WSSessionHandler) Error(err error) {
	h.sendEvent(streamers.EventError, map[string]any{"message": err.Error()})
}

// WSTaskHandler implements streamers.TaskHandler over the WebSocket.
type WSTaskHandler struct {
	client    *Client
	sessionID string
	logger    hclog.Logger
}

// NewWSTaskHandler creates a WebSocket-backed task handler.
func NewWSTaskHandler(client *Client, sessionID string, logger hclog.Logger) *WSTaskHandler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &WSTaskHandler{client: client, sessionID: sessionID, logger: logger}
}

func (h *WSTaskHandler) sendEvent(eventType string, data any) {
	env, err := NewEvent(TypeSessionEvent, &SessionEventPayload{
		SessionID: h.sessionID,
		EventType: eventType,
		Data:      data,
	})
	if err != nil {
		h.logger.Error("marshal event", "type", eventType, "error", err)
		return
	}
	if err := h.client.SendEvent(env); err != nil {
		h.logger.Error("send event", "type", eventType, "error", err)
	}
}

func (h *WSTaskHandler) TaskStarted(taskID string, totalItems int) {
	h.sendEvent(streamers.EventTaskStarted, map[string]any{"taskId": taskID, "totalItems": totalItems})
}

func (h *WSTaskHandler) TaskResumed(taskID string, alreadyCompleted int) {
	h.sendEvent(streamers.EventTaskResumed, map[string]any{"taskId": taskID, "alreadyCompleted": alreadyCompleted})
}

func (h *WSTaskHandler) ItemStarted(taskID, itemID string, index int) {
	h.sendEvent(streamers.EventItemStarted, map[string]any{"taskId": taskID, "itemId": itemID, "index": index})
}

func (h *WSTaskHandler) ItemCompleted(taskID, itemID string, summary string) {
	h.sendEvent(streamers.EventItemCompleted, map[string]any{"taskId": taskID, "itemId": itemID, "summary": summary})
}

func (h *WSTaskHandler) ItemFailed(taskID, itemID string, err error) {
	h.sendEvent(streamers.EventItemFailed, map[string]any{"taskId": taskID, "itemId": itemID, "error": err.Error()})
}

func (h *WSTaskHandler) ItemSkipped(taskID, itemID string) {
	h.sendEvent(streamers.EventItemSkipped, map[string]any{"taskId": taskID, "itemId": itemID})
}

func (h *WSTaskHandler) Progress(p checkpoint.Progress) {
	h.sendEvent(streamers.EventTaskProgress, p)
}

func (h *WSTaskHandler) SynthesisStarted(taskID string) {
	h.sendEvent(streamers.EventSynthesisStarted, map[string]any{"taskId": taskID})
}

func (h *WSTaskHandler) TaskCompleted(taskID string, failedItems int) {
	h.sendEvent(streamers.EventTaskCompleted, map[string]any{"taskId": taskID, "failedItems": failedItems})
}

func (h *WSTaskHandler) TaskFailed(taskID string, err error) {
	h.sendEvent(streamers.EventTaskFailed, map[string]any{"taskId": taskID, "error": err.Error()})
}
