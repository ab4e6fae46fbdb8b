package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider replays a scripted sequence of responses, for exercising the
// engine without a live model.
type MockProvider struct {
	mu        sync.Mutex
	responses []string
	calls     int

	// Requests records every request seen, for assertions.
	Requests []*ChatRequest
}

func NewMockProvider(responses ...string) *MockProvider {
	return &MockProvider{responses: responses}
}

// Calls returns how many requests the provider has served.
func (p *MockProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *MockProvider) next(req *ChatRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Requests = append(p.Requests, req)
	if p.calls >= len(p.responses) {
		return "", fmt.Errorf("mock provider exhausted after %d responses", len(p.responses))
	}
	content := p.responses[p.calls]
	p.calls++
	return content, nil
}

func (p *MockProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := p.next(req)
	if err != nil {
		return nil, err
	}

	return &ChatResponse{
		ID:           fmt.Sprintf("mock-%d", p.Calls()),
		Content:      content,
		FinishReason: "stop",
	}, nil
}

func (p *MockProvider) ChatStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	content, err := p.next(req)
	if err != nil {
		return nil, err
	}

	chunks := make(chan StreamChunk, 2)
	chunks <- StreamChunk{Content: content}
	chunks <- StreamChunk{Done: true}
	close(chunks)
	return chunks, nil
}
