package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type GeminiProvider struct {
	client *genai.Client
}

func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

func (p *GeminiProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	chat, lastParts := p.prepare(req)

	resp, err := chat.SendMessage(ctx, lastParts...)
	if err != nil {
		return nil, err
	}

	return &ChatResponse{
		ID:           uuid.New().String(),
		Content:      p.extractContent(resp),
		FinishReason: string(resp.Candidates[0].FinishReason),
		Usage: Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		},
	}, nil
}

func (p *GeminiProvider) ChatStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	chat, lastParts := p.prepare(req)
	iter := chat.SendMessageStream(ctx, lastParts...)

	chunks := make(chan StreamChunk)

	go func() {
		defer close(chunks)

		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				chunks <- StreamChunk{Done: true}
				return
			}
			if err != nil {
				chunks <- StreamChunk{Error: err, Done: true}
				return
			}

			if content := p.extractContent(resp); content != "" {
				chunks <- StreamChunk{Content: content}
			}
		}
	}()

	return chunks, nil
}

func (p *GeminiProvider) prepare(req *ChatRequest) (*genai.ChatSession, []genai.Part) {
	model := p.client.GenerativeModel(req.Model)

	if system := p.extractSystemPrompts(req.Messages); system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}

	chat := model.StartChat()
	chat.History = p.convertHistory(req.Messages)

	return chat, p.lastUserParts(req.Messages)
}

func (p *GeminiProvider) extractSystemPrompts(messages []Message) string {
	var system string
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		}
	}
	return system
}

func (p *GeminiProvider) convertHistory(messages []Message) []*genai.Content {
	var nonSystem []Message
	for _, m := range messages {
		if m.Role != RoleSystem {
			nonSystem = append(nonSystem, m)
		}
	}

	// The last user/tool message is sent separately, not as history.
	if len(nonSystem) > 0 {
		nonSystem = nonSystem[:len(nonSystem)-1]
	}

	var history []*genai.Content
	for _, m := range nonSystem {
		var role string
		switch m.Role {
		case RoleUser, RoleTool:
			role = "user"
		case RoleAssistant:
			role = "model"
		default:
			continue
		}

		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	return history
}

func (p *GeminiProvider) lastUserParts(messages []Message) []genai.Part {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser || messages[i].Role == RoleTool {
			return []genai.Part{genai.Text(messages[i].Content)}
		}
	}
	return []genai.Part{genai.Text("")}
}

func (p *GeminiProvider) extractContent(resp *genai.GenerateContentResponse) string {
	var content string
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				content += fmt.Sprintf("%v", part)
			}
		}
	}
	return content
}
