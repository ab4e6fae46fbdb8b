package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"lectern/llm"
)

// Candidate is one durable fact proposed by the extraction step.
type Candidate struct {
	Text       string  `json:"text"`
	FactType   string  `json:"type"`
	Importance float64 `json:"importance"`
}

// Extractor derives durable facts about the owner from a finished session
// transcript.
type Extractor struct {
	provider llm.Provider
	model    string
}

func NewExtractor(provider llm.Provider, model string) *Extractor {
	return &Extractor{provider: provider, model: model}
}

const extractionPrompt = `Review the conversation transcript below and extract up to 5 durable facts about the user worth remembering across sessions: stated preferences, ongoing research focus, recurring entities or topics.

Respond with ONLY a JSON array, no prose. Each entry:
{"text": "<one-sentence fact>", "type": "semantic" | "preference" | "episodic", "importance": <0.0-1.0>}

Return [] if nothing durable was said.

<TRANSCRIPT>
%s
</TRANSCRIPT>`

// Extract asks the model for durable facts. Malformed JSON gets one
// corrective re-prompt before the extraction is abandoned.
func (e *Extractor) Extract(ctx context.Context, transcript []llm.Message) ([]Candidate, error) {
	rendered := renderTranscript(transcript)
	if rendered == "" {
		return nil, nil
	}

	prompt := fmt.Sprintf(extractionPrompt, rendered)

	resp, err := e.provider.Chat(ctx, &llm.ChatRequest{
		Model:    e.model,
		Messages: []llm.Message{llm.NewMessage(llm.RoleUser, prompt)},
	})
	if err != nil {
		return nil, fmt.Errorf("extraction request: %w", err)
	}

	candidates, parseErr := parseCandidates(resp.Content)
	if parseErr == nil {
		return candidates, nil
	}

	// One bounded repair: re-prompt with the parse error.
	repair := fmt.Sprintf("Your previous response was not valid JSON (%v). Respond again with ONLY the JSON array.", parseErr)
	resp, err = e.provider.Chat(ctx, &llm.ChatRequest{
		Model: e.model,
		Messages: []llm.Message{
			llm.NewMessage(llm.RoleUser, prompt),
			llm.NewMessage(llm.RoleAssistant, resp.Content),
			llm.NewMessage(llm.RoleUser, repair),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extraction repair request: %w", err)
	}

	candidates, parseErr = parseCandidates(resp.Content)
	if parseErr != nil {
		return nil, fmt.Errorf("extraction output unparseable after repair: %w", parseErr)
	}
	return candidates, nil
}

func parseCandidates(content string) ([]Candidate, error) {
	content = strings.TrimSpace(content)

	// Tolerate fenced output; the payload itself must still be strict JSON.
	if start := strings.Index(content, "["); start >= 0 {
		if end := strings.LastIndex(content, "]"); end > start {
			content = content[start : end+1]
		}
	}

	var candidates []Candidate
	if err := json.Unmarshal([]byte(content), &candidates); err != nil {
		return nil, err
	}

	valid := candidates[:0]
	for _, c := range candidates {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		switch c.FactType {
		case "semantic", "preference", "episodic":
		default:
			c.FactType = "semantic"
		}
		if c.Importance < 0 {
			c.Importance = 0
		}
		if c.Importance > 1 {
			c.Importance = 1
		}
		valid = append(valid, c)
	}
	return valid, nil
}

func renderTranscript(transcript []llm.Message) string {
	var sb strings.Builder
	for _, m := range transcript {
		if m.Role == llm.RoleSystem {
			continue
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n", m.Role, m.Content))
	}
	return strings.TrimSpace(sb.String())
}
