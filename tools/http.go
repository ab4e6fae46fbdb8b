package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const userAgent = "lectern"

const maxResponseBytes = 1 << 20 // 1 MiB

// HTTPTool is a config-declared tool bound to an HTTP endpoint. The URL
// template may reference arguments as ${inputs.name}; remaining arguments
// are sent as a JSON body for non-GET methods.
type HTTPTool struct {
	Name        string
	Description string
	Method      string
	URLTemplate string
	Schema      Schema
	Client      *http.Client
}

func (t *HTTPTool) ToolName() string {
	return t.Name
}

func (t *HTTPTool) ToolDescription() string {
	return t.Description
}

func (t *HTTPTool) ToolParamSchema() Schema {
	return t.Schema
}

func (t *HTTPTool) ToolSideEffect() SideEffect {
	if strings.EqualFold(t.Method, http.MethodGet) {
		return SideEffectRead
	}
	return SideEffectWrite
}

func (t *HTTPTool) Call(ctx context.Context, inv Invocation) (any, error) {
	url := t.URLTemplate
	body := make(map[string]any)

	for name, value := range inv.Args {
		placeholder := fmt.Sprintf("${inputs.%s}", name)
		if strings.Contains(url, placeholder) {
			url = strings.ReplaceAll(url, placeholder, fmt.Sprintf("%v", value))
			continue
		}
		body[name] = value
	}

	var reqBody io.Reader
	if len(body) > 0 && !strings.EqualFold(t.Method, http.MethodGet) {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(t.Method), url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(data), 500))
	}

	// Pass JSON responses through structured; anything else as text.
	var decoded any
	if json.Unmarshal(data, &decoded) == nil {
		return decoded, nil
	}
	return map[string]any{"body": string(data)}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
