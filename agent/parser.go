package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// delegateOpenRe matches <DELEGATE mode="research"> with either quote style
// or none.
var delegateOpenRe = regexp.MustCompile(`<DELEGATE\s+mode=["']?([a-zA-Z0-9_-]+)["']?\s*>`)

// ParseDecision reads one tagged model response into a Decision. The model
// must pick exactly one of ACTION, DELEGATE, ANSWER, ASK_USER; anything else
// is a parse error the loop feeds back as a repair prompt.
func ParseDecision(content string) (*Decision, error) {
	d := &Decision{
		Reasoning: extractTag(content, "REASONING"),
	}

	action := extractTag(content, "ACTION")
	answer := extractTag(content, "ANSWER")
	question := extractTag(content, "ASK_USER")
	delegateMode, subtask := extractDelegate(content)

	chosen := 0
	if action != "" {
		chosen++
	}
	if delegateMode != "" {
		chosen++
	}
	if answer != "" {
		chosen++
	}
	if question != "" {
		chosen++
	}

	switch {
	case chosen == 0:
		return nil, fmt.Errorf("no ACTION, DELEGATE, ANSWER, or ASK_USER block found")
	case chosen > 1:
		return nil, fmt.Errorf("response contains more than one decision block")
	}

	switch {
	case action != "":
		d.Kind = DecisionUseTool
		d.Tool = action
		d.ArgsJSON = extractActionInput(content)
		if d.ArgsJSON == "" {
			return nil, fmt.Errorf("ACTION '%s' has no ACTION_INPUT block", action)
		}
		args, err := parseArgs(d.ArgsJSON)
		if err != nil {
			return nil, fmt.Errorf("ACTION_INPUT is not a JSON object: %v", err)
		}
		d.Args = args

	case delegateMode != "":
		d.Kind = DecisionDelegate
		d.DelegateMode = delegateMode
		d.Subtask = subtask
		if d.Subtask == "" {
			return nil, fmt.Errorf("DELEGATE block for mode '%s' has no subtask text", delegateMode)
		}

	case answer != "":
		d.Kind = DecisionFinish
		d.Answer = answer

	default:
		d.Kind = DecisionAskUser
		d.Question = question
	}

	return d, nil
}

// extractTag returns the trimmed text between <TAG> and </TAG>. A missing
// closing tag (stop-sequence cutoff) yields everything after the opener.
func extractTag(content, tag string) string {
	open := "<" + tag + ">"
	idx := strings.Index(content, open)
	if idx == -1 {
		return ""
	}
	rest := content[idx+len(open):]
	if end := strings.Index(rest, "</"+tag+">"); end != -1 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// extractActionInput is extractTag for ACTION_INPUT with JSON-aware
// trimming: fenced code blocks around the payload are tolerated.
func extractActionInput(content string) string {
	raw := extractTag(content, "ACTION_INPUT")
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	return strings.TrimSpace(raw)
}

func extractDelegate(content string) (mode, subtask string) {
	loc := delegateOpenRe.FindStringSubmatchIndex(content)
	if loc == nil {
		return "", ""
	}
	mode = content[loc[2]:loc[3]]
	rest := content[loc[1]:]
	if end := strings.Index(rest, "</DELEGATE>"); end != -1 {
		rest = rest[:end]
	}
	return mode, strings.TrimSpace(rest)
}

func parseArgs(raw string) (map[string]any, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
