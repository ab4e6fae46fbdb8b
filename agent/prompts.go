package agent

import (
	_ "embed"
	"fmt"
	"strings"

	"lectern/tools"
)

//go:embed system.md
var systemPromptTemplate string

// stopSequence keeps the model from hallucinating observations after its
// decision block.
const stopSequence = "___STOP___"

// buildSystemPrompt renders the reasoning prompt for a mode: its specialist
// instructions, its tool subset, its delegation targets, and any recalled
// memory about the user.
func buildSystemPrompt(mode *Mode, registry *tools.Registry, memoryFragment string) string {
	prompt := systemPromptTemplate

	prompt = strings.Replace(prompt, "{{MODE_PROMPT}}", mode.Prompt, 1)
	prompt = strings.Replace(prompt, "{{TOOLS}}", registry.Describe(mode.Tools), 1)
	prompt = strings.Replace(prompt, "{{DELEGATES}}", formatDelegates(mode.Delegates), 1)

	if memoryFragment != "" {
		memoryFragment = "\n# Memory\n\n" + memoryFragment + "\n"
	}
	prompt = strings.Replace(prompt, "{{MEMORY}}", memoryFragment, 1)

	return prompt
}

func formatDelegates(delegates []string) string {
	if len(delegates) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n# Delegation targets\n\n")
	for _, d := range delegates {
		sb.WriteString(fmt.Sprintf("- %s\n", d))
	}
	return sb.String()
}
