package cli

import (
	"fmt"
	"sync"

	"lectern/checkpoint"
)

// TaskHandler implements streamers.TaskHandler for CLI output.
type TaskHandler struct {
	mu sync.Mutex
}

// NewTaskHandler creates a new CLI task handler
func NewTaskHandler() *TaskHandler {
	return &TaskHandler{}
}

func (s *TaskHandler) TaskStarted(taskID string, totalItems int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\n%s%s=== Task %s ===%s\n", ColorBold, ColorCyan, taskID, ColorReset)
	fmt.Printf("%sItems: %d%s\n\n", ColorGray, totalItems, ColorReset)
}

func (s *TaskHandler) TaskResumed(taskID string, alreadyCompleted int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\n%s%s=== Resuming task %s ===%s\n", ColorBold, ColorCyan, taskID, ColorReset)
	fmt.Printf("%sAlready completed: %d items%s\n\n", ColorGray, alreadyCompleted, ColorReset)
}

func (s *TaskHandler) ItemStarted(taskID, itemID string, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("  [%d] Starting %s\n", index, itemID)
}

func (s *TaskHandler) ItemCompleted(taskID, itemID string, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("  %s✓%s %s", ColorGreen, ColorReset, itemID)
	if summary != "" {
		fmt.Printf(" %s%s%s", ColorGray, truncate(summary, 80), ColorReset)
	}
	fmt.Println()
}

func (s *TaskHandler) ItemFailed(taskID, itemID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("  %s✗ %s FAILED: %v%s\n", ColorRed, itemID, err, ColorReset)
}

func (s *TaskHandler) ItemSkipped(taskID, itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("  %s- %s already done, skipping%s\n", ColorGray, itemID, ColorReset)
}

func (s *TaskHandler) Progress(p checkpoint.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("  %s%.0f%% (%d/%d done, %d failed)%s\n", ColorGray, p.Percent, p.Processed, p.Total, p.Failed, ColorReset)
}

func (s *TaskHandler) SynthesisStarted(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\n%sSynthesizing results...%s\n", ColorGray, ColorReset)
}

func (s *TaskHandler) TaskCompleted(taskID string, failedItems int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if failedItems > 0 {
		fmt.Printf("\n%s%s=== Task %s completed with %d failed items ===%s\n", ColorBold, ColorOrange, taskID, failedItems, ColorReset)
		return
	}
	fmt.Printf("\n%s%s=== Task %s completed ===%s\n", ColorBold, ColorGreen, taskID, ColorReset)
}

func (s *TaskHandler) TaskFailed(taskID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\n%s%s=== Task %s FAILED: %v ===%s\n", ColorBold, ColorRed, taskID, err, ColorReset)
}
