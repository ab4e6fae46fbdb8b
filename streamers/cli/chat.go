package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
)

// ChatHandler implements streamers.SessionHandler for terminal I/O.
type ChatHandler struct {
	reader   *bufio.Reader
	spinner  *spinner
	renderer *glamour.TermRenderer
}

// NewChatHandler creates a new CLI chat handler
func NewChatHandler() *ChatHandler {
	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	return &ChatHandler{
		reader:   bufio.NewReader(os.Stdin),
		spinner:  newSpinner(),
		renderer: renderer,
	}
}

func (s *ChatHandler) Welcome(mode string, modelName string) {
	fmt.Printf("%s%sStarting session in '%s' mode%s (model: %s)\n", ColorBold, ColorOrange, mode, ColorReset, modelName)
	fmt.Printf("%sType 'exit' or 'quit' to end the conversation.%s\n", ColorGray, ColorReset)
	fmt.Println()
}

// ReadInput prompts for and reads one line from stdin.
func (s *ChatHandler) ReadInput() (string, error) {
	fmt.Printf("%s>  %s", ColorGray, ColorReset)
	input, err := s.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	input = strings.TrimSpace(input)
	if input != "" {
		// Move cursor up, clear line, then re-print the user message indented
		fmt.Print("\033[1A\033[K")
		fmt.Printf("%s>  %s%s\n\n", ColorGray, ColorLightBrown, input+ColorReset)
	}
	return input, nil
}

func (s *ChatHandler) Goodbye() {
	fmt.Printf("%sGoodbye!%s\n", ColorGray, ColorReset)
}

func (s *ChatHandler) Thinking(step int) {
	s.spinner.Start("", "Thinking...")
}

func (s *ChatHandler) ToolSelected(step int, tool string, args string) {
	s.spinner.Stop()
	fmt.Printf("%s%sStep %d%s %s%s%s\n", ColorBold, ColorMagenta, step, ColorReset, ColorGray, tool, ColorReset)
}

func (s *ChatHandler) ToolExecuting(tool string) {
	s.spinner.Start("", fmt.Sprintf("Calling %s%s%s...", ColorBold, tool, ColorReset))
}

func (s *ChatHandler) ToolResult(tool string, result string, err error) {
	s.spinner.Stop()
	if err != nil {
		fmt.Printf("%s✗%s %s%s%s failed: %v\n\n", ColorRed, ColorReset, ColorBold, tool, ColorReset, err)
		return
	}
	fmt.Printf("%s✓%s %s%s%s called\n\n", ColorGray, ColorReset, ColorBold, tool, ColorReset)
}

func (s *ChatHandler) DelegateStarted(mode string, subtask string) {
	s.spinner.Stop()
	fmt.Printf("%sDelegating to '%s': %s%s\n", ColorLightBrown, mode, truncate(subtask, 80), ColorReset)
}

func (s *ChatHandler) DelegateCompleted(mode string, err error) {
	s.spinner.Stop()
	if err != nil {
		fmt.Printf("%sDelegate '%s' failed: %v%s\n", ColorRed, mode, err, ColorReset)
		return
	}
	fmt.Printf("%sDelegate '%s' finished%s\n", ColorLightBrown, mode, ColorReset)
}

func (s *ChatHandler) Synthesizing() {
	s.spinner.Start("", "Composing answer...")
}

func (s *ChatHandler) Message(content string) {
	s.spinner.Stop()

	if content == "" {
		return
	}

	// Render markdown
	rendered := content
	if s.renderer != nil {
		if out, err := s.renderer.Render(content); err == nil {
			rendered = out
		}
	}

	// Glamour adds leading/trailing newlines - trim them
	rendered = strings.TrimSpace(rendered)
	fmt.Printf("%s•%s %s\n\n", ColorGray, ColorReset, rendered)
}

func (s *ChatHandler) MessageEnd() {
	s.spinner.Stop()
}

func (s *ChatHandler) AskUser(question string) {
	s.spinner.Stop()
	fmt.Printf("%s?%s %s\n\n", ColorOrange, ColorReset, question)
}

func (s *ChatHandler) Error(err error) {
	s.spinner.Stop()
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

// truncate shortens a string to max length, adding ellipsis if needed
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// spinner handles the loading animation
type spinner struct {
	frames  []string
	stop    chan struct{}
	stopped chan struct{}
	mu      sync.Mutex
	running bool
}

func newSpinner() *spinner {
	return &spinner{
		frames:  []string{"◐", "◓", "◑", "◒"},
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (s *spinner) Start(prefix string, message string) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.stopped)
		i := 0
		for {
			select {
			case <-s.stop:
				fmt.Print("\r\033[K") // Clear line
				return
			default:
				if prefix != "" {
					fmt.Printf("\r%s %s%s%s %s", prefix, ColorOrange, s.frames[i%len(s.frames)], ColorReset, message)
				} else {
					fmt.Printf("\r%s%s%s %s", ColorGray, s.frames[i%len(s.frames)], ColorReset, message)
				}
				i++
				time.Sleep(80 * time.Millisecond)
			}
		}
	}()
}

func (s *spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stop)
	<-s.stopped
}
