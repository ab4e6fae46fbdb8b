package cli

// ANSI color codes
const (
	ColorReset      = "\033[0m"
	ColorLightBrown = "\033[38;5;180m" // Light brown/tan for user messages
	ColorOrange     = "\033[38;5;208m"
	ColorGray       = "\033[90m"
	ColorMagenta    = "\033[35m"
	ColorCyan       = "\033[36m"
	ColorGreen      = "\033[32m"
	ColorRed        = "\033[31m"
	ColorBold       = "\033[1m"
	ColorItalic     = "\033[3m"
)
