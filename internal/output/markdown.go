package output

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

const (
	defaultMarkdownWidth = 80
	minMarkdownWidth     = 20
)

// TerminalWidth returns the current terminal width or a fallback when unavailable.
func TerminalWidth(fallback int) int {
	if fallback <= 0 {
		fallback = defaultMarkdownWidth
	}
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	if cols, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && cols > 0 {
		return cols
	}
	return fallback
}

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// RenderMarkdown renders markdown using Glamour with terminal-aware wrapping.
// Output that is not a terminal gets the markdown source unchanged.
func RenderMarkdown(text string) (string, error) {
	if !IsTerminal() {
		return strings.TrimRight(text, "\n"), nil
	}
	return RenderMarkdownWithWidth(text, TerminalWidth(defaultMarkdownWidth))
}

// RenderMarkdownWithWidth renders markdown using Glamour with explicit wrapping.
func RenderMarkdownWithWidth(text string, width int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	width = max(width, minMarkdownWidth)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	rendered, err := renderer.Render(text)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(rendered, "\n"), nil
}

// TableStatus is one row of the status report.
type TableStatus struct {
	Name     string
	Count    int
	CacheAge time.Duration
	Cached   bool
}

// Status is everything `tally status` reports.
type Status struct {
	Owner   string
	Remote  string
	Online  bool
	State   string
	Pending int
	Tables  []TableStatus
	Usage   int64
	Quota   int64
}

// StatusMarkdown renders s as a markdown document.
func StatusMarkdown(s Status) string {
	var sb strings.Builder
	sb.WriteString("# Sync status\n\n")

	conn := "offline"
	if s.Online {
		conn = "online"
	}
	owner := s.Owner
	if owner == "" {
		owner = "_not logged in_"
	}
	fmt.Fprintf(&sb, "- **Owner:** %s\n", owner)
	fmt.Fprintf(&sb, "- **Remote:** %s (%s)\n", s.Remote, conn)
	fmt.Fprintf(&sb, "- **Store:** %s\n", s.State)
	fmt.Fprintf(&sb, "- **Pending operations:** %d\n", s.Pending)
	if s.Quota > 0 {
		fmt.Fprintf(&sb, "- **Local storage:** %s of %s\n", formatBytes(s.Usage), formatBytes(s.Quota))
	}

	if len(s.Tables) > 0 {
		sb.WriteString("\n| Collection | Rows | Cached |\n|---|---:|---|\n")
		for _, t := range s.Tables {
			cached := "no"
			if t.Cached {
				cached = FormatTimeAgo(t.CacheAge)
			}
			fmt.Fprintf(&sb, "| %s | %d | %s |\n", t.Name, t.Count, cached)
		}
	}
	return sb.String()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
