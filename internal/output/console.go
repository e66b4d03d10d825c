package output

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/sasportasjordan/gladia-use-case/internal/protocol"
)

// eraseLine returns the cursor to column zero and clears the line
const eraseLine = "\r\x1b[2K"

// Theme defines the colors of the console transcript
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
}

// DefaultTheme is the default console theme
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds the styles derived from a theme
type Styles struct {
	Partial  lipgloss.Style
	Final    lipgloss.Style
	Heading  lipgloss.Style
	Headline lipgloss.Style
	Gist     lipgloss.Style
}

// NewStyles creates styles from a theme bound to a renderer
func NewStyles(r *lipgloss.Renderer, t Theme) Styles {
	return Styles{
		Partial:  r.NewStyle().Foreground(t.Dim).Italic(true),
		Final:    r.NewStyle(),
		Heading:  r.NewStyle().Bold(true).Foreground(t.Primary),
		Headline: r.NewStyle().Bold(true),
		Gist:     r.NewStyle().Foreground(t.Dim),
	}
}

// Console prints transcripts to a terminal. Final transcripts accumulate
// line by line while a partial transcript overwrites the previous partial.
type Console struct {
	mu       sync.Mutex
	w        io.Writer
	channels int
	styles   Styles

	// partial is true while an unconfirmed line is on screen
	partial bool
}

// NewConsole creates a console sink. channels is the channel count announced
// to the service and selects the transcript prefix.
func NewConsole(w io.Writer, channels int) *Console {
	return &Console{
		w:        w,
		channels: channels,
		styles:   NewStyles(lipgloss.NewRenderer(w), DefaultTheme),
	}
}

// Deliver renders one event
func (c *Console) Deliver(event protocol.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e := event.(type) {
	case protocol.PartialTranscript:
		c.clearPartial()
		fmt.Fprint(c.w, c.styles.Partial.Render(c.prefix(e.Channel)+e.Text))
		c.partial = true

	case protocol.FinalTranscript:
		c.clearPartial()
		fmt.Fprintln(c.w, c.styles.Final.Render(c.prefix(e.Channel)+e.Text))

	case protocol.SummarizationResult:
		c.clearPartial()
		fmt.Fprintln(c.w)
		fmt.Fprintln(c.w, c.styles.Heading.Render("## Summary"))
		fmt.Fprintln(c.w)
		fmt.Fprintln(c.w, e.Text)

	case protocol.ChapterizationResult:
		c.clearPartial()
		fmt.Fprintln(c.w)
		fmt.Fprintln(c.w, c.styles.Heading.Render("## Chapterization"))
		for _, chapter := range e.Chapters {
			fmt.Fprintln(c.w)
			if chapter.Headline != "" {
				fmt.Fprintln(c.w, c.styles.Headline.Render(chapter.Headline))
			}
			if chapter.Summary != "" {
				fmt.Fprintln(c.w, chapter.Summary)
			}
			if chapter.Gist != "" {
				fmt.Fprintln(c.w, c.styles.Gist.Render(chapter.Gist))
			}
		}
	}
}

func (c *Console) clearPartial() {
	if c.partial {
		fmt.Fprint(c.w, eraseLine)
		c.partial = false
	}
}

func (c *Console) prefix(channel int) string {
	if c.channels > 1 && channel != protocol.NoChannel {
		return fmt.Sprintf("%d: ", channel)
	}
	return "- "
}

// Flush terminates a pending partial line
func (c *Console) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.partial {
		fmt.Fprintln(c.w)
		c.partial = false
	}
}

// Banner prints a separator line with a title
func (c *Console) Banner(title string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearPartial()
	line := strings.Repeat("#", 10)
	fmt.Fprintln(c.w, c.styles.Heading.Render(line+" "+title+" "+line))
}
