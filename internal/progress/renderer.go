package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/mattn/go-isatty"
)

// BarRenderer draws a two-line progress display (status + bar) on a TTY,
// or prints timestamped single lines on a non-TTY.
type BarRenderer struct {
	out       io.Writer
	start     time.Time
	isTTY     bool
	width     int
	lastEvent Event
	lines     int
}

// TerminalWidth reports the column count of f, or 80 when f is not a terminal.
func TerminalWidth(f *os.File) int {
	if !IsTerminal(f) {
		return 80
	}
	if w, _, err := term.GetSize(f.Fd()); err == nil && w > 0 {
		return w
	}
	return 80
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// NewBarRenderer creates a renderer that writes to out.
func NewBarRenderer(out *os.File) *BarRenderer {
	return &BarRenderer{
		out:   out,
		start: time.Now(),
		isTTY: IsTerminal(out),
		width: TerminalWidth(out),
	}
}

// newPlainRenderer is used by tests to force line mode.
func newPlainRenderer(out io.Writer) *BarRenderer {
	return &BarRenderer{out: out, start: time.Now(), width: 80}
}

// Handle processes a progress event. It satisfies the Callback type.
func (r *BarRenderer) Handle(e Event) {
	e.Elapsed = time.Since(r.start)
	if e.Stage == StageComplete {
		e.Percent = 1.0
	}

	// Line mode prints stage transitions and the final page only.
	prev := r.lastEvent
	r.lastEvent = e

	if r.isTTY {
		r.renderTTY(e)
		return
	}
	if e.Stage != prev.Stage || e.Error != nil || (e.Pages > 0 && e.Page == e.Pages) {
		r.renderPlain(e)
	}
}

// Finish clears the progress display and reports a failure if the last event carried one.
func (r *BarRenderer) Finish() {
	if r.isTTY && r.lines > 0 {
		r.clearLines()
	}
	if r.lastEvent.Error != nil {
		fmt.Fprintf(r.out, "  Error: %v\n", r.lastEvent.Error)
	}
}

func (r *BarRenderer) renderTTY(e Event) {
	if r.lines > 0 {
		r.clearLines()
	}

	msg := fmt.Sprintf("  %s", e.Message)
	if e.Pages > 0 {
		msg = fmt.Sprintf("  %s (page %d/%d)", e.Message, e.Page, e.Pages)
	}
	bar := renderBar(e.Percent, r.barWidth())
	line2 := fmt.Sprintf("  %s %3d%%  %s", bar, int(e.Percent*100), formatElapsed(e.Elapsed))

	fmt.Fprintf(r.out, "%s\n%s", msg, line2)
	r.lines = 2
}

func (r *BarRenderer) renderPlain(e Event) {
	if e.Pages > 0 {
		fmt.Fprintf(r.out, "[%s] %s (%d pages)\n", formatElapsed(e.Elapsed), e.Message, e.Pages)
		return
	}
	fmt.Fprintf(r.out, "[%s] %s\n", formatElapsed(e.Elapsed), e.Message)
}

func (r *BarRenderer) clearLines() {
	for i := 0; i < r.lines; i++ {
		if i == 0 {
			fmt.Fprint(r.out, "\r\033[2K")
		} else {
			fmt.Fprint(r.out, "\033[A\033[2K")
		}
	}
	fmt.Fprint(r.out, "\r")
	r.lines = 0
}

// barWidth leaves room for the percent and elapsed columns.
func (r *BarRenderer) barWidth() int {
	w := r.width - 16
	if w < 20 {
		w = 20
	}
	if w > 60 {
		w = 60
	}
	return w
}

// renderBar draws a [####....] style bar of the given width.
func renderBar(pct float64, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 1 {
		pct = 1
	}
	filled := int(pct * float64(width))
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

// formatElapsed formats a duration as M:SS.
func formatElapsed(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
