// Package cli provides shared formatting helpers for CLI output.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ANSI color constants.
const (
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Red     = "\033[31m"
	Cyan    = "\033[36m"
	DimCyan = "\033[2;36m"
	Dim     = "\033[2m"
	Bold    = "\033[1m"
	Reset   = "\033[0m"
)

// Box width is the inner content width (between the border characters).
const boxWidth = 40

// Margin is the left indent for all branded output.
const margin = "  "

// Printer writes human-readable output. Colors are dropped when disabled.
type Printer struct {
	w     io.Writer
	color bool
}

// NewPrinter returns a Printer for w. Color is on only when w is a terminal
// and NO_COLOR is unset.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, color: colorEnabled(w)}
}

func colorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func (p *Printer) paint(code, s string) string {
	if !p.color {
		return s
	}
	return code + s + Reset
}

// Header prints a small heavy-border box with a title.
func (p *Printer) Header(title string) {
	heavyTop := margin + "\u250f" + strings.Repeat("\u2501", boxWidth) + "\u2513"
	heavyBottom := margin + "\u2517" + strings.Repeat("\u2501", boxWidth) + "\u251b"
	padded := padRight("  "+title, boxWidth)

	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, p.paint(Cyan, heavyTop))
	fmt.Fprintln(p.w, p.paint(Cyan, margin+"\u2503"+padded+"\u2503"))
	fmt.Fprintln(p.w, p.paint(Cyan, heavyBottom))
}

// Section prints a section divider line: ── Name ─────────────────
func (p *Printer) Section(name string) {
	prefix := "\u2500\u2500 " + name + " "
	remaining := boxWidth + 2 - runeLen(prefix)
	if remaining < 0 {
		remaining = 0
	}
	fmt.Fprintf(p.w, "\n%s%s\n\n", margin, p.paint(Cyan, prefix+strings.Repeat("\u2500", remaining)))
}

// Item prints one numbered result: a bold title, a dim detail line and an
// optional body.
func (p *Printer) Item(n int, title, detail, body string) {
	fmt.Fprintf(p.w, "%s%s %s\n", margin, p.paint(Dim, fmt.Sprintf("%2d.", n)), p.paint(Bold, title))
	if detail != "" {
		fmt.Fprintf(p.w, "%s    %s\n", margin, p.paint(DimCyan, detail))
	}
	if body != "" {
		fmt.Fprintf(p.w, "%s    %s\n", margin, body)
	}
}

// KV prints an aligned key/value line.
func (p *Printer) KV(key string, value any) {
	fmt.Fprintf(p.w, "%s%-14s %v\n", margin, key+":", value)
}

// Success prints a green check line.
func (p *Printer) Success(msg string) {
	fmt.Fprintf(p.w, "%s%s %s\n", margin, p.paint(Green, "\u2713"), msg)
}

// Warn prints a yellow warning line.
func (p *Printer) Warn(msg string) {
	fmt.Fprintf(p.w, "%s%s %s\n", margin, p.paint(Yellow, "!"), msg)
}

// Empty prints a dim placeholder line.
func (p *Printer) Empty(msg string) {
	fmt.Fprintf(p.w, "%s%s\n", margin, p.paint(Dim, msg))
}

// ShortenHome replaces $HOME prefix with ~.
func ShortenHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}

// FormatNumber adds comma separators (1234 -> "1,234").
func FormatNumber(n int) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return FormatNumber(n/1000) + "," + fmt.Sprintf("%03d", n%1000)
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if n <= 3 || len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// Ago renders t relative to now: "just now", "5m ago", "3h ago", "2d ago",
// then a plain date.
func Ago(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
	return t.Format("2006-01-02")
}

// padRight pads s with spaces to exactly width characters.
// If s is longer than width, it is truncated.
func padRight(s string, width int) string {
	n := runeLen(s)
	if n >= width {
		r := []rune(s)
		return string(r[:width])
	}
	return s + strings.Repeat(" ", width-n)
}

// runeLen counts the display width in runes.
func runeLen(s string) int {
	return len([]rune(s))
}
