// Package printer renders the one-line-per-decision status output.
package printer

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00F5D4")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true)
	skipStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD75F"))
	waitStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7FDBFF"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6ADC8"))
)

type Printer struct {
	out         io.Writer
	quiet       bool
	color       bool
	interactive bool
	columns     int
	titleWidth  int
	bar         progress.Model

	mu          sync.Mutex
	hadProgress bool
}

// New returns a printer writing to out. Colors and the progress bar are only
// used when out is a terminal.
func New(out io.Writer, quiet bool) *Printer {
	columns := terminalColumns()
	if columns <= 0 {
		columns = 100
	}

	titleWidth := columns - 44
	if titleWidth < 20 {
		titleWidth = 20
	}
	if titleWidth > 60 {
		titleWidth = 60
	}

	tty := isTerminal(out)
	return &Printer{
		out:         out,
		quiet:       quiet,
		color:       tty && supportsColor(),
		interactive: tty,
		columns:     columns,
		titleWidth:  titleWidth,
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithWidth(24), progress.WithoutPercentage()),
	}
}

func (p *Printer) Prefix(index, total int, title string) string {
	if total <= 0 {
		total = 1
	}
	width := len(strconv.Itoa(total))
	idx := fmt.Sprintf("%*d/%d", width, index, total)
	return fmt.Sprintf("[%s] %-*s", idx, p.titleWidth, truncateText(title, p.titleWidth))
}

// Progress redraws the upload bar in place. It is a no-op off a terminal.
func (p *Printer) Progress(prefix string, sent, total int64) {
	if p.quiet || !p.interactive {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	fraction := 0.0
	if total > 0 {
		fraction = float64(sent) / float64(total)
	}
	p.hadProgress = true
	fmt.Fprintf(p.out, "\r%s %s %5.1f%% %s / %s", prefix, p.bar.ViewAs(fraction), fraction*100,
		padLeft(HumanBytes(sent), 9), padLeft(HumanBytes(total), 9))
}

// ItemResult reports the end of an item: OK with detail, or FAIL with err.
func (p *Printer) ItemResult(prefix, detail string, err error) {
	if err == nil && p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearProgress()

	status, style := "OK", okStyle
	if err != nil {
		status, style = "FAIL", failStyle
		detail = err.Error()
	}
	p.line(prefix, status, style, detail)
}

func (p *Printer) ItemSkipped(prefix, reason string) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearProgress()
	p.line(prefix, "SKIP", skipStyle, reason)
}

// ItemWaiting reports the pause before the next item.
func (p *Printer) ItemWaiting(prefix string, d time.Duration) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearProgress()
	p.line(prefix, "WAIT", waitStyle, fmt.Sprintf("next upload in %s", formatDurationShort(d)))
}

// Notice prints a free-form informational line, such as a rename.
func (p *Printer) Notice(msg string) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearProgress()
	fmt.Fprintln(p.out, p.colorize(msg, dimStyle))
}

// Warn prints a line even in quiet mode.
func (p *Printer) Warn(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearProgress()
	fmt.Fprintf(p.out, "%s %s\n", p.colorize("WARN", skipStyle), msg)
}

func (p *Printer) Summary(total, ok, failed, skipped int) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "Summary: %s %d | %s %d | %s %d | TOTAL %d\n",
		p.colorize("OK", okStyle), ok,
		p.colorize("FAIL", failStyle), failed,
		p.colorize("SKIP", skipStyle), skipped, total)
}

func (p *Printer) line(prefix, status string, style lipgloss.Style, detail string) {
	maxDetail := p.columns - len(prefix) - len(status) - 3
	if maxDetail < 0 {
		maxDetail = 0
	}
	fmt.Fprintf(p.out, "%s %s %s\n", prefix, p.colorize(status, style), truncateText(detail, maxDetail))
}

func (p *Printer) colorize(text string, style lipgloss.Style) string {
	if !p.color {
		return text
	}
	return style.Render(text)
}

func (p *Printer) clearProgress() {
	if !p.hadProgress {
		return
	}
	p.hadProgress = false
	fmt.Fprintf(p.out, "\r%s\r", strings.Repeat(" ", p.columns))
}

// HumanBytes formats n with a binary unit suffix.
func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for n >= unit*div && exp < 4 {
		div *= unit
		exp++
	}
	value := float64(n) / float64(div)
	suffix := []string{"KB", "MB", "GB", "TB", "PB"}
	return fmt.Sprintf("%.1f%s", value, suffix[exp])
}

// formatDurationShort renders "45s", "2m30s" or "1h15m".
func formatDurationShort(d time.Duration) string {
	totalSeconds := int64(d.Seconds())

	if d < time.Minute {
		return fmt.Sprintf("%ds", totalSeconds)
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", totalSeconds/60, totalSeconds%60)
	}
	return fmt.Sprintf("%dh%dm", totalSeconds/3600, (totalSeconds%3600)/60)
}

func padLeft(value string, width int) string {
	if len(value) >= width {
		return value
	}
	return strings.Repeat(" ", width-len(value)) + value
}

// truncateText bounds text to max runes, marking the cut with "...".
func truncateText(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func terminalColumns() int {
	if columns := os.Getenv("COLUMNS"); columns != "" {
		if val, err := strconv.Atoi(columns); err == nil && val > 0 {
			return val
		}
	}
	return 0
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func supportsColor() bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	return true
}
