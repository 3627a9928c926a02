package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// UI writes human-readable output. In JSON mode every method except JSON output is silent.
type UI struct {
	out         io.Writer
	errOut      io.Writer
	noColor     bool
	jsonMode    bool
	interactive bool
}

// NewUI creates a UI. Spinners and progress bars only render when interactive.
func NewUI(out, errOut io.Writer, jsonMode, noColor, interactive bool) *UI {
	return &UI{out: out, errOut: errOut, noColor: noColor, jsonMode: jsonMode, interactive: interactive && !jsonMode}
}

func (ui *UI) paint(c *color.Color, w io.Writer, format string, args ...any) {
	if ui.noColor {
		fmt.Fprintf(w, format, args...)
		return
	}
	c.Fprintf(w, format, args...)
}

// Success prints a success message.
func (ui *UI) Success(format string, args ...any) {
	if ui.jsonMode {
		return
	}
	ui.paint(color.New(color.FgGreen), ui.out, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Error prints an error message to stderr.
func (ui *UI) Error(format string, args ...any) {
	if ui.jsonMode {
		return
	}
	ui.paint(color.New(color.FgRed), ui.errOut, "✗ %s\n", fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (ui *UI) Warning(format string, args ...any) {
	if ui.jsonMode {
		return
	}
	ui.paint(color.New(color.FgYellow), ui.out, "⚠ %s\n", fmt.Sprintf(format, args...))
}

// Info prints an info message.
func (ui *UI) Info(format string, args ...any) {
	if ui.jsonMode {
		return
	}
	ui.paint(color.New(color.FgCyan), ui.out, "ℹ %s\n", fmt.Sprintf(format, args...))
}

// Section prints a section header.
func (ui *UI) Section(title string) {
	if ui.jsonMode {
		return
	}
	fmt.Fprintln(ui.out)
	ui.paint(color.New(color.FgMagenta, color.Bold), ui.out, "━━━ %s ━━━\n", strings.ToUpper(title))
	fmt.Fprintln(ui.out)
}

// KeyValue prints a key-value pair.
func (ui *UI) KeyValue(key string, value any) {
	if ui.jsonMode {
		return
	}
	ui.paint(color.New(color.FgYellow), ui.out, "  %s: ", key)
	fmt.Fprintf(ui.out, "%v\n", value)
}

// Text prints s as-is.
func (ui *UI) Text(s string) {
	if ui.jsonMode {
		return
	}
	fmt.Fprint(ui.out, s)
}

// Table prints a bordered table.
func (ui *UI) Table(headers []string, rows [][]string) {
	if ui.jsonMode || len(headers) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len([]rune(h))
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], len([]rune(cell)))
			}
		}
	}

	border := color.New(color.FgCyan, color.Bold)
	rule := func(left, mid, right string) {
		var sb strings.Builder
		sb.WriteString(left)
		for i, w := range widths {
			sb.WriteString(strings.Repeat("─", w+2))
			if i < len(widths)-1 {
				sb.WriteString(mid)
			}
		}
		sb.WriteString(right)
		ui.paint(border, ui.out, "%s\n", sb.String())
	}
	line := func(cells []string) {
		ui.paint(border, ui.out, "│")
		for i, w := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			fmt.Fprintf(ui.out, " %s%s ", cell, strings.Repeat(" ", w-len([]rune(cell))))
			ui.paint(border, ui.out, "│")
		}
		fmt.Fprintln(ui.out)
	}

	rule("┌", "┬", "┐")
	line(headers)
	rule("├", "┼", "┤")
	for _, row := range rows {
		line(row)
	}
	rule("└", "┴", "┘")
}

// Spinner shows an indeterminate spinner on stderr until the returned stop func is called.
func (ui *UI) Spinner(message string) (stop func()) {
	if !ui.interactive {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = ui.errOut
	s.Start()
	return s.Stop
}

// Progress is a determinate progress bar. A nil *Progress is a no-op.
type Progress struct {
	p   *mpb.Progress
	bar *mpb.Bar
}

// ProgressBar creates a progress bar on stderr.
func (ui *UI) ProgressBar(name string, total int) *Progress {
	if !ui.interactive {
		return nil
	}
	p := mpb.New(mpb.WithWidth(48), mpb.WithOutput(ui.errOut))
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DSyncSpaceR}),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 5}),
			decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 12}),
		),
	)
	return &Progress{p: p, bar: bar}
}

// Increment advances the bar by one.
func (p *Progress) Increment() {
	if p != nil {
		p.bar.Increment()
	}
}

// Wait completes the bar and waits for rendering to finish.
func (p *Progress) Wait() {
	if p == nil {
		return
	}
	p.bar.SetTotal(-1, true)
	p.p.Wait()
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// IsTerminal checks if stdout is a terminal.
func IsTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
