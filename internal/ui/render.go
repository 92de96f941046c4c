package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	ksync "github.com/mschirtzinger/khata/internal/sync"
)

// Balance renders an amount the way the ledger shows it: positive means
// the customer owes the store.
func Balance(b decimal.Decimal) string {
	s := b.Round(3).String()
	switch b.Sign() {
	case 1:
		return RenderWarn(s)
	case -1:
		return RenderPass(s)
	default:
		return RenderMuted(s)
	}
}

// Outcome renders a sync result as a status line.
func Outcome(r ksync.Result) string {
	var mark string
	switch {
	case r.Outcome == ksync.Success:
		mark = RenderPass("✓")
	case r.Outcome == ksync.LocalOnly:
		mark = RenderWarn("●")
	case r.Outcome.IsFailure():
		mark = RenderFail("✗")
	default:
		mark = RenderMuted("…")
	}
	line := mark + " " + r.Message()
	if err := r.Err(); err != nil && r.Outcome.IsFailure() {
		line += RenderMuted(" (" + err.Error() + ")")
	}
	return line
}

// Since renders "just now", "5m ago", "3h ago" or a date.
func Since(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Local().Format("2006-01-02 15:04")
	}
}

// Table writes rows as aligned columns under a bold header.
func Table(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	line := func(cells []string, style func(string) string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			pad := 0
			if i < len(widths) {
				pad = widths[i] - lipgloss.Width(cell)
			}
			parts[i] = style(cell) + strings.Repeat(" ", pad)
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	line(header, RenderHeader)
	for _, row := range rows {
		line(row, func(s string) string { return s })
	}
}
