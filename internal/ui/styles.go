// Package ui renders CLI output and runs interactive prompts.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	ColorPass   = lipgloss.AdaptiveColor{Light: "#1a7f37", Dark: "#3fb950"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#9a6700", Dark: "#d29922"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#cf222e", Dark: "#f85149"}
	ColorAccent = lipgloss.AdaptiveColor{Light: "#0969da", Dark: "#58a6ff"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#6e7781", Dark: "#8b949e"}
)

var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail).Bold(true)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

func init() {
	if !IsTerminal(os.Stdout) || os.Getenv("NO_COLOR") != "" {
		DisableColor()
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// DisableColor switches every style to plain text.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func RenderPass(s string) string   { return PassStyle.Render(s) }
func RenderWarn(s string) string   { return WarnStyle.Render(s) }
func RenderFail(s string) string   { return FailStyle.Render(s) }
func RenderAccent(s string) string { return AccentStyle.Render(s) }
func RenderMuted(s string) string  { return MutedStyle.Render(s) }
func RenderHeader(s string) string { return HeaderStyle.Render(s) }
