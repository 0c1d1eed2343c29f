package main

import (
	"io"
	"os"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// styles renders terminal output. Every style is a no-op when the target
// is not a terminal.
type styles struct {
	color   bool
	title   lipgloss.Style
	ok      lipgloss.Style
	err     lipgloss.Style
	warn    lipgloss.Style
	info    lipgloss.Style
	dim     lipgloss.Style
	emph    lipgloss.Style
	heading lipgloss.Style
}

func newStyles(f *os.File) styles {
	color := term.IsTerminal(int(f.Fd()))
	if !color {
		plain := lipgloss.NewStyle()
		return styles{title: plain, ok: plain, err: plain, warn: plain, info: plain, dim: plain, emph: plain, heading: plain}
	}
	return styles{
		color:   true,
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		ok:      lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		err:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		info:    lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		emph:    lipgloss.NewStyle().Bold(true),
		heading: lipgloss.NewStyle().Bold(true).Underline(true),
	}
}

func (s styles) severity(sev string) lipgloss.Style {
	switch sev {
	case "error":
		return s.err
	case "warning":
		return s.warn
	}
	return s.info
}

func (s styles) icon(sev string) string {
	switch sev {
	case "error":
		return s.err.Render("✗")
	case "warning":
		return s.warn.Render("⚠")
	}
	return s.info.Render("ℹ")
}

// writeCode prints C source, highlighted when color is on.
func writeCode(w io.Writer, code string, color bool) error {
	if !color {
		_, err := io.WriteString(w, code)
		return err
	}
	return quick.Highlight(w, code, "c", "terminal256", "monokai")
}
