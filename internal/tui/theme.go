package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

type Theme string

const (
	ThemeDefault      Theme = "default"
	ThemeHighContrast Theme = "high-contrast"
)

// palette holds ANSI-256 color codes.
type palette struct {
	Foreground string
	Muted      string
	Accent     string
	Unread     string
	Error      string
	Badge      string
	Header     string
	Footer     string
	Selected   string
}

var palettes = map[Theme]palette{
	ThemeDefault: {
		Foreground: "252",
		Muted:      "245",
		Accent:     "75",
		Unread:     "81",
		Error:      "203",
		Badge:      "203",
		Header:     "111",
		Footer:     "110",
		Selected:   "75",
	},
	ThemeHighContrast: {
		Foreground: "231",
		Muted:      "250",
		Accent:     "51",
		Unread:     "87",
		Error:      "196",
		Badge:      "196",
		Header:     "231",
		Footer:     "231",
		Selected:   "51",
	},
}

func parseTheme(name string) (Theme, error) {
	if name == "" {
		return ThemeDefault, nil
	}
	theme := Theme(name)
	if _, ok := palettes[theme]; !ok {
		return "", fmt.Errorf("invalid theme %q", name)
	}
	return theme, nil
}

func themePalette(theme Theme) palette {
	if p, ok := palettes[theme]; ok {
		return p
	}
	return palettes[ThemeDefault]
}

type styles struct {
	base     lipgloss.Style
	muted    lipgloss.Style
	accent   lipgloss.Style
	unread   lipgloss.Style
	errText  lipgloss.Style
	badge    lipgloss.Style
	header   lipgloss.Style
	footer   lipgloss.Style
	selected lipgloss.Style
}

func newStyles(theme Theme) styles {
	p := themePalette(theme)
	return styles{
		base:     lipgloss.NewStyle().Foreground(lipgloss.Color(p.Foreground)),
		muted:    lipgloss.NewStyle().Foreground(lipgloss.Color(p.Muted)),
		accent:   lipgloss.NewStyle().Foreground(lipgloss.Color(p.Accent)),
		unread:   lipgloss.NewStyle().Foreground(lipgloss.Color(p.Unread)).Bold(true),
		errText:  lipgloss.NewStyle().Foreground(lipgloss.Color(p.Error)),
		badge:    lipgloss.NewStyle().Foreground(lipgloss.Color(p.Badge)).Bold(true),
		header:   lipgloss.NewStyle().Foreground(lipgloss.Color(p.Header)).Bold(true),
		footer:   lipgloss.NewStyle().Foreground(lipgloss.Color(p.Footer)),
		selected: lipgloss.NewStyle().Foreground(lipgloss.Color(p.Selected)).Bold(true),
	}
}
