package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	accent = lipgloss.Color("#00A3E0")
	muted  = lipgloss.Color("#95A5A6")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).PaddingRight(2)
	mutedStyle  = lipgloss.NewStyle().Foreground(muted)
)

func showBanner(w io.Writer) {
	lines := []string{
		titleStyle.Render("vamos nene"),
		mutedStyle.Render("F1 news · calendar · weather " + Version),
	}

	borderStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 3).
		MarginTop(1)

	fmt.Fprintln(w, borderStyle.Render(lipgloss.JoinVertical(lipgloss.Center, lines...)))
}
