package main

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vamosnene/vamosnene/internal/storage"
)

func TestSourcesTable_Aligned(t *testing.T) {
	out := sourcesTable([]*storage.Source{
		{Code: "f1latam", Name: "F1Latam", Lang: "es", FeedURL: "https://f1latam.example.com/rss", Active: true},
		{Code: "ole", Name: "Olé", Lang: "es", FeedURL: "https://ole.example.com/rss/f1.xml", LastFetched: time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)},
	}).String()

	assert.Contains(t, out, "CODE")
	assert.Contains(t, out, "ole (off)")
	assert.Contains(t, out, "never")

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Greater(t, len(lines), 3)
	width := lipgloss.Width(lines[0])
	for _, line := range lines {
		assert.Equal(t, width, lipgloss.Width(line), "line %q", line)
	}
}
