package search

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vamosnene/vamosnene/internal/storage"
)

func setupTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.Open("bolt", filepath.Join(t.TempDir(), "test.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedArticles(t *testing.T, store storage.Store) []*storage.Article {
	t.Helper()
	recent := time.Now().Add(-time.Hour)
	arts := []*storage.Article{
		{UID: "1", SourceCode: "f1latam", Title: "Colapinto confirmado en Alpine", Snippet: "El argentino seguirá en el equipo", Tags: "colapinto,alpine", URL: "https://f1latam.test/1", Published: &recent},
		{UID: "2", SourceCode: "motorsport", Title: "Verstappen wins in Bahrain", Snippet: "Red Bull back on top", Tags: "verstappen,red-bull,win", URL: "https://motorsport.test/2"},
		{UID: "3", SourceCode: "motorsport", Title: "Alpine upgrades for Imola", Snippet: "New floor for Gasly and Colapinto", Tags: "alpine,gasly,colapinto", URL: "https://motorsport.test/3"},
	}
	for _, a := range arts {
		_, err := store.InsertArticle(context.Background(), a)
		require.NoError(t, err)
	}
	return arts
}

func TestSearchMinLength(t *testing.T) {
	engine := NewEngine(setupTestStore(t))

	tests := []struct {
		name  string
		query string
	}{
		{name: "Empty query", query: ""},
		{name: "Single character query", query: "a"},
		{name: "Whitespace only", query: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := engine.Search(context.Background(), tt.query, 10)
			assert.NoError(t, err)
			assert.NotNil(t, results)
			assert.Empty(t, results, "short queries should return empty results")
		})
	}
}

func TestEngineSearch(t *testing.T) {
	store := setupTestStore(t)
	arts := seedArticles(t, store)
	engine := NewEngine(store)

	results, err := engine.Search(context.Background(), "colapinto", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, arts[0].ID, results[0].ArticleID, "title match ranks first")
	assert.Equal(t, "f1latam", results[0].SourceCode)
	assert.NotEmpty(t, results[0].Matches)

	results, err = engine.Search(context.Background(), "Bahrain", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Verstappen wins in Bahrain", results[0].Title)

	results, err = engine.Search(context.Background(), "alpine", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = engine.Search(context.Background(), "monaco", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"colapinto", "clasificación", "p10"}, tokenize("Colapinto: ¡Clasificación P10!"))
	assert.Equal(t, []string{"red", "bull"}, tokenize("Red-Bull a"))
	assert.Empty(t, tokenize("a b c"))
}

func TestScoreField(t *testing.T) {
	assert.Zero(t, scoreField("", []string{"alpine"}, 1))
	assert.Zero(t, scoreField("Ferrari", []string{"alpine"}, 1))

	exact := scoreField("Alpine", []string{"alpine"}, 1)
	partial := scoreField("Alpinestars", []string{"alpine"}, 1)
	assert.Greater(t, exact, partial)
	assert.Equal(t, 2*exact, scoreField("Alpine", []string{"alpine"}, 2))
}

func TestRecencyBoost(t *testing.T) {
	assert.InDelta(t, 0.1, recencyBoost(0), 1e-9)
	assert.InDelta(t, 0.05, recencyBoost(84*time.Hour), 1e-9)
	assert.Zero(t, recencyBoost(8*24*time.Hour))
	assert.InDelta(t, 0.1, recencyBoost(-time.Hour), 1e-9)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "clasifi…", truncate("clasificación", 8))
}
