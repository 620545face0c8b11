package search

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/vamosnene/vamosnene/internal/storage"
)

// Engine ranks articles by scanning the store, for deployments without a
// search index.
type Engine struct {
	store storage.ArticleStore
	now   func() time.Time
}

// NewEngine creates a new search engine
func NewEngine(store storage.ArticleStore) *Engine {
	return &Engine{store: store, now: time.Now}
}

// Search scores every stored article against the query terms.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]*Result, error) {
	if len(strings.TrimSpace(query)) < 2 {
		return []*Result{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	terms := tokenize(query)
	if len(terms) == 0 {
		return []*Result{}, nil
	}

	results := []*Result{}
	err := e.store.ForEachArticle(ctx, func(a *storage.Article) error {
		if r := e.searchArticle(a, terms); r != nil {
			results = append(results, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Sort by relevance score (highest first), newer articles on ties
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ArticleID > results[j].ArticleID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (e *Engine) searchArticle(a *storage.Article, terms []string) *Result {
	var matches []Match
	var totalScore float64

	fields := []struct {
		name   string
		text   string
		weight float64
	}{
		{"title", a.Title, 4.0},
		{"tags", strings.ReplaceAll(a.Tags, ",", " "), 2.5},
		{"snippet", a.Snippet, 2.0},
		{"url", a.URL, 0.5},
	}
	for _, f := range fields {
		if score := scoreField(f.text, terms, f.weight); score > 0 {
			matches = append(matches, Match{Field: f.name, Text: truncate(f.text, 150), Weight: score})
			totalScore += score
		}
	}

	if totalScore == 0 {
		return nil
	}

	if a.Published != nil {
		totalScore *= 1.0 + recencyBoost(e.now().Sub(*a.Published))
	}

	return &Result{
		ArticleID:  a.ID,
		Title:      a.Title,
		URL:        a.URL,
		SourceCode: a.SourceCode,
		Score:      totalScore,
		Matches:    matches,
	}
}

// scoreField calculates relevance score for a field
func scoreField(text string, terms []string, weight float64) float64 {
	if text == "" {
		return 0
	}

	lower := strings.ToLower(text)
	words := tokenize(text)
	if len(words) == 0 {
		return 0
	}

	var score float64
	matchedTerms := 0

	for _, term := range terms {
		// Substring anywhere
		if strings.Contains(lower, term) {
			score += 2.0
			matchedTerms++
		}

		// Word boundary matches
		for _, word := range words {
			switch {
			case word == term:
				score += 1.5
				matchedTerms++
			case strings.HasPrefix(word, term) || strings.HasSuffix(word, term):
				score += 1.0
				matchedTerms++
			case strings.Contains(word, term):
				score += 0.5
				matchedTerms++
			}
		}
	}

	// Boost score if multiple terms match
	if len(terms) > 1 && matchedTerms > 1 {
		score *= 1.0 + float64(matchedTerms)/float64(len(terms))
	}

	tf := float64(matchedTerms) / float64(len(words))
	score *= 1.0 + math.Log(1.0+tf)

	return score * weight
}

// recencyBoost gives up to 10% to articles from the last week, fading
// linearly.
func recencyBoost(age time.Duration) float64 {
	const window = 7 * 24 * time.Hour
	if age < 0 {
		age = 0
	}
	if age >= window {
		return 0
	}
	return 0.1 * (1 - float64(age)/float64(window))
}

// tokenize breaks text into lower-case searchable terms
func tokenize(text string) []string {
	var terms []string
	current := strings.Builder{}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			current.WriteRune(unicode.ToLower(r))
		} else if current.Len() > 0 {
			if term := current.String(); len([]rune(term)) > 1 { // Skip single chars
				terms = append(terms, term)
			}
			current.Reset()
		}
	}

	if term := current.String(); len([]rune(term)) > 1 {
		terms = append(terms, term)
	}

	return terms
}

// truncate limits text length with ellipsis
func truncate(text string, maxLen int) string {
	r := []rune(text)
	if len(r) <= maxLen {
		return text
	}
	return string(r[:maxLen-1]) + "…"
}
