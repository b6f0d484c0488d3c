// Package retrieval implements the corpus search behind the retrieval
// capability: a document store queried by similarity, returning
// source-attributed snippets formatted for the planner.
//
// From the orchestration loop's perspective the retrieval capability is an
// ordinary capability; the corpus reference is bound at construction time,
// not passed by the model.
package retrieval

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Document is one searchable source.
type Document struct {
	// ID is the source identifier echoed in snippet attributions.
	ID      string
	Content string
}

// Snippet is one scored search hit with its source attribution.
type Snippet struct {
	SourceID string
	Excerpt  string
	Score    float64
}

// Corpus is a searchable document collection.
type Corpus interface {
	// Search returns up to limit snippets ordered by descending relevance.
	// An empty result is not an error.
	Search(ctx context.Context, query string, limit int) ([]Snippet, error)
}

// ErrEmptyQuery is returned when a search query contains no usable terms.
var ErrEmptyQuery = errors.New("empty query")

// InMemoryCorpus scores documents by term overlap with the query. It is a
// deliberately simple stand-in for an external search index; anything
// implementing Corpus can replace it without touching the capability wiring.
type InMemoryCorpus struct {
	mu   sync.RWMutex
	docs []Document
	// ExcerptLen bounds the excerpt window; zero means 200 characters.
	ExcerptLen int
}

// NewInMemoryCorpus constructs a corpus over the given documents.
func NewInMemoryCorpus(docs ...Document) *InMemoryCorpus {
	return &InMemoryCorpus{docs: docs}
}

// Add appends a document to the corpus.
func (c *InMemoryCorpus) Add(doc Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = append(c.docs, doc)
}

// Len returns the document count.
func (c *InMemoryCorpus) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// Search implements Corpus. Score is the fraction of distinct query terms
// present in the document; ties break by document insertion order.
func (c *InMemoryCorpus) Search(_ context.Context, query string, limit int) ([]Snippet, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = 3
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	type scored struct {
		idx     int
		score   float64
		firstAt int
	}
	var hits []scored
	for i, doc := range c.docs {
		lower := strings.ToLower(doc.Content)
		matched := 0
		firstAt := -1
		for _, term := range terms {
			at := strings.Index(lower, term)
			if at < 0 {
				continue
			}
			matched++
			if firstAt < 0 || at < firstAt {
				firstAt = at
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, scored{idx: i, score: float64(matched) / float64(len(terms)), firstAt: firstAt})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]Snippet, 0, len(hits))
	for _, h := range hits {
		doc := c.docs[h.idx]
		out = append(out, Snippet{
			SourceID: doc.ID,
			Excerpt:  excerpt(doc.Content, h.firstAt, c.excerptLen()),
			Score:    h.score,
		})
	}
	return out, nil
}

func (c *InMemoryCorpus) excerptLen() int {
	if c.ExcerptLen > 0 {
		return c.ExcerptLen
	}
	return 200
}

// excerpt cuts a window of about size characters around the match position,
// snapping to rune boundaries.
func excerpt(content string, at, size int) string {
	// at is an offset into the lowercased content; lowercasing can shift
	// byte lengths for a few scripts, so clamp before slicing.
	if at > len(content) {
		at = len(content)
	}
	runes := []rune(content)
	if len(runes) <= size {
		return strings.TrimSpace(content)
	}

	// Count runes up to the byte offset of the match.
	start := len([]rune(content[:at])) - size/4
	if start < 0 {
		start = 0
	}
	end := start + size
	if end > len(runes) {
		end = len(runes)
		start = end - size
	}

	s := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		s = "..." + s
	}
	if end < len(runes) {
		s += "..."
	}
	return s
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

var _ Corpus = (*InMemoryCorpus)(nil)
