package keyword

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/poiesic/mimir/core"
)

// DefaultTagBonus is added for each query token that equals a token of a
// document tag. Tags are tokenized like text, so "jwt-auth" matches "jwt".
const DefaultTagBonus = 2.0

// Hit is a document with a positive keyword score.
type Hit struct {
	Document *core.Document
	Score    float64
}

// Scorer scores documents by query token overlap.
// A Scorer is immutable and safe for concurrent use.
type Scorer struct {
	tagBonus float64
}

// Option configures a Scorer.
type Option func(*Scorer) error

// WithTagBonus sets the additive bonus for a tag match.
// Default is DefaultTagBonus.
func WithTagBonus(bonus float64) Option {
	return func(s *Scorer) error {
		if bonus < 0 {
			return fmt.Errorf("tag bonus must not be negative: %v", bonus)
		}
		s.tagBonus = bonus
		return nil
	}
}

// NewScorer creates a Scorer.
func NewScorer(opts ...Option) (*Scorer, error) {
	s := &Scorer{tagBonus: DefaultTagBonus}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// TagBonus returns the configured tag bonus.
func (s *Scorer) TagBonus() float64 {
	return s.tagBonus
}

// Score returns the keyword score of doc for query, 0 when nothing matches.
func (s *Scorer) Score(query string, doc *core.Document) float64 {
	return s.score(queryTokens(query), doc)
}

// Rank scores every document and returns the positive ones ordered by score
// descending, then UpdatedAt descending, then ID ascending. topK <= 0 returns
// every hit.
func (s *Scorer) Rank(query string, docs []*core.Document, topK int) []Hit {
	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return nil
	}

	var hits []Hit
	for _, doc := range docs {
		if score := s.score(tokens, doc); score > 0 {
			hits = append(hits, Hit{Document: doc, Score: score})
		}
	}

	slices.SortFunc(hits, compareHits)
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

func (s *Scorer) score(tokens []string, doc *core.Document) float64 {
	if doc == nil || len(tokens) == 0 {
		return 0
	}

	words := tokenSet(doc.Title, doc.Summary, doc.Body)
	tags := tokenSet(doc.Tags...)
	var score float64
	for _, tok := range tokens {
		if _, ok := words[tok]; ok {
			score++
		}
		if _, ok := tags[tok]; ok {
			score += s.tagBonus
		}
	}
	return score
}

func compareHits(a, b Hit) int {
	if a.Score != b.Score {
		return cmp.Compare(b.Score, a.Score)
	}
	if c := b.Document.UpdatedAt.Compare(a.Document.UpdatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.Document.Id, b.Document.Id)
}

// Suggest returns up to limit terms starting with prefix, drawn from document
// titles and tags and ordered by how many documents use them. An empty prefix
// suggests the most used tags.
func Suggest(prefix string, docs []*core.Document, limit int) []string {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	counts := make(map[string]int)

	for _, doc := range docs {
		seen := make(map[string]bool)
		add := func(term string) {
			if term == "" || seen[term] || !strings.HasPrefix(term, prefix) {
				return
			}
			seen[term] = true
			counts[term]++
		}
		for _, tag := range doc.Tags {
			add(strings.ToLower(strings.TrimSpace(tag)))
		}
		if prefix == "" {
			continue
		}
		for _, tok := range Tokenize(doc.Title) {
			if !stopWords[tok] {
				add(tok)
			}
		}
	}

	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	slices.SortFunc(terms, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if limit > 0 && len(terms) > limit {
		terms = terms[:limit]
	}
	return terms
}
