// Package classifier tags raw tables with a domain category by counting keyword
// hits in their header rows and surrounding page text.
package classifier

import (
	"slices"
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/dataset"
)

const (
	DefaultThreshold    = 3
	DefaultContextChars = 500
	DefaultHeaderRows   = 2
)

// KeywordSet is the vocabulary of one category. The order of sets handed to
// the engine is the tie-break order.
type KeywordSet struct {
	Category dataset.Category
	Keywords []string
}

// Options tune classification.
type Options struct {
	// Threshold is the minimum number of distinct keyword hits a category
	// needs before it can win.
	Threshold int
	// ContextChars bounds how much page text (in runes) is scanned.
	ContextChars int
	// HeaderRows is how many leading grid rows count as header text.
	HeaderRows int
}

func (o Options) withDefaults() Options {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.ContextChars < 0 {
		o.ContextChars = 0
	} else if o.ContextChars == 0 {
		o.ContextChars = DefaultContextChars
	}
	if o.HeaderRows <= 0 {
		o.HeaderRows = DefaultHeaderRows
	}
	return o
}

// Classification is the outcome for one table. Score is the winning category's
// hit count, or the best observed count when the table fell back to other.
type Classification struct {
	Category dataset.Category
	Score    int
	Scores   map[dataset.Category]int
}

// Engine matches every keyword of every category in a single pass over the
// folded table text using an Aho-Corasick automaton.
type Engine struct {
	matcher    *ahocorasick.Matcher
	patterns   []string
	owners     [][]int // category indexes per pattern
	categories []dataset.Category
	opts       Options
	mu         sync.RWMutex
}

// NewEngine builds an engine for the given keyword sets.
func NewEngine(sets []KeywordSet, opts Options) *Engine {
	e := &Engine{opts: opts.withDefaults()}
	e.Build(sets)
	return e
}

// Build (re)compiles the automaton. A keyword shared by two categories counts
// for both; duplicates inside one category count once.
func (e *Engine) Build(sets []KeywordSet) {
	e.mu.Lock()
	defer e.mu.Unlock()

	patternIndex := make(map[string]int)
	var patterns []string
	var owners [][]int
	categories := make([]dataset.Category, 0, len(sets))

	for ci, set := range sets {
		categories = append(categories, set.Category)
		for _, kw := range set.Keywords {
			clean := dataset.Fold(kw)
			if clean == "" {
				continue
			}
			idx, ok := patternIndex[clean]
			if !ok {
				idx = len(patterns)
				patternIndex[clean] = idx
				patterns = append(patterns, clean)
				owners = append(owners, nil)
			}
			if !slices.Contains(owners[idx], ci) {
				owners[idx] = append(owners[idx], ci)
			}
		}
	}

	e.categories = categories
	e.patterns = patterns
	e.owners = owners
	if len(patterns) == 0 {
		e.matcher = nil
		return
	}
	e.matcher = ahocorasick.NewStringMatcher(patterns)
}

// Classify scores a table against every category. It depends only on the
// table's header rows and context.
func (e *Engine) Classify(table dataset.RawTable) Classification {
	return e.ClassifyText(e.text(table))
}

// ClassifyText scores already assembled text.
func (e *Engine) ClassifyText(text string) Classification {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := Classification{
		Category: dataset.CategoryOther,
		Scores:   make(map[dataset.Category]int, len(e.categories)),
	}
	if e.matcher == nil {
		return result
	}

	counts := make([]int, len(e.categories))
	for _, idx := range e.matcher.MatchThreadSafe([]byte(dataset.Fold(text))) {
		if idx < 0 || idx >= len(e.owners) {
			continue
		}
		for _, ci := range e.owners[idx] {
			counts[ci]++
		}
	}

	best := -1
	for ci, n := range counts {
		result.Scores[e.categories[ci]] += n
		if best < 0 || n > counts[best] {
			best = ci
		}
	}
	if best < 0 {
		return result
	}

	result.Score = counts[best]
	if counts[best] >= e.opts.Threshold {
		result.Category = e.categories[best]
	}
	return result
}

// ClassifyBatch classifies tables and keeps their order.
func (e *Engine) ClassifyBatch(tables []dataset.RawTable) []Classification {
	out := make([]Classification, len(tables))
	for i, t := range tables {
		out[i] = e.Classify(t)
	}
	return out
}

// Text returns the folded text a table is classified on.
func (e *Engine) Text(table dataset.RawTable) string {
	return dataset.Fold(e.text(table))
}

func (e *Engine) text(table dataset.RawTable) string {
	var b strings.Builder
	for i, row := range table.Grid {
		if i >= e.opts.HeaderRows {
			break
		}
		for _, cell := range row {
			b.WriteString(cell)
			b.WriteByte(' ')
		}
	}
	b.WriteString(truncateRunes(table.Context, e.opts.ContextChars))
	return b.String()
}

// PatternCount returns the number of distinct keywords loaded.
func (e *Engine) PatternCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.patterns)
}

// IsEmpty reports whether no keywords are loaded.
func (e *Engine) IsEmpty() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.matcher == nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
