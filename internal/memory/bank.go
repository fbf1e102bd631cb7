// Package memory keeps the broadcast from repeating itself: a phrase bank that
// hands out templates without reuse, and a bounded record of recently visited
// countries.
package memory

import (
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/talgya/atlas-live/internal/entropy"
)

// Phrase categories used by the narrative engine.
const (
	CategoryIntro      = "INTRO"
	CategoryConnector  = "CONNECTOR"
	CategoryLoop       = "LOOP"
	CategoryReflection = "REFLECTION"
)

// DefaultHardCap bounds the used-set across all categories.
const DefaultHardCap = 50

// Bank selects phrase templates so that a category is exhausted before any
// template repeats.
//
// Resets are coarse on purpose. When a category runs dry only that category's
// hashes are dropped; when the used-set across every category grows past the
// hard cap the whole set is dropped, which can let a phrase repeat earlier than
// strict exhaustion would. There is no LRU.
type Bank struct {
	mu        sync.Mutex
	templates map[string][]string
	used      map[uint64]struct{}
	hardCap   int
	rng       entropy.Source
}

// NewBank builds a bank over the given templates, keyed by category.
func NewBank(templates map[string][]string, hardCap int, rng entropy.Source) *Bank {
	if hardCap <= 0 {
		hardCap = DefaultHardCap
	}
	if rng == nil {
		rng = entropy.Crypto{}
	}
	b := &Bank{
		templates: make(map[string][]string, len(templates)),
		used:      make(map[uint64]struct{}),
		hardCap:   hardCap,
		rng:       rng,
	}
	for cat, list := range templates {
		b.templates[strings.ToUpper(cat)] = append([]string(nil), list...)
	}
	return b
}

func phraseHash(category, template string) uint64 {
	return xxhash.Sum64String(category + "\x00" + template)
}

// GetUniquePhrase picks an unused template from category and fills its
// {KEY} placeholders from replacements. Returns "" for an unknown category.
func (b *Bank) GetUniquePhrase(category string, replacements map[string]string) string {
	category = strings.ToUpper(category)

	b.mu.Lock()
	defer b.mu.Unlock()

	all := b.templates[category]
	if len(all) == 0 {
		return ""
	}

	candidates := make([]string, 0, len(all))
	for _, t := range all {
		if _, seen := b.used[phraseHash(category, t)]; !seen {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		for _, t := range all {
			delete(b.used, phraseHash(category, t))
		}
		candidates = all
	}

	chosen := candidates[entropy.Intn(b.rng, len(candidates))]
	b.used[phraseHash(category, chosen)] = struct{}{}

	if len(b.used) > b.hardCap {
		clear(b.used)
	}

	return fill(chosen, replacements)
}

// UsedCount reports how many templates of category are currently marked used.
func (b *Bank) UsedCount(category string) int {
	category = strings.ToUpper(category)

	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, t := range b.templates[category] {
		if _, ok := b.used[phraseHash(category, t)]; ok {
			n++
		}
	}
	return n
}

// Size is the number of hashes held across all categories.
func (b *Bank) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.used)
}

// SetTemplates replaces one category's templates and forgets its usage.
func (b *Bank) SetTemplates(category string, list []string) {
	category = strings.ToUpper(category)

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range b.templates[category] {
		delete(b.used, phraseHash(category, t))
	}
	b.templates[category] = append([]string(nil), list...)
}

func fill(template string, replacements map[string]string) string {
	if len(replacements) == 0 {
		return template
	}
	pairs := make([]string, 0, len(replacements)*2)
	for k, v := range replacements {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
