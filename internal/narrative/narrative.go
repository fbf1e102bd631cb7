// Package narrative writes the themed narration for a country on the
// itinerary: arrival context, local culture, curiosities, and the occasional
// closing reflection.
package narrative

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/talgya/atlas-live/internal/entropy"
	"github.com/talgya/atlas-live/internal/ledger"
	"github.com/talgya/atlas-live/internal/memory"
)

// DefaultReflectionThreshold: a day-3 curiosity becomes a reflection when the
// draw exceeds this value.
const DefaultReflectionThreshold = 0.7

// Theme is the subject of a day's narration.
type Theme string

const (
	ThemeHistory     Theme = "HISTORY"
	ThemeCulture     Theme = "CULTURE"
	ThemeCuriosities Theme = "CURIOSITIES"
)

// ThemeForDay maps the day of a visit to its theme.
func ThemeForDay(day int) Theme {
	switch day {
	case 2:
		return ThemeCulture
	case 3:
		return ThemeCuriosities
	default:
		return ThemeHistory
	}
}

// Mode selects full narration or a compact loop caption.
type Mode string

const (
	ModeNarrative Mode = "NARRATIVE"
	ModeLoop      Mode = "LOOP"
)

// Type labels the produced text.
type Type string

const (
	TypeHistory     Type = Type(ThemeHistory)
	TypeCulture     Type = Type(ThemeCulture)
	TypeCuriosities Type = Type(ThemeCuriosities)
	TypeReflection  Type = "REFLECTION"
	TypeLoop        Type = "LOOP"
)

// MaxDay is the number of days spent in each country.
const MaxDay = 3

// Entity is a country as the narrator sees it.
type Entity struct {
	ID              string
	Name            string
	Facts           []string
	Recommendations []string
}

// Context is supplied per call.
type Context struct {
	DayOfVisit      int
	Theme           Theme
	Mode            Mode
	ForceReflection bool
}

// DiaryEntry is the persisted record of one narrated visit.
type DiaryEntry struct {
	Country string `json:"country"`
	Time    string `json:"time"`
	Topic   string `json:"topic"`
	Content string `json:"content"`
}

// Result is the narration plus the diary entry to persist. Loop captions
// carry no diary entry.
type Result struct {
	Text  string      `json:"text"`
	Type  Type        `json:"type"`
	Diary *DiaryEntry `json:"diary_entry,omitempty"`
}

// History gives read access to what has already been said about a country.
type History interface {
	Load(ctx context.Context, id string) ledger.CountryMemory
}

// Engine generates narration.
type Engine struct {
	bank      *memory.Bank
	recent    *memory.RecentSet
	history   History
	rng       entropy.Source
	threshold float64
}

// NewEngine wires the narrator. history may be nil.
func NewEngine(bank *memory.Bank, recent *memory.RecentSet, history History, rng entropy.Source, threshold float64) *Engine {
	if rng == nil {
		rng = entropy.Crypto{}
	}
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultReflectionThreshold
	}
	if recent == nil {
		recent = memory.NewRecentSet(memory.DefaultRecentCap)
	}
	return &Engine{bank: bank, recent: recent, history: history, rng: rng, threshold: threshold}
}

// Recent exposes the recently visited set.
func (e *Engine) Recent() *memory.RecentSet { return e.recent }

// Generate produces narration for entity at localTime.
func (e *Engine) Generate(ctx context.Context, entity Entity, localTime string, nctx Context) Result {
	day := nctx.DayOfVisit
	if day < 1 {
		day = 1
	}
	if day > MaxDay {
		day = MaxDay
	}

	if nctx.Mode == ModeLoop {
		return Result{Text: e.loopCaption(entity), Type: TypeLoop}
	}

	var told ledger.CountryMemory
	if e.history != nil {
		told = e.history.Load(ctx, entity.ID)
	}

	var (
		typ     Type
		topic   string
		content string
	)

	switch {
	case nctx.ForceReflection || (day == MaxDay && nctx.Theme == ThemeCuriosities && e.rng.Float() > e.threshold):
		typ = TypeReflection
		topic = fmt.Sprintf("Day %d: Reflection", day)
		content = e.phrase(memory.CategoryReflection, entity, "")
		if content == "" {
			content = fmt.Sprintf("Three days in %s, and it already feels like leaving home.", entity.Name)
		}
	case nctx.Theme == ThemeCulture && len(entity.Recommendations) > 0:
		typ = TypeCulture
		topic = fmt.Sprintf("Day %d: Culture and Local Life", day)
		content = e.pick(entity.Recommendations, told)
	case nctx.Theme == ThemeCuriosities && len(entity.Facts) > 0:
		typ = TypeCuriosities
		topic = fmt.Sprintf("Day %d: Curiosities", day)
		fact := e.pick(entity.Facts, told)
		content = joinSentence(e.phrase(memory.CategoryConnector, entity, ""), fact)
	default:
		typ = Type(nctx.Theme)
		if typ == "" {
			typ = TypeHistory
		}
		topic = fmt.Sprintf("Day %d: Arrival and Context", day)
		content = firstFact(entity)
	}

	intro := e.phrase(memory.CategoryIntro, entity, "")
	if intro == "" {
		intro = fmt.Sprintf("Welcome to %s.", entity.Name)
	}
	text := fmt.Sprintf("%s It is %s. %s", intro, localTime, content)

	e.recent.Add(entity.ID)

	slog.Debug("narrative generated", "country", entity.ID, "day", day, "type", typ)

	return Result{
		Text: text,
		Type: typ,
		Diary: &DiaryEntry{
			Country: entity.Name,
			Time:    localTime,
			Topic:   topic,
			Content: content,
		},
	}
}

func (e *Engine) loopCaption(entity Entity) string {
	fact := firstFact(entity)
	if len(entity.Facts) > 0 {
		fact = entity.Facts[entropy.Intn(e.rng, len(entity.Facts))]
	}
	if caption := e.phrase(memory.CategoryLoop, entity, fact); caption != "" {
		return caption
	}
	return fmt.Sprintf("%s: %s", entity.Name, fact)
}

func (e *Engine) phrase(category string, entity Entity, fact string) string {
	if e.bank == nil {
		return ""
	}
	return e.bank.GetUniquePhrase(category, map[string]string{
		"COUNTRY": entity.Name,
		"FACT":    fact,
	})
}

// pick chooses uniformly among options not yet narrated for this country,
// or among all options once everything has been told.
func (e *Engine) pick(options []string, told ledger.CountryMemory) string {
	fresh := make([]string, 0, len(options))
	for _, o := range options {
		if !told.Narrated(o) && !narratedWithin(told, o) {
			fresh = append(fresh, o)
		}
	}
	if len(fresh) == 0 {
		fresh = options
	}
	return fresh[entropy.Intn(e.rng, len(fresh))]
}

// narratedWithin catches facts told behind a connector phrase.
func narratedWithin(told ledger.CountryMemory, s string) bool {
	for _, c := range told.AccumulatedNarrative {
		if strings.HasSuffix(c, s) {
			return true
		}
	}
	return false
}

func firstFact(entity Entity) string {
	if len(entity.Facts) > 0 {
		return entity.Facts[0]
	}
	return fmt.Sprintf("%s is still waiting to be discovered.", entity.Name)
}

func joinSentence(prefix, s string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return s
	}
	return prefix + " " + s
}
