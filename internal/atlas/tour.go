package atlas

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/talgya/atlas-live/internal/broadcast"
	"github.com/talgya/atlas-live/internal/ledger"
	"github.com/talgya/atlas-live/internal/narrative"
	"github.com/talgya/atlas-live/internal/visual"
	"github.com/talgya/atlas-live/internal/weather"
)

// Meta keys used to resume the itinerary after a restart.
const (
	metaCountry = "itinerary.country"
	metaDay     = "itinerary.day"
)

// MetaStore persists small key-value pairs.
type MetaStore interface {
	SaveMeta(key, value string) error
	GetMeta(key string) (string, error)
}

// Visits records narrated visits.
type Visits interface {
	AppendVisit(ctx context.Context, id string, rec ledger.VisitRecord) ledger.CountryMemory
}

// Weather reports current conditions at a location.
type Weather interface {
	Fetch(ctx context.Context, lat, lon float64) (*weather.Conditions, error)
}

// Tour turns the itinerary into playable plans.
type Tour struct {
	itin     *Itinerary
	narrator *narrative.Engine
	visits   Visits
	drift    *visual.Drift
	meta     MetaStore
	weather  Weather
	now      func() time.Time

	mu      sync.Mutex
	arrived bool
}

// TourOption configures a Tour.
type TourOption func(*Tour)

// WithMeta enables resume across restarts.
func WithMeta(m MetaStore) TourOption { return func(t *Tour) { t.meta = m } }

// WithDrift sets the camera drift for captions.
func WithDrift(d *visual.Drift) TourOption { return func(t *Tour) { t.drift = d } }

// WithWeather adds a conditions line to the first narration of each visit.
func WithWeather(w Weather) TourOption { return func(t *Tour) { t.weather = w } }

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) TourOption { return func(t *Tour) { t.now = now } }

// NewTour wires a tour. visits may be nil.
func NewTour(itin *Itinerary, narrator *narrative.Engine, visits Visits, opts ...TourOption) *Tour {
	t := &Tour{
		itin:     itin,
		narrator: narrator,
		visits:   visits,
		now:      time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	if t.drift == nil {
		t.drift = visual.NewDrift(visual.DefaultConfig())
	}
	return t
}

// Itinerary exposes the underlying itinerary.
func (t *Tour) Itinerary() *Itinerary { return t.itin }

// Resume restores the last saved position, if any.
func (t *Tour) Resume() {
	if t.meta == nil {
		return
	}
	id, err := t.meta.GetMeta(metaCountry)
	if err != nil {
		slog.Warn("itinerary resume failed", "error", err)
		return
	}
	if id == "" {
		return
	}
	day, _ := t.meta.GetMeta(metaDay)
	if !t.itin.Seek(id, parseDay(day)) {
		slog.Warn("itinerary resume: unknown country", "country", id)
		return
	}
	stop := t.itin.Current()
	slog.Info("itinerary resumed", "country", stop.Country.ID, "day", stop.Day)
}

// TakeArrival reports, once, that the last narration moved the tour to a new
// country.
func (t *Tour) TakeArrival() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	a := t.arrived
	t.arrived = false
	return a
}

// Narrate produces the narration for the current stop and advances the
// itinerary.
func (t *Tour) Narrate(ctx context.Context, trigger broadcast.Trigger) (broadcast.Plan, error) {
	stop := t.itin.Current()
	c := stop.Country
	local := t.localTime(c)

	res := t.narrator.Generate(ctx, c.Entity(), local, narrative.Context{
		DayOfVisit: stop.Day,
		Theme:      narrative.ThemeForDay(stop.Day),
		Mode:       narrative.ModeNarrative,
	})
	if res.Text == "" {
		return broadcast.Plan{}, fmt.Errorf("narrate %s: empty narration", c.ID)
	}

	if res.Diary != nil && t.visits != nil {
		t.visits.AppendVisit(ctx, c.ID, ledger.VisitRecord{
			Day:       stop.Day,
			Theme:     string(res.Type),
			Topic:     res.Diary.Topic,
			Content:   res.Diary.Content,
			LocalTime: res.Diary.Time,
		})
	}

	role := broadcast.RoleA
	if res.Type == narrative.TypeReflection {
		role = broadcast.RoleB
	}
	script := broadcast.Script{{Role: role, Text: res.Text}}
	if stop.Day == 1 && t.weather != nil {
		script = append(script, broadcast.DialogueLine{Role: broadcast.RoleA, Text: t.conditions(ctx, c)})
	}
	plan := broadcast.NewPlan(broadcast.ActionNarrative, trigger, script)
	plan.Country = c.ID
	focus := broadcast.Focus{Lat: c.Lat, Lon: c.Lon, Zoom: 5}
	plan.Focus = &focus

	if t.itin.Advance() {
		t.mu.Lock()
		t.arrived = true
		t.mu.Unlock()
	}
	t.save()

	slog.Info("narration planned", "country", c.ID, "day", stop.Day, "type", res.Type, "trigger", trigger)
	return plan, nil
}

// Caption produces a visual plan: a loop caption and a camera focus near the
// current country.
func (t *Tour) Caption(ctx context.Context, trigger broadcast.Trigger) (broadcast.Plan, error) {
	stop := t.itin.Current()
	c := stop.Country

	res := t.narrator.Generate(ctx, c.Entity(), t.localTime(c), narrative.Context{
		DayOfVisit: stop.Day,
		Theme:      narrative.ThemeForDay(stop.Day),
		Mode:       narrative.ModeLoop,
	})
	if res.Text == "" {
		return broadcast.Plan{}, fmt.Errorf("caption %s: empty caption", c.ID)
	}

	plan := broadcast.NewPlan(broadcast.ActionVisual, trigger, broadcast.Script{{Role: broadcast.RoleA, Text: res.Text}})
	plan.Country = c.ID
	focus := t.drift.Next(c.Lat, c.Lon)
	plan.Focus = &focus

	slog.Debug("caption planned", "country", c.ID, "focus", focus)
	return plan, nil
}

// conditions phrases the weather in c, falling back to the season when the
// lookup fails.
func (t *Tour) conditions(ctx context.Context, c Country) string {
	cond, err := t.weather.Fetch(ctx, c.Lat, c.Lon)
	if err != nil {
		slog.Warn("weather lookup failed", "country", c.ID, "error", err)
		cond = nil
	}
	return weather.Describe(cond, c.Name, c.Lat, t.now())
}

func (t *Tour) save() {
	if t.meta == nil {
		return
	}
	stop := t.itin.Current()
	if err := t.meta.SaveMeta(metaCountry, stop.Country.ID); err != nil {
		slog.Warn("itinerary save failed", "error", err)
		return
	}
	if err := t.meta.SaveMeta(metaDay, strconv.Itoa(stop.Day)); err != nil {
		slog.Warn("itinerary save failed", "error", err)
	}
}

// localTime formats the wall clock in c's zone as HH:MM. Unknown zones fall
// back to UTC.
func (t *Tour) localTime(c Country) string {
	now := t.now()
	if c.TimeZone == "" {
		return now.UTC().Format("15:04")
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		slog.Warn("unknown time zone, using UTC", "country", c.ID, "zone", c.TimeZone, "error", err)
		return now.UTC().Format("15:04")
	}
	return now.In(loc).Format("15:04")
}
