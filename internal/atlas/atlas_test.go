package atlas

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/talgya/atlas-live/internal/broadcast"
	"github.com/talgya/atlas-live/internal/ledger"
	"github.com/talgya/atlas-live/internal/memory"
	"github.com/talgya/atlas-live/internal/narrative"
	"github.com/talgya/atlas-live/internal/weather"
)

type fixedSource float64

func (f fixedSource) Float() float64 { return float64(f) }

type memMeta map[string]string

func (m memMeta) SaveMeta(k, v string) error { m[k] = v; return nil }
func (m memMeta) GetMeta(k string) (string, error) { return m[k], nil }

var catalogue = []Country{
	{ID: "jp", Name: "Japan", TimeZone: "Asia/Tokyo", Lat: 36.2, Lon: 138.2,
		Facts: []string{"Japan has 6,852 islands."}, Recommendations: []string{"Try an onsen."}},
	{ID: "pt", Name: "Portugal", TimeZone: "Europe/Lisbon", Lat: 39.4, Lon: -8.2,
		Facts: []string{"Lisbon is older than Rome."}},
	{ID: "pe", Name: "Peru", TimeZone: "America/Lima", Lat: -9.2, Lon: -75.0,
		Facts: []string{"Peru has over 3,000 potato varieties."}},
}

func fixedClock() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }

func newTestTour(t *testing.T, opts ...TourOption) (*Tour, *ledger.Store) {
	t.Helper()
	recent := memory.NewRecentSet(memory.DefaultRecentCap)
	itin, err := NewItinerary(catalogue, recent, fixedSource(0))
	if err != nil {
		t.Fatalf("itinerary: %v", err)
	}
	store := ledger.NewStore(nil)
	narrator := narrative.NewEngine(nil, recent, store, fixedSource(0), 0)
	opts = append([]TourOption{WithClock(fixedClock)}, opts...)
	return NewTour(itin, narrator, store, opts...), store
}

func TestNewItinerary_Empty(t *testing.T) {
	if _, err := NewItinerary(nil, nil, nil); err != ErrNoCountries {
		t.Fatalf("err = %v", err)
	}
}

func TestItinerary_AdvanceDays(t *testing.T) {
	itin, _ := NewItinerary(catalogue, nil, fixedSource(0))
	for day := 1; day <= 3; day++ {
		if s := itin.Current(); s.Day != day || s.Country.ID != "jp" {
			t.Fatalf("stop = %+v, want jp day %d", s, day)
		}
		arrived := itin.Advance()
		if arrived != (day == 3) {
			t.Fatalf("day %d arrived = %v", day, arrived)
		}
	}
	if s := itin.Current(); s.Day != 1 || s.Country.ID == "jp" {
		t.Fatalf("after day 3 stop = %+v", s)
	}
}

func TestItinerary_SkipsRecent(t *testing.T) {
	recent := memory.NewRecentSet(10)
	recent.Add("pt")
	itin, _ := NewItinerary(catalogue, recent, fixedSource(0))
	for i := 0; i < 3; i++ {
		itin.Advance()
	}
	if got := itin.Current().Country.ID; got != "pe" {
		t.Fatalf("next country = %s, want pe", got)
	}
}

func TestItinerary_AllRecentFallsBack(t *testing.T) {
	recent := memory.NewRecentSet(10)
	for _, c := range catalogue {
		recent.Add(c.ID)
	}
	itin, _ := NewItinerary(catalogue, recent, fixedSource(0))
	for i := 0; i < 3; i++ {
		itin.Advance()
	}
	if got := itin.Current().Country.ID; got == "jp" {
		t.Fatal("should not stay in the same country")
	}
}

func TestItinerary_SingleCountry(t *testing.T) {
	itin, _ := NewItinerary(catalogue[:1], nil, fixedSource(0))
	for i := 0; i < 3; i++ {
		itin.Advance()
	}
	if s := itin.Current(); s.Country.ID != "jp" || s.Day != 1 {
		t.Fatalf("stop = %+v", s)
	}
}

func TestItinerary_Seek(t *testing.T) {
	itin, _ := NewItinerary(catalogue, nil, nil)
	if !itin.Seek("pe", 7) {
		t.Fatal("seek failed")
	}
	if s := itin.Current(); s.Country.ID != "pe" || s.Day != 3 {
		t.Fatalf("stop = %+v", s)
	}
	if itin.Seek("xx", 1) {
		t.Fatal("unknown id accepted")
	}
}

func TestTour_Narrate(t *testing.T) {
	tour, store := newTestTour(t)
	ctx := context.Background()

	plan, err := tour.Narrate(ctx, broadcast.TriggerSystemStart)
	if err != nil {
		t.Fatalf("narrate: %v", err)
	}
	if plan.Action != broadcast.ActionNarrative || plan.Country != "jp" || plan.Trigger != broadcast.TriggerSystemStart {
		t.Fatalf("plan = %+v", plan)
	}
	if len(plan.Script) != 1 || plan.Script[0].Role != broadcast.RoleA {
		t.Fatalf("script = %+v", plan.Script)
	}
	if !strings.Contains(plan.Script[0].Text, "It is 21:00.") {
		t.Fatalf("local time missing: %q", plan.Script[0].Text)
	}

	mem := store.Load(ctx, "jp")
	if mem.TotalVisits != 1 || mem.Visits[0].Day != 1 || mem.Visits[0].LocalTime != "21:00" {
		t.Fatalf("memory = %+v", mem)
	}
	if s := tour.Itinerary().Current(); s.Day != 2 {
		t.Fatalf("day = %d, want 2", s.Day)
	}
	if tour.TakeArrival() {
		t.Fatal("no arrival expected on day 1")
	}
}

func TestTour_ArrivalAfterThirdDay(t *testing.T) {
	tour, _ := newTestTour(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := tour.Narrate(ctx, broadcast.TriggerManual); err != nil {
			t.Fatal(err)
		}
	}
	if !tour.TakeArrival() {
		t.Fatal("expected arrival")
	}
	if tour.TakeArrival() {
		t.Fatal("arrival reported twice")
	}
}

func TestTour_Caption(t *testing.T) {
	tour, store := newTestTour(t)
	plan, err := tour.Caption(context.Background(), broadcast.TriggerSilenceBreak)
	if err != nil {
		t.Fatalf("caption: %v", err)
	}
	if plan.Action != broadcast.ActionVisual || plan.Focus == nil {
		t.Fatalf("plan = %+v", plan)
	}
	if plan.Focus.Lat < 30 || plan.Focus.Lat > 43 {
		t.Fatalf("focus too far from Japan: %+v", plan.Focus)
	}
	if store.Load(context.Background(), "jp").TotalVisits != 0 {
		t.Fatal("caption recorded a visit")
	}
	if tour.Itinerary().Current().Day != 1 {
		t.Fatal("caption advanced the itinerary")
	}
}

func TestTour_ResumeFromMeta(t *testing.T) {
	meta := memMeta{}
	tour, _ := newTestTour(t, WithMeta(meta))
	tour.Narrate(context.Background(), broadcast.TriggerSystemStart)

	if meta[metaCountry] != "jp" || meta[metaDay] != "2" {
		t.Fatalf("meta = %v", meta)
	}

	meta[metaCountry] = "pt"
	meta[metaDay] = "3"
	restarted, _ := newTestTour(t, WithMeta(meta))
	restarted.Resume()
	if s := restarted.Itinerary().Current(); s.Country.ID != "pt" || s.Day != 3 {
		t.Fatalf("resumed at %+v", s)
	}
}

func TestTour_UnknownTimeZone(t *testing.T) {
	recent := memory.NewRecentSet(5)
	itin, _ := NewItinerary([]Country{{ID: "x", Name: "Nowhere", TimeZone: "Mars/Olympus"}}, recent, nil)
	narrator := narrative.NewEngine(nil, recent, nil, fixedSource(0), 0)
	tour := NewTour(itin, narrator, nil, WithClock(fixedClock))

	plan, err := tour.Narrate(context.Background(), broadcast.TriggerManual)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(plan.Script[0].Text, "It is 12:00.") {
		t.Fatalf("text = %q", plan.Script[0].Text)
	}
}

type stubWeather struct {
	cond  *weather.Conditions
	err   error
	calls int
}

func (s *stubWeather) Fetch(context.Context, float64, float64) (*weather.Conditions, error) {
	s.calls++
	return s.cond, s.err
}

func TestTour_WeatherOnFirstDay(t *testing.T) {
	w := &stubWeather{cond: &weather.Conditions{Temp: 8.4, Description: "light rain", IsRain: true}}
	tour, _ := newTestTour(t, WithWeather(w))
	ctx := context.Background()

	plan, err := tour.Narrate(ctx, broadcast.TriggerSystemStart)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Script) != 2 || plan.Script[1].Text != "It is raining in Japan, 8 degrees with light rain." {
		t.Fatalf("script = %+v", plan.Script)
	}

	plan, err = tour.Narrate(ctx, broadcast.TriggerSilenceBreak)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Script) != 1 || w.calls != 1 {
		t.Fatalf("weather repeated on day 2: script=%d calls=%d", len(plan.Script), w.calls)
	}
}

func TestTour_WeatherFailureFallsBackToSeason(t *testing.T) {
	w := &stubWeather{err: errors.New("offline")}
	tour, _ := newTestTour(t, WithWeather(w))

	plan, err := tour.Narrate(context.Background(), broadcast.TriggerSystemStart)
	if err != nil {
		t.Fatal(err)
	}
	// January in the northern hemisphere.
	if len(plan.Script) != 2 || !strings.Contains(plan.Script[1].Text, "winter") {
		t.Fatalf("script = %+v", plan.Script)
	}
}
