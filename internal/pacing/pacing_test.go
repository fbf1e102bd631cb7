package pacing

import (
	"math"
	"testing"
	"time"

	"github.com/talgya/atlas-live/internal/broadcast"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fixedSource float64

func (f fixedSource) Float() float64 { return float64(f) }

func newTestEngine(t *testing.T, cfg Config, draw float64) (*Engine, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	return New(cfg, WithClock(clock.now), WithSource(fixedSource(draw))), clock
}

func assertSumsToOne(t *testing.T, d Distribution) {
	t.Helper()
	if sum := d.Voice + d.Visual + d.Silence; math.Abs(sum-1) > 1e-6 {
		t.Fatalf("fractions sum to %v: %+v", sum, d)
	}
}

func TestColdStartReturnsTargets(t *testing.T) {
	e, _ := newTestEngine(t, DefaultConfig(), 0)
	if got := e.CurrentDistribution(); got != e.Targets() {
		t.Fatalf("cold start = %+v, want targets %+v", got, e.Targets())
	}

	// An event opened this instant still has zero tracked time.
	e.StartEvent(broadcast.ContentVoice)
	if got := e.CurrentDistribution(); got != e.Targets() {
		t.Fatalf("zero-length open event = %+v, want targets", got)
	}
}

func TestStartEventClosesPrevious(t *testing.T) {
	e, clock := newTestEngine(t, DefaultConfig(), 0)

	e.StartEvent(broadcast.ContentVoice)
	clock.advance(10 * time.Second)
	e.StartEvent(broadcast.ContentVisual)
	clock.advance(5 * time.Second)
	e.StartEvent(broadcast.ContentSilence)

	hist := e.History()
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist))
	}
	for _, ev := range hist {
		if ev.Open() {
			t.Fatalf("closed event still open: %+v", ev)
		}
	}
	if !hist[0].End.Equal(hist[1].Start) {
		t.Fatal("events overlap or leave a gap")
	}
	cur, ok := e.Current()
	if !ok || cur.Type != broadcast.ContentSilence {
		t.Fatalf("current = %+v, %v", cur, ok)
	}
}

func TestAtMostOneOpenEvent(t *testing.T) {
	e, clock := newTestEngine(t, DefaultConfig(), 0)
	ops := []func(){
		func() { e.StartEvent(broadcast.ContentVoice) },
		func() { e.StartEvent(broadcast.ContentVoice) },
		func() { e.EndCurrentEvent() },
		func() { e.EndCurrentEvent() },
		func() { e.StartEvent(broadcast.ContentVisual) },
		func() { e.StartEvent(broadcast.ContentSilence) },
		func() { e.EndCurrentEvent() },
	}
	for i, op := range ops {
		op()
		clock.advance(time.Second)
		open := 0
		for _, ev := range e.History() {
			if ev.Open() {
				open++
			}
		}
		if _, ok := e.Current(); ok {
			open++
		}
		if open > 1 {
			t.Fatalf("step %d: %d open events", i, open)
		}
	}
}

func TestDistribution(t *testing.T) {
	e, clock := newTestEngine(t, DefaultConfig(), 0)

	e.StartEvent(broadcast.ContentVoice)
	clock.advance(30 * time.Second)
	e.StartEvent(broadcast.ContentVisual)
	clock.advance(60 * time.Second)
	e.StartEvent(broadcast.ContentSilence)
	clock.advance(10 * time.Second) // open silence counts

	d := e.CurrentDistribution()
	assertSumsToOne(t, d)
	if math.Abs(d.Voice-0.30) > 1e-9 || math.Abs(d.Visual-0.60) > 1e-9 || math.Abs(d.Silence-0.10) > 1e-9 {
		t.Fatalf("distribution = %+v", d)
	}
}

func TestWindowClippingAndPruning(t *testing.T) {
	e, clock := newTestEngine(t, Config{Window: time.Minute}, 0)

	e.StartEvent(broadcast.ContentVoice)
	clock.advance(90 * time.Second) // voice 0..90s
	e.StartEvent(broadcast.ContentVisual)
	clock.advance(30 * time.Second) // visual 90..120s, now = 120s

	// Window is 60..120: voice clipped to 30s, visual 30s.
	d := e.CurrentDistribution()
	assertSumsToOne(t, d)
	if math.Abs(d.Voice-0.5) > 1e-9 || math.Abs(d.Visual-0.5) > 1e-9 {
		t.Fatalf("clipped distribution = %+v", d)
	}

	e.StartEvent(broadcast.ContentSilence)
	clock.advance(2 * time.Minute)

	if n := len(e.History()); n != 0 {
		t.Fatalf("history should be pruned, has %d", n)
	}
	d = e.CurrentDistribution()
	if d.Silence != 1 {
		t.Fatalf("only open silence should remain: %+v", d)
	}
}

func TestSumsToOneAcrossSequences(t *testing.T) {
	e, clock := newTestEngine(t, Config{Window: 5 * time.Minute}, 0)
	types := broadcast.ContentTypes
	for i := 0; i < 200; i++ {
		if i%7 == 3 {
			e.EndCurrentEvent()
		} else {
			e.StartEvent(types[i%len(types)])
		}
		clock.advance(time.Duration(1+i%13) * time.Second)
		assertSumsToOne(t, e.CurrentDistribution())
	}
}

func TestProbabilityTiers(t *testing.T) {
	tests := []struct {
		name      string
		voiceSecs int // out of 100 seconds
		want      float64
	}{
		{"deficit 0.15", 20, 0.95},
		{"deficit 0.05", 30, 0.75},
		{"on target", 35, 0.40},
		{"surplus 0.05", 40, 0.40},
		{"surplus 0.15", 50, 0.05},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, clock := newTestEngine(t, DefaultConfig(), 0)
			e.StartEvent(broadcast.ContentVoice)
			clock.advance(time.Duration(tt.voiceSecs) * time.Second)
			e.StartEvent(broadcast.ContentVisual)
			clock.advance(time.Duration(100-tt.voiceSecs) * time.Second)
			e.EndCurrentEvent()

			if got := e.SpeakProbability(); got != tt.want {
				t.Fatalf("probability = %v, want %v (dist %+v)", got, tt.want, e.CurrentDistribution())
			}
		})
	}
}

func TestTierBoundaries(t *testing.T) {
	tests := []struct {
		deficit float64
		want    float64
	}{
		{0.11, 0.95},
		{0.10, 0.75},
		{0.0001, 0.75},
		{0, 0.40},
		{-0.10, 0.40},
		{-0.1001, 0.05},
	}
	for _, tt := range tests {
		if got := tierFor(tt.deficit); got != tt.want {
			t.Errorf("tierFor(%v) = %v, want %v", tt.deficit, got, tt.want)
		}
	}
}

func TestShouldSpeak_DeficitUsesTopTier(t *testing.T) {
	// Voice at 0.20 against a 0.35 target: deficit 0.15 selects 0.95.
	e, clock := newTestEngine(t, DefaultConfig(), 0.94)
	e.StartEvent(broadcast.ContentVoice)
	clock.advance(20 * time.Second)
	e.StartEvent(broadcast.ContentSilence)
	clock.advance(80 * time.Second)

	if p := e.SpeakProbability(); p != 0.95 {
		t.Fatalf("probability = %v, want 0.95", p)
	}
	if !e.ShouldSpeak() {
		t.Fatal("draw 0.94 under 0.95 should speak")
	}

	e.rng = fixedSource(0.96)
	if e.ShouldSpeak() {
		t.Fatal("draw 0.96 over 0.95 should stay quiet")
	}
}
