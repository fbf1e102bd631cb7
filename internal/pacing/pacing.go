// Package pacing keeps the long-run mix of voice, visual and silent airtime
// near configured targets over a rolling window.
package pacing

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/atlas-live/internal/broadcast"
	"github.com/talgya/atlas-live/internal/entropy"
)

// Defaults.
const (
	DefaultWindow        = 10 * time.Minute
	DefaultTargetVoice   = 0.35
	DefaultTargetVisual  = 0.45
	DefaultTargetSilence = 0.20
)

// Speaking probability tiers, keyed on the voice deficit.
const (
	tierFarBelow = 0.95 // deficit > 0.10
	tierBelow    = 0.75 // 0 < deficit <= 0.10
	tierAbove    = 0.40 // -0.10 <= deficit <= 0
	tierFarAbove = 0.05 // deficit < -0.10
	tierBand     = 0.10
)

// Distribution is the share of airtime per content type. The fields sum to 1
// whenever any time has been tracked.
type Distribution struct {
	Voice   float64 `json:"voice"`
	Visual  float64 `json:"visual"`
	Silence float64 `json:"silence"`
}

// Of returns the share for a content type.
func (d Distribution) Of(t broadcast.ContentType) float64 {
	switch t {
	case broadcast.ContentVoice:
		return d.Voice
	case broadcast.ContentVisual:
		return d.Visual
	case broadcast.ContentSilence:
		return d.Silence
	}
	return 0
}

// Config sets the window and targets.
type Config struct {
	Window  time.Duration
	Targets Distribution
}

// DefaultConfig returns the stock pacing configuration.
func DefaultConfig() Config {
	return Config{
		Window: DefaultWindow,
		Targets: Distribution{
			Voice:   DefaultTargetVoice,
			Visual:  DefaultTargetVisual,
			Silence: DefaultTargetSilence,
		},
	}
}

// Event is one interval of airtime. End is zero while the event is open.
type Event struct {
	ID    string                `json:"id"`
	Type  broadcast.ContentType `json:"type"`
	Start time.Time             `json:"start"`
	End   time.Time             `json:"end,omitempty"`
}

// Open reports whether the event has not been closed yet.
func (e Event) Open() bool { return e.End.IsZero() }

// Engine tracks content events and advises whether to speak.
type Engine struct {
	cfg  Config
	now  func() time.Time
	rng  entropy.Source
	mu   sync.Mutex
	hist []Event
	open *Event
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSource injects the random source used by ShouldSpeak.
func WithSource(src entropy.Source) Option {
	return func(e *Engine) { e.rng = src }
}

// New creates a pacing engine. Zero-valued config fields take defaults.
func New(cfg Config, opts ...Option) *Engine {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Targets == (Distribution{}) {
		cfg.Targets = DefaultConfig().Targets
	}
	e := &Engine{cfg: cfg, now: time.Now, rng: entropy.Crypto{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Targets returns the configured distribution.
func (e *Engine) Targets() Distribution {
	return e.cfg.Targets
}

// StartEvent closes any open event and opens a new one of type t.
func (e *Engine) StartEvent(t broadcast.ContentType) Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	e.closeLocked(now)
	e.open = &Event{ID: uuid.NewString(), Type: t, Start: now}
	return *e.open
}

// EndCurrentEvent closes the open event without opening another.
func (e *Engine) EndCurrentEvent() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeLocked(e.now())
}

func (e *Engine) closeLocked(now time.Time) {
	if e.open == nil {
		return
	}
	ev := *e.open
	ev.End = now
	if ev.End.Before(ev.Start) {
		ev.End = ev.Start
	}
	e.hist = append(e.hist, ev)
	e.open = nil
}

// Current returns the open event, if any.
func (e *Engine) Current() (Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.open == nil {
		return Event{}, false
	}
	return *e.open, true
}

// History returns the closed events still inside the window, oldest first.
func (e *Engine) History() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pruneLocked(e.now().Add(-e.cfg.Window))
	return append([]Event(nil), e.hist...)
}

func (e *Engine) pruneLocked(windowStart time.Time) {
	kept := e.hist[:0]
	for _, ev := range e.hist {
		if ev.End.After(windowStart) {
			kept = append(kept, ev)
		}
	}
	e.hist = kept
}

// CurrentDistribution measures the airtime shares inside the window. With no
// tracked time it returns the targets: assume on-target until proven otherwise.
func (e *Engine) CurrentDistribution() Distribution {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.distributionLocked()
}

func (e *Engine) distributionLocked() Distribution {
	now := e.now()
	windowStart := now.Add(-e.cfg.Window)
	e.pruneLocked(windowStart)

	totals := make(map[broadcast.ContentType]time.Duration, 3)
	add := func(t broadcast.ContentType, start, end time.Time) {
		if start.Before(windowStart) {
			start = windowStart
		}
		if end.After(start) {
			totals[t] += end.Sub(start)
		}
	}
	for _, ev := range e.hist {
		add(ev.Type, ev.Start, ev.End)
	}
	if e.open != nil {
		add(e.open.Type, e.open.Start, now)
	}

	var total time.Duration
	for _, d := range totals {
		total += d
	}
	if total <= 0 {
		return e.cfg.Targets
	}

	ft := float64(total)
	return Distribution{
		Voice:   float64(totals[broadcast.ContentVoice]) / ft,
		Visual:  float64(totals[broadcast.ContentVisual]) / ft,
		Silence: float64(totals[broadcast.ContentSilence]) / ft,
	}
}

// SpeakProbability maps the current voice deficit onto a speaking probability.
func (e *Engine) SpeakProbability() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return tierFor(e.cfg.Targets.Voice - e.distributionLocked().Voice)
}

func tierFor(deficit float64) float64 {
	switch {
	case deficit > tierBand:
		return tierFarBelow
	case deficit > 0:
		return tierBelow
	case deficit >= -tierBand:
		return tierAbove
	default:
		return tierFarAbove
	}
}

// ShouldSpeak draws against SpeakProbability. The answer is advisory and
// random so the broadcast does not fall into a mechanical rhythm.
func (e *Engine) ShouldSpeak() bool {
	p := e.SpeakProbability()
	draw := e.rng.Float()
	ok := draw < p
	slog.Debug("pacing decision", "probability", p, "draw", draw, "speak", ok)
	return ok
}
