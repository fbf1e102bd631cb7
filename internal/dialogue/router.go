// Package dialogue decides the next two-character exchange. It asks the
// generation endpoint once and falls back to a shuffle bag of pre-authored
// scripts whenever the answer is unusable.
package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/talgya/atlas-live/internal/broadcast"
	"github.com/talgya/atlas-live/internal/entropy"
)

// DefaultTemperature is sent with every generation request.
const DefaultTemperature = 0.9

// Generator is the generation endpoint.
type Generator interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
}

// Config configures a Router.
type Config struct {
	Topics      []string
	Seeds       []broadcast.Script
	Tags        Tags
	Temperature float64
	// Names are the on-air names of the two roles, used in the prompt.
	NameA, NameB string
}

// Router produces dialogue plans.
type Router struct {
	gen  Generator
	bag  *Bag
	cfg  Config
	mu   sync.Mutex
	next int
}

// NewRouter creates a router. gen may be nil, in which case every move comes
// from the bag.
func NewRouter(gen Generator, cfg Config, rng entropy.Source) *Router {
	if cfg.Tags.A == "" || cfg.Tags.B == "" {
		cfg.Tags = DefaultTags
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.NameA == "" {
		cfg.NameA = cfg.Tags.A
	}
	if cfg.NameB == "" {
		cfg.NameB = cfg.Tags.B
	}
	cfg.Topics = append([]string(nil), cfg.Topics...)
	return &Router{gen: gen, bag: NewBag(cfg.Seeds, rng), cfg: cfg}
}

// Bag exposes the fallback bag.
func (r *Router) Bag() *Bag { return r.bag }

// SetSeeds replaces the fallback seed set from the next refill on.
func (r *Router) SetSeeds(seeds []broadcast.Script) {
	r.bag.SetSeeds(seeds)
}

// SetTopics replaces the topic rotation.
func (r *Router) SetTopics(topics []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.Topics = append([]string(nil), topics...)
	r.next = 0
}

func (r *Router) nextTopic() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cfg.Topics) == 0 {
		return "whatever is on your mind"
	}
	t := r.cfg.Topics[r.next%len(r.cfg.Topics)]
	r.next++
	return t
}

// DecideNextMove returns a dialogue plan for trigger. The generator is called
// exactly once; an error or a reply with no tagged lines falls back to the
// bag. Both paths return the same plan shape.
func (r *Router) DecideNextMove(ctx context.Context, trigger broadcast.Trigger) broadcast.Plan {
	topic := r.nextTopic()

	var script broadcast.Script
	if r.gen != nil {
		text, err := r.gen.Generate(ctx, r.buildPrompt(topic, trigger), r.cfg.Temperature)
		if err != nil {
			slog.Warn("dialogue generation failed, using fallback", "trigger", trigger, "error", err)
		} else if script = ParseScript(text, r.cfg.Tags); len(script) == 0 {
			slog.Warn("dialogue generation returned no usable lines, using fallback", "trigger", trigger)
		}
	}

	if len(script) == 0 {
		script = r.bag.Draw()
		slog.Debug("fallback dialogue drawn", "remaining", r.bag.Len(), "round", r.bag.Round())
	}

	return broadcast.NewPlan(broadcast.ActionDialogue, trigger, script)
}

func (r *Router) buildPrompt(topic string, trigger broadcast.Trigger) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write a short on-air exchange between %s and %s, the two hosts of a live travel broadcast.\n",
		r.cfg.NameA, r.cfg.NameB)
	fmt.Fprintf(&b, "TOPIC: %s\n", topic)
	fmt.Fprintf(&b, "MOMENT: %s\n\n", triggerLabel(trigger))
	fmt.Fprintf(&b, "Write 2 to 4 lines. Start every line with [%s] or [%s]. No other text.\n",
		r.cfg.Tags.A, r.cfg.Tags.B)
	return b.String()
}

func triggerLabel(t broadcast.Trigger) string {
	switch t {
	case broadcast.TriggerSystemStart:
		return "the broadcast just went live, greet the audience"
	case broadcast.TriggerSilenceBreak:
		return "the air has been quiet for a while, pick the conversation back up"
	case broadcast.TriggerCountryArrival:
		return "we just arrived somewhere new"
	default:
		return string(t)
	}
}
