package dialogue

import (
	"sync"

	"github.com/talgya/atlas-live/internal/broadcast"
	"github.com/talgya/atlas-live/internal/entropy"
)

// Bag samples scripts without replacement. Once empty it refills from the
// seed set, so every seed plays exactly once per round.
type Bag struct {
	mu    sync.Mutex
	seeds []broadcast.Script
	items []broadcast.Script
	rng   entropy.Source
	round int
}

// NewBag creates a full bag over seeds.
func NewBag(seeds []broadcast.Script, rng entropy.Source) *Bag {
	if rng == nil {
		rng = entropy.Crypto{}
	}
	b := &Bag{rng: rng}
	b.seeds = cloneScripts(seeds)
	b.refillLocked()
	return b
}

func cloneScripts(in []broadcast.Script) []broadcast.Script {
	out := make([]broadcast.Script, 0, len(in))
	for _, s := range in {
		if len(s) > 0 {
			out = append(out, s.Clone())
		}
	}
	return out
}

func (b *Bag) refillLocked() {
	b.items = cloneScripts(b.seeds)
	b.round++
}

// Draw removes and returns one script chosen uniformly at random. It returns
// nil only when the seed set itself is empty.
func (b *Bag) Draw() broadcast.Script {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == 0 {
		b.refillLocked()
	}
	if len(b.items) == 0 {
		return nil
	}

	i := entropy.Intn(b.rng, len(b.items))
	s := b.items[i]
	last := len(b.items) - 1
	b.items[i] = b.items[last]
	b.items[last] = nil
	b.items = b.items[:last]
	return s
}

// Len is the number of scripts left before the next refill.
func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// SeedCount is the size of the seed set.
func (b *Bag) SeedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.seeds)
}

// Round counts refills, starting at 1 for the initial fill.
func (b *Bag) Round() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.round
}

// SetSeeds replaces the seed set. The current round drains first; the new
// seeds are used from the next refill.
func (b *Bag) SetSeeds(seeds []broadcast.Script) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seeds = cloneScripts(seeds)
}
