// Package atlas moves the broadcast around the world: the country catalogue,
// the three-day itinerary in each country, and the plans produced there.
package atlas

import (
	"errors"
	"strconv"
	"sync"

	"github.com/talgya/atlas-live/internal/entropy"
	"github.com/talgya/atlas-live/internal/memory"
	"github.com/talgya/atlas-live/internal/narrative"
)

// Country is one stop in the catalogue.
type Country struct {
	ID              string   `json:"id" yaml:"id" toml:"id"`
	Name            string   `json:"name" yaml:"name" toml:"name"`
	TimeZone        string   `json:"time_zone" yaml:"time_zone" toml:"time_zone"`
	Lat             float64  `json:"lat" yaml:"lat" toml:"lat"`
	Lon             float64  `json:"lon" yaml:"lon" toml:"lon"`
	Facts           []string `json:"facts" yaml:"facts" toml:"facts"`
	Recommendations []string `json:"recommendations" yaml:"recommendations" toml:"recommendations"`
}

// Entity is the narrator's view of c.
func (c Country) Entity() narrative.Entity {
	return narrative.Entity{
		ID:              c.ID,
		Name:            c.Name,
		Facts:           c.Facts,
		Recommendations: c.Recommendations,
	}
}

// ErrNoCountries is returned when the catalogue is empty.
var ErrNoCountries = errors.New("atlas: no countries configured")

// Stop is the itinerary position.
type Stop struct {
	Country Country
	Day     int
}

// Itinerary tracks the current country and day of visit.
type Itinerary struct {
	mu        sync.Mutex
	countries []Country
	current   int
	day       int
	recent    *memory.RecentSet
	rng       entropy.Source
}

// NewItinerary starts at the first country on day 1. recent is consulted when
// choosing the next country.
func NewItinerary(countries []Country, recent *memory.RecentSet, rng entropy.Source) (*Itinerary, error) {
	if len(countries) == 0 {
		return nil, ErrNoCountries
	}
	if rng == nil {
		rng = entropy.Crypto{}
	}
	if recent == nil {
		recent = memory.NewRecentSet(memory.DefaultRecentCap)
	}
	return &Itinerary{
		countries: append([]Country(nil), countries...),
		day:       1,
		recent:    recent,
		rng:       rng,
	}, nil
}

// Current returns the current stop.
func (it *Itinerary) Current() Stop {
	it.mu.Lock()
	defer it.mu.Unlock()
	return Stop{Country: it.countries[it.current], Day: it.day}
}

// Lookup finds a country by id.
func (it *Itinerary) Lookup(id string) (Country, bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	for _, c := range it.countries {
		if c.ID == id {
			return c, true
		}
	}
	return Country{}, false
}

// Countries returns a copy of the catalogue.
func (it *Itinerary) Countries() []Country {
	it.mu.Lock()
	defer it.mu.Unlock()
	return append([]Country(nil), it.countries...)
}

// Advance moves to the next day, or to a new country after the last day.
// It reports whether a new country was reached.
func (it *Itinerary) Advance() bool {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.day < narrative.MaxDay {
		it.day++
		return false
	}
	it.day = 1
	it.current = it.nextLocked()
	return true
}

// nextLocked prefers countries outside the recent set, then anything but the
// current country.
func (it *Itinerary) nextLocked() int {
	var fresh, others []int
	for i, c := range it.countries {
		if i == it.current {
			continue
		}
		others = append(others, i)
		if !it.recent.Contains(c.ID) {
			fresh = append(fresh, i)
		}
	}
	pool := fresh
	if len(pool) == 0 {
		pool = others
	}
	if len(pool) == 0 {
		return it.current
	}
	return pool[entropy.Intn(it.rng, len(pool))]
}

// Seek jumps to country id on the given day. Unknown ids are ignored.
func (it *Itinerary) Seek(id string, day int) bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	for i, c := range it.countries {
		if c.ID != id {
			continue
		}
		it.current = i
		it.day = clampDay(day)
		return true
	}
	return false
}

func clampDay(day int) int {
	if day < 1 {
		return 1
	}
	if day > narrative.MaxDay {
		return narrative.MaxDay
	}
	return day
}

func parseDay(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return clampDay(n)
}
