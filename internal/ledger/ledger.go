// Package ledger keeps the per-country visit history. The in-process cache is
// authoritative for the lifetime of the process; the backend is best effort.
package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// VisitRecord is one narrated visit, the persisted form of a diary entry.
type VisitRecord struct {
	ID        string    `json:"id" db:"id"`
	CountryID string    `json:"country_id" db:"country_id"`
	Day       int       `json:"day" db:"day"`
	Theme     string    `json:"theme" db:"theme"`
	Topic     string    `json:"topic" db:"topic"`
	Content   string    `json:"content" db:"content"`
	LocalTime string    `json:"local_time" db:"local_time"`
	VisitedAt time.Time `json:"visited_at" db:"visited_at"`
}

// CountryMemory is the append-only history for one country.
type CountryMemory struct {
	EntityID             string        `json:"entity_id"`
	Visits               []VisitRecord `json:"visits"`
	TotalVisits          int           `json:"total_visits"`
	LastVisit            time.Time     `json:"last_visit"`
	AccumulatedNarrative []string      `json:"accumulated_narrative"`
}

// Empty returns the default memory for a country never visited.
func Empty(id string) CountryMemory {
	return CountryMemory{EntityID: id}
}

// Apply appends rec and updates the derived fields.
func (m *CountryMemory) Apply(rec VisitRecord) {
	m.Visits = append(m.Visits, rec)
	m.TotalVisits = len(m.Visits)
	if rec.VisitedAt.After(m.LastVisit) {
		m.LastVisit = rec.VisitedAt
	}
	if rec.Content != "" {
		m.AccumulatedNarrative = append(m.AccumulatedNarrative, rec.Content)
	}
}

// Narrated reports whether content already appears in the country's narrative.
func (m CountryMemory) Narrated(content string) bool {
	for _, c := range m.AccumulatedNarrative {
		if c == content {
			return true
		}
	}
	return false
}

func (m CountryMemory) clone() CountryMemory {
	out := m
	out.Visits = append([]VisitRecord(nil), m.Visits...)
	out.AccumulatedNarrative = append([]string(nil), m.AccumulatedNarrative...)
	return out
}

// Backend is the persistence boundary. Either call may fail.
type Backend interface {
	LoadEntityMemory(ctx context.Context, id string) (CountryMemory, error)
	AppendVisit(ctx context.Context, id string, rec VisitRecord) (CountryMemory, error)
}

// Store caches country memories over a Backend.
type Store struct {
	backend Backend

	mu    sync.Mutex
	cache map[string]*CountryMemory
}

// NewStore creates a store. A nil backend keeps everything in memory.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend, cache: make(map[string]*CountryMemory)}
}

// Load returns the memory for id, creating an empty one on first access.
func (s *Store) Load(ctx context.Context, id string) CountryMemory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx, id).clone()
}

func (s *Store) loadLocked(ctx context.Context, id string) *CountryMemory {
	if m, ok := s.cache[id]; ok {
		return m
	}

	m := Empty(id)
	if s.backend != nil {
		loaded, err := s.backend.LoadEntityMemory(ctx, id)
		if err != nil {
			slog.Warn("country memory load failed, starting empty", "country", id, "error", err)
		} else {
			m = loaded
			m.EntityID = id
		}
	}
	s.cache[id] = &m
	return &m
}

// AppendVisit records a visit. The cache is updated even when the backend fails.
func (s *Store) AppendVisit(ctx context.Context, id string, rec VisitRecord) CountryMemory {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.VisitedAt.IsZero() {
		rec.VisitedAt = time.Now()
	}
	rec.CountryID = id

	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.loadLocked(ctx, id)
	if s.backend != nil {
		if _, err := s.backend.AppendVisit(ctx, id, rec); err != nil {
			slog.Warn("country memory persist failed, keeping in-memory copy", "country", id, "error", err)
		}
	}
	m.Apply(rec)

	slog.Debug("visit recorded", "country", id, "day", rec.Day, "topic", rec.Topic, "total", m.TotalVisits)
	return m.clone()
}

// Known lists the ids currently cached.
func (s *Store) Known() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.cache))
	for id := range s.cache {
		ids = append(ids, id)
	}
	return ids
}
