package memory

import "sync"

// DefaultRecentCap is the default size of the recently visited set.
const DefaultRecentCap = 50

// RecentSet is a bounded FIFO set of entity ids. It biases itinerary variety;
// nothing depends on it for correctness.
type RecentSet struct {
	mu      sync.Mutex
	limit   int
	order   []string
	members map[string]struct{}
}

// NewRecentSet creates a set holding at most limit ids.
func NewRecentSet(limit int) *RecentSet {
	if limit <= 0 {
		limit = DefaultRecentCap
	}
	return &RecentSet{limit: limit, members: make(map[string]struct{}, limit)}
}

// Add records id as the newest entry, evicting the oldest when full.
// Re-adding an existing id moves it to the newest position.
func (r *RecentSet) Add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[id]; ok {
		for i, v := range r.order {
			if v == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.order = append(r.order, id)
	r.members[id] = struct{}{}

	for len(r.order) > r.limit {
		delete(r.members, r.order[0])
		r.order = r.order[1:]
	}
}

// Contains reports whether id is in the set.
func (r *RecentSet) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[id]
	return ok
}

// Len returns the number of ids held.
func (r *RecentSet) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Items returns the ids oldest first.
func (r *RecentSet) Items() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}
