// Package playback is the boundary to the renderer: it turns plans into timed
// cues (subtitles, audio, camera moves) and fans them out to stream clients.
package playback

import (
	"sync"
	"time"

	"github.com/talgya/atlas-live/internal/broadcast"
)

// CueKind tells the renderer what to do with a cue.
type CueKind string

const (
	CueSubtitle CueKind = "subtitle"
	CueAudio    CueKind = "audio"
	CueVisual   CueKind = "visual"
	CueDone     CueKind = "done"
)

// Cue is one instruction for the renderer.
type Cue struct {
	Seq      uint64           `json:"seq"`
	Kind     CueKind          `json:"kind"`
	PlanID   string           `json:"plan_id"`
	Role     broadcast.Role   `json:"role,omitempty"`
	Text     string           `json:"text,omitempty"`
	AudioURL string           `json:"audio_url,omitempty"`
	Focus    *broadcast.Focus `json:"focus,omitempty"`
	HoldMS   int64            `json:"hold_ms,omitempty"`
	Time     time.Time        `json:"time"`
}

const subscriberBuffer = 64

// Hub fans cues out to subscribers and keeps a bounded catch-up buffer.
type Hub struct {
	mu     sync.Mutex
	seq    uint64
	nextID int
	subs   map[int]chan Cue
	recent []Cue
	keep   int
}

// NewHub keeps the last keep cues for late subscribers.
func NewHub(keep int) *Hub {
	if keep <= 0 {
		keep = 50
	}
	return &Hub{subs: make(map[int]chan Cue), keep: keep}
}

// Subscribe registers a new listener.
func (h *Hub) Subscribe() (int, <-chan Cue) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	ch := make(chan Cue, subscriberBuffer)
	h.subs[h.nextID] = ch
	return h.nextID, ch
}

// Unsubscribe removes a listener and closes its channel.
func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish stamps c and delivers it. Slow subscribers miss cues rather than
// block playback.
func (h *Hub) Publish(c Cue) Cue {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	c.Seq = h.seq
	if c.Time.IsZero() {
		c.Time = time.Now()
	}

	h.recent = append(h.recent, c)
	if len(h.recent) > h.keep {
		h.recent = h.recent[len(h.recent)-h.keep:]
	}

	for _, ch := range h.subs {
		select {
		case ch <- c:
		default:
		}
	}
	return c
}

// Recent returns up to n of the latest cues, oldest first.
func (h *Hub) Recent(n int) []Cue {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > len(h.recent) {
		n = len(h.recent)
	}
	return append([]Cue(nil), h.recent[len(h.recent)-n:]...)
}

// Subscribers is the number of connected listeners.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
