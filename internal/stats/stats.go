package stats

import (
	"sync"
	"time"
)

// BuildRecord summarises one preload build for operators.
type BuildRecord struct {
	BuildID  string        `json:"build_id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration_ns"`
	Entries  int           `json:"entries"`
	Failures int           `json:"failures"`
	Changed  bool          `json:"changed"`
	Aborted  bool          `json:"aborted,omitempty"`
}

// History keeps the most recent builds (in-memory only).
type History struct {
	mu   sync.Mutex
	size int
	recs []BuildRecord // oldest first
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = 20
	}
	return &History{size: size}
}

func (h *History) Record(r BuildRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.recs) == h.size {
		copy(h.recs, h.recs[1:])
		h.recs = h.recs[:len(h.recs)-1]
	}
	h.recs = append(h.recs, r)
}

// List returns the retained builds, newest first.
func (h *History) List() []BuildRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]BuildRecord, len(h.recs))
	for i, r := range h.recs {
		out[len(h.recs)-1-i] = r
	}
	return out
}

// Last returns the most recent build, if any.
func (h *History) Last() (BuildRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.recs) == 0 {
		return BuildRecord{}, false
	}
	return h.recs[len(h.recs)-1], true
}
