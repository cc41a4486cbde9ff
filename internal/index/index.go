// Package index holds the published name -> item id mapping that request
// handlers read while the preloader rebuilds it in the background.
package index

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	DefaultMinTermLength = 3
	DefaultSuggestLimit  = 50
)

var (
	// ErrUnavailable means no build has completed yet.
	ErrUnavailable = errors.New("index not loaded yet")
	ErrNotFound    = errors.New("item not found")
)

// Meta describes the build that produced a snapshot.
type Meta struct {
	BuildID string
	BuiltAt time.Time
}

// Snapshot is an immutable, fully built index. It is never modified after
// Publish returns it.
type Snapshot struct {
	Meta
	ids    map[string]int
	names  []string // sorted
	lower  []string // lower[i] == strings.ToLower(names[i])
	digest uint64
}

func newSnapshot(entries map[string]int, meta Meta) *Snapshot {
	s := &Snapshot{
		Meta:  meta,
		ids:   make(map[string]int, len(entries)),
		names: make([]string, 0, len(entries)),
	}
	for name, id := range entries {
		s.ids[name] = id
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)
	s.lower = make([]string, len(s.names))
	d := xxhash.New()
	for i, name := range s.names {
		s.lower[i] = strings.ToLower(name)
		_, _ = d.WriteString(name)
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(strconv.Itoa(s.ids[name]))
		_, _ = d.Write([]byte{'\n'})
	}
	s.digest = d.Sum64()
	return s
}

func (s *Snapshot) Len() int { return len(s.names) }

// Digest identifies the snapshot's content; equal mappings have equal digests.
func (s *Snapshot) Digest() uint64 { return s.digest }

func (s *Snapshot) Lookup(name string) (int, bool) {
	id, ok := s.ids[name]
	return id, ok
}

// Status is what the status endpoint reports.
type Status struct {
	Loaded  bool      `json:"loaded"`
	Count   int       `json:"count"`
	BuiltAt time.Time `json:"built_at,omitzero"`
	BuildID string    `json:"build_id,omitempty"`
}

// Index is the published view. The current snapshot is replaced as a whole
// with a single atomic store, so readers never see a partially built map and
// never wait on a build.
type Index struct {
	cur           atomic.Pointer[Snapshot]
	minTermLength int
	suggestLimit  int
}

type Option func(*Index)

// WithMinTermLength sets the shortest term Suggest answers; 0 disables the guard.
func WithMinTermLength(n int) Option {
	return func(ix *Index) { ix.minTermLength = max(n, 0) }
}

func WithSuggestLimit(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.suggestLimit = n
		}
	}
}

func New(opts ...Option) *Index {
	ix := &Index{minTermLength: DefaultMinTermLength, suggestLimit: DefaultSuggestLimit}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// Publish installs entries as the new index and returns the snapshot.
// The map is copied; the caller may keep using it.
func (ix *Index) Publish(entries map[string]int, meta Meta) *Snapshot {
	s := newSnapshot(entries, meta)
	ix.cur.Store(s)
	return s
}

// Snapshot returns the current snapshot, or nil before the first publish.
func (ix *Index) Snapshot() *Snapshot { return ix.cur.Load() }

func (ix *Index) Loaded() bool { return ix.cur.Load() != nil }

func (ix *Index) Status() Status {
	s := ix.cur.Load()
	if s == nil {
		return Status{}
	}
	return Status{Loaded: true, Count: s.Len(), BuiltAt: s.BuiltAt, BuildID: s.BuildID}
}

// Suggest returns up to the suggest limit of names containing term,
// case-insensitively, in sorted order. It returns an empty list while the
// index is unloaded or when term is shorter than the minimum length.
func (ix *Index) Suggest(term string) []string {
	out := []string{}
	s := ix.cur.Load()
	term = strings.ToLower(strings.TrimSpace(term))
	if s == nil || term == "" || len([]rune(term)) < ix.minTermLength {
		return out
	}
	for i, l := range s.lower {
		if strings.Contains(l, term) {
			out = append(out, s.names[i])
			if len(out) == ix.suggestLimit {
				break
			}
		}
	}
	return out
}

// Detail returns the item id for an exact name.
func (ix *Index) Detail(name string) (int, error) {
	s := ix.cur.Load()
	if s == nil {
		return 0, ErrUnavailable
	}
	id, ok := s.ids[name]
	if !ok {
		return 0, ErrNotFound
	}
	return id, nil
}
