package eventlog

import (
	"sync"
	"time"
)

// DefaultCapacity is how many entries the operator log keeps.
const DefaultCapacity = 500

const timeLayout = "2006-01-02 15:04:05"

type Entry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// String renders the entry the way it appears in the log download.
func (e Entry) String() string {
	return "[" + e.Time.Format(timeLayout) + "] " + e.Message
}

// Log is a bounded, append-only record of recent events. Once full, every
// append evicts the oldest entry. Safe for concurrent use.
type Log struct {
	mu    sync.RWMutex
	buf   []Entry
	start int // index of the oldest entry
	n     int

	subMu sync.Mutex
	subs  map[chan Entry]struct{}

	now func() time.Time
}

func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		buf:  make([]Entry, capacity),
		subs: map[chan Entry]struct{}{},
		now:  time.Now,
	}
}

// Append records msg stamped with the current time.
func (l *Log) Append(msg string) {
	l.Add(Entry{Time: l.now(), Message: msg})
}

func (l *Log) Add(e Entry) {
	l.mu.Lock()
	c := len(l.buf)
	if l.n < c {
		l.buf[(l.start+l.n)%c] = e
		l.n++
	} else {
		l.buf[l.start] = e
		l.start = (l.start + 1) % c
	}
	l.mu.Unlock()

	l.publish(e)
}

// Tail returns every retained entry, oldest first.
func (l *Log) Tail() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, l.n)
	c := len(l.buf)
	for i := 0; i < l.n; i++ {
		out[i] = l.buf[(l.start+i)%c]
	}
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.n
}

func (l *Log) Cap() int { return len(l.buf) }

// Subscribe returns a channel receiving entries appended from now on, and a
// func that unsubscribes and closes the channel. Sends never block: a
// subscriber that falls more than buffer entries behind misses entries.
func (l *Log) Subscribe(buffer int) (<-chan Entry, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Entry, buffer)
	l.subMu.Lock()
	l.subs[ch] = struct{}{}
	l.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.subMu.Lock()
			delete(l.subs, ch)
			l.subMu.Unlock()
			close(ch)
		})
	}
}

func (l *Log) publish(e Entry) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	for ch := range l.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
