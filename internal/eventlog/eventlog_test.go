package eventlog

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_RetainsMostRecentInOrder(t *testing.T) {
	l := New(500)
	for i := 0; i < 1234; i++ {
		l.Append(fmt.Sprintf("event %d", i))
	}

	tail := l.Tail()
	require.Len(t, tail, 500)
	assert.Equal(t, 500, l.Len())
	for i, e := range tail {
		assert.Equal(t, fmt.Sprintf("event %d", 734+i), e.Message)
	}
}

func TestLog_PartiallyFilled(t *testing.T) {
	l := New(4)
	assert.Empty(t, l.Tail())
	l.Append("a")
	l.Append("b")
	tail := l.Tail()
	require.Len(t, tail, 2)
	assert.Equal(t, "a", tail[0].Message)
	assert.Equal(t, "b", tail[1].Message)
}

func TestLog_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Cap())
}

func TestLog_TailIsACopy(t *testing.T) {
	l := New(2)
	l.Append("a")
	tail := l.Tail()
	tail[0].Message = "mutated"
	assert.Equal(t, "a", l.Tail()[0].Message)
}

func TestEntry_String(t *testing.T) {
	e := Entry{Time: time.Date(2024, 3, 1, 12, 30, 5, 0, time.UTC), Message: "GE preload starting"}
	assert.Equal(t, "[2024-03-01 12:30:05] GE preload starting", e.String())
}

func TestLog_ConcurrentWritersAndReaders(t *testing.T) {
	l := New(100)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				l.Append(fmt.Sprintf("w%d-%d", w, i))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				assert.LessOrEqual(t, len(l.Tail()), 100)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, l.Len())
}

func TestLog_Subscribe(t *testing.T) {
	l := New(10)
	l.Append("before")
	ch, cancel := l.Subscribe(4)

	l.Append("after")
	select {
	case e := <-ch:
		assert.Equal(t, "after", e.Message)
	case <-time.After(time.Second):
		t.Fatal("no entry delivered")
	}

	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	l.Append("ignored")
}

func TestLog_SlowSubscriberDoesNotBlockWriters(t *testing.T) {
	l := New(10)
	_, cancel := l.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			l.Append("x")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer blocked on subscriber")
	}
}

func TestHandler_TeesRecords(t *testing.T) {
	l := New(10)
	logger := slog.New(NewHandler(l, slog.NewTextHandler(discard{}, nil)))

	logger.With("build_id", "b1").WithGroup("unit").Info("GE load failed",
		"category", 3, "letter", "r", "error", "api status 500")
	logger.Debug("hidden")

	tail := l.Tail()
	require.Len(t, tail, 1)
	assert.Equal(t,
		`GE load failed build_id=b1 unit.category=3 unit.letter=r unit.error="api status 500"`,
		tail[0].Message)
	assert.False(t, tail[0].Time.IsZero())
}

func TestHandler_NilNext(t *testing.T) {
	l := New(10)
	logger := slog.New(NewHandler(l, nil))
	logger.Info("x")
	assert.Equal(t, 0, l.Len())
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
