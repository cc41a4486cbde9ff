package preload

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/pefman/rs3calc/internal/catalogue"
	"github.com/pefman/rs3calc/internal/index"
	"github.com/pefman/rs3calc/internal/stats"
)

// ErrAborted is returned when a build's context ends before every unit was
// attempted. Nothing is published in that case.
var ErrAborted = errors.New("preload aborted")

type UnitSource interface {
	Units(ctx context.Context) iter.Seq2[catalogue.WorkUnit, error]
}

type PageSource interface {
	FetchPage(ctx context.Context, category int, letter string, page int) ([]catalogue.Entry, error)
}

// Result describes one build.
type Result struct {
	BuildID  string
	Entries  int
	Failures int
	Started  time.Time
	Finished time.Time
	Changed  bool
}

type BuilderConfig struct {
	// Workers is how many pages are fetched at once. With 1 the crawl is
	// strictly sequential and duplicate names resolve in crawl order.
	Workers int
	Logger  *slog.Logger
	History *stats.History
}

// Builder crawls the catalogue into a fresh map and publishes it.
type Builder struct {
	units   UnitSource
	pages   PageSource
	index   *index.Index
	history *stats.History
	workers int
	logger  *slog.Logger
	now     func() time.Time
}

func NewBuilder(units UnitSource, pages PageSource, ix *index.Index, cfg BuilderConfig) *Builder {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Builder{
		units:   units,
		pages:   pages,
		index:   ix,
		history: cfg.History,
		workers: cfg.Workers,
		logger:  cfg.Logger,
		now:     time.Now,
	}
}

// Run performs one full crawl. Failed units are logged and skipped; the build
// completes and publishes whatever was collected, even if that is nothing.
func (b *Builder) Run(ctx context.Context) (Result, error) {
	res := Result{BuildID: uuid.Must(uuid.NewV7()).String(), Started: b.now()}
	log := b.logger.With(slog.String("build_id", res.BuildID))
	log.Info("GE preload starting", slog.Int("workers", b.workers))

	working := xsync.NewMapOf[string, int]()
	var failures atomic.Int64

	fetch := func(u catalogue.WorkUnit) {
		entries, err := b.pages.FetchPage(ctx, u.Category, u.Letter, u.Page)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures.Add(1)
			UnitFailures.WithLabelValues("page").Inc()
			log.Warn("GE load failed",
				slog.Int("category", u.Category), slog.String("letter", u.Letter),
				slog.Int("page", u.Page), slog.String("error", err.Error()))
			return
		}
		for _, e := range entries {
			working.Store(e.Name, e.ID)
		}
	}
	categoryFailed := func(u catalogue.WorkUnit, err error) {
		if ctx.Err() != nil {
			return
		}
		failures.Add(1)
		UnitFailures.WithLabelValues("category").Inc()
		log.Warn("GE category listing failed",
			slog.Int("category", u.Category), slog.String("error", err.Error()))
	}

	if b.workers == 1 {
		for u, err := range b.units.Units(ctx) {
			if err != nil {
				categoryFailed(u, err)
				continue
			}
			fetch(u)
		}
	} else {
		jobs := make(chan catalogue.WorkUnit)
		var wg sync.WaitGroup
		for i := 0; i < b.workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for u := range jobs {
					fetch(u)
				}
			}()
		}
		for u, err := range b.units.Units(ctx) {
			if err != nil {
				categoryFailed(u, err)
				continue
			}
			select {
			case jobs <- u:
			case <-ctx.Done():
			}
		}
		close(jobs)
		wg.Wait()
	}

	res.Failures = int(failures.Load())
	res.Finished = b.now()
	if err := ctx.Err(); err != nil {
		BuildsTotal.WithLabelValues("aborted").Inc()
		log.Warn("GE preload abandoned, keeping previous index",
			slog.Int("collected", working.Size()), slog.String("reason", err.Error()))
		b.record(res, true)
		return res, fmt.Errorf("%w: %w", ErrAborted, err)
	}

	entries := make(map[string]int, working.Size())
	working.Range(func(name string, id int) bool {
		entries[name] = id
		return true
	})
	prev := b.index.Snapshot()
	snap := b.index.Publish(entries, index.Meta{BuildID: res.BuildID, BuiltAt: res.Finished})
	res.Entries = snap.Len()
	res.Changed = prev == nil || prev.Digest() != snap.Digest()

	BuildsTotal.WithLabelValues("completed").Inc()
	BuildDuration.Observe(res.Finished.Sub(res.Started).Seconds())
	IndexEntries.Set(float64(res.Entries))
	log.Info(fmt.Sprintf("Completed preload: %d items cached", res.Entries),
		slog.Int("failures", res.Failures),
		slog.Bool("changed", res.Changed),
		slog.Duration("took", res.Finished.Sub(res.Started)))
	b.record(res, false)
	return res, nil
}

func (b *Builder) record(res Result, aborted bool) {
	if b.history == nil {
		return
	}
	b.history.Record(stats.BuildRecord{
		BuildID:  res.BuildID,
		Started:  res.Started,
		Duration: res.Finished.Sub(res.Started),
		Entries:  res.Entries,
		Failures: res.Failures,
		Changed:  res.Changed,
		Aborted:  aborted,
	})
}
