package catalogue

import (
	"context"
	"iter"
	"log/slog"
	"strings"
)

const (
	// DefaultMaxCategory is the highest category id the catalogue serves.
	DefaultMaxCategory = 37
	// DefaultPageSize is how many items items.json returns per page.
	DefaultPageSize = 12
)

const alphabet = "abcdefghijklmnopqrstuvwxyz"

// WorkUnit is one items.json request of a crawl.
type WorkUnit struct {
	Category int
	Letter   string
	Page     int
}

type BucketSource interface {
	FetchCategoryBuckets(ctx context.Context, category int) ([]Bucket, error)
}

// Planner enumerates the work of one crawl: categories, then letters, then pages.
type Planner struct {
	src         BucketSource
	maxCategory int
	pageSize    int
	logger      *slog.Logger
}

func NewPlanner(src BucketSource, maxCategory, pageSize int, logger *slog.Logger) *Planner {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{src: src, maxCategory: maxCategory, pageSize: pageSize, logger: logger}
}

// PagesFor returns how many pages of pageSize hold itemCount items.
func PagesFor(itemCount, pageSize int) int {
	if itemCount <= 0 || pageSize <= 0 {
		return 0
	}
	return (itemCount + pageSize - 1) / pageSize
}

// Units lazily yields the work units of a crawl. A category whose bucket
// listing cannot be fetched is yielded once as (WorkUnit{Category: c}, err)
// and the sequence moves on to the next category.
func (p *Planner) Units(ctx context.Context) iter.Seq2[WorkUnit, error] {
	return func(yield func(WorkUnit, error) bool) {
		for cat := 0; cat <= p.maxCategory; cat++ {
			if ctx.Err() != nil {
				return
			}
			buckets, err := p.src.FetchCategoryBuckets(ctx, cat)
			if err != nil {
				if !yield(WorkUnit{Category: cat}, err) {
					return
				}
				continue
			}
			counts := p.validBuckets(cat, buckets)
			for _, r := range alphabet {
				letter := string(r)
				n, ok := counts[letter]
				if !ok {
					continue
				}
				for page := 1; page <= PagesFor(n, p.pageSize); page++ {
					if !yield(WorkUnit{Category: cat, Letter: letter, Page: page}, nil) {
						return
					}
				}
			}
		}
	}
}

func (p *Planner) validBuckets(cat int, buckets []Bucket) map[string]int {
	counts := make(map[string]int, len(buckets))
	for _, b := range buckets {
		letter, ok := bucketLetter(b.Letter)
		if !ok {
			p.logger.Info("GE skipping bucket with invalid letter",
				slog.Int("category", cat), slog.String("letter", b.Letter), slog.Int("items", b.Items))
			continue
		}
		if _, dup := counts[letter]; dup {
			p.logger.Info("GE duplicate bucket, keeping the later one",
				slog.Int("category", cat), slog.String("letter", letter))
		}
		counts[letter] = b.Items
	}
	return counts
}

// bucketLetter normalises a bucket key; only a single ASCII letter is valid.
func bucketLetter(s string) (string, bool) {
	if len(s) != 1 {
		return "", false
	}
	c := s[0]
	if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return strings.ToLower(s), true
	}
	return "", false
}
