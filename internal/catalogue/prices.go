package catalogue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Price is a guide price as the catalogue reports it. The API sends plain
// numbers for cheap items and abbreviated strings ("1.2k", "3.4m") above that,
// so the value is kept verbatim.
type Price string

func (p *Price) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*p = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = Price(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	*p = Price(n.String())
	return nil
}

type PriceFetcher interface {
	FetchPrice(ctx context.Context, id int) (Price, error)
}

// Prices caches guide prices by item id for a bounded time.
type Prices struct {
	src   PriceFetcher
	cache *expirable.LRU[int, Price]
}

func NewPrices(src PriceFetcher, size int, ttl time.Duration) *Prices {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Prices{src: src, cache: expirable.NewLRU[int, Price](size, nil, ttl)}
}

// Get returns the cached price for id, fetching it on a miss. Failures are
// not cached.
func (p *Prices) Get(ctx context.Context, id int) (Price, error) {
	if v, ok := p.cache.Get(id); ok {
		return v, nil
	}
	v, err := p.src.FetchPrice(ctx, id)
	if err != nil {
		return "", err
	}
	p.cache.Add(id, v)
	return v, nil
}

func (p *Prices) Len() int { return p.cache.Len() }
