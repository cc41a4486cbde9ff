package catalogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the RuneScape Grand Exchange catalogue API.
const DefaultBaseURL = "https://secure.runescape.com/m=itemdb_rs/api/catalogue"

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "rs3calc/4.4"
)

// Options configures a Client.
type Options struct {
	BaseURL string
	// Timeout bounds every single request.
	Timeout time.Duration
	// RequestsPerSecond caps outgoing requests; 0 means unlimited.
	RequestsPerSecond float64
	UserAgent         string
}

// Client talks to the remote catalogue. It never retries.
type Client struct {
	baseURL   string
	http      *http.Client
	timeout   time.Duration
	limiter   *rate.Limiter
	userAgent string
}

func NewClient(opts Options) (*Client, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		return nil, errors.New("catalogue: base URL is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("catalogue: invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("catalogue: unsupported base URL scheme %q", u.Scheme)
	}
	to := opts.Timeout
	if to <= 0 {
		to = defaultTimeout
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	return &Client{
		baseURL:   strings.TrimRight(base, "/"),
		http:      &http.Client{Timeout: to},
		timeout:   to,
		limiter:   lim,
		userAgent: ua,
	}, nil
}

// Bucket is one alphabetic slice of a category as reported by category.json.
type Bucket struct {
	Letter string
	Items  int
}

// Entry is a catalogue item: the name is the index key.
type Entry struct {
	Name string
	ID   int
}

// Wire shapes. Pointers distinguish "missing" from "zero" so that a payload
// of the wrong shape is rejected rather than read as empty.
type categoryResponse struct {
	Alpha *[]struct {
		Letter *string `json:"letter"`
		Items  *int    `json:"items"`
	} `json:"alpha"`
}

type itemsResponse struct {
	Items *[]struct {
		ID   *int   `json:"id"`
		Name string `json:"name"`
	} `json:"items"`
}

type detailResponse struct {
	Item *struct {
		ID      int    `json:"id"`
		Name    string `json:"name"`
		Current *struct {
			Price Price `json:"price"`
		} `json:"current"`
	} `json:"item"`
}

// FetchCategoryBuckets lists the per-letter item counts of one category.
func (c *Client) FetchCategoryBuckets(ctx context.Context, category int) ([]Bucket, error) {
	q := url.Values{}
	q.Set("category", strconv.Itoa(category))
	const op = "category"

	var res categoryResponse
	u, err := c.apiGet(ctx, op, "/category.json", q, &res)
	if err != nil {
		return nil, err
	}
	if res.Alpha == nil {
		return nil, &RemoteError{Op: op, URL: u, Err: errors.New(`missing "alpha"`)}
	}
	out := make([]Bucket, 0, len(*res.Alpha))
	for i, a := range *res.Alpha {
		if a.Letter == nil || a.Items == nil {
			return nil, &RemoteError{Op: op, URL: u, Err: fmt.Errorf("alpha[%d]: missing letter or items", i)}
		}
		out = append(out, Bucket{Letter: *a.Letter, Items: *a.Items})
	}
	return out, nil
}

// FetchPage returns one page of items for a category/letter bucket.
func (c *Client) FetchPage(ctx context.Context, category int, letter string, page int) ([]Entry, error) {
	q := url.Values{}
	q.Set("category", strconv.Itoa(category))
	q.Set("alpha", letter)
	q.Set("page", strconv.Itoa(page))
	const op = "items"

	var res itemsResponse
	u, err := c.apiGet(ctx, op, "/items.json", q, &res)
	if err != nil {
		return nil, err
	}
	if res.Items == nil {
		return nil, &RemoteError{Op: op, URL: u, Err: errors.New(`missing "items"`)}
	}
	out := make([]Entry, 0, len(*res.Items))
	for i, it := range *res.Items {
		if it.ID == nil || strings.TrimSpace(it.Name) == "" {
			return nil, &RemoteError{Op: op, URL: u, Err: fmt.Errorf("items[%d]: missing id or name", i)}
		}
		out = append(out, Entry{Name: it.Name, ID: *it.ID})
	}
	return out, nil
}

// FetchPrice returns the current Grand Exchange guide price of an item.
func (c *Client) FetchPrice(ctx context.Context, id int) (Price, error) {
	q := url.Values{}
	q.Set("item", strconv.Itoa(id))
	const op = "detail"

	var res detailResponse
	u, err := c.apiGet(ctx, op, "/detail.json", q, &res)
	if err != nil {
		return "", err
	}
	if res.Item == nil || res.Item.Current == nil || res.Item.Current.Price == "" {
		return "", &RemoteError{Op: op, URL: u, Err: errors.New(`missing "item.current.price"`)}
	}
	return res.Item.Current.Price, nil
}

func (c *Client) apiGet(ctx context.Context, op, path string, q url.Values, out any) (string, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return u, &RemoteError{Op: op, URL: u, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return u, &RemoteError{Op: op, URL: u, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return u, &RemoteError{Op: op, URL: u, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return u, &RemoteError{Op: op, URL: u, StatusCode: resp.StatusCode, Err: fmt.Errorf("api status %d", resp.StatusCode)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return u, &RemoteError{Op: op, URL: u, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return u, nil
}
