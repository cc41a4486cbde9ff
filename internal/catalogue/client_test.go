package catalogue

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Options{BaseURL: srv.URL + "/", Timeout: timeout})
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Options{})
	assert.Error(t, err)
	_, err = NewClient(Options{BaseURL: "ftp://example.com"})
	assert.Error(t, err)
	_, err = NewClient(Options{BaseURL: "://bad"})
	assert.Error(t, err)
	c, err := NewClient(Options{BaseURL: DefaultBaseURL})
	require.NoError(t, err)
	assert.Equal(t, defaultTimeout, c.timeout)
}

func TestClient_FetchCategoryBuckets(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/category.json", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("category"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(`{"types":[],"alpha":[{"letter":"#","items":0},{"letter":"a","items":25}]}`))
	}, time.Second)

	buckets, err := c.FetchCategoryBuckets(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []Bucket{{Letter: "#", Items: 0}, {Letter: "a", Items: 25}}, buckets)
}

func TestClient_FetchPage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/items.json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "16", q.Get("category"))
		assert.Equal(t, "r", q.Get("alpha"))
		assert.Equal(t, "2", q.Get("page"))
		w.Write([]byte(`{"total":14,"items":[{"icon":"x","id":1373,"type":"Default","name":"Rune battleaxe"},{"id":1359,"name":"Rune axe"}]}`))
	}, time.Second)

	items, err := c.FetchPage(context.Background(), 16, "r", 2)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Name: "Rune battleaxe", ID: 1373}, {Name: "Rune axe", ID: 1359}}, items)
}

func TestClient_FetchPageEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total":0,"items":[]}`))
	}, time.Second)

	items, err := c.FetchPage(context.Background(), 0, "a", 1)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestClient_RemoteErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusServiceUnavailable)
		},
		"garbage": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>maintenance</html>`))
		},
		"empty body": func(w http.ResponseWriter, r *http.Request) {},
		"wrong shape": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"something":"else"}`))
		},
		"missing fields": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"alpha":[{"letter":"a"}],"items":[{"name":"Rune axe"}]}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, h, time.Second)

			_, err := c.FetchCategoryBuckets(context.Background(), 0)
			var re *RemoteError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, "category", re.Op)

			_, err = c.FetchPage(context.Background(), 0, "a", 1)
			require.ErrorAs(t, err, &re)
			assert.Equal(t, "items", re.Op)
			assert.True(t, IsRemote(err))
		})
	}
}

func TestClient_StatusCodeReported(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, time.Second)

	_, err := c.FetchPage(context.Background(), 0, "a", 1)
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusNotFound, re.StatusCode)
	assert.Contains(t, err.Error(), "status 404")
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	start := time.Now()
	_, err := c.FetchPage(context.Background(), 0, "a", 1)
	assert.True(t, IsRemote(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_CancelledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[]}`))
	}, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchPage(ctx, 0, "a", 1)
	assert.True(t, IsRemote(err))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestClient_FetchPrice(t *testing.T) {
	prices := map[string]string{
		"1":  `{"item":{"id":1,"name":"Rune axe","current":{"trend":"neutral","price":1523}}}`,
		"2":  `{"item":{"id":2,"name":"Rune battleaxe","current":{"trend":"neutral","price":"12.5k"}}}`,
		"3":  `{"item":{"id":3,"name":"Broken"}}`,
		"99": `{}`,
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/detail.json", r.URL.Path)
		w.Write([]byte(prices[r.URL.Query().Get("item")]))
	}, time.Second)

	p, err := c.FetchPrice(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, Price("1523"), p)

	p, err = c.FetchPrice(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, Price("12.5k"), p)

	_, err = c.FetchPrice(context.Background(), 3)
	assert.True(t, IsRemote(err))
	_, err = c.FetchPrice(context.Background(), 99)
	assert.True(t, IsRemote(err))
}

func TestClient_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()
	c, err := NewClient(Options{BaseURL: srv.URL, RequestsPerSecond: 20})
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.FetchPage(context.Background(), 0, "a", 1)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
