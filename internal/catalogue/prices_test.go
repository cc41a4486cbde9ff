package catalogue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPrices struct {
	calls int
	fail  bool
}

func (c *countingPrices) FetchPrice(_ context.Context, id int) (Price, error) {
	c.calls++
	if c.fail {
		return "", &RemoteError{Op: "detail", Err: errors.New("down")}
	}
	return Price("100"), nil
}

func TestPrices_CachesHits(t *testing.T) {
	src := &countingPrices{}
	p := NewPrices(src, 8, time.Minute)

	for i := 0; i < 3; i++ {
		v, err := p.Get(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, Price("100"), v)
	}
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, 1, p.Len())
}

func TestPrices_DoesNotCacheFailures(t *testing.T) {
	src := &countingPrices{fail: true}
	p := NewPrices(src, 8, time.Minute)

	_, err := p.Get(context.Background(), 1)
	assert.True(t, IsRemote(err))
	_, err = p.Get(context.Background(), 1)
	assert.Error(t, err)
	assert.Equal(t, 2, src.calls)
	assert.Zero(t, p.Len())
}

func TestPrices_Expire(t *testing.T) {
	src := &countingPrices{}
	p := NewPrices(src, 8, 20*time.Millisecond)

	_, err := p.Get(context.Background(), 1)
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	_, err = p.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestPrice_UnmarshalJSON(t *testing.T) {
	var v struct {
		P Price `json:"p"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"p": 1523}`), &v))
	assert.Equal(t, Price("1523"), v.P)
	require.NoError(t, json.Unmarshal([]byte(`{"p": "1.2m"}`), &v))
	assert.Equal(t, Price("1.2m"), v.P)
	require.NoError(t, json.Unmarshal([]byte(`{"p": null}`), &v))
	assert.Equal(t, Price(""), v.P)
	assert.Error(t, json.Unmarshal([]byte(`{"p": true}`), &v))
}
