package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetSet(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("key", "value")
	v, ok := c.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "value", v)
}

func TestEntryExpires(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	c.SetWithTTL("key", "value", 10*time.Millisecond)
	_, ok := c.Get("key")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("key")
	assert.False(t, ok)
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	c.SetWithTTL("key", "value", 0)
	time.Sleep(10 * time.Millisecond)
	_, ok := c.Get("key")
	assert.True(t, ok)
}

func TestGetOrSetFetchesOnceWhileWarm(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	fetches := 0
	fetch := func(context.Context) (interface{}, error) {
		fetches++
		return "fetched", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrSet(context.Background(), "key", time.Minute, fetch)
		assert.NoError(t, err)
		assert.Equal(t, "fetched", v)
	}
	assert.Equal(t, 1, fetches)
}

func TestGetOrSetDoesNotCacheErrors(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	sentinel := errors.New("fetch failed")
	_, err := c.GetOrSet(context.Background(), "key", time.Minute, func(context.Context) (interface{}, error) {
		return nil, sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	v, err := c.GetOrSet(context.Background(), "key", time.Minute, func(context.Context) (interface{}, error) {
		return "recovered", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "recovered", v)
}

func TestDelete(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	c.Set("key", "value")
	c.Delete("key")
	_, ok := c.Get("key")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}
