package redislock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}}
}

func (s *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = value.(string)
	return true, nil
}

func (s *fakeStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (s *fakeStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}

func TestLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	first, err := New(store, Key("reconcile"), time.Minute)
	require.NoError(t, err)
	second, err := New(store, Key("reconcile"), time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Release(ctx))
	_, err = store.Get(ctx, Key("reconcile"))
	assert.NoError(t, err, "non-owner release must keep the key")

	require.NoError(t, first.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseAfterExpiry(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	lock, err := New(store, Key("reconcile"), time.Minute)
	require.NoError(t, err)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Del(ctx, Key("reconcile")))
	assert.NoError(t, lock.Release(ctx))
}

func TestNewValidatesArguments(t *testing.T) {
	_, err := New(nil, "k", time.Minute)
	assert.Error(t, err)
	_, err = New(newFakeStore(), "", time.Minute)
	assert.Error(t, err)
}
