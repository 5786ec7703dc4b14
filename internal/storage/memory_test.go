package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage_StoreAndRetrieve(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	require.NoError(t, s.Store(ctx, "a/1", []byte("one")))

	data, err := s.Retrieve(ctx, "a/1")
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	_, err = s.Retrieve(ctx, "a/2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorage_StoreIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	ok, err := s.StoreIfAbsent(ctx, "k", []byte("first"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.StoreIfAbsent(ctx, "k", []byte("second"))
	require.NoError(t, err)
	assert.False(t, ok)

	data, _ := s.Retrieve(ctx, "k")
	assert.Equal(t, "first", string(data))
}

func TestMemoryStorage_StoreIfAbsentConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.StoreIfAbsent(ctx, "same", []byte("x"))
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestMemoryStorage_List(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	require.NoError(t, s.Store(ctx, "mentions/t1/b", nil))
	require.NoError(t, s.Store(ctx, "mentions/t1/a", nil))
	require.NoError(t, s.Store(ctx, "mentions/t2/a", nil))

	keys, err := s.List(ctx, "mentions/t1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"mentions/t1/a", "mentions/t1/b"}, keys)
}
