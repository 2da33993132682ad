package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/quizbox/internal/storage"
)

func newTestRepo(t *testing.T) *KVRepository {
	t.Helper()
	db, err := Connect(Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewKVRepository(db, 10*time.Millisecond, nil)
}

func TestConnect_UnsupportedType(t *testing.T) {
	_, err := Connect(Config{Type: "oracle"})
	assert.Error(t, err)
}

func TestConnect_PostgresNeedsURL(t *testing.T) {
	_, err := Connect(Config{Type: "postgres"})
	assert.Error(t, err)
}

func TestKVRepository_GetMissing(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Get(context.Background(), "leitner:all")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestKVRepository_PutVersioned(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	v, err := repo.Put(ctx, "k", []byte(`{"a":1}`), 0, "one")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	_, err = repo.Put(ctx, "k", []byte(`{}`), 0, "two")
	assert.ErrorIs(t, err, storage.ErrVersionConflict)

	v, err = repo.Put(ctx, "k", []byte(`{"a":2}`), 1, "two")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	_, err = repo.Put(ctx, "k", []byte(`{}`), 1, "one")
	assert.ErrorIs(t, err, storage.ErrVersionConflict)

	e, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(e.Value))
	assert.Equal(t, int64(2), e.Version)
	assert.Equal(t, "two", e.Origin)
}

func TestKVRepository_PutAnyVersion(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	v, err := repo.Put(ctx, "k", []byte("x"), storage.AnyVersion, "one")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = repo.Put(ctx, "k", []byte("y"), storage.AnyVersion, "one")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestKVRepository_Watch(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.Put(ctx, "k", []byte("before"), storage.AnyVersion, "one")
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []string
	unwatch := repo.Watch("k", func(e storage.Entry) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(e.Value))
	})
	defer unwatch()

	_, err = repo.Put(ctx, "k", []byte("after"), storage.AnyVersion, "two")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"after"}, seen)
	mu.Unlock()
}
