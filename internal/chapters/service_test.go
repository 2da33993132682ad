package chapters

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/quizbox/internal/progress"
	"github.com/example/quizbox/internal/storage"
	"github.com/example/quizbox/pkg/models"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type fakeMaterial struct {
	mu       sync.Mutex
	chapters map[string][]models.Question
	err      error
	calls    map[string]int
}

func (f *fakeMaterial) Chapter(_ context.Context, chID string) ([]models.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[chID]++
	if f.err != nil {
		return nil, f.err
	}
	qs, ok := f.chapters[chID]
	if !ok {
		return nil, errors.New("not found")
	}
	return qs, nil
}

func questions(ids ...string) []models.Question {
	qs := make([]models.Question, 0, len(ids))
	for _, id := range ids {
		qs = append(qs, models.Question{ID: id, Type: models.ShortAnswer, Question: id, Answer: models.TextAnswer(id)})
	}
	return qs
}

func newTestService(t *testing.T, mat *fakeMaterial) (*Service, *progress.Store) {
	t.Helper()
	store, err := progress.New(context.Background(), storage.NewMemory(),
		progress.WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return NewService(mat, store, nil), store
}

func TestService_EnsureIndexReconciles(t *testing.T) {
	ctx := context.Background()
	mat := &fakeMaterial{chapters: map[string][]models.Question{"ch1": questions("a", "b")}}
	svc, store := newTestService(t, mat)

	_, err := store.Record(ctx, "ch1", "a", true, nil, nil)
	require.NoError(t, err)
	_, err = store.Record(ctx, "ch1", "gone", false, nil, nil)
	require.NoError(t, err)

	require.NoError(t, svc.EnsureIndex(ctx, "ch1"))

	assert.Equal(t, 2, svc.Total("ch1"))
	_, ok := store.Question("ch1", "gone")
	assert.False(t, ok)
	_, ok = store.Question("ch1", "a")
	assert.True(t, ok)

	require.NoError(t, svc.EnsureIndex(ctx, "ch1"))
	assert.Equal(t, 1, mat.calls["ch1"], "indexed chapters are not fetched again")
}

func TestService_FailedLoadKeepsProgress(t *testing.T) {
	ctx := context.Background()
	mat := &fakeMaterial{err: errors.New("offline")}
	svc, store := newTestService(t, mat)

	_, err := store.Record(ctx, "ch1", "a", true, nil, nil)
	require.NoError(t, err)

	assert.Error(t, svc.EnsureIndex(ctx, "ch1"))
	_, ok := store.Question("ch1", "a")
	assert.True(t, ok)

	_, err = svc.StatsFor("ch1")
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = svc.DueIDs("ch1")
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = svc.EntriesFor("ch1")
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.Equal(t, 0, svc.Total("ch1"))
}

func TestService_ReloadFailureKeepsIndex(t *testing.T) {
	ctx := context.Background()
	mat := &fakeMaterial{chapters: map[string][]models.Question{"ch1": questions("a")}}
	svc, _ := newTestService(t, mat)
	require.NoError(t, svc.EnsureIndex(ctx, "ch1"))

	mat.err = errors.New("offline")
	assert.Error(t, svc.Reload(ctx, "ch1"))

	ids, err := svc.IDs("ch1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestService_EnsureMany(t *testing.T) {
	ctx := context.Background()
	mat := &fakeMaterial{chapters: map[string][]models.Question{
		"ch1": questions("a"),
		"ch2": questions("b", "c"),
	}}
	svc, _ := newTestService(t, mat)

	err := svc.EnsureMany(ctx, []string{"ch1", "ch2", "missing"})
	assert.Error(t, err)
	assert.Equal(t, []string{"ch1", "ch2"}, svc.Loaded())
}

func TestService_StatsAndDue(t *testing.T) {
	ctx := context.Background()
	mat := &fakeMaterial{chapters: map[string][]models.Question{"ch1": questions("a", "b", "c", "d")}}
	svc, store := newTestService(t, mat)
	require.NoError(t, svc.EnsureIndex(ctx, "ch1"))

	_, err := store.Record(ctx, "ch1", "a", true, nil, nil)
	require.NoError(t, err)
	_, err = store.Record(ctx, "ch1", "b", false, nil, nil)
	require.NoError(t, err)

	stats, err := svc.StatsFor("ch1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Done)
	assert.Equal(t, 1, stats.Due)
	assert.Equal(t, 1, stats.Wrong)
	assert.Equal(t, 50, stats.ProgressPct)

	due, err := svc.DueIDs("ch1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, due)

	unseen, err := svc.Unseen("ch1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, unseen)

	entries, err := svc.EntriesFor("ch1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].ID)
}

func TestService_Question(t *testing.T) {
	mat := &fakeMaterial{chapters: map[string][]models.Question{"ch1": questions("a")}}
	svc, _ := newTestService(t, mat)
	require.NoError(t, svc.EnsureIndex(context.Background(), "ch1"))

	q, ok := svc.Question("ch1", "a")
	require.True(t, ok)
	assert.Equal(t, "a", q.ID)

	_, ok = svc.Question("ch1", "zz")
	assert.False(t, ok)
	_, ok = svc.Question("nope", "a")
	assert.False(t, ok)
}
