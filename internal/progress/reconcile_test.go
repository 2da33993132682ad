package progress

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/quizbox/internal/storage"
	"github.com/example/quizbox/pkg/models"
)

func TestPrune(t *testing.T) {
	ch := models.ChapterProgress{
		"q1": {Box: 1},
		"q2": {Box: 2},
		"q3": {Box: 3},
	}

	tests := []struct {
		name string
		ids  []string
		want []string
	}{
		{name: "keeps members", ids: []string{"q1", "q3"}, want: []string{"q1", "q3"}},
		{name: "never seeds", ids: []string{"q2", "q4"}, want: []string{"q2"}},
		{name: "empty set prunes all", ids: nil, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Prune(ch, tt.ids)
			assert.Len(t, got, len(tt.want))
			for _, id := range tt.want {
				assert.Equal(t, ch[id], got[id])
			}
			assert.Len(t, ch, 3, "input must not be modified")
		})
	}
}

func TestPrune_Idempotent(t *testing.T) {
	ch := models.ChapterProgress{"q1": {}, "q2": {}, "q3": {}}
	ids := []string{"q2", "q3", "q9"}
	once := Prune(ch, ids)
	assert.Equal(t, once, Prune(once, ids))
}

func TestStore_ReconcileScenario(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, storage.NewMemory())

	_, err := s.Record(ctx, "ch1", "q1", true, nil, nil)
	require.NoError(t, err)
	_, err = s.Record(ctx, "ch1", "q2", false, nil, nil)
	require.NoError(t, err)
	_, err = s.Record(ctx, "ch2", "q1", true, nil, nil)
	require.NoError(t, err)

	removed, err := s.Reconcile(ctx, "ch1", []string{"q2"})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	ch := s.Chapter("ch1")
	assert.Len(t, ch, 1)
	assert.Contains(t, ch, "q2")

	_, ok := s.Question("ch2", "q1")
	assert.True(t, ok, "other chapters are untouched")

	stats := s.StatsFor("ch1", []string{"q2"})
	assert.Equal(t, 1, stats.Done)
	assert.Equal(t, 1, stats.Wrong)
	assert.Equal(t, 100, stats.ProgressPct)
}

func TestStore_ReconcileIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, storage.NewMemory())

	_, _ = s.Record(ctx, "ch1", "q1", true, nil, nil)
	_, _ = s.Record(ctx, "ch1", "q2", true, nil, nil)

	_, err := s.Reconcile(ctx, "ch1", []string{"q1"})
	require.NoError(t, err)
	first := s.Snapshot()
	version := s.Version()

	removed, err := s.Reconcile(ctx, "ch1", []string{"q1"})
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, first, s.Snapshot())
	assert.Equal(t, version, s.Version(), "a no-op reconcile must not write")
}

func TestStore_ReconcileNeverSeeds(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, storage.NewMemory())

	_, _ = s.Record(ctx, "ch1", "q1", true, nil, nil)
	_, err := s.Reconcile(ctx, "ch1", []string{"q1", "q2", "q3"})
	require.NoError(t, err)

	assert.Len(t, s.Chapter("ch1"), 1)
	_, ok := s.Question("ch1", "q2")
	assert.False(t, ok)
}

func TestStore_ReconcileEmptySetPrunesChapter(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, storage.NewMemory())

	_, _ = s.Record(ctx, "ch1", "q1", true, nil, nil)
	removed, err := s.Reconcile(ctx, "ch1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Empty(t, s.Chapter("ch1"))
}
