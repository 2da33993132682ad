package progress

import (
	"context"

	"github.com/example/quizbox/pkg/models"
)

// Prune keeps only the entries of ch whose ID is in ids. It never adds entries.
func Prune(ch models.ChapterProgress, ids []string) models.ChapterProgress {
	valid := idSet(ids)
	out := make(models.ChapterProgress, len(ch))
	for id, st := range ch {
		if _, ok := valid[id]; ok {
			out[id] = st
		}
	}
	return out
}

// Reconcile drops stored state for questions that are no longer part of the chapter.
// It returns the number of removed entries; calling it again with the same ids is a no-op.
// An empty ids slice removes everything, so callers must only pass ids loaded from material.
func (s *Store) Reconcile(ctx context.Context, chID string, ids []string) (int, error) {
	if len(ids) == 0 {
		s.logger.Warn("reconciling with an empty id set", "chapter", chID)
	}

	removed := 0
	_, err := s.mutate(ctx, chID, func(cur models.ChapterProgress, _ int64) (models.ChapterProgress, bool) {
		next := Prune(cur, ids)
		removed = len(cur) - len(next)
		return next, removed > 0
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		s.logger.Info("pruned stale progress", "chapter", chID, "removed", removed, "kept", len(ids))
	}
	return removed, nil
}
