package progress

import (
	"math"

	"github.com/example/quizbox/internal/spaced_repetition"
	"github.com/example/quizbox/pkg/models"
)

// ComputeStats derives chapter counters from the entries of ch that are in ids.
// The chapter size used for the percentage is len(ids).
func ComputeStats(ch models.ChapterProgress, ids []string, now int64) models.ChapterStats {
	var stats models.ChapterStats
	valid := idSet(ids)

	for id, st := range ch {
		if _, ok := valid[id]; !ok {
			continue
		}
		stats.Done++
		if spaced_repetition.IsDue(st, now) {
			stats.Due++
		}
		if last, ok := st.LastAttempt(); ok && !last.OK {
			stats.Wrong++
		}
		if st.Highlight {
			stats.Star++
		}
		for _, l := range st.Log {
			if l.T > stats.Last {
				stats.Last = l.T
			}
		}
		if st.RevealedAt != nil && *st.RevealedAt > stats.Last {
			stats.Last = *st.RevealedAt
		}
	}

	if total := len(ids); total > 0 {
		stats.ProgressPct = int(math.Round(float64(stats.Done) / float64(total) * 100))
	}
	return stats
}

// StatsFor returns the statistics of a chapter restricted to ids, without touching the store
func (s *Store) StatsFor(chID string, ids []string) models.ChapterStats {
	all, _ := s.current()
	return ComputeStats(all[chID], ids, s.now().UnixMilli())
}
