// Package chapters keeps the current question index of each chapter and
// reconciles stored progress against it.
package chapters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/example/quizbox/internal/progress"
	"github.com/example/quizbox/pkg/models"
)

// ErrNotLoaded is returned for chapters whose material has not been loaded
var ErrNotLoaded = errors.New("chapter not loaded")

// maxParallelLoads limits concurrent material requests in EnsureMany
const maxParallelLoads = 4

// MaterialSource provides the questions of a chapter
type MaterialSource interface {
	Chapter(ctx context.Context, chID string) ([]models.Question, error)
}

// Service indexes chapter material and derives progress views from it
type Service struct {
	material MaterialSource
	store    *progress.Store
	logger   *slog.Logger

	mu        sync.RWMutex
	questions map[string][]models.Question
}

// NewService creates a new chapter service
func NewService(material MaterialSource, store *progress.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		material:  material,
		store:     store,
		logger:    logger,
		questions: make(map[string][]models.Question),
	}
}

// EnsureIndex loads a chapter once and reconciles its progress.
// A chapter that is already indexed is left alone.
func (s *Service) EnsureIndex(ctx context.Context, chID string) error {
	if _, ok := s.lookup(chID); ok {
		return nil
	}
	return s.Reload(ctx, chID)
}

// Reload fetches a chapter again and reconciles its progress.
// When the fetch fails the previous index and the stored progress are kept.
func (s *Service) Reload(ctx context.Context, chID string) error {
	qs, err := s.material.Chapter(ctx, chID)
	if err != nil {
		return fmt.Errorf("failed to load chapter %s: %w", chID, err)
	}
	return s.ReconcileFromQuestions(ctx, chID, qs)
}

// ReconcileFromQuestions replaces the index of a chapter and prunes progress
// for questions that are gone.
func (s *Service) ReconcileFromQuestions(ctx context.Context, chID string, qs []models.Question) error {
	if qs == nil {
		qs = []models.Question{}
	}

	s.mu.Lock()
	s.questions[chID] = qs
	s.mu.Unlock()

	if _, err := s.store.Reconcile(ctx, chID, models.IDs(qs)); err != nil {
		return fmt.Errorf("failed to reconcile chapter %s: %w", chID, err)
	}
	return nil
}

// EnsureMany indexes several chapters concurrently. Every chapter is attempted;
// the first error is returned.
func (s *Service) EnsureMany(ctx context.Context, chIDs []string) error {
	var g errgroup.Group
	g.SetLimit(maxParallelLoads)

	for _, id := range chIDs {
		id := id // per-iteration copy; go.mod targets go1.21 loop semantics
		g.Go(func() error {
			if err := s.EnsureIndex(ctx, id); err != nil {
				s.logger.Warn("chapter index failed", "chapter", id, "error", err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) lookup(chID string) ([]models.Question, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	qs, ok := s.questions[chID]
	return qs, ok
}

// Loaded returns the IDs of indexed chapters, sorted
func (s *Service) Loaded() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.questions))
	for id := range s.questions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Questions returns the indexed questions of a chapter
func (s *Service) Questions(chID string) ([]models.Question, error) {
	qs, ok := s.lookup(chID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", chID, ErrNotLoaded)
	}
	return qs, nil
}

// Question finds one question of an indexed chapter
func (s *Service) Question(chID, qID string) (models.Question, bool) {
	qs, _ := s.lookup(chID)
	for _, q := range qs {
		if q.ID == qID {
			return q, true
		}
	}
	return models.Question{}, false
}

// IDs returns the question IDs of a chapter
func (s *Service) IDs(chID string) ([]string, error) {
	qs, err := s.Questions(chID)
	if err != nil {
		return nil, err
	}
	return models.IDs(qs), nil
}

// Total returns the number of questions in a chapter, 0 if not loaded
func (s *Service) Total(chID string) int {
	qs, _ := s.lookup(chID)
	return len(qs)
}

// StatsFor returns chapter statistics over the current question set
func (s *Service) StatsFor(chID string) (models.ChapterStats, error) {
	ids, err := s.IDs(chID)
	if err != nil {
		return models.ChapterStats{}, err
	}
	return s.store.StatsFor(chID, ids), nil
}

// EntriesFor returns the progress entries still valid for a chapter
func (s *Service) EntriesFor(chID string) ([]progress.Entry, error) {
	ids, err := s.IDs(chID)
	if err != nil {
		return nil, err
	}
	return s.store.EntriesFor(chID, ids), nil
}

// DueIDs returns the questions of a chapter that are due now
func (s *Service) DueIDs(chID string) ([]string, error) {
	ids, err := s.IDs(chID)
	if err != nil {
		return nil, err
	}
	return s.store.DueIDs(chID, ids), nil
}

// Unseen returns the questions of a chapter that have no stored progress yet
func (s *Service) Unseen(chID string) ([]string, error) {
	ids, err := s.IDs(chID)
	if err != nil {
		return nil, err
	}
	ch := s.store.Chapter(chID)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := ch[id]; !ok {
			out = append(out, id)
		}
	}
	return out, nil
}
