// Package progress owns the learner's Leitner progress across chapters: it
// applies state-machine transitions, persists the whole structure as one value,
// keeps in sync with writes from other processes and derives chapter statistics.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/quizbox/internal/spaced_repetition"
	"github.com/example/quizbox/internal/storage"
	"github.com/example/quizbox/pkg/models"
)

// StorageKey is the single durable key holding all progress
const StorageKey = "leitner:all"

// maxWriteAttempts bounds re-application of an operation after version conflicts
const maxWriteAttempts = 5

// Notifier receives human-readable event messages. Emit must not block.
type Notifier interface {
	Emit(text string)
}

type nopNotifier struct{}

func (nopNotifier) Emit(string) {}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithNotifier sets the sink for answer, highlight and reset events
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithDefaults sets the shape merged under persisted data on load.
// Persisted chapters always win; defaults are never written on their own.
func WithDefaults(d models.AllProgress) Option {
	return func(s *Store) { s.defaults = d }
}

// WithOrigin sets the writer identity used to tell own writes from foreign ones
func WithOrigin(origin string) Option {
	return func(s *Store) { s.origin = origin }
}

// WithKey overrides StorageKey
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// Entry pairs a question ID with its state
type Entry struct {
	ID    string
	State models.QuestionState
}

// Store is the progress store. Create it with New and share the instance.
type Store struct {
	kv       storage.KV
	key      string
	origin   string
	now      func() time.Time
	notifier Notifier
	logger   *slog.Logger
	defaults models.AllProgress

	// writeMu serialises read-modify-write cycles
	writeMu sync.Mutex

	mu      sync.RWMutex
	state   models.AllProgress
	version int64

	obsMu     sync.Mutex
	observers map[int]func(models.AllProgress)
	nextObs   int

	unwatch func()
}

// New loads progress from kv and starts watching it for foreign writes
func New(ctx context.Context, kv storage.KV, opts ...Option) (*Store, error) {
	s := &Store{
		kv:        kv,
		key:       StorageKey,
		now:       time.Now,
		notifier:  nopNotifier{},
		logger:    slog.Default(),
		observers: make(map[int]func(models.AllProgress)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.origin == "" {
		s.origin = uuid.NewString()
	}

	if err := s.load(ctx); err != nil {
		return nil, err
	}
	s.unwatch = kv.Watch(s.key, s.onExternalChange)
	return s, nil
}

// Close stops watching the underlying key
func (s *Store) Close() {
	if s.unwatch != nil {
		s.unwatch()
	}
}

// Origin returns the writer identity of this store
func (s *Store) Origin() string {
	return s.origin
}

func (s *Store) load(ctx context.Context) error {
	e, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		s.setState(mergeDefaults(s.defaults, nil), 0)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load progress: %w", err)
	}
	s.setState(mergeDefaults(s.defaults, s.decode(e)), e.Version)
	return nil
}

// Refresh re-reads the persisted value, replacing the in-memory copy
func (s *Store) Refresh(ctx context.Context) error {
	e, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to refresh progress: %w", err)
	}
	s.publish(s.decode(e), e.Version)
	return nil
}

// decode parses a persisted value. Malformed data is logged and replaced by an empty structure.
func (s *Store) decode(e storage.Entry) models.AllProgress {
	var all models.AllProgress
	if err := json.Unmarshal(e.Value, &all); err != nil {
		s.logger.Warn("discarding malformed progress data", "key", s.key, "version", e.Version, "error", err)
		return models.AllProgress{}
	}
	if all == nil {
		all = models.AllProgress{}
	}
	for chID, ch := range all {
		if ch == nil {
			all[chID] = models.ChapterProgress{}
		}
	}
	return all
}

func mergeDefaults(defaults, persisted models.AllProgress) models.AllProgress {
	out := make(models.AllProgress, len(defaults)+len(persisted))
	for chID, ch := range defaults {
		out[chID] = ch.Clone()
	}
	for chID, ch := range persisted {
		out[chID] = ch
	}
	return out
}

func (s *Store) onExternalChange(e storage.Entry) {
	if e.Origin == s.origin {
		return
	}
	s.logger.Debug("progress changed elsewhere", "origin", e.Origin, "version", e.Version)
	s.publish(s.decode(e), e.Version)
}

func (s *Store) setState(all models.AllProgress, version int64) {
	s.mu.Lock()
	s.state = all
	s.version = version
	s.mu.Unlock()
}

// publish installs a newer snapshot and tells observers about it
func (s *Store) publish(all models.AllProgress, version int64) {
	s.mu.Lock()
	if version < s.version {
		s.mu.Unlock()
		return
	}
	s.state = all
	s.version = version
	s.mu.Unlock()

	s.obsMu.Lock()
	fns := make([]func(models.AllProgress), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(all)
	}
}

func (s *Store) current() (models.AllProgress, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.version
}

// Subscribe registers fn to receive every new snapshot, local or external.
// Snapshots are shared and must be treated as read-only.
func (s *Store) Subscribe(fn func(models.AllProgress)) (unsubscribe func()) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		delete(s.observers, id)
	}
}

// Snapshot returns a deep copy of all progress
func (s *Store) Snapshot() models.AllProgress {
	all, _ := s.current()
	return all.Clone()
}

// Version returns the version of the persisted value the store last saw
func (s *Store) Version() int64 {
	_, v := s.current()
	return v
}

// Chapter returns a copy of one chapter's progress (empty when untouched)
func (s *Store) Chapter(chID string) models.ChapterProgress {
	all, _ := s.current()
	if ch, ok := all[chID]; ok {
		return ch.Clone()
	}
	return models.ChapterProgress{}
}

// Question returns the state of a question, and false if it is untouched
func (s *Store) Question(chID, qID string) (models.QuestionState, bool) {
	all, _ := s.current()
	st, ok := all[chID][qID]
	if !ok {
		return models.QuestionState{}, false
	}
	return st.Clone(), true
}

// chapterFunc computes a new chapter from the current one. It must not modify cur.
type chapterFunc func(cur models.ChapterProgress, now int64) (next models.ChapterProgress, changed bool)

// mutate runs the read-modify-write cycle for one chapter and persists the whole structure.
// On a version conflict the newest value is reloaded and fn is applied again.
func (s *Store) mutate(ctx context.Context, chID string, fn chapterFunc) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		cur, version := s.current()
		nextCh, changed := fn(cur[chID], s.now().UnixMilli())
		if !changed {
			return false, nil
		}

		next := make(models.AllProgress, len(cur)+1)
		for id, ch := range cur {
			next[id] = ch
		}
		next[chID] = nextCh

		data, err := json.Marshal(next)
		if err != nil {
			return false, fmt.Errorf("failed to encode progress: %w", err)
		}

		newVersion, err := s.kv.Put(ctx, s.key, data, version, s.origin)
		if errors.Is(err, storage.ErrVersionConflict) {
			s.logger.Info("progress write conflict, reapplying", "chapter", chID, "attempt", attempt+1)
			if err := s.Refresh(ctx); err != nil {
				return false, err
			}
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to save progress: %w", err)
		}

		s.publish(next, newVersion)
		return true, nil
	}
	return false, fmt.Errorf("failed to save progress after %d attempts: %w", maxWriteAttempts, storage.ErrVersionConflict)
}

// withQuestion returns a copy of ch with qID set to st
func withQuestion(ch models.ChapterProgress, qID string, st models.QuestionState) models.ChapterProgress {
	out := make(models.ChapterProgress, len(ch)+1)
	for id, v := range ch {
		out[id] = v
	}
	out[qID] = st
	return out
}

func lookup(ch models.ChapterProgress, qID string) *models.QuestionState {
	if st, ok := ch[qID]; ok {
		return &st
	}
	return nil
}

// Record stores a graded answer. chosen is the selected option for multiple-choice
// questions, text the typed answer for short ones; either may be nil.
func (s *Store) Record(ctx context.Context, chID, qID string, correct bool, chosen *int, text *string) (models.QuestionState, error) {
	var result models.QuestionState
	_, err := s.mutate(ctx, chID, func(cur models.ChapterProgress, now int64) (models.ChapterProgress, bool) {
		result = spaced_repetition.Record(lookup(cur, qID), now, correct, spaced_repetition.Response{Chosen: chosen, Text: text})
		return withQuestion(cur, qID, result), true
	})
	if err != nil {
		return models.QuestionState{}, err
	}

	s.logger.Debug("answer recorded", "chapter", chID, "question", qID, "correct", correct, "box", result.Box)
	s.notifier.Emit(answerMessage(chID, qID, correct, chosen, text))
	return result.Clone(), nil
}

// MarkRevealed notes that the answer was shown without grading
func (s *Store) MarkRevealed(ctx context.Context, chID, qID string) (models.QuestionState, error) {
	var result models.QuestionState
	_, err := s.mutate(ctx, chID, func(cur models.ChapterProgress, now int64) (models.ChapterProgress, bool) {
		result = spaced_repetition.MarkRevealed(lookup(cur, qID), now)
		return withQuestion(cur, qID, result), true
	})
	if err != nil {
		return models.QuestionState{}, err
	}

	s.logger.Debug("answer revealed", "chapter", chID, "question", qID)
	return result.Clone(), nil
}

// ToggleHighlight flips the star on a question
func (s *Store) ToggleHighlight(ctx context.Context, chID, qID string) (models.QuestionState, error) {
	var result models.QuestionState
	_, err := s.mutate(ctx, chID, func(cur models.ChapterProgress, now int64) (models.ChapterProgress, bool) {
		result = spaced_repetition.ToggleHighlight(lookup(cur, qID), now)
		return withQuestion(cur, qID, result), true
	})
	if err != nil {
		return models.QuestionState{}, err
	}

	s.notifier.Emit(highlightMessage(chID, qID, result.Highlight))
	return result.Clone(), nil
}

// Reset forgets a question entirely, returning it to the untouched state.
// It reports whether there was anything to remove.
func (s *Store) Reset(ctx context.Context, chID, qID string) (bool, error) {
	removed, err := s.mutate(ctx, chID, func(cur models.ChapterProgress, _ int64) (models.ChapterProgress, bool) {
		if _, ok := cur[qID]; !ok {
			return cur, false
		}
		out := make(models.ChapterProgress, len(cur))
		for id, v := range cur {
			if id != qID {
				out[id] = v
			}
		}
		return out, true
	})
	if err != nil {
		return false, err
	}

	if removed {
		s.notifier.Emit(resetMessage(chID, qID))
	}
	return removed, nil
}

// EntriesFor returns the stored entries of a chapter whose IDs are in ids, sorted by ID
func (s *Store) EntriesFor(chID string, ids []string) []Entry {
	all, _ := s.current()
	ch := all[chID]
	valid := idSet(ids)

	entries := make([]Entry, 0, len(ch))
	for id, st := range ch {
		if _, ok := valid[id]; ok {
			entries = append(entries, Entry{ID: id, State: st.Clone()})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

// DueIDs returns the IDs in ids that are due now, most overdue first
func (s *Store) DueIDs(chID string, ids []string) []string {
	all, _ := s.current()
	return spaced_repetition.OrderDue(all[chID], ids, s.now().UnixMilli())
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
