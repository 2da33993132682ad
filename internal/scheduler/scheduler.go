// Package scheduler runs periodic jobs: due-question reminders and material refreshes.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Default notification window, inclusive
const (
	DefaultNotificationStartHour = 8
	DefaultNotificationEndHour   = 22
)

// ChapterDue is the number of due questions in one chapter
type ChapterDue struct {
	ChapterID string
	Due       int
}

// Notifier sends reminders
type Notifier interface {
	SendReminder(ctx context.Context, due []ChapterDue) error
}

// Chapters is the chapter index the jobs work on
type Chapters interface {
	Loaded() []string
	DueIDs(chID string) ([]string, error)
	Reload(ctx context.Context, chID string) error
}

// Config configures a Scheduler
type Config struct {
	ReminderInterval time.Duration
	RefreshInterval  time.Duration // 0 disables material refresh
	StartHour        int
	EndHour          int
	Location         *time.Location
	Now              func() time.Time
	Logger           *slog.Logger
}

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	scheduler *gocron.Scheduler
	notifier  Notifier
	chapters  Chapters
	cfg       Config
	logger    *slog.Logger
}

// New creates a new scheduler instance
func New(notifier Notifier, chapters Chapters, cfg Config) *Scheduler {
	if cfg.ReminderInterval <= 0 {
		cfg.ReminderInterval = time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(cfg.Location),
		notifier:  notifier,
		chapters:  chapters,
		cfg:       cfg,
		logger:    cfg.Logger,
	}
}

// Start begins running all scheduled tasks
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.scheduler.Every(s.cfg.ReminderInterval).WaitForSchedule().SingletonMode().
		Do(func() { s.CheckReminders(ctx) })
	if err != nil {
		return fmt.Errorf("failed to schedule reminders: %w", err)
	}

	if s.cfg.RefreshInterval > 0 {
		_, err = s.scheduler.Every(s.cfg.RefreshInterval).WaitForSchedule().SingletonMode().
			Do(func() { s.RefreshMaterial(ctx) })
		if err != nil {
			return fmt.Errorf("failed to schedule material refresh: %w", err)
		}
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// InWindow reports whether hour is inside the notification window
func (s *Scheduler) InWindow(hour int) bool {
	return hour >= s.cfg.StartHour && hour <= s.cfg.EndHour
}

// CheckReminders sends a reminder when any loaded chapter has due questions
// and the current hour is inside the notification window.
func (s *Scheduler) CheckReminders(ctx context.Context) {
	hour := s.cfg.Now().In(s.cfg.Location).Hour()
	if !s.InWindow(hour) {
		s.logger.Debug("outside notification hours, skipping reminders",
			"hour", hour, "start", s.cfg.StartHour, "end", s.cfg.EndHour)
		return
	}

	due := s.DueSummary()
	if len(due) == 0 {
		return
	}
	if err := s.notifier.SendReminder(ctx, due); err != nil {
		s.logger.Warn("failed to send reminder", "error", err)
	}
}

// DueSummary counts due questions per loaded chapter, omitting chapters with none
func (s *Scheduler) DueSummary() []ChapterDue {
	var out []ChapterDue
	for _, chID := range s.chapters.Loaded() {
		ids, err := s.chapters.DueIDs(chID)
		if err != nil {
			s.logger.Warn("failed to get due questions", "chapter", chID, "error", err)
			continue
		}
		if len(ids) > 0 {
			out = append(out, ChapterDue{ChapterID: chID, Due: len(ids)})
		}
	}
	return out
}

// RefreshMaterial reloads every loaded chapter. Failures keep the previous index.
func (s *Scheduler) RefreshMaterial(ctx context.Context) {
	for _, chID := range s.chapters.Loaded() {
		if ctx.Err() != nil {
			return
		}
		if err := s.chapters.Reload(ctx, chID); err != nil {
			s.logger.Warn("material refresh failed", "chapter", chID, "error", err)
		}
	}
}
