package spaced_repetition

import (
	"sort"

	"github.com/example/quizbox/pkg/models"
)

// Response carries the optional details of a graded answer.
// At most one of Chosen and Text is expected to be set, depending on question type.
type Response struct {
	Chosen *int
	Text   *string
}

// Ensure returns prior unchanged, or the first-touch default when prior is nil.
func Ensure(prior *models.QuestionState, now int64) models.QuestionState {
	if prior != nil {
		return prior.Clone()
	}
	return models.QuestionState{
		Box:  0,
		Next: now,
		Log:  []models.LogEntry{},
	}
}

// Record applies a graded answer. A wrong answer always drops the question back to box 0.
// This is the only transition that moves the schedule.
func Record(prior *models.QuestionState, now int64, correct bool, resp Response) models.QuestionState {
	s := Ensure(prior, now)

	box := 0
	if correct {
		box = ClampBox(s.Box + 1)
	}
	s.Box = box
	s.Next = now + int64(IntervalDays(box))*DayMillis
	s.Log = append(s.Log, models.LogEntry{T: now, OK: correct})

	s.Revealed = true
	at := now
	s.RevealedAt = &at

	if resp.Chosen != nil {
		v := *resp.Chosen
		s.LastChosen = &v
	}
	if resp.Text != nil {
		v := *resp.Text
		s.LastText = &v
	}
	return s
}

// MarkRevealed notes that the answer was shown without a graded response.
func MarkRevealed(prior *models.QuestionState, now int64) models.QuestionState {
	s := Ensure(prior, now)
	s.Revealed = true
	at := now
	s.RevealedAt = &at
	return s
}

// ToggleHighlight flips the starred flag.
func ToggleHighlight(prior *models.QuestionState, now int64) models.QuestionState {
	s := Ensure(prior, now)
	s.Highlight = !s.Highlight
	return s
}

// IsDue reports whether the question should be reviewed at now.
func IsDue(s models.QuestionState, now int64) bool {
	return now >= s.Next
}

// OrderDue returns the IDs of due questions, most overdue first.
// Ties are broken by ID so the order is stable between calls.
func OrderDue(ch models.ChapterProgress, ids []string, now int64) []string {
	valid := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		valid[id] = struct{}{}
	}

	var due []string
	for id, s := range ch {
		if _, ok := valid[id]; !ok {
			continue
		}
		if IsDue(s, now) {
			due = append(due, id)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		ni, nj := ch[due[i]].Next, ch[due[j]].Next
		if ni != nj {
			return ni < nj
		}
		return due[i] < due[j]
	})
	return due
}
