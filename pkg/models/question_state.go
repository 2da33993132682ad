package models

// LogEntry is a single recorded answer attempt
type LogEntry struct {
	T  int64 `json:"t"`  // Unix milliseconds
	OK bool  `json:"ok"` // Whether the answer was correct
}

// QuestionState tracks a learner's Leitner state for one question of a chapter.
// Values are treated as immutable: every transition produces a new QuestionState.
type QuestionState struct {
	Box        int        `json:"box"`                  // Index into the interval table
	Next       int64      `json:"next"`                 // Due timestamp in Unix milliseconds
	Highlight  bool       `json:"highlight,omitempty"`  // Starred by the learner
	Revealed   bool       `json:"revealed,omitempty"`   // Answer has been shown at least once
	RevealedAt *int64     `json:"revealedAt,omitempty"` // Last time the answer was shown
	LastChosen *int       `json:"lastChosen,omitempty"` // Last selected option (mcq only)
	LastText   *string    `json:"lastText,omitempty"`   // Last free-text answer (short only)
	Log        []LogEntry `json:"log"`
}

// Clone returns a deep copy of the state.
func (s QuestionState) Clone() QuestionState {
	out := s
	if s.RevealedAt != nil {
		v := *s.RevealedAt
		out.RevealedAt = &v
	}
	if s.LastChosen != nil {
		v := *s.LastChosen
		out.LastChosen = &v
	}
	if s.LastText != nil {
		v := *s.LastText
		out.LastText = &v
	}
	out.Log = make([]LogEntry, len(s.Log))
	copy(out.Log, s.Log)
	return out
}

// LastAttempt returns the most recent log entry, if any.
func (s QuestionState) LastAttempt() (LogEntry, bool) {
	if len(s.Log) == 0 {
		return LogEntry{}, false
	}
	return s.Log[len(s.Log)-1], true
}

// ChapterProgress maps question IDs to their state within one chapter
type ChapterProgress map[string]QuestionState

// Clone returns a copy of the chapter with every state deep-copied.
func (c ChapterProgress) Clone() ChapterProgress {
	out := make(ChapterProgress, len(c))
	for id, s := range c {
		out[id] = s.Clone()
	}
	return out
}

// AllProgress maps chapter IDs to chapter progress. It is persisted as a single value.
type AllProgress map[string]ChapterProgress

// Clone returns a deep copy of the whole structure.
func (a AllProgress) Clone() AllProgress {
	out := make(AllProgress, len(a))
	for id, ch := range a {
		out[id] = ch.Clone()
	}
	return out
}
