package models

// ChapterStats holds aggregate counters for a chapter, derived from progress
type ChapterStats struct {
	Done        int   `json:"done"`        // Questions with any stored state
	Due         int   `json:"due"`         // Questions whose next review time has passed
	Wrong       int   `json:"wrong"`       // Questions whose last attempt was wrong
	Star        int   `json:"star"`        // Highlighted questions
	Last        int64 `json:"last"`        // Latest activity in Unix milliseconds, 0 if none
	ProgressPct int   `json:"progressPct"` // Share of chapter questions touched, 0-100
}
