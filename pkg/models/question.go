package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// QuestionType distinguishes multiple-choice from short-answer questions
type QuestionType string

const (
	// MultipleChoice questions are answered by picking an option index
	MultipleChoice QuestionType = "mcq"
	// ShortAnswer questions are answered with free text
	ShortAnswer QuestionType = "short"
)

// Chapter describes a group of questions
type Chapter struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Desc          string   `json:"desc,omitempty"`
	CoverageItems []string `json:"coverage_items"`
}

// Question is a single quiz item as delivered by the material source
type Question struct {
	ID       string            `json:"id"`
	Type     QuestionType      `json:"type"`
	Question string            `json:"question"`
	Options  []string          `json:"options,omitempty"`
	Answer   Answer            `json:"answer"`
	Hint     string            `json:"hint,omitempty"`
	Extra    string            `json:"extra,omitempty"`
	Page     int               `json:"page"`
	Rel      string            `json:"Rel,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
}

// Answer holds either the correct option index (mcq) or the expected text (short).
// On the wire it is a JSON number or a JSON string.
type Answer struct {
	Index *int
	Text  string
}

// IndexAnswer builds an Answer pointing at option i.
func IndexAnswer(i int) Answer {
	return Answer{Index: &i}
}

// TextAnswer builds a free-text Answer.
func TextAnswer(s string) Answer {
	return Answer{Text: s}
}

// String renders the answer for display.
func (a Answer) String() string {
	if a.Index != nil {
		return strconv.Itoa(*a.Index)
	}
	return a.Text
}

// MarshalJSON implements json.Marshaler
func (a Answer) MarshalJSON() ([]byte, error) {
	if a.Index != nil {
		return json.Marshal(*a.Index)
	}
	return json.Marshal(a.Text)
}

// UnmarshalJSON implements json.Unmarshaler
func (a *Answer) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		a.Index = &n
		a.Text = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("answer must be a number or a string: %w", err)
	}
	a.Index = nil
	a.Text = s
	return nil
}

// IDs returns the question IDs in source order.
func IDs(questions []Question) []string {
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.ID)
	}
	return ids
}
