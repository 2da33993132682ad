package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/example/quizbox/internal/scheduler"
	"github.com/example/quizbox/pkg/models"
)

// Callback actions
const (
	actionAnswer = "a"
	actionReveal = "r"
	actionStar   = "h"
	actionNext   = "n"
)

const (
	callbackSeparator = "|"
	// Telegram rejects callback data longer than this
	maxCallbackData = 64
)

// callback is the decoded data of an inline button
type callback struct {
	Action     string
	ChapterID  string
	QuestionID string
	Option     int
}

func encodeCallback(c callback) string {
	parts := []string{c.Action, c.ChapterID}
	if c.Action != actionNext {
		parts = append(parts, c.QuestionID)
	}
	if c.Action == actionAnswer {
		parts = append(parts, strconv.Itoa(c.Option))
	}
	return strings.Join(parts, callbackSeparator)
}

func parseCallback(data string) (callback, error) {
	parts := strings.Split(data, callbackSeparator)
	c := callback{Action: parts[0]}

	want := 0
	switch c.Action {
	case actionAnswer:
		want = 4
	case actionReveal, actionStar:
		want = 3
	case actionNext:
		want = 2
	default:
		return c, fmt.Errorf("unknown callback action %q", c.Action)
	}
	if len(parts) != want {
		return c, fmt.Errorf("malformed callback %q", data)
	}

	c.ChapterID = parts[1]
	if want >= 3 {
		c.QuestionID = parts[2]
	}
	if c.Action == actionAnswer {
		opt, err := strconv.Atoi(parts[3])
		if err != nil || opt < 0 {
			return c, fmt.Errorf("invalid option in callback %q", data)
		}
		c.Option = opt
	}
	if c.ChapterID == "" || (want >= 3 && c.QuestionID == "") {
		return c, fmt.Errorf("malformed callback %q", data)
	}
	return c, nil
}

func optionLabel(i int) string {
	return string(rune('A' + i))
}

func questionButtons(chID string, q models.Question) [][]MenuButton {
	var rows [][]MenuButton
	if q.Type == models.MultipleChoice {
		var row []MenuButton
		for i := range q.Options {
			row = append(row, MenuButton{
				Text:         optionLabel(i),
				CallbackData: encodeCallback(callback{Action: actionAnswer, ChapterID: chID, QuestionID: q.ID, Option: i}),
			})
		}
		rows = append(rows, row)
	}
	rows = append(rows, []MenuButton{
		{Text: "👀 Reveal", CallbackData: encodeCallback(callback{Action: actionReveal, ChapterID: chID, QuestionID: q.ID})},
		{Text: "⭐ Star", CallbackData: encodeCallback(callback{Action: actionStar, ChapterID: chID, QuestionID: q.ID})},
	})
	return rows
}

func nextButtons(chID string) [][]MenuButton {
	return [][]MenuButton{{
		{Text: "➡️ Next", CallbackData: encodeCallback(callback{Action: actionNext, ChapterID: chID})},
	}}
}

func reminderButtons(due []scheduler.ChapterDue) [][]MenuButton {
	var rows [][]MenuButton
	for _, d := range due {
		rows = append(rows, []MenuButton{{
			Text:         "▶️ " + d.ChapterID,
			CallbackData: encodeCallback(callback{Action: actionNext, ChapterID: d.ChapterID}),
		}})
	}
	return rows
}

// fitsCallback reports whether every button of a question stays within Telegram's limit
func fitsCallback(chID string, q models.Question) bool {
	for _, row := range questionButtons(chID, q) {
		for _, btn := range row {
			if len(btn.CallbackData) > maxCallbackData {
				return false
			}
		}
	}
	return true
}

// formatQuestion renders a question as HTML
func formatQuestion(chID string, q models.Question, st *models.QuestionState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s · #%s</b>", html.EscapeString(chID), html.EscapeString(q.ID))
	if st != nil {
		fmt.Fprintf(&sb, " <i>box %d</i>", st.Box)
		if st.Highlight {
			sb.WriteString(" ⭐")
		}
	}
	sb.WriteString("\n\n")
	sb.WriteString(html.EscapeString(q.Question))
	sb.WriteString("\n")

	if q.Type == models.MultipleChoice {
		sb.WriteString("\n")
		for i, opt := range q.Options {
			fmt.Fprintf(&sb, "%s) %s\n", optionLabel(i), html.EscapeString(opt))
		}
	} else {
		sb.WriteString("\n<i>Reply with your answer.</i>\n")
	}
	if q.Page > 0 {
		fmt.Fprintf(&sb, "\n<i>p. %d</i>", q.Page)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// formatAnswer renders the correct answer with hint and extra notes
func formatAnswer(q models.Question) string {
	var sb strings.Builder
	sb.WriteString("<b>Answer:</b> ")
	if q.Type == models.MultipleChoice && q.Answer.Index != nil {
		i := *q.Answer.Index
		text := ""
		if i >= 0 && i < len(q.Options) {
			text = q.Options[i]
		}
		fmt.Fprintf(&sb, "%s) %s", optionLabel(i), html.EscapeString(text))
	} else {
		sb.WriteString(html.EscapeString(q.Answer.String()))
	}
	if q.Hint != "" {
		fmt.Fprintf(&sb, "\n💡 %s", html.EscapeString(q.Hint))
	}
	if q.Extra != "" {
		fmt.Fprintf(&sb, "\n📎 %s", html.EscapeString(q.Extra))
	}
	return sb.String()
}

// formatResult renders the outcome of an answer
func formatResult(q models.Question, correct bool, st models.QuestionState) string {
	var sb strings.Builder
	if correct {
		sb.WriteString("✅ Correct!")
	} else {
		sb.WriteString("❌ Wrong.\n")
		sb.WriteString(formatAnswer(q))
	}
	fmt.Fprintf(&sb, "\n\nBox %d, next review %s", st.Box, formatTime(st.Next))
	return sb.String()
}

func formatTime(ms int64) string {
	if ms == 0 {
		return "never"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04")
}

// formatStats renders chapter statistics
func formatStats(title string, total int, s models.ChapterStats) string {
	return fmt.Sprintf("<b>%s</b>\n"+
		"📈 Progress: %d/%d (%d%%)\n"+
		"⏰ Due: %d\n"+
		"❌ Wrong: %d\n"+
		"⭐ Starred: %d\n"+
		"🕒 Last activity: %s",
		html.EscapeString(title), s.Done, total, s.ProgressPct, s.Due, s.Wrong, s.Star, formatTime(s.Last))
}

// formatChapterLine renders one line of the chapter list
func formatChapterLine(ch models.Chapter, total int, s models.ChapterStats) string {
	title := ch.Title
	if title == "" {
		title = ch.ID
	}
	return fmt.Sprintf("• <b>%s</b> (<code>%s</code>) %d/%d, %d%%, due %d",
		html.EscapeString(title), html.EscapeString(ch.ID), s.Done, total, s.ProgressPct, s.Due)
}

func formatReminder(due []scheduler.ChapterDue) string {
	var sb strings.Builder
	sb.WriteString("⏰ <b>Time to review!</b>\n")
	for _, d := range due {
		fmt.Fprintf(&sb, "\n• %s: %d due", html.EscapeString(d.ChapterID), d.Due)
	}
	return sb.String()
}

// normalizeAnswer lowercases text, trims it and collapses inner whitespace
func normalizeAnswer(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), unicode.IsSpace)
	return strings.Join(fields, " ")
}

// checkShort compares a free-text reply with the expected answer.
// Alternatives in the expected answer may be separated by "|".
func checkShort(q models.Question, reply string) bool {
	got := normalizeAnswer(reply)
	if got == "" {
		return false
	}
	for _, alt := range strings.Split(q.Answer.Text, "|") {
		if normalizeAnswer(alt) == got {
			return true
		}
	}
	return false
}

// checkOption reports whether option i is the correct one
func checkOption(q models.Question, i int) bool {
	return q.Answer.Index != nil && *q.Answer.Index == i
}
