package progress

import (
	"fmt"
	"html"
)

// Messages are sent with HTML parse mode, so user text is escaped.

func answerMessage(chID, qID string, correct bool, chosen *int, text *string) string {
	mark := "❌"
	if correct {
		mark = "✅"
	}
	desc := ""
	switch {
	case chosen != nil:
		desc = fmt.Sprintf(" choice=%c", rune('A'+*chosen))
	case text != nil:
		desc = fmt.Sprintf(" short=%q", *text)
	}
	return html.EscapeString(fmt.Sprintf("📝 %s Q:#%s – %s%s", chID, qID, mark, desc))
}

func highlightMessage(chID, qID string, on bool) string {
	if on {
		return html.EscapeString(fmt.Sprintf("⭐ %s #%s ^_^", chID, qID))
	}
	return html.EscapeString(fmt.Sprintf("😐 %s #%s 🙆", chID, qID))
}

func resetMessage(chID, qID string) string {
	return html.EscapeString(fmt.Sprintf("♻️ %s #%s reset", chID, qID))
}
