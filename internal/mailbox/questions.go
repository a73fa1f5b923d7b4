package mailbox

import "strings"

// QuestionsMarker opens the question section of a request body.
const QuestionsMarker = "### Questions for User:"

// ExtractQuestions returns the numbered questions under QuestionsMarker, in file order.
//
// Capture starts after the first line containing the marker and stops at the next
// line beginning with "###". Only single-digit ordinals 1-4 followed by "." are
// recognised; "5." and "10." lines are ignored.
func ExtractQuestions(body string) []string {
	questions := []string{}
	capturing := false

	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)

		if !capturing {
			if strings.Contains(line, QuestionsMarker) {
				capturing = true
			}
			continue
		}

		if strings.HasPrefix(line, "###") {
			break
		}
		if q, ok := stripOrdinal(line); ok {
			questions = append(questions, q)
		}
	}

	return questions
}

func stripOrdinal(line string) (string, bool) {
	if len(line) < 2 || line[1] != '.' {
		return "", false
	}
	if line[0] < '1' || line[0] > '4' {
		return "", false
	}
	return strings.TrimSpace(line[2:]), true
}

// ComposeRequest renders a request body that ExtractQuestions can parse back.
// At most four questions survive the round trip.
func ComposeRequest(title, context string, questions []string) string {
	var sb strings.Builder

	sb.WriteString("## ")
	sb.WriteString(title)
	sb.WriteString("\n\n")
	if context != "" {
		sb.WriteString(context)
		sb.WriteString("\n\n")
	}

	sb.WriteString(QuestionsMarker)
	sb.WriteString("\n")
	for i, q := range questions {
		if i == 4 {
			break
		}
		sb.WriteString(string(rune('1' + i)))
		sb.WriteString(". ")
		sb.WriteString(strings.ReplaceAll(q, "\n", " "))
		sb.WriteString("\n")
	}
	sb.WriteString("\n### End of Questions\n")

	return sb.String()
}
