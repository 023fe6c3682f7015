package services

import (
	"strings"
)

const boldMarker = "**"

// FormatAssistantText converts paired ** delimiters in model output into
// strong-emphasis spans. A single left-to-right pass toggles between the
// opening and closing tag; a final unmatched marker is left as literal text
// rather than emitted as a dangling open tag.
func FormatAssistantText(s string) string {
	if !strings.Contains(s, boldMarker) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	open := false
	for {
		i := strings.Index(s, boldMarker)
		if i < 0 {
			b.WriteString(s)
			break
		}

		if !open {
			// An opening marker with no closer left stays literal.
			if !strings.Contains(s[i+len(boldMarker):], boldMarker) {
				b.WriteString(s)
				break
			}
			b.WriteString(s[:i])
			b.WriteString("<strong>")
			open = true
		} else {
			b.WriteString(s[:i])
			b.WriteString("</strong>")
			open = false
		}
		s = s[i+len(boldMarker):]
	}

	return b.String()
}
