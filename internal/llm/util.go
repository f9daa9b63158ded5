package llm

import "strings"

// CleanJSONBlock removes markdown code block wrappers and any prose around
// the outermost JSON object.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		// Skip a language identifier on the fence line
		if idx := strings.Index(text, "\n"); idx >= 0 {
			firstLine := text[:idx]
			if len(firstLine) < 20 && !strings.Contains(firstLine, " ") && !strings.Contains(firstLine, "{") {
				text = text[idx+1:]
			}
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	if !strings.HasPrefix(text, "{") {
		if start := strings.Index(text, "{"); start >= 0 {
			text = text[start:]
		}
	}
	if !strings.HasSuffix(text, "}") {
		if end := strings.LastIndex(text, "}"); end >= 0 {
			text = text[:end+1]
		}
	}
	return text
}

// StripControlChars drops C0 and C1 control characters (U+0000-U+001F, U+007F-U+009F).
// Models sometimes emit raw control bytes inside string literals, which is invalid JSON.
func StripControlChars(text string) string {
	return strings.Map(func(r rune) rune {
		if r <= 0x1F || (r >= 0x7F && r <= 0x9F) {
			return -1
		}
		return r
	}, text)
}

// CleanResponse prepares a raw model response for JSON decoding
func CleanResponse(text string) string {
	return StripControlChars(CleanJSONBlock(text))
}
