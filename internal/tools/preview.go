package tools

import (
	"strings"
	"unicode/utf8"
)

// previewLimit is the default excerpt length for search result previews.
const previewLimit = 400

// Preview returns a bounded excerpt of text. When a query keyword occurs in
// the text, the excerpt is a window around the first occurrence, so the
// model sees the relevant passage instead of a title block or boilerplate
// head. Falls back to the head of the text when nothing matches.
func Preview(text, query string, limit int) string {
	if limit <= 0 {
		limit = previewLimit
	}
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}

	start := 0
	if at := firstKeywordAt(text, query); at > 0 {
		// Open the window a bit before the match so the excerpt carries
		// its surrounding sentence.
		start = at - limit/4
		if start < 0 {
			start = 0
		}
		start = snapToBoundary(text, start)
	}

	end := start + limit
	if end >= len(text) {
		end = len(text)
		start = snapToBoundary(text, end-limit)
	} else {
		end = snapToBoundary(text, end)
	}

	out := strings.TrimSpace(text[start:end])
	if start > 0 {
		out = "…" + out
	}
	if end < len(text) {
		out += "…"
	}
	return out
}

// firstKeywordAt returns the byte offset of the earliest query keyword in
// text, or -1. Keywords shorter than three runes are too noisy to anchor on.
func firstKeywordAt(text, query string) int {
	lower := strings.ToLower(text)
	best := -1
	for _, kw := range strings.Fields(strings.ToLower(query)) {
		kw = strings.Trim(kw, `"'.,!?()`)
		if utf8.RuneCountInString(kw) < 3 {
			continue
		}
		if at := strings.Index(lower, kw); at >= 0 && (best == -1 || at < best) {
			best = at
		}
	}
	return best
}

// snapToBoundary moves pos forward to the next rune boundary, then to the
// nearest following space when one is close by, so windows do not open or
// close mid-word.
func snapToBoundary(text string, pos int) int {
	if pos <= 0 {
		return 0
	}
	if pos >= len(text) {
		return len(text)
	}
	for pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos++
	}
	if at := strings.IndexAny(text[pos:min(pos+30, len(text))], " \t\n"); at >= 0 {
		return pos + at + 1
	}
	return pos
}
