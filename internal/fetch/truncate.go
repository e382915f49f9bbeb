package fetch

import (
	"strings"
	"unicode"
)

const (
	ellipsis = "..."

	// A sentence cut is only taken if it keeps at least this share of the
	// budget; otherwise one short opening sentence could eat the whole page.
	minSentenceCut = 0.8

	sentencesPerParagraph = 3
)

// Bound caps content at maxChars code points. It prefers to cut after the last
// period within the budget and falls back to the last word boundary plus an
// ellipsis. maxChars <= 0 disables the cap.
func Bound(content string, maxChars int) (string, bool) {
	runes := []rune(content)
	if maxChars <= 0 || len(runes) <= maxChars {
		return content, false
	}

	window := runes[:maxChars]
	if i := lastIndexRune(window, '.'); i >= 0 && float64(i+1) >= minSentenceCut*float64(maxChars) {
		return string(window[:i+1]), true
	}

	cut := maxChars
	if i := lastSpace(runes, maxChars); i > 0 {
		cut = i
	}
	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace) + ellipsis, true
}

// lastSpace finds the last whitespace at or before position limit. The rune at
// limit itself counts: if the text breaks exactly on the budget the whole
// window is kept.
func lastSpace(runes []rune, limit int) int {
	if limit > len(runes)-1 {
		limit = len(runes) - 1
	}
	for i := limit; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}

func lastIndexRune(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n]))
}

// FormatMarkdown reshapes plain text into paragraphs of three sentences under
// a single title heading. It only reformats; the caller has already decided
// truncation.
func FormatMarkdown(title, content string) string {
	sentences := splitSentences(content)

	var paragraphs []string
	for i := 0; i < len(sentences); i += sentencesPerParagraph {
		end := i + sentencesPerParagraph
		if end > len(sentences) {
			end = len(sentences)
		}
		paragraphs = append(paragraphs, strings.Join(sentences[i:end], " "))
	}

	var b strings.Builder
	if title != "" {
		b.WriteString("# ")
		b.WriteString(title)
		b.WriteString("\n\n")
	}
	b.WriteString(strings.Join(paragraphs, "\n\n"))
	return strings.TrimSpace(b.String())
}

// splitSentences breaks text after '.', '!' or '?' when followed by whitespace
// or the end of the text. Trailing text without terminal punctuation is kept as
// its own sentence.
func splitSentences(text string) []string {
	runes := []rune(strings.Join(strings.Fields(text), " "))
	var out []string
	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && runes[i+1] != ' ' {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}
