package fetch

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestBound_NoCut(t *testing.T) {
	got, cut := Bound("short text", 100)
	assert.Equal(t, "short text", got)
	assert.False(t, cut)

	got, cut = Bound("exactly10!", 10)
	assert.Equal(t, "exactly10!", got)
	assert.False(t, cut)

	got, cut = Bound(strings.Repeat("x", 500), 0)
	assert.Len(t, got, 500)
	assert.False(t, cut)
}

func TestBound_SentenceCut(t *testing.T) {
	text := strings.Repeat("a", 89) + ". " + strings.Repeat("b", 50)
	got, cut := Bound(text, 100)
	assert.True(t, cut)
	assert.Equal(t, strings.Repeat("a", 89)+".", got)
}

func TestBound_EarlyPeriodIgnored(t *testing.T) {
	text := "Hi. " + strings.Repeat("word ", 40)
	got, cut := Bound(text, 100)
	assert.True(t, cut)
	assert.True(t, strings.HasSuffix(got, "word"+ellipsis), got)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 100+len(ellipsis))
}

func TestBound_WordCut(t *testing.T) {
	got, cut := Bound(strings.Repeat("word ", 1000), 1000)
	assert.True(t, cut)
	assert.True(t, strings.HasSuffix(got, "word"+ellipsis))
	assert.Equal(t, 999+len(ellipsis), utf8.RuneCountInString(got))
}

func TestBound_NoSpaceHardCut(t *testing.T) {
	got, cut := Bound(strings.Repeat("x", 50), 20)
	assert.True(t, cut)
	assert.Equal(t, strings.Repeat("x", 20)+ellipsis, got)
}

func TestBound_CountsRunes(t *testing.T) {
	text := strings.Repeat("é", 30)
	got, cut := Bound(text, 30)
	assert.False(t, cut)
	assert.Equal(t, text, got)

	got, cut = Bound(strings.Repeat("日本 ", 20), 10)
	assert.True(t, cut)
	assert.True(t, utf8.ValidString(got))
}

func TestFormatMarkdown(t *testing.T) {
	got := FormatMarkdown("Title", "One. Two! Three? Four. Five")
	assert.Equal(t, "# Title\n\nOne. Two! Three?\n\nFour. Five", got)

	assert.Equal(t, "Just text.", FormatMarkdown("", "Just text."))
	assert.Equal(t, "# Only title", FormatMarkdown("Only title", ""))
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Version 1.5 shipped. It   works!\nDone")
	assert.Equal(t, []string{"Version 1.5 shipped.", "It works!", "Done"}, got)
	assert.Empty(t, splitSentences("   "))
}
