// Package indexer imports markdown notes with YAML frontmatter into the note
// store, keyed by their path relative to the sync directory.
package indexer

import (
	"path/filepath"
	"strings"

	"github.com/adrg/frontmatter"
)

// NoteMeta holds parsed frontmatter fields.
type NoteMeta struct {
	Title string `yaml:"title"`
	Tags  any    `yaml:"tags"` // list or comma-separated string
}

// ParsedNote holds the parsed content of a markdown note.
type ParsedNote struct {
	Title string
	Tags  []string
	Body  string
}

// ParseNote parses a markdown file's frontmatter and body. The title falls
// back to the first level-one heading, then to the file name.
func ParseNote(content, filename string) ParsedNote {
	var meta NoteMeta
	body, err := frontmatter.Parse(strings.NewReader(content), &meta)
	if err != nil {
		// If frontmatter parsing fails, treat entire content as body
		body = []byte(content)
		meta = NoteMeta{}
	}

	p := ParsedNote{
		Title: strings.TrimSpace(meta.Title),
		Tags:  tagList(meta.Tags),
		Body:  strings.TrimSpace(string(body)),
	}
	if p.Title == "" {
		p.Title = firstHeading(p.Body)
	}
	if p.Title == "" {
		p.Title = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	return p
}

func tagList(v any) []string {
	switch t := v.(type) {
	case string:
		return strings.Split(t, ",")
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	}
	return nil
}

func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}
