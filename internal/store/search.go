package store

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
)

// SearchResult is one ranked note match.
type SearchResult struct {
	ID      int64    `json:"id"`
	Title   string   `json:"title"`
	Snippet string   `json:"snippet"`
	Score   float64  `json:"score"`
	Tags    []string `json:"tags"`
}

// ErrEmptyQuery is returned when a query has no searchable terms.
var ErrEmptyQuery = fmt.Errorf("%w: query has no searchable terms", ErrInvalid)

const snippetRunes = 160

// SearchNotes runs a full-text query over title, content and tags. It uses
// FTS5 with bm25 ranking when available and LIKE matching otherwise.
func (db *DB) SearchNotes(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	terms := ExtractSearchTerms(query)
	if len(terms) == 0 {
		return nil, ErrEmptyQuery
	}
	if db.fts {
		return db.ftsSearch(terms, limit)
	}
	return db.likeSearch(terms, limit)
}

// ftsQuery quotes every term so user input is never parsed as FTS5 syntax.
// Terms are ANDed.
func ftsQuery(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

func (db *DB) ftsSearch(terms []string, limit int) ([]SearchResult, error) {
	rows, err := db.conn.Query(`
		SELECT n.id, n.title, n.tags,
			snippet(notes_fts, 1, '[', ']', '...', 24),
			bm25(notes_fts, 5.0, 1.0, 2.0)
		FROM notes_fts
		JOIN notes n ON n.id = notes_fts.rowid
		WHERE notes_fts MATCH ?
		ORDER BY bm25(notes_fts, 5.0, 1.0, 2.0)
		LIMIT ?`,
		ftsQuery(terms), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			r    SearchResult
			tags string
			rank float64
		)
		if err := rows.Scan(&r.ID, &r.Title, &tags, &r.Snippet, &rank); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Tags = decodeTags(tags)
		// bm25 is lower-is-better and negative for matches.
		r.Score = round3(-rank)
		results = append(results, r)
	}
	return results, rows.Err()
}

// likeSearch requires every term to appear in title, content or tags and
// scores title hits above body hits.
func (db *DB) likeSearch(terms []string, limit int) ([]SearchResult, error) {
	var conditions []string
	var args []any
	for _, t := range terms {
		p := "%" + escapeLike(t) + "%"
		conditions = append(conditions,
			`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(content) LIKE ? ESCAPE '\' OR LOWER(tags) LIKE ? ESCAPE '\')`)
		args = append(args, p, p, p)
	}

	rows, err := db.conn.Query(
		`SELECT id, title, content, tags FROM notes WHERE `+strings.Join(conditions, " AND ")+
			` ORDER BY updated_at DESC, id DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			r       SearchResult
			content string
			tags    string
		)
		if err := rows.Scan(&r.ID, &r.Title, &content, &tags); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Tags = decodeTags(tags)
		r.Score = keywordScore(r.Title, content, terms)
		r.Snippet = makeSnippet(content, terms)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func keywordScore(title, content string, terms []string) float64 {
	titleLower := strings.ToLower(title)
	contentLower := strings.ToLower(content)
	var score float64
	for _, t := range terms {
		if strings.Contains(titleLower, t) {
			score += 2
		}
		score += math.Min(float64(strings.Count(contentLower, t)), 5) * 0.2
	}
	return round3(score)
}

// makeSnippet returns a window of content around the first matching term,
// marking the term the same way the FTS snippet does.
func makeSnippet(content string, terms []string) string {
	runes := []rune(content)
	lower := []rune(strings.ToLower(content))
	if len(lower) != len(runes) {
		lower = runes
	}

	at, match := -1, 0
	for _, t := range terms {
		if i := indexRunes(lower, []rune(t)); i >= 0 && (at < 0 || i < at) {
			at, match = i, len([]rune(t))
		}
	}
	if at < 0 {
		return collapse(truncate(runes, 0, snippetRunes))
	}

	start := at - snippetRunes/3
	if start < 0 {
		start = 0
	}
	end := start + snippetRunes
	if end > len(runes) {
		end = len(runes)
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(string(runes[start:at]))
	b.WriteString("[")
	b.WriteString(string(runes[at : at+match]))
	b.WriteString("]")
	if at+match < end {
		b.WriteString(string(runes[at+match : end]))
	}
	if end < len(runes) {
		b.WriteString("...")
	}
	return collapse(b.String())
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j := range needle {
			if haystack[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

func truncate(runes []rune, start, n int) string {
	end := start + n
	if end > len(runes) {
		return string(runes[start:])
	}
	return string(runes[start:end]) + "..."
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ExtractSearchTerms lowercases query and splits it on anything that is not a
// letter or digit. Duplicate terms are dropped.
func ExtractSearchTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	var terms []string
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
