package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Note is a stored note. Source is set for notes imported from a markdown
// file and empty for notes created through the tools.
type Note struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NotePatch holds the fields of a partial update. Nil fields are untouched.
type NotePatch struct {
	Title   *string
	Content *string
	Tags    *[]string
}

// ListOptions pages through notes, newest update first.
type ListOptions struct {
	Limit  int
	Offset int
	Tag    string
}

const noteColumns = `id, title, content, tags, source, created_at, updated_at`

// CreateNote inserts a new note and returns it with id and timestamps set.
func (db *DB) CreateNote(title, content string, tags []string) (*Note, error) {
	n := &Note{Title: strings.TrimSpace(title), Content: content, Tags: NormalizeTags(tags)}
	if n.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalid)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	now := db.now().UTC().Truncate(time.Millisecond)
	n.CreatedAt, n.UpdatedAt = now, now
	res, err := db.conn.Exec(
		`INSERT INTO notes (title, content, tags, source, created_at, updated_at) VALUES (?, ?, ?, '', ?, ?)`,
		n.Title, n.Content, encodeTags(n.Tags), now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert note: %w", err)
	}
	if n.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return n, nil
}

// GetNote returns the note with the given id or ErrNotFound.
func (db *DB) GetNote(id int64) (*Note, error) {
	row := db.conn.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}
	return n, nil
}

// UpdateNote applies a partial update and returns the stored result.
func (db *DB) UpdateNote(id int64, p NotePatch) (*Note, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	n, err := scanNote(tx.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}

	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return nil, fmt.Errorf("%w: title must not be empty", ErrInvalid)
		}
		n.Title = t
	}
	if p.Content != nil {
		n.Content = *p.Content
	}
	if p.Tags != nil {
		n.Tags = NormalizeTags(*p.Tags)
	}
	n.UpdatedAt = db.now().UTC().Truncate(time.Millisecond)

	if _, err := tx.Exec(
		`UPDATE notes SET title = ?, content = ?, tags = ?, updated_at = ? WHERE id = ?`,
		n.Title, n.Content, encodeTags(n.Tags), n.UpdatedAt.UnixMilli(), id,
	); err != nil {
		return nil, fmt.Errorf("update note: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// DeleteNote removes a note by id.
func (db *DB) DeleteNote(id int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.Exec(`DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListNotes returns one page of notes ordered by most recent update.
func (db *DB) ListNotes(opts ListOptions) ([]Note, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	where, args := tagFilter(opts.Tag)
	args = append(args, opts.Limit, opts.Offset)
	rows, err := db.conn.Query(
		`SELECT `+noteColumns+` FROM notes`+where+` ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}

// CountNotes returns how many notes carry tag, or all notes when tag is empty.
func (db *DB) CountNotes(tag string) (int, error) {
	where, args := tagFilter(tag)
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM notes`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count notes: %w", err)
	}
	return n, nil
}

// UpsertBySource creates or replaces the note imported from source, keeping
// its id and creation time across updates.
func (db *DB) UpsertBySource(source, title, content string, tags []string) (n *Note, created bool, err error) {
	if source == "" {
		return nil, false, fmt.Errorf("%w: source is required", ErrInvalid)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, false, fmt.Errorf("%w: title is required", ErrInvalid)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := db.now().UTC().Truncate(time.Millisecond)
	n, err = scanNote(tx.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE source = ?`, source))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		n = &Note{Source: source, CreatedAt: now}
		created = true
	case err != nil:
		return nil, false, fmt.Errorf("get note by source: %w", err)
	}
	n.Title, n.Content, n.Tags, n.UpdatedAt = title, content, NormalizeTags(tags), now

	if created {
		res, err := tx.Exec(
			`INSERT INTO notes (title, content, tags, source, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			n.Title, n.Content, encodeTags(n.Tags), source, now.UnixMilli(), now.UnixMilli(),
		)
		if err != nil {
			return nil, false, fmt.Errorf("insert note: %w", err)
		}
		if n.ID, err = res.LastInsertId(); err != nil {
			return nil, false, fmt.Errorf("last insert id: %w", err)
		}
	} else if _, err := tx.Exec(
		`UPDATE notes SET title = ?, content = ?, tags = ?, updated_at = ? WHERE id = ?`,
		n.Title, n.Content, encodeTags(n.Tags), now.UnixMilli(), n.ID,
	); err != nil {
		return nil, false, fmt.Errorf("update note: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return n, created, nil
}

// DeleteBySource removes the note imported from source.
func (db *DB) DeleteBySource(source string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.Exec(`DELETE FROM notes WHERE source = ? AND source != ''`, source)
	if err != nil {
		return fmt.Errorf("delete note by source: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// NormalizeTags trims, lowercases and de-duplicates tags, dropping empties.
// The result is never nil so it encodes as [].
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func tagFilter(tag string) (string, []any) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return "", nil
	}
	return ` WHERE EXISTS (SELECT 1 FROM json_each(notes.tags) WHERE json_each.value = ?)`, []any{tag}
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	data, _ := json.Marshal(tags)
	return string(data)
}

func decodeTags(s string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil || tags == nil {
		return []string{}
	}
	return tags
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(r rowScanner) (*Note, error) {
	var (
		n                Note
		tags             string
		created, updated int64
	)
	if err := r.Scan(&n.ID, &n.Title, &n.Content, &tags, &n.Source, &created, &updated); err != nil {
		return nil, err
	}
	n.Tags = decodeTags(tags)
	n.CreatedAt = time.UnixMilli(created).UTC()
	n.UpdatedAt = time.UnixMilli(updated).UTC()
	return &n, nil
}
