package mcp

import (
	"context"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sgx-labs/scout/internal/ratelimit"
	"github.com/sgx-labs/scout/internal/store"
)

const (
	maxTitleLen   = 500
	maxContentLen = 200000
	maxTags       = 32
	maxTagLen     = 64
)

type noteCreateInput struct {
	Title   string   `json:"title" jsonschema:"Note title"`
	Content string   `json:"content,omitempty" jsonschema:"Note body"`
	Tags    []string `json:"tags,omitempty" jsonschema:"Tags for the note"`
}

type noteIDInput struct {
	ID int64 `json:"id" jsonschema:"Note id"`
}

type noteUpdateInput struct {
	ID      int64     `json:"id" jsonschema:"Note id"`
	Title   *string   `json:"title,omitempty" jsonschema:"New title"`
	Content *string   `json:"content,omitempty" jsonschema:"New body"`
	Tags    *[]string `json:"tags,omitempty" jsonschema:"Replacement tag list"`
}

type noteListInput struct {
	Limit  int    `json:"limit,omitempty" jsonschema:"Page size (default 20, max 100)"`
	Offset int    `json:"offset,omitempty" jsonschema:"Number of notes to skip"`
	Tag    string `json:"tag,omitempty" jsonschema:"Only notes with this tag"`
}

type noteSearchInput struct {
	Query string `json:"query" jsonschema:"Search terms"`
	Limit int    `json:"limit,omitempty" jsonschema:"Number of results (default 10, max 50)"`
}

type noteListOutput struct {
	Notes []store.Note `json:"notes"`
	Total int          `json:"total"`
}

type noteSearchOutput struct {
	Query   string               `json:"query"`
	Results []store.SearchResult `json:"results"`
}

func (s *Server) handleNoteCreate(ctx context.Context, req *mcp.CallToolRequest, input noteCreateInput) (*mcp.CallToolResult, any, error) {
	c := s.begin("note_create")
	res := s.noteCreate(c, input)
	c.done(res)
	return res, nil, nil
}

func (s *Server) noteCreate(c call, input noteCreateInput) *mcp.CallToolResult {
	if res := validateNoteFields(&input.Title, &input.Content, &input.Tags); res != nil {
		return res
	}
	if res := s.allow(ratelimit.Notes); res != nil {
		return res
	}
	n, err := s.db.CreateNote(input.Title, input.Content, input.Tags)
	if err != nil {
		return storeErrorResult(c.log, err, 0)
	}
	c.log.Debug().Int64("id", n.ID).Msg("note created")
	return jsonResult(n)
}

func (s *Server) handleNoteGet(ctx context.Context, req *mcp.CallToolRequest, input noteIDInput) (*mcp.CallToolResult, any, error) {
	c := s.begin("note_get")
	res := s.noteGet(c, input)
	c.done(res)
	return res, nil, nil
}

func (s *Server) noteGet(c call, input noteIDInput) *mcp.CallToolResult {
	if input.ID <= 0 {
		return invalidInput("id must be a positive integer", nil)
	}
	if res := s.allow(ratelimit.Notes); res != nil {
		return res
	}
	n, err := s.db.GetNote(input.ID)
	if err != nil {
		return storeErrorResult(c.log, err, input.ID)
	}
	return jsonResult(n)
}

func (s *Server) handleNoteUpdate(ctx context.Context, req *mcp.CallToolRequest, input noteUpdateInput) (*mcp.CallToolResult, any, error) {
	c := s.begin("note_update")
	res := s.noteUpdate(c, input)
	c.done(res)
	return res, nil, nil
}

func (s *Server) noteUpdate(c call, input noteUpdateInput) *mcp.CallToolResult {
	if input.ID <= 0 {
		return invalidInput("id must be a positive integer", nil)
	}
	if input.Title == nil && input.Content == nil && input.Tags == nil {
		return invalidInput("nothing to update: pass title, content or tags", nil)
	}
	if res := validateNoteFields(input.Title, input.Content, input.Tags); res != nil {
		return res
	}
	if res := s.allow(ratelimit.Notes); res != nil {
		return res
	}
	n, err := s.db.UpdateNote(input.ID, store.NotePatch{Title: input.Title, Content: input.Content, Tags: input.Tags})
	if err != nil {
		return storeErrorResult(c.log, err, input.ID)
	}
	return jsonResult(n)
}

func (s *Server) handleNoteDelete(ctx context.Context, req *mcp.CallToolRequest, input noteIDInput) (*mcp.CallToolResult, any, error) {
	c := s.begin("note_delete")
	res := s.noteDelete(c, input)
	c.done(res)
	return res, nil, nil
}

func (s *Server) noteDelete(c call, input noteIDInput) *mcp.CallToolResult {
	if input.ID <= 0 {
		return invalidInput("id must be a positive integer", nil)
	}
	if res := s.allow(ratelimit.Notes); res != nil {
		return res
	}
	if err := s.db.DeleteNote(input.ID); err != nil {
		return storeErrorResult(c.log, err, input.ID)
	}
	return jsonResult(map[string]int64{"deleted": input.ID})
}

func (s *Server) handleNoteList(ctx context.Context, req *mcp.CallToolRequest, input noteListInput) (*mcp.CallToolResult, any, error) {
	c := s.begin("note_list")
	res := s.noteList(c, input)
	c.done(res)
	return res, nil, nil
}

func (s *Server) noteList(c call, input noteListInput) *mcp.CallToolResult {
	if input.Limit < 0 || input.Offset < 0 {
		return invalidInput("limit and offset must not be negative", nil)
	}
	if res := s.allow(ratelimit.Notes); res != nil {
		return res
	}
	limit := clamp(input.Limit, 20, 100)
	notes, err := s.db.ListNotes(store.ListOptions{Limit: limit, Offset: input.Offset, Tag: input.Tag})
	if err != nil {
		return storeErrorResult(c.log, err, 0)
	}
	total, err := s.db.CountNotes(input.Tag)
	if err != nil {
		return storeErrorResult(c.log, err, 0)
	}
	if notes == nil {
		notes = []store.Note{}
	}
	return jsonResult(noteListOutput{Notes: notes, Total: total})
}

func (s *Server) handleNoteSearch(ctx context.Context, req *mcp.CallToolRequest, input noteSearchInput) (*mcp.CallToolResult, any, error) {
	c := s.begin("note_search")
	res := s.noteSearch(c, input)
	c.done(res)
	return res, nil, nil
}

func (s *Server) noteSearch(c call, input noteSearchInput) *mcp.CallToolResult {
	if utf8.RuneCountInString(input.Query) > maxQueryLen {
		return invalidInput("query is too long", map[string]any{"max_length": maxQueryLen})
	}
	if input.Limit < 0 {
		return invalidInput("limit must not be negative", nil)
	}
	if res := s.allow(ratelimit.Notes); res != nil {
		return res
	}
	results, err := s.db.SearchNotes(input.Query, clamp(input.Limit, 10, 50))
	if err != nil {
		return storeErrorResult(c.log, err, 0)
	}
	if results == nil {
		results = []store.SearchResult{}
	}
	return jsonResult(noteSearchOutput{Query: input.Query, Results: results})
}

// validateNoteFields checks the size limits of whichever fields are set.
func validateNoteFields(title, content *string, tags *[]string) *mcp.CallToolResult {
	if title != nil && utf8.RuneCountInString(*title) > maxTitleLen {
		return invalidInput("title is too long", map[string]any{"max_length": maxTitleLen})
	}
	if content != nil && utf8.RuneCountInString(*content) > maxContentLen {
		return invalidInput("content is too long", map[string]any{"max_length": maxContentLen})
	}
	if tags != nil {
		if len(*tags) > maxTags {
			return invalidInput("too many tags", map[string]any{"max_tags": maxTags})
		}
		for _, t := range *tags {
			if utf8.RuneCountInString(t) > maxTagLen {
				return invalidInput("tag is too long", map[string]any{"tag": t, "max_length": maxTagLen})
			}
		}
	}
	return nil
}

func clamp(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
