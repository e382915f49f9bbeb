package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/sgx-labs/scout/internal/config"
	"github.com/sgx-labs/scout/internal/store"
)

func createNote(t *testing.T, h *harness, title, content string, tags ...string) store.Note {
	t.Helper()
	result, _, err := h.srv.handleNoteCreate(context.Background(), nil, noteCreateInput{Title: title, Content: content, Tags: tags})
	if err != nil {
		t.Fatal(err)
	}
	var n store.Note
	decodeOK(t, result, &n)
	return n
}

func TestNoteCRUD(t *testing.T) {
	h := setupHandlerTest(t)
	ctx := context.Background()

	n := createNote(t, h, "Cache design", "Use LRU with TTL.", "Design", "design")
	if n.ID <= 0 || n.Title != "Cache design" {
		t.Fatalf("unexpected created note: %+v", n)
	}
	if len(n.Tags) != 1 || n.Tags[0] != "design" {
		t.Errorf("expected normalized tags, got %v", n.Tags)
	}

	result, _, _ := h.srv.handleNoteGet(ctx, nil, noteIDInput{ID: n.ID})
	var got store.Note
	decodeOK(t, result, &got)
	if got.Content != "Use LRU with TTL." {
		t.Errorf("unexpected content %q", got.Content)
	}

	content := "Use LFU instead."
	result, _, _ = h.srv.handleNoteUpdate(ctx, nil, noteUpdateInput{ID: n.ID, Content: &content})
	var updated store.Note
	decodeOK(t, result, &updated)
	if updated.Content != content || updated.Title != "Cache design" {
		t.Errorf("partial update mismatch: %+v", updated)
	}
	if updated.UpdatedAt.Before(n.UpdatedAt) {
		t.Error("updated_at went backwards")
	}

	result, _, _ = h.srv.handleNoteDelete(ctx, nil, noteIDInput{ID: n.ID})
	var deleted map[string]int64
	decodeOK(t, result, &deleted)
	if deleted["deleted"] != n.ID {
		t.Errorf("expected deleted id %d, got %v", n.ID, deleted)
	}

	result, _, _ = h.srv.handleNoteGet(ctx, nil, noteIDInput{ID: n.ID})
	body := decodeErr(t, result, CodeNotFound)
	if id, _ := body.Details["id"].(float64); int64(id) != n.ID {
		t.Errorf("expected id in details, got %v", body.Details)
	}

	result, _, _ = h.srv.handleNoteDelete(ctx, nil, noteIDInput{ID: n.ID})
	decodeErr(t, result, CodeNotFound)
}

func TestNoteUpdate_ClearTags(t *testing.T) {
	h := setupHandlerTest(t)
	n := createNote(t, h, "tagged", "", "a", "b")

	empty := []string{}
	result, _, _ := h.srv.handleNoteUpdate(context.Background(), nil, noteUpdateInput{ID: n.ID, Tags: &empty})
	var updated store.Note
	decodeOK(t, result, &updated)
	if len(updated.Tags) != 0 || updated.Title != "tagged" {
		t.Errorf("expected tags cleared only, got %+v", updated)
	}
	if !strings.Contains(resultText(t, result), `"tags": []`) {
		t.Errorf("tags must encode as an empty array")
	}
}

func TestNoteValidation(t *testing.T) {
	h := setupHandlerTest(t)
	ctx := context.Background()
	long := strings.Repeat("x", maxTitleLen+1)
	blank := "  "
	manyTags := make([]string, maxTags+1)
	for i := range manyTags {
		manyTags[i] = "t"
	}

	result, _, _ := h.srv.handleNoteCreate(ctx, nil, noteCreateInput{Title: ""})
	decodeErr(t, result, CodeInvalidInput)

	result, _, _ = h.srv.handleNoteCreate(ctx, nil, noteCreateInput{Title: long})
	decodeErr(t, result, CodeInvalidInput)

	result, _, _ = h.srv.handleNoteCreate(ctx, nil, noteCreateInput{Title: "ok", Content: strings.Repeat("c", maxContentLen+1)})
	decodeErr(t, result, CodeInvalidInput)

	result, _, _ = h.srv.handleNoteCreate(ctx, nil, noteCreateInput{Title: "ok", Tags: manyTags})
	decodeErr(t, result, CodeInvalidInput)

	result, _, _ = h.srv.handleNoteCreate(ctx, nil, noteCreateInput{Title: "ok", Tags: []string{strings.Repeat("t", maxTagLen+1)}})
	decodeErr(t, result, CodeInvalidInput)

	result, _, _ = h.srv.handleNoteGet(ctx, nil, noteIDInput{ID: 0})
	decodeErr(t, result, CodeInvalidInput)

	result, _, _ = h.srv.handleNoteDelete(ctx, nil, noteIDInput{ID: -3})
	decodeErr(t, result, CodeInvalidInput)

	n := createNote(t, h, "keep", "")
	result, _, _ = h.srv.handleNoteUpdate(ctx, nil, noteUpdateInput{ID: n.ID})
	decodeErr(t, result, CodeInvalidInput)

	result, _, _ = h.srv.handleNoteUpdate(ctx, nil, noteUpdateInput{ID: n.ID, Title: &blank})
	decodeErr(t, result, CodeInvalidInput)

	result, _, _ = h.srv.handleNoteUpdate(ctx, nil, noteUpdateInput{ID: 999, Title: &long})
	decodeErr(t, result, CodeInvalidInput)

	if total, _ := h.db.CountNotes(""); total != 1 {
		t.Errorf("invalid calls must not write, found %d notes", total)
	}
}

func TestNoteList(t *testing.T) {
	h := setupHandlerTest(t)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		tag := "even"
		if i%2 == 1 {
			tag = "odd"
		}
		createNote(t, h, "note", "", tag)
	}

	result, _, _ := h.srv.handleNoteList(ctx, nil, noteListInput{})
	var out noteListOutput
	decodeOK(t, result, &out)
	if len(out.Notes) != 20 || out.Total != 25 {
		t.Errorf("default page: got %d notes, total %d", len(out.Notes), out.Total)
	}

	result, _, _ = h.srv.handleNoteList(ctx, nil, noteListInput{Limit: 10, Offset: 20})
	decodeOK(t, result, &out)
	if len(out.Notes) != 5 {
		t.Errorf("last page: got %d notes", len(out.Notes))
	}

	result, _, _ = h.srv.handleNoteList(ctx, nil, noteListInput{Tag: "odd", Limit: 500})
	decodeOK(t, result, &out)
	if len(out.Notes) != 12 || out.Total != 12 {
		t.Errorf("tag filter: got %d notes, total %d", len(out.Notes), out.Total)
	}

	result, _, _ = h.srv.handleNoteList(ctx, nil, noteListInput{Tag: "none"})
	if text := resultText(t, result); !strings.Contains(text, `"notes": []`) {
		t.Errorf("expected empty array, got %s", text)
	}

	result, _, _ = h.srv.handleNoteList(ctx, nil, noteListInput{Offset: -1})
	decodeErr(t, result, CodeInvalidInput)
}

func TestNoteSearch(t *testing.T) {
	h := setupHandlerTest(t)
	ctx := context.Background()
	createNote(t, h, "Redirect validation", "Every hop is checked again.", "security")
	createNote(t, h, "Groceries", "milk and eggs")

	result, _, _ := h.srv.handleNoteSearch(ctx, nil, noteSearchInput{Query: "redirect hop"})
	var out noteSearchOutput
	decodeOK(t, result, &out)
	if len(out.Results) != 1 || out.Results[0].Title != "Redirect validation" {
		t.Fatalf("unexpected results: %+v", out.Results)
	}
	if out.Results[0].Score <= 0 {
		t.Errorf("expected positive score, got %v", out.Results[0].Score)
	}

	result, _, _ = h.srv.handleNoteSearch(ctx, nil, noteSearchInput{Query: "kubernetes"})
	if text := resultText(t, result); !strings.Contains(text, `"results": []`) {
		t.Errorf("expected empty array, got %s", text)
	}

	result, _, _ = h.srv.handleNoteSearch(ctx, nil, noteSearchInput{Query: "  ?! "})
	decodeErr(t, result, CodeInvalidInput)
}

func TestRateLimit(t *testing.T) {
	h := setupHandlerTest(t, func(c *config.Config) {
		c.RateLimit.Notes = 2
		c.RateLimit.Search = 1
	})
	ctx := context.Background()

	createNote(t, h, "one", "")
	createNote(t, h, "two", "")
	result, _, _ := h.srv.handleNoteList(ctx, nil, noteListInput{})
	body := decodeErr(t, result, CodeRateLimited)
	if body.Details["category"] != "notes" {
		t.Errorf("expected notes category, got %v", body.Details)
	}
	if ms, _ := body.Details["retry_after_ms"].(float64); ms <= 0 {
		t.Errorf("expected positive retry_after_ms, got %v", body.Details["retry_after_ms"])
	}

	// Categories are independent; fetch is unlimited here.
	result, _, _ = h.srv.handleWebSearch(ctx, nil, webSearchInput{Query: "a"})
	decodeOK(t, result, &webSearchOutput{})
	result, _, _ = h.srv.handleWebSearch(ctx, nil, webSearchInput{Query: "a"})
	decodeErr(t, result, CodeRateLimited)

	result, _, _ = h.srv.handleFetchPage(ctx, nil, fetchPageInput{URL: "http://docs.test/article"})
	decodeOK(t, result, &fetchPageOutput{})
}
