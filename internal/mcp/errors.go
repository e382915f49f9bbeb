package mcp

import (
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/sgx-labs/scout/internal/fetch"
	"github.com/sgx-labs/scout/internal/search"
	"github.com/sgx-labs/scout/internal/store"
)

// Error codes returned in the error envelope besides the FETCH_* codes.
const (
	CodeRateLimited    = "RATE_LIMITED"
	CodeInvalidInput   = "INVALID_INPUT"
	CodeNotFound       = "NOT_FOUND"
	CodeSearchDisabled = "SEARCH_DISABLED"
	CodeSearchFailed   = "SEARCH_FAILED"
	CodeInternal       = "INTERNAL_ERROR"
)

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// errorResult builds the {"error":{...}} envelope as a tool error.
func errorResult(code, message string, details map[string]any) *mcp.CallToolResult {
	if details == nil {
		details = map[string]any{}
	}
	data, _ := json.Marshal(errorEnvelope{Error: errorBody{Code: code, Message: message, Details: details}})
	res := textResult(string(data))
	res.IsError = true
	return res
}

func invalidInput(message string, details map[string]any) *mcp.CallToolResult {
	return errorResult(CodeInvalidInput, message, details)
}

// fetchErrorResult passes a fetch failure through with its own code. The
// wrapped cause is logged, never returned.
func fetchErrorResult(log zerolog.Logger, err error) *mcp.CallToolResult {
	var fe *fetch.Error
	if errors.As(err, &fe) {
		if fe.Err != nil {
			log.Debug().Err(fe.Err).Str("code", string(fe.Code)).Msg("fetch cause")
		}
		return errorResult(string(fe.Code), fe.Message, fe.Details)
	}
	log.Error().Err(err).Msg("unexpected fetch error")
	return errorResult(string(fetch.CodeFailed), "fetch failed", nil)
}

func searchErrorResult(log zerolog.Logger, provider string, err error) *mcp.CallToolResult {
	if errors.Is(err, search.ErrDisabled) {
		return errorResult(CodeSearchDisabled, "web search is not configured (set search.provider)", nil)
	}
	log.Warn().Err(err).Str("provider", provider).Msg("search failed")
	return errorResult(CodeSearchFailed, "search provider request failed", map[string]any{"provider": provider})
}

func storeErrorResult(log zerolog.Logger, err error, id int64) *mcp.CallToolResult {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errorResult(CodeNotFound, "note not found", map[string]any{"id": id})
	case errors.Is(err, store.ErrInvalid):
		return invalidInput(err.Error(), nil)
	}
	log.Error().Err(err).Msg("store error")
	return errorResult(CodeInternal, "internal error", nil)
}
