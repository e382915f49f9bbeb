// Package web hosts the tool server over streamable HTTP for local clients
// that cannot spawn a stdio process, plus a small read-only status API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/sgx-labs/scout/internal/store"
)

// Options describe the server for the status endpoint.
type Options struct {
	Version        string
	SearchProvider string
	Logger         zerolog.Logger
}

type server struct {
	db   *store.DB
	opts Options
}

// NewHandler returns the HTTP handler: the MCP endpoint at /mcp, /healthz,
// /api/status and /api/notes. Every route is restricted to loopback hosts.
func NewHandler(mcpServer *mcp.Server, db *store.DB, opts Options) http.Handler {
	s := &server{db: db, opts: opts}

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return mcpServer
	}, nil))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/notes", s.handleRecentNotes)

	return localhostOnly(securityHeaders(requestLog(opts.Logger, mux)))
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, log zerolog.Logger) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("addr", listener.Addr().String()).Msg("serving MCP over HTTP at /mcp")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// --- Middleware ---

func localhostOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		host = strings.Trim(host, "[]") // strip IPv6 brackets

		if host == "localhost" {
			next.ServeHTTP(w, r)
			return
		}
		if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
			next.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Forbidden", http.StatusForbidden)
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func requestLog(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

// --- Handlers ---

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	noteCount, err := s.db.CountNotes("")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not count notes")
		return
	}

	searchMode := "keyword"
	if s.db.FTSAvailable() {
		searchMode = "fts5"
	}
	provider := s.opts.SearchProvider
	if provider == "" {
		provider = "none"
	}

	writeJSON(w, map[string]any{
		"version":         s.opts.Version,
		"note_count":      noteCount,
		"note_search":     searchMode,
		"search_provider": provider,
	})
}

func (s *server) handleRecentNotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	notes, err := s.db.ListNotes(store.ListOptions{Limit: limit, Tag: r.URL.Query().Get("tag")})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list notes")
		return
	}
	if notes == nil {
		notes = []store.Note{}
	}
	writeJSON(w, notes)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
