// Package main is the entrypoint for the scout CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sgx-labs/scout/internal/config"
	"github.com/sgx-labs/scout/internal/fetch"
	"github.com/sgx-labs/scout/internal/guard"
	"github.com/sgx-labs/scout/internal/logging"
	"github.com/sgx-labs/scout/internal/search"
	"github.com/sgx-labs/scout/internal/store"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var verbose bool

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "scout",
		Short: "Web search, page fetch and notes for AI agents",
		Long: "scout serves web_search, fetch_page and note tools over MCP, and exposes " +
			"the same operations on the command line.",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	root.AddCommand(mcpCmd())
	root.AddCommand(fetchCmd())
	root.AddCommand(searchCmd())
	root.AddCommand(notesCmd())
	root.AddCommand(configCmd())
	root.AddCommand(versionCmd())

	root.PersistentFlags().StringVar(&config.FileOverride, "config", "", "Path to config file (overrides SCOUT_CONFIG and auto-detect)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log progress to stderr")
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the scout version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "scout %s\n", Version)
			return nil
		},
	}
}

// app is the per-invocation environment shared by the subcommands.
type app struct {
	cfg *config.Config
	log zerolog.Logger
}

// loadApp reads configuration and builds the logger. One-shot commands only
// log warnings unless --verbose is set; the server keeps the configured level.
func loadApp(server bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, userError("Cannot load configuration: "+err.Error(),
			"Check the file given by --config or SCOUT_CONFIG, or run 'scout config init'")
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	if !server && !verbose && log.GetLevel() < zerolog.WarnLevel {
		log = log.Level(zerolog.WarnLevel)
	}
	return &app{cfg: cfg, log: log}, nil
}

func (a *app) openDB() (*store.DB, error) {
	path := a.cfg.DBPath()
	db, err := store.OpenPath(path)
	if err != nil {
		a.log.Debug().Err(err).Str("path", path).Msg("open database")
		return nil, userError("Cannot open notes database at "+path,
			"Set notes.db_path or SCOUT_DATA_DIR to a writable location")
	}
	if !db.FTSAvailable() {
		a.log.Debug().Msg("sqlite3 built without fts5; note search uses keyword matching")
	}
	return db, nil
}

func (a *app) fetcher() *fetch.Fetcher {
	return fetch.New(a.cfg.Fetch, fetch.WithLogger(a.log))
}

func (a *app) searchProvider() (search.Provider, error) {
	p, err := search.NewProvider(a.cfg.Search)
	if err != nil {
		return nil, userError("Search provider is misconfigured: "+err.Error(),
			"Set search.provider to none, brave (with api_key) or searxng (with base_url)")
	}
	return p, nil
}

func (a *app) guard() *guard.Guard {
	return guard.New()
}

// describeError turns pipeline errors into one-line CLI messages.
func describeError(err error) error {
	var fe *fetch.Error
	if errors.As(err, &fe) {
		return fmt.Errorf("%s: %s", fe.Code, fe.Message)
	}
	if errors.Is(err, search.ErrDisabled) {
		return userError("Web search is disabled",
			"Set search.provider in the config file or SCOUT_SEARCH_PROVIDER")
	}
	if errors.Is(err, store.ErrNotFound) {
		return errors.New("note not found")
	}
	return err
}

type scoutError struct {
	message string
	hint    string
}

func (e *scoutError) Error() string {
	return fmt.Sprintf("%s\n  Hint: %s", e.message, e.hint)
}

func userError(message, hint string) error {
	return &scoutError{message: message, hint: hint}
}
