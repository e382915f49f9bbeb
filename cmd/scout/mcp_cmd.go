package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/scout/internal/indexer"
	mcpserver "github.com/sgx-labs/scout/internal/mcp"
	"github.com/sgx-labs/scout/internal/ratelimit"
	"github.com/sgx-labs/scout/internal/store"
	"github.com/sgx-labs/scout/internal/watcher"
	"github.com/sgx-labs/scout/internal/web"
)

const defaultHTTPAddr = "127.0.0.1:7411"

func mcpCmd() *cobra.Command {
	var (
		useHTTP bool
		addr    string
	)
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP tool server",
		Long: "Serve the web_search, fetch_page and note tools over MCP. Uses stdio by default; " +
			"--http serves streamable HTTP on a loopback address instead. When notes.sync_dir is set, " +
			"markdown files there are imported at startup and kept in sync while the server runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(true)
			if err != nil {
				return err
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			provider, err := a.searchProvider()
			if err != nil {
				return err
			}

			mcpserver.Version = Version
			srv := mcpserver.New(mcpserver.Deps{
				Config:  a.cfg,
				DB:      db,
				Search:  provider,
				Fetcher: a.fetcher(),
				Limiter: ratelimit.New(a.cfg.RateLimit),
				Guard:   a.guard(),
				Logger:  a.log,
			})

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if dir := a.cfg.Notes.SyncDir; dir != "" {
				startSync(ctx, a, db, dir)
			}

			if !useHTTP {
				return srv.ServeStdio(ctx)
			}
			if addr == "" {
				addr = a.cfg.Server.HTTPAddr
			}
			if addr == "" {
				addr = defaultHTTPAddr
			}
			handler := web.NewHandler(srv.MCPServer(), db, web.Options{
				Version:        Version,
				SearchProvider: provider.Name(),
				Logger:         a.log,
			})
			return web.Serve(ctx, addr, handler, a.log)
		},
	}
	cmd.Flags().BoolVar(&useHTTP, "http", false, "Serve streamable HTTP instead of stdio")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address for --http (default server.http_addr or "+defaultHTTPAddr+")")
	return cmd
}

// startSync imports dir once and then watches it until ctx is done.
func startSync(ctx context.Context, a *app, db *store.DB, dir string) {
	log := a.log.With().Str("component", "sync").Str("dir", dir).Logger()
	stats, err := indexer.ImportDir(db, dir, nil)
	if err != nil {
		log.Error().Err(err).Msg("initial import failed; notes sync disabled")
		return
	}
	log.Info().
		Int("files", stats.TotalFiles).
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("errors", stats.Errors).
		Msg("notes imported")

	w := watcher.New(db, dir, watcher.WithLogger(a.log))
	go func() {
		if err := w.Run(ctx); err != nil {
			log.Error().Err(err).Msg("watcher stopped")
		}
	}()
}
