package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/scout/internal/cli"
	"github.com/sgx-labs/scout/internal/indexer"
	"github.com/sgx-labs/scout/internal/store"
	"github.com/sgx-labs/scout/internal/watcher"
)

func notesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Create, read and search saved notes",
	}
	cmd.AddCommand(notesAddCmd())
	cmd.AddCommand(notesGetCmd())
	cmd.AddCommand(notesUpdateCmd())
	cmd.AddCommand(notesDeleteCmd())
	cmd.AddCommand(notesListCmd())
	cmd.AddCommand(notesSearchCmd())
	cmd.AddCommand(notesImportCmd())
	cmd.AddCommand(notesWatchCmd())
	return cmd
}

// withDB loads the app, opens the notes database and runs fn.
func withDB(fn func(a *app, db *store.DB) error) error {
	a, err := loadApp(false)
	if err != nil {
		return err
	}
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(a, db)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, userError("Invalid note id "+s, "Note ids are positive integers; see 'scout notes list'")
	}
	return id, nil
}

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// readContent resolves --content / --file; "-" as file means stdin.
func readContent(content, file string, stdin io.Reader) (string, error) {
	switch file {
	case "":
		return content, nil
	case "-":
		data, err := io.ReadAll(io.LimitReader(stdin, indexer.MaxFileBytes))
		return string(data), err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", file, err)
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(data))
}

func printNote(w io.Writer, n *store.Note) {
	p := cli.NewPrinter(w)
	p.Header(cli.Truncate(n.Title, 36))
	p.KV("id", n.ID)
	if len(n.Tags) > 0 {
		p.KV("tags", strings.Join(n.Tags, ", "))
	}
	if n.Source != "" {
		p.KV("source", n.Source)
	}
	p.KV("updated", cli.Ago(n.UpdatedAt, time.Now()))
	if n.Content != "" {
		fmt.Fprintf(w, "\n%s\n", n.Content)
	}
}

func notesAddCmd() *cobra.Command {
	var (
		content, file, tags string
		asJSON              bool
	)
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Save a new note",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readContent(content, file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withDB(func(a *app, db *store.DB) error {
				n, err := db.CreateNote(strings.Join(args, " "), body, splitTags(tags))
				if err != nil {
					return describeError(err)
				}
				if asJSON {
					printJSON(cmd.OutOrStdout(), n)
					return nil
				}
				cli.NewPrinter(cmd.OutOrStdout()).Success(fmt.Sprintf("Saved note %d: %s", n.ID, n.Title))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&content, "content", "c", "", "Note body")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the body from a file (- for stdin)")
	cmd.Flags().StringVarP(&tags, "tags", "t", "", "Comma-separated tags")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the stored note as JSON")
	return cmd
}

func notesGetCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withDB(func(a *app, db *store.DB) error {
				n, err := db.GetNote(id)
				if err != nil {
					return describeError(err)
				}
				if asJSON {
					printJSON(cmd.OutOrStdout(), n)
				} else {
					printNote(cmd.OutOrStdout(), n)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the note as JSON")
	return cmd
}

func notesUpdateCmd() *cobra.Command {
	var (
		title, content, file, tags string
		asJSON                     bool
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a note's title, body or tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var patch store.NotePatch
			flags := cmd.Flags()
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("content") || flags.Changed("file") {
				body, err := readContent(content, file, cmd.InOrStdin())
				if err != nil {
					return err
				}
				patch.Content = &body
			}
			if flags.Changed("tags") {
				t := splitTags(tags)
				patch.Tags = &t
			}
			if patch.Title == nil && patch.Content == nil && patch.Tags == nil {
				return userError("Nothing to update", "Pass --title, --content, --file or --tags")
			}
			return withDB(func(a *app, db *store.DB) error {
				n, err := db.UpdateNote(id, patch)
				if err != nil {
					return describeError(err)
				}
				if asJSON {
					printJSON(cmd.OutOrStdout(), n)
					return nil
				}
				cli.NewPrinter(cmd.OutOrStdout()).Success(fmt.Sprintf("Updated note %d", n.ID))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVarP(&content, "content", "c", "", "New body")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the new body from a file (- for stdin)")
	cmd.Flags().StringVarP(&tags, "tags", "t", "", "Replacement comma-separated tags (empty clears)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the updated note as JSON")
	return cmd
}

func notesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withDB(func(a *app, db *store.DB) error {
				if err := db.DeleteNote(id); err != nil {
					return describeError(err)
				}
				cli.NewPrinter(cmd.OutOrStdout()).Success(fmt.Sprintf("Deleted note %d", id))
				return nil
			})
		},
	}
}

func notesListCmd() *cobra.Command {
	var (
		limit, offset int
		tag           string
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notes, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 || offset < 0 {
				return userError("--limit and --offset must not be negative", "Omit them for the first page")
			}
			if limit > 100 {
				limit = 100
			}
			return withDB(func(a *app, db *store.DB) error {
				notes, err := db.ListNotes(store.ListOptions{Limit: limit, Offset: offset, Tag: tag})
				if err != nil {
					return err
				}
				total, err := db.CountNotes(tag)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					if notes == nil {
						notes = []store.Note{}
					}
					printJSON(out, map[string]any{"notes": notes, "total": total})
					return nil
				}

				p := cli.NewPrinter(out)
				p.Section(fmt.Sprintf("Notes (%s total)", cli.FormatNumber(total)))
				if len(notes) == 0 {
					p.Empty("No notes yet. Add one with 'scout notes add'.")
					return nil
				}
				now := time.Now()
				for _, n := range notes {
					detail := "#" + strconv.FormatInt(n.ID, 10) + " · " + cli.Ago(n.UpdatedAt, now)
					if len(n.Tags) > 0 {
						detail += " · " + strings.Join(n.Tags, ", ")
					}
					p.Item(int(n.ID), n.Title, detail, "")
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Page size (max 100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of notes to skip")
	cmd.Flags().StringVar(&tag, "tag", "", "Only notes with this tag")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func notesSearchCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over notes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withDB(func(a *app, db *store.DB) error {
				results, err := db.SearchNotes(query, limit)
				if err != nil {
					return describeError(err)
				}
				out := cmd.OutOrStdout()
				if asJSON {
					if results == nil {
						results = []store.SearchResult{}
					}
					printJSON(out, map[string]any{"query": query, "results": results})
					return nil
				}

				p := cli.NewPrinter(out)
				p.Section(fmt.Sprintf("Notes matching %q", query))
				if len(results) == 0 {
					p.Empty("No matching notes.")
					return nil
				}
				for i, r := range results {
					p.Item(i+1, r.Title, fmt.Sprintf("#%d · score %.2f", r.ID, r.Score), r.Snippet)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of results (max 50)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func notesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [dir]",
		Short: "Import markdown files as notes",
		Long: "Import every markdown file under dir (default notes.sync_dir). Files are keyed by " +
			"their relative path, so importing again updates notes in place.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(a *app, db *store.DB) error {
				dir, err := syncDir(a, args)
				if err != nil {
					return err
				}
				p := cli.NewPrinter(cmd.OutOrStdout())
				stats, err := indexer.ImportDir(db, dir, func(current, total int, path string) {
					a.log.Debug().Int("current", current).Int("total", total).Str("path", path).Msg("imported")
				})
				if err != nil {
					return err
				}
				p.Section("Import " + cli.ShortenHome(dir))
				p.KV("files", cli.FormatNumber(stats.TotalFiles))
				p.KV("created", stats.Created)
				p.KV("updated", stats.Updated)
				p.KV("skipped", stats.Skipped)
				if stats.Errors > 0 {
					p.Warn(fmt.Sprintf("%d files failed; rerun with --verbose for details", stats.Errors))
				}
				return nil
			})
		},
	}
}

func notesWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [dir]",
		Short: "Keep notes in sync with a markdown directory",
		Long:  "Import dir (default notes.sync_dir), then watch it and apply changes until interrupted.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(true)
			if err != nil {
				return err
			}
			dir, err := syncDir(a, args)
			if err != nil {
				return err
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			stats, err := indexer.ImportDir(db, dir, nil)
			if err != nil {
				return err
			}
			a.log.Info().Int("created", stats.Created).Int("updated", stats.Updated).Msg("initial import done")
			return watcher.New(db, dir, watcher.WithLogger(a.log)).Run(cmd.Context())
		},
	}
}

func syncDir(a *app, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if a.cfg.Notes.SyncDir != "" {
		return a.cfg.Notes.SyncDir, nil
	}
	return "", userError("No directory given", "Pass a directory or set notes.sync_dir in the config file")
}
