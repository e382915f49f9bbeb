package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/scout/internal/cli"
	"github.com/sgx-labs/scout/internal/search"
)

func searchCmd() *cobra.Command {
	var (
		count  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the web with the configured provider",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return userError("Query is empty", "Pass one or more search terms")
			}
			a, err := loadApp(false)
			if err != nil {
				return err
			}
			provider, err := a.searchProvider()
			if err != nil {
				return err
			}

			results, err := provider.Search(cmd.Context(), query, search.ClampCount(count, a.cfg.Search.MaxResults))
			if err != nil {
				return describeError(err)
			}
			g := a.guard()
			for i := range results {
				results[i].Snippet = g.Sanitize(cmd.Context(), results[i].Snippet)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if results == nil {
					results = []search.Result{}
				}
				data, _ := json.MarshalIndent(map[string]any{
					"query":    query,
					"provider": provider.Name(),
					"results":  results,
				}, "", "  ")
				fmt.Fprintln(out, string(data))
				return nil
			}

			p := cli.NewPrinter(out)
			p.Section(fmt.Sprintf("%s results for %q", provider.Name(), query))
			if len(results) == 0 {
				p.Empty("No results.")
				return nil
			}
			for i, r := range results {
				p.Item(i+1, r.Title, r.URL, cli.Truncate(r.Snippet, 160))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Number of results (default search.max_results, max 20)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}
