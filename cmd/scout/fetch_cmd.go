package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/scout/internal/cli"
	"github.com/sgx-labs/scout/internal/fetch"
	"github.com/sgx-labs/scout/internal/guard"
)

func fetchCmd() *cobra.Command {
	var (
		maxChars int
		mode     string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Fetch a web page and print its readable text",
		Long: "Fetch a public http(s) page through the same pipeline as the fetch_page tool: " +
			"private addresses are refused, redirects are re-checked and the text is extracted and bounded.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, ok := fetch.ParseMode(mode)
			if !ok {
				return userError("Unknown mode "+mode, "Use --mode text or --mode markdown")
			}
			if maxChars < 0 {
				return userError("--max-chars must not be negative", "Omit it to use fetch.max_page_size")
			}
			a, err := loadApp(false)
			if err != nil {
				return err
			}

			res, err := a.fetcher().Fetch(cmd.Context(), fetch.Request{URL: args[0], MaxChars: maxChars, Mode: m})
			if err != nil {
				return describeError(err)
			}
			flagged := a.guard().ScanPage(cmd.Context(), res.Title+"\n"+res.Content)

			out := cmd.OutOrStdout()
			if asJSON {
				payload := struct {
					*fetch.Result
					Warning string `json:"warning,omitempty"`
				}{Result: res}
				if flagged {
					payload.Warning = guard.PageWarning
				}
				data, _ := json.MarshalIndent(payload, "", "  ")
				fmt.Fprintln(out, string(data))
				return nil
			}

			p := cli.NewPrinter(out)
			if res.Title != "" && m != fetch.ModeMarkdown {
				p.Header(cli.Truncate(res.Title, 36))
			}
			p.KV("url", res.URL)
			p.KV("characters", cli.FormatNumber(res.ContentLength))
			if res.Truncated {
				p.Warn("content truncated")
			}
			if flagged {
				p.Warn(guard.PageWarning)
			}
			fmt.Fprintf(out, "\n%s\n", res.Content)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxChars, "max-chars", 0, "Cap on returned characters (0 = fetch.max_page_size)")
	cmd.Flags().StringVar(&mode, "mode", "text", "Extraction mode: text or markdown")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the tool result as JSON")
	return cmd
}
