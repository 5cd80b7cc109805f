package main

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/entrhq/scout/pkg/app"
	"github.com/entrhq/scout/pkg/search"
	"github.com/entrhq/scout/pkg/types"
)

// htmlPreviewChars is how much of the cleaned page raw-HTML mode prints.
const htmlPreviewChars = 500

type searchOptions struct {
	limit      int
	timeoutMS  int
	html       bool
	saveHTML   bool
	htmlOutput string
}

// htmlSummary is printed in raw-HTML mode instead of the full page.
type htmlSummary struct {
	Query              string `json:"query"`
	URL                string `json:"url"`
	OriginalHTMLLength int    `json:"originalHtmlLength"`
	CleanedHTMLLength  int    `json:"cleanedHtmlLength"`
	SavedPath          string `json:"savedPath,omitempty"`
	ScreenshotPath     string `json:"screenshotPath,omitempty"`
	HTMLPreview        string `json:"htmlPreview"`
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	o := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a web search and print the results as JSON",
		Example: `  scout search "golang generics"
  scout search -l 5 -t 30000 "site:go.dev modules"
  scout search --html --save-html --html-output ./page.html "golang"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			limit := cfg.Search.DefaultLimit
			if cmd.Flags().Changed("limit") {
				limit = o.limit
			}
			timeout := cfg.Search.Timeout
			if cmd.Flags().Changed("timeout") {
				timeout = millis(o.timeoutMS)
			}
			query := strings.Join(args, " ")

			return root.withApp(cmd.Context(), func(a *app.App) error {
				opts := search.Options{Query: query, Limit: limit, Timeout: timeout, Session: a.SessionConfig()}

				if !o.html {
					resp, err := a.Search.Search(cmd.Context(), opts)
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), resp)
				}

				resp, err := a.Search.SearchHTML(cmd.Context(), opts, search.HTMLOptions{
					Save:       o.saveHTML,
					OutputPath: o.htmlOutput,
				})
				if err != nil {
					return err
				}
				if resp.SavedPath != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "HTML has been saved to file: %s\n", resp.SavedPath)
				}
				return writeJSON(cmd.OutOrStdout(), summarize(resp))
			})
		},
	}

	f := cmd.Flags()
	f.IntVarP(&o.limit, "limit", "l", 10, "Maximum number of results")
	f.IntVarP(&o.timeoutMS, "timeout", "t", 60000, "Timeout in milliseconds")
	f.BoolVar(&o.html, "html", false, "Print the raw results page instead of parsed results")
	f.BoolVar(&o.saveHTML, "save-html", false, "Save the raw page and a screenshot (with --html)")
	f.StringVar(&o.htmlOutput, "html-output", "", "File to save the raw page to (default ./search-html/<query>-<time>.html)")
	return cmd
}

func summarize(resp *types.HTMLResponse) htmlSummary {
	preview := resp.HTML
	if utf8.RuneCountInString(preview) > htmlPreviewChars {
		preview = string([]rune(preview)[:htmlPreviewChars]) + "..."
	}
	return htmlSummary{
		Query:              resp.Query,
		URL:                resp.URL,
		OriginalHTMLLength: resp.OriginalHTMLLength,
		CleanedHTMLLength:  len(resp.HTML),
		SavedPath:          resp.SavedPath,
		ScreenshotPath:     resp.ScreenshotPath,
		HTMLPreview:        preview,
	}
}
