package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/scout/pkg/app"
	"github.com/entrhq/scout/pkg/content"
)

type fetchOptions struct {
	timeoutMS int
	maxChars  int
	markdown  bool
}

func newFetchCmd(root *rootOptions) *cobra.Command {
	o := &fetchOptions{}

	cmd := &cobra.Command{
		Use:     "fetch <url>",
		Aliases: []string{"fetch-markdown"},
		Short:   "Render a page in the browser and print it as Markdown",
		Example: `  scout fetch https://go.dev/doc/
  scout fetch --markdown --max-chars 5000 https://go.dev/blog/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			timeout := cfg.Fetch.Timeout
			if cmd.Flags().Changed("timeout") {
				timeout = millis(o.timeoutMS)
			}
			maxChars := cfg.Fetch.MaxChars
			if cmd.Flags().Changed("max-chars") {
				maxChars = o.maxChars
			}

			return root.withApp(cmd.Context(), func(a *app.App) error {
				doc, err := a.Content.FetchMarkdown(cmd.Context(), content.Request{
					URL:      args[0],
					Timeout:  timeout,
					MaxChars: maxChars,
					Session:  a.SessionConfig(),
				})
				if err != nil {
					return err
				}
				if o.markdown {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), doc.Content)
					return err
				}
				return writeJSON(cmd.OutOrStdout(), doc)
			})
		},
	}

	f := cmd.Flags()
	f.IntVarP(&o.timeoutMS, "timeout", "t", 60000, "Timeout in milliseconds")
	f.IntVar(&o.maxChars, "max-chars", 250000, "Maximum Markdown characters to return")
	f.BoolVar(&o.markdown, "markdown", false, "Print only the Markdown text instead of JSON")
	return cmd
}
