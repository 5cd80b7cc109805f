package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/scout/pkg/app"
	"github.com/entrhq/scout/pkg/config"
)

// appFactory builds the app once flags have been applied to the config.
type appFactory func(*config.Config) (*app.App, error)

// closeTimeout bounds state persistence and browser shutdown on exit.
const closeTimeout = 30 * time.Second

type rootOptions struct {
	configPath string
	headless   bool
	stateFile  string
	saveState  bool

	cfg    *config.Config
	newApp appFactory
}

func newRootCmd(newApp appFactory) *cobra.Command {
	opts := &rootOptions{newApp: newApp}

	cmd := &cobra.Command{
		Use:           "scout",
		Short:         "Search the web and fetch pages through a real browser",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.loadConfig(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	pf.BoolVar(&opts.headless, "headless", true, "Run the browser without a window (--headless=false to show it)")
	pf.StringVar(&opts.stateFile, "state-file", config.DefaultStateFile, "Path to the browser state file")
	pf.BoolVarP(&opts.saveState, "save-state", "s", true, "Save browser state when the session ends")

	cmd.AddCommand(newSearchCmd(opts), newFetchCmd(opts))
	return cmd
}

// loadConfig reads the config file and environment, then applies flags the
// user set explicitly.
func (o *rootOptions) loadConfig(cmd *cobra.Command) error {
	cfg, err := app.LoadConfig(o.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("headless") {
		cfg.Browser.Headless = o.headless
	}
	if flags.Changed("state-file") {
		cfg.Browser.StateFile = o.stateFile
	}
	if flags.Changed("save-state") {
		cfg.Browser.SaveState = o.saveState
	}
	o.cfg = cfg
	return nil
}

// withApp builds the app, runs fn and shuts the app down, persisting
// session state even when ctx was cancelled.
func (o *rootOptions) withApp(ctx context.Context, fn func(*app.App) error) error {
	a, err := o.newApp(o.cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		_ = a.Close(closeCtx)
	}()
	return fn(a)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
