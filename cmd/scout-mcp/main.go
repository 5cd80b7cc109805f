// Package main serves scout's search and fetch_markdown tools over the
// Model Context Protocol, on stdio by default or streamable HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/entrhq/scout/pkg/app"
	"github.com/entrhq/scout/pkg/mcpserver"
)

const version = "0.1.0"

// Config holds the command line options.
type Config struct {
	ConfigPath  string
	HTTPAddr    string
	ShowVersion bool
}

func main() {
	cfg := parseFlags()
	if cfg.ShowVersion {
		fmt.Printf("scout-mcp v%s\n", version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if err := run(ctx, cfg); err != nil {
		stop()
		log.Fatalf("scout-mcp: %v", err)
	}
	stop()
}

func parseFlags() *Config {
	cfg := &Config{}
	flag.StringVar(&cfg.ConfigPath, "config", "", "Path to a YAML config file")
	flag.StringVar(&cfg.HTTPAddr, "http", "", "Serve streamable HTTP on this address (e.g. :8000) instead of stdio")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "scout-mcp - web search and page fetching tools over MCP\n\n")
		fmt.Fprintf(os.Stderr, "Usage: scout-mcp [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  HEADLESS           Values starting with \"t\" run the browser headless\n")
		fmt.Fprintf(os.Stderr, "  SCOUT_STATE_FILE   Browser state file\n")
		fmt.Fprintf(os.Stderr, "  SCOUT_LOG_LEVEL    debug, info, warn or error\n")
	}

	flag.Parse()
	return cfg
}

func run(ctx context.Context, cfg *Config) error {
	appCfg, err := app.LoadConfig(cfg.ConfigPath)
	if err != nil {
		return err
	}
	a, err := app.New(appCfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		_ = a.Close(closeCtx)
	}()

	srv := mcpserver.New(a.Search, a.Content, mcpserver.Options{
		Name:    "scout",
		Version: version,
		Session: a.SessionConfig(),
	}, a.Logger.Named("mcp"))

	if cfg.HTTPAddr != "" {
		return srv.ServeHTTP(ctx, cfg.HTTPAddr)
	}
	a.Logger.Infof("Serving MCP over stdio")
	return srv.ServeStdio()
}
