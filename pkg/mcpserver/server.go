// Package mcpserver exposes search and page fetching as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/entrhq/scout/pkg/browser"
	"github.com/entrhq/scout/pkg/config"
	"github.com/entrhq/scout/pkg/content"
	"github.com/entrhq/scout/pkg/logging"
	"github.com/entrhq/scout/pkg/search"
	"github.com/entrhq/scout/pkg/types"
)

// Tool names.
const (
	ToolSearch        = "search"
	ToolFetchMarkdown = "fetch_markdown"
)

// Tool argument defaults, in the units the tools accept.
const (
	DefaultLimit     = 10
	DefaultTimeoutMS = 60000
	DefaultMaxChars  = config.DefaultMaxChars
)

// kindInvalidArgument labels tool errors caused by bad arguments.
const kindInvalidArgument = "invalid_argument"

// Searcher runs structured searches. *search.Service implements it.
type Searcher interface {
	Search(ctx context.Context, opts search.Options) (*types.SearchResponse, error)
}

// Fetcher converts pages to Markdown. *content.Service implements it.
type Fetcher interface {
	FetchMarkdown(ctx context.Context, req content.Request) (*types.MarkdownDocument, error)
}

// Options configures the tool server.
type Options struct {
	Name    string
	Version string

	// Session is the browser session every tool call runs in.
	Session browser.SessionConfig
}

// Server registers the scout tools on an MCP server.
type Server struct {
	mcp      *server.MCPServer
	searcher Searcher
	fetcher  Fetcher
	session  browser.SessionConfig
	logger   *logging.Logger
}

// New creates the tool server.
func New(searcher Searcher, fetcher Fetcher, opts Options, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Name == "" {
		opts.Name = "scout"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{
		mcp: server.NewMCPServer(opts.Name, opts.Version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		searcher: searcher,
		fetcher:  fetcher,
		session:  opts.Session,
		logger:   logger,
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) registerTools() {
	s.mcp.AddTool(
		mcp.NewTool(ToolSearch,
			mcp.WithDescription("Search the web with a real browser and return ranked results with titles, links and snippets."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10, max 100)"), mcp.DefaultNumber(DefaultLimit)),
			mcp.WithNumber("timeout", mcp.Description("Timeout in milliseconds (default 60000)"), mcp.DefaultNumber(DefaultTimeoutMS)),
		),
		s.handleSearch,
	)

	s.mcp.AddTool(
		mcp.NewTool(ToolFetchMarkdown,
			mcp.WithDescription("Open a URL in a real browser and return the rendered page as Markdown. The result is JSON with content, title, url, truncated and degraded fields."),
			mcp.WithString("url", mcp.Required(), mcp.Description("Absolute http(s) URL to fetch")),
			mcp.WithNumber("timeout", mcp.Description("Timeout in milliseconds (default 60000)"), mcp.DefaultNumber(DefaultTimeoutMS)),
			mcp.WithNumber("max_n_chars", mcp.Description("Maximum Markdown characters returned (default 250000)"), mcp.DefaultNumber(DefaultMaxChars)),
		),
		s.handleFetchMarkdown,
	)
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return toolError(kindInvalidArgument, err), nil
	}

	resp, err := s.searcher.Search(ctx, search.Options{
		Query:   query,
		Limit:   req.GetInt("limit", DefaultLimit),
		Timeout: millis(req.GetInt("timeout", DefaultTimeoutMS)),
		Session: s.session,
	})
	if err != nil {
		s.logger.Errorf("Tool %s failed for %q: %v", ToolSearch, query, err)
		return errorResult(err), nil
	}

	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode search results: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleFetchMarkdown(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := req.RequireString("url")
	if err != nil {
		return toolError(kindInvalidArgument, err), nil
	}

	doc, err := s.fetcher.FetchMarkdown(ctx, content.Request{
		URL:      url,
		Timeout:  millis(req.GetInt("timeout", DefaultTimeoutMS)),
		MaxChars: req.GetInt("max_n_chars", DefaultMaxChars),
		Session:  s.session,
	})
	if err != nil {
		s.logger.Errorf("Tool %s failed for %s: %v", ToolFetchMarkdown, url, err)
		return errorResult(err), nil
	}

	for _, w := range doc.Warnings {
		s.logger.Warnf("Tool %s: %s: %s", ToolFetchMarkdown, url, w)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult reports err to the client as a tool error labelled with its
// kind, so the model can decide whether to retry.
func errorResult(err error) *mcp.CallToolResult {
	kind := string(types.KindOf(err))
	if kind == "" {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			kind = "cancelled"
		default:
			kind = kindInvalidArgument
		}
	}
	return toolError(kind, err)
}

func toolError(kind string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", kind, err))
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// ServeStdio serves the tools over stdin and stdout until the client
// disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// ServeHTTP serves the tools over streamable HTTP on addr until ctx is done.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.mcp)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Serving MCP over HTTP on %s", addr)
		errCh <- httpServer.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down MCP server: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
