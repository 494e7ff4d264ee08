// Package mcpserver exposes the oDesk client as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/naotama2002/odesk-go/client"
	"github.com/naotama2002/odesk-go/jobs"
	"github.com/naotama2002/odesk-go/signature"
)

const (
	// Name is reported to MCP clients
	Name = "odesk-mcp"
	// DefaultAPIBase bounds the URLs odesk_get may call
	DefaultAPIBase = "https://www.odesk.com/api/"
)

// Tool names
const (
	ToolSearchJobs = "search_jobs"
	ToolGet        = "odesk_get"
)

// Options configure the tool server
type Options struct {
	// APIBase is the prefix every odesk_get URL must start with.
	APIBase string
	// SearchURL overrides jobs.SearchURL.
	SearchURL string
}

// Server serves the tools
type Server struct {
	api     *client.Client
	jobs    *jobs.Service
	apiBase string
	mcp     *server.MCPServer
}

// New registers the tools for api
func New(api *client.Client, opts Options) *Server {
	if opts.APIBase == "" {
		opts.APIBase = DefaultAPIBase
	}
	service := jobs.NewService(api)
	if opts.SearchURL != "" {
		service = service.WithURL(opts.SearchURL)
	}

	s := &Server{
		api:     api,
		jobs:    service,
		apiBase: opts.APIBase,
		mcp:     server.NewMCPServer(Name, client.Version, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool(ToolSearchJobs,
		mcp.WithDescription("Search open oDesk jobs. Without arguments it lists fixed price web jobs from 1000 up."),
		mcp.WithString("query", mcp.Description("Keywords")),
		mcp.WithString("type", mcp.Description("Fixed or Hourly")),
		mcp.WithNumber("min_budget", mcp.Description("Lowest budget")),
		mcp.WithNumber("max_budget", mcp.Description("Highest budget")),
		mcp.WithNumber("days_posted", mcp.Description("Only jobs posted in the last N days, 0 for any")),
		mcp.WithString("page", mcp.Description(`Page as "offset;count"`)),
	), s.handleSearchJobs)

	s.mcp.AddTool(mcp.NewTool(ToolGet,
		mcp.WithDescription("Perform a signed GET against an oDesk API resource and return the raw response"),
		mcp.WithString("url", mcp.Required(), mcp.Description("Resource URL under "+opts.APIBase)),
		mcp.WithObject("params", mcp.Description("Query parameters")),
	), s.handleGet)

	return s
}

// MCPServer returns the underlying server
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves MCP over stdin and stdout until stdin closes
func (s *Server) ServeStdio() error {
	log.Printf("%s serving on stdio", Name)
	return server.ServeStdio(s.mcp)
}

// jobSummary is what search_jobs reports per listing
type jobSummary struct {
	Title      string `json:"title"`
	Type       string `json:"type,omitempty"`
	Amount     string `json:"amount,omitempty"`
	DatePosted string `json:"date_posted,omitempty"`
	URL        string `json:"url,omitempty"`
}

func (s *Server) handleSearchJobs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)

	query := jobs.WebJobs()
	if len(args) > 0 {
		query = jobs.Query{
			Keywords:   stringArg(args, "query"),
			Type:       stringArg(args, "type"),
			MinBudget:  intArg(args, "min_budget"),
			MaxBudget:  intArg(args, "max_budget"),
			DaysPosted: intArg(args, "days_posted"),
			Page:       stringArg(args, "page"),
		}
	}

	result, err := s.jobs.Search(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("job search failed: %v", err)), nil
	}

	summaries := make([]jobSummary, 0, len(result.Jobs.Job))
	for _, job := range result.Jobs.Job {
		summaries = append(summaries, jobSummary{
			Title:      string(job.Title),
			Type:       string(job.JobType),
			Amount:     string(job.Amount),
			DatePosted: string(job.DatePosted),
			URL:        job.URL(),
		})
	}

	data, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)

	rawURL := stringArg(args, "url")
	if rawURL == "" {
		return mcp.NewToolResultError("url is required"), nil
	}
	if !strings.HasPrefix(rawURL, s.apiBase) {
		return mcp.NewToolResultError(fmt.Sprintf("url must start with %s", s.apiBase)), nil
	}

	params := signature.Params{}
	if raw, ok := args["params"].(map[string]any); ok {
		for k, v := range raw {
			params[k] = v
		}
	}

	body, err := s.api.Get(ctx, rawURL, params)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("request failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

func arguments(req mcp.CallToolRequest) map[string]any {
	args, _ := any(req.Params.Arguments).(map[string]any)
	if args == nil {
		return map[string]any{}
	}
	return args
}

func stringArg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}
