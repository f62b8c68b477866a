// Package mcp exposes the review pipeline as MCP tools over stdio so
// assistants can request reviews of diffs they are about to commit.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/cr/internal/agents"
	"github.com/joescharf/cr/internal/custom"
	"github.com/joescharf/cr/internal/review"
	"github.com/joescharf/cr/internal/store"
	"github.com/joescharf/cr/internal/verify"
)

// Server wraps the review runner and exposes it as MCP tools.
type Server struct {
	runner    *review.Runner
	store     store.Store
	agentsDir string
}

// NewServer creates the MCP server wrapper. st may be nil when history is
// disabled.
func NewServer(runner *review.Runner, st store.Store, agentsDir string) *Server {
	return &Server{
		runner:    runner,
		store:     st,
		agentsDir: agentsDir,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("cr", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.reviewDiffTool())
	srv.AddTool(s.verifyFixesTool())
	srv.AddTool(s.listAgentsTool())
	srv.AddTool(s.reviewHistoryTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// cr_review_diff
func (s *Server) reviewDiffTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cr_review_diff",
		mcp.WithDescription("Review a unified git diff. Runs risk analysis, specialist review agents, and evidence grounding, then returns the deduplicated issues as JSON."),
		mcp.WithString("diff", mcp.Required(), mcp.Description("The unified diff text to review")),
		mcp.WithString("repo_path", mcp.Description("Repository root; used to pick up coding-standards files")),
		mcp.WithString("git_ref", mcp.Description("Ref or range the diff was taken from, recorded in the report")),
		mcp.WithBoolean("offline", mcp.Description("Run heuristic analysis only, without model calls")),
	)
	return tool, s.handleReviewDiff
}

func (s *Server) handleReviewDiff(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	diffText, err := request.RequireString("diff")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: diff"), nil
	}

	rep, err := s.runner.Run(ctx, review.Options{
		RepoPath:  request.GetString("repo_path", ""),
		GitRef:    request.GetString("git_ref", ""),
		DiffText:  diffText,
		AgentsDir: s.agentsDir,
		Offline:   request.GetBool("offline", false),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("review failed: %v", err)), nil
	}

	data, err := json.Marshal(rep)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal report: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// cr_verify_fixes
func (s *Server) verifyFixesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cr_verify_fixes",
		mcp.WithDescription("Re-review a diff and classify each issue from a previous report file as fixed, still present, or regressed. Also lists newly introduced issues."),
		mcp.WithString("diff", mcp.Required(), mcp.Description("The unified diff text to review")),
		mcp.WithString("previous_report", mcp.Required(), mcp.Description("Path to the JSON report from the earlier review")),
		mcp.WithString("repo_path", mcp.Description("Repository root; used to pick up coding-standards files")),
	)
	return tool, s.handleVerifyFixes
}

func (s *Server) handleVerifyFixes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	diffText, err := request.RequireString("diff")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: diff"), nil
	}
	reportPath, err := request.RequireString("previous_report")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: previous_report"), nil
	}

	prev, err := verify.LoadPreviousReview(reportPath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load previous report: %v", err)), nil
	}

	rep, err := s.runner.Run(ctx, review.Options{
		RepoPath:  request.GetString("repo_path", ""),
		DiffText:  diffText,
		AgentsDir: s.agentsDir,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("review failed: %v", err)), nil
	}

	results, err := verify.Verify(prev, rep.Issues)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("verify fixes: %v", err)), nil
	}

	out := map[string]any{
		"previous_source":  prev.Source,
		"skipped_previous": prev.Skipped,
		"results":          results,
		"new_issues":       verify.NewIssues(prev, rep.Issues),
	}
	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// cr_list_agents
func (s *Server) listAgentsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cr_list_agents",
		mcp.WithDescription("List the built-in review agents and any custom agent definitions, including how each custom agent is triggered."),
	)
	return tool, s.handleListAgents
}

func (s *Server) handleListAgents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type agentOut struct {
		Name        string `json:"name"`
		Kind        string `json:"kind"`
		Description string `json:"description,omitempty"`
		Trigger     string `json:"trigger,omitempty"`
	}

	var out []agentOut
	for _, sp := range agents.BuiltIn() {
		out = append(out, agentOut{Name: sp.Name, Kind: "built-in"})
	}

	if s.agentsDir != "" {
		defs, warnings, err := custom.Load(s.agentsDir)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("load custom agents: %v", err)), nil
		}
		for _, def := range defs {
			out = append(out, agentOut{
				Name:        def.Name,
				Kind:        "custom",
				Description: def.Description,
				Trigger:     string(def.Trigger.Kind),
			})
		}
		for _, w := range warnings {
			out = append(out, agentOut{
				Name:        w.File,
				Kind:        "invalid",
				Description: w.Err.Error(),
			})
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal agents: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// cr_review_history
func (s *Server) reviewHistoryTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("cr_review_history",
		mcp.WithDescription("List past review runs recorded in the local database, newest first."),
		mcp.WithString("repo_path", mcp.Description("Filter runs to one repository")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs to return (default 10)")),
	)
	return tool, s.handleReviewHistory
}

func (s *Server) handleReviewHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("review history is disabled"), nil
	}

	runs, err := s.store.ListRuns(ctx, store.RunListFilter{
		RepoPath: request.GetString("repo_path", ""),
		Limit:    request.GetInt("limit", 10),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}

	data, err := json.Marshal(runs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal runs: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
