package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/autocommit/internal/commitmsg"
	"github.com/joescharf/autocommit/internal/committer"
	"github.com/joescharf/autocommit/internal/git"
)

// Server exposes message generation and repository inspection as MCP tools.
// It never stages or commits.
type Server struct {
	open     committer.OpenFunc
	gen      committer.MessageGenerator
	style    commitmsg.Style
	language string
	version  string
}

// NewServer creates the MCP server wrapper. language is used when a call does
// not name one.
func NewServer(open committer.OpenFunc, gen committer.MessageGenerator, style commitmsg.Style, language, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{
		open:     open,
		gen:      gen,
		style:    style,
		language: language,
		version:  version,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("autocommit", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.generateMessageTool())
	srv.AddTool(s.repoStatusTool())
	srv.AddTool(s.repoDiffTool())

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

// autocommit_generate_message
func (s *Server) generateMessageTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("autocommit_generate_message",
		mcp.WithDescription("Generate a Conventional Commits message for a diff or a description of changes. Returns the message text only."),
		mcp.WithString("diff", mcp.Required(), mcp.Description("Unified diff or free text describing the changes")),
		mcp.WithString("language", mcp.Description("Natural language for the description and body, e.g. English or Japanese")),
	)
	return tool, s.handleGenerateMessage
}

func (s *Server) handleGenerateMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	diff, err := request.RequireString("diff")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: diff"), nil
	}
	if s.gen == nil {
		return mcp.NewToolResultError("no generator configured"), nil
	}

	msg, err := s.gen.Generate(ctx, commitmsg.Request{
		Content:  diff,
		Language: request.GetString("language", s.language),
		Style:    s.style,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to generate message: %v", err)), nil
	}
	return mcp.NewToolResultText(msg.String()), nil
}

// autocommit_repo_status
func (s *Server) repoStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("autocommit_repo_status",
		mcp.WithDescription("Report the repository containing a path: root, current branch, whether that branch is protected from automatic commits, and whether there are pending changes."),
		mcp.WithString("path", mcp.Description("Directory inside the repository (defaults to the server's working directory)")),
	)
	return tool, s.handleRepoStatus
}

type repoStatus struct {
	Root       string `json:"root"`
	Branch     string `json:"branch"`
	Protected  bool   `json:"protected"`
	HasChanges bool   `json:"has_changes"`
}

func (s *Server) handleRepoStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repo, errResult := s.openRepo(request.GetString("path", "."))
	if errResult != nil {
		return errResult, nil
	}

	branch, err := repo.CurrentBranch()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read branch: %v", err)), nil
	}
	has, err := repo.HasChanges()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read status: %v", err)), nil
	}

	data, err := json.Marshal(repoStatus{
		Root:       repo.Root(),
		Branch:     branch,
		Protected:  committer.IsProtected(branch),
		HasChanges: has,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// autocommit_repo_diff
func (s *Server) repoDiffTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("autocommit_repo_diff",
		mcp.WithDescription("Return the diff autocommit would summarize: one file when file is set, every pending change otherwise."),
		mcp.WithString("path", mcp.Description("Directory inside the repository (defaults to the server's working directory)")),
		mcp.WithString("file", mcp.Description("File to diff, absolute or relative to path")),
	)
	return tool, s.handleRepoDiff
}

func (s *Server) handleRepoDiff(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir := request.GetString("path", ".")
	repo, errResult := s.openRepo(dir)
	if errResult != nil {
		return errResult, nil
	}

	var file string
	if f := request.GetString("file", ""); f != "" {
		rel, err := repo.Rel(f, dir)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		file = rel
	}

	diff, err := committer.RepoContent(repo, file)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to diff: %v", err)), nil
	}
	if diff == "" {
		return mcp.NewToolResultText("no changes"), nil
	}
	return mcp.NewToolResultText(diff), nil
}

func (s *Server) openRepo(dir string) (committer.Repository, *mcp.CallToolResult) {
	if s.open == nil {
		return nil, mcp.NewToolResultError("no repository access configured")
	}
	repo, err := s.open(dir)
	if err != nil {
		if errors.Is(err, git.ErrNotARepository) {
			return nil, mcp.NewToolResultError(fmt.Sprintf("not a git repository: %s", dir))
		}
		return nil, mcp.NewToolResultError(fmt.Sprintf("failed to open repository: %v", err))
	}
	return repo, nil
}
