// Package mcp implements the Model Context Protocol server for Stride.
//
// The MCP server exposes the workflow through tools so MCP-compatible AI
// agents can request plans and adjustments, plus a resource over the run
// log for reviewing past executions.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/paceline-ai/stride/internal/model"
	"github.com/paceline-ai/stride/internal/runlog"
	"github.com/paceline-ai/stride/internal/workflow"
)

// Server wraps the MCP server with Stride's workflow layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	router    *workflow.Router
	runLog    runlog.Store
	logger    *slog.Logger
}

// New creates and configures an MCP server with all tools and resources.
func New(router *workflow.Router, runLog runlog.Store, logger *slog.Logger) *Server {
	s := &Server{
		router: router,
		runLog: runLog,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"stride",
		"0.1.0",
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerResources() {
	// stride://runlog/recent: the latest workflow executions.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"stride://runlog/recent",
			"Recent Workflow Executions",
			mcplib.WithResourceDescription("The most recent workflow executions with their safety verdicts"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRunLogResource,
	)
}

func (s *Server) handleRunLogResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	entries, err := s.runLog.Query(ctx, runlog.Filter{Limit: 20})
	if err != nil {
		return nil, fmt.Errorf("query run log: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serialize run log: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		IsError: true,
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
	}
}

func textResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("serialize result: %v", err))
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

// toolResult is the JSON payload returned by the workflow tools: the
// kind-tagged artifact plus the verdict and supporting evidence.
type toolResult struct {
	Artifact json.RawMessage     `json:"artifact"`
	Verdict  model.SafetyVerdict `json:"verdict"`
	Evidence []model.Evidence    `json:"evidence"`
}

func workflowToolResult(result model.WorkflowResult) *mcplib.CallToolResult {
	artifact, err := model.MarshalArtifact(result.Artifact)
	if err != nil {
		return errorResult(fmt.Sprintf("serialize artifact: %v", err))
	}
	return textResult(toolResult{
		Artifact: artifact,
		Verdict:  result.Verdict,
		Evidence: result.Evidence,
	})
}
