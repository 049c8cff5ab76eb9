// Package mcpserver exposes the template engine as Model Context Protocol
// tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dshills/promptwizard/internal/engine"
	"github.com/dshills/promptwizard/internal/logger"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

type Config struct {
	Version string
}

type Server struct {
	server *server.MCPServer
	config Config
	log    *logger.Logger
}

func NewServer(cfg Config, log *logger.Logger) *Server {
	s := &Server{
		server: server.NewMCPServer("promptwizard", cfg.Version),
		config: cfg,
		log:    log.With("component", "mcp"),
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.server.AddTool(mcp.Tool{
		Name:        "generate_template",
		Description: "Builds a prompt template from a goal and optional clarifying answers",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"goal": map[string]any{
					"type":        "string",
					"description": "What the prompt should accomplish",
				},
				"answers": map[string]any{
					"type":        "object",
					"description": "Clarifying answers keyed by question id (context, requirements, format); other keys are listed as additional information",
					"additionalProperties": map[string]any{
						"type": "string",
					},
				},
			},
			Required: []string{"goal"},
		},
	}, s.handleGenerateTemplate)

	s.server.AddTool(mcp.Tool{
		Name:        "extract_variables",
		Description: "Lists the [NAME] variable markers in a text in order of appearance",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"text": map[string]any{
					"type":        "string",
					"description": "Template text to scan",
				},
			},
			Required: []string{"text"},
		},
	}, s.handleExtractVariables)

	s.server.AddTool(mcp.Tool{
		Name:        "resolve_prompt",
		Description: "Substitutes variable values into a template and reports the variables left unresolved",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"template": map[string]any{
					"type":        "string",
					"description": "Template containing [NAME] markers",
				},
				"values": map[string]any{
					"type":        "object",
					"description": "Values keyed by variable name",
					"additionalProperties": map[string]any{
						"type": "string",
					},
				},
			},
			Required: []string{"template"},
		},
	}, s.handleResolvePrompt)
}

func (s *Server) handleGenerateTemplate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Goal    string          `json:"goal"`
		Answers *engine.Answers `json:"answers,omitempty"`
	}
	if err := request.BindArguments(&params); err != nil {
		return errorResult("Error parsing arguments: %v", err), nil
	}
	goal := strings.TrimSpace(params.Goal)
	if goal == "" {
		return errorResult("'goal' must be provided"), nil
	}

	tmpl, fellBack := engine.SafeGenerate(goal, params.Answers)
	return jsonResult(map[string]any{
		"template":      tmpl,
		"variables":     engine.ExtractVariables(tmpl),
		"used_fallback": fellBack,
	}), nil
}

func (s *Server) handleExtractVariables(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Text string `json:"text"`
	}
	if err := request.BindArguments(&params); err != nil {
		return errorResult("Error parsing arguments: %v", err), nil
	}
	return jsonResult(map[string]any{
		"variables": engine.ExtractVariables(params.Text),
	}), nil
}

func (s *Server) handleResolvePrompt(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Template string            `json:"template"`
		Values   map[string]string `json:"values,omitempty"`
	}
	if err := request.BindArguments(&params); err != nil {
		return errorResult("Error parsing arguments: %v", err), nil
	}

	vars := engine.ExtractVariables(params.Template)
	unresolved := engine.Unresolved(vars, params.Values)
	if unresolved == nil {
		unresolved = []string{}
	}
	return jsonResult(map[string]any{
		"resolved":   engine.Resolve(params.Template, vars, params.Values),
		"unresolved": unresolved,
	}), nil
}

func jsonResult(result map[string]any) *mcp.CallToolResult {
	resultJSON, _ := json.MarshalIndent(result, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: string(resultJSON)},
		},
		StructuredContent: result,
	}
}

func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: fmt.Sprintf(format, args...)},
		},
		IsError: true,
	}
}

// Listen serves MCP over in/out until ctx is done or the input closes.
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.server)
	stdio.SetErrorLogger(zap.NewStdLog(s.log.SugaredLogger.Desugar()))

	s.log.Info("starting MCP server", "version", s.config.Version)
	err := stdio.Listen(ctx, in, out)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	s.log.Info("MCP server stopped")
	return nil
}
