package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sameehj/gridbridge/pkg/grid"
	"github.com/sameehj/gridbridge/pkg/library"
	"github.com/sameehj/gridbridge/pkg/transform"
	"github.com/sameehj/gridbridge/pkg/version"
)

const serverName = "gridbridge"

// Transformer runs one transform request.
type Transformer interface {
	Transform(ctx context.Context, req transform.Request) (*transform.Result, error)
}

// Scripts is the script library view the tools need.
type Scripts interface {
	List() []*library.Script
	Get(name string) (*library.Script, bool)
}

type Server struct {
	transformer Transformer
	scripts     Scripts
	logger      *slog.Logger
	mcp         *server.MCPServer
}

func NewServer(transformer Transformer, scripts Scripts) *Server {
	s := &Server{transformer: transformer, scripts: scripts}
	s.mcp = server.NewMCPServer(serverName, version.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()
	return s
}

func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// MCPServer exposes the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Serve speaks MCP over the given streams until ctx is done or reader hits EOF.
func (s *Server) Serve(ctx context.Context, reader io.Reader, writer io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(os.Stderr, "mcp: ", log.LstdFlags))
	s.logInfo("mcp_serving", "transport", "stdio")
	return stdio.Listen(ctx, reader, writer)
}

func (s *Server) ServeStdio(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// HTTPHandler serves MCP over streamable HTTP so the gateway can mount it.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

type transformArgs struct {
	Code            string       `json:"code"`
	Script          string       `json:"script"`
	Sheets          []grid.Sheet `json:"sheets"`
	ActiveSheetName string       `json:"activeSheetName"`
	Engine          string       `json:"engine"`
	TimeoutMs       int64        `json:"timeoutMs"`
}

type scriptInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

type listScriptsArgs struct{}

func (s *Server) registerTools() {
	transformTool := mcp.NewTool("transform_sheets",
		mcp.WithDescription("Run a Starlark transform over spreadsheet sheets. Each sheet is exposed to the code as a DataFrame in dfs keyed by sheet name; the reconciled sheets are returned."),
		mcp.WithString("code", mcp.Description("Transform source. Either code or script is required.")),
		mcp.WithString("script", mcp.Description("Name of a library script to run instead of code, e.g. cleanup.star")),
		mcp.WithArray("sheets", mcp.Required(), mcp.Description("Sheets as {name, cells, columnWidths, rowHeights, formats}"),
			mcp.Items(map[string]any{"type": "object"})),
		mcp.WithString("activeSheetName", mcp.Description("Sheet the user is looking at")),
		mcp.WithString("engine", mcp.Description("Execution engine; defaults to the server default")),
		mcp.WithNumber("timeoutMs", mcp.Description("Wall-clock budget in milliseconds")),
	)
	s.mcp.AddTool(transformTool, mcp.NewTypedToolHandler(s.handleTransform))

	listTool := mcp.NewTool("list_scripts",
		mcp.WithDescription("List the transform scripts available to load() and to transform_sheets"),
	)
	s.mcp.AddTool(listTool, mcp.NewTypedToolHandler(s.handleListScripts))
}

func (s *Server) handleTransform(ctx context.Context, _ mcp.CallToolRequest, args transformArgs) (*mcp.CallToolResult, error) {
	code := args.Code
	if code == "" && args.Script != "" {
		if s.scripts == nil {
			return mcp.NewToolResultError("no script library configured"), nil
		}
		script, ok := s.scripts.Get(args.Script)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("script not found: %s", args.Script)), nil
		}
		code = script.Content
	}

	result, err := s.transformer.Transform(ctx, transform.Request{
		Code:            code,
		Sheets:          args.Sheets,
		ActiveSheetName: args.ActiveSheetName,
		Engine:          args.Engine,
		TimeoutMs:       args.TimeoutMs,
	})
	if err != nil {
		te := transform.AsError(err)
		s.logWarn("mcp_transform_failed", "kind", te.Kind)
		res := structured(te.Body())
		res.IsError = true
		return res, nil
	}
	return structured(result), nil
}

func (s *Server) handleListScripts(_ context.Context, _ mcp.CallToolRequest, _ listScriptsArgs) (*mcp.CallToolResult, error) {
	out := struct {
		Scripts []scriptInfo `json:"scripts"`
	}{Scripts: []scriptInfo{}}
	if s.scripts != nil {
		for _, script := range s.scripts.List() {
			out.Scripts = append(out.Scripts, scriptInfo{Name: script.Name, Description: script.Description, Version: script.Version})
		}
	}
	return structured(out), nil
}

// structured returns payload as structured content with its JSON text as
// the fallback for clients that only read text content.
func structured(payload any) *mcp.CallToolResult {
	text, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err))
	}
	return mcp.NewToolResultStructured(payload, string(text))
}

func (s *Server) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Server) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
