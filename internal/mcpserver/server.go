// Package mcpserver exposes the tool catalog over the Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ncbimcp/ncbimcp/internal/core"
	"github.com/ncbimcp/ncbimcp/internal/core/engine"
	apperrors "github.com/ncbimcp/ncbimcp/internal/errors"
	"github.com/ncbimcp/ncbimcp/internal/metrics"
	"github.com/ncbimcp/ncbimcp/internal/tools"
)

// ServerName is advertised in the MCP initialize handshake.
const ServerName = "ncbi-mcp"

// Invoker runs a named tool. The engine Dispatcher implements it.
type Invoker interface {
	Invoke(ctx context.Context, name string, args core.Params) (*core.Result, error)
}

// Logger is the subset of the gofulmen logger used here.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
}

// Server registers every catalog tool on an MCP server.
type Server struct {
	invoker Invoker
	server  *mcp.Server
	logger  Logger
}

// New builds the MCP server for the full catalog.
func New(invoker Invoker, version string, logger Logger) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{
		invoker: invoker,
		server:  mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil),
		logger:  logger,
	}
	for _, tool := range tools.Catalog() {
		s.server.AddTool(toolDefinition(tool), s.handler(tool.Name))
	}
	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcp.Server {
	return s.server
}

// RunStdio serves one client over stdin/stdout until ctx is done or the
// client disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler serves the streamable HTTP transport.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

func toolDefinition(tool tools.Tool) *mcp.Tool {
	return &mcp.Tool{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: tool.InputSchema(),
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint:   true,
			IdempotentHint: true,
		},
	}
}

func (s *Server) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := decodeArguments(req)
		if err != nil {
			return s.respond(name, time.Now(), PresentError(ctx, name, err)), nil
		}
		return s.Call(ctx, name, args), nil
	}
}

// Call invokes a tool and renders the MCP result. Failures are reported
// in-band with IsError set, never as protocol errors.
func (s *Server) Call(ctx context.Context, name string, args core.Params) *mcp.CallToolResult {
	started := time.Now()
	s.logDebug("tool call", zap.String("tool", name))

	result, err := s.invoker.Invoke(ctx, name, args)
	if err != nil {
		return s.respond(name, started, PresentError(ctx, name, err))
	}
	return s.respond(name, started, Present(ctx, result))
}

func (s *Server) respond(name string, started time.Time, p Presentation) *mcp.CallToolResult {
	metrics.RecordToolCall(name, p.Kind, time.Since(started))
	if !p.IsError() {
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: p.Text}}}
	}

	metrics.RecordError(p.Envelope.Code, 0)
	metrics.RecordErrorByEndpoint(name, p.Envelope.Code)
	apperrors.LogEnvelope(p.Envelope, zap.String("tool", name))

	content := []mcp.Content{&mcp.TextContent{Text: p.ErrorJSON()}}
	if p.Partial != "" {
		content = append(content, &mcp.TextContent{Text: p.Partial})
	}
	return &mcp.CallToolResult{Content: content, IsError: true}
}

func decodeArguments(req *mcp.CallToolRequest) (core.Params, error) {
	args := core.Params{}
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return nil, fmt.Errorf("%w: arguments must be a JSON object: %w", engine.ErrInvalidArguments, err)
	}
	return args, nil
}

func (s *Server) logDebug(msg string, fields ...zap.Field) {
	if s.logger != nil {
		s.logger.Debug(msg, fields...)
	}
}
