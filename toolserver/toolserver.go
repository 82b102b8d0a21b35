// Package toolserver publishes the lookup tools as a Model Context Protocol
// server so other agents can use them without the chat front end.
package toolserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/dshills/multitool-chat/graph/tool"
)

// QueryArgs is the input of every published tool.
type QueryArgs struct {
	Query string `json:"query" jsonschema:"the search query"`
}

// New returns an MCP server exposing tools under their own names.
func New(tools []tool.Tool, version string, logger *zap.Logger) *mcp.Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	server := mcp.NewServer(&mcp.Implementation{Name: "multitool-chat", Version: version}, nil)
	for _, t := range tools {
		desc := t.Name()
		if d, ok := t.(tool.Describer); ok && d.Description() != "" {
			desc = d.Description()
		}
		mcp.AddTool(server, &mcp.Tool{Name: t.Name(), Description: desc}, handler(t, logger))
	}
	return server
}

// Serve runs the server over stdin/stdout until ctx is done or the client
// disconnects.
func Serve(ctx context.Context, server *mcp.Server) error {
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("tool server: %w", err)
	}
	return nil
}

// handler adapts t. Tool failures are reported to the client as error
// results rather than protocol errors.
func handler(t tool.Tool, logger *zap.Logger) mcp.ToolHandlerFor[QueryArgs, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, args QueryArgs) (*mcp.CallToolResult, any, error) {
		out, err := t.Call(ctx, map[string]interface{}{"query": args.Query})
		if err != nil {
			logger.Warn("tool call failed", zap.String("tool", t.Name()), zap.Error(err))
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
			}, nil, nil
		}

		logger.Debug("tool call", zap.String("tool", t.Name()))
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: tool.ResultText(out)}},
		}, nil, nil
	}
}
