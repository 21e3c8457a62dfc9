package runtime

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codex-k8s/tool-relay/internal/protocol"
)

// MCPServer exposes the capability table as MCP tools. Calls run through the
// same execution units as correlated requests.
func (t *Table) MCPServer(name, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: version,
	}, nil)

	for _, info := range t.Tools() {
		toolName := info.Name
		mcp.AddTool(server, &mcp.Tool{
			Name:        toolName,
			Description: info.Description,
			InputSchema: info.InputSchema,
		}, func(ctx context.Context, _ *mcp.CallToolRequest, input map[string]any) (*mcp.CallToolResult, protocol.ToolResult, error) {
			res := t.Invoke(ctx, protocol.InvocationRequest{ToolName: toolName, Arguments: input})
			if res.Failed() {
				return nil, protocol.ToolResult{}, errors.New(res.Error)
			}
			return nil, res, nil
		})
	}
	return server
}
