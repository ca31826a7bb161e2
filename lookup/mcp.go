package lookup

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCP transports.
const (
	TransportStreamable = "streamable-http"
	TransportSSE        = "sse"
)

// ToolCaller is the subset of an MCP client used to answer lookups.
type ToolCaller interface {
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// MCP answers lookups by calling one tool on an MCP server, passing the
// query as a single string argument.
type MCP struct {
	caller   ToolCaller
	tool     string
	argument string
}

// NewMCP creates an MCP source calling tool with the query under argument
// (default "query").
func NewMCP(caller ToolCaller, tool, argument string) *MCP {
	if argument == "" {
		argument = "query"
	}
	return &MCP{caller: caller, tool: tool, argument: argument}
}

func (m *MCP) Query(ctx context.Context, query string) (*Result, error) {
	res, err := m.caller.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      m.tool,
			Arguments: map[string]any{m.argument: query},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrToolFailed, m.tool, err)
	}

	var parts []string
	for _, content := range res.Content {
		if text, ok := mcp.AsTextContent(content); ok && text.Text != "" {
			parts = append(parts, text.Text)
		}
	}
	text := strings.Join(parts, "\n")

	if res.IsError {
		return nil, fmt.Errorf("%w: %s: %s", ErrToolFailed, m.tool, text)
	}
	if text == "" {
		text = NoResults
	}

	return &Result{
		Query:     query,
		Statement: m.tool,
		Text:      text,
		Rows:      len(parts),
	}, nil
}

// ConnectMCP opens and initializes a client for the MCP server at url. The
// ctx governs the lifetime of the transport, so pass a long-lived context.
func ConnectMCP(ctx context.Context, transport, url string) (*client.Client, error) {
	var (
		c   *client.Client
		err error
	)
	switch transport {
	case "", TransportStreamable:
		c, err = client.NewStreamableHttpClient(url)
	case TransportSSE:
		c, err = client.NewSSEMCPClient(url)
	default:
		return nil, fmt.Errorf("%w: mcp transport %s", ErrUnknownKind, transport)
	}
	if err != nil {
		return nil, fmt.Errorf("mcp %s: %w", url, err)
	}

	if err := InitializeMCP(ctx, c); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// InitializeMCP starts the client transport and performs the MCP handshake.
func InitializeMCP(ctx context.Context, c *client.Client) error {
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("mcp start: %w", err)
	}

	_, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "chatstream",
				Version: "1.0.0",
			},
		},
	})
	if err != nil {
		return fmt.Errorf("mcp initialize: %w", err)
	}
	return nil
}
