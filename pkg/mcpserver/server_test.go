package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/fosrc/pkg/tool"
)

type shoutArgs struct {
	Text string `json:"text" jsonschema:"required,description=Text to shout"`
}

func newClient(t *testing.T) *client.Client {
	t.Helper()
	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(tool.MustFunction("shout", "Upper-case the text",
		func(_ context.Context, args shoutArgs) (string, error) {
			if args.Text == "boom" {
				return "", errors.New("backend unreachable")
			}
			return strings.ToUpper(args.Text), nil
		})))

	s, err := New(reg, "test")
	require.NoError(t, err)

	c, err := client.NewInProcessClient(s)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "test", Version: "1.0.0"}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	_, err = c.Initialize(ctx, initReq)
	require.NoError(t, err)
	return c
}

func callTool(t *testing.T, c *client.Client, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = "shout"
	req.Params.Arguments = args
	res, err := c.CallTool(context.Background(), req)
	require.NoError(t, err)
	return res
}

func text(res *mcp.CallToolResult) string {
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListTools(t *testing.T) {
	c := newClient(t)

	resp, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Tools, 1)
	assert.Equal(t, "shout", resp.Tools[0].Name)
	assert.Equal(t, "Upper-case the text", resp.Tools[0].Description)
	schema, err := json.Marshal(resp.Tools[0])
	require.NoError(t, err)
	assert.Contains(t, string(schema), `"text"`)
}

func TestCallTool(t *testing.T) {
	c := newClient(t)

	tests := []struct {
		name    string
		args    map[string]any
		want    string
		isError bool
	}{
		{"ok", map[string]any{"text": "coral"}, "CORAL", false},
		{"tool failure", map[string]any{"text": "boom"}, "backend unreachable", true},
		{"missing required", map[string]any{}, "text", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := callTool(t, c, tt.args)
			assert.Equal(t, tt.isError, res.IsError)
			assert.Contains(t, text(res), tt.want)
		})
	}
}
