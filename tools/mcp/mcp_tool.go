package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/m4xw311/trialdesk/errors"
	"github.com/m4xw311/trialdesk/tools"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// stderrTail keeps the last portion of a server's stderr so startup
// failures carry the subprocess diagnostics.
type stderrTail struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

const stderrTailLimit = 4096

func (s *stderrTail) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Write(p)
	if s.buf.Len() > stderrTailLimit {
		data := s.buf.Bytes()
		trimmed := make([]byte, stderrTailLimit)
		copy(trimmed, data[len(data)-stderrTailLimit:])
		s.buf.Reset()
		s.buf.Write(trimmed)
	}
	return len(p), nil
}

func (s *stderrTail) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.TrimSpace(s.buf.String())
}

// MCPClient manages the connection to a single MCP server subprocess.
type MCPClient struct {
	Name   string
	cmd    *exec.Cmd
	conn   *mcpsdk.ClientSession
	stderr *stderrTail
	tools  map[string]*MCPTool
}

// NewMCPClient starts the MCP server subprocess, connects over stdio and
// discovers the tools it provides. The context deadline bounds the whole
// startup, including tool discovery; a server that does not come up in
// time is killed and the error reports its captured stderr.
func NewMCPClient(ctx context.Context, name, command string, args []string, env []string) (*MCPClient, error) {
	cmd := exec.Command(command, args...)
	if len(env) > 0 {
		cmd.Env = env
	}
	tail := &stderrTail{}
	cmd.Stderr = tail

	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "trialdesk", Version: "v1.0.0"}, nil)
	conn, err := mcpClient.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		return nil, startupError(err, name, tail)
	}
	client := &MCPClient{
		Name:   name,
		cmd:    cmd,
		conn:   conn,
		stderr: tail,
		tools:  make(map[string]*MCPTool),
	}

	toolListParams := &mcpsdk.ListToolsParams{}
	for {
		toolList, err := conn.ListTools(ctx, toolListParams)
		if err != nil {
			client.Stop()
			return nil, startupError(err, name, tail)
		}

		for _, t := range toolList.Tools {
			client.tools[t.Name] = &MCPTool{
				serverName:  name,
				toolName:    t.Name,
				description: t.Description,
				schema:      schemaToMap(t.InputSchema),
				client:      client,
			}
		}

		if toolList.NextCursor == "" {
			break
		}
		toolListParams.Cursor = toolList.NextCursor
	}

	slog.Debug("mcp server ready", "server", name, "tools", len(client.tools))
	return client, nil
}

func startupError(err error, name string, tail *stderrTail) error {
	if diag := tail.String(); diag != "" {
		return errors.Wrapf(err, "failed to start MCP server '%s' (stderr: %s)", name, diag)
	}
	return errors.Wrapf(err, "failed to start MCP server '%s'", name)
}

// schemaToMap converts the SDK's schema representation into the plain map
// the tools.Tool interface exposes.
func schemaToMap(schema any) map[string]interface{} {
	if schema == nil {
		return nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// GetTool returns a specific tool provided by this MCP server by name.
func (c *MCPClient) GetTool(toolName string) (*MCPTool, bool) {
	tool, ok := c.tools[toolName]
	return tool, ok
}

// Tools returns every discovered tool in name order.
func (c *MCPClient) Tools() []tools.Tool {
	names := make([]string, 0, len(c.tools))
	for name := range c.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	ts := make([]tools.Tool, 0, len(names))
	for _, name := range names {
		ts = append(ts, c.tools[name])
	}
	return ts
}

// Stop closes the connection and terminates the server subprocess.
func (c *MCPClient) Stop() error {
	if c.conn != nil {
		c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		slog.Debug("terminating mcp server", "server", c.Name)
		return c.cmd.Process.Kill()
	}
	return nil
}

// MCPTool is a tool exposed by an external MCP server. It satisfies the
// tools.Tool interface from the parent package.
type MCPTool struct {
	serverName  string
	toolName    string
	description string
	schema      map[string]interface{}
	client      *MCPClient
}

func (t *MCPTool) Name() string                   { return t.toolName }
func (t *MCPTool) Description() string            { return t.description }
func (t *MCPTool) Schema() map[string]interface{} { return t.schema }

// Execute sends the call to the MCP server and concatenates the text
// content of the result.
func (t *MCPTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	result, err := t.client.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.toolName,
		Arguments: args,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s' on server '%s'", t.toolName, t.serverName)
	}
	var op strings.Builder
	for _, c := range result.Content {
		if text, ok := c.(*mcpsdk.TextContent); ok {
			op.WriteString(text.Text)
		}
	}
	if result.IsError {
		return "", errors.New("tool '%s' reported an error: %s", t.toolName, op.String())
	}
	return op.String(), nil
}
