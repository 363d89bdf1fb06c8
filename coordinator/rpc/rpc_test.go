package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m4xw311/trialdesk/agents"
	"github.com/m4xw311/trialdesk/coordinator"
	"github.com/m4xw311/trialdesk/ledger"
	"github.com/m4xw311/trialdesk/tools"
	"github.com/m4xw311/trialdesk/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedCapability struct {
	fn func(ctx context.Context, req agents.Request) (*agents.Result, error)
}

func (s *scriptedCapability) Run(ctx context.Context, req agents.Request) (*agents.Result, error) {
	return s.fn(ctx, req)
}

type bareProvisioner struct{}

func (bareProvisioner) Provision(context.Context, string) ([]tools.Tool, error) { return nil, nil }
func (bareProvisioner) Reset()                                                  {}

// runSession feeds the given request lines to a server wired to a real
// coordinator, waits for any launched run to finish, and returns every
// emitted JSON-RPC message. The project workspace is seeded with one
// document so stats and listings have something to report.
func runSession(t *testing.T, agent coordinator.Capability, input string) []map[string]any {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	workspaces := workspace.NewManager(t.TempDir())
	wsPath, err := workspaces.Create("rpc-test")
	require.NoError(t, err)
	project, err := store.CreateProject("rpc-test", wsPath)
	require.NoError(t, err)
	_, err = workspaces.WriteDocument("rpc-test", "siv_checklist.md", "- confirm site staff\n")
	require.NoError(t, err)

	var out bytes.Buffer
	server := New(bufio.NewReader(strings.NewReader(input)), bufio.NewWriter(&out), workspaces, "rpc-test")
	coord := coordinator.New(coordinator.Options{
		Store:       store,
		Notifier:    server,
		Provisioner: bareProvisioner{},
		Agent:       agent,
		Project:     project,
		Logger:      slog.New(slog.DiscardHandler),
	})
	server.Bind(coord)

	require.NoError(t, server.Run(context.Background(), false))
	coord.Wait()

	var messages []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var msg map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &msg), "bad line: %s", line)
		messages = append(messages, msg)
	}
	return messages
}

func responseFor(messages []map[string]any, id float64) map[string]any {
	for _, m := range messages {
		if got, ok := m["id"].(float64); ok && got == id {
			return m
		}
	}
	return nil
}

func updatesOfKind(messages []map[string]any, kind string) []map[string]any {
	var out []map[string]any
	for _, m := range messages {
		if m["method"] != "assist/update" {
			continue
		}
		params := m["params"].(map[string]any)
		update := params["update"].(map[string]any)
		if update["kind"] == kind {
			out = append(out, update)
		}
	}
	return out
}

func TestInitializeHandshake(t *testing.T) {
	messages := runSession(t, &scriptedCapability{}, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`+"\n")

	resp := responseFor(messages, 1)
	require.NotNil(t, resp)
	result := resp["result"].(map[string]any)
	assert.Equal(t, float64(1), result["protocolVersion"])
	caps := result["capabilities"].(map[string]any)
	assert.Equal(t, true, caps["plans"])
}

func TestSubmitRunsAndNotifies(t *testing.T) {
	agent := &scriptedCapability{fn: func(ctx context.Context, req agents.Request) (*agents.Result, error) {
		return &agents.Result{Text: "The consent form draft is ready."}, nil
	}}
	messages := runSession(t, agent,
		`{"jsonrpc":"2.0","id":1,"method":"assist/submit","params":{"prompt":"draft a consent form"}}`+"\n")

	resp := responseFor(messages, 1)
	require.NotNil(t, resp)
	assert.Nil(t, resp["error"])

	// The final answer arrives as a message update, after the run
	// completes and possibly after the read loop has exited.
	found := false
	for _, u := range updatesOfKind(messages, "message") {
		if strings.Contains(u["text"].(string), "consent form draft") {
			found = true
		}
	}
	assert.True(t, found, "expected the agent's answer among updates: %v", messages)

	// Status updates walked through launching and back to idle.
	statuses := updatesOfKind(messages, "status")
	require.NotEmpty(t, statuses)
	assert.Equal(t, "idle", statuses[len(statuses)-1]["state"])
}

func TestSubmitWithoutPromptIsInvalidParams(t *testing.T) {
	messages := runSession(t, &scriptedCapability{},
		`{"jsonrpc":"2.0","id":7,"method":"assist/submit","params":{}}`+"\n")

	resp := responseFor(messages, 7)
	require.NotNil(t, resp)
	errObj := resp["error"].(map[string]any)
	assert.Equal(t, float64(-32602), errObj["code"])
}

func TestUnknownMethod(t *testing.T) {
	messages := runSession(t, &scriptedCapability{},
		`{"jsonrpc":"2.0","id":3,"method":"assist/frobnicate"}`+"\n")

	resp := responseFor(messages, 3)
	require.NotNil(t, resp)
	errObj := resp["error"].(map[string]any)
	assert.Equal(t, float64(-32601), errObj["code"])
}

func TestMalformedLineIsParseError(t *testing.T) {
	messages := runSession(t, &scriptedCapability{}, "this is not json\n")

	require.NotEmpty(t, messages)
	errObj := messages[0]["error"].(map[string]any)
	assert.Equal(t, float64(-32700), errObj["code"])
}

func TestStatsReportsWorkspaceContents(t *testing.T) {
	messages := runSession(t, &scriptedCapability{},
		`{"jsonrpc":"2.0","id":5,"method":"assist/stats"}`+"\n")

	resp := responseFor(messages, 5)
	require.NotNil(t, resp)
	result := resp["result"].(map[string]any)
	assert.Equal(t, float64(1), result["documents"])
	assert.Equal(t, float64(0), result["drafts"])
	assert.Greater(t, result["totalSize"].(float64), float64(0))
}

func TestDocumentsListsWorkspaceFiles(t *testing.T) {
	messages := runSession(t, &scriptedCapability{},
		`{"jsonrpc":"2.0","id":6,"method":"assist/documents"}`+"\n")

	resp := responseFor(messages, 6)
	require.NotNil(t, resp)
	result := resp["result"].(map[string]any)
	documents := result["documents"].([]any)
	require.Len(t, documents, 1)
	doc := documents[0].(map[string]any)
	assert.Equal(t, "siv_checklist.md", doc["name"])
	assert.Empty(t, result["drafts"])
}

func TestApproveWithoutProposalReachesGate(t *testing.T) {
	// An approve with no plan proposed and no gate wait outstanding is a
	// quiet no-op with a normal response.
	messages := runSession(t, &scriptedCapability{},
		`{"jsonrpc":"2.0","id":4,"method":"assist/approve","params":{"approved":true,"notes":"fine"}}`+"\n")

	resp := responseFor(messages, 4)
	require.NotNil(t, resp)
	assert.Nil(t, resp["error"])
}
