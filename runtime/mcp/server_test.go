package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveLines runs a server over the given request lines and returns its responses.
func serveLines(t *testing.T, srv *Server, lines ...string) []JSONRPCMessage {
	t.Helper()
	out := &bytes.Buffer{}
	err := srv.Serve(context.Background(), strings.NewReader(strings.Join(lines, "\n")+"\n"), out)
	require.NoError(t, err)

	var msgs []JSONRPCMessage
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var msg JSONRPCMessage
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &msg))
		msgs = append(msgs, msg)
	}
	return msgs
}

func TestServer_ParseErrorAndRecovery(t *testing.T) {
	msgs := serveLines(t, echoServer(),
		`{not json`,
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
	)
	require.Len(t, msgs, 2)

	require.NotNil(t, msgs[0].Error)
	assert.Equal(t, CodeParseError, msgs[0].Error.Code)

	assert.Nil(t, msgs[1].Error)
	var list ToolsListResponse
	require.NoError(t, json.Unmarshal(msgs[1].Result, &list))
	assert.Len(t, list.Tools, 2)
}

func TestServer_ParseErrorCarriesNullID(t *testing.T) {
	out := &bytes.Buffer{}
	err := echoServer().Serve(context.Background(), strings.NewReader("{not json\n"), out)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &raw))
	id, ok := raw["id"]
	require.True(t, ok, "parse error response must carry an id member")
	assert.Equal(t, "null", string(id))
	assert.Contains(t, string(raw["error"]), `"code":-32700`)
}

func TestServer_IgnoresNotifications(t *testing.T) {
	msgs := serveLines(t, echoServer(),
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":7,"method":"ping"}`,
	)
	require.Len(t, msgs, 1)
	assert.Equal(t, float64(7), msgs[0].ID)
	assert.JSONEq(t, `{}`, string(msgs[0].Result))
}

func TestServer_InvalidRequests(t *testing.T) {
	msgs := serveLines(t, echoServer(),
		`{"jsonrpc":"1.0","id":1,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":2,"method":"prompts/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"arguments":{}}}`,
	)
	require.Len(t, msgs, 3)

	codes := map[float64]int{}
	for _, m := range msgs {
		require.NotNil(t, m.Error)
		codes[m.ID.(float64)] = m.Error.Code
	}
	assert.Equal(t, CodeInvalidRequest, codes[1])
	assert.Equal(t, CodeMethodNotFound, codes[2])
	assert.Equal(t, CodeInvalidParams, codes[3])
}

func TestServer_InitializeAdvertisesTools(t *testing.T) {
	srv := NewServer("hk-weather", "0.1.0", WithInstructions("Ask about Hong Kong weather"))
	msgs := serveLines(t, srv, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	require.Len(t, msgs, 1)

	var resp InitializeResponse
	require.NoError(t, json.Unmarshal(msgs[0].Result, &resp))
	assert.Equal(t, ProtocolVersion, resp.ProtocolVersion)
	assert.Equal(t, "hk-weather", resp.ServerInfo.Name)
	assert.Equal(t, "Ask about Hong Kong weather", resp.Instructions)
	assert.NotNil(t, resp.Capabilities.Tools)
}

func TestServer_HandlerProtocolErrorAndPanic(t *testing.T) {
	srv := NewServer("s", "1")
	srv.AddTool(Tool{Name: "strict"}, func(context.Context, json.RawMessage) (*ToolCallResponse, error) {
		return nil, &JSONRPCError{Code: CodeInvalidParams, Message: "bad days"}
	})
	srv.AddTool(Tool{Name: "boom"}, func(context.Context, json.RawMessage) (*ToolCallResponse, error) {
		panic("unexpected")
	})

	msgs := serveLines(t, srv,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"strict","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"boom"}}`,
	)
	require.Len(t, msgs, 2)

	codes := map[float64]int{}
	for _, m := range msgs {
		require.NotNil(t, m.Error)
		codes[m.ID.(float64)] = m.Error.Code
	}
	assert.Equal(t, CodeInvalidParams, codes[1])
	assert.Equal(t, CodeInternalError, codes[2])
}

func TestServer_AddToolReplaces(t *testing.T) {
	srv := NewServer("s", "1")
	srv.AddTool(Tool{Name: "a", Description: "first"}, nil)
	srv.AddTool(Tool{Name: "b"}, nil)
	srv.AddTool(Tool{Name: "a", Description: "second"}, nil)

	require.Len(t, srv.tools, 2)
	assert.Equal(t, "a", srv.tools[0].Name)
	assert.Equal(t, "second", srv.tools[0].Description)
}
