package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncbimcp/ncbimcp/internal/core"
	"github.com/ncbimcp/ncbimcp/internal/core/engine"
	apperrors "github.com/ncbimcp/ncbimcp/internal/errors"
	"github.com/ncbimcp/ncbimcp/internal/tools"
)

type stubInvoker struct {
	result *core.Result
	err    error

	calls []string
	args  []core.Params
}

func (s *stubInvoker) Invoke(_ context.Context, name string, args core.Params) (*core.Result, error) {
	s.calls = append(s.calls, name)
	s.args = append(s.args, args)
	return s.result, s.err
}

func textOf(t *testing.T, content mcp.Content) string {
	t.Helper()
	text, ok := content.(*mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", content)
	return text.Text
}

func errorBody(t *testing.T, res *mcp.CallToolResult) apperrors.ErrorDetail {
	t.Helper()
	require.True(t, res.IsError)
	require.NotEmpty(t, res.Content)
	var detail apperrors.ErrorDetail
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res.Content[0])), &detail))
	return detail
}

func TestCallSuccessReturnsPayload(t *testing.T) {
	invoker := &stubInvoker{result: &core.Result{
		Tool:    "efetch",
		Outcome: &core.Outcome{Kind: core.OutcomeSuccess, Payload: []byte("PMID- 1\nTI  - A title")},
	}}
	srv := New(invoker, "1.0.0", nil)

	res := srv.Call(context.Background(), "efetch", core.Params{"db": "pubmed", "id_list": []any{"1"}})
	assert.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	assert.Equal(t, "PMID- 1\nTI  - A title", textOf(t, res.Content[0]))
	assert.Equal(t, []string{"efetch"}, invoker.calls)
}

func TestCallRemoteErrorKeepsMessage(t *testing.T) {
	invoker := &stubInvoker{result: &core.Result{
		Tool:    "esearch",
		Outcome: &core.Outcome{Kind: core.OutcomeRemoteError, Operation: core.OperationSearch, Message: "Invalid db name specified: pubmedd", HTTPStatus: 200},
	}}
	srv := New(invoker, "", nil)

	detail := errorBody(t, srv.Call(context.Background(), "esearch", core.Params{"db": "pubmedd", "term": "x"}))
	assert.Equal(t, apperrors.CodeRemoteError, detail.Code)
	assert.Equal(t, "Invalid db name specified: pubmedd", detail.Message)
	assert.Equal(t, "esearch", detail.Details["operation"])
}

func TestCallPartialCompletionIncludesRecords(t *testing.T) {
	failure := core.Outcome{Kind: core.OutcomeTransientFailure, Operation: core.OperationFetch, Reason: "server error: 503 Service Unavailable"}
	invoker := &stubInvoker{result: &core.Result{
		Tool: core.ToolSearchAndFetch,
		Composite: &core.CompositeOutcome{
			State:   core.StatePartiallyFailed,
			Query:   "crispr",
			Found:   100,
			Planned: 3,
			Total:   5,
			Pages:   []core.Outcome{{Kind: core.OutcomeSuccess}},
			Failure: &failure,
			Payload: []byte("page-one"),
			Message: "fetched 1 of 3 pages; page 2 failed: server error: 503 Service Unavailable",
		},
	}}
	srv := New(invoker, "", nil)

	res := srv.Call(context.Background(), core.ToolSearchAndFetch, core.Params{"db": "pubmed", "term": "crispr"})
	detail := errorBody(t, res)
	assert.Equal(t, apperrors.CodePartialCompletion, detail.Code)
	require.Len(t, res.Content, 2)
	partial := textOf(t, res.Content[1])
	assert.Contains(t, partial, "Search Results for: crispr")
	assert.Contains(t, partial, "Total found: 100")
	assert.Contains(t, partial, "Returned: 2")
	assert.Contains(t, partial, "page-one")
}

func TestCallCompletedComposite(t *testing.T) {
	invoker := &stubInvoker{result: &core.Result{
		Tool: core.ToolSearchAndFetch,
		Composite: &core.CompositeOutcome{
			State:   core.StateCompleted,
			Query:   "brca1",
			Found:   42,
			Planned: 1,
			Total:   10,
			Pages:   []core.Outcome{{Kind: core.OutcomeSuccess}},
			Payload: []byte("records"),
		},
	}}
	srv := New(invoker, "", nil)

	res := srv.Call(context.Background(), core.ToolSearchAndFetch, core.Params{"db": "pubmed", "term": "brca1"})
	require.False(t, res.IsError)
	text := textOf(t, res.Content[0])
	assert.Equal(t, "Search Results for: brca1\nTotal found: 42\nReturned: 10\n"+separator+"\nrecords", text)
}

func TestCallNoResults(t *testing.T) {
	invoker := &stubInvoker{result: &core.Result{
		Tool: core.ToolSearchAndFetch,
		Composite: &core.CompositeOutcome{
			State:   core.StateCompleted,
			Query:   "zzzz",
			Message: "No results found for query: zzzz",
		},
	}}
	srv := New(invoker, "", nil)

	res := srv.Call(context.Background(), core.ToolSearchAndFetch, core.Params{"db": "pubmed", "term": "zzzz"})
	require.False(t, res.IsError)
	assert.Equal(t, "No results found for query: zzzz", textOf(t, res.Content[0]))
}

func TestCallInvokeErrors(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("%w: eblast", engine.ErrUnknownTool), apperrors.CodeUnknownTool},
		{fmt.Errorf("%w: missing db", engine.ErrInvalidArguments), apperrors.CodeInvalidInput},
		{fmt.Errorf("unexpected"), apperrors.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			srv := New(&stubInvoker{err: tt.err}, "", nil)
			detail := errorBody(t, srv.Call(context.Background(), "efetch", nil))
			assert.Equal(t, tt.code, detail.Code)
		})
	}
}

func TestDecodeArguments(t *testing.T) {
	args, err := decodeArguments(&mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{
		Arguments: json.RawMessage(`{"db":"pubmed","retmax":5,"id_list":["1","2"]}`),
	}})
	require.NoError(t, err)
	assert.Equal(t, "pubmed", args.String("db"))
	n, err := args.Int("retmax", 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []string{"1", "2"}, args.List("id_list"))

	_, err = decodeArguments(&mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{
		Arguments: json.RawMessage(`[1,2]`),
	}})
	require.ErrorIs(t, err, engine.ErrInvalidArguments)

	empty, err := decodeArguments(&mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{}})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestToolsOverInMemoryTransport(t *testing.T) {
	ctx := context.Background()
	invoker := &stubInvoker{result: &core.Result{
		Tool:    "espell",
		Outcome: &core.Outcome{Kind: core.OutcomeSuccess, Payload: []byte("<CorrectedQuery>asthma</CorrectedQuery>")},
	}}
	srv := New(invoker, "test", nil)

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := srv.MCP().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer func() { _ = serverSession.Close() }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	listed, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	names := make([]string, 0, len(listed.Tools))
	for _, tool := range listed.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, tools.Names(), names)

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "espell",
		Arguments: map[string]any{"db": "pubmed", "term": "asthmaa"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "<CorrectedQuery>asthma</CorrectedQuery>", textOf(t, res.Content[0]))
	require.Len(t, invoker.args, 1)
	assert.Equal(t, "asthmaa", invoker.args[0].String("term"))
}

func TestHTTPHandler(t *testing.T) {
	srv := New(&stubInvoker{}, "", nil)
	var handler http.Handler = srv.HTTPHandler()
	assert.NotNil(t, handler)
}
