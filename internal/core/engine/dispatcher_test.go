package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ncbimcp/ncbimcp/internal/core"
)

type routedTransport struct {
	mu       sync.Mutex
	handlers map[core.Operation]func(req core.OutboundRequest) *core.RawResponse
	calls    []core.OutboundRequest
}

func (r *routedTransport) Do(_ context.Context, req core.OutboundRequest) (*core.RawResponse, error) {
	r.mu.Lock()
	r.calls = append(r.calls, req)
	handler := r.handlers[req.Operation]
	r.mu.Unlock()
	if handler == nil {
		return &core.RawResponse{StatusCode: http.StatusNotFound}, nil
	}
	return handler(req), nil
}

func (r *routedTransport) count(op core.Operation) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, call := range r.calls {
		if call.Operation == op {
			n++
		}
	}
	return n
}

func (r *routedTransport) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestDispatcher(transport Transport) *Dispatcher {
	clock := newFakeClock()
	executor, _ := newTestExecutor(transport, clock)
	sessions := NewSessionStore(time.Hour)
	sessions.Clock = clock.Now
	return &Dispatcher{Executor: executor, Sessions: sessions, Version: "1.2.3"}
}

func body(status int, text string) *core.RawResponse {
	return &core.RawResponse{StatusCode: status, Body: []byte(text), RemoteMessage: extractForTest(text)}
}

func extractForTest(text string) string {
	var doc struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(text), &doc) == nil {
		return doc.Error
	}
	return ""
}

func searchBody(count int) *core.RawResponse {
	return body(http.StatusOK, `{"esearchresult":{"count":"`+strconv.Itoa(count)+`","retmax":"0","retstart":"0","querykey":"1","webenv":"MCID_hist","idlist":[]}}`)
}

func TestDispatcherUnknownTool(t *testing.T) {
	transport := &routedTransport{}
	dispatcher := newTestDispatcher(transport)

	result, err := dispatcher.Invoke(context.Background(), "esearch_v2", core.Params{})
	require.ErrorIs(t, err, ErrUnknownTool)
	require.Nil(t, result)
	require.Zero(t, transport.total())
}

func TestDispatcherInvalidArguments(t *testing.T) {
	transport := &routedTransport{}
	dispatcher := newTestDispatcher(transport)

	_, err := dispatcher.Invoke(context.Background(), "esearch", core.Params{"db": "pubmed"})
	require.ErrorIs(t, err, ErrInvalidArguments)

	_, err = dispatcher.Invoke(context.Background(), "esearch", core.Params{"db": "pubmed", "term": "x", "retmax": "many"})
	require.ErrorIs(t, err, ErrInvalidArguments)

	_, err = dispatcher.Invoke(context.Background(), core.ToolSearchAndFetch, core.Params{"db": "pubmed", "term": "x", "retmax": 0})
	require.ErrorIs(t, err, ErrInvalidArguments)
	require.Zero(t, transport.total())
}

func TestDispatcherUnknownSessionSkipsNetwork(t *testing.T) {
	transport := &routedTransport{}
	dispatcher := newTestDispatcher(transport)

	for _, args := range []core.Params{
		{"db": "pubmed", "webenv": "MCID_unknown", "query_key": 1},
		{"db": "pubmed", "webenv": "MCID_unknown"},
	} {
		result, err := dispatcher.Invoke(context.Background(), "efetch", args)
		require.NoError(t, err)
		require.Equal(t, core.ResultSessionExpired, result.Kind())
		require.Contains(t, result.Outcome.Message, "MCID_unknown")
	}

	result, err := dispatcher.Invoke(context.Background(), "elink", core.Params{"dbfrom": "pubmed", "db": "protein", "webenv": "MCID_unknown"})
	require.NoError(t, err)
	require.Equal(t, core.ResultSessionExpired, result.Kind())
	require.Zero(t, transport.total())
}

func TestDispatcherSearchRecordsSessionForFetch(t *testing.T) {
	transport := &routedTransport{handlers: map[core.Operation]func(core.OutboundRequest) *core.RawResponse{
		core.OperationSearch: func(core.OutboundRequest) *core.RawResponse { return searchBody(42) },
		core.OperationFetch: func(req core.OutboundRequest) *core.RawResponse {
			return body(http.StatusOK, "records for "+req.Session.WebEnv+"#"+req.Session.QueryKey)
		},
	}}
	dispatcher := newTestDispatcher(transport)

	result, err := dispatcher.Invoke(context.Background(), "esearch", core.Params{"db": "PubMed", "term": "crispr", "usehistory": true})
	require.NoError(t, err)
	require.Equal(t, core.ResultSuccess, result.Kind())
	require.NotNil(t, result.Outcome.Session)
	require.Equal(t, "MCID_hist", result.Outcome.Session.WebEnv)
	require.Equal(t, 1, dispatcher.Sessions.Len())

	result, err = dispatcher.Invoke(context.Background(), "efetch", core.Params{"db": "pubmed", "webenv": "MCID_hist"})
	require.NoError(t, err)
	require.Equal(t, core.ResultSuccess, result.Kind())
	require.Equal(t, "records for MCID_hist#1", result.Outcome.Text())

	result, err = dispatcher.Invoke(context.Background(), "efetch", core.Params{"db": "pubmed", "webenv": "MCID_hist", "query_key": "7"})
	require.NoError(t, err)
	require.Equal(t, "records for MCID_hist#7", result.Outcome.Text())
}

func TestDispatcherSearchWithoutHistoryRecordsNothing(t *testing.T) {
	transport := &routedTransport{handlers: map[core.Operation]func(core.OutboundRequest) *core.RawResponse{
		core.OperationSearch: func(core.OutboundRequest) *core.RawResponse { return searchBody(3) },
	}}
	dispatcher := newTestDispatcher(transport)

	result, err := dispatcher.Invoke(context.Background(), "esearch", core.Params{"db": "pubmed", "term": "crispr"})
	require.NoError(t, err)
	require.Equal(t, core.ResultSuccess, result.Kind())
	require.Nil(t, result.Outcome.Session)
	require.Zero(t, dispatcher.Sessions.Len())
}

func TestDispatcherPostRecordsSession(t *testing.T) {
	transport := &routedTransport{handlers: map[core.Operation]func(core.OutboundRequest) *core.RawResponse{
		core.OperationPost: func(req core.OutboundRequest) *core.RawResponse {
			require.Equal(t, "1,2,3", req.Params["id"])
			return body(http.StatusOK, `<ePostResult><QueryKey>4</QueryKey><WebEnv>MCID_post</WebEnv></ePostResult>`)
		},
	}}
	dispatcher := newTestDispatcher(transport)

	result, err := dispatcher.Invoke(context.Background(), "epost", core.Params{"db": "protein", "id_list": []any{"1", "2", "3"}})
	require.NoError(t, err)
	require.Equal(t, core.ResultSuccess, result.Kind())

	session, ok := dispatcher.Sessions.Lookup("protein", "MCID_post")
	require.True(t, ok)
	require.Equal(t, "4", session.QueryKey)
}

func TestDispatcherDirectIDsBypassSessions(t *testing.T) {
	transport := &routedTransport{handlers: map[core.Operation]func(core.OutboundRequest) *core.RawResponse{
		core.OperationSummary: func(req core.OutboundRequest) *core.RawResponse {
			require.Nil(t, req.Session)
			return body(http.StatusOK, `{"result":{"uids":["`+req.Params["id"]+`"]}}`)
		},
	}}
	dispatcher := newTestDispatcher(transport)

	result, err := dispatcher.Invoke(context.Background(), "esummary", core.Params{"db": "pubmed", "id_list": []any{"123"}, "webenv": "ignored"})
	require.NoError(t, err)
	require.Equal(t, core.ResultSuccess, result.Kind())
	require.Equal(t, 1, transport.count(core.OperationSummary))
}

func TestDispatcherRemoteForgetsExpiredSession(t *testing.T) {
	transport := &routedTransport{handlers: map[core.Operation]func(core.OutboundRequest) *core.RawResponse{
		core.OperationSummary: func(core.OutboundRequest) *core.RawResponse {
			return body(http.StatusOK, `{"error":"Unable to obtain query #1"}`)
		},
	}}
	dispatcher := newTestDispatcher(transport)
	dispatcher.Sessions.Record(core.Session{Database: "pubmed", WebEnv: "MCID_old", QueryKey: "1"})

	result, err := dispatcher.Invoke(context.Background(), "esummary", core.Params{"db": "pubmed", "webenv": "MCID_old"})
	require.NoError(t, err)
	require.Equal(t, core.ResultSessionExpired, result.Kind())
	require.Zero(t, dispatcher.Sessions.Len())
}

func TestDispatcherRemoteErrorIsVerbatim(t *testing.T) {
	transport := &routedTransport{handlers: map[core.Operation]func(core.OutboundRequest) *core.RawResponse{
		core.OperationSpell: func(core.OutboundRequest) *core.RawResponse {
			return body(http.StatusBadRequest, `{"error":"Invalid db name specified: pubmd"}`)
		},
	}}
	dispatcher := newTestDispatcher(transport)

	result, err := dispatcher.Invoke(context.Background(), "espell", core.Params{"db": "pubmd", "term": "asthmaa"})
	require.NoError(t, err)
	require.Equal(t, core.ResultRemoteError, result.Kind())
	require.Equal(t, http.StatusBadRequest, result.Outcome.HTTPStatus)
	require.Equal(t, "Invalid db name specified: pubmd", result.Outcome.Message)
}

func TestSearchAndFetchPartialCompletion(t *testing.T) {
	transport := &routedTransport{handlers: map[core.Operation]func(core.OutboundRequest) *core.RawResponse{
		core.OperationSearch: func(req core.OutboundRequest) *core.RawResponse {
			require.Equal(t, "y", req.Params["usehistory"])
			require.Equal(t, "0", req.Params["retmax"])
			return searchBody(100)
		},
		core.OperationFetch: func(req core.OutboundRequest) *core.RawResponse {
			if req.Params["retstart"] == "2" {
				return &core.RawResponse{StatusCode: http.StatusServiceUnavailable}
			}
			return body(http.StatusOK, "page@"+req.Params["retstart"]+";")
		},
	}}
	dispatcher := newTestDispatcher(transport)
	dispatcher.PageSize = 2

	result, err := dispatcher.Invoke(context.Background(), core.ToolSearchAndFetch, core.Params{"db": "pubmed", "term": "crispr", "retmax": 5})
	require.NoError(t, err)
	require.Equal(t, core.ResultPartialCompletion, result.Kind())

	composite := result.Composite
	require.Equal(t, core.StatePartiallyFailed, composite.State)
	require.Equal(t, 5, composite.Total)
	require.Equal(t, 3, composite.Planned)
	require.Len(t, composite.Pages, 1)
	require.Equal(t, "page@0;", string(composite.Payload))
	require.NotNil(t, composite.Failure)
	require.Equal(t, core.OutcomeTransientFailure, composite.Failure.Kind)
	require.True(t, composite.Failure.Exhausted)

	for _, call := range transport.calls {
		if call.Operation == core.OperationFetch {
			require.NotEqual(t, "4", call.Params["retstart"], "third page must not be requested")
		}
	}
	require.Equal(t, 1+3, transport.count(core.OperationFetch))
}

func TestSearchAndFetchCompletes(t *testing.T) {
	transport := &routedTransport{handlers: map[core.Operation]func(core.OutboundRequest) *core.RawResponse{
		core.OperationSearch: func(core.OutboundRequest) *core.RawResponse { return searchBody(5) },
		core.OperationFetch: func(req core.OutboundRequest) *core.RawResponse {
			require.Equal(t, "abstract", req.Params["rettype"])
			require.Equal(t, "text", req.Params["retmode"])
			require.Equal(t, "MCID_hist", req.Session.WebEnv)
			return body(http.StatusOK, "["+req.Params["retstart"]+"+"+req.Params["retmax"]+"]")
		},
	}}
	dispatcher := newTestDispatcher(transport)
	dispatcher.PageSize = 2

	result, err := dispatcher.Invoke(context.Background(), core.ToolSearchAndFetch, core.Params{"db": "pubmed", "term": "crispr", "retmax": 50})
	require.NoError(t, err)
	require.Equal(t, core.ResultSuccess, result.Kind())
	require.Equal(t, core.StateCompleted, result.Composite.State)
	require.Equal(t, "[0+2][2+2][4+1]", string(result.Payload()))
	require.Equal(t, 5, result.Composite.Total)
	require.Equal(t, 1, dispatcher.Sessions.Len())
}

func TestSearchAndFetchDefaultLimit(t *testing.T) {
	transport := &routedTransport{handlers: map[core.Operation]func(core.OutboundRequest) *core.RawResponse{
		core.OperationSearch: func(core.OutboundRequest) *core.RawResponse { return searchBody(5000) },
		core.OperationFetch: func(req core.OutboundRequest) *core.RawResponse {
			require.Equal(t, "10", req.Params["retmax"])
			return body(http.StatusOK, "ten")
		},
	}}
	dispatcher := newTestDispatcher(transport)

	result, err := dispatcher.Invoke(context.Background(), core.ToolSearchAndFetch, core.Params{"db": "pubmed", "term": "cancer"})
	require.NoError(t, err)
	require.Equal(t, core.StateCompleted, result.Composite.State)
	require.Equal(t, 10, result.Composite.Total)
	require.Equal(t, 1, transport.count(core.OperationFetch))
}

func TestSearchAndFetchNoResults(t *testing.T) {
	transport := &routedTransport{handlers: map[core.Operation]func(core.OutboundRequest) *core.RawResponse{
		core.OperationSearch: func(core.OutboundRequest) *core.RawResponse {
			return body(http.StatusOK, `{"esearchresult":{"count":"0","retmax":"0","retstart":"0","idlist":[]}}`)
		},
	}}
	dispatcher := newTestDispatcher(transport)

	result, err := dispatcher.Invoke(context.Background(), core.ToolSearchAndFetch, core.Params{"db": "pubmed", "term": "zzzz"})
	require.NoError(t, err)
	require.Equal(t, core.ResultSuccess, result.Kind())
	require.Equal(t, core.StateCompleted, result.Composite.State)
	require.Empty(t, result.Composite.Pages)
	require.Contains(t, result.Composite.Message, "No results found")
	require.Zero(t, transport.count(core.OperationFetch))
}

func TestSearchAndFetchSearchFailure(t *testing.T) {
	transport := &routedTransport{handlers: map[core.Operation]func(core.OutboundRequest) *core.RawResponse{
		core.OperationSearch: func(core.OutboundRequest) *core.RawResponse {
			return body(http.StatusOK, `{"error":"Invalid db name specified: nope"}`)
		},
	}}
	dispatcher := newTestDispatcher(transport)

	result, err := dispatcher.Invoke(context.Background(), core.ToolSearchAndFetch, core.Params{"db": "nope", "term": "x"})
	require.NoError(t, err)
	require.Equal(t, core.StateSearchFailed, result.Composite.State)
	require.Equal(t, core.ResultRemoteError, result.Kind())
	require.Zero(t, transport.count(core.OperationFetch))
}

func TestGetDatabases(t *testing.T) {
	transport := &routedTransport{handlers: map[core.Operation]func(core.OutboundRequest) *core.RawResponse{
		core.OperationInfo: func(req core.OutboundRequest) *core.RawResponse {
			require.Equal(t, "json", req.Params["retmode"])
			return body(http.StatusOK, `{"einforesult":{"dblist":["pubmed","protein","gene"]}}`)
		},
	}}
	dispatcher := newTestDispatcher(transport)
	cache := newMemoryCache()
	dispatcher.Cache = cache

	for i := 0; i < 2; i++ {
		result, err := dispatcher.Invoke(context.Background(), core.ToolGetDatabases, nil)
		require.NoError(t, err)
		require.Equal(t, core.ResultSuccess, result.Kind())

		var decoded struct {
			Databases []string `json:"available_databases"`
			Count     int      `json:"count"`
		}
		require.NoError(t, json.Unmarshal(result.Payload(), &decoded))
		require.Equal(t, []string{"pubmed", "protein", "gene"}, decoded.Databases)
		require.Equal(t, 3, decoded.Count)
		require.Equal(t, i == 1, result.Outcome.FromCache)
	}
	require.Equal(t, 1, transport.count(core.OperationInfo))
	require.Equal(t, DefaultInfoCacheTTL, cache.ttl["einfo:_all:json"])
}

func TestServerInfo(t *testing.T) {
	dispatcher := newTestDispatcher(&routedTransport{})
	dispatcher.Sessions.Record(core.Session{Database: "pubmed", WebEnv: "MCID_1", QueryKey: "1"})

	result, err := dispatcher.Invoke(context.Background(), core.ToolServerInfo, core.Params{})
	require.NoError(t, err)
	require.Equal(t, core.ResultSuccess, result.Kind())
	require.Equal(t, "1.2.3", result.Local["version"])

	limits := result.Local["limits"].(map[string]any)
	require.Equal(t, CapacityAnonymous, limits["requests_per_second"])
	sessions := result.Local["sessions"].(map[string]any)
	require.Equal(t, 1, sessions["cached"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(result.Payload(), &decoded))
	require.Equal(t, "NCBI-MCP Server", decoded["server_name"])
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttl     map[string]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}, ttl: map[string]time.Duration{}}
}

func (m *memoryCache) GetCachedResponse(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.entries[key]
	return body, ok, nil
}

func (m *memoryCache) SetCachedResponse(_ context.Context, key string, body []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = body
	m.ttl[key] = ttl
	return nil
}
