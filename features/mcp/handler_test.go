package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"webchat/features/site"
	"webchat/internal/grounding"
	"webchat/internal/retrieval"
)

type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Retrieve(ctx context.Context, url, query string, k int) ([]retrieval.RetrievedChunk, error) {
	args := m.Called(ctx, url, query, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]retrieval.RetrievedChunk), args.Error(1)
}

func (m *MockRetriever) Indexed(ctx context.Context, url string) (bool, error) {
	args := m.Called(ctx, url)
	return args.Bool(0), args.Error(1)
}

type MockSiteLister struct {
	mock.Mock
}

func (m *MockSiteLister) List(ctx context.Context) ([]site.Site, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]site.Site), args.Error(1)
}

func callRequest(t *testing.T, name string, args interface{}) JSONRPCRequest {
	raw, err := json.Marshal(map[string]interface{}{"name": name, "arguments": args})
	require.NoError(t, err)
	return JSONRPCRequest{JSONRPC: "2.0", Method: "tools/call", Params: raw, ID: 7}
}

func resultText(t *testing.T, resp *JSONRPCResponse) (string, bool) {
	t.Helper()
	require.NotNil(t, resp)
	res, ok := resp.Result.(ToolResult)
	require.True(t, ok, "unexpected result %#v", resp)
	require.Len(t, res.Content, 1)
	return res.Content[0].Text, res.IsError
}

func TestProcessRequest_Protocol(t *testing.T) {
	h := NewHandler(new(MockRetriever), new(MockSiteLister))
	ctx := context.Background()

	resp := h.processRequest(ctx, "", JSONRPCRequest{Method: "initialize", ID: 1})
	require.NotNil(t, resp)
	result := resp.Result.(map[string]interface{})
	assert.Equal(t, "2024-11-05", result["protocolVersion"])

	assert.Nil(t, h.processRequest(ctx, "", JSONRPCRequest{Method: "notifications/initialized"}))

	resp = h.processRequest(ctx, "", JSONRPCRequest{Method: "tools/list", ID: 2})
	list := resp.Result.(ListToolsResult)
	require.Len(t, list.Tools, 2)
	assert.Equal(t, grounding.ToolName, list.Tools[0].Name)
	assert.Equal(t, listSitesTool, list.Tools[1].Name)

	resp = h.processRequest(ctx, "", JSONRPCRequest{Method: "resources/list", ID: 3})
	assert.Equal(t, ErrMethodNotFound, resp.Error.(map[string]interface{})["code"])
}

func TestProcessRequest_SearchWebsite(t *testing.T) {
	ctx := context.Background()
	score := 0.83

	t.Run("Url argument", func(t *testing.T) {
		r := new(MockRetriever)
		r.On("Retrieve", mock.Anything, "https://go.dev", "gopher", 3).Return([]retrieval.RetrievedChunk{
			{ChunkID: 1, Text: "The Go gopher.", SourceURL: "https://go.dev", Score: &score},
		}, nil)
		h := NewHandler(r, nil)

		text, isErr := resultText(t, h.processRequest(ctx, "", callRequest(t, grounding.ToolName, map[string]interface{}{
			"query": "gopher", "url": "go.dev/", "k": 3,
		})))
		assert.False(t, isErr)
		assert.Equal(t, "[Chunk 1] (score: 0.83)\nThe Go gopher.", text)
	})

	t.Run("Session binding", func(t *testing.T) {
		r := new(MockRetriever)
		r.On("Retrieve", mock.Anything, "https://example.com", "q", 0).Return(nil, nil)
		r.On("Indexed", mock.Anything, "https://example.com").Return(true, nil)
		h := NewHandler(r, nil)

		text, _ := resultText(t, h.processRequest(ctx, "https://example.com", callRequest(t, grounding.ToolName, map[string]interface{}{"query": "q"})))
		assert.Equal(t, grounding.NoEvidenceMessage, text)
	})

	t.Run("Unbound", func(t *testing.T) {
		h := NewHandler(new(MockRetriever), nil)
		text, _ := resultText(t, h.processRequest(ctx, "", callRequest(t, grounding.ToolName, map[string]interface{}{"query": "q"})))
		assert.Equal(t, grounding.UnboundMessage, text)
	})

	t.Run("Missing query", func(t *testing.T) {
		h := NewHandler(new(MockRetriever), nil)
		resp := h.processRequest(ctx, "https://example.com", callRequest(t, grounding.ToolName, map[string]interface{}{}))
		assert.Equal(t, ErrInvalidParams, resp.Error.(map[string]interface{})["code"])
	})

	t.Run("Unknown tool", func(t *testing.T) {
		h := NewHandler(new(MockRetriever), nil)
		resp := h.processRequest(ctx, "", callRequest(t, "read_page", map[string]interface{}{}))
		assert.Equal(t, ErrMethodNotFound, resp.Error.(map[string]interface{})["code"])
	})
}

func TestProcessRequest_ListSites(t *testing.T) {
	ctx := context.Background()

	t.Run("Sites", func(t *testing.T) {
		l := new(MockSiteLister)
		l.On("List", mock.Anything).Return([]site.Site{
			{URL: "https://example.com", Title: "Example", NumChunks: 4, Status: site.StatusCompleted},
		}, nil)
		h := NewHandler(nil, l)

		text, isErr := resultText(t, h.processRequest(ctx, "", callRequest(t, listSitesTool, map[string]interface{}{})))
		assert.False(t, isErr)
		assert.Contains(t, text, `"url": "https://example.com"`)
		assert.Contains(t, text, `"num_chunks": 4`)
	})

	t.Run("Empty", func(t *testing.T) {
		l := new(MockSiteLister)
		l.On("List", mock.Anything).Return(nil, nil)
		text, _ := resultText(t, NewHandler(nil, l).processRequest(ctx, "", callRequest(t, listSitesTool, nil)))
		assert.Equal(t, "No websites have been ingested yet.", text)
	})

	t.Run("Error", func(t *testing.T) {
		l := new(MockSiteLister)
		l.On("List", mock.Anything).Return(nil, assert.AnError)
		_, isErr := resultText(t, NewHandler(nil, l).processRequest(ctx, "", callRequest(t, listSitesTool, nil)))
		assert.True(t, isErr)
	})
}

func TestServeHTTP(t *testing.T) {
	r := new(MockRetriever)
	r.On("Retrieve", mock.Anything, "https://example.com", "q", 0).Return(nil, nil)
	r.On("Indexed", mock.Anything, "https://example.com").Return(false, nil)
	h := NewHandler(r, nil)

	body := `{"jsonrpc":"2.0","method":"tools/call","id":1,"params":{"name":"search_website","arguments":{"query":"q"}}}`
	req := httptest.NewRequest(http.MethodPost, "/mcp?url=example.com", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), grounding.UnboundMessage)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{")))
	assert.Contains(t, rec.Body.String(), `"code":-32700`)
}

func TestHandleMessage_Errors(t *testing.T) {
	h := NewHandler(nil, nil)

	rec := httptest.NewRecorder()
	h.HandleMessage(rec, httptest.NewRequest(http.MethodPost, "/mcp/messages", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleMessage(rec, httptest.NewRequest(http.MethodPost, "/mcp/messages?sessionId=unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	h.sessions["s1"] = &session{ch: make(chan string, 1)}
	rec = httptest.NewRecorder()
	h.HandleMessage(rec, httptest.NewRequest(http.MethodPost, "/mcp/messages?sessionId=s1", bytes.NewBufferString("{bad")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_JSON", resp["error"].(map[string]interface{})["code"])
}

func TestSSE_RoundTrip(t *testing.T) {
	r := new(MockRetriever)
	r.On("Retrieve", mock.Anything, "https://example.com", "gopher", 0).Return(nil, nil)
	r.On("Indexed", mock.Anything, "https://example.com").Return(true, nil)
	h := NewHandler(r, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /mcp/sse", h.HandleSSE)
	mux.HandleFunc("POST /mcp/messages", h.HandleMessage)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/mcp/sse?url=example.com", nil)
	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()

	events := bufio.NewScanner(stream.Body)
	nextData := func() string {
		for events.Scan() {
			if line := events.Text(); strings.HasPrefix(line, "data: ") {
				return strings.TrimPrefix(line, "data: ")
			}
		}
		return ""
	}

	endpoint := nextData()
	require.Contains(t, endpoint, "/mcp/messages?sessionId=")

	body := `{"jsonrpc":"2.0","method":"tools/call","id":9,"params":{"name":"search_website","arguments":{"query":"gopher"}}}`
	post, err := http.Post(endpoint, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusAccepted, post.StatusCode)

	var resp struct {
		ID     int        `json:"id"`
		Result ToolResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(nextData()), &resp))
	assert.Equal(t, 9, resp.ID)
	assert.Equal(t, grounding.NoEvidenceMessage, resp.Result.Content[0].Text)
}
