package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"webchat/features/site"
	"webchat/internal/collection"
	"webchat/internal/grounding"
	"webchat/internal/middleware"
)

const listSitesTool = "list_sites"

type SiteLister interface {
	List(ctx context.Context) ([]site.Site, error)
}

// session is one SSE client. url is the website the client bound with ?url=.
type session struct {
	ch  chan string
	url string
}

type Handler struct {
	retriever    grounding.Retriever
	sites        SiteLister
	sessions     map[string]*session
	sessionsLock sync.RWMutex
}

func NewHandler(r grounding.Retriever, s SiteLister) *Handler {
	return &Handler{
		retriever: r,
		sites:     s,
		sessions:  make(map[string]*session),
	}
}

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type SearchArgs struct {
	Query string `json:"query"`
	URL   string `json:"url,omitempty"`
	K     int    `json:"k,omitempty"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
}

type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   interface{} `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	ErrParse          = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternal       = -32603
)

var tools = []Tool{
	{
		Name: grounding.ToolName,
		Description: grounding.ToolDescription + `

The website is the one bound to this session (SSE ?url=) unless "url" is given.`,
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]string{
					"type":        "string",
					"description": "Natural-language search query about the website content",
				},
				"url": map[string]string{
					"type":        "string",
					"description": "Website URL to search. Overrides the session binding.",
				},
				"k": map[string]interface{}{
					"type":        "integer",
					"description": "Max chunks to return (default from settings).",
					"minimum":     1,
					"maximum":     50,
				},
			},
			"required": []string{"query"},
		},
	},
	{
		Name:        listSitesTool,
		Description: "Lists the websites that have been ingested and can be searched.",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	},
}

// processRequest returns nil for notifications.
func (h *Handler) processRequest(ctx context.Context, boundURL string, req JSONRPCRequest) *JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]interface{}{
				"protocolVersion": "2024-11-05",
				"capabilities": map[string]interface{}{
					"tools": map[string]interface{}{},
				},
				"serverInfo": map[string]interface{}{
					"name":    "webchat-mcp",
					"version": "1.0.0",
				},
			},
		}
	case "notifications/initialized":
		return nil
	case "ping":
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{}}
	case "tools/list":
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: ListToolsResult{Tools: tools}}
	case "tools/call":
		return h.callTool(ctx, boundURL, req)
	}

	slog.WarnContext(ctx, "unknown jsonrpc method", "method", req.Method)
	resp := makeErrorResponse(req.ID, ErrMethodNotFound, "Method not found")
	return &resp
}

func (h *Handler) callTool(ctx context.Context, boundURL string, req JSONRPCRequest) *JSONRPCResponse {
	var params CallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		slog.WarnContext(ctx, "invalid params structure", "error", err)
		resp := makeErrorResponse(req.ID, ErrInvalidParams, "Invalid params")
		return &resp
	}

	switch params.Name {
	case grounding.ToolName:
		var args SearchArgs
		if len(params.Arguments) > 0 {
			if err := json.Unmarshal(params.Arguments, &args); err != nil {
				slog.WarnContext(ctx, "invalid search arguments", "error", err)
				resp := makeErrorResponse(req.ID, ErrInvalidParams, "Invalid search arguments")
				return &resp
			}
		}
		if args.Query == "" {
			resp := makeErrorResponse(req.ID, ErrInvalidParams, "Query is required")
			return &resp
		}

		target := boundURL
		if args.URL != "" {
			target = collection.Normalize(args.URL)
		}
		text := grounding.NewTool(h.retriever, target).WithTopK(args.K).SearchWebsite(ctx, args.Query)
		slog.InfoContext(ctx, "tool execution completed", "tool", grounding.ToolName, "url", target)
		return textResult(req.ID, text, false)

	case listSitesTool:
		sites, err := h.sites.List(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "list_sites failed", "error", err)
			return textResult(req.ID, "Error: "+err.Error(), true)
		}
		if len(sites) == 0 {
			return textResult(req.ID, "No websites have been ingested yet.", false)
		}

		type simpleSite struct {
			URL       string `json:"url"`
			Title     string `json:"title,omitempty"`
			NumChunks int    `json:"num_chunks"`
			Status    string `json:"status"`
		}
		out := make([]simpleSite, len(sites))
		for i, s := range sites {
			out[i] = simpleSite{URL: s.URL, Title: s.Title, NumChunks: s.NumChunks, Status: s.Status}
		}
		b, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return textResult(req.ID, "Error marshalling results", true)
		}
		return textResult(req.ID, string(b), false)
	}

	slog.WarnContext(ctx, "tool not found", "tool", params.Name)
	resp := makeErrorResponse(req.ID, ErrMethodNotFound, "Method not found: "+params.Name)
	return &resp
}

func textResult(id interface{}, text string, isError bool) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result: ToolResult{
			Content: []ToolContent{{Type: "text", Text: text}},
			IsError: isError,
		},
	}
}

func makeErrorResponse(id interface{}, code int, message string) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		Error: map[string]interface{}{
			"code":    code,
			"message": message,
		},
		ID: id,
	}
}

// ServeHTTP answers a single JSON-RPC request. The website comes from ?url= or the tool arguments.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, nil, ErrParse, "Parse error")
		return
	}

	resp := h.processRequest(r.Context(), boundURL(r), req)
	if resp == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

func boundURL(r *http.Request) string {
	if u := r.URL.Query().Get("url"); u != "" {
		return collection.Normalize(u)
	}
	return ""
}

// HandleSSE opens an event stream and binds the session to ?url= when given.
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		middleware.WriteError(r.Context(), w, "INTERNAL_ERROR", "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sessionID := uuid.New().String()
	sess := &session{ch: make(chan string, 100), url: boundURL(r)}

	h.sessionsLock.Lock()
	h.sessions[sessionID] = sess
	h.sessionsLock.Unlock()

	defer func() {
		h.sessionsLock.Lock()
		delete(h.sessions, sessionID)
		close(sess.ch)
		h.sessionsLock.Unlock()
		slog.Info("sse session ended", "session_id", sessionID)
	}()

	slog.InfoContext(r.Context(), "sse session started", "session_id", sessionID, "url", sess.url)

	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	endpoint := fmt.Sprintf("%s://%s/mcp/messages?sessionId=%s", scheme, r.Host, url.QueryEscape(sessionID))
	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", html.EscapeString(endpoint))
	flusher.Flush()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg := <-sess.ch:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// HandleMessage accepts a JSON-RPC request for an SSE session and answers on its stream.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		middleware.WriteError(ctx, w, "VALIDATION_ERROR", "Missing sessionId", http.StatusBadRequest)
		return
	}

	h.sessionsLock.RLock()
	sess, exists := h.sessions[sessionID]
	h.sessionsLock.RUnlock()
	if !exists {
		slog.WarnContext(ctx, "session not found", "session_id", sessionID)
		middleware.WriteError(ctx, w, "NOT_FOUND", "Session not found", http.StatusNotFound)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(ctx, w, "INVALID_JSON", "Invalid JSON", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)

	ctx = context.WithoutCancel(ctx)
	go func() {
		resp := h.processRequest(ctx, sess.url, req)
		if resp == nil {
			return
		}
		b, err := json.Marshal(resp)
		if err != nil {
			slog.ErrorContext(ctx, "failed to marshal response", "error", err)
			return
		}
		h.deliver(ctx, sessionID, string(b))
	}()
}

// deliver holds the read lock so the stream cannot close its channel mid-send.
func (h *Handler) deliver(ctx context.Context, sessionID, msg string) {
	h.sessionsLock.RLock()
	defer h.sessionsLock.RUnlock()

	sess, ok := h.sessions[sessionID]
	if !ok {
		slog.WarnContext(ctx, "sse session closed before response", "session_id", sessionID)
		return
	}
	select {
	case sess.ch <- msg:
	default:
		slog.WarnContext(ctx, "session channel full, dropping message", "session_id", sessionID)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	// JSON-RPC over HTTP reports errors in the body with 200 OK.
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(makeErrorResponse(id, code, message))
}
