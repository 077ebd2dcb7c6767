package gemini_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"webchat/internal/adapter/gemini"
	"webchat/internal/apperr"
)

var searchTool = &genai.Tool{
	FunctionDeclarations: []*genai.FunctionDeclaration{{
		Name: "search_website",
		Parameters: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: map[string]*genai.Schema{"query": {Type: genai.TypeString}},
			Required:   []string{"query"},
		},
	}},
}

func chatServer(t *testing.T, status int, reply string, body *string) *httptest.Server {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if body != nil {
			*body = string(raw)
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"code":500,"message":"boom","status":"INTERNAL"}}`))
			return
		}
		assert.True(t, strings.HasSuffix(r.URL.Path, ":generateContent"), r.URL.Path)
		w.Write([]byte(reply))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestChatModel_Generate(t *testing.T) {
	ctx := context.Background()
	history := []*genai.Content{{Role: "user", Parts: []genai.Part{genai.Text("what is this site about?")}}}

	t.Run("Forced function call", func(t *testing.T) {
		var sent string
		ts := chatServer(t, http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"search_website","args":{"query":"site topic"}}}]},"finishReason":"STOP"}]}`, &sent)
		pool := gemini.NewClientPool(gemini.StaticKey("k"), option.WithEndpoint(ts.URL))
		defer pool.Close()

		m := gemini.NewChatModel(pool, "", nil, "be grounded", searchTool)
		reply, err := m.Generate(ctx, history, genai.FunctionCallingAny)
		require.NoError(t, err)
		require.Len(t, reply.Parts, 1)

		call, ok := reply.Parts[0].(genai.FunctionCall)
		require.True(t, ok, "%T", reply.Parts[0])
		assert.Equal(t, "search_website", call.Name)
		assert.Equal(t, "site topic", call.Args["query"])

		assert.Contains(t, sent, "ANY")
		assert.Contains(t, sent, "search_website")
		assert.Contains(t, sent, "be grounded")
	})

	t.Run("Text answer", func(t *testing.T) {
		ts := chatServer(t, http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"text":"It is about gophers [Chunk 1]."}]},"finishReason":"STOP"}]}`, nil)
		pool := gemini.NewClientPool(gemini.StaticKey("k"), option.WithEndpoint(ts.URL))
		defer pool.Close()

		reply, err := gemini.NewChatModel(pool, "", nil, "", searchTool).Generate(ctx, history, genai.FunctionCallingAuto)
		require.NoError(t, err)
		assert.Equal(t, genai.Text("It is about gophers [Chunk 1]."), reply.Parts[0])
	})

	t.Run("Server error is backend unavailable", func(t *testing.T) {
		ts := chatServer(t, http.StatusInternalServerError, "", nil)
		pool := gemini.NewClientPool(gemini.StaticKey("k"), option.WithEndpoint(ts.URL))
		defer pool.Close()

		_, err := gemini.NewChatModel(pool, "", nil, "", searchTool).Generate(ctx, history, genai.FunctionCallingAuto)
		assert.ErrorIs(t, err, apperr.ErrBackendUnavailable)
	})

	t.Run("Missing key", func(t *testing.T) {
		pool := gemini.NewClientPool(gemini.StaticKey(""))
		_, err := gemini.NewChatModel(pool, "", nil, "", searchTool).Generate(ctx, history, genai.FunctionCallingAuto)
		assert.ErrorIs(t, err, gemini.ErrAPIKeyMissing)
	})
}
