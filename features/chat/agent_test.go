package chat_test

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"webchat/features/chat"
	"webchat/internal/grounding"
	"webchat/internal/retrieval"
)

func responseText(t *testing.T, c *genai.Content) string {
	t.Helper()
	require.Equal(t, "user", c.Role)
	require.Len(t, c.Parts, 1)
	fr, ok := c.Parts[0].(genai.FunctionResponse)
	require.True(t, ok, "%T", c.Parts[0])
	s, _ := fr.Response["result"].(string)
	return s
}

func TestAgent_Ask(t *testing.T) {
	ctx := context.Background()
	const url = "https://example.com"

	t.Run("First call is forced to search", func(t *testing.T) {
		r := new(MockRetriever)
		r.On("Retrieve", mock.Anything, url, "gophers", 0).
			Return([]retrieval.RetrievedChunk{chunk(1, "Gophers dig tunnels.", 0.91)}, nil)

		m := &scriptedModel{replies: []*genai.Content{
			callReply(grounding.ToolName, "gophers"),
			textReply("Gophers dig tunnels [Chunk 1]."),
		}}
		sess, _ := chat.NewSessions(4, 0, r).GetOrCreate(url)

		answer, err := chat.NewAgent(m, 4).Ask(ctx, sess, "What do gophers do?")
		require.NoError(t, err)
		assert.Equal(t, "Gophers dig tunnels [Chunk 1].", answer)
		assert.Equal(t, []genai.FunctionCallingMode{genai.FunctionCallingAny, genai.FunctionCallingAuto}, m.modes)

		second := m.histories[1]
		require.Len(t, second, 3)
		assert.Equal(t, genai.Text("What do gophers do?"), second[0].Parts[0])
		assert.Equal(t, "[Chunk 1] (score: 0.91)\nGophers dig tunnels.", responseText(t, second[2]))
		r.AssertExpectations(t)
	})

	t.Run("Text before any search triggers a search with the question", func(t *testing.T) {
		r := new(MockRetriever)
		r.On("Retrieve", mock.Anything, url, "Who made the logo?", 0).
			Return([]retrieval.RetrievedChunk{chunk(1, "Renee French drew it.", 0.8)}, nil)

		m := &scriptedModel{replies: []*genai.Content{
			textReply("I think it was someone."),
			textReply("Renee French [Chunk 1]."),
		}}
		sess, _ := chat.NewSessions(4, 0, r).GetOrCreate(url)

		answer, err := chat.NewAgent(m, 4).Ask(ctx, sess, "Who made the logo?")
		require.NoError(t, err)
		assert.Equal(t, "Renee French [Chunk 1].", answer)
		require.Len(t, m.histories, 2)

		forced := m.histories[1][1]
		assert.Equal(t, "model", forced.Role)
		assert.Equal(t, genai.FunctionCall{Name: grounding.ToolName, Args: map[string]any{"query": "Who made the logo?"}}, forced.Parts[0])
		r.AssertExpectations(t)
	})

	t.Run("Unbound tool result reaches the model", func(t *testing.T) {
		r := new(MockRetriever)
		r.On("Retrieve", mock.Anything, url, "q", 0).Return(nil, nil)
		r.On("Indexed", mock.Anything, url).Return(false, nil)

		m := &scriptedModel{replies: []*genai.Content{
			callReply(grounding.ToolName, "q"),
			textReply("Please ingest the website first."),
		}}
		sess, _ := chat.NewSessions(4, 0, r).GetOrCreate(url)

		_, err := chat.NewAgent(m, 4).Ask(ctx, sess, "anything")
		require.NoError(t, err)
		assert.Equal(t, grounding.UnboundMessage, responseText(t, m.histories[1][2]))
	})

	t.Run("Round budget forces an answer", func(t *testing.T) {
		r := new(MockRetriever)
		r.On("Retrieve", mock.Anything, url, mock.Anything, 0).
			Return([]retrieval.RetrievedChunk{chunk(1, "text", 0.5)}, nil)

		m := &scriptedModel{replies: []*genai.Content{
			callReply(grounding.ToolName, "a"),
			callReply(grounding.ToolName, "b"),
			textReply("done"),
		}}
		sess, _ := chat.NewSessions(4, 0, r).GetOrCreate(url)

		answer, err := chat.NewAgent(m, 2).Ask(ctx, sess, "question")
		require.NoError(t, err)
		assert.Equal(t, "done", answer)
		assert.Equal(t, []genai.FunctionCallingMode{
			genai.FunctionCallingAny, genai.FunctionCallingAuto, genai.FunctionCallingNone,
		}, m.modes)
		r.AssertNumberOfCalls(t, "Retrieve", 2)
	})

	t.Run("Tool call after the budget is an error", func(t *testing.T) {
		r := new(MockRetriever)
		r.On("Retrieve", mock.Anything, url, mock.Anything, 0).Return([]retrieval.RetrievedChunk{chunk(1, "text", 0.5)}, nil)

		m := &scriptedModel{fallback: callReply(grounding.ToolName, "again")}
		sess, _ := chat.NewSessions(4, 0, r).GetOrCreate(url)

		_, err := chat.NewAgent(m, 1).Ask(ctx, sess, "question")
		assert.Error(t, err)
		assert.Len(t, m.modes, 2)
		assert.Equal(t, 0, sess.Turns())
	})

	t.Run("Unknown tool", func(t *testing.T) {
		m := &scriptedModel{replies: []*genai.Content{
			callReply("fetch_url", "x"),
			textReply("ok"),
		}}
		sess, _ := chat.NewSessions(4, 0, new(MockRetriever)).GetOrCreate(url)

		_, err := chat.NewAgent(m, 4).Ask(ctx, sess, "question")
		require.NoError(t, err)
		assert.Contains(t, responseText(t, m.histories[1][2]), `unknown tool "fetch_url"`)
	})

	t.Run("Model error", func(t *testing.T) {
		m := &scriptedModel{err: assert.AnError}
		sess, _ := chat.NewSessions(4, 0, new(MockRetriever)).GetOrCreate(url)

		_, err := chat.NewAgent(m, 4).Ask(ctx, sess, "question")
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestAgent_History(t *testing.T) {
	ctx := context.Background()
	const url = "https://example.com"

	r := new(MockRetriever)
	r.On("Retrieve", mock.Anything, url, mock.Anything, 0).Return(nil, nil)
	r.On("Indexed", mock.Anything, url).Return(true, nil)

	m := &scriptedModel{fallback: textReply("nothing on the site")}
	sess, _ := chat.NewSessions(4, 0, r).GetOrCreate(url)
	agent := chat.NewAgent(m, 4)

	_, err := agent.Ask(ctx, sess, "first")
	require.NoError(t, err)
	_, err = agent.Ask(ctx, sess, "second")
	require.NoError(t, err)
	assert.Equal(t, 2, sess.Turns())

	// third model call opens the second turn: prior pair plus the new question
	opening := m.histories[2]
	require.Len(t, opening, 3)
	assert.Equal(t, genai.Text("first"), opening[0].Parts[0])
	assert.Equal(t, genai.Text("nothing on the site"), opening[1].Parts[0])
	assert.Equal(t, genai.Text("second"), opening[2].Parts[0])

	for i := 0; i < 12; i++ {
		_, err := agent.Ask(ctx, sess, "more")
		require.NoError(t, err)
	}
	assert.Equal(t, 10, sess.Turns())
}
