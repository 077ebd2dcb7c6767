package chat_test

import (
	"context"
	"errors"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/mock"

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

type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) Publish(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

// scriptedModel replays canned replies and records what the agent sent.
type scriptedModel struct {
	mu        sync.Mutex
	replies   []*genai.Content
	fallback  *genai.Content
	err       error
	modes     []genai.FunctionCallingMode
	histories [][]*genai.Content
}

func (m *scriptedModel) Generate(ctx context.Context, history []*genai.Content, mode genai.FunctionCallingMode) (*genai.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.modes = append(m.modes, mode)
	m.histories = append(m.histories, append([]*genai.Content(nil), history...))
	if m.err != nil {
		return nil, m.err
	}
	if len(m.replies) == 0 {
		if m.fallback != nil {
			return m.fallback, nil
		}
		return nil, errors.New("script exhausted")
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

func callReply(name, query string) *genai.Content {
	return &genai.Content{Role: "model", Parts: []genai.Part{
		genai.FunctionCall{Name: name, Args: map[string]any{"query": query}},
	}}
}

func textReply(s string) *genai.Content {
	return &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(s)}}
}

func chunk(id int, text string, score float64) retrieval.RetrievedChunk {
	return retrieval.RetrievedChunk{ChunkID: id, Text: text, SourceURL: "https://example.com", Score: &score}
}

// blockingModel waits for the context to end.
type blockingModel struct{}

func (blockingModel) Generate(ctx context.Context, _ []*genai.Content, _ genai.FunctionCallingMode) (*genai.Content, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
