package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"webchat/internal/grounding"
)

// Session is the chat state bound to one URL. Turns on a session run one at a time.
type Session struct {
	URL       string
	Tool      *grounding.Tool
	CreatedAt time.Time

	mu      sync.Mutex
	history []*genai.Content
}

func (s *Session) remember(question, answer string) {
	s.history = append(s.history,
		&genai.Content{Role: roleUser, Parts: []genai.Part{genai.Text(question)}},
		&genai.Content{Role: roleModel, Parts: []genai.Part{genai.Text(answer)}},
	)
	if excess := len(s.history) - 2*maxTurns; excess > 0 {
		s.history = append([]*genai.Content(nil), s.history[excess:]...)
	}
}

// Turns reports how many question/answer pairs the session remembers.
func (s *Session) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history) / 2
}

// Sessions is a bounded, expiring cache of sessions keyed by normalized URL.
type Sessions struct {
	mu        sync.Mutex
	cache     *expirable.LRU[string, *Session]
	retriever grounding.Retriever
}

func NewSessions(size int, ttl time.Duration, r grounding.Retriever) *Sessions {
	onEvict := func(url string, _ *Session) {
		slog.Debug("chat session evicted", "url", url)
	}
	return &Sessions{
		cache:     expirable.NewLRU[string, *Session](size, onEvict, ttl),
		retriever: r,
	}
}

// GetOrCreate returns the session for url, creating one bound to url if needed.
func (s *Sessions) GetOrCreate(url string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.cache.Get(url); ok {
		return sess, false
	}
	sess := &Session{
		URL:       url,
		Tool:      grounding.NewTool(s.retriever, url),
		CreatedAt: time.Now(),
	}
	s.cache.Add(url, sess)
	return sess, true
}

// Invalidate drops the session for url so the next chat starts fresh.
func (s *Sessions) Invalidate(ctx context.Context, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache.Remove(url) {
		slog.InfoContext(ctx, "chat session invalidated", "url", url)
	}
}

func (s *Sessions) Len() int {
	return s.cache.Len()
}

type Broadcaster interface {
	Publish(ctx context.Context, url string) error
}

// BroadcastInvalidator evicts locally and tells peer replicas to do the same.
type BroadcastInvalidator struct {
	Local *Sessions
	Bus   Broadcaster
}

func (b *BroadcastInvalidator) Invalidate(ctx context.Context, url string) {
	b.Local.Invalidate(ctx, url)
	if b.Bus == nil {
		return
	}
	if err := b.Bus.Publish(ctx, url); err != nil {
		slog.WarnContext(ctx, "failed to broadcast session invalidation", "url", url, "error", err)
	}
}
