package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"webchat/internal/apperr"
	"webchat/internal/collection"
	"webchat/internal/grounding"
	"webchat/internal/retrieval"
)

type Service struct {
	sessions  *Sessions
	agent     *Agent
	retriever grounding.Retriever
	timeout   time.Duration
}

func NewService(sessions *Sessions, agent *Agent, r grounding.Retriever, chatTimeout time.Duration) *Service {
	return &Service{sessions: sessions, agent: agent, retriever: r, timeout: chatTimeout}
}

// Chat answers message using the session bound to url, creating it on first use.
func (s *Service) Chat(ctx context.Context, url, message string) (string, error) {
	if strings.TrimSpace(url) == "" || strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("%w: url and message are required", apperr.ErrInvalidInput)
	}
	url = collection.Normalize(url)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	sess, created := s.sessions.GetOrCreate(url)
	if created {
		slog.InfoContext(ctx, "chat session created", "url", url)
	}

	start := time.Now()
	answer, err := s.agent.Ask(ctx, sess, message)
	if err != nil {
		return "", fmt.Errorf("chat %s: %w", url, err)
	}
	slog.InfoContext(ctx, "chat answered", "url", url, "duration_ms", time.Since(start).Milliseconds())
	return answer, nil
}

// Retrieve exposes the raw retriever output for url.
func (s *Service) Retrieve(ctx context.Context, url, query string, k int) ([]retrieval.RetrievedChunk, error) {
	if strings.TrimSpace(url) == "" || strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: url and query are required", apperr.ErrInvalidInput)
	}
	return s.retriever.Retrieve(ctx, url, query, k)
}

// ActiveSessions reports how many sessions are cached on this replica.
func (s *Service) ActiveSessions() int {
	return s.sessions.Len()
}
