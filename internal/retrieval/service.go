package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"webchat/internal/collection"
	"webchat/internal/embedding"
	"webchat/internal/middleware"
	"webchat/internal/settings"
	"webchat/internal/vector"
)

const DefaultTopK = 5

// RetrievedChunk is one piece of evidence returned to the grounding tool.
// ChunkID is the 1-based rank within a single result set.
type RetrievedChunk struct {
	ChunkID   int      `json:"chunk_id"`
	Text      string   `json:"text"`
	SourceURL string   `json:"source_url"`
	Score     *float64 `json:"score"`
}

// Ranked is a reranker verdict for docs[Index].
type Ranked struct {
	Index int
	Score float64
}

type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string) ([]Ranked, error)
}

type Service struct {
	embedder embedding.Embedder
	store    vector.Store
	reranker Reranker
	settings *settings.Service
	logger   *QueryLogger
}

func NewService(e embedding.Embedder, s vector.Store, r Reranker, set *settings.Service, l *QueryLogger) *Service {
	return &Service{embedder: e, store: s, reranker: r, settings: set, logger: l}
}

// Retrieve returns up to k chunks of the collection for url, most relevant first.
// A url that was never ingested yields no chunks and no error.
func (s *Service) Retrieve(ctx context.Context, url, query string, k int) ([]RetrievedChunk, error) {
	start := time.Now()
	normalized, id := collection.Resolve(url)

	topK, minScore := DefaultTopK, 0.0
	if s.settings != nil {
		cfg, err := s.settings.Get(ctx)
		if err != nil {
			slog.WarnContext(ctx, "settings unavailable, using retrieval defaults", "error", err)
		} else {
			if cfg.SearchTopK > 0 {
				topK = cfg.SearchTopK
			}
			if cfg.MinScore != nil {
				minScore = *cfg.MinScore
			}
		}
	}
	if k <= 0 {
		k = topK
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := s.store.Search(ctx, id, vec, k)
	rec := QueryRecord{URL: normalized, Collection: id, Query: query, TopK: k}
	if errors.Is(err, vector.ErrCollectionNotFound) {
		s.log(ctx, rec, start)
		return []RetrievedChunk{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", id, err)
	}

	if s.reranker != nil && len(matches) > 1 {
		matches, rec.Reranked, err = s.rerank(ctx, query, matches)
		if err != nil {
			return nil, err
		}
	}

	out := make([]RetrievedChunk, 0, len(matches))
	for _, m := range matches {
		if m.Score <= minScore {
			continue
		}
		score := round4(m.Score)
		out = append(out, RetrievedChunk{
			ChunkID:   len(out) + 1,
			Text:      m.Text,
			SourceURL: m.SourceURL,
			Score:     &score,
		})
	}

	rec.Returned = len(out)
	if len(out) > 0 {
		rec.TopScore = *out[0].Score
	}
	s.log(ctx, rec, start)
	return out, nil
}

func (s *Service) rerank(ctx context.Context, query string, matches []vector.Match) ([]vector.Match, bool, error) {
	docs := make([]string, len(matches))
	for i, m := range matches {
		docs[i] = m.Text
	}

	ranked, err := s.reranker.Rerank(ctx, query, docs)
	if err != nil {
		return nil, false, fmt.Errorf("rerank: %w", err)
	}
	if ranked == nil {
		return matches, false, nil
	}

	out := make([]vector.Match, 0, len(ranked))
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= len(matches) {
			continue
		}
		m := matches[r.Index]
		m.Score = r.Score
		out = append(out, m)
	}
	vector.SortMatches(out)
	return out, true, nil
}

func (s *Service) log(ctx context.Context, rec QueryRecord, start time.Time) {
	if s.logger == nil {
		return
	}
	rec.CorrelationID = middleware.GetCorrelationID(ctx)
	rec.LatencyMs = time.Since(start).Milliseconds()
	s.logger.Log(rec)
}

func round4(f float64) float64 {
	return math.Round(f*1e4) / 1e4
}

// Indexed reports whether url has a stored collection.
func (s *Service) Indexed(ctx context.Context, url string) (bool, error) {
	_, id := collection.Resolve(url)
	_, err := s.store.Size(ctx, id)
	if errors.Is(err, vector.ErrCollectionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
