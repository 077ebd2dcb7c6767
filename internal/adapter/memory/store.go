// Package memory is an in-process vector store for single-node runs and tests.
package memory

import (
	"context"
	"sync"

	"webchat/internal/vector"
)

type collection struct {
	url     string
	records []vector.Record
}

type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

func NewStore() *Store {
	return &Store{collections: make(map[string]*collection)}
}

func (s *Store) UpsertCollection(ctx context.Context, id, url string, records []vector.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := make([]vector.Record, len(records))
	copy(cp, records)
	for i := range cp {
		if cp[i].SourceURL == "" {
			cp[i].SourceURL = url
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(cp) == 0 {
		delete(s.collections, id)
		return nil
	}
	s.collections[id] = &collection{url: url, records: cp}
	return nil
}

// Search scores every record by cosine similarity. Records are kept in
// insertion order, so the stable sort preserves it for equal scores.
func (s *Store) Search(ctx context.Context, id string, query []float32, k int) ([]vector.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	c, ok := s.collections[id]
	if !ok {
		s.mu.RUnlock()
		return nil, vector.ErrCollectionNotFound
	}
	matches := make([]vector.Match, 0, len(c.records))
	for _, r := range c.records {
		matches = append(matches, vector.Match{
			ChunkIndex: r.ChunkIndex,
			Text:       r.Text,
			SourceURL:  r.SourceURL,
			Score:      vector.Cosine(query, r.Vector),
		})
	}
	s.mu.RUnlock()

	if k <= 0 {
		return nil, nil
	}
	vector.SortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *Store) Size(ctx context.Context, id string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[id]
	if !ok {
		return 0, vector.ErrCollectionNotFound
	}
	return len(c.records), nil
}

func (s *Store) DeleteCollection(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, id)
	return nil
}

func (s *Store) CountAll(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, c := range s.collections {
		total += len(c.records)
	}
	return total, nil
}
