// Package ingest turns extracted page text into a searchable collection.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"webchat/internal/apperr"
	"webchat/internal/collection"
	"webchat/internal/embedding"
	"webchat/internal/text"
	"webchat/internal/vector"
)

type Result struct {
	CollectionName string `json:"collection_name"`
	NumChunks      int    `json:"num_chunks"`
	// TextSize is the page length in the chunker's unit.
	TextSize int `json:"text_size"`
}

type Pipeline struct {
	chunker  *text.Chunker
	embedder embedding.Embedder
	store    vector.Store
	locks    *keyedLock
}

func New(c *text.Chunker, e embedding.Embedder, s vector.Store) *Pipeline {
	return &Pipeline{chunker: c, embedder: e, store: s, locks: newKeyedLock()}
}

// Ingest replaces the collection for url with the chunks of pageText. The chunk
// count is read back from the store, not taken from the chunker. Ingestions of
// the same collection run one at a time from the upsert through the read-back.
func (p *Pipeline) Ingest(ctx context.Context, url, pageText string) (Result, error) {
	if strings.TrimSpace(pageText) == "" {
		return Result{}, fmt.Errorf("%w: no text to ingest for %s", apperr.ErrInvalidInput, url)
	}

	normalized, id := collection.Resolve(url)
	chunks := p.chunker.Split(pageText)

	records := make([]vector.Record, 0, len(chunks))
	for i, c := range chunks {
		vec, err := p.embedder.Embed(ctx, c.Text)
		if err != nil {
			return Result{}, fmt.Errorf("embed chunk %d: %w", i, err)
		}
		records = append(records, vector.Record{
			ChunkIndex: i,
			Text:       c.Text,
			SourceURL:  normalized,
			Vector:     vec,
		})
	}

	unlock, err := p.locks.Lock(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("wait for %s: %w", id, err)
	}
	defer unlock()

	if err := p.store.UpsertCollection(ctx, id, normalized, records); err != nil {
		return Result{}, fmt.Errorf("upsert %s: %w", id, err)
	}

	n, err := p.store.Size(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("size %s: %w", id, err)
	}

	slog.InfoContext(ctx, "collection ingested", "url", normalized, "collection", id, "chunks", n)
	return Result{CollectionName: id, NumChunks: n, TextSize: p.chunker.Measure(pageText)}, nil
}
