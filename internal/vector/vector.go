// Package vector defines the per-collection chunk store used by ingestion and retrieval.
package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"webchat/internal/apperr"
)

var (
	// ErrCollectionNotFound is returned by Search and Size for a collection that holds no chunks.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrStoreUnavailable wraps connection and server failures of the backing store.
	ErrStoreUnavailable = fmt.Errorf("vector store unavailable: %w", apperr.ErrBackendUnavailable)
)

// Record is one chunk as written to a collection.
type Record struct {
	ChunkIndex int
	Text       string
	SourceURL  string
	Vector     []float32
}

// Match is a stored chunk scored against a query vector.
type Match struct {
	ChunkIndex int
	Text       string
	SourceURL  string
	Score      float64
}

type Store interface {
	// UpsertCollection replaces the whole collection with records.
	UpsertCollection(ctx context.Context, id, url string, records []Record) error
	// Search returns at most k matches, best first. Equal scores keep insertion order.
	Search(ctx context.Context, id string, query []float32, k int) ([]Match, error)
	Size(ctx context.Context, id string) (int, error)
	DeleteCollection(ctx context.Context, id string) error
	// CountAll reports chunks across every collection.
	CountAll(ctx context.Context) (int, error)
}

// SortMatches orders by descending score, breaking ties by chunk index.
func SortMatches(ms []Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Score != ms[j].Score {
			return ms[i].Score > ms[j].Score
		}
		return ms[i].ChunkIndex < ms[j].ChunkIndex
	})
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero vector
// or the dimensions differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
