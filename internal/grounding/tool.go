// Package grounding exposes retrieval to the answering agent as the search_website tool.
package grounding

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"webchat/internal/retrieval"
)

const (
	ToolName        = "search_website"
	ToolDescription = "Search the ingested website content for passages relevant to the query. " +
		"Always call this before answering a question about the website."

	UnboundMessage    = "Error: No website has been ingested yet. Please ingest a URL first."
	SearchFailedMsg   = "Error: Search failed. Please try again later."
	NoEvidenceMessage = "No relevant content found for this query."

	Delimiter = "\n---\n"
)

type Retriever interface {
	Retrieve(ctx context.Context, url, query string, k int) ([]retrieval.RetrievedChunk, error)
	Indexed(ctx context.Context, url string) (bool, error)
}

// Tool is search_website bound to one URL. A zero URL means nothing was ingested.
type Tool struct {
	retriever Retriever
	url       string
	k         int
}

func NewTool(r Retriever, url string) *Tool {
	return &Tool{retriever: r, url: url}
}

// WithTopK overrides the settings top-k for this tool.
func (t *Tool) WithTopK(k int) *Tool {
	t.k = k
	return t
}

func (t *Tool) URL() string { return t.url }

// SearchWebsite never returns an error: every failure becomes a message the agent can relay.
func (t *Tool) SearchWebsite(ctx context.Context, query string) string {
	if t == nil || t.url == "" {
		return UnboundMessage
	}

	chunks, err := t.retriever.Retrieve(ctx, t.url, query, t.k)
	if err != nil {
		slog.ErrorContext(ctx, "search_website failed", "url", t.url, "error", err)
		return SearchFailedMsg
	}
	if len(chunks) == 0 {
		indexed, err := t.retriever.Indexed(ctx, t.url)
		if err == nil && !indexed {
			return UnboundMessage
		}
		return NoEvidenceMessage
	}
	return Format(chunks)
}

// Format renders chunks as numbered evidence blocks.
func Format(chunks []retrieval.RetrievedChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		score := "n/a"
		if c.Score != nil {
			score = formatScore(*c.Score)
		}
		parts = append(parts, fmt.Sprintf("[Chunk %d] (score: %s)\n%s", c.ChunkID, score, c.Text))
	}
	return strings.Join(parts, Delimiter)
}

// formatScore prints the shortest round-trip form, keeping a ".0" on whole numbers.
func formatScore(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eIN") {
		s += ".0"
	}
	return s
}
