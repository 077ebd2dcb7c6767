package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"webchat/internal/retrieval"
)

type provider struct {
	url   string
	model string
	extra map[string]interface{}
}

var providers = map[string]provider{
	"jina":   {url: "https://api.jina.ai/v1/rerank", model: "jina-reranker-v1-base-en"},
	"cohere": {url: "https://api.cohere.ai/v1/rerank", model: "rerank-english-v3.0", extra: map[string]interface{}{"return_documents": false}},
}

type Client struct {
	apiKey   string
	provider string
	client   *http.Client
	baseURL  string
}

func NewClient(provider, apiKey string) *Client {
	return &Client{
		provider: provider,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// Rerank orders docs by relevance to query. A nil result means no reranking is
// configured and the caller keeps its own order.
func (c *Client) Rerank(ctx context.Context, query string, docs []string) ([]retrieval.Ranked, error) {
	p, ok := providers[c.provider]
	if !ok || len(docs) == 0 {
		return nil, nil
	}

	url := p.url
	if c.baseURL != "" {
		url = c.baseURL
	}

	reqBody := map[string]interface{}{
		"model":     p.model,
		"query":     query,
		"documents": docs,
		"top_n":     len(docs),
	}
	for k, v := range p.extra {
		reqBody[k] = v
	}

	jsonBody, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%s api error: %d: %s", c.provider, resp.StatusCode, string(body))
	}

	var result struct {
		Results []struct {
			Index int     `json:"index"`
			Score float64 `json:"relevance_score"`
		} `json:"results"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	ranked := make([]retrieval.Ranked, 0, len(docs))
	for _, r := range result.Results {
		if r.Index >= 0 && r.Index < len(docs) {
			ranked = append(ranked, retrieval.Ranked{Index: r.Index, Score: r.Score})
		}
	}
	return ranked, nil
}
