package reranker

import (
	"context"
	"fmt"
	"sync"

	"webchat/internal/retrieval"
	"webchat/internal/settings"
)

// DynamicClient picks provider and key from runtime settings on every call.
type DynamicClient struct {
	settingsSvc *settings.Service

	mu       sync.Mutex
	client   *Client
	provider string
	key      string
}

func NewDynamicClient(svc *settings.Service) *DynamicClient {
	return &DynamicClient{settingsSvc: svc}
}

func (d *DynamicClient) Rerank(ctx context.Context, query string, docs []string) ([]retrieval.Ranked, error) {
	s, err := d.settingsSvc.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	if _, ok := providers[s.RerankProvider]; !ok {
		return nil, nil
	}
	return d.getClient(s.RerankProvider, s.RerankAPIKey).Rerank(ctx, query, docs)
}

func (d *DynamicClient) getClient(provider, key string) *Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil || d.provider != provider || d.key != key {
		d.client = NewClient(provider, key)
		d.provider = provider
		d.key = key
	}
	return d.client
}
