package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"webchat/internal/embedding"
	"webchat/internal/settings"
)

// ErrAPIKeyMissing is returned when no Gemini key is configured in settings or env.
var ErrAPIKeyMissing = fmt.Errorf("%w: gemini api key not configured", embedding.ErrModelLoad)

// KeyFunc resolves the API key to use for the next call.
type KeyFunc func(ctx context.Context) (string, error)

func StaticKey(key string) KeyFunc {
	return func(context.Context) (string, error) { return key, nil }
}

// SettingsKey reads the key from runtime settings, so a key updated through the
// settings API takes effect without a restart.
func SettingsKey(svc *settings.Service) KeyFunc {
	return func(ctx context.Context) (string, error) {
		s, err := svc.Get(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to get settings: %w", err)
		}
		return s.GeminiAPIKey, nil
	}
}

// ClientPool hands out a genai client for the current key, rebuilding it when
// the key changes. A replaced client is closed once its last caller releases it.
type ClientPool struct {
	keys       KeyFunc
	cur        *pooledClient
	mu         sync.Mutex
	clientOpts []option.ClientOption
}

type pooledClient struct {
	client  *genai.Client
	key     string
	refs    int
	retired bool
	closed  bool
}

func NewClientPool(keys KeyFunc, opts ...option.ClientOption) *ClientPool {
	return &ClientPool{
		keys:       keys,
		clientOpts: opts,
	}
}

// Client returns the client for the current key and a release func the caller
// must invoke when its call is done.
func (p *ClientPool) Client(ctx context.Context) (*genai.Client, func(), error) {
	key, err := p.keys(ctx)
	if err != nil {
		return nil, nil, err
	}
	if key == "" {
		return nil, nil, ErrAPIKeyMissing
	}
	return p.clientFor(ctx, key)
}

func (p *ClientPool) clientFor(ctx context.Context, key string) (*genai.Client, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cur == nil || p.cur.key != key {
		opts := append(append([]option.ClientOption{}, p.clientOpts...), option.WithAPIKey(key))
		client, err := genai.NewClient(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", embedding.ErrModelLoad, err)
		}
		if p.cur != nil {
			if err := p.retire(p.cur); err != nil {
				slog.Warn("failed to close previous genai client", "error", err)
			}
		}
		p.cur = &pooledClient{client: client, key: key}
	}

	pc := p.cur
	pc.refs++
	var once sync.Once
	return pc.client, func() { once.Do(func() { p.release(pc) }) }, nil
}

func (p *ClientPool) release(pc *pooledClient) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pc.refs--
	if pc.retired && pc.refs == 0 {
		if err := closeClient(pc); err != nil {
			slog.Warn("failed to close previous genai client", "error", err)
		}
	}
}

// retire must be called with p.mu held.
func (p *ClientPool) retire(pc *pooledClient) error {
	pc.retired = true
	if pc.refs > 0 {
		return nil
	}
	return closeClient(pc)
}

func closeClient(pc *pooledClient) error {
	if pc.closed {
		return nil
	}
	pc.closed = true
	return pc.client.Close()
}

// Close retires the current client. Calls still in flight keep it open until they release.
func (p *ClientPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return nil
	}
	err := p.retire(p.cur)
	p.cur = nil
	return err
}
