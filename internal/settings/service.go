package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var ErrInvalidSettings = errors.New("invalid settings")

const maxTopK = 50

// Settings are the runtime-tunable knobs of retrieval and the model backends.
type Settings struct {
	ID             int      `json:"-"`
	RerankProvider string   `json:"rerank_provider"`
	RerankAPIKey   string   `json:"rerank_api_key"`
	GeminiAPIKey   string   `json:"gemini_api_key"`
	SearchTopK     int      `json:"search_top_k"`
	// MinScore is nil when unset; 0 is a valid explicit threshold.
	MinScore       *float64 `json:"min_score"`
}

// Score returns a settings pointer for a min_score value.
func Score(v float64) *float64 { return &v }

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Service struct {
	repo     Repository
	defaults Settings
}

type Option func(*Service)

// WithDefaults fills unset fields of stored settings, typically from environment config.
func WithDefaults(d Settings) Option {
	return func(s *Service) { s.defaults = d }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	stored, err := s.repo.Get(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		d := s.defaults
		return &d, nil
	}
	if err != nil {
		return nil, err
	}

	out := *stored
	if out.SearchTopK <= 0 {
		out.SearchTopK = s.defaults.SearchTopK
	}
	if out.MinScore == nil && s.defaults.MinScore != nil {
		out.MinScore = Score(*s.defaults.MinScore)
	}
	if out.GeminiAPIKey == "" {
		out.GeminiAPIKey = s.defaults.GeminiAPIKey
	}
	if out.RerankAPIKey == "" {
		out.RerankAPIKey = s.defaults.RerankAPIKey
	}
	return &out, nil
}

func (s *Service) Update(ctx context.Context, set *Settings) error {
	if err := set.Validate(); err != nil {
		return err
	}
	// Keys echoed back from GetSettings are masked; keep the stored value.
	if isMasked(set.GeminiAPIKey) || isMasked(set.RerankAPIKey) {
		cur, err := s.repo.Get(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if cur == nil {
			cur = &Settings{}
		}
		if isMasked(set.GeminiAPIKey) {
			set.GeminiAPIKey = cur.GeminiAPIKey
		}
		if isMasked(set.RerankAPIKey) {
			set.RerankAPIKey = cur.RerankAPIKey
		}
	}
	return s.repo.Update(ctx, set)
}

func isMasked(key string) bool {
	return strings.HasPrefix(key, maskPrefix)
}

func (s *Settings) Validate() error {
	if s.SearchTopK < 0 || s.SearchTopK > maxTopK {
		return fmt.Errorf("%w: search_top_k must be between 0 and %d", ErrInvalidSettings, maxTopK)
	}
	if s.MinScore != nil && (*s.MinScore < -1 || *s.MinScore > 1) {
		return fmt.Errorf("%w: min_score must be between -1 and 1", ErrInvalidSettings)
	}
	switch s.RerankProvider {
	case "", "none", "jina", "cohere":
	default:
		return fmt.Errorf("%w: unknown rerank_provider %q", ErrInvalidSettings, s.RerankProvider)
	}
	return nil
}

// MemoryRepo keeps settings in process. Used when no database is configured (CLI).
type MemoryRepo struct {
	mu sync.RWMutex
	s  *Settings
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (r *MemoryRepo) Get(ctx context.Context) (*Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.s == nil {
		return nil, sql.ErrNoRows
	}
	cp := *r.s
	return &cp, nil
}

func (r *MemoryRepo) Update(ctx context.Context, s *Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.s = &cp
	return nil
}
