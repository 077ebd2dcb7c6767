package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Hashing is a local embedder using signed feature hashing over lower-cased
// words and word bigrams. Vectors are L2-normalized, so dot product equals cosine.
type Hashing struct {
	dim int
}

func NewHashing(dim int) (*Hashing, error) {
	if err := (Config{Provider: ProviderHashing, Dimension: dim}).Validate(); err != nil {
		return nil, err
	}
	return &Hashing{dim: dim}, nil
}

func (h *Hashing) Dimension() int { return h.dim }

func (h *Hashing) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float64, h.dim)
	words := wordRe.FindAllString(strings.ToLower(text), -1)
	for i, w := range words {
		h.add(vec, w, 1)
		if i > 0 {
			h.add(vec, words[i-1]+" "+w, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, h.dim)
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (h *Hashing) add(vec []float64, feature string, weight float64) {
	f := fnv.New64a()
	f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}
